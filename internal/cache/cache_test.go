package cache

import (
	"testing"
	"time"
)

func TestKeyNormalization(t *testing.T) {
	base := Key("What is the refund policy?")
	same := []string{
		"what is the refund policy?",
		"  What   is the\trefund policy?  ",
		"WHAT IS THE REFUND POLICY?",
	}
	for _, q := range same {
		if Key(q) != base {
			t.Errorf("Key(%q) differs from base", q)
		}
	}
	if Key("a different question") == base {
		t.Error("distinct queries produced the same key")
	}
}

func TestGetPut(t *testing.T) {
	c := New[string](time.Minute, 4)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get() on empty cache returned a value")
	}

	c.Put("k", "answer")
	got, ok := c.Get("k")
	if !ok || got != "answer" {
		t.Errorf("Get() = %q, %v, want answer, true", got, ok)
	}
}

func TestExpiry(t *testing.T) {
	c := New[string](time.Minute, 4)
	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	c.Put("k", "answer")
	current = current.Add(59 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Error("entry expired before TTL")
	}

	current = current.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("entry survived past TTL")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after expiry, want 0", c.Len())
	}
}

func TestEvictsOldestAtCapacity(t *testing.T) {
	c := New[int](time.Hour, 2)
	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	c.Put("a", 1)
	current = current.Add(time.Second)
	c.Put("b", 2)
	current = current.Add(time.Second)
	c.Put("c", 3)

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry not evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("newer entry evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("newest entry missing")
	}
}

func TestPurge(t *testing.T) {
	c := New[string](time.Hour, 4)
	c.Put("a", "1")
	c.Put("b", "2")

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Purge, want 0", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("Get() returned a purged entry")
	}
}
