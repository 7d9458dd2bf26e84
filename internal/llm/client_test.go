package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("messages = %+v, want system then user", req.Messages)
		}
		if req.MaxTokens != 256 {
			t.Errorf("max_tokens = %d, want 256", req.MaxTokens)
		}

		json.NewEncoder(w).Encode(ChatResponse{
			Choices: []ChatChoice{
				{Message: ChatMessage{Role: "assistant", Content: "The answer."}},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model", 256, 0.2)
	got, err := client.Generate(context.Background(), "You answer from context.", "What is up?")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "The answer." {
		t.Errorf("Generate() = %q, want %q", got, "The answer.")
	}
}

func TestGenerateOmitsEmptySystemPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v, want single user message", req.Messages)
		}
		json.NewEncoder(w).Encode(ChatResponse{
			Choices: []ChatChoice{{Message: ChatMessage{Content: "ok"}}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "test-model", 0, 0)
	if _, err := client.Generate(context.Background(), "", "hello"); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "model loading", http.StatusServiceUnavailable)
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(ChatResponse{})
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient(server.URL, "", "test-model", 0, 0)
			if _, err := client.Generate(context.Background(), "", "q"); err == nil {
				t.Error("Generate() error = nil, want failure")
			}
		})
	}
}
