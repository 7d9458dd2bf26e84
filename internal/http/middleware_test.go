package http

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"docqa/internal/contextutil"
)

func TestLoggerMiddlewareInjectsLogger(t *testing.T) {
	var sawRequestLogger bool
	inner := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		// A request-scoped logger carries method/path attributes, so it
		// is a distinct instance from the process default.
		sawRequestLogger = contextutil.LoggerFromContext(r.Context()) != slog.Default()
	})

	rec := httptest.NewRecorder()
	LoggerMiddleware(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if !sawRequestLogger {
		t.Error("handler did not receive a request-scoped logger")
	}
}

func TestCORSHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	CORS(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
