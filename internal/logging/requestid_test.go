package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateRequestID_Length(t *testing.T) {
	id := GenerateRequestID()
	if len(id) != 8 {
		t.Errorf("GenerateRequestID() length = %d, want 8", len(id))
	}
}

func TestWithRequestID_RoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc123")
	if got := GetRequestID(ctx); got != "abc123" {
		t.Errorf("GetRequestID() = %q, want %q", got, "abc123")
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() on empty context = %q, want empty", got)
	}
}

func TestRequestID_HonorsClientHeader(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/accounts", nil)
	req.Header.Set("X-Request-ID", "client-provided-id")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if seen != "client-provided-id" {
		t.Errorf("request id in context = %q, want client-provided-id", seen)
	}
	if w.Header().Get("X-Request-ID") != "client-provided-id" {
		t.Errorf("response header = %q, want client-provided-id", w.Header().Get("X-Request-ID"))
	}
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/accounts", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if len(w.Header().Get("X-Request-ID")) != 8 {
		t.Errorf("expected generated 8-char id, got %q", w.Header().Get("X-Request-ID"))
	}
}
