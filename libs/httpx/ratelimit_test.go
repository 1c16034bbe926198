package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if _, ok := rl.allow("a"); !ok {
		t.Fatalf("expected first request to pass")
	}
	if used, ok := rl.allow("a"); !ok || used != 2 {
		t.Fatalf("expected second request to pass as 2, got %d %v", used, ok)
	}
	if _, ok := rl.allow("a"); ok {
		t.Fatalf("expected third request to be limited")
	}
	if _, ok := rl.allow("b"); !ok {
		t.Fatalf("expected other client to pass")
	}

	now = now.Add(61 * time.Second)
	if used, ok := rl.allow("a"); !ok || used != 1 {
		t.Fatalf("expected window to reset, got %d %v", used, ok)
	}
	if len(rl.visitors) != 1 {
		t.Fatalf("expected expired visitors to be swept, got %d", len(rl.visitors))
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set(UserIDHeader, "u1")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if rw.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected no remaining requests, got %q", rw.Header().Get("X-RateLimit-Remaining"))
	}

	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rw.Code)
	}
	if rw.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rw.Header().Get("Retry-After"))
	}
	if ct := rw.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json error body, got %q", ct)
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	if got := clientKey(req); got != "10.0.0.1" {
		t.Fatalf("expected forwarded address, got %q", got)
	}
	req.Header.Set(UserIDHeader, "u1")
	if got := clientKey(req); got != "user:u1" {
		t.Fatalf("expected user key, got %q", got)
	}
}
