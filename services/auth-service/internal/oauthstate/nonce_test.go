package oauthstate

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_SingleUse(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Put(ctx, "abc", time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err := s.Consume(ctx, "abc")
	if err != nil || !ok {
		t.Fatalf("expected first consume to succeed, got %v %v", ok, err)
	}
	ok, _ = s.Consume(ctx, "abc")
	if ok {
		t.Fatal("expected second consume to fail")
	}
	ok, _ = s.Consume(ctx, "never-issued")
	if ok {
		t.Fatal("expected unknown nonce to fail")
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	_ = s.Put(context.Background(), "abc", time.Minute)

	now = now.Add(2 * time.Minute)
	ok, _ := s.Consume(context.Background(), "abc")
	if ok {
		t.Fatal("expected expired nonce to be rejected")
	}
}

func TestNewNonce(t *testing.T) {
	a, err := NewNonce()
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	b, _ := NewNonce()
	if len(a) != 32 || a == b {
		t.Fatalf("expected distinct 32-char nonces, got %q %q", a, b)
	}
}
