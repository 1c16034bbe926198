package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := NewClaims("user-1", "ada@example.com", RoleTeacher, time.Now(), time.Hour)
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, secret)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Subject != "user-1" || parsed.Email != claims.Email || parsed.Role != RoleTeacher {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken with wrong secret, got %v", err)
	}
}

func TestHS256Expired(t *testing.T) {
	claims := NewClaims("user-1", "", RoleStudent, time.Now().Add(-2*time.Hour), time.Hour)
	token, err := SignHS256(claims, "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestRS256Verify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	claims := NewClaims("user-2", "sam@example.com", RoleStudent, time.Now(), time.Hour)

	token, err := SignRS256(claims, key, "kid-1")
	if err != nil {
		t.Fatalf("SignRS256 failed: %v", err)
	}
	parsed, err := VerifyRS256(token, &key.PublicKey)
	if err != nil {
		t.Fatalf("VerifyRS256 failed: %v", err)
	}
	if parsed.Subject != "user-2" || parsed.Role != RoleStudent {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	header, err := ParseHeader(token)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if header.Alg != "RS256" || header.Kid != "kid-1" {
		t.Fatalf("unexpected header %+v", header)
	}
	if _, err := ParseAndVerifyHS256(token, "secret"); err == nil {
		t.Fatal("expected RS256 token to be rejected by HS256 verification")
	}
}

func TestVerifierWithJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	kid := KeyID(&key.PublicKey)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(JWKSet{Keys: []JWK{PublicJWK(&key.PublicKey, kid)}})
	}))
	defer srv.Close()

	v := Verifier{Secret: "hs-secret", Keys: NewJWKSClient(srv.URL, time.Minute)}

	rsToken, err := SignRS256(NewClaims("user-3", "", RoleTeacher, time.Now(), time.Hour), key, kid)
	if err != nil {
		t.Fatalf("SignRS256 failed: %v", err)
	}
	if claims, err := v.Verify(rsToken); err != nil || claims.Subject != "user-3" {
		t.Fatalf("expected RS256 token to verify, got %v", err)
	}

	hsToken, err := SignHS256(NewClaims("user-4", "", RoleStudent, time.Now(), time.Hour), "hs-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if claims, err := v.Verify(hsToken); err != nil || claims.Subject != "user-4" {
		t.Fatalf("expected HS256 token to verify, got %v", err)
	}

	unknown, _ := SignRS256(NewClaims("user-5", "", RoleTeacher, time.Now(), time.Hour), key, "other")
	if _, err := v.Verify(unknown); err == nil {
		t.Fatal("expected unknown kid to fail")
	}
}

func TestJWKSClient_RefetchThrottle(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	kid := KeyID(&key.PublicKey)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(JWKSet{Keys: []JWK{PublicJWK(&key.PublicKey, kid), {Kty: "EC", Kid: "ec"}}})
	}))
	defer srv.Close()

	now := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	c := NewJWKSClient(srv.URL, 5*time.Minute)
	c.now = func() time.Time { return now }

	if _, err := c.Get(kid); err != nil {
		t.Fatalf("expected key, got %v", err)
	}
	if _, err := c.Get("ec"); err != ErrKeyNotFound {
		t.Fatalf("expected non-rsa key to be skipped, got %v", err)
	}
	if _, err := c.Get("missing"); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected unknown kids within the throttle window to reuse the cache, got %d fetches", hits.Load())
	}

	now = now.Add(time.Minute)
	_, _ = c.Get("missing")
	if hits.Load() != 2 {
		t.Fatalf("expected unknown kid to refetch after the throttle window, got %d fetches", hits.Load())
	}
	_, _ = c.Get(kid)
	if hits.Load() != 2 {
		t.Fatalf("expected cached key to be served, got %d fetches", hits.Load())
	}
}

func TestJWKPublicKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	jwk := PublicJWK(&key.PublicKey, "k1")
	pub, err := jwk.PublicKey()
	if err != nil || !pub.Equal(&key.PublicKey) {
		t.Fatalf("expected round trip of public key, got %v", err)
	}
	jwk.Alg = "RS512"
	if _, err := jwk.PublicKey(); err == nil {
		t.Fatal("expected other algorithms to be rejected")
	}
}

func TestStateRoundTrip(t *testing.T) {
	now := time.Now()
	token, err := SignState(RoleTeacher, "nonce-1", "state-secret", now, 10*time.Minute)
	if err != nil {
		t.Fatalf("SignState failed: %v", err)
	}
	state, err := VerifyState(token, "state-secret")
	if err != nil {
		t.Fatalf("VerifyState failed: %v", err)
	}
	if state.Role != RoleTeacher || state.Nonce != "nonce-1" {
		t.Fatalf("unexpected state %+v", state)
	}

	access, _ := SignHS256(NewClaims("user-1", "", RoleTeacher, now, time.Hour), "state-secret")
	if _, err := VerifyState(access, "state-secret"); err == nil {
		t.Fatal("expected access token to be rejected as state")
	}

	expired, _ := SignState(RoleStudent, "n", "state-secret", now.Add(-time.Hour), time.Minute)
	if _, err := VerifyState(expired, "state-secret"); err == nil {
		t.Fatal("expected expired state to fail")
	}
}
