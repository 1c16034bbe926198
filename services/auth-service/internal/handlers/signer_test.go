package handlers

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/auth"
)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func pemOf(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
}

func TestRS256Signer(t *testing.T) {
	key := newKey(t)
	signer, err := NewRS256Signer([]byte(pemOf(key)), "")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	token, err := signer.Sign(auth.NewClaims("u1", "a@example.com", auth.RoleStudent, time.Now(), time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := signer.Verify(token)
	if err != nil || claims.Subject != "u1" {
		t.Fatalf("expected token to verify, got %+v %v", claims, err)
	}

	jwks := signer.JWKS()
	if len(jwks) != 1 || jwks[0].Kid != auth.KeyID(&key.PublicKey) {
		t.Fatalf("unexpected jwks: %+v", jwks)
	}
	if signer.CanRotate() {
		t.Fatal("single key signer should not rotate")
	}

	// Gateway-side verification resolves the kid through the same key source.
	v := auth.Verifier{Keys: signer}
	if _, err := v.Verify(token); err != nil {
		t.Fatalf("verifier rejected token: %v", err)
	}
}

func TestRotatingSigner(t *testing.T) {
	a, b := newKey(t), newKey(t)
	keys, err := ParseRS256KeySet(pemOf(a) + pemOf(b))
	if err != nil {
		t.Fatalf("parse key set: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
	kidA, kidB := auth.KeyID(&a.PublicKey), auth.KeyID(&b.PublicKey)
	signer, err := NewRotatingRS256Signer(keys, kidA)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if !signer.CanRotate() {
		t.Fatal("expected rotation to be available")
	}

	old, _ := signer.Sign(auth.NewClaims("u1", "", auth.RoleTeacher, time.Now(), time.Hour))
	if err := signer.SetActiveKid(kidB); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	fresh, _ := signer.Sign(auth.NewClaims("u1", "", auth.RoleTeacher, time.Now(), time.Hour))

	for _, tok := range []string{old, fresh} {
		if _, err := signer.Verify(tok); err != nil {
			t.Fatalf("expected token to verify after rotation: %v", err)
		}
	}
	h, _ := auth.ParseHeader(fresh)
	if h.Kid != kidB {
		t.Fatalf("expected new tokens signed with %s, got %s", kidB, h.Kid)
	}
	if err := signer.SetActiveKid("missing"); err == nil {
		t.Fatal("expected unknown kid to be rejected")
	}
}

func TestHS256Signer_NoJWKS(t *testing.T) {
	s := NewHS256Signer("secret")
	if s.JWKS() != nil || s.CanRotate() {
		t.Fatal("hs256 signer exposes no keys and cannot rotate")
	}
}
