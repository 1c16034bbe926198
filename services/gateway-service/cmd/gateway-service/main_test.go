package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/auth"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
)

const testSecret = "test-secret"

func hsToken(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := auth.SignHS256(auth.NewClaims(userID, userID+"@example.com", role, time.Now(), time.Hour), testSecret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	return token
}

func TestRequireRole(t *testing.T) {
	h := requireRole(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), auth.RoleTeacher)

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set(httpx.RoleHeader, auth.RoleStudent)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rw.Code)
	}

	reqOK := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqOK.Header.Set(httpx.RoleHeader, auth.RoleTeacher)
	rwOK := httptest.NewRecorder()
	h.ServeHTTP(rwOK, reqOK)
	if rwOK.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rwOK.Code)
	}
}

func TestRequireAuthHS256(t *testing.T) {
	token := hsToken(t, "user-1", auth.RoleStudent)

	h := requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(httpx.UserIDHeader) != "user-1" ||
			r.Header.Get(httpx.UserEmailHeader) != "user-1@example.com" ||
			r.Header.Get(httpx.RoleHeader) != auth.RoleStudent {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}), auth.Verifier{Secret: testSecret})

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(httpx.RoleHeader, auth.RoleTeacher)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 with spoofed role overwritten, got %d", rw.Code)
	}

	reqBad := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqBad.Header.Set("Authorization", "Bearer badtoken")
	rwBad := httptest.NewRecorder()
	h.ServeHTTP(rwBad, reqBad)
	if rwBad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rwBad.Code)
	}

	reqNone := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	rwNone := httptest.NewRecorder()
	h.ServeHTTP(rwNone, reqNone)
	if rwNone.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", rwNone.Code)
	}
}

func TestRequireAuthRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	kid := auth.KeyID(&key.PublicKey)
	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(auth.JWKSet{Keys: []auth.JWK{auth.PublicJWK(&key.PublicKey, kid)}})
	}))
	defer jwks.Close()

	token, err := auth.SignRS256(auth.NewClaims("teacher-1", "", auth.RoleTeacher, time.Now(), time.Hour), key, kid)
	if err != nil {
		t.Fatalf("SignRS256 failed: %v", err)
	}

	h := requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-User", r.Header.Get(httpx.UserIDHeader))
		w.WriteHeader(http.StatusOK)
	}), auth.Verifier{Keys: auth.NewJWKSClient(jwks.URL, time.Minute)})

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK || rw.Header().Get("X-Seen-User") != "teacher-1" {
		t.Fatalf("expected 200 for teacher-1, got %d %q", rw.Code, rw.Header().Get("X-Seen-User"))
	}
}

func upstream(t *testing.T, name string) *url.URL {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", name)
		w.Header().Set("X-Seen-User", r.Header.Get(httpx.UserIDHeader))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	u, _ := url.Parse(srv.URL)
	return u
}

func TestRoutes(t *testing.T) {
	mux := http.NewServeMux()
	registerRoutes(mux, Upstreams{
		Auth:      upstream(t, "auth"),
		Booking:   upstream(t, "booking"),
		Analytics: upstream(t, "analytics"),
	}, auth.Verifier{Secret: testSecret})

	teacher := hsToken(t, "t1", auth.RoleTeacher)
	student := hsToken(t, "s1", auth.RoleStudent)

	cases := []struct {
		name     string
		method   string
		path     string
		token    string
		spoof    string
		status   int
		upstream string
		seenUser string
	}{
		{"auth is open", http.MethodPost, "/api/v1/auth/login", "", "", http.StatusOK, "auth", ""},
		{"jwks is open", http.MethodGet, "/.well-known/jwks.json", "", "", http.StatusOK, "auth", ""},
		{"public slots are open", http.MethodGet, "/api/v1/public/teachers/ada-1234/slots", "", "", http.StatusOK, "booking", ""},
		{"public strips spoofed identity", http.MethodGet, "/api/v1/public/teachers", "", "intruder", http.StatusOK, "booking", ""},
		{"lessons need a token", http.MethodPost, "/api/v1/lessons", "", "", http.StatusUnauthorized, "", ""},
		{"student books", http.MethodPost, "/api/v1/lessons", student, "", http.StatusOK, "booking", "s1"},
		{"student cannot list calendars", http.MethodGet, "/api/v1/calendars", student, "", http.StatusForbidden, "", ""},
		{"teacher lists calendars", http.MethodGet, "/api/v1/calendars", teacher, "", http.StatusOK, "booking", "t1"},
		{"student cannot read analytics", http.MethodGet, "/api/v1/analytics/daily", student, "", http.StatusForbidden, "", ""},
		{"teacher reads analytics", http.MethodGet, "/api/v1/analytics/daily", teacher, "", http.StatusOK, "analytics", "t1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			if tc.spoof != "" {
				req.Header.Set(httpx.UserIDHeader, tc.spoof)
			}
			rw := httptest.NewRecorder()
			mux.ServeHTTP(rw, req)
			if rw.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rw.Code)
			}
			if got := rw.Header().Get("X-Upstream"); got != tc.upstream {
				t.Fatalf("expected upstream %q, got %q", tc.upstream, got)
			}
			if got := rw.Header().Get("X-Seen-User"); got != tc.seenUser {
				t.Fatalf("expected forwarded user %q, got %q", tc.seenUser, got)
			}
		})
	}
}

func TestOpenAPI(t *testing.T) {
	mux := http.NewServeMux()
	u, _ := url.Parse("http://127.0.0.1:1")
	registerRoutes(mux, Upstreams{Auth: u, Booking: u, Analytics: u}, auth.Verifier{Secret: testSecret})

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/openapi", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if ct := rw.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Fatalf("expected yaml content type, got %q", ct)
	}
}
