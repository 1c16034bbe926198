package main

import (
	"embed"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/md-rashed-zaman/lessonbook/libs/auth"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

//go:embed assets/gateway.v1.yaml
var openAPISpec embed.FS

type Upstreams struct {
	Auth      *url.URL
	Booking   *url.URL
	Analytics *url.URL
}

func newProxy(target *url.URL) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = otelhttp.NewTransport(httpx.RequestIDTransport{})
	return proxy
}

func registerRoutes(mux *http.ServeMux, up Upstreams, verifier auth.Verifier) {
	authProxy := newProxy(up.Auth)
	bookingProxy := newProxy(up.Booking)
	analyticsProxy := newProxy(up.Analytics)

	// auth-service verifies its own Bearer tokens on /me and /complete-profile.
	registerProxy(mux, "/api/v1/auth", anonymous(authProxy))
	registerProxy(mux, "/.well-known/jwks.json", anonymous(authProxy))
	registerProxy(mux, "/api/v1/public", anonymous(bookingProxy))
	registerProxy(mux, "/api/v1/lessons", requireAuth(bookingProxy, verifier))
	registerProxy(mux, "/api/v1/calendars", requireAuth(requireRole(bookingProxy, auth.RoleTeacher), verifier))
	registerProxy(mux, "/api/v1/analytics", requireAuth(requireRole(analyticsProxy, auth.RoleTeacher), verifier))

	mux.HandleFunc("GET /openapi", func(w http.ResponseWriter, _ *http.Request) {
		data, err := openAPISpec.ReadFile("assets/gateway.v1.yaml")
		if err != nil {
			http.Error(w, "openapi not available", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

// anonymous drops any identity headers a client tried to smuggle past the gateway.
func anonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.StripIdentity(r)
		next.ServeHTTP(w, r)
	})
}

func requireAuth(next http.Handler, verifier auth.Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.StripIdentity(r)

		authHeader := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if !strings.HasPrefix(authHeader, "Bearer ") || token == "" {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		r.Header.Set(httpx.UserIDHeader, claims.Subject)
		r.Header.Set(httpx.UserEmailHeader, claims.Email)
		r.Header.Set(httpx.RoleHeader, claims.Role)
		next.ServeHTTP(w, r)
	})
}

func requireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := r.Header.Get(httpx.RoleHeader)
		if _, ok := allowed[role]; !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
