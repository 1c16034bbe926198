package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy configures cross-origin access for the browser frontend. An origin entry
// may be "*" or use a leading wildcard label, as in "https://*.lessonbook.app".
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

var (
	defaultCORSMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	defaultCORSHeaders = []string{"Authorization", "Content-Type", RequestIDHeader, "Idempotency-Key"}
	exposedCORSHeaders = strings.Join([]string{RequestIDHeader, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"}, ", ")
)

type originRule struct {
	any    bool
	exact  string
	scheme string
	suffix string
}

func parseOriginRule(raw string) (originRule, bool) {
	raw = strings.ToLower(strings.TrimRight(strings.TrimSpace(raw), "/"))
	switch {
	case raw == "":
		return originRule{}, false
	case raw == "*":
		return originRule{any: true}, true
	}
	scheme, host, ok := strings.Cut(raw, "://")
	if ok && strings.HasPrefix(host, "*.") {
		return originRule{scheme: scheme + "://", suffix: host[1:]}, true
	}
	return originRule{exact: raw}, true
}

func (o originRule) matches(origin string) bool {
	switch {
	case o.any:
		return true
	case o.exact != "":
		return o.exact == origin
	}
	host, ok := strings.CutPrefix(origin, o.scheme)
	return ok && strings.HasSuffix(host, o.suffix) && len(host) > len(o.suffix)
}

// WithCORS answers preflight requests and decorates responses for allowed origins.
// Without configured origins it returns nil, which Chain skips.
func WithCORS(cfg CORSPolicy) Middleware {
	var rules []originRule
	for _, raw := range cfg.AllowedOrigins {
		if rule, ok := parseOriginRule(raw); ok {
			rules = append(rules, rule)
		}
	}
	if len(rules) == 0 {
		return nil
	}
	methods := joinOr(cfg.AllowedMethods, defaultCORSMethods)
	headers := joinOr(cfg.AllowedHeaders, defaultCORSHeaders)
	maxAge := ""
	if secs := int(cfg.MaxAge.Seconds()); secs > 0 {
		maxAge = strconv.Itoa(secs)
	}

	allowed := func(origin string) bool {
		lower := strings.ToLower(origin)
		for _, rule := range rules {
			if rule.matches(lower) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")
			if origin == "" || !allowed(origin) {
				next.ServeHTTP(w, r)
				return
			}

			// Credentials forbid a literal "*", so the origin is always echoed back.
			h.Set("Access-Control-Allow-Origin", origin)
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				h.Set("Access-Control-Expose-Headers", exposedCORSHeaders)
				next.ServeHTTP(w, r)
				return
			}

			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			if maxAge != "" {
				h.Set("Access-Control-Max-Age", maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func joinOr(values, fallback []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		out = fallback
	}
	return strings.Join(out, ", ")
}
