package httpx

import (
	"net/http"
	"strings"
)

// Identity headers set by the gateway after verifying the caller's JWT.
const (
	UserIDHeader    = "X-User-Id"
	UserEmailHeader = "X-User-Email"
	RoleHeader      = "X-Role"
)

type Caller struct {
	UserID string
	Email  string
	Role   string
}

func (c Caller) IsTeacher() bool {
	return c.Role == "teacher"
}

// CallerFromRequest reads the gateway identity headers. ok is false when no user id is
// present.
func CallerFromRequest(r *http.Request) (Caller, bool) {
	c := Caller{
		UserID: strings.TrimSpace(r.Header.Get(UserIDHeader)),
		Email:  strings.TrimSpace(r.Header.Get(UserEmailHeader)),
		Role:   strings.TrimSpace(r.Header.Get(RoleHeader)),
	}
	return c, c.UserID != ""
}

// RequireCaller writes a 401 when the identity headers are missing.
func RequireCaller(w http.ResponseWriter, r *http.Request) (Caller, bool) {
	c, ok := CallerFromRequest(r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
	}
	return c, ok
}

// StripIdentity removes caller-supplied identity headers before trusted ones are set.
func StripIdentity(r *http.Request) {
	r.Header.Del(UserIDHeader)
	r.Header.Del(UserEmailHeader)
	r.Header.Del(RoleHeader)
}
