package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/md-rashed-zaman/lessonbook/libs/auth"
	"github.com/md-rashed-zaman/lessonbook/libs/googlex"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/services/auth-service/internal/audit"
	"github.com/md-rashed-zaman/lessonbook/services/auth-service/internal/oauthstate"
	"github.com/md-rashed-zaman/lessonbook/services/auth-service/internal/storage"
	"golang.org/x/oauth2"
)

// GoogleLogin runs the authorization-code half of Google sign-in.
type GoogleLogin interface {
	ConsentURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, googlex.UserInfo, error)
}

type CalendarSummaries interface {
	Summary(ctx context.Context, userID, calendarID string) (string, error)
}

type oauthLogin struct {
	cfg *oauth2.Config
}

// NewGoogleLogin returns nil when cfg is nil so the Google routes report 503.
func NewGoogleLogin(cfg *oauth2.Config) GoogleLogin {
	if cfg == nil {
		return nil
	}
	return &oauthLogin{cfg: cfg}
}

func (g *oauthLogin) ConsentURL(state string) string {
	return googlex.ConsentURL(g.cfg, state)
}

func (g *oauthLogin) Exchange(ctx context.Context, code string) (*oauth2.Token, googlex.UserInfo, error) {
	tok, err := g.cfg.Exchange(googlex.WithTracedHTTP(ctx), code)
	if err != nil {
		return nil, googlex.UserInfo{}, err
	}
	info, err := googlex.FetchUserInfo(ctx, g.cfg, tok)
	if err != nil {
		return nil, googlex.UserInfo{}, err
	}
	return tok, info, nil
}

type googleCalendars struct {
	client *googlex.Client
}

func NewCalendarSummaries(client *googlex.Client) CalendarSummaries {
	return googleCalendars{client: client}
}

func (c googleCalendars) Summary(ctx context.Context, userID, calendarID string) (string, error) {
	cal, err := c.client.Calendar(ctx, userID, calendarID)
	if err != nil {
		return "", err
	}
	return cal.CalendarSummary(ctx)
}

type firebaseRequest struct {
	IDToken string `json:"id_token"`
	Role    string `json:"role"`
}

func (h *AuthHandler) Firebase(w http.ResponseWriter, r *http.Request) {
	if h.firebase == nil {
		http.Error(w, "firebase login not configured", http.StatusServiceUnavailable)
		return
	}
	var req firebaseRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		http.Error(w, "id_token is required", http.StatusBadRequest)
		return
	}
	role, ok := normalizeRole(req.Role)
	if !ok {
		http.Error(w, "role must be teacher or student", http.StatusBadRequest)
		return
	}

	tok, err := h.firebase.VerifyIDToken(r.Context(), req.IDToken)
	if err != nil {
		http.Error(w, "invalid or expired firebase token", http.StatusUnauthorized)
		return
	}
	email, _ := tok.Claims["email"].(string)
	if email == "" {
		http.Error(w, "firebase token has no email", http.StatusUnauthorized)
		return
	}
	name, _ := tok.Claims["name"].(string)
	first, last := splitName(name)

	user, created, err := h.users.UpsertExternal(r.Context(), storage.ExternalLogin{
		Email:       email,
		FirstName:   first,
		LastName:    last,
		Role:        role,
		FirebaseUID: tok.UID,
	})
	if err != nil {
		h.logger.Error("firebase upsert failed", "err", err)
		http.Error(w, "failed to upsert user", http.StatusInternalServerError)
		return
	}
	h.recordExternal(r.Context(), user, created, "firebase")
	h.writeTokens(w, r, http.StatusOK, user)
}

func (h *AuthHandler) GoogleStart(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		http.Error(w, "google login not configured", http.StatusServiceUnavailable)
		return
	}
	role, ok := normalizeRole(r.URL.Query().Get("role"))
	if !ok {
		http.Error(w, "role must be teacher or student", http.StatusBadRequest)
		return
	}
	nonce, err := oauthstate.NewNonce()
	if err != nil {
		http.Error(w, "failed to start login", http.StatusInternalServerError)
		return
	}
	if err := h.nonces.Put(r.Context(), nonce, h.cfg.StateTTL); err != nil {
		h.logger.Error("store oauth nonce failed", "err", err)
		http.Error(w, "failed to start login", http.StatusInternalServerError)
		return
	}
	state, err := auth.SignState(role, nonce, h.cfg.StateSecret, h.now(), h.cfg.StateTTL)
	if err != nil {
		http.Error(w, "failed to start login", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.google.ConsentURL(state), http.StatusFound)
}

func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		http.Error(w, "google login not configured", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		http.Error(w, "google authorization denied", http.StatusUnauthorized)
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	state, err := auth.VerifyState(q.Get("state"), h.cfg.StateSecret)
	if err != nil {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	fresh, err := h.nonces.Consume(r.Context(), state.Nonce)
	if err != nil {
		h.logger.Error("consume oauth nonce failed", "err", err)
		http.Error(w, "failed to complete login", http.StatusInternalServerError)
		return
	}
	if !fresh {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	tok, info, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("google code exchange failed", "err", err)
		http.Error(w, "google authentication failed", http.StatusBadGateway)
		return
	}
	if info.Email == "" {
		http.Error(w, "google account has no email", http.StatusBadGateway)
		return
	}

	user, created, err := h.users.UpsertExternal(r.Context(), storage.ExternalLogin{
		Email:     info.Email,
		FirstName: info.FirstName,
		LastName:  info.LastName,
		Role:      state.Role,
	})
	if err != nil {
		h.logger.Error("google upsert failed", "err", err)
		http.Error(w, "failed to upsert user", http.StatusInternalServerError)
		return
	}
	if err := h.tokens.SaveToken(r.Context(), user.ID, tok); err != nil {
		h.logger.Error("save google token failed", "user_id", user.ID, "err", err)
		http.Error(w, "failed to store google token", http.StatusInternalServerError)
		return
	}
	user.GoogleConnected = true
	h.recordExternal(r.Context(), user, created, "google")
	h.record(r.Context(), audit.EventGoogleConnected, user.ID, nil)

	resp, err := h.issueTokens(r.Context(), user)
	if err != nil {
		h.logger.Error("issue tokens failed", "user_id", user.ID, "err", err)
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	if h.cfg.FrontendURL == "" {
		httpx.WriteJSON(w, http.StatusOK, resp)
		return
	}
	http.Redirect(w, r, frontendRedirect(h.cfg.FrontendURL, resp), http.StatusFound)
}

// frontendRedirect puts the tokens in the URL fragment so they never reach a server log.
func frontendRedirect(base string, resp tokenResponse) string {
	frag := url.Values{}
	frag.Set("access_token", resp.AccessToken)
	frag.Set("refresh_token", resp.RefreshToken)
	frag.Set("token_type", resp.TokenType)
	if resp.User.ProfileCompleted {
		frag.Set("profile_completed", "true")
	} else {
		frag.Set("profile_completed", "false")
	}
	if i := strings.IndexByte(base, '#'); i >= 0 {
		base = base[:i]
	}
	return base + "#" + frag.Encode()
}

func (h *AuthHandler) recordExternal(ctx context.Context, user storage.User, created bool, method string) {
	if created {
		h.record(ctx, audit.EventRegister, user.ID, map[string]any{"method": method, "role": user.Role})
	}
	h.record(ctx, audit.EventLogin, user.ID, map[string]any{"method": method})
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
