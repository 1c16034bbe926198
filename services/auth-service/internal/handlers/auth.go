package handlers

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/lessonbook/libs/auth"
	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/libs/googlex"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
	"github.com/md-rashed-zaman/lessonbook/services/auth-service/internal/audit"
	"github.com/md-rashed-zaman/lessonbook/services/auth-service/internal/oauthstate"
	"github.com/md-rashed-zaman/lessonbook/services/auth-service/internal/sessions"
	"github.com/md-rashed-zaman/lessonbook/services/auth-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

type UserStore interface {
	Create(ctx context.Context, user storage.User, evt outbox.Event) (storage.User, error)
	GetByEmail(ctx context.Context, email string) (storage.User, error)
	GetByID(ctx context.Context, id string) (storage.User, error)
	UpsertExternal(ctx context.Context, login storage.ExternalLogin) (storage.User, bool, error)
	FindTeacher(ctx context.Context, ref string) (storage.User, error)
	CompleteTeacher(ctx context.Context, id string, p storage.TeacherProfile) (storage.User, error)
	CompleteStudent(ctx context.Context, id string, p storage.StudentProfile) (storage.User, error)
}

type SessionStore interface {
	Create(ctx context.Context, userID string, rawToken string, expiresAt time.Time) (string, error)
	GetByHash(ctx context.Context, hash string) (sessions.RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	Rotate(ctx context.Context, oldID, userID, rawToken string, expiresAt time.Time) error
}

type AuditLog interface {
	Record(ctx context.Context, eventType string, actorID string, metadata map[string]any) error
	List(ctx context.Context, q audit.Query) ([]audit.Event, error)
}

// IDTokenVerifier is satisfied by *firebase.google.com/go/v4/auth.Client.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

type Config struct {
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	StateSecret string
	StateTTL    time.Duration
	// FrontendURL receives the Google callback redirect. Empty means JSON.
	FrontendURL string
}

type AuthHandler struct {
	signer    TokenSigner
	users     UserStore
	sessions  SessionStore
	audit     AuditLog
	firebase  IDTokenVerifier
	google    GoogleLogin
	tokens    googlex.TokenStore
	nonces    oauthstate.Store
	calendars CalendarSummaries
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	randInt   func(n int) int
}

func NewAuthHandler(signer TokenSigner, users UserStore, sessionStore SessionStore, auditLog AuditLog, cfg Config, logger *slog.Logger) *AuthHandler {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	return &AuthHandler{
		signer:   signer,
		users:    users,
		sessions: sessionStore,
		audit:    auditLog,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		randInt:  rand.IntN,
	}
}

func (h *AuthHandler) WithFirebase(v IDTokenVerifier) *AuthHandler {
	h.firebase = v
	return h
}

// WithGoogle enables the OAuth login flow. tokens receives the user's Google token on
// every successful callback.
func (h *AuthHandler) WithGoogle(login GoogleLogin, tokens googlex.TokenStore, nonces oauthstate.Store) *AuthHandler {
	h.google = login
	h.tokens = tokens
	h.nonces = nonces
	return h
}

func (h *AuthHandler) WithCalendars(c CalendarSummaries) *AuthHandler {
	h.calendars = c
	return h
}

func (h *AuthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.SignUp)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/firebase", h.Firebase)
	mux.HandleFunc("GET /api/v1/auth/google/start", h.GoogleStart)
	mux.HandleFunc("GET /api/v1/auth/google/callback", h.GoogleCallback)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", h.Logout)
	mux.HandleFunc("GET /api/v1/auth/me", h.Me)
	mux.HandleFunc("POST /api/v1/auth/complete-profile", h.CompleteProfile)
	mux.HandleFunc("GET /.well-known/jwks.json", h.JWKS)
	mux.HandleFunc("POST /api/v1/auth/rotate", h.Rotate)
	mux.HandleFunc("GET /api/v1/auth/audit", h.Audit)
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    int     `json:"expires_in"`
	User         profile `json:"user"`
}

type profile struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Role             string `json:"role"`
	CalendarSlug     string `json:"calendar_slug,omitempty"`
	WorkingStart     string `json:"working_start,omitempty"`
	WorkingEnd       string `json:"working_end,omitempty"`
	SlotMinutes      int    `json:"slot_minutes,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	WeekendsExcluded bool   `json:"weekends_excluded"`
	CalendarID       string `json:"calendar_id,omitempty"`
	OfficeEmail      string `json:"office_email,omitempty"`
	Plan             string `json:"plan,omitempty"`
	TeacherSlug      string `json:"teacher_id,omitempty"`
	GoogleConnected  bool   `json:"google_connected"`
	ProfileCompleted bool   `json:"profile_completed"`
	CalendarSummary  string `json:"calendar_summary,omitempty"`
}

func toProfile(u storage.User) profile {
	p := profile{
		ID:               u.ID,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Role:             u.Role,
		Plan:             u.Plan,
		WeekendsExcluded: u.WeekendsExcluded,
		GoogleConnected:  u.GoogleConnected,
		ProfileCompleted: u.ProfileCompleted,
	}
	switch u.Role {
	case auth.RoleTeacher:
		p.CalendarSlug = u.CalendarSlug
		p.WorkingStart = u.WorkingStart
		p.WorkingEnd = u.WorkingEnd
		p.SlotMinutes = u.SlotMinutes
		p.Timezone = u.Timezone
		p.CalendarID = u.CalendarID
		p.OfficeEmail = u.OfficeEmail
	case auth.RoleStudent:
		p.TeacherSlug = u.TeacherSlug
	}
	return p
}

// normalizeRole defaults an empty role to student.
func normalizeRole(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", auth.RoleStudent:
		return auth.RoleStudent, true
	case auth.RoleTeacher:
		return auth.RoleTeacher, true
	default:
		return "", false
	}
}

func validEmail(raw string) bool {
	addr, err := mail.ParseAddress(raw)
	return err == nil && addr.Address == raw
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}
	if !validEmail(req.Email) {
		http.Error(w, "invalid email", http.StatusBadRequest)
		return
	}
	if len(req.Password) < minPasswordLen {
		http.Error(w, "password must be at least 8 characters", http.StatusBadRequest)
		return
	}
	role, ok := normalizeRole(req.Role)
	if !ok {
		http.Error(w, "role must be teacher or student", http.StatusBadRequest)
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}
	user := storage.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         role,
	}
	evt, err := outbox.NewEvent("user", user.ID, outbox.TopicUserRegistered, outbox.UserRegistered{
		UserID:     user.ID,
		Email:      user.Email,
		Role:       user.Role,
		Method:     "password",
		OccurredAt: h.now().UTC(),
	})
	if err != nil {
		http.Error(w, "failed to marshal user event", http.StatusInternalServerError)
		return
	}

	created, err := h.users.Create(r.Context(), user, evt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			http.Error(w, "email already registered", http.StatusConflict)
			return
		}
		h.logger.Error("create user failed", "err", err)
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}
	h.record(r.Context(), audit.EventRegister, created.ID, map[string]any{"method": "password", "role": created.Role})
	h.writeTokens(w, r, http.StatusCreated, created)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	if user.PasswordHash == "" || verifyPassword(user.PasswordHash, req.Password) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	h.record(r.Context(), audit.EventLogin, user.ID, map[string]any{"method": "password"})
	h.writeTokens(w, r, http.StatusOK, user)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}

	record, err := h.sessions.GetByHash(r.Context(), sessions.HashToken(req.RefreshToken))
	if err != nil {
		if sessions.IsNotFound(err) {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to lookup refresh token", http.StatusInternalServerError)
		return
	}
	if !record.Usable(h.now()) {
		http.Error(w, "refresh token expired", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetByID(r.Context(), record.UserID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}

	raw, err := sessions.NewToken()
	if err != nil {
		http.Error(w, "failed to issue refresh token", http.StatusInternalServerError)
		return
	}
	if err := h.sessions.Rotate(r.Context(), record.ID, user.ID, raw, h.now().Add(h.cfg.RefreshTTL)); err != nil {
		if errors.Is(err, sessions.ErrAlreadyRevoked) {
			http.Error(w, "refresh token expired", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to rotate refresh token", http.StatusInternalServerError)
		return
	}

	access, err := h.issueAccessToken(user)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    int(h.cfg.AccessTTL / time.Second),
		User:         toProfile(user),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}

	record, err := h.sessions.GetByHash(r.Context(), sessions.HashToken(req.RefreshToken))
	if err != nil {
		if sessions.IsNotFound(err) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, "failed to lookup refresh token", http.StatusInternalServerError)
		return
	}
	if record.RevokedAt == nil {
		if err := h.sessions.Revoke(r.Context(), record.ID); err != nil {
			http.Error(w, "failed to revoke refresh token", http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.bearer(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetByID(r.Context(), claims.Subject)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}

	out := toProfile(user)
	if user.Role == auth.RoleTeacher && user.GoogleConnected && h.calendars != nil {
		summary, err := h.calendars.Summary(r.Context(), user.ID, user.CalendarID)
		if err != nil {
			h.logger.Warn("calendar summary lookup failed", "user_id", user.ID, "err", err)
		} else {
			out.CalendarSummary = summary
		}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *AuthHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	keys := h.signer.JWKS()
	if len(keys) == 0 {
		http.Error(w, "jwks not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	httpx.WriteJSON(w, http.StatusOK, auth.JWKSet{Keys: keys})
}

func (h *AuthHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	if !h.signer.CanRotate() {
		http.Error(w, "rotation not enabled", http.StatusBadRequest)
		return
	}
	if !h.operator(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ActiveKid string `json:"active_kid"`
	}
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	if req.ActiveKid == "" {
		http.Error(w, "active_kid is required", http.StatusBadRequest)
		return
	}
	if err := h.signer.SetActiveKid(req.ActiveKid); err != nil {
		http.Error(w, "invalid active_kid", http.StatusBadRequest)
		return
	}
	h.record(r.Context(), audit.EventKeyRotated, "", map[string]any{"active_kid": req.ActiveKid})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if !h.operator(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	params := r.URL.Query()
	q := audit.Query{
		EventType: params.Get("event_type"),
		ActorID:   params.Get("actor_id"),
	}
	q.Limit, _ = strconv.Atoi(params.Get("limit"))
	q.Before, _ = strconv.ParseInt(params.Get("before"), 10, 64)
	if v := params.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		q.Since = since
	}
	if q.ActorID != "" {
		if _, err := uuid.Parse(q.ActorID); err != nil {
			http.Error(w, "actor_id must be a uuid", http.StatusBadRequest)
			return
		}
	}
	events, err := h.audit.List(r.Context(), q)
	if err != nil {
		http.Error(w, "failed to load audit events", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}

func (h *AuthHandler) operator(r *http.Request) bool {
	key := r.Header.Get("X-Rotate-Key")
	return key != "" && key == h.signer.RotateKey()
}

// bearer verifies the Authorization header and writes a 401 when it is missing or bad.
func (h *AuthHandler) bearer(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	header := r.Header.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if !strings.HasPrefix(header, "Bearer ") || token == "" {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return nil, false
	}
	claims, err := h.signer.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

func (h *AuthHandler) record(ctx context.Context, eventType, actorID string, metadata map[string]any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(ctx, eventType, actorID, metadata); err != nil {
		h.logger.Warn("audit record failed", "event_type", eventType, "err", err)
	}
}

func (h *AuthHandler) issueAccessToken(user storage.User) (string, error) {
	return h.signer.Sign(auth.NewClaims(user.ID, user.Email, user.Role, h.now(), h.cfg.AccessTTL))
}

func (h *AuthHandler) issueTokens(ctx context.Context, user storage.User) (tokenResponse, error) {
	access, err := h.issueAccessToken(user)
	if err != nil {
		return tokenResponse{}, err
	}
	raw, err := sessions.NewToken()
	if err != nil {
		return tokenResponse{}, err
	}
	if _, err := h.sessions.Create(ctx, user.ID, raw, h.now().Add(h.cfg.RefreshTTL)); err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    int(h.cfg.AccessTTL / time.Second),
		User:         toProfile(user),
	}, nil
}

func (h *AuthHandler) writeTokens(w http.ResponseWriter, r *http.Request, status int, user storage.User) {
	resp, err := h.issueTokens(r.Context(), user)
	if err != nil {
		h.logger.Error("issue tokens failed", "user_id", user.ID, "err", err)
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, status, resp)
}

func hashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(hash string, raw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
}
