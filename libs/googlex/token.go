package googlex

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"golang.org/x/oauth2"
)

// TokenStore loads and persists a user's Google token.
type TokenStore interface {
	LoadToken(ctx context.Context, userID string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, userID string, tok *oauth2.Token) error
}

func EncodeToken(tok *oauth2.Token) ([]byte, error) {
	if tok == nil {
		return nil, nil
	}
	return json.Marshal(tok)
}

// DecodeToken returns ErrNotConnected for an empty or null column.
func DecodeToken(raw []byte) (*oauth2.Token, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrNotConnected
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrNotConnected
	}
	return &tok, nil
}

// PGTokenStore keeps tokens in users.google_token.
type PGTokenStore struct {
	pool *db.Pool
}

func NewPGTokenStore(pool *db.Pool) *PGTokenStore {
	return &PGTokenStore{pool: pool}
}

func (s *PGTokenStore) LoadToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT google_token FROM users WHERE id = $1`, userID).Scan(&raw)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotConnected
		}
		return nil, err
	}
	return DecodeToken(raw)
}

func (s *PGTokenStore) SaveToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	raw, err := EncodeToken(tok)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `UPDATE users SET google_token = $2, updated_at = now() WHERE id = $1`, userID, raw)
	return err
}

// savingTokenSource writes refreshed tokens back to the store.
type savingTokenSource struct {
	base   oauth2.TokenSource
	userID string
	store  TokenStore
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	changed := tok.AccessToken != s.last
	s.last = tok.AccessToken
	s.mu.Unlock()

	if changed {
		if err := s.store.SaveToken(context.Background(), s.userID, tok); err != nil {
			s.logger.Warn("persist refreshed google token failed", "user_id", s.userID, "err", err)
		}
	}
	return tok, nil
}
