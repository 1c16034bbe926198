// Package oauthstate keeps the single-use nonces carried in Google OAuth state tokens.
package oauthstate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store interface {
	Put(ctx context.Context, nonce string, ttl time.Duration) error
	// Consume reports whether nonce was outstanding and removes it.
	Consume(ctx context.Context, nonce string) (bool, error)
}

func NewNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisStore(rdb redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "oauth:nonce:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) Put(ctx context.Context, nonce string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.prefix+nonce, "1", ttl).Err()
}

func (s *RedisStore) Consume(ctx context.Context, nonce string) (bool, error) {
	n, err := s.rdb.Del(ctx, s.prefix+nonce).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MemoryStore is used when Redis is not configured. Nonces do not survive restarts or
// span replicas.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]time.Time{}, now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, k)
		}
	}
	s.entries[nonce] = now.Add(ttl)
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.entries[nonce]
	if !ok {
		return false, nil
	}
	delete(s.entries, nonce)
	return s.now().Before(exp), nil
}
