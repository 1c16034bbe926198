package handlers

import (
	"crypto/rsa"
	"encoding/pem"
	"errors"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/md-rashed-zaman/lessonbook/libs/auth"
)

type TokenSigner interface {
	Sign(claims auth.Claims) (string, error)
	Verify(token string) (*auth.Claims, error)
	JWKS() []auth.JWK
	CanRotate() bool
	SetActiveKid(kid string) error
	RotateKey() string
}

type hs256Signer struct {
	secret string
}

func NewHS256Signer(secret string) TokenSigner {
	return &hs256Signer{secret: secret}
}

func (s *hs256Signer) Sign(claims auth.Claims) (string, error) {
	return auth.SignHS256(claims, s.secret)
}

func (s *hs256Signer) Verify(token string) (*auth.Claims, error) {
	return auth.ParseAndVerifyHS256(token, s.secret)
}

func (s *hs256Signer) JWKS() []auth.JWK {
	return nil
}

func (s *hs256Signer) CanRotate() bool {
	return false
}

func (s *hs256Signer) SetActiveKid(_ string) error {
	return errors.New("rotation not supported")
}

func (s *hs256Signer) RotateKey() string {
	return ""
}

type rsaKey struct {
	kid  string
	priv *rsa.PrivateKey
	jwk  auth.JWK
}

func newRSAKey(priv *rsa.PrivateKey, kid string) *rsaKey {
	if kid == "" {
		kid = auth.KeyID(&priv.PublicKey)
	}
	return &rsaKey{kid: kid, priv: priv, jwk: auth.PublicJWK(&priv.PublicKey, kid)}
}

// RotatingSigner signs with one active RS256 key and verifies against every loaded
// key, so tokens issued before a rotation stay valid until they expire.
type RotatingSigner struct {
	mu        sync.RWMutex
	activeKid string
	keys      map[string]*rsaKey
	order     []string
	rotateKey string
}

func NewRS256Signer(pemBytes []byte, kid string) (*RotatingSigner, error) {
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, err
	}
	key := newRSAKey(priv, kid)
	return &RotatingSigner{
		activeKid: key.kid,
		keys:      map[string]*rsaKey{key.kid: key},
		order:     []string{key.kid},
	}, nil
}

// ParseRS256KeySet reads every private key block in pemBlobs, keyed by derived kid.
func ParseRS256KeySet(pemBlobs string) (map[string]*rsa.PrivateKey, error) {
	keys := map[string]*rsa.PrivateKey{}
	rest := []byte(pemBlobs)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		priv, err := jwt.ParseRSAPrivateKeyFromPEM(pem.EncodeToMemory(block))
		if err != nil {
			return nil, err
		}
		keys[auth.KeyID(&priv.PublicKey)] = priv
	}
	if len(keys) == 0 {
		return nil, errors.New("no valid rsa keys found")
	}
	return keys, nil
}

func NewRotatingRS256Signer(keys map[string]*rsa.PrivateKey, activeKid string) (*RotatingSigner, error) {
	if len(keys) == 0 {
		return nil, errors.New("no keys provided")
	}
	s := &RotatingSigner{
		activeKid: activeKid,
		keys:      map[string]*rsaKey{},
	}
	for kid, priv := range keys {
		if kid == "" || priv == nil {
			continue
		}
		s.keys[kid] = newRSAKey(priv, kid)
		s.order = append(s.order, kid)
	}
	if s.activeKid == "" && len(s.order) > 0 {
		s.activeKid = s.order[0]
	}
	if s.keys[s.activeKid] == nil {
		return nil, errors.New("active kid not found")
	}
	return s, nil
}

func (s *RotatingSigner) active() *rsaKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[s.activeKid]
}

func (s *RotatingSigner) Sign(claims auth.Claims) (string, error) {
	key := s.active()
	return auth.SignRS256(claims, key.priv, key.kid)
}

func (s *RotatingSigner) Verify(token string) (*auth.Claims, error) {
	header, err := auth.ParseHeader(token)
	if err != nil {
		return nil, err
	}
	if header.Kid == "" {
		return nil, auth.ErrInvalidToken
	}
	s.mu.RLock()
	key := s.keys[header.Kid]
	s.mu.RUnlock()
	if key == nil {
		return nil, auth.ErrInvalidToken
	}
	return auth.VerifyRS256(token, &key.priv.PublicKey)
}

// Get implements auth.KeySource.
func (s *RotatingSigner) Get(kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := s.keys[kid]
	if key == nil {
		return nil, auth.ErrKeyNotFound
	}
	return &key.priv.PublicKey, nil
}

func (s *RotatingSigner) JWKS() []auth.JWK {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.JWK, 0, len(s.order))
	for _, kid := range s.order {
		out = append(out, s.keys[kid].jwk)
	}
	return out
}

func (s *RotatingSigner) CanRotate() bool {
	return len(s.order) > 1
}

func (s *RotatingSigner) SetActiveKid(kid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[kid] == nil {
		return errors.New("unknown kid")
	}
	s.activeKid = kid
	return nil
}

func (s *RotatingSigner) RotateKey() string {
	return s.rotateKey
}

func (s *RotatingSigner) SetRotateKey(key string) {
	s.rotateKey = key
}
