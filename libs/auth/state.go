package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const stateAudience = "oauth-state"

// StateClaims travel in the OAuth state parameter between the consent redirect and
// the callback.
type StateClaims struct {
	Role  string `json:"role"`
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

func SignState(role, nonce, secret string, now time.Time, ttl time.Duration) (string, error) {
	claims := StateClaims{
		Role:  role,
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func VerifyState(token, secret string) (*StateClaims, error) {
	var claims StateClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Nonce == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
