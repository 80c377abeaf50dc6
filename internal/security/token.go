package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nijenhuis/api-guard/internal/models"
)

var (
	// ErrTokenExpired means the token was well-formed and correctly
	// signed but its validity window has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers malformed tokens and signature mismatches.
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenClaims binds an API key and its permission set to a validity window
type TokenClaims struct {
	APIKey      string              `json:"api_key"`
	Permissions []models.Permission `json:"permissions"`
	jwt.RegisteredClaims
}

// TokenIssuer issues and verifies signed, expiring tokens
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer with the given signing secret and TTL
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// Issue creates a signed token for the API key and its permissions
func (t *TokenIssuer) Issue(apiKey string, permissions []models.Permission) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		APIKey:      apiKey,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry, returning the claims on success.
// The error is ErrTokenExpired or ErrTokenInvalid (wrapped).
func (t *TokenIssuer) Verify(token string) (*TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &TokenClaims{}, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// redactToken returns a loggable prefix of a token or key. The full value
// never reaches the event log.
func redactToken(token string) string {
	if len(token) <= 10 {
		return "***"
	}
	return token[:10] + "..."
}
