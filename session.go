package devauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default session lifetime
const TokenExpirySession = 24 * time.Hour

var (
	ErrTokenExpired = errors.New("session token expired")
	ErrTokenInvalid = errors.New("session token invalid")
)

// SessionTokens issues and verifies stateless HS256 session tokens that
// bind a user id to an expiry.
type SessionTokens struct {
	secret []byte

	// TTL is the lifetime of issued tokens.
	TTL time.Duration

	// Issuer, if set, is written to and required on every token.
	Issuer string

	// Now is the clock used for issuing and validating. Defaults to time.Now.
	Now func() time.Time
}

// NewSessionTokens creates a token service signing with secret.
func NewSessionTokens(secret string, ttl time.Duration) (*SessionTokens, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	if ttl <= 0 {
		ttl = TokenExpirySession
	}
	return &SessionTokens{secret: []byte(secret), TTL: ttl}, nil
}

func (s *SessionTokens) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Issue signs a token for userID.
func (s *SessionTokens) Issue(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("cannot issue token without a user id")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL)),
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Verify returns the user id bound to tokenString. It fails with
// ErrTokenExpired or ErrTokenInvalid and never panics on malformed input.
func (s *SessionTokens) Verify(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Issuer))
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}
