// Package auth issues and checks session tokens, hashes passwords, talks to
// GitHub for OAuth sign-in, and provides the HTTP middleware that turns a
// request's token into a user id.
//
// SESSION FLOW:
//  1. Sign-up, sign-in or the GitHub callback ends with TokenService.Generate.
//  2. The handler stores the JWT in the HttpOnly "token" cookie (API clients
//     may instead send it as "Authorization: Bearer <jwt>").
//  3. Middleware validates it on every request and puts the user id in the
//     request context, where handlers read it with UserIDFromContext.
//
// Tokens are stateless: a signed HS256 JWT whose "sub" claim is the user id.
// Signing out only clears the cookie; a copied token stays valid until it
// expires.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "minitwit"

// DefaultTokenTTL is how long a session token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// TokenService signs and verifies session JWTs with one HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. A non-positive ttl falls back to
// DefaultTokenTTL.
//
// Generate a secret with e.g. JWT_SECRET=$(openssl rand -hex 32).
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is the lifetime of the tokens this service issues. The auth cookie
// uses it as its Max-Age.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

type claims struct {
	jwt.RegisteredClaims
}

// Generate signs a token for userID that expires after TTL.
func (s *TokenService) Generate(userID string) (string, error) {
	now := s.now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies tokenStr and returns the user id in its subject.
//
// Only HS256 tokens issued by this service with an expiry are accepted.
// Pinning the method with jwt.WithValidMethods rejects "alg":"none" and
// algorithm-confusion tokens.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return c.Subject, nil
}
