package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-16-chars!!"

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	return ts
}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewTokenService(t *testing.T) {
	_, err := NewTokenService("short", time.Hour)
	assert.Error(t, err, "secrets under 16 characters are rejected")

	ts, err := NewTokenService("this-is-16-chars", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, ts.TTL(), "zero ttl falls back to the default")
}

// =========================================================================
// GENERATE / VALIDATE
// =========================================================================

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("user-123")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "header.payload.signature")

	other, err := ts.Generate("user-456")
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("cv37rs3pp9olc6atsptg")
	require.NoError(t, err)

	got, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "cv37rs3pp9olc6atsptg", got)
}

func TestValidate_Expired(t *testing.T) {
	ts := newTestTokenService(t)

	issuedAt := time.Now().Add(-2 * time.Hour)
	ts.now = func() time.Time { return issuedAt }
	token, err := ts.Generate("user-123")
	require.NoError(t, err)

	ts.now = time.Now
	_, err = ts.Validate(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestValidate_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	good, err := ts.Generate("user-123")
	require.NoError(t, err)

	other, err := NewTokenService("wrong-secret-32-chars-long!!!!!!", time.Hour)
	require.NoError(t, err)
	foreign, err := other.Generate("user-123")
	require.NoError(t, err)

	// Correctly signed but issued by someone else.
	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-123",
		Issuer:    "another-service",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "user-123",
		Issuer:  issuer,
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt.token"},
		{"tampered signature", good[:len(good)-3] + "xxx"},
		{"different secret", foreign},
		{"different issuer", wrongIssuer},
		{"missing subject", noSubject},
		{"missing expiry", noExpiry},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ts.Validate(tc.token)
			assert.Error(t, err)
		})
	}
}
