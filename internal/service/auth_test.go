package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/minitwit/internal/apperror"
	"github.com/sakif/minitwit/internal/auth"
	"github.com/sakif/minitwit/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

type fakeAuthMetrics struct {
	signups  int
	failures map[string]int
}

func (m *fakeAuthMetrics) SignedUp() { m.signups++ }

func (m *fakeAuthMetrics) SignInFailed(reason string) {
	if m.failures == nil {
		m.failures = make(map[string]int)
	}
	m.failures[reason]++
}

func newTestAuthService(t *testing.T, e *env) (*AuthService, *fakeAuthMetrics) {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)

	m := &fakeAuthMetrics{}
	return NewAuthService(e.store, ts, auth.NewPasswordService(bcrypt.MinCost), m, quietLogger()), m
}

// =========================================================================
// SIGN UP
// =========================================================================

func TestSignUp_Normalises(t *testing.T) {
	e := newTestEnv(t)
	svc, m := newTestAuthService(t, e)
	ctx := context.Background()

	res, err := svc.SignUp(ctx, SignUpInput{
		Email:     "  Alice@Example.COM ",
		Password:  "password123",
		Username:  " Alice ",
		AvatarURL: " https://example.com/a.png ",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, "alice", res.User.Name, "name defaults to the username")
	assert.Equal(t, "https://example.com/a.png", res.User.Image)
	assert.NotEqual(t, "password123", res.User.PasswordHash)
	assert.Equal(t, 1, m.signups)

	userID, err := svc.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, userID)
}

func TestSignUp_UsernameFromEmail(t *testing.T) {
	e := newTestEnv(t)
	svc, _ := newTestAuthService(t, e)

	res, err := svc.SignUp(context.Background(), SignUpInput{
		Email:    "Bob.Smith@example.com",
		Password: "password123",
		Name:     "Bob Smith",
	})
	require.NoError(t, err)
	assert.Equal(t, "bob.smith", res.User.Username)
	assert.Equal(t, "Bob Smith", res.User.Name)
}

func TestSignUp_Rejects(t *testing.T) {
	e := newTestEnv(t)
	svc, m := newTestAuthService(t, e)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpInput{Email: "taken@example.com", Password: "password123", Username: "taken"})
	require.NoError(t, err)

	cases := []struct {
		name    string
		in      SignUpInput
		kind    error
		message string
	}{
		{"missing email", SignUpInput{Email: "  ", Password: "password123"},
			apperror.ErrValidation, "Email is required"},
		{"no username possible", SignUpInput{Email: "@example.com", Password: "password123"},
			apperror.ErrValidation, "Username is required"},
		{"short password", SignUpInput{Email: "x@example.com", Password: "short"},
			apperror.ErrValidation, "Password must be at least 8 characters"},
		{"long password", SignUpInput{Email: "x@example.com", Password: strings.Repeat("p", 73)},
			apperror.ErrValidation, "Password must be at most 72 bytes"},
		{"duplicate email", SignUpInput{Email: "TAKEN@example.com", Password: "password123", Username: "other"},
			apperror.ErrConflict, "Email is already registered"},
		{"duplicate username", SignUpInput{Email: "new@example.com", Password: "password123", Username: "Taken"},
			apperror.ErrConflict, "Username is already taken"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SignUp(ctx, tc.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			assert.Equal(t, tc.message, err.Error())
		})
	}

	assert.Equal(t, 1, m.signups, "only the first sign-up counted")
}

// =========================================================================
// SIGN IN
// =========================================================================

func TestSignIn(t *testing.T) {
	e := newTestEnv(t)
	svc, m := newTestAuthService(t, e)
	ctx := context.Background()

	signed, err := svc.SignUp(ctx, SignUpInput{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)

	res, err := svc.SignIn(ctx, " ALICE@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, signed.User.ID, res.User.ID)
	assert.NotEmpty(t, res.Token)

	// A seeded demo account has no password.
	require.NoError(t, e.store.Users().Create(ctx, &model.User{Email: "demo@example.com", Username: "demo"}))

	cases := []struct {
		name, email, password, reason string
	}{
		{"unknown email", "bob@example.com", "password123", FailureUnknownEmail},
		{"wrong password", "alice@example.com", "password124", FailureBadPassword},
		{"no password set", "demo@example.com", "password123", FailureNoPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SignIn(ctx, tc.email, tc.password)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
			assert.Equal(t, "Invalid email or password", err.Error())
			assert.Equal(t, 1, m.failures[tc.reason])
		})
	}
}

// =========================================================================
// GITHUB
// =========================================================================

func TestLoginOrRegisterGitHub_NewThenExisting(t *testing.T) {
	e := newTestEnv(t)
	svc, m := newTestAuthService(t, e)
	ctx := context.Background()

	gh := &auth.GitHubUser{
		ID:        42,
		Login:     "Octocat",
		Name:      "The Octocat",
		Email:     "octocat@github.com",
		AvatarURL: "https://avatars.githubusercontent.com/u/42",
	}

	first, err := svc.LoginOrRegisterGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, "octocat", first.User.Username)
	assert.Equal(t, "The Octocat", first.User.Name)
	assert.Equal(t, int64(42), first.User.GitHubID)
	assert.Equal(t, gh.AvatarURL, first.User.Image)

	second, err := svc.LoginOrRegisterGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID, "the GitHub id links to the same account")
	assert.Equal(t, 1, m.signups)

	userID, err := svc.ValidateToken(second.Token)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, userID)
}

func TestLoginOrRegisterGitHub_Collisions(t *testing.T) {
	e := newTestEnv(t)
	svc, _ := newTestAuthService(t, e)
	ctx := context.Background()

	existing := e.user(t, "octocat")

	res, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{
		ID:    7,
		Login: "octocat",
		Email: existing.Email,
	})
	require.NoError(t, err)
	assert.NotEqual(t, existing.ID, res.User.ID, "never links to an account by email")
	assert.True(t, strings.HasPrefix(res.User.Username, "octocat-"), "got %q", res.User.Username)
	assert.Equal(t, "octocat@users.noreply.github.com", res.User.Email)
	assert.Equal(t, "octocat", res.User.Name)
}

func TestLoginOrRegisterGitHub_HiddenEmail(t *testing.T) {
	e := newTestEnv(t)
	svc, _ := newTestAuthService(t, e)

	res, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 9, Login: "Ghost"})
	require.NoError(t, err)
	assert.Equal(t, "ghost@users.noreply.github.com", res.User.Email)
	assert.Equal(t, "ghost", res.User.Username)
}

func TestLoginOrRegisterGitHub_NilUser(t *testing.T) {
	e := newTestEnv(t)
	svc, _ := newTestAuthService(t, e)

	_, err := svc.LoginOrRegisterGitHub(context.Background(), nil)
	assert.Error(t, err)
}

func TestValidateToken_Garbage(t *testing.T) {
	e := newTestEnv(t)
	svc, _ := newTestAuthService(t, e)

	_, err := svc.ValidateToken("not.a.token")
	assert.Error(t, err)
}
