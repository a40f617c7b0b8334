package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/minitwit/internal/apperror"
	"github.com/sakif/minitwit/internal/auth"
	"github.com/sakif/minitwit/internal/model"
	"github.com/sakif/minitwit/internal/repository"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgEmailTaken         = "Email is already registered"

	// usernameAttempts bounds the suffixes tried when a GitHub login
	// collides with an existing username.
	usernameAttempts = 5
)

// Sign-in failure reasons reported to AuthMetrics.
const (
	FailureUnknownEmail = "unknown_email"
	FailureNoPassword   = "no_password"
	FailureBadPassword  = "bad_password"
)

// AuthMetrics receives account events. *metrics.Metrics implements it.
type AuthMetrics interface {
	SignedUp()
	SignInFailed(reason string)
}

type noMetrics struct{}

func (noMetrics) SignedUp()           {}
func (noMetrics) SignInFailed(string) {}

// AuthService creates accounts and turns credentials into session tokens.
//
//	AuthHandler (HTTP) → AuthService → UserRepository
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// It never touches cookies or redirects; those belong to the handler.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	metrics   AuthMetrics
	logger    *slog.Logger
}

// NewAuthService wires an AuthService. m may be nil.
func NewAuthService(
	store repository.Store,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	m AuthMetrics,
	logger *slog.Logger,
) *AuthService {
	if m == nil {
		m = noMetrics{}
	}
	return &AuthService{
		users:     store.Users(),
		tokens:    tokens,
		passwords: passwords,
		metrics:   m,
		logger:    logger,
	}
}

// AuthResult bundles the user and the token issued for them so the handler
// can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// SignUpInput is the sign-up form. Only Email and Password are required.
type SignUpInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatarUrl"`
}

// SignUp creates a password account and signs it in.
//
// NORMALISATION:
//   - Email is trimmed and lower-cased.
//   - Username is normalised like every other username. When it is blank
//     the part of the email before "@" is used instead.
//   - Name defaults to the username; Image mirrors AvatarURL.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, apperror.ValidationFailed("email", "Email is required")
	}

	username := normalizeUsername(in.Username)
	if username == "" {
		local, _, _ := strings.Cut(email, "@")
		username = normalizeUsername(local)
	}
	if username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}

	switch {
	case len(in.Password) < auth.MinPasswordLength:
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at least %d characters", auth.MinPasswordLength))
	case len(in.Password) > auth.MaxPasswordLength:
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at most %d bytes", auth.MaxPasswordLength))
	}

	if err := s.ensureFree(ctx, email, username); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = username
	}
	avatar := strings.TrimSpace(in.AvatarURL)

	user := &model.User{
		Email:        email,
		Username:     username,
		Name:         name,
		Bio:          in.Bio,
		AvatarURL:    avatar,
		Image:        avatar,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with another sign-up for the same email or username.
		if field, ok := conflictField(err); ok {
			return nil, takenError(field)
		}
		s.logger.Error("failed to create user",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.metrics.SignedUp()
	s.logger.Info("user signed up",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	return s.issue(user)
}

// SignIn checks an email and password. Every mismatch, including an unknown
// email, yields the same "Invalid email or password" error.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, s.rejectSignIn(FailureUnknownEmail)
		}
		return nil, fmt.Errorf("service/auth: loading user by email: %w", err)
	}

	// Accounts created through GitHub have no password.
	if user.PasswordHash == "" {
		return nil, s.rejectSignIn(FailureNoPassword)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, s.rejectSignIn(FailureBadPassword)
		}
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	s.logger.Info("user signed in", slog.String("userID", user.ID))
	return s.issue(user)
}

func (s *AuthService) rejectSignIn(reason string) error {
	s.metrics.SignInFailed(reason)
	return apperror.Unauthenticated(msgInvalidCredentials)
}

// LoginOrRegisterGitHub signs in the account linked to ghUser, creating it
// on first login.
//
// A new account takes the lower-cased GitHub login as its username. If that
// name is taken, a short random suffix is appended ("octocat-k3j9x2"). When
// GitHub hides the email, or it already belongs to another account, the
// noreply address <login>@users.noreply.github.com is used.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	existing, err := s.users.GetByGitHubID(ctx, ghUser.ID)
	switch {
	case err == nil:
		s.logger.Info("user authenticated via GitHub",
			slog.String("userID", existing.ID),
			slog.String("login", ghUser.Login),
		)
		return s.issue(existing)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: loading user (githubID=%d): %w", ghUser.ID, err)
	}

	login := normalizeUsername(ghUser.Login)
	if login == "" {
		login = fmt.Sprintf("github%d", ghUser.ID)
	}
	noreply := login + "@users.noreply.github.com"

	email := strings.ToLower(strings.TrimSpace(ghUser.Email))
	if email == "" {
		email = noreply
	} else if _, err := s.users.GetByEmail(ctx, email); err == nil {
		email = noreply
	}

	name := strings.TrimSpace(ghUser.Name)
	if name == "" {
		name = ghUser.Login
	}

	user := &model.User{
		Email:     email,
		Username:  login,
		Name:      name,
		Bio:       ghUser.Bio,
		AvatarURL: ghUser.AvatarURL,
		Image:     ghUser.AvatarURL,
		GitHubID:  ghUser.ID,
	}

	for attempt := 0; ; attempt++ {
		err := s.users.Create(ctx, user)
		if err == nil {
			break
		}
		field, ok := conflictField(err)
		if !ok || field != "username" || attempt+1 >= usernameAttempts {
			return nil, fmt.Errorf("service/auth: creating user (githubID=%d): %w", ghUser.ID, err)
		}
		user.ID = ""
		user.Username = login + "-" + shortSuffix()
	}

	s.metrics.SignedUp()
	s.logger.Info("user registered via GitHub",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	return s.issue(user)
}

// ValidateToken returns the user id a session token was issued for.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// ensureFree rejects an email or username that is already in use.
func (s *AuthService) ensureFree(ctx context.Context, email, username string) error {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return takenError("email")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("service/auth: checking email: %w", err)
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return takenError("username")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("service/auth: checking username: %w", err)
	}
	return nil
}

func takenError(field string) *apperror.AppError {
	if field == "email" {
		return &apperror.AppError{Err: apperror.ErrConflict, Message: msgEmailTaken, Field: "email"}
	}
	return usernameTaken()
}

// conflictField returns the column a repository conflict error names.
func conflictField(err error) (string, bool) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && errors.Is(err, apperror.ErrConflict) {
		return appErr.Field, true
	}
	return "", false
}

// shortSuffix returns six characters from a fresh xid. The tail of an xid
// holds its per-process counter, so consecutive calls never repeat.
func shortSuffix() string {
	id := xid.New().String()
	return id[len(id)-6:]
}
