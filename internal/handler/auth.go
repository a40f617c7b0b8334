package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/rs/xid"

	"github.com/sakif/minitwit/internal/auth"
	"github.com/sakif/minitwit/internal/service"
)

const (
	// oauthSessionName is the gorilla session holding the OAuth state
	// between the login redirect and GitHub's callback.
	oauthSessionName = "minitwit_oauth"
	oauthStateKey    = "state"
	oauthStateMaxAge = 10 * time.Minute
)

// CookieOptions controls the session token cookie.
type CookieOptions struct {
	Secure bool          // send only over HTTPS
	MaxAge time.Duration // match the token TTL so both expire together
}

// AuthHandler manages sign-up, sign-in and the GitHub OAuth login flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignUp         → create a password account, set the token cookie
//   - HandleSignIn         → check credentials, set the token cookie
//   - HandleLogout         → clear the token cookie
//   - HandleGitHubLogin    → redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback → receive the code, sign the GitHub user in
//
// Every successful sign-in answers the same way: the JWT goes into an
// HttpOnly cookie for browsers and into the JSON body for API clients,
// which send it back as "Authorization: Bearer <token>".
type AuthHandler struct {
	auth     *service.AuthService
	github   *auth.GitHubProvider // nil when GitHub sign-in is not configured
	sessions sessions.Store
	cookies  CookieOptions
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil.
func NewAuthHandler(
	authService *service.AuthService,
	github *auth.GitHubProvider,
	store sessions.Store,
	cookies CookieOptions,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:     authService,
		github:   github,
		sessions: store,
		cookies:  cookies,
		logger:   logger,
	}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignUp creates an account.
//
// HTTP: POST /auth/signup
// REQUEST BODY: {"email": "...", "password": "...", "username": "...", "name": "..."}
// RESPONSE: 201 {"user": {...}, "token": "..."}
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var in service.SignUpInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.SignUp(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, res.Token)
	writeJSON(w, http.StatusCreated, res)
}

// HandleSignIn signs in with email and password.
//
// HTTP: POST /auth/signin
// REQUEST BODY: {"email": "...", "password": "..."}
// RESPONSE: 200 {"user": {...}, "token": "..."}
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var in signInRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.SignIn(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, res.Token)
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout clears the token cookie.
//
// HTTP: POST /auth/logout
//
// Tokens are stateless, so "logout" only removes the browser's copy. The
// token itself stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a signed gorilla session cookie and sent to
// GitHub. The callback only proceeds when GitHub hands the same state back,
// which proves the flow started here.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	// Get returns a fresh session (and an error) when the existing cookie
	// fails verification; the fresh one is all we need.
	session, _ := h.sessions.Get(r, oauthSessionName)

	state := xid.New().String()
	session.Values[oauthStateKey] = state
	session.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(oauthStateMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	if err := session.Save(r, w); err != nil {
		h.logger.Error("auth login: saving OAuth session failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter against the session (CSRF check)
//  2. Exchange the code for a GitHub user profile
//  3. Find or create the account for that GitHub id
//  4. Set the token cookie and redirect to the app
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	session, err := h.sessions.Get(r, oauthSessionName)
	if err != nil {
		h.logger.Warn("auth callback: unreadable OAuth session", slog.String("error", err.Error()))
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	expected, _ := session.Values[oauthStateKey].(string)
	if expected == "" {
		h.logger.Warn("auth callback: missing OAuth state")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("state") != expected {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state is single-use.
	delete(session.Values, oauthStateKey)
	session.Options = &sessions.Options{Path: "/", MaxAge: -1}
	if err := session.Save(r, w); err != nil {
		h.logger.Warn("auth callback: clearing OAuth session failed", slog.String("error", err.Error()))
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for GitHub user profile ---
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	// --- Step 3: Find or create the account ---
	res, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: sign-in failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// --- Step 4: Issue the cookie ---
	h.setTokenCookie(w, res.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// setTokenCookie stores the JWT in an HttpOnly cookie.
// HttpOnly keeps it away from page scripts; SameSite=Lax keeps it off
// cross-site POSTs.
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookies.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// viewerID returns the signed-in caller's id, or "" for anonymous requests.
// OptionalAuth fills it in for every route.
func viewerID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}
