package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// CookieName is the HttpOnly cookie holding the session JWT.
const CookieName = "token"

// contextKey is unexported so no other package can read or overwrite the
// values this package stores in a request context.
type contextKey string

const userIDKey contextKey = "userID"

var errNoToken = errors.New("auth: no token")

// OptionalAuth puts the user id of a valid token into the request context
// and lets every request through. Handlers treat a missing id as an
// anonymous caller, which is what most read operations expect.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, tokens); err == nil {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth stops requests without a valid token with 401 and the same
// JSON error body the handlers use.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "unauthenticated",
					"message": "Not authenticated",
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user id, or ("", false) for
// anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// extractUserID validates the request's token. The cookie wins over the
// Authorization header when both are present.
func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return tokens.Validate(cookie.Value)
	}

	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && token != "" {
			return tokens.Validate(strings.TrimSpace(token))
		}
	}

	return "", errNoToken
}
