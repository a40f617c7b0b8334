package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/minitwit/internal/service"
)

// UserHandler serves profiles and user discovery.
//
// Lookups that find nothing answer 200 with a JSON null rather than 404:
// "who is this?" having no answer is a normal outcome for a profile page.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleMe returns the signed-in user, or null.
//
// HTTP: GET /api/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetCurrentUser(r.Context(), viewerID(r))
	if err != nil {
		h.logger.Error("HandleMe: loading user failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateMe edits the caller's own profile.
//
// HTTP: PATCH /api/me
// REQUEST BODY: any subset of {"username": "...", "bio": "...", "avatarUrl": "..."}
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var upd service.ProfileUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), viewerID(r), upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleGetByID returns a user or null.
//
// HTTP: GET /api/users/{id}
func (h *UserHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUserByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleGetByUsername returns a user or null. The name is matched
// case-insensitively.
//
// HTTP: GET /api/users/by-username/{username}
func (h *UserHandler) HandleGetByUsername(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUserByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleSearch finds users by username prefix or display name.
//
// HTTP: GET /api/users/search?q=ali&limit=10
func (h *UserHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	users, err := h.users.SearchUsers(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleSuggested lists accounts the caller might follow.
//
// HTTP: GET /api/users/suggested?limit=5
func (h *UserHandler) HandleSuggested(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	users, err := h.users.GetSuggestedUsers(r.Context(), viewerID(r), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
