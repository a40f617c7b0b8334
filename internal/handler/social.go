package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/minitwit/internal/service"
)

// SocialHandler serves the follow graph. {id} in every route is the user
// being followed or inspected; the caller is taken from the token.
type SocialHandler struct {
	social *service.SocialService
	logger *slog.Logger
}

func NewSocialHandler(social *service.SocialService, logger *slog.Logger) *SocialHandler {
	return &SocialHandler{social: social, logger: logger}
}

// HandleFollow makes the caller follow {id}. Following twice returns the
// same edge id.
//
// HTTP: POST /api/users/{id}/follow
func (h *SocialHandler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	id, err := h.social.Follow(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: &id})
}

// HandleUnfollow removes the caller's edge to {id}.
//
// HTTP: DELETE /api/users/{id}/follow
// RESPONSE: {"id": "<removed edge>"} or {"id": null}
func (h *SocialHandler) HandleUnfollow(w http.ResponseWriter, r *http.Request) {
	id, err := h.social.Unfollow(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: id})
}

// HandleIsFollowing answers {"following": bool} for the caller and {id}.
//
// HTTP: GET /api/users/{id}/is-following
func (h *SocialHandler) HandleIsFollowing(w http.ResponseWriter, r *http.Request) {
	ok, err := h.social.IsFollowing(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"following": ok})
}

// HTTP: GET /api/users/{id}/followers
func (h *SocialHandler) HandleFollowers(w http.ResponseWriter, r *http.Request) {
	edges, err := h.social.GetFollowers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, edges)
}

// HTTP: GET /api/users/{id}/following
func (h *SocialHandler) HandleFollowing(w http.ResponseWriter, r *http.Request) {
	edges, err := h.social.GetFollowing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, edges)
}

// HandleFollowerUsers lists the accounts following {id}, newest edge first.
//
// HTTP: GET /api/users/{id}/followers/users
func (h *SocialHandler) HandleFollowerUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.social.GetFollowersWithUsers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleFollowingUsers lists the accounts {id} follows, newest edge first.
//
// HTTP: GET /api/users/{id}/following/users
func (h *SocialHandler) HandleFollowingUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.social.GetFollowingWithUsers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
