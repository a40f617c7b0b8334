package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/minitwit/internal/service"
)

type LikeHandler struct {
	likes  *service.LikeService
	logger *slog.Logger
}

func NewLikeHandler(likes *service.LikeService, logger *slog.Logger) *LikeHandler {
	return &LikeHandler{likes: likes, logger: logger}
}

// HandleLike likes tweet {id} as the caller. Liking twice returns the same id.
//
// HTTP: POST /api/tweets/{id}/like
func (h *LikeHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	id, err := h.likes.LikeTweet(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: &id})
}

// HTTP: DELETE /api/tweets/{id}/like
func (h *LikeHandler) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	id, err := h.likes.UnlikeTweet(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: id})
}

// HandleCount returns {"count": n} likes on tweet {id}.
//
// HTTP: GET /api/tweets/{id}/likes
func (h *LikeHandler) HandleCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.likes.GetTweetLikes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// HTTP: GET /api/tweets/{id}/liked
func (h *LikeHandler) HandleHasLiked(w http.ResponseWriter, r *http.Request) {
	ok, err := h.likes.HasLiked(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liked": ok})
}

// HandleLikedTweets lists what user {id} liked, most recent like first.
//
// HTTP: GET /api/users/{id}/likes?limit=50
func (h *LikeHandler) HandleLikedTweets(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	tweets, err := h.likes.GetLikedTweets(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tweets)
}

// HTTP: GET /api/users/{id}/likes/page?numItems=20&cursor=...
func (h *LikeHandler) HandleLikedTweetsPage(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.likes.GetLikedTweetsPaginated(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
