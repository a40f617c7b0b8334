package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/minitwit/internal/service"
)

// TweetHandler serves posting, reading and deleting tweets, plus the two
// timeline reads built on them: the home feed and tweet search.
type TweetHandler struct {
	tweets *service.TweetService
	logger *slog.Logger
}

func NewTweetHandler(tweets *service.TweetService, logger *slog.Logger) *TweetHandler {
	return &TweetHandler{tweets: tweets, logger: logger}
}

type createTweetRequest struct {
	Content string `json:"content"`
}

// HandleCreate posts a tweet as the caller.
//
// HTTP: POST /api/tweets
// REQUEST BODY: {"content": "hello"}
// RESPONSE: 201 {"id": "..."}
func (h *TweetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createTweetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	tweet, err := h.tweets.Create(r.Context(), viewerID(r), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, IDResponse{ID: &tweet.ID})
}

// HandleGetByID returns a tweet with its author, or null.
//
// HTTP: GET /api/tweets/{id}
func (h *TweetHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	tweet, err := h.tweets.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tweet)
}

// HandleDelete removes one of the caller's own tweets.
//
// HTTP: DELETE /api/tweets/{id}
// RESPONSE: 204 No Content
func (h *TweetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.tweets.Delete(r.Context(), viewerID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =========================================================================
// USER TIMELINE
// =========================================================================

// HandleUserTweets lists a user's tweets, newest first.
//
// HTTP: GET /api/users/{id}/tweets?limit=50
func (h *TweetHandler) HandleUserTweets(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	tweets, err := h.tweets.GetUserTweets(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tweets)
}

// HandleUserTweetsPage is the paginated form of HandleUserTweets.
//
// HTTP: GET /api/users/{id}/tweets/page?numItems=20&cursor=...
func (h *TweetHandler) HandleUserTweetsPage(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.tweets.GetUserTweetsPaginated(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleUserTweetCount returns {"count": n}.
//
// HTTP: GET /api/users/{id}/tweets/count
func (h *TweetHandler) HandleUserTweetCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.tweets.CountUserTweets(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// =========================================================================
// FEED AND SEARCH
// =========================================================================

// HandleFeed returns the caller's home feed. Signed-out callers get [].
//
// HTTP: GET /api/feed?limit=50
func (h *TweetHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	feed, err := h.tweets.GetFeed(r.Context(), viewerID(r), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

// HandleFeedPage is the paginated feed. Pages may be short or empty while
// isDone is still false; clients keep following continueCursor.
//
// HTTP: GET /api/feed/page?numItems=20&cursor=...
func (h *TweetHandler) HandleFeedPage(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.tweets.GetFeedPaginated(r.Context(), viewerID(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleSearch finds recent tweets containing q.
//
// HTTP: GET /api/search/tweets?q=hello
func (h *TweetHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	tweets, err := h.tweets.Search(r.Context(), viewerID(r), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tweets)
}

// HandleSearchPage is the paginated form of HandleSearch. A cursor is only
// accepted together with the q that produced it.
//
// HTTP: GET /api/search/tweets/page?q=hello&numItems=20&cursor=...
func (h *TweetHandler) HandleSearchPage(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.tweets.SearchPaginated(r.Context(), viewerID(r), r.URL.Query().Get("q"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
