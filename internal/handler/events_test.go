package handler

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/minitwit/internal/events"
)

// fakeSubscriber hands out one pre-filled channel.
type fakeSubscriber struct {
	ch        chan events.Event
	cancelled bool
}

func (f *fakeSubscriber) Subscribe() (<-chan events.Event, func()) {
	return f.ch, func() { f.cancelled = true }
}

func TestEventsHandler_StreamsUntilClosed(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	sub := &fakeSubscriber{ch: make(chan events.Event, 2)}
	sub.ch <- events.Event{Kind: events.TweetLiked, ActorID: "u1", TweetID: "t1", At: time.Unix(0, 0).UTC()}
	sub.ch <- events.Event{Kind: events.UserFollowed, ActorID: "u1", SubjectID: "u2", At: time.Unix(0, 0).UTC()}
	close(sub.ch) // the hub shutting down

	h := NewEventsHandler(sub, logger)
	rr := httptest.NewRecorder()
	h.HandleStream(rr, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	body := rr.Body.String()
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/event-stream")
	assert.Equal(t, 2, strings.Count(body, "datastar-patch-signals"))
	assert.Contains(t, body, `"kind":"tweet.liked"`)
	assert.Contains(t, body, `"subjectId":"u2"`)
	assert.True(t, sub.cancelled, "the subscription is released")
}
