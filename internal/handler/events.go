package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/sakif/minitwit/internal/events"
)

// Subscriber is the part of events.Hub the stream needs.
type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

// EventsHandler streams change notifications over Server-Sent Events.
//
// HOW CLIENTS USE IT:
// The browser keeps one GET /api/events open. Each committed change arrives
// as a datastar signal patch:
//
//	event: datastar-patch-signals
//	data: signals {"lastEvent":{"kind":"tweet.created","actorId":"...","tweetId":"...","at":"..."}}
//
// The event only says what changed. Clients re-run the reads they are
// showing (feed, profile, like count) to pick up the new state.
type EventsHandler struct {
	hub    Subscriber
	logger *slog.Logger
}

func NewEventsHandler(hub Subscriber, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, logger: logger}
}

type eventSignals struct {
	LastEvent events.Event `json:"lastEvent"`
}

// HandleStream holds the connection open until the client leaves or the
// hub shuts down.
//
// HTTP: GET /api/events
func (h *EventsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	// The server's WriteTimeout would cut a long-lived stream; lift it for
	// this response only. Writers that cannot do this (test recorders) are
	// fine as they are.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil &&
		!errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("events: clearing write deadline failed", slog.String("error", err.Error()))
	}

	ch, cancel := h.hub.Subscribe()
	defer cancel()

	sse := datastar.NewSSE(w, r)
	// Send the headers now so the client sees the stream open before the
	// first event.
	_ = http.NewResponseController(w).Flush()
	h.logger.Debug("events: client connected", slog.String("viewer", viewerID(r)))

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("events: client disconnected")
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := sse.MarshalAndPatchSignals(eventSignals{LastEvent: e}); err != nil {
				h.logger.Debug("events: write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}
