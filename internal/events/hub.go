// Package events fans out change notifications to live subscribers.
//
// Services publish one Event after every successful mutation. Clients hold
// an open stream (see handler.EventsHandler) and re-run their reads when an
// event arrives. Events carry ids only; subscribers never receive data they
// could not read through the normal API.
//
// DELIVERY:
// Publish never blocks the request that triggered it. Events go into a
// buffered inbox; a single dispatcher goroutine copies each one to every
// subscriber's own buffered channel. A subscriber whose buffer is full
// misses that event. Missing an event only delays a refresh.
package events

import (
	"log/slog"
	"sync"
	"time"
)

type Kind string

const (
	TweetCreated   Kind = "tweet.created"
	TweetDeleted   Kind = "tweet.deleted"
	UserFollowed   Kind = "user.followed"
	UserUnfollowed Kind = "user.unfollowed"
	TweetLiked     Kind = "tweet.liked"
	TweetUnliked   Kind = "tweet.unliked"
	ProfileUpdated Kind = "profile.updated"
	DemoSeeded     Kind = "demo.seeded"
)

// Event describes one committed change.
type Event struct {
	Kind      Kind      `json:"kind"`
	ActorID   string    `json:"actorId,omitempty"`   // user who made the change
	SubjectID string    `json:"subjectId,omitempty"` // user the change is about (followee, profile owner)
	TweetID   string    `json:"tweetId,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher is what services depend on to announce changes.
type Publisher interface {
	Publish(e Event)
}

// Discard is a Publisher that drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}

const (
	defaultInboxSize      = 256
	defaultSubscriberSize = 16
)

// Hub is an in-process Publisher with subscribers.
type Hub struct {
	logger  *slog.Logger
	inbox   chan Event
	subSize int

	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewHub creates a Hub. subscriberBuffer <= 0 uses a default of 16.
func NewHub(logger *slog.Logger, subscriberBuffer int) *Hub {
	if subscriberBuffer <= 0 {
		subscriberBuffer = defaultSubscriberSize
	}
	return &Hub{
		logger:  logger,
		inbox:   make(chan Event, defaultInboxSize),
		subSize: subscriberBuffer,
		subs:    make(map[uint64]chan Event),
		done:    make(chan struct{}),
	}
}

// Start launches the dispatcher. Calling it more than once is a no-op.
func (h *Hub) Start() {
	h.startOnce.Do(func() {
		h.logger.Info("starting event hub", slog.Int("subscriberBuffer", h.subSize))
		h.wg.Add(1)
		go h.dispatch()
	})
}

// Stop halts the dispatcher and closes every subscriber channel.
// Events still in the inbox are discarded.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.logger.Info("shutting down event hub")
		close(h.done)
		h.wg.Wait()

		h.mu.Lock()
		defer h.mu.Unlock()
		h.closed = true
		for id, ch := range h.subs {
			close(ch)
			delete(h.subs, id)
		}
	})
}

// Publish queues e for delivery. It never blocks; when the inbox is full
// the event is dropped.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case h.inbox <- e:
	default:
		h.logger.Warn("event hub inbox full, dropping event", slog.String("kind", string(e.Kind)))
	}
}

// Subscribe registers a new subscriber. The returned cancel func removes it
// and closes the channel; it is safe to call more than once. After Stop the
// channel is returned already closed.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.subSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				close(c)
				delete(h.subs, id)
			}
		})
	}
	return ch, cancel
}

// Subscribers reports how many subscribers are registered.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) dispatch() {
	defer h.wg.Done()

	for {
		select {
		case <-h.done:
			return
		case e := <-h.inbox:
			h.fanOut(e)
		}
	}
}

// fanOut holds the read lock while sending so cancel (which takes the write
// lock) cannot close a channel mid-send.
func (h *Hub) fanOut(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.logger.Debug("subscriber buffer full, dropping event", slog.String("kind", string(e.Kind)))
		}
	}
}
