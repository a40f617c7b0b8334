package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/minitwit/internal/apperror"
	"github.com/sakif/minitwit/internal/events"
	"github.com/sakif/minitwit/internal/model"
	"github.com/sakif/minitwit/internal/repository"
)

// seedMarker is the username whose presence means the demo data is loaded.
const seedMarker = "demo_alice"

// Seed statuses.
const (
	SeedStatusSeeded        = "seeded"
	SeedStatusAlreadySeeded = "already_seeded"
)

type demoUser struct {
	username, name, bio string
}

var demoUsers = []demoUser{
	{"demo_alice", "Alice Demo", "Tech enthusiast and coffee lover."},
	{"demo_bob", "Bob Builder", "Building cool stuff on the internet."},
	{"demo_carol", "Carol Creative", "Designer, maker, dreamer."},
	{"demo_dan", "Dan Developer", "Code all day, debug all night."},
	{"demo_eve", "Eve Explorer", "Always curious, always learning."},
}

var demoTweets = []struct {
	author  int
	content string
}{
	{0, "Excited to try this mini Twitter app!"},
	{1, "Shipping small wins today. Momentum matters."},
	{2, "Design tip: whitespace is a feature, not a bug."},
	{3, "Refactoring with coffee in hand."},
	{4, "Learning never stops. What are you reading?"},
	{0, "Hot take: keyboard shortcuts save hours each week."},
	{1, "Just fixed a tricky bug. It was a missing semicolon."},
	{2, "I love seeing thoughtful UX in small products."},
	{3, "Code review: be kind, be clear, be constructive."},
	{4, "Weekend project ideas? Drop them here."},
	{0, "Taking a break to brainstorm new features. Any requests?"},
	{1, "Deployed a tiny improvement that makes the app feel faster."},
}

// demoFollows are (follower, following) indexes into demoUsers.
var demoFollows = [][2]int{
	{0, 1}, {0, 2}, {1, 2}, {1, 3}, {2, 0},
	{2, 4}, {3, 0}, {3, 1}, {4, 0}, {4, 2},
}

// demoLikes are (user, tweet) indexes into demoUsers and demoTweets.
var demoLikes = [][2]int{
	{0, 1}, {0, 3}, {0, 5},
	{1, 0}, {1, 2}, {1, 4}, {1, 6},
	{2, 0}, {2, 3}, {2, 7}, {2, 9},
	{3, 1}, {3, 4}, {3, 8}, {3, 10},
	{4, 2}, {4, 5}, {4, 6}, {4, 9}, {4, 11},
}

// SeedResult reports what Seed did. The counts are zero when the data was
// already there.
type SeedResult struct {
	Status  string `json:"status"`
	Users   int    `json:"users,omitempty"`
	Tweets  int    `json:"tweets,omitempty"`
	Follows int    `json:"follows,omitempty"`
	Likes   int    `json:"likes,omitempty"`
}

// SeedService loads a fixed demo dataset into an empty store.
type SeedService struct {
	store  repository.Store
	pub    events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewSeedService(store repository.Store, pub events.Publisher, logger *slog.Logger) *SeedService {
	return &SeedService{store: store, pub: pub, logger: logger, now: time.Now}
}

// errAlreadySeeded aborts the seeding transaction when the marker user is
// already stored or another seeding run inserted it first.
var errAlreadySeeded = errors.New("demo data already present")

// Seed inserts the demo users, tweets, follows and likes unless demo_alice
// already exists, so it is safe to call any number of times.
//
// The marker check and every insert share one store transaction. A run
// that fails part way leaves nothing behind, and of several concurrent runs
// exactly one seeds while the others report already_seeded.
//
// Timestamps are spread backwards from now: users an hour apart, tweets
// twelve hours apart, follows thirty minutes apart and likes ten minutes
// apart. The first item of each list is the newest.
func (s *SeedService) Seed(ctx context.Context) (*SeedResult, error) {
	var result *SeedResult
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		result, err = s.insert(ctx, tx)
		return err
	})
	switch {
	case errors.Is(err, errAlreadySeeded):
		return &SeedResult{Status: SeedStatusAlreadySeeded}, nil
	case err != nil:
		return nil, err
	}

	s.logger.Info("demo data seeded",
		slog.Int("users", result.Users),
		slog.Int("tweets", result.Tweets),
		slog.Int("follows", result.Follows),
		slog.Int("likes", result.Likes),
	)
	s.pub.Publish(events.Event{Kind: events.DemoSeeded})

	return result, nil
}

func (s *SeedService) insert(ctx context.Context, tx repository.Store) (*SeedResult, error) {
	users := tx.Users()

	_, err := users.GetByUsername(ctx, seedMarker)
	switch {
	case err == nil:
		return nil, errAlreadySeeded
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/seed: checking for %s: %w", seedMarker, err)
	}

	now := s.now()

	userIDs := make([]string, len(demoUsers))
	for i, d := range demoUsers {
		u := &model.User{
			Email:     d.username + "@example.com",
			Username:  d.username,
			Name:      d.name,
			Bio:       d.bio,
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		}
		if err := users.Create(ctx, u); err != nil {
			// A concurrent run committed the marker between our check and
			// this insert.
			if field, ok := conflictField(err); ok && field == "username" && d.username == seedMarker {
				return nil, errAlreadySeeded
			}
			return nil, fmt.Errorf("service/seed: creating %s: %w", d.username, err)
		}
		userIDs[i] = u.ID
	}

	tweetIDs := make([]string, len(demoTweets))
	for i, d := range demoTweets {
		t := &model.Tweet{
			UserID:    userIDs[d.author],
			Content:   d.content,
			CreatedAt: now.Add(-time.Duration(i+1) * 12 * time.Hour),
		}
		if err := tx.Tweets().Create(ctx, t); err != nil {
			return nil, fmt.Errorf("service/seed: creating tweet %d: %w", i, err)
		}
		tweetIDs[i] = t.ID
	}

	for i, pair := range demoFollows {
		f := &model.Follow{
			FollowerID:  userIDs[pair[0]],
			FollowingID: userIDs[pair[1]],
			CreatedAt:   now.Add(-time.Duration(i+1) * 30 * time.Minute),
		}
		if _, err := tx.Follows().Create(ctx, f); err != nil {
			return nil, fmt.Errorf("service/seed: creating follow %d: %w", i, err)
		}
	}

	for i, pair := range demoLikes {
		l := &model.Like{
			UserID:    userIDs[pair[0]],
			TweetID:   tweetIDs[pair[1]],
			CreatedAt: now.Add(-time.Duration(i+1) * 10 * time.Minute),
		}
		if _, err := tx.Likes().Create(ctx, l); err != nil {
			return nil, fmt.Errorf("service/seed: creating like %d: %w", i, err)
		}
	}

	return &SeedResult{
		Status:  SeedStatusSeeded,
		Users:   len(userIDs),
		Tweets:  len(tweetIDs),
		Follows: len(demoFollows),
		Likes:   len(demoLikes),
	}, nil
}
