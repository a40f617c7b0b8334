package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/minitwit/internal/events"
	"github.com/sakif/minitwit/internal/model"
	"github.com/sakif/minitwit/internal/pagination"
	"github.com/sakif/minitwit/internal/repository/sqlite"
)

// =========================================================================
// FIXTURES
// =========================================================================

// recorder is an events.Publisher that keeps what it was given.
type recorder struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.got))
	for i, e := range r.got {
		out[i] = e.Kind
	}
	return out
}

// env is every service wired to one in-memory store.
type env struct {
	store  *sqlite.DB
	events *recorder

	users  *UserService
	tweets *TweetService
	social *SocialService
	likes  *LikeService
	seed   *SeedService
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEnv(t *testing.T) *env {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cursors, err := pagination.NewCodec("cursor-secret-for-tests")
	require.NoError(t, err)

	rec := &recorder{}
	logger := quietLogger()

	return &env{
		store:  store,
		events: rec,
		users:  NewUserService(store, rec, logger),
		tweets: NewTweetService(store, cursors, rec, logger),
		social: NewSocialService(store, rec, logger),
		likes:  NewLikeService(store, cursors, rec, logger),
		seed:   NewSeedService(store, rec, logger),
	}
}

// user creates an account directly in storage.
func (e *env) user(t *testing.T, username string) *model.User {
	t.Helper()
	u := &model.User{Email: username + "@example.com", Username: username, Name: username}
	require.NoError(t, e.store.Users().Create(context.Background(), u))
	return u
}

// tweetAt stores a tweet with a fixed creation time.
func (e *env) tweetAt(t *testing.T, userID, content string, at time.Time) *model.Tweet {
	t.Helper()
	tw := &model.Tweet{UserID: userID, Content: content, CreatedAt: at}
	require.NoError(t, e.store.Tweets().Create(context.Background(), tw))
	return tw
}

// follow stores an edge directly, bypassing the service.
func (e *env) follow(t *testing.T, followerID, followingID string) {
	t.Helper()
	_, err := e.store.Follows().Create(context.Background(), &model.Follow{FollowerID: followerID, FollowingID: followingID})
	require.NoError(t, err)
}

func tweetIDs(rows []model.TweetWithAuthor) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

var base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// =========================================================================
// HELPERS
// =========================================================================

func TestClampLimit(t *testing.T) {
	cases := []struct {
		in, def, want int
	}{
		{0, 50, 50},
		{-3, 10, 10},
		{7, 50, 7},
		{200, 50, 200},
		{201, 50, 200},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, clampLimit(tc.in, tc.def), "clampLimit(%d, %d)", tc.in, tc.def)
	}
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "alice", normalizeUsername("  Alice "))
	assert.Equal(t, "", normalizeUsername(" \t "))
}

func TestWithAuthors_MissingAuthorIsNil(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	alice := e.user(t, "alice")
	bob := e.user(t, "bob")
	t1 := e.tweetAt(t, alice.ID, "one", base)
	t2 := e.tweetAt(t, bob.ID, "two", base.Add(time.Minute))
	require.NoError(t, e.store.Users().Delete(ctx, bob.ID))

	out, err := withAuthors(ctx, e.store.Users(), []model.Tweet{*t1, *t2})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.NotNil(t, out[0].Author)
	assert.Equal(t, "alice", out[0].Author.Username)
	assert.Nil(t, out[1].Author)
}
