package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/minitwit/internal/apperror"
	"github.com/sakif/minitwit/internal/events"
	"github.com/sakif/minitwit/internal/pagination"
)

// =========================================================================
// CREATE
// =========================================================================

func TestCreateTweet_Validation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice")

	cases := []struct {
		name    string
		viewer  string
		content string
		kind    error
		message string
	}{
		{"anonymous", "", "hi", apperror.ErrUnauthenticated, "Not authenticated"},
		{"empty", alice.ID, "", apperror.ErrValidation, "Tweet cannot be empty"},
		{"whitespace only", alice.ID, "   \n\t", apperror.ErrValidation, "Tweet cannot be empty"},
		{"301 chars", alice.ID, strings.Repeat("a", 301), apperror.ErrValidation, "Tweet exceeds 300 characters"},
		{"301 runes", alice.ID, strings.Repeat("é", 301), apperror.ErrValidation, "Tweet exceeds 300 characters"},
		{"151 emoji count double", alice.ID, strings.Repeat("😀", 151), apperror.ErrValidation, "Tweet exceeds 300 characters"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.tweets.Create(ctx, tc.viewer, tc.content)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
			assert.Equal(t, tc.message, err.Error())
		})
	}

	n, err := e.tweets.CountUserTweets(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "rejected tweets must not be stored")
	assert.Empty(t, e.events.kinds())
}

func TestContentLength(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"hello", 5},
		{"héllo", 5},
		{"日本語", 3},
		{"😀", 2},
		{"a😀b", 4},
	}
	for _, tc := range cases {
		if got := contentLength(tc.in); got != tc.want {
			t.Errorf("contentLength(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestCreateTweet_TrimsAndStores(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice")

	tw, err := e.tweets.Create(ctx, alice.ID, "  x  ")
	require.NoError(t, err)
	assert.Equal(t, "x", tw.Content)
	assert.NotEmpty(t, tw.ID)
	assert.False(t, tw.CreatedAt.IsZero())

	// Exactly 300 characters after trimming is accepted, multi-byte or not.
	_, err = e.tweets.Create(ctx, alice.ID, " "+strings.Repeat("é", 300)+" ")
	require.NoError(t, err)
	_, err = e.tweets.Create(ctx, alice.ID, strings.Repeat("😀", 150))
	require.NoError(t, err)

	got, err := e.tweets.GetByID(ctx, tw.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "x", got.Content)
	require.NotNil(t, got.Author)
	assert.Equal(t, "alice", got.Author.Username)

	assert.Equal(t, []events.Kind{events.TweetCreated, events.TweetCreated, events.TweetCreated}, e.events.kinds())
}

// =========================================================================
// DELETE
// =========================================================================

func TestDeleteTweet(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")

	tw, err := e.tweets.Create(ctx, alice.ID, "mine")
	require.NoError(t, err)

	err = e.tweets.Delete(ctx, "", tw.ID)
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)

	err = e.tweets.Delete(ctx, bob.ID, tw.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Equal(t, "Cannot delete another user's tweet", err.Error())

	err = e.tweets.Delete(ctx, alice.ID, "no-such-tweet")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, "Tweet not found", err.Error())

	require.NoError(t, e.tweets.Delete(ctx, alice.ID, tw.ID))

	got, err := e.tweets.GetByID(ctx, tw.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "deleted tweets are gone for good")

	err = e.tweets.Delete(ctx, alice.ID, tw.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	assert.Equal(t, []events.Kind{events.TweetCreated, events.TweetDeleted}, e.events.kinds())
}

func TestGetTweetByID_Missing(t *testing.T) {
	e := newTestEnv(t)

	got, err := e.tweets.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = e.tweets.GetByID(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// =========================================================================
// USER TIMELINE
// =========================================================================

func TestGetUserTweets_NewestFirst(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")

	t1 := e.tweetAt(t, alice.ID, "1", base)
	e.tweetAt(t, bob.ID, "other", base.Add(30*time.Second))
	t2 := e.tweetAt(t, alice.ID, "2", base.Add(time.Minute))
	t3 := e.tweetAt(t, alice.ID, "3", base.Add(2*time.Minute))

	got, err := e.tweets.GetUserTweets(ctx, alice.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{t3.ID, t2.ID, t1.ID}, tweetIDs(got))

	got, err = e.tweets.GetUserTweets(ctx, alice.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{t3.ID, t2.ID}, tweetIDs(got))

	n, err := e.tweets.CountUserTweets(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestGetUserTweetsPaginated(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice")

	t1 := e.tweetAt(t, alice.ID, "1", base.Add(1*time.Millisecond))
	t2 := e.tweetAt(t, alice.ID, "2", base.Add(2*time.Millisecond))
	t3 := e.tweetAt(t, alice.ID, "3", base.Add(3*time.Millisecond))

	first, err := e.tweets.GetUserTweetsPaginated(ctx, alice.ID, pagination.Request{NumItems: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{t3.ID, t2.ID}, tweetIDs(first.Page))
	assert.False(t, first.IsDone)
	require.NotEmpty(t, first.ContinueCursor)

	// A tweet posted between the two calls must not shift the next page.
	e.tweetAt(t, alice.ID, "4", base.Add(4*time.Millisecond))

	second, err := e.tweets.GetUserTweetsPaginated(ctx, alice.ID,
		pagination.Request{NumItems: 2, Cursor: first.ContinueCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{t1.ID}, tweetIDs(second.Page))
	assert.True(t, second.IsDone)
	assert.Empty(t, second.ContinueCursor)
}

func TestPaginated_CursorIsBoundToItsQuery(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")
	for i := 0; i < 3; i++ {
		e.tweetAt(t, alice.ID, "a", base.Add(time.Duration(i)*time.Minute))
	}

	page, err := e.tweets.GetUserTweetsPaginated(ctx, alice.ID, pagination.Request{NumItems: 1})
	require.NoError(t, err)
	require.NotEmpty(t, page.ContinueCursor)

	_, err = e.tweets.GetUserTweetsPaginated(ctx, bob.ID, pagination.Request{Cursor: page.ContinueCursor})
	assert.ErrorIs(t, err, apperror.ErrValidation, "another user's cursor")

	_, err = e.tweets.GetFeedPaginated(ctx, alice.ID, pagination.Request{Cursor: page.ContinueCursor})
	assert.ErrorIs(t, err, apperror.ErrValidation, "a timeline cursor used on the feed")

	_, err = e.tweets.GetUserTweetsPaginated(ctx, alice.ID, pagination.Request{Cursor: "garbage"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// =========================================================================
// FEED
// =========================================================================

func TestGetFeed_SelfAndFollowed(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.user(t, "a")
	b := e.user(t, "b")
	c := e.user(t, "c")

	_, err := e.social.Follow(ctx, a.ID, b.ID)
	require.NoError(t, err)

	a1 := e.tweetAt(t, a.ID, "a1", base)
	b1 := e.tweetAt(t, b.ID, "b1", base.Add(time.Minute))
	e.tweetAt(t, c.ID, "c1", base.Add(2*time.Minute))
	a2 := e.tweetAt(t, a.ID, "a2", base.Add(3*time.Minute))

	got, err := e.tweets.GetFeed(ctx, a.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{a2.ID, b1.ID, a1.ID}, tweetIDs(got))

	anon, err := e.tweets.GetFeed(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, anon)
	assert.NotNil(t, anon, "anonymous feed is an empty list, not null")
}

func TestGetFeed_FiltersAfterTruncating(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.user(t, "a")
	c := e.user(t, "c")

	older := e.tweetAt(t, a.ID, "mine", base)
	for i := 1; i <= 3; i++ {
		e.tweetAt(t, c.ID, "noise", base.Add(time.Duration(i)*time.Minute))
	}

	// The newest three tweets all belong to c, so a limit of 3 yields nothing
	// even though a has an older tweet.
	got, err := e.tweets.GetFeed(ctx, a.ID, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = e.tweets.GetFeed(ctx, a.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{older.ID}, tweetIDs(got))
}

func TestGetFeed_SkipsDeletedAuthors(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.user(t, "a")
	b := e.user(t, "b")
	e.follow(t, a.ID, b.ID)

	e.tweetAt(t, b.ID, "from b", base)
	mine := e.tweetAt(t, a.ID, "from a", base.Add(time.Minute))
	require.NoError(t, e.store.Users().Delete(ctx, b.ID))

	got, err := e.tweets.GetFeed(ctx, a.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{mine.ID}, tweetIDs(got))

	page, err := e.tweets.GetFeedPaginated(ctx, a.ID, pagination.Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{mine.ID}, tweetIDs(page.Page))
}

func TestGetFeedPaginated_ShortPagesKeepWalking(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.user(t, "a")
	c := e.user(t, "c")

	mine := e.tweetAt(t, a.ID, "mine", base)
	e.tweetAt(t, c.ID, "noise 1", base.Add(time.Minute))
	e.tweetAt(t, c.ID, "noise 2", base.Add(2*time.Minute))

	first, err := e.tweets.GetFeedPaginated(ctx, a.ID, pagination.Request{NumItems: 2})
	require.NoError(t, err)
	assert.Empty(t, first.Page, "both raw rows were filtered out")
	assert.False(t, first.IsDone)

	second, err := e.tweets.GetFeedPaginated(ctx, a.ID,
		pagination.Request{NumItems: 2, Cursor: first.ContinueCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{mine.ID}, tweetIDs(second.Page))
	assert.True(t, second.IsDone)

	anon, err := e.tweets.GetFeedPaginated(ctx, "", pagination.Request{})
	require.NoError(t, err)
	assert.True(t, anon.IsDone)
	assert.Empty(t, anon.Page)
	assert.Empty(t, anon.ContinueCursor)
}

// =========================================================================
// SEARCH
// =========================================================================

func TestSearch_CaseInsensitive(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.user(t, "a")

	hello := e.tweetAt(t, a.ID, "Hello world", base)
	e.tweetAt(t, a.ID, "Another post", base.Add(time.Minute))

	got, err := e.tweets.Search(ctx, a.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{hello.ID}, tweetIDs(got))

	for _, q := range []string{"", "   "} {
		got, err = e.tweets.Search(ctx, a.ID, q)
		require.NoError(t, err)
		assert.Empty(t, got, "blank query %q", q)
	}

	got, err = e.tweets.Search(ctx, "", "hello")
	require.NoError(t, err)
	assert.Empty(t, got, "anonymous search")
}

func TestSearch_ScanAndResultLimits(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.user(t, "a")

	// One match older than the scan window.
	e.tweetAt(t, a.ID, "needle", base)
	for i := 1; i <= SearchScanLimit; i++ {
		e.tweetAt(t, a.ID, "hay", base.Add(time.Duration(i)*time.Second))
	}

	got, err := e.tweets.Search(ctx, a.ID, "needle")
	require.NoError(t, err)
	assert.Empty(t, got, "only the newest tweets are scanned")

	got, err = e.tweets.Search(ctx, a.ID, "HAY")
	require.NoError(t, err)
	assert.Len(t, got, SearchResultLimit)
}

func TestSearchPaginated(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.user(t, "a")

	m1 := e.tweetAt(t, a.ID, "go is fun", base)
	e.tweetAt(t, a.ID, "rust", base.Add(time.Minute))
	m2 := e.tweetAt(t, a.ID, "Go again", base.Add(2*time.Minute))

	first, err := e.tweets.SearchPaginated(ctx, a.ID, "go", pagination.Request{NumItems: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{m2.ID}, tweetIDs(first.Page))
	assert.False(t, first.IsDone)

	second, err := e.tweets.SearchPaginated(ctx, a.ID, "GO", pagination.Request{NumItems: 2, Cursor: first.ContinueCursor})
	require.NoError(t, err, "the cursor is bound to the normalised query")
	assert.Equal(t, []string{m1.ID}, tweetIDs(second.Page))
	assert.True(t, second.IsDone)

	anon, err := e.tweets.SearchPaginated(ctx, "", "go", pagination.Request{})
	require.NoError(t, err)
	assert.True(t, anon.IsDone)
	assert.Empty(t, anon.Page)
}
