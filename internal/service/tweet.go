package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf16"

	"github.com/sakif/minitwit/internal/apperror"
	"github.com/sakif/minitwit/internal/events"
	"github.com/sakif/minitwit/internal/model"
	"github.com/sakif/minitwit/internal/pagination"
	"github.com/sakif/minitwit/internal/repository"
)

// TweetService owns posting, deleting and every read that lists tweets:
// a user's timeline, the home feed and tweet search.
type TweetService struct {
	users   repository.UserRepository
	tweets  repository.TweetRepository
	follows repository.FollowRepository
	cursors *pagination.Codec
	pub     events.Publisher
	logger  *slog.Logger
}

func NewTweetService(store repository.Store, cursors *pagination.Codec, pub events.Publisher, logger *slog.Logger) *TweetService {
	return &TweetService{
		users:   store.Users(),
		tweets:  store.Tweets(),
		follows: store.Follows(),
		cursors: cursors,
		pub:     pub,
		logger:  logger,
	}
}

// Create posts a tweet as viewerID. Content is trimmed before it is
// validated and stored.
func (s *TweetService) Create(ctx context.Context, viewerID, content string) (*model.Tweet, error) {
	if viewerID == "" {
		return nil, notAuthenticated()
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.ValidationFailed("content", "Tweet cannot be empty")
	}
	if contentLength(content) > model.MaxTweetLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("Tweet exceeds %d characters", model.MaxTweetLength))
	}

	tweet := &model.Tweet{UserID: viewerID, Content: content}
	if err := s.tweets.Create(ctx, tweet); err != nil {
		s.logger.Error("failed to create tweet",
			slog.String("userID", viewerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/tweet: creating tweet: %w", err)
	}

	s.logger.Info("tweet created",
		slog.String("id", tweet.ID),
		slog.String("userID", viewerID),
	)
	s.pub.Publish(events.Event{Kind: events.TweetCreated, ActorID: viewerID, TweetID: tweet.ID})

	return tweet, nil
}

// Delete removes a tweet. Only its author may delete it.
func (s *TweetService) Delete(ctx context.Context, viewerID, tweetID string) error {
	if viewerID == "" {
		return notAuthenticated()
	}

	tweet, err := s.tweets.GetByID(ctx, tweetID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.New(apperror.ErrNotFound, msgTweetNotFound)
		}
		return fmt.Errorf("service/tweet: loading tweet %s: %w", tweetID, err)
	}
	if tweet.UserID != viewerID {
		return apperror.Forbidden("Cannot delete another user's tweet")
	}

	if err := s.tweets.Delete(ctx, tweetID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.New(apperror.ErrNotFound, msgTweetNotFound)
		}
		s.logger.Error("failed to delete tweet",
			slog.String("id", tweetID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/tweet: deleting tweet %s: %w", tweetID, err)
	}

	s.logger.Info("tweet deleted", slog.String("id", tweetID))
	s.pub.Publish(events.Event{Kind: events.TweetDeleted, ActorID: viewerID, TweetID: tweetID})
	return nil
}

// GetByID returns the tweet with its author, or nil if it does not exist.
func (s *TweetService) GetByID(ctx context.Context, tweetID string) (*model.TweetWithAuthor, error) {
	if strings.TrimSpace(tweetID) == "" {
		return nil, nil
	}

	tweet, err := s.tweets.GetByID(ctx, tweetID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/tweet: loading tweet %s: %w", tweetID, err)
	}

	out, err := withAuthors(ctx, s.users, []model.Tweet{*tweet})
	if err != nil {
		return nil, fmt.Errorf("service/tweet: %w", err)
	}
	return &out[0], nil
}

// =========================================================================
// USER TIMELINE
// =========================================================================

// GetUserTweets returns up to limit of userID's tweets, newest first.
func (s *TweetService) GetUserTweets(ctx context.Context, userID string, limit int) ([]model.TweetWithAuthor, error) {
	rows, err := s.tweets.ListByUser(ctx, userID, repository.PageQuery{Limit: clampLimit(limit, DefaultListLimit)})
	if err != nil {
		return nil, fmt.Errorf("service/tweet: listing tweets of %s: %w", userID, err)
	}
	out, err := withAuthors(ctx, s.users, rows)
	if err != nil {
		return nil, fmt.Errorf("service/tweet: %w", err)
	}
	return out, nil
}

func (s *TweetService) GetUserTweetsPaginated(ctx context.Context, userID string, req pagination.Request) (pagination.Result[model.TweetWithAuthor], error) {
	query := "user_tweets:" + userID
	return s.page(ctx, query, req,
		func(q repository.PageQuery) ([]model.Tweet, error) {
			return s.tweets.ListByUser(ctx, userID, q)
		},
		nil,
	)
}

// CountUserTweets returns how many tweets userID has posted and not deleted.
func (s *TweetService) CountUserTweets(ctx context.Context, userID string) (int, error) {
	n, err := s.tweets.CountByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service/tweet: counting tweets of %s: %w", userID, err)
	}
	return n, nil
}

// =========================================================================
// HOME FEED
// =========================================================================

// GetFeed takes the newest limit tweets on the whole platform and keeps the
// ones written by the viewer or by accounts the viewer follows.
//
// The filter runs AFTER the limit, so the result is often shorter than
// limit even when older matching tweets exist. Callers rely on this exact
// behaviour; do not "fix" it by reading further. Tweets of deleted accounts
// are left out.
func (s *TweetService) GetFeed(ctx context.Context, viewerID string, limit int) ([]model.TweetWithAuthor, error) {
	if viewerID == "" {
		return []model.TweetWithAuthor{}, nil
	}

	rows, err := s.tweets.ListRecent(ctx, repository.PageQuery{Limit: clampLimit(limit, DefaultListLimit)})
	if err != nil {
		return nil, fmt.Errorf("service/tweet: reading timeline: %w", err)
	}
	keep, err := followedSet(ctx, s.follows, viewerID)
	if err != nil {
		return nil, fmt.Errorf("service/tweet: %w", err)
	}

	out, err := withAuthors(ctx, s.users, byAuthor(rows, keep))
	if err != nil {
		return nil, fmt.Errorf("service/tweet: %w", err)
	}
	return authored(out), nil
}

// GetFeedPaginated pages through the platform timeline and filters each raw
// page to the viewer's followed set. A page may be short or empty while
// IsDone is still false.
func (s *TweetService) GetFeedPaginated(ctx context.Context, viewerID string, req pagination.Request) (pagination.Result[model.TweetWithAuthor], error) {
	if viewerID == "" {
		return pagination.Empty[model.TweetWithAuthor](), nil
	}

	keep, err := followedSet(ctx, s.follows, viewerID)
	if err != nil {
		return pagination.Result[model.TweetWithAuthor]{}, fmt.Errorf("service/tweet: %w", err)
	}

	res, err := s.page(ctx, "feed:"+viewerID, req,
		func(q repository.PageQuery) ([]model.Tweet, error) {
			return s.tweets.ListRecent(ctx, q)
		},
		func(rows []model.Tweet) []model.Tweet {
			return byAuthor(rows, keep)
		},
	)
	if err != nil {
		return res, err
	}
	res.Page = authored(res.Page)
	return res, nil
}

// =========================================================================
// SEARCH
// =========================================================================

// Search returns tweets whose content contains query, case-insensitively.
// Only the newest SearchScanLimit tweets are examined and at most
// SearchResultLimit matches are returned. Signed-out callers and blank
// queries get an empty list.
func (s *TweetService) Search(ctx context.Context, viewerID, query string) ([]model.TweetWithAuthor, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if viewerID == "" || needle == "" {
		return []model.TweetWithAuthor{}, nil
	}

	rows, err := s.tweets.ListRecent(ctx, repository.PageQuery{Limit: SearchScanLimit})
	if err != nil {
		return nil, fmt.Errorf("service/tweet: reading timeline: %w", err)
	}

	matches := containing(rows, needle)
	if len(matches) > SearchResultLimit {
		matches = matches[:SearchResultLimit]
	}

	out, err := withAuthors(ctx, s.users, matches)
	if err != nil {
		return nil, fmt.Errorf("service/tweet: %w", err)
	}
	return out, nil
}

// SearchPaginated filters each raw timeline page by query, like the feed.
func (s *TweetService) SearchPaginated(ctx context.Context, viewerID, query string, req pagination.Request) (pagination.Result[model.TweetWithAuthor], error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if viewerID == "" || needle == "" {
		return pagination.Empty[model.TweetWithAuthor](), nil
	}

	return s.page(ctx, "search_tweets:"+needle, req,
		func(q repository.PageQuery) ([]model.Tweet, error) {
			return s.tweets.ListRecent(ctx, q)
		},
		func(rows []model.Tweet) []model.Tweet {
			return containing(rows, needle)
		},
	)
}

// =========================================================================
// HELPERS
// =========================================================================

// page reads one raw page for query, applies filter (if any) to it and
// resolves authors. The continue cursor points after the last RAW row, so
// rows removed by filter are never re-read.
func (s *TweetService) page(
	ctx context.Context,
	query string,
	req pagination.Request,
	read func(repository.PageQuery) ([]model.Tweet, error),
	filter func([]model.Tweet) []model.Tweet,
) (pagination.Result[model.TweetWithAuthor], error) {
	var empty pagination.Result[model.TweetWithAuthor]

	after, err := s.cursors.Decode(query, req.Cursor)
	if err != nil {
		return empty, err
	}

	size := req.Size()
	rows, err := read(repository.PageQuery{Limit: size + 1, After: after})
	if err != nil {
		return empty, fmt.Errorf("service/tweet: reading page of %s: %w", query, err)
	}
	rows, hasMore := pagination.Trim(rows, size)

	var last *pagination.Position
	if len(rows) > 0 {
		p := pagination.At(rows[len(rows)-1].CreatedAt, rows[len(rows)-1].ID)
		last = &p
	}
	cursor, err := s.cursors.Continue(query, last, hasMore)
	if err != nil {
		return empty, fmt.Errorf("service/tweet: encoding cursor: %w", err)
	}

	if filter != nil {
		rows = filter(rows)
	}
	items, err := withAuthors(ctx, s.users, rows)
	if err != nil {
		return empty, fmt.Errorf("service/tweet: %w", err)
	}

	return pagination.Result[model.TweetWithAuthor]{
		Page:           items,
		IsDone:         !hasMore,
		ContinueCursor: cursor,
	}, nil
}

func byAuthor(rows []model.Tweet, keep map[string]struct{}) []model.Tweet {
	out := make([]model.Tweet, 0, len(rows))
	for _, t := range rows {
		if _, ok := keep[t.UserID]; ok {
			out = append(out, t)
		}
	}
	return out
}

// contentLength counts UTF-16 code units, the unit browser character
// counters use. Characters outside the Basic Multilingual Plane, most emoji
// among them, count as two.
func contentLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// authored drops tweets whose author no longer exists. The feed never shows
// them, even when a follow edge to the removed account is still stored.
func authored(rows []model.TweetWithAuthor) []model.TweetWithAuthor {
	out := rows[:0]
	for _, r := range rows {
		if r.Author != nil {
			out = append(out, r)
		}
	}
	return out
}

func containing(rows []model.Tweet, needle string) []model.Tweet {
	out := make([]model.Tweet, 0)
	for _, t := range rows {
		if strings.Contains(strings.ToLower(t.Content), needle) {
			out = append(out, t)
		}
	}
	return out
}
