package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/minitwit/internal/apperror"
	"github.com/sakif/minitwit/internal/events"
	"github.com/sakif/minitwit/internal/model"
	"github.com/sakif/minitwit/internal/pagination"
	"github.com/sakif/minitwit/internal/repository"
)

// LikeService manages likes and the per-user list of liked tweets.
type LikeService struct {
	users   repository.UserRepository
	tweets  repository.TweetRepository
	likes   repository.LikeRepository
	cursors *pagination.Codec
	pub     events.Publisher
	logger  *slog.Logger
}

func NewLikeService(store repository.Store, cursors *pagination.Codec, pub events.Publisher, logger *slog.Logger) *LikeService {
	return &LikeService{
		users:   store.Users(),
		tweets:  store.Tweets(),
		likes:   store.Likes(),
		cursors: cursors,
		pub:     pub,
		logger:  logger,
	}
}

// LikeTweet records that viewerID likes tweetID and returns the like id.
// Liking the same tweet again returns the existing id.
func (s *LikeService) LikeTweet(ctx context.Context, viewerID, tweetID string) (string, error) {
	if viewerID == "" {
		return "", notAuthenticated()
	}

	if _, err := s.tweets.GetByID(ctx, tweetID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.New(apperror.ErrNotFound, msgTweetNotFound)
		}
		return "", fmt.Errorf("service/like: loading tweet %s: %w", tweetID, err)
	}

	like := &model.Like{UserID: viewerID, TweetID: tweetID}
	created, err := s.likes.Create(ctx, like)
	if err != nil {
		s.logger.Error("failed to like tweet",
			slog.String("userID", viewerID),
			slog.String("tweetID", tweetID),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("service/like: liking %s: %w", tweetID, err)
	}

	if created {
		s.logger.Info("tweet liked",
			slog.String("userID", viewerID),
			slog.String("tweetID", tweetID),
		)
		s.pub.Publish(events.Event{Kind: events.TweetLiked, ActorID: viewerID, TweetID: tweetID})
	}
	return like.ID, nil
}

// UnlikeTweet removes viewerID's like of tweetID and returns its id, or nil
// when the tweet was not liked.
func (s *LikeService) UnlikeTweet(ctx context.Context, viewerID, tweetID string) (*string, error) {
	if viewerID == "" {
		return nil, notAuthenticated()
	}

	like, err := s.likes.Get(ctx, viewerID, tweetID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/like: loading like %s/%s: %w", viewerID, tweetID, err)
	}

	if err := s.likes.Delete(ctx, like.ID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/like: deleting like %s: %w", like.ID, err)
	}

	s.logger.Info("tweet unliked",
		slog.String("userID", viewerID),
		slog.String("tweetID", tweetID),
	)
	s.pub.Publish(events.Event{Kind: events.TweetUnliked, ActorID: viewerID, TweetID: tweetID})

	return &like.ID, nil
}

// GetTweetLikes counts the likes of tweetID.
func (s *LikeService) GetTweetLikes(ctx context.Context, tweetID string) (int, error) {
	n, err := s.likes.CountByTweet(ctx, tweetID)
	if err != nil {
		return 0, fmt.Errorf("service/like: counting likes of %s: %w", tweetID, err)
	}
	return n, nil
}

// HasLiked is false for anonymous viewers.
func (s *LikeService) HasLiked(ctx context.Context, viewerID, tweetID string) (bool, error) {
	if viewerID == "" {
		return false, nil
	}
	_, err := s.likes.Get(ctx, viewerID, tweetID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperror.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("service/like: loading like %s/%s: %w", viewerID, tweetID, err)
	}
}

// GetLikedTweets returns the tweets userID liked, most recent like first.
// Likes of deleted tweets, or of tweets by deleted users, are dropped, so
// fewer than limit may come back.
func (s *LikeService) GetLikedTweets(ctx context.Context, userID string, limit int) ([]model.LikedTweet, error) {
	likes, err := s.likes.ListByUser(ctx, userID, repository.PageQuery{Limit: clampLimit(limit, DefaultListLimit)})
	if err != nil {
		return nil, fmt.Errorf("service/like: listing likes of %s: %w", userID, err)
	}
	return s.likedTweets(ctx, likes)
}

// GetLikedTweetsPaginated pages through userID's likes. The cursor follows
// the likes themselves, so dropped likes never stall the walk.
func (s *LikeService) GetLikedTweetsPaginated(ctx context.Context, userID string, req pagination.Request) (pagination.Result[model.LikedTweet], error) {
	var empty pagination.Result[model.LikedTweet]
	query := "liked_tweets:" + userID

	after, err := s.cursors.Decode(query, req.Cursor)
	if err != nil {
		return empty, err
	}

	size := req.Size()
	likes, err := s.likes.ListByUser(ctx, userID, repository.PageQuery{Limit: size + 1, After: after})
	if err != nil {
		return empty, fmt.Errorf("service/like: reading page of %s: %w", query, err)
	}
	likes, hasMore := pagination.Trim(likes, size)

	var last *pagination.Position
	if len(likes) > 0 {
		p := pagination.At(likes[len(likes)-1].CreatedAt, likes[len(likes)-1].ID)
		last = &p
	}
	cursor, err := s.cursors.Continue(query, last, hasMore)
	if err != nil {
		return empty, fmt.Errorf("service/like: encoding cursor: %w", err)
	}

	items, err := s.likedTweets(ctx, likes)
	if err != nil {
		return empty, err
	}

	return pagination.Result[model.LikedTweet]{
		Page:           items,
		IsDone:         !hasMore,
		ContinueCursor: cursor,
	}, nil
}

// likedTweets joins likes to their tweets and authors, keeping like order.
// Likes whose tweet or tweet author is gone are skipped.
func (s *LikeService) likedTweets(ctx context.Context, likes []model.Like) ([]model.LikedTweet, error) {
	ids := make([]string, len(likes))
	for i, l := range likes {
		ids[i] = l.TweetID
	}
	tweets, err := s.tweets.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("service/like: loading liked tweets: %w", err)
	}

	kept := make([]model.Tweet, 0, len(likes))
	likedAt := make([]model.Like, 0, len(likes))
	for _, l := range likes {
		t, ok := tweets[l.TweetID]
		if !ok {
			continue
		}
		kept = append(kept, *t)
		likedAt = append(likedAt, l)
	}

	withAuthor, err := withAuthors(ctx, s.users, kept)
	if err != nil {
		return nil, fmt.Errorf("service/like: %w", err)
	}

	out := make([]model.LikedTweet, 0, len(withAuthor))
	for i, t := range withAuthor {
		if t.Author == nil {
			continue
		}
		out = append(out, model.LikedTweet{TweetWithAuthor: t, LikedAt: likedAt[i].CreatedAt})
	}
	return out, nil
}
