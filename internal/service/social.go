package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sakif/minitwit/internal/apperror"
	"github.com/sakif/minitwit/internal/events"
	"github.com/sakif/minitwit/internal/model"
	"github.com/sakif/minitwit/internal/repository"
)

// SocialService manages the follow graph.
type SocialService struct {
	users   repository.UserRepository
	follows repository.FollowRepository
	pub     events.Publisher
	logger  *slog.Logger
}

func NewSocialService(store repository.Store, pub events.Publisher, logger *slog.Logger) *SocialService {
	return &SocialService{
		users:   store.Users(),
		follows: store.Follows(),
		pub:     pub,
		logger:  logger,
	}
}

// Follow makes viewerID follow targetID and returns the edge id.
//
// Following someone twice is not an error: the second call returns the id of
// the edge that already exists and publishes nothing.
func (s *SocialService) Follow(ctx context.Context, viewerID, targetID string) (string, error) {
	if viewerID == "" {
		return "", notAuthenticated()
	}
	if viewerID == targetID {
		return "", apperror.ValidationFailed("userId", "Cannot follow yourself")
	}

	if _, err := s.users.GetByID(ctx, targetID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.New(apperror.ErrNotFound, msgUserNotFound)
		}
		return "", fmt.Errorf("service/social: loading user %s: %w", targetID, err)
	}

	edge := &model.Follow{FollowerID: viewerID, FollowingID: targetID}
	created, err := s.follows.Create(ctx, edge)
	if err != nil {
		s.logger.Error("failed to follow user",
			slog.String("followerID", viewerID),
			slog.String("followingID", targetID),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("service/social: following %s: %w", targetID, err)
	}

	if created {
		s.logger.Info("user followed",
			slog.String("followerID", viewerID),
			slog.String("followingID", targetID),
		)
		s.pub.Publish(events.Event{Kind: events.UserFollowed, ActorID: viewerID, SubjectID: targetID})
	}

	return edge.ID, nil
}

// Unfollow removes the edge from viewerID to targetID. It returns the id of
// the removed edge, or nil when there was nothing to remove.
func (s *SocialService) Unfollow(ctx context.Context, viewerID, targetID string) (*string, error) {
	if viewerID == "" {
		return nil, notAuthenticated()
	}

	edge, err := s.follows.Get(ctx, viewerID, targetID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/social: loading follow %s->%s: %w", viewerID, targetID, err)
	}

	if err := s.follows.Delete(ctx, edge.ID); err != nil {
		// A concurrent unfollow got there first.
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/social: deleting follow %s: %w", edge.ID, err)
	}

	s.logger.Info("user unfollowed",
		slog.String("followerID", viewerID),
		slog.String("followingID", targetID),
	)
	s.pub.Publish(events.Event{Kind: events.UserUnfollowed, ActorID: viewerID, SubjectID: targetID})

	return &edge.ID, nil
}

// GetFollowers returns the raw edges pointing at userID.
func (s *SocialService) GetFollowers(ctx context.Context, userID string) ([]model.Follow, error) {
	edges, err := s.follows.ListFollowers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/social: listing followers of %s: %w", userID, err)
	}
	return edges, nil
}

// GetFollowing returns the raw edges leaving userID.
func (s *SocialService) GetFollowing(ctx context.Context, userID string) ([]model.Follow, error) {
	edges, err := s.follows.ListFollowing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/social: listing following of %s: %w", userID, err)
	}
	return edges, nil
}

// GetFollowersWithUsers resolves each follower, newest edge first. Edges
// whose follower no longer exists are skipped.
func (s *SocialService) GetFollowersWithUsers(ctx context.Context, userID string) ([]model.UserWithFollowedAt, error) {
	edges, err := s.GetFollowers(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, edges, func(f model.Follow) string { return f.FollowerID })
}

// GetFollowingWithUsers resolves each followed user, newest edge first.
func (s *SocialService) GetFollowingWithUsers(ctx context.Context, userID string) ([]model.UserWithFollowedAt, error) {
	edges, err := s.GetFollowing(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, edges, func(f model.Follow) string { return f.FollowingID })
}

// IsFollowing reports whether viewerID follows targetID. Anonymous viewers
// follow nobody.
func (s *SocialService) IsFollowing(ctx context.Context, viewerID, targetID string) (bool, error) {
	if viewerID == "" {
		return false, nil
	}
	_, err := s.follows.Get(ctx, viewerID, targetID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperror.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("service/social: loading follow %s->%s: %w", viewerID, targetID, err)
	}
}

// resolve turns edges into users, picking the user on each edge with other.
func (s *SocialService) resolve(ctx context.Context, edges []model.Follow, other func(model.Follow) string) ([]model.UserWithFollowedAt, error) {
	sort.SliceStable(edges, func(i, j int) bool {
		if !edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].CreatedAt.After(edges[j].CreatedAt)
		}
		return edges[i].ID > edges[j].ID
	})

	ids := make([]string, len(edges))
	for i, e := range edges {
		ids[i] = other(e)
	}
	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("service/social: resolving users: %w", err)
	}

	out := make([]model.UserWithFollowedAt, 0, len(edges))
	for _, e := range edges {
		u, ok := users[other(e)]
		if !ok {
			continue
		}
		out = append(out, model.UserWithFollowedAt{User: *u, FollowedAt: e.CreatedAt})
	}
	return out, nil
}
