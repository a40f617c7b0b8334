// Package repository declares the storage interfaces the services depend on.
//
// Two backends implement them: repository/sqlite (the default, embedded) and
// repository/postgres. Services only ever see these interfaces.
//
// CONVENTIONS SHARED BY EVERY IMPLEMENTATION:
//   - Lookups by key return an *apperror.AppError wrapping ErrNotFound when
//     nothing matches.
//   - Create fills in ID (xid) and CreatedAt when they are zero, and keeps them
//     when the caller set them (seeding relies on this).
//   - Unique violations on users return an AppError wrapping ErrConflict whose
//     Field names the violated column ("username", "email", "github_id").
//   - Writes made through the Store handed to InTx become visible together
//     or not at all.
//   - Newest-first lists are ordered by (created_at DESC, id DESC) and honour
//     PageQuery.After as a strict lower bound in that order.
package repository

import (
	"context"

	"github.com/sakif/minitwit/internal/model"
	"github.com/sakif/minitwit/internal/pagination"
)

// PageQuery bounds a newest-first read. Limit is the number of rows to read,
// already including any look-ahead row. A nil After starts at the newest row.
type PageQuery struct {
	Limit int
	After *pagination.Position
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	// GetMany returns the users that exist among ids, keyed by id.
	GetMany(ctx context.Context, ids []string) (map[string]*model.User, error)
	// List returns every user in storage order (oldest first).
	List(ctx context.Context) ([]model.User, error)
	// ListRecent returns the most recently created users, newest first.
	ListRecent(ctx context.Context, limit int) ([]model.User, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id string) error
}

type TweetRepository interface {
	Create(ctx context.Context, tweet *model.Tweet) error
	GetByID(ctx context.Context, id string) (*model.Tweet, error)
	GetMany(ctx context.Context, ids []string) (map[string]*model.Tweet, error)
	Delete(ctx context.Context, id string) error
	// ListRecent reads the platform-wide timeline, newest first.
	ListRecent(ctx context.Context, q PageQuery) ([]model.Tweet, error)
	ListByUser(ctx context.Context, userID string, q PageQuery) ([]model.Tweet, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}

type FollowRepository interface {
	// Create inserts the edge unless one already exists for the pair. Either
	// way follow.ID and follow.CreatedAt describe the stored edge afterwards,
	// and created reports whether this call inserted it.
	Create(ctx context.Context, follow *model.Follow) (created bool, err error)
	Get(ctx context.Context, followerID, followingID string) (*model.Follow, error)
	Delete(ctx context.Context, id string) error
	// ListFollowers returns edges pointing at userID, oldest first.
	ListFollowers(ctx context.Context, userID string) ([]model.Follow, error)
	// ListFollowing returns edges leaving userID, oldest first.
	ListFollowing(ctx context.Context, userID string) ([]model.Follow, error)
}

type LikeRepository interface {
	// Create has the same insert-or-return-existing contract as
	// FollowRepository.Create.
	Create(ctx context.Context, like *model.Like) (created bool, err error)
	Get(ctx context.Context, userID, tweetID string) (*model.Like, error)
	Delete(ctx context.Context, id string) error
	CountByTweet(ctx context.Context, tweetID string) (int, error)
	// ListByUser reads a user's likes newest first.
	ListByUser(ctx context.Context, userID string, q PageQuery) ([]model.Like, error)
}

// Store groups the repositories of one backend.
type Store interface {
	Users() UserRepository
	Tweets() TweetRepository
	Follows() FollowRepository
	Likes() LikeRepository
	// InTx runs fn against a Store bound to one transaction. The transaction
	// commits when fn returns nil and rolls back otherwise. Calling InTx on
	// the Store fn receives reuses the open transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error
	Close() error
}
