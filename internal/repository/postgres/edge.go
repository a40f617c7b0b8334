package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/minitwit/internal/apperror"
	"github.com/sakif/minitwit/internal/model"
	"github.com/sakif/minitwit/internal/repository"
)

var (
	_ repository.FollowRepository = (*FollowDB)(nil)
	_ repository.LikeRepository   = (*LikeDB)(nil)
)

// =========================================================================
// FOLLOWS
// =========================================================================

type FollowDB struct {
	pool querier
}

const followColumns = `id, follower_id, following_id, created_at`

func collectFollow(row pgx.CollectableRow) (model.Follow, error) {
	var (
		f       model.Follow
		created int64
	)
	err := row.Scan(&f.ID, &f.FollowerID, &f.FollowingID, &created)
	f.CreatedAt = fromMillis(created)
	return f, err
}

// Create inserts the edge or loads the one that already links the pair.
// ON CONFLICT DO NOTHING makes concurrent duplicates collapse to one row.
func (d *FollowDB) Create(ctx context.Context, follow *model.Follow) (bool, error) {
	if follow.ID == "" {
		follow.ID = xid.New().String()
	}
	stamp(&follow.CreatedAt)

	tag, err := d.pool.Exec(ctx,
		`INSERT INTO follows (`+followColumns+`) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (follower_id, following_id) DO NOTHING`,
		follow.ID, follow.FollowerID, follow.FollowingID, toMillis(follow.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("postgres: creating follow %s->%s: %w", follow.FollowerID, follow.FollowingID, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	existing, err := d.Get(ctx, follow.FollowerID, follow.FollowingID)
	if err != nil {
		return false, err
	}
	*follow = *existing
	return false, nil
}

func (d *FollowDB) Get(ctx context.Context, followerID, followingID string) (*model.Follow, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT `+followColumns+` FROM follows WHERE follower_id = $1 AND following_id = $2`,
		followerID, followingID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: getting follow %s->%s: %w", followerID, followingID, err)
	}
	f, err := pgx.CollectExactlyOneRow(rows, collectFollow)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("follow", followerID+"->"+followingID)
		}
		return nil, fmt.Errorf("postgres: getting follow %s->%s: %w", followerID, followingID, err)
	}
	return &f, nil
}

func (d *FollowDB) Delete(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM follows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting follow %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("follow", id)
	}
	return nil
}

func (d *FollowDB) ListFollowers(ctx context.Context, userID string) ([]model.Follow, error) {
	return d.list(ctx,
		`SELECT `+followColumns+` FROM follows WHERE following_id = $1 ORDER BY created_at ASC, id ASC`, userID)
}

func (d *FollowDB) ListFollowing(ctx context.Context, userID string) ([]model.Follow, error) {
	return d.list(ctx,
		`SELECT `+followColumns+` FROM follows WHERE follower_id = $1 ORDER BY created_at ASC, id ASC`, userID)
}

func (d *FollowDB) list(ctx context.Context, query string, args ...any) ([]model.Follow, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing follows: %w", err)
	}
	follows, err := pgx.CollectRows(rows, collectFollow)
	if err != nil {
		return nil, fmt.Errorf("postgres: collecting follows: %w", err)
	}
	return follows, nil
}

// =========================================================================
// LIKES
// =========================================================================

type LikeDB struct {
	pool querier
}

const likeColumns = `id, user_id, tweet_id, created_at`

func collectLike(row pgx.CollectableRow) (model.Like, error) {
	var (
		l       model.Like
		created int64
	)
	err := row.Scan(&l.ID, &l.UserID, &l.TweetID, &created)
	l.CreatedAt = fromMillis(created)
	return l, err
}

func (d *LikeDB) Create(ctx context.Context, like *model.Like) (bool, error) {
	if like.ID == "" {
		like.ID = xid.New().String()
	}
	stamp(&like.CreatedAt)

	tag, err := d.pool.Exec(ctx,
		`INSERT INTO likes (`+likeColumns+`) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, tweet_id) DO NOTHING`,
		like.ID, like.UserID, like.TweetID, toMillis(like.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("postgres: creating like %s/%s: %w", like.UserID, like.TweetID, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	existing, err := d.Get(ctx, like.UserID, like.TweetID)
	if err != nil {
		return false, err
	}
	*like = *existing
	return false, nil
}

func (d *LikeDB) Get(ctx context.Context, userID, tweetID string) (*model.Like, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT `+likeColumns+` FROM likes WHERE user_id = $1 AND tweet_id = $2`, userID, tweetID)
	if err != nil {
		return nil, fmt.Errorf("postgres: getting like %s/%s: %w", userID, tweetID, err)
	}
	l, err := pgx.CollectExactlyOneRow(rows, collectLike)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("like", userID+"/"+tweetID)
		}
		return nil, fmt.Errorf("postgres: getting like %s/%s: %w", userID, tweetID, err)
	}
	return &l, nil
}

func (d *LikeDB) Delete(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM likes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting like %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("like", id)
	}
	return nil
}

func (d *LikeDB) CountByTweet(ctx context.Context, tweetID string) (int, error) {
	var n int
	if err := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM likes WHERE tweet_id = $1`, tweetID).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: counting likes of %s: %w", tweetID, err)
	}
	return n, nil
}

func (d *LikeDB) ListByUser(ctx context.Context, userID string, q repository.PageQuery) ([]model.Like, error) {
	query, args := newestFirst(`SELECT `+likeColumns+` FROM likes`,
		[]string{"user_id = $1"}, []any{userID}, q)

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing likes of %s: %w", userID, err)
	}
	likes, err := pgx.CollectRows(rows, collectLike)
	if err != nil {
		return nil, fmt.Errorf("postgres: collecting likes: %w", err)
	}
	return likes, nil
}
