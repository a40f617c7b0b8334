package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/minitwit/internal/apperror"
	"github.com/sakif/minitwit/internal/model"
	"github.com/sakif/minitwit/internal/repository"
)

var _ repository.LikeRepository = (*LikeDB)(nil)

// LikeDB is the likes table.
type LikeDB struct {
	conn querier
}

const likeColumns = `id, user_id, tweet_id, created_at`

func scanLike(row rowScanner) (*model.Like, error) {
	var (
		l       model.Like
		created int64
	)
	if err := row.Scan(&l.ID, &l.UserID, &l.TweetID, &created); err != nil {
		return nil, err
	}
	l.CreatedAt = fromMillis(created)
	return &l, nil
}

// Create follows the same insert-or-load-existing pattern as FollowDB.Create.
func (d *LikeDB) Create(ctx context.Context, like *model.Like) (bool, error) {
	if like.ID == "" {
		like.ID = xid.New().String()
	}
	stamp(&like.CreatedAt)

	result, err := d.conn.ExecContext(ctx,
		`INSERT INTO likes (`+likeColumns+`) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, tweet_id) DO NOTHING`,
		like.ID,
		like.UserID,
		like.TweetID,
		toMillis(like.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: creating like %s/%s: %w", like.UserID, like.TweetID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 1 {
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
	l, err := scanLike(d.conn.QueryRowContext(ctx,
		`SELECT `+likeColumns+` FROM likes WHERE user_id = ? AND tweet_id = ?`,
		userID, tweetID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("like", userID+"/"+tweetID)
		}
		return nil, fmt.Errorf("sqlite: getting like %s/%s: %w", userID, tweetID, err)
	}
	return l, nil
}

func (d *LikeDB) Delete(ctx context.Context, id string) error {
	result, err := d.conn.ExecContext(ctx, `DELETE FROM likes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting like %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("like", id)
	}
	return nil
}

func (d *LikeDB) CountByTweet(ctx context.Context, tweetID string) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM likes WHERE tweet_id = ?`, tweetID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting likes of %s: %w", tweetID, err)
	}
	return n, nil
}

func (d *LikeDB) ListByUser(ctx context.Context, userID string, q repository.PageQuery) ([]model.Like, error) {
	query, args := newestFirst(`SELECT `+likeColumns+` FROM likes`,
		[]string{"user_id = ?"}, []any{userID}, q)

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing likes of %s: %w", userID, err)
	}
	defer rows.Close()

	likes := make([]model.Like, 0)
	for rows.Next() {
		l, err := scanLike(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning like row: %w", err)
		}
		likes = append(likes, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating likes: %w", err)
	}
	return likes, nil
}
