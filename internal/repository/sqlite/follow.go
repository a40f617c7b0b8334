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

var _ repository.FollowRepository = (*FollowDB)(nil)

// FollowDB is the follows table.
type FollowDB struct {
	conn querier
}

const followColumns = `id, follower_id, following_id, created_at`

func scanFollow(row rowScanner) (*model.Follow, error) {
	var (
		f       model.Follow
		created int64
	)
	if err := row.Scan(&f.ID, &f.FollowerID, &f.FollowingID, &created); err != nil {
		return nil, err
	}
	f.CreatedAt = fromMillis(created)
	return &f, nil
}

// Create inserts the edge or, if the pair is already connected, loads the
// existing edge into follow.
//
// INSERT ... ON CONFLICT DO NOTHING turns a racing duplicate into a no-op at
// the database, so two concurrent follows of the same pair always end with
// one row and both callers see its id.
func (d *FollowDB) Create(ctx context.Context, follow *model.Follow) (bool, error) {
	if follow.ID == "" {
		follow.ID = xid.New().String()
	}
	stamp(&follow.CreatedAt)

	result, err := d.conn.ExecContext(ctx,
		`INSERT INTO follows (`+followColumns+`) VALUES (?, ?, ?, ?)
		 ON CONFLICT (follower_id, following_id) DO NOTHING`,
		follow.ID,
		follow.FollowerID,
		follow.FollowingID,
		toMillis(follow.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: creating follow %s->%s: %w", follow.FollowerID, follow.FollowingID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 1 {
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
	f, err := scanFollow(d.conn.QueryRowContext(ctx,
		`SELECT `+followColumns+` FROM follows WHERE follower_id = ? AND following_id = ?`,
		followerID, followingID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("follow", followerID+"->"+followingID)
		}
		return nil, fmt.Errorf("sqlite: getting follow %s->%s: %w", followerID, followingID, err)
	}
	return f, nil
}

func (d *FollowDB) Delete(ctx context.Context, id string) error {
	result, err := d.conn.ExecContext(ctx, `DELETE FROM follows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting follow %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("follow", id)
	}
	return nil
}

func (d *FollowDB) ListFollowers(ctx context.Context, userID string) ([]model.Follow, error) {
	return d.list(ctx,
		`SELECT `+followColumns+` FROM follows WHERE following_id = ? ORDER BY created_at ASC, id ASC`,
		userID,
	)
}

func (d *FollowDB) ListFollowing(ctx context.Context, userID string) ([]model.Follow, error) {
	return d.list(ctx,
		`SELECT `+followColumns+` FROM follows WHERE follower_id = ? ORDER BY created_at ASC, id ASC`,
		userID,
	)
}

func (d *FollowDB) list(ctx context.Context, query string, args ...any) ([]model.Follow, error) {
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing follows: %w", err)
	}
	defer rows.Close()

	follows := make([]model.Follow, 0)
	for rows.Next() {
		f, err := scanFollow(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning follow row: %w", err)
		}
		follows = append(follows, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating follows: %w", err)
	}
	return follows, nil
}
