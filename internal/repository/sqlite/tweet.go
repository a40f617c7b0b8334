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

var _ repository.TweetRepository = (*TweetDB)(nil)

// TweetDB is the tweets table.
type TweetDB struct {
	conn querier
}

const tweetColumns = `id, user_id, content, created_at`

func scanTweet(row rowScanner) (*model.Tweet, error) {
	var (
		t       model.Tweet
		created int64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Content, &created); err != nil {
		return nil, err
	}
	t.CreatedAt = fromMillis(created)
	return &t, nil
}

func (d *TweetDB) Create(ctx context.Context, tweet *model.Tweet) error {
	if tweet.ID == "" {
		tweet.ID = xid.New().String()
	}
	stamp(&tweet.CreatedAt)

	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO tweets (`+tweetColumns+`) VALUES (?, ?, ?, ?)`,
		tweet.ID,
		tweet.UserID,
		tweet.Content,
		toMillis(tweet.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating tweet: %w", err)
	}
	return nil
}

// GetByID returns apperror.ErrNotFound when the tweet does not exist.
func (d *TweetDB) GetByID(ctx context.Context, id string) (*model.Tweet, error) {
	t, err := scanTweet(d.conn.QueryRowContext(ctx,
		`SELECT `+tweetColumns+` FROM tweets WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("tweet", id)
		}
		return nil, fmt.Errorf("sqlite: getting tweet %s: %w", id, err)
	}
	return t, nil
}

func (d *TweetDB) GetMany(ctx context.Context, ids []string) (map[string]*model.Tweet, error) {
	ids = dedupe(ids)
	out := make(map[string]*model.Tweet, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	marks, args := placeholders(ids)
	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+tweetColumns+` FROM tweets WHERE id IN (`+marks+`)`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting %d tweets: %w", len(ids), err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTweet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning tweet row: %w", err)
		}
		out[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tweets: %w", err)
	}
	return out, nil
}

// Delete hard-deletes a tweet. Likes that reference it are left in place.
func (d *TweetDB) Delete(ctx context.Context, id string) error {
	result, err := d.conn.ExecContext(ctx, `DELETE FROM tweets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting tweet %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("tweet", id)
	}
	return nil
}

func (d *TweetDB) ListRecent(ctx context.Context, q repository.PageQuery) ([]model.Tweet, error) {
	query, args := newestFirst(`SELECT `+tweetColumns+` FROM tweets`, nil, nil, q)
	return d.list(ctx, query, args...)
}

func (d *TweetDB) ListByUser(ctx context.Context, userID string, q repository.PageQuery) ([]model.Tweet, error) {
	query, args := newestFirst(`SELECT `+tweetColumns+` FROM tweets`,
		[]string{"user_id = ?"}, []any{userID}, q)
	return d.list(ctx, query, args...)
}

func (d *TweetDB) list(ctx context.Context, query string, args ...any) ([]model.Tweet, error) {
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tweets: %w", err)
	}
	defer rows.Close()

	tweets := make([]model.Tweet, 0)
	for rows.Next() {
		t, err := scanTweet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning tweet row: %w", err)
		}
		tweets = append(tweets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tweets: %w", err)
	}
	return tweets, nil
}

func (d *TweetDB) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tweets WHERE user_id = ?`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting tweets of %s: %w", userID, err)
	}
	return n, nil
}
