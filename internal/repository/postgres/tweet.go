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

var _ repository.TweetRepository = (*TweetDB)(nil)

type TweetDB struct {
	pool querier
}

const tweetColumns = `id, user_id, content, created_at`

func collectTweet(row pgx.CollectableRow) (model.Tweet, error) {
	var (
		t       model.Tweet
		created int64
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Content, &created)
	t.CreatedAt = fromMillis(created)
	return t, err
}

func (d *TweetDB) Create(ctx context.Context, tweet *model.Tweet) error {
	if tweet.ID == "" {
		tweet.ID = xid.New().String()
	}
	stamp(&tweet.CreatedAt)

	_, err := d.pool.Exec(ctx,
		`INSERT INTO tweets (`+tweetColumns+`) VALUES ($1, $2, $3, $4)`,
		tweet.ID, tweet.UserID, tweet.Content, toMillis(tweet.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: creating tweet: %w", err)
	}
	return nil
}

func (d *TweetDB) GetByID(ctx context.Context, id string) (*model.Tweet, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+tweetColumns+` FROM tweets WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: getting tweet %s: %w", id, err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, collectTweet)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("tweet", id)
		}
		return nil, fmt.Errorf("postgres: getting tweet %s: %w", id, err)
	}
	return &t, nil
}

func (d *TweetDB) GetMany(ctx context.Context, ids []string) (map[string]*model.Tweet, error) {
	ids = dedupe(ids)
	out := make(map[string]*model.Tweet, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := d.pool.Query(ctx, `SELECT `+tweetColumns+` FROM tweets WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: getting %d tweets: %w", len(ids), err)
	}
	tweets, err := pgx.CollectRows(rows, collectTweet)
	if err != nil {
		return nil, fmt.Errorf("postgres: collecting tweets: %w", err)
	}
	for i := range tweets {
		out[tweets[i].ID] = &tweets[i]
	}
	return out, nil
}

func (d *TweetDB) Delete(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM tweets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting tweet %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
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
		[]string{"user_id = $1"}, []any{userID}, q)
	return d.list(ctx, query, args...)
}

func (d *TweetDB) list(ctx context.Context, query string, args ...any) ([]model.Tweet, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing tweets: %w", err)
	}
	tweets, err := pgx.CollectRows(rows, collectTweet)
	if err != nil {
		return nil, fmt.Errorf("postgres: collecting tweets: %w", err)
	}
	return tweets, nil
}

func (d *TweetDB) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tweets WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: counting tweets of %s: %w", userID, err)
	}
	return n, nil
}
