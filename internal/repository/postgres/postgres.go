// Package postgres implements the repository interfaces on PostgreSQL with
// pgx/v5 and a pgxpool connection pool.
//
// The schema mirrors the sqlite backend column for column: text ids, integer
// unix-millisecond timestamps, no foreign keys, and unique constraints on
// the username, email and GitHub id of users and on each edge pair.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/minitwit/internal/pagination"
	"github.com/sakif/minitwit/internal/repository"
)

var (
	_ repository.Store = (*DB)(nil)
	_ repository.Store = (*txStore)(nil)
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options tunes the pool. Zero values keep pgxpool's defaults.
type Options struct {
	MaxConns int32
}

// DB owns the pool and hands out the per-table repositories.
type DB struct {
	pool    *pgxpool.Pool
	users   *UserDB
	tweets  *TweetDB
	follows *FollowDB
	likes   *LikeDB
}

// New connects to dsn, verifies the connection and runs migrations.
func New(ctx context.Context, dsn string, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	cfg.ConnConfig.StatementCacheCapacity = 256

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging: %w", err)
	}

	db := &DB{
		pool:    pool,
		users:   &UserDB{pool: pool},
		tweets:  &TweetDB{pool: pool},
		follows: &FollowDB{pool: pool},
		likes:   &LikeDB{pool: pool},
	}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}
	return db, nil
}

func (db *DB) Users() repository.UserRepository     { return db.users }
func (db *DB) Tweets() repository.TweetRepository   { return db.tweets }
func (db *DB) Follows() repository.FollowRepository { return db.follows }
func (db *DB) Likes() repository.LikeRepository     { return db.likes }

// Close releases every pooled connection.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// InTx runs fn in a READ COMMITTED transaction. A concurrent insert that
// hits a unique index blocks until the other transaction finishes, then
// fails with a conflict if that one committed.
func (db *DB) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		return fn(newTxStore(tx))
	})
}

type txStore struct {
	users   *UserDB
	tweets  *TweetDB
	follows *FollowDB
	likes   *LikeDB
}

func newTxStore(tx pgx.Tx) *txStore {
	return &txStore{
		users:   &UserDB{pool: tx},
		tweets:  &TweetDB{pool: tx},
		follows: &FollowDB{pool: tx},
		likes:   &LikeDB{pool: tx},
	}
}

func (s *txStore) Users() repository.UserRepository     { return s.users }
func (s *txStore) Tweets() repository.TweetRepository   { return s.tweets }
func (s *txStore) Follows() repository.FollowRepository { return s.follows }
func (s *txStore) Likes() repository.LikeRepository     { return s.likes }

func (s *txStore) InTx(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(s)
}

func (s *txStore) Close() error { return nil }

func (db *DB) migrate(ctx context.Context) error {
	// One statement per Exec so a failure names the statement.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			username      TEXT NOT NULL UNIQUE,
			name          TEXT NOT NULL DEFAULT '',
			image         TEXT NOT NULL DEFAULT '',
			bio           TEXT NOT NULL DEFAULT '',
			avatar_url    TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			github_id     BIGINT UNIQUE,
			created_at    BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_created ON users (created_at, id)`,
		`CREATE TABLE IF NOT EXISTS tweets (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tweets_created ON tweets (created_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_tweets_user_created ON tweets (user_id, created_at, id)`,
		`CREATE TABLE IF NOT EXISTS follows (
			id           TEXT PRIMARY KEY,
			follower_id  TEXT NOT NULL,
			following_id TEXT NOT NULL,
			created_at   BIGINT NOT NULL,
			UNIQUE (follower_id, following_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_follows_following ON follows (following_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS likes (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			tweet_id   TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			UNIQUE (user_id, tweet_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_likes_tweet ON likes (tweet_id)`,
		`CREATE INDEX IF NOT EXISTS idx_likes_user_created ON likes (user_id, created_at, id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// =========================================================================
// HELPERS
// =========================================================================

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func stamp(t *time.Time) {
	if t.IsZero() {
		*t = time.Now()
	}
	*t = fromMillis(toMillis(*t))
}

// uniqueViolation reports which of columns err collided on. Postgres names
// default constraints <table>_<column>_key, so the column is found in the
// constraint name.
func uniqueViolation(err error, columns ...string) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	for _, c := range columns {
		if strings.Contains(pgErr.ConstraintName, "_"+c+"_") {
			return c, true
		}
	}
	return "", true
}

// newestFirst builds a keyset-paginated query. conds use $1..$n already;
// new placeholders continue from len(args)+1.
func newestFirst(base string, conds []string, args []any, q repository.PageQuery) (string, []any) {
	if q.After != nil {
		n := len(args)
		conds = append(conds, fmt.Sprintf("(created_at, id) < ($%d, $%d)", n+1, n+2))
		args = append(args, q.After.CreatedAt, q.After.ID)
	}
	if len(conds) > 0 {
		base += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = pagination.DefaultNumItems
	}
	args = append(args, limit)
	base += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))
	return base, args
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
