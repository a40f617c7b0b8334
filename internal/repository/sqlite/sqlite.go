// Package sqlite implements the repository interfaces on top of SQLite.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, so building needs a C toolchain and
// cross-compiling is painful. modernc.org/sqlite is a pure Go translation of
// SQLite with the same SQL dialect.
//
// ONE CONNECTION:
// The pool is capped at a single open connection. Every statement therefore
// runs serially against the file, which gives each repository call the
// all-or-nothing, serializable behaviour the services expect. It also means
// code in this package must never issue a query while a *sql.Rows from
// another query is still open: the second query would wait forever for the
// only connection.
//
// TIMESTAMPS are stored as INTEGER unix milliseconds. Ordering on integers is
// exact, and the same representation is used by the postgres backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/minitwit/internal/pagination"
	"github.com/sakif/minitwit/internal/repository"
)

var (
	_ repository.Store = (*DB)(nil)
	_ repository.Store = (*txStore)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx, so every repository
// runs unchanged inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB owns the connection pool and hands out the per-table repositories.
type DB struct {
	conn    *sql.DB
	users   *UserDB
	tweets  *TweetDB
	follows *FollowDB
	likes   *LikeDB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/minitwit.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers in other processes (the CLI seeding a live database,
	// for instance) proceed while this process writes.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{
		conn:    conn,
		users:   &UserDB{conn: conn},
		tweets:  &TweetDB{conn: conn},
		follows: &FollowDB{conn: conn},
		likes:   &LikeDB{conn: conn},
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Users() repository.UserRepository     { return db.users }
func (db *DB) Tweets() repository.TweetRepository   { return db.tweets }
func (db *DB) Follows() repository.FollowRepository { return db.follows }
func (db *DB) Likes() repository.LikeRepository     { return db.likes }

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// InTx runs fn inside a single SQLite transaction.
//
// The pool holds one connection and the transaction owns it until commit or
// rollback, so concurrent callers (transactional or not) wait their turn.
// fn must only use the Store it is given: going back to db from inside fn
// would wait forever for that same connection.
func (db *DB) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	if err := fn(newTxStore(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// txStore is the Store handed to InTx callbacks.
type txStore struct {
	users   *UserDB
	tweets  *TweetDB
	follows *FollowDB
	likes   *LikeDB
}

func newTxStore(tx *sql.Tx) *txStore {
	return &txStore{
		users:   &UserDB{conn: tx},
		tweets:  &TweetDB{conn: tx},
		follows: &FollowDB{conn: tx},
		likes:   &LikeDB{conn: tx},
	}
}

func (s *txStore) Users() repository.UserRepository     { return s.users }
func (s *txStore) Tweets() repository.TweetRepository   { return s.tweets }
func (s *txStore) Follows() repository.FollowRepository { return s.follows }
func (s *txStore) Likes() repository.LikeRepository     { return s.likes }

func (s *txStore) InTx(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(s)
}

// Close is a no-op; the owning DB closes the connection.
func (s *txStore) Close() error { return nil }

// migrate creates the schema. Every statement is idempotent, so it runs on
// each start.
//
// No table declares foreign keys. Tweets, follows and likes may outlive the
// rows they point at; readers drop dangling references instead.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			username      TEXT NOT NULL UNIQUE,
			name          TEXT NOT NULL DEFAULT '',
			image         TEXT NOT NULL DEFAULT '',
			bio           TEXT NOT NULL DEFAULT '',
			avatar_url    TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_users_created ON users(created_at, id);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// GitHub sign-in came after password accounts. Databases created before
	// it lack the column, so add it in place. SQLite cannot add a UNIQUE
	// column with ALTER TABLE; the unique index below takes that role.
	if err := db.addColumnIfNotExists("users", "github_id", "INTEGER"); err != nil {
		return fmt.Errorf("adding github_id to users: %w", err)
	}
	_, err = db.conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_github_id ON users(github_id);
	`)
	if err != nil {
		return fmt.Errorf("creating users github_id index: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS tweets (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tweets_created ON tweets(created_at, id);
		CREATE INDEX IF NOT EXISTS idx_tweets_user_created ON tweets(user_id, created_at, id);
	`)
	if err != nil {
		return fmt.Errorf("creating tweets table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS follows (
			id           TEXT PRIMARY KEY,
			follower_id  TEXT NOT NULL,
			following_id TEXT NOT NULL,
			created_at   INTEGER NOT NULL,
			UNIQUE (follower_id, following_id)
		);
		CREATE INDEX IF NOT EXISTS idx_follows_following ON follows(following_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating follows table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS likes (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			tweet_id   TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE (user_id, tweet_id)
		);
		CREATE INDEX IF NOT EXISTS idx_likes_tweet ON likes(tweet_id);
		CREATE INDEX IF NOT EXISTS idx_likes_user_created ON likes(user_id, created_at, id);
	`)
	if err != nil {
		return fmt.Errorf("creating likes table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, so it can run on every start.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// =========================================================================
// HELPERS SHARED BY THE REPOSITORIES
// =========================================================================

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// stamp fills in the creation time callers left unset, truncated to the
// stored precision so the in-memory value matches what a read returns.
func stamp(t *time.Time) {
	if t.IsZero() {
		*t = time.Now()
	}
	*t = fromMillis(toMillis(*t))
}

// uniqueViolation reports which of columns a failed INSERT/UPDATE on table
// collided on. ok is false when err is not a uniqueness violation.
func uniqueViolation(err error, table string, columns ...string) (column string, ok bool) {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return "", false
	}
	if se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE && se.Code() != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return "", false
	}
	msg := se.Error()
	for _, c := range columns {
		if strings.Contains(msg, table+"."+c) {
			return c, true
		}
	}
	return "", true
}

// placeholders returns "?, ?, ?" with n markers and the matching args.
func placeholders(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}

// dedupe drops empty and repeated ids, keeping first-seen order.
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

// newestFirst appends the keyset condition for q.After and the ordering and
// limit clauses to a query whose WHERE conditions are conds.
func newestFirst(base string, conds []string, args []any, q repository.PageQuery) (string, []any) {
	if q.After != nil {
		conds = append(conds, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, q.After.CreatedAt, q.After.CreatedAt, q.After.ID)
	}
	if len(conds) > 0 {
		base += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = pagination.DefaultNumItems
	}
	base += " ORDER BY created_at DESC, id DESC LIMIT ?"
	return base, append(args, limit)
}
