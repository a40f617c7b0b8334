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

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the users table.
type UserDB struct {
	conn querier
}

const userColumns = `id, email, username, name, image, bio, avatar_url, password_hash, github_id, created_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
		created  int64
	)
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.Name,
		&u.Image,
		&u.Bio,
		&u.AvatarURL,
		&u.PasswordHash,
		&githubID,
		&created,
	); err != nil {
		return nil, err
	}
	u.GitHubID = githubID.Int64
	u.CreatedAt = fromMillis(created)
	return &u, nil
}

// nullGitHubID stores unlinked accounts as NULL so the unique index only
// constrains real GitHub ids.
func nullGitHubID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// Create inserts a user. ID and CreatedAt are generated when unset.
// Returns a conflict error with Field set to "username", "email" or
// "github_id" when that value is already taken.
func (d *UserDB) Create(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	stamp(&user.CreatedAt)

	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Username,
		user.Name,
		user.Image,
		user.Bio,
		user.AvatarURL,
		user.PasswordHash,
		nullGitHubID(user.GitHubID),
		toMillis(user.CreatedAt),
	)
	if err != nil {
		if col, ok := uniqueViolation(err, "users", "username", "email", "github_id", "id"); ok {
			return apperror.Conflict("user", col)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Username, err)
	}

	return nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (d *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return d.getBy(ctx, "id", id)
}

// GetByUsername matches the stored (already normalised) username exactly.
func (d *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return d.getBy(ctx, "username", username)
}

func (d *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return d.getBy(ctx, "email", email)
}

func (d *UserDB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	u, err := scanUser(d.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprintf("github:%d", githubID))
		}
		return nil, fmt.Errorf("sqlite: getting user by github_id %d: %w", githubID, err)
	}
	return u, nil
}

// getBy looks a user up by one unique text column. column is always a
// constant from this file, never caller input.
func (d *UserDB) getBy(ctx context.Context, column, value string) (*model.User, error) {
	u, err := scanUser(d.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s %q: %w", column, value, err)
	}
	return u, nil
}

func (d *UserDB) GetMany(ctx context.Context, ids []string) (map[string]*model.User, error) {
	ids = dedupe(ids)
	out := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	marks, args := placeholders(ids)
	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id IN (`+marks+`)`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting %d users: %w", len(ids), err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		out[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return out, nil
}

func (d *UserDB) List(ctx context.Context) ([]model.User, error) {
	return d.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
}

func (d *UserDB) ListRecent(ctx context.Context, limit int) ([]model.User, error) {
	return d.list(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
}

func (d *UserDB) list(ctx context.Context, query string, args ...any) ([]model.User, error) {
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// Update writes every mutable field of user. CreatedAt and ID never change.
func (d *UserDB) Update(ctx context.Context, user *model.User) error {
	result, err := d.conn.ExecContext(ctx,
		`UPDATE users
		 SET email = ?, username = ?, name = ?, image = ?, bio = ?,
		     avatar_url = ?, password_hash = ?, github_id = ?
		 WHERE id = ?`,
		user.Email,
		user.Username,
		user.Name,
		user.Image,
		user.Bio,
		user.AvatarURL,
		user.PasswordHash,
		nullGitHubID(user.GitHubID),
		user.ID,
	)
	if err != nil {
		if col, ok := uniqueViolation(err, "users", "username", "email", "github_id"); ok {
			return apperror.Conflict("user", col)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// Delete removes the user row only. Their tweets and edges stay behind and
// are filtered out by readers.
func (d *UserDB) Delete(ctx context.Context, id string) error {
	result, err := d.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
