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

var _ repository.UserRepository = (*UserDB)(nil)

type UserDB struct {
	pool querier
}

const userColumns = `id, email, username, name, image, bio, avatar_url, password_hash, github_id, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u        model.User
		githubID *int64
		created  int64
	)
	if err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.Name, &u.Image, &u.Bio,
		&u.AvatarURL, &u.PasswordHash, &githubID, &created,
	); err != nil {
		return nil, err
	}
	if githubID != nil {
		u.GitHubID = *githubID
	}
	u.CreatedAt = fromMillis(created)
	return &u, nil
}

func collectUser(row pgx.CollectableRow) (model.User, error) {
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, err
	}
	return *u, nil
}

func nullGitHubID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func (d *UserDB) Create(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	stamp(&user.CreatedAt)

	_, err := d.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID, user.Email, user.Username, user.Name, user.Image, user.Bio,
		user.AvatarURL, user.PasswordHash, nullGitHubID(user.GitHubID), toMillis(user.CreatedAt),
	)
	if err != nil {
		if col, ok := uniqueViolation(err, "username", "email", "github_id"); ok {
			return apperror.Conflict("user", col)
		}
		return fmt.Errorf("postgres: inserting user %s: %w", user.Username, err)
	}
	return nil
}

func (d *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return d.getBy(ctx, "id", id)
}

func (d *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return d.getBy(ctx, "username", username)
}

func (d *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return d.getBy(ctx, "email", email)
}

func (d *UserDB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = $1`, githubID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", fmt.Sprintf("github:%d", githubID))
		}
		return nil, fmt.Errorf("postgres: getting user by github_id %d: %w", githubID, err)
	}
	return u, nil
}

func (d *UserDB) getBy(ctx context.Context, column, value string) (*model.User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("postgres: getting user by %s %q: %w", column, value, err)
	}
	return u, nil
}

func (d *UserDB) GetMany(ctx context.Context, ids []string) (map[string]*model.User, error) {
	ids = dedupe(ids)
	out := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := d.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: getting %d users: %w", len(ids), err)
	}
	users, err := pgx.CollectRows(rows, collectUser)
	if err != nil {
		return nil, fmt.Errorf("postgres: collecting users: %w", err)
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

func (d *UserDB) List(ctx context.Context) ([]model.User, error) {
	return d.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
}

func (d *UserDB) ListRecent(ctx context.Context, limit int) ([]model.User, error) {
	return d.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

func (d *UserDB) list(ctx context.Context, query string, args ...any) ([]model.User, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing users: %w", err)
	}
	users, err := pgx.CollectRows(rows, collectUser)
	if err != nil {
		return nil, fmt.Errorf("postgres: collecting users: %w", err)
	}
	return users, nil
}

func (d *UserDB) Update(ctx context.Context, user *model.User) error {
	tag, err := d.pool.Exec(ctx,
		`UPDATE users
		 SET email = $1, username = $2, name = $3, image = $4, bio = $5,
		     avatar_url = $6, password_hash = $7, github_id = $8
		 WHERE id = $9`,
		user.Email, user.Username, user.Name, user.Image, user.Bio,
		user.AvatarURL, user.PasswordHash, nullGitHubID(user.GitHubID), user.ID,
	)
	if err != nil {
		if col, ok := uniqueViolation(err, "username", "email", "github_id"); ok {
			return apperror.Conflict("user", col)
		}
		return fmt.Errorf("postgres: updating user %s: %w", user.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

func (d *UserDB) Delete(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
