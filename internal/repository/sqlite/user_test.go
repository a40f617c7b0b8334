package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/minitwit/internal/apperror"
	"github.com/sakif/minitwit/internal/model"
)

// newTestDB opens a fresh in-memory database for one test.
// The t.Cleanup hook closes it when the test (and its subtests) finish.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser creates a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	user := &model.User{
		Email:    username + "@example.com",
		Username: username,
		Name:     username,
	}
	if err := db.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// MIGRATIONS
// =========================================================================

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)

	// Running migrations a second time on the same database must not fail.
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestUserCreate(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		Email:     "alice@example.com",
		Username:  "alice",
		Name:      "Alice",
		AvatarURL: "https://example.com/a.png",
		Image:     "https://example.com/a.png",
	}
	if err := db.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if user.ID == "" {
		t.Error("Create() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Create() did not set user.CreatedAt")
	}
}

func TestUserCreate_KeepsPresetIDAndTime(t *testing.T) {
	db := newTestDB(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	user := &model.User{ID: "preset", Email: "p@example.com", Username: "p", CreatedAt: at}
	if err := db.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	found, err := db.Users().GetByID(context.Background(), "preset")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !found.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", found.CreatedAt, at)
	}
}

func TestUserCreate_Conflicts(t *testing.T) {
	tests := []struct {
		name      string
		user      *model.User
		wantField string
	}{
		{
			name:      "duplicate username",
			user:      &model.User{Email: "other@example.com", Username: "taken"},
			wantField: "username",
		},
		{
			name:      "duplicate email",
			user:      &model.User{Email: "taken@example.com", Username: "someone"},
			wantField: "email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			createTestUser(t, db, "taken")

			err := db.Users().Create(context.Background(), tt.user)
			if !errors.Is(err, apperror.ErrConflict) {
				t.Fatalf("Create() error = %v, want ErrConflict", err)
			}
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || appErr.Field != tt.wantField {
				t.Errorf("conflict field = %v, want %q", appErr, tt.wantField)
			}
		})
	}
}

func TestUserCreate_GitHubIDUniqueOnlyWhenSet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Two password accounts both have no GitHub id (NULL), which the unique index allows.
	createTestUser(t, db, "first")
	createTestUser(t, db, "second")

	linked := &model.User{Email: "gh@example.com", Username: "gh", GitHubID: 42}
	if err := db.Users().Create(ctx, linked); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	dup := &model.User{Email: "gh2@example.com", Username: "gh2", GitHubID: 42}
	if err := db.Users().Create(ctx, dup); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() error = %v, want ErrConflict", err)
	}

	found, err := db.Users().GetByGitHubID(ctx, 42)
	if err != nil {
		t.Fatalf("GetByGitHubID() error = %v", err)
	}
	if found.ID != linked.ID {
		t.Errorf("GetByGitHubID() = %q, want %q", found.ID, linked.ID)
	}
}

// =========================================================================
// LOOKUP TESTS
// =========================================================================

func TestUserLookups(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	created := createTestUser(t, db, "lookup")

	byID, err := db.Users().GetByID(ctx, created.ID)
	if err != nil || byID.Username != "lookup" {
		t.Fatalf("GetByID() = %v, %v", byID, err)
	}
	byName, err := db.Users().GetByUsername(ctx, "lookup")
	if err != nil || byName.ID != created.ID {
		t.Fatalf("GetByUsername() = %v, %v", byName, err)
	}
	byEmail, err := db.Users().GetByEmail(ctx, "lookup@example.com")
	if err != nil || byEmail.ID != created.ID {
		t.Fatalf("GetByEmail() = %v, %v", byEmail, err)
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Users().GetByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestUserGetMany_SkipsMissing(t *testing.T) {
	db := newTestDB(t)
	a := createTestUser(t, db, "a")
	b := createTestUser(t, db, "b")

	got, err := db.Users().GetMany(context.Background(), []string{a.ID, "missing", b.ID, a.ID, ""})
	if err != nil {
		t.Fatalf("GetMany() error = %v", err)
	}
	if len(got) != 2 || got[a.ID] == nil || got[b.ID] == nil {
		t.Errorf("GetMany() = %v, want exactly a and b", got)
	}

	empty, err := db.Users().GetMany(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("GetMany(nil) = %v, %v", empty, err)
	}
}

func TestUserListOrdering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, name := range []string{"old", "mid", "new"} {
		u := &model.User{
			Email:     name + "@example.com",
			Username:  name,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := db.Users().Create(ctx, u); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	all, err := db.Users().List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[0].Username != "old" || all[2].Username != "new" {
		t.Errorf("List() order = %v, want old..new", usernames(all))
	}

	recent, err := db.Users().ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(recent) != 2 || recent[0].Username != "new" || recent[1].Username != "mid" {
		t.Errorf("ListRecent() = %v, want [new mid]", usernames(recent))
	}
}

func usernames(users []model.User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.Username
	}
	return out
}

// =========================================================================
// UPDATE / DELETE TESTS
// =========================================================================

func TestUserUpdate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "before")

	user.Username = "after"
	user.Bio = "hello"
	if err := db.Users().Update(ctx, user); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	found, err := db.Users().GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Username != "after" || found.Bio != "hello" {
		t.Errorf("after Update() got username=%q bio=%q", found.Username, found.Bio)
	}
}

func TestUserUpdate_UsernameConflict(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "taken")
	user := createTestUser(t, db, "mine")

	user.Username = "taken"
	err := db.Users().Update(context.Background(), user)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Update() error = %v, want ErrConflict", err)
	}
}

func TestUserUpdate_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.Users().Update(context.Background(), &model.User{ID: "ghost", Email: "g@x", Username: "g"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestUserDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "gone")

	if err := db.Users().Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := db.Users().GetByID(ctx, user.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
	if err := db.Users().Delete(ctx, user.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}
