package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/minitwit/internal/apperror"
	"github.com/sakif/minitwit/internal/events"
	"github.com/sakif/minitwit/internal/model"
	"github.com/sakif/minitwit/internal/repository"
)

const (
	msgUsernameEmpty = "Username cannot be empty"
	msgUsernameTaken = "Username is already taken"
)

// UserService serves profile reads and edits plus user discovery.
type UserService struct {
	users   repository.UserRepository
	follows repository.FollowRepository
	pub     events.Publisher
	logger  *slog.Logger
}

func NewUserService(store repository.Store, pub events.Publisher, logger *slog.Logger) *UserService {
	return &UserService{
		users:   store.Users(),
		follows: store.Follows(),
		pub:     pub,
		logger:  logger,
	}
}

// ProfileUpdate lists the fields a user may change on their own profile.
// A nil field is left untouched.
type ProfileUpdate struct {
	Username  *string `json:"username"`
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatarUrl"`
}

// GetCurrentUser returns the signed-in user, or nil for anonymous callers
// and for tokens whose user has since been removed.
func (s *UserService) GetCurrentUser(ctx context.Context, viewerID string) (*model.User, error) {
	if viewerID == "" {
		return nil, nil
	}
	return s.GetUserByID(ctx, viewerID)
}

// GetUserByID returns nil, not an error, when no user has that id.
func (s *UserService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, nil
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/user: loading user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByUsername looks the name up in its normalised form, so " Alice "
// finds "alice".
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	username = normalizeUsername(username)
	if username == "" {
		return nil, nil
	}
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/user: loading user %q: %w", username, err)
	}
	return u, nil
}

// UpdateProfile applies the non-nil fields of upd to the viewer's profile.
//
// Every field is validated before anything is written. Setting AvatarURL
// also sets Image; setting it to "" clears both. An update that changes
// nothing returns the stored record without writing.
func (s *UserService) UpdateProfile(ctx context.Context, viewerID string, upd ProfileUpdate) (*model.User, error) {
	if viewerID == "" {
		return nil, notAuthenticated()
	}

	user, err := s.users.GetByID(ctx, viewerID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.New(apperror.ErrNotFound, msgUserNotFound)
		}
		return nil, fmt.Errorf("service/user: loading user %s: %w", viewerID, err)
	}

	next := *user

	if upd.Username != nil {
		username := normalizeUsername(*upd.Username)
		if username == "" {
			return nil, apperror.ValidationFailed("username", msgUsernameEmpty)
		}
		if username != user.Username {
			taken, err := s.users.GetByUsername(ctx, username)
			switch {
			case err == nil && taken.ID != user.ID:
				return nil, usernameTaken()
			case err != nil && !errors.Is(err, apperror.ErrNotFound):
				return nil, fmt.Errorf("service/user: checking username %q: %w", username, err)
			}
		}
		next.Username = username
	}

	if upd.Bio != nil {
		next.Bio = *upd.Bio
	}

	// Stored as sent. Sign-up trims the avatar, profile edits do not.
	if upd.AvatarURL != nil {
		next.AvatarURL = *upd.AvatarURL
		next.Image = *upd.AvatarURL
	}

	if next == *user {
		return user, nil
	}

	if err := s.users.Update(ctx, &next); err != nil {
		var appErr *apperror.AppError
		// Another request claimed the username between the check and the write.
		if errors.As(err, &appErr) && errors.Is(err, apperror.ErrConflict) && appErr.Field == "username" {
			return nil, usernameTaken()
		}
		s.logger.Error("failed to update profile",
			slog.String("userID", viewerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/user: updating user %s: %w", viewerID, err)
	}

	s.logger.Info("profile updated", slog.String("userID", viewerID))
	s.pub.Publish(events.Event{Kind: events.ProfileUpdated, ActorID: viewerID, SubjectID: viewerID})

	return &next, nil
}

func usernameTaken() *apperror.AppError {
	return &apperror.AppError{Err: apperror.ErrConflict, Message: msgUsernameTaken, Field: "username"}
}

// SearchUsers matches users whose username starts with query or whose
// display name contains it, ignoring case. It scans every user and stops at
// limit matches. A blank query matches nobody.
func (s *UserService) SearchUsers(ctx context.Context, query string, limit int) ([]model.User, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return []model.User{}, nil
	}
	limit = clampLimit(limit, DefaultUserSearchSize)

	all, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/user: listing users: %w", err)
	}

	out := make([]model.User, 0, limit)
	for _, u := range all {
		if len(out) == limit {
			break
		}
		if strings.HasPrefix(u.Username, needle) || strings.Contains(strings.ToLower(u.Name), needle) {
			out = append(out, u)
		}
	}
	return out, nil
}

// GetSuggestedUsers proposes accounts to follow. Signed-in viewers get users
// other than themselves that they do not follow yet, in storage order.
// Anonymous viewers get the most recently created users.
func (s *UserService) GetSuggestedUsers(ctx context.Context, viewerID string, limit int) ([]model.User, error) {
	limit = clampLimit(limit, DefaultSuggestedSize)

	if viewerID == "" {
		recent, err := s.users.ListRecent(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("service/user: listing recent users: %w", err)
		}
		return recent, nil
	}

	// followedSet includes the viewer, which excludes self as well.
	skip, err := followedSet(ctx, s.follows, viewerID)
	if err != nil {
		return nil, fmt.Errorf("service/user: %w", err)
	}

	all, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/user: listing users: %w", err)
	}

	out := make([]model.User, 0, limit)
	for _, u := range all {
		if len(out) == limit {
			break
		}
		if _, ok := skip[u.ID]; !ok {
			out = append(out, u)
		}
	}
	return out, nil
}
