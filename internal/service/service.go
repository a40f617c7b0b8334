// Package service contains the business rules of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes storage
//
// Services never see HTTP. Every operation takes the caller's user id
// explicitly as viewerID; an empty viewerID means the caller is not signed
// in. Handlers read it from the request context and pass it down, which
// keeps the rules testable with plain function calls.
//
// ERRORS:
// Rule violations are returned as *apperror.AppError values whose Message
// is the exact label clients display ("Tweet not found", "Not authenticated",
// ...). Every check runs before the first write, so a rejected call never
// leaves a partial change behind. Storage failures are wrapped with a
// "service/<area>:" prefix and logged at the point they are caught.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sakif/minitwit/internal/apperror"
	"github.com/sakif/minitwit/internal/model"
	"github.com/sakif/minitwit/internal/repository"
)

// List sizes.
const (
	DefaultListLimit      = 50  // getUserTweets, getFeed, getLikedTweets
	MaxListLimit          = 200 // upper bound accepted for any "limit" argument
	SearchScanLimit       = 200 // newest tweets examined by a search
	SearchResultLimit     = 50  // matches returned by a search
	DefaultUserSearchSize = 10
	DefaultSuggestedSize  = 5
)

// Error labels shared by several services.
const (
	msgNotAuthenticated = "Not authenticated"
	msgUserNotFound     = "User not found"
	msgTweetNotFound    = "Tweet not found"
)

func notAuthenticated() *apperror.AppError {
	return apperror.Unauthenticated(msgNotAuthenticated)
}

// normalizeUsername is the canonical form usernames are stored and looked
// up in: surrounding whitespace removed, lower case.
func normalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// clampLimit applies the default for non-positive limits and caps the rest.
func clampLimit(limit, def int) int {
	switch {
	case limit <= 0:
		return def
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// withAuthors resolves the author of each tweet with one batched read.
// Tweets whose author is gone keep a nil Author.
func withAuthors(ctx context.Context, users repository.UserRepository, tweets []model.Tweet) ([]model.TweetWithAuthor, error) {
	ids := make([]string, len(tweets))
	for i, t := range tweets {
		ids[i] = t.UserID
	}
	authors, err := users.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving authors: %w", err)
	}

	out := make([]model.TweetWithAuthor, len(tweets))
	for i, t := range tweets {
		out[i] = model.TweetWithAuthor{Tweet: t, Author: authors[t.UserID]}
	}
	return out, nil
}

// followedSet returns the ids whose tweets belong in viewerID's feed: the
// viewer and everyone they follow.
func followedSet(ctx context.Context, follows repository.FollowRepository, viewerID string) (map[string]struct{}, error) {
	edges, err := follows.ListFollowing(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("listing followed users: %w", err)
	}
	set := make(map[string]struct{}, len(edges)+1)
	set[viewerID] = struct{}{}
	for _, e := range edges {
		set[e.FollowingID] = struct{}{}
	}
	return set, nil
}
