// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Username is the public handle. It is stored trimmed and lower-cased and is
// unique across the store, as is Email. Name is the optional display name.
//
// WHY BOTH Image AND AvatarURL?
// AvatarURL is what the user typed into their profile. Image is the picture
// the UI renders. Updating the avatar mirrors the URL into Image, and clearing
// the avatar clears Image too, so the two never disagree after an update.
//
// GitHubID is zero for accounts created with email and password. The column is
// NULL in that case so the UNIQUE index only constrains linked accounts.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Image        string    `json:"image"`
	Bio          string    `json:"bio"`
	AvatarURL    string    `json:"avatarUrl"`
	GitHubID     int64     `json:"-"`
	PasswordHash string    `json:"-"` // never serialised
	CreatedAt    time.Time `json:"createdAt"`
}

// UserWithFollowedAt is a user resolved from a follow edge, annotated with the
// time the edge was created.
type UserWithFollowedAt struct {
	User
	FollowedAt time.Time `json:"followedAt"`
}
