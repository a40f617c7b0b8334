package model

import "time"

// Follow is a directed edge: FollowerID follows FollowingID.
// There is at most one edge per (FollowerID, FollowingID) pair and never one
// where both ids are equal.
type Follow struct {
	ID          string    `json:"id"`
	FollowerID  string    `json:"followerId"`
	FollowingID string    `json:"followingId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Like records that UserID liked TweetID. At most one per (UserID, TweetID).
//
// Likes are not removed when their tweet is deleted; readers skip likes whose
// tweet is gone.
type Like struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TweetID   string    `json:"tweetId"`
	CreatedAt time.Time `json:"createdAt"`
}
