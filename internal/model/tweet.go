package model

import "time"

// MaxTweetLength is the upper bound on tweet content, counted in UTF-16 code
// units after trimming surrounding whitespace.
const MaxTweetLength = 300

// Tweet is a short text post. Tweets are immutable once created and are hard
// deleted by their author.
type Tweet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// TweetWithAuthor is a tweet with its author resolved at read time.
// Author is nil when the author record no longer exists.
type TweetWithAuthor struct {
	Tweet
	Author *User `json:"author"`
}

// LikedTweet is a tweet as seen from a user's likes list.
type LikedTweet struct {
	TweetWithAuthor
	LikedAt time.Time `json:"likedAt"`
}
