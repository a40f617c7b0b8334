package pagination

import (
	"errors"

	"github.com/gorilla/securecookie"

	"github.com/sakif/minitwit/internal/apperror"
)

// Codec turns Positions into opaque cursors and back.
//
// Cursors are HMAC-signed with securecookie. The query key (for example
// "feed" or "user_tweets:<id>") is part of the signed payload, so a cursor
// issued for one list is rejected by every other list.
type Codec struct {
	sc *securecookie.SecureCookie
}

// NewCodec creates a Codec signing with secret (at least 16 bytes).
func NewCodec(secret string) (*Codec, error) {
	if len(secret) < 16 {
		return nil, errors.New("pagination: cursor secret must be at least 16 characters")
	}

	sc := securecookie.New([]byte(secret), nil)
	sc.MaxAge(0) // cursors never expire
	sc.SetSerializer(securecookie.JSONEncoder{})

	return &Codec{sc: sc}, nil
}

// Encode signs p for the list identified by query.
func (c *Codec) Encode(query string, p Position) (string, error) {
	return c.sc.Encode(query, p)
}

// Decode verifies cursor for the list identified by query. An empty cursor
// decodes to nil, meaning "start from the newest row".
func (c *Codec) Decode(query, cursor string) (*Position, error) {
	if cursor == "" {
		return nil, nil
	}

	var p Position
	if err := c.sc.Decode(query, cursor, &p); err != nil {
		return nil, apperror.ValidationFailed("cursor", "Invalid cursor")
	}
	return &p, nil
}

// Continue builds the ContinueCursor for a page whose last raw row is at p.
// It returns "" when the list is exhausted.
func (c *Codec) Continue(query string, last *Position, hasMore bool) (string, error) {
	if last == nil || !hasMore {
		return "", nil
	}
	return c.Encode(query, *last)
}
