// Package pagination implements cursor-based paging over newest-first lists.
//
// HOW A PAGE IS READ:
// Every paginated list is ordered by (created_at DESC, id DESC). A Position is
// the (created_at, id) pair of the last row a page returned. The next page
// starts strictly after that position, so rows inserted at the head of the
// list never shift later pages the way OFFSET paging would.
//
// Repositories are asked for one row more than the page size. If the extra
// row comes back there is more to read; it is dropped and never returned.
//
// Cursors handed to clients are opaque strings produced by Codec. They carry
// no server-side state and do not expire.
package pagination

import "time"

const (
	DefaultNumItems = 20
	MaxNumItems     = 100
)

// Position identifies a row in a newest-first ordering.
type Position struct {
	CreatedAt int64  `json:"t"` // unix milliseconds
	ID        string `json:"i"`
}

// At returns the Position of a row created at t with the given id.
func At(t time.Time, id string) Position {
	return Position{CreatedAt: t.UnixMilli(), ID: id}
}

// Request is a client's page request. An empty Cursor starts at the newest row.
type Request struct {
	NumItems int
	Cursor   string
}

// Size returns NumItems clamped to [1, MaxNumItems], defaulting when unset.
func (r Request) Size() int {
	switch {
	case r.NumItems <= 0:
		return DefaultNumItems
	case r.NumItems > MaxNumItems:
		return MaxNumItems
	default:
		return r.NumItems
	}
}

// Result is one page of a paginated list.
//
// When IsDone is false, ContinueCursor resumes right after the last row of the
// raw page that produced Page. Page may be shorter than requested, or even
// empty, when rows were filtered out after reading.
type Result[T any] struct {
	Page           []T    `json:"page"`
	IsDone         bool   `json:"isDone"`
	ContinueCursor string `json:"continueCursor"`
}

// Empty is the terminal page returned to callers that may not see the list,
// for example unauthenticated readers of a feed.
func Empty[T any]() Result[T] {
	return Result[T]{Page: []T{}, IsDone: true}
}

// Trim cuts a raw read of size+1 rows down to size and reports whether the
// list continues past it.
func Trim[T any](rows []T, size int) ([]T, bool) {
	if len(rows) > size {
		return rows[:size], true
	}
	return rows, false
}
