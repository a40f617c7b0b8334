package pagination

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/minitwit/internal/apperror"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec("test-secret-at-least-16-chars!!")
	require.NoError(t, err)
	return c
}

// =========================================================================
// REQUEST SIZE
// =========================================================================

func TestRequestSize(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero uses default", 0, DefaultNumItems},
		{"negative uses default", -3, DefaultNumItems},
		{"in range kept", 7, 7},
		{"upper bound kept", MaxNumItems, MaxNumItems},
		{"over max clamped", MaxNumItems + 1, MaxNumItems},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Request{NumItems: tt.in}.Size())
		})
	}
}

func TestTrim(t *testing.T) {
	rows, more := Trim([]int{1, 2, 3, 4}, 3)
	assert.Equal(t, []int{1, 2, 3}, rows)
	assert.True(t, more)

	rows, more = Trim([]int{1, 2}, 3)
	assert.Equal(t, []int{1, 2}, rows)
	assert.False(t, more)
}

func TestEmpty(t *testing.T) {
	r := Empty[string]()
	assert.NotNil(t, r.Page)
	assert.Empty(t, r.Page)
	assert.True(t, r.IsDone)
	assert.Equal(t, "", r.ContinueCursor)
}

// =========================================================================
// CODEC
// =========================================================================

func TestNewCodec_ShortSecret(t *testing.T) {
	_, err := NewCodec("short")
	assert.Error(t, err)
}

func TestCodec_RoundTrip(t *testing.T) {
	c := newTestCodec(t)
	at := time.UnixMilli(1_700_000_000_123)
	p := At(at, "cv37rs3pp9olc6atsptg")

	cursor, err := c.Encode("feed", p)
	require.NoError(t, err)
	assert.NotEmpty(t, cursor)

	got, err := c.Decode("feed", cursor)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p, *got)
}

func TestCodec_EmptyCursorStartsAtHead(t *testing.T) {
	c := newTestCodec(t)

	got, err := c.Decode("feed", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCodec_CursorBoundToQuery(t *testing.T) {
	c := newTestCodec(t)

	cursor, err := c.Encode("user_tweets:alice", Position{CreatedAt: 1, ID: "x"})
	require.NoError(t, err)

	_, err = c.Decode("user_tweets:bob", cursor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestCodec_RejectsTamperedCursor(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.Decode("feed", "not-a-real-cursor")
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestCodec_RejectsOtherSecret(t *testing.T) {
	a := newTestCodec(t)
	b, err := NewCodec("a-completely-different-secret")
	require.NoError(t, err)

	cursor, err := a.Encode("feed", Position{CreatedAt: 1, ID: "x"})
	require.NoError(t, err)

	_, err = b.Decode("feed", cursor)
	assert.Error(t, err)
}

func TestCodec_Continue(t *testing.T) {
	c := newTestCodec(t)
	p := &Position{CreatedAt: 42, ID: "abc"}

	done, err := c.Continue("feed", p, false)
	require.NoError(t, err)
	assert.Equal(t, "", done)

	none, err := c.Continue("feed", nil, true)
	require.NoError(t, err)
	assert.Equal(t, "", none)

	next, err := c.Continue("feed", p, true)
	require.NoError(t, err)
	got, err := c.Decode("feed", next)
	require.NoError(t, err)
	assert.Equal(t, *p, *got)
}
