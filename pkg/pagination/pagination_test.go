package pagination

import (
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTripIsQuerySafe(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 5, 3, 10, 4, 5, 123456789, time.UTC), ID: uuid.New()}
	encoded := EncodeCursor(in)
	assert.Equal(t, encoded, url.QueryEscape(encoded))

	out, err := ParseCursor(encoded)
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	none, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, none)

	for _, bad := range []string{"%%%", "bm8tZG90", "eHl6LjEyMw"} {
		_, err := ParseCursor(bad)
		assert.ErrorIs(t, err, errMalformedCursor, bad)
	}
}

func TestNewTotals(t *testing.T) {
	assert.Equal(t, Totals{Total: 41, TotalPages: 5, CurrentPage: 2}, NewTotals(41, Params{Limit: 10, Page: 2}))
	assert.Equal(t, Totals{Total: 0, TotalPages: 0, CurrentPage: 1}, NewTotals(0, Params{Page: 1}))
	assert.Equal(t, Totals{Total: 25, TotalPages: 1}, NewTotals(25, Params{}))
}

func TestOffsetAndLimits(t *testing.T) {
	assert.Equal(t, 0, Params{Page: 1, Limit: 10}.Offset())
	assert.Equal(t, 20, Params{Page: 3, Limit: 10}.Offset())
	assert.Equal(t, 50, Params{Page: 3}.Offset())
	assert.False(t, Params{Cursor: "x"}.Numbered())
	assert.Equal(t, MaxLimit, NormalizeLimit(500))
	assert.Equal(t, DefaultLimit+1, LimitWithBuffer(0))
}
