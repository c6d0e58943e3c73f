package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2026, 5, 4, 10, 0, 0, 123, time.FixedZone("BRT", -3*3600)), ID: uuid.New()}

	token := EncodeCursor(c)
	require.NotContains(t, token, "+")
	require.NotContains(t, token, "/")
	require.NotContains(t, token, "=")

	parsed, err := ParseCursor(token)
	require.NoError(t, err)
	require.True(t, c.CreatedAt.Equal(parsed.CreatedAt))
	require.Equal(t, c.ID, parsed.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"%%%", "bm90LWpzb24", EncodeCursor(Cursor{})} {
		_, err := ParseCursor(token)
		require.ErrorIs(t, err, ErrInvalidCursor, token)
	}

	c, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
	require.Equal(t, 7, NormalizeLimit(7))
}

func TestTrim(t *testing.T) {
	base := time.Now()
	rows := make([]Cursor, 4)
	for i := range rows {
		rows[i] = Cursor{CreatedAt: base.Add(-time.Duration(i) * time.Minute), ID: uuid.New()}
	}
	key := func(c Cursor) Cursor { return c }

	page, next := Trim(rows, 3, key)
	require.Len(t, page, 3)
	require.NotNil(t, next)
	require.Equal(t, rows[2].ID, next.ID)

	page, next = Trim(rows[:2], 3, key)
	require.Len(t, page, 2)
	require.Nil(t, next)
}
