package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 5, 4, 3, 2, 1, 123456789, time.UTC), ID: uuid.New()}

	got, err := ParseCursor(want.Encode())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, want.ID, got.ID)
}

func TestParseCursorRejectsForeignTokens(t *testing.T) {
	for _, token := range []string{"bad", "!!!", "bm9kb3Q", "enoudA.abc"} {
		_, err := ParseCursor(token)
		assert.ErrorIs(t, err, ErrInvalidCursor, token)
	}

	c, err := ParseCursor("  ")
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestResolve(t *testing.T) {
	w, err := Params{}.Resolve(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, w.Limit)
	assert.Nil(t, w.After)

	w, err = Params{}.Resolve(10)
	require.NoError(t, err)
	assert.Equal(t, 10, w.Limit)
	assert.Equal(t, 11, w.Fetch())

	w, err = Params{Limit: 1000}.Resolve(10)
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, w.Limit)

	_, err = Params{Cursor: "bad"}.Resolve(10)
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestCut(t *testing.T) {
	base := time.Now().UTC()
	rows := make([]Cursor, 3)
	for i := range rows {
		rows[i] = Cursor{CreatedAt: base.Add(-time.Duration(i) * time.Second), ID: uuid.New()}
	}
	position := func(c Cursor) Cursor { return c }

	page, next := Cut(rows, 2, position)
	assert.Len(t, page, 2)
	require.NotNil(t, next)
	assert.Equal(t, rows[1].ID, next.ID)

	page, next = Cut(rows, 3, position)
	assert.Len(t, page, 3)
	assert.Nil(t, next)
	assert.Equal(t, "", EncodeCursor(next))
}
