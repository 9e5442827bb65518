// Package pagination implements keyset paging over (created_at, id), newest first.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// ErrInvalidCursor is returned for any cursor this package did not produce.
var ErrInvalidCursor = errors.New("invalid cursor")

// Params is what a caller asks for: a page size and the opaque cursor returned
// with the previous page.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the position of the last row of a page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Window is a decoded page request. Fetch one row more than Limit so Cut can
// tell whether another page exists.
type Window struct {
	After *Cursor
	Limit int
}

func (w Window) Fetch() int {
	return w.Limit + 1
}

// Resolve decodes p. fallback replaces a missing limit before it is clamped to
// MaxLimit; a non-positive fallback means DefaultLimit.
func (p Params) Resolve(fallback int) (Window, error) {
	after, err := ParseCursor(p.Cursor)
	if err != nil {
		return Window{}, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = fallback
	}
	return Window{After: after, Limit: NormalizeLimit(limit)}, nil
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Cut trims rows fetched with Window.Fetch down to limit and returns the
// cursor for the next page, or nil when rows was the last page.
func Cut[T any](rows []T, limit int, position func(T) Cursor) ([]T, *Cursor) {
	if limit <= 0 || len(rows) <= limit {
		return rows, nil
	}
	next := position(rows[limit-1])
	return rows[:limit], &next
}

// Encode renders c as a URL-safe token: base36 unix nanos and the id.
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 36) + "." + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// EncodeCursor returns "" for a nil cursor.
func EncodeCursor(c *Cursor) string {
	if c == nil {
		return ""
	}
	return c.Encode()
}

// ParseCursor returns nil for an empty token.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanos, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 36, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: parsed}, nil
}
