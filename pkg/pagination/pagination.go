// Package pagination pages order and notification listings either by
// opaque cursor (customer feeds) or by page number with totals (admin views).
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
	// MaxPage bounds OFFSET so a crafted page number cannot force a huge scan.
	MaxPage = 10000
)

// Params is what a listing endpoint accepted from the query string. Page is
// 1-based and zero means cursor mode.
type Params struct {
	Limit  int
	Cursor string
	Page   int
}

// Numbered reports whether the caller asked for a numbered page.
func (p Params) Numbered() bool { return p.Page > 0 }

// Offset is the row offset of a numbered page.
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * NormalizeLimit(p.Limit)
}

// Cursor points just past the last row of the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// LimitWithBuffer asks for one extra row so the query shows whether a next page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor renders the cursor URL-safe so it can go straight into ?cursor=.
func EncodeCursor(cursor Cursor) string {
	raw := strconv.FormatInt(cursor.CreatedAt.UnixNano(), 36) + "." + cursor.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

var errMalformedCursor = errors.New("malformed cursor")

// ParseCursor returns nil for an empty cursor.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedCursor, err)
	}
	stamp, id, ok := strings.Cut(string(decoded), ".")
	if !ok {
		return nil, errMalformedCursor
	}
	nanos, err := strconv.ParseInt(stamp, 36, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp", errMalformedCursor)
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: id", errMalformedCursor)
	}
	return &Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: parsedID}, nil
}

// Totals are the figures admin listings show next to a page.
type Totals struct {
	Total       int64 `json:"total"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page,omitempty"`
}

// NewTotals derives page figures from a row count. CurrentPage stays zero in
// cursor mode, where the position is the cursor itself.
func NewTotals(total int64, params Params) Totals {
	limit := int64(NormalizeLimit(params.Limit))
	return Totals{
		Total:       total,
		TotalPages:  int((total + limit - 1) / limit),
		CurrentPage: params.Page,
	}
}
