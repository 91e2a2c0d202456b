package products

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned when a pagination token cannot be decoded
var ErrInvalidCursor = errors.New("invalid pagination cursor")

// cursor marks the last product of a page for keyset pagination.
// Ordering is (created_at DESC, content_id DESC); the content ID breaks
// ties between products created in the same instant.
type cursor struct {
	CreatedAt time.Time
	ContentID string
}

// encodeCursor renders an opaque pagination token
func encodeCursor(c cursor) string {
	raw := fmt.Sprintf("%d:%s", c.CreatedAt.UnixNano(), c.ContentID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor parses an opaque pagination token
func decodeCursor(token string) (cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return cursor{}, ErrInvalidCursor
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return cursor{}, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return cursor{}, ErrInvalidCursor
	}
	return cursor{CreatedAt: time.Unix(0, nanos), ContentID: parts[1]}, nil
}
