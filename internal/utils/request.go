package utils

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaginationQuery represents standard pagination query parameters
type PaginationQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

// GetPagination extracts page and limit from the query string with defaults
// Default: Page 1, Limit 10
func GetPagination(c *gin.Context) (page, limit int) {
	pageStr := c.DefaultQuery("page", "1")
	limitStr := c.DefaultQuery("limit", "10")

	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		page = 1
	}

	limit, err = strconv.Atoi(limitStr)
	if err != nil || limit < 1 {
		limit = 10
	}

	// Max limit cap (optional, safe default)
	if limit > 100 {
		limit = 100
	}

	return page, limit
}

// GetOffset calculates the database offset based on page and limit
func GetOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

// Cursor is the opaque pagination token used by keyset-paginated list
// endpoints (token transaction history, generation timeline). Encoding it
// as base64 JSON keeps it opaque to clients while remaining trivial to
// decode server-side.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"i"`
}

// EncodeCursor serializes a Cursor into the opaque string returned to
// clients as nextCursor.
func EncodeCursor(createdAt time.Time, id uuid.UUID) string {
	data, _ := json.Marshal(Cursor{CreatedAt: createdAt, ID: id})
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses a cursor string previously returned by EncodeCursor.
// An empty string decodes to the zero Cursor, representing "from the
// start".
func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, err
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, err
	}
	return c, nil
}

// GetCursorLimit extracts a keyset page size from the query string, capped
// the same way GetPagination caps offset-based limits.
func GetCursorLimit(c *gin.Context) int {
	limitStr := c.DefaultQuery("limit", "20")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return limit
}
