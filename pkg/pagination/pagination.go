// Package pagination reads limit/offset query parameters and shapes list
// responses.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a window into an ordered result set.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset= (or a 1-based ?page=). Malformed or
// out-of-range values fall back to defaults rather than failing the request.
func FromContext(c echo.Context) Params {
	p := Params{Limit: clamp(atoi(c.QueryParam("limit")), DefaultLimit)}

	switch offset := atoi(c.QueryParam("offset")); {
	case offset > 0:
		p.Offset = offset
	case atoi(c.QueryParam("page")) > 1:
		p.Offset = (atoi(c.QueryParam("page")) - 1) * p.Limit
	}
	return p
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func clamp(limit, fallback int) int {
	switch {
	case limit <= 0:
		return fallback
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// HasNext reports whether rows remain past this window.
func (p Params) HasNext(total int) bool { return p.NextOffset() < total }

func (p Params) NextOffset() int { return p.Offset + p.Limit }

// Page is the JSON envelope of every list endpoint.
type Page[T any] struct {
	Data    []T  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// NewPage wraps one window of results. A nil slice is sent as [].
func NewPage[T any](items []T, total int, p Params) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Data:    items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
}
