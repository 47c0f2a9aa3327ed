package pagination

import (
	"fmt"
	"net/http"
	"strconv"

	apperrors "github.com/utafrali/shopindex/pkg/errors"
)

const (
	// DefaultSize is used when the request carries no size parameter.
	DefaultSize = 20
	// MaxSize caps the number of items returned by a single call.
	MaxSize = 100
	// MaxWindow caps offset+size so deep paging cannot scan the whole index.
	MaxWindow = 10000
)

// Params holds zero-based pagination parameters extracted from query strings.
type Params struct {
	Page   int `json:"page"`
	Size   int `json:"size"`
	Offset int `json:"-"`
}

// DefaultParams returns the first page with the default size.
func DefaultParams() Params {
	return Params{Page: 0, Size: DefaultSize}
}

// New validates page and size and computes the offset. Sizes above MaxSize
// are clamped; negative values are rejected.
func New(page, size int) (Params, error) {
	if page < 0 {
		return Params{}, apperrors.InvalidInput("page must be non-negative")
	}
	if size < 0 {
		return Params{}, apperrors.InvalidInput("size must be non-negative")
	}
	if size == 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	p := Params{Page: page, Size: size, Offset: page * size}
	if p.Offset+p.Size > MaxWindow {
		return Params{}, apperrors.InvalidInput(fmt.Sprintf("result window too large, page*size+size must not exceed %d", MaxWindow))
	}
	return p, nil
}

// FromRequest extracts the page and size query parameters from an HTTP request.
func FromRequest(r *http.Request) (Params, error) {
	page, size := 0, 0
	q := r.URL.Query()

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Params{}, apperrors.InvalidInput("page must be an integer")
		}
		page = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Params{}, apperrors.InvalidInput("size must be an integer")
		}
		size = n
	}
	return New(page, size)
}

// Result wraps a paginated response.
type Result[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	Size       int  `json:"size"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewResult creates a paginated result.
func NewResult[T any](data []T, totalCount int, params Params) Result[T] {
	size := params.Size
	if size <= 0 {
		size = DefaultSize
	}
	totalPages := totalCount / size
	if totalCount%size > 0 {
		totalPages++
	}
	if data == nil {
		data = []T{}
	}

	return Result[T]{
		Data:       data,
		TotalCount: totalCount,
		Page:       params.Page,
		Size:       size,
		TotalPages: totalPages,
		HasNext:    params.Page+1 < totalPages,
		HasPrev:    params.Page > 0,
	}
}
