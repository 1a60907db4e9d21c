package core

import (
	"fmt"

	"github.com/mnemos-ai/mnemos/internal/domain"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageMeta is the pagination block attached to list responses.
type PageMeta struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	TotalCount  int  `json:"total_count"`
	TotalPages  int  `json:"total_pages"`
	HasMore     bool `json:"has_more"`
	HasPrevious bool `json:"has_previous"`
}

// ValidatePagination normalizes page (default 1) and pageSize (default
// DefaultPageSize, capped at MaxPageSize). Zero means "use default".
func ValidatePagination(page, pageSize int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		return 0, 0, fmt.Errorf("%w: page must be >= 1, got %d", domain.ErrInvalidArgument, page)
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return 0, 0, fmt.Errorf("%w: page_size must be in [1,%d], got %d", domain.ErrInvalidArgument, MaxPageSize, pageSize)
	}
	return page, pageSize, nil
}

// Paginate slices one page out of items and builds its metadata.
func Paginate[T any](items []T, page, pageSize int) ([]T, PageMeta) {
	total := len(items)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	totalPages := (total + pageSize - 1) / pageSize
	return items[start:end], PageMeta{
		Page:        page,
		PageSize:    pageSize,
		TotalCount:  total,
		TotalPages:  totalPages,
		HasMore:     page < totalPages,
		HasPrevious: page > 1,
	}
}
