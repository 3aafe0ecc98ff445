package shared

// Filter represents query paging options for read paths
type Filter struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
}

// DefaultFilter returns a filter with default values
func DefaultFilter() Filter {
	return Filter{
		Page:     1,
		PageSize: 50,
		OrderDir: "asc",
	}
}

// Normalized returns a copy with out-of-range values replaced by defaults
func (f Filter) Normalized() Filter {
	d := DefaultFilter()
	if f.Page < 1 {
		f.Page = d.Page
	}
	if f.PageSize < 1 || f.PageSize > 1000 {
		f.PageSize = d.PageSize
	}
	if f.OrderDir != "asc" && f.OrderDir != "desc" {
		f.OrderDir = d.OrderDir
	}
	return f
}

// Offset returns the row offset of the page
func (f Filter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Paginated represents a paginated result
type Paginated[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginated creates a new paginated result
func NewPaginated[T any](items []T, total int64, page, pageSize int) Paginated[T] {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int(total) / pageSize
		if int(total)%pageSize > 0 {
			totalPages++
		}
	}
	return Paginated[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
