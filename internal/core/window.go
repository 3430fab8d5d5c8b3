package core

// Pagination bounds for row windows.
const (
	DefaultPageLimit = 200
	MaxPageLimit     = 2000
)

// RowWindow is one page of a normalized table.
type RowWindow struct {
	Columns   []string        `json:"columns"`
	TotalRows int             `json:"total_rows"`
	Offset    int             `json:"offset"`
	Limit     int             `json:"limit"`
	Rows      []NormalizedRow `json:"rows"`
}

// ClampLimit forces a requested page size into [1, MaxPageLimit].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

// ClampOffset forces a requested offset to be non-negative.
func ClampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// Window returns rows [offset, offset+limit) clamped to the table bounds.
// An offset past the end yields an empty, non-nil row list.
func Window(rows []NormalizedRow, offset, limit int) RowWindow {
	offset = ClampOffset(offset)
	limit = ClampLimit(limit)

	start := offset
	if start > len(rows) {
		start = len(rows)
	}
	end := start + limit
	if end > len(rows) {
		end = len(rows)
	}

	page := make([]NormalizedRow, end-start)
	copy(page, rows[start:end])

	return RowWindow{
		Columns:   Columns(),
		TotalRows: len(rows),
		Offset:    offset,
		Limit:     limit,
		Rows:      page,
	}
}
