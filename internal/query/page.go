package query

// Pagination bounds applied to every listing.
const (
	DefaultLimit = 50
	MaxLimit     = 250
)

// ClampLimit maps a requested page size into [1, MaxLimit].
func ClampLimit(limit int) int {
	return min(max(limit, 1), MaxLimit)
}

// ClampOffset maps a negative offset to zero.
func ClampOffset(offset int) int {
	return max(offset, 0)
}

// page returns items[offset:offset+limit], clamped to the slice. A zero
// limit selects DefaultLimit. The result is never nil so it encodes as a
// JSON array.
func page[T any](items []T, limit, offset int) []T {
	if limit == 0 {
		limit = DefaultLimit
	}
	limit, offset = ClampLimit(limit), ClampOffset(offset)
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}
