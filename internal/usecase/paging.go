package usecase

const (
	defaultPageSize = 20
	maxPageSize     = 100

	defaultCursorPageSize = 20
	maxCursorPageSize     = 50
)

// pageBounds clamps page/limit to the accepted range and returns the row
// offset of the page.
func pageBounds(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit, (page - 1) * limit
}

func totalPages(total, limit int) int {
	if limit <= 0 || total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
