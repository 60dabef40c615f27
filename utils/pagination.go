package utils

import "strconv"

// Page is an offset/limit window derived from ?page= and the configured page size.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads a 1-based page number; invalid or missing values select the first page.
func ParsePage(pageStr string, size int) Page {
	page := 1
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if size <= 0 {
		size = 25
	}
	return Page{Number: page, Size: size}
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Meta describes the page relative to total, including neighbouring page numbers (0 when absent).
func (p Page) Meta(total int64) map[string]interface{} {
	totalPages := int((total + int64(p.Size) - 1) / int64(p.Size))
	next, prev := 0, 0
	if p.Number < totalPages {
		next = p.Number + 1
	}
	if p.Number > 1 {
		prev = p.Number - 1
	}
	return map[string]interface{}{
		"page":        p.Number,
		"page_size":   p.Size,
		"total":       total,
		"total_pages": totalPages,
		"next_page":   next,
		"prev_page":   prev,
	}
}
