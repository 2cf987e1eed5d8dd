package content

import (
	"regexp"
	"strconv"
	"strings"
)

// PageBreakMarker is the literal sentinel authors embed in post content to
// force a manual page break. It only counts when wrapped in its own
// paragraph tag.
const PageBreakMarker = "__________PAGE_BREAK__________"

var pageBreakPattern = regexp.MustCompile(`<p[^>]*>\s*` + PageBreakMarker + `\s*</p>`)

// SplitPages splits content on every paragraph-wrapped page-break marker.
// N markers yield N+1 fragments, in document order.
func SplitPages(contentHTML string) []string {
	return pageBreakPattern.Split(contentHTML, -1)
}

// SelectPage returns the fragment for the 1-based page number and the total
// fragment count. Requests past the last page clamp to the last fragment;
// requests below 1 clamp to the first.
func SelectPage(contentHTML string, page int) (string, int) {
	fragments := SplitPages(contentHTML)
	total := len(fragments)
	if page < 1 {
		page = 1
	}
	if page > total {
		page = total
	}
	return fragments[page-1], total
}

// ParsePageParam interprets the raw page query parameter. Missing or
// non-numeric input means page 1.
func ParsePageParam(raw string) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 1
	}
	page, err := strconv.Atoi(trimmed)
	if err != nil {
		return 1
	}
	return page
}
