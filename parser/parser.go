package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-selectors/models"
)

// ParseSelectors splits raw multi-line input into selectors on any line
// break. Lines are trimmed, blank lines dropped, order and duplicates
// kept. Selector syntax is not checked.
func ParseSelectors(text string) []string {
	lines := strings.FieldsFunc(text, isLineBreak)
	selectors := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		selectors = append(selectors, line)
	}
	return selectors
}

// isLineBreak covers \n, \r, \v, \f, the ASCII separators 0x1c-0x1e, NEL
// and the Unicode line and paragraph separators.
func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

// FormatMatches renders matched nodes as a bracketed, comma separated list.
func FormatMatches(matches []string) string {
	return "[" + strings.Join(matches, ", ") + "]"
}

// ResultLine formats one output line for a selector result.
func ResultLine(r models.SelectorResult) string {
	return fmt.Sprintf("Selected Data for '%s': %s", r.Selector, FormatMatches(r.Matches))
}

// SelectionSummary is the log line confirming a new selector list.
func SelectionSummary(selectors []string) string {
	return "Selected Elements: " + strings.Join(selectors, ", ")
}

// StatusLine is the log line for a non-200 response.
func StatusLine(code int) string {
	return fmt.Sprintf("Error: %d", code)
}
