package app

import (
	"fmt"
	"regexp"
	"strings"
)

const maxTracedQueryLength = 512

var (
	queryWhitespaceRegex = regexp.MustCompile(`\s+`)
	valueRowSeparator    = regexp.MustCompile(`\)\s*,\s*\(`)
)

// formatDBQueryForTrace flattens whitespace and shortens the batched fixture
// INSERTs to their first row plus a row count before truncating.
func formatDBQueryForTrace(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	normalized := queryWhitespaceRegex.ReplaceAllString(query, " ")
	normalized = collapseValueRows(normalized)
	if len(normalized) <= maxTracedQueryLength {
		return normalized
	}

	return normalized[:maxTracedQueryLength] + "..."
}

// collapseValueRows expects a plain multi-row INSERT; anything after the
// VALUES list is dropped.
func collapseValueRows(query string) string {
	const marker = " VALUES "
	idx := strings.Index(strings.ToUpper(query), marker)
	if idx < 0 {
		return query
	}
	head, rows := query[:idx+len(marker)], query[idx+len(marker):]

	n := len(valueRowSeparator.FindAllStringIndex(rows, -1)) + 1
	if n == 1 {
		return query
	}
	end := strings.Index(rows, ")")
	if end < 0 {
		return query
	}
	return fmt.Sprintf("%s%s /* %d rows */", head, rows[:end+1], n)
}
