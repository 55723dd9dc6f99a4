package storage

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	orderByRe = regexp.MustCompile(`(?i)^order\s+by\b`)
	limitRe   = regexp.MustCompile(`(?i)\b(limit|offset|fetch)\b`)
	topRe     = regexp.MustCompile(`(?i)^\s*select\s+(distinct\s+)?top\b`)
)

// SplitOrderBy separates a trailing top-level ORDER BY clause from query so
// the query can be wrapped in a derived table and ordered outside it. A
// query whose ordering feeds a row limit is returned whole.
func SplitOrderBy(query string) (base, orderBy string) {
	q := strings.TrimRight(strings.TrimSpace(query), ";")
	at := -1
	depth, inString := 0, false
	for i := 0; i < len(q); i++ {
		switch c := q[i]; {
		case c == '\'':
			inString = !inString
		case inString:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && (i == 0 || !isWordByte(q[i-1])) && orderByRe.MatchString(q[i:]):
			at = i
		}
	}
	if at < 0 || limitRe.MatchString(q[at:]) || topRe.MatchString(q) {
		return q, ""
	}
	return strings.TrimSpace(q[:at]), strings.TrimSpace(q[at:])
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// page returns the statement reading limit rows of query from offset.
func (b Backend) page(query string, offset, limit int64) string {
	base, orderBy := SplitOrderBy(query)
	return b.Page(base, orderBy, offset, limit)
}

// countQuery counts the rows of query. Ordering is dropped since some
// dialects reject it inside a derived table.
func countQuery(query string) string {
	base, _ := SplitOrderBy(query)
	return "SELECT COUNT(*) FROM (" + base + ") AS conduit_count"
}

// LimitOffsetPage is the Page function of dialects with LIMIT/OFFSET.
func LimitOffsetPage(query, orderBy string, offset, limit int64) string {
	q := "SELECT * FROM (" + query + ") AS conduit_page"
	if orderBy != "" {
		q += " " + orderBy
	}
	return q + " LIMIT " + strconv.FormatInt(limit, 10) + " OFFSET " + strconv.FormatInt(offset, 10)
}
