package query

import (
	"regexp"
	"strconv"
	"strings"
)

// digit runs are capped at the length of the largest int64; anything that
// still overflows an int is dropped by strconv
var paginationRe = regexp.MustCompile(`(?i)\s*\b(limit|offset)\s+(\d{1,19})\b`)

// ExtractPagination collects every "limit <n>" and "offset <n>" fragment in
// text, in any order. A later fragment overrides an earlier one.
func ExtractPagination(text string) Pagination {
	var p Pagination
	for _, m := range paginationRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}

		switch strings.ToLower(m[1]) {
		case "limit":
			p.Limit = n
		case "offset":
			p.Offset = n
		}
	}
	return p
}

// String renders p as "offset <n> limit <n>", omitting zero values.
func (p Pagination) String() string {
	var parts []string
	if p.Offset != 0 {
		parts = append(parts, "offset "+strconv.Itoa(p.Offset))
	}
	if p.Limit != 0 {
		parts = append(parts, "limit "+strconv.Itoa(p.Limit))
	}
	return strings.Join(parts, " ")
}

// RewritePagination sets the LIMIT/OFFSET fragments of text to p.
//
// The rendered fragments take the place of the first existing one and any
// others are removed. With no existing fragments they are appended. A zero p
// strips pagination entirely.
func RewritePagination(text string, p Pagination) string {
	clause := p.String()

	locs := paginationRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		if clause == "" {
			return text
		}
		return appendClause(text, clause)
	}

	var sb strings.Builder
	last := 0
	for i, loc := range locs {
		sb.WriteString(text[last:loc[0]])
		if i == 0 && clause != "" {
			if loc[0] > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(clause)
		}
		last = loc[1]
	}
	sb.WriteString(text[last:])

	return sb.String()
}
