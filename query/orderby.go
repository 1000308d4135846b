package query

import (
	"regexp"
	"strings"
)

const sortItem = `[\w."]+(?:\s+(?:asc|desc)\b)?`

var (
	// the value list is optional so a dangling "order by" is treated as an
	// empty clause rather than a missing one
	orderByRe = regexp.MustCompile(`(?i)\s*\border\s+by\b(?:\s+(` + sortItem + `(?:\s*,\s*` + sortItem + `)*))?`)

	paginationStartRe = regexp.MustCompile(`(?i)\b(?:limit|offset)\s+\d`)
)

// findOrderBy locates the ORDER BY clause as FindStringSubmatchIndex would,
// except the value list ends ahead of the first entry that is really a
// pagination keyword. With nothing left the clause is dangling and ends at
// "by".
func findOrderBy(text string) []int {
	loc := orderByRe.FindStringSubmatchIndex(text)
	if loc == nil || loc[2] < 0 {
		return loc
	}

	values := text[loc[2]:loc[3]]
	for start := 0; ; {
		entry := values[start:]
		comma := strings.IndexByte(entry, ',')
		if comma >= 0 {
			entry = entry[:comma]
		}

		if fields := strings.Fields(entry); len(fields) > 0 && isPaginationKeyword(fields[0]) {
			if start == 0 {
				loc[1] = len(strings.TrimRight(text[:loc[2]], " \t\r\n"))
				loc[2], loc[3] = -1, -1
			} else {
				// keep the comma in the clause so the values end cleanly
				loc[1], loc[3] = loc[2]+start, loc[2]+start
			}
			return loc
		}

		if comma < 0 {
			return loc
		}
		start += comma + 1
	}
}

func isPaginationKeyword(word string) bool {
	return strings.EqualFold(word, "limit") || strings.EqualFold(word, "offset")
}

// ExtractOrderBy returns the entries of the ORDER BY clause, left to right.
func ExtractOrderBy(text string) []Sort {
	loc := findOrderBy(text)
	if loc == nil || loc[2] < 0 || loc[2] == loc[3] {
		return []Sort{}
	}

	entries := strings.Split(text[loc[2]:loc[3]], ",")
	sorts := make([]Sort, 0, len(entries))
	for _, entry := range entries {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}

		s := Sort{Column: fields[0], Direction: Asc}
		if len(fields) > 1 && strings.Contains(strings.ToLower(fields[len(fields)-1]), "desc") {
			s.Direction = Desc
		}
		sorts = append(sorts, s)
	}
	return sorts
}

// RewriteOrderBy sets the ORDER BY clause of text to sorts.
//
// An empty sorts removes the clause. An existing clause keeps its position and
// only has its value list replaced. Otherwise the clause is inserted ahead of
// the pagination fragments, or appended when there are none.
func RewriteOrderBy(text string, sorts []Sort) string {
	loc := findOrderBy(text)

	if len(sorts) == 0 {
		if loc == nil {
			return text
		}
		return text[:loc[0]] + text[loc[1]:]
	}

	values := formatSorts(sorts)

	if loc != nil {
		if loc[2] < 0 {
			// "order by" with nothing after it yet
			return text[:loc[1]] + " " + values + text[loc[1]:]
		}
		return text[:loc[2]] + values + text[loc[3]:]
	}

	clause := "order by " + values
	if at := paginationStartRe.FindStringIndex(text); at != nil {
		return insertClause(text, at[0], clause)
	}
	return appendClause(text, clause)
}

func formatSorts(sorts []Sort) string {
	parts := make([]string, len(sorts))
	for i, s := range sorts {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}
