// Package query reads and rewrites the clauses of a single SELECT statement.
//
// Nothing here parses SQL. Each clause is located with a regular expression and
// extracted or replaced as text, so every function accepts arbitrary (including
// partial or malformed) input and never fails: a missing clause simply yields a
// zero value, and a rewrite that has nothing to act on returns the text unchanged.
package query

import (
	"regexp"
	"strings"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort is a single ORDER BY entry.
type Sort struct {
	Column    string
	Direction Direction
}

func (s Sort) String() string {
	if s.Direction == Desc {
		return s.Column + " desc"
	}
	return s.Column
}

// Pagination holds the LIMIT and OFFSET values of a statement.
// A zero value means the fragment is absent.
type Pagination struct {
	Limit  int
	Offset int
}

// Params is everything the console derives from a statement's text.
type Params struct {
	Table    string // empty if no FROM target could be found
	Sortings []Sort
	Pagination
}

func BuildQueryParams(text string) Params {
	table, _ := ExtractTableName(text)
	return Params{
		Table:      table,
		Sortings:   ExtractOrderBy(text),
		Pagination: ExtractPagination(text),
	}
}

var (
	tableNameRe  = regexp.MustCompile(`(?i)\bfrom\s+([\w."]+)`)
	projectionRe = regexp.MustCompile(`(?is)\bselect\b.*?\bfrom\b`)
	trailingRe   = regexp.MustCompile(`\s*;?\s*$`)
)

// ExtractTableName returns the identifier following the first FROM keyword.
func ExtractTableName(text string) (string, bool) {
	m := tableNameRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// RewriteProjection replaces the select list with columns.
// An empty column list leaves text untouched.
func RewriteProjection(text string, columns []string) string {
	if len(columns) == 0 {
		return text
	}

	loc := projectionRe.FindStringIndex(text)
	if loc == nil {
		return text
	}

	return text[:loc[0]] + "select " + strings.Join(columns, ", ") + " from" + text[loc[1]:]
}

// appendClause adds clause to the end of the statement, keeping a trailing
// semicolon (and whatever whitespace follows it) last.
func appendClause(text, clause string) string {
	loc := trailingRe.FindStringIndex(text)
	head, tail := text[:loc[0]], text[loc[0]:]
	tail = strings.TrimLeft(tail, " \t\r\n")

	if head == "" {
		return clause + tail
	}
	return head + " " + clause + tail
}

// insertClause places clause immediately before the byte offset at, separated
// from what follows by a single space.
func insertClause(text string, at int, clause string) string {
	return text[:at] + clause + " " + text[at:]
}
