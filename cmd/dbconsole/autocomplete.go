package main

import (
	"strings"
	"unicode/utf8"

	"dabbertorres.dev/dbconsole/hint"
	"dabbertorres.dev/dbconsole/query"
)

type catalogSource interface {
	Catalog(schema string) (map[string][]string, error)
	ListColumns(table string) ([]string, error)
}

// catalogCache loads table names once, and a table's columns the first time
// a query that reads from it is completed.
type catalogCache struct {
	db      catalogSource
	catalog hint.Catalog
}

func (c *catalogCache) get(text string) hint.Catalog {
	if c.catalog == nil {
		catalog, err := c.db.Catalog("")
		if err != nil {
			// try again on the next completion
			return nil
		}
		c.catalog = catalog
	}

	if table, ok := query.ExtractTableName(text); ok {
		if cols, known := c.catalog[table]; known && cols == nil {
			cols, err := c.db.ListColumns(table)
			if err == nil {
				if cols == nil {
					cols = []string{}
				}
				c.catalog[table] = cols
			}
		}
	}

	return c.catalog
}

func (c *catalogCache) reset() {
	c.catalog = nil
}

// completer implements term.Terminal's AutoCompleteCallback on Tab.
//
// A single candidate is accepted outright. With several, the first Tab fills
// in their common prefix and later ones cycle through them.
type completer struct {
	engine  hint.Engine
	catalog func(text string) hint.Catalog
	cycle   *cycle
}

type cycle struct {
	hint hint.Hint
	base string // line the hint was computed for
	next int

	// what the last Tab left behind, to tell if the user kept cycling
	line string
	pos  int
}

func newCompleter(catalog func(string) hint.Catalog) *completer {
	return &completer{catalog: catalog}
}

// complete follows term.Terminal's convention: pos and the returned position
// are rune offsets into line.
func (c *completer) complete(line string, pos int, key rune) (string, int, bool) {
	if key != '\t' {
		c.cycle = nil
		return "", 0, false
	}

	caret := runeToByte(line, pos)

	if c.cycle != nil && c.cycle.line == line && c.cycle.pos == caret {
		return c.advance()
	}
	c.cycle = nil

	h := c.engine.Hint(line, caret, c.catalog(line))
	if h.Empty() {
		return "", 0, false
	}

	if len(h.Candidates) == 1 {
		newLine, newCaret := h.Apply(line, 0)
		return newLine, byteToRune(newLine, newCaret), true
	}

	typed := line[h.From:caret]
	if prefix := commonPrefix(h.Texts()); len(prefix) > len(typed) {
		newLine := line[:h.From] + prefix + line[h.To:]
		return newLine, byteToRune(newLine, h.From+len(prefix)), true
	}

	c.cycle = &cycle{
		hint: h,
		base: line,
	}
	return c.advance()
}

func (c *completer) advance() (string, int, bool) {
	cy := c.cycle

	line, caret := cy.hint.Apply(cy.base, cy.next)
	cy.next = (cy.next + 1) % len(cy.hint.Candidates)
	cy.line, cy.pos = line, caret

	return line, byteToRune(line, caret), true
}

func commonPrefix(words []string) string {
	if len(words) == 0 {
		return ""
	}

	prefix := words[0]
	for _, w := range words[1:] {
		for !strings.HasPrefix(w, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}

	// don't split a multibyte rune
	for len(prefix) > 0 && !utf8.ValidString(prefix) {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix
}

// runeToByte converts a rune offset into line to a byte offset.
func runeToByte(line string, pos int) int {
	if pos <= 0 {
		return 0
	}

	n := 0
	for i := range line {
		if n == pos {
			return i
		}
		n++
	}
	return len(line)
}

// byteToRune converts a byte offset into line to a rune offset.
func byteToRune(line string, offset int) int {
	if offset > len(line) {
		offset = len(line)
	}
	return utf8.RuneCountInString(line[:offset])
}
