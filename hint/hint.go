// Package hint proposes table and column completions for a SELECT statement
// being edited, based on where the caret sits in it.
package hint

import (
	"sort"
	"strings"

	"dabbertorres.dev/dbconsole/query"
)

// Catalog maps table names to their known columns.
// A table whose columns haven't been loaded maps to nil.
type Catalog map[string][]string

// Tables returns the catalog's table names, sorted.
func (c Catalog) Tables() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Candidate is a single completion. Prefix is the length of the text the user
// has already typed, which is only used for display.
type Candidate struct {
	Text   string
	Prefix int
}

// Display renders the candidate with its typed prefix bracketed, e.g. "[ord]ers".
func (c Candidate) Display() string {
	if c.Prefix <= 0 || c.Prefix > len(c.Text) {
		return c.Text
	}
	return "[" + c.Text[:c.Prefix] + "]" + c.Text[c.Prefix:]
}

// Hint is a batch of candidates and the byte range [From, To) of the line that
// accepting one of them replaces. From == To is a pure insertion.
type Hint struct {
	Candidates []Candidate
	From       int
	To         int
}

func (h Hint) Empty() bool {
	return len(h.Candidates) == 0
}

func (h Hint) Texts() []string {
	texts := make([]string, len(h.Candidates))
	for i, c := range h.Candidates {
		texts[i] = c.Text
	}
	return texts
}

// Apply returns line with the i'th candidate accepted, and the caret offset
// just past it.
func (h Hint) Apply(line string, i int) (string, int) {
	if i < 0 || i >= len(h.Candidates) || h.From < 0 || h.To > len(line) || h.From > h.To {
		return line, h.To
	}
	text := h.Candidates[i].Text
	return line[:h.From] + text + line[h.To:], h.From + len(text)
}

// Engine computes hints using its Tokenizer. The zero value uses Lexer.
type Engine struct {
	Tokenizer Tokenizer
}

// GetHint is Engine{}.Hint.
func GetHint(text string, caret int, catalog Catalog) Hint {
	return Engine{}.Hint(text, caret, catalog)
}

// Hint returns the completions that apply at caret, a byte offset into the
// first line of text. It never fails; anything it can't make sense of,
// including a failing tokenizer, results in an empty Hint.
func (e Engine) Hint(text string, caret int, catalog Catalog) Hint {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if caret <= 0 || caret > len(line) {
		return Hint{}
	}

	tokenizer := e.Tokenizer
	if tokenizer == nil {
		tokenizer = Lexer{}
	}

	s := &state{
		text:    text,
		line:    line,
		caret:   caret,
		catalog: catalog,
	}

	branches := []func() (Hint, bool){
		func() (Hint, bool) { return Hint{}, !s.tokenize(tokenizer) },
		s.tablesAfterFrom,
		s.tablesByPrefix,
		s.orderByColumns,
		s.whereColumns,
		s.selectColumns,
	}
	for _, branch := range branches {
		if h, matched := attempt(branch); matched {
			if h.Empty() {
				return Hint{}
			}
			return h
		}
	}
	return Hint{}
}

// attempt runs branch, turning a panic into a matched empty hint.
func attempt(branch func() (Hint, bool)) (h Hint, matched bool) {
	defer func() {
		if r := recover(); r != nil {
			h, matched = Hint{}, true
		}
	}()
	return branch()
}

type clause int

const (
	clauseNone clause = iota
	clauseSelect
	clauseFrom
	clauseWhere
	clauseOrderBy
	clauseOther
)

type state struct {
	text    string
	line    string
	caret   int
	catalog Catalog

	tokens []Token
	cur    int // index of the token the caret is in or just after
}

func (s *state) tokenize(t Tokenizer) bool {
	tokens, err := t.Tokenize(s.line)
	if err != nil {
		return false
	}
	s.tokens = tokens

	s.cur = -1
	for i, tok := range tokens {
		if tok.Start < s.caret && s.caret <= tok.End {
			s.cur = i
			break
		}
	}
	return s.cur >= 0
}

func (s *state) current() Token {
	return s.tokens[s.cur]
}

// previous returns the token before the caret's token, skipping whitespace.
func (s *state) previous() (Token, bool) {
	i := skipWhitespaceBackward(s.tokens, s.cur)
	if i < 0 {
		return Token{}, false
	}
	return s.tokens[i], true
}

// skipWhitespaceBackward returns the index of the token preceding i, stepping
// over one whitespace token. It returns -1 if there is none.
func skipWhitespaceBackward(tokens []Token, i int) int {
	return stepBack(tokens, i, true)
}

func stepBack(tokens []Token, i int, recurse bool) int {
	i--
	if i < 0 || i >= len(tokens) {
		return -1
	}
	if recurse && tokens[i].Kind == Whitespace {
		return stepBack(tokens, i, false)
	}
	return i
}

// clause returns the clause the caret's token belongs to, judged by the last
// clause keyword before it.
func (s *state) clause() clause {
	c := clauseNone
	for i := 0; i < s.cur; i++ {
		tok := s.tokens[i]
		if tok.Kind != Keyword {
			continue
		}

		switch strings.ToLower(tok.Text) {
		case "select":
			c = clauseSelect
		case "from":
			c = clauseFrom
		case "where":
			c = clauseWhere
		case "by":
			if j := skipWhitespaceBackward(s.tokens, i); j >= 0 && s.tokens[j].is("order") {
				c = clauseOrderBy
			} else {
				c = clauseOther
			}
		case "group", "having", "limit", "offset":
			c = clauseOther
		}
	}
	return c
}

// tablesAfterFrom offers every table when the caret ends the whitespace after "from".
func (s *state) tablesAfterFrom() (Hint, bool) {
	cur := s.current()
	if cur.Kind != Whitespace || s.caret != cur.End {
		return Hint{}, false
	}

	prev, ok := s.previous()
	if !ok || !prev.is("from") {
		return Hint{}, false
	}

	return Hint{
		Candidates: candidates(s.catalog.Tables(), ""),
		From:       s.caret,
		To:         s.caret,
	}, true
}

// tablesByPrefix offers the tables starting with the word typed after "from".
func (s *state) tablesByPrefix() (Hint, bool) {
	cur := s.current()
	if !cur.isWord() {
		return Hint{}, false
	}

	prev, ok := s.previous()
	if !ok || !prev.is("from") {
		return Hint{}, false
	}

	prefix := s.line[cur.Start:s.caret]
	matches := candidates(s.catalog.Tables(), prefix)
	if len(matches) == 1 && matches[0].Text == prefix {
		// nothing left to complete
		return Hint{}, true
	}

	return Hint{
		Candidates: matches,
		From:       cur.Start,
		To:         cur.End,
	}, true
}

func (s *state) orderByColumns() (Hint, bool) {
	if s.clause() != clauseOrderBy {
		return Hint{}, false
	}
	return s.columns(func(t Token) bool {
		return t.Text == "," || t.is("by")
	}), true
}

func (s *state) whereColumns() (Hint, bool) {
	if s.clause() != clauseWhere {
		return Hint{}, false
	}
	return s.columns(func(t Token) bool {
		return t.is("or") || t.is("and") || t.is("not") || t.is("where") || strings.HasSuffix(t.Text, "(")
	}), true
}

func (s *state) selectColumns() (Hint, bool) {
	if s.clause() != clauseSelect {
		return Hint{}, false
	}
	return s.columns(func(t Token) bool {
		return t.Text == "," || t.is("select")
	}), true
}

// columns offers the active table's columns if the token before the caret
// passes guard: all of them when the caret is in whitespace, or those
// matching the partially typed word the caret is in.
func (s *state) columns(guard func(Token) bool) Hint {
	table, ok := query.ExtractTableName(s.text)
	if !ok {
		return Hint{}
	}
	cols := s.catalog[table]
	if len(cols) == 0 {
		return Hint{}
	}

	prev, ok := s.previous()
	if !ok || !guard(prev) {
		return Hint{}
	}

	cur := s.current()
	switch {
	case cur.Kind == Whitespace:
		return Hint{
			Candidates: candidates(cols, ""),
			From:       s.caret,
			To:         s.caret,
		}

	case cur.isWord():
		return Hint{
			Candidates: candidates(cols, s.line[cur.Start:s.caret]),
			From:       cur.Start,
			To:         cur.End,
		}

	default:
		return Hint{}
	}
}

// candidates returns the names starting with prefix, in order.
func candidates(names []string, prefix string) []Candidate {
	var out []Candidate
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			out = append(out, Candidate{Text: name, Prefix: len(prefix)})
		}
	}
	return out
}
