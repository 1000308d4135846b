package hint

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var keywords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "order": {}, "by": {}, "group": {},
	"having": {}, "limit": {}, "offset": {}, "asc": {}, "desc": {}, "and": {},
	"or": {}, "not": {}, "in": {}, "is": {}, "null": {}, "like": {}, "ilike": {},
	"between": {}, "as": {}, "on": {}, "join": {}, "distinct": {}, "true": {},
	"false": {}, "case": {}, "when": {}, "then": {}, "else": {}, "end": {},
	"exists": {}, "all": {}, "any": {},
}

// Lexer is the default Tokenizer. It never fails: anything it doesn't
// recognize becomes a single-rune Operator token.
type Lexer struct{}

func (Lexer) Tokenize(line string) ([]Token, error) {
	var (
		tokens []Token
		pos    int
	)

	for pos < len(line) {
		r, width := utf8.DecodeRuneInString(line[pos:])
		start := pos

		var kind Kind
		switch {
		case unicode.IsSpace(r):
			pos = scanWhile(line, pos, unicode.IsSpace)
			kind = Whitespace

		case isIdentStart(r):
			pos = scanWhile(line, pos, isIdentPart)
			kind = Identifier
			if _, ok := keywords[strings.ToLower(line[start:pos])]; ok {
				kind = Keyword
			}

		case r == '"':
			pos = scanQuoted(line, pos, '"')
			kind = Identifier

		case r == '\'':
			pos = scanQuoted(line, pos, '\'')
			kind = String

		case unicode.IsDigit(r):
			pos = scanWhile(line, pos, func(r rune) bool { return unicode.IsDigit(r) || r == '.' })
			kind = Number

		case strings.ContainsRune("(),;.", r):
			pos += width
			kind = Punct

		default:
			pos += width
			kind = Operator
		}

		tokens = append(tokens, Token{
			Text:  line[start:pos],
			Start: start,
			End:   pos,
			Kind:  kind,
		})
	}

	return tokens, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

// dots are part of an identifier so schema-qualified names stay one token
func isIdentPart(r rune) bool {
	return r == '_' || r == '$' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func scanWhile(s string, pos int, pred func(rune) bool) int {
	for pos < len(s) {
		r, width := utf8.DecodeRuneInString(s[pos:])
		if !pred(r) {
			break
		}
		pos += width
	}
	return pos
}

// scanQuoted returns the offset just past the closing quote, or the end of s
// for an unterminated literal. A doubled quote is an escaped quote.
func scanQuoted(s string, pos int, quote byte) int {
	pos++
	for pos < len(s) {
		if s[pos] == quote {
			if pos+1 < len(s) && s[pos+1] == quote {
				pos += 2
				continue
			}
			return pos + 1
		}
		pos++
	}
	return pos
}
