package hint

import "strings"

// Kind classifies a Token.
type Kind int

const (
	Whitespace Kind = iota
	Keyword
	Identifier
	Number
	String
	Punct    // ( ) , ; .
	Operator // = < > + - * / ...
)

var kindNames = map[Kind]string{
	Whitespace: "whitespace",
	Keyword:    "keyword",
	Identifier: "identifier",
	Number:     "number",
	String:     "string",
	Punct:      "punct",
	Operator:   "operator",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Token is a span of a single line of query text.
// Start and End are byte offsets, End exclusive.
type Token struct {
	Text  string
	Start int
	End   int
	Kind  Kind
}

// is reports whether t is the keyword kw, ignoring case.
func (t Token) is(kw string) bool {
	return t.Kind == Keyword && strings.EqualFold(t.Text, kw)
}

func (t Token) isWord() bool {
	return t.Kind == Identifier || t.Kind == Keyword
}

// Tokenizer splits one line of query text into contiguous tokens covering the
// whole line, whitespace included.
type Tokenizer interface {
	Tokenize(line string) ([]Token, error)
}

// TokenizerFunc adapts a function to the Tokenizer interface.
type TokenizerFunc func(line string) ([]Token, error)

func (f TokenizerFunc) Tokenize(line string) ([]Token, error) {
	return f(line)
}
