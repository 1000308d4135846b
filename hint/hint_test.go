package hint

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var testCatalog = Catalog{
	"orders":    {"id", "total", "created_at"},
	"users":     {"id", "name", "email"},
	"order_log": nil,
}

func Test_GetHint(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		caret   int // -1 for end of text
		catalog Catalog
		expect  Hint
	}{
		{
			name:    "all tables after from",
			text:    "select * from ",
			caret:   -1,
			catalog: Catalog{"orders": {"id"}, "users": {"id"}},
			expect: Hint{
				Candidates: []Candidate{{Text: "orders"}, {Text: "users"}},
				From:       14,
				To:         14,
			},
		},
		{
			name:    "tables by prefix",
			text:    "select * from ord",
			caret:   -1,
			catalog: Catalog{"orders": {"id"}},
			expect: Hint{
				Candidates: []Candidate{{Text: "orders", Prefix: 3}},
				From:       14,
				To:         17,
			},
		},
		{
			name:    "tables by prefix includes partially loaded tables",
			text:    "SELECT * FROM order",
			caret:   -1,
			catalog: testCatalog,
			expect: Hint{
				Candidates: []Candidate{{Text: "order_log", Prefix: 5}, {Text: "orders", Prefix: 5}},
				From:       14,
				To:         19,
			},
		},
		{
			name:    "tables by prefix is case sensitive",
			text:    "select * from ORD",
			caret:   -1,
			catalog: testCatalog,
			expect:  Hint{},
		},
		{
			name:    "complete table name is suppressed",
			text:    "select * from users",
			caret:   -1,
			catalog: testCatalog,
			expect:  Hint{},
		},
		{
			name:    "table prefix with caret mid word",
			text:    "select * from usxyz where",
			caret:   16,
			catalog: testCatalog,
			expect: Hint{
				Candidates: []Candidate{{Text: "users", Prefix: 2}},
				From:       14,
				To:         19,
			},
		},
		{
			name:    "where columns",
			text:    "select * from orders where ",
			caret:   -1,
			catalog: Catalog{"orders": {"id", "total"}},
			expect: Hint{
				Candidates: []Candidate{{Text: "id"}, {Text: "total"}},
				From:       27,
				To:         27,
			},
		},
		{
			name:    "where columns after and by prefix",
			text:    "select * from orders where id = 1 and to",
			caret:   -1,
			catalog: testCatalog,
			expect: Hint{
				Candidates: []Candidate{{Text: "total", Prefix: 2}},
				From:       38,
				To:         40,
			},
		},
		{
			name:    "where columns after open paren",
			text:    "select * from orders where (cr",
			caret:   -1,
			catalog: testCatalog,
			expect: Hint{
				Candidates: []Candidate{{Text: "created_at", Prefix: 2}},
				From:       28,
				To:         30,
			},
		},
		{
			name:    "where guard rejects operator",
			text:    "select * from orders where id = ",
			caret:   -1,
			catalog: testCatalog,
			expect:  Hint{},
		},
		{
			name:    "order by columns after by",
			text:    "select * from orders order by ",
			caret:   -1,
			catalog: testCatalog,
			expect: Hint{
				Candidates: []Candidate{{Text: "id"}, {Text: "total"}, {Text: "created_at"}},
				From:       30,
				To:         30,
			},
		},
		{
			name:    "order by columns after comma are not deduplicated",
			text:    "select * from orders order by id, ",
			caret:   -1,
			catalog: testCatalog,
			expect: Hint{
				Candidates: []Candidate{{Text: "id"}, {Text: "total"}, {Text: "created_at"}},
				From:       34,
				To:         34,
			},
		},
		{
			name:    "order by guard rejects direction",
			text:    "select * from orders order by id desc ",
			caret:   -1,
			catalog: testCatalog,
			expect:  Hint{},
		},
		{
			name:    "select columns",
			text:    "select  from users",
			caret:   7,
			catalog: testCatalog,
			expect: Hint{
				Candidates: []Candidate{{Text: "id"}, {Text: "name"}, {Text: "email"}},
				From:       7,
				To:         7,
			},
		},
		{
			name:    "select columns after comma by prefix",
			text:    "select id, na from users",
			caret:   13,
			catalog: testCatalog,
			expect: Hint{
				Candidates: []Candidate{{Text: "name", Prefix: 2}},
				From:       11,
				To:         13,
			},
		},
		{
			name:    "unknown table",
			text:    "select * from things where ",
			caret:   -1,
			catalog: testCatalog,
			expect:  Hint{},
		},
		{
			name:    "table without loaded columns",
			text:    "select * from order_log where ",
			caret:   -1,
			catalog: testCatalog,
			expect:  Hint{},
		},
		{
			name:    "no from clause",
			text:    "select ",
			caret:   -1,
			catalog: testCatalog,
			expect:  Hint{},
		},
		{
			name:    "pagination",
			text:    "select * from orders limit ",
			caret:   -1,
			catalog: testCatalog,
			expect:  Hint{},
		},
		{
			name:    "caret out of range",
			text:    "select * from ",
			caret:   99,
			catalog: testCatalog,
			expect:  Hint{},
		},
		{
			name:    "caret at start",
			text:    "select * from ",
			caret:   0,
			catalog: testCatalog,
			expect:  Hint{},
		},
		{
			name:    "nil catalog",
			text:    "select * from orders where ",
			caret:   -1,
			catalog: nil,
			expect:  Hint{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caret := tt.caret
			if caret < 0 {
				caret = len(tt.text)
			}

			actual := GetHint(tt.text, caret, tt.catalog)
			if diff := cmp.Diff(tt.expect, actual); diff != "" {
				t.Errorf("unexpected hint. diff:\n%s\n", diff)
			}
		})
	}
}

func Test_Engine_Hint_multiline(t *testing.T) {
	text := "select * from \nwhere x = 1"

	actual := GetHint(text, 14, testCatalog)
	if diff := cmp.Diff([]string{"order_log", "orders", "users"}, actual.Texts()); diff != "" {
		t.Errorf("unexpected candidates. diff:\n%s\n", diff)
	}

	if h := GetHint(text, 20, testCatalog); !h.Empty() {
		t.Errorf("expected no hint past the first line, but got %v", h.Texts())
	}
}

func Test_Engine_Hint_tokenizerFailures(t *testing.T) {
	text := "select * from "

	t.Run("error", func(t *testing.T) {
		engine := Engine{Tokenizer: TokenizerFunc(func(string) ([]Token, error) {
			return nil, errors.New("tokenizer unavailable")
		})}

		if h := engine.Hint(text, len(text), testCatalog); !h.Empty() {
			t.Errorf("expected an empty hint, but got %v", h.Texts())
		}
	})

	t.Run("panic", func(t *testing.T) {
		engine := Engine{Tokenizer: TokenizerFunc(func(string) ([]Token, error) {
			panic("boom")
		})}

		if h := engine.Hint(text, len(text), testCatalog); !h.Empty() {
			t.Errorf("expected an empty hint, but got %v", h.Texts())
		}
	})

	t.Run("malformed tokens", func(t *testing.T) {
		// negative offsets make slicing the line panic
		engine := Engine{Tokenizer: TokenizerFunc(func(string) ([]Token, error) {
			return []Token{
				{Text: "from", Start: -10, End: -6, Kind: Keyword},
				{Text: "ord", Start: -5, End: 14, Kind: Identifier},
			}, nil
		})}

		if h := engine.Hint(text, len(text), testCatalog); !h.Empty() {
			t.Errorf("expected an empty hint, but got %v", h.Texts())
		}
	})
}

func Test_Engine_Hint_customTokenizer(t *testing.T) {
	engine := Engine{Tokenizer: TokenizerFunc(func(line string) ([]Token, error) {
		return Lexer{}.Tokenize(line)
	})}

	text := "SELECT * FROM "
	h := engine.Hint(text, len(text), testCatalog)
	if diff := cmp.Diff([]string{"order_log", "orders", "users"}, h.Texts()); diff != "" {
		t.Errorf("unexpected candidates. diff:\n%s\n", diff)
	}
}

func Test_skipWhitespaceBackward(t *testing.T) {
	tokens := []Token{
		{Text: "from", Kind: Keyword},
		{Text: " ", Kind: Whitespace},
		{Text: " ", Kind: Whitespace},
		{Text: "x", Kind: Identifier},
	}

	tests := []struct {
		i      int
		expect int
	}{
		{0, -1},
		{1, 0},
		{2, 0},
		// only a single whitespace token is skipped
		{3, 1},
	}

	for _, tt := range tests {
		if actual := skipWhitespaceBackward(tokens, tt.i); actual != tt.expect {
			t.Errorf("skipWhitespaceBackward(%d): expected %d, but got %d", tt.i, tt.expect, actual)
		}
	}
}

func Test_Candidate_Display(t *testing.T) {
	tests := []struct {
		c      Candidate
		expect string
	}{
		{Candidate{Text: "orders", Prefix: 3}, "[ord]ers"},
		{Candidate{Text: "orders"}, "orders"},
		{Candidate{Text: "id", Prefix: 2}, "[id]"},
		{Candidate{Text: "id", Prefix: 5}, "id"},
	}

	for _, tt := range tests {
		if actual := tt.c.Display(); actual != tt.expect {
			t.Errorf("expected %q, but got %q", tt.expect, actual)
		}
	}
}

func Test_Hint_Apply(t *testing.T) {
	line := "select * from ord where x = 1"
	h := GetHint(line, 17, testCatalog)

	actual, caret := h.Apply(line, 1)
	if actual != "select * from orders where x = 1" {
		t.Errorf("unexpected line: %q", actual)
	}
	if caret != 20 {
		t.Errorf("expected caret at 20, but was %d", caret)
	}

	if unchanged, _ := h.Apply(line, 7); unchanged != line {
		t.Errorf("expected out of range candidate to leave line unchanged, got %q", unchanged)
	}
}
