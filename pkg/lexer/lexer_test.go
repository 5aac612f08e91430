package lexer

import "testing"

func collect(input string) []Token {
	l := NewLexer(input)
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == EOF {
			return toks
		}
	}
}

func TestNextTokenBasics(t *testing.T) {
	input := `import { a as b } from "./x.js"; // trailing
export default 42;`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{IDENT, "import"},
		{LBRACE, "{"},
		{IDENT, "a"},
		{IDENT, "as"},
		{IDENT, "b"},
		{RBRACE, "}"},
		{IDENT, "from"},
		{STRING, `"./x.js"`},
		{SEMICOLON, ";"},
		{IDENT, "export"},
		{IDENT, "default"},
		{NUMBER, "42"},
		{SEMICOLON, ";"},
		{EOF, ""},
	}

	toks := collect(input)
	if len(toks) != len(tests) {
		t.Fatalf("Expected %d tokens, got %d: %+v", len(tests), len(toks), toks)
	}
	for i, tt := range tests {
		if toks[i].Type != tt.expectedType {
			t.Errorf("tests[%d] - tokentype wrong. expected=%q, got=%q", i, tt.expectedType, toks[i].Type)
		}
		if toks[i].Literal != tt.expectedLiteral {
			t.Errorf("tests[%d] - literal wrong. expected=%q, got=%q", i, tt.expectedLiteral, toks[i].Literal)
		}
	}
	if toks[7].Value != "./x.js" {
		t.Errorf("Expected decoded string ./x.js, got %q", toks[7].Value)
	}
	if !toks[9].NewLine {
		t.Errorf("Expected export token to follow a newline")
	}
	if toks[9].Line != 2 || toks[9].Column != 1 {
		t.Errorf("Expected export at 2:1, got %d:%d", toks[9].Line, toks[9].Column)
	}
}

func TestRegExpVersusDivision(t *testing.T) {
	tests := []struct {
		input string
		types []TokenType
	}{
		{"a / b / c", []TokenType{IDENT, PUNCT, IDENT, PUNCT, IDENT, EOF}},
		{"x = /import/g", []TokenType{IDENT, ASSIGN, REGEXP, EOF}},
		{"return /[/]/.test(s)", []TokenType{IDENT, REGEXP, DOT, IDENT, LPAREN, IDENT, RPAREN, EOF}},
		{"(a) / 2", []TokenType{LPAREN, IDENT, RPAREN, PUNCT, NUMBER, EOF}},
	}
	for _, tt := range tests {
		toks := collect(tt.input)
		if len(toks) != len(tt.types) {
			t.Errorf("%q: expected %d tokens, got %d", tt.input, len(tt.types), len(toks))
			continue
		}
		for i, typ := range tt.types {
			if toks[i].Type != typ {
				t.Errorf("%q: token %d expected %s, got %s (%q)", tt.input, i, typ, toks[i].Type, toks[i].Literal)
			}
		}
	}
}

func TestTemplateSubstitutions(t *testing.T) {
	toks := collect("`a${ {x: 1}.x }b${c}` + import")
	want := []TokenType{TEMPLATE, LBRACE, IDENT, COLON, NUMBER, RBRACE, DOT, IDENT, TEMPLATE, IDENT, TEMPLATE, PUNCT, IDENT, EOF}
	if len(toks) != len(want) {
		t.Fatalf("Expected %d tokens, got %d: %+v", len(want), len(toks), toks)
	}
	for i, typ := range want {
		if toks[i].Type != typ {
			t.Errorf("token %d: expected %s, got %s (%q)", i, typ, toks[i].Type, toks[i].Literal)
		}
	}
}

func TestCommentsAndStringsHideKeywords(t *testing.T) {
	toks := collect("/* import x from 'y' */ 'export' // import\n")
	if len(toks) != 2 || toks[0].Type != STRING || toks[0].Value != "export" {
		t.Errorf("Expected a single string token, got %+v", toks)
	}
}

func TestStringEscapes(t *testing.T) {
	toks := collect(`"aA\u{42}\x43\n"`)
	if toks[0].Value != "aABC\n" {
		t.Errorf("Expected decoded escapes, got %q", toks[0].Value)
	}
}
