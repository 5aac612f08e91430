package lexer

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of a token.
type TokenType string

// Token represents a lexical token.
type Token struct {
	Type     TokenType
	Literal  string // The actual text of the token (lexeme)
	Value    string // Decoded value for STRING tokens, name for IDENT tokens
	Line     int    // 1-based line number where the token starts
	Column   int    // 1-based column number (rune index) where the token starts
	StartPos int    // 0-based byte offset where the token starts
	EndPos   int    // 0-based byte offset after the token ends
	NewLine  bool   // A line terminator precedes this token
}

// --- Token Types ---
const (
	// Special
	ILLEGAL TokenType = "ILLEGAL" // Unknown token/character
	EOF     TokenType = "EOF"     // End Of File

	// Identifiers + Literals
	IDENT    TokenType = "IDENT"    // identifiers and keywords
	PRIVATE  TokenType = "PRIVATE"  // #name
	NUMBER   TokenType = "NUMBER"   // 123, 0x1f, 1n
	STRING   TokenType = "STRING"   // "hello world"
	TEMPLATE TokenType = "TEMPLATE" // a template span, `...${ or }...`
	REGEXP   TokenType = "REGEXP"   // /ab+c/g

	// Operators and delimiters the module scanner cares about by name
	DOT       TokenType = "."
	SPREAD    TokenType = "..."
	OPTIONAL  TokenType = "?."
	COMMA     TokenType = ","
	SEMICOLON TokenType = ";"
	COLON     TokenType = ":"
	ASTERISK  TokenType = "*"
	ASSIGN    TokenType = "="
	ARROW     TokenType = "=>"
	LPAREN    TokenType = "("
	RPAREN    TokenType = ")"
	LBRACE    TokenType = "{"
	RBRACE    TokenType = "}"
	LBRACKET  TokenType = "["
	RBRACKET  TokenType = "]"

	// Every other punctuator
	PUNCT TokenType = "PUNCT"
)

// keywords after which a slash starts a regular expression literal
var regexpAfterKeyword = map[string]bool{
	"return":     true,
	"typeof":     true,
	"instanceof": true,
	"in":         true,
	"of":         true,
	"new":        true,
	"delete":     true,
	"void":       true,
	"throw":      true,
	"case":       true,
	"do":         true,
	"else":       true,
	"yield":      true,
	"await":      true,
	"extends":    true,
}

// Lexer holds the state of the scanner.
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char's byte offset)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int  // current line number
	column       int  // current column number (rune index)

	prev      Token // last significant token, decides regexp vs division
	templates []int // brace depth at each open template substitution
	braces    int
}

// NewLexer creates a new Lexer.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 0}
	l.readChar()
	return l
}

// readChar gives us the next character and advances our position in the input string.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
	if l.readPosition >= len(l.input) {
		l.ch = 0 // NUL signifies EOF
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	if l.ch < utf8.RuneSelf || utf8.RuneStart(l.ch) {
		l.column++
	}
}

// peekChar looks ahead in the input without consuming the character.
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) atEOF() bool {
	return l.position >= len(l.input)
}

// skipTrivia skips whitespace and comments, reporting whether a line
// terminator was crossed.
func (l *Lexer) skipTrivia() (newline bool) {
	for !l.atEOF() {
		switch {
		case l.ch == '\n' || l.ch == '\r':
			newline = true
			l.readChar()
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\v' || l.ch == '\f':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			l.skipComment()
		case l.ch == '/' && l.peekChar() == '*':
			if l.skipMultilineComment() {
				newline = true
			}
		case l.ch >= utf8.RuneSelf:
			r, _ := utf8.DecodeRuneInString(l.input[l.position:])
			if r == '\u2028' || r == '\u2029' {
				newline = true
			} else if !unicode.IsSpace(r) && r != '\ufeff' {
				return
			}
			l.skipRune()
		default:
			return
		}
	}
	return
}

func (l *Lexer) skipRune() {
	_, size := utf8.DecodeRuneInString(l.input[l.position:])
	for i := 0; i < size; i++ {
		l.readChar()
	}
}

func (l *Lexer) skipComment() {
	for !l.atEOF() && l.ch != '\n' && l.ch != '\r' {
		l.readChar()
	}
}

func (l *Lexer) skipMultilineComment() (newline bool) {
	l.readChar() // '/'
	l.readChar() // '*'
	for !l.atEOF() {
		if l.ch == '*' && l.peekChar() == '/' {
			l.readChar()
			l.readChar()
			return
		}
		if l.ch == '\n' {
			newline = true
		}
		l.readChar()
	}
	return
}

// NextToken scans the next significant token.
func (l *Lexer) NextToken() Token {
	newline := l.skipTrivia()
	tok := Token{Line: l.line, Column: l.column, StartPos: l.position, NewLine: newline}

	if l.atEOF() {
		tok.Type = EOF
		tok.EndPos = l.position
		return tok
	}

	switch {
	case l.ch == '"' || l.ch == '\'':
		tok.Type = STRING
		tok.Value = l.readString(l.ch)
	case l.ch == '`':
		tok.Type = TEMPLATE
		l.readChar()
		l.readTemplateSpan()
	case l.ch == '}' && len(l.templates) > 0 && l.templates[len(l.templates)-1] == l.braces:
		l.templates = l.templates[:len(l.templates)-1]
		tok.Type = TEMPLATE
		l.readChar()
		l.readTemplateSpan()
	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		tok.Type = NUMBER
		l.readNumber()
	case l.ch == '#':
		l.readChar()
		tok.Type = PRIVATE
		tok.Value = l.readIdentifier()
	case isIdentifierStart(l):
		tok.Type = IDENT
		tok.Value = l.readIdentifier()
	case l.ch == '/' && l.regexpAllowed():
		tok.Type = REGEXP
		l.readRegExp()
	default:
		tok.Type = l.readPunctuator()
	}

	tok.EndPos = l.position
	tok.Literal = l.input[tok.StartPos:tok.EndPos]
	l.prev = tok
	return tok
}

// regexpAllowed decides whether a slash starts a regular expression by
// looking at the previous significant token.
func (l *Lexer) regexpAllowed() bool {
	switch l.prev.Type {
	case "":
		return true
	case IDENT:
		return regexpAfterKeyword[l.prev.Value]
	case NUMBER, STRING, REGEXP, PRIVATE, RPAREN, RBRACKET:
		return false
	case TEMPLATE:
		// a span ending in ${ is followed by an expression
		return strings.HasSuffix(l.prev.Literal, "${")
	case PUNCT:
		return l.prev.Literal != "++" && l.prev.Literal != "--"
	default:
		return true
	}
}

func (l *Lexer) readPunctuator() TokenType {
	ch := l.ch
	l.readChar()
	switch ch {
	case '(':
		return LPAREN
	case ')':
		return RPAREN
	case '[':
		return LBRACKET
	case ']':
		return RBRACKET
	case '{':
		l.braces++
		return LBRACE
	case '}':
		l.braces--
		return RBRACE
	case ',':
		return COMMA
	case ';':
		return SEMICOLON
	case ':':
		return COLON
	case '.':
		if l.ch == '.' && l.peekChar() == '.' {
			l.readChar()
			l.readChar()
			return SPREAD
		}
		return DOT
	case '?':
		if l.ch == '.' && !isDigit(l.peekChar()) {
			l.readChar()
			return OPTIONAL
		}
		l.readOperatorTail("?=")
		return PUNCT
	case '=':
		if l.ch == '>' {
			l.readChar()
			return ARROW
		}
		if l.ch == '=' {
			l.readOperatorTail("=")
			return PUNCT
		}
		return ASSIGN
	case '*':
		if l.ch == '*' || l.ch == '=' {
			l.readOperatorTail("*=")
			return PUNCT
		}
		return ASTERISK
	default:
		l.readOperatorTail("=<>&|+-%^!~/")
		return PUNCT
	}
}

// readOperatorTail consumes the remaining characters of a multi-character
// operator. The exact split does not matter to the module scanner.
func (l *Lexer) readOperatorTail(chars string) {
	for n := 0; n < 3 && l.ch != 0 && strings.IndexByte(chars, l.ch) >= 0; n++ {
		if l.ch == '/' && (l.peekChar() == '/' || l.peekChar() == '*') {
			return
		}
		l.readChar()
	}
}

func isIdentifierStart(l *Lexer) bool {
	if isLetter(l.ch) || l.ch == '\\' {
		return true
	}
	if l.ch >= utf8.RuneSelf {
		r, _ := utf8.DecodeRuneInString(l.input[l.position:])
		return unicode.IsLetter(r) || unicode.Is(unicode.Other_ID_Start, r) || unicode.Is(unicode.Nl, r)
	}
	return false
}

// readIdentifier reads an identifier, decoding \u escapes.
func (l *Lexer) readIdentifier() string {
	var sb strings.Builder
	for !l.atEOF() {
		switch {
		case isLetter(l.ch) || isDigit(l.ch):
			sb.WriteByte(l.ch)
			l.readChar()
		case l.ch == '\\' && l.peekChar() == 'u':
			l.readChar()
			l.readChar()
			if r, ok := l.readUnicodeEscape(); ok {
				sb.WriteRune(r)
			}
		case l.ch >= utf8.RuneSelf:
			r, size := utf8.DecodeRuneInString(l.input[l.position:])
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r) &&
				!unicode.Is(unicode.Mc, r) && !unicode.Is(unicode.Pc, r) && r != '\u200c' && r != '\u200d' {
				return sb.String()
			}
			sb.WriteString(l.input[l.position : l.position+size])
			l.skipRune()
		default:
			return sb.String()
		}
	}
	return sb.String()
}

// readNumber consumes a numeric literal in any base, with separators and
// a BigInt suffix.
func (l *Lexer) readNumber() {
	if l.ch == '0' && strings.IndexByte("xXoObB", l.peekChar()) >= 0 {
		l.readChar()
		l.readChar()
	}
	for !l.atEOF() && (isHexDigit(l.ch) || l.ch == '_' || l.ch == '.' || l.ch == 'n' ||
		((l.ch == '+' || l.ch == '-') && (l.input[l.position-1] == 'e' || l.input[l.position-1] == 'E'))) {
		l.readChar()
	}
}

// readString reads a quoted string and returns its decoded value.
func (l *Lexer) readString(quote byte) string {
	var sb strings.Builder
	l.readChar() // opening quote
	for !l.atEOF() && l.ch != quote {
		if l.ch == '\n' {
			return sb.String() // unterminated; the real parser reports it
		}
		if l.ch != '\\' {
			sb.WriteByte(l.ch)
			l.readChar()
			continue
		}
		l.readChar()
		switch l.ch {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case '0':
			sb.WriteByte(0)
		case '\r':
			if l.peekChar() == '\n' {
				l.readChar()
			}
		case '\n':
			// line continuation
		case 'x':
			l.readChar()
			if l.readPosition+1 <= len(l.input) {
				if v, err := strconv.ParseUint(l.input[l.position:l.position+2], 16, 8); err == nil {
					sb.WriteRune(rune(v))
					l.readChar()
				}
			}
		case 'u':
			l.readChar()
			if r, ok := l.readUnicodeEscape(); ok {
				sb.WriteRune(r)
			}
			continue
		default:
			sb.WriteByte(l.ch)
		}
		l.readChar()
	}
	l.readChar() // closing quote
	return sb.String()
}

// readUnicodeEscape reads XXXX or {X...} after \u, leaving the lexer on
// the character following the escape.
func (l *Lexer) readUnicodeEscape() (rune, bool) {
	if l.ch == '{' {
		end := strings.IndexByte(l.input[l.position:], '}')
		if end < 0 {
			return 0, false
		}
		v, err := strconv.ParseUint(l.input[l.position+1:l.position+end], 16, 32)
		for i := 0; i <= end; i++ {
			l.readChar()
		}
		return rune(v), err == nil
	}
	if l.position+4 > len(l.input) {
		return 0, false
	}
	v, err := strconv.ParseUint(l.input[l.position:l.position+4], 16, 32)
	for i := 0; i < 4; i++ {
		l.readChar()
	}
	return rune(v), err == nil
}

// readTemplateSpan reads template characters up to the closing backtick or
// the start of a substitution.
func (l *Lexer) readTemplateSpan() {
	for !l.atEOF() {
		switch {
		case l.ch == '\\':
			l.readChar()
			l.readChar()
		case l.ch == '`':
			l.readChar()
			return
		case l.ch == '$' && l.peekChar() == '{':
			l.readChar()
			l.readChar()
			l.templates = append(l.templates, l.braces)
			return
		default:
			l.readChar()
		}
	}
}

func (l *Lexer) readRegExp() {
	l.readChar() // '/'
	inClass := false
	for !l.atEOF() && l.ch != '\n' {
		switch {
		case l.ch == '\\':
			l.readChar()
		case l.ch == '[':
			inClass = true
		case l.ch == ']':
			inClass = false
		case l.ch == '/' && !inClass:
			l.readChar()
			for isLetter(l.ch) {
				l.readChar()
			}
			return
		}
		l.readChar()
	}
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_' || ch == '$'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || 'a' <= ch && ch <= 'f' || 'A' <= ch && ch <= 'F' || ch == 'x' || ch == 'X' ||
		ch == 'o' || ch == 'O'
}
