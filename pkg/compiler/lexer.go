package compiler

import (
	"fmt"
	"unicode"
)

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"use":      USE,
	"contract": CONTRACT,
	"storage":  STORAGE,
	"fn":       FN,
	"let":      LET,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"return":   RETURN,
	"require":  REQUIRE,
	"self":     SELF,
	"true":     TRUE,
	"false":    FALSE,
	"Ok":       OK,
	"Err":      ERR,
	"u64":      U64,
	"bool":     BOOL,
	"Address":  ADDRESS,
	"HashMap":  HASHMAP,
	"Result":   RESULT,
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), pos: 0, line: 1}
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
	}
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// skipLineComment discards everything from the current position to end-of-line.
// The opening "//" must already have been consumed.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// skipBlockComment discards everything up to and including the closing "*/".
// The opening "/*" must already have been consumed.
func (l *Lexer) skipBlockComment() error {
	startLine := l.line
	for l.pos < len(l.src) {
		if l.peek() == '*' && l.peek2() == '/' {
			l.advance() // *
			l.advance() // /
			return nil
		}
		l.advance()
	}
	return fmt.Errorf("unterminated block comment (opened on line %d)", startLine)
}

// scanIdent collects a full identifier or keyword token.
// The first character (letter or '_') must still be at l.peek().
func (l *Lexer) scanIdent() Token {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	tt := IDENTIFIER
	if kw, ok := keywords[lexeme]; ok {
		tt = kw
	}
	return Token{Type: tt, Lexeme: lexeme, Line: line}
}

// scanNumber collects a decimal or 0x-prefixed hex integer literal.
func (l *Lexer) scanNumber() (Token, error) {
	line := l.line
	start := l.pos

	if l.peek() == '0' && (l.peek2() == 'x' || l.peek2() == 'X') {
		l.advance() // 0
		l.advance() // x
		digits := 0
		for l.pos < len(l.src) && isHexDigit(l.peek()) {
			l.advance()
			digits++
		}
		if digits == 0 {
			return Token{}, fmt.Errorf("line %d: malformed hex literal", line)
		}
	} else {
		for l.pos < len(l.src) && unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}

	if unicode.IsLetter(l.peek()) || l.peek() == '_' {
		return Token{}, fmt.Errorf("line %d: malformed integer literal %q", line, string(l.src[start:l.pos+1]))
	}
	return Token{Type: INTEGER, Lexeme: string(l.src[start:l.pos]), Line: line}, nil
}

// scanString collects a double-quoted string literal. The opening quote
// must still be at l.peek(). Escapes: \" \\ \n \t.
func (l *Lexer) scanString() (Token, error) {
	line := l.line
	l.advance() // opening quote
	var out []rune
	for l.pos < len(l.src) {
		r := l.advance()
		switch r {
		case '"':
			return Token{Type: STRING, Lexeme: string(out), Line: line}, nil
		case '\n':
			return Token{}, fmt.Errorf("line %d: newline in string literal", line)
		case '\\':
			esc := l.advance()
			switch esc {
			case '"':
				out = append(out, '"')
			case '\\':
				out = append(out, '\\')
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			default:
				return Token{}, fmt.Errorf("line %d: unknown escape \\%c", line, esc)
			}
		default:
			out = append(out, r)
		}
	}
	return Token{}, fmt.Errorf("line %d: unterminated string literal", line)
}

func isHexDigit(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// Lex scans src into a flat token slice terminated by an EOF token.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token

	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			break
		}

		r := l.peek()

		if r == '/' && l.peek2() == '/' {
			l.advance()
			l.advance()
			l.skipLineComment()
			continue
		}
		if r == '/' && l.peek2() == '*' {
			l.advance()
			l.advance()
			if err := l.skipBlockComment(); err != nil {
				return nil, err
			}
			continue
		}

		if unicode.IsLetter(r) || r == '_' {
			tokens = append(tokens, l.scanIdent())
			continue
		}
		if unicode.IsDigit(r) {
			tok, err := l.scanNumber()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			continue
		}
		if r == '"' {
			tok, err := l.scanString()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			continue
		}

		line := l.line
		l.advance()

		two := func(next rune, tt TokenType, lexeme string) bool {
			if l.peek() == next {
				l.advance()
				tokens = append(tokens, Token{Type: tt, Lexeme: lexeme, Line: line})
				return true
			}
			return false
		}

		switch r {
		case '{':
			tokens = append(tokens, Token{Type: LBRACE, Lexeme: "{", Line: line})
		case '}':
			tokens = append(tokens, Token{Type: RBRACE, Lexeme: "}", Line: line})
		case '(':
			tokens = append(tokens, Token{Type: LPAREN, Lexeme: "(", Line: line})
		case ')':
			tokens = append(tokens, Token{Type: RPAREN, Lexeme: ")", Line: line})
		case '.':
			tokens = append(tokens, Token{Type: DOT, Lexeme: ".", Line: line})
		case ';':
			tokens = append(tokens, Token{Type: SEMICOLON, Lexeme: ";", Line: line})
		case ',':
			tokens = append(tokens, Token{Type: COMMA, Lexeme: ",", Line: line})
		case ':':
			if !two(':', COLON_COLON, "::") {
				tokens = append(tokens, Token{Type: COLON, Lexeme: ":", Line: line})
			}
		case '?':
			tokens = append(tokens, Token{Type: QUESTION, Lexeme: "?", Line: line})
		case '+':
			tokens = append(tokens, Token{Type: PLUS, Lexeme: "+", Line: line})
		case '-':
			if !two('>', ARROW, "->") {
				tokens = append(tokens, Token{Type: MINUS, Lexeme: "-", Line: line})
			}
		case '*':
			tokens = append(tokens, Token{Type: STAR, Lexeme: "*", Line: line})
		case '/':
			tokens = append(tokens, Token{Type: SLASH, Lexeme: "/", Line: line})
		case '%':
			tokens = append(tokens, Token{Type: PERCENT, Lexeme: "%", Line: line})
		case '&':
			if !two('&', AND_LOGICAL, "&&") {
				return nil, fmt.Errorf("line %d: single '&' is not an operator", line)
			}
		case '|':
			if !two('|', OR_LOGICAL, "||") {
				return nil, fmt.Errorf("line %d: single '|' is not an operator", line)
			}
		case '!':
			if !two('=', NOT_EQ, "!=") {
				tokens = append(tokens, Token{Type: NOT, Lexeme: "!", Line: line})
			}
		case '=':
			if !two('=', EQUALS, "==") {
				tokens = append(tokens, Token{Type: ASSIGN, Lexeme: "=", Line: line})
			}
		case '<':
			if !two('=', LESS_EQ, "<=") {
				tokens = append(tokens, Token{Type: LESS, Lexeme: "<", Line: line})
			}
		case '>':
			if !two('=', GREATER_EQ, ">=") {
				tokens = append(tokens, Token{Type: GREATER, Lexeme: ">", Line: line})
			}
		default:
			return nil, fmt.Errorf("line %d: unexpected character %q", line, string(r))
		}
	}

	tokens = append(tokens, Token{Type: EOF, Lexeme: "", Line: l.line})
	return tokens, nil
}
