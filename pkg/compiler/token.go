package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / function / field name
	INTEGER    // decimal or hex integer literal
	STRING     // string literal "..."

	// Keywords
	USE      // "use"
	CONTRACT // "contract"
	STORAGE  // "storage"
	FN       // "fn"
	LET      // "let"
	IF       // "if"
	ELSE     // "else"
	WHILE    // "while"
	RETURN   // "return"
	REQUIRE  // "require"
	SELF     // "self"
	TRUE     // "true"
	FALSE    // "false"
	OK       // "Ok"
	ERR      // "Err"

	// Type keywords
	U64      // "u64"
	BOOL     // "bool"
	ADDRESS  // "Address"
	HASHMAP  // "HashMap"
	RESULT   // "Result"

	// Paired delimiters
	LBRACE // {
	RBRACE // }
	LPAREN // (
	RPAREN // )

	// Punctuation
	DOT         // .
	SEMICOLON   // ;
	COMMA       // ,
	COLON       // :
	COLON_COLON // ::
	ARROW       // ->
	QUESTION    // ?

	// Arithmetic operators
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	PERCENT // %

	// Logical operators
	AND_LOGICAL // &&
	OR_LOGICAL  // ||
	NOT         // !

	// Assignment / comparison  (order matters: ASSIGN before EQUALS)
	ASSIGN     // =
	EQUALS     // ==
	NOT_EQ     // !=
	LESS       // <
	GREATER    // >
	LESS_EQ    // <=
	GREATER_EQ // >=
)

var tokenNames = map[TokenType]string{
	EOF:         "EOF",
	IDENTIFIER:  "IDENTIFIER",
	INTEGER:     "INTEGER",
	STRING:      "STRING",
	USE:         "use",
	CONTRACT:    "contract",
	STORAGE:     "storage",
	FN:          "fn",
	LET:         "let",
	IF:          "if",
	ELSE:        "else",
	WHILE:       "while",
	RETURN:      "return",
	REQUIRE:     "require",
	SELF:        "self",
	TRUE:        "true",
	FALSE:       "false",
	OK:          "Ok",
	ERR:         "Err",
	U64:         "u64",
	BOOL:        "bool",
	ADDRESS:     "Address",
	HASHMAP:     "HashMap",
	RESULT:      "Result",
	LBRACE:      "{",
	RBRACE:      "}",
	LPAREN:      "(",
	RPAREN:      ")",
	DOT:         ".",
	SEMICOLON:   ";",
	COMMA:       ",",
	COLON:       ":",
	COLON_COLON: "::",
	ARROW:       "->",
	QUESTION:    "?",
	PLUS:        "+",
	MINUS:       "-",
	STAR:        "*",
	SLASH:       "/",
	PERCENT:     "%",
	AND_LOGICAL: "&&",
	OR_LOGICAL:  "||",
	NOT:         "!",
	ASSIGN:      "=",
	EQUALS:      "==",
	NOT_EQ:      "!=",
	LESS:        "<",
	GREATER:     ">",
	LESS_EQ:     "<=",
	GREATER_EQ:  ">=",
}

func (tt TokenType) String() string {
	if n, ok := tokenNames[tt]; ok {
		return n
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Token is a single lexed unit with its source line for diagnostics.
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d", t.Type, t.Lexeme, t.Line)
}
