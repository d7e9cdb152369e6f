package compiler

import (
	"reflect"
	"strings"
	"testing"
)

func TestLex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
		wantErr  bool
	}{
		{
			name:  "Empty",
			input: "",
			expected: []Token{
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Operators",
			input: "+ - * / = == != < > <= >= ; , { } ( )",
			expected: []Token{
				{Type: PLUS, Lexeme: "+", Line: 1},
				{Type: MINUS, Lexeme: "-", Line: 1},
				{Type: STAR, Lexeme: "*", Line: 1},
				{Type: SLASH, Lexeme: "/", Line: 1},
				{Type: ASSIGN, Lexeme: "=", Line: 1},
				{Type: EQUALS, Lexeme: "==", Line: 1},
				{Type: NOT_EQ, Lexeme: "!=", Line: 1},
				{Type: LESS, Lexeme: "<", Line: 1},
				{Type: GREATER, Lexeme: ">", Line: 1},
				{Type: LESS_EQ, Lexeme: "<=", Line: 1},
				{Type: GREATER_EQ, Lexeme: ">=", Line: 1},
				{Type: SEMICOLON, Lexeme: ";", Line: 1},
				{Type: COMMA, Lexeme: ",", Line: 1},
				{Type: LBRACE, Lexeme: "{", Line: 1},
				{Type: RBRACE, Lexeme: "}", Line: 1},
				{Type: LPAREN, Lexeme: "(", Line: 1},
				{Type: RPAREN, Lexeme: ")", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Keywords and Identifiers",
			input: "contract storage fn let if else while return require self balances _tmp",
			expected: []Token{
				{Type: CONTRACT, Lexeme: "contract", Line: 1},
				{Type: STORAGE, Lexeme: "storage", Line: 1},
				{Type: FN, Lexeme: "fn", Line: 1},
				{Type: LET, Lexeme: "let", Line: 1},
				{Type: IF, Lexeme: "if", Line: 1},
				{Type: ELSE, Lexeme: "else", Line: 1},
				{Type: WHILE, Lexeme: "while", Line: 1},
				{Type: RETURN, Lexeme: "return", Line: 1},
				{Type: REQUIRE, Lexeme: "require", Line: 1},
				{Type: SELF, Lexeme: "self", Line: 1},
				{Type: IDENTIFIER, Lexeme: "balances", Line: 1},
				{Type: IDENTIFIER, Lexeme: "_tmp", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Type Keywords",
			input: "u64 bool Address HashMap Result",
			expected: []Token{
				{Type: U64, Lexeme: "u64", Line: 1},
				{Type: BOOL, Lexeme: "bool", Line: 1},
				{Type: ADDRESS, Lexeme: "Address", Line: 1},
				{Type: HASHMAP, Lexeme: "HashMap", Line: 1},
				{Type: RESULT, Lexeme: "Result", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Integers",
			input: "123 0 0x1A 0Xff",
			expected: []Token{
				{Type: INTEGER, Lexeme: "123", Line: 1},
				{Type: INTEGER, Lexeme: "0", Line: 1},
				{Type: INTEGER, Lexeme: "0x1A", Line: 1},
				{Type: INTEGER, Lexeme: "0Xff", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Paths and Arrows",
			input: "std::math -> ? &&",
			expected: []Token{
				{Type: IDENTIFIER, Lexeme: "std", Line: 1},
				{Type: COLON_COLON, Lexeme: "::", Line: 1},
				{Type: IDENTIFIER, Lexeme: "math", Line: 1},
				{Type: ARROW, Lexeme: "->", Line: 1},
				{Type: QUESTION, Lexeme: "?", Line: 1},
				{Type: AND_LOGICAL, Lexeme: "&&", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Strings",
			input: `"hello" "with \"escape\""`,
			expected: []Token{
				{Type: STRING, Lexeme: "hello", Line: 1},
				{Type: STRING, Lexeme: `with "escape"`, Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Comments and Lines",
			input: "let // trailing\n/* block\ncomment */ x",
			expected: []Token{
				{Type: LET, Lexeme: "let", Line: 1},
				{Type: IDENTIFIER, Lexeme: "x", Line: 3},
				{Type: EOF, Lexeme: "", Line: 3},
			},
		},
		{
			name:    "Single Ampersand",
			input:   "a & b",
			wantErr: true,
		},
		{
			name:    "Unterminated String",
			input:   `"oops`,
			wantErr: true,
		},
		{
			name:    "Unknown Rune",
			input:   "let x = 1 @",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Lex(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got tokens %v", tokens)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(tokens, tt.expected) {
				t.Errorf("tokens mismatch\n got: %v\nwant: %v", tokens, tt.expected)
			}
		})
	}
}

func TestLexErrorMentionsLine(t *testing.T) {
	_, err := Lex("let x = 1;\nlet y = $;")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error should name line 2, got: %v", err)
	}
}
