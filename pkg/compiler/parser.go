package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser consumes the flat token slice produced by the Lexer and builds a Program.
//
// Grammar:
//
//	program    = use* contract EOF
//	use        = "use" IDENT ("::" IDENT)* ("::" "{" name ("," name)* "}")? ";"
//	contract   = "contract" IDENT "{" (storageDecl | fnDecl)* "}"
//	storageDecl= "storage" IDENT ":" type ";"
//	fnDecl     = "fn" IDENT "(" params? ")" ("->" type)? block
//	type       = "u64" | "bool" | "Address" | "(" ")"
//	           | "HashMap" "<" type "," type ">" | "Result" "<" type ">"
//	stmt       = letStmt | ifStmt | whileStmt | returnStmt | requireStmt
//	           | assignment | exprStmt
//	letStmt    = "let" IDENT (":" type)? "=" expression ";"
//	assignment = (IDENT | "self" "." IDENT) "=" expression ";"
//	expression = logical_or
//	logical_or = logical_and ("||" logical_and)*
//	logical_and = equality ("&&" equality)*
//	equality   = relational (("=="|"!=") relational)*
//	relational = additive (("<"|">"|"<="|">=") additive)*
//	additive   = multiplicative (("+" | "-") multiplicative)*
//	multiplicative = unary (("*" | "/" | "%") unary)*
//	unary      = "!" unary | postfix
//	postfix    = primary ("." IDENT "(" args ")" | "?")*
//	primary    = INTEGER | STRING | "true" | "false" | IDENT ("(" args ")")?
//	           | "self" "." IDENT | "Ok" "(" expression? ")" | "Err" "(" expression ")"
//	           | "(" expression ")"
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n")}
}

// Parse builds a Program from the token stream.
func Parse(tokens []Token, rawSource string) (*Program, error) {
	return NewParser(tokens, rawSource).parseProgram()
}

// fmtError wraps an error message with the source line where the token appears.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	lineIdx := tok.Line - 1 // Lines are 1-based

	snippet := "<source unavailable>"
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		snippet = strings.TrimSpace(p.sourceLines[lineIdx])
	}

	return fmt.Errorf("line %d: %s\n  |> %s", tok.Line, msg, snippet)
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// peekNext returns the token immediately after the current one.
func (p *Parser) peekNext() Token {
	if p.pos+1 >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+1]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise returns an error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

func (p *Parser) parseProgram() (*Program, error) {
	prog := &Program{}

	for p.peek().Type == USE {
		use, err := p.parseUse()
		if err != nil {
			return nil, err
		}
		prog.Uses = append(prog.Uses, use)
	}

	contract, err := p.parseContract()
	if err != nil {
		return nil, err
	}
	prog.Contract = contract

	if tok := p.peek(); tok.Type != EOF {
		return nil, p.fmtError(tok, "unexpected %s after contract body", tok.Type)
	}
	return prog, nil
}

// useName accepts an identifier in import-name position. Type keywords are
// allowed here so that "use std::collections::HashMap;" parses.
func (p *Parser) useName() (string, error) {
	tok := p.advance()
	switch tok.Type {
	case IDENTIFIER, HASHMAP, RESULT:
		return tok.Lexeme, nil
	}
	return "", p.fmtError(tok, "expected import name, got %s", tok.Type)
}

func (p *Parser) parseUse() (*UseDecl, error) {
	useTok, err := p.expect(USE)
	if err != nil {
		return nil, err
	}

	decl := &UseDecl{Line: useTok.Line}
	var segments []string

	first, err := p.useName()
	if err != nil {
		return nil, err
	}
	segments = append(segments, first)

	for p.peek().Type == COLON_COLON {
		p.advance()
		if p.peek().Type == LBRACE {
			p.advance()
			for {
				name, err := p.useName()
				if err != nil {
					return nil, err
				}
				decl.Names = append(decl.Names, name)
				if p.peek().Type != COMMA {
					break
				}
				p.advance()
			}
			if _, err := p.expect(RBRACE); err != nil {
				return nil, err
			}
			decl.Path = segments
			_, err = p.expect(SEMICOLON)
			return decl, err
		}
		seg, err := p.useName()
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}

	if len(segments) < 2 {
		return nil, p.fmtError(useTok, "import path %q is too short", segments[0])
	}
	decl.Path = segments[:len(segments)-1]
	decl.Names = []string{segments[len(segments)-1]}
	_, err = p.expect(SEMICOLON)
	return decl, err
}

func (p *Parser) parseType() (*Type, error) {
	tok := p.advance()
	switch tok.Type {
	case U64:
		return typeU64, nil
	case BOOL:
		return typeBool, nil
	case ADDRESS:
		return typeAddress, nil
	case LPAREN:
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return typeUnit, nil
	case HASHMAP:
		if _, err := p.expect(LESS); err != nil {
			return nil, err
		}
		key, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(COMMA); err != nil {
			return nil, err
		}
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(GREATER); err != nil {
			return nil, err
		}
		return &Type{Kind: TypeMap, Key: key, Elem: elem}, nil
	case RESULT:
		if _, err := p.expect(LESS); err != nil {
			return nil, err
		}
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(GREATER); err != nil {
			return nil, err
		}
		return &Type{Kind: TypeResult, Elem: elem}, nil
	}
	return nil, p.fmtError(tok, "expected a type, got %s (%q)", tok.Type, tok.Lexeme)
}

func (p *Parser) parseContract() (*Contract, error) {
	kw, err := p.expect(CONTRACT)
	if err != nil {
		return nil, err
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}

	c := &Contract{Name: name.Lexeme, Line: kw.Line}
	for {
		switch p.peek().Type {
		case STORAGE:
			decl, err := p.parseStorageDecl()
			if err != nil {
				return nil, err
			}
			c.Storage = append(c.Storage, decl)
		case FN:
			fn, err := p.parseFuncDecl()
			if err != nil {
				return nil, err
			}
			c.Funcs = append(c.Funcs, fn)
		case RBRACE:
			p.advance()
			return c, nil
		default:
			tok := p.peek()
			return nil, p.fmtError(tok, "expected storage or fn declaration, got %s (%q)", tok.Type, tok.Lexeme)
		}
	}
}

func (p *Parser) parseStorageDecl() (*StorageDecl, error) {
	kw, err := p.expect(STORAGE)
	if err != nil {
		return nil, err
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	typ, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &StorageDecl{Name: name.Lexeme, Type: typ, Line: kw.Line}, nil
}

func (p *Parser) parseFuncDecl() (*FuncDecl, error) {
	kw, err := p.expect(FN)
	if err != nil {
		return nil, err
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	fn := &FuncDecl{Name: name.Lexeme, Line: kw.Line}
	for p.peek().Type != RPAREN {
		if len(fn.Params) > 0 {
			if _, err := p.expect(COMMA); err != nil {
				return nil, err
			}
		}
		pname, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		ptype, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, Param{Name: pname.Lexeme, Type: ptype})
	}
	p.advance() // RPAREN

	if p.peek().Type == ARROW {
		p.advance()
		ret, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fn.Return = ret
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

func (p *Parser) parseBlock() (*Block, error) {
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	b := &Block{}
	for p.peek().Type != RBRACE {
		if p.peek().Type == EOF {
			return nil, p.fmtError(p.peek(), "unexpected end of input inside block")
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		b.Stmts = append(b.Stmts, stmt)
	}
	p.advance() // RBRACE
	return b, nil
}

func (p *Parser) parseStatement() (Stmt, error) {
	switch p.peek().Type {
	case LET:
		return p.parseLet()
	case IF:
		return p.parseIf()
	case WHILE:
		return p.parseWhile()
	case RETURN:
		return p.parseReturn()
	case REQUIRE:
		return p.parseRequire()
	}

	// Assignment or expression statement.
	tok := p.peek()
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.peek().Type == ASSIGN {
		p.advance()
		switch expr.(type) {
		case *Ident, *StorageRef:
		default:
			return nil, p.fmtError(tok, "invalid assignment target %s", expr)
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &AssignStmt{Target: expr, Value: value, Line: tok.Line}, nil
	}
	// A trailing expression before the closing brace is an implicit
	// return, so a Result function can end with a bare Ok(()).
	if p.peek().Type == RBRACE {
		return &ReturnStmt{Value: expr, Line: tok.Line}, nil
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ExprStmt{E: expr, Line: tok.Line}, nil
}

func (p *Parser) parseLet() (Stmt, error) {
	kw := p.advance() // LET
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	stmt := &LetStmt{Name: name.Lexeme, Line: kw.Line}
	if p.peek().Type == COLON {
		p.advance()
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		stmt.Type = typ
	}
	if _, err := p.expect(ASSIGN); err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	stmt.Value = value
	_, err = p.expect(SEMICOLON)
	return stmt, err
}

func (p *Parser) parseIf() (Stmt, error) {
	kw := p.advance() // IF
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{Cond: cond, Then: then, Line: kw.Line}
	if p.peek().Type == ELSE {
		p.advance()
		if p.peek().Type == IF {
			nested, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			stmt.Else = &Block{Stmts: []Stmt{nested}}
		} else {
			els, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			stmt.Else = els
		}
	}
	return stmt, nil
}

func (p *Parser) parseWhile() (Stmt, error) {
	kw := p.advance() // WHILE
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Cond: cond, Body: body, Line: kw.Line}, nil
}

func (p *Parser) parseReturn() (Stmt, error) {
	kw := p.advance() // RETURN
	if p.peek().Type == SEMICOLON {
		p.advance()
		return &ReturnStmt{Line: kw.Line}, nil
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ReturnStmt{Value: value, Line: kw.Line}, nil
}

func (p *Parser) parseRequire() (Stmt, error) {
	kw := p.advance() // REQUIRE
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	stmt := &RequireStmt{Cond: cond, Line: kw.Line}
	if p.peek().Type == COMMA {
		p.advance()
		msg, err := p.expect(STRING)
		if err != nil {
			return nil, err
		}
		stmt.Msg = msg.Lexeme
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	_, err = p.expect(SEMICOLON)
	return stmt, err
}

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseLogicalOr()
}

// parseLogicalOr handles ||
func (p *Parser) parseLogicalOr() (Expr, error) {
	expr, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == OR_LOGICAL {
		op := p.advance()
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		expr = &LogicalExpr{Op: op.Type, Left: expr, Right: right, Line: op.Line}
	}
	return expr, nil
}

// parseLogicalAnd handles &&
func (p *Parser) parseLogicalAnd() (Expr, error) {
	expr, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == AND_LOGICAL {
		op := p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		expr = &LogicalExpr{Op: op.Type, Left: expr, Right: right, Line: op.Line}
	}
	return expr, nil
}

// parseEquality handles == and !=
func (p *Parser) parseEquality() (Expr, error) {
	expr, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == EQUALS || p.peek().Type == NOT_EQ {
		op := p.advance()
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op.Type, Left: expr, Right: right, Line: op.Line}
	}
	return expr, nil
}

// parseRelational handles < > <= >=
func (p *Parser) parseRelational() (Expr, error) {
	expr, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case LESS, GREATER, LESS_EQ, GREATER_EQ:
			op := p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			expr = &BinaryExpr{Op: op.Type, Left: expr, Right: right, Line: op.Line}
		default:
			return expr, nil
		}
	}
}

// parseAdditive handles + and -
func (p *Parser) parseAdditive() (Expr, error) {
	expr, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == PLUS || p.peek().Type == MINUS {
		op := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op.Type, Left: expr, Right: right, Line: op.Line}
	}
	return expr, nil
}

// parseMultiplicative handles * / %
func (p *Parser) parseMultiplicative() (Expr, error) {
	expr, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case STAR, SLASH, PERCENT:
			op := p.advance()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			expr = &BinaryExpr{Op: op.Type, Left: expr, Right: right, Line: op.Line}
		default:
			return expr, nil
		}
	}
}

// parseUnary handles logical not and arithmetic negation.
func (p *Parser) parseUnary() (Expr, error) {
	if p.peek().Type == NOT || p.peek().Type == MINUS {
		op := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: op.Type, Right: right, Line: op.Line}, nil
	}
	return p.parsePostfix()
}

// parsePostfix handles method calls and the ? operator.
func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case DOT:
			dot := p.advance()
			name, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(LPAREN); err != nil {
				return nil, err
			}
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			expr = &MethodCall{Recv: expr, Name: name.Lexeme, Args: args, Line: dot.Line}
		case QUESTION:
			q := p.advance()
			expr = &TryExpr{Inner: expr, Line: q.Line}
		default:
			return expr, nil
		}
	}
}

// parseArgs parses a comma-separated argument list up to and including RPAREN.
func (p *Parser) parseArgs() ([]Expr, error) {
	var args []Expr
	for p.peek().Type != RPAREN {
		if len(args) > 0 {
			if _, err := p.expect(COMMA); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	p.advance() // RPAREN
	return args, nil
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.advance()
	switch tok.Type {
	case INTEGER:
		value, err := strconv.ParseUint(tok.Lexeme, 0, 64)
		if err != nil {
			return nil, p.fmtError(tok, "integer literal %q does not fit in u64", tok.Lexeme)
		}
		return &IntLit{Value: value, Line: tok.Line}, nil

	case STRING:
		return &StrLit{Value: tok.Lexeme, Line: tok.Line}, nil

	case TRUE:
		return &BoolLit{Value: true, Line: tok.Line}, nil
	case FALSE:
		return &BoolLit{Value: false, Line: tok.Line}, nil

	case SELF:
		if _, err := p.expect(DOT); err != nil {
			return nil, err
		}
		field, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		return &StorageRef{Field: field.Lexeme, Line: tok.Line}, nil

	case OK:
		if _, err := p.expect(LPAREN); err != nil {
			return nil, err
		}
		if p.peek().Type == RPAREN {
			p.advance()
			return &OkExpr{Line: tok.Line}, nil
		}
		// Ok(()), the unit form
		if p.peek().Type == LPAREN && p.peekNext().Type == RPAREN {
			p.advance()
			p.advance()
			if _, err := p.expect(RPAREN); err != nil {
				return nil, err
			}
			return &OkExpr{Line: tok.Line}, nil
		}
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return &OkExpr{Inner: inner, Line: tok.Line}, nil

	case ERR:
		if _, err := p.expect(LPAREN); err != nil {
			return nil, err
		}
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return &ErrExpr{Inner: inner, Line: tok.Line}, nil

	case IDENTIFIER:
		if p.peek().Type == LPAREN {
			p.advance()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &CallExpr{Name: tok.Lexeme, Args: args, Line: tok.Line}, nil
		}
		return &Ident{Name: tok.Lexeme, Line: tok.Line}, nil

	case LPAREN:
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return nil, p.fmtError(tok, "unexpected %s (%q) in expression", tok.Type, tok.Lexeme)
}
