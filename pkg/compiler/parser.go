package compiler

import (
	"fmt"
	"strings"
)

// Parser consumes the flat token slice produced by the Lexer and builds
// the AST. It performs no validation beyond shape: name resolution,
// type checking and the structural invariants are all enforced by the
// later passes.
//
// Grammar:
//
//	module      = { directive | block | NEWLINE }
//	block       = IDENTIFIER [ INTEGER ] "{" { blockstmt } "}"
//	blockstmt   = directive | vardecl | structdecl | subroutine | label | statement
//	vardecl     = "const" type IDENTIFIER "=" expression
//	            | "memory" type IDENTIFIER "=" expression
//	            | type [ "[" [expression] "]" ] [ "@" zpwish ] IDENTIFIER [ "=" expression ]
//	            | IDENTIFIER IDENTIFIER                       (struct-typed variable)
//	structdecl  = "struct" IDENTIFIER "{" { vardecl } "}"
//	subroutine  = ["inline"] "sub" IDENTIFIER "(" params ")" [ "->" rettypes ] "{" { blockstmt } "}"
//	            | "asmsub" IDENTIFIER "(" asmparams ")" [clobbers] [ "->" asmrets ] ( "=" INTEGER | asmbody )
//	statement   = assignment | postfix | call | "return" [exprs] | "break"
//	            | "goto" (identifier|INTEGER) | if | branch | for | while
//	            | until | repeat | when | inlineasm | "{" ... "}"
//	assignment  = target [augop] "=" expression
//	target      = identifierpath [ "[" expression "]" ] | "@" "(" expression ")"
//	expression  = orexpr [ ".." orexpr [ "step" orexpr ] ]
//	orexpr      = xorexpr { "or" xorexpr }               (and so on down the
//	              usual precedence ladder to the primaries; explicit casts
//	              are written as a type keyword call: uword(x))
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
	namegen     *NameGen
}

func NewParser(tokens []Token, rawSource string, namegen *NameGen) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n"), namegen: namegen}
}

// ParseModule runs the lexer and parser over one source file.
func ParseModule(src, file string, namegen *NameGen) (*Module, error) {
	tokens, err := Lex(src, file)
	if err != nil {
		return nil, err
	}
	p := NewParser(tokens, src, namegen)
	return p.parseModule(file)
}

// fmtError wraps an error message with the source line where the token
// appears.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	lineIdx := tok.Pos.Line - 1

	snippet := "<source unavailable>"
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		snippet = strings.TrimSpace(p.sourceLines[lineIdx])
	}
	return fmt.Errorf("%s: %s\n  |> %s", tok.Pos, msg, snippet)
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+offset]
}

func (p *Parser) next() Token {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *Parser) accept(tt TokenType) bool {
	if p.peek().Type == tt {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.peek()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, found %s", tt, tok)
	}
	p.pos++
	return tok, nil
}

func (p *Parser) skipNewlines() {
	for p.peek().Type == NEWLINE {
		p.pos++
	}
}

var typeKeywords = map[TokenType]DataType{
	UBYTE: DTUbyte,
	BYTE:  DTByte,
	UWORD: DTUword,
	WORD:  DTWord,
	FLOAT: DTFloat,
	STR:   DTStr,
}

func (p *Parser) parseModule(file string) (*Module, error) {
	mod := &Module{Name: moduleName(file)}
	mod.setPos(Position{File: file, Line: 1, Column: 1})
	for {
		p.skipNewlines()
		tok := p.peek()
		switch tok.Type {
		case EOF:
			LinkParents(mod)
			return mod, nil
		case DIRECTIVE:
			d, err := p.parseDirective()
			if err != nil {
				return nil, err
			}
			mod.Statements = append(mod.Statements, d)
		case IDENTIFIER:
			b, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			mod.Statements = append(mod.Statements, b)
		default:
			return nil, p.fmtError(tok, "expected a directive or block definition, found %s", tok)
		}
	}
}

func moduleName(file string) string {
	name := file
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, ".p8")
}

func (p *Parser) parseDirective() (*Directive, error) {
	tok := p.next() // DIRECTIVE
	d := &Directive{Name: tok.Text}
	d.setPos(tok.Pos)
	for p.peek().Type != NEWLINE && p.peek().Type != EOF && p.peek().Type != RBRACE {
		arg := p.next()
		var da DirectiveArg
		switch arg.Type {
		case IDENTIFIER:
			da.Name = arg.Text
		case STRINGLIT:
			da.Str = arg.Text
		case INTEGER:
			da.Int = arg.IntVal
			da.HasInt = true
		case COMMA:
			continue
		default:
			return nil, p.fmtError(arg, "invalid directive argument %s", arg)
		}
		d.Args = append(d.Args, da)
	}
	return d, nil
}

func (p *Parser) parseBlock() (*Block, error) {
	nameTok := p.next()
	b := &Block{Name: nameTok.Text, Address: -1}
	b.setPos(nameTok.Pos)
	if p.peek().Type == INTEGER {
		b.Address = int(p.next().IntVal)
	}
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	stmts, err := p.parseStatementList()
	if err != nil {
		return nil, err
	}
	b.Statements = stmts
	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}
	return b, nil
}

// parseStatementList parses statements until the closing brace.
func (p *Parser) parseStatementList() ([]Node, error) {
	var stmts []Node
	for {
		p.skipNewlines()
		if p.peek().Type == RBRACE || p.peek().Type == EOF {
			return stmts, nil
		}
		st, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if st != nil {
			stmts = append(stmts, st)
		}
	}
}

func (p *Parser) parseStatement() (Node, error) {
	tok := p.peek()
	switch tok.Type {
	case DIRECTIVE:
		return p.parseDirective()
	case INLINEASM:
		p.pos++
		a := &InlineAssembly{Assembly: tok.Text}
		a.setPos(tok.Pos)
		return a, nil
	case CONST, MEMORY:
		return p.parseVarDecl()
	case UBYTE, BYTE, UWORD, WORD, FLOAT, STR:
		return p.parseVarDecl()
	case STRUCT:
		return p.parseStructDecl()
	case SUB, ASMSUB, INLINE:
		return p.parseSubroutine()
	case IF:
		return p.parseIf()
	case WHILE:
		return p.parseWhile()
	case UNTIL:
		return p.parseUntil()
	case REPEAT:
		return p.parseRepeat()
	case FOR:
		return p.parseFor()
	case WHEN:
		return p.parseWhen()
	case RETURN:
		return p.parseReturn()
	case BREAK:
		p.pos++
		b := &Break{}
		b.setPos(tok.Pos)
		return b, nil
	case GOTO:
		return p.parseGoto()
	case LBRACE:
		return p.parseAnonymousScope()
	case AT:
		return p.parseMemoryWriteStatement()
	case IDENTIFIER:
		if cond, ok := branchConditionByName[tok.Text]; ok && p.peekAt(1).Type == LBRACE {
			return p.parseBranch(cond)
		}
		return p.parseIdentifierStatement()
	}
	return nil, p.fmtError(tok, "unexpected %s at statement start", tok)
}

// zpWishes maps the @-annotation name to the placement wish.
var zpWishes = map[string]ZeropageWish{
	"zp":       ZpRequire,
	"zpprefer": ZpPrefer,
	"nozp":     ZpForbid,
}

func (p *Parser) parseVarDecl() (Node, error) {
	start := p.peek()
	kind := VarKindVar
	switch start.Type {
	case CONST:
		p.pos++
		kind = VarKindConst
	case MEMORY:
		p.pos++
		kind = VarKindMemory
	}

	typeTok := p.next()
	dt, ok := typeKeywords[typeTok.Type]
	if !ok {
		return nil, p.fmtError(typeTok, "expected a data type, found %s", typeTok)
	}

	decl := &VarDecl{Kind: kind, Type: dt}
	decl.setPos(start.Pos)

	if p.accept(LBRACKET) {
		arrayType := dt.ArrayOf()
		if arrayType == DTUndefined {
			return nil, p.fmtError(typeTok, "%s is not a valid array element type", dt)
		}
		decl.Type = arrayType
		if p.peek().Type != RBRACKET {
			size, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			decl.ArraySize = size
		}
		if _, err := p.expect(RBRACKET); err != nil {
			return nil, err
		}
	}

	if p.accept(AT) {
		wishTok, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		wish, ok := zpWishes[wishTok.Text]
		if !ok {
			return nil, p.fmtError(wishTok, "unknown zero-page wish @%s", wishTok.Text)
		}
		decl.Zp = wish
	}

	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	decl.Name = nameTok.Text

	if p.accept(ASSIGN) {
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		decl.Value = value
	} else if kind != VarKindVar {
		return nil, p.fmtError(nameTok, "%s declaration requires a value", start.Type)
	}
	return decl, nil
}

func (p *Parser) parseStructDecl() (Node, error) {
	start := p.next() // struct
	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	decl := &StructDecl{Name: nameTok.Text}
	decl.setPos(start.Pos)
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	for {
		p.skipNewlines()
		if p.accept(RBRACE) {
			return decl, nil
		}
		member, err := p.parseVarDecl()
		if err != nil {
			return nil, err
		}
		vd, ok := member.(*VarDecl)
		if !ok || vd.Kind != VarKindVar || vd.Type.IsArray() {
			return nil, p.fmtError(start, "struct members must be plain scalar variables")
		}
		decl.Decls = append(decl.Decls, vd)
	}
}

func (p *Parser) parseSubroutine() (Node, error) {
	start := p.peek()
	inline := p.accept(INLINE)
	isAsm := false
	switch p.peek().Type {
	case SUB:
		p.pos++
	case ASMSUB:
		p.pos++
		isAsm = true
	default:
		return nil, p.fmtError(p.peek(), "expected sub or asmsub")
	}

	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	sub := &Subroutine{Name: nameTok.Text, Address: -1, IsAsm: isAsm, Inline: inline}
	sub.setPos(start.Pos)

	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	for p.peek().Type != RPAREN {
		param, err := p.parseSubParam(isAsm)
		if err != nil {
			return nil, err
		}
		sub.Params = append(sub.Params, param)
		if !p.accept(COMMA) {
			break
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	if p.accept(ARROW) {
		// either clobbers(...) or return types
		if p.peek().Type == IDENTIFIER && p.peek().Text == "clobbers" {
			p.pos++
			if _, err := p.expect(LPAREN); err != nil {
				return nil, err
			}
			for p.peek().Type != RPAREN {
				reg, err := p.expect(IDENTIFIER)
				if err != nil {
					return nil, err
				}
				sub.Clobbers = append(sub.Clobbers, reg.Text)
				if !p.accept(COMMA) {
					break
				}
			}
			if _, err := p.expect(RPAREN); err != nil {
				return nil, err
			}
			if !p.accept(ARROW) {
				goto body
			}
		}
		for {
			ret, err := p.parseSubParam(isAsm)
			if err != nil {
				return nil, err
			}
			sub.Returns = append(sub.Returns, ret)
			if !p.accept(COMMA) {
				break
			}
		}
	}

body:
	if isAsm && p.accept(ASSIGN) {
		addrTok, err := p.expect(INTEGER)
		if err != nil {
			return nil, err
		}
		sub.Address = int(addrTok.IntVal)
		return sub, nil
	}
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	stmts, err := p.parseStatementList()
	if err != nil {
		return nil, err
	}
	sub.Statements = stmts
	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}

	// regular subroutines receive their arguments through variables;
	// declare one per parameter so lookup and storage fall out naturally
	if !sub.IsAsm {
		for i := len(sub.Params) - 1; i >= 0; i-- {
			param := sub.Params[i]
			decl := &VarDecl{Kind: VarKindVar, Type: param.Type, Name: param.Name}
			decl.setPos(sub.Pos())
			sub.Statements = append([]Node{decl}, sub.Statements...)
		}
	}
	return sub, nil
}

// parseSubParam parses "type name" or, for asmsubs, "type name @REG".
// In return-type position the name may be omitted.
func (p *Parser) parseSubParam(isAsm bool) (SubParam, error) {
	typeTok := p.next()
	dt, ok := typeKeywords[typeTok.Type]
	if !ok {
		return SubParam{}, p.fmtError(typeTok, "expected a data type, found %s", typeTok)
	}
	param := SubParam{Type: dt}
	if p.peek().Type == IDENTIFIER {
		param.Name = p.next().Text
	}
	if isAsm && p.accept(AT) {
		regTok, err := p.expect(IDENTIFIER)
		if err != nil {
			return SubParam{}, err
		}
		param.Register = regTok.Text
	}
	return param, nil
}

func (p *Parser) parseIf() (Node, error) {
	start := p.next() // if
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	trueScope, err := p.parseAnonymousScope()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{Condition: cond, TrueScope: trueScope.(*AnonymousScope)}
	stmt.setPos(start.Pos)
	p.skipNewlines()
	if p.accept(ELSE) {
		elseScope, err := p.parseAnonymousScope()
		if err != nil {
			return nil, err
		}
		stmt.ElseScope = elseScope.(*AnonymousScope)
	}
	return stmt, nil
}

// branchConditionByName maps the status-flag branch keywords to their
// condition.
var branchConditionByName = map[string]BranchCondition{
	"if_cs": BranchCS, "if_cc": BranchCC, "if_z": BranchEQ, "if_nz": BranchNE,
	"if_neg": BranchMI, "if_pos": BranchPL, "if_vs": BranchVS, "if_vc": BranchVC,
}

// parseBranch parses a branch-on-CPU-flag statement: if_cs { } else { }.
func (p *Parser) parseBranch(cond BranchCondition) (Node, error) {
	start := p.next() // the if_xx identifier
	trueScope, err := p.parseAnonymousScope()
	if err != nil {
		return nil, err
	}
	stmt := &BranchStmt{Condition: cond, TrueScope: trueScope.(*AnonymousScope)}
	stmt.setPos(start.Pos)
	p.skipNewlines()
	if p.accept(ELSE) {
		elseScope, err := p.parseAnonymousScope()
		if err != nil {
			return nil, err
		}
		stmt.ElseScope = elseScope.(*AnonymousScope)
	}
	return stmt, nil
}

func (p *Parser) parseWhile() (Node, error) {
	start := p.next()
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseAnonymousScope()
	if err != nil {
		return nil, err
	}
	loop := &WhileLoop{Condition: cond, Body: body.(*AnonymousScope)}
	loop.setPos(start.Pos)
	return loop, nil
}

func (p *Parser) parseUntil() (Node, error) {
	start := p.next()
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseAnonymousScope()
	if err != nil {
		return nil, err
	}
	loop := &UntilLoop{Condition: cond, Body: body.(*AnonymousScope)}
	loop.setPos(start.Pos)
	return loop, nil
}

func (p *Parser) parseRepeat() (Node, error) {
	start := p.next()
	count, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseAnonymousScope()
	if err != nil {
		return nil, err
	}
	loop := &RepeatLoop{Count: count, Body: body.(*AnonymousScope)}
	loop.setPos(start.Pos)
	return loop, nil
}

func (p *Parser) parseFor() (Node, error) {
	start := p.next()
	varTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	loopVar := &IdentifierRef{Path: []string{varTok.Text}}
	loopVar.setPos(varTok.Pos)
	if _, err := p.expect(IN); err != nil {
		return nil, err
	}
	iterable, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseAnonymousScope()
	if err != nil {
		return nil, err
	}
	loop := &ForLoop{LoopVar: loopVar, Iterable: iterable, Body: body.(*AnonymousScope)}
	loop.setPos(start.Pos)
	return loop, nil
}

// parseWhen parses:
//
//	when expr {
//	    1, 2 -> { ... }
//	    5    -> { ... }
//	    else -> { ... }
//	}
func (p *Parser) parseWhen() (Node, error) {
	start := p.next()
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	stmt := &WhenStmt{Condition: cond}
	stmt.setPos(start.Pos)
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	for {
		p.skipNewlines()
		if p.accept(RBRACE) {
			return stmt, nil
		}
		choice := &WhenChoice{}
		choice.setPos(p.peek().Pos)
		if p.accept(ELSE) {
			// nil Values marks the else arm
		} else {
			for {
				v, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				choice.Values = append(choice.Values, v)
				if !p.accept(COMMA) {
					break
				}
			}
		}
		if _, err := p.expect(ARROW); err != nil {
			return nil, err
		}
		scope, err := p.parseAnonymousScope()
		if err != nil {
			return nil, err
		}
		choice.Statements = scope.(*AnonymousScope).Statements
		stmt.Choices = append(stmt.Choices, choice)
	}
}

func (p *Parser) parseReturn() (Node, error) {
	start := p.next()
	ret := &Return{}
	ret.setPos(start.Pos)
	if p.peek().Type != NEWLINE && p.peek().Type != RBRACE && p.peek().Type != EOF {
		for {
			v, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			ret.Values = append(ret.Values, v)
			if !p.accept(COMMA) {
				break
			}
		}
	}
	return ret, nil
}

func (p *Parser) parseGoto() (Node, error) {
	start := p.next()
	jump := &Jump{Address: -1}
	jump.setPos(start.Pos)
	if p.peek().Type == INTEGER {
		jump.Address = int(p.next().IntVal)
		return jump, nil
	}
	ident, err := p.parseIdentifierPath()
	if err != nil {
		return nil, err
	}
	jump.Identifier = ident
	return jump, nil
}

func (p *Parser) parseAnonymousScope() (Node, error) {
	tok, err := p.expect(LBRACE)
	if err != nil {
		return nil, err
	}
	scope := &AnonymousScope{Name: p.namegen.Next("anon")}
	scope.setPos(tok.Pos)
	stmts, err := p.parseStatementList()
	if err != nil {
		return nil, err
	}
	scope.Statements = stmts
	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}
	return scope, nil
}

// parseMemoryWriteStatement parses @(expr) [augop]= value.
func (p *Parser) parseMemoryWriteStatement() (Node, error) {
	start := p.next() // @
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	addr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	mem := &DirectMemoryRead{Address: addr}
	mem.setPos(start.Pos)
	target := &AssignTarget{MemoryWrite: mem}
	target.setPos(start.Pos)
	return p.parseAssignRest(target, start)
}

// parseIdentifierStatement disambiguates label / call / assignment /
// postfix increment starting at an identifier.
func (p *Parser) parseIdentifierStatement() (Node, error) {
	start := p.peek()

	// label definition
	if p.peekAt(1).Type == COLON {
		p.pos += 2
		l := &Label{Name: start.Text}
		l.setPos(start.Pos)
		return l, nil
	}

	// struct-typed variable declaration: StructName varname
	if p.peekAt(1).Type == IDENTIFIER && p.peekAt(2).Type != ASSIGN {
		structTok := p.next()
		nameTok := p.next()
		decl := &VarDecl{Kind: VarKindVar, Type: DTStruct, StructName: structTok.Text, Name: nameTok.Text}
		decl.setPos(start.Pos)
		return decl, nil
	}

	ident, err := p.parseIdentifierPath()
	if err != nil {
		return nil, err
	}

	switch p.peek().Type {
	case LPAREN:
		args, err := p.parseCallArgs()
		if err != nil {
			return nil, err
		}
		call := &FunctionCallStmt{Target: ident, Args: args}
		call.setPos(start.Pos)
		return call, nil

	case LBRACKET:
		p.pos++
		index, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RBRACKET); err != nil {
			return nil, err
		}
		indexed := &ArrayIndexed{Identifier: ident, Index: index}
		indexed.setPos(start.Pos)
		target := &AssignTarget{ArrayIndexed: indexed}
		target.setPos(start.Pos)
		return p.parseAssignRest(target, start)

	default:
		target := &AssignTarget{Identifier: ident}
		target.setPos(start.Pos)
		return p.parseAssignRest(target, start)
	}
}

// parseAssignRest parses the tail of an assignment or postfix statement
// once the target is known.
func (p *Parser) parseAssignRest(target *AssignTarget, start Token) (Node, error) {
	tok := p.peek()
	switch tok.Type {
	case PLUSPLUS, MINUSMINUS:
		p.pos++
		op := "++"
		if tok.Type == MINUSMINUS {
			op = "--"
		}
		stmt := &PostIncrDecr{Target: target, Op: op}
		stmt.setPos(start.Pos)
		return stmt, nil

	case ASSIGN:
		p.pos++
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt := &Assignment{Target: target, Value: value}
		stmt.setPos(start.Pos)
		return stmt, nil
	}

	if augOp, ok := augmentedOperators[tok.Type]; ok {
		p.pos++
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt := &Assignment{Target: target, AugOp: augOp, Value: value}
		stmt.setPos(start.Pos)
		return stmt, nil
	}
	return nil, p.fmtError(tok, "expected an assignment operator, found %s", tok)
}

func (p *Parser) parseIdentifierPath() (*IdentifierRef, error) {
	tok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	ident := &IdentifierRef{Path: []string{tok.Text}}
	ident.setPos(tok.Pos)
	for p.peek().Type == DOT && p.peekAt(1).Type == IDENTIFIER {
		p.pos++
		ident.Path = append(ident.Path, p.next().Text)
	}
	return ident, nil
}

func (p *Parser) parseCallArgs() ([]Expression, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	var args []Expression
	for p.peek().Type != RPAREN {
		a, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if !p.accept(COMMA) {
			break
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return args, nil
}

//  Expression parsing, highest level first.

// parseExpression handles the optional range tail: a .. b [step c].
func (p *Parser) parseExpression() (Expression, error) {
	from, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.accept(DOTDOT) {
		return from, nil
	}
	to, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	r := &RangeExpr{From: from, To: to}
	r.setPos(from.Pos())
	if p.accept(STEP) {
		step, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		r.Step = step
	}
	return r, nil
}

// binaryLevel builds one precedence level of left-associative operators.
func (p *Parser) binaryLevel(ops map[TokenType]string, sub func() (Expression, error)) (Expression, error) {
	left, err := sub()
	if err != nil {
		return nil, err
	}
	for {
		opName, ok := ops[p.peek().Type]
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := sub()
		if err != nil {
			return nil, err
		}
		bin := &BinaryExpr{Left: left, Op: opName, Right: right}
		bin.setPos(left.Pos())
		left = bin
	}
}

func (p *Parser) parseOr() (Expression, error) {
	return p.binaryLevel(map[TokenType]string{OR: "or"}, p.parseXor)
}

func (p *Parser) parseXor() (Expression, error) {
	return p.binaryLevel(map[TokenType]string{XOR: "xor"}, p.parseAnd)
}

func (p *Parser) parseAnd() (Expression, error) {
	return p.binaryLevel(map[TokenType]string{AND: "and"}, p.parseNot)
}

func (p *Parser) parseNot() (Expression, error) {
	if tok := p.peek(); tok.Type == NOT {
		p.pos++
		sub, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		e := &PrefixExpr{Op: "not", Expr: sub}
		e.setPos(tok.Pos)
		return e, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (Expression, error) {
	return p.binaryLevel(map[TokenType]string{
		EQ: "==", NEQ: "!=", LT: "<", GT: ">", LE: "<=", GE: ">=",
	}, p.parseBitOr)
}

func (p *Parser) parseBitOr() (Expression, error) {
	return p.binaryLevel(map[TokenType]string{PIPE: "|"}, p.parseBitXor)
}

func (p *Parser) parseBitXor() (Expression, error) {
	return p.binaryLevel(map[TokenType]string{CARET: "^"}, p.parseBitAnd)
}

func (p *Parser) parseBitAnd() (Expression, error) {
	return p.binaryLevel(map[TokenType]string{AMP: "&"}, p.parseShift)
}

func (p *Parser) parseShift() (Expression, error) {
	return p.binaryLevel(map[TokenType]string{SHIFTL: "<<", SHIFTR: ">>"}, p.parseAdditive)
}

func (p *Parser) parseAdditive() (Expression, error) {
	return p.binaryLevel(map[TokenType]string{PLUS: "+", MINUS: "-"}, p.parseMultiplicative)
}

func (p *Parser) parseMultiplicative() (Expression, error) {
	return p.binaryLevel(map[TokenType]string{STARTOK: "*", SLASH: "/", PERCENT: "%"}, p.parseUnary)
}

func (p *Parser) parseUnary() (Expression, error) {
	tok := p.peek()
	switch tok.Type {
	case PLUS, MINUS, TILDE:
		p.pos++
		sub, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		op := map[TokenType]string{PLUS: "+", MINUS: "-", TILDE: "~"}[tok.Type]
		// fold an immediately negated literal
		if lit, ok := sub.(*NumericLiteral); ok && op == "-" {
			return NewNumericLiteral(-lit.Value, tok.Pos), nil
		}
		e := &PrefixExpr{Op: op, Expr: sub}
		e.setPos(tok.Pos)
		return e, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expression, error) {
	tok := p.peek()
	switch tok.Type {
	case INTEGER, CHARLIT:
		p.pos++
		lit := &NumericLiteral{Type: tok.NumType, Value: float64(tok.IntVal)}
		lit.setPos(tok.Pos)
		return lit, nil

	case FLOATLIT:
		p.pos++
		lit := &NumericLiteral{Type: DTFloat, Value: tok.FloatVal}
		lit.setPos(tok.Pos)
		return lit, nil

	case STRINGLIT:
		p.pos++
		lit := &StringLiteral{Value: tok.Text}
		lit.setPos(tok.Pos)
		return lit, nil

	case LPAREN:
		p.pos++
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return e, nil

	case LBRACKET:
		p.pos++
		arr := &ArrayLiteral{}
		arr.setPos(tok.Pos)
		for p.peek().Type != RBRACKET {
			p.skipNewlines()
			v, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			arr.Values = append(arr.Values, v)
			p.skipNewlines()
			if !p.accept(COMMA) {
				break
			}
		}
		if _, err := p.expect(RBRACKET); err != nil {
			return nil, err
		}
		return arr, nil

	case AT:
		p.pos++
		if _, err := p.expect(LPAREN); err != nil {
			return nil, err
		}
		addr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		e := &DirectMemoryRead{Address: addr}
		e.setPos(tok.Pos)
		return e, nil

	case AMP:
		p.pos++
		ident, err := p.parseIdentifierPath()
		if err != nil {
			return nil, err
		}
		e := &AddressOf{Identifier: ident}
		e.setPos(tok.Pos)
		return e, nil

	case UBYTE, BYTE, UWORD, WORD, FLOAT:
		// explicit typecast: uword(expr)
		p.pos++
		if _, err := p.expect(LPAREN); err != nil {
			return nil, err
		}
		sub, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		cast := &TypecastExpr{Expr: sub, Type: typeKeywords[tok.Type]}
		cast.setPos(tok.Pos)
		return cast, nil

	case IDENTIFIER:
		ident, err := p.parseIdentifierPath()
		if err != nil {
			return nil, err
		}
		switch p.peek().Type {
		case LPAREN:
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			call := &FunctionCall{Target: ident, Args: args}
			call.setPos(tok.Pos)
			return call, nil
		case LBRACKET:
			p.pos++
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
			indexed := &ArrayIndexed{Identifier: ident, Index: index}
			indexed.setPos(tok.Pos)
			return indexed, nil
		}
		return ident, nil
	}
	return nil, p.fmtError(tok, "unexpected %s in expression", tok)
}
