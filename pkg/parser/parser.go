// Package parser turns CSML source text into a pkg/ast.Flow via a
// hand-written recursive-descent, Pratt-style expression parser.
package parser

import (
	"fmt"
	"strconv"

	"github.com/csml-run/csml-engine/pkg/ast"
	"github.com/csml-run/csml-engine/pkg/lexer"
	"github.com/csml-run/csml-engine/pkg/value"
)

// SyntaxError is one parse diagnostic, positioned in the source.
type SyntaxError struct {
	Message string
	Pos     ast.Interval
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// bailout unwinds the recursive descent to the top-level Parse call once a
// syntax error has been recorded; resync happens per top-level instruction,
// matching how go/parser recovers instead of threading error returns
// through every production.
type bailout struct{}

type Parser struct {
	src    string
	lx     *lexer.Lexer
	cur    lexer.Token
	peekTk lexer.Token
	errs   []error
}

func New(src string) *Parser {
	p := &Parser{src: src, lx: lexer.New(src)}
	p.cur = p.lx.Next()
	p.peekTk = p.lx.Next()
	return p
}

func (p *Parser) advance() {
	p.cur = p.peekTk
	p.peekTk = p.lx.Next()
}

func (p *Parser) at(k lexer.TokenKind) bool  { return p.cur.Kind == k }
func (p *Parser) peekIs(k lexer.TokenKind) bool { return p.peekTk.Kind == k }

func (p *Parser) pos() ast.Interval {
	return ast.Interval{Line: p.cur.Line, Column: p.cur.Column, Offset: p.cur.Offset}
}

func (p *Parser) errorf(format string, args ...any) {
	p.errs = append(p.errs, &SyntaxError{Message: fmt.Sprintf(format, args...), Pos: p.pos()})
	panic(bailout{})
}

func (p *Parser) expect(k lexer.TokenKind, what string) lexer.Token {
	if p.cur.Kind != k {
		p.errorf("expected %s, found %q", what, p.cur.Text)
	}
	t := p.cur
	p.advance()
	return t
}

// ParseFlow parses one flow's source body: a sequence of `fn` declarations,
// top-level `insert step` directives, and `name:` step blocks.
func ParseFlow(name, src string) (*ast.Flow, []error) {
	p := New(src)
	flow := &ast.Flow{
		Name:      name,
		Content:   src,
		Steps:     map[string]*ast.Step{},
		Functions: map[string]*ast.FunctionDecl{},
	}
	flow.Interval = ast.Interval{Line: 1, Column: 1, Offset: 0}

	for !p.at(lexer.EOF) {
		p.parseTopLevel(flow)
	}
	if len(p.errs) > 0 {
		return flow, p.errs
	}
	return flow, nil
}

func (p *Parser) parseTopLevel(flow *ast.Flow) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			p.resyncTopLevel()
		}
	}()

	switch {
	case p.at(lexer.KwFn):
		fn := p.parseFunctionDecl()
		if _, dup := flow.Functions[fn.Name]; dup {
			p.errs = append(p.errs, &SyntaxError{Message: fmt.Sprintf("duplicate function %q", fn.Name), Pos: fn.Interval})
		}
		flow.Functions[fn.Name] = fn
	case p.at(lexer.KwInsert):
		p.parseTopLevelInsert(flow)
	case p.at(lexer.KwImport):
		p.skipImport()
	case p.at(lexer.Ident) && p.peekIs(lexer.Colon):
		step := p.parseStep()
		if _, dup := flow.Steps[step.Name]; dup {
			p.errs = append(p.errs, &SyntaxError{Message: fmt.Sprintf("duplicate step %q", step.Name), Pos: step.Interval})
		} else {
			flow.StepOrder = append(flow.StepOrder, step.Name)
		}
		flow.Steps[step.Name] = step
	default:
		p.errorf("unexpected token %q at top level", p.cur.Text)
	}
}

// resyncTopLevel discards tokens until the next plausible top-level start,
// so one bad instruction doesn't hide every diagnostic after it.
func (p *Parser) resyncTopLevel() {
	for !p.at(lexer.EOF) {
		if p.at(lexer.KwFn) || p.at(lexer.KwInsert) || p.at(lexer.KwImport) {
			return
		}
		if p.at(lexer.Ident) && p.peekIs(lexer.Colon) {
			return
		}
		p.advance()
	}
}

func (p *Parser) skipImport() {
	p.advance() // import
	for !p.at(lexer.EOF) {
		if p.at(lexer.KwFn) || p.at(lexer.KwInsert) {
			return
		}
		if p.at(lexer.Ident) && p.peekIs(lexer.Colon) {
			return
		}
		p.advance()
	}
}

func (p *Parser) parseFunctionDecl() *ast.FunctionDecl {
	start := p.pos()
	p.advance() // fn
	name := p.expect(lexer.Ident, "function name").Text
	p.expect(lexer.LParen, "(")
	var params []string
	for !p.at(lexer.RParen) {
		params = append(params, p.expect(lexer.Ident, "parameter name").Text)
		if p.at(lexer.Comma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(lexer.RParen, ")")
	body := p.parseBlock()
	return &ast.FunctionDecl{Name: name, Params: params, Body: body, Interval: start}
}

// parseInsertTargets parses either `step X [as Y]` or `{ step X [as Y],
// step Z [as W] }`, returning the list of (stepName, alias) pairs.
type insertTarget struct {
	Step  string
	Alias string
}

func (p *Parser) parseInsertTargets() []insertTarget {
	one := func() insertTarget {
		p.expect(lexer.KwStep, "step")
		name := p.expect(lexer.Ident, "step name").Text
		alias := ""
		if p.at(lexer.KwAs) {
			p.advance()
			alias = p.expect(lexer.Ident, "alias name").Text
		}
		return insertTarget{Step: name, Alias: alias}
	}
	if p.at(lexer.LBrace) {
		p.advance()
		var targets []insertTarget
		for !p.at(lexer.RBrace) {
			targets = append(targets, one())
			if p.at(lexer.Comma) {
				p.advance()
			} else {
				break
			}
		}
		p.expect(lexer.RBrace, "}")
		return targets
	}
	return []insertTarget{one()}
}

func (p *Parser) parseInsertFrom() string {
	p.expect(lexer.KwFrom, "from")
	if p.at(lexer.KwFlow) {
		p.advance()
	}
	return p.expect(lexer.Ident, "flow name").Text
}

// parseTopLevelInsert handles `insert step X [as Y] from flow F` and its
// braced multi-form at the top level: each target becomes a new Step in
// this flow, body resolved later against the origin flow (see
// BuildBot).
func (p *Parser) parseTopLevelInsert(flow *ast.Flow) {
	start := p.pos()
	p.advance() // insert
	targets := p.parseInsertTargets()
	fromFlow := p.parseInsertFrom()
	for _, t := range targets {
		name := t.Step
		if t.Alias != "" {
			name = t.Alias
		}
		step := &ast.Step{
			Name:         name,
			Interval:     start,
			InsertedFrom: &ast.InsertOrigin{FromFlow: fromFlow, StepName: t.Step},
		}
		if _, dup := flow.Steps[name]; !dup {
			flow.StepOrder = append(flow.StepOrder, name)
		}
		flow.Steps[name] = step
	}
}

func (p *Parser) parseStep() *ast.Step {
	start := p.pos()
	name := p.expect(lexer.Ident, "step name").Text
	p.expect(lexer.Colon, ":")
	bodyStart := p.cur.Offset
	body := p.parseBlock()
	bodyEnd := p.cur.Offset
	source := ""
	if bodyStart <= len(p.src) && bodyEnd <= len(p.src) && bodyStart <= bodyEnd {
		source = p.src[bodyStart:bodyEnd]
	}
	return &ast.Step{Name: name, Body: body, Source: source, Interval: start}
}

func (p *Parser) parseBlock() []ast.Statement {
	p.expect(lexer.LBrace, "{")
	var stmts []ast.Statement
	for !p.at(lexer.RBrace) && !p.at(lexer.EOF) {
		stmts = append(stmts, p.parseStatement())
	}
	p.expect(lexer.RBrace, "}")
	return stmts
}

func (p *Parser) parseStatement() ast.Statement {
	start := p.pos()
	switch {
	case p.at(lexer.KwDo):
		return p.parseDoAssign(start)
	case p.at(lexer.KwSay):
		p.advance()
		e := p.parseExpr()
		return ast.NewSay(start, e)
	case p.at(lexer.KwRemember):
		p.advance()
		key := p.expect(lexer.Ident, "memory key").Text
		p.expect(lexer.Assign, "=")
		e := p.parseExpr()
		return ast.NewRemember(start, key, e)
	case p.at(lexer.KwForget):
		return p.parseForget(start)
	case p.at(lexer.KwHold):
		p.advance()
		return ast.NewHold(start)
	case p.at(lexer.KwGoto):
		return p.parseGoto(start)
	case p.at(lexer.KwReturn):
		p.advance()
		var e ast.Expr
		if !p.atStatementEnd() {
			e = p.parseExpr()
		}
		return ast.NewReturn(start, e)
	case p.at(lexer.KwIf):
		return p.parseIf(start)
	case p.at(lexer.KwForeach):
		return p.parseForeach(start)
	case p.at(lexer.KwBreak):
		p.advance()
		return ast.NewBreak(start)
	case p.at(lexer.KwContinue):
		p.advance()
		return ast.NewContinue(start)
	case p.at(lexer.KwInsert):
		return p.parseInsertStatement(start)
	default:
		e := p.parseExpr()
		return ast.NewExprStmt(start, e)
	}
}

// atStatementEnd reports whether the current token closes the enclosing
// block (or ends the input), used to detect a bare `return` with no
// expression.
func (p *Parser) atStatementEnd() bool {
	return p.at(lexer.RBrace) || p.at(lexer.EOF)
}

func (p *Parser) parseDoAssign(start ast.Interval) ast.Statement {
	p.advance() // do
	target := p.expect(lexer.Ident, "assignment target").Text
	op := p.parseAssignOp()
	val := p.parseExpr()
	return ast.NewDoAssign(start, target, op, val)
}

func (p *Parser) parseAssignOp() ast.AssignOp {
	switch p.cur.Kind {
	case lexer.Assign:
		p.advance()
		return ast.AssignSet
	case lexer.PlusAssign:
		p.advance()
		return ast.AssignAdd
	case lexer.MinusAssign:
		p.advance()
		return ast.AssignSub
	case lexer.StarAssign:
		p.advance()
		return ast.AssignMul
	case lexer.SlashAssign:
		p.advance()
		return ast.AssignDiv
	case lexer.PercentAssign:
		p.advance()
		return ast.AssignMod
	default:
		p.errorf("expected assignment operator, found %q", p.cur.Text)
		return ast.AssignSet
	}
}

func (p *Parser) parseForget(start ast.Interval) ast.Statement {
	p.advance() // forget
	if p.at(lexer.Star) {
		p.advance()
		return ast.NewForget(start, ast.ForgetAll, nil)
	}
	if p.at(lexer.LBracket) {
		p.advance()
		var keys []string
		for !p.at(lexer.RBracket) {
			keys = append(keys, p.expect(lexer.Ident, "memory key").Text)
			if p.at(lexer.Comma) {
				p.advance()
			} else {
				break
			}
		}
		p.expect(lexer.RBracket, "]")
		return ast.NewForget(start, ast.ForgetMany, keys)
	}
	key := p.expect(lexer.Ident, "memory key").Text
	return ast.NewForget(start, ast.ForgetOne, []string{key})
}

func (p *Parser) parseGoto(start ast.Interval) ast.Statement {
	p.advance() // goto
	switch {
	case p.at(lexer.KwStep):
		p.advance()
		name := p.expect(lexer.Ident, "step name").Text
		return ast.NewGoto(start, ast.GotoStep, name)
	case p.at(lexer.KwFlow):
		p.advance()
		name := p.expect(lexer.Ident, "flow name").Text
		return ast.NewGoto(start, ast.GotoFlow, name)
	case p.at(lexer.KwBot):
		p.advance()
		name := p.expect(lexer.Ident, "bot name").Text
		return ast.NewGoto(start, ast.GotoBot, name)
	default:
		name := p.expect(lexer.Ident, "goto target").Text
		return ast.NewGoto(start, ast.GotoBare, name)
	}
}

func (p *Parser) parseIf(start ast.Interval) ast.Statement {
	var branches []ast.IfBranch
	p.advance() // if
	cond := p.parseExpr()
	body := p.parseBlock()
	branches = append(branches, ast.IfBranch{Cond: cond, Body: body})
	for p.at(lexer.KwElif) {
		p.advance()
		c := p.parseExpr()
		b := p.parseBlock()
		branches = append(branches, ast.IfBranch{Cond: c, Body: b})
	}
	if p.at(lexer.KwElse) {
		p.advance()
		b := p.parseBlock()
		branches = append(branches, ast.IfBranch{Cond: nil, Body: b})
	}
	return ast.NewIf(start, branches)
}

func (p *Parser) parseForeach(start ast.Interval) ast.Statement {
	p.advance() // foreach
	p.expect(lexer.LParen, "(")
	item := p.expect(lexer.Ident, "loop variable").Text
	index := ""
	if p.at(lexer.Comma) {
		p.advance()
		index = p.expect(lexer.Ident, "index variable").Text
	}
	p.expect(lexer.RParen, ")")
	p.expect(lexer.KwIn, "in")
	iter := p.parseExpr()
	body := p.parseBlock()
	return ast.NewForeach(start, item, index, iter, body)
}

func (p *Parser) parseInsertStatement(start ast.Interval) ast.Statement {
	p.advance() // insert
	p.expect(lexer.KwStep, "step")
	name := p.expect(lexer.Ident, "step name").Text
	alias := ""
	if p.at(lexer.KwAs) {
		p.advance()
		alias = p.expect(lexer.Ident, "alias name").Text
	}
	from := p.parseInsertFrom()
	return ast.NewInsertStep(start, name, alias, from)
}

// --- expressions -----------------------------------------------------

var precedence = map[lexer.TokenKind]int{
	lexer.Or:      1,
	lexer.And:     2,
	lexer.Eq:      3,
	lexer.Neq:     3,
	lexer.Lt:      3,
	lexer.Lte:     3,
	lexer.Gt:      3,
	lexer.Gte:     3,
	lexer.Plus:    4,
	lexer.Minus:   4,
	lexer.Star:    5,
	lexer.Slash:   5,
	lexer.Percent: 5,
}

var binOpSymbol = map[lexer.TokenKind]ast.BinOp{
	lexer.Or:      ast.OpOr,
	lexer.And:     ast.OpAnd,
	lexer.Eq:      ast.OpEq,
	lexer.Neq:     ast.OpNeq,
	lexer.Lt:      ast.OpLt,
	lexer.Lte:     ast.OpLte,
	lexer.Gt:      ast.OpGt,
	lexer.Gte:     ast.OpGte,
	lexer.Plus:    ast.OpAdd,
	lexer.Minus:   ast.OpSub,
	lexer.Star:    ast.OpMul,
	lexer.Slash:   ast.OpDiv,
	lexer.Percent: ast.OpMod,
}

func (p *Parser) parseExpr() ast.Expr {
	return p.parseBinary(0)
}

func (p *Parser) parseBinary(minPrec int) ast.Expr {
	left := p.parseUnary()
	for {
		prec, ok := precedence[p.cur.Kind]
		if !ok || prec < minPrec {
			return left
		}
		op := binOpSymbol[p.cur.Kind]
		pos := p.pos()
		p.advance()
		right := p.parseBinary(prec + 1)
		left = ast.NewBinaryExpr(pos, op, left, right)
	}
}

func (p *Parser) parseUnary() ast.Expr {
	if p.at(lexer.Not) || p.at(lexer.Minus) {
		pos := p.pos()
		op := "-"
		if p.at(lexer.Not) {
			op = "!"
		}
		p.advance()
		operand := p.parseUnary()
		return ast.NewUnaryExpr(pos, op, operand)
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expr {
	e := p.parsePrimary()
	for p.at(lexer.Dot) {
		pos := p.pos()
		p.advance()
		name := p.expect(lexer.Ident, "method name").Text
		args, named := p.parseCallArgs()
		e = ast.NewMethodCall(pos, e, name, args, named)
	}
	return e
}

// parseCallArgs parses `(arg, arg, name: arg, ...)`, distinguishing
// positional from named arguments by a following colon.
func (p *Parser) parseCallArgs() ([]ast.Expr, map[string]ast.Expr) {
	p.expect(lexer.LParen, "(")
	var pos []ast.Expr
	var named map[string]ast.Expr
	for !p.at(lexer.RParen) {
		if p.at(lexer.Ident) && p.peekIs(lexer.Colon) {
			name := p.cur.Text
			p.advance()
			p.advance() // colon
			if named == nil {
				named = map[string]ast.Expr{}
			}
			named[name] = p.parseExpr()
		} else {
			pos = append(pos, p.parseExpr())
		}
		if p.at(lexer.Comma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(lexer.RParen, ")")
	return pos, named
}

func (p *Parser) parsePrimary() ast.Expr {
	pos := p.pos()
	switch p.cur.Kind {
	case lexer.KwNull:
		p.advance()
		return ast.NewLiteral(pos, value.NewNull())
	case lexer.KwTrue:
		p.advance()
		return ast.NewLiteral(pos, value.NewBool(true))
	case lexer.KwFalse:
		p.advance()
		return ast.NewLiteral(pos, value.NewBool(false))
	case lexer.Int:
		text := p.cur.Text
		p.advance()
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			p.errorf("invalid integer literal %q", text)
		}
		return ast.NewLiteral(pos, value.NewInt(n))
	case lexer.Float:
		text := p.cur.Text
		p.advance()
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.errorf("invalid float literal %q", text)
		}
		return ast.NewLiteral(pos, value.NewFloat(f))
	case lexer.String:
		text := p.cur.Text
		p.advance()
		return ast.NewLiteral(pos, value.NewString(text))
	case lexer.StringTmpl:
		text := p.cur.Text
		p.advance()
		return p.parseStringTemplate(pos, text)
	case lexer.LBracket:
		return p.parseArrayLit(pos)
	case lexer.LBrace:
		return p.parseObjectLit(pos)
	case lexer.LParen:
		p.advance()
		e := p.parseExpr()
		p.expect(lexer.RParen, ")")
		return e
	case lexer.KwFn:
		return p.parseClosureLit(pos)
	case lexer.Ident:
		name := p.cur.Text
		p.advance()
		if p.at(lexer.LParen) {
			args, named := p.parseCallArgs()
			return ast.NewFuncCall(pos, name, args, named)
		}
		return ast.NewIdentifier(pos, name)
	default:
		p.errorf("unexpected token %q in expression", p.cur.Text)
		return nil
	}
}

func (p *Parser) parseArrayLit(pos ast.Interval) ast.Expr {
	p.advance() // [
	var items []ast.Expr
	for !p.at(lexer.RBracket) {
		items = append(items, p.parseExpr())
		if p.at(lexer.Comma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(lexer.RBracket, "]")
	return ast.NewArrayLit(pos, items)
}

func (p *Parser) parseObjectLit(pos ast.Interval) ast.Expr {
	p.advance() // {
	var keys []string
	var vals []ast.Expr
	for !p.at(lexer.RBrace) {
		var key string
		switch p.cur.Kind {
		case lexer.Ident:
			key = p.cur.Text
			p.advance()
		case lexer.String:
			key = p.cur.Text
			p.advance()
		default:
			p.errorf("expected object key, found %q", p.cur.Text)
		}
		p.expect(lexer.Colon, ":")
		v := p.parseExpr()
		keys = append(keys, key)
		vals = append(vals, v)
		if p.at(lexer.Comma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(lexer.RBrace, "}")
	return ast.NewObjectLit(pos, keys, vals)
}

func (p *Parser) parseClosureLit(pos ast.Interval) ast.Expr {
	p.advance() // fn
	p.expect(lexer.LParen, "(")
	var params []string
	for !p.at(lexer.RParen) {
		params = append(params, p.expect(lexer.Ident, "parameter name").Text)
		if p.at(lexer.Comma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(lexer.RParen, ")")
	body := p.parseBlock()
	return ast.NewClosureLit(pos, params, body)
}

// parseStringTemplate splits a StringTmpl token's text on `{{ ... }}`
// markers and parses each embedded expression with its own sub-parser,
// positions reported relative to the template token's start.
func (p *Parser) parseStringTemplate(pos ast.Interval, text string) ast.Expr {
	var chunks []string
	var exprs []ast.Expr
	i := 0
	cur := ""
	for i < len(text) {
		if i+1 < len(text) && text[i] == '{' && text[i+1] == '{' {
			end := indexFrom(text, "}}", i+2)
			if end < 0 {
				p.errorf("unterminated interpolation in string literal")
			}
			chunks = append(chunks, cur)
			cur = ""
			sub := text[i+2 : end]
			e := p.parseSubExpr(sub)
			exprs = append(exprs, e)
			i = end + 2
			continue
		}
		cur += string(text[i])
		i++
	}
	chunks = append(chunks, cur)
	return ast.NewStringInterp(pos, chunks, exprs)
}

// parseSubExpr parses an interpolated `{{ ... }}` body with its own
// sub-parser, folding any syntax errors it records into the outer parser's
// error list even if the sub-parse bails out via panic.
func (p *Parser) parseSubExpr(src string) (e ast.Expr) {
	sp := New(src)
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
		}
		p.errs = append(p.errs, sp.errs...)
	}()
	e = sp.parseExpr()
	return e
}

func indexFrom(s, sub string, from int) int {
	if from > len(s) {
		return -1
	}
	idx := indexBytes(s[from:], sub)
	if idx < 0 {
		return -1
	}
	return from + idx
}

func indexBytes(s, sub string) int {
	n := len(sub)
	for i := 0; i+n <= len(s); i++ {
		if s[i:i+n] == sub {
			return i
		}
	}
	return -1
}

// Errors returns the syntax errors recorded by a Parser used directly
// (e.g. by tests exercising parseExpr in isolation).
func (p *Parser) Errors() []error { return p.errs }
