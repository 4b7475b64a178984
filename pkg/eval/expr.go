package eval

import (
	"fmt"
	"strings"

	"github.com/csml-run/csml-engine/pkg/ast"
	"github.com/csml-run/csml-engine/pkg/value"
)

// eval evaluates e against scope. flow is the lexical home used to resolve
// bare function calls against the right flow's function table (it changes
// while executing an inlined `insert step` block, see execInsertStep).
// stepCtx is carried along purely so that a `hold` reached from inside a
// called function/closure still attributes its hash to the step that was
// executing when the call was made.
func (e *Evaluator) eval(expr ast.Expr, scope *Scope, flow *ast.Flow, stepCtx ast.StepContext) (value.Value, error) {
	switch n := expr.(type) {
	case *ast.Literal:
		return n.Value, nil

	case *ast.Identifier:
		v, ok := scope.Lookup(n.Name)
		if !ok {
			return value.Value{}, fmt.Errorf("interpret: undefined variable %q", n.Name)
		}
		return v, nil

	case *ast.StringInterp:
		return e.evalStringInterp(n, scope, flow, stepCtx)

	case *ast.ArrayLit:
		items := make([]value.Value, len(n.Items))
		for i, it := range n.Items {
			v, err := e.eval(it, scope, flow, stepCtx)
			if err != nil {
				return value.Value{}, err
			}
			items[i] = v
		}
		return value.NewArray(items), nil

	case *ast.ObjectLit:
		fields := make(map[string]value.Value, len(n.Keys))
		for i, k := range n.Keys {
			v, err := e.eval(n.Values[i], scope, flow, stepCtx)
			if err != nil {
				return value.Value{}, err
			}
			fields[k] = v
		}
		return value.NewObject(fields, n.Keys), nil

	case *ast.BinaryExpr:
		return e.evalBinary(n, scope, flow, stepCtx)

	case *ast.UnaryExpr:
		return e.evalUnary(n, scope, flow, stepCtx)

	case *ast.MethodCall:
		return e.evalMethodCall(n, scope, flow, stepCtx)

	case *ast.FuncCall:
		return e.evalFuncCall(n, scope, flow, stepCtx)

	case *ast.ComponentCall:
		return e.evalComponentCall(n, scope, flow, stepCtx)

	case *ast.ClosureLit:
		return value.NewClosure(&value.ClosureValue{
			Params:  n.Params,
			Body:    n,
			Capture: scope.CaptureSnapshot(),
		}), nil

	default:
		return value.Value{}, fmt.Errorf("interpret: unhandled expression %T", expr)
	}
}

func (e *Evaluator) evalStringInterp(n *ast.StringInterp, scope *Scope, flow *ast.Flow, stepCtx ast.StepContext) (value.Value, error) {
	var b strings.Builder
	for i, chunk := range n.Chunks {
		b.WriteString(chunk)
		if i < len(n.Exprs) {
			v, err := e.eval(n.Exprs[i], scope, flow, stepCtx)
			if err != nil {
				return value.Value{}, err
			}
			b.WriteString(v.String())
		}
	}
	return value.NewString(b.String()), nil
}

func (e *Evaluator) evalUnary(n *ast.UnaryExpr, scope *Scope, flow *ast.Flow, stepCtx ast.StepContext) (value.Value, error) {
	v, err := e.eval(n.Operand, scope, flow, stepCtx)
	if err != nil {
		return value.Value{}, err
	}
	switch n.Op {
	case "!":
		return value.NewBool(!v.Truthy()), nil
	case "-":
		switch v.Kind {
		case value.Int:
			return value.NewInt(-v.AsInt()), nil
		case value.Float:
			return value.NewFloat(-v.AsFloat()), nil
		default:
			return value.Value{}, fmt.Errorf("interpret: cannot negate %s", v.TypeName())
		}
	default:
		return value.Value{}, fmt.Errorf("interpret: unknown unary operator %q", n.Op)
	}
}

func (e *Evaluator) evalBinary(n *ast.BinaryExpr, scope *Scope, flow *ast.Flow, stepCtx ast.StepContext) (value.Value, error) {
	// && and || short-circuit: the right side is only evaluated if needed.
	if n.Op == ast.OpAnd {
		l, err := e.eval(n.Left, scope, flow, stepCtx)
		if err != nil {
			return value.Value{}, err
		}
		if !l.Truthy() {
			return value.NewBool(false), nil
		}
		r, err := e.eval(n.Right, scope, flow, stepCtx)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewBool(r.Truthy()), nil
	}
	if n.Op == ast.OpOr {
		l, err := e.eval(n.Left, scope, flow, stepCtx)
		if err != nil {
			return value.Value{}, err
		}
		if l.Truthy() {
			return value.NewBool(true), nil
		}
		r, err := e.eval(n.Right, scope, flow, stepCtx)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewBool(r.Truthy()), nil
	}

	l, err := e.eval(n.Left, scope, flow, stepCtx)
	if err != nil {
		return value.Value{}, err
	}
	r, err := e.eval(n.Right, scope, flow, stepCtx)
	if err != nil {
		return value.Value{}, err
	}

	switch n.Op {
	case ast.OpAdd:
		return wrapArith(value.Add(l, r))
	case ast.OpSub:
		return wrapArith(value.Sub(l, r))
	case ast.OpMul:
		return wrapArith(value.Mul(l, r))
	case ast.OpDiv:
		return wrapArith(value.Div(l, r))
	case ast.OpMod:
		return wrapArith(value.Mod(l, r))
	case ast.OpEq:
		return value.NewBool(l.Equal(r)), nil
	case ast.OpNeq:
		return value.NewBool(!l.Equal(r)), nil
	case ast.OpLt, ast.OpLte, ast.OpGt, ast.OpGte:
		ord, ok := value.Compare(l, r)
		if !ok {
			return value.Value{}, fmt.Errorf("interpret: %s and %s are not comparable", l.TypeName(), r.TypeName())
		}
		switch n.Op {
		case ast.OpLt:
			return value.NewBool(ord == value.Less), nil
		case ast.OpLte:
			return value.NewBool(ord != value.Greater), nil
		case ast.OpGt:
			return value.NewBool(ord == value.Greater), nil
		default:
			return value.NewBool(ord != value.Less), nil
		}
	default:
		return value.Value{}, fmt.Errorf("interpret: unknown binary operator %q", n.Op)
	}
}

func wrapArith(v value.Value, err error) (value.Value, error) {
	if err != nil {
		return value.Value{}, fmt.Errorf("interpret: %w", err)
	}
	return v, nil
}

func (e *Evaluator) evalMethodCall(n *ast.MethodCall, scope *Scope, flow *ast.Flow, stepCtx ast.StepContext) (value.Value, error) {
	recv, err := e.eval(n.Recv, scope, flow, stepCtx)
	if err != nil {
		return value.Value{}, err
	}
	args := make([]value.Value, 0, len(n.Args)+len(n.NamedArgs))
	for _, a := range n.Args {
		v, err := e.eval(a, scope, flow, stepCtx)
		if err != nil {
			return value.Value{}, err
		}
		args = append(args, v)
	}
	for _, a := range n.NamedArgs {
		v, err := e.eval(a, scope, flow, stepCtx)
		if err != nil {
			return value.Value{}, err
		}
		args = append(args, v)
	}
	if id, ok := n.Recv.(*ast.Identifier); ok && scope.IsConstant(id.Name) {
		if access, found := value.MethodAccess(recv.Kind, n.Name); found && access == value.Write {
			return value.Value{}, fmt.Errorf("interpret: %s.%s: cannot call a write method on constant %q", recv.TypeName(), n.Name, id.Name)
		}
	}
	result, err := recv.Call(n.Name, args)
	if err != nil {
		return value.Value{}, fmt.Errorf("interpret: %s.%s: %w", recv.TypeName(), n.Name, err)
	}
	return result, nil
}

// evalFuncCall resolves name against, in order: an in-scope closure-typed
// variable, then the lexical flow's own function table. Either way the
// callee runs with a fresh step_vars layer seeded from its parameters (and,
// for a closure, its captured snapshot) sharing the caller's current and
// metadata layers (spec.md §4.3 "Function/closure calls").
func (e *Evaluator) evalFuncCall(n *ast.FuncCall, scope *Scope, flow *ast.Flow, stepCtx ast.StepContext) (value.Value, error) {
	if v, ok := scope.Lookup(n.Name); ok && v.Kind == value.Closure {
		return e.callClosure(v.AsClosure(), n.Args, n.NamedArgs, scope, flow, stepCtx)
	}
	decl, ok := flow.Functions[n.Name]
	if !ok {
		return value.Value{}, fmt.Errorf("interpret: undefined function %q", n.Name)
	}
	return e.callDecl(decl, n.Args, n.NamedArgs, scope, flow, stepCtx)
}

func (e *Evaluator) callDecl(decl *ast.FunctionDecl, argExprs []ast.Expr, named map[string]ast.Expr, scope *Scope, flow *ast.Flow, stepCtx ast.StepContext) (value.Value, error) {
	callScope := scope.Fresh()
	if err := e.bindParams(decl.Params, argExprs, named, scope, flow, stepCtx, callScope); err != nil {
		return value.Value{}, err
	}
	_, ret, err := e.execBlock(decl.Body, callScope, flow, stepCtx, 0)
	if err != nil {
		return value.Value{}, err
	}
	return ret, nil
}

func (e *Evaluator) callClosure(clo *value.ClosureValue, argExprs []ast.Expr, named map[string]ast.Expr, scope *Scope, flow *ast.Flow, stepCtx ast.StepContext) (value.Value, error) {
	callScope := scope.Fresh()
	for k, v := range clo.Capture {
		callScope.SetLocal(k, v)
	}
	if err := e.bindParams(clo.Params, argExprs, named, scope, flow, stepCtx, callScope); err != nil {
		return value.Value{}, err
	}
	lit, ok := clo.Body.(*ast.ClosureLit)
	if !ok {
		return value.Value{}, fmt.Errorf("interpret: closure body has unexpected type %T", clo.Body)
	}
	_, ret, err := e.execBlock(lit.Body, callScope, flow, stepCtx, 0)
	if err != nil {
		return value.Value{}, err
	}
	return ret, nil
}

// bindParams binds params positionally from argExprs, then fills any
// remaining names from named, erroring on arity mismatch or an unknown
// named argument (spec.md §4.3 "positional or named argument binding").
func (e *Evaluator) bindParams(params []string, argExprs []ast.Expr, named map[string]ast.Expr, callerScope *Scope, flow *ast.Flow, stepCtx ast.StepContext, callScope *Scope) error {
	if len(argExprs) > len(params) {
		return fmt.Errorf("interpret: too many arguments: want %d, got %d", len(params), len(argExprs))
	}
	bound := make(map[string]bool, len(params))
	for i, a := range argExprs {
		v, err := e.eval(a, callerScope, flow, stepCtx)
		if err != nil {
			return err
		}
		callScope.SetLocal(params[i], v)
		bound[params[i]] = true
	}
	for name, a := range named {
		isParam := false
		for _, p := range params {
			if p == name {
				isParam = true
				break
			}
		}
		if !isParam {
			return fmt.Errorf("interpret: unknown named argument %q", name)
		}
		v, err := e.eval(a, callerScope, flow, stepCtx)
		if err != nil {
			return err
		}
		callScope.SetLocal(name, v)
		bound[name] = true
	}
	for _, p := range params {
		if !bound[p] {
			return fmt.Errorf("interpret: missing argument %q", p)
		}
	}
	return nil
}

// evalComponentCall validates args against the component's schema (required
// fields, defaults, union types) and produces an Object value tagged with
// the component's content_type (spec.md §4.3 "Component invocation").
func (e *Evaluator) evalComponentCall(n *ast.ComponentCall, scope *Scope, flow *ast.Flow, stepCtx ast.StepContext) (value.Value, error) {
	schema, ok := e.Bot.CustomComponents[n.Name]
	if !ok {
		return value.Value{}, fmt.Errorf("interpret: undefined component %q", n.Name)
	}
	fields := make(map[string]value.Value, len(schema.Fields))
	order := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		order = append(order, f.Name)
		argExpr, given := n.Args[f.Name]
		if !given {
			if f.Required {
				return value.Value{}, fmt.Errorf("interpret: component %q missing required field %q", n.Name, f.Name)
			}
			fields[f.Name] = f.Default
			continue
		}
		v, err := e.eval(argExpr, scope, flow, stepCtx)
		if err != nil {
			return value.Value{}, err
		}
		if len(f.Union) > 0 && !unionAllows(f.Union, v.TypeName()) {
			return value.Value{}, fmt.Errorf("interpret: component %q field %q has type %s, want one of %v", n.Name, f.Name, v.TypeName(), f.Union)
		}
		fields[f.Name] = v
	}
	for name := range n.Args {
		if _, known := fields[name]; !known {
			return value.Value{}, fmt.Errorf("interpret: component %q has no field %q", n.Name, name)
		}
	}
	result := value.NewObject(fields, order)
	result.ContentType = schema.Renders
	return result, nil
}

func unionAllows(union []string, kind string) bool {
	for _, u := range union {
		if u == kind {
			return true
		}
	}
	return false
}
