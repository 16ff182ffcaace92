package eval

import (
	"fmt"

	"silo/parser"
	"silo/types"
)

// EvalStatements runs a statement sequence in order, stopping as soon as one
// of them produces a non-normal result (return, break, continue, or error).
func (e *Evaluator) EvalStatements(stmts []parser.Stmt, ctx *types.TaskContext) types.Result {
	for _, stmt := range stmts {
		if result := e.EvalStmt(stmt, ctx); !result.IsNormal() {
			return result
		}
	}
	return types.Ok(types.NewInt(0))
}

// EvalStmt dispatches a single statement to its handler. Every statement
// consumes one tick of the task's execution budget; running out is a quota
// violation (E_QUOTA), distinct from exceeding the call-depth limit (E_MAXREC).
func (e *Evaluator) EvalStmt(stmt parser.Stmt, ctx *types.TaskContext) types.Result {
	if !ctx.ConsumeTick() {
		return types.Err(types.E_QUOTA)
	}

	switch s := stmt.(type) {
	case *parser.ExprStmt:
		return e.evalExprStmt(s, ctx)
	case *parser.IfStmt:
		return e.evalIfStmt(s, ctx)
	case *parser.WhileStmt:
		return e.evalWhileStmt(s, ctx)
	case *parser.ForStmt:
		return e.evalForStmt(s, ctx)
	case *parser.ReturnStmt:
		return e.evalReturnStmt(s, ctx)
	case *parser.BreakStmt:
		return e.evalBreakStmt(s, ctx)
	case *parser.ContinueStmt:
		return e.evalContinueStmt(s, ctx)
	case *parser.TryExceptStmt:
		return e.evalTryExceptStmt(s, ctx)
	case *parser.TryFinallyStmt:
		return e.evalTryFinallyStmt(s, ctx)
	case *parser.TryExceptFinallyStmt:
		return e.evalTryExceptFinallyStmt(s, ctx)
	case *parser.ScatterStmt:
		return e.evalScatterStmt(s, ctx)
	default:
		return types.Err(types.E_TYPE)
	}
}

func (e *Evaluator) evalExprStmt(stmt *parser.ExprStmt, ctx *types.TaskContext) types.Result {
	if stmt.Expr == nil {
		return types.Ok(types.NewInt(0))
	}
	if result := e.Eval(stmt.Expr, ctx); !result.IsNormal() {
		return result
	}
	return types.Ok(types.NewInt(0))
}

func (e *Evaluator) evalIfStmt(stmt *parser.IfStmt, ctx *types.TaskContext) types.Result {
	cond := e.Eval(stmt.Condition, ctx)
	if !cond.IsNormal() {
		return cond
	}
	if cond.Val.Truthy() {
		return e.EvalStatements(stmt.Body, ctx)
	}

	for _, clause := range stmt.ElseIfs {
		cond := e.Eval(clause.Condition, ctx)
		if !cond.IsNormal() {
			return cond
		}
		if cond.Val.Truthy() {
			return e.EvalStatements(clause.Body, ctx)
		}
	}

	if stmt.Else != nil {
		return e.EvalStatements(stmt.Else, ctx)
	}
	return types.Ok(types.NewInt(0))
}

// loopSignal is what a loop body's result means for its enclosing loop: keep
// iterating, or unwind with a specific result.
type loopSignal struct {
	halt   bool
	result types.Result
}

// resolveLoopBody interprets a loop body's evaluation result. labelMatches
// reports whether a break/continue label belongs to the loop asking; an
// empty label always belongs to the innermost loop.
func resolveLoopBody(body types.Result, labelMatches func(string) bool) loopSignal {
	switch body.Flow {
	case types.FlowReturn, types.FlowException:
		return loopSignal{halt: true, result: body}
	case types.FlowBreak:
		if body.Label == "" || labelMatches(body.Label) {
			if body.Val != nil {
				return loopSignal{halt: true, result: types.Ok(body.Val)}
			}
			return loopSignal{halt: true, result: types.Ok(types.NewInt(0))}
		}
		return loopSignal{halt: true, result: body}
	case types.FlowContinue:
		if body.Label == "" || labelMatches(body.Label) {
			return loopSignal{halt: false}
		}
		return loopSignal{halt: true, result: body}
	default:
		return loopSignal{halt: false}
	}
}

func (e *Evaluator) evalWhileStmt(stmt *parser.WhileStmt, ctx *types.TaskContext) types.Result {
	matches := func(label string) bool { return label == stmt.Label }

	for {
		cond := e.Eval(stmt.Condition, ctx)
		if !cond.IsNormal() {
			return cond
		}
		if !cond.Val.Truthy() {
			return types.Ok(types.NewInt(0))
		}

		signal := resolveLoopBody(e.EvalStatements(stmt.Body, ctx), matches)
		if signal.halt {
			return signal.result
		}
	}
}

func (e *Evaluator) evalForStmt(stmt *parser.ForStmt, ctx *types.TaskContext) types.Result {
	if stmt.RangeStart != nil {
		return e.evalForRange(stmt, ctx)
	}
	return e.evalForContainer(stmt, ctx)
}

// forLoopLabelMatches reports whether a break/continue label refers to this
// for loop: its explicit label, or either of its bound loop variables.
func forLoopLabelMatches(label string, stmt *parser.ForStmt) bool {
	if label == "" {
		return true
	}
	return label == stmt.Label || label == stmt.Value || (stmt.Index != "" && label == stmt.Index)
}

func (e *Evaluator) evalForRange(stmt *parser.ForStmt, ctx *types.TaskContext) types.Result {
	start := e.Eval(stmt.RangeStart, ctx)
	if !start.IsNormal() {
		return start
	}
	startInt, ok := start.Val.(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	end := e.Eval(stmt.RangeEnd, ctx)
	if !end.IsNormal() {
		return end
	}
	endInt, ok := end.Val.(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	matches := func(label string) bool { return forLoopLabelMatches(label, stmt) }
	for i := startInt.Val; i <= endInt.Val; i++ {
		e.env.Set(stmt.Value, types.NewInt(i))

		signal := resolveLoopBody(e.EvalStatements(stmt.Body, ctx), matches)
		if signal.halt {
			return signal.result
		}
	}
	return types.Ok(types.NewInt(0))
}

func (e *Evaluator) evalForContainer(stmt *parser.ForStmt, ctx *types.TaskContext) types.Result {
	containerResult := e.Eval(stmt.Container, ctx)
	if !containerResult.IsNormal() {
		return containerResult
	}

	switch container := containerResult.Val.(type) {
	case types.ListValue:
		return e.evalForList(stmt, &container, ctx)
	case types.MapValue:
		return e.evalForMap(stmt, &container, ctx)
	case types.StrValue:
		return e.evalForString(stmt, &container, ctx)
	default:
		return types.Err(types.E_TYPE)
	}
}

func (e *Evaluator) evalForList(stmt *parser.ForStmt, list *types.ListValue, ctx *types.TaskContext) types.Result {
	elements := list.Elements() // snapshot: mutation during the loop body must not affect iteration
	matches := func(label string) bool { return forLoopLabelMatches(label, stmt) }

	for i, elem := range elements {
		e.env.Set(stmt.Value, elem)
		if stmt.Index != "" {
			e.env.Set(stmt.Index, types.NewInt(int64(i+1)))
		}

		signal := resolveLoopBody(e.EvalStatements(stmt.Body, ctx), matches)
		if signal.halt {
			return signal.result
		}
	}
	return types.Ok(types.NewInt(0))
}

func (e *Evaluator) evalForMap(stmt *parser.ForStmt, mapVal *types.MapValue, ctx *types.TaskContext) types.Result {
	pairs := mapVal.Pairs() // snapshot, same reasoning as evalForList
	matches := func(label string) bool { return forLoopLabelMatches(label, stmt) }

	for _, pair := range pairs {
		e.env.Set(stmt.Value, pair[1])
		if stmt.Index != "" {
			e.env.Set(stmt.Index, pair[0])
		}

		signal := resolveLoopBody(e.EvalStatements(stmt.Body, ctx), matches)
		if signal.halt {
			return signal.result
		}
	}
	return types.Ok(types.NewInt(0))
}

func (e *Evaluator) evalForString(stmt *parser.ForStmt, strVal *types.StrValue, ctx *types.TaskContext) types.Result {
	runes := []rune(strVal.Value())
	matches := func(label string) bool { return forLoopLabelMatches(label, stmt) }

	for i, r := range runes {
		e.env.Set(stmt.Value, types.NewStr(string(r)))
		if stmt.Index != "" {
			e.env.Set(stmt.Index, types.NewInt(int64(i+1)))
		}

		signal := resolveLoopBody(e.EvalStatements(stmt.Body, ctx), matches)
		if signal.halt {
			return signal.result
		}
	}
	return types.Ok(types.NewInt(0))
}

func (e *Evaluator) evalReturnStmt(stmt *parser.ReturnStmt, ctx *types.TaskContext) types.Result {
	if stmt.Value == nil {
		return types.Return(types.NewInt(0))
	}
	result := e.Eval(stmt.Value, ctx)
	if !result.IsNormal() {
		return result
	}
	return types.Return(result.Val)
}

func (e *Evaluator) evalBreakStmt(stmt *parser.BreakStmt, ctx *types.TaskContext) types.Result {
	var val types.Value
	if stmt.Value != nil {
		result := e.Eval(stmt.Value, ctx)
		if !result.IsNormal() {
			return result
		}
		val = result.Val
	}
	return types.Break(stmt.Label, val)
}

func (e *Evaluator) evalContinueStmt(stmt *parser.ContinueStmt, ctx *types.TaskContext) types.Result {
	return types.Continue(stmt.Label)
}

// EvalProgram parses and runs source as a standalone verb body, for use by
// callers that don't already have a parsed program (tests, the REPL).
func (e *Evaluator) EvalProgram(source string) (types.Value, error) {
	p := parser.NewParser(source)
	stmts, err := p.ParseProgram()
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	result := e.EvalStatements(stmts, types.NewTaskContext())
	switch result.Flow {
	case types.FlowException:
		return types.NewErr(result.Error), nil
	case types.FlowReturn:
		return result.Val, nil
	case types.FlowBreak, types.FlowContinue:
		return nil, fmt.Errorf("break/continue outside of loop")
	default:
		return result.Val, nil
	}
}

func (e *Evaluator) evalTryExceptStmt(stmt *parser.TryExceptStmt, ctx *types.TaskContext) types.Result {
	result := e.EvalStatements(stmt.Body, ctx)
	if !result.IsError() {
		return result
	}

	for _, except := range stmt.Excepts {
		if !except.IsAny && !e.matchesErrorCode(result.Error, except.Codes) {
			continue
		}
		if except.Variable != "" {
			e.env.Set(except.Variable, types.NewErr(result.Error))
		}
		return e.EvalStatements(except.Body, ctx)
	}
	return result
}

func (e *Evaluator) evalTryFinallyStmt(stmt *parser.TryFinallyStmt, ctx *types.TaskContext) types.Result {
	result := e.EvalStatements(stmt.Body, ctx)
	if finally := e.EvalStatements(stmt.Finally, ctx); !finally.IsNormal() {
		return finally
	}
	return result
}

func (e *Evaluator) evalTryExceptFinallyStmt(stmt *parser.TryExceptFinallyStmt, ctx *types.TaskContext) types.Result {
	result := e.EvalStatements(stmt.Body, ctx)

	if result.IsError() {
		for _, except := range stmt.Excepts {
			if !except.IsAny && !e.matchesErrorCode(result.Error, except.Codes) {
				continue
			}
			if except.Variable != "" {
				e.env.Set(except.Variable, types.NewErr(result.Error))
			}
			result = e.EvalStatements(except.Body, ctx)
			break
		}
	}

	if finally := e.EvalStatements(stmt.Finally, ctx); !finally.IsNormal() {
		return finally
	}
	return result
}

func (e *Evaluator) matchesErrorCode(code types.ErrorCode, codes []types.ErrorCode) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// evalScatterStmt implements scatter assignment: {a, ?b, @rest} = value.
// Required targets consume one element each; optional targets fall back to
// their default (or 0) once the value list runs dry; a rest target, if any,
// absorbs everything left over. Too few elements for a required target, or
// leftover elements with no rest target to catch them, is E_ARGS.
func (e *Evaluator) evalScatterStmt(stmt *parser.ScatterStmt, ctx *types.TaskContext) types.Result {
	valueResult := e.Eval(stmt.Value, ctx)
	if !valueResult.IsNormal() {
		return valueResult
	}
	listVal, ok := valueResult.Val.(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	elements := listVal.Elements()

	var rest *parser.ScatterTarget
	next := 0
	for i := range stmt.Targets {
		target := &stmt.Targets[i]
		if target.Rest {
			rest = target
			continue
		}

		if next < len(elements) {
			e.env.Set(target.Name, elements[next])
			next++
			continue
		}
		if !target.Optional {
			return types.Err(types.E_ARGS)
		}
		if target.Default == nil {
			e.env.Set(target.Name, types.NewInt(0))
			continue
		}
		defaultResult := e.Eval(target.Default, ctx)
		if !defaultResult.IsNormal() {
			return defaultResult
		}
		e.env.Set(target.Name, defaultResult.Val)
	}

	if rest != nil {
		e.env.Set(rest.Name, types.NewList(elements[next:]))
	} else if next < len(elements) {
		return types.Err(types.E_ARGS)
	}
	return types.Ok(types.NewInt(0))
}
