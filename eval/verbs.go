package eval

import (
	"silo/db"
	"silo/parser"
	"silo/task"
	"silo/types"
)

// VerbCallInfo carries the builtin verb-local variables LambdaMOO code expects
// to find in scope: player, this, caller, verb, args, argstr, dobj, dobjstr,
// prepstr, iobj, iobjstr. The command pipeline and evalVerbCall both populate
// one of these before running a verb's statements.
type VerbCallInfo struct {
	Player  types.ObjID
	This    types.ObjID
	Caller  types.ObjID
	Verb    string
	Args    []types.Value
	Argstr  string
	Dobj    types.ObjID
	Dobjstr string
	Prepstr string
	Iobj    types.ObjID
	Iobjstr string
}

// bindVerbLocals populates env with the builtin verb-local variables.
func bindVerbLocals(env *Environment, info VerbCallInfo) {
	env.Set("player", types.NewObj(info.Player))
	env.Set("this", types.NewObj(info.This))
	env.Set("caller", types.NewObj(info.Caller))
	env.Set("verb", types.NewStr(info.Verb))
	env.Set("args", types.NewList(info.Args))
	env.Set("argstr", types.NewStr(info.Argstr))
	env.Set("dobj", types.NewObj(info.Dobj))
	env.Set("dobjstr", types.NewStr(info.Dobjstr))
	env.Set("prepstr", types.NewStr(info.Prepstr))
	env.Set("iobj", types.NewObj(info.Iobj))
	env.Set("iobjstr", types.NewStr(info.Iobjstr))
}

// ExecuteVerb runs a compiled verb's program with a fresh nested scope holding
// the builtin verb-local variables, restoring the evaluator's previous
// environment and TaskContext fields (ThisObj, Verb, Programmer) on return.
// This is the single entry point used both for the outermost dispatch of a
// command or eval() task and for in-AST obj:verb(args) calls, so both paths
// see identical local-variable setup.
func (e *Evaluator) ExecuteVerb(verb *db.Verb, defObjID types.ObjID, ctx *types.TaskContext, info VerbCallInfo) types.Result {
	if verb.Program == nil {
		program, errs := db.CompileVerb(verb.Code)
		if len(errs) > 0 {
			return types.Err(types.E_VERBNF)
		}
		verb.Program = program
	}

	oldEnv := e.env
	verbEnv := NewNestedEnvironment(oldEnv)
	bindVerbLocals(verbEnv, info)
	e.env = verbEnv
	defer func() { e.env = oldEnv }()

	oldThis := ctx.ThisObj
	oldVerb := ctx.Verb
	oldProgrammer := ctx.Programmer
	ctx.ThisObj = defObjID
	ctx.Verb = verb.Names[0]
	// setuid: a verb with the "d" (debug) bit cleared or not, still runs
	// with its owner's permissions -- MOO verbs always execute as their
	// owner, never as the calling player.
	ctx.Programmer = verb.Owner

	defer func() {
		ctx.ThisObj = oldThis
		ctx.Verb = oldVerb
		ctx.Programmer = oldProgrammer
	}()

	result := e.evalStatements(verb.Program.Statements, ctx)

	if result.Flow == types.FlowReturn {
		return types.Ok(result.Val)
	}
	if result.IsNormal() {
		return types.Ok(types.NewInt(0))
	}
	return result
}

// maxCallDepth bounds verb call nesting, matching LambdaMOO's default
// max_stack_depth of 50 activation records.
const maxCallDepth = 50

// evalVerbCall evaluates a verb call expression: obj:verb(args)
func (e *Evaluator) evalVerbCall(expr *parser.VerbCallExpr, ctx *types.TaskContext) types.Result {
	if t, ok := ctx.Task.(*task.Task); ok && len(t.GetCallStack()) >= maxCallDepth {
		return types.Err(types.E_MAXREC)
	}

	// Evaluate the object expression
	objResult := e.Eval(expr.Expr, ctx)
	if !objResult.IsNormal() {
		return objResult
	}

	// Must be an object
	objVal, ok := objResult.Val.(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	objID := objVal.ID()

	// Check if object is valid
	if !e.store.Valid(objID) {
		return types.Err(types.E_INVIND)
	}

	// Evaluate arguments
	args := make([]types.Value, len(expr.Args))
	for i, argExpr := range expr.Args {
		argResult := e.Eval(argExpr, ctx)
		if !argResult.IsNormal() {
			return argResult
		}
		args[i] = argResult.Val
	}

	// Look up the verb
	verb, defObjID, err := e.store.FindVerb(objID, expr.Verb)
	if err != nil {
		return types.Err(types.E_VERBNF)
	}

	// Check execute permission. A missing x bit means the verb cannot be
	// invoked this way at all -- LambdaMOO reports this identically to the
	// verb simply not existing, not as a permission error.
	if !verb.Perms.Has(db.VerbExecute) {
		return types.Err(types.E_VERBNF)
	}

	// Push activation frame onto call stack (if we have a task). The frame is
	// popped only on normal/return completion -- an exception leaves the
	// stack intact so the task's top-level caller can read a full traceback
	// off ctx.Task before discarding it.
	var t *task.Task
	if ctx.Task != nil {
		if tt, ok := ctx.Task.(*task.Task); ok {
			t = tt
			frame := task.ActivationFrame{
				This:       objID, // the receiver, not necessarily where the verb is defined
				Player:     ctx.Player,
				Programmer: verb.Owner,
				Caller:     ctx.ThisObj, // The object that called this verb
				Verb:       expr.Verb,
				VerbLoc:    defObjID,
				Args:       args,
				LineNumber: 0, // TODO: Track line numbers during execution
			}
			t.PushFrame(frame)
		}
	}

	argstr := joinArgstr(args)

	info := VerbCallInfo{
		Player:  ctx.Player,
		This:    objID, // the receiver, not necessarily where the verb is defined
		Caller:  ctx.ThisObj,
		Verb:    expr.Verb,
		Args:    args,
		Argstr:  argstr,
		Dobj:    types.ObjNothing,
		Dobjstr: "",
		Prepstr: "",
		Iobj:    types.ObjNothing,
		Iobjstr: "",
	}

	result := e.ExecuteVerb(verb, defObjID, ctx, info)
	if t != nil && result.Flow != types.FlowException {
		t.PopFrame()
	}
	return result
}

// joinArgstr reconstructs a space-joined argstr from evaluated string-typed
// arguments, for verb calls made directly in MOO code rather than dispatched
// from the command pipeline (which carries its own original argstr).
func joinArgstr(args []types.Value) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if s, ok := a.(types.StrValue); ok {
			parts = append(parts, s.Value())
		}
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

// evalStatements executes a sequence of statements
func (e *Evaluator) evalStatements(stmts []parser.Stmt, ctx *types.TaskContext) types.Result {
	var result types.Result
	for _, stmt := range stmts {
		result = e.EvalStmt(stmt, ctx)
		if !result.IsNormal() {
			return result
		}
	}
	return types.Ok(types.NewInt(0))
}
