package builtins

import (
	"runtime"

	"silo/types"
)

// gcStatColors are the tri-color-marking buckets a cyclic garbage collector
// would report; lacking one, gc_stats() reports all zeros in the same shape.
var gcStatColors = []string{"green", "yellow", "black", "gray", "white", "purple", "pink"}

// builtinRunGC implements run_gc(): wizard-only, triggers Go's collector.
// There is no cyclic-reference collector for anonymous objects yet, so this
// is mostly symbolic, but it gives wizards a way to force a sweep.
func builtinRunGC(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}
	runtime.GC()
	return types.Ok(types.NewInt(0))
}

// builtinGCStats implements gc_stats(): wizard-only, returns a map of
// collector bucket counts. Until anonymous-object cycle detection exists,
// every bucket reports zero.
func builtinGCStats(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}

	result := types.NewEmptyMap()
	for _, color := range gcStatColors {
		result = result.Set(types.NewStr(color), types.NewInt(0))
	}
	return types.Ok(result)
}
