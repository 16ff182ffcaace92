package builtins

import (
	"fmt"
	"math"
	"math/rand"

	"silo/types"
)

func builtinAbs(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	switch v := args[0].(type) {
	case types.IntValue:
		if v.Val < 0 {
			return types.Ok(types.NewInt(-v.Val))
		}
		return types.Ok(v)
	case types.FloatValue:
		return types.Ok(types.NewFloat(math.Abs(v.Val)))
	default:
		return types.Err(types.E_TYPE)
	}
}

// extremeOf implements min()/max(): pick picks the winner between the
// running extreme and the next candidate.
func extremeOf(args []types.Value, pick func(current, candidate float64) bool) types.Result {
	if len(args) == 0 {
		return types.Err(types.E_ARGS)
	}
	best := args[0]
	bestFloat := toNumericFloat(best)
	if math.IsNaN(bestFloat) {
		return types.Err(types.E_TYPE)
	}
	for _, arg := range args[1:] {
		f := toNumericFloat(arg)
		if math.IsNaN(f) {
			return types.Err(types.E_TYPE)
		}
		if pick(bestFloat, f) {
			bestFloat, best = f, arg
		}
	}
	return types.Ok(best)
}

func builtinMin(ctx *types.TaskContext, args []types.Value) types.Result {
	return extremeOf(args, func(current, candidate float64) bool { return candidate < current })
}

func builtinMax(ctx *types.TaskContext, args []types.Value) types.Result {
	return extremeOf(args, func(current, candidate float64) bool { return candidate > current })
}

// builtinRandom implements random(), random(max), and random(min, max).
func builtinRandom(ctx *types.TaskContext, args []types.Value) types.Result {
	switch len(args) {
	case 0:
		return types.Ok(types.NewInt(rand.Int63n(1<<31) - (1 << 30)))

	case 1:
		maxV, ok := args[0].(types.IntValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		if maxV.Val <= 0 {
			return types.Err(types.E_RANGE)
		}
		return types.Ok(types.NewInt(rand.Int63n(maxV.Val) + 1))

	case 2:
		minV, ok1 := args[0].(types.IntValue)
		maxV, ok2 := args[1].(types.IntValue)
		if !ok1 || !ok2 {
			return types.Err(types.E_TYPE)
		}
		if minV.Val > maxV.Val {
			return types.Err(types.E_RANGE)
		}
		return types.Ok(types.NewInt(minV.Val + rand.Int63n(maxV.Val-minV.Val+1)))

	default:
		return types.Err(types.E_ARGS)
	}
}

// floatUnary evaluates a single-argument float builtin, checking the
// result (rather than the input) for infinity when checkResult is true.
func floatUnary(args []types.Value, inDomain func(float64) bool, checkResult bool, fn func(float64) float64) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	f := toNumericFloat(args[0])
	if math.IsNaN(f) {
		return types.Err(types.E_TYPE)
	}
	if inDomain != nil && !inDomain(f) {
		return types.Err(types.E_FLOAT)
	}
	result := fn(f)
	if checkResult && math.IsInf(result, 0) {
		return types.Err(types.E_FLOAT)
	}
	return types.Ok(types.NewFloat(result))
}

func builtinSqrt(ctx *types.TaskContext, args []types.Value) types.Result {
	return floatUnary(args, func(f float64) bool { return f >= 0 }, false, math.Sqrt)
}

func builtinSin(ctx *types.TaskContext, args []types.Value) types.Result {
	return floatUnary(args, nil, false, math.Sin)
}

func builtinCos(ctx *types.TaskContext, args []types.Value) types.Result {
	return floatUnary(args, nil, false, math.Cos)
}

func builtinTan(ctx *types.TaskContext, args []types.Value) types.Result {
	return floatUnary(args, nil, true, math.Tan)
}

func builtinAsin(ctx *types.TaskContext, args []types.Value) types.Result {
	return floatUnary(args, func(f float64) bool { return f >= -1 && f <= 1 }, false, math.Asin)
}

func builtinAcos(ctx *types.TaskContext, args []types.Value) types.Result {
	return floatUnary(args, func(f float64) bool { return f >= -1 && f <= 1 }, false, math.Acos)
}

// builtinAtan implements atan(value) and the two-argument atan(y, x) form.
func builtinAtan(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) == 0 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	if len(args) == 1 {
		return floatUnary(args, nil, false, math.Atan)
	}
	y := toNumericFloat(args[0])
	x := toNumericFloat(args[1])
	if math.IsNaN(y) || math.IsNaN(x) {
		return types.Err(types.E_TYPE)
	}
	return types.Ok(types.NewFloat(math.Atan2(y, x)))
}

func builtinSinh(ctx *types.TaskContext, args []types.Value) types.Result {
	return floatUnary(args, nil, false, math.Sinh)
}

func builtinCosh(ctx *types.TaskContext, args []types.Value) types.Result {
	return floatUnary(args, nil, false, math.Cosh)
}

func builtinTanh(ctx *types.TaskContext, args []types.Value) types.Result {
	return floatUnary(args, nil, false, math.Tanh)
}

func builtinExp(ctx *types.TaskContext, args []types.Value) types.Result {
	return floatUnary(args, nil, true, math.Exp)
}

func builtinLog(ctx *types.TaskContext, args []types.Value) types.Result {
	return floatUnary(args, func(f float64) bool { return f > 0 }, false, math.Log)
}

func builtinLog10(ctx *types.TaskContext, args []types.Value) types.Result {
	return floatUnary(args, func(f float64) bool { return f > 0 }, false, math.Log10)
}

func builtinCeil(ctx *types.TaskContext, args []types.Value) types.Result {
	return floatUnary(args, nil, false, math.Ceil)
}

func builtinFloor(ctx *types.TaskContext, args []types.Value) types.Result {
	return floatUnary(args, nil, false, math.Floor)
}

func builtinTrunc(ctx *types.TaskContext, args []types.Value) types.Result {
	return floatUnary(args, nil, false, math.Trunc)
}

func builtinFloatstr(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	f := toNumericFloat(args[0])
	if math.IsNaN(f) {
		return types.Err(types.E_TYPE)
	}
	precV, ok := args[1].(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	precision := int(precV.Val)
	if precision < 0 || precision > 19 {
		return types.Err(types.E_INVARG)
	}
	scientific := len(args) == 3 && args[2].Truthy()

	verb := "%.*f"
	if scientific {
		verb = "%.*e"
	}
	return types.Ok(types.NewStr(fmt.Sprintf(verb, precision, f)))
}

// toNumericFloat converts a numeric MOO value to float64, or NaN if v isn't
// an int or float.
func toNumericFloat(v types.Value) float64 {
	switch val := v.(type) {
	case types.IntValue:
		return float64(val.Val)
	case types.FloatValue:
		return val.Val
	default:
		return math.NaN()
	}
}
