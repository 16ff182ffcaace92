package builtins

import (
	"math"
	mathrand "math/rand"
	"regexp"
	"strings"
	"time"

	"silo/types"
)

var ansiEscapeRe = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
var ansiTagRe = regexp.MustCompile(`\[([^\[\]]+)\]`)

type ansiTagEntry struct {
	name string
	code string
}

// ansiTagTable lists every [tag] recognized by parse_ansi/remove_ansi; fore-
// and background colors, attribute toggles, and a couple of MOO oddities
// (beep, null, random).
var ansiTagTable = []ansiTagEntry{
	{"black", "\x1b[30m"}, {"red", "\x1b[31m"}, {"green", "\x1b[32m"},
	{"yellow", "\x1b[33m"}, {"blue", "\x1b[34m"}, {"purple", "\x1b[35m"},
	{"magenta", "\x1b[35m"}, {"cyan", "\x1b[36m"}, {"white", "\x1b[37m"},
	{"gray", "\x1b[90m"}, {"grey", "\x1b[90m"},
	{"b:black", "\x1b[40m"}, {"b:red", "\x1b[41m"}, {"b:green", "\x1b[42m"},
	{"b:yellow", "\x1b[43m"}, {"b:blue", "\x1b[44m"}, {"b:purple", "\x1b[45m"},
	{"b:magenta", "\x1b[45m"}, {"b:cyan", "\x1b[46m"}, {"b:white", "\x1b[47m"},
	{"bold", "\x1b[1m"}, {"unbold", "\x1b[22m"},
	{"bright", "\x1b[1m"}, {"unbright", "\x1b[22m"},
	{"underline", "\x1b[4m"}, {"inverse", "\x1b[7m"},
	{"blink", "\x1b[5m"}, {"unblink", "\x1b[25m"},
	{"normal", "\x1b[0m"}, {"beep", "\a"}, {"random", "\x1b[37m"}, {"null", ""},
}

var ansiTags = buildAnsiTagMap()

func buildAnsiTagMap() map[string]string {
	m := make(map[string]string, len(ansiTagTable))
	for _, entry := range ansiTagTable {
		m[entry.name] = entry.code
	}
	return m
}

// hyperbolicUnary evaluates a single-argument float builtin whose domain
// check, if any, is given by inDomain.
func hyperbolicUnary(args []types.Value, inDomain func(float64) bool, fn func(float64) float64) types.Result {
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
	return types.Ok(types.NewFloat(fn(f)))
}

func builtinAcosh(ctx *types.TaskContext, args []types.Value) types.Result {
	return hyperbolicUnary(args, func(f float64) bool { return f >= 1 }, math.Acosh)
}

func builtinAsinh(ctx *types.TaskContext, args []types.Value) types.Result {
	return hyperbolicUnary(args, nil, math.Asinh)
}

func builtinAtanh(ctx *types.TaskContext, args []types.Value) types.Result {
	return hyperbolicUnary(args, func(f float64) bool { return f > -1 && f < 1 }, math.Atanh)
}

func builtinAtan2(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	y := toNumericFloat(args[0])
	x := toNumericFloat(args[1])
	if math.IsNaN(y) || math.IsNaN(x) {
		return types.Err(types.E_TYPE)
	}
	return types.Ok(types.NewFloat(math.Atan2(y, x)))
}

func builtinCbrt(ctx *types.TaskContext, args []types.Value) types.Result {
	return hyperbolicUnary(args, nil, math.Cbrt)
}

func builtinRound(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	f := toNumericFloat(args[0])
	if math.IsNaN(f) {
		return types.Err(types.E_TYPE)
	}
	if len(args) == 1 {
		return types.Ok(types.NewInt(int64(math.Round(f))))
	}
	places, ok := args[1].(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if places.Val < 0 || places.Val > 15 {
		return types.Err(types.E_RANGE)
	}
	scale := math.Pow(10, float64(places.Val))
	return types.Ok(types.NewFloat(math.Round(f*scale) / scale))
}

func builtinFrandom(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	return types.Ok(types.NewFloat(mathrand.Float64()))
}

func builtinReseedRandom(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) > 1 {
		return types.Err(types.E_ARGS)
	}
	seed := time.Now().UnixNano()
	if len(args) == 1 {
		v, ok := args[0].(types.IntValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		seed = v.Val
	}
	mathrand.Seed(seed)
	return types.Ok(types.NewInt(0))
}

func appendCharValue(ctx *types.TaskContext, out *strings.Builder, v types.Value) types.ErrorCode {
	switch val := v.(type) {
	case types.IntValue:
		n := val.Val
		if n < 0 || n > 255 {
			return types.E_INVARG
		}
		if !ctx.IsWizard && (n < 32 || n > 254) {
			return types.E_INVARG
		}
		encodeByte(out, byte(n))
	case types.StrValue:
		for _, b := range []byte(val.Value()) {
			encodeByte(out, b)
		}
	case types.ListValue:
		for i := 1; i <= val.Len(); i++ {
			if err := appendCharValue(ctx, out, val.Get(i)); err != types.E_NONE {
				return err
			}
		}
	default:
		return types.E_TYPE
	}
	return types.E_NONE
}

func builtinChr(ctx *types.TaskContext, args []types.Value) types.Result {
	var out strings.Builder
	for _, arg := range args {
		if err := appendCharValue(ctx, &out, arg); err != types.E_NONE {
			return types.Err(err)
		}
	}
	return types.Ok(types.NewStr(out.String()))
}

func builtinAllMembers(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	list, ok := args[1].(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	caseMatters := true
	if len(args) == 3 {
		caseMatters = args[2].Truthy()
	}
	needle := args[0]

	result := make([]types.Value, 0)
	for i := 1; i <= list.Len(); i++ {
		item := list.Get(i)
		matched := needle.Equal(item)
		if !caseMatters {
			matched = false
			if ns, nok := needle.(types.StrValue); nok {
				if is, iok := item.(types.StrValue); iok {
					matched = strings.EqualFold(ns.Value(), is.Value())
				}
			}
		}
		if matched {
			result = append(result, types.NewInt(int64(i)))
		}
	}
	return types.Ok(types.NewList(result))
}

func builtinDistance(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 2 && len(args) != 4 {
		return types.Err(types.E_ARGS)
	}
	coords := make([]float64, len(args))
	for i, arg := range args {
		coords[i] = toNumericFloat(arg)
		if math.IsNaN(coords[i]) {
			return types.Err(types.E_TYPE)
		}
	}
	if len(coords) == 2 {
		return types.Ok(types.NewFloat(math.Hypot(coords[0], coords[1])))
	}
	return types.Ok(types.NewFloat(math.Hypot(coords[2]-coords[0], coords[3]-coords[1])))
}

func builtinRelativeHeading(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 4 {
		return types.Err(types.E_ARGS)
	}
	coords := make([]float64, 4)
	for i, arg := range args {
		coords[i] = toNumericFloat(arg)
		if math.IsNaN(coords[i]) {
			return types.Err(types.E_TYPE)
		}
	}
	deg := math.Atan2(coords[3]-coords[1], coords[2]-coords[0]) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return types.Ok(types.NewFloat(deg))
}

func builtinSimplexNoise(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	seed := 0.0
	for i, arg := range args {
		v := toNumericFloat(arg)
		if math.IsNaN(v) {
			return types.Err(types.E_TYPE)
		}
		seed += v * float64(i+1) * 12.9898
	}
	noise := math.Sin(seed) * 43758.5453
	noise -= math.Floor(noise)
	return types.Ok(types.NewFloat(noise*2 - 1))
}

func resolveAnsiTag(tag string, onRecognized func(code string) string) string {
	name := strings.ToLower(tag[1 : len(tag)-1])
	if code, ok := ansiTags[name]; ok {
		return onRecognized(code)
	}
	return tag
}

func builtinParseAnsi(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	s, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	converted := ansiTagRe.ReplaceAllStringFunc(s.Value(), func(tag string) string {
		return resolveAnsiTag(tag, func(code string) string { return code })
	})
	return types.Ok(types.NewStr(converted))
}

func builtinRemoveAnsi(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	s, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	strippedTags := ansiTagRe.ReplaceAllStringFunc(s.Value(), func(tag string) string {
		return resolveAnsiTag(tag, func(string) string { return "" })
	})
	return types.Ok(types.NewStr(ansiEscapeRe.ReplaceAllString(strippedTags, "")))
}
