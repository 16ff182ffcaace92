package builtins

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"silo/types"
)

func builtinTypeof(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	return types.Ok(types.NewInt(int64(args[0].Type())))
}

func formatFloatLiteral(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// builtinTostr implements tostr(value): unlike toliteral, lists render as
// "{list}" and maps as "[map]" rather than their full literal form.
func builtinTostr(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}

	switch v := args[0].(type) {
	case types.StrValue:
		return types.Ok(v)
	case types.IntValue:
		return types.Ok(types.NewStr(fmt.Sprintf("%d", v.Val)))
	case types.FloatValue:
		return types.Ok(types.NewStr(formatFloatLiteral(v.Val)))
	case types.ObjValue:
		return types.Ok(types.NewStr(fmt.Sprintf("#%d", v.ID())))
	case types.ErrValue:
		return types.Ok(types.NewStr(v.String()))
	case types.BoolValue:
		if v.Val {
			return types.Ok(types.NewStr("true"))
		}
		return types.Ok(types.NewStr("false"))
	case types.ListValue:
		return types.Ok(types.NewStr("{list}"))
	case types.MapValue:
		return types.Ok(types.NewStr("[map]"))
	default:
		return types.Err(types.E_TYPE)
	}
}

func builtinToint(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	switch v := args[0].(type) {
	case types.IntValue:
		return types.Ok(v)
	case types.FloatValue:
		return types.Ok(types.NewInt(int64(v.Val)))
	case types.ObjValue:
		return types.Ok(types.NewInt(int64(v.ID())))
	case types.StrValue:
		i, err := strconv.ParseInt(strings.TrimSpace(v.Value()), 10, 64)
		if err != nil {
			return types.Err(types.E_INVARG)
		}
		return types.Ok(types.NewInt(i))
	default:
		return types.Err(types.E_TYPE)
	}
}

func builtinTofloat(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	switch v := args[0].(type) {
	case types.FloatValue:
		return types.Ok(v)
	case types.IntValue:
		return types.Ok(types.NewFloat(float64(v.Val)))
	case types.StrValue:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Value()), 64)
		if err != nil {
			return types.Err(types.E_INVARG)
		}
		return types.Ok(types.NewFloat(f))
	default:
		return types.Err(types.E_TYPE)
	}
}

func builtinToliteral(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	return types.Ok(types.NewStr(args[0].String()))
}

// builtinToobj implements toobj(value): "#N" strings and bare integers
// become that object ID; unparseable strings fall back to #0 rather than
// erroring, matching MOO's historical toobj() leniency.
func builtinToobj(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	switch v := args[0].(type) {
	case types.ObjValue:
		return types.Ok(v)
	case types.IntValue:
		return types.Ok(types.NewObj(types.ObjID(v.Val)))
	case types.StrValue:
		str := strings.TrimSpace(v.Value())
		str = strings.TrimPrefix(str, "#")
		i, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return types.Ok(types.NewObj(0))
		}
		return types.Ok(types.NewObj(types.ObjID(i)))
	default:
		return types.Err(types.E_TYPE)
	}
}

// builtinEqual implements equal(a, b): a case-sensitive deep comparison,
// distinct from the == operator which folds string/map-key case.
func builtinEqual(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	if strictEqual(args[0], args[1]) {
		return types.Ok(types.NewInt(1))
	}
	return types.Ok(types.NewInt(0))
}

func strictEqual(a, b types.Value) bool {
	if aMap, ok := a.(types.MapValue); ok {
		bMap, ok := b.(types.MapValue)
		if !ok || aMap.Len() != bMap.Len() {
			return false
		}
		aPairs, bPairs := aMap.Pairs(), bMap.Pairs()
		sortPairsByKey(aPairs)
		sortPairsByKey(bPairs)
		for i, ap := range aPairs {
			bp := bPairs[i]
			if !strictEqual(ap[0], bp[0]) || !strictEqual(ap[1], bp[1]) {
				return false
			}
		}
		return true
	}

	if aList, ok := a.(types.ListValue); ok {
		bList, ok := b.(types.ListValue)
		if !ok || aList.Len() != bList.Len() {
			return false
		}
		for i := 1; i <= aList.Len(); i++ {
			if !strictEqual(aList.Get(i), bList.Get(i)) {
				return false
			}
		}
		return true
	}

	if aStr, ok := a.(types.StrValue); ok {
		bStr, ok := b.(types.StrValue)
		return ok && aStr.Value() == bStr.Value()
	}

	return a.Equal(b)
}

// sortPairsByKey orders key/value pairs by key so two maps' pair slices can
// be compared element-by-element regardless of insertion order.
func sortPairsByKey(pairs [][2]types.Value) {
	sort.Slice(pairs, func(i, j int) bool {
		return comparePairKeys(pairs[i][0], pairs[j][0]) < 0
	})
}

// comparePairKeys orders two map keys the same way maps.go's mapKeyRank
// does: by type first, then by value within a type.
func comparePairKeys(a, b types.Value) int {
	if ra, rb := mapKeyRank(a), mapKeyRank(b); ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case types.IntValue:
		return ordered(av.Val, b.(types.IntValue).Val)
	case types.StrValue:
		return strings.Compare(av.Value(), b.(types.StrValue).Value())
	default:
		return 0
	}
}

// listToString renders a ListValue the way MOO renders list literals.
func listToString(list types.ListValue) string {
	if list.Len() == 0 {
		return "{}"
	}
	parts := make([]string, list.Len())
	for i := 1; i <= list.Len(); i++ {
		parts[i-1] = list.Get(i).String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// mapToString renders a MapValue the way MOO renders map literals.
func mapToString(m types.MapValue) string {
	pairs := m.Pairs()
	if len(pairs) == 0 {
		return "[]"
	}
	parts := make([]string, len(pairs))
	for i, pair := range pairs {
		parts[i] = pair[0].String() + " -> " + pair[1].String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
