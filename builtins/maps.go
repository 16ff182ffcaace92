package builtins

import (
	"sort"
	"strings"

	"silo/types"
)

// mapKeyRank orders MOO value types for map-key comparisons:
// INT < OBJ < FLOAT < ERR < STR < anything else.
func mapKeyRank(v types.Value) int {
	switch v.Type() {
	case types.TYPE_INT:
		return 0
	case types.TYPE_OBJ:
		return 1
	case types.TYPE_FLOAT:
		return 2
	case types.TYPE_ERR:
		return 3
	case types.TYPE_STR:
		return 4
	default:
		return 5
	}
}

// compareMapKeys returns negative/zero/positive as a sorts before, equals,
// or sorts after b, using MOO's canonical map-key ordering. String
// comparison is case-insensitive, matching the reference server.
func compareMapKeys(a, b types.Value) int {
	if ra, rb := mapKeyRank(a), mapKeyRank(b); ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case types.IntValue:
		bv := b.(types.IntValue)
		switch {
		case av.Val < bv.Val:
			return -1
		case av.Val > bv.Val:
			return 1
		default:
			return 0
		}
	case types.FloatValue:
		bv := b.(types.FloatValue)
		switch {
		case av.Val < bv.Val:
			return -1
		case av.Val > bv.Val:
			return 1
		default:
			return 0
		}
	case types.ObjValue:
		bv := b.(types.ObjValue)
		switch {
		case av.ID() < bv.ID():
			return -1
		case av.ID() > bv.ID():
			return 1
		default:
			return 0
		}
	case types.ErrValue:
		bv := b.(types.ErrValue)
		switch {
		case av.Code() < bv.Code():
			return -1
		case av.Code() > bv.Code():
			return 1
		default:
			return 0
		}
	case types.StrValue:
		return strings.Compare(strings.ToLower(av.Value()), strings.ToLower(b.(types.StrValue).Value()))
	default:
		return 0
	}
}

func sortMapKeys(keys []types.Value) {
	sort.Slice(keys, func(i, j int) bool { return compareMapKeys(keys[i], keys[j]) < 0 })
}

func sortMapPairs(pairs [][2]types.Value) {
	sort.Slice(pairs, func(i, j int) bool { return compareMapKeys(pairs[i][0], pairs[j][0]) < 0 })
}

// isValidMapKey reports whether v's type may be used as a MOO map key.
func isValidMapKey(v types.Value) bool {
	switch v.Type() {
	case types.TYPE_INT, types.TYPE_OBJ, types.TYPE_STR, types.TYPE_ERR, types.TYPE_FLOAT, types.TYPE_BOOL:
		return true
	default:
		return false
	}
}

func builtinMapkeys(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	m, ok := args[0].(types.MapValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	keys := m.Keys()
	sortMapKeys(keys)
	return types.Ok(types.NewList(keys))
}

func builtinMapvalues(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	m, ok := args[0].(types.MapValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	keys := m.Keys()
	sortMapKeys(keys)
	values := make([]types.Value, len(keys))
	for i, key := range keys {
		val, _ := m.Get(key)
		values[i] = val
	}
	return types.Ok(types.NewList(values))
}

func builtinMapdelete(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	m, ok := args[0].(types.MapValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	key := args[1]
	if !isValidMapKey(key) {
		return types.Err(types.E_TYPE)
	}
	if _, found := m.Get(key); !found {
		return types.Err(types.E_RANGE)
	}
	result := m.Delete(key)
	if err := CheckMapLimit(result); err != types.E_NONE {
		return types.Err(err)
	}
	return types.Ok(result)
}

func builtinMaphaskey(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	m, ok := args[0].(types.MapValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	key := args[1]
	if !isValidMapKey(key) {
		return types.Err(types.E_TYPE)
	}
	_, found := m.Get(key)
	return types.Ok(types.BoolValue{Val: found})
}

func builtinMapmerge(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	m1, ok1 := args[0].(types.MapValue)
	m2, ok2 := args[1].(types.MapValue)
	if !ok1 || !ok2 {
		return types.Err(types.E_TYPE)
	}

	result := m1
	for _, pair := range m2.Pairs() {
		result = result.Set(pair[0], pair[1])
	}
	if err := CheckMapLimit(result); err != types.E_NONE {
		return types.Err(err)
	}
	return types.Ok(result)
}
