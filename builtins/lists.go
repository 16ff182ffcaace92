package builtins

import (
	"sort"

	"silo/types"
)

func builtinListappend(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	list, ok := args[0].(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	index := list.Len()
	if len(args) == 3 {
		idx, ok := args[2].(types.IntValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		index = int(idx.Val)
		if index < 0 || index > list.Len() {
			return types.Err(types.E_RANGE)
		}
	}
	return types.Ok(list.InsertAt(index+1, args[1]))
}

// builtinListinsert implements listinsert(list, value [, index]); an
// out-of-range index clamps to [1, length(list)+1] rather than erroring.
func builtinListinsert(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	list, ok := args[0].(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	index := 1
	if len(args) == 3 {
		idx, ok := args[2].(types.IntValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		index = clampInt(int(idx.Val), 1, list.Len()+1)
	}
	return types.Ok(list.InsertAt(index, args[1]))
}

func clampInt(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

func builtinListdelete(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	list, ok := args[0].(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	idx, ok := args[1].(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	index := int(idx.Val)
	if index < 1 || index > list.Len() {
		return types.Err(types.E_RANGE)
	}
	return types.Ok(list.DeleteAt(index))
}

func builtinListset(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 3 {
		return types.Err(types.E_ARGS)
	}
	list, ok := args[0].(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	idx, ok := args[2].(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	index := int(idx.Val)
	if index < 1 || index > list.Len() {
		return types.Err(types.E_RANGE)
	}
	return types.Ok(list.Set(index, args[1]))
}

func indexOfEqual(list types.ListValue, value types.Value) int {
	for i := 1; i <= list.Len(); i++ {
		if list.Get(i).Equal(value) {
			return i
		}
	}
	return 0
}

func builtinSetadd(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	list, ok := args[0].(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if indexOfEqual(list, args[1]) != 0 {
		return types.Ok(list)
	}
	return types.Ok(list.Append(args[1]))
}

func builtinSetremove(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	list, ok := args[0].(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if i := indexOfEqual(list, args[1]); i != 0 {
		return types.Ok(list.DeleteAt(i))
	}
	return types.Ok(list)
}

// builtinIsMember implements is_member(value, collection): for lists it
// returns the 1-based position of the first match or 0; for maps it reports
// only whether value is a key, since MOO map iteration order isn't
// otherwise meaningful here.
func builtinIsMember(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	value := args[0]
	switch collection := args[1].(type) {
	case types.ListValue:
		return types.Ok(types.NewInt(int64(indexOfEqual(collection, value))))
	case types.MapValue:
		if _, ok := collection.Get(value); ok {
			return types.Ok(types.NewInt(1))
		}
		return types.Ok(types.NewInt(0))
	default:
		return types.Err(types.E_TYPE)
	}
}

// builtinSort implements sort(list [, keys] [, natural] [, reverse]).
// TODO: honor the keys/natural/reverse arguments; currently sorts only by
// the default MOO value ordering.
func builtinSort(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 || len(args) > 4 {
		return types.Err(types.E_ARGS)
	}
	list, ok := args[0].(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	elements := make([]types.Value, list.Len())
	for i := 1; i <= list.Len(); i++ {
		elements[i-1] = list.Get(i)
	}
	sort.Slice(elements, func(i, j int) bool { return compareListOrder(elements[i], elements[j]) < 0 })
	return types.Ok(types.NewList(elements))
}

func builtinReverse(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	list, ok := args[0].(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	elements := make([]types.Value, list.Len())
	for i := 1; i <= list.Len(); i++ {
		elements[list.Len()-i] = list.Get(i)
	}
	return types.Ok(types.NewList(elements))
}

func builtinUnique(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	list, ok := args[0].(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	seen := make(map[string]bool)
	var out []types.Value
	for i := 1; i <= list.Len(); i++ {
		elem := list.Get(i)
		key := elem.String()
		if !seen[key] {
			seen[key] = true
			out = append(out, elem)
		}
	}
	return types.Ok(types.NewList(out))
}

// sliceColumn extracts one "column" from a row: an integer index into a
// ListValue row, or a string key into a MapValue row.
func sliceColumn(row, index types.Value) (types.Value, types.ErrorCode) {
	switch idx := index.(type) {
	case types.IntValue:
		list, ok := row.(types.ListValue)
		if !ok {
			return nil, types.E_TYPE
		}
		i := int(idx.Val)
		if i < 1 || i > list.Len() {
			return nil, types.E_RANGE
		}
		return list.Get(i), types.E_NONE
	case types.StrValue:
		m, ok := row.(types.MapValue)
		if !ok {
			return nil, types.E_TYPE
		}
		v, found := m.Get(idx)
		if !found {
			return nil, types.E_RANGE
		}
		return v, types.E_NONE
	default:
		return nil, types.E_TYPE
	}
}

// builtinSlice implements slice(list [, index [, default]]): index defaults
// to 1, may be a single column (int or string key) or a list of columns, in
// which case each result row is itself a list of the selected columns. When
// a default is given it replaces any column that errors instead of
// propagating the error.
func builtinSlice(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	list, ok := args[0].(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	index := types.Value(types.NewInt(1))
	if len(args) >= 2 {
		index = args[1]
	}
	hasDefault := len(args) == 3
	var defaultVal types.Value
	if hasDefault {
		defaultVal = args[2]
	}

	var columns []types.Value
	multi := false
	if cols, ok := index.(types.ListValue); ok {
		if cols.Len() == 0 {
			return types.Err(types.E_INVARG)
		}
		multi = true
		for i := 1; i <= cols.Len(); i++ {
			columns = append(columns, cols.Get(i))
		}
	} else {
		columns = []types.Value{index}
	}

	result := make([]types.Value, list.Len())
	for i := 1; i <= list.Len(); i++ {
		row := list.Get(i)
		if !multi {
			val, errc := sliceColumn(row, columns[0])
			if errc != types.E_NONE {
				if !hasDefault {
					return types.Err(errc)
				}
				val = defaultVal
			}
			result[i-1] = val
			continue
		}
		picked := make([]types.Value, len(columns))
		for j, col := range columns {
			val, errc := sliceColumn(row, col)
			if errc != types.E_NONE {
				if !hasDefault {
					return types.Err(errc)
				}
				val = defaultVal
			}
			picked[j] = val
		}
		result[i-1] = types.NewList(picked)
	}
	return types.Ok(types.NewList(result))
}

func ordered[T int64 | float64 | types.ErrorCode](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareListOrder orders two MOO values for sort(): values of different
// types order by type code; same-type values compare by underlying value,
// falling back to string representation for lists, maps, and the like.
func compareListOrder(a, b types.Value) int {
	if a.Type() != b.Type() {
		return ordered(int(a.Type()), int(b.Type()))
	}
	switch av := a.(type) {
	case types.IntValue:
		return ordered(av.Val, b.(types.IntValue).Val)
	case types.FloatValue:
		return ordered(av.Val, b.(types.FloatValue).Val)
	case types.StrValue:
		bv := b.(types.StrValue)
		switch {
		case av.Value() < bv.Value():
			return -1
		case av.Value() > bv.Value():
			return 1
		default:
			return 0
		}
	case types.ObjValue:
		return ordered(int64(av.ID()), int64(b.(types.ObjValue).ID()))
	case types.ErrValue:
		return ordered(av.Code(), b.(types.ErrValue).Code())
	default:
		as, bs := a.String(), b.String()
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
}
