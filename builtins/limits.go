package builtins

import (
	"math"
	"sync"

	"silo/db"
	"silo/types"
)

// Defaults and bounds for the three server-configurable value-size limits,
// mirroring the reference server's _server_int_option_cache behavior: each
// limit clamps to [min, max] and falls back to max when the configured value
// is non-positive or out of range.
const (
	defaultValueLimit = 64537861
	minValueLimit     = 1021
	maxValueLimit     = math.MaxInt32 - minValueLimit
)

var limitCache = struct {
	sync.RWMutex
	maxStringConcat   int
	maxListValueBytes int
	maxMapValueBytes  int
}{
	maxStringConcat:   defaultValueLimit,
	maxListValueBytes: defaultValueLimit,
	maxMapValueBytes:  defaultValueLimit,
}

func GetMaxStringConcat() int {
	limitCache.RLock()
	defer limitCache.RUnlock()
	return limitCache.maxStringConcat
}

func GetMaxListValueBytes() int {
	limitCache.RLock()
	defer limitCache.RUnlock()
	return limitCache.maxListValueBytes
}

func GetMaxMapValueBytes() int {
	limitCache.RLock()
	defer limitCache.RUnlock()
	return limitCache.maxMapValueBytes
}

// findPropertyInherited searches objID and its ancestors, breadth-first,
// for the first definition of name (ignoring clear/non-clear status).
func findPropertyInherited(objID types.ObjID, name string, store *db.Store) *db.Property {
	queue := []types.ObjID{objID}
	visited := make(map[types.ObjID]bool)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		obj := store.Get(id)
		if obj == nil {
			continue
		}
		if prop, ok := obj.Properties[name]; ok {
			return prop
		}
		queue = append(queue, obj.Parents...)
	}
	return nil
}

func canonicalizeLimit(value int) int {
	switch {
	case value > 0 && value < minValueLimit:
		return minValueLimit
	case value <= 0 || value > maxValueLimit:
		return maxValueLimit
	default:
		return value
	}
}

// LoadServerOptionsFromStore reloads the cached value-size limits from the
// server_options object reachable from #0, resetting to defaults first so a
// removed property reverts rather than sticking at its last value. Returns
// how many of the three limits were found and applied.
func LoadServerOptionsFromStore(store *db.Store) int {
	limits := struct{ str, list, mapBytes int }{defaultValueLimit, defaultValueLimit, defaultValueLimit}
	loaded := 0

	applyAndExit := func() int {
		limitCache.Lock()
		limitCache.maxStringConcat = limits.str
		limitCache.maxListValueBytes = limits.list
		limitCache.maxMapValueBytes = limits.mapBytes
		limitCache.Unlock()
		return loaded
	}

	if store == nil {
		return applyAndExit()
	}

	optsProp := findPropertyInherited(0, "server_options", store)
	if optsProp == nil {
		return applyAndExit()
	}
	optsRef, ok := optsProp.Value.(types.ObjValue)
	if !ok {
		return applyAndExit()
	}
	optsID := optsRef.ID()

	if prop := findPropertyInherited(optsID, "max_string_concat", store); prop != nil {
		if intVal, ok := prop.Value.(types.IntValue); ok {
			limits.str = canonicalizeLimit(int(intVal.Val))
			loaded++
		}
	}
	if prop := findPropertyInherited(optsID, "max_list_value_bytes", store); prop != nil {
		if intVal, ok := prop.Value.(types.IntValue); ok {
			limits.list = canonicalizeLimit(int(intVal.Val))
			loaded++
		}
	}
	if prop := findPropertyInherited(optsID, "max_map_value_bytes", store); prop != nil {
		if intVal, ok := prop.Value.(types.IntValue); ok {
			limits.mapBytes = canonicalizeLimit(int(intVal.Val))
			loaded++
		}
	}

	return applyAndExit()
}

// UpdateContextLimits pulls the cached max_string_concat limit into ctx, for
// string-producing builtins to consult before allocating their result.
func UpdateContextLimits(ctx *types.TaskContext) {
	if limit := GetMaxStringConcat(); limit > 0 {
		ctx.MaxStringConcat = limit
	}
}

func builtinValueBytes(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	return types.Ok(types.NewInt(int64(ValueBytes(args[0]))))
}

// ValueBytes estimates a MOO value's footprint using the reference server's
// value_bytes() accounting: every value costs one 16-byte Var slot, with
// variable-length values (strings, lists, maps) adding their payload on top.
func ValueBytes(v types.Value) int {
	const varSize = 16

	switch val := v.(type) {
	case types.FloatValue:
		return varSize + 8
	case types.StrValue:
		return varSize + len(val.Value()) + 1
	case types.ListValue:
		size := varSize + varSize // the list's own Var, plus a Var for its length
		for i := 1; i <= val.Len(); i++ {
			size += ValueBytes(val.Get(i))
		}
		return size
	case types.MapValue:
		size := varSize + varSize
		for _, pair := range val.Pairs() {
			size += ValueBytes(pair[0]) + ValueBytes(pair[1])
		}
		return size
	case types.WaifValue:
		// Properties aren't counted, matching the reference accounting.
		return varSize + varSize
	default:
		// IntValue, ObjValue, ErrValue all fit directly in a Var.
		return varSize
	}
}

// CheckListLimit reports E_QUOTA when list's byte size meets or exceeds the
// configured max_list_value_bytes (the bound is exclusive).
func CheckListLimit(list types.ListValue) types.ErrorCode {
	if limit := GetMaxListValueBytes(); limit > 0 && ValueBytes(list) >= limit {
		return types.E_QUOTA
	}
	return types.E_NONE
}

// CheckMapLimit reports E_QUOTA when m's byte size exceeds (the bound here
// is inclusive) max_map_value_bytes.
func CheckMapLimit(m types.MapValue) types.ErrorCode {
	if limit := GetMaxMapValueBytes(); limit > 0 && ValueBytes(m) > limit {
		return types.E_QUOTA
	}
	return types.E_NONE
}

// CheckStringLimit reports E_QUOTA when len(s) exceeds max_string_concat.
func CheckStringLimit(s string) types.ErrorCode {
	if limit := GetMaxStringConcat(); limit > 0 && len(s) > limit {
		return types.E_QUOTA
	}
	return types.E_NONE
}
