package builtins

import (
	"sort"
	"strings"

	"silo/db"
	"silo/types"
)

// builtinLocateByName implements locate_by_name(name [, case-matters]):
// wizard-only substring search over every object's .name.
func builtinLocateByName(ctx *types.TaskContext, args []types.Value, store *db.Store) types.Result {
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}
	needle, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	trimmed := strings.TrimSpace(needle.Value())
	if trimmed == "" {
		return types.Ok(types.NewList([]types.Value{}))
	}

	caseMatters := false
	if len(args) == 2 {
		flag, ok := args[1].(types.IntValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		caseMatters = flag.Val != 0
	}

	normalize := func(s string) string {
		s = strings.TrimSpace(s)
		if !caseMatters {
			s = strings.ToLower(s)
		}
		return s
	}
	needleNorm := normalize(trimmed)

	matches := make([]types.Value, 0)
	for _, obj := range store.All() {
		if strings.Contains(normalize(obj.Name), needleNorm) {
			matches = append(matches, types.NewObj(obj.ID))
		}
	}
	return types.Ok(types.NewList(matches))
}

// builtinLocations implements locations(object [, base [, stop-at-parent]]):
// walks object's containment chain (location, location's location, ...),
// stopping before base if given, or stopping at any ancestor of base when
// the third argument is true.
func builtinLocations(ctx *types.TaskContext, args []types.Value, store *db.Store) types.Result {
	if len(args) < 1 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}

	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	obj := store.Get(objVal.ID())
	if obj == nil {
		return types.Err(types.E_INVIND)
	}

	var baseID types.ObjID
	hasBase := false
	stopAtAncestor := false
	if len(args) >= 2 {
		baseVal, ok := args[1].(types.ObjValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		baseID, hasBase = baseVal.ID(), true
	}
	if len(args) == 3 {
		flag, ok := args[2].(types.IntValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		stopAtAncestor = flag.Val != 0
	}

	out := make([]types.Value, 0)
	for current := obj; current != nil && current.Location != types.ObjNothing; current = store.Get(current.Location) {
		locID := current.Location
		if hasBase {
			if !stopAtAncestor && locID == baseID {
				break
			}
			if stopAtAncestor && objectHasAncestor(store, locID, baseID) {
				break
			}
		}
		out = append(out, types.NewObj(locID))
	}
	return types.Ok(types.NewList(out))
}

// objectHasAncestor reports whether ancestorID appears in objID's own
// chain or anywhere among its parents, breadth-first.
func objectHasAncestor(store *db.Store, objID, ancestorID types.ObjID) bool {
	if objID == ancestorID {
		return true
	}
	obj := store.Get(objID)
	if obj == nil {
		return false
	}

	visited := make(map[types.ObjID]bool)
	queue := append([]types.ObjID{}, obj.Parents...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		if id == ancestorID {
			return true
		}
		if parent := store.Get(id); parent != nil {
			queue = append(queue, parent.Parents...)
		}
	}
	return false
}

func builtinOwnedObjects(ctx *types.TaskContext, args []types.Value, store *db.Store) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	ownerVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !store.Valid(ownerVal.ID()) {
		return types.Err(types.E_INVIND)
	}

	out := make([]types.Value, 0)
	for _, obj := range store.All() {
		if obj.Owner == ownerVal.ID() {
			out = append(out, types.NewObj(obj.ID))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].(types.ObjValue).ID() < out[j].(types.ObjValue).ID()
	})
	return types.Ok(types.NewList(out))
}

func builtinRecycledObjects(ctx *types.TaskContext, args []types.Value, store *db.Store) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	out := make([]types.Value, 0)
	for id := types.ObjID(0); id < store.NextID(); id++ {
		if store.IsRecycled(id) {
			out = append(out, types.NewObj(id))
		}
	}
	return types.Ok(types.NewList(out))
}

// builtinNextRecycledObject implements next_recycled_object([start]),
// scanning forward from start (or from the beginning) for the next
// recycled object ID.
func builtinNextRecycledObject(ctx *types.TaskContext, args []types.Value, store *db.Store) types.Result {
	if len(args) > 1 {
		return types.Err(types.E_ARGS)
	}

	start := types.ObjID(-1)
	if len(args) == 1 {
		switch v := args[0].(type) {
		case types.ObjValue:
			start = v.ID()
		case types.IntValue:
			start = types.ObjID(v.Val)
		default:
			return types.Err(types.E_TYPE)
		}
		if start == types.ObjNothing || start > store.MaxObject() {
			return types.Err(types.E_INVARG)
		}
	}

	for id := start + 1; id < store.NextID(); id++ {
		if store.IsRecycled(id) {
			return types.Ok(types.NewObj(id))
		}
	}
	return types.Ok(types.NewInt(0))
}

// builtinRecreate implements recreate(obj [, parent [, owner]]): wizard-only,
// reuses a recycled object ID rather than allocating a fresh one.
func builtinRecreate(ctx *types.TaskContext, args []types.Value, store *db.Store) types.Result {
	if len(args) < 1 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}
	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	parent := types.ObjNothing
	owner := ctx.Programmer
	if len(args) >= 2 {
		parentVal, ok := args[1].(types.ObjValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		parent = parentVal.ID()
	}
	if len(args) == 3 {
		ownerVal, ok := args[2].(types.ObjValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		owner = ownerVal.ID()
	}

	if err := store.Recreate(objVal.ID(), parent, owner); err != nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewObj(objVal.ID()))
}

func builtinWaifStats(ctx *types.TaskContext, args []types.Value, store *db.Store) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	byClass := store.WaifCountByClass()
	entries := make([]types.Value, 0, len(byClass))
	for classID, count := range byClass {
		entries = append(entries, types.NewMap([][2]types.Value{
			{types.NewStr("class"), types.NewObj(classID)},
			{types.NewStr("count"), types.NewInt(int64(count))},
		}))
	}
	return types.Ok(types.NewMap([][2]types.Value{
		{types.NewStr("total"), types.NewInt(int64(store.WaifCount()))},
		{types.NewStr("classes"), types.NewList(entries)},
	}))
}
