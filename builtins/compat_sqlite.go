package builtins

import (
	"strings"
	"sync"

	"silo/types"
)

// sqliteHandle tracks the state of one open (simulated) SQLite connection:
// real query execution isn't wired up, so this records just enough to make
// the handle lifecycle and row-id/limit bookkeeping behave correctly.
type sqliteHandle struct {
	id           int64
	path         string
	lastInsertID int64
	limits       map[int64]int64
}

// sqliteTable is the process-wide table of open handles, guarded by mu since
// MOO tasks can call these builtins concurrently.
var sqliteTable = struct {
	mu      sync.Mutex
	nextID  int64
	handles map[int64]*sqliteHandle
}{
	nextID:  1,
	handles: make(map[int64]*sqliteHandle),
}

func lookupSqliteHandle(v types.Value) (*sqliteHandle, types.ErrorCode) {
	idVal, ok := v.(types.IntValue)
	if !ok {
		return nil, types.E_TYPE
	}
	sqliteTable.mu.Lock()
	defer sqliteTable.mu.Unlock()
	h := sqliteTable.handles[idVal.Val]
	if h == nil {
		return nil, types.E_INVARG
	}
	return h, types.E_NONE
}

func builtinSqliteOpen(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	pathVal, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	path, err := sanitizeFilePath(pathVal.Value())
	if err != nil {
		return types.Err(types.E_INVARG)
	}

	sqliteTable.mu.Lock()
	id := sqliteTable.nextID
	sqliteTable.nextID++
	sqliteTable.handles[id] = &sqliteHandle{id: id, path: path, limits: make(map[int64]int64)}
	sqliteTable.mu.Unlock()
	return types.Ok(types.NewInt(id))
}

func builtinSqliteClose(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	idVal, ok := args[0].(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	sqliteTable.mu.Lock()
	defer sqliteTable.mu.Unlock()
	if sqliteTable.handles[idVal.Val] == nil {
		return types.Err(types.E_INVARG)
	}
	delete(sqliteTable.handles, idVal.Val)
	return types.Ok(types.NewInt(0))
}

func builtinSqliteHandles(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	sqliteTable.mu.Lock()
	defer sqliteTable.mu.Unlock()
	out := make([]types.Value, 0, len(sqliteTable.handles))
	for id := range sqliteTable.handles {
		out = append(out, types.NewInt(id))
	}
	return types.Ok(types.NewList(out))
}

func builtinSqliteInfo(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	h, code := lookupSqliteHandle(args[0])
	if code != types.E_NONE {
		return types.Err(code)
	}
	return types.Ok(types.NewMap([][2]types.Value{
		{types.NewStr("path"), types.NewStr(h.path)},
		{types.NewStr("last_insert_row_id"), types.NewInt(h.lastInsertID)},
	}))
}

func builtinSqliteQuery(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	if _, code := lookupSqliteHandle(args[0]); code != types.E_NONE {
		return types.Err(code)
	}
	if _, ok := args[1].(types.StrValue); !ok {
		return types.Err(types.E_TYPE)
	}
	if len(args) == 3 {
		if _, ok := args[2].(types.ListValue); !ok {
			return types.Err(types.E_TYPE)
		}
	}
	return types.Ok(types.NewList([]types.Value{}))
}

func builtinSqliteExecute(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	h, code := lookupSqliteHandle(args[0])
	if code != types.E_NONE {
		return types.Err(code)
	}
	sql, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if len(args) == 3 {
		if _, ok := args[2].(types.ListValue); !ok {
			return types.Err(types.E_TYPE)
		}
	}
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql.Value())), "INSERT") {
		h.lastInsertID++
	}
	return types.Ok(types.NewInt(0))
}

func builtinSqliteLastInsertRowID(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	h, code := lookupSqliteHandle(args[0])
	if code != types.E_NONE {
		return types.Err(code)
	}
	return types.Ok(types.NewInt(h.lastInsertID))
}

// builtinSqliteLimit implements sqlite_limit(handle, id [, value]): reads a
// per-connection limit when called with two args, sets it when called with
// three.
func builtinSqliteLimit(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	h, code := lookupSqliteHandle(args[0])
	if code != types.E_NONE {
		return types.Err(code)
	}
	limitID, ok := args[1].(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if len(args) == 2 {
		return types.Ok(types.NewInt(h.limits[limitID.Val]))
	}
	newVal, ok := args[2].(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	h.limits[limitID.Val] = newVal.Val
	return types.Ok(types.NewInt(newVal.Val))
}

func builtinSqliteInterrupt(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	if _, code := lookupSqliteHandle(args[0]); code != types.E_NONE {
		return types.Err(code)
	}
	return types.Ok(types.NewInt(0))
}
