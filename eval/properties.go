package eval

import (
	"silo/db"
	"silo/parser"
	"silo/types"
)

// builtinPropertyReaders maps each pseudo-property name to its reader.
var builtinPropertyReaders = map[string]func(*db.Object) types.Value{
	"name":     func(o *db.Object) types.Value { return types.NewStr(o.Name) },
	"owner":    func(o *db.Object) types.Value { return types.NewObj(o.Owner) },
	"location": func(o *db.Object) types.Value { return types.NewObj(o.Location) },
	"contents": func(o *db.Object) types.Value { return objIDsToList(o.Contents) },
	"parents":  func(o *db.Object) types.Value { return objIDsToList(o.Parents) },
	"children": func(o *db.Object) types.Value { return objIDsToList(o.Children) },
	"parent": func(o *db.Object) types.Value {
		if len(o.Parents) > 0 {
			return types.NewObj(o.Parents[0])
		}
		return types.NewObj(types.ObjNothing)
	},
	"programmer": flagReader(db.FlagProgrammer),
	"wizard":     flagReader(db.FlagWizard),
	"player":     flagReader(db.FlagUser),
	"r":          flagReader(db.FlagRead),
	"w":          flagReader(db.FlagWrite),
	"f":          flagReader(db.FlagFertile),
}

func objIDsToList(ids []types.ObjID) types.Value {
	vals := make([]types.Value, len(ids))
	for i, id := range ids {
		vals[i] = types.NewObj(id)
	}
	return types.NewList(vals)
}

func flagReader(flag db.ObjectFlags) func(*db.Object) types.Value {
	return func(o *db.Object) types.Value {
		if o.Flags.Has(flag) {
			return types.NewInt(1)
		}
		return types.NewInt(0)
	}
}

// flagProperties lists the pseudo-properties backed by a boolean flag, so
// setBuiltinProperty can share one writer across all of them.
var flagProperties = map[string]db.ObjectFlags{
	"programmer": db.FlagProgrammer,
	"wizard":     db.FlagWizard,
	"player":     db.FlagUser,
	"r":          db.FlagRead,
	"w":          db.FlagWrite,
	"f":          db.FlagFertile,
}

// evalProperty evaluates obj.property: a built-in pseudo-property if name
// names one, otherwise an inherited user-defined property.
func (e *Evaluator) evalProperty(node *parser.PropertyExpr, ctx *types.TaskContext) types.Result {
	obj, errResult := e.resolveObjectTarget(node.Expr, ctx)
	if errResult != nil {
		return *errResult
	}

	if val, ok := e.getBuiltinProperty(obj, node.Property); ok {
		return types.Ok(val)
	}

	prop, errCode := e.findProperty(obj, node.Property, ctx)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}
	return types.Ok(prop.Value)
}

// resolveObjectTarget evaluates expr and resolves it to a live object,
// producing E_TYPE for a non-object value and E_INVIND for an invalid or
// recycled one.
func (e *Evaluator) resolveObjectTarget(expr parser.Expr, ctx *types.TaskContext) (*db.Object, *types.Result) {
	result := e.Eval(expr, ctx)
	if result.Flow != types.FlowNormal {
		return nil, &result
	}
	objVal, ok := result.Val.(types.ObjValue)
	if !ok {
		errResult := types.Err(types.E_TYPE)
		return nil, &errResult
	}
	obj := e.store.Get(objVal.ID())
	if obj == nil {
		errResult := types.Err(types.E_INVIND)
		return nil, &errResult
	}
	return obj, nil
}

func (e *Evaluator) getBuiltinProperty(obj *db.Object, name string) (types.Value, bool) {
	reader, ok := builtinPropertyReaders[name]
	if !ok {
		return nil, false
	}
	return reader(obj), true
}

// findProperty searches obj and its ancestors breadth-first, left to right,
// for the first non-clear definition of name.
func (e *Evaluator) findProperty(obj *db.Object, name string, ctx *types.TaskContext) (*db.Property, types.ErrorCode) {
	queue := []types.ObjID{obj.ID}
	visited := make(map[types.ObjID]bool)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		current := e.store.Get(id)
		if current == nil {
			continue
		}
		if prop, ok := current.Properties[name]; ok && !prop.Clear {
			return prop, types.E_NONE
		}
		queue = append(queue, current.Parents...)
	}
	return nil, types.E_PROPNF
}

// evalAssignProperty handles obj.property = value for both pseudo-properties
// and user-defined ones; a property must already exist to be assigned
// (add_property is a separate builtin, not implicit assignment).
func (e *Evaluator) evalAssignProperty(node *parser.PropertyExpr, value types.Value, ctx *types.TaskContext) types.Result {
	obj, errResult := e.resolveObjectTarget(node.Expr, ctx)
	if errResult != nil {
		return *errResult
	}

	if e.setBuiltinProperty(obj, node.Property, value) {
		return types.Ok(value)
	}

	prop, ok := obj.Properties[node.Property]
	if !ok {
		return types.Err(types.E_PROPNF)
	}

	// Writing through a clear (inherited) property localizes it on obj.
	prop.Clear = false
	prop.Value = value
	return types.Ok(value)
}

func (e *Evaluator) setBuiltinProperty(obj *db.Object, name string, value types.Value) bool {
	if flag, ok := flagProperties[name]; ok {
		intVal, ok := value.(types.IntValue)
		if !ok {
			return false
		}
		if intVal.Val != 0 {
			obj.Flags = obj.Flags.Set(flag)
		} else {
			obj.Flags = obj.Flags.Clear(flag)
		}
		return true
	}

	switch name {
	case "name":
		str, ok := value.(types.StrValue)
		if !ok {
			return false
		}
		obj.Name = str.Value()
		return true
	case "owner":
		objVal, ok := value.(types.ObjValue)
		if !ok {
			return false
		}
		obj.Owner = objVal.ID()
		return true
	case "location":
		objVal, ok := value.(types.ObjValue)
		if !ok {
			return false
		}
		// TODO: update Contents of the old and new locations
		obj.Location = objVal.ID()
		return true
	default:
		return false
	}
}
