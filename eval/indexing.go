package eval

import (
	"silo/parser"
	"silo/types"
)

// collectionLength returns a collection's length for ^/$ resolution, or -1
// if val isn't an indexable collection.
func collectionLength(val types.Value) int {
	switch v := val.(type) {
	case types.ListValue:
		return v.Len()
	case types.StrValue:
		return types.GraphemeCount(v.Value())
	case types.MapValue:
		return v.Len()
	default:
		return -1
	}
}

// withIndexLength runs fn with ctx.IndexContext set to coll's length,
// restoring the previous value afterward. Unlike withIndexContext, it does
// not populate MapFirstKey/MapLastKey, matching evalNestedAssign's existing
// (narrower) resolution of ^ and $ during chained index assignment.
func withIndexLength(ctx *types.TaskContext, coll types.Value, fn func() types.Result) (types.Result, int) {
	length := collectionLength(coll)
	if length < 0 {
		return types.Err(types.E_TYPE), -1
	}
	saved := ctx.IndexContext
	ctx.IndexContext = length
	result := fn()
	ctx.IndexContext = saved
	return result, length
}

// withIndexContext runs fn with ctx's index markers (^, $, and for maps the
// first/last key) set to describe coll, restoring the previous values
// afterward. Sub-expressions of an index/range evaluated inside fn can then
// resolve those markers against coll rather than whatever enclosing
// collection, if any, set them before.
func withIndexContext(ctx *types.TaskContext, coll types.Value, fn func() types.Result) (types.Result, int) {
	length := collectionLength(coll)
	if length < 0 {
		return types.Err(types.E_TYPE), -1
	}

	savedLen, savedFirst, savedLast := ctx.IndexContext, ctx.MapFirstKey, ctx.MapLastKey
	ctx.IndexContext = length
	ctx.MapFirstKey, ctx.MapLastKey = nil, nil
	if mapVal, isMap := coll.(types.MapValue); isMap && length > 0 {
		pairs := mapVal.Pairs()
		ctx.MapFirstKey, ctx.MapLastKey = pairs[0][0], pairs[length-1][0]
	}

	result := fn()

	ctx.IndexContext, ctx.MapFirstKey, ctx.MapLastKey = savedLen, savedFirst, savedLast
	return result, length
}

// evalIndex evaluates expr[index] over a list, string, or map.
func (e *Evaluator) evalIndex(node *parser.IndexExpr, ctx *types.TaskContext) types.Result {
	baseResult := e.Eval(node.Expr, ctx)
	if !baseResult.IsNormal() {
		return baseResult
	}
	base := baseResult.Val

	indexResult, length := withIndexContext(ctx, base, func() types.Result { return e.Eval(node.Index, ctx) })
	if length < 0 {
		return indexResult // E_TYPE from withIndexContext
	}
	if !indexResult.IsNormal() {
		return indexResult
	}

	switch coll := base.(type) {
	case types.ListValue:
		return evalListIndex(coll, indexResult.Val)
	case types.StrValue:
		return evalStrIndex(coll, indexResult.Val)
	case types.MapValue:
		return evalMapIndex(coll, indexResult.Val)
	default:
		return types.Err(types.E_TYPE)
	}
}

// evalRange evaluates expr[start..end] over a list, string, or map.
func (e *Evaluator) evalRange(node *parser.RangeExpr, ctx *types.TaskContext) types.Result {
	baseResult := e.Eval(node.Expr, ctx)
	if !baseResult.IsNormal() {
		return baseResult
	}
	base := baseResult.Val

	length := collectionLength(base)
	if length < 0 {
		return types.Err(types.E_TYPE)
	}

	savedLen := ctx.IndexContext
	ctx.IndexContext = length
	startResult := e.Eval(node.Start, ctx)
	endResult := e.Eval(node.End, ctx)
	ctx.IndexContext = savedLen

	if !startResult.IsNormal() {
		return startResult
	}
	startInt, ok := startResult.Val.(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !endResult.IsNormal() {
		return endResult
	}
	endInt, ok := endResult.Val.(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	switch coll := base.(type) {
	case types.ListValue:
		return evalListRange(coll, startInt.Val, endInt.Val)
	case types.StrValue:
		return evalStrRange(coll, startInt.Val, endInt.Val)
	case types.MapValue:
		return evalMapRange(coll, startInt.Val, endInt.Val)
	default:
		return types.Err(types.E_TYPE)
	}
}

func evalListIndex(list types.ListValue, index types.Value) types.Result {
	idx, ok := index.(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if idx.Val < 1 || idx.Val > int64(list.Len()) {
		return types.Err(types.E_RANGE)
	}
	return types.Ok(list.Get(int(idx.Val)))
}

// evalListRange returns list[start..end], 1-based and inclusive. A start
// past the end is an empty list regardless of whether the bounds would
// otherwise be in range.
func evalListRange(list types.ListValue, start, end int64) types.Result {
	if start > end {
		return types.Ok(types.NewList([]types.Value{}))
	}

	length := int64(list.Len())
	if start < 1 || start > length || end < 1 || end > length {
		return types.Err(types.E_RANGE)
	}

	result := make([]types.Value, 0, end-start+1)
	for i := start; i <= end; i++ {
		result = append(result, list.Get(int(i)))
	}
	return types.Ok(types.NewList(result))
}

// evalStrIndex returns the i'th user-perceived character (grapheme cluster,
// not byte) of str.
func evalStrIndex(str types.StrValue, index types.Value) types.Result {
	idx, ok := index.(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	g, ok := types.GraphemeAt(str.Value(), int(idx.Val))
	if !ok {
		return types.Err(types.E_RANGE)
	}
	return types.Ok(types.NewStr(g))
}

func evalStrRange(str types.StrValue, start, end int64) types.Result {
	substr, ok := types.GraphemeSlice(str.Value(), int(start), int(end))
	if !ok {
		return types.Err(types.E_RANGE)
	}
	return types.Ok(types.NewStr(substr))
}

// evalMapRange returns a submap of the pairs at positions start..end (1-based,
// in the map's sorted key order), not a lookup by key range.
func evalMapRange(m types.MapValue, start, end int64) types.Result {
	length := int64(m.Len())
	if start < 1 || start > length || end < 1 || end > length {
		return types.Err(types.E_RANGE)
	}
	if start > end {
		return types.Ok(types.NewEmptyMap())
	}

	pairs := m.Pairs()
	result := make([][2]types.Value, 0, end-start+1)
	for i := start; i <= end; i++ {
		result = append(result, pairs[i-1])
	}
	return types.Ok(types.NewMap(result))
}

func evalMapIndex(m types.MapValue, key types.Value) types.Result {
	val, ok := m.Get(key)
	if !ok {
		return types.Err(types.E_RANGE)
	}
	return types.Ok(val)
}

// evalAssignIndex handles coll[i] = value, including nested chains like
// coll[i][j][k] = value, by flattening the index chain down to its base
// variable and delegating to evalNestedAssign.
func (e *Evaluator) evalAssignIndex(target *parser.IndexExpr, value types.Value, ctx *types.TaskContext) types.Result {
	var path []parser.Expr
	var cur parser.Expr = target
	for {
		switch expr := cur.(type) {
		case *parser.IndexExpr:
			path = append(path, expr.Index)
			cur = expr.Expr
		case *parser.IdentifierExpr:
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return e.evalNestedAssign(expr.Name, path, value, ctx)
		default:
			return types.Err(types.E_TYPE)
		}
	}
}

// evalNestedAssign rebuilds a chain of nested collections copy-on-write: it
// walks down to the innermost target, sets the value there, then walks back
// up replacing each enclosing collection with a copy that holds the updated
// child.
func (e *Evaluator) evalNestedAssign(varName string, indices []parser.Expr, value types.Value, ctx *types.TaskContext) types.Result {
	root, exists := e.env.Get(varName)
	if !exists {
		return types.Err(types.E_VARNF)
	}
	if len(indices) == 1 {
		return e.evalSimpleIndexAssign(varName, root, indices[0], value, ctx)
	}

	collections := make([]types.Value, len(indices))
	resolved := make([]types.Value, len(indices))
	collections[0] = root

	for i := 0; i < len(indices)-1; i++ {
		idxResult, length := withIndexLength(ctx, collections[i], func() types.Result { return e.Eval(indices[i], ctx) })
		if length < 0 {
			return idxResult
		}
		if !idxResult.IsNormal() {
			return idxResult
		}
		resolved[i] = idxResult.Val

		switch c := collections[i].(type) {
		case types.ListValue:
			idx, ok := idxResult.Val.(types.IntValue)
			if !ok {
				return types.Err(types.E_TYPE)
			}
			if idx.Val < 1 || idx.Val > int64(c.Len()) {
				return types.Err(types.E_RANGE)
			}
			collections[i+1] = c.Get(int(idx.Val))
		case types.MapValue:
			v, ok := c.Get(idxResult.Val)
			if !ok {
				return types.Err(types.E_RANGE)
			}
			collections[i+1] = v
		default:
			return types.Err(types.E_TYPE)
		}
	}

	last := len(indices) - 1
	lastIdxResult, length := withIndexLength(ctx, collections[last], func() types.Result { return e.Eval(indices[last], ctx) })
	if length < 0 {
		return lastIdxResult
	}
	if !lastIdxResult.IsNormal() {
		return lastIdxResult
	}
	resolved[last] = lastIdxResult.Val

	newVal, errCode := setAtIndex(collections[last], resolved[last], value)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}
	for i := last - 1; i >= 0; i-- {
		newVal, errCode = setAtIndex(collections[i], resolved[i], newVal)
		if errCode != types.E_NONE {
			return types.Err(errCode)
		}
	}

	e.env.Set(varName, newVal)
	return types.Ok(value)
}

func (e *Evaluator) evalSimpleIndexAssign(varName string, collVal types.Value, indexExpr parser.Expr, value types.Value, ctx *types.TaskContext) types.Result {
	indexResult, length := withIndexContext(ctx, collVal, func() types.Result { return e.Eval(indexExpr, ctx) })
	if length < 0 {
		return indexResult
	}
	if !indexResult.IsNormal() {
		return indexResult
	}

	newColl, errCode := setAtIndex(collVal, indexResult.Val, value)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}
	e.env.Set(varName, newColl)
	return types.Ok(value)
}

// setAtIndex returns a copy of coll with the element at index replaced,
// implementing MOO's copy-on-write collection semantics.
func setAtIndex(coll types.Value, index types.Value, value types.Value) (types.Value, types.ErrorCode) {
	switch c := coll.(type) {
	case types.ListValue:
		idx, ok := index.(types.IntValue)
		if !ok {
			return nil, types.E_TYPE
		}
		i := int(idx.Val)
		if i < 1 || i > c.Len() {
			return nil, types.E_RANGE
		}
		return c.Set(i, value), types.E_NONE

	case types.StrValue:
		idx, ok := index.(types.IntValue)
		if !ok {
			return nil, types.E_TYPE
		}
		i := int(idx.Val)
		s := c.Value()
		if i < 1 || i > len(s) {
			return nil, types.E_RANGE
		}
		newChar, ok := value.(types.StrValue)
		if !ok || len(newChar.Value()) != 1 {
			return nil, types.E_INVARG
		}
		return types.NewStr(s[:i-1] + newChar.Value() + s[i:]), types.E_NONE

	case types.MapValue:
		return c.Set(index, value), types.E_NONE

	default:
		return nil, types.E_TYPE
	}
}

// evalAssignRange handles coll[start..end] = value, splicing value's
// elements in place of the selected span.
func (e *Evaluator) evalAssignRange(target *parser.RangeExpr, value types.Value, ctx *types.TaskContext) types.Result {
	varName, ok := getBaseVariableFromRange(target)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	collVal, exists := e.env.Get(varName)
	if !exists {
		return types.Err(types.E_VARNF)
	}

	length := collectionLength(collVal)
	if length < 0 {
		return types.Err(types.E_TYPE)
	}

	startIdx, result := e.resolveRangeBound(target.Start, length, ctx)
	if result != nil {
		return *result
	}
	endIdx, result := e.resolveRangeBound(target.End, length, ctx)
	if result != nil {
		return *result
	}

	var newColl types.Value
	switch coll := collVal.(type) {
	case types.ListValue:
		newVals, ok := value.(types.ListValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		if startIdx < 1 || startIdx > int64(length)+1 || endIdx < 0 || endIdx > int64(length) {
			return types.Err(types.E_RANGE)
		}
		spliced := make([]types.Value, 0, length)
		for i := 1; i < int(startIdx); i++ {
			spliced = append(spliced, coll.Get(i))
		}
		for i := 1; i <= newVals.Len(); i++ {
			spliced = append(spliced, newVals.Get(i))
		}
		for i := int(endIdx) + 1; i <= length; i++ {
			spliced = append(spliced, coll.Get(i))
		}
		newColl = types.NewList(spliced)

	case types.StrValue:
		newStr, ok := value.(types.StrValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		s := coll.Value()
		if startIdx < 1 || startIdx > int64(len(s))+1 || endIdx < 0 || endIdx > int64(len(s)) {
			return types.Err(types.E_RANGE)
		}
		newColl = types.NewStr(s[:startIdx-1] + newStr.Value() + s[endIdx:])

	case types.MapValue:
		newMap, ok := value.(types.MapValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		if startIdx < 1 || startIdx > int64(length)+1 || endIdx < 0 || endIdx > int64(length) {
			return types.Err(types.E_RANGE)
		}
		pairs := coll.Pairs()
		spliced := make([][2]types.Value, 0, length)
		spliced = append(spliced, pairs[:startIdx-1]...)
		spliced = append(spliced, newMap.Pairs()...)
		spliced = append(spliced, pairs[endIdx:]...)
		newColl = types.NewMap(spliced)

	default:
		return types.Err(types.E_TYPE)
	}

	e.env.Set(varName, newColl)
	return types.Ok(value)
}

// resolveRangeBound evaluates one end of a range-assignment target, handling
// the bare ^/$ markers directly since they're position literals here rather
// than something evalIndex's IndexContext plumbing needs to resolve.
func (e *Evaluator) resolveRangeBound(bound parser.Expr, length int, ctx *types.TaskContext) (int64, *types.Result) {
	if marker, ok := bound.(*parser.IndexMarkerExpr); ok {
		switch marker.Marker {
		case parser.TOKEN_CARET:
			return 1, nil
		case parser.TOKEN_DOLLAR:
			return int64(length), nil
		default:
			errResult := types.Err(types.E_TYPE)
			return 0, &errResult
		}
	}

	result := e.Eval(bound, ctx)
	if !result.IsNormal() {
		return 0, &result
	}
	asInt, ok := result.Val.(types.IntValue)
	if !ok {
		errResult := types.Err(types.E_TYPE)
		return 0, &errResult
	}
	return asInt.Val, nil
}

// getBaseVariable extracts the variable name from a single-level IndexExpr;
// nested chains aren't handled by this path.
func getBaseVariable(expr *parser.IndexExpr) (string, bool) {
	switch base := expr.Expr.(type) {
	case *parser.IdentifierExpr:
		return base.Name, true
	default:
		return "", false
	}
}

func getBaseVariableFromRange(expr *parser.RangeExpr) (string, bool) {
	switch base := expr.Expr.(type) {
	case *parser.IdentifierExpr:
		return base.Name, true
	default:
		return "", false
	}
}
