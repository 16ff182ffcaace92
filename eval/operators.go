package eval

import (
	"math"
	"sort"
	"strings"

	"silo/types"
)

// numeric is a coerced INT or FLOAT operand. ok is false when the source
// value was neither, in which case i/f/isFloat are meaningless.
type numeric struct {
	i       int64
	f       float64
	isFloat bool
	ok      bool
}

func asNumeric(v types.Value) numeric {
	switch val := v.(type) {
	case types.IntValue:
		return numeric{i: val.Val, ok: true}
	case types.FloatValue:
		return numeric{f: val.Val, isFloat: true, ok: true}
	default:
		return numeric{}
	}
}

func (n numeric) asFloat() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

// ----------------------------------------------------------------------
// Unary operators
// ----------------------------------------------------------------------

func evalUnaryMinus(operand types.Value) types.Result {
	switch v := operand.(type) {
	case types.IntValue:
		return types.Ok(types.IntValue{Val: -v.Val})
	case types.FloatValue:
		return types.Ok(types.FloatValue{Val: -v.Val})
	default:
		return types.Err(types.E_TYPE)
	}
}

func evalUnaryNot(operand types.Value) types.Result {
	if operand.Truthy() {
		return types.Ok(types.IntValue{Val: 0})
	}
	return types.Ok(types.IntValue{Val: 1})
}

func evalBitwiseNot(operand types.Value) types.Result {
	intVal, ok := operand.(types.IntValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	return types.Ok(types.IntValue{Val: ^intVal.Val})
}

// ----------------------------------------------------------------------
// Arithmetic operators
// ----------------------------------------------------------------------

// checkedFloat wraps a float64 result, turning NaN/Inf into E_FLOAT.
func checkedFloat(f float64) types.Result {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return types.Err(types.E_FLOAT)
	}
	return types.Ok(types.FloatValue{Val: f})
}

func evalAdd(left, right types.Value) types.Result {
	if ls, ok := left.(types.StrValue); ok {
		rs, ok := right.(types.StrValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		return types.Ok(types.NewStr(ls.Value() + rs.Value()))
	}

	l, r := asNumeric(left), asNumeric(right)
	if !l.ok || !r.ok {
		return types.Err(types.E_TYPE)
	}
	if l.isFloat || r.isFloat {
		return checkedFloat(l.asFloat() + r.asFloat())
	}
	return types.Ok(types.IntValue{Val: l.i + r.i})
}

func evalSubtract(left, right types.Value) types.Result {
	l, r := asNumeric(left), asNumeric(right)
	if !l.ok || !r.ok {
		return types.Err(types.E_TYPE)
	}
	if l.isFloat || r.isFloat {
		return checkedFloat(l.asFloat() - r.asFloat())
	}
	return types.Ok(types.IntValue{Val: l.i - r.i})
}

func evalMultiply(left, right types.Value) types.Result {
	l, r := asNumeric(left), asNumeric(right)
	if !l.ok || !r.ok {
		return types.Err(types.E_TYPE)
	}
	if l.isFloat || r.isFloat {
		return checkedFloat(l.asFloat() * r.asFloat())
	}
	return types.Ok(types.IntValue{Val: l.i * r.i})
}

// evalDivide implements left / right. Integer division truncates toward
// zero; division by zero (either domain) is E_DIV.
func evalDivide(left, right types.Value) types.Result {
	l, r := asNumeric(left), asNumeric(right)
	if !l.ok || !r.ok {
		return types.Err(types.E_TYPE)
	}
	if l.isFloat || r.isFloat {
		rf := r.asFloat()
		if rf == 0.0 {
			return types.Err(types.E_DIV)
		}
		return checkedFloat(l.asFloat() / rf)
	}
	if r.i == 0 {
		return types.Err(types.E_DIV)
	}
	return types.Ok(types.IntValue{Val: l.i / r.i})
}

// flooredModFloat implements Python/MOO-style modulo for floats, where
// the result takes the sign of the divisor rather than the dividend.
func flooredModFloat(a, b float64) float64 {
	result := math.Mod(a, b)
	if result != 0 && (result < 0) != (b < 0) {
		result += b
	}
	return result
}

// flooredModInt is the integer equivalent of flooredModFloat, kept in
// pure int64 arithmetic so large operands don't lose precision round
// tripping through float64.
func flooredModInt(a, b int64) int64 {
	result := a % b
	if result != 0 && (result < 0) != (b < 0) {
		result += b
	}
	return result
}

func evalModulo(left, right types.Value) types.Result {
	l, r := asNumeric(left), asNumeric(right)
	if !l.ok || !r.ok {
		return types.Err(types.E_TYPE)
	}

	if l.isFloat || r.isFloat {
		rf := r.asFloat()
		if rf == 0 {
			return types.Err(types.E_DIV)
		}
		return types.Ok(types.FloatValue{Val: flooredModFloat(l.asFloat(), rf)})
	}

	if r.i == 0 {
		return types.Err(types.E_DIV)
	}
	return types.Ok(types.IntValue{Val: flooredModInt(l.i, r.i)})
}

// evalPower implements left ^ right. The result is FLOAT unless both
// operands are INT and the mathematical result is a whole number that
// fits in int64.
func evalPower(left, right types.Value) types.Result {
	l, r := asNumeric(left), asNumeric(right)
	if !l.ok || !r.ok {
		return types.Err(types.E_TYPE)
	}

	result := math.Pow(l.asFloat(), r.asFloat())
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return types.Err(types.E_FLOAT)
	}

	if l.isFloat || r.isFloat {
		return types.Ok(types.FloatValue{Val: result})
	}
	if result == math.Floor(result) && result >= float64(math.MinInt64) && result <= float64(math.MaxInt64) {
		return types.Ok(types.IntValue{Val: int64(result)})
	}
	return types.Ok(types.FloatValue{Val: result})
}

// ----------------------------------------------------------------------
// Comparison operators
// ----------------------------------------------------------------------

func boolResult(b bool) types.Result {
	if b {
		return types.Ok(types.IntValue{Val: 1})
	}
	return types.Ok(types.IntValue{Val: 0})
}

func evalEqual(left, right types.Value) types.Result    { return boolResult(left.Equal(right)) }
func evalNotEqual(left, right types.Value) types.Result { return boolResult(!left.Equal(right)) }

func evalLessThan(left, right types.Value) types.Result {
	cmp, errCode := compareValues(left, right)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}
	return boolResult(cmp < 0)
}

func evalLessThanEqual(left, right types.Value) types.Result {
	cmp, errCode := compareValues(left, right)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}
	return boolResult(cmp <= 0)
}

func evalGreaterThan(left, right types.Value) types.Result {
	cmp, errCode := compareValues(left, right)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}
	return boolResult(cmp > 0)
}

func evalGreaterThanEqual(left, right types.Value) types.Result {
	cmp, errCode := compareValues(left, right)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}
	return boolResult(cmp >= 0)
}

// evalIn implements left in right: list membership, substring search, or
// (for maps) the 1-based position of left among the map's values sorted
// into canonical key order.
func evalIn(left, right types.Value) types.Result {
	switch container := right.(type) {
	case types.ListValue:
		for i := 1; i <= container.Len(); i++ {
			if container.Get(i).Equal(left) {
				return types.Ok(types.IntValue{Val: 1})
			}
		}
		return types.Ok(types.IntValue{Val: 0})

	case types.StrValue:
		leftStr, ok := left.(types.StrValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		return boolResult(strings.Contains(container.Value(), leftStr.Value()))

	case types.MapValue:
		pairs := container.Pairs()
		sortMapPairsByKey(pairs)
		for i, pair := range pairs {
			if pair[1].Equal(left) {
				return types.Ok(types.IntValue{Val: int64(i + 1)})
			}
		}
		return types.Ok(types.IntValue{Val: 0})

	default:
		return types.Err(types.E_TYPE)
	}
}

// ----------------------------------------------------------------------
// Bitwise operators
// ----------------------------------------------------------------------

func bothInts(left, right types.Value) (int64, int64, bool) {
	l, ok := left.(types.IntValue)
	if !ok {
		return 0, 0, false
	}
	r, ok := right.(types.IntValue)
	if !ok {
		return 0, 0, false
	}
	return l.Val, r.Val, true
}

func evalBitwiseAnd(left, right types.Value) types.Result {
	l, r, ok := bothInts(left, right)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	return types.Ok(types.IntValue{Val: l & r})
}

func evalBitwiseOr(left, right types.Value) types.Result {
	l, r, ok := bothInts(left, right)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	return types.Ok(types.IntValue{Val: l | r})
}

func evalBitwiseXor(left, right types.Value) types.Result {
	l, r, ok := bothInts(left, right)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	return types.Ok(types.IntValue{Val: l ^ r})
}

// evalLeftShift implements left << right using 64-bit semantics: a shift
// count >= 64 clears every bit, and a negative count is E_INVARG.
func evalLeftShift(left, right types.Value) types.Result {
	l, r, ok := bothInts(left, right)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if r < 0 {
		return types.Err(types.E_INVARG)
	}
	if r >= 64 {
		return types.Ok(types.IntValue{Val: 0})
	}
	return types.Ok(types.IntValue{Val: l << uint(r)})
}

// evalRightShift implements left >> right as a LOGICAL (zero-fill) shift,
// matching MOO's convention rather than Go's sign-extending >> on int64.
func evalRightShift(left, right types.Value) types.Result {
	l, r, ok := bothInts(left, right)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if r < 0 {
		return types.Err(types.E_INVARG)
	}
	if r >= 64 {
		return types.Ok(types.IntValue{Val: 0})
	}
	return types.Ok(types.IntValue{Val: int64(uint64(l) >> uint(r))})
}

// ----------------------------------------------------------------------
// Ordering helpers
// ----------------------------------------------------------------------

// compareValues orders two values for <, <=, >, >=: numerically if both
// are INT/FLOAT, lexically if both are STR, by id if both are OBJ.
// Mixed or otherwise unorderable types report E_TYPE.
func compareValues(left, right types.Value) (int, types.ErrorCode) {
	l, r := asNumeric(left), asNumeric(right)
	if l.ok && r.ok {
		return floatCmp(l.asFloat(), r.asFloat()), types.E_NONE
	}

	if ls, ok := left.(types.StrValue); ok {
		if rs, ok := right.(types.StrValue); ok {
			return strings.Compare(ls.Value(), rs.Value()), types.E_NONE
		}
	}

	if lo, ok := left.(types.ObjValue); ok {
		if ro, ok := right.(types.ObjValue); ok {
			return intCmp(int64(lo.ID()), int64(ro.ID())), types.E_NONE
		}
	}

	return 0, types.E_TYPE
}

func floatCmp(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func intCmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// mapKeyTypeRank orders map keys by type for canonical map ordering:
// INT < OBJ < FLOAT < ERR < STR.
func mapKeyTypeRank(v types.Value) int {
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

// compareMapKeys orders two map keys for canonical display/lookup order.
// String keys compare case-insensitively, matching ToastStunt map semantics.
func compareMapKeys(a, b types.Value) int {
	if ra, rb := mapKeyTypeRank(a), mapKeyTypeRank(b); ra != rb {
		return ra - rb
	}

	switch av := a.(type) {
	case types.IntValue:
		return intCmp(av.Val, b.(types.IntValue).Val)
	case types.FloatValue:
		return floatCmp(av.Val, b.(types.FloatValue).Val)
	case types.ObjValue:
		return intCmp(int64(av.ID()), int64(b.(types.ObjValue).ID()))
	case types.ErrValue:
		return int(av.Code()) - int(b.(types.ErrValue).Code())
	case types.StrValue:
		return strings.Compare(strings.ToLower(av.Value()), strings.ToLower(b.(types.StrValue).Value()))
	default:
		return 0
	}
}

func sortMapKeysByOrder(keys []types.Value) {
	sort.Slice(keys, func(i, j int) bool { return compareMapKeys(keys[i], keys[j]) < 0 })
}

func sortMapPairsByKey(pairs [][2]types.Value) {
	sort.Slice(pairs, func(i, j int) bool { return compareMapKeys(pairs[i][0], pairs[j][0]) < 0 })
}
