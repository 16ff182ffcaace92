package types

import "strconv"

// IntValue is MOO's 64-bit signed integer.
type IntValue struct {
	Val int64
}

// NewInt wraps a Go int64 as a MOO integer value.
func NewInt(val int64) IntValue {
	return IntValue{Val: val}
}

func (i IntValue) Type() TypeCode { return TYPE_INT }

func (i IntValue) String() string {
	return strconv.FormatInt(i.Val, 10)
}

func (i IntValue) Equal(other Value) bool {
	o, ok := other.(IntValue)
	return ok && o.Val == i.Val
}

// Truthy: zero is false, every other integer is true.
func (i IntValue) Truthy() bool {
	return i.Val != 0
}
