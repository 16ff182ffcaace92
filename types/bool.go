package types

// BoolValue is MOO's native boolean, distinct from the 0/1 integer
// convention used for comparisons in classic LambdaMOO.
type BoolValue struct {
	Val bool
}

// NewBool wraps a Go bool as a MOO value.
func NewBool(val bool) BoolValue {
	return BoolValue{Val: val}
}

func (b BoolValue) Type() TypeCode { return TYPE_BOOL }

func (b BoolValue) String() string {
	if b.Val {
		return "true"
	}
	return "false"
}

func (b BoolValue) Equal(other Value) bool {
	o, ok := other.(BoolValue)
	return ok && o.Val == b.Val
}

// Truthy mirrors the Go bool directly, unlike most MOO types whose
// truthiness is derived from emptiness or zero.
func (b BoolValue) Truthy() bool {
	return b.Val
}
