package types

// UnboundValue marks a declared local that has never been assigned.
// It never escapes to MOO code: variable reads convert it to an
// E_VARNF error before the caller sees it.
type UnboundValue struct{}

// Type reports TYPE_INT since the marker must never be distinguishable
// from a real value by code that forgets to check for it explicitly.
func (UnboundValue) Type() TypeCode { return TYPE_INT }

func (UnboundValue) String() string { return "<unbound>" }

func (UnboundValue) Equal(other Value) bool {
	_, ok := other.(UnboundValue)
	return ok
}

func (UnboundValue) Truthy() bool { return false }
