package types

// ErrValue wraps an ErrorCode so it can flow through the value system
// as a first-class MOO value (assignable, comparable, storable).
type ErrValue struct {
	kind ErrorCode
}

// NewErr wraps an ErrorCode as a MOO error value.
func NewErr(code ErrorCode) ErrValue {
	return ErrValue{kind: code}
}

func (e ErrValue) Type() TypeCode { return TYPE_ERR }

func (e ErrValue) String() string { return e.kind.String() }

// Truthy: every error value is false, regardless of which code it
// carries, including E_NONE.
func (e ErrValue) Truthy() bool { return false }

func (e ErrValue) Equal(other Value) bool {
	o, ok := other.(ErrValue)
	return ok && o.kind == e.kind
}

// Code returns the wrapped ErrorCode.
func (e ErrValue) Code() ErrorCode { return e.kind }
