package types

import "fmt"

// StrValue is a MOO string. The underlying Go string is stored
// unexported so every mutation goes through the copy-on-write API.
type StrValue struct {
	text string
}

// NewStr wraps a Go string as a MOO string value.
func NewStr(s string) StrValue {
	return StrValue{text: s}
}

func (s StrValue) Type() TypeCode { return TYPE_STR }

// String returns a quoted Go representation, used for debug/printf
// contexts rather than MOO's own tonumber/tostr output.
func (s StrValue) String() string {
	return fmt.Sprintf("%q", s.text)
}

// Truthy: the empty string is false, any other string is true.
func (s StrValue) Truthy() bool {
	return s.text != ""
}

func (s StrValue) Equal(other Value) bool {
	o, ok := other.(StrValue)
	return ok && o.text == s.text
}

// Value returns the raw Go string.
func (s StrValue) Value() string {
	return s.text
}
