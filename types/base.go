package types

// ObjID identifies a MOO object by integer id. A handful of negative
// values are reserved sentinels rather than real objects.
type ObjID int64

const (
	ObjNothing     ObjID = -1
	ObjAmbiguous   ObjID = -2
	ObjFailedMatch ObjID = -3
)

// ErrorCode enumerates the fixed set of MOO error values raised by the
// interpreter and built-ins.
type ErrorCode int

const (
	E_NONE ErrorCode = iota
	E_TYPE
	E_DIV
	E_PERM
	E_PROPNF
	E_VERBNF
	E_VARNF
	E_INVIND
	E_RECMOVE
	E_MAXREC
	E_RANGE
	E_ARGS
	E_NACC
	E_INVARG
	E_QUOTA
	E_FLOAT
	E_FILE
	E_EXEC
)

// errorDesc keeps an error code's symbolic name and human-readable
// message in one place so the two can't drift out of sync.
type errorDesc struct {
	name    string
	message string
}

var errorDescs = [...]errorDesc{
	E_NONE:    {"E_NONE", "No error"},
	E_TYPE:    {"E_TYPE", "Type mismatch"},
	E_DIV:     {"E_DIV", "Division by zero"},
	E_PERM:    {"E_PERM", "Permission denied"},
	E_PROPNF:  {"E_PROPNF", "Property not found"},
	E_VERBNF:  {"E_VERBNF", "Verb not found"},
	E_VARNF:   {"E_VARNF", "Variable not found"},
	E_INVIND:  {"E_INVIND", "Invalid indirection"},
	E_RECMOVE: {"E_RECMOVE", "Recursive move"},
	E_MAXREC:  {"E_MAXREC", "Too many verb calls"},
	E_RANGE:   {"E_RANGE", "Range error"},
	E_ARGS:    {"E_ARGS", "Incorrect number of arguments"},
	E_NACC:    {"E_NACC", "Move refused by destination"},
	E_INVARG:  {"E_INVARG", "Invalid argument"},
	E_QUOTA:   {"E_QUOTA", "Resource limit exceeded"},
	E_FLOAT:   {"E_FLOAT", "Floating-point arithmetic error"},
	E_FILE:    {"E_FILE", "File system error"},
	E_EXEC:    {"E_EXEC", "Exec error"},
}

func (e ErrorCode) desc() (errorDesc, bool) {
	if e < 0 || int(e) >= len(errorDescs) {
		return errorDesc{}, false
	}
	return errorDescs[e], true
}

// String returns the symbolic name of the error, e.g. "E_PERM".
func (e ErrorCode) String() string {
	if d, ok := e.desc(); ok {
		return d.name
	}
	return "E_UNKNOWN"
}

// Message returns a human-readable description of the error, matching
// classic LambdaMOO/ToastStunt wording.
func (e ErrorCode) Message() string {
	if d, ok := e.desc(); ok {
		return d.message
	}
	return "Unknown error"
}

var errorCodesByName map[string]ErrorCode

func init() {
	errorCodesByName = make(map[string]ErrorCode, len(errorDescs))
	for i, d := range errorDescs {
		errorCodesByName[d.name] = ErrorCode(i)
	}
}

// ErrorFromString resolves a symbolic name such as "E_PERM" back to an
// ErrorCode. The second result is false for names it doesn't recognize.
func ErrorFromString(s string) (ErrorCode, bool) {
	code, ok := errorCodesByName[s]
	return code, ok
}

// Value is implemented by every representable MOO value: integers,
// floats, strings, objects, errors, lists, maps, waifs, and bools.
type Value interface {
	Type() TypeCode
	String() string   // MOO literal/printed representation
	Equal(Value) bool // deep, value-based equality
	Truthy() bool     // MOO's if/while truthiness rule for this value
}
