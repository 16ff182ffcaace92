package types

import "strconv"

// ObjValue is a reference to a database object, or to an anonymous
// (garbage-collected, never-a-#number) object when anon is set.
type ObjValue struct {
	ref  ObjID
	anon bool
}

// Sentinel object ids, duplicated from the ObjNothing/ObjAmbiguous/
// ObjFailedMatch constants under the names classic MOO core code
// expects via $nothing/$ambiguous_match/$failed_match.
const (
	NOTHING      = ObjID(-1)
	AMBIGUOUS    = ObjID(-2)
	FAILED_MATCH = ObjID(-3)
)

// NewObj wraps an object id as an ordinary (non-anonymous) reference.
func NewObj(id ObjID) ObjValue {
	return ObjValue{ref: id}
}

// NewAnon wraps an object id as an anonymous-object reference
// (typeof() reports TYPE_ANON rather than TYPE_OBJ).
func NewAnon(id ObjID) ObjValue {
	return ObjValue{ref: id, anon: true}
}

func (o ObjValue) String() string {
	return "#" + strconv.FormatInt(int64(o.ref), 10)
}

func (o ObjValue) Type() TypeCode {
	if o.anon {
		return TYPE_ANON
	}
	return TYPE_OBJ
}

// IsAnonymous reports whether this reference was created with NewAnon.
func (o ObjValue) IsAnonymous() bool {
	return o.anon
}

// Truthy: every object reference is true under MOO's if/while rules,
// regardless of which object it names, #-1 included.
func (o ObjValue) Truthy() bool {
	return true
}

func (o ObjValue) Equal(other Value) bool {
	o2, ok := other.(ObjValue)
	return ok && o2.ref == o.ref
}

// ID returns the underlying object id.
func (o ObjValue) ID() ObjID {
	return o.ref
}
