package types

import "strconv"

// WaifValue is a lightweight, prototype-based object: cheaper than a
// full database object because it has no verbs of its own and carries
// only the properties explicitly set on it, with method dispatch
// going through its class object instead.
type WaifValue struct {
	waifClass ObjID
	waifOwner ObjID
	props     map[string]Value
}

// NewWaif creates a waif belonging to class, created under owner's
// permissions, with no properties set.
func NewWaif(class ObjID, owner ObjID) WaifValue {
	return WaifValue{
		waifClass: class,
		waifOwner: owner,
		props:     make(map[string]Value),
	}
}

func (w WaifValue) Type() TypeCode { return TYPE_WAIF }

func (w WaifValue) String() string {
	return "<waif #" + strconv.FormatInt(int64(w.waifClass), 10) + ">"
}

// Equal considers two waifs equal when they share a class and every
// property value matches; this is a structural comparison, not
// instance identity.
func (w WaifValue) Equal(other Value) bool {
	o, ok := other.(WaifValue)
	if !ok || o.waifClass != w.waifClass {
		return false
	}
	return propsEqual(w.props, o.props)
}

// Truthy: waifs are never truthy.
func (w WaifValue) Truthy() bool { return false }

// Class returns the waif's class object id.
func (w WaifValue) Class() ObjID { return w.waifClass }

// Owner returns the object id that created the waif.
func (w WaifValue) Owner() ObjID { return w.waifOwner }

// GetProperty looks up a waif-local property value by name.
func (w WaifValue) GetProperty(name string) (Value, bool) {
	v, ok := w.props[name]
	return v, ok
}

// SetProperty returns a copy of the waif with name set to value,
// leaving the receiver unmodified.
func (w WaifValue) SetProperty(name string, value Value) WaifValue {
	next := make(map[string]Value, len(w.props)+1)
	for k, v := range w.props {
		next[k] = v
	}
	next[name] = value
	return WaifValue{waifClass: w.waifClass, waifOwner: w.waifOwner, props: next}
}

func propsEqual(a, b map[string]Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}
