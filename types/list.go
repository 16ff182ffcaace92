package types

import "strings"

// MooList abstracts list storage behind an interface so the backing
// representation can change (e.g. to a persistent/immutable tree)
// without touching ListValue's public surface.
type MooList interface {
	Len() int
	Get(index int) Value            // 1-based MOO index
	Set(index int, v Value) MooList // copy-on-write
	Append(v Value) MooList
	Slice(start, end int) MooList
	Elements() []Value
}

// arrayList is the default MooList backed by a plain Go slice.
type arrayList struct {
	vals []Value
}

func clampRange(start, end, n int) (int, int) {
	if start < 1 {
		start = 1
	}
	if end > n {
		end = n
	}
	return start, end
}

func (a *arrayList) Len() int { return len(a.vals) }

func (a *arrayList) Get(i int) Value {
	if i < 1 || i > len(a.vals) {
		return nil
	}
	return a.vals[i-1]
}

func (a *arrayList) Set(i int, v Value) MooList {
	if i < 1 || i > len(a.vals) {
		return a
	}
	next := append([]Value(nil), a.vals...)
	next[i-1] = v
	return &arrayList{vals: next}
}

func (a *arrayList) Append(v Value) MooList {
	next := make([]Value, len(a.vals)+1)
	copy(next, a.vals)
	next[len(a.vals)] = v
	return &arrayList{vals: next}
}

func (a *arrayList) Slice(start, end int) MooList {
	start, end = clampRange(start, end, len(a.vals))
	if start > end {
		return &arrayList{vals: []Value{}}
	}
	next := make([]Value, end-start+1)
	copy(next, a.vals[start-1:end])
	return &arrayList{vals: next}
}

func (a *arrayList) Elements() []Value { return a.vals }

// ListValue is a MOO list: an ordered, heterogeneous, copy-on-write
// sequence of values.
type ListValue struct {
	backing MooList
}

// NewList wraps an existing slice of values as a list.
func NewList(elements []Value) ListValue {
	return ListValue{backing: &arrayList{vals: elements}}
}

// NewEmptyList returns the empty list {}.
func NewEmptyList() ListValue {
	return ListValue{backing: &arrayList{vals: []Value{}}}
}

func (l ListValue) Type() TypeCode { return TYPE_LIST }

func (l ListValue) String() string {
	elems := l.backing.Elements()
	if len(elems) == 0 {
		return "{}"
	}
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Truthy: the empty list is false, any non-empty list is true.
func (l ListValue) Truthy() bool {
	return l.Len() > 0
}

func (l ListValue) Equal(other Value) bool {
	o, ok := other.(ListValue)
	if !ok || l.backing.Len() != o.backing.Len() {
		return false
	}
	mine, theirs := l.backing.Elements(), o.backing.Elements()
	for i := range mine {
		if !mine[i].Equal(theirs[i]) {
			return false
		}
	}
	return true
}

func (l ListValue) Len() int { return l.backing.Len() }

// Get returns the element at a 1-based index, or nil if out of range.
func (l ListValue) Get(index int) Value {
	return l.backing.Get(index)
}

// Set returns a copy of the list with index (1-based) replaced.
func (l ListValue) Set(index int, value Value) ListValue {
	return ListValue{backing: l.backing.Set(index, value)}
}

// Append returns a copy of the list with value added at the end.
func (l ListValue) Append(value Value) ListValue {
	return ListValue{backing: l.backing.Append(value)}
}

// Elements exposes the underlying slice for read-only iteration.
func (l ListValue) Elements() []Value {
	return l.backing.Elements()
}

// InsertAt returns a copy of the list with value inserted before the
// 1-based index (clamped to [1, len+1], so index == len+1 appends).
func (l ListValue) InsertAt(index int, value Value) ListValue {
	elems := l.backing.Elements()
	if index < 1 {
		index = 1
	}
	if index > len(elems)+1 {
		index = len(elems) + 1
	}
	at := index - 1

	next := make([]Value, len(elems)+1)
	copy(next[:at], elems[:at])
	next[at] = value
	copy(next[at+1:], elems[at:])
	return ListValue{backing: &arrayList{vals: next}}
}

// DeleteAt returns a copy of the list with the 1-based index removed,
// or the list unchanged if index is out of range.
func (l ListValue) DeleteAt(index int) ListValue {
	elems := l.backing.Elements()
	if index < 1 || index > len(elems) {
		return l
	}
	at := index - 1
	next := make([]Value, len(elems)-1)
	copy(next[:at], elems[:at])
	copy(next[at:], elems[at+1:])
	return ListValue{backing: &arrayList{vals: next}}
}

// Slice returns the 1-based, inclusive sub-list from start to end.
func (l ListValue) Slice(start, end int) ListValue {
	return ListValue{backing: l.backing.Slice(start, end)}
}
