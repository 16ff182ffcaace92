package types

import (
	"sort"
	"strings"
)

// MooMap abstracts map storage behind an interface, the same way
// MooList does for lists, so ordered-map semantics can be swapped out
// independently of MapValue's public surface.
type MooMap interface {
	Len() int
	Get(key Value) (Value, bool)
	Set(key, val Value) MooMap
	Delete(key Value) MooMap
	Keys() []Value
	Pairs() [][2]Value
}

type mapSlot struct {
	key Value
	val Value
}

// orderedMap implements MooMap over a Go map keyed by a stringified
// form of the Value, plus a slice tracking insertion order (Go maps
// don't preserve one, and MOO map iteration order is insertion order).
type orderedMap struct {
	seq  []string
	byID map[string]mapSlot
}

// slotID derives a comparable key for a Value. String keys are
// case-folded so that "Foo" and "foo" collide, matching MOO's
// case-insensitive map key comparison.
func slotID(v Value) string {
	if s, ok := v.(StrValue); ok {
		return "str:" + strings.ToLower(s.Value())
	}
	return v.Type().String() + ":" + v.String()
}

func (m *orderedMap) Len() int { return len(m.byID) }

func (m *orderedMap) Get(k Value) (Value, bool) {
	slot, ok := m.byID[slotID(k)]
	if !ok {
		return nil, false
	}
	return slot.val, true
}

func (m *orderedMap) Set(k, v Value) MooMap {
	id := slotID(k)
	nextByID := make(map[string]mapSlot, len(m.byID)+1)
	for i, s := range m.byID {
		nextByID[i] = s
	}
	_, existed := m.byID[id]
	nextByID[id] = mapSlot{key: k, val: v}

	var nextSeq []string
	if existed {
		nextSeq = append([]string(nil), m.seq...)
	} else {
		nextSeq = make([]string, len(m.seq)+1)
		copy(nextSeq, m.seq)
		nextSeq[len(m.seq)] = id
	}
	return &orderedMap{seq: nextSeq, byID: nextByID}
}

func (m *orderedMap) Delete(k Value) MooMap {
	id := slotID(k)
	if _, ok := m.byID[id]; !ok {
		return m
	}
	nextByID := make(map[string]mapSlot, len(m.byID)-1)
	for i, s := range m.byID {
		if i != id {
			nextByID[i] = s
		}
	}
	nextSeq := make([]string, 0, len(m.seq)-1)
	for _, i := range m.seq {
		if i != id {
			nextSeq = append(nextSeq, i)
		}
	}
	return &orderedMap{seq: nextSeq, byID: nextByID}
}

func (m *orderedMap) Keys() []Value {
	keys := make([]Value, 0, len(m.seq))
	for _, id := range m.seq {
		keys = append(keys, m.byID[id].key)
	}
	return keys
}

func (m *orderedMap) Pairs() [][2]Value {
	pairs := make([][2]Value, 0, len(m.seq))
	for _, id := range m.seq {
		s := m.byID[id]
		pairs = append(pairs, [2]Value{s.key, s.val})
	}
	return pairs
}

// MapValue is MOO's ordered associative array, written [k1 -> v1, ...].
type MapValue struct {
	data MooMap
}

// NewMap builds a map from a list of key/value pairs, in order, with
// later duplicate keys overwriting earlier ones without moving their
// position.
func NewMap(pairs [][2]Value) MapValue {
	m := &orderedMap{byID: make(map[string]mapSlot, len(pairs))}
	for _, p := range pairs {
		id := slotID(p[0])
		if _, exists := m.byID[id]; !exists {
			m.seq = append(m.seq, id)
		}
		m.byID[id] = mapSlot{key: p[0], val: p[1]}
	}
	return MapValue{data: m}
}

// NewEmptyMap returns the empty map [].
func NewEmptyMap() MapValue {
	return MapValue{data: &orderedMap{byID: make(map[string]mapSlot)}}
}

// String renders the map with keys in canonical MOO sort order
// (INT < OBJ < FLOAT < ERR < STR), independent of insertion order.
func (m MapValue) String() string {
	pairs := m.data.Pairs()
	if len(pairs) == 0 {
		return "[]"
	}
	sort.Slice(pairs, func(i, j int) bool {
		return CompareMapKeys(pairs[i][0], pairs[j][0]) < 0
	})
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p[0].String() + " -> " + p[1].String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func mapKeyRank(v Value) int {
	switch v.(type) {
	case IntValue:
		return 0
	case ObjValue:
		return 1
	case FloatValue:
		return 2
	case ErrValue:
		return 3
	case StrValue:
		return 4
	default:
		return 5
	}
}

// CompareMapKeys orders two map keys the way MOO's map codec does:
// first by type rank (INT < OBJ < FLOAT < ERR < STR), then by value
// within a type. String comparison is case-insensitive.
func CompareMapKeys(a, b Value) int {
	if ra, rb := mapKeyRank(a), mapKeyRank(b); ra != rb {
		return ra - rb
	}

	switch av := a.(type) {
	case IntValue:
		return cmpInt64(av.Val, b.(IntValue).Val)
	case ObjValue:
		return cmpInt64(int64(av.ref), int64(b.(ObjValue).ref))
	case FloatValue:
		return cmpFloat64(av.Val, b.(FloatValue).Val)
	case ErrValue:
		return cmpInt64(int64(av.kind), int64(b.(ErrValue).kind))
	case StrValue:
		return strings.Compare(strings.ToLower(av.text), strings.ToLower(b.(StrValue).text))
	}
	return 0
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (m MapValue) Type() TypeCode { return TYPE_MAP }

// Truthy: the empty map is false, any non-empty map is true.
func (m MapValue) Truthy() bool {
	return m.data.Len() > 0
}

func (m MapValue) Equal(other Value) bool {
	o, ok := other.(MapValue)
	if !ok || m.data.Len() != o.data.Len() {
		return false
	}
	for _, p := range m.data.Pairs() {
		v, ok := o.data.Get(p[0])
		if !ok || !p[1].Equal(v) {
			return false
		}
	}
	return true
}

func (m MapValue) Len() int { return m.data.Len() }

// Get looks up a key using the map's default (type-driven) key
// comparison.
func (m MapValue) Get(key Value) (Value, bool) {
	return m.data.Get(key)
}

// GetWithCase looks up a key, optionally requiring an exact-case match
// for string keys. Non-string keys always use the default lookup.
func (m MapValue) GetWithCase(key Value, caseSensitive bool) (Value, bool) {
	wantStr, isStr := key.(StrValue)
	if !isStr || !caseSensitive {
		return m.Get(key)
	}
	for _, existing := range m.Keys() {
		if es, ok := existing.(StrValue); ok && es.Value() == wantStr.Value() {
			return m.Get(existing)
		}
	}
	return nil, false
}

// Set returns a copy of the map with key bound to val.
func (m MapValue) Set(key, val Value) MapValue {
	return MapValue{data: m.data.Set(key, val)}
}

// Delete returns a copy of the map with key removed.
func (m MapValue) Delete(key Value) MapValue {
	return MapValue{data: m.data.Delete(key)}
}

// Keys returns every key, in insertion order.
func (m MapValue) Keys() []Value {
	return m.data.Keys()
}

// Pairs returns every key/value pair, in insertion order.
func (m MapValue) Pairs() [][2]Value {
	return m.data.Pairs()
}

// KeyPosition returns the 1-based insertion-order position of key, or
// 0 if it isn't present.
func (m MapValue) KeyPosition(key Value) int64 {
	for i, p := range m.data.Pairs() {
		if p[0].Equal(key) {
			return int64(i + 1)
		}
	}
	return 0
}

// IsValidMapKey reports whether a value's type may be used as a map
// key at all (int, float, str, obj, anon, or err).
func IsValidMapKey(v Value) bool {
	switch v.Type() {
	case TYPE_INT, TYPE_FLOAT, TYPE_STR, TYPE_OBJ, TYPE_ANON, TYPE_ERR:
		return true
	default:
		return false
	}
}

// IsValidBuiltinMapKey is IsValidMapKey minus anonymous objects, which
// map-accepting built-ins reject with E_TYPE even though the
// interpreter itself permits them as keys.
func IsValidBuiltinMapKey(v Value) bool {
	return IsValidMapKey(v) && v.Type() != TYPE_ANON
}
