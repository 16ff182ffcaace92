package db

import (
	"bufio"
	"fmt"
	"io"

	"silo/types"
)

// Value type codes for the v17 database format, matching the codes
// readValue expects.
const (
	dbWriteInt     = 0
	dbWriteObj     = 1
	dbWriteStr     = 2
	dbWriteErr     = 3
	dbWriteList    = 4
	dbWriteClear   = 5
	dbWriteNone    = 6
	dbWriteCatch   = 7 // stack-unwind marker, never produced by writeValue
	dbWriteFinally = 8 // stack-unwind marker, never produced by writeValue
	dbWriteFloat   = 9
	dbWriteMap     = 10
	dbWriteAnon    = 12
	dbWriteWaif    = 13
	dbWriteBool    = 14
)

// Writer serializes a Store to the v17 database text format.
type Writer struct {
	w          *bufio.Writer
	store      *Store
	waifIndex  map[interface{}]int // reserved for future waif dedup by reference
	nextWaifID int
	taskSource TaskSource
}

// NewWriter wraps w for writing a single database snapshot of store.
func NewWriter(w io.Writer, store *Store) *Writer {
	return &Writer{
		w:         bufio.NewWriter(w),
		store:     store,
		waifIndex: make(map[interface{}]int),
	}
}

// Flush flushes any buffered output to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

func (w *Writer) writeInt(i int) error {
	_, err := fmt.Fprintf(w.w, "%d\n", i)
	return err
}

func (w *Writer) writeInt64(i int64) error {
	_, err := fmt.Fprintf(w.w, "%d\n", i)
	return err
}

func (w *Writer) writeIntRaw(i int) error {
	_, err := fmt.Fprintf(w.w, "%d", i)
	return err
}

// writeFloat uses 19 significant digits (DBL_DIG+4), matching the
// classic server's float serialization precision.
func (w *Writer) writeFloat(f float64) error {
	_, err := fmt.Fprintf(w.w, "%.19g\n", f)
	return err
}

func (w *Writer) writeString(s string) error {
	_, err := fmt.Fprintf(w.w, "%s\n", s)
	return err
}

func (w *Writer) writeObjID(id types.ObjID) error {
	return w.writeInt64(int64(id))
}

func (w *Writer) writeBool(b bool) error {
	if b {
		return w.writeInt(1)
	}
	return w.writeInt(0)
}

// getTypeCode returns the database type code for v, or dbWriteClear for nil.
func getTypeCode(v types.Value) int {
	if v == nil {
		return dbWriteClear
	}
	switch val := v.(type) {
	case types.IntValue:
		return dbWriteInt
	case types.ObjValue:
		if val.IsAnonymous() {
			return dbWriteAnon
		}
		return dbWriteObj
	case types.StrValue:
		return dbWriteStr
	case types.ErrValue:
		return dbWriteErr
	case types.ListValue:
		return dbWriteList
	case types.FloatValue:
		return dbWriteFloat
	case types.MapValue:
		return dbWriteMap
	case types.BoolValue:
		return dbWriteBool
	case types.WaifValue:
		return dbWriteWaif
	default:
		return dbWriteNone
	}
}

// writeValuePayload writes v's data, without a type-code line, dispatching
// on its concrete type. Shared by writeValue (which prefixes the type code)
// and writeValueRaw (used where the type code already appears elsewhere,
// such as a suspended task's header line).
func (w *Writer) writeValuePayload(v types.Value) error {
	switch val := v.(type) {
	case types.IntValue:
		return w.writeInt64(val.Val)
	case types.ObjValue:
		return w.writeObjID(val.ID())
	case types.StrValue:
		return w.writeString(val.Value())
	case types.ErrValue:
		return w.writeInt(int(val.Code()))
	case types.ListValue:
		return w.writeListContents(val)
	case types.FloatValue:
		return w.writeFloat(val.Val)
	case types.MapValue:
		return w.writeMapContents(val)
	case types.BoolValue:
		return w.writeBool(val.Val)
	case types.WaifValue:
		return w.writeWaif(val)
	default:
		return nil
	}
}

// writeValue writes v as a type-tagged value: the type code on its own
// line, followed by the type's payload. A nil v is written as CLEAR.
func (w *Writer) writeValue(v types.Value) error {
	if err := w.writeInt(getTypeCode(v)); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return w.writeValuePayload(v)
}

// writeValueRaw writes v's payload with no type-code line, for contexts
// (like a suspended task header) where the type code is recorded elsewhere.
func (w *Writer) writeValueRaw(v types.Value) error {
	if v == nil {
		return nil
	}
	return w.writeValuePayload(v)
}

func (w *Writer) writeListContents(l types.ListValue) error {
	if err := w.writeInt(l.Len()); err != nil {
		return err
	}
	for i := 1; i <= l.Len(); i++ {
		if err := w.writeValue(l.Get(i)); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeMapContents(m types.MapValue) error {
	pairs := m.Pairs()
	if err := w.writeInt(len(pairs)); err != nil {
		return err
	}
	for _, pair := range pairs {
		if err := w.writeValue(pair[0]); err != nil {
			return err
		}
		if err := w.writeValue(pair[1]); err != nil {
			return err
		}
	}
	return nil
}

// writeWaif writes a WAIF as a "creation" record: the next sequential
// index, class, owner, its class's ":"-prefixed propdef count, then each
// non-default property as an index/value pair, terminated by -1 and ".".
func (w *Writer) writeWaif(waif types.WaifValue) error {
	idx := w.nextWaifID
	w.nextWaifID++

	if err := w.writeString(fmt.Sprintf("c %d", idx)); err != nil {
		return err
	}
	if err := w.writeObjID(waif.Class()); err != nil {
		return err
	}
	if err := w.writeObjID(waif.Owner()); err != nil {
		return err
	}

	var waifPropNames []string
	if classObj := w.store.Get(waif.Class()); classObj != nil {
		for _, name := range w.collectPropertyNames(classObj) {
			if len(name) > 0 && name[0] == ':' {
				waifPropNames = append(waifPropNames, name)
			}
		}
	}
	if err := w.writeInt(len(waifPropNames)); err != nil {
		return err
	}

	nameToIdx := make(map[string]int, len(waifPropNames))
	for i, name := range waifPropNames {
		nameToIdx[name[1:]] = i // WaifValue stores names without the ":" prefix
	}

	for _, propName := range waif.PropertyNames() {
		idx, ok := nameToIdx[propName]
		if !ok {
			continue
		}
		val, _ := waif.GetProperty(propName)
		if err := w.writeInt(idx); err != nil {
			return err
		}
		if err := w.writeValue(val); err != nil {
			return err
		}
	}

	if err := w.writeInt(-1); err != nil {
		return err
	}
	return w.writeString(".")
}
