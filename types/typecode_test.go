package types

import "testing"

func TestTypeCodeStringRoundTrip(t *testing.T) {
	want := map[TypeCode]string{
		TYPE_INT:   "INT",
		TYPE_OBJ:   "OBJ",
		TYPE_STR:   "STR",
		TYPE_ERR:   "ERR",
		TYPE_LIST:  "LIST",
		TYPE_ANON:  "ANON",
		TYPE_FLOAT: "FLOAT",
		TYPE_MAP:   "MAP",
		TYPE_WAIF:  "WAIF",
		TYPE_BOOL:  "BOOL",
	}

	for code, name := range want {
		if got := code.String(); got != name {
			t.Errorf("TypeCode(%d).String() = %q, want %q", int(code), got, name)
		}
	}
}

func TestTypeCodeWireValues(t *testing.T) {
	// These mirror the Format 4 database encoding; changing them breaks
	// every existing dump.
	wire := map[TypeCode]int{
		TYPE_INT: 0, TYPE_OBJ: 1, TYPE_STR: 2, TYPE_ERR: 3, TYPE_LIST: 4,
		TYPE_FLOAT: 9, TYPE_MAP: 10, TYPE_WAIF: 13, TYPE_BOOL: 14, TYPE_ANON: 12,
	}
	for code, val := range wire {
		if int(code) != val {
			t.Errorf("%s = %d, want %d", code, int(code), val)
		}
	}
}

func TestTypeCodeUnknown(t *testing.T) {
	if got := TypeCode(99).String(); got != "UNKNOWN" {
		t.Errorf("unrecognized TypeCode.String() = %q, want %q", got, "UNKNOWN")
	}
}
