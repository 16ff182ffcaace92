package types

import "testing"

func TestErrorCodeValuesAndNames(t *testing.T) {
	want := map[ErrorCode]string{
		E_NONE:    "E_NONE",
		E_TYPE:    "E_TYPE",
		E_DIV:     "E_DIV",
		E_PERM:    "E_PERM",
		E_PROPNF:  "E_PROPNF",
		E_VERBNF:  "E_VERBNF",
		E_VARNF:   "E_VARNF",
		E_INVIND:  "E_INVIND",
		E_RECMOVE: "E_RECMOVE",
		E_MAXREC:  "E_MAXREC",
		E_RANGE:   "E_RANGE",
		E_ARGS:    "E_ARGS",
		E_NACC:    "E_NACC",
		E_INVARG:  "E_INVARG",
		E_QUOTA:   "E_QUOTA",
		E_FLOAT:   "E_FLOAT",
		E_FILE:    "E_FILE",
		E_EXEC:    "E_EXEC",
	}

	for code, name := range want {
		t.Run(name, func(t *testing.T) {
			if code.String() != name {
				t.Errorf("String() = %q, want %q", code.String(), name)
			}
			roundTripped, ok := ErrorFromString(name)
			if !ok || roundTripped != code {
				t.Errorf("ErrorFromString(%q) = (%v, %v), want (%v, true)", name, roundTripped, ok, code)
			}
		})
	}

	// Spot-check the numeric values match the LambdaMOO/ToastStunt wire
	// encoding since databases and clients depend on them.
	numeric := map[ErrorCode]int{
		E_NONE: 0, E_TYPE: 1, E_DIV: 2, E_PERM: 3, E_PROPNF: 4,
		E_VERBNF: 5, E_VARNF: 6, E_INVIND: 7, E_RECMOVE: 8, E_MAXREC: 9,
		E_RANGE: 10, E_ARGS: 11, E_NACC: 12, E_INVARG: 13, E_QUOTA: 14,
		E_FLOAT: 15, E_FILE: 16, E_EXEC: 17,
	}
	for code, val := range numeric {
		if int(code) != val {
			t.Errorf("%s = %d, want %d", code.String(), int(code), val)
		}
	}
}

func TestErrorFromStringUnknown(t *testing.T) {
	if _, ok := ErrorFromString("E_NOT_A_REAL_CODE"); ok {
		t.Error("ErrorFromString should reject unrecognized names")
	}
}

func TestErrorMessagesNonEmpty(t *testing.T) {
	for code := E_NONE; code <= E_EXEC; code++ {
		if code.Message() == "" {
			t.Errorf("%s.Message() is empty", code.String())
		}
	}
}

func TestObjIDSentinels(t *testing.T) {
	if ObjNothing != -1 || ObjAmbiguous != -2 || ObjFailedMatch != -3 {
		t.Errorf("sentinel values changed: nothing=%d ambiguous=%d failed_match=%d",
			ObjNothing, ObjAmbiguous, ObjFailedMatch)
	}
}
