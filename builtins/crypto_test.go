package builtins

import "testing"

// cryptDES is implemented on both Unix (via libc crypt(3)) and Windows (via
// a pure-Go DES-crypt port), so this value is expected to match everywhere.
func TestCryptDES(t *testing.T) {
	result, err := cryptDES("foobar", "SA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const want = "SAEmC5UwrAl2A"
	if result != want {
		t.Errorf("cryptDES(%q, %q) = %q, want %q", "foobar", "SA", result, want)
	}
}
