//go:build !windows
// +build !windows

package builtins

/*
#cgo LDFLAGS: -lcrypt
#define _GNU_SOURCE
#include <stdlib.h>
#include <string.h>
#include <unistd.h>

// On some systems crypt() is in crypt.h
#ifdef __linux__
#include <crypt.h>
#endif

// moo_crypt calls libc's crypt(3), copying the result out of its static
// buffer before it can be clobbered by a concurrent call.
char* moo_crypt(const char* key, const char* salt) {
    char* out = crypt(key, salt);
    if (out == NULL) {
        return NULL;
    }
    return strdup(out);
}
*/
import "C"
import (
	"errors"
	"unsafe"
)

// cryptDESPlatform shells out to the system crypt(3) for traditional DES
// crypt, matching the host libc's hash format bit for bit.
func cryptDESPlatform(password, salt string) (string, error) {
	cKey := C.CString(password)
	cSalt := C.CString(salt)
	defer C.free(unsafe.Pointer(cKey))
	defer C.free(unsafe.Pointer(cSalt))

	out := C.moo_crypt(cKey, cSalt)
	if out == nil {
		return "", errors.New("crypt(3) failed")
	}
	defer C.free(unsafe.Pointer(out))
	return C.GoString(out), nil
}
