//go:build windows
// +build windows

package builtins

import (
	crypt "github.com/amoghe/go-crypt"
)

// cryptDESPlatform implements traditional DES crypt via a pure Go port,
// since cgo's crypt(3) isn't available on this platform.
func cryptDESPlatform(password, salt string) (string, error) {
	if len(salt) > 2 {
		salt = salt[:2] // a stored hash carries its salt as a 2-char prefix
	}
	return crypt.Crypt(password, salt)
}
