// Package unicorn runs firmware in the Unicorn CPU emulator as a target.
// It needs cgo and libunicorn, so it is only built with -tags unicorn.
package unicorn
