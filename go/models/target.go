package models

import (
	"github.com/pkg/errors"
)

var (
	// ErrNoTarget is returned by every proxy handler until a target is set.
	ErrNoTarget = errors.New("no target configured")
	// ErrNoHandler is returned by the emulator when a request slot is empty.
	ErrNoHandler = errors.New("no request handler installed")
)

// Target is the device or CPU backend that performs memory and register operations.
type Target interface {
	// sized memory access, size is in bytes (1, 2, 4 or 8)
	ReadTypedMemory(addr uint64, size int) (uint64, error)
	WriteTypedMemory(addr uint64, size int, value uint64) error

	// registers by name (r0..r12, sp, lr, pc, cpsr)
	GetRegister(name string) (uint64, error)
	SetRegister(name string, value uint64) error

	// resume execution
	Cont() error

	// run a debugger-style command and return its raw output
	ExecuteGdbCommand(cmd string) (string, error)
}

// A Monitor is any value implementing one or more of the hook interfaces below.
// Monitors are compared by identity, so they should be pointers.
type Monitor interface{}

type PreReadMonitor interface {
	EmulatorPreReadRequest(req *ReadRequest)
}

type PostReadMonitor interface {
	EmulatorPostReadRequest(req *ReadRequest)
}

type PreWriteMonitor interface {
	EmulatorPreWriteRequest(req *WriteRequest)
}

type PostWriteMonitor interface {
	EmulatorPostWriteRequest(req *WriteRequest)
}

// monitor event names
const (
	EMULATOR_PRE_READ_REQUEST   = "emulator_pre_read_request"
	EMULATOR_POST_READ_REQUEST  = "emulator_post_read_request"
	EMULATOR_PRE_WRITE_REQUEST  = "emulator_pre_write_request"
	EMULATOR_POST_WRITE_REQUEST = "emulator_post_write_request"
)

var MonitorEvents = []string{
	EMULATOR_PRE_READ_REQUEST,
	EMULATOR_POST_READ_REQUEST,
	EMULATOR_PRE_WRITE_REQUEST,
	EMULATOR_POST_WRITE_REQUEST,
}

// ValidSize reports whether size is a supported typed access width.
func ValidSize(size int) bool {
	switch size {
	case 1, 2, 4, 8:
		return true
	}
	return false
}
