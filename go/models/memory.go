package models

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/avatarproxy/avatar/go/models/cpu"
)

// MaxMemoryRange bounds a single ReadMemory or WriteMemory call.
const MaxMemoryRange = 1 << 24

// CheckRange rejects ranges that wrap past the top of the address space or
// exceed MaxMemoryRange.
func CheckRange(addr, size uint64) error {
	if size > MaxMemoryRange {
		return errors.Errorf("range %#x+%#x too large", addr, size)
	}
	if size > 0 && addr+size-1 < addr {
		return errors.Errorf("range %#x+%#x wraps the address space", addr, size)
	}
	return nil
}

// chunk picks the widest aligned access that fits in the remaining length.
func chunk(addr, remain uint64) int {
	for _, size := range []int{8, 4, 2} {
		if remain >= uint64(size) && addr%uint64(size) == 0 {
			return size
		}
	}
	return 1
}

// ReadMemory reads a byte range from a target using sized accesses.
func ReadMemory(t Target, order binary.ByteOrder, addr, size uint64) ([]byte, error) {
	if err := CheckRange(addr, size); err != nil {
		return nil, err
	}
	out := make([]byte, 0, size)
	for off := uint64(0); off < size; {
		pos := addr + off
		n := chunk(pos, size-off)
		val, err := t.ReadTypedMemory(pos, n)
		if err != nil {
			return nil, err
		}
		buf, _ := cpu.PackUint(order, n, nil, val)
		out = append(out, buf...)
		off += uint64(n)
	}
	return out, nil
}

func WriteMemory(t Target, order binary.ByteOrder, addr uint64, p []byte) error {
	if err := CheckRange(addr, uint64(len(p))); err != nil {
		return err
	}
	for off := uint64(0); off < uint64(len(p)); {
		n := chunk(addr+off, uint64(len(p))-off)
		val, _ := cpu.UnpackUint(order, n, p[off:])
		if err := t.WriteTypedMemory(addr+off, n, val); err != nil {
			return err
		}
		off += uint64(n)
	}
	return nil
}

// ReadCpuState reads every register of a into a CpuState, listing each value
// under its canonical name and its aliases.
func ReadCpuState(t Target, a *Arch) (CpuState, error) {
	state := make(CpuState, len(a.Regs)+len(a.Aliases))
	for _, name := range a.Regs {
		val, err := t.GetRegister(name)
		if err != nil {
			return nil, err
		}
		state[name] = FormatHex(val)
	}
	for alias, name := range a.Aliases {
		if v, ok := state[name]; ok {
			state[alias] = v
		}
	}
	return state, nil
}
