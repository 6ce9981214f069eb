package cpu

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// PackUint encodes the low size bytes of n into buf, allocating when buf is nil.
func PackUint(order binary.ByteOrder, size int, buf []byte, n uint64) ([]byte, error) {
	if buf == nil {
		buf = make([]byte, size)
	} else if len(buf) < size {
		return nil, errors.Errorf("buffer too small (%d < %d)", len(buf), size)
	}
	switch size {
	case 8:
		order.PutUint64(buf, n)
	case 4:
		order.PutUint32(buf, uint32(n))
	case 2:
		order.PutUint16(buf, uint16(n))
	case 1:
		buf[0] = byte(n)
	default:
		return nil, errors.Errorf("unsupported uint size: %d", size)
	}
	return buf[:size], nil
}

func UnpackUint(order binary.ByteOrder, size int, buf []byte) (uint64, error) {
	if len(buf) < size {
		return 0, errors.Errorf("buffer too small (%d < %d)", len(buf), size)
	}
	switch size {
	case 8:
		return order.Uint64(buf), nil
	case 4:
		return uint64(order.Uint32(buf)), nil
	case 2:
		return uint64(order.Uint16(buf)), nil
	case 1:
		return uint64(buf[0]), nil
	default:
		return 0, errors.Errorf("unsupported uint size: %d", size)
	}
}

// Memory is the byte-level access shared by Mem and cpu engine bindings.
type Memory interface {
	MemRead(addr, size uint64) ([]byte, error)
	MemWrite(addr uint64, p []byte) error
}

// ReadTyped reads one sized little- or big-endian value from any Memory.
func ReadTyped(m Memory, order binary.ByteOrder, addr uint64, size int) (uint64, error) {
	if size <= 0 || size > 8 {
		return 0, errors.Errorf("unsupported uint size: %d", size)
	}
	p, err := m.MemRead(addr, uint64(size))
	if err != nil {
		return 0, err
	}
	return UnpackUint(order, size, p)
}

func WriteTyped(m Memory, order binary.ByteOrder, addr uint64, size int, val uint64) error {
	p, err := PackUint(order, size, nil, val)
	if err != nil {
		return err
	}
	return m.MemWrite(addr, p)
}
