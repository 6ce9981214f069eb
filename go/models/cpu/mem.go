package cpu

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Mem is the memory model behind simulated targets: a MemSim bounded to an
// address width, with sized access and hook dispatch.
type Mem struct {
	bits uint
	// methods return an error for addresses that do not fit inside mask
	mask uint64
	// set when passing *Mem to NewHooks()
	hooks *Hooks
	sim   *MemSim

	order binary.ByteOrder
}

func NewMem(bits uint, order binary.ByteOrder) *Mem {
	return &Mem{
		bits:  bits,
		mask:  ^uint64(0) >> (64 - bits),
		sim:   &MemSim{},
		order: order,
	}
}

func (m *Mem) Bits() uint                  { return m.bits }
func (m *Mem) ByteOrder() binary.ByteOrder { return m.order }

func (m *Mem) inRange(addr, size uint64) bool {
	end := addr + size
	return size > 0 && end > addr && end-1 <= m.mask
}

func (m *Mem) MemMapProt(addr, size uint64, prot int) error {
	_, err := m.MemMapDesc(addr, size, prot, "")
	return err
}

// MemMapDesc maps a zeroed region and labels it.
func (m *Mem) MemMapDesc(addr, size uint64, prot int, desc string) (*Page, error) {
	if !m.inRange(addr, size) {
		return nil, errors.Errorf("region %#x+%#x outside memory range", addr, size)
	}
	page := m.sim.Map(addr, size, prot, true)
	page.Desc = desc
	return page, nil
}

func (m *Mem) MemProt(addr, size uint64, prot int) error {
	if mapped, _ := m.sim.RangeValid(addr, size, 0); !mapped {
		return errors.New("range not mapped")
	}
	m.sim.Prot(addr, size, prot)
	return nil
}

func (m *Mem) MemUnmap(addr, size uint64) error {
	if mapped, _ := m.sim.RangeValid(addr, size, 0); !mapped {
		return errors.New("range not mapped")
	}
	m.sim.Unmap(addr, size)
	return nil
}

// Mappings returns the current pages in address order. The pages alias live memory.
func (m *Mem) Mappings() Pages {
	out := make(Pages, len(m.sim.Mem))
	copy(out, m.sim.Mem)
	return out
}

func (m *Mem) MemReadInto(p []byte, addr uint64) error {
	return m.sim.Read(addr, p, 0)
}

func (m *Mem) MemRead(addr, size uint64) ([]byte, error) {
	if size > 0 && !m.inRange(addr, size) {
		return nil, &MemError{Addr: addr, Size: int(size), Enum: MEM_READ_UNMAPPED}
	}
	p := make([]byte, size)
	if err := m.MemReadInto(p, addr); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Mem) MemWrite(addr uint64, p []byte) error {
	return m.sim.Write(addr, p, 0)
}

func (m *Mem) fault(err error, addr uint64, size int, val uint64) {
	if merr, ok := err.(*MemError); ok && m.hooks != nil {
		m.hooks.OnFault(merr.Enum, addr, size, int64(val))
	}
}

// Read while checking protections. Faults are dispatched to HOOK_MEM_ERR.
func (m *Mem) ReadProt(addr, size uint64, prot int) ([]byte, error) {
	if size > 0 && !m.inRange(addr, size) {
		err := &MemError{Addr: addr, Size: int(size), Enum: MEM_READ_UNMAPPED}
		m.fault(err, addr, int(size), 0)
		return nil, err
	}
	p := make([]byte, size)
	if err := m.sim.Read(addr, p, prot); err != nil {
		m.fault(err, addr, int(size), 0)
		return nil, err
	}
	return p, nil
}

// Write while checking protections.
func (m *Mem) WriteProt(addr uint64, p []byte, prot int) error {
	err := m.sim.Write(addr, p, prot)
	if err != nil {
		m.fault(err, addr, len(p), 0)
	}
	return err
}

// ReadUint performs a sized read and fires HOOK_MEM_READ with the value read.
func (m *Mem) ReadUint(addr uint64, size, prot int) (uint64, error) {
	if size > 8 {
		return 0, errors.Errorf("ReadUint size too large: %d > 8", size)
	}
	p, err := m.ReadProt(addr, uint64(size), prot)
	if err != nil {
		return 0, err
	}
	val, err := UnpackUint(m.order, size, p)
	if err == nil && m.hooks != nil {
		access := MEM_READ
		if prot&PROT_EXEC == PROT_EXEC {
			access = MEM_FETCH
		}
		m.hooks.OnMem(access, addr, size, int64(val))
	}
	return val, err
}

// WriteUint performs a sized write and fires HOOK_MEM_WRITE.
func (m *Mem) WriteUint(addr uint64, size, prot int, val uint64) error {
	var buf [8]byte
	if size > 8 {
		return errors.Errorf("WriteUint size too large: %d > 8", size)
	}
	if _, err := PackUint(m.order, size, buf[:], val); err != nil {
		return err
	}
	if err := m.WriteProt(addr, buf[:size], prot); err != nil {
		return err
	}
	if m.hooks != nil {
		m.hooks.OnMem(MEM_WRITE, addr, size, int64(val))
	}
	return nil
}
