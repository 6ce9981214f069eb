package cpu

import (
	"fmt"
	"sort"
)

type MemError struct {
	Addr uint64
	Size int
	Enum int
}

func (m *MemError) Error() string {
	reason := "memory error"
	switch m.Enum {
	case MEM_WRITE_UNMAPPED:
		reason = "unmapped write"
	case MEM_READ_UNMAPPED:
		reason = "unmapped read"
	case MEM_FETCH_UNMAPPED:
		reason = "unmapped fetch"
	case MEM_WRITE_PROT:
		reason = "protected write"
	case MEM_READ_PROT:
		reason = "protected read"
	case MEM_FETCH_PROT:
		reason = "protected exec"
	}
	return fmt.Sprintf("%s at %#x(%d)", reason, m.Addr, m.Size)
}

// MemSim is a sorted list of non-overlapping pages.
type MemSim struct {
	Mem Pages
}

// Checks whether the address range exists in the currently-mapped memory.
// If prot > 0, ensures that each region has the entire protection mask provided.
func (m *MemSim) RangeValid(addr, size uint64, prot int) (mapGood bool, protGood bool) {
	first := m.Mem.bsearch(addr)
	if first == -1 {
		return false, false
	}
	protGood = true
	end := addr + size
	for _, mm := range m.Mem[first:] {
		if !mm.Contains(addr) {
			break
		}
		if prot > 0 && mm.Prot&prot != prot {
			protGood = false
		}
		addr = mm.Addr + mm.Size
		if addr >= end {
			break
		}
	}
	return addr >= end, protGood
}

// carve splits every page overlapping addr:size at the range boundaries.
// Pieces outside the range are kept. The piece inside is kept only if keep is
// non-nil, after keep has been called on it.
func (m *MemSim) carve(addr, size uint64, keep func(mid *Page)) {
	tmp := make(Pages, 0, len(m.Mem)+2)
	for _, mm := range m.Mem {
		oaddr, osize, ok := mm.Intersect(addr, size)
		if !ok {
			tmp = append(tmp, mm)
			continue
		}
		left, right := mm.Split(oaddr, osize)
		if left != nil {
			tmp = append(tmp, left)
		}
		if keep != nil {
			keep(mm)
			tmp = append(tmp, mm)
		}
		if right != nil {
			tmp = append(tmp, right)
		}
	}
	m.Mem = tmp
}

// Maps <addr> - <addr>+<size> and protects with prot.
// If zero is false, any existing data in this range is carried into the new mapping.
// Overlapping regions are unmapped first.
func (m *MemSim) Map(addr, size uint64, prot int, zero bool) *Page {
	data := make([]byte, size)
	if !zero {
		for _, mm := range m.Mem.FindRange(addr, size) {
			oaddr, osize, _ := mm.Intersect(addr, size)
			copy(data[oaddr-addr:oaddr-addr+osize], mm.Data[oaddr-mm.Addr:])
		}
	}
	m.carve(addr, size, nil)
	page := &Page{Addr: addr, Size: size, Prot: prot, Data: data}
	m.Mem = append(m.Mem, page)
	sort.Sort(m.Mem)
	return page
}

func (m *MemSim) Prot(addr, size uint64, prot int) {
	m.carve(addr, size, func(mid *Page) { mid.Prot = prot })
}

func (m *MemSim) Unmap(addr, size uint64) {
	m.carve(addr, size, nil)
}

func (m *MemSim) check(addr uint64, size int, prot int, write bool) error {
	gmap, gprot := m.RangeValid(addr, uint64(size), prot)
	if gmap && gprot {
		return nil
	}
	exec := prot&PROT_EXEC == PROT_EXEC
	var enum int
	switch {
	case write && !gmap:
		enum = MEM_WRITE_UNMAPPED
	case write:
		enum = MEM_WRITE_PROT
	case exec && !gmap:
		enum = MEM_FETCH_UNMAPPED
	case exec:
		enum = MEM_FETCH_PROT
	case !gmap:
		enum = MEM_READ_UNMAPPED
	default:
		enum = MEM_READ_PROT
	}
	return &MemError{Addr: addr, Size: size, Enum: enum}
}

// walk visits each page slice backing addr:len(p), which must be mapped.
func (m *MemSim) walk(addr uint64, p []byte, fn func(data, p []byte) int) {
	i := m.Mem.bsearch(addr)
	if i < 0 {
		return
	}
	for _, mm := range m.Mem[i:] {
		if len(p) == 0 || !mm.Contains(addr) {
			break
		}
		n := fn(mm.Data[addr-mm.Addr:], p)
		addr, p = addr+uint64(n), p[n:]
	}
}

func (m *MemSim) Read(addr uint64, p []byte, prot int) error {
	if err := m.check(addr, len(p), prot, false); err != nil {
		return err
	}
	m.walk(addr, p, func(data, p []byte) int { return copy(p, data) })
	return nil
}

func (m *MemSim) Write(addr uint64, p []byte, prot int) error {
	if err := m.check(addr, len(p), prot, true); err != nil {
		return err
	}
	m.walk(addr, p, func(data, p []byte) int { return copy(data, p) })
	return nil
}
