package cpu

import (
	"fmt"
	"strings"
)

type Page struct {
	Addr uint64
	Size uint64
	Prot int
	Data []byte

	Desc string
}

func ProtString(prot int) string {
	chars := []byte("rwx")
	for i, bit := range []int{PROT_READ, PROT_WRITE, PROT_EXEC} {
		if prot&bit == 0 {
			chars[i] = '-'
		}
	}
	return string(chars)
}

func (p *Page) String() string {
	desc := fmt.Sprintf("0x%x-0x%x %s", p.Addr, p.Addr+p.Size, ProtString(p.Prot))
	if p.Desc != "" {
		desc += fmt.Sprintf(" [%s]", p.Desc)
	}
	return desc
}

func (p *Page) Contains(addr uint64) bool {
	return addr >= p.Addr && addr < p.Addr+p.Size
}

// start = max(s1, s2), end = min(e1, e2), ok = end > start
func (p *Page) Intersect(addr, size uint64) (uint64, uint64, bool) {
	start, end := p.Addr, p.Addr+p.Size
	if e2 := addr + size; end > e2 {
		end = e2
	}
	if start < addr {
		start = addr
	}
	if end <= start {
		return 0, 0, false
	}
	return start, end - start, true
}

func (p *Page) Overlaps(addr, size uint64) bool {
	_, _, ok := p.Intersect(addr, size)
	return ok
}

// slice shares backing data with p
func (p *Page) slice(addr, size uint64) *Page {
	o := addr - p.Addr
	return &Page{Addr: addr, Size: size, Prot: p.Prot, Data: p.Data[o : o+size], Desc: p.Desc}
}

/*
Split carves addr:size out of the page, which must contain it.

	[------|----page---|-------]
	[-left-][---mid---][-right-]
	        |         |
	        addr      addr+size

p becomes mid; left and right are nil when empty.
*/
func (p *Page) Split(addr, size uint64) (left, right *Page) {
	end, pend := addr+size, p.Addr+p.Size
	if addr > p.Addr {
		left = p.slice(p.Addr, addr-p.Addr)
	}
	if end < pend {
		right = p.slice(end, pend-end)
	}
	p.Data = p.Data[addr-p.Addr : end-p.Addr]
	p.Addr, p.Size = addr, size
	return left, right
}

type Pages []*Page

func (p Pages) Len() int           { return len(p) }
func (p Pages) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p Pages) Less(i, j int) bool { return p[i].Addr < p[j].Addr }

func (p Pages) String() string {
	s := make([]string, len(p))
	for i, v := range p {
		s[i] = v.String()
	}
	return strings.Join(s, "\n")
}

// binary search for the index of the page containing addr, else -1
func (p Pages) bsearch(addr uint64) int {
	l, r := 0, len(p)-1
	for l <= r {
		mid := (l + r) / 2
		e := p[mid]
		if addr < e.Addr {
			r = mid - 1
		} else if addr >= e.Addr+e.Size {
			l = mid + 1
		} else {
			return mid
		}
	}
	return -1
}

func (p Pages) Find(addr uint64) *Page {
	if i := p.bsearch(addr); i >= 0 {
		return p[i]
	}
	return nil
}

// FindRange returns every page overlapping addr:size.
func (p Pages) FindRange(addr, size uint64) Pages {
	var out Pages
	for _, pg := range p {
		if pg.Overlaps(addr, size) {
			out = append(out, pg)
		}
	}
	return out
}
