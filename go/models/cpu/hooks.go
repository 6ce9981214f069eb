package cpu

import (
	"github.com/pkg/errors"
)

type Hook interface{}

type MemCb func(access int, addr uint64, size int, val int64)
type MemFaultCb func(access int, addr uint64, size int, val int64) bool

type hookInfo struct {
	htype int
	start uint64
	end   uint64
}

// start > end hooks every address
func (h *hookInfo) Contains(addr uint64) bool {
	return h.start > h.end || addr >= h.start && addr <= h.end
}

type memHook struct {
	hookInfo
	cb MemCb
}

type memFaultHook struct {
	hookInfo
	cb MemFaultCb
}

// Hooks keeps one ordered list per hook kind. Dispatch follows add order.
type Hooks struct {
	mem      []*memHook
	memFault []*memFaultHook
}

// creates &Hooks{}, optionally attaching to a *Mem instance
func NewHooks(mem *Mem) *Hooks {
	h := &Hooks{}
	if mem != nil {
		mem.hooks = h
	}
	return h
}

func (h *Hooks) HookAdd(htype int, cb interface{}, start, end uint64) (Hook, error) {
	info := hookInfo{htype, start, end}
	switch htype {
	case HOOK_MEM_READ, HOOK_MEM_WRITE, HOOK_MEM:
		fn, ok := cb.(func(int, uint64, int, int64))
		if !ok {
			if mcb, ok2 := cb.(MemCb); ok2 {
				fn, ok = mcb, true
			}
		}
		if !ok {
			return nil, errors.Errorf("bad callback type %T for memory hook", cb)
		}
		hh := &memHook{info, fn}
		h.mem = append(h.mem, hh)
		return hh, nil
	case HOOK_MEM_ERR:
		fn, ok := cb.(func(int, uint64, int, int64) bool)
		if !ok {
			if fcb, ok2 := cb.(MemFaultCb); ok2 {
				fn, ok = fcb, true
			}
		}
		if !ok {
			return nil, errors.Errorf("bad callback type %T for fault hook", cb)
		}
		hh := &memFaultHook{info, fn}
		h.memFault = append(h.memFault, hh)
		return hh, nil
	}
	return nil, errors.Errorf("unknown hook type: %d", htype)
}

// HookDel removes a hook returned by HookAdd. Unknown hooks are ignored.
func (h *Hooks) HookDel(hh Hook) error {
	switch v := hh.(type) {
	case *memHook:
		tmp := h.mem[:0]
		for _, m := range h.mem {
			if m != v {
				tmp = append(tmp, m)
			}
		}
		h.mem = tmp
	case *memFaultHook:
		tmp := h.memFault[:0]
		for _, m := range h.memFault {
			if m != v {
				tmp = append(tmp, m)
			}
		}
		h.memFault = tmp
	default:
		return errors.Errorf("not a hook: %T", hh)
	}
	return nil
}

func (h *Hooks) OnMem(access int, addr uint64, size int, val int64) {
	for _, v := range h.mem {
		if !v.Contains(addr) {
			continue
		}
		if v.htype == HOOK_MEM_READ && access == MEM_WRITE || v.htype == HOOK_MEM_WRITE && access != MEM_WRITE {
			continue
		}
		v.cb(access, addr, size, val)
	}
}

func (h *Hooks) OnFault(access int, addr uint64, size int, val int64) bool {
	for _, v := range h.memFault {
		if v.Contains(addr) && v.cb(access, addr, size, val) {
			return true
		}
	}
	return false
}
