package cpu

import (
	"github.com/pkg/errors"
)

// Regs is a register file addressed by name, with optional aliases.
type Regs struct {
	mask  uint64
	names []string
	vals  map[string]uint64
	alias map[string]string
}

func NewRegs(bits uint, names []string, aliases map[string]string) *Regs {
	r := &Regs{
		mask:  ^uint64(0) >> (64 - bits),
		names: append([]string(nil), names...),
		vals:  make(map[string]uint64, len(names)),
		alias: make(map[string]string, len(aliases)),
	}
	for _, name := range names {
		r.vals[name] = 0
	}
	for alias, name := range aliases {
		r.alias[alias] = name
	}
	return r
}

func (r *Regs) resolve(name string) (string, error) {
	if real, ok := r.alias[name]; ok {
		name = real
	}
	if _, ok := r.vals[name]; !ok {
		return "", errors.Errorf("invalid register %q", name)
	}
	return name, nil
}

// Names returns the canonical register names in declaration order.
func (r *Regs) Names() []string {
	return append([]string(nil), r.names...)
}

func (r *Regs) RegRead(name string) (uint64, error) {
	name, err := r.resolve(name)
	if err != nil {
		return 0, err
	}
	return r.vals[name], nil
}

func (r *Regs) RegWrite(name string, val uint64) error {
	name, err := r.resolve(name)
	if err != nil {
		return err
	}
	r.vals[name] = val & r.mask
	return nil
}

// ContextSave copies every register into reuse, or a new map when reuse is nil.
func (r *Regs) ContextSave(reuse map[string]uint64) map[string]uint64 {
	if reuse == nil {
		reuse = make(map[string]uint64, len(r.vals))
	}
	for k, v := range r.vals {
		reuse[k] = v
	}
	return reuse
}

// ContextRestore writes back a saved context. It fails without changes if any name is unknown.
func (r *Regs) ContextRestore(ctx map[string]uint64) error {
	for k := range ctx {
		if _, err := r.resolve(k); err != nil {
			return err
		}
	}
	for k, v := range ctx {
		r.RegWrite(k, v)
	}
	return nil
}
