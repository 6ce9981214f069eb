package models

import (
	"encoding/binary"
)

// Arch describes the register file of a target as the proxy and gdb see it.
type Arch struct {
	Name  string
	Bits  uint
	Order binary.ByteOrder

	// canonical register names, in gdb 'g' packet order
	Regs []string
	// alternate names, e.g. r13 -> sp
	Aliases map[string]string
	// gdb remote register numbers
	GdbRegs map[string]int
	// byte width of gdb register numbers with no backing register
	GdbFill map[int]int

	PC, SP, LR, Flags string
}

// Canonical resolves an alias to the register it names.
func (a *Arch) Canonical(name string) string {
	if real, ok := a.Aliases[name]; ok {
		return real
	}
	return name
}

// GdbReg returns the gdb register number for a (possibly aliased) name.
func (a *Arch) GdbReg(name string) (int, bool) {
	n, ok := a.GdbRegs[a.Canonical(name)]
	return n, ok
}

// GdbMax is the highest gdb register number in the 'g' packet.
func (a *Arch) GdbMax() int {
	max := -1
	for _, n := range a.GdbRegs {
		if n > max {
			max = n
		}
	}
	for n := range a.GdbFill {
		if n > max {
			max = n
		}
	}
	return max
}

// GdbSize is the byte width of a register in gdb packets.
func (a *Arch) GdbSize(num int) int {
	if size, ok := a.GdbFill[num]; ok {
		return size
	}
	return int(a.Bits / 8)
}

// GdbName is the inverse of GdbReg.
func (a *Arch) GdbName(num int) (string, bool) {
	for name, n := range a.GdbRegs {
		if n == num {
			return name, true
		}
	}
	return "", false
}

var Arm = &Arch{
	Name:  "arm",
	Bits:  32,
	Order: binary.LittleEndian,
	Regs: []string{
		"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
		"r8", "r9", "r10", "r11", "r12", "sp", "lr", "pc", "cpsr",
	},
	Aliases: map[string]string{
		"r13": "sp",
		"r14": "lr",
		"r15": "pc",
		"fp":  "r11",
		"ip":  "r12",
	},
	GdbRegs: map[string]int{
		"r0": 0, "r1": 1, "r2": 2, "r3": 3, "r4": 4, "r5": 5, "r6": 6, "r7": 7,
		"r8": 8, "r9": 9, "r10": 10, "r11": 11, "r12": 12,
		"sp": 13, "lr": 14, "pc": 15,
		"cpsr": 25,
	},
	// legacy fpa registers f0-f7 and fps
	GdbFill: map[int]int{
		16: 12, 17: 12, 18: 12, 19: 12, 20: 12, 21: 12, 22: 12, 23: 12,
		24: 4,
	},
	PC:    "pc",
	SP:    "sp",
	LR:    "lr",
	Flags: "cpsr",
}
