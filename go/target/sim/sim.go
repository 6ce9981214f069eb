// Package sim is an in-process ARM device target backed by simulated memory.
package sim

import (
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/avatarproxy/avatar/go/debug"
	"github.com/avatarproxy/avatar/go/models"
	"github.com/avatarproxy/avatar/go/models/cpu"
	"github.com/avatarproxy/avatar/go/target"
)

type Target struct {
	Arch  *models.Arch
	Mem   *cpu.Mem
	Regs  *cpu.Regs
	Hooks *cpu.Hooks
	Log   zerolog.Logger

	// OnCont runs on every resume, standing in for firmware execution.
	OnCont func(t *Target) error
	Conts  int

	// set while "monitor trace on" is active
	trace cpu.Hook
}

var _ models.Target = (*Target)(nil)

func NewTarget(arch *models.Arch, log zerolog.Logger) *Target {
	mem := cpu.NewMem(arch.Bits, arch.Order)
	t := &Target{
		Arch:  arch,
		Mem:   mem,
		Regs:  cpu.NewRegs(arch.Bits, arch.Regs, arch.Aliases),
		Hooks: cpu.NewHooks(mem),
		Log:   log,
	}
	t.Hooks.HookAdd(cpu.HOOK_MEM_ERR, func(access int, addr uint64, size int, val int64) bool {
		t.Log.Debug().Int("access", access).Uint64("addr", addr).Int("size", size).Msg("memory fault")
		return false
	}, 1, 0)
	return t
}

// New builds a target from the configured memory map and optional snapshot.
func New(cfg *models.Config, log zerolog.Logger) (*Target, error) {
	t := NewTarget(models.Arm, log)
	for _, r := range cfg.Memory {
		prot, err := models.ParseProt(r.Prot)
		if err != nil {
			return nil, err
		}
		if _, err := t.Mem.MemMapDesc(r.Addr, r.Size, prot, r.Desc); err != nil {
			return nil, errors.Wrapf(err, "mapping %s", r.Desc)
		}
	}
	if cfg.Snapshot != "" {
		if err := t.RestoreFile(cfg.Snapshot); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func init() {
	target.Register("sim", func(cfg *models.Config, log zerolog.Logger) (models.Target, error) {
		return New(cfg, log)
	})
}

func (t *Target) ReadTypedMemory(addr uint64, size int) (uint64, error) {
	if !models.ValidSize(size) {
		return 0, errors.Errorf("invalid read size %d", size)
	}
	return t.Mem.ReadUint(addr, size, cpu.PROT_READ)
}

func (t *Target) WriteTypedMemory(addr uint64, size int, value uint64) error {
	if !models.ValidSize(size) {
		return errors.Errorf("invalid write size %d", size)
	}
	return t.Mem.WriteUint(addr, size, cpu.PROT_WRITE, value)
}

func (t *Target) GetRegister(name string) (uint64, error) {
	return t.Regs.RegRead(name)
}

func (t *Target) SetRegister(name string, value uint64) error {
	return t.Regs.RegWrite(name, value)
}

func (t *Target) Cont() error {
	t.Conts++
	t.Log.Debug().Int("count", t.Conts).Msg("continue")
	if t.OnCont != nil {
		return t.OnCont(t)
	}
	return nil
}

// Checksum returns the gdb CRC32 of a mapped range.
func (t *Target) Checksum(addr, size uint64) (uint32, error) {
	if err := models.CheckRange(addr, size); err != nil {
		return 0, err
	}
	mem, err := t.Mem.MemRead(addr, size)
	if err != nil {
		return 0, err
	}
	return debug.CRC32(mem), nil
}

// SetTrace logs every memory access at debug level while enabled.
func (t *Target) SetTrace(on bool) error {
	if !on {
		if t.trace == nil {
			return nil
		}
		err := t.Hooks.HookDel(t.trace)
		t.trace = nil
		return err
	}
	if t.trace != nil {
		return nil
	}
	hh, err := t.Hooks.HookAdd(cpu.HOOK_MEM, func(access int, addr uint64, size int, val int64) {
		t.Log.Debug().Int("access", access).Uint64("addr", addr).Int("size", size).Int64("value", val).Msg("trace")
	}, 1, 0)
	if err != nil {
		return err
	}
	t.trace = hh
	return nil
}

// Tracing reports whether SetTrace is active.
func (t *Target) Tracing() bool { return t.trace != nil }

// ExecuteGdbCommand understands the checksum query and a few monitor commands.
func (t *Target) ExecuteGdbCommand(line string) (string, error) {
	args, err := shellwords.Parse(line)
	if err != nil {
		return "", errors.Wrap(err, "parse error")
	}
	if len(args) > 0 && args[0] == "monitor" {
		args = args[1:]
	}
	cmd := strings.Join(args, " ")
	switch {
	case len(args) == 5 && strings.HasPrefix(cmd, "-gdb-show remote checksum "):
		addr, err := models.ParseHex(args[3])
		if err != nil {
			return "", err
		}
		size, err := models.ParseHex(args[4])
		if err != nil {
			return "", err
		}
		crc, err := t.Checksum(addr, size)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%08x", crc), nil
	case cmd == "info registers":
		var out []string
		for _, name := range t.Regs.Names() {
			val, _ := t.Regs.RegRead(name)
			out = append(out, fmt.Sprintf("%-5s %#x", name, val))
		}
		return strings.Join(out, "\n"), nil
	case cmd == "info mem":
		return t.Mem.Mappings().String(), nil
	case len(args) == 4 && args[0] == "prot":
		addr, err := models.ParseHex(args[1])
		if err != nil {
			return "", err
		}
		size, err := models.ParseHex(args[2])
		if err != nil {
			return "", err
		}
		prot, err := models.ParseProt(args[3])
		if err != nil {
			return "", err
		}
		return "", t.Mem.MemProt(addr, size, prot)
	case cmd == "trace on":
		return "", t.SetTrace(true)
	case cmd == "trace off":
		return "", t.SetTrace(false)
	}
	return "", errors.Errorf("unsupported command %q", line)
}
