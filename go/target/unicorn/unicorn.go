//go:build unicorn

package unicorn

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/avatarproxy/avatar/go/debug"
	"github.com/avatarproxy/avatar/go/models"
	"github.com/avatarproxy/avatar/go/models/cpu"
	"github.com/avatarproxy/avatar/go/target"
)

var regEnums = map[string]int{
	"r0": uc.ARM_REG_R0, "r1": uc.ARM_REG_R1, "r2": uc.ARM_REG_R2, "r3": uc.ARM_REG_R3,
	"r4": uc.ARM_REG_R4, "r5": uc.ARM_REG_R5, "r6": uc.ARM_REG_R6, "r7": uc.ARM_REG_R7,
	"r8": uc.ARM_REG_R8, "r9": uc.ARM_REG_R9, "r10": uc.ARM_REG_R10, "r11": uc.ARM_REG_R11,
	"r12": uc.ARM_REG_R12, "sp": uc.ARM_REG_SP, "lr": uc.ARM_REG_LR, "pc": uc.ARM_REG_PC,
	"cpsr": uc.ARM_REG_CPSR,
}

// instructions run per resume when no stop address is set
const defaultSteps = 1000

type Target struct {
	uc.Unicorn
	Arch *models.Arch
	Log  zerolog.Logger

	// Until stops execution at this address when non-zero.
	Until uint64
	Steps uint64
}

var _ models.Target = (*Target)(nil)
var _ cpu.Memory = (*Target)(nil)

func New(cfg *models.Config, log zerolog.Logger) (*Target, error) {
	u, err := uc.NewUnicorn(uc.ARCH_ARM, uc.MODE_ARM)
	if err != nil {
		return nil, errors.Wrap(err, "NewUnicorn() failed")
	}
	t := &Target{Unicorn: u, Arch: models.Arm, Log: log, Steps: defaultSteps}
	for _, r := range cfg.Memory {
		prot, err := models.ParseProt(r.Prot)
		if err != nil {
			return nil, err
		}
		if err := u.MemMapProt(r.Addr, r.Size, prot); err != nil {
			return nil, errors.Wrapf(err, "mapping %s", r.Desc)
		}
	}
	return t, nil
}

func init() {
	target.Register("unicorn", func(cfg *models.Config, log zerolog.Logger) (models.Target, error) {
		return New(cfg, log)
	})
}

func (t *Target) enum(name string) (int, error) {
	enum, ok := regEnums[t.Arch.Canonical(name)]
	if !ok {
		return 0, errors.Errorf("invalid register %q", name)
	}
	return enum, nil
}

func (t *Target) ReadTypedMemory(addr uint64, size int) (uint64, error) {
	if !models.ValidSize(size) {
		return 0, errors.Errorf("invalid read size %d", size)
	}
	val, err := cpu.ReadTyped(t, t.Arch.Order, addr, size)
	return val, errors.Wrapf(err, "read %#x", addr)
}

func (t *Target) WriteTypedMemory(addr uint64, size int, value uint64) error {
	if !models.ValidSize(size) {
		return errors.Errorf("invalid write size %d", size)
	}
	return errors.Wrapf(cpu.WriteTyped(t, t.Arch.Order, addr, size, value), "write %#x", addr)
}

func (t *Target) GetRegister(name string) (uint64, error) {
	enum, err := t.enum(name)
	if err != nil {
		return 0, err
	}
	return t.RegRead(enum)
}

func (t *Target) SetRegister(name string, value uint64) error {
	enum, err := t.enum(name)
	if err != nil {
		return err
	}
	return t.RegWrite(enum, value)
}

// Cont runs from pc until Until or for Steps instructions.
func (t *Target) Cont() error {
	pc, err := t.RegRead(uc.ARM_REG_PC)
	if err != nil {
		return err
	}
	cpsr, err := t.RegRead(uc.ARM_REG_CPSR)
	if err != nil {
		return err
	}
	if cpsr&(1<<5) != 0 {
		pc |= 1
	}
	opts := &uc.UcOptions{}
	if t.Until == 0 {
		opts.Count = t.Steps
	}
	t.Log.Debug().Uint64("pc", pc).Uint64("until", t.Until).Msg("continue")
	return errors.Wrap(t.StartWithOptions(pc, t.Until, opts), "emulation stopped")
}

func (t *Target) ExecuteGdbCommand(cmd string) (string, error) {
	fields := strings.Fields(strings.TrimPrefix(cmd, "monitor "))
	if len(fields) == 5 && strings.Join(fields[:3], " ") == "-gdb-show remote checksum" {
		addr, err := models.ParseHex(fields[3])
		if err != nil {
			return "", err
		}
		size, err := models.ParseHex(fields[4])
		if err != nil {
			return "", err
		}
		if err := models.CheckRange(addr, size); err != nil {
			return "", err
		}
		mem, err := t.MemRead(addr, size)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%08x", debug.CRC32(mem)), nil
	}
	if strings.Join(fields, " ") == "info registers" {
		state, err := models.ReadCpuState(t, t.Arch)
		if err != nil {
			return "", err
		}
		var out []string
		for _, name := range t.Arch.Regs {
			out = append(out, fmt.Sprintf("%-5s %s", name, state[name]))
		}
		return strings.Join(out, "\n"), nil
	}
	return "", errors.Errorf("unsupported command %q", cmd)
}
