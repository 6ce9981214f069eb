package emulator

import (
	"fmt"
	"strings"

	"github.com/avatarproxy/avatar/go/models"
)

// Frontend presents an Emulator as a models.Target, so a debugger front end
// such as the gdb stub issues its accesses as emulator requests and every
// monitor sees them. Backend answers what the request slots cannot carry:
// register snapshots for memory requests, cpsr and non-checksum commands.
type Frontend struct {
	Emu     *Emulator
	Backend models.Target
	Arch    *models.Arch

	// cached until the next register write, continue or command
	cached   models.CpuState
	reported models.CpuState
}

var _ models.Target = (*Frontend)(nil)

func NewFrontend(emu *Emulator, backend models.Target, arch *models.Arch) *Frontend {
	return &Frontend{Emu: emu, Backend: backend, Arch: arch}
}

// Invalidate drops the cached register snapshots.
func (f *Frontend) Invalidate() {
	f.cached, f.reported = nil, nil
}

func (f *Frontend) state() (models.CpuState, error) {
	if f.cached == nil {
		state, err := models.ReadCpuState(f.Backend, f.Arch)
		if err != nil {
			return nil, err
		}
		f.cached = state
	}
	// monitors may edit the request state
	state := make(models.CpuState, len(f.cached))
	for k, v := range f.cached {
		state[k] = v
	}
	return state, nil
}

func (f *Frontend) ReadTypedMemory(addr uint64, size int) (uint64, error) {
	state, err := f.state()
	if err != nil {
		return 0, err
	}
	return f.Emu.NotifyRead(&models.ReadRequest{Address: addr, Size: size, CpuState: state})
}

func (f *Frontend) WriteTypedMemory(addr uint64, size int, value uint64) error {
	state, err := f.state()
	if err != nil {
		return err
	}
	return f.Emu.NotifyWrite(&models.WriteRequest{Address: addr, Size: size, Value: value, CpuState: state})
}

// key in the get-cpu-state reply, empty for registers it does not report
func (f *Frontend) stateKey(name string) string {
	name = f.Arch.Canonical(name)
	switch name {
	case f.Arch.SP:
		return "cpu_state_r13"
	case f.Arch.LR:
		return "cpu_state_r14"
	case f.Arch.PC:
		return "cpu_state_pc"
	case f.Arch.Flags:
		return ""
	}
	return "cpu_state_" + name
}

func (f *Frontend) GetRegister(name string) (uint64, error) {
	key := f.stateKey(name)
	if key == "" {
		return f.Backend.GetRegister(name)
	}
	if f.reported == nil {
		state, err := f.Emu.NotifyGetCpuState(&models.CpuStateRequest{})
		if err != nil {
			return 0, err
		}
		f.reported = state
	}
	if _, ok := f.reported[key]; !ok {
		return f.Backend.GetRegister(name)
	}
	return f.reported.Uint(key)
}

func (f *Frontend) SetRegister(name string, value uint64) error {
	f.Invalidate()
	if f.stateKey(name) == "" {
		return f.Backend.SetRegister(name, value)
	}
	state := models.CpuState{f.Arch.Canonical(name): models.FormatHex(value)}
	return f.Emu.NotifySetCpuState(&models.CpuStateRequest{CpuState: state})
}

func (f *Frontend) Cont() error {
	f.Invalidate()
	return f.Emu.NotifyContinue(&models.ContinueRequest{})
}

func (f *Frontend) ExecuteGdbCommand(cmd string) (string, error) {
	var addr, size uint64
	if n, _ := fmt.Sscanf(strings.TrimSpace(cmd), "-gdb-show remote checksum %x %x", &addr, &size); n == 2 {
		return f.Emu.NotifyGetChecksum(&models.ChecksumRequest{Address: addr, Size: size})
	}
	f.Invalidate()
	return f.Backend.ExecuteGdbCommand(cmd)
}
