package emulator

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/avatarproxy/avatar/go/models"
	"github.com/avatarproxy/avatar/go/proxy"
	"github.com/avatarproxy/avatar/go/system"
)

type regTarget struct {
	memTarget
	regs map[string]uint64
	cmds []string
	gets int
}

func (r *regTarget) GetRegister(name string) (uint64, error) {
	r.gets++
	return r.regs[models.Arm.Canonical(name)], nil
}

func (r *regTarget) SetRegister(name string, value uint64) error {
	r.regs[models.Arm.Canonical(name)] = value
	return nil
}

func (r *regTarget) ExecuteGdbCommand(cmd string) (string, error) {
	r.cmds = append(r.cmds, cmd)
	return "ok", nil
}

func TestFrontend(t *testing.T) {
	sys := system.NewSystem(zerolog.Nop())
	log := &eventLog{}
	sys.RegisterEventListener(log)
	e := NewEmulator(sys)
	p := proxy.NewCallProxy()
	backend := &regTarget{memTarget: memTarget{mem: map[uint64]uint64{}}, regs: map[string]uint64{"sp": 0x800, "cpsr": 0x30}}
	p.SetTarget(backend)
	Bind(e, p)
	f := NewFrontend(e, backend, models.Arm)

	if err := f.WriteTypedMemory(0x10, 4, 7); err != nil {
		t.Fatal(err)
	}
	if val, err := f.ReadTypedMemory(0x10, 4); err != nil || val != 7 {
		t.Fatalf("read %#x, %v", val, err)
	}
	if len(log.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(log.events))
	}
	req := log.events[1].Properties.(*models.ReadRequest)
	if req.CpuState["r13"] != "0x800" || req.CpuState["cpsr"] != "0x30" {
		t.Fatalf("memory request carried state %s", req.CpuState)
	}

	if sp, err := f.GetRegister("r13"); err != nil || sp != 0x800 {
		t.Fatalf("sp = %#x, %v", sp, err)
	}
	if err := f.SetRegister("lr", 0x101); err != nil || backend.regs["lr"] != 0x101 {
		t.Fatal("lr write did not reach the backend")
	}
	// the proxy never forwards cpsr, so it goes straight to the backend
	if err := f.SetRegister("cpsr", 0x10); err != nil || backend.regs["cpsr"] != 0x10 {
		t.Fatal("cpsr write did not reach the backend")
	}
	if cpsr, _ := f.GetRegister("cpsr"); cpsr != 0x10 {
		t.Fatalf("cpsr = %#x", cpsr)
	}

	f.ExecuteGdbCommand("-gdb-show remote checksum 100 20")
	f.ExecuteGdbCommand("info mem")
	if len(backend.cmds) != 2 || backend.cmds[0] != "-gdb-show remote checksum 100 20" || backend.cmds[1] != "info mem" {
		t.Fatalf("backend saw %q", backend.cmds)
	}
	if err := f.Cont(); err != nil || backend.cont != 1 {
		t.Fatal("continue did not reach the backend")
	}
}

func TestFrontendCachesState(t *testing.T) {
	e := NewEmulator(system.NewSystem(zerolog.Nop()))
	p := proxy.NewCallProxy()
	backend := &regTarget{memTarget: memTarget{mem: map[uint64]uint64{}}, regs: map[string]uint64{"pc": 0x40}}
	p.SetTarget(backend)
	Bind(e, p)
	f := NewFrontend(e, backend, models.Arm)

	// one get-cpu-state request serves every core register
	for _, name := range models.Arm.Regs[:16] {
		if _, err := f.GetRegister(name); err != nil {
			t.Fatal(err)
		}
	}
	if backend.gets != 16 {
		t.Fatalf("16 register reads cost %d backend reads", backend.gets)
	}
	backend.gets = 0
	f.ReadTypedMemory(0x10, 4)
	f.ReadTypedMemory(0x14, 4)
	if backend.gets != len(models.Arm.Regs) {
		t.Fatalf("two memory reads cost %d backend reads", backend.gets)
	}

	if err := f.SetRegister("pc", 0x80); err != nil {
		t.Fatal(err)
	}
	if pc, _ := f.GetRegister("pc"); pc != 0x80 {
		t.Fatalf("pc = %#x after write", pc)
	}
	backend.regs["pc"] = 0x90
	if pc, _ := f.GetRegister("pc"); pc != 0x80 {
		t.Fatalf("cached pc = %#x", pc)
	}
	f.Invalidate()
	if pc, _ := f.GetRegister("pc"); pc != 0x90 {
		t.Fatalf("pc = %#x after invalidate", pc)
	}
}
