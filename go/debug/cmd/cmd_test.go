package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/avatarproxy/avatar/go/emulator"
	"github.com/avatarproxy/avatar/go/models"
	"github.com/avatarproxy/avatar/go/plugins/memrange"
	"github.com/avatarproxy/avatar/go/proxy"
	"github.com/avatarproxy/avatar/go/system"
)

type testTarget struct {
	mem  map[uint64]uint64
	regs map[string]uint64
	cont int
}

func (t *testTarget) ReadTypedMemory(addr uint64, size int) (uint64, error) {
	return t.mem[addr], nil
}

func (t *testTarget) WriteTypedMemory(addr uint64, size int, value uint64) error {
	t.mem[addr] = value
	return nil
}

func (t *testTarget) GetRegister(name string) (uint64, error) {
	return t.regs[models.Arm.Canonical(name)], nil
}

func (t *testTarget) SetRegister(name string, value uint64) error {
	t.regs[models.Arm.Canonical(name)] = value
	return nil
}

func (t *testTarget) Cont() error { t.cont++; return nil }

func (t *testTarget) ExecuteGdbCommand(cmd string) (string, error) { return "crc " + cmd, nil }

func setup() (*Context, *testTarget, *bytes.Buffer) {
	sys := system.NewSystem(zerolog.Nop())
	emu := emulator.NewEmulator(sys)
	p := proxy.NewCallProxy()
	target := &testTarget{mem: make(map[uint64]uint64), regs: map[string]uint64{"sp": 0x800, "pc": 0x100}}
	p.SetTarget(target)
	emulator.Bind(emu, p)
	ranges := memrange.NewIdentifier(sys, 0)
	ranges.Start()
	p.AddMonitor(ranges)
	var out bytes.Buffer
	return &Context{Writer: &out, Emu: emu, Target: target, Arch: models.Arm, Ranges: ranges}, target, &out
}

func TestReadWrite(t *testing.T) {
	c, target, out := setup()
	Run(c, "write 0x1000 4 0x41424344")
	if target.mem[0x1000] != 0x41424344 {
		t.Fatalf("write did not reach target: %s", out)
	}
	out.Reset()
	Run(c, "read 0x1000 4")
	if strings.TrimSpace(out.String()) != "0x1000 = 0x41424344" {
		t.Fatalf("unexpected read output %q", out.String())
	}
	if c.Ranges.Count(0x1000, memrange.READ) != 1 || c.Ranges.Count(0x1000, memrange.WRITE) != 1 {
		t.Fatal("console requests were not seen by the identifier")
	}
	out.Reset()
	Run(c, "pages")
	if !strings.Contains(out.String(), "0x1000") {
		t.Fatalf("pages output missing page: %q", out.String())
	}
}

func TestRegs(t *testing.T) {
	c, target, out := setup()
	Run(c, "setreg r2 0x1f")
	if target.regs["r2"] != 0x1f {
		t.Fatal("setreg did not reach target")
	}
	Run(c, "regs")
	if !strings.Contains(out.String(), "cpu_state_r2 0x1f") || !strings.Contains(out.String(), "cpu_state_r13 0x800") {
		t.Fatalf("unexpected regs output %q", out.String())
	}
	Run(c, "cont")
	if target.cont != 1 {
		t.Fatal("cont did not reach target")
	}
}

func TestChecksumAndErrors(t *testing.T) {
	c, _, out := setup()
	Run(c, "checksum 0x10 0x20")
	if strings.TrimSpace(out.String()) != "crc -gdb-show remote checksum 10 20" {
		t.Fatalf("unexpected checksum output %q", out.String())
	}
	for _, line := range []string{"bogus", "read 0x10", "read zz 4", `read "0x10`} {
		out.Reset()
		Run(c, line)
		if out.Len() == 0 {
			t.Errorf("%q produced no error output", line)
		}
	}
	out.Reset()
	Run(c, "")
	if out.Len() != 0 {
		t.Fatal("empty line produced output")
	}
	Run(c, "help")
	if !strings.Contains(out.String(), "read <uint64> <int>") {
		t.Fatalf("help output missing usage: %q", out.String())
	}
}

func TestMemDump(t *testing.T) {
	c, target, out := setup()
	target.mem[0x20] = 0x6867666564636261
	Run(c, "mem 0x20 8")
	if !strings.Contains(out.String(), "abcdefgh") {
		t.Fatalf("unexpected hexdump %q", out.String())
	}
}
