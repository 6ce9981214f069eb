package proxy

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"

	"github.com/avatarproxy/avatar/go/models"
)

type mockTarget struct {
	calls []string
	regs  map[string]uint64
	mem   map[uint64]uint64
	fail  error
}

func newMockTarget() *mockTarget {
	return &mockTarget{regs: make(map[string]uint64), mem: make(map[uint64]uint64)}
}

func (m *mockTarget) ReadTypedMemory(addr uint64, size int) (uint64, error) {
	m.calls = append(m.calls, fmt.Sprintf("read(%#x, %d)", addr, size))
	return m.mem[addr], m.fail
}

func (m *mockTarget) WriteTypedMemory(addr uint64, size int, value uint64) error {
	m.calls = append(m.calls, fmt.Sprintf("write(%#x, %d, %#x)", addr, size, value))
	m.mem[addr] = value
	return m.fail
}

func (m *mockTarget) GetRegister(name string) (uint64, error) {
	m.calls = append(m.calls, "get "+name)
	return m.regs[name], m.fail
}

func (m *mockTarget) SetRegister(name string, value uint64) error {
	m.calls = append(m.calls, fmt.Sprintf("set %s=%#x", name, value))
	m.regs[name] = value
	return m.fail
}

func (m *mockTarget) Cont() error {
	m.calls = append(m.calls, "cont")
	return m.fail
}

func (m *mockTarget) ExecuteGdbCommand(cmd string) (string, error) {
	m.calls = append(m.calls, cmd)
	return "0xcafe", m.fail
}

// logs every hook it receives into a shared list
type recorder struct {
	name string
	log  *[]string
}

type readMonitor struct{ recorder }

func (r *readMonitor) EmulatorPreReadRequest(req *models.ReadRequest) {
	*r.log = append(*r.log, fmt.Sprintf("%s pre %s", r.name, req))
}

func (r *readMonitor) EmulatorPostReadRequest(req *models.ReadRequest) {
	*r.log = append(*r.log, fmt.Sprintf("%s post %s", r.name, req))
}

type fullMonitor struct{ readMonitor }

func (f *fullMonitor) EmulatorPreWriteRequest(req *models.WriteRequest) {
	*f.log = append(*f.log, fmt.Sprintf("%s pre %s", f.name, req))
}

func (f *fullMonitor) EmulatorPostWriteRequest(req *models.WriteRequest) {
	*f.log = append(*f.log, fmt.Sprintf("%s post %s", f.name, req))
}

type postWriteOnly struct{ n int }

func (p *postWriteOnly) EmulatorPostWriteRequest(req *models.WriteRequest) { p.n++ }

func strseq(a, b []string) error {
	if len(a) != len(b) {
		return errors.Errorf("length mismatch:\n%q\n%q", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			return errors.Errorf("mismatch at %d: %q != %q", i, a[i], b[i])
		}
	}
	return nil
}

func TestNoTarget(t *testing.T) {
	p := NewCallProxy()
	var log []string
	p.AddMonitor(&fullMonitor{readMonitor{recorder{"m", &log}}})
	checks := map[string]error{}
	_, checks["read"] = p.HandleReadRequest(&models.ReadRequest{Address: 0x1000, Size: 4})
	checks["write"] = p.HandleWriteRequest(&models.WriteRequest{Address: 0x1000, Size: 4})
	checks["setcpu"] = p.HandleSetCpuStateRequest(&models.CpuStateRequest{})
	_, checks["getcpu"] = p.HandleGetCpuStateRequest(&models.CpuStateRequest{})
	checks["cont"] = p.HandleContinueRequest(&models.ContinueRequest{})
	_, checks["checksum"] = p.HandleGetChecksumRequest(&models.ChecksumRequest{})
	for name, err := range checks {
		if errors.Cause(err) != models.ErrNoTarget {
			t.Errorf("%s: expected ErrNoTarget, got %v", name, err)
		}
	}
	if len(log) != 0 {
		t.Fatalf("hooks ran without a target: %v", log)
	}
}

func TestAddMonitorSubset(t *testing.T) {
	p := NewCallProxy()
	var log []string
	r := &readMonitor{recorder{"r", &log}}
	w := &postWriteOnly{}
	p.AddMonitor(r)
	p.AddMonitor(w)
	p.AddMonitor(r)

	counts := map[string]int{
		models.EMULATOR_PRE_READ_REQUEST:   1,
		models.EMULATOR_POST_READ_REQUEST:  1,
		models.EMULATOR_PRE_WRITE_REQUEST:  0,
		models.EMULATOR_POST_WRITE_REQUEST: 1,
	}
	for event, n := range counts {
		if got := len(p.Monitors(event)); got != n {
			t.Errorf("%s: %d monitors, expected %d", event, got, n)
		}
	}
	if p.Monitors(models.EMULATOR_POST_WRITE_REQUEST)[0] != models.Monitor(w) {
		t.Fatal("wrong monitor on post write list")
	}
	// not a monitor of anything
	p.AddMonitor(struct{}{})
	for _, event := range models.MonitorEvents {
		if len(p.Monitors(event)) != counts[event] {
			t.Fatal("hookless value was subscribed")
		}
	}
}

// value receiver on a slice type, so the monitor cannot be compared
type sliceMonitor []int

func (s sliceMonitor) EmulatorPostReadRequest(req *models.ReadRequest) {}

func TestAddMonitorUncomparable(t *testing.T) {
	p := NewCallProxy()
	p.AddMonitor(sliceMonitor{1})
	p.AddMonitor(sliceMonitor{1})
	p.RemoveMonitor(sliceMonitor{1})
	if n := len(p.Monitors(models.EMULATOR_POST_READ_REQUEST)); n != 0 {
		t.Fatalf("uncomparable monitor subscribed %d times", n)
	}
	p.AddMonitor(nil)
	p.RemoveMonitor(nil)
	target := newMockTarget()
	p.SetTarget(target)
	if _, err := p.HandleReadRequest(&models.ReadRequest{Address: 0x10, Size: 4}); err != nil {
		t.Fatal(err)
	}
}

func TestRemoveMonitor(t *testing.T) {
	p := NewCallProxy()
	var log []string
	a := &fullMonitor{readMonitor{recorder{"a", &log}}}
	b := &fullMonitor{readMonitor{recorder{"b", &log}}}
	p.AddMonitor(a)
	p.AddMonitor(b)
	p.RemoveMonitor(a)
	p.RemoveMonitor(a)
	p.RemoveMonitor(&postWriteOnly{})
	for _, event := range models.MonitorEvents {
		list := p.Monitors(event)
		if len(list) != 1 || list[0] != models.Monitor(b) {
			t.Fatalf("%s: unexpected monitors after remove: %v", event, list)
		}
	}
}

func TestReadHooks(t *testing.T) {
	p := NewCallProxy()
	target := newMockTarget()
	target.mem[0x2000] = 0x41424344
	p.SetTarget(target)
	var log []string
	p.AddMonitor(&readMonitor{recorder{"a", &log}})
	p.AddMonitor(&fullMonitor{readMonitor{recorder{"b", &log}}})

	req := &models.ReadRequest{Address: 0x2000, Size: 4}
	val, err := p.HandleReadRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if val != 0x41424344 || req.Value != val || !req.HasValue {
		t.Fatalf("bad read result %#x, request %s", val, req)
	}
	compare := []string{
		"a pre read(0x2000, 4)",
		"b pre read(0x2000, 4)",
		"a post read(0x2000, 4) = 0x41424344",
		"b post read(0x2000, 4) = 0x41424344",
	}
	if err := strseq(log, compare); err != nil {
		t.Fatal(err)
	}
	if err := strseq(target.calls, []string{"read(0x2000, 4)"}); err != nil {
		t.Fatal(err)
	}
}

type redirect struct{}

func (redirect) EmulatorPreReadRequest(req *models.ReadRequest) { req.Address += 4 }

func TestReadRewrite(t *testing.T) {
	p := NewCallProxy()
	target := newMockTarget()
	target.mem[0x1004] = 7
	p.SetTarget(target)
	p.AddMonitor(redirect{})
	if val, err := p.HandleReadRequest(&models.ReadRequest{Address: 0x1000, Size: 4}); err != nil || val != 7 {
		t.Fatalf("pre hook rewrite not honored: %#x, %v", val, err)
	}
}

func TestWriteHooks(t *testing.T) {
	p := NewCallProxy()
	target := newMockTarget()
	p.SetTarget(target)
	var log []string
	first := &fullMonitor{readMonitor{recorder{"first", &log}}}
	second := &fullMonitor{readMonitor{recorder{"second", &log}}}
	p.AddMonitor(first)
	p.AddMonitor(second)

	if err := p.HandleWriteRequest(&models.WriteRequest{Address: 0x3000, Size: 2, Value: 0xbeef}); err != nil {
		t.Fatal(err)
	}
	compare := []string{
		"first pre write(0x3000, 2, 0xbeef)",
		"second pre write(0x3000, 2, 0xbeef)",
		"first post write(0x3000, 2, 0xbeef)",
		"second post write(0x3000, 2, 0xbeef)",
	}
	if err := strseq(log, compare); err != nil {
		t.Fatal(err)
	}
	if err := strseq(target.calls, []string{"write(0x3000, 2, 0xbeef)"}); err != nil {
		t.Fatal(err)
	}
}

func TestTargetError(t *testing.T) {
	p := NewCallProxy()
	target := newMockTarget()
	boom := errors.New("boom")
	target.fail = boom
	p.SetTarget(target)
	w := &postWriteOnly{}
	p.AddMonitor(w)
	if err := p.HandleWriteRequest(&models.WriteRequest{Address: 1, Size: 1}); errors.Cause(err) != boom {
		t.Fatalf("expected wrapped target error, got %v", err)
	}
	if w.n != 0 {
		t.Fatal("post hook ran after failed write")
	}
	if _, err := p.HandleReadRequest(&models.ReadRequest{Address: 1, Size: 1}); errors.Cause(err) != boom {
		t.Fatalf("expected wrapped target error, got %v", err)
	}
}

func TestSetCpuState(t *testing.T) {
	p := NewCallProxy()
	target := newMockTarget()
	p.SetTarget(target)
	req := &models.CpuStateRequest{CpuState: models.CpuState{
		"r10":  "0x10",
		"r2":   "ff",
		"cpsr": "0x60000030",
		"pc":   "0X8000",
	}}
	if err := p.HandleSetCpuStateRequest(req); err != nil {
		t.Fatal(err)
	}
	compare := []string{"set pc=0x8000", "set r2=0xff", "set r10=0x10"}
	if err := strseq(target.calls, compare); err != nil {
		t.Fatal(err)
	}
	if _, ok := target.regs["cpsr"]; ok {
		t.Fatal("cpsr was forwarded")
	}
	bad := &models.CpuStateRequest{CpuState: models.CpuState{"r0": "zz"}}
	if err := p.HandleSetCpuStateRequest(bad); err == nil {
		t.Fatal("invalid hex accepted")
	}
}

func TestGetCpuState(t *testing.T) {
	p := NewCallProxy()
	target := newMockTarget()
	for i := 0; i < 13; i++ {
		target.regs[fmt.Sprintf("r%d", i)] = uint64(i)
	}
	target.regs["sp"] = 0x7ff0
	target.regs["lr"] = 0x101
	target.regs["pc"] = 0x8000
	target.regs["cpsr"] = 0x30
	p.SetTarget(target)

	state, err := p.HandleGetCpuStateRequest(&models.CpuStateRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(state) != 16 {
		t.Fatalf("expected 16 entries, got %d: %s", len(state), state)
	}
	expect := map[string]string{
		"cpu_state_r0":  "0x0",
		"cpu_state_r12": "0xc",
		"cpu_state_r13": "0x7ff0",
		"cpu_state_r14": "0x101",
		"cpu_state_pc":  "0x8000",
	}
	for k, v := range expect {
		if state[k] != v {
			t.Errorf("%s = %q, expected %q", k, state[k], v)
		}
	}
	for i := 0; i <= 14; i++ {
		if _, ok := state[fmt.Sprintf("cpu_state_r%d", i)]; !ok {
			t.Errorf("missing cpu_state_r%d", i)
		}
	}
}

func TestContinueAndChecksum(t *testing.T) {
	p := NewCallProxy()
	target := newMockTarget()
	p.SetTarget(target)
	if err := p.HandleContinueRequest(&models.ContinueRequest{}); err != nil {
		t.Fatal(err)
	}
	out, err := p.HandleGetChecksumRequest(&models.ChecksumRequest{Address: 0x8000, Size: 0x100})
	if err != nil {
		t.Fatal(err)
	}
	if out != "0xcafe" {
		t.Fatalf("checksum returned %q", out)
	}
	compare := []string{"cont", "-gdb-show remote checksum 8000 100"}
	if err := strseq(target.calls, compare); err != nil {
		t.Fatal(err)
	}
}
