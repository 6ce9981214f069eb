// Package proxy dispatches emulator requests to a single target and fires
// monitor hooks around memory accesses.
package proxy

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/avatarproxy/avatar/go/models"
)

// registers reported by HandleGetCpuStateRequest, in target naming
var cpuStateRegs = []struct{ key, reg string }{
	{"cpu_state_r0", "r0"},
	{"cpu_state_r1", "r1"},
	{"cpu_state_r2", "r2"},
	{"cpu_state_r3", "r3"},
	{"cpu_state_r4", "r4"},
	{"cpu_state_r5", "r5"},
	{"cpu_state_r6", "r6"},
	{"cpu_state_r7", "r7"},
	{"cpu_state_r8", "r8"},
	{"cpu_state_r9", "r9"},
	{"cpu_state_r10", "r10"},
	{"cpu_state_r11", "r11"},
	{"cpu_state_r12", "r12"},
	{"cpu_state_r13", "sp"},
	{"cpu_state_r14", "lr"},
	{"cpu_state_pc", "pc"},
}

// CallProxy forwards requests to a Target. It is not safe for concurrent use.
type CallProxy struct {
	Log zerolog.Logger

	target   models.Target
	monitors map[string][]models.Monitor
}

func NewCallProxy() *CallProxy {
	p := &CallProxy{
		Log:      zerolog.Nop(),
		monitors: make(map[string][]models.Monitor, len(models.MonitorEvents)),
	}
	for _, name := range models.MonitorEvents {
		p.monitors[name] = nil
	}
	return p
}

func (p *CallProxy) SetTarget(target models.Target) {
	p.target = target
}

func (p *CallProxy) Target() models.Target {
	return p.target
}

func subscribes(m models.Monitor, event string) bool {
	switch event {
	case models.EMULATOR_PRE_READ_REQUEST:
		_, ok := m.(models.PreReadMonitor)
		return ok
	case models.EMULATOR_POST_READ_REQUEST:
		_, ok := m.(models.PostReadMonitor)
		return ok
	case models.EMULATOR_PRE_WRITE_REQUEST:
		_, ok := m.(models.PreWriteMonitor)
		return ok
	case models.EMULATOR_POST_WRITE_REQUEST:
		_, ok := m.(models.PostWriteMonitor)
		return ok
	}
	return false
}

// keyable reports whether m can be used as a list key. Slice, map and
// func monitors cannot.
func keyable(m models.Monitor) bool {
	return m != nil && reflect.TypeOf(m).Comparable()
}

func indexOf(list []models.Monitor, m models.Monitor) int {
	if !keyable(m) {
		return -1
	}
	for i, v := range list {
		if v == m {
			return i
		}
	}
	return -1
}

// AddMonitor subscribes m to every event it has a hook for. A monitor is only
// listed once per event. Monitors must be comparable, usually pointers;
// others are logged and ignored.
func (p *CallProxy) AddMonitor(m models.Monitor) {
	if !keyable(m) {
		p.Log.Warn().Str("monitor", fmt.Sprintf("%T", m)).Msg("monitor is not comparable, ignored")
		return
	}
	for _, event := range models.MonitorEvents {
		if !subscribes(m, event) || indexOf(p.monitors[event], m) >= 0 {
			continue
		}
		p.monitors[event] = append(p.monitors[event], m)
		p.Log.Debug().Str("event", event).Str("monitor", fmt.Sprintf("%T", m)).Msg("monitor added")
	}
}

func (p *CallProxy) RemoveMonitor(m models.Monitor) {
	for _, event := range models.MonitorEvents {
		list := p.monitors[event]
		if i := indexOf(list, m); i >= 0 {
			p.monitors[event] = append(list[:i:i], list[i+1:]...)
		}
	}
}

// Monitors returns a copy of the subscription list for one event.
func (p *CallProxy) Monitors(event string) []models.Monitor {
	return append([]models.Monitor(nil), p.monitors[event]...)
}

func (p *CallProxy) HandleReadRequest(req *models.ReadRequest) (uint64, error) {
	if p.target == nil {
		return 0, models.ErrNoTarget
	}
	req.Value, req.HasValue = 0, false
	for _, m := range p.monitors[models.EMULATOR_PRE_READ_REQUEST] {
		m.(models.PreReadMonitor).EmulatorPreReadRequest(req)
	}
	val, err := p.target.ReadTypedMemory(req.Address, req.Size)
	if err != nil {
		return 0, errors.Wrapf(err, "read %#x(%d)", req.Address, req.Size)
	}
	req.Value, req.HasValue = val, true
	for _, m := range p.monitors[models.EMULATOR_POST_READ_REQUEST] {
		m.(models.PostReadMonitor).EmulatorPostReadRequest(req)
	}
	p.Log.Debug().Stringer("req", req).Msg("read")
	return req.Value, nil
}

func (p *CallProxy) HandleWriteRequest(req *models.WriteRequest) error {
	if p.target == nil {
		return models.ErrNoTarget
	}
	for _, m := range p.monitors[models.EMULATOR_PRE_WRITE_REQUEST] {
		m.(models.PreWriteMonitor).EmulatorPreWriteRequest(req)
	}
	if err := p.target.WriteTypedMemory(req.Address, req.Size, req.Value); err != nil {
		return errors.Wrapf(err, "write %#x(%d)", req.Address, req.Size)
	}
	for _, m := range p.monitors[models.EMULATOR_POST_WRITE_REQUEST] {
		m.(models.PostWriteMonitor).EmulatorPostWriteRequest(req)
	}
	p.Log.Debug().Stringer("req", req).Msg("write")
	return nil
}

// HandleSetCpuStateRequest writes every register except cpsr, in natural name order.
func (p *CallProxy) HandleSetCpuStateRequest(req *models.CpuStateRequest) error {
	if p.target == nil {
		return models.ErrNoTarget
	}
	for _, name := range req.CpuState.Names() {
		if name == "cpsr" {
			continue
		}
		val, err := req.CpuState.Uint(name)
		if err != nil {
			return err
		}
		if err := p.target.SetRegister(name, val); err != nil {
			return errors.Wrapf(err, "set register %s", name)
		}
	}
	return nil
}

func (p *CallProxy) HandleGetCpuStateRequest(req *models.CpuStateRequest) (models.CpuState, error) {
	if p.target == nil {
		return nil, models.ErrNoTarget
	}
	state := make(models.CpuState, len(cpuStateRegs))
	for _, r := range cpuStateRegs {
		val, err := p.target.GetRegister(r.reg)
		if err != nil {
			return nil, errors.Wrapf(err, "get register %s", r.reg)
		}
		state[r.key] = models.FormatHex(val)
	}
	return state, nil
}

func (p *CallProxy) HandleContinueRequest(req *models.ContinueRequest) error {
	if p.target == nil {
		return models.ErrNoTarget
	}
	return errors.Wrap(p.target.Cont(), "continue")
}

// ChecksumCommand renders the debugger command used for checksum requests.
func ChecksumCommand(addr, size uint64) string {
	return fmt.Sprintf("-gdb-show remote checksum %x %x", addr, size)
}

func (p *CallProxy) HandleGetChecksumRequest(req *models.ChecksumRequest) (string, error) {
	if p.target == nil {
		return "", models.ErrNoTarget
	}
	out, err := p.target.ExecuteGdbCommand(ChecksumCommand(req.Address, req.Size))
	if err != nil {
		return "", errors.Wrap(err, "checksum")
	}
	return out, nil
}
