// Package memrange classifies memory pages by how the firmware accesses them.
package memrange

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/avatarproxy/avatar/go/models"
	"github.com/avatarproxy/avatar/go/plugins"
)

const DefaultPageSize = 512

// Access kinds counted per byte.
const (
	READ = iota
	WRITE
	EXECUTE
	STACK
	IO
	numKinds
)

var kindNames = [numKinds]string{"read", "write", "execute", "stack", "io"}

// thumb state bit in cpsr
const cpsrThumb = 1 << 5

type page struct {
	counts [numKinds][]uint64
	// last known byte values, -1 if never seen
	data []int16
}

func newPage(size int) *page {
	p := &page{data: make([]int16, size)}
	for i := range p.counts {
		p.counts[i] = make([]uint64, size)
	}
	for i := range p.data {
		p.data[i] = -1
	}
	return p
}

// PageInfo is the per-page access summary.
type PageInfo struct {
	Address uint64 `yaml:"address"`
	Read    uint64 `yaml:"read"`
	Write   uint64 `yaml:"write"`
	Execute uint64 `yaml:"execute"`
	Stack   uint64 `yaml:"stack"`
	IO      uint64 `yaml:"io"`
}

// Identifier listens for emulator memory events and keeps per-byte access
// counters. It also acts as a post-read monitor on the proxy, where it sees
// fetched values and marks bytes whose value changed without a write as io.
type Identifier struct {
	bus      plugins.Bus
	pageSize uint64
	pages    map[uint64]*page
	verbose  bool
	log      zerolog.Logger
	// first error seen while processing events
	err error
}

var _ plugins.Plugin = (*Identifier)(nil)
var _ models.PostReadMonitor = (*Identifier)(nil)

func NewIdentifier(bus plugins.Bus, pageSize int) *Identifier {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Identifier{
		bus:      bus,
		pageSize: uint64(pageSize),
		pages:    make(map[uint64]*page),
		log:      zerolog.Nop(),
	}
}

func (m *Identifier) Init(opts plugins.Options) error {
	m.verbose = opts.Verbose
	m.log = opts.Log
	return nil
}

func (m *Identifier) Start() error {
	if m.bus == nil {
		return errors.New("memrange: no event bus")
	}
	m.bus.RegisterEventListener(m)
	return nil
}

func (m *Identifier) Stop() error {
	if m.bus == nil {
		return errors.New("memrange: no event bus")
	}
	m.bus.UnregisterEventListener(m)
	return nil
}

// Err returns the first error hit while processing events.
func (m *Identifier) Err() error {
	return m.err
}

func (m *Identifier) fail(err error) {
	if err == nil {
		return
	}
	m.log.Warn().Err(err).Msg("memrange")
	if m.err == nil {
		m.err = err
	}
}

func (m *Identifier) getPage(addr uint64) *page {
	base := addr / m.pageSize * m.pageSize
	p, ok := m.pages[base]
	if !ok {
		p = newPage(int(m.pageSize))
		m.pages[base] = p
		m.log.Debug().Uint64("page", base).Msg("added page")
	}
	return p
}

func (m *Identifier) check(addr uint64, size int) error {
	if !models.ValidSize(size) {
		return errors.Errorf("invalid access size %d at %#x", size, addr)
	}
	if addr/m.pageSize != (addr+uint64(size)-1)/m.pageSize {
		return errors.Errorf("access %#x(%d) crosses a page boundary", addr, size)
	}
	return nil
}

func (m *Identifier) mark(addr uint64, size int, kind int) error {
	if err := m.check(addr, size); err != nil {
		return err
	}
	p := m.getPage(addr)
	off := addr % m.pageSize
	for i := uint64(0); i < uint64(size); i++ {
		p.counts[kind][off+i]++
	}
	return nil
}

// little-endian only
func (m *Identifier) writeData(addr uint64, size int, val uint64) error {
	if err := m.check(addr, size); err != nil {
		return err
	}
	p := m.getPage(addr)
	off := addr % m.pageSize
	for i := 0; i < size; i++ {
		p.data[off+uint64(i)] = int16(val >> (8 * uint(i)) & 0xff)
	}
	return nil
}

// cachedData returns false if any byte in the range is unknown.
func (m *Identifier) cachedData(addr uint64, size int) (uint64, bool, error) {
	if err := m.check(addr, size); err != nil {
		return 0, false, err
	}
	p := m.getPage(addr)
	off := addr % m.pageSize
	var val uint64
	for i := 0; i < size; i++ {
		b := p.data[off+uint64(i)]
		if b < 0 {
			return 0, false, nil
		}
		val |= uint64(b) << (8 * uint(i))
	}
	return val, true, nil
}

func (m *Identifier) addStackPointer(sp, cpsr uint64) error {
	if m.verbose {
		m.log.Info().Str("type", "sp").Uint64("sp", sp).Uint64("cpsr", cpsr).Msg("")
	}
	return m.mark(sp, 4, STACK)
}

func (m *Identifier) addProgramCounter(pc, cpsr uint64) error {
	if m.verbose {
		m.log.Info().Str("type", "pc").Uint64("pc", pc).Uint64("cpsr", cpsr).Msg("")
	}
	if cpsr&cpsrThumb != 0 {
		return m.mark(pc, 2, EXECUTE)
	}
	return m.mark(pc, 4, EXECUTE)
}

func (m *Identifier) addRead(cpsr, addr uint64, size int) error {
	if m.verbose {
		m.log.Info().Str("type", "read").Uint64("address", addr).Int("size", size).Uint64("cpsr", cpsr).Msg("")
	}
	return m.mark(addr, size, READ)
}

// addReadValue records io when a fetched value differs from the cached one.
func (m *Identifier) addReadValue(addr uint64, size int, val uint64) error {
	stored, ok, err := m.cachedData(addr, size)
	if err != nil || !ok || stored == val {
		return err
	}
	m.log.Debug().Uint64("stored", stored).Uint64("value", val).Msg("io detected")
	if err := m.mark(addr, size, IO); err != nil {
		return err
	}
	return m.writeData(addr, size, val)
}

func (m *Identifier) addWrite(cpsr, addr uint64, size int, val uint64) error {
	if m.verbose {
		m.log.Info().Str("type", "write").Uint64("address", addr).Int("size", size).Uint64("value", val).Uint64("cpsr", cpsr).Msg("")
	}
	if err := m.mark(addr, size, WRITE); err != nil {
		return err
	}
	return m.writeData(addr, size, val)
}

func (m *Identifier) ProcessEvent(evt *models.Event) {
	if evt.Source != models.SOURCE_EMULATOR {
		return
	}
	var state models.CpuState
	switch req := evt.Properties.(type) {
	case *models.WriteRequest:
		if !evt.HasTag(models.EVENT_REQUEST_WRITE_MEMORY_VALUE) {
			return
		}
		state = req.CpuState
		cpsr, err := state.Uint("cpsr")
		if err != nil {
			m.fail(err)
			return
		}
		m.fail(m.addWrite(cpsr, req.Address, req.Size, req.Value))
	case *models.ReadRequest:
		if !evt.HasTag(models.EVENT_REQUEST_READ_MEMORY_VALUE) {
			return
		}
		state = req.CpuState
		cpsr, err := state.Uint("cpsr")
		if err != nil {
			m.fail(err)
			return
		}
		// values are compared in EmulatorPostReadRequest once fetched
		m.fail(m.addRead(cpsr, req.Address, req.Size))
	default:
		return
	}
	m.fail(m.markState(state))
}

func (m *Identifier) markState(state models.CpuState) error {
	cpsr, err := state.Uint("cpsr")
	if err != nil {
		return err
	}
	sp, err := state.Uint("r13")
	if err != nil {
		return err
	}
	pc, err := state.Uint("pc")
	if err != nil {
		return err
	}
	if err := m.addStackPointer(sp, cpsr); err != nil {
		return err
	}
	return m.addProgramCounter(pc, cpsr)
}

// EmulatorPostReadRequest runs after the proxy fetched the value.
func (m *Identifier) EmulatorPostReadRequest(req *models.ReadRequest) {
	if req.HasValue {
		m.fail(m.addReadValue(req.Address, req.Size, req.Value))
	}
}

// PageInfo returns per-page access totals sorted by address.
func (m *Identifier) PageInfo() []PageInfo {
	out := make([]PageInfo, 0, len(m.pages))
	for addr, p := range m.pages {
		var sums [numKinds]uint64
		for k := range p.counts {
			for _, n := range p.counts[k] {
				sums[k] += n
			}
		}
		out = append(out, PageInfo{
			Address: addr,
			Read:    sums[READ],
			Write:   sums[WRITE],
			Execute: sums[EXECUTE],
			Stack:   sums[STACK],
			IO:      sums[IO],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Count returns the counter of one access kind for a single byte.
func (m *Identifier) Count(addr uint64, kind int) uint64 {
	p, ok := m.pages[addr/m.pageSize*m.pageSize]
	if !ok || kind < 0 || kind >= numKinds {
		return 0
	}
	return p.counts[kind][addr%m.pageSize]
}

func KindName(kind int) string {
	if kind < 0 || kind >= numKinds {
		return "unknown"
	}
	return kindNames[kind]
}
