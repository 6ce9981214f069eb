package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lunixbochs/fvbommel-util/sortorder"
	"github.com/pkg/errors"
)

// CpuState maps register names to hexadecimal strings ("0x1f").
type CpuState map[string]string

// Names returns the register names in natural order (r2 before r10).
func (c CpuState) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return sortorder.NaturalLess(names[i], names[j]) })
	return names
}

// Uint parses a single register value.
func (c CpuState) Uint(name string) (uint64, error) {
	s, ok := c[name]
	if !ok {
		return 0, errors.Errorf("cpu state has no register %q", name)
	}
	val, err := ParseHex(s)
	return val, errors.Wrapf(err, "cpu state register %s", name)
}

func (c CpuState) String() string {
	var out []string
	for _, name := range c.Names() {
		out = append(out, name+"="+c[name])
	}
	return strings.Join(out, " ")
}

// ParseHex parses a hexadecimal number with or without a 0x prefix.
func ParseHex(s string) (uint64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, errors.New("empty hex value")
	}
	val, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid hex value %q", s)
	}
	return val, nil
}

// FormatHex renders a value as a lowercase 0x-prefixed string.
func FormatHex(val uint64) string {
	return fmt.Sprintf("%#x", val)
}

// ReadRequest is passed through the read hooks. Value is only meaningful once HasValue is set.
type ReadRequest struct {
	Address  uint64
	Size     int
	CpuState CpuState

	Value    uint64
	HasValue bool
}

func (r *ReadRequest) String() string {
	if r.HasValue {
		return fmt.Sprintf("read(%#x, %d) = %#x", r.Address, r.Size, r.Value)
	}
	return fmt.Sprintf("read(%#x, %d)", r.Address, r.Size)
}

type WriteRequest struct {
	Address  uint64
	Size     int
	Value    uint64
	CpuState CpuState
}

func (r *WriteRequest) String() string {
	return fmt.Sprintf("write(%#x, %d, %#x)", r.Address, r.Size, r.Value)
}

// CpuStateRequest carries register values for a set request. Get requests leave it empty.
type CpuStateRequest struct {
	CpuState CpuState
}

type ContinueRequest struct{}

type ChecksumRequest struct {
	Address uint64
	Size    uint64
}
