package replay

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	dcmd "github.com/avatarproxy/avatar/go/debug/cmd"
	"github.com/avatarproxy/avatar/go/models"
	"github.com/avatarproxy/avatar/go/plugins/memrange"
)

// Step is one emulator request. Expect, when set, must match the value a read returns.
type Step struct {
	Op     string            `yaml:"op"`
	Addr   uint64            `yaml:"addr"`
	Size   uint64            `yaml:"size"`
	Value  uint64            `yaml:"value"`
	Expect *uint64           `yaml:"expect"`
	State  map[string]string `yaml:"state"`
}

type Script struct {
	Steps []Step `yaml:"steps"`
}

func ParseScript(r io.Reader) (*Script, error) {
	var s Script
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "failed to parse script")
	}
	return &s, nil
}

// Report is written after the last step.
type Report struct {
	Steps int               `yaml:"steps"`
	Pages []memrange.PageInfo `yaml:"pages"`
}

func run(c *dcmd.Context, i int, s *Step) error {
	switch s.Op {
	case "read":
		state, err := c.CpuState()
		if err != nil {
			return err
		}
		val, err := c.Emu.NotifyRead(&models.ReadRequest{Address: s.Addr, Size: int(s.Size), CpuState: state})
		if err != nil {
			return err
		}
		c.Printf("%d: read %#x(%d) = %#x\n", i, s.Addr, s.Size, val)
		if s.Expect != nil && *s.Expect != val {
			return errors.Errorf("read %#x: expected %#x, got %#x", s.Addr, *s.Expect, val)
		}
	case "write":
		state, err := c.CpuState()
		if err != nil {
			return err
		}
		if err := c.Emu.NotifyWrite(&models.WriteRequest{Address: s.Addr, Size: int(s.Size), Value: s.Value, CpuState: state}); err != nil {
			return err
		}
		c.Printf("%d: write %#x(%d) = %#x\n", i, s.Addr, s.Size, s.Value)
	case "set_cpu_state":
		if err := c.Emu.NotifySetCpuState(&models.CpuStateRequest{CpuState: models.CpuState(s.State)}); err != nil {
			return err
		}
		c.Printf("%d: set_cpu_state %s\n", i, models.CpuState(s.State))
	case "get_cpu_state":
		state, err := c.Emu.NotifyGetCpuState(&models.CpuStateRequest{})
		if err != nil {
			return err
		}
		c.Printf("%d: get_cpu_state %s\n", i, state)
	case "cont":
		if err := c.Emu.NotifyContinue(&models.ContinueRequest{}); err != nil {
			return err
		}
		c.Printf("%d: cont\n", i)
	case "checksum":
		out, err := c.Emu.NotifyGetChecksum(&models.ChecksumRequest{Address: s.Addr, Size: s.Size})
		if err != nil {
			return err
		}
		c.Printf("%d: checksum %#x+%#x = %s\n", i, s.Addr, s.Size, out)
	default:
		return errors.Errorf("unknown op %q", s.Op)
	}
	return nil
}

// Replay issues every step through the emulator slots, stopping at the first
// failure, then writes a yaml page report.
func Replay(c *dcmd.Context, script *Script) error {
	for i := range script.Steps {
		if err := run(c, i, &script.Steps[i]); err != nil {
			return errors.Wrapf(err, "step %d", i)
		}
	}
	report := Report{Steps: len(script.Steps)}
	if c.Ranges != nil {
		if err := c.Ranges.Err(); err != nil {
			return err
		}
		report.Pages = c.Ranges.PageInfo()
	}
	out, err := yaml.Marshal(&report)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = c.Write(out)
	return err
}
