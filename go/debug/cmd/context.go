package cmd

import (
	"fmt"
	"io"

	"github.com/mgutz/ansi"

	"github.com/avatarproxy/avatar/go/emulator"
	"github.com/avatarproxy/avatar/go/models"
	"github.com/avatarproxy/avatar/go/plugins/memrange"
)

type Context struct {
	io.Writer
	Emu    *emulator.Emulator
	Target models.Target
	Arch   *models.Arch
	Ranges *memrange.Identifier
	Color  bool
}

func (c *Context) Printf(format string, a ...interface{}) (n int, err error) {
	return fmt.Fprintf(c, format, a...)
}

func (c *Context) Errorf(format string, a ...interface{}) (n int, err error) {
	s := fmt.Sprintf(format, a...)
	if c.Color {
		s = ansi.Color(s, "red")
	}
	return io.WriteString(c, s)
}

func (c *Context) highlight(s string) string {
	if c.Color {
		return ansi.Color(s, "cyan")
	}
	return s
}

// CpuState snapshots the target registers for memory requests.
func (c *Context) CpuState() (models.CpuState, error) {
	return models.ReadCpuState(c.Target, c.Arch)
}
