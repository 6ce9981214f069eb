package cmd

import (
	"github.com/avatarproxy/avatar/go/models"
)

var RegsCmd = cmd(&Command{
	Name: "regs",
	Desc: "Show the cpu state reported by the proxy.",
	Run: func(c *Context) error {
		state, err := c.Emu.NotifyGetCpuState(&models.CpuStateRequest{})
		if err != nil {
			return err
		}
		for _, name := range state.Names() {
			c.Printf("%s %s\n", c.highlight(name), state[name])
		}
		return nil
	},
})

var SetRegCmd = cmd(&Command{
	Name: "setreg",
	Desc: "Set one register through the proxy.",
	Run: func(c *Context, name string, val uint64) error {
		state := models.CpuState{name: models.FormatHex(val)}
		return c.Emu.NotifySetCpuState(&models.CpuStateRequest{CpuState: state})
	},
})

var ContCmd = cmd(&Command{
	Name: "cont",
	Desc: "Resume the target.",
	Run: func(c *Context) error {
		return c.Emu.NotifyContinue(&models.ContinueRequest{})
	},
})
