package cmd

import (
	"github.com/pkg/errors"

	"github.com/avatarproxy/avatar/go/models"
)

var ReadCmd = cmd(&Command{
	Name: "read",
	Desc: "Read a sized value through the proxy.",
	Run: func(c *Context, addr uint64, size int) error {
		state, err := c.CpuState()
		if err != nil {
			return err
		}
		val, err := c.Emu.NotifyRead(&models.ReadRequest{Address: addr, Size: size, CpuState: state})
		if err != nil {
			return err
		}
		c.Printf("%s = %s\n", c.highlight(models.FormatHex(addr)), models.FormatHex(val))
		return nil
	},
})

var WriteCmd = cmd(&Command{
	Name: "write",
	Desc: "Write a sized value through the proxy.",
	Run: func(c *Context, addr uint64, size int, val uint64) error {
		state, err := c.CpuState()
		if err != nil {
			return err
		}
		return c.Emu.NotifyWrite(&models.WriteRequest{Address: addr, Size: size, Value: val, CpuState: state})
	},
})

var ChecksumCmd = cmd(&Command{
	Name: "checksum",
	Desc: "Ask the target for a memory checksum.",
	Run: func(c *Context, addr, size uint64) error {
		out, err := c.Emu.NotifyGetChecksum(&models.ChecksumRequest{Address: addr, Size: size})
		if err != nil {
			return err
		}
		c.Printf("%s\n", out)
		return nil
	},
})

var MemCmd = cmd(&Command{
	Name: "mem",
	Desc: "Hexdump target memory.",
	Run: func(c *Context, addr, size uint64) error {
		mem, err := models.ReadMemory(c.Target, c.Arch.Order, addr, size)
		if err != nil {
			return err
		}
		for _, line := range models.HexDump(addr, mem, int(c.Arch.Bits)) {
			c.Printf("  %s\n", line)
		}
		return nil
	},
})

var PagesCmd = cmd(&Command{
	Name: "pages",
	Desc: "Show memory access counters per page.",
	Run: func(c *Context) error {
		if c.Ranges == nil {
			return errors.New("memory range identifier not running")
		}
		c.Printf("  %-12s %8s %8s %8s %8s %8s\n", "page", "read", "write", "exec", "stack", "io")
		for _, p := range c.Ranges.PageInfo() {
			c.Printf("  %-12s %8d %8d %8d %8d %8d\n", c.highlight(models.FormatHex(p.Address)), p.Read, p.Write, p.Execute, p.Stack, p.IO)
		}
		return nil
	},
})
