package gdbstub

import (
	"os"
	"strconv"

	"github.com/avatarproxy/avatar/go/cmd"
	"github.com/avatarproxy/avatar/go/debug"
	"github.com/avatarproxy/avatar/go/emulator"
	"github.com/avatarproxy/avatar/go/models"
)

func Main(args []string) {
	c := cmd.NewAvatarCmd()
	var host *string
	var port *int
	var once, direct *bool
	c.SetupFlags = func() error {
		host = c.Flags.String("host", "localhost", "listen address")
		port = c.Flags.Int("port", 1234, "listen port")
		once = c.Flags.Bool("once", false, "exit after the first gdb session")
		direct = c.Flags.Bool("direct", false, "serve the target itself, bypassing proxy monitors")
		return nil
	}
	c.RunAvatar = func(args []string) error {
		front := emulator.NewFrontend(c.Emu, c.Target, models.Arm)
		var t models.Target = front
		if *direct {
			t = c.Target
		}
		stub := debug.NewGdbstub(t, models.Arm, c.Log)
		for {
			conn, err := debug.Accept(*host, strconv.Itoa(*port), c.Log)
			if err != nil {
				return err
			}
			front.Invalidate()
			stub.Run(conn)
			if *once {
				return nil
			}
		}
	}
	os.Exit(c.Run(args))
}

func init() { cmd.Register("gdbstub", "serve the target to gdb", Main) }
