package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/avatarproxy/avatar/go/debug/cmd"
	"github.com/avatarproxy/avatar/go/emulator"
	"github.com/avatarproxy/avatar/go/models"
	"github.com/avatarproxy/avatar/go/plugins"
	"github.com/avatarproxy/avatar/go/plugins/memrange"
	"github.com/avatarproxy/avatar/go/proxy"
	"github.com/avatarproxy/avatar/go/system"
	"github.com/avatarproxy/avatar/go/target"
	"github.com/avatarproxy/avatar/go/target/sim"
)

// AvatarCmd wires a target, proxy, emulator slots and the memory range
// identifier from flags and config, then hands off to RunAvatar.
type AvatarCmd struct {
	Config *models.Config
	Log    zerolog.Logger

	SetupFlags func() error
	RunAvatar  func(args []string) error
	Teardown   func()

	// usage line suffix, e.g. "<script.yaml>"
	ArgsUsage string

	System *system.System
	Emu    *emulator.Emulator
	Proxy  *proxy.CallProxy
	Target models.Target
	Ranges *memrange.Identifier

	Flags *flag.FlagSet
}

func NewAvatarCmd() *AvatarCmd {
	return &AvatarCmd{Flags: flag.NewFlagSet("cli", flag.ExitOnError)}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func (c *AvatarCmd) PrintError(err error) {
	// print an error, and a stacktrace if available
	fmt.Fprintf(os.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	if err, ok := err.(stackTracer); ok {
		// parse full path and method name for each stack frame
		var frames [][]string
		for _, f := range err.StackTrace() {
			fullpath := ""
			fileline := fmt.Sprintf("%s:%d", f, f)
			method := fmt.Sprintf("%n", f)

			frame := fmt.Sprintf("%+s", f)
			tmp := strings.SplitN(frame, "\n", 3)
			if len(tmp) == 2 {
				pathsplit := strings.Split(tmp[0], "/")
				method = pathsplit[len(pathsplit)-1]
				fullpath = strings.TrimSpace(tmp[1])
			}
			frames = append(frames, []string{fullpath, fileline, method})
			if method == "main.main" {
				break
			}
		}
		widths := make([]int, 2)
		for _, f := range frames {
			for i, s := range f[:2] {
				if len(s) > widths[i] {
					widths[i] = len(s)
				}
			}
		}
		for _, f := range frames {
			for i := 0; i < 2; i++ {
				if widths[i] > 0 {
					pad := strings.Repeat(" ", widths[i]-len(f[i]))
					fmt.Fprintf(os.Stderr, "%s%s | ", f[i], pad)
				}
			}
			fmt.Fprintf(os.Stderr, "%s()\n", f[2])
		}
	}
}

// Context returns a console context bound to this command's stack.
func (c *AvatarCmd) Context(w io.Writer) *cmd.Context {
	return &cmd.Context{
		Writer: w,
		Emu:    c.Emu,
		Target: c.Target,
		Arch:   models.Arm,
		Ranges: c.Ranges,
		Color:  c.Config.Color,
	}
}

// loadConfig reads -config or the user config dir, then applies set flags.
func (c *AvatarCmd) loadConfig(path string, apply func(cfg *models.Config)) error {
	var cfg *models.Config
	var err error
	if path != "" {
		cfg, err = models.LoadConfig(path)
	} else {
		cfg, err = models.FindConfig()
	}
	if err != nil {
		return err
	}
	apply(cfg)
	if cfg.PageSize <= 0 {
		return errors.Errorf("invalid page size: %d", cfg.PageSize)
	}
	c.Config = cfg
	return nil
}

// Build constructs the request stack from c.Config.
func (c *AvatarCmd) Build() error {
	cfg := c.Config
	c.Log = cfg.NewLogger()
	t, err := target.New(cfg, c.Log)
	if err != nil {
		return err
	}
	c.Target = t
	c.System = system.NewSystem(c.Log)
	c.Emu = emulator.NewEmulator(c.System)
	c.Proxy = proxy.NewCallProxy()
	c.Proxy.Log = c.Log
	c.Proxy.SetTarget(t)
	emulator.Bind(c.Emu, c.Proxy)

	c.Ranges = memrange.NewIdentifier(c.System, cfg.PageSize)
	if err := c.Ranges.Init(plugins.Options{Verbose: cfg.Verbose, Log: c.Log}); err != nil {
		return err
	}
	if err := c.Ranges.Start(); err != nil {
		return err
	}
	c.Proxy.AddMonitor(c.Ranges)
	return nil
}

func (c *AvatarCmd) Run(argv []string) int {
	fs := c.Flags
	config := fs.String("config", "", "yaml config file (default: avatar.yaml in the user config dir)")
	targetName := fs.String("target", "", "target backend: "+strings.Join(target.Names(), ", "))
	remote := fs.String("remote", "", "host:port of the gdb stub for the gdb target")
	snapshot := fs.String("snapshot", "", "restore sim target state from file")
	savepost := fs.String("savepost", "", "save sim target state to file on exit")
	pageSize := fs.Int("page", 0, "memory range identifier page size")
	verbose := fs.Bool("v", false, "verbose output")
	color := fs.Bool("color", false, "colored output")
	outfile := fs.String("o", "", "redirect log output to file (default stderr)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] %s\n\nOptions:\n", argv[0], c.ArgsUsage)
		var flags []*flag.Flag
		fs.VisitAll(func(f *flag.Flag) { flags = append(flags, f) })
		models.PrintFlags(os.Stderr, flags)
	}
	if c.SetupFlags != nil {
		if err := c.SetupFlags(); err != nil {
			c.PrintError(err)
			return 1
		}
	}
	fs.Parse(argv[1:])

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	err := c.loadConfig(*config, func(cfg *models.Config) {
		if set["target"] {
			cfg.Target = *targetName
		}
		if set["remote"] {
			cfg.Remote = *remote
			if !set["target"] {
				cfg.Target = "gdb"
			}
		}
		if set["snapshot"] {
			cfg.Snapshot = *snapshot
		}
		if set["page"] {
			cfg.PageSize = *pageSize
		}
		cfg.Verbose = cfg.Verbose || *verbose
		cfg.Color = cfg.Color || *color
	})
	if err != nil {
		c.PrintError(err)
		return 1
	}
	if *outfile != "" {
		out, err := os.OpenFile(*outfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			c.PrintError(errors.Wrap(err, "failed to open log output"))
			return 1
		}
		defer out.Close()
		c.Config.Output = out
	}
	if err := c.Build(); err != nil {
		c.PrintError(err)
		return 1
	}
	teardown := func() {
		c.Ranges.Stop()
		if *savepost != "" {
			if s, ok := c.Target.(*sim.Target); ok {
				if err := s.SaveFile(*savepost); err != nil {
					c.PrintError(err)
				}
			} else {
				c.Log.Warn().Str("target", c.Config.Target).Msg("-savepost only works with the sim target")
			}
		}
		if closer, ok := c.Target.(io.Closer); ok {
			closer.Close()
		}
		if c.Teardown != nil {
			c.Teardown()
		}
	}
	defer teardown()

	if c.RunAvatar != nil {
		if err := c.RunAvatar(fs.Args()); err != nil {
			c.PrintError(err)
			return 1
		}
	}
	return 0
}
