package repl

import (
	"os"
	"path/filepath"

	"github.com/shibukawa/configdir"

	"github.com/avatarproxy/avatar/go/cmd"
	"github.com/avatarproxy/avatar/go/debug"
)

func historyFile() string {
	dirs := configdir.New("avatar", "avatar")
	cache := dirs.QueryCacheFolder()
	if err := cache.MkdirAll(); err != nil {
		return ""
	}
	return filepath.Join(cache.Path, "history")
}

func Main(args []string) {
	c := cmd.NewAvatarCmd()
	var script *string
	c.SetupFlags = func() error {
		script = c.Flags.String("script", "", "run console commands from file instead of the terminal")
		return nil
	}
	c.RunAvatar = func(args []string) error {
		d := debug.NewDebugger(c.Context(os.Stdout))
		if *script != "" {
			f, err := os.Open(*script)
			if err != nil {
				return err
			}
			defer f.Close()
			return d.RunScript(f)
		}
		return d.Run("avatar> ", historyFile())
	}
	os.Exit(c.Run(args))
}

func init() { cmd.Register("repl", "interactive request console", Main) }
