package replay

import (
	"os"

	"github.com/pkg/errors"

	"github.com/avatarproxy/avatar/go/cmd"
)

func Main(args []string) {
	c := cmd.NewAvatarCmd()
	c.ArgsUsage = "<script.yaml>"
	c.RunAvatar = func(args []string) error {
		if len(args) != 1 {
			c.Flags.Usage()
			return errors.New("expected one script")
		}
		f, err := os.Open(args[0])
		if err != nil {
			return errors.WithStack(err)
		}
		defer f.Close()
		script, err := ParseScript(f)
		if err != nil {
			return err
		}
		return Replay(c.Context(os.Stdout), script)
	}
	os.Exit(c.Run(args))
}

func init() { cmd.Register("replay", "run a yaml request script", Main) }
