package debug

import (
	"bufio"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"

	"github.com/avatarproxy/avatar/go/debug/cmd"
)

// Debugger is the interactive request console.
type Debugger struct {
	ctx *cmd.Context
}

func NewDebugger(ctx *cmd.Context) *Debugger {
	return &Debugger{ctx}
}

func completer() *readline.PrefixCompleter {
	var names []string
	for name := range cmd.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	items := make([]readline.PrefixCompleterInterface, len(names))
	for i, name := range names {
		items[i] = readline.PcItem(name)
	}
	return readline.NewPrefixCompleter(items...)
}

// Run reads commands from the terminal until EOF or "quit".
func (d *Debugger) Run(prompt, history string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:       prompt,
		HistoryFile:  history,
		AutoComplete: completer(),
	})
	if err != nil {
		return errors.Wrap(err, "error opening readline for debugger")
	}
	defer rl.Close()
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "error in readline")
		}
		if done, err := d.line(line); done || err != nil {
			return err
		}
	}
}

// RunScript executes one command per line from r.
func (d *Debugger) RunScript(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if done, err := d.line(scanner.Text()); done || err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (d *Debugger) line(line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "quit" || line == "exit" {
		return true, nil
	}
	if strings.HasPrefix(line, "#") {
		return false, nil
	}
	return false, errors.Wrap(cmd.Run(d.ctx, line), "error in command")
}
