package cmd

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/lunixbochs/argjoy"
	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
)

type Command struct {
	Name string
	Desc string
	// func(c *Context, args...) error, with uint64, int or string args
	Run interface{}
}

var Commands = make(map[string]*Command)

func cmd(c *Command) *Command {
	fn := reflect.ValueOf(c.Run)
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		panic(fmt.Sprintf("Command.Run must be a func: got (%T) %#v\n", c.Run, c.Run))
	}
	Commands[c.Name] = c
	return c
}

// converts shell words into command arguments
func argCodec(arg interface{}, vals []interface{}) error {
	s, ok := vals[0].(string)
	if !ok {
		return argjoy.NoMatch
	}
	switch v := arg.(type) {
	case *uint64:
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return errors.Errorf("invalid number %q", s)
		}
		*v = n
	case *int:
		n, err := strconv.ParseInt(s, 0, 0)
		if err != nil {
			return errors.Errorf("invalid number %q", s)
		}
		*v = int(n)
	case *string:
		*v = s
	default:
		return argjoy.NoMatch
	}
	return nil
}

var aj = argjoy.NewArgjoy()

func init() { aj.Register(argCodec) }

func (c *Command) call(ctx *Context, args []string) error {
	fn := reflect.ValueOf(c.Run)
	typ := fn.Type()
	in := make([]reflect.Type, typ.NumIn()-1)
	for i := range in {
		in[i] = typ.In(i + 1)
	}
	if len(args) != len(in) {
		return errors.Errorf("usage: %s", c.Usage())
	}
	converted, err := aj.Convert(in, false, args)
	if err != nil {
		return err
	}
	out := fn.Call(append([]reflect.Value{reflect.ValueOf(ctx)}, converted...))
	if len(out) > 0 {
		if err, ok := out[0].Interface().(error); ok {
			return err
		}
	}
	return nil
}

// Usage renders the argument list from the Run signature.
func (c *Command) Usage() string {
	typ := reflect.TypeOf(c.Run)
	s := c.Name
	for i := 1; i < typ.NumIn(); i++ {
		s += fmt.Sprintf(" <%s>", typ.In(i))
	}
	return s
}

// Run parses and executes a single console line. Command errors are printed,
// not returned.
func Run(c *Context, line string) error {
	args, err := shellwords.Parse(line)
	if err != nil {
		c.Printf("parse error: %v\n", err)
		return nil
	}
	if len(args) == 0 {
		return nil
	}
	name, args := args[0], args[1:]
	if cmd, ok := Commands[name]; ok {
		if err := cmd.call(c, args); err != nil {
			c.Errorf("error: %v\n", err)
		}
	} else {
		c.Printf("command not found.\n")
	}
	return nil
}

var HelpCmd = cmd(&Command{
	Name: "help",
	Desc: "List commands.",
	Run: func(c *Context) error {
		var names []string
		for name := range Commands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			cmd := Commands[name]
			c.Printf("  %-28s %s\n", cmd.Usage(), cmd.Desc)
		}
		return nil
	},
})
