package main

import (
	"github.com/avatarproxy/avatar/go/cmd"

	_ "github.com/avatarproxy/avatar/go/cmd/gdbstub"
	_ "github.com/avatarproxy/avatar/go/cmd/repl"
	_ "github.com/avatarproxy/avatar/go/cmd/replay"

	_ "github.com/avatarproxy/avatar/go/target/gdb"
	_ "github.com/avatarproxy/avatar/go/target/sim"
	_ "github.com/avatarproxy/avatar/go/target/unicorn"
)

func main() { cmd.Main() }
