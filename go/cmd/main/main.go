package main

import (
	"github.com/qbdl/qbdl/go/cmd"

	_ "github.com/qbdl/qbdl/go/cmd/inspect"
	_ "github.com/qbdl/qbdl/go/cmd/load"
	_ "github.com/qbdl/qbdl/go/cmd/run"
)

func main() { cmd.Main() }
