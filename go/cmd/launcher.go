package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

type command struct {
	name, desc string
	main       func(args []string)
}

var commands = make(map[string]*command)
var order []string

// Register adds a subcommand. main gets os.Args with the command folded into args[0].
func Register(name, desc string, main func(args []string)) {
	if _, ok := commands[name]; !ok {
		order = append(order, name)
	}
	commands[name] = &command{name, desc, main}
}

func usage(w io.Writer, prog string) {
	pad := 0
	for _, name := range order {
		if len(name) > pad {
			pad = len(name)
		}
	}
	fmt.Fprintln(w, "Commands:")
	for _, name := range order {
		fmt.Fprintf(w, "  %-*s | %s\n", pad, name, commands[name].desc)
	}
	fmt.Fprintf(w, "\nExample: %s run -v -bind lazy bins/hello.x86_64.macho\n\n", prog)
}

// dispatch finds the command for argv and the arguments to call it with.
func dispatch(argv []string) (*command, []string, error) {
	if len(argv) < 2 {
		return nil, nil, errors.Errorf("no command given")
	}
	cmd, ok := commands[argv[1]]
	if !ok {
		return nil, nil, errors.Errorf("Command '%s' not found.", argv[1])
	}
	return cmd, append([]string{strings.Join(argv[:2], " ")}, argv[2:]...), nil
}

func Main() {
	cmd, args, err := dispatch(os.Args)
	if err != nil {
		if len(os.Args) >= 2 {
			fmt.Fprintf(os.Stderr, "%s\n\n", err)
		}
		usage(os.Stderr, os.Args[0])
		os.Exit(1)
	}
	cmd.main(args)
}
