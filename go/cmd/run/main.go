package run

import (
	"os"

	"github.com/qbdl/qbdl/go/cmd"
	"github.com/qbdl/qbdl/go/emu"
)

func Main(args []string) {
	c := cmd.NewQbdlCmd("run")
	c.Main = func(args []string) error {
		exe, err := c.Open(args[0])
		if err != nil {
			return err
		}
		r, err := emu.New(exe.Machine, c.Config)
		if err != nil {
			return err
		}
		defer r.Close()
		if err := r.Sys.AddSymbols(c.Config.Symbols); err != nil {
			return err
		}
		if err := r.LoadFile(exe.Path); err != nil {
			return err
		}
		if c.Config.Verbose {
			c.Config.Printf("%s\n", r.Image)
			r.Image.PrintBindings(c.Config.Output, c.Config.Color)
			cmd.PrintEntry(c.Config, exe.Machine, r.Mem, r.Image.Entry)
		}
		if err := r.Run(args...); err != nil {
			return err
		}
		if code := r.ExitCode(); code != 0 {
			return cmd.ExitStatus(code)
		}
		return nil
	}
	os.Exit(c.Run(args))
}

func init() { cmd.Register("run", "load and emulate a binary", Main) }
