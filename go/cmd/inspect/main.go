package inspect

import (
	"os"

	"github.com/qbdl/qbdl/go/cmd"
)

func Main(args []string) {
	c := cmd.NewQbdlCmd("inspect")
	c.NoArgs = true
	dis := c.Flags.Int("dis", 0, "disassemble <n> instructions at the entry point")
	c.Main = func(args []string) error {
		exe, err := c.Open(args[0])
		if err != nil {
			return err
		}
		cmd.PrintBinary(os.Stdout, c.Config.Color, exe.Bin)
		if *dis > 0 {
			return cmd.PrintBinaryEntry(os.Stdout, exe.Machine, exe.Bin, *dis)
		}
		return nil
	}
	os.Exit(c.Run(args))
}

func init() { cmd.Register("inspect", "print the parsed object model of a binary", Main) }
