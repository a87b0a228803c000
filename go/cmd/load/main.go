package load

import (
	"os"

	"github.com/pkg/errors"

	qbdl "github.com/qbdl/qbdl/go"
	"github.com/qbdl/qbdl/go/cmd"
	"github.com/qbdl/qbdl/go/loader"
	"github.com/qbdl/qbdl/go/models"
	"github.com/qbdl/qbdl/go/models/cpu"
)

func Main(args []string) {
	c := cmd.NewQbdlCmd("load")
	c.NoArgs = true
	save := c.Flags.String("save", "", "write a snapshot of the loaded image to <file>")
	c.Main = func(args []string) error {
		exe, err := c.Open(args[0])
		if err != nil {
			return err
		}
		a := exe.Machine.Arch
		mem := cpu.NewMem(uint(a.Bits), a.ByteOrder())
		sys, err := c.System(exe.Machine, mem)
		if err != nil {
			return err
		}
		p, err := loader.Detect(exe.Raw, sys)
		if err != nil {
			return models.KindError(models.MalformedBinary, err)
		}
		img, err := qbdl.Load(p, exe.Raw, a, sys, c.Config.Bind, qbdl.WithConfig(c.Config))
		if err != nil {
			return err
		}
		cmd.PrintImage(os.Stdout, c.Config.Color, img)
		if c.Config.Verbose {
			cmd.PrintEntry(c.Config, exe.Machine, mem, img.Entry)
		}
		if *save != "" {
			f, err := os.Create(*save)
			if err != nil {
				return errors.WithStack(err)
			}
			defer f.Close()
			if err := models.SaveImage(f, img, mem); err != nil {
				return err
			}
			c.Config.Debugf("[load] snapshot written to %s\n", *save)
		}
		return nil
	}
	os.Exit(c.Run(args))
}

func init() { cmd.Register("load", "map a binary into simulated memory and print its bindings", Main) }
