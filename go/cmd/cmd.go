package cmd

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/arch"
	"github.com/qbdl/qbdl/go/host"
	"github.com/qbdl/qbdl/go/kernel/libc"
	"github.com/qbdl/qbdl/go/loader"
	"github.com/qbdl/qbdl/go/models"
)

// ExitStatus is returned by a command to exit with a status other than 0 or 1.
type ExitStatus int

func (e ExitStatus) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

type QbdlCmd struct {
	Config *models.Config

	SetupFlags func() error
	// Main runs the command. args[0] is the executable.
	Main func(args []string) error

	NoArgs bool

	Flags    *flag.FlagSet
	ArchName string
}

func NewQbdlCmd(name string) *QbdlCmd {
	return &QbdlCmd{Flags: flag.NewFlagSet(name, flag.ExitOnError)}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

type causer interface {
	Cause() error
}

// deepest stack trace in err's cause chain
func findStack(err error) stackTracer {
	var st stackTracer
	for err != nil {
		if s, ok := err.(stackTracer); ok {
			st = s
		}
		c, ok := err.(causer)
		if !ok {
			break
		}
		err = c.Cause()
	}
	return st
}

func (c *QbdlCmd) PrintError(err error) {
	// print an error, and a stacktrace if available
	fmt.Fprintf(os.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	st := findStack(err)
	if st == nil {
		return
	}
	// parse full path and method name for each stack frame
	var frames [][]string
	for _, f := range st.StackTrace() {
		fullpath := ""
		fileline := fmt.Sprintf("%s:%d", f, f)
		method := fmt.Sprintf("%n", f)

		frame := fmt.Sprintf("%+s", f)
		tmp := strings.SplitN(frame, "\n", 3)
		if len(tmp) == 2 {
			pathsplit := strings.Split(tmp[0], "/")
			method = pathsplit[len(pathsplit)-1]
			fullpath = strings.TrimSpace(tmp[1])
		}
		frames = append(frames, []string{fullpath, fileline, method})
		if method == "main.main" {
			break
		}
	}
	// calculate column widths
	widths := make([]int, 3)
	for _, f := range frames {
		for i, s := range f {
			if len(s) > widths[i] {
				widths[i] = len(s)
			}
		}
	}
	// print pretty stacktrace
	for _, f := range frames {
		method := f[2]
		for i := 0; i < 2; i++ {
			if widths[i] > 0 {
				pad := strings.Repeat(" ", widths[i]-len(f[i]))
				fmt.Fprintf(os.Stderr, "%s%s | ", f[i], pad)
			}
		}
		fmt.Fprintf(os.Stderr, "%s()\n", method)
	}
}

// Run parses flags from argv[1:] and calls Main. It returns the process exit status.
func (c *QbdlCmd) Run(argv []string) int {
	fs := c.Flags
	verbose := fs.Bool("v", false, "verbose output")
	color := fs.Bool("color", false, "color output")
	bind := fs.String("bind", "now", "binding mode: now, lazy or none")
	base := fs.Uint64("base", 0, "force image base address")
	symbols := fs.String("symbols", "", "symbol map of \"name address\" lines (default: the qbdl config folders)")
	fs.StringVar(&c.ArchName, "arch", "", "target architecture (default: the binary's)")
	outfile := fs.String("o", "", "redirect debugging output to file (default stderr)")

	fs.Usage = func() {
		usage := "Usage: %s [options] <exe>"
		if !c.NoArgs {
			usage += " [args...]"
		}
		usage += "\n\nOptions:\n"
		fmt.Fprintf(os.Stderr, usage, argv[0])
		var flags []*flag.Flag
		fs.VisitAll(func(f *flag.Flag) { flags = append(flags, f) })
		models.PrintFlags(os.Stderr, flags)
	}
	if c.SetupFlags != nil {
		if err := c.SetupFlags(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	fs.Parse(argv[1:])
	args := fs.Args()
	if len(args) < 1 || (c.NoArgs && len(args) > 1) {
		fs.Usage()
		return 1
	}
	mode, err := models.ParseBindMode(*bind)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	config := &models.Config{
		Color:     *color,
		Verbose:   *verbose,
		ForceBase: *base,
		Bind:      mode,
		Symbols:   *symbols,
	}
	if *outfile != "" {
		out, err := os.OpenFile(*outfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			c.PrintError(errors.WithStack(err))
			return 1
		}
		defer out.Close()
		config.Output = out
	}
	c.Config = config.Init()

	if err := c.Main(args); err != nil {
		if e, ok := errors.Cause(err).(ExitStatus); ok {
			return int(e)
		}
		c.PrintError(err)
		return 1
	}
	return 0
}

// Exe is an executable read from disk with the machine that runs it.
type Exe struct {
	Path    string
	Raw     []byte
	Bin     *models.Binary
	Machine *models.Machine
}

// Open reads path and parses it. The machine comes from -arch, or the binary.
func (c *QbdlCmd) Open(path string) (*Exe, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	exe := &Exe{Path: path, Raw: raw}
	var want *models.Machine
	if c.ArchName != "" {
		if want, err = arch.GetMachine(c.ArchName); err != nil {
			return nil, err
		}
	}
	p, err := loader.Detect(raw, nil)
	if err != nil {
		return nil, models.KindError(models.MalformedBinary, err)
	}
	if mp, ok := p.(*loader.MachOParser); ok && want != nil {
		mp.Select = func(bin *models.Binary) bool { return bin.Arch.Compatible(want.Arch) }
	}
	if exe.Bin, err = p.Parse(raw); err != nil {
		return nil, models.KindError(models.MalformedBinary, err)
	}
	exe.Machine = want
	if want == nil {
		if exe.Machine, err = arch.ForArch(exe.Bin.Arch); err != nil {
			return nil, models.KindError(models.IncompatibleArchitecture, err)
		}
	}
	return exe, nil
}

// System builds a host policy over mem with the libc host functions and the configured symbol map.
func (c *QbdlCmd) System(m *models.Machine, mem models.TargetMemory) (*host.System, error) {
	sys := host.NewSystem(m, mem, c.Config)
	sys.Kernels = append(sys.Kernels, libc.NewKernel(m.Arch, mem))
	if err := sys.AddSymbols(c.Config.Symbols); err != nil {
		return nil, err
	}
	return sys, nil
}
