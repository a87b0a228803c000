package emu

import (
	"github.com/pkg/errors"

	qbdl "github.com/qbdl/qbdl/go"
	qcpu "github.com/qbdl/qbdl/go/cpu"
	"github.com/qbdl/qbdl/go/host"
	co "github.com/qbdl/qbdl/go/kernel/common"
	"github.com/qbdl/qbdl/go/kernel/libc"
	"github.com/qbdl/qbdl/go/models"
	"github.com/qbdl/qbdl/go/models/cpu"
)

const (
	StackBase = 0x60000000
	StackSize = 0x100000
	// name of the stub the entry point returns to
	exitStub = "<exit>"
)

// Runner loads a binary into an emulator and runs it from the entry point.
// Imports bound to host functions run as Go code.
type Runner struct {
	Machine *models.Machine
	Cpu     cpu.Cpu
	Mem     *qcpu.Memory
	Sys     *host.System
	Libc    *libc.LibcKernel
	Config  *models.Config
	Image   *models.LoadedImage

	exit *host.Stub
	err  error
}

func New(m *models.Machine, conf *models.Config) (*Runner, error) {
	conf = conf.Init()
	c, err := m.Cpu.New()
	if err != nil {
		return nil, err
	}
	mem := qcpu.NewMemory(c, m.Arch)
	r := &Runner{
		Machine: m,
		Cpu:     c,
		Mem:     mem,
		Sys:     host.NewSystem(m, mem, conf),
		Libc:    libc.NewKernel(m.Arch, mem),
		Config:  conf,
	}
	r.Libc.Halt = func() { c.Stop() }
	r.Sys.Kernels = append(r.Sys.Kernels, r.Libc)
	return r, nil
}

func (r *Runner) opts() []qbdl.Option {
	return []qbdl.Option{qbdl.WithConfig(r.Config)}
}

func (r *Runner) LoadFile(path string) error {
	img, err := qbdl.LoadFile(path, r.Machine.Arch, r.Sys, r.Config.Bind, r.opts()...)
	if err != nil {
		return err
	}
	r.Image = img
	return nil
}

func (r *Runner) LoadBinary(bin *models.Binary) error {
	img, err := qbdl.LoadBinary(bin, r.Machine.Arch, r.Sys, r.Config.Bind, r.opts()...)
	if err != nil {
		return err
	}
	r.Image = img
	return nil
}

// Run calls the entry point as main(argc, argv) and returns when it returns,
// calls exit, or faults.
func (r *Runner) Run(args ...string) error {
	if r.Image == nil {
		return errors.New("nothing loaded")
	}
	exit, err := r.Sys.Stub(exitStub, nil)
	if err != nil {
		return err
	}
	r.exit = exit
	if err := r.setupStack(args); err != nil {
		return err
	}
	var hooks []cpu.Hook
	for _, reg := range r.Sys.StubRegions() {
		h, err := r.Cpu.HookAdd(cpu.HOOK_CODE, r.hook, reg[0], reg[0]+reg[1]-1)
		if err != nil {
			return errors.Wrap(err, "failed to hook stubs")
		}
		hooks = append(hooks, h)
	}
	defer func() {
		for _, h := range hooks {
			r.Cpu.HookDel(h)
		}
	}()
	r.err = nil
	r.Config.Debugf("[run] entry 0x%x\n", r.Image.Entry)
	if err := r.Cpu.Start(r.Image.Entry, exit.Addr); err != nil {
		return errors.Wrapf(err, "emulation failed")
	}
	return r.err
}

// ExitCode is the status passed to exit, or the return register if the entry point returned.
func (r *Runner) ExitCode() int {
	if r.Libc.Exited {
		return r.Libc.ExitCode
	}
	val, _ := r.Cpu.RegRead(r.Machine.Ret)
	return int(int32(val))
}

func (r *Runner) Close() error {
	return r.Cpu.Close()
}

func (r *Runner) fail(err error) {
	if r.err == nil {
		r.err = err
	}
	r.Cpu.Stop()
}

func (r *Runner) args() co.ArgReader {
	if len(r.Machine.Args) > 0 {
		return co.RegArgs(r.Cpu, r.Machine.Arch, r.Machine.Args, r.Machine.SP)
	}
	return co.StackArgs(r.Cpu, r.Machine.Arch, r.Machine.SP)
}

func (r *Runner) hook(c cpu.Cpu, addr uint64, size uint32) {
	stub, ok := r.Sys.StubAt(addr)
	if !ok {
		return
	}
	stub.Hits++
	if stub == r.exit {
		c.Stop()
		return
	}
	if stub.Func == nil {
		target, err := r.Sys.Trampoline(stub)
		if err != nil {
			r.fail(err)
			return
		}
		if err := c.RegWrite(r.Machine.PC, target); err != nil {
			r.fail(err)
		}
		return
	}
	args, err := r.args()(stub.Func.Argc())
	if err != nil {
		r.fail(errors.Wrapf(err, "reading arguments for %s", stub.Name))
		return
	}
	if r.Config.Verbose {
		r.Config.Printf("%s", stub.Func.Trace(args))
	}
	ret, err := stub.Func.Call(args)
	if err != nil {
		r.fail(err)
		return
	}
	r.Config.Debugf("%s\n", stub.Func.TraceRet(ret))
	if err := c.RegWrite(r.Machine.Ret, ret); err != nil {
		r.fail(err)
	}
}
