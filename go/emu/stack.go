package emu

import (
	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/models"
)

type stack struct {
	r  *Runner
	sp uint64
}

func (s *stack) push(val uint64) error {
	arch := s.r.Machine.Arch
	s.sp -= uint64(arch.PtrSize())
	return models.WritePtr(s.r.Mem, arch, s.sp, val)
}

func (s *stack) pushBytes(p []byte) (uint64, error) {
	s.sp -= uint64(len(p))
	return s.sp, s.r.Mem.Write(s.sp, p)
}

// setupStack maps the stack, copies argv onto it and arranges a call to the
// entry point that returns to the exit stub.
func (r *Runner) setupStack(args []string) error {
	base, err := r.Mem.Map(StackBase, StackSize)
	if err != nil {
		return errors.Wrap(err, "failed to map stack")
	}
	s := &stack{r: r, sp: base + StackSize}
	argv := make([]uint64, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		if argv[i], err = s.pushBytes(append([]byte(args[i]), 0)); err != nil {
			return err
		}
	}
	s.sp &^= 15
	if err := s.push(0); err != nil {
		return err
	}
	for i := len(argv) - 1; i >= 0; i-- {
		if err := s.push(argv[i]); err != nil {
			return err
		}
	}
	argvAddr := s.sp
	s.sp &^= 15

	m := r.Machine
	if len(m.Args) >= 2 {
		if err := r.Cpu.RegWrite(m.Args[0], uint64(len(args))); err != nil {
			return err
		}
		if err := r.Cpu.RegWrite(m.Args[1], argvAddr); err != nil {
			return err
		}
	} else {
		if err := s.push(argvAddr); err != nil {
			return err
		}
		if err := s.push(uint64(len(args))); err != nil {
			return err
		}
	}
	if m.Link != 0 {
		err = r.Cpu.RegWrite(m.Link, r.exit.Addr)
	} else {
		err = s.push(r.exit.Addr)
	}
	if err != nil {
		return errors.Wrap(err, "failed to set return address")
	}
	r.Config.Debugf("[run] stack 0x%x-0x%x sp 0x%x\n", base, base+StackSize, s.sp)
	return r.Cpu.RegWrite(m.SP, s.sp)
}
