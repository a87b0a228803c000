package common

import (
	"github.com/qbdl/qbdl/go/models"
	"github.com/qbdl/qbdl/go/models/cpu"
)

// ArgReader fetches the first n raw arguments of a call.
type ArgReader func(n int) ([]uint64, error)

// StackArgs reads arguments from the stack, above the return address at sp.
func StackArgs(c cpu.Cpu, arch models.Arch, sp int) ArgReader {
	return func(n int) ([]uint64, error) {
		addr, err := c.RegRead(sp)
		if err != nil {
			return nil, err
		}
		size := arch.PtrSize()
		// starts with an empty slot
		addr += uint64(size)
		ret := make([]uint64, n)
		for i := 0; i < n; i++ {
			buf, err := c.MemRead(addr+uint64(i*size), uint64(size))
			if err != nil {
				return nil, err
			}
			if ret[i], err = cpu.UnpackUint(arch.ByteOrder(), size, buf); err != nil {
				return nil, err
			}
		}
		return ret, nil
	}
}

// RegArgs reads arguments from regs in order, then from the stack once they run out.
func RegArgs(c cpu.Cpu, arch models.Arch, regs []int, sp int) ArgReader {
	stack := StackArgs(c, arch, sp)
	return func(n int) ([]uint64, error) {
		ret := make([]uint64, 0, n)
		for _, reg := range regs {
			if len(ret) == n {
				return ret, nil
			}
			val, err := c.RegRead(reg)
			if err != nil {
				return nil, err
			}
			ret = append(ret, val)
		}
		if len(ret) < n {
			extra, err := stack(n - len(ret))
			if err != nil {
				return nil, err
			}
			ret = append(ret, extra...)
		}
		return ret, nil
	}
}
