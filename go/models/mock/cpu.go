package mock

import (
	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/models"
	"github.com/qbdl/qbdl/go/models/cpu"
)

type hook struct {
	htype      int
	cb         interface{}
	begin, end uint64
}

func (h *hook) covers(addr uint64) bool {
	// begin > end means every address, like unicorn
	return h.begin > h.end || (addr >= h.begin && addr <= h.end)
}

// Cpu is a cpu.Cpu over simulated memory that executes nothing. Start walks
// Trace instead, firing code hooks for each address, until it reaches until,
// runs out of addresses, or a hook calls Stop.
type Cpu struct {
	*cpu.Mem
	*cpu.Regs
	PC    int
	Trace []uint64
	// Exec runs in place of the instruction at an address, before hooks fire.
	Exec map[uint64]func(c *Cpu)

	// Executed lists the addresses Start visited.
	Executed []uint64
	Closed   bool

	hooks   []*hook
	stopped bool
}

func NewCpu(arch models.Arch, pc int, regs []int) *Cpu {
	return &Cpu{
		Mem:  cpu.NewMem(uint(arch.Bits), arch.ByteOrder()),
		Regs: cpu.NewRegs(uint(arch.Bits), append([]int{pc}, regs...)),
		PC:   pc,
	}
}

func (c *Cpu) HookAdd(htype int, cb interface{}, begin, end uint64, extra ...int) (cpu.Hook, error) {
	if htype == cpu.HOOK_CODE || htype == cpu.HOOK_BLOCK {
		if _, ok := cb.(func(cpu.Cpu, uint64, uint32)); !ok {
			return nil, errors.Errorf("bad code hook callback %T", cb)
		}
	}
	h := &hook{htype, cb, begin, end}
	c.hooks = append(c.hooks, h)
	return h, nil
}

func (c *Cpu) HookDel(hh cpu.Hook) error {
	for i, h := range c.hooks {
		if h == hh {
			c.hooks = append(c.hooks[:i], c.hooks[i+1:]...)
			return nil
		}
	}
	return errors.New("hook not found")
}

func (c *Cpu) Hooks() int { return len(c.hooks) }

func (c *Cpu) Start(begin, until uint64) error {
	c.stopped = false
	trace := c.Trace
	if len(trace) == 0 || trace[0] != begin {
		trace = append([]uint64{begin}, trace...)
	}
	for _, addr := range trace {
		if addr == until || c.stopped {
			break
		}
		if err := c.RegWrite(c.PC, addr); err != nil {
			return err
		}
		if _, err := c.MemRead(addr, 1); err != nil {
			return errors.Wrapf(err, "fetch at 0x%x", addr)
		}
		c.Executed = append(c.Executed, addr)
		if fn, ok := c.Exec[addr]; ok {
			fn(c)
		}
		for _, h := range c.hooks {
			if (h.htype == cpu.HOOK_CODE || h.htype == cpu.HOOK_BLOCK) && h.covers(addr) {
				h.cb.(func(cpu.Cpu, uint64, uint32))(c, addr, 1)
			}
		}
	}
	return nil
}

func (c *Cpu) Stop() error {
	c.stopped = true
	return nil
}

func (c *Cpu) Close() error {
	c.Closed = true
	return nil
}

// CpuBuilder hands out one preconfigured Cpu.
type CpuBuilder struct {
	Cpu *Cpu
}

func (b *CpuBuilder) New() (cpu.Cpu, error) {
	if b.Cpu == nil {
		return nil, errors.New("no mock cpu")
	}
	return b.Cpu, nil
}
