package mock

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/models"
	"github.com/qbdl/qbdl/go/models/cpu"
)

// Call records one TargetMemory operation.
type Call struct {
	Op   string
	Addr uint64
	Size uint64
	Prot int
}

func (c Call) String() string {
	return fmt.Sprintf("%s(0x%x, 0x%x, %d)", c.Op, c.Addr, c.Size, c.Prot)
}

// Memory is a recording TargetMemory backed by a simulated address space.
// Base, when nonzero, replaces the address Map would otherwise return.
// Fail makes the named operation ("map", "protect", "write", "read") return an error.
type Memory struct {
	*cpu.Mem
	Base  uint64
	Fail  map[string]bool
	Calls []Call
}

func NewMemory(arch models.Arch) *Memory {
	return &Memory{Mem: cpu.NewMem(uint(arch.Bits), arch.ByteOrder()), Fail: make(map[string]bool)}
}

func (m *Memory) record(op string, addr, size uint64, prot int) error {
	m.Calls = append(m.Calls, Call{op, addr, size, prot})
	if m.Fail[op] {
		return errors.Errorf("mock %s failure at 0x%x", op, addr)
	}
	return nil
}

func (m *Memory) Count(op string) int {
	n := 0
	for _, c := range m.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (m *Memory) Map(hint, size uint64) (uint64, error) {
	if err := m.record("map", hint, size, 0); err != nil {
		return 0, err
	}
	if m.Base != 0 {
		hint = m.Base
	}
	return m.Mem.Map(hint, size)
}

func (m *Memory) Protect(addr, size uint64, prot int) error {
	if err := m.record("protect", addr, size, prot); err != nil {
		return err
	}
	return m.Mem.Protect(addr, size, prot)
}

func (m *Memory) Write(addr uint64, p []byte) error {
	if err := m.record("write", addr, uint64(len(p)), 0); err != nil {
		return err
	}
	return m.Mem.Write(addr, p)
}

func (m *Memory) Read(addr, size uint64) ([]byte, error) {
	if err := m.record("read", addr, size, 0); err != nil {
		return nil, err
	}
	return m.Mem.Read(addr, size)
}
