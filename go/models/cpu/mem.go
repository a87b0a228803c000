package cpu

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const PAGE_SIZE = 0x1000

// Mem is a simulated address space. Besides the Cpu-style Mem* methods it
// satisfies the loader's TargetMemory interface (Map, Protect, Read, Write).
type Mem struct {
	bits uint
	// methods return an error for addresses that do not fit inside mask
	mask uint64
	sim  *MemSim

	order binary.ByteOrder
}

func NewMem(bits uint, order binary.ByteOrder) *Mem {
	return &Mem{
		bits:  bits,
		mask:  ^uint64(0) >> (64 - bits),
		sim:   &MemSim{},
		order: order,
	}
}

func (m *Mem) Bits() uint { return m.bits }

func (m *Mem) inRange(addr, size uint64) bool {
	end := addr + size
	return end > addr && (end-1)&m.mask == end-1
}

func (m *Mem) MemMapProt(addr, size uint64, prot int) error {
	if size == 0 || !m.inRange(addr, size) {
		return errors.New("region outside memory range")
	}
	m.sim.Map(addr, size, prot, false)
	return nil
}

func (m *Mem) MemProt(addr, size uint64, prot int) error {
	if mapped, _ := m.sim.RangeValid(addr, size, 0); !mapped {
		return errors.New("range not mapped")
	}
	m.sim.Prot(addr, size, prot)
	return nil
}

func (m *Mem) MemUnmap(addr, size uint64) error {
	if mapped, _ := m.sim.RangeValid(addr, size, 0); !mapped {
		return errors.New("range not mapped")
	}
	m.sim.Unmap(addr, size)
	return nil
}

func (m *Mem) MemReadInto(p []byte, addr uint64) error {
	return m.sim.Read(addr, p, 0)
}

func (m *Mem) MemRead(addr, size uint64) ([]byte, error) {
	p := make([]byte, size)
	if err := m.MemReadInto(p, addr); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Mem) MemWrite(addr uint64, p []byte) error {
	return m.sim.Write(addr, p, 0)
}

// ReadProt reads while checking protections.
func (m *Mem) ReadProt(addr, size uint64, prot int) ([]byte, error) {
	p := make([]byte, size)
	if err := m.sim.Read(addr, p, prot); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Mem) WriteProt(addr uint64, p []byte, prot int) error {
	return m.sim.Write(addr, p, prot)
}

func (m *Mem) ReadUint(addr uint64, size, prot int) (uint64, error) {
	if size > 8 {
		return 0, errors.Errorf("MemReadUint size too large: %d > 8", size)
	}
	p, err := m.ReadProt(addr, uint64(size), prot)
	if err != nil {
		return 0, err
	}
	return UnpackUint(m.order, size, p)
}

func (m *Mem) WriteUint(addr uint64, size, prot int, val uint64) error {
	var buf [8]byte
	if size > 8 {
		return errors.Errorf("MemWriteUint size too large: %d > 8", size)
	}
	if _, err := PackUint(m.order, size, buf[:], val); err != nil {
		return err
	}
	return m.WriteProt(addr, buf[:size], prot)
}

// Map reserves size bytes, read-write, at hint if that range is free, otherwise
// at the first free page-aligned range above it (or above zero when hint is 0).
func (m *Mem) Map(hint, size uint64) (uint64, error) {
	if size == 0 {
		return 0, errors.New("zero-sized mapping")
	}
	size = (size + PAGE_SIZE - 1) &^ (PAGE_SIZE - 1)
	start := hint &^ (PAGE_SIZE - 1)
	if start == 0 {
		start = PAGE_SIZE
	}
	addr, ok := m.sim.Mem.Gap(start, size, PAGE_SIZE, m.mask)
	if !ok && start > PAGE_SIZE {
		addr, ok = m.sim.Mem.Gap(PAGE_SIZE, size, PAGE_SIZE, m.mask)
	}
	if !ok {
		return 0, errors.Errorf("no free range of size %#x", size)
	}
	if err := m.MemMapProt(addr, size, PROT_READ|PROT_WRITE); err != nil {
		return 0, err
	}
	return addr, nil
}

// Protect accepts any byte range and applies prot to the pages it touches.
func (m *Mem) Protect(addr, size uint64, prot int) error {
	start := addr &^ (PAGE_SIZE - 1)
	end := (addr + size + PAGE_SIZE - 1) &^ (PAGE_SIZE - 1)
	return m.MemProt(start, end-start, prot)
}

func (m *Mem) Write(addr uint64, p []byte) error {
	return m.MemWrite(addr, p)
}

func (m *Mem) Read(addr, size uint64) ([]byte, error) {
	return m.MemRead(addr, size)
}

// Mappings returns a copy of the current page list, sorted by address.
func (m *Mem) Mappings() Pages {
	out := make(Pages, len(m.sim.Mem))
	for i, p := range m.sim.Mem {
		cp := *p
		out[i] = &cp
	}
	return out
}
