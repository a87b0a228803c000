package cpu

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/models"
	mcpu "github.com/qbdl/qbdl/go/models/cpu"
)

// Memory places images in an emulator's address space. It keeps its own list
// of mappings to find free ranges, since emulators don't expose one.
type Memory struct {
	Cpu mcpu.Cpu

	mu   sync.Mutex
	mask uint64
	maps mcpu.Pages
}

func NewMemory(c mcpu.Cpu, arch models.Arch) *Memory {
	return &Memory{Cpu: c, mask: arch.Mask()}
}

func pageRange(addr, size uint64) (uint64, uint64) {
	start := addr &^ (mcpu.PAGE_SIZE - 1)
	end := (addr + size + mcpu.PAGE_SIZE - 1) &^ (mcpu.PAGE_SIZE - 1)
	return start, end - start
}

// Map reserves size bytes at hint, or the first free range above it.
func (m *Memory) Map(hint, size uint64) (uint64, error) {
	if size == 0 {
		return 0, errors.New("zero-sized mapping")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, size = pageRange(0, size)
	start := hint &^ (mcpu.PAGE_SIZE - 1)
	if start == 0 {
		start = mcpu.PAGE_SIZE
	}
	addr, ok := m.maps.Gap(start, size, mcpu.PAGE_SIZE, m.mask)
	if !ok {
		addr, ok = m.maps.Gap(mcpu.PAGE_SIZE, size, mcpu.PAGE_SIZE, m.mask)
	}
	if !ok {
		return 0, errors.Errorf("no free range of size %#x", size)
	}
	if err := m.Cpu.MemMapProt(addr, size, mcpu.PROT_READ|mcpu.PROT_WRITE); err != nil {
		return 0, errors.Wrapf(err, "failed to map 0x%x-0x%x", addr, addr+size)
	}
	m.maps = append(m.maps, &mcpu.Page{Addr: addr, Size: size, Prot: mcpu.PROT_READ | mcpu.PROT_WRITE})
	sort.Sort(m.maps)
	return addr, nil
}

func (m *Memory) Protect(addr, size uint64, prot int) error {
	addr, size = pageRange(addr, size)
	return errors.Wrap(m.Cpu.MemProt(addr, size, prot), "failed to protect memory")
}

func (m *Memory) Write(addr uint64, p []byte) error {
	return errors.Wrapf(m.Cpu.MemWrite(addr, p), "failed to write 0x%x bytes at 0x%x", len(p), addr)
}

func (m *Memory) Read(addr, size uint64) ([]byte, error) {
	data, err := m.Cpu.MemRead(addr, size)
	return data, errors.Wrapf(err, "failed to read 0x%x bytes at 0x%x", size, addr)
}

// Mappings returns the ranges handed out by Map.
func (m *Memory) Mappings() mcpu.Pages {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(mcpu.Pages, len(m.maps))
	copy(out, m.maps)
	return out
}
