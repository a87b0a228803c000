package host

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/kernel/common"
	"github.com/qbdl/qbdl/go/models/cpu"
)

const (
	stubSize   = 16
	regionSize = cpu.PAGE_SIZE
)

// Stub is an address the runner intercepts. Calls land on Func when set,
// otherwise on the lazily resolved Target.
type Stub struct {
	Name string
	// Raw is the import name as the binary spells it.
	Raw    string
	Addr   uint64
	Func   *common.Func
	Target uint64
	Hits   int

	resolved bool
}

func (s *Stub) String() string {
	if s.Func != nil {
		return fmt.Sprintf("0x%x %s (host)", s.Addr, s.Name)
	}
	return fmt.Sprintf("0x%x %s", s.Addr, s.Name)
}

type region struct {
	addr, used uint64
}

// alloc hands out the next stub slot. Callers hold s.mu.
func (s *System) alloc(name string, f *common.Func) (*Stub, error) {
	var r *region
	if n := len(s.regions); n > 0 && s.regions[n-1].used+stubSize <= regionSize {
		r = &s.regions[n-1]
	} else {
		addr, err := s.Memory.Map(0, regionSize)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map stub region")
		}
		s.regions = append(s.regions, region{addr: addr})
		r = &s.regions[len(s.regions)-1]
	}
	addr := r.addr + r.used
	if s.Machine.Asm != nil && s.Machine.Return != "" {
		code, err := s.Machine.Asm.Asm(s.Machine.Return, addr)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to assemble stub for %s", name)
		}
		if len(code) > stubSize {
			return nil, errors.Errorf("%s return stub is %d bytes", s.Machine.Name, len(code))
		}
		if err := s.Memory.Write(addr, code); err != nil {
			return nil, errors.Wrap(err, "failed to write stub")
		}
	}
	if err := s.Memory.Protect(r.addr, regionSize, cpu.PROT_READ|cpu.PROT_EXEC); err != nil {
		return nil, errors.Wrap(err, "failed to protect stub region")
	}
	r.used += stubSize
	stub := &Stub{Name: name, Raw: name, Addr: addr, Func: f}
	s.stubs[addr] = stub
	s.byName[name] = stub
	return stub, nil
}

// Stub returns the stub for name, allocating one bound to f if needed.
func (s *System) Stub(name string, f *common.Func) (*Stub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stub, ok := s.byName[name]; ok {
		return stub, nil
	}
	return s.alloc(name, f)
}

func (s *System) StubAt(addr uint64) (*Stub, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stub, ok := s.stubs[addr]
	return stub, ok
}

// StubRegions lists the mapped stub regions as (addr, size) pairs.
func (s *System) StubRegions() [][2]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][2]uint64, len(s.regions))
	for i, r := range s.regions {
		out[i] = [2]uint64{r.addr, regionSize}
	}
	return out
}
