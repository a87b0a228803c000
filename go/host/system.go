package host

import (
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/kernel/common"
	"github.com/qbdl/qbdl/go/models"
)

// DefaultBase is the hint for images that don't ask for an address.
const DefaultBase = 0x40000000

// System is the TargetSystem used by the runner and the load command. Imports
// resolve, in order, against Symbols, Resolve and the host functions in
// Kernels. Host functions are bound to stubs, small return sequences in a
// region the system maps on first use.
type System struct {
	Machine *models.Machine
	Memory  models.TargetMemory
	Config  *models.Config

	Symbols map[string]uint64
	Resolve func(name string) (uint64, bool)
	Kernels []common.Kernel
	// Base, when set, is the hint for every image.
	Base uint64
	// StubUnknown binds imports nothing resolves to a stub instead of failing.
	StubUnknown bool

	mu      sync.Mutex
	stubs   map[uint64]*Stub
	byName  map[string]*Stub
	regions []region
}

func NewSystem(m *models.Machine, mem models.TargetMemory, conf *models.Config) *System {
	return &System{
		Machine: m,
		Memory:  mem,
		Config:  conf,
		Symbols: make(map[string]uint64),
		stubs:   make(map[uint64]*Stub),
		byName:  make(map[string]*Stub),
	}
}

func (s *System) Arch() models.Arch        { return s.Machine.Arch }
func (s *System) Mem() models.TargetMemory { return s.Memory }
func (s *System) Supports(bin *models.Binary) bool {
	return bin.Arch.Compatible(s.Machine.Arch)
}

func (s *System) BaseAddressHint(imageBase, size uint64) uint64 {
	if s.Base != 0 {
		return s.Base
	}
	if imageBase != 0 {
		return imageBase
	}
	return DefaultBase
}

// HostName strips the C symbol prefix Mach-O adds to every name.
func HostName(bin *models.Binary, name string) string {
	if bin != nil && bin.Format == "macho" {
		return strings.TrimPrefix(name, "_")
	}
	return name
}

// lookup checks the fixed tables. name is tried as written, then in host form.
func (s *System) lookup(raw, name string) (uint64, bool) {
	if addr, ok := s.Symbols[raw]; ok {
		return addr, true
	}
	if addr, ok := s.Symbols[name]; ok {
		return addr, true
	}
	if s.Resolve != nil {
		return s.Resolve(name)
	}
	return 0, false
}

func (s *System) hostFunc(name string) *common.Func {
	for _, k := range s.Kernels {
		if f := common.Lookup(k, name); f != nil {
			return f
		}
	}
	return nil
}

func (s *System) Symlink(l models.Loader, sym models.Symbol) (uint64, error) {
	name := HostName(l.Binary(), sym.Name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if stub, ok := s.byName[name]; ok {
		return stub.Addr, nil
	}
	lazy := l.Mode() == models.BindLazy
	addr, found := s.lookup(sym.Name, name)
	if found && !lazy {
		return addr, nil
	}
	var f *common.Func
	if !found {
		if f = s.hostFunc(name); f == nil && !s.StubUnknown {
			return 0, errors.Errorf("no host symbol %q", name)
		}
	}
	stub, err := s.alloc(name, f)
	if err != nil {
		return 0, err
	}
	stub.Raw = sym.Name
	s.Config.Debugf("[host] %s -> stub 0x%x\n", name, stub.Addr)
	return stub.Addr, nil
}

// Trampoline resolves the real address behind a stub without a host function.
// The first answer is kept.
func (s *System) Trampoline(stub *Stub) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stub.resolved {
		return stub.Target, nil
	}
	addr, ok := s.lookup(stub.Raw, stub.Name)
	if !ok {
		return 0, errors.Errorf("lazy import %q is unresolved", stub.Name)
	}
	stub.Target, stub.resolved = addr, true
	s.Config.Debugf("[host] lazy %s -> 0x%x\n", stub.Name, addr)
	return addr, nil
}
