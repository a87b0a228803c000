package qbdl

import (
	"github.com/qbdl/qbdl/go/models"
)

// session is the state of one load. It is handed to TargetSystem.Symlink as a models.Loader.
type session struct {
	bin  *models.Binary
	arch models.Arch
	sys  models.TargetSystem
	mem  models.TargetMemory
	conf *models.Config
	mode models.BindMode

	base uint64
	size uint64

	exports  map[string]uint64
	bindings map[string]uint64
	lazy     map[string]bool
	// names already handed to Symlink, including failures
	tried map[string]bool
}

func newSession(bin *models.Binary, arch models.Arch, sys models.TargetSystem, mode models.BindMode, conf *models.Config) *session {
	return &session{
		bin:      bin,
		arch:     arch,
		sys:      sys,
		mem:      sys.Mem(),
		conf:     conf,
		mode:     mode,
		exports:  make(map[string]uint64),
		bindings: make(map[string]uint64),
		lazy:     make(map[string]bool),
		tried:    make(map[string]bool),
	}
}

func (s *session) Arch() models.Arch            { return s.arch }
func (s *session) Binary() *models.Binary       { return s.bin }
func (s *session) BaseAddress() uint64          { return s.base }
func (s *session) Mem() models.TargetMemory     { return s.mem }
func (s *session) Mode() models.BindMode        { return s.mode }
func (s *session) Address(offset uint64) uint64 { return s.base + offset }

// SymbolAddress resolves name against local exports, then names bound so far.
func (s *session) SymbolAddress(name string) (uint64, bool) {
	if addr, ok := s.exports[name]; ok {
		return addr, true
	}
	addr, ok := s.bindings[name]
	return addr, ok
}

func (s *session) collectExports() {
	for _, sym := range s.bin.Symbols {
		if sym.Kind == models.SymExport {
			s.exports[sym.Name] = s.base + sym.Addr
		}
	}
}

// resolve binds an imported name, preferring a local export and calling
// Symlink at most once per name.
func (s *session) resolve(sym models.Symbol) (uint64, bool) {
	if addr, ok := s.bindings[sym.Name]; ok {
		return addr, true
	}
	if addr, ok := s.exports[sym.Name]; ok {
		s.bindings[sym.Name] = addr
		s.conf.Debugf("[bind] %s -> 0x%x (local)\n", sym.Name, addr)
		return addr, true
	}
	if s.tried[sym.Name] {
		return 0, false
	}
	s.tried[sym.Name] = true
	addr, err := s.sys.Symlink(s, sym)
	if err != nil {
		if sym.Weak {
			s.bindings[sym.Name] = 0
			s.conf.Debugf("[bind] %s -> 0 (weak, %v)\n", sym.Name, err)
			return 0, true
		}
		s.conf.Debugf("[bind] %s unresolved: %v\n", sym.Name, err)
		return 0, false
	}
	s.bindings[sym.Name] = addr
	if s.mode == models.BindLazy {
		s.lazy[sym.Name] = true
	}
	s.conf.Debugf("[bind] %s -> 0x%x\n", sym.Name, addr)
	return addr, true
}

func (s *session) image() *models.LoadedImage {
	return &models.LoadedImage{
		Arch:      s.arch,
		Format:    s.bin.Format,
		Base:      s.base,
		Size:      s.size,
		Entry:     s.base + s.bin.Entry,
		Bindings:  s.bindings,
		Lazy:      s.lazy,
		Exports:   s.exports,
		Libraries: s.bin.Libraries,
		Interp:    s.bin.Interp,
	}
}
