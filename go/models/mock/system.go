package mock

import (
	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/models"
)

// System is a TargetSystem resolving imports from a fixed table and counting Symlink calls.
type System struct {
	Target models.Arch
	Memory models.TargetMemory
	Table  map[string]uint64
	// Hint is returned by BaseAddressHint, 0 meaning the binary's own image base.
	Hint   uint64
	Reject bool

	Calls map[string]int
	Order []string
}

func NewSystem(arch models.Arch, table map[string]uint64) *System {
	return &System{
		Target: arch,
		Memory: NewMemory(arch),
		Table:  table,
		Calls:  make(map[string]int),
	}
}

func (s *System) Arch() models.Arch            { return s.Target }
func (s *System) Mem() models.TargetMemory     { return s.Memory }
func (s *System) Supports(*models.Binary) bool { return !s.Reject }

func (s *System) Symlink(l models.Loader, sym models.Symbol) (uint64, error) {
	if s.Calls == nil {
		s.Calls = make(map[string]int)
	}
	s.Calls[sym.Name]++
	s.Order = append(s.Order, sym.Name)
	if addr, ok := s.Table[sym.Name]; ok {
		return addr, nil
	}
	return 0, errors.Errorf("no such symbol %q", sym.Name)
}

func (s *System) BaseAddressHint(imageBase, size uint64) uint64 {
	if s.Hint != 0 {
		return s.Hint
	}
	return imageBase
}
