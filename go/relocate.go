package qbdl

import (
	"github.com/qbdl/qbdl/go/models"
)

// relocate applies bin.Relocs in declaration order.
func (s *session) relocate() error {
	for _, r := range s.bin.Relocs {
		if err := s.apply(r); err != nil {
			return err
		}
	}
	return nil
}

// target resolves the S term of a relocation. ok is false when the reloc should be skipped.
func (s *session) target(r models.Relocation) (uint64, bool, error) {
	if r.Symbol == "" {
		return s.base, true, nil
	}
	if addr, ok := s.exports[r.Symbol]; ok {
		return addr, true, nil
	}
	if s.mode == models.BindNone {
		s.conf.Debugf("[reloc] skipping 0x%x against unbound %s\n", r.Offset, r.Symbol)
		return 0, false, nil
	}
	sym := models.Symbol{Name: r.Symbol, Kind: models.SymImport}
	for _, v := range s.bin.Symbols {
		if v.Kind == models.SymImport && v.Name == r.Symbol {
			sym = v
			break
		}
	}
	if addr, ok := s.resolve(sym); ok {
		return addr, true, nil
	}
	return 0, false, models.KindErrorf(models.UnresolvedSymbol, "relocation at 0x%x: unresolved symbol %q", r.Offset, r.Symbol)
}

func (s *session) apply(r models.Relocation) error {
	width := r.Width(s.arch)
	P := s.base + r.Offset
	A := uint64(r.Addend)

	var val uint64
	signed := false
	switch r.Kind {
	case models.RelocRebase:
		ptr, err := models.ReadUint(s.mem, s.arch, P, width)
		if err != nil {
			return models.WrapKind(models.MemoryFault, err, "failed to read rebase pointer")
		}
		if ptr >= s.bin.ImageBase {
			ptr -= s.bin.ImageBase
		}
		val = s.base + ptr + A
	case models.RelocAbsolute, models.RelocRelative, models.RelocPCRelative:
		S, ok, err := s.target(r)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch r.Kind {
		case models.RelocAbsolute:
			val = S + A
		case models.RelocRelative:
			val = S + A - P
			signed = true
		case models.RelocPCRelative:
			val = S + A - (P + uint64(r.InsnLen))
			signed = true
		}
	default:
		return models.KindErrorf(models.MalformedBinary, "relocation at 0x%x: unknown kind %d", r.Offset, r.Kind)
	}
	if !fits(val, width, signed) {
		return models.KindErrorf(models.MalformedBinary, "relocation at 0x%x: value 0x%x does not fit %d bytes", r.Offset, val, width)
	}
	if err := models.WriteUint(s.mem, s.arch, P, width, val); err != nil {
		return models.WrapKind(models.MemoryFault, err, "failed to apply relocation")
	}
	return nil
}
