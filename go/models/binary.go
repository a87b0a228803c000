package models

import (
	"sort"

	"github.com/pkg/errors"
)

// Binary is the parsed, format-independent view of an executable.
// All addresses are relative to ImageBase.
type Binary struct {
	Format    string
	Arch      Arch
	ImageBase uint64
	Segments  []Segment
	Symbols   []Symbol
	Relocs    []Relocation
	Entry     uint64
	Libraries []string
	Interp    string
}

// VirtualSize is the distance from the image base to the end of the last segment.
func (b *Binary) VirtualSize() uint64 {
	var end uint64
	for i := range b.Segments {
		if e := b.Segments[i].End(); e > end {
			end = e
		}
	}
	return end
}

func (b *Binary) Imports() []Symbol {
	var out []Symbol
	for _, s := range b.Symbols {
		if s.Kind == SymImport {
			out = append(out, s)
		}
	}
	return out
}

func (b *Binary) Exports() []Symbol {
	var out []Symbol
	for _, s := range b.Symbols {
		if s.Kind == SymExport {
			out = append(out, s)
		}
	}
	return out
}

// Export looks up a locally defined symbol.
func (b *Binary) Export(name string) (Symbol, bool) {
	for _, s := range b.Symbols {
		if s.Kind == SymExport && s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

func (b *Binary) segmentAt(off uint64) *Segment {
	for i := range b.Segments {
		if b.Segments[i].Size > 0 && b.Segments[i].Contains(off) {
			return &b.Segments[i]
		}
	}
	return nil
}

// Validate checks the structural invariants the loader relies on.
// Every error returned is a MalformedBinary.
func (b *Binary) Validate() error {
	if err := b.validate(); err != nil {
		return KindError(MalformedBinary, err)
	}
	return nil
}

func (b *Binary) validate() error {
	if b.Arch.Bits != 32 && b.Arch.Bits != 64 {
		return errors.Errorf("unsupported address width %d", b.Arch.Bits)
	}
	mask := b.Arch.Mask()
	spans := make([]Span, 0, len(b.Segments))
	for i := range b.Segments {
		s := &b.Segments[i]
		if uint64(len(s.Data)) > s.Size {
			return errors.Errorf("segment %q: content (%#x) larger than size (%#x)", s.Name, len(s.Data), s.Size)
		}
		if s.End() < s.Addr || s.End()&mask != s.End() {
			return errors.Errorf("segment %q: 0x%x+0x%x overflows address space", s.Name, s.Addr, s.Size)
		}
		if s.Size > 0 {
			spans = append(spans, Span{s.Addr, s.End()})
		}
	}
	if len(spans) == 0 {
		return errors.New("no loadable segments")
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	for i := 1; i < len(spans); i++ {
		if spans[i].Overlaps(&spans[i-1]) {
			return errors.Errorf("segments overlap at 0x%x", spans[i].Start)
		}
	}

	exports := make(map[string]bool)
	for _, s := range b.Symbols {
		if s.Name == "" {
			return errors.New("symbol with empty name")
		}
		if s.Kind == SymExport {
			if exports[s.Name] {
				return errors.Errorf("duplicate export %q", s.Name)
			}
			exports[s.Name] = true
		}
	}

	for _, r := range b.Relocs {
		width := r.Width(b.Arch)
		switch width {
		case 1, 2, 4, 8:
		default:
			return errors.Errorf("relocation at 0x%x: bad width %d", r.Offset, width)
		}
		seg := b.segmentAt(r.Offset)
		if seg == nil || r.Offset+uint64(width) > seg.End() {
			return errors.Errorf("relocation at 0x%x outside any segment", r.Offset)
		}
		if r.Kind != RelocRebase && r.Symbol == "" && r.Kind != RelocAbsolute {
			return errors.Errorf("relocation at 0x%x: %s needs a symbol", r.Offset, r.Kind)
		}
	}

	if size := b.VirtualSize(); b.Entry >= size {
		return errors.Errorf("entry 0x%x outside image (0x%x)", b.Entry, size)
	}
	return nil
}
