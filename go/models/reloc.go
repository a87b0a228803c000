package models

import (
	"fmt"
)

type RelocKind int

const (
	// S + A
	RelocAbsolute RelocKind = iota
	// S + A - P
	RelocRelative
	// S + A - (P + InsnLen)
	RelocPCRelative
	// pointer at P, moved from the preferred image base to the actual one
	RelocRebase
)

var relocNames = []string{"abs", "rel", "pcrel", "rebase"}

func (k RelocKind) String() string {
	if int(k) < len(relocNames) && k >= 0 {
		return relocNames[k]
	}
	return fmt.Sprintf("reloc(%d)", int(k))
}

// Relocation is a patch site. Offset is relative to the image base.
// Size is the patch width in bytes, 0 meaning pointer width.
type Relocation struct {
	Offset  uint64
	Symbol  string
	Kind    RelocKind
	Addend  int64
	Size    int
	InsnLen int
	Lazy    bool
}

func (r Relocation) Width(a Arch) int {
	if r.Size == 0 {
		return a.PtrSize()
	}
	return r.Size
}

func (r Relocation) String() string {
	target := r.Symbol
	if target == "" {
		target = "<image>"
	}
	desc := fmt.Sprintf("0x%x %s %s%+d", r.Offset, r.Kind, target, r.Addend)
	if r.Lazy {
		desc += " [lazy]"
	}
	return desc
}
