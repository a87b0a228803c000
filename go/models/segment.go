package models

import (
	"fmt"

	"github.com/qbdl/qbdl/go/models/cpu"
)

// Segment is one contiguous region of a binary. Addr is relative to the image base.
// Data may be shorter than Size, the remainder is zero filled when mapped.
type Segment struct {
	Name string
	Addr uint64
	Size uint64
	Data []byte
	Prot int
}

func (s *Segment) End() uint64 {
	return s.Addr + s.Size
}

func (s *Segment) Contains(off uint64) bool {
	return s.Addr <= off && off < s.End()
}

// Padded returns Data zero-extended to Size.
func (s *Segment) Padded() []byte {
	if uint64(len(s.Data)) == s.Size {
		return s.Data
	}
	buf := make([]byte, s.Size)
	copy(buf, s.Data)
	return buf
}

func (s *Segment) String() string {
	return fmt.Sprintf("%-16s 0x%x-0x%x %s", s.Name, s.Addr, s.End(), ProtString(s.Prot))
}

func ProtString(prot int) string {
	return cpu.ProtString(prot)
}

// Span is a half-open address range.
type Span struct {
	Start, End uint64
}

func (s *Span) Overlaps(o *Span) bool {
	return (s.Start >= o.Start && s.Start < o.End) || (o.Start >= s.Start && o.Start < s.End)
}
