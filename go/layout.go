package qbdl

import (
	"github.com/qbdl/qbdl/go/models"
)

const PAGE_SIZE = 0x1000

func pageAlign(n uint64) uint64 {
	return (n + PAGE_SIZE - 1) &^ (PAGE_SIZE - 1)
}

// fits reports whether val can be stored in a width-byte field, either as an
// unsigned value or as a sign-extended one.
func fits(val uint64, width int, signed bool) bool {
	if width >= 8 {
		return true
	}
	bits := uint(width * 8)
	s := int64(val)
	min, max := -int64(1)<<(bits-1), int64(1)<<(bits-1)
	if signed {
		return s >= min && s < max
	}
	return val>>bits == 0 || (s >= min && s < 0)
}

// imageSize is the page aligned span covered by bin's segments.
func imageSize(bin *models.Binary) uint64 {
	return pageAlign(bin.VirtualSize())
}

// overflows reports whether base:base+size leaves the arch's address space.
func overflows(arch models.Arch, base, size uint64) bool {
	end := base + size
	return end < base || (end-1)&arch.Mask() != end-1
}
