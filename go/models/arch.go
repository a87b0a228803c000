package models

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type Family int

const (
	FamilyNone Family = iota
	FamilyX86
	FamilyARM
	FamilyARM64
	FamilyMIPS
	FamilyPPC
	FamilyRISCV
)

var familyNames = map[Family]string{
	FamilyNone:  "none",
	FamilyX86:   "x86",
	FamilyARM:   "arm",
	FamilyARM64: "arm64",
	FamilyMIPS:  "mips",
	FamilyPPC:   "ppc",
	FamilyRISCV: "riscv",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("family(%d)", int(f))
}

type Endian int

const (
	Little Endian = iota
	Big
)

func (e Endian) String() string {
	if e == Big {
		return "big"
	}
	return "little"
}

// Arch describes an instruction set family, byte order and address width.
// It is a plain value and is compared with ==.
type Arch struct {
	Family Family
	Endian Endian
	Bits   int
}

var (
	ArchX86    = Arch{FamilyX86, Little, 32}
	ArchX86_64 = Arch{FamilyX86, Little, 64}
	ArchARM    = Arch{FamilyARM, Little, 32}
	ArchARM64  = Arch{FamilyARM64, Little, 64}
	ArchMIPS   = Arch{FamilyMIPS, Big, 32}
	ArchMIPSel = Arch{FamilyMIPS, Little, 32}
	ArchPPC    = Arch{FamilyPPC, Big, 32}
	ArchPPC64  = Arch{FamilyPPC, Big, 64}
)

var archNames = map[string]Arch{
	"x86":     ArchX86,
	"i386":    ArchX86,
	"x86_64":  ArchX86_64,
	"amd64":   ArchX86_64,
	"arm":     ArchARM,
	"arm64":   ArchARM64,
	"aarch64": ArchARM64,
	"mips":    ArchMIPS,
	"mipsel":  ArchMIPSel,
	"ppc":     ArchPPC,
	"ppc64":   ArchPPC64,
}

// ParseArch maps the conventional short names ("x86_64", "arm64", ...) to an Arch.
func ParseArch(name string) (Arch, error) {
	if a, ok := archNames[strings.ToLower(name)]; ok {
		return a, nil
	}
	return Arch{}, errors.Errorf("unknown arch %q", name)
}

// Name returns the conventional short name of the architecture.
func (a Arch) Name() string {
	switch {
	case a.Family == FamilyX86 && a.Bits == 64:
		return "x86_64"
	case a.Family == FamilyMIPS && a.Endian == Little:
		return "mipsel"
	case a.Family == FamilyPPC && a.Bits == 64:
		return "ppc64"
	}
	return a.Family.String()
}

func (a Arch) String() string {
	return fmt.Sprintf("%s (%d-bit %s-endian)", a.Name(), a.Bits, a.Endian)
}

// Compatible reports whether code built for a can be loaded for b.
// Family, address width and endianness must all match.
func (a Arch) Compatible(b Arch) bool {
	return a.Family == b.Family && a.Bits == b.Bits && a.Endian == b.Endian
}

func Compatible(a, b Arch) bool {
	return a.Compatible(b)
}

func (a Arch) ByteOrder() binary.ByteOrder {
	if a.Endian == Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (a Arch) PtrSize() int {
	if a.Bits == 64 {
		return 8
	}
	return 4
}

// Mask covers every valid address for this width.
func (a Arch) Mask() uint64 {
	if a.Bits >= 64 || a.Bits <= 0 {
		return ^uint64(0)
	}
	return ^uint64(0) >> (64 - uint(a.Bits))
}
