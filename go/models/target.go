package models

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// TargetMemory is the address space a binary is loaded into.
// Map may honor or relocate hint (0 means anywhere); the returned address wins.
// Write and Read either transfer every byte or fail.
type TargetMemory interface {
	Map(hint, size uint64) (uint64, error)
	Protect(addr, size uint64, prot int) error
	Write(addr uint64, p []byte) error
	Read(addr, size uint64) ([]byte, error)
}

// TargetSystem decides where images go and what imported names resolve to.
type TargetSystem interface {
	Arch() Arch
	Mem() TargetMemory
	Supports(bin *Binary) bool
	Symlink(l Loader, sym Symbol) (uint64, error)
	BaseAddressHint(imageBase, size uint64) uint64
}

// Loader is the view of an in-progress load handed to TargetSystem.Symlink.
type Loader interface {
	Arch() Arch
	Binary() *Binary
	BaseAddress() uint64
	Address(offset uint64) uint64
	SymbolAddress(name string) (uint64, bool)
	Mem() TargetMemory
	// Mode is the binding mode the image is being loaded with.
	Mode() BindMode
}

// Parser turns raw file contents into a Binary.
type Parser interface {
	Parse(raw []byte) (*Binary, error)
}

type BindMode int

const (
	BindNow BindMode = iota
	BindLazy
	BindNone
)

var bindNames = []string{"now", "lazy", "none"}

func (b BindMode) String() string {
	if b >= 0 && int(b) < len(bindNames) {
		return bindNames[b]
	}
	return fmt.Sprintf("bind(%d)", int(b))
}

func ParseBindMode(name string) (BindMode, error) {
	for i, n := range bindNames {
		if strings.EqualFold(n, name) {
			return BindMode(i), nil
		}
	}
	return BindNow, errors.Errorf("unknown bind mode %q (want now, lazy or none)", name)
}
