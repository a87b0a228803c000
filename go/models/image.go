package models

import (
	"fmt"
	"io"
	"sort"

	"github.com/ZenLiuCN/fn"
	"github.com/lunixbochs/fvbommel-util/sortorder"
	"github.com/mgutz/ansi"
)

// LoadedImage is the result of a successful load. It is not modified after Load returns.
type LoadedImage struct {
	Arch      Arch
	Format    string
	Base      uint64
	Size      uint64
	Entry     uint64
	Bindings  map[string]uint64
	Lazy      map[string]bool
	Exports   map[string]uint64
	Libraries []string
	Interp    string
}

func (l *LoadedImage) Contains(addr uint64) bool {
	return addr >= l.Base && addr-l.Base < l.Size
}

// Address converts an image offset to an absolute address.
func (l *LoadedImage) Address(offset uint64) uint64 {
	return l.Base + offset
}

// Lookup resolves a name against local exports first, then bindings.
func (l *LoadedImage) Lookup(name string) (uint64, bool) {
	if addr, ok := l.Exports[name]; ok {
		return addr, true
	}
	addr, ok := l.Bindings[name]
	return addr, ok
}

// Names returns the bound import names in natural order.
func (l *LoadedImage) Names() []string {
	return sortedKeys(l.Bindings)
}

func (l *LoadedImage) ExportNames() []string {
	return sortedKeys(l.Exports)
}

func sortedKeys(m map[string]uint64) []string {
	names := fn.MapKeys(m)
	sort.Slice(names, func(i, j int) bool { return sortorder.NaturalLess(names[i], names[j]) })
	return names
}

func (l *LoadedImage) String() string {
	return fmt.Sprintf("%s %s image @0x%x-0x%x entry 0x%x", l.Format, l.Arch.Name(), l.Base, l.Base+l.Size, l.Entry)
}

// PrintBindings writes the binding table, colored if color is set.
func (l *LoadedImage) PrintBindings(w io.Writer, color bool) {
	width := l.Arch.PtrSize() * 2
	name, addr, lazy, reset := "", "", "", ""
	if color {
		name = ansi.ColorCode("default+b")
		addr = ansi.ColorCode("cyan")
		lazy = ansi.ColorCode("yellow")
		reset = ansi.Reset
	}
	for _, n := range l.Names() {
		flag := ""
		if l.Lazy[n] {
			flag = " " + lazy + "(lazy)" + reset
		}
		fmt.Fprintf(w, "  %s0x%0*x%s %s%s%s%s\n", addr, width, l.Bindings[n], reset, name, n, reset, flag)
	}
}
