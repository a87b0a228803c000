package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/lunixbochs/fvbommel-util/sortorder"
	"github.com/mgutz/ansi"
	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/models"
)

func header(w io.Writer, color bool, title string) {
	if color {
		title = ansi.Color(title, "default+b")
	}
	fmt.Fprintf(w, "%s:\n", title)
}

func PrintImage(w io.Writer, color bool, img *models.LoadedImage) {
	fmt.Fprintf(w, "%s\n", img)
	if img.Interp != "" {
		fmt.Fprintf(w, "interpreter %s\n", img.Interp)
	}
	if len(img.Libraries) > 0 {
		header(w, color, "Libraries")
		for _, lib := range img.Libraries {
			fmt.Fprintf(w, "  %s\n", lib)
		}
	}
	if len(img.Bindings) > 0 {
		header(w, color, "Bindings")
		img.PrintBindings(w, color)
	}
	if names := img.ExportNames(); len(names) > 0 {
		header(w, color, "Exports")
		for _, name := range names {
			fmt.Fprintf(w, "  0x%0*x %s\n", img.Arch.PtrSize()*2, img.Exports[name], name)
		}
	}
}

func PrintBinary(w io.Writer, color bool, bin *models.Binary) {
	fmt.Fprintf(w, "%s %s, image base 0x%x, entry +0x%x\n", bin.Format, bin.Arch, bin.ImageBase, bin.Entry)
	if bin.Interp != "" {
		fmt.Fprintf(w, "interpreter %s\n", bin.Interp)
	}
	if len(bin.Libraries) > 0 {
		header(w, color, "Libraries")
		for _, lib := range bin.Libraries {
			fmt.Fprintf(w, "  %s\n", lib)
		}
	}
	header(w, color, "Segments")
	for i := range bin.Segments {
		fmt.Fprintf(w, "  %s\n", &bin.Segments[i])
	}
	if len(bin.Symbols) > 0 {
		syms := append([]models.Symbol(nil), bin.Symbols...)
		sort.SliceStable(syms, func(i, j int) bool {
			if syms[i].Kind != syms[j].Kind {
				return syms[i].Kind < syms[j].Kind
			}
			return sortorder.NaturalLess(syms[i].Name, syms[j].Name)
		})
		header(w, color, "Symbols")
		for _, s := range syms {
			fmt.Fprintf(w, "  %s\n", s)
		}
	}
	if len(bin.Relocs) > 0 {
		header(w, color, "Relocations")
		for _, r := range bin.Relocs {
			fmt.Fprintf(w, "  %s\n", r)
		}
	}
}

func printIns(w io.Writer, dis []models.Ins) {
	for _, ins := range dis {
		fmt.Fprintf(w, "  %s\n", models.FormatIns(ins))
	}
}

// PrintEntry disassembles a few instructions of a loaded image at addr to conf's output.
func PrintEntry(conf *models.Config, m *models.Machine, mem models.TargetMemory, addr uint64) {
	if m.Dis == nil {
		return
	}
	code, err := mem.Read(addr, 32)
	if err != nil {
		conf.Printf("entry 0x%x unreadable: %v\n", addr, err)
		return
	}
	dis, err := m.Dis.Dis(code, addr)
	if err != nil {
		conf.Printf("entry 0x%x: %v\n", addr, err)
		return
	}
	printIns(conf.Output, dis)
}

// PrintBinaryEntry disassembles n instructions at an unloaded binary's entry point.
func PrintBinaryEntry(w io.Writer, m *models.Machine, bin *models.Binary, n int) error {
	for i := range bin.Segments {
		seg := &bin.Segments[i]
		if !seg.Contains(bin.Entry) {
			continue
		}
		code := seg.Padded()[bin.Entry-seg.Addr:]
		addr := bin.ImageBase + bin.Entry
		dis, err := m.Dis.Dis(code, addr)
		if err != nil {
			return errors.Wrapf(err, "disassembling 0x%x", addr)
		}
		if len(dis) > n {
			dis = dis[:n]
		}
		printIns(w, dis)
		return nil
	}
	return errors.Errorf("entry +0x%x is outside every segment", bin.Entry)
}
