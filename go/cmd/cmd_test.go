package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/models"
)

func TestFindStack(t *testing.T) {
	inner := errors.New("inner")
	err := models.WrapKind(models.MemoryFault, inner, "map")
	if findStack(err) == nil {
		t.Fatal("no stack found through LoadError")
	}
	if findStack(ExitStatus(3)) != nil {
		t.Fatal("found a stack on a plain error")
	}
}

func TestPrintBinary(t *testing.T) {
	bin := &models.Binary{
		Format:    "elf",
		Arch:      models.ArchX86_64,
		ImageBase: 0x400000,
		Segments:  []models.Segment{{Name: "load0", Size: 0x100, Prot: 5}},
		Symbols: []models.Symbol{
			{Name: "puts", Kind: models.SymImport},
			{Name: "main", Kind: models.SymExport, Addr: 0x10},
			{Name: "exit", Kind: models.SymImport},
		},
		Relocs:    []models.Relocation{{Offset: 0x20, Kind: models.RelocAbsolute, Symbol: "puts", Lazy: true}},
		Libraries: []string{"libc.so.6"},
	}
	var buf bytes.Buffer
	PrintBinary(&buf, false, bin)
	out := buf.String()
	for _, want := range []string{"Libraries:\n  libc.so.6", "Segments:", "import exit\n  import puts", "[lazy]"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	buf.Reset()
	PrintBinary(&buf, true, bin)
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Error("color output has no escapes")
	}
}

func TestPrintImage(t *testing.T) {
	img := &models.LoadedImage{
		Arch:     models.ArchX86,
		Format:   "macho",
		Base:     0x1000,
		Size:     0x2000,
		Bindings: map[string]uint64{"puts": 0x1234},
		Exports:  map[string]uint64{"main": 0x1010},
	}
	var buf bytes.Buffer
	PrintImage(&buf, false, img)
	out := buf.String()
	for _, want := range []string{"Bindings:\n  0x00001234 puts\n", "Exports:\n  0x00001010 main\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
