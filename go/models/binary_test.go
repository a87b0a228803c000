package models

import (
	"testing"
)

func testBinary() *Binary {
	return &Binary{
		Format: "test",
		Arch:   ArchX86_64,
		Segments: []Segment{
			{Name: "text", Addr: 0, Size: 0x1000, Data: []byte{0xc3}, Prot: 5},
			{Name: "bss", Addr: 0x2000, Size: 0x800, Prot: 3},
			{Name: "empty", Addr: 0x1000, Size: 0},
		},
		Symbols: []Symbol{
			{Name: "main", Kind: SymExport, Addr: 0},
			{Name: "puts", Kind: SymImport},
		},
		Relocs: []Relocation{{Offset: 0x2000, Symbol: "puts", Kind: RelocAbsolute}},
	}
}

func TestBinaryValidate(t *testing.T) {
	bin := testBinary()
	if err := bin.Validate(); err != nil {
		t.Fatal(err)
	}
	if size := bin.VirtualSize(); size != 0x2800 {
		t.Fatalf("virtual size 0x%x", size)
	}
	if len(bin.Imports()) != 1 || len(bin.Exports()) != 1 {
		t.Fatal("bad symbol split")
	}
}

func TestBinaryValidateErrors(t *testing.T) {
	bad := map[string]func(b *Binary){
		"bits":      func(b *Binary) { b.Arch.Bits = 16 },
		"content":   func(b *Binary) { b.Segments[0].Data = make([]byte, 0x1001) },
		"overflow":  func(b *Binary) { b.Arch = ArchX86; b.Segments[1].Addr = 0xfffff900 },
		"nothing":   func(b *Binary) { b.Segments = b.Segments[2:] },
		"overlap":   func(b *Binary) { b.Segments[1].Addr = 0xff0 },
		"noname":    func(b *Binary) { b.Symbols[1].Name = "" },
		"duplicate": func(b *Binary) { b.Symbols = append(b.Symbols, Symbol{Name: "main", Kind: SymExport, Addr: 8}) },
		"width":     func(b *Binary) { b.Relocs[0].Size = 3 },
		"outside":   func(b *Binary) { b.Relocs[0].Offset = 0x1800 },
		"straddle":  func(b *Binary) { b.Relocs[0].Offset = 0xffc },
		"nosymbol":  func(b *Binary) { b.Relocs[0] = Relocation{Offset: 8, Kind: RelocPCRelative} },
		"entry":     func(b *Binary) { b.Entry = 0x2800 },
	}
	for name, mutate := range bad {
		bin := testBinary()
		mutate(bin)
		err := bin.Validate()
		if !IsKind(err, MalformedBinary) {
			t.Errorf("%s: expected MalformedBinary, got %v", name, err)
		}
	}
}

func TestBinaryDuplicateImports(t *testing.T) {
	bin := testBinary()
	bin.Symbols = append(bin.Symbols, Symbol{Name: "puts", Kind: SymImport})
	if err := bin.Validate(); err != nil {
		t.Fatal(err)
	}
}
