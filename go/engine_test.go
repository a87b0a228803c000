package qbdl

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/qbdl/qbdl/go/models"
	"github.com/qbdl/qbdl/go/models/mock"
)

type staticParser struct {
	bin *models.Binary
	err error
}

func (p *staticParser) Parse(raw []byte) (*models.Binary, error) {
	return p.bin, p.err
}

func fooBinary() *models.Binary {
	return &models.Binary{
		Format: "test",
		Arch:   models.ArchX86_64,
		Segments: []models.Segment{
			{Name: "text", Addr: 0x1000, Size: 0x10, Data: []byte{1, 2, 3, 4}, Prot: 5},
		},
		Symbols: []models.Symbol{{Name: "foo", Kind: models.SymImport}},
		Entry:   0x1004,
	}
}

func fooSystem() *mock.System {
	sys := mock.NewSystem(models.ArchX86_64, map[string]uint64{"foo": 0xdeadc0de})
	sys.Hint = 0x40000000
	return sys
}

func memory(sys *mock.System) *mock.Memory {
	return sys.Memory.(*mock.Memory)
}

// fixedMemory maps every image at addr without checking the address space.
type fixedMemory struct {
	*mock.Memory
	addr uint64
}

func (f *fixedMemory) Map(hint, size uint64) (uint64, error) {
	return f.addr, nil
}

func TestLoadScenario(t *testing.T) {
	sys := fooSystem()
	img, err := LoadBinary(fooBinary(), models.ArchX86_64, sys, models.BindNow)
	if err != nil {
		t.Fatal(err)
	}
	if img.Base != 0x40000000 {
		t.Fatalf("base 0x%x", img.Base)
	}
	if img.Entry != img.Base+0x1004 {
		t.Fatalf("entry 0x%x", img.Entry)
	}
	if len(img.Bindings) != 1 || img.Bindings["foo"] != 0xdeadc0de {
		t.Fatalf("bindings:\n%s", spew.Sdump(img.Bindings))
	}
	if img.Size != 0x2000 {
		t.Fatalf("size 0x%x", img.Size)
	}
	if sys.Calls["foo"] != 1 {
		t.Fatalf("foo resolved %d times", sys.Calls["foo"])
	}
	mem := memory(sys)
	if mem.Count("map") != 1 {
		t.Fatalf("map calls: %v", mem.Calls)
	}
	if c := mem.Calls[0]; c.Addr != 0x40000000 || c.Size != 0x2000 {
		t.Fatalf("map call %s", c)
	}
}

func TestSegmentContents(t *testing.T) {
	sys := fooSystem()
	img, err := LoadBinary(fooBinary(), models.ArchX86_64, sys, models.BindNow)
	if err != nil {
		t.Fatal(err)
	}
	data, err := sys.Memory.Read(img.Base+0x1000, 0x10)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(data, want) {
		t.Fatalf("segment contents:\n%s", spew.Sdump(data))
	}
	var prot *mock.Call
	for i, c := range memory(sys).Calls {
		if c.Op == "protect" {
			prot = &memory(sys).Calls[i]
		}
	}
	if prot == nil || prot.Addr != img.Base+0x1000 || prot.Size != 0x10 || prot.Prot != 5 {
		t.Fatalf("protect call: %v", prot)
	}
}

func TestLoadParser(t *testing.T) {
	sys := fooSystem()
	img, err := Load(&staticParser{bin: fooBinary()}, nil, models.ArchX86_64, sys, models.BindNow)
	if err != nil {
		t.Fatal(err)
	}
	if img.Base != 0x40000000 {
		t.Fatalf("base 0x%x", img.Base)
	}

	_, err = Load(&staticParser{err: bytes.ErrTooLarge}, nil, models.ArchX86_64, sys, models.BindNow)
	if !models.IsKind(err, models.MalformedBinary) {
		t.Fatalf("expected MalformedBinary, got %v", err)
	}
	_, err = Load(&staticParser{}, nil, models.ArchX86_64, sys, models.BindNow)
	if !models.IsKind(err, models.MalformedBinary) {
		t.Fatalf("expected MalformedBinary for nil binary, got %v", err)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	for _, path := range []string{filepath.Join(dir, "missing"), dir} {
		_, err := LoadFile(path, models.ArchX86_64, fooSystem(), models.BindNow)
		var lerr *models.LoadError
		if !errors.As(err, &lerr) || lerr.Kind != models.MalformedBinary {
			t.Errorf("%s: expected a MalformedBinary LoadError, got %v", path, err)
		}
	}
}

func TestIncompatibleArch(t *testing.T) {
	for _, arch := range []models.Arch{models.ArchARM64, models.ArchX86, {Family: models.FamilyX86, Endian: models.Big, Bits: 64}} {
		sys := mock.NewSystem(arch, nil)
		_, err := LoadBinary(fooBinary(), arch, sys, models.BindNow)
		if !models.IsKind(err, models.IncompatibleArchitecture) {
			t.Fatalf("%s: expected IncompatibleArchitecture, got %v", arch, err)
		}
		if n := memory(sys).Count("map"); n != 0 {
			t.Fatalf("%s: %d map calls", arch, n)
		}
	}

	sys := fooSystem()
	sys.Reject = true
	_, err := LoadBinary(fooBinary(), models.ArchX86_64, sys, models.BindNow)
	if !models.IsKind(err, models.IncompatibleArchitecture) {
		t.Fatalf("expected IncompatibleArchitecture from Supports, got %v", err)
	}
}

func TestMalformedBeforeMap(t *testing.T) {
	bad := []func(b *models.Binary){
		func(b *models.Binary) {
			b.Symbols = append(b.Symbols,
				models.Symbol{Name: "dup", Kind: models.SymExport, Addr: 0x1000},
				models.Symbol{Name: "dup", Kind: models.SymExport, Addr: 0x1004})
		},
		func(b *models.Binary) { b.Segments[0].Data = make([]byte, 0x11) },
		func(b *models.Binary) { b.Segments = nil },
		func(b *models.Binary) {
			b.Segments = append(b.Segments, models.Segment{Name: "overlap", Addr: 0x1008, Size: 0x10})
		},
		func(b *models.Binary) { b.Entry = 0x2000 },
		func(b *models.Binary) {
			b.Relocs = []models.Relocation{{Offset: 0x100, Symbol: "foo", Kind: models.RelocAbsolute}}
		},
		func(b *models.Binary) {
			b.Relocs = []models.Relocation{{Offset: 0x1000, Kind: models.RelocRelative}}
		},
	}
	for i, mutate := range bad {
		bin := fooBinary()
		mutate(bin)
		sys := fooSystem()
		_, err := LoadBinary(bin, models.ArchX86_64, sys, models.BindNow)
		if !models.IsKind(err, models.MalformedBinary) {
			t.Errorf("case %d: expected MalformedBinary, got %v", i, err)
		}
		if n := memory(sys).Count("map"); n != 0 {
			t.Errorf("case %d: %d map calls", i, n)
		}
	}
}

func TestBaseOverride(t *testing.T) {
	sys := fooSystem()
	img, err := LoadBinary(fooBinary(), models.ArchX86_64, sys, models.BindNow, WithBase(0x7000000))
	if err != nil {
		t.Fatal(err)
	}
	if img.Base != 0x7000000 || img.Entry != 0x7001004 {
		t.Fatalf("bad image: %s", img)
	}

	sys = fooSystem()
	conf := &models.Config{ForceBase: 0x9000000}
	img, err = LoadBinary(fooBinary(), models.ArchX86_64, sys, models.BindNow, WithConfig(conf))
	if err != nil {
		t.Fatal(err)
	}
	if img.Base != 0x9000000 {
		t.Fatalf("ForceBase ignored: %s", img)
	}
}

func TestBindModes(t *testing.T) {
	sys := fooSystem()
	img, err := LoadBinary(fooBinary(), models.ArchX86_64, sys, models.BindLazy)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bindings["foo"] != 0xdeadc0de || !img.Lazy["foo"] {
		t.Fatalf("lazy binding: %s", spew.Sdump(img))
	}

	sys = fooSystem()
	bin := fooBinary()
	bin.Relocs = []models.Relocation{{Offset: 0x1008, Symbol: "foo", Kind: models.RelocAbsolute}}
	img, err = LoadBinary(bin, models.ArchX86_64, sys, models.BindNone)
	if err != nil {
		t.Fatal(err)
	}
	if len(img.Bindings) != 0 || len(sys.Calls) != 0 {
		t.Fatalf("BindNone resolved symbols: %v %v", img.Bindings, sys.Calls)
	}
	slot, _ := models.ReadPtr(sys.Memory, models.ArchX86_64, img.Base+0x1008)
	if slot != 0 {
		t.Fatalf("BindNone patched a slot: 0x%x", slot)
	}
}

func TestBindOnce(t *testing.T) {
	bin := fooBinary()
	bin.Symbols = append(bin.Symbols, models.Symbol{Name: "foo", Kind: models.SymImport})
	bin.Segments[0].Size = 0x20
	bin.Relocs = []models.Relocation{
		{Offset: 0x1008, Symbol: "foo", Kind: models.RelocAbsolute},
		{Offset: 0x1010, Symbol: "foo", Kind: models.RelocAbsolute, Addend: 4},
	}
	sys := fooSystem()
	img, err := LoadBinary(bin, models.ArchX86_64, sys, models.BindNow)
	if err != nil {
		t.Fatal(err)
	}
	if sys.Calls["foo"] != 1 {
		t.Fatalf("foo resolved %d times", sys.Calls["foo"])
	}
	a, _ := models.ReadPtr(sys.Memory, models.ArchX86_64, img.Base+0x1008)
	b, _ := models.ReadPtr(sys.Memory, models.ArchX86_64, img.Base+0x1010)
	if a != 0xdeadc0de || b != 0xdeadc0de+4 {
		t.Fatalf("slots 0x%x 0x%x", a, b)
	}
}

func TestLocalExportWins(t *testing.T) {
	bin := fooBinary()
	bin.Symbols = append(bin.Symbols, models.Symbol{Name: "foo", Kind: models.SymExport, Addr: 0x1004})
	bin.Relocs = []models.Relocation{{Offset: 0x1008, Symbol: "foo", Kind: models.RelocAbsolute}}
	sys := fooSystem()
	img, err := LoadBinary(bin, models.ArchX86_64, sys, models.BindNow)
	if err != nil {
		t.Fatal(err)
	}
	if len(sys.Calls) != 0 {
		t.Fatalf("system consulted for a local export: %v", sys.Calls)
	}
	if img.Bindings["foo"] != img.Base+0x1004 {
		t.Fatalf("foo bound to 0x%x", img.Bindings["foo"])
	}
	slot, _ := models.ReadPtr(sys.Memory, models.ArchX86_64, img.Base+0x1008)
	if slot != img.Base+0x1004 {
		t.Fatalf("slot 0x%x", slot)
	}
}

func TestUnresolved(t *testing.T) {
	bin := fooBinary()
	bin.Symbols = append(bin.Symbols,
		models.Symbol{Name: "bar", Kind: models.SymImport},
		models.Symbol{Name: "maybe", Kind: models.SymImport, Weak: true})
	bin.Relocs = []models.Relocation{{Offset: 0x1008, Symbol: "maybe", Kind: models.RelocAbsolute}}

	// unused unresolved imports are left out of the bindings
	sys := fooSystem()
	img, err := LoadBinary(bin, models.ArchX86_64, sys, models.BindNow)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := img.Bindings["bar"]; ok {
		t.Fatal("bar bound")
	}
	if addr, ok := img.Bindings["maybe"]; !ok || addr != 0 {
		t.Fatalf("weak import bound to 0x%x %v", addr, ok)
	}

	bin.Relocs = append(bin.Relocs, models.Relocation{Offset: 0x1000, Symbol: "bar", Kind: models.RelocAbsolute})
	sys = fooSystem()
	_, err = LoadBinary(bin, models.ArchX86_64, sys, models.BindNow)
	if !models.IsKind(err, models.UnresolvedSymbol) {
		t.Fatalf("expected UnresolvedSymbol, got %v", err)
	}
	if sys.Calls["bar"] != 1 {
		t.Fatalf("bar tried %d times", sys.Calls["bar"])
	}
}

func TestMemoryFaults(t *testing.T) {
	for _, op := range []string{"map", "write", "protect"} {
		sys := fooSystem()
		memory(sys).Fail[op] = true
		_, err := LoadBinary(fooBinary(), models.ArchX86_64, sys, models.BindNow)
		if !models.IsKind(err, models.MemoryFault) {
			t.Errorf("%s failure: expected MemoryFault, got %v", op, err)
		}
	}

	// image does not fit above the returned base in 32 bits
	bin := fooBinary()
	bin.Arch = models.ArchX86
	sys := mock.NewSystem(models.ArchX86, map[string]uint64{"foo": 1})
	sys.Memory = &fixedMemory{memory(sys), 0xfffff000}
	_, err := LoadBinary(bin, models.ArchX86, sys, models.BindNow)
	if !models.IsKind(err, models.MemoryFault) {
		t.Fatalf("expected MemoryFault, got %v", err)
	}
}

// relocBinary has one relocation of each kind, all against foo or the image.
func relocBinary() *models.Binary {
	bin := fooBinary()
	bin.ImageBase = 0x400000
	bin.Segments[0].Size = 0x40
	data := make([]byte, 0x20)
	// a pointer to image base + 0x1004, as linked
	models.ArchX86_64.ByteOrder().PutUint64(data[0x18:], 0x401004)
	bin.Segments[0].Data = data
	bin.Relocs = []models.Relocation{
		{Offset: 0x1000, Symbol: "foo", Kind: models.RelocAbsolute, Size: 4, Addend: -0xde},
		{Offset: 0x1004, Symbol: "foo", Kind: models.RelocRelative, Size: 4},
		{Offset: 0x1008, Symbol: "foo", Kind: models.RelocPCRelative, Size: 4, InsnLen: 4},
		{Offset: 0x1010, Kind: models.RelocAbsolute, Addend: 0x20},
		{Offset: 0x1018, Kind: models.RelocRebase},
	}
	return bin
}

func checkRelocs(t *testing.T, mem models.TargetMemory, base uint64) {
	t.Helper()
	read := func(off uint64, size int) uint64 {
		v, err := models.ReadUint(mem, models.ArchX86_64, base+off, size)
		if err != nil {
			t.Fatal(err)
		}
		return v
	}
	if v := read(0x1000, 4); v != 0x40100000-0xde {
		t.Errorf("abs32: 0x%x", v)
	}
	if v := read(0x1004, 4); v != uint64(uint32(0x40100000-(base+0x1004))) {
		t.Errorf("rel32: 0x%x", v)
	}
	if v := read(0x1008, 4); v != uint64(uint32(0x40100000-(base+0x1008+4))) {
		t.Errorf("pcrel32: 0x%x", v)
	}
	if v := read(0x1010, 8); v != base+0x20 {
		t.Errorf("image relative: 0x%x", v)
	}
	if v := read(0x1018, 8); v != base+0x1004 {
		t.Errorf("rebase: 0x%x", v)
	}
}

func TestRelocations(t *testing.T) {
	sys := fooSystem()
	sys.Table["foo"] = 0x40100000
	img, err := LoadBinary(relocBinary(), models.ArchX86_64, sys, models.BindNow)
	if err != nil {
		t.Fatal(err)
	}
	checkRelocs(t, sys.Memory, img.Base)
}

func TestMapIgnoresHint(t *testing.T) {
	sys := fooSystem()
	sys.Table["foo"] = 0x40100000
	memory(sys).Base = 0x50000000
	img, err := LoadBinary(relocBinary(), models.ArchX86_64, sys, models.BindNow)
	if err != nil {
		t.Fatal(err)
	}
	if calls := memory(sys).Calls; calls[0].Op != "map" || calls[0].Addr != sys.Hint {
		t.Fatalf("map not asked for the hint: %v", calls)
	}
	if img.Base != 0x50000000 || img.Entry != 0x50001004 {
		t.Fatalf("image does not follow the mapped base: %s", img)
	}
	if img.Bindings["foo"] != 0x40100000 {
		t.Fatalf("bindings:\n%s", spew.Sdump(img.Bindings))
	}
	if !img.Contains(0x50001000) || img.Contains(0x40001000) {
		t.Fatalf("Contains uses the hint: %s", img)
	}
	checkRelocs(t, sys.Memory, 0x50000000)
}

func TestRelocationOverflow(t *testing.T) {
	bin := fooBinary()
	bin.Relocs = []models.Relocation{{Offset: 0x1000, Symbol: "foo", Kind: models.RelocAbsolute, Size: 2}}
	sys := fooSystem()
	_, err := LoadBinary(bin, models.ArchX86_64, sys, models.BindNow)
	if !models.IsKind(err, models.MalformedBinary) {
		t.Fatalf("expected MalformedBinary, got %v", err)
	}
}

func TestFits(t *testing.T) {
	cases := []struct {
		val    uint64
		width  int
		signed bool
		ok     bool
	}{
		{0xff, 1, false, true},
		{0x100, 1, false, false},
		{0xffffffff, 4, false, true},
		{0xffffffffffffff80, 1, true, true},
		{0xffffffffffffff7f, 1, true, false},
		{0x7f, 1, true, true},
		{0x80, 1, true, false},
		{0xffffffffffffffff, 8, false, true},
	}
	for _, c := range cases {
		if fits(c.val, c.width, c.signed) != c.ok {
			t.Errorf("fits(0x%x, %d, %v) != %v", c.val, c.width, c.signed, c.ok)
		}
	}
}
