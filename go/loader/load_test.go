package loader

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/models"
)

func TestDetect(t *testing.T) {
	if p, err := Detect(elfFixture(), nil); err != nil {
		t.Fatal(err)
	} else if _, ok := p.(*ElfParser); !ok {
		t.Fatalf("elf detected as %T", p)
	}
	if p, err := Detect(machoFixture(), nil); err != nil {
		t.Fatal(err)
	} else if _, ok := p.(*MachOParser); !ok {
		t.Fatalf("macho detected as %T", p)
	}
	_, err := Detect([]byte("MZ\x90\x00"), nil)
	if errors.Cause(err) != UnknownMagic {
		t.Fatalf("expected UnknownMagic, got %v", err)
	}
	if _, err := Parse(nil); err == nil {
		t.Fatal("parsed an empty file")
	}
}

func TestRawParser(t *testing.T) {
	p := &RawParser{Arch: models.ArchARM64, Base: 0x10000, Entry: 4}
	bin, err := p.Parse([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	if err != nil {
		t.Fatal(err)
	}
	if len(bin.Segments) != 1 || bin.Segments[0].Size != 8 || bin.Segments[0].Prot != 7 {
		t.Fatalf("bad raw segment: %+v", bin.Segments)
	}
	if err := bin.Validate(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Parse(nil); err == nil {
		t.Fatal("parsed an empty raw image")
	}
}
