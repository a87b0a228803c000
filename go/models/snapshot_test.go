package models

import (
	"bytes"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/qbdl/qbdl/go/models/cpu"
)

func testImage(t *testing.T) (*LoadedImage, *cpu.Mem) {
	mem := cpu.NewMem(64, ArchARM64.ByteOrder())
	base, err := mem.Map(0x400000, 0x2000)
	if err != nil {
		t.Fatal(err)
	}
	if err := mem.Write(base+0x10, []byte("snapshot")); err != nil {
		t.Fatal(err)
	}
	img := &LoadedImage{
		Arch:     ArchARM64,
		Format:   "elf",
		Base:     base,
		Size:     0x2000,
		Entry:    base + 0x10,
		Bindings: map[string]uint64{"puts": 0x1000, "exit": 0x2000},
		Lazy:     map[string]bool{"exit": true},
	}
	return img, mem
}

func TestSnapshot(t *testing.T) {
	img, mem := testImage(t)
	var buf bytes.Buffer
	if err := SaveImage(&buf, img, mem); err != nil {
		t.Fatal(err)
	}
	snap, err := LoadSnapshot(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Header.Arch != "arm64" || snap.Header.Format != "elf" {
		t.Fatalf("bad header:\n%s", spew.Sdump(snap.Header))
	}
	got := snap.Image
	if got.Arch != img.Arch || got.Base != img.Base || got.Entry != img.Entry || got.Size != img.Size {
		t.Fatalf("image mismatch: %s != %s", got, img)
	}
	if len(got.Bindings) != 2 || got.Bindings["puts"] != 0x1000 || !got.Lazy["exit"] || got.Lazy["puts"] {
		t.Fatalf("bindings mismatch:\n%s", spew.Sdump(got.Bindings, got.Lazy))
	}

	fresh := cpu.NewMem(64, ArchARM64.ByteOrder())
	if err := snap.Restore(fresh); err != nil {
		t.Fatal(err)
	}
	data, err := fresh.Read(img.Base+0x10, 8)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "snapshot" {
		t.Fatalf("restored memory: %q", data)
	}
}

func TestSnapshotCorrupt(t *testing.T) {
	img, mem := testImage(t)
	var buf bytes.Buffer
	if err := SaveImage(&buf, img, mem); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xff
	if _, err := LoadSnapshot(bytes.NewReader(raw)); err == nil {
		t.Fatal("loaded a corrupt snapshot")
	}
	raw[0] = 'X'
	if _, err := LoadSnapshot(bytes.NewReader(raw)); err == nil {
		t.Fatal("loaded a snapshot with bad magic")
	}
}
