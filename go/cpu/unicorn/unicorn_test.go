package unicorn

import (
	"bytes"
	"testing"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/qbdl/qbdl/go/models/cpu"
)

func TestCodeHook(t *testing.T) {
	b := &Builder{Arch: uc.ARCH_X86, Mode: uc.MODE_64}
	c, err := b.New()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.MemMapProt(0x1000, 0x1000, cpu.PROT_ALL); err != nil {
		t.Fatal(err)
	}
	// nop; nop; nop
	code := []byte{0x90, 0x90, 0x90}
	if err := c.MemWrite(0x1000, code); err != nil {
		t.Fatal(err)
	}
	var hits []uint64
	h, err := c.HookAdd(cpu.HOOK_CODE, func(c cpu.Cpu, addr uint64, size uint32) {
		hits = append(hits, addr)
	}, 0x1001, 0x1001)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(0x1000, 0x1000+uint64(len(code))); err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0] != 0x1001 {
		t.Fatalf("hook hits: %x", hits)
	}
	if err := c.HookDel(h); err != nil {
		t.Fatal(err)
	}
	if err := c.MemProt(0x1000, 0x1000, cpu.PROT_READ); err != nil {
		t.Fatal(err)
	}
	data, err := c.MemRead(0x1000, 3)
	if err != nil || !bytes.Equal(data, code) {
		t.Fatalf("read back %x %v", data, err)
	}
	if _, err := c.HookAdd(cpu.HOOK_CODE, func() {}, 1, 0); err == nil {
		t.Fatal("accepted a bad callback")
	}
}
