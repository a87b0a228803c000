package models

import (
	"sort"
	"testing"

	"github.com/lunixbochs/fvbommel-util/sortorder"

	"github.com/qbdl/qbdl/go/models/cpu"
)

type Disassembler interface {
	Dis(mem []byte, addr uint64) ([]Ins, error)
}

type Assembler interface {
	Asm(asm string, addr uint64) ([]byte, error)
}

// Machine wires an Arch to the emulator, disassembler and assembler used to run it,
// plus the calling convention used by host functions.
type Machine struct {
	Arch   Arch
	Name   string
	Radare string

	Cpu cpu.Builder
	Dis Disassembler
	Asm Assembler

	PC, SP int
	// Ret holds the return value. Link is the return address register, 0 if the call pushes it.
	Ret  int
	Link int
	// Args are the argument registers in order. Empty means arguments are on the stack.
	Args []int
	// Return is the instruction sequence that returns from a host function stub.
	Return string
	Regs   map[string]int
}

func (m *Machine) RegNames() []string {
	names := make([]string, 0, len(m.Regs))
	for name := range m.Regs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return sortorder.NaturalLess(names[i], names[j]) })
	return names
}

func (m *Machine) SmokeTest(t *testing.T) {
	c, err := m.Cpu.New()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.RegWrite(m.SP, 0x1000); err != nil {
		t.Fatal(err)
	}
	val, err := c.RegRead(m.SP)
	if err != nil {
		t.Fatal(err)
	}
	if val != 0x1000 {
		t.Fatal(m.Name + " failed to read/write stack pointer")
	}
}

// TestStub assembles the Return sequence and checks the disassembler can read it back.
func (m *Machine) TestStub(t *testing.T) {
	code, err := m.Asm.Asm(m.Return, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(code) == 0 {
		t.Fatal(m.Name + " assembled an empty stub")
	}
	dis, err := m.Dis.Dis(code, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(dis) == 0 {
		t.Fatal(m.Name + " failed to disassemble stub")
	}
}
