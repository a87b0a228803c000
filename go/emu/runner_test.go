package emu

import (
	"bytes"
	"testing"

	"github.com/qbdl/qbdl/go/models"
	"github.com/qbdl/qbdl/go/models/mock"
)

const (
	regPC = iota + 1
	regSP
	regRet
	regArg0
)

func testMachine(t *testing.T, conf *models.Config) (*Runner, *mock.Cpu, *bytes.Buffer) {
	args := []int{regArg0, regArg0 + 1, regArg0 + 2}
	c := mock.NewCpu(models.ArchX86_64, regPC, append([]int{regSP, regRet}, args...))
	m := &models.Machine{
		Arch: models.ArchX86_64,
		Name: "x86_64",
		Cpu:  &mock.CpuBuilder{Cpu: c},
		PC:   regPC,
		SP:   regSP,
		Ret:  regRet,
		Args: args,
	}
	r, err := New(m, conf)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	r.Libc.Stdout = &out
	return r, c, &out
}

func program(imports ...string) *models.Binary {
	bin := &models.Binary{
		Arch:   models.ArchX86_64,
		Format: "macho",
		Segments: []models.Segment{
			{Name: "__TEXT", Addr: 0, Size: 0x1000, Data: []byte{0x90, 0x90, 0x90, 0xc3}, Prot: 5},
		},
		Entry: 0,
	}
	for _, name := range imports {
		bin.Symbols = append(bin.Symbols, models.Symbol{Name: name, Kind: models.SymImport})
	}
	return bin
}

func (r *Runner) cstring(t *testing.T, s string) uint64 {
	addr, err := r.Mem.Map(0, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Mem.Write(addr, append([]byte(s), 0)); err != nil {
		t.Fatal(err)
	}
	return addr
}

func TestRunHostCall(t *testing.T) {
	r, c, out := testMachine(t, nil)
	if err := r.LoadBinary(program("_puts")); err != nil {
		t.Fatal(err)
	}
	str := r.cstring(t, "hello")
	puts := r.Image.Bindings["_puts"]
	c.Exec = map[uint64]func(*mock.Cpu){
		r.Image.Entry: func(c *mock.Cpu) { c.RegWrite(regArg0, str) },
	}
	c.Trace = []uint64{r.Image.Entry, puts, r.Image.Entry + 3}
	if err := r.Run("prog"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hello\n" {
		t.Fatalf("stdout %q", out.String())
	}
	if ret, _ := c.RegRead(regRet); ret != 6 {
		t.Fatalf("puts returned %d", ret)
	}
	stub, _ := r.Sys.StubAt(puts)
	if stub.Hits != 1 {
		t.Fatalf("stub hit %d times", stub.Hits)
	}
}

func TestRunArgs(t *testing.T) {
	r, c, _ := testMachine(t, nil)
	if err := r.LoadBinary(program()); err != nil {
		t.Fatal(err)
	}
	if err := r.Run("prog", "arg"); err != nil {
		t.Fatal(err)
	}
	argc, _ := c.RegRead(regArg0)
	argv, _ := c.RegRead(regArg0 + 1)
	sp, _ := c.RegRead(regSP)
	if argc != 2 {
		t.Fatalf("argc %d", argc)
	}
	ret, err := models.ReadPtr(r.Mem, models.ArchX86_64, sp)
	if err != nil || ret != r.exit.Addr {
		t.Fatalf("return address 0x%x, want 0x%x (%v)", ret, r.exit.Addr, err)
	}
	if sp%16 != 8 {
		t.Fatalf("misaligned sp 0x%x", sp)
	}
	for i, want := range []string{"prog", "arg"} {
		ptr, err := models.ReadPtr(r.Mem, models.ArchX86_64, argv+uint64(i*8))
		if err != nil {
			t.Fatal(err)
		}
		got, err := models.ReadStr(r.Mem, ptr, 16)
		if err != nil || got != want {
			t.Fatalf("argv[%d] = %q %v", i, got, err)
		}
	}
	if last, _ := models.ReadPtr(r.Mem, models.ArchX86_64, argv+16); last != 0 {
		t.Fatal("argv is not null terminated")
	}
}

func TestRunExit(t *testing.T) {
	r, c, _ := testMachine(t, nil)
	if err := r.LoadBinary(program("_exit", "_puts")); err != nil {
		t.Fatal(err)
	}
	exit := r.Image.Bindings["_exit"]
	puts := r.Image.Bindings["_puts"]
	c.Trace = []uint64{r.Image.Entry, exit, puts}
	// argc is the first argument, and exit's
	if err := r.Run("a", "b", "c"); err != nil {
		t.Fatal(err)
	}
	if r.ExitCode() != 3 {
		t.Fatalf("exit code %d", r.ExitCode())
	}
	for _, addr := range c.Executed {
		if addr == puts {
			t.Fatal("ran past exit")
		}
	}
}

func TestRunReturn(t *testing.T) {
	r, c, _ := testMachine(t, nil)
	if err := r.LoadBinary(program()); err != nil {
		t.Fatal(err)
	}
	c.Trace = []uint64{r.Image.Entry, r.Image.Entry + 3}
	c.RegWrite(regRet, 7)
	if err := r.Run(); err != nil {
		t.Fatal(err)
	}
	if r.ExitCode() != 7 {
		t.Fatalf("exit code %d", r.ExitCode())
	}
	if c.Hooks() != 0 {
		t.Fatal("stub hooks left installed")
	}
}

func TestRunLazy(t *testing.T) {
	r, c, _ := testMachine(t, &models.Config{Bind: models.BindLazy})
	r.Sys.Symbols["target"] = 0x5000
	if err := r.LoadBinary(program("_target")); err != nil {
		t.Fatal(err)
	}
	if !r.Image.Lazy["_target"] {
		t.Fatal("binding not marked lazy")
	}
	stubAddr := r.Image.Bindings["_target"]
	c.Trace = []uint64{r.Image.Entry, stubAddr}
	if err := r.Run(); err != nil {
		t.Fatal(err)
	}
	if pc, _ := c.RegRead(regPC); pc != 0x5000 {
		t.Fatalf("trampoline jumped to 0x%x", pc)
	}
}

func TestRunUnresolved(t *testing.T) {
	r, c, _ := testMachine(t, nil)
	r.Sys.StubUnknown = true
	if err := r.LoadBinary(program("_mystery")); err != nil {
		t.Fatal(err)
	}
	c.Trace = []uint64{r.Image.Entry, r.Image.Bindings["_mystery"], r.Image.Entry + 1}
	if err := r.Run(); err == nil {
		t.Fatal("call to an unresolved import succeeded")
	}
	if c.Executed[len(c.Executed)-1] != r.Image.Bindings["_mystery"] {
		t.Fatal("emulation continued after the failure")
	}
	if err := r.Close(); err != nil || !c.Closed {
		t.Fatal("cpu not closed")
	}
}
