package loader

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/binary"
)

type image []byte

func (b image) put(off int, v interface{}) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
	copy(b[off:], buf.Bytes())
}

func name16(s string) (out [16]byte) {
	copy(out[:], s)
	return
}

// elfFixture builds a small x86_64 shared object:
//
//	one RW PT_LOAD at 0x401000 (filesz 0x20, memsz 0x100)
//	dynsym: foo (undef), bar (0x401008), weakling (undef, weak)
//	rela.dyn: JUMP_SLOT foo @0x401000, GLOB_DAT weakling @0x401010, RELATIVE @0x401018 -> 0x401008
func elfFixture() []byte {
	b := make(image, 0x1020)
	var ident [elf.EI_NIDENT]byte
	copy(ident[:], "\x7fELF")
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	b.put(0, elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_DYN),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     0x401010,
		Phoff:     0x40,
		Shoff:     0x500,
		Ehsize:    64,
		Phentsize: 56,
		Phnum:     1,
		Shentsize: 64,
		Shnum:     6,
		Shstrndx:  4,
	})
	b.put(0x40, elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_W),
		Off:    0x1000,
		Vaddr:  0x401000,
		Paddr:  0x401000,
		Filesz: 0x20,
		Memsz:  0x100,
		Align:  0x1000,
	})

	dynstr := "\x00foo\x00bar\x00weakling\x00"
	copy(b[0x100:], dynstr)
	syms := []elf.Sym64{
		{},
		{Name: 1, Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)},
		{Name: 5, Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_OBJECT), Shndx: 5, Value: 0x401008, Size: 8},
		{Name: 9, Info: elf.ST_INFO(elf.STB_WEAK, elf.STT_FUNC)},
	}
	b.put(0x200, syms)
	relas := []elf.Rela64{
		{Off: 0x401000, Info: elf.R_INFO(1, uint32(elf.R_X86_64_JMP_SLOT))},
		{Off: 0x401010, Info: elf.R_INFO(3, uint32(elf.R_X86_64_GLOB_DAT))},
		{Off: 0x401018, Info: elf.R_INFO(0, uint32(elf.R_X86_64_RELATIVE)), Addend: 0x401008},
	}
	b.put(0x300, relas)
	shstr := "\x00.dynstr\x00.dynsym\x00.rela.dyn\x00.shstrtab\x00.data\x00"
	copy(b[0x400:], shstr)
	sections := []elf.Section64{
		{},
		{Name: 1, Type: uint32(elf.SHT_STRTAB), Off: 0x100, Size: uint64(len(dynstr)), Addralign: 1},
		{Name: 9, Type: uint32(elf.SHT_DYNSYM), Off: 0x200, Size: uint64(len(syms) * 24), Link: 1, Info: 1, Addralign: 8, Entsize: 24},
		{Name: 17, Type: uint32(elf.SHT_RELA), Off: 0x300, Size: uint64(len(relas) * 24), Link: 2, Addralign: 8, Entsize: 24},
		{Name: 27, Type: uint32(elf.SHT_STRTAB), Off: 0x400, Size: uint64(len(shstr)), Addralign: 1},
		{Name: 37, Type: uint32(elf.SHT_PROGBITS), Flags: uint64(elf.SHF_ALLOC | elf.SHF_WRITE), Addr: 0x401000, Off: 0x1000, Size: 0x20, Addralign: 8},
	}
	b.put(0x500, sections)
	b.put(0x1008, uint64(0x1122334455667788))
	return b
}

// machoFixture builds a small x86_64 executable:
//
//	__TEXT 0x100000000 (entry at +0x800), __DATA 0x100001000, __LINKEDIT 0x100002000
//	rebase: __DATA+0 holds 0x100000800
//	bind: _puts @__DATA+8, lazy bind: _exit @__DATA+0x10 (weak)
//	exports: _main at the entry point
func machoFixture() []byte {
	b := make(image, 0x1090)
	const (
		lcSegment64    = 0x19
		lcSymtab       = 0x2
		lcMain         = 0x80000028
		lcLoadDylib    = 0xc
		lcDyldInfoOnly = 0x80000022
		dataOff        = 0x1000
		linkeditOff    = 0x1018
		rebaseOff      = 0x1018
		bindOff        = 0x1020
		lazyOff        = 0x1030
		symOff         = 0x1040
		strOff         = 0x1070
		linkeditFilesz = 0x78
	)
	dylib := "/usr/lib/libSystem.B.dylib"
	dylibLen := (24 + len(dylib) + 1 + 7) &^ 7

	off := 32
	var ncmd, cmdsz int
	cmd := func(v interface{}, size int) {
		b.put(off, v)
		off += size
		ncmd++
		cmdsz += size
	}
	segment := func(name string, addr, memsz, fileoff, filesz uint64, prot uint32) {
		cmd(macho.Segment64{
			Cmd: lcSegment64, Len: 72, Name: name16(name),
			Addr: addr, Memsz: memsz, Offset: fileoff, Filesz: filesz,
			Maxprot: prot, Prot: prot,
		}, 72)
	}
	segment("__PAGEZERO", 0, 0x100000000, 0, 0, 0)
	segment("__TEXT", 0x100000000, 0x1000, 0, 0x1000, 5)
	segment("__DATA", 0x100001000, 0x1000, dataOff, 0x18, 3)
	segment("__LINKEDIT", 0x100002000, 0x1000, linkeditOff, linkeditFilesz, 1)
	cmd([]uint32{lcMain, 24, 0x800, 0, 0, 0}, 24)
	b.put(off+24, []byte(dylib))
	cmd([]uint32{lcLoadDylib, uint32(dylibLen), 24, 2, 0x10000, 0x10000}, dylibLen)
	cmd([]uint32{lcDyldInfoOnly, 48,
		rebaseOff, 5,
		bindOff, 13,
		0, 0,
		lazyOff, 12,
		0, 0}, 48)
	cmd(macho.SymtabCmd{Cmd: lcSymtab, Len: 24, Symoff: symOff, Nsyms: 3, Stroff: strOff, Strsize: 19}, 24)

	b.put(0, macho.FileHeader{
		Magic:  macho.Magic64,
		Cpu:    macho.CpuAmd64,
		SubCpu: 3,
		Type:   macho.TypeExec,
		Ncmd:   uint32(ncmd),
		Cmdsz:  uint32(cmdsz),
	})

	// ret
	b[0x800] = 0xc3
	b.put(dataOff, uint64(0x100000800))

	copy(b[rebaseOff:], []byte{0x11, 0x22, 0x00, 0x51, 0x00})
	copy(b[bindOff:], []byte{0x11, 0x40, '_', 'p', 'u', 't', 's', 0, 0x51, 0x72, 0x08, 0x90, 0x00})
	copy(b[lazyOff:], []byte{0x72, 0x10, 0x11, 0x40, '_', 'e', 'x', 'i', 't', 0, 0x90, 0x00})
	b.put(symOff, []macho.Nlist64{
		{Name: 1, Type: 0x01, Desc: 0x0100},
		{Name: 7, Type: 0x01, Desc: 0x0140},
		{Name: 13, Type: 0x0f, Sect: 1, Value: 0x100000800},
	})
	copy(b[strOff:], "\x00_puts\x00_exit\x00_main\x00")
	return b
}

// peFixture builds a small PE32+ x86_64 executable at image base 0x140000000:
//
//	.text 0x1000 (entry, ret), .data 0x2000
//	imports KERNEL32.dll: ExitProcess (IAT 0x2058), ordinal 7 (IAT 0x2060)
//	base reloc: DIR64 @0x20a0 holding 0x140001000
//	exports: start at 0x1000, names at 0x2100
func peFixture() []byte {
	b := make(image, 0x600)
	const (
		textOff = 0x200
		dataOff = 0x400
		dataRVA = 0x2000
	)
	// data writes at rva
	at := func(rva int, v interface{}) { b.put(dataOff+rva-dataRVA, v) }

	b[0], b[1] = 'M', 'Z'
	b.put(0x3c, uint32(0x40))
	copy(b[0x40:], "PE\x00\x00")
	b.put(0x44, pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_AMD64,
		NumberOfSections:     2,
		SizeOfOptionalHeader: 240,
		Characteristics:      0x22,
	})
	oh := pe.OptionalHeader64{
		Magic:               0x20b,
		AddressOfEntryPoint: 0x1000,
		ImageBase:           0x140000000,
		SectionAlignment:    0x1000,
		FileAlignment:       0x200,
		SizeOfImage:         0x3000,
		SizeOfHeaders:       0x200,
		NumberOfRvaAndSizes: 16,
	}
	oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT] = pe.DataDirectory{VirtualAddress: 0x20c0, Size: 0x40}
	oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_IMPORT] = pe.DataDirectory{VirtualAddress: 0x2000, Size: 40}
	oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_BASERELOC] = pe.DataDirectory{VirtualAddress: 0x20b0, Size: 12}
	b.put(0x58, oh)
	section := func(name string, rva, vsize, off, size, flags uint32) pe.SectionHeader32 {
		var n [8]uint8
		copy(n[:], name)
		return pe.SectionHeader32{
			Name: n, VirtualAddress: rva, VirtualSize: vsize,
			PointerToRawData: off, SizeOfRawData: size, Characteristics: flags,
		}
	}
	b.put(0x58+240, []pe.SectionHeader32{
		section(".text", 0x1000, 0x10, textOff, 0x200, pe.IMAGE_SCN_CNT_CODE|pe.IMAGE_SCN_MEM_EXECUTE|pe.IMAGE_SCN_MEM_READ),
		section(".data", dataRVA, 0x200, dataOff, 0x200, pe.IMAGE_SCN_CNT_INITIALIZED_DATA|pe.IMAGE_SCN_MEM_READ|pe.IMAGE_SCN_MEM_WRITE),
	})

	// ret
	b[textOff] = 0xc3

	at(0x2000, []uint32{0x2040, 0, 0, 0x2070, 0x2058})
	thunks := []uint64{0x2080, 1<<63 | 7, 0}
	at(0x2040, thunks)
	at(0x2058, thunks)
	at(0x2070, []byte("KERNEL32.dll\x00"))
	at(0x2082, []byte("ExitProcess\x00"))
	at(0x20a0, uint64(0x140001000))
	at(0x20b0, []uint32{0x2000, 12})
	at(0x20b8, []uint16{peRelBasedDir64<<12 | 0xa0, 0})
	at(0x20c0, []uint32{0, 0, 0, 0x2100, 1, 1, 1, 0x20f0, 0x20f4, 0x20f8})
	at(0x20f0, []uint32{0x1000, 0x2106})
	at(0x20f8, uint16(0))
	at(0x2100, []byte("t.exe\x00start\x00"))
	return b
}
