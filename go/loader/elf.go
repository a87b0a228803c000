package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/models"
)

var machineMap = map[elf.Machine]models.Family{
	elf.EM_386:     models.FamilyX86,
	elf.EM_X86_64:  models.FamilyX86,
	elf.EM_ARM:     models.FamilyARM,
	elf.EM_AARCH64: models.FamilyARM64,
	elf.EM_MIPS:    models.FamilyMIPS,
	elf.EM_PPC:     models.FamilyPPC,
	elf.EM_PPC64:   models.FamilyPPC,
	elf.EM_RISCV:   models.FamilyRISCV,
}

var elfMagic = []byte{0x7f, 0x45, 0x4c, 0x46}

func MatchElf(raw []byte) bool {
	return bytes.Equal(getMagic(raw), elfMagic)
}

type elfRela64 struct {
	Off    uint64
	Info   uint64
	Addend int64
}

type elfRela32 struct {
	Off    uint32
	Info   uint32
	Addend int32
}

type elfRel32 struct {
	Off  uint32
	Info uint32
}

type elfReloc struct {
	off    uint64
	sym    uint32
	typ    uint32
	addend int64
	rela   bool
	plt    bool
}

type ElfParser struct{}

type elfParse struct {
	file    *elf.File
	bin     *models.Binary
	dynsyms []elf.Symbol
	size    uint64
}

func (p *ElfParser) Parse(raw []byte) (*models.Binary, error) {
	file, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open ELF file")
	}
	family, ok := machineMap[file.Machine]
	if !ok {
		return nil, errors.Errorf("Unsupported machine: %s", file.Machine)
	}
	arch := models.Arch{Family: family}
	switch file.Class {
	case elf.ELFCLASS32:
		arch.Bits = 32
	case elf.ELFCLASS64:
		arch.Bits = 64
	default:
		return nil, errors.New("Unknown ELF class.")
	}
	if file.Data == elf.ELFDATA2MSB {
		arch.Endian = models.Big
	}
	e := &elfParse{file: file, bin: &models.Binary{Format: "elf", Arch: arch}, size: uint64(len(raw))}
	steps := []func() error{e.segments, e.symbols, e.relocations}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	if file.Entry < e.bin.ImageBase {
		return nil, errors.Errorf("entry 0x%x below image base 0x%x", file.Entry, e.bin.ImageBase)
	}
	e.bin.Entry = file.Entry - e.bin.ImageBase
	return e.bin, nil
}

func (e *elfParse) rva(addr uint64) uint64 {
	return addr - e.bin.ImageBase
}

func elfProt(flags elf.ProgFlag) int {
	prot := 0
	if flags&elf.PF_R != 0 {
		prot |= 1
	}
	if flags&elf.PF_W != 0 {
		prot |= 2
	}
	if flags&elf.PF_X != 0 {
		prot |= 4
	}
	return prot
}

func (e *elfParse) segments() error {
	first := true
	for _, prog := range e.file.Progs {
		switch prog.Type {
		case elf.PT_INTERP:
			data, _ := ioutil.ReadAll(prog.Open())
			e.bin.Interp = strings.TrimRight(string(data), "\x00")
		case elf.PT_LOAD:
			if first {
				e.bin.ImageBase = prog.Vaddr &^ 0xfff
				first = false
			}
		}
	}
	if first {
		return errors.New("no PT_LOAD segments")
	}
	for i, prog := range e.file.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}
		if prog.Vaddr < e.bin.ImageBase {
			return errors.Errorf("PT_LOAD %d below image base", i)
		}
		if prog.Filesz > prog.Memsz {
			return errors.Errorf("PT_LOAD %d: filesz 0x%x > memsz 0x%x", i, prog.Filesz, prog.Memsz)
		}
		if prog.Off > e.size || prog.Filesz > e.size-prog.Off {
			return errors.Errorf("PT_LOAD %d: file range 0x%x+0x%x outside file", i, prog.Off, prog.Filesz)
		}
		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil && prog.Filesz > 0 {
			return errors.Wrapf(err, "failed to read PT_LOAD %d", i)
		}
		e.bin.Segments = append(e.bin.Segments, models.Segment{
			Name: fmt.Sprintf("load%d", len(e.bin.Segments)),
			Addr: e.rva(prog.Vaddr),
			Size: prog.Memsz,
			Data: data,
			Prot: elfProt(prog.Flags),
		})
	}
	libs, err := e.file.ImportedLibraries()
	if err == nil {
		e.bin.Libraries = libs
	}
	return nil
}

func (e *elfParse) symbols() error {
	syms, err := e.file.DynamicSymbols()
	if err != nil {
		if err == elf.ErrNoSymbols {
			return nil
		}
		return errors.Wrap(err, "failed to read dynamic symbols")
	}
	e.dynsyms = syms
	seen := make(map[string]bool)
	for _, s := range syms {
		bind := elf.ST_BIND(s.Info)
		if s.Name == "" || (bind != elf.STB_GLOBAL && bind != elf.STB_WEAK) || seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		if s.Section == elf.SHN_UNDEF {
			e.bin.Symbols = append(e.bin.Symbols, models.Symbol{
				Name:    s.Name,
				Kind:    models.SymImport,
				Library: s.Library,
				Weak:    bind == elf.STB_WEAK,
			})
		} else if s.Section != elf.SHN_ABS && s.Value >= e.bin.ImageBase {
			e.bin.Symbols = append(e.bin.Symbols, models.Symbol{
				Name: s.Name,
				Kind: models.SymExport,
				Addr: e.rva(s.Value),
			})
		}
	}
	return nil
}

func (e *elfParse) readRelocs(sec *elf.Section) ([]elfReloc, error) {
	data, err := sec.Data()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", sec.Name)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if e.bin.Arch.Endian == models.Big {
		order = binary.BigEndian
	}
	r := bytes.NewReader(data)
	plt := strings.HasSuffix(sec.Name, ".plt")
	var out []elfReloc
	for r.Len() > 0 {
		switch {
		case e.bin.Arch.Bits == 64 && sec.Type == elf.SHT_RELA:
			var rel elfRela64
			if err := struc.UnpackWithOrder(r, &rel, order); err != nil {
				return nil, errors.Wrap(err, "truncated Rela64")
			}
			out = append(out, elfReloc{rel.Off, uint32(rel.Info >> 32), uint32(rel.Info), rel.Addend, true, plt})
		case e.bin.Arch.Bits == 32 && sec.Type == elf.SHT_RELA:
			var rel elfRela32
			if err := struc.UnpackWithOrder(r, &rel, order); err != nil {
				return nil, errors.Wrap(err, "truncated Rela32")
			}
			out = append(out, elfReloc{uint64(rel.Off), rel.Info >> 8, rel.Info & 0xff, int64(rel.Addend), true, plt})
		case e.bin.Arch.Bits == 32 && sec.Type == elf.SHT_REL:
			var rel elfRel32
			if err := struc.UnpackWithOrder(r, &rel, order); err != nil {
				return nil, errors.Wrap(err, "truncated Rel32")
			}
			out = append(out, elfReloc{uint64(rel.Off), rel.Info >> 8, rel.Info & 0xff, 0, false, plt})
		default:
			return nil, errors.Errorf("unsupported relocation section %s", sec.Name)
		}
	}
	return out, nil
}

// implicit reads the addend stored at the patch site of a REL relocation.
func (e *elfParse) implicit(off uint64, size int) (int64, error) {
	for _, s := range e.bin.Segments {
		if s.Contains(off) {
			o := off - s.Addr
			if o+uint64(size) > uint64(len(s.Data)) {
				return 0, nil
			}
			if size == 4 {
				return int64(int32(e.bin.Arch.ByteOrder().Uint32(s.Data[o:]))), nil
			}
			return int64(e.bin.Arch.ByteOrder().Uint64(s.Data[o:])), nil
		}
	}
	return 0, errors.Errorf("relocation at 0x%x outside any segment", off)
}

func (e *elfParse) relocations() error {
	for _, sec := range e.file.Sections {
		if sec.Type != elf.SHT_RELA && sec.Type != elf.SHT_REL {
			continue
		}
		// only dynamic relocations, which reference .dynsym
		if int(sec.Link) >= len(e.file.Sections) || e.file.Sections[sec.Link].Type != elf.SHT_DYNSYM {
			continue
		}
		relocs, err := e.readRelocs(sec)
		if err != nil {
			return err
		}
		for _, r := range relocs {
			if err := e.convert(r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *elfParse) symName(idx uint32) (string, error) {
	if idx == 0 {
		return "", nil
	}
	// DynamicSymbols skips the null symbol at index 0
	if int(idx) > len(e.dynsyms) {
		return "", errors.Errorf("relocation symbol index %d out of range", idx)
	}
	return e.dynsyms[idx-1].Name, nil
}

func (e *elfParse) convert(r elfReloc) error {
	name, err := e.symName(r.sym)
	if err != nil {
		return err
	}
	if r.off < e.bin.ImageBase {
		return errors.Errorf("relocation at 0x%x below image base", r.off)
	}
	reloc := models.Relocation{Offset: e.rva(r.off), Symbol: name, Addend: r.addend}
	arch := e.bin.Arch
	switch {
	case arch == models.ArchX86_64:
		switch elf.R_X86_64(r.typ) {
		case elf.R_X86_64_NONE, elf.R_X86_64_COPY:
			return nil
		case elf.R_X86_64_64:
			reloc.Kind = models.RelocAbsolute
		case elf.R_X86_64_32, elf.R_X86_64_32S:
			reloc.Kind = models.RelocAbsolute
			reloc.Size = 4
		case elf.R_X86_64_PC32:
			reloc.Kind = models.RelocRelative
			reloc.Size = 4
		case elf.R_X86_64_GLOB_DAT:
			reloc.Kind = models.RelocAbsolute
			reloc.Addend = 0
		case elf.R_X86_64_JMP_SLOT:
			reloc.Kind = models.RelocAbsolute
			reloc.Addend = 0
			reloc.Lazy = true
		case elf.R_X86_64_RELATIVE:
			reloc.Kind = models.RelocAbsolute
			reloc.Symbol = ""
			reloc.Addend = int64(e.rva(uint64(r.addend)))
		default:
			return errors.Errorf("unsupported relocation %s", elf.R_X86_64(r.typ))
		}
	case arch == models.ArchARM64:
		switch elf.R_AARCH64(r.typ) {
		case elf.R_AARCH64_NONE, elf.R_AARCH64_COPY:
			return nil
		case elf.R_AARCH64_ABS64, elf.R_AARCH64_GLOB_DAT:
			reloc.Kind = models.RelocAbsolute
		case elf.R_AARCH64_JUMP_SLOT:
			reloc.Kind = models.RelocAbsolute
			reloc.Lazy = true
		case elf.R_AARCH64_ABS32:
			reloc.Kind = models.RelocAbsolute
			reloc.Size = 4
		case elf.R_AARCH64_PREL32:
			reloc.Kind = models.RelocRelative
			reloc.Size = 4
		case elf.R_AARCH64_PREL64:
			reloc.Kind = models.RelocRelative
		case elf.R_AARCH64_RELATIVE:
			reloc.Kind = models.RelocAbsolute
			reloc.Symbol = ""
			reloc.Addend = int64(e.rva(uint64(r.addend)))
		default:
			return errors.Errorf("unsupported relocation %s", elf.R_AARCH64(r.typ))
		}
	case arch == models.ArchX86:
		if !r.rela {
			a, err := e.implicit(reloc.Offset, 4)
			if err != nil {
				return err
			}
			reloc.Addend = a
		}
		reloc.Size = 4
		switch elf.R_386(r.typ) {
		case elf.R_386_NONE, elf.R_386_COPY:
			return nil
		case elf.R_386_32:
			reloc.Kind = models.RelocAbsolute
		case elf.R_386_PC32:
			reloc.Kind = models.RelocRelative
		case elf.R_386_GLOB_DAT:
			reloc.Kind = models.RelocAbsolute
			reloc.Addend = 0
		case elf.R_386_JMP_SLOT:
			reloc.Kind = models.RelocAbsolute
			reloc.Addend = 0
			reloc.Lazy = true
		case elf.R_386_RELATIVE:
			reloc.Kind = models.RelocRebase
			reloc.Symbol = ""
			reloc.Addend = 0
		default:
			return errors.Errorf("unsupported relocation %s", elf.R_386(r.typ))
		}
	default:
		// relocations for other machines are not applied
		return nil
	}
	if reloc.Symbol == "" && reloc.Kind != models.RelocAbsolute && reloc.Kind != models.RelocRebase {
		return errors.Errorf("relocation at 0x%x needs a symbol", r.off)
	}
	e.bin.Relocs = append(e.bin.Relocs, reloc)
	return nil
}
