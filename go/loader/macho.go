package loader

import (
	"bytes"
	"debug/macho"
	"fmt"
	"io/ioutil"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/models"
)

const (
	machoLoadCmdReqDyld      = 0x80000000
	machoLoadCmdDylinker     = 0xe
	machoLoadCmdDylib        = 0xc
	machoLoadCmdWeakDylib    = 0x18 | machoLoadCmdReqDyld
	machoLoadCmdReexport     = 0x1f | machoLoadCmdReqDyld
	machoLoadCmdLazyDylib    = 0x20
	machoLoadCmdUpwardDylib  = 0x23 | machoLoadCmdReqDyld
	machoLoadCmdDyldInfo     = 0x22
	machoLoadCmdDyldInfoOnly = 0x22 | machoLoadCmdReqDyld
	machoLoadCmdMain         = 0x28 | machoLoadCmdReqDyld

	machoCpuArm64 macho.Cpu = 0x0100000c

	machoSymExt   = 0x01
	machoSymStab  = 0xe0
	machoSymTypes = 0x0e
	machoSymUndef = 0x00
)

var machoCpuMap = map[macho.Cpu]models.Arch{
	macho.Cpu386:   models.ArchX86,
	macho.CpuAmd64: models.ArchX86_64,
	macho.CpuArm:   models.ArchARM,
	machoCpuArm64:  models.ArchARM64,
	macho.CpuPpc:   models.ArchPPC,
	macho.CpuPpc64: models.ArchPPC64,
}

// pc offset inside an LC_UNIXTHREAD command, per cpu
var machoThreadPC = map[macho.Cpu]int{
	macho.Cpu386:   56,
	macho.CpuAmd64: 144,
	macho.CpuArm:   76,
	machoCpuArm64:  272,
}

var fatMagic = []byte{0xca, 0xfe, 0xba, 0xbe}

var machoMagics = [][]byte{
	fatMagic,
	{0xfe, 0xed, 0xfa, 0xce},
	{0xfe, 0xed, 0xfa, 0xcf},
	{0xce, 0xfa, 0xed, 0xfe},
	{0xcf, 0xfa, 0xed, 0xfe},
}

// dylib_command, the name follows at NameOff
type dylibCmd struct {
	Cmd, Cmdsize   uint32
	NameOff        uint32
	Timestamp      uint32
	CurrentVersion uint32
	CompatVersion  uint32
}

type entryPointCmd struct {
	Cmd, Cmdsize uint32
	EntryOff     uint64
	StackSize    uint64
}

func MatchMachO(raw []byte) bool {
	magic := getMagic(raw)
	for _, check := range machoMagics {
		if bytes.Equal(magic, check) {
			return true
		}
	}
	return false
}

// MachOParser reads thin and fat Mach-O files. For fat files the first slice
// accepted by Select is parsed; a nil Select takes the first slice.
type MachOParser struct {
	Select func(bin *models.Binary) bool
}

func (p *MachOParser) Parse(raw []byte) (*models.Binary, error) {
	r := bytes.NewReader(raw)
	if !bytes.Equal(getMagic(raw), fatMagic) {
		file, err := macho.NewFile(r)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open MachO file")
		}
		return parseMachO(file)
	}
	fat, err := macho.NewFatFile(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open fat MachO file")
	}
	var names []string
	for _, arch := range fat.Arches {
		bin, err := parseMachO(arch.File)
		if err != nil {
			return nil, errors.Wrapf(err, "fat slice %s", arch.Cpu)
		}
		if p.Select == nil || p.Select(bin) {
			return bin, nil
		}
		names = append(names, bin.Arch.Name())
	}
	return nil, models.KindErrorf(models.IncompatibleArchitecture, "no usable slice in fat binary %v", names)
}

type machoParse struct {
	file      *macho.File
	bin       *models.Binary
	segs      []*macho.Segment
	libraries []string
}

func parseMachO(file *macho.File) (*models.Binary, error) {
	arch, ok := machoCpuMap[file.Cpu]
	if !ok {
		return nil, errors.Errorf("Unsupported CPU: %s", file.Cpu)
	}
	switch file.Magic {
	case macho.Magic32:
		arch.Bits = 32
	case macho.Magic64:
		arch.Bits = 64
	default:
		return nil, errors.New("Unknown magic.")
	}
	if file.ByteOrder.Uint16([]byte{0, 1}) == 1 {
		arch.Endian = models.Big
	} else {
		arch.Endian = models.Little
	}
	m := &machoParse{
		file: file,
		bin:  &models.Binary{Format: "macho", Arch: arch},
	}
	for _, l := range file.Loads {
		if s, ok := l.(*macho.Segment); ok {
			m.segs = append(m.segs, s)
		}
	}
	if text := file.Segment("__TEXT"); text != nil {
		m.bin.ImageBase = text.Addr
	}
	steps := []func() error{m.segments, m.loadCommands, m.symbols, m.dyldInfo}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return m.bin, nil
}

func (m *machoParse) rva(addr uint64) uint64 {
	if addr >= m.bin.ImageBase {
		return addr - m.bin.ImageBase
	}
	return addr
}

func (m *machoParse) segments() error {
	for _, s := range m.segs {
		if s.Name == "__PAGEZERO" || s.Memsz == 0 {
			continue
		}
		data, err := ioutil.ReadAll(s.Open())
		if err != nil {
			return errors.Wrapf(err, "failed to read segment %s", s.Name)
		}
		if uint64(len(data)) != s.Filesz {
			return errors.Errorf("segment %s: file range 0x%x+0x%x outside file", s.Name, s.Offset, s.Filesz)
		}
		if uint64(len(data)) > s.Memsz {
			data = data[:s.Memsz]
		}
		m.bin.Segments = append(m.bin.Segments, models.Segment{
			Name: s.Name,
			Addr: m.rva(s.Addr),
			Size: s.Memsz,
			Data: data,
			Prot: int(s.Prot) & 7,
		})
	}
	return nil
}

func (m *machoParse) loadCommands() error {
	order := m.file.ByteOrder
	foundEntry := false
	for _, l := range m.file.Loads {
		data := l.Raw()
		if len(data) < 8 {
			continue
		}
		cmd := order.Uint32(data)
		switch cmd {
		case machoLoadCmdDylib, machoLoadCmdWeakDylib, machoLoadCmdReexport, machoLoadCmdLazyDylib, machoLoadCmdUpwardDylib:
			var dc dylibCmd
			if err := struc.UnpackWithOrder(bytes.NewReader(data), &dc, order); err != nil {
				return errors.Wrap(err, "bad dylib command")
			}
			m.libraries = append(m.libraries, cstr(data, dc.NameOff))
		case machoLoadCmdDylinker:
			if len(data) < 12 {
				return errors.New("truncated LC_LOAD_DYLINKER")
			}
			m.bin.Interp = cstr(data, order.Uint32(data[8:12]))
		case machoLoadCmdMain:
			var ep entryPointCmd
			if err := struc.UnpackWithOrder(bytes.NewReader(data), &ep, order); err != nil {
				return errors.Wrap(err, "bad LC_MAIN")
			}
			// entryoff is a file offset into __TEXT
			text := m.file.Segment("__TEXT")
			if text == nil || ep.EntryOff < text.Offset {
				return errors.New("Found LC_MAIN but did not find __TEXT segment.")
			}
			m.bin.Entry = ep.EntryOff - text.Offset + m.rva(text.Addr)
			foundEntry = true
		case uint32(macho.LoadCmdUnixThread):
			if foundEntry {
				continue
			}
			ip, ok := machoThreadPC[m.file.Cpu]
			if !ok {
				return errors.Errorf("LC_UNIXTHREAD unsupported for %s", m.file.Cpu)
			}
			if m.bin.Arch.Bits == 64 && len(data) >= ip+8 {
				m.bin.Entry = m.rva(order.Uint64(data[ip : ip+8]))
			} else if m.bin.Arch.Bits == 32 && len(data) >= ip+4 {
				m.bin.Entry = m.rva(uint64(order.Uint32(data[ip : ip+4])))
			} else {
				return errors.New("truncated LC_UNIXTHREAD")
			}
			foundEntry = true
		}
	}
	m.bin.Libraries = m.libraries
	if !foundEntry {
		return errors.New("Could not find entry point.")
	}
	return nil
}

func (m *machoParse) library(ordinal int) string {
	if ordinal > 0 && ordinal <= len(m.libraries) {
		return m.libraries[ordinal-1]
	}
	switch ordinal {
	case 0:
		return "self"
	case -1:
		return "main executable"
	case -2:
		return "flat lookup"
	}
	return fmt.Sprintf("ordinal %d", ordinal)
}

func (m *machoParse) symbols() error {
	if m.file.Symtab == nil {
		return nil
	}
	seen := make(map[string]bool)
	for _, s := range m.file.Symtab.Syms {
		if s.Name == "" || s.Type&machoSymStab != 0 || s.Type&machoSymExt == 0 {
			continue
		}
		if s.Type&machoSymTypes == machoSymUndef && s.Sect == 0 {
			if seen[s.Name] {
				continue
			}
			seen[s.Name] = true
			m.bin.Symbols = append(m.bin.Symbols, models.Symbol{
				Name:    s.Name,
				Kind:    models.SymImport,
				Library: m.library(int(int8(s.Desc >> 8))),
				Weak:    s.Desc&0x40 != 0,
			})
			continue
		}
		if s.Sect != 0 {
			m.bin.Symbols = append(m.bin.Symbols, models.Symbol{
				Name: s.Name,
				Kind: models.SymExport,
				Addr: m.rva(s.Value),
			})
		}
	}
	return nil
}

func (m *machoParse) dyldInfo() error {
	var info *dyldInfoCmd
	order := m.file.ByteOrder
	for _, l := range m.file.Loads {
		data := l.Raw()
		if len(data) < 8 {
			continue
		}
		if cmd := order.Uint32(data); cmd == machoLoadCmdDyldInfo || cmd == machoLoadCmdDyldInfoOnly {
			info = &dyldInfoCmd{}
			if err := struc.UnpackWithOrder(bytes.NewReader(data), info, order); err != nil {
				return errors.Wrap(err, "bad dyld info command")
			}
			break
		}
	}
	if info == nil {
		return nil
	}
	ptrSize := uint64(m.bin.Arch.PtrSize())

	rebaseData, err := m.linkedit(info.RebaseOff, info.RebaseSize)
	if err != nil {
		return err
	}
	rebases, err := decodeRebases(rebaseData, ptrSize)
	if err != nil {
		return errors.Wrap(err, "rebase info")
	}
	for _, r := range rebases {
		off, err := m.segOffset(r.Seg, r.Off)
		if err != nil {
			return err
		}
		switch r.Type {
		case REBASE_TYPE_POINTER:
			m.bin.Relocs = append(m.bin.Relocs, models.Relocation{Offset: off, Kind: models.RelocRebase})
		case REBASE_TYPE_TEXT_ABSOLUTE32:
			m.bin.Relocs = append(m.bin.Relocs, models.Relocation{Offset: off, Kind: models.RelocRebase, Size: 4})
		default:
			return errors.Errorf("unsupported rebase type %d", r.Type)
		}
	}

	var binds []bindEntry
	for _, stream := range []struct {
		off, size uint32
		lazy      bool
	}{
		{info.BindOff, info.BindSize, false},
		{info.LazyBindOff, info.LazyBindSize, true},
	} {
		data, err := m.linkedit(stream.off, stream.size)
		if err != nil {
			return err
		}
		entries, err := decodeBinds(data, ptrSize, stream.lazy)
		if err != nil {
			return errors.Wrap(err, "bind info")
		}
		binds = append(binds, entries...)
	}
	for _, b := range binds {
		off, err := m.segOffset(b.Seg, b.Off)
		if err != nil {
			return err
		}
		reloc := models.Relocation{Offset: off, Symbol: b.Name, Addend: b.Addend, Lazy: b.Lazy}
		switch b.Type {
		case BIND_TYPE_POINTER:
			reloc.Kind = models.RelocAbsolute
		case BIND_TYPE_TEXT_ABSOLUTE32:
			reloc.Kind = models.RelocAbsolute
			reloc.Size = 4
		case BIND_TYPE_TEXT_PCREL32:
			reloc.Kind = models.RelocPCRelative
			reloc.Size = 4
			reloc.InsnLen = 4
		default:
			return errors.Errorf("unsupported bind type %d", b.Type)
		}
		m.bin.Relocs = append(m.bin.Relocs, reloc)
		m.addImport(b)
	}
	return nil
}

// addImport records the bind target, upgrading a symtab import with its library and weak flag.
func (m *machoParse) addImport(b bindEntry) {
	lib := m.library(b.Ordinal)
	for i := range m.bin.Symbols {
		s := &m.bin.Symbols[i]
		if s.Name != b.Name {
			continue
		}
		if s.Kind == models.SymImport {
			s.Library = lib
			s.Weak = s.Weak || b.Weak
		}
		return
	}
	m.bin.Symbols = append(m.bin.Symbols, models.Symbol{
		Name:    b.Name,
		Kind:    models.SymImport,
		Library: lib,
		Weak:    b.Weak,
	})
}

// segOffset converts a (segment index, offset) pair to an image offset.
func (m *machoParse) segOffset(seg int, off uint64) (uint64, error) {
	if seg < 0 || seg >= len(m.segs) {
		return 0, errors.Errorf("segment index %d out of range", seg)
	}
	s := m.segs[seg]
	if off >= s.Memsz {
		return 0, errors.Errorf("offset 0x%x outside segment %s", off, s.Name)
	}
	return m.rva(s.Addr) + off, nil
}

// linkedit reads size bytes at file offset off.
func (m *machoParse) linkedit(off, size uint32) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	for _, s := range m.segs {
		if uint64(off) >= s.Offset && uint64(off)+uint64(size) <= s.Offset+s.Filesz {
			data, err := s.Data()
			if err != nil {
				return nil, errors.WithStack(err)
			}
			start := uint64(off) - s.Offset
			return data[start : start+uint64(size)], nil
		}
	}
	return nil, errors.Errorf("dyld info at 0x%x+0x%x outside any segment", off, size)
}
