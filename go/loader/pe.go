package loader

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/models"
)

var peMachineMap = map[uint16]models.Arch{
	pe.IMAGE_FILE_MACHINE_I386:  models.ArchX86,
	pe.IMAGE_FILE_MACHINE_AMD64: models.ArchX86_64,
	pe.IMAGE_FILE_MACHINE_ARMNT: models.ArchARM,
	pe.IMAGE_FILE_MACHINE_ARM64: models.ArchARM64,
}

const (
	peRelBasedAbsolute = 0
	peRelBasedHighLow  = 3
	peRelBasedDir64    = 10
)

func MatchPE(raw []byte) bool {
	return len(raw) >= 2 && raw[0] == 'M' && raw[1] == 'Z'
}

type peImportDesc struct {
	OriginalFirstThunk uint32
	TimeDateStamp      uint32
	ForwarderChain     uint32
	Name               uint32
	FirstThunk         uint32
}

type peExportDir struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

// PeParser reads PE32 and PE32+ images. Imports become absolute relocations
// of their IAT slots, base relocations become rebases.
type PeParser struct{}

type peParse struct {
	file *pe.File
	raw  []byte
	bin  *models.Binary
	dirs []pe.DataDirectory
	seen map[string]bool
}

func (p *PeParser) Parse(raw []byte) (*models.Binary, error) {
	file, err := pe.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open PE file")
	}
	arch, ok := peMachineMap[file.Machine]
	if !ok {
		return nil, errors.Errorf("Unsupported machine: 0x%x", file.Machine)
	}
	e := &peParse{file: file, raw: raw, bin: &models.Binary{Format: "pe"}, seen: make(map[string]bool)}
	switch oh := file.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		arch.Bits = 32
		e.bin.ImageBase = uint64(oh.ImageBase)
		e.bin.Entry = uint64(oh.AddressOfEntryPoint)
		e.dirs = oh.DataDirectory[:]
	case *pe.OptionalHeader64:
		arch.Bits = 64
		e.bin.ImageBase = oh.ImageBase
		e.bin.Entry = uint64(oh.AddressOfEntryPoint)
		e.dirs = oh.DataDirectory[:]
	default:
		return nil, errors.New("missing optional header")
	}
	e.bin.Arch = arch
	steps := []func() error{e.sections, e.exports, e.imports, e.baseRelocs}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return e.bin, nil
}

func peProt(c uint32) int {
	prot := 0
	if c&pe.IMAGE_SCN_MEM_READ != 0 {
		prot |= 1
	}
	if c&pe.IMAGE_SCN_MEM_WRITE != 0 {
		prot |= 2
	}
	if c&pe.IMAGE_SCN_MEM_EXECUTE != 0 {
		prot |= 4
	}
	return prot
}

func (e *peParse) sections() error {
	size := uint64(len(e.raw))
	for _, s := range e.file.Sections {
		vsize := uint64(s.VirtualSize)
		if vsize == 0 {
			vsize = uint64(s.Size)
		}
		if vsize == 0 {
			continue
		}
		off, n := uint64(s.Offset), uint64(s.Size)
		if n > 0 && (off > size || n > size-off) {
			return errors.Errorf("section %s: file range 0x%x+0x%x outside file", s.Name, off, n)
		}
		if n > vsize {
			n = vsize
		}
		data := make([]byte, n)
		copy(data, e.raw[off:off+n])
		e.bin.Segments = append(e.bin.Segments, models.Segment{
			Name: s.Name,
			Addr: uint64(s.VirtualAddress),
			Size: vsize,
			Data: data,
			Prot: peProt(s.Characteristics),
		})
	}
	return nil
}

func (e *peParse) dir(i int) (pe.DataDirectory, bool) {
	if i >= len(e.dirs) || e.dirs[i].VirtualAddress == 0 || e.dirs[i].Size == 0 {
		return pe.DataDirectory{}, false
	}
	return e.dirs[i], true
}

// at returns size bytes of section content at rva.
func (e *peParse) at(rva, size uint64) ([]byte, error) {
	for _, s := range e.bin.Segments {
		if s.Contains(rva) {
			o := rva - s.Addr
			if o+size < o || o+size > uint64(len(s.Data)) {
				break
			}
			return s.Data[o : o+size], nil
		}
	}
	return nil, errors.Errorf("rva 0x%x+0x%x outside section data", rva, size)
}

func (e *peParse) cstring(rva uint64) (string, error) {
	for _, s := range e.bin.Segments {
		if s.Contains(rva) && rva-s.Addr < uint64(len(s.Data)) {
			data := s.Data[rva-s.Addr:]
			if i := bytes.IndexByte(data, 0); i >= 0 {
				return string(data[:i]), nil
			}
			break
		}
	}
	return "", errors.Errorf("no string at rva 0x%x", rva)
}

func (e *peParse) unpack(rva, size uint64, v interface{}) error {
	data, err := e.at(rva, size)
	if err != nil {
		return err
	}
	return struc.UnpackWithOrder(bytes.NewReader(data), v, binary.LittleEndian)
}

func (e *peParse) word(rva uint64, size int) (uint64, error) {
	data, err := e.at(rva, uint64(size))
	if err != nil {
		return 0, err
	}
	switch size {
	case 2:
		return uint64(binary.LittleEndian.Uint16(data)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(data)), nil
	default:
		return binary.LittleEndian.Uint64(data), nil
	}
}

func (e *peParse) addSymbol(sym models.Symbol) {
	key := fmt.Sprintf("%d:%s", sym.Kind, sym.Name)
	if !e.seen[key] {
		e.seen[key] = true
		e.bin.Symbols = append(e.bin.Symbols, sym)
	}
}

func (e *peParse) exports() error {
	d, ok := e.dir(pe.IMAGE_DIRECTORY_ENTRY_EXPORT)
	if !ok {
		return nil
	}
	var ed peExportDir
	if err := e.unpack(uint64(d.VirtualAddress), 40, &ed); err != nil {
		return errors.Wrap(err, "bad export directory")
	}
	lo, hi := uint64(d.VirtualAddress), uint64(d.VirtualAddress)+uint64(d.Size)
	for i := uint64(0); i < uint64(ed.NumberOfNames); i++ {
		nameRVA, err := e.word(uint64(ed.AddressOfNames)+i*4, 4)
		if err != nil {
			return errors.Wrap(err, "bad export name table")
		}
		ord, err := e.word(uint64(ed.AddressOfNameOrdinals)+i*2, 2)
		if err != nil {
			return errors.Wrap(err, "bad export ordinal table")
		}
		if ord >= uint64(ed.NumberOfFunctions) {
			return errors.Errorf("export ordinal %d out of range", ord)
		}
		fn, err := e.word(uint64(ed.AddressOfFunctions)+ord*4, 4)
		if err != nil {
			return errors.Wrap(err, "bad export address table")
		}
		// forwarders point back into the export directory
		if fn >= lo && fn < hi {
			continue
		}
		name, err := e.cstring(nameRVA)
		if err != nil {
			return err
		}
		e.addSymbol(models.Symbol{Name: name, Kind: models.SymExport, Addr: fn})
	}
	return nil
}

func (e *peParse) imports() error {
	d, ok := e.dir(pe.IMAGE_DIRECTORY_ENTRY_IMPORT)
	if !ok {
		return nil
	}
	ptr := uint64(e.bin.Arch.Bits / 8)
	ordinal := uint64(1) << (e.bin.Arch.Bits - 1)
	for rva := uint64(d.VirtualAddress); ; rva += 20 {
		var desc peImportDesc
		if err := e.unpack(rva, 20, &desc); err != nil {
			return errors.Wrap(err, "bad import descriptor")
		}
		if desc.Name == 0 && desc.FirstThunk == 0 {
			return nil
		}
		dll, err := e.cstring(uint64(desc.Name))
		if err != nil {
			return err
		}
		e.bin.Libraries = append(e.bin.Libraries, dll)
		lookup := desc.OriginalFirstThunk
		if lookup == 0 {
			lookup = desc.FirstThunk
		}
		for i := uint64(0); ; i++ {
			v, err := e.word(uint64(lookup)+i*ptr, int(ptr))
			if err != nil {
				return errors.Wrapf(err, "bad import table for %s", dll)
			}
			if v == 0 {
				break
			}
			var name string
			if v&ordinal != 0 {
				name = fmt.Sprintf("%s#%d", dll, v&0xffff)
			} else if name, err = e.cstring(uint64(uint32(v)) + 2); err != nil {
				return err
			}
			e.addSymbol(models.Symbol{Name: name, Kind: models.SymImport, Library: dll})
			e.bin.Relocs = append(e.bin.Relocs, models.Relocation{
				Offset: uint64(desc.FirstThunk) + i*ptr,
				Symbol: name,
				Kind:   models.RelocAbsolute,
			})
		}
	}
}

func (e *peParse) baseRelocs() error {
	d, ok := e.dir(pe.IMAGE_DIRECTORY_ENTRY_BASERELOC)
	if !ok {
		return nil
	}
	data, err := e.at(uint64(d.VirtualAddress), uint64(d.Size))
	if err != nil {
		return errors.Wrap(err, "bad base relocation directory")
	}
	for len(data) >= 8 {
		page := uint64(binary.LittleEndian.Uint32(data))
		size := binary.LittleEndian.Uint32(data[4:])
		if size < 8 || uint64(size) > uint64(len(data)) {
			return errors.Errorf("bad base relocation block size 0x%x at page 0x%x", size, page)
		}
		for o := uint32(8); o+2 <= size; o += 2 {
			ent := binary.LittleEndian.Uint16(data[o:])
			off := page + uint64(ent&0xfff)
			switch ent >> 12 {
			case peRelBasedAbsolute:
			case peRelBasedHighLow:
				e.bin.Relocs = append(e.bin.Relocs, models.Relocation{Offset: off, Kind: models.RelocRebase, Size: 4})
			case peRelBasedDir64:
				e.bin.Relocs = append(e.bin.Relocs, models.Relocation{Offset: off, Kind: models.RelocRebase, Size: 8})
			default:
				return errors.Errorf("unsupported base relocation type %d at 0x%x", ent>>12, off)
			}
		}
		data = data[size:]
	}
	return nil
}
