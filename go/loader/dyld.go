package loader

import (
	"github.com/pkg/errors"
)

// dyld_info_command, shared by LC_DYLD_INFO and LC_DYLD_INFO_ONLY
type dyldInfoCmd struct {
	Cmd, Cmdsize              uint32
	RebaseOff, RebaseSize     uint32
	BindOff, BindSize         uint32
	WeakBindOff, WeakBindSize uint32
	LazyBindOff, LazyBindSize uint32
	ExportOff, ExportSize     uint32
}

const (
	dyldOpcodeMask    = 0xf0
	dyldImmediateMask = 0x0f
)

const (
	REBASE_OPCODE_DONE                               = 0x00
	REBASE_OPCODE_SET_TYPE_IMM                       = 0x10
	REBASE_OPCODE_SET_SEGMENT_AND_OFFSET_ULEB        = 0x20
	REBASE_OPCODE_ADD_ADDR_ULEB                      = 0x30
	REBASE_OPCODE_ADD_ADDR_IMM_SCALED                = 0x40
	REBASE_OPCODE_DO_REBASE_IMM_TIMES                = 0x50
	REBASE_OPCODE_DO_REBASE_ULEB_TIMES               = 0x60
	REBASE_OPCODE_DO_REBASE_ADD_ADDR_ULEB            = 0x70
	REBASE_OPCODE_DO_REBASE_ULEB_TIMES_SKIPPING_ULEB = 0x80

	REBASE_TYPE_POINTER         = 1
	REBASE_TYPE_TEXT_ABSOLUTE32 = 2
	REBASE_TYPE_TEXT_PCREL32    = 3
)

const (
	BIND_OPCODE_DONE                             = 0x00
	BIND_OPCODE_SET_DYLIB_ORDINAL_IMM            = 0x10
	BIND_OPCODE_SET_DYLIB_ORDINAL_ULEB           = 0x20
	BIND_OPCODE_SET_DYLIB_SPECIAL_IMM            = 0x30
	BIND_OPCODE_SET_SYMBOL_TRAILING_FLAGS_IMM    = 0x40
	BIND_OPCODE_SET_TYPE_IMM                     = 0x50
	BIND_OPCODE_SET_ADDEND_SLEB                  = 0x60
	BIND_OPCODE_SET_SEGMENT_AND_OFFSET_ULEB      = 0x70
	BIND_OPCODE_ADD_ADDR_ULEB                    = 0x80
	BIND_OPCODE_DO_BIND                          = 0x90
	BIND_OPCODE_DO_BIND_ADD_ADDR_ULEB            = 0xa0
	BIND_OPCODE_DO_BIND_ADD_ADDR_IMM_SCALED      = 0xb0
	BIND_OPCODE_DO_BIND_ULEB_TIMES_SKIPPING_ULEB = 0xc0
	BIND_OPCODE_THREADED                         = 0xd0

	BIND_SYMBOL_FLAGS_WEAK_IMPORT = 0x1

	BIND_TYPE_POINTER         = 1
	BIND_TYPE_TEXT_ABSOLUTE32 = 2
	BIND_TYPE_TEXT_PCREL32    = 3
)

type rebaseEntry struct {
	Seg  int
	Off  uint64
	Type int
}

type bindEntry struct {
	Seg     int
	Off     uint64
	Type    int
	Ordinal int
	Name    string
	Weak    bool
	Addend  int64
	Lazy    bool
}

func decodeRebases(data []byte, ptrSize uint64) ([]rebaseEntry, error) {
	var out []rebaseEntry
	s := &byteStream{data: data}
	var seg int
	var off uint64
	typ := REBASE_TYPE_POINTER
	emit := func() { out = append(out, rebaseEntry{seg, off, typ}) }
	for !s.done() {
		c, _ := s.next()
		op, imm := c&dyldOpcodeMask, c&dyldImmediateMask
		switch op {
		case REBASE_OPCODE_DONE:
			return out, nil
		case REBASE_OPCODE_SET_TYPE_IMM:
			typ = int(imm)
		case REBASE_OPCODE_SET_SEGMENT_AND_OFFSET_ULEB:
			seg = int(imm)
			n, err := s.uleb()
			if err != nil {
				return nil, err
			}
			off = n
		case REBASE_OPCODE_ADD_ADDR_ULEB:
			n, err := s.uleb()
			if err != nil {
				return nil, err
			}
			off += n
		case REBASE_OPCODE_ADD_ADDR_IMM_SCALED:
			off += uint64(imm) * ptrSize
		case REBASE_OPCODE_DO_REBASE_IMM_TIMES, REBASE_OPCODE_DO_REBASE_ULEB_TIMES:
			count := uint64(imm)
			if op == REBASE_OPCODE_DO_REBASE_ULEB_TIMES {
				n, err := s.uleb()
				if err != nil {
					return nil, err
				}
				count = n
			}
			if count > uint64(len(data))*64 {
				return nil, errors.Errorf("rebase count %d too large", count)
			}
			for i := uint64(0); i < count; i++ {
				emit()
				off += ptrSize
			}
		case REBASE_OPCODE_DO_REBASE_ADD_ADDR_ULEB:
			n, err := s.uleb()
			if err != nil {
				return nil, err
			}
			emit()
			off += n + ptrSize
		case REBASE_OPCODE_DO_REBASE_ULEB_TIMES_SKIPPING_ULEB:
			count, err := s.uleb()
			if err != nil {
				return nil, err
			}
			skip, err := s.uleb()
			if err != nil {
				return nil, err
			}
			if count > uint64(len(data))*64 {
				return nil, errors.Errorf("rebase count %d too large", count)
			}
			for i := uint64(0); i < count; i++ {
				emit()
				off += skip + ptrSize
			}
		default:
			return nil, errors.Errorf("unknown rebase opcode 0x%x", op)
		}
	}
	return out, nil
}

// decodeBinds walks a bind opcode stream. Lazy streams separate entries with DONE.
func decodeBinds(data []byte, ptrSize uint64, lazy bool) ([]bindEntry, error) {
	var out []bindEntry
	s := &byteStream{data: data}
	cur := bindEntry{Type: BIND_TYPE_POINTER, Lazy: lazy}
	emit := func() error {
		if cur.Name == "" {
			return errors.Errorf("bind at segment %d offset 0x%x has no symbol", cur.Seg, cur.Off)
		}
		out = append(out, cur)
		return nil
	}
	for !s.done() {
		c, _ := s.next()
		op, imm := c&dyldOpcodeMask, c&dyldImmediateMask
		var err error
		switch op {
		case BIND_OPCODE_DONE:
			if !lazy {
				return out, nil
			}
		case BIND_OPCODE_SET_DYLIB_ORDINAL_IMM:
			cur.Ordinal = int(imm)
		case BIND_OPCODE_SET_DYLIB_ORDINAL_ULEB:
			var n uint64
			n, err = s.uleb()
			cur.Ordinal = int(n)
		case BIND_OPCODE_SET_DYLIB_SPECIAL_IMM:
			if imm == 0 {
				cur.Ordinal = 0
			} else {
				cur.Ordinal = int(int8(dyldOpcodeMask | imm))
			}
		case BIND_OPCODE_SET_SYMBOL_TRAILING_FLAGS_IMM:
			cur.Name, err = s.cstring()
			cur.Weak = imm&BIND_SYMBOL_FLAGS_WEAK_IMPORT != 0
		case BIND_OPCODE_SET_TYPE_IMM:
			cur.Type = int(imm)
		case BIND_OPCODE_SET_ADDEND_SLEB:
			cur.Addend, err = s.sleb()
		case BIND_OPCODE_SET_SEGMENT_AND_OFFSET_ULEB:
			cur.Seg = int(imm)
			cur.Off, err = s.uleb()
		case BIND_OPCODE_ADD_ADDR_ULEB:
			var n uint64
			n, err = s.uleb()
			cur.Off += n
		case BIND_OPCODE_DO_BIND:
			err = emit()
			cur.Off += ptrSize
		case BIND_OPCODE_DO_BIND_ADD_ADDR_ULEB:
			var n uint64
			if n, err = s.uleb(); err == nil {
				err = emit()
				cur.Off += n + ptrSize
			}
		case BIND_OPCODE_DO_BIND_ADD_ADDR_IMM_SCALED:
			err = emit()
			cur.Off += uint64(imm)*ptrSize + ptrSize
		case BIND_OPCODE_DO_BIND_ULEB_TIMES_SKIPPING_ULEB:
			var count, skip uint64
			if count, err = s.uleb(); err != nil {
				break
			}
			if skip, err = s.uleb(); err != nil {
				break
			}
			if count > uint64(len(data))*64 {
				return nil, errors.Errorf("bind count %d too large", count)
			}
			for i := uint64(0); i < count && err == nil; i++ {
				err = emit()
				cur.Off += skip + ptrSize
			}
		case BIND_OPCODE_THREADED:
			return nil, errors.New("threaded binds are not supported")
		default:
			return nil, errors.Errorf("unknown bind opcode 0x%x", op)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
