package loader

import (
	"bytes"

	"github.com/pkg/errors"
)

func getMagic(raw []byte) []byte {
	ret := make([]byte, 4)
	copy(ret, raw)
	return ret
}

// opcode stream reader for dyld rebase / bind info
type byteStream struct {
	data []byte
	pos  int
}

func (b *byteStream) done() bool {
	return b.pos >= len(b.data)
}

func (b *byteStream) next() (byte, error) {
	if b.done() {
		return 0, errors.New("unexpected end of opcode stream")
	}
	c := b.data[b.pos]
	b.pos++
	return c, nil
}

func (b *byteStream) uleb() (uint64, error) {
	var val uint64
	var shift uint
	for {
		c, err := b.next()
		if err != nil {
			return 0, err
		}
		if shift >= 64 {
			return 0, errors.New("uleb128 overflow")
		}
		val |= uint64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			return val, nil
		}
	}
}

func (b *byteStream) sleb() (int64, error) {
	var val int64
	var shift uint
	for {
		c, err := b.next()
		if err != nil {
			return 0, err
		}
		if shift >= 64 {
			return 0, errors.New("sleb128 overflow")
		}
		val |= int64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			if shift < 64 && c&0x40 != 0 {
				val |= -1 << shift
			}
			return val, nil
		}
	}
}

func (b *byteStream) cstring() (string, error) {
	i := bytes.IndexByte(b.data[b.pos:], 0)
	if i < 0 {
		return "", errors.New("unterminated string in opcode stream")
	}
	s := string(b.data[b.pos : b.pos+i])
	b.pos += i + 1
	return s, nil
}

// cstr returns the NUL-terminated string at data[off:].
func cstr(data []byte, off uint32) string {
	if int(off) >= len(data) {
		return ""
	}
	s := data[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}
