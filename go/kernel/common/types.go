package common

import (
	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/models"
)

type (
	Buf struct {
		Addr uint64
		K    *KernelBase
	}
	Obuf struct{ Buf }
	Len  uint64
	Fd   int32
	Ptr  uint64
)

func NewBuf(k Kernel, addr uint64) Buf {
	return Buf{K: k.HostKernel(), Addr: addr}
}

func (b Buf) Struc() *models.StrucStream {
	return &models.StrucStream{Stream: &memStream{mem: b.K.Mem, addr: b.Addr}, Order: b.K.Arch.ByteOrder()}
}

func (b Buf) Pack(i interface{}) error {
	return errors.Wrap(b.Struc().Pack(i), "struc.Pack() failed")
}

func (b Buf) Unpack(i interface{}) error {
	return errors.Wrap(b.Struc().Unpack(i), "struc.Unpack() failed")
}

// Bytes reads n bytes at the buffer address.
func (b Buf) Bytes(n uint64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if n > MaxBuf {
		return nil, errors.Errorf("buffer of 0x%x bytes at 0x%x is too large", n, b.Addr)
	}
	return b.K.Mem.Read(b.Addr, n)
}

// memStream reads and writes target memory sequentially from addr.
type memStream struct {
	mem  models.TargetMemory
	addr uint64
}

func (m *memStream) Read(p []byte) (int, error) {
	data, err := m.mem.Read(m.addr, uint64(len(p)))
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	m.addr += uint64(n)
	return n, nil
}

func (m *memStream) Write(p []byte) (int, error) {
	if err := m.mem.Write(m.addr, p); err != nil {
		return 0, err
	}
	m.addr += uint64(len(p))
	return len(p), nil
}
