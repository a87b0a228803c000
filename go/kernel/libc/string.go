package libc

import (
	"bytes"

	co "github.com/qbdl/qbdl/go/kernel/common"
	"github.com/qbdl/qbdl/go/models"
)

func (k *LibcKernel) readStr(addr uint64) (string, error) {
	return models.ReadStr(k.Mem, addr, co.MaxStr)
}

func (k *LibcKernel) Strlen(s string) uint64 {
	return uint64(len(s))
}

func (k *LibcKernel) Strcmp(a, b string) int {
	return bytes.Compare([]byte(a), []byte(b))
}

func (k *LibcKernel) Memcpy(dst co.Ptr, src co.Buf, n co.Len) uint64 {
	data, err := src.Bytes(uint64(n))
	if err != nil {
		return 0
	}
	if err := k.Mem.Write(uint64(dst), data); err != nil {
		return 0
	}
	return uint64(dst)
}

func (k *LibcKernel) Memset(dst co.Ptr, c int, n co.Len) uint64 {
	if n > co.MaxBuf {
		return 0
	}
	if err := k.Mem.Write(uint64(dst), bytes.Repeat([]byte{byte(c)}, int(n))); err != nil {
		return 0
	}
	return uint64(dst)
}
