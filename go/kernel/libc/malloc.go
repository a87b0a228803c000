package libc

import (
	"math/bits"

	co "github.com/qbdl/qbdl/go/kernel/common"
)

// Malloc is a bump allocator over chunks mapped from target memory.
// Memory is never reused, so fresh allocations are always zeroed.
func (k *LibcKernel) Malloc(size co.Len) uint64 {
	if size > co.MaxBuf {
		return 0
	}
	n := (uint64(size) + 15) &^ 15
	if n == 0 {
		n = 16
	}
	if k.heap == 0 || k.heap+n > k.heapEnd {
		chunk := uint64(heapChunk)
		if n > chunk {
			chunk = (n + 0xfff) &^ 0xfff
		}
		addr, err := k.Mem.Map(0, chunk)
		if err != nil {
			return 0
		}
		k.heap, k.heapEnd = addr, addr+chunk
	}
	addr := k.heap
	k.heap += n
	return addr
}

func (k *LibcKernel) Calloc(count, size co.Len) uint64 {
	hi, n := bits.Mul64(uint64(count), uint64(size))
	if hi != 0 {
		return 0
	}
	return k.Malloc(co.Len(n))
}

func (k *LibcKernel) Free(ptr co.Ptr) {}
