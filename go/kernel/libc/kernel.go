package libc

import (
	"io"
	"os"

	co "github.com/qbdl/qbdl/go/kernel/common"
	"github.com/qbdl/qbdl/go/models"
)

const heapChunk = 0x100000

// LibcKernel is a small C library implemented on the host. Imports bound to
// it run as Go code when the emulated program calls them.
type LibcKernel struct {
	co.KernelBase
	Stdout io.Writer
	Stderr io.Writer

	Exited   bool
	ExitCode int

	heap, heapEnd uint64
}

func NewKernel(arch models.Arch, mem models.TargetMemory) *LibcKernel {
	k := &LibcKernel{Stdout: os.Stdout, Stderr: os.Stderr}
	co.Init(k, arch, mem)
	return k
}

func (k *LibcKernel) writer(fd co.Fd) io.Writer {
	switch fd {
	case 1:
		return k.Stdout
	case 2:
		return k.Stderr
	}
	return nil
}

func (k *LibcKernel) Exit(code int) {
	k.Exited = true
	k.ExitCode = code
	k.Stop()
}

// Underscore names exist for callers that skip atexit handling.
func (k *LibcKernel) Literal_exit(code int) {
	k.Exit(code)
}

func (k *LibcKernel) Abort() {
	k.Exit(134)
}
