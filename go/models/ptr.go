package models

import (
	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/models/cpu"
)

// WritePtr stores val at addr in the arch's pointer width and byte order.
func WritePtr(mem TargetMemory, arch Arch, addr, val uint64) error {
	return WriteUint(mem, arch, addr, arch.PtrSize(), val)
}

func ReadPtr(mem TargetMemory, arch Arch, addr uint64) (uint64, error) {
	return ReadUint(mem, arch, addr, arch.PtrSize())
}

func WriteUint(mem TargetMemory, arch Arch, addr uint64, size int, val uint64) error {
	buf, err := cpu.PackUint(arch.ByteOrder(), size, nil, val)
	if err != nil {
		return err
	}
	return mem.Write(addr, buf)
}

func ReadUint(mem TargetMemory, arch Arch, addr uint64, size int) (uint64, error) {
	buf, err := mem.Read(addr, uint64(size))
	if err != nil {
		return 0, err
	}
	if len(buf) < size {
		return 0, errors.Errorf("short read at 0x%x (%d < %d)", addr, len(buf), size)
	}
	return cpu.UnpackUint(arch.ByteOrder(), size, buf)
}

// ReadStr reads a NUL-terminated string starting at addr.
func ReadStr(mem TargetMemory, addr uint64, max int) (string, error) {
	var out []byte
	for len(out) < max {
		b, err := mem.Read(addr+uint64(len(out)), 1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			break
		}
		out = append(out, b[0])
	}
	return string(out), nil
}
