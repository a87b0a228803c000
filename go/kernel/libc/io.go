package libc

import (
	"fmt"
	"io"

	co "github.com/qbdl/qbdl/go/kernel/common"
)

const UINT64_MAX = ^uint64(0)

func (k *LibcKernel) Puts(s string) uint64 {
	n, err := io.WriteString(k.Stdout, s+"\n")
	if err != nil {
		return UINT64_MAX
	}
	return uint64(n)
}

func (k *LibcKernel) Putchar(c int) uint64 {
	if _, err := k.Stdout.Write([]byte{byte(c)}); err != nil {
		return UINT64_MAX
	}
	return uint64(byte(c))
}

func (k *LibcKernel) Write(fd co.Fd, buf co.Buf, size co.Len) uint64 {
	w := k.writer(fd)
	if w == nil {
		return UINT64_MAX
	}
	tmp, err := buf.Bytes(uint64(size))
	if err != nil {
		return UINT64_MAX
	}
	n, err := w.Write(tmp)
	if err != nil {
		return UINT64_MAX
	}
	return uint64(n)
}

func (k *LibcKernel) Printf(args []uint64, format string) uint64 {
	out := k.format(format, args[1:])
	n, err := io.WriteString(k.Stdout, out)
	if err != nil {
		return UINT64_MAX
	}
	return uint64(n)
}

func (k *LibcKernel) Dprintf(args []uint64, fd co.Fd, format string) uint64 {
	w := k.writer(fd)
	if w == nil {
		return UINT64_MAX
	}
	n, err := io.WriteString(w, k.format(format, args[2:]))
	if err != nil {
		return UINT64_MAX
	}
	return uint64(n)
}

// format expands the common printf conversions against raw arguments.
// Length modifiers are accepted and ignored; values are taken at register width.
func (k *LibcKernel) format(format string, args []uint64) string {
	var out []byte
	next := func() uint64 {
		if len(args) == 0 {
			return 0
		}
		v := args[0]
		args = args[1:]
		return v
	}
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			out = append(out, c)
			continue
		}
		i++
		for i < len(format) && (format[i] == 'l' || format[i] == 'h' || format[i] == 'z') {
			i++
		}
		if i >= len(format) {
			break
		}
		switch format[i] {
		case '%':
			out = append(out, '%')
		case 'd', 'i':
			v := next()
			if k.Arch.Bits == 32 {
				out = append(out, fmt.Sprintf("%d", int32(v))...)
			} else {
				out = append(out, fmt.Sprintf("%d", int64(v))...)
			}
		case 'u':
			out = append(out, fmt.Sprintf("%d", next()&k.Arch.Mask())...)
		case 'x':
			out = append(out, fmt.Sprintf("%x", next()&k.Arch.Mask())...)
		case 'X':
			out = append(out, fmt.Sprintf("%X", next()&k.Arch.Mask())...)
		case 'p':
			out = append(out, fmt.Sprintf("0x%x", next())...)
		case 'c':
			out = append(out, byte(next()))
		case 's':
			addr := next()
			s := "(null)"
			if addr != 0 {
				var err error
				if s, err = k.readStr(addr); err != nil {
					s = "(bad)"
				}
			}
			out = append(out, s...)
		default:
			out = append(out, '%', format[i])
		}
	}
	return string(out)
}
