package cpu

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

func checkSize(size, have int) error {
	switch size {
	case 1, 2, 4, 8:
	default:
		return errors.Errorf("unsupported uint size: %d", size)
	}
	if have >= 0 && have < size {
		return errors.Errorf("buffer too small (%d < %d)", have, size)
	}
	return nil
}

// PackUint writes the low size bytes of n into buf, allocating it when nil.
func PackUint(order binary.ByteOrder, size int, buf []byte, n uint64) ([]byte, error) {
	have := len(buf)
	if buf == nil {
		have = -1
	}
	if err := checkSize(size, have); err != nil {
		return nil, err
	}
	if buf == nil {
		buf = make([]byte, size)
	}
	buf = buf[:size]
	switch size {
	case 8:
		order.PutUint64(buf, n)
	case 4:
		order.PutUint32(buf, uint32(n))
	case 2:
		order.PutUint16(buf, uint16(n))
	default:
		buf[0] = byte(n)
	}
	return buf, nil
}

func UnpackUint(order binary.ByteOrder, size int, buf []byte) (uint64, error) {
	if err := checkSize(size, len(buf)); err != nil {
		return 0, err
	}
	switch size {
	case 8:
		return order.Uint64(buf), nil
	case 4:
		return uint64(order.Uint32(buf)), nil
	case 2:
		return uint64(order.Uint16(buf)), nil
	default:
		return uint64(buf[0]), nil
	}
}
