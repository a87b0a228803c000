package common

import (
	"github.com/lunixbochs/argjoy"

	"github.com/qbdl/qbdl/go/models"
)

// longest C string read for a string argument
const MaxStr = 0x10000

// largest buffer a host function will copy out of or into target memory
const MaxBuf = 1 << 28

func (k *KernelBase) commonArgCodec(arg interface{}, vals []interface{}) error {
	if reg, ok := vals[0].(uint64); ok {
		switch v := arg.(type) {
		case *Buf:
			*v = NewBuf(k, reg)
		case *Obuf:
			*v = Obuf{NewBuf(k, reg)}
		case *Len:
			*v = Len(reg)
		case *Fd:
			*v = Fd(reg)
		case *Ptr:
			*v = Ptr(reg)
		case *string:
			if reg == 0 {
				*v = ""
				return nil
			}
			s, err := models.ReadStr(k.Mem, reg, MaxStr)
			if err != nil {
				return err
			}
			*v = s
		default:
			return argjoy.NoMatch
		}
		return nil
	}
	return argjoy.NoMatch
}
