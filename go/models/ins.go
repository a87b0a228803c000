package models

import (
	"encoding/hex"
	"fmt"
)

type Ins interface {
	Addr() uint64
	Bytes() []byte
	Mnemonic() string
	OpStr() string
}

// FormatIns renders ins as "0xaddr: bytes mnemonic operands".
func FormatIns(ins Ins) string {
	return fmt.Sprintf("0x%x: %-20s %s %s", ins.Addr(), hex.EncodeToString(ins.Bytes()), ins.Mnemonic(), ins.OpStr())
}
