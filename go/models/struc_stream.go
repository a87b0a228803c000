package models

import (
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
)

type StrucStream struct {
	Stream io.ReadWriter
	Order  binary.ByteOrder
}

func (s *StrucStream) Pack(vals ...interface{}) error {
	for _, i := range vals {
		if err := struc.PackWithOrder(s.Stream, i, s.Order); err != nil {
			return err
		}
	}
	return nil
}

func (s *StrucStream) Unpack(vals ...interface{}) error {
	for _, i := range vals {
		if err := struc.UnpackWithOrder(s.Stream, i, s.Order); err != nil {
			return err
		}
	}
	return nil
}
