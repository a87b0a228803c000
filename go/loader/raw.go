package loader

import (
	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/models"
)

// RawParser treats the input as a flat image with no symbols or relocations.
type RawParser struct {
	Arch  models.Arch
	Base  uint64
	Entry uint64
	Prot  int
}

func (r *RawParser) Parse(raw []byte) (*models.Binary, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty raw image")
	}
	prot := r.Prot
	if prot == 0 {
		prot = 7
	}
	data := make([]byte, len(raw))
	copy(data, raw)
	return &models.Binary{
		Format:    "raw",
		Arch:      r.Arch,
		ImageBase: r.Base,
		Entry:     r.Entry,
		Segments: []models.Segment{{
			Name: "raw",
			Size: uint64(len(raw)),
			Data: data,
			Prot: prot,
		}},
	}, nil
}
