package loader

import (
	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/models"
)

var UnknownMagic = errors.New("Could not identify file magic.")

// Detect picks a parser for raw from its magic. For fat Mach-O files the
// first slice sys accepts is used; sys may be nil.
func Detect(raw []byte, sys models.TargetSystem) (models.Parser, error) {
	if MatchElf(raw) {
		return &ElfParser{}, nil
	} else if MatchMachO(raw) {
		p := &MachOParser{}
		if sys != nil {
			target := sys.Arch()
			p.Select = func(bin *models.Binary) bool {
				return bin.Arch.Compatible(target) && sys.Supports(bin)
			}
		}
		return p, nil
	} else if MatchPE(raw) {
		return &PeParser{}, nil
	}
	return nil, errors.WithStack(UnknownMagic)
}

// Parse detects the format of raw and parses it, without a target system.
func Parse(raw []byte) (*models.Binary, error) {
	p, err := Detect(raw, nil)
	if err != nil {
		return nil, err
	}
	return p.Parse(raw)
}
