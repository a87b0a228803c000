package cpu

import (
	"sync"

	ks "github.com/keystone-engine/keystone/bindings/go/keystone"
	"github.com/pkg/errors"
)

// Keystone assembles host function stubs. Safe for concurrent use.
type Keystone struct {
	Arch ks.Architecture
	Mode ks.Mode

	mu sync.Mutex
	ks *ks.Keystone
}

func (k *Keystone) Asm(asm string, addr uint64) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ks == nil {
		engine, err := ks.New(k.Arch, k.Mode)
		if err != nil {
			return nil, errors.Wrap(err, "ks.New() failed")
		}
		k.ks = engine
	}
	out, _, ok := k.ks.Assemble(asm, addr)
	if !ok {
		return nil, errors.Wrapf(k.ks.LastError(), "failed to assemble %q", asm)
	}
	return out, nil
}
