package models

import (
	"sync"
)

// disassembly cached per disassembler
const discacheMax = 4096

type discacheKey struct {
	addr uint64
	code string
}

// Discache remembers disassembly by address and bytes. Once full, the oldest
// entries go first.
type Discache struct {
	mu    sync.RWMutex
	cache map[discacheKey][]Ins
	order []discacheKey
	max   int
}

func NewDiscache() *Discache {
	return &Discache{cache: make(map[discacheKey][]Ins), max: discacheMax}
}

func (d *Discache) Get(addr uint64, mem []byte) ([]Ins, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dis, ok := d.cache[discacheKey{addr, string(mem)}]
	return dis, ok
}

func (d *Discache) Put(addr uint64, mem []byte, dis []Ins) {
	key := discacheKey{addr, string(mem)}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.cache[key]; !ok {
		if len(d.order) >= d.max {
			delete(d.cache, d.order[0])
			d.order = d.order[1:]
		}
		d.order = append(d.order, key)
	}
	d.cache[key] = dis
}

func (d *Discache) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.cache)
}
