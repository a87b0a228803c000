package cpu

import (
	"bytes"
	"fmt"
	"strings"
)

// Page is one mapped range of simulated memory. Data always holds Size bytes.
type Page struct {
	Addr uint64
	Size uint64
	Prot int
	Data []byte
}

// ProtString renders prot as an "rwx" mask.
func ProtString(prot int) string {
	out := []byte("---")
	for i, c := range "rwx" {
		if prot&(1<<uint(i)) != 0 {
			out[i] = byte(c)
		}
	}
	return string(out)
}

func (p *Page) String() string {
	return fmt.Sprintf("0x%x-0x%x %s", p.Addr, p.End(), ProtString(p.Prot))
}

func (p *Page) End() uint64 {
	return p.Addr + p.Size
}

func (p *Page) Contains(addr uint64) bool {
	return addr >= p.Addr && addr < p.End()
}

// Intersect clips addr:addr+size to the page. ok is false when they don't touch.
func (p *Page) Intersect(addr, size uint64) (start, length uint64, ok bool) {
	start, end := p.Addr, p.End()
	if e := addr + size; e < end {
		end = e
	}
	if addr > start {
		start = addr
	}
	if end <= start {
		return start, 0, false
	}
	return start, end - start, true
}

func (p *Page) Overlaps(addr, size uint64) bool {
	_, _, ok := p.Intersect(addr, size)
	return ok
}

// slice shares p's backing data for addr:addr+size.
func (p *Page) slice(addr, size uint64) *Page {
	o := addr - p.Addr
	return &Page{Addr: addr, Size: size, Prot: p.Prot, Data: p.Data[o : o+size]}
}

// Split shrinks or grows p to exactly addr:addr+size. The parts of p left of
// and right of the new range come back as separate pages (nil if empty), and
// growth is zero filled.
func (p *Page) Split(addr, size uint64) (left, right *Page) {
	end := addr + size
	if end < p.End() {
		right = p.slice(end, p.End()-end)
		p.Data = p.Data[:end-p.Addr]
	}
	if addr > p.Addr {
		left = p.slice(p.Addr, addr-p.Addr)
		p.Data = p.Data[addr-p.Addr:]
	}
	if addr < p.Addr {
		p.Data = append(make([]byte, p.Addr-addr), p.Data...)
	}
	if oldEnd := p.End(); end > oldEnd {
		p.Data = append(p.Data, bytes.Repeat([]byte{0}, int(end-oldEnd))...)
	}
	p.Addr, p.Size = addr, size
	return left, right
}

// Pages is kept sorted by address.
type Pages []*Page

func (p Pages) Len() int           { return len(p) }
func (p Pages) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p Pages) Less(i, j int) bool { return p[i].Addr < p[j].Addr }

func (p Pages) String() string {
	s := make([]string, len(p))
	for i, v := range p {
		s[i] = v.String()
	}
	return strings.Join(s, "\n")
}

// bsearch returns the index of the page containing addr, or -1.
func (p Pages) bsearch(addr uint64) int {
	l, r := 0, len(p)-1
	for l <= r {
		mid := (l + r) / 2
		switch e := p[mid]; {
		case addr < e.Addr:
			r = mid - 1
		case addr >= e.End():
			l = mid + 1
		default:
			return mid
		}
	}
	return -1
}

func (p Pages) Find(addr uint64) *Page {
	if i := p.bsearch(addr); i >= 0 {
		return p[i]
	}
	return nil
}

// FindRange returns the pages overlapping addr:addr+size.
func (p Pages) FindRange(addr, size uint64) Pages {
	var out Pages
	for _, pg := range p {
		if pg.Overlaps(addr, size) {
			out = append(out, pg)
		}
	}
	return out
}

// Gap finds the first align-aligned hole of size bytes at or above addr whose
// last byte is at most limit.
func (p Pages) Gap(addr, size, align, limit uint64) (uint64, bool) {
	addr = (addr + align - 1) &^ (align - 1)
	fits := func() bool { return addr+size >= addr && addr+size-1 <= limit }
	for _, pg := range p {
		if !fits() {
			return 0, false
		}
		if pg.End() <= addr {
			continue
		}
		if !pg.Overlaps(addr, size) {
			break
		}
		addr = (pg.End() + align - 1) &^ (align - 1)
	}
	if !fits() {
		return 0, false
	}
	return addr, true
}
