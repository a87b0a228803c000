package qbdl

import (
	"io/ioutil"
	"os"

	"github.com/ZenLiuCN/fn"

	"github.com/qbdl/qbdl/go/loader"
	"github.com/qbdl/qbdl/go/models"
)

type options struct {
	base   uint64
	config *models.Config
}

type Option func(*options)

// WithBase asks the target memory for addr instead of the system's hint.
func WithBase(addr uint64) Option {
	return func(o *options) { o.base = addr }
}

// WithConfig routes load diagnostics through c.
func WithConfig(c *models.Config) Option {
	return func(o *options) { o.config = c }
}

// Load parses raw with p and loads it into sys for arch.
// Every error returned is a *models.LoadError.
func Load(p models.Parser, raw []byte, arch models.Arch, sys models.TargetSystem, mode models.BindMode, opts ...Option) (*models.LoadedImage, error) {
	bin, err := p.Parse(raw)
	if err != nil {
		return nil, models.KindError(models.MalformedBinary, err)
	}
	if bin == nil {
		return nil, models.KindErrorf(models.MalformedBinary, "parser returned no binary")
	}
	return LoadBinary(bin, arch, sys, mode, opts...)
}

// LoadBinary loads an already parsed binary.
func LoadBinary(bin *models.Binary, arch models.Arch, sys models.TargetSystem, mode models.BindMode, opts ...Option) (*models.LoadedImage, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	conf := o.config
	if conf == nil {
		conf = &models.Config{}
	}
	if o.base == 0 {
		o.base = conf.ForceBase
	}

	if err := bin.Validate(); err != nil {
		return nil, err
	}
	if !bin.Arch.Compatible(arch) || !arch.Compatible(sys.Arch()) {
		return nil, models.KindErrorf(models.IncompatibleArchitecture,
			"binary is %s, requested %s, system is %s", bin.Arch, arch, sys.Arch())
	}
	if !sys.Supports(bin) {
		return nil, models.KindErrorf(models.IncompatibleArchitecture, "system does not support this %s binary", bin.Format)
	}

	s := newSession(bin, arch, sys, mode, conf)
	if err := s.mapImage(o.base); err != nil {
		return nil, err
	}
	s.collectExports()
	if mode != models.BindNone {
		for _, sym := range bin.Symbols {
			if sym.Kind == models.SymImport {
				s.resolve(sym)
			}
		}
	}
	if err := s.relocate(); err != nil {
		return nil, err
	}
	img := s.image()
	conf.Debugf("[load] %s\n", img)
	return img, nil
}

// LoadFile reads path, picks a parser from the file's magic and loads it.
// A file that can't be read is reported as MalformedBinary.
func LoadFile(path string, arch models.Arch, sys models.TargetSystem, mode models.BindMode, opts ...Option) (*models.LoadedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.WrapKind(models.MalformedBinary, err, "failed to open binary")
	}
	defer fn.IgnoreClose(f)
	raw, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, models.WrapKind(models.MalformedBinary, err, "failed to read "+path)
	}
	p, err := loader.Detect(raw, sys)
	if err != nil {
		return nil, models.KindError(models.MalformedBinary, err)
	}
	return Load(p, raw, arch, sys, mode, opts...)
}

func (s *session) mapImage(force uint64) error {
	s.size = imageSize(s.bin)
	hint := force
	if hint == 0 {
		hint = s.sys.BaseAddressHint(s.bin.ImageBase, s.size)
	}
	base, err := s.mem.Map(hint, s.size)
	if err != nil {
		return models.WrapKind(models.MemoryFault, err, "failed to map image")
	}
	if overflows(s.arch, base, s.size) {
		return models.KindErrorf(models.MemoryFault, "image 0x%x+0x%x overflows %d-bit address space", base, s.size, s.arch.Bits)
	}
	s.base = base
	s.conf.Debugf("[map] 0x%x-0x%x (hint 0x%x, image base 0x%x)\n", base, base+s.size, hint, s.bin.ImageBase)

	for i := range s.bin.Segments {
		seg := &s.bin.Segments[i]
		if seg.Size == 0 {
			continue
		}
		addr := base + seg.Addr
		if err := s.mem.Write(addr, seg.Padded()); err != nil {
			return models.WrapKind(models.MemoryFault, err, "failed to write segment "+seg.Name)
		}
		if err := s.mem.Protect(addr, seg.Size, seg.Prot); err != nil {
			return models.WrapKind(models.MemoryFault, err, "failed to protect segment "+seg.Name)
		}
		s.conf.Debugf("[map] %s 0x%x-0x%x %s\n", seg.Name, addr, addr+seg.Size, models.ProtString(seg.Prot))
	}
	return nil
}
