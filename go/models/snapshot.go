package models

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"io/ioutil"
	"strings"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

var SNAPSHOT_MAGIC = "QBDL"

// snapshot file format:
// header (big endian, struc packed)
// remainder is snappy-framed:
//
//	image record, then one binding record per name, then the raw image bytes
type SnapshotHeader struct {
	Magic   string `struc:"[4]byte"`
	Version uint32
	Crc     uint32
	Len     uint64

	Arch   string `struc:"[16]byte"`
	Format string `struc:"[16]byte"`
}

type snapImage struct {
	Family   uint8
	Endian   uint8
	Bits     uint8
	Base     uint64
	Size     uint64
	Entry    uint64
	Bindings uint32
}

type snapBinding struct {
	NameLen int `struc:"uint16,sizeof=Name"`
	Name    []byte
	Addr    uint64
	Lazy    bool
}

// Snapshot is a loaded image with the memory it occupied.
type Snapshot struct {
	Header SnapshotHeader
	Image  *LoadedImage
	Memory []byte
}

// SaveImage writes img and the bytes it occupies in mem.
func SaveImage(w io.Writer, img *LoadedImage, mem TargetMemory) error {
	raw, err := mem.Read(img.Base, img.Size)
	if err != nil {
		return errors.Wrap(err, "failed to read image memory")
	}
	var body bytes.Buffer
	s := &StrucStream{&body, binary.BigEndian}
	rec := &snapImage{
		Family:   uint8(img.Arch.Family),
		Endian:   uint8(img.Arch.Endian),
		Bits:     uint8(img.Arch.Bits),
		Base:     img.Base,
		Size:     img.Size,
		Entry:    img.Entry,
		Bindings: uint32(len(img.Bindings)),
	}
	if err := s.Pack(rec); err != nil {
		return errors.Wrap(err, "failed to pack image record")
	}
	for _, name := range img.Names() {
		b := &snapBinding{Name: []byte(name), Addr: img.Bindings[name], Lazy: img.Lazy[name]}
		if err := s.Pack(b); err != nil {
			return errors.Wrap(err, "failed to pack binding")
		}
	}
	body.Write(raw)

	var zbuf bytes.Buffer
	zw := snappy.NewBufferedWriter(&zbuf)
	if _, err := body.WriteTo(zw); err != nil {
		return errors.WithStack(err)
	}
	if err := zw.Close(); err != nil {
		return errors.WithStack(err)
	}
	data := zbuf.Bytes()
	header := &SnapshotHeader{
		Magic:   SNAPSHOT_MAGIC,
		Version: 1,
		Crc:     crc32.ChecksumIEEE(data),
		Len:     uint64(len(data)),
		Arch:    img.Arch.Name(),
		Format:  img.Format,
	}
	if err := struc.PackWithOrder(w, header, binary.BigEndian); err != nil {
		return errors.Wrap(err, "failed to pack header")
	}
	_, err = w.Write(data)
	return errors.WithStack(err)
}

func LoadSnapshot(r io.Reader) (*Snapshot, error) {
	snap := &Snapshot{}
	h := &snap.Header
	if err := struc.UnpackWithOrder(r, h, binary.BigEndian); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if h.Magic != SNAPSHOT_MAGIC {
		return nil, errors.New("invalid snapshot magic")
	}
	if h.Version != 1 {
		return nil, errors.Errorf("unsupported snapshot version %d", h.Version)
	}
	h.Arch = strings.TrimRight(h.Arch, "\x00")
	h.Format = strings.TrimRight(h.Format, "\x00")
	data, err := ioutil.ReadAll(io.LimitReader(r, int64(h.Len)))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if uint64(len(data)) != h.Len || crc32.ChecksumIEEE(data) != h.Crc {
		return nil, errors.New("snapshot body corrupt")
	}
	body, err := ioutil.ReadAll(snappy.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress snapshot")
	}
	buf := bytes.NewBuffer(body)
	s := &StrucStream{buf, binary.BigEndian}
	var rec snapImage
	if err := s.Unpack(&rec); err != nil {
		return nil, errors.Wrap(err, "failed to unpack image record")
	}
	img := &LoadedImage{
		Arch:     Arch{Family(rec.Family), Endian(rec.Endian), int(rec.Bits)},
		Format:   h.Format,
		Base:     rec.Base,
		Size:     rec.Size,
		Entry:    rec.Entry,
		Bindings: make(map[string]uint64, rec.Bindings),
		Lazy:     make(map[string]bool),
		Exports:  make(map[string]uint64),
	}
	for i := uint32(0); i < rec.Bindings; i++ {
		var b snapBinding
		if err := s.Unpack(&b); err != nil {
			return nil, errors.Wrap(err, "failed to unpack binding")
		}
		img.Bindings[string(b.Name)] = b.Addr
		if b.Lazy {
			img.Lazy[string(b.Name)] = true
		}
	}
	if uint64(buf.Len()) != img.Size {
		return nil, errors.Errorf("snapshot memory size mismatch (%#x != %#x)", buf.Len(), img.Size)
	}
	snap.Image = img
	snap.Memory = buf.Bytes()
	return snap, nil
}

// Restore maps the snapshot's memory at its original base.
func (s *Snapshot) Restore(mem TargetMemory) error {
	base, err := mem.Map(s.Image.Base, s.Image.Size)
	if err != nil {
		return err
	}
	if base != s.Image.Base {
		return errors.Errorf("snapshot base 0x%x unavailable (got 0x%x)", s.Image.Base, base)
	}
	return mem.Write(base, s.Memory)
}
