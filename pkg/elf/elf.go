// Package elf decodes the parts of an ELF shared object needed to edit its
// dynamic symbol names and read-only strings in place: the identification
// bytes, the file header, section and program headers, the dynamic symbol
// table with its string table, the SysV symbol hash table and .rodata.
package elf

import (
	"debug/elf"
	"encoding/binary"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/grafana/soedit/pkg/cursor"
)

const (
	SectionDynSym  = ".dynsym"
	SectionDynStr  = ".dynstr"
	SectionHash    = ".hash"
	SectionGNUHash = ".gnu.hash"
	SectionRoData  = ".rodata"
)

var ErrInvalidFormat = errors.New("invalid elf format")

// Image is the decoded model of one ELF file. It keeps a reference to the
// complete input so that unchanged regions can be streamed back verbatim.
type Image struct {
	Ident     [elf.EI_NIDENT]byte
	Class     elf.Class
	ByteOrder binary.ByteOrder

	Header   Header
	Sections []SectionHeader
	Progs    []ProgramHeader

	// Symbols is the .dynsym table, Hash is nil when there is no .hash
	// section. DynStr is the string table linked from .dynsym.
	Symbols []Symbol
	Hash    *HashTable
	DynStr  []byte
	RoData  []byte

	Raw []byte

	shstrtab []byte
}

type Option func(*options)

type options struct {
	logger log.Logger
}

func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Parse decodes raw. Only the first magic byte is checked. A missing .hash,
// .dynsym or .rodata section is not an error.
func Parse(raw []byte, opts ...Option) (*Image, error) {
	o := options{logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	img := &Image{Raw: raw}
	r := cursor.NewReader(raw, binary.LittleEndian)
	if err := r.ReadFull(img.Ident[:]); err != nil {
		return nil, errors.Wrap(err, "reading identification")
	}
	if img.Ident[0] != elf.ELFMAG[0] {
		return nil, errors.Wrapf(ErrInvalidFormat, "invalid elf magic %#x", img.Ident[0])
	}
	img.Class = elf.ELFCLASS32
	if elf.Class(img.Ident[elf.EI_CLASS]) == elf.ELFCLASS64 {
		img.Class = elf.ELFCLASS64
	}
	img.ByteOrder = binary.BigEndian
	if elf.Data(img.Ident[elf.EI_DATA]) == elf.ELFDATA2LSB {
		img.ByteOrder = binary.LittleEndian
	}
	r.SetByteOrder(img.ByteOrder)

	var err error
	if img.Header, err = readHeader(r, img.Is64()); err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	if err = img.readSections(r); err != nil {
		return nil, err
	}
	for i := range img.Sections {
		level.Debug(o.logger).Log("msg", "section", "index", i, "name", img.Sections[i].Name, "type", img.Sections[i].Type, "offset", img.Sections[i].Offset, "size", img.Sections[i].Size)
	}
	if err = img.readHash(r); err != nil {
		return nil, err
	}
	if err = img.readDynamicSymbols(r); err != nil {
		return nil, err
	}
	if err = img.readProgs(r); err != nil {
		return nil, err
	}
	if s := img.SectionByName(SectionRoData); s != nil {
		if img.RoData, err = img.SectionData(s); err != nil {
			return nil, errors.Wrap(err, "reading .rodata")
		}
	}
	level.Debug(o.logger).Log("msg", "parsed elf", "class", img.Class, "order", img.ByteOrder, "sections", len(img.Sections), "symbols", len(img.Symbols), "hash", img.Hash != nil, "rodata", len(img.RoData))
	return img, nil
}

func (img *Image) Is64() bool { return img.Class == elf.ELFCLASS64 }

func (img *Image) IsLittleEndian() bool { return img.ByteOrder == binary.LittleEndian }

// Size is the length of the input file in bytes.
func (img *Image) Size() int64 { return int64(len(img.Raw)) }

// HasGNUHash reports whether the loader may resolve symbols through a GNU
// hash table, which is never rewritten.
func (img *Image) HasGNUHash() bool {
	return img.SectionByType(elf.SHT_GNU_HASH) != nil
}

func (img *Image) SectionByName(name string) *SectionHeader {
	for i := range img.Sections {
		s := &img.Sections[i]
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (img *Image) SectionByType(typ elf.SectionType) *SectionHeader {
	for i := range img.Sections {
		s := &img.Sections[i]
		if s.Type == typ {
			return s
		}
	}
	return nil
}

// SectionData returns a copy of the section contents.
func (img *Image) SectionData(s *SectionHeader) ([]byte, error) {
	end := s.Offset + s.Size
	if end < s.Offset || end > uint64(len(img.Raw)) {
		return nil, errors.Wrapf(ErrInvalidFormat, "section %q [%#x, %#x) exceeds file size %#x", s.Name, s.Offset, end, len(img.Raw))
	}
	res := make([]byte, s.Size)
	copy(res, img.Raw[s.Offset:end])
	return res, nil
}

// DynString returns the NUL terminated string at offset off of DynStr.
func (img *Image) DynString(off uint32) string {
	return StringAt(img.DynStr, off)
}

// StringAt returns the NUL terminated string at offset off of table, or
// the empty string when off is outside of it.
func StringAt(table []byte, off uint32) string {
	if int(off) >= len(table) {
		return ""
	}
	end := int(off)
	for end < len(table) && table[end] != 0 {
		end++
	}
	return string(table[off:end])
}
