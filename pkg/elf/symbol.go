package elf

import (
	"debug/elf"

	"github.com/pkg/errors"

	"github.com/grafana/soedit/pkg/cursor"
)

const (
	sym32Size = 16
	sym64Size = 24
)

// Symbol is one .dynsym entry. Info packs the binding in the high nibble
// and the type in the low nibble.
type Symbol struct {
	NameIndex uint32
	Info      uint8
	Other     uint8
	Shndx     elf.SectionIndex
	Value     uint64
	Size      uint64
}

func (s *Symbol) Bind() elf.SymBind { return elf.ST_BIND(s.Info) }

func (s *Symbol) Type() elf.SymType { return elf.ST_TYPE(s.Info) }

func (s *Symbol) Visibility() elf.SymVis { return elf.ST_VISIBILITY(s.Other) }

func (s *Symbol) SetBind(b elf.SymBind) { s.Info = elf.ST_INFO(b, s.Type()) }

func (s *Symbol) SetType(t elf.SymType) { s.Info = elf.ST_INFO(s.Bind(), t) }

func symbolSize(wide bool) uint64 {
	if wide {
		return sym64Size
	}
	return sym32Size
}

// readSymbol decodes one entry in the native layout of the class:
// name, value, size, info, other, shndx for 32-bit files and
// name, info, other, shndx, value, size for 64-bit files.
func readSymbol(r *cursor.Reader, wide bool) (Symbol, error) {
	var (
		s   Symbol
		u16 uint16
		err error
	)
	if s.NameIndex, err = r.Uint32(); err != nil {
		return s, err
	}
	if !wide {
		if s.Value, err = r.Word(false); err != nil {
			return s, err
		}
		if s.Size, err = r.Word(false); err != nil {
			return s, err
		}
	}
	if s.Info, err = r.Uint8(); err != nil {
		return s, err
	}
	if s.Other, err = r.Uint8(); err != nil {
		return s, err
	}
	if u16, err = r.Uint16(); err != nil {
		return s, err
	}
	s.Shndx = elf.SectionIndex(u16)
	if wide {
		if s.Value, err = r.Uint64(); err != nil {
			return s, err
		}
		if s.Size, err = r.Uint64(); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (img *Image) readDynamicSymbols(r *cursor.Reader) error {
	dynsym := img.SectionByName(SectionDynSym)
	if dynsym == nil {
		return nil
	}
	if end := dynsym.Offset + dynsym.Size; end < dynsym.Offset || end > uint64(len(img.Raw)) {
		return errors.Wrapf(ErrInvalidFormat, ".dynsym [%#x, %#x) exceeds file size %#x", dynsym.Offset, end, len(img.Raw))
	}
	if err := r.SeekTo(int64(dynsym.Offset)); err != nil {
		return errors.Wrap(err, "seeking to .dynsym")
	}
	n := dynsym.Size / symbolSize(img.Is64())
	img.Symbols = make([]Symbol, n)
	for i := range img.Symbols {
		s, err := readSymbol(r, img.Is64())
		if err != nil {
			return errors.Wrapf(err, "reading dynamic symbol %d", i)
		}
		img.Symbols[i] = s
	}

	if int(dynsym.Link) >= len(img.Sections) {
		return errors.Wrapf(ErrInvalidFormat, ".dynsym links to missing section %d", dynsym.Link)
	}
	var err error
	if img.DynStr, err = img.SectionData(&img.Sections[dynsym.Link]); err != nil {
		return errors.Wrap(err, "reading dynamic string table")
	}
	return nil
}

// DynStrSection is the string table linked from .dynsym, nil when the image
// has no dynamic symbols.
func (img *Image) DynStrSection() *SectionHeader {
	dynsym := img.SectionByName(SectionDynSym)
	if dynsym == nil || int(dynsym.Link) >= len(img.Sections) {
		return nil
	}
	return &img.Sections[dynsym.Link]
}

// SymbolName returns the name of symbol i as stored in DynStr.
func (img *Image) SymbolName(i int) string {
	if i < 0 || i >= len(img.Symbols) {
		return ""
	}
	return img.DynString(img.Symbols[i].NameIndex)
}
