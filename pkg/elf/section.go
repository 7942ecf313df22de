package elf

import (
	"debug/elf"

	"github.com/pkg/errors"

	"github.com/grafana/soedit/pkg/cursor"
)

// SectionHeader describes one section. Flags, Addr, Offset, Size,
// Addralign and Entsize are 4 bytes wide in 32-bit files.
type SectionHeader struct {
	Index     int
	NameIndex uint32
	Name      string
	Type      elf.SectionType
	Flags     elf.SectionFlag
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

func readSectionHeader(r *cursor.Reader, wide bool) (SectionHeader, error) {
	var (
		s   SectionHeader
		u32 uint32
		u64 uint64
		err error
	)
	if s.NameIndex, err = r.Uint32(); err != nil {
		return s, err
	}
	if u32, err = r.Uint32(); err != nil {
		return s, err
	}
	s.Type = elf.SectionType(u32)
	if u64, err = r.Word(wide); err != nil {
		return s, err
	}
	s.Flags = elf.SectionFlag(u64)
	if s.Addr, err = r.Word(wide); err != nil {
		return s, err
	}
	if s.Offset, err = r.Word(wide); err != nil {
		return s, err
	}
	if s.Size, err = r.Word(wide); err != nil {
		return s, err
	}
	if s.Link, err = r.Uint32(); err != nil {
		return s, err
	}
	if s.Info, err = r.Uint32(); err != nil {
		return s, err
	}
	if s.Addralign, err = r.Word(wide); err != nil {
		return s, err
	}
	if s.Entsize, err = r.Word(wide); err != nil {
		return s, err
	}
	return s, nil
}

func (img *Image) readSections(r *cursor.Reader) error {
	h := &img.Header
	img.Sections = make([]SectionHeader, h.Shnum)
	for i := range img.Sections {
		off := h.Shoff + uint64(i)*uint64(h.Shentsize)
		if err := r.SeekTo(int64(off)); err != nil {
			return errors.Wrapf(err, "seeking to section header %d", i)
		}
		s, err := readSectionHeader(r, img.Is64())
		if err != nil {
			return errors.Wrapf(err, "reading section header %d", i)
		}
		s.Index = i
		img.Sections[i] = s
	}

	if int(h.Shstrndx) >= len(img.Sections) {
		return errors.Wrapf(ErrInvalidFormat, "invalid e_shstrndx=%d", h.Shstrndx)
	}
	names := &img.Sections[h.Shstrndx]
	if names.Type != elf.SHT_STRTAB {
		return errors.Wrapf(ErrInvalidFormat, "wrong string section e_shstrndx=%d type %s", h.Shstrndx, names.Type)
	}
	var err error
	if img.shstrtab, err = img.SectionData(names); err != nil {
		return errors.Wrap(err, "reading section names")
	}
	for i := range img.Sections {
		img.Sections[i].Name = StringAt(img.shstrtab, img.Sections[i].NameIndex)
	}
	return nil
}
