package elf

import (
	"debug/elf"

	"github.com/grafana/soedit/pkg/cursor"
)

// Header is the ELF file header following the identification bytes. Entry,
// Phoff and Shoff are 4 bytes wide in 32-bit files, every other field has
// the same width in both classes.
type Header struct {
	Type      elf.Type
	Machine   elf.Machine
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

func readHeader(r *cursor.Reader, wide bool) (Header, error) {
	var (
		h   Header
		u16 uint16
		err error
	)
	if err = r.SeekTo(elf.EI_NIDENT); err != nil {
		return h, err
	}
	if u16, err = r.Uint16(); err != nil {
		return h, err
	}
	h.Type = elf.Type(u16)
	if u16, err = r.Uint16(); err != nil {
		return h, err
	}
	h.Machine = elf.Machine(u16)
	if h.Version, err = r.Uint32(); err != nil {
		return h, err
	}
	if h.Entry, err = r.Word(wide); err != nil {
		return h, err
	}
	if h.Phoff, err = r.Word(wide); err != nil {
		return h, err
	}
	if h.Shoff, err = r.Word(wide); err != nil {
		return h, err
	}
	if h.Flags, err = r.Uint32(); err != nil {
		return h, err
	}
	for _, f := range []*uint16{&h.Ehsize, &h.Phentsize, &h.Phnum, &h.Shentsize, &h.Shnum, &h.Shstrndx} {
		if *f, err = r.Uint16(); err != nil {
			return h, err
		}
	}
	return h, nil
}
