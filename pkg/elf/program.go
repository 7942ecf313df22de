package elf

import (
	"debug/elf"
	"fmt"

	"github.com/pkg/errors"

	"github.com/grafana/soedit/pkg/cursor"
)

type ProgramHeader struct {
	Type   elf.ProgType
	Flags  elf.ProgFlag
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// FlagsString renders the permission bits as in "(R_X)".
func (p *ProgramHeader) FlagsString() string {
	b := []byte("(___)")
	if p.Flags&elf.PF_R != 0 {
		b[1] = 'R'
	}
	if p.Flags&elf.PF_W != 0 {
		b[2] = 'W'
	}
	if p.Flags&elf.PF_X != 0 {
		b[3] = 'X'
	}
	return string(b)
}

func (p *ProgramHeader) String() string {
	return fmt.Sprintf("%s off=%#x vaddr=%#x filesz=%#x memsz=%#x %s", p.Type, p.Off, p.Vaddr, p.Filesz, p.Memsz, p.FlagsString())
}

// readProgramHeader decodes one entry. 64-bit entries carry the flags right
// after the type, 32-bit entries after the memory size.
func readProgramHeader(r *cursor.Reader, wide bool) (ProgramHeader, error) {
	var (
		p   ProgramHeader
		u32 uint32
		err error
	)
	if u32, err = r.Uint32(); err != nil {
		return p, err
	}
	p.Type = elf.ProgType(u32)
	if wide {
		if u32, err = r.Uint32(); err != nil {
			return p, err
		}
		p.Flags = elf.ProgFlag(u32)
	}
	for _, f := range []*uint64{&p.Off, &p.Vaddr, &p.Paddr, &p.Filesz, &p.Memsz} {
		if *f, err = r.Word(wide); err != nil {
			return p, err
		}
	}
	if !wide {
		if u32, err = r.Uint32(); err != nil {
			return p, err
		}
		p.Flags = elf.ProgFlag(u32)
	}
	if p.Align, err = r.Word(wide); err != nil {
		return p, err
	}
	return p, nil
}

func (img *Image) readProgs(r *cursor.Reader) error {
	h := &img.Header
	img.Progs = make([]ProgramHeader, h.Phnum)
	for i := range img.Progs {
		off := h.Phoff + uint64(i)*uint64(h.Phentsize)
		if err := r.SeekTo(int64(off)); err != nil {
			return errors.Wrapf(err, "seeking to program header %d", i)
		}
		p, err := readProgramHeader(r, img.Is64())
		if err != nil {
			return errors.Wrapf(err, "reading program header %d", i)
		}
		img.Progs[i] = p
	}
	return nil
}
