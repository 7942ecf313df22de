// Package elftest builds small synthetic shared objects for tests.
package elftest

import (
	"debug/elf"
	"encoding/binary"
	"strings"

	soelf "github.com/grafana/soedit/pkg/elf"
)

type Symbol struct {
	Name  string
	Value uint64
	Size  uint64
	Bind  elf.SymBind
	Type  elf.SymType
	Shndx elf.SectionIndex
}

// Builder describes the file to build. Symbol index 0 is always the
// undefined symbol, Symbols start at index 1.
type Builder struct {
	Class elf.Class
	Order binary.ByteOrder

	Symbols []Symbol
	// ExtraDynStr are appended to .dynstr without a symbol, like DT_NEEDED
	// library names.
	ExtraDynStr []string
	NBucket     uint32
	// HashFirst places .hash before .dynstr in the file.
	HashFirst bool
	NoHash    bool
	NoDynSym  bool
	GNUHash   bool

	RoData   []byte
	NoRoData bool
}

// RoDataStrings lays out strs as NUL separated strings with a leading NUL.
func RoDataStrings(strs ...string) []byte {
	return []byte("\x00" + strings.Join(strs, "\x00") + "\x00")
}

type section struct {
	name    string
	typ     elf.SectionType
	flags   elf.SectionFlag
	data    []byte
	align   uint64
	entsize uint64
	link    string
	info    uint32

	index  int
	offset uint64
	nameAt uint32
}

type enc struct {
	buf   []byte
	order binary.ByteOrder
	wide  bool
}

func (e *enc) u8(off int, v uint8) int {
	e.buf[off] = v
	return off + 1
}

func (e *enc) u16(off int, v uint16) int {
	e.order.PutUint16(e.buf[off:], v)
	return off + 2
}

func (e *enc) u32(off int, v uint32) int {
	e.order.PutUint32(e.buf[off:], v)
	return off + 4
}

func (e *enc) u64(off int, v uint64) int {
	e.order.PutUint64(e.buf[off:], v)
	return off + 8
}

func (e *enc) word(off int, v uint64) int {
	if e.wide {
		return e.u64(off, v)
	}
	return e.u32(off, uint32(v))
}

func align(v, a uint64) uint64 {
	if a <= 1 {
		return v
	}
	return (v + a - 1) &^ (a - 1)
}

// DynStrOffsets returns the .dynstr offset of every symbol name, index 0
// being the undefined symbol.
func (b *Builder) DynStrOffsets() []uint32 {
	offsets := make([]uint32, len(b.Symbols)+1)
	off := uint32(1)
	for i, s := range b.Symbols {
		offsets[i+1] = off
		off += uint32(len(s.Name)) + 1
	}
	return offsets
}

func (b *Builder) dynstr() []byte {
	var sb strings.Builder
	sb.WriteByte(0)
	for _, s := range b.Symbols {
		sb.WriteString(s.Name)
		sb.WriteByte(0)
	}
	for _, s := range b.ExtraDynStr {
		sb.WriteString(s)
		sb.WriteByte(0)
	}
	return []byte(sb.String())
}

// hash builds the table the way linkers do: each symbol is pushed in front
// of its bucket's chain.
func (b *Builder) hash(order binary.ByteOrder) []byte {
	nbucket := b.NBucket
	if nbucket == 0 {
		nbucket = 3
	}
	nchain := uint32(len(b.Symbols) + 1)
	buckets := make([]uint32, nbucket)
	chains := make([]uint32, nchain)
	for i, s := range b.Symbols {
		idx := uint32(i + 1)
		h := soelf.Hash(s.Name) % nbucket
		chains[idx] = buckets[h]
		buckets[h] = idx
	}
	e := &enc{buf: make([]byte, 8+4*(nbucket+nchain)), order: order}
	off := e.u32(0, nbucket)
	off = e.u32(off, nchain)
	for _, v := range buckets {
		off = e.u32(off, v)
	}
	for _, v := range chains {
		off = e.u32(off, v)
	}
	return e.buf
}

func (b *Builder) symtab(order binary.ByteOrder, wide bool) []byte {
	size := 16
	if wide {
		size = 24
	}
	names := b.DynStrOffsets()
	e := &enc{buf: make([]byte, size*(len(b.Symbols)+1)), order: order, wide: wide}
	for i, s := range b.Symbols {
		off := size * (i + 1)
		off = e.u32(off, names[i+1])
		info := elf.ST_INFO(s.Bind, s.Type)
		if wide {
			off = e.u8(off, info)
			off = e.u8(off, 0)
			off = e.u16(off, uint16(s.Shndx))
			off = e.u64(off, s.Value)
			e.u64(off, s.Size)
		} else {
			off = e.u32(off, uint32(s.Value))
			off = e.u32(off, uint32(s.Size))
			off = e.u8(off, info)
			off = e.u8(off, 0)
			e.u16(off, uint16(s.Shndx))
		}
	}
	return e.buf
}

// Build lays out the file: header, one PT_LOAD program header, section
// contents, .shstrtab and the section header table.
func (b *Builder) Build() []byte {
	order := b.Order
	if order == nil {
		order = binary.LittleEndian
	}
	wide := b.Class != elf.ELFCLASS32
	wordAlign := uint64(4)
	ehsize, phentsize, shentsize := uint64(52), uint64(32), uint64(40)
	if wide {
		wordAlign = 8
		ehsize, phentsize, shentsize = 64, 56, 64
	}

	sections := []*section{{name: ""}}
	if !b.NoDynSym {
		symSize := uint64(16)
		if wide {
			symSize = 24
		}
		sections = append(sections, &section{
			name: soelf.SectionDynSym, typ: elf.SHT_DYNSYM, flags: elf.SHF_ALLOC,
			data: b.symtab(order, wide), align: wordAlign, entsize: symSize,
			link: soelf.SectionDynStr, info: 1,
		})
		dynstr := &section{
			name: soelf.SectionDynStr, typ: elf.SHT_STRTAB, flags: elf.SHF_ALLOC,
			data: b.dynstr(), align: 1,
		}
		hash := &section{
			name: soelf.SectionHash, typ: elf.SHT_HASH, flags: elf.SHF_ALLOC,
			data: b.hash(order), align: wordAlign, entsize: 4, link: soelf.SectionDynSym,
		}
		switch {
		case b.NoHash:
			sections = append(sections, dynstr)
		case b.HashFirst:
			sections = append(sections, hash, dynstr)
		default:
			sections = append(sections, dynstr, hash)
		}
		if b.GNUHash {
			sections = append(sections, &section{
				name: soelf.SectionGNUHash, typ: elf.SHT_GNU_HASH, flags: elf.SHF_ALLOC,
				data: make([]byte, 16), align: wordAlign, link: soelf.SectionDynSym,
			})
		}
	}
	if !b.NoRoData {
		sections = append(sections, &section{
			name: soelf.SectionRoData, typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC,
			data: b.RoData, align: 16,
		})
	}
	shstrtab := &section{name: ".shstrtab", typ: elf.SHT_STRTAB, align: 1}
	sections = append(sections, shstrtab)

	var names strings.Builder
	names.WriteByte(0)
	byName := map[string]*section{}
	for i, s := range sections {
		s.index = i
		byName[s.name] = s
		if s.name == "" {
			continue
		}
		s.nameAt = uint32(names.Len())
		names.WriteString(s.name)
		names.WriteByte(0)
	}
	shstrtab.data = []byte(names.String())

	off := ehsize + phentsize
	for _, s := range sections[1:] {
		off = align(off, s.align)
		s.offset = off
		off += uint64(len(s.data))
	}
	shoff := align(off, wordAlign)
	total := shoff + shentsize*uint64(len(sections))

	e := &enc{buf: make([]byte, total), order: order, wide: wide}
	copy(e.buf, elf.ELFMAG)
	if wide {
		e.buf[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	} else {
		e.buf[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	}
	if order == binary.LittleEndian {
		e.buf[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	} else {
		e.buf[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	}
	e.buf[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	p := elf.EI_NIDENT
	p = e.u16(p, uint16(elf.ET_DYN))
	machine := elf.EM_AARCH64
	if !wide {
		machine = elf.EM_ARM
	}
	p = e.u16(p, uint16(machine))
	p = e.u32(p, uint32(elf.EV_CURRENT))
	p = e.word(p, 0)
	p = e.word(p, ehsize)
	p = e.word(p, shoff)
	p = e.u32(p, 0)
	p = e.u16(p, uint16(ehsize))
	p = e.u16(p, uint16(phentsize))
	p = e.u16(p, 1)
	p = e.u16(p, uint16(shentsize))
	p = e.u16(p, uint16(len(sections)))
	e.u16(p, uint16(shstrtab.index))

	p = int(ehsize)
	p = e.u32(p, uint32(elf.PT_LOAD))
	if wide {
		p = e.u32(p, uint32(elf.PF_R|elf.PF_X))
	}
	p = e.word(p, 0)
	p = e.word(p, 0)
	p = e.word(p, 0)
	p = e.word(p, total)
	p = e.word(p, total)
	if !wide {
		p = e.u32(p, uint32(elf.PF_R|elf.PF_X))
	}
	e.word(p, 0x1000)

	for i, s := range sections {
		copy(e.buf[s.offset:], s.data)
		p = int(shoff + uint64(i)*shentsize)
		if i == 0 {
			continue
		}
		var link uint32
		if l, ok := byName[s.link]; ok {
			link = uint32(l.index)
		}
		addr := s.offset
		if s.flags&elf.SHF_ALLOC == 0 {
			addr = 0
		}
		p = e.u32(p, s.nameAt)
		p = e.u32(p, uint32(s.typ))
		p = e.word(p, uint64(s.flags))
		p = e.word(p, addr)
		p = e.word(p, s.offset)
		p = e.word(p, uint64(len(s.data)))
		p = e.u32(p, link)
		p = e.u32(p, s.info)
		p = e.word(p, s.align)
		e.word(p, s.entsize)
	}
	return e.buf
}
