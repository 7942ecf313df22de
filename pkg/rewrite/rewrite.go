// Package rewrite produces a copy of an ELF image with the edits of a
// strtab.Catalog applied. The output has exactly the length and layout of
// the input: .dynstr, .hash and .rodata are regenerated in place and every
// other byte is copied through unchanged.
package rewrite

import (
	"bytes"
	"cmp"
	"io"
	"slices"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/grafana/soedit/pkg/cursor"
	"github.com/grafana/soedit/pkg/elf"
	"github.com/grafana/soedit/pkg/strtab"
)

// Stats summarises one rewrite.
type Stats struct {
	DynStrEdited    int
	SymbolsRenamed  int
	SymbolsRelinked int
	RoDataPatched   int
	RoDataSkipped   int
	BytesWritten    int64
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

type region struct {
	name   string
	offset int64
	data   []byte
}

// Write streams the rewritten image to w.
func Write(w io.Writer, img *elf.Image, cat *strtab.Catalog, opts ...Option) (Stats, error) {
	o := options{logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if cat == nil {
		cat = &strtab.Catalog{}
	}

	var (
		st      Stats
		regions []region
	)
	dynstr := img.DynStr
	if s := img.DynStrSection(); s != nil {
		dynstr = regenerateDynStr(img.DynStr, cat.Dynamic, &st)
		regions = append(regions, region{name: s.Name, offset: int64(s.Offset), data: dynstr})
	}
	if s := img.SectionByName(elf.SectionHash); s != nil && img.Hash != nil {
		h := relinkHash(img, dynstr, &st)
		var buf bytes.Buffer
		if err := h.Encode(cursor.NewWriter(&buf, img.ByteOrder)); err != nil {
			return st, errors.Wrap(err, "encoding .hash")
		}
		regions = append(regions, region{name: s.Name, offset: int64(s.Offset), data: buf.Bytes()})
	}
	if s := img.SectionByName(elf.SectionRoData); s != nil {
		rodata := patchRoData(img.RoData, cat.ReadOnly, &st, o.logger)
		regions = append(regions, region{name: s.Name, offset: int64(s.Offset), data: rodata})
	}
	if st.SymbolsRenamed > 0 && img.HasGNUHash() {
		level.Warn(o.logger).Log("msg", "renamed symbols are not reflected in .gnu.hash", "renamed", st.SymbolsRenamed)
	}

	slices.SortFunc(regions, func(a, b region) int { return cmp.Compare(a.offset, b.offset) })

	r := cursor.NewReader(img.Raw, img.ByteOrder)
	out := cursor.NewWriter(w, img.ByteOrder)
	var pos int64
	for _, rg := range regions {
		if rg.offset < pos {
			return st, errors.Wrapf(elf.ErrInvalidFormat, "section %s at %#x overlaps the previous section ending at %#x", rg.name, rg.offset, pos)
		}
		if err := out.CopyRange(r, pos, rg.offset); err != nil {
			return st, errors.Wrapf(err, "copying [%#x, %#x)", pos, rg.offset)
		}
		if _, err := out.Write(rg.data); err != nil {
			return st, errors.Wrapf(err, "writing %s", rg.name)
		}
		pos = rg.offset + int64(len(rg.data))
	}
	if err := out.CopyRange(r, pos, img.Size()); err != nil {
		return st, errors.Wrapf(err, "copying [%#x, %#x)", pos, img.Size())
	}
	st.BytesWritten = out.Written()
	level.Debug(o.logger).Log("msg", "rewrote image", "dynstr_edited", st.DynStrEdited, "symbols_renamed", st.SymbolsRenamed,
		"symbols_relinked", st.SymbolsRelinked, "rodata_patched", st.RoDataPatched, "rodata_skipped", st.RoDataSkipped, "bytes", st.BytesWritten)
	return st, nil
}

// Bytes returns the rewritten image.
func Bytes(img *elf.Image, cat *strtab.Catalog, opts ...Option) ([]byte, Stats, error) {
	var buf bytes.Buffer
	buf.Grow(len(img.Raw))
	st, err := Write(&buf, img, cat, opts...)
	if err != nil {
		return nil, st, err
	}
	return buf.Bytes(), st, nil
}
