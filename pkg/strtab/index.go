package strtab

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/grafana/soedit/pkg/elf"
)

type Option func(*options)

type options struct {
	logger log.Logger
}

func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Index builds the catalogue of img. A corrupt table that makes indexing
// panic is reported as elf.ErrInvalidFormat.
func Index(img *elf.Image, opts ...Option) (cat *Catalog, err error) {
	o := options{logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	defer func() {
		if r := recover(); r != nil {
			cat = nil
			err = errors.Wrapf(elf.ErrInvalidFormat, "indexing strings: %v", r)
		}
	}()

	cat = &Catalog{
		Dynamic:  indexDynamic(img),
		ReadOnly: indexRoData(img.RoData),
	}
	level.Debug(o.logger).Log("msg", "indexed strings", "dynstr", len(cat.Dynamic), "symbols", len(cat.Symbols()), "rodata", len(cat.ReadOnly))
	return cat, nil
}

// indexDynamic splits the dynamic string table on NUL, skipping empty
// strings, and resolves each name through the hash table.
func indexDynamic(img *elf.Image) []*Item {
	table := img.DynStr
	var items []*Item
	start := 0
	for i := 0; i <= len(table); i++ {
		if i < len(table) && table[i] != 0 {
			continue
		}
		if i > start {
			name := string(table[start:i])
			items = append(items, &Item{
				Kind:     KindDynStr,
				Original: name,
				Offset:   start,
				SymIndex: img.Lookup(name),
			})
		}
		start = i + 1
	}
	return items
}

// indexRoData scans data for runs of non-NUL bytes. Each run becomes an
// item whose Raw span also holds the NUL before it and its terminator when
// they exist, so that searching for Raw cannot match the tail of a longer
// string.
func indexRoData(data []byte) []*Item {
	var items []*Item
	end := 0
	for end < len(data) {
		for end < len(data) && data[end] == 0 {
			end++
		}
		start := end
		for end < len(data) && data[end] != 0 {
			end++
		}
		if start == end {
			break
		}
		lo, hi, lead := start, end, 0
		if start > 0 {
			lo, lead = start-1, 1
		}
		if end < len(data) {
			hi = end + 1
		}
		items = append(items, &Item{
			Kind:     KindRoData,
			Original: string(data[start:end]),
			Offset:   start,
			Raw:      append([]byte(nil), data[lo:hi]...),
			Lead:     lead,
			SymIndex: -1,
		})
	}
	return items
}
