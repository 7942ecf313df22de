package rewrite

import (
	"bytes"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/grafana/soedit/pkg/elf"
	"github.com/grafana/soedit/pkg/strtab"
)

// regenerateDynStr writes every edited item over its original bytes,
// right-padded with spaces to the original length. Everything else,
// including the terminators, is kept.
func regenerateDynStr(table []byte, items []*strtab.Item, st *Stats) []byte {
	out := append([]byte(nil), table...)
	for _, it := range items {
		if !it.Edited() {
			continue
		}
		end := it.Offset + len(it.Original)
		if it.Offset < 0 || end > len(out) {
			continue
		}
		n := copy(out[it.Offset:end], it.Replacement)
		for i := it.Offset + n; i < end; i++ {
			out[i] = ' '
		}
		st.DynStrEdited++
	}
	return out
}

// relinkHash moves every symbol whose name differs in table to the chain of
// its new bucket. Symbols with unchanged names keep their links, so an
// image without edits gets its hash table back unchanged. Buckets follow
// the stored name, so a shorter rename is only found under its space padded
// form.
func relinkHash(img *elf.Image, table []byte, st *Stats) *elf.HashTable {
	h := img.Hash.Clone()
	if h.NBucket == 0 {
		return h
	}
	for i := 1; i < len(img.Symbols) && i < len(h.Chains); i++ {
		off := img.Symbols[i].NameIndex
		before, after := img.DynString(off), elf.StringAt(table, off)
		if before == after {
			continue
		}
		st.SymbolsRenamed++
		if h.Bucket(before) == h.Bucket(after) {
			continue
		}
		h.Remove(uint32(i))
		h.Insert(uint32(i), after)
		st.SymbolsRelinked++
	}
	return h
}

// patchRoData overwrites the span of every edited item with its
// replacement and zero-fills the rest of the span. Spans that are no longer
// found in the blob are skipped.
func patchRoData(rodata []byte, items []*strtab.Item, st *Stats, logger log.Logger) []byte {
	out := append([]byte(nil), rodata...)
	for _, it := range items {
		if !it.Edited() || len(it.Raw) == 0 {
			continue
		}
		at := bytes.Index(out, it.Raw)
		if at < 0 {
			st.RoDataSkipped++
			level.Debug(logger).Log("msg", "rodata string not found, skipping", "original", it.Original)
			continue
		}
		start := at + it.Lead
		n := copy(out[start:start+len(it.Original)], it.Replacement)
		for i := start + n; i < at+len(it.Raw); i++ {
			out[i] = 0
		}
		st.RoDataPatched++
	}
	return out
}
