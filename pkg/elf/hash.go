package elf

import (
	"unicode/utf16"

	"github.com/pkg/errors"

	"github.com/grafana/soedit/pkg/cursor"
)

// HashTable is the SysV .hash section: Buckets[h%NBucket] holds the first
// symbol index of a chain and Chains[i] the next index after symbol i. Zero
// ends a chain, symbol 0 is never part of one.
type HashTable struct {
	NBucket uint32
	NChain  uint32
	Buckets []uint32
	Chains  []uint32
}

// Hash is the classic ELF hash accumulated over the UTF-16 code units of
// name, masked to 31 bits.
func Hash(name string) uint32 {
	var h uint64
	for _, c := range utf16.Encode([]rune(name)) {
		h = (h << 4) + uint64(c)
		if x := h & 0xf0000000; x != 0 {
			h ^= x >> 24
			h &^= x
		}
	}
	return uint32(h & 0x7fffffff)
}

// EncodedSize is the size of the table in the file.
func (h *HashTable) EncodedSize() uint64 {
	return 8 + 4*uint64(h.NBucket) + 4*uint64(h.NChain)
}

func (h *HashTable) Bucket(name string) uint32 {
	return Hash(name) % h.NBucket
}

func (h *HashTable) Clone() *HashTable {
	return &HashTable{
		NBucket: h.NBucket,
		NChain:  h.NChain,
		Buckets: append([]uint32(nil), h.Buckets...),
		Chains:  append([]uint32(nil), h.Chains...),
	}
}

// walk calls fn for every index of the chain starting at bucket b and stops
// when fn returns false. Corrupt chains pointing outside the table or
// looping end the walk.
func (h *HashTable) walk(b uint32, fn func(i uint32) bool) {
	steps := 0
	for i := h.Buckets[b]; i != 0 && int(i) < len(h.Chains) && steps <= len(h.Chains); i = h.Chains[i] {
		if !fn(i) {
			return
		}
		steps++
	}
}

// Insert links sym under the bucket of name: directly into an empty bucket,
// otherwise at the end of the bucket's chain.
func (h *HashTable) Insert(sym uint32, name string) {
	if h.NBucket == 0 || int(sym) >= len(h.Chains) {
		return
	}
	b := h.Bucket(name)
	h.Chains[sym] = 0
	if h.Buckets[b] == 0 {
		h.Buckets[b] = sym
		return
	}
	h.walk(b, func(i uint32) bool {
		if h.Chains[i] == 0 {
			h.Chains[i] = sym
			return false
		}
		return true
	})
}

// Remove unlinks sym from whichever chain holds it.
func (h *HashTable) Remove(sym uint32) bool {
	if sym == 0 || int(sym) >= len(h.Chains) {
		return false
	}
	for b := range h.Buckets {
		if h.Buckets[b] == sym {
			h.Buckets[b] = h.Chains[sym]
			h.Chains[sym] = 0
			return true
		}
		removed := false
		h.walk(uint32(b), func(i uint32) bool {
			if h.Chains[i] == sym {
				h.Chains[i] = h.Chains[sym]
				h.Chains[sym] = 0
				removed = true
				return false
			}
			return true
		})
		if removed {
			return true
		}
	}
	return false
}

// ChainLengths returns the number of symbols reachable from every bucket.
func (h *HashTable) ChainLengths() []int {
	res := make([]int, len(h.Buckets))
	for b := range h.Buckets {
		h.walk(uint32(b), func(uint32) bool {
			res[b]++
			return true
		})
	}
	return res
}

// Encode writes the table in its file layout.
func (h *HashTable) Encode(w *cursor.Writer) error {
	if err := w.Uint32(h.NBucket); err != nil {
		return err
	}
	if err := w.Uint32(h.NChain); err != nil {
		return err
	}
	if err := w.Uint32s(h.Buckets); err != nil {
		return err
	}
	return w.Uint32s(h.Chains)
}

func (img *Image) readHash(r *cursor.Reader) error {
	s := img.SectionByName(SectionHash)
	if s == nil {
		return nil
	}
	if err := r.SeekTo(int64(s.Offset)); err != nil {
		return errors.Wrap(err, "seeking to .hash")
	}
	var (
		h   HashTable
		err error
	)
	if h.NBucket, err = r.Uint32(); err != nil {
		return errors.Wrap(err, "reading .hash bucket count")
	}
	if h.NChain, err = r.Uint32(); err != nil {
		return errors.Wrap(err, "reading .hash chain count")
	}
	if actual := h.EncodedSize(); actual != s.Size {
		return errors.Wrapf(ErrInvalidFormat, "error reading hash table (read %d bytes, expected to read %d bytes)", actual, s.Size)
	}
	if h.Buckets, err = r.Uint32s(int(h.NBucket)); err != nil {
		return errors.Wrap(err, "reading .hash buckets")
	}
	if h.Chains, err = r.Uint32s(int(h.NChain)); err != nil {
		return errors.Wrap(err, "reading .hash chains")
	}
	img.Hash = &h
	return nil
}

// Lookup returns the index of the dynamic symbol called name by walking the
// hash chain of its bucket, or -1.
func (img *Image) Lookup(name string) int {
	return img.LookupIn(img.Hash, img.DynStr, name)
}

// LookupIn is Lookup against an arbitrary hash table and string table, as
// produced by a rewrite.
func (img *Image) LookupIn(h *HashTable, strtab []byte, name string) int {
	if h == nil || h.NBucket == 0 || len(h.Buckets) == 0 {
		return -1
	}
	found := -1
	h.walk(h.Bucket(name), func(i uint32) bool {
		if int(i) < len(img.Symbols) && StringAt(strtab, img.Symbols[i].NameIndex) == name {
			found = int(i)
			return false
		}
		return true
	})
	return found
}
