package elf_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/soedit/pkg/cursor"
	soelf "github.com/grafana/soedit/pkg/elf"
	"github.com/grafana/soedit/pkg/elf/elftest"
)

// sysvHash is the reference hash from the System V ABI over bytes.
func sysvHash(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = (h << 4) + uint32(name[i])
		if g := h & 0xf0000000; g != 0 {
			h ^= g >> 24
		}
		h &^= h & 0xf0000000
	}
	return h
}

func TestHash(t *testing.T) {
	require.Equal(t, uint32(0), soelf.Hash(""))
	require.Equal(t, uint32('a'), soelf.Hash("a"))
	require.Equal(t, uint32(0x672), soelf.Hash("ab"))
	for _, name := range []string{
		"printf",
		"JNI_OnLoad",
		"Java_com_example_Foo_bar",
		"_ZN7android14AndroidRuntime8startRegEP7_JNIEnv",
		"a_really_long_symbol_name_that_keeps_the_top_nibble_busy_for_a_while",
	} {
		require.Equal(t, sysvHash(name), soelf.Hash(name), name)
		require.Less(t, soelf.Hash(name), uint32(0x80000000))
	}
}

func TestHashUsesUTF16Units(t *testing.T) {
	// U+00E9 is one UTF-16 unit but two UTF-8 bytes
	require.Equal(t, uint32(0xe9), soelf.Hash("é"))
	require.NotEqual(t, sysvHash("é"), soelf.Hash("é"))
}

func TestLookup(t *testing.T) {
	for _, nbucket := range []uint32{1, 2, 3, 17} {
		b := &elftest.Builder{Symbols: testSymbols, NBucket: nbucket, ExtraDynStr: []string{"libc.so"}}
		img, err := soelf.Parse(b.Build())
		require.NoError(t, err)
		for i, s := range testSymbols {
			require.Equal(t, i+1, img.Lookup(s.Name), s.Name)
		}
		require.Equal(t, -1, img.Lookup("libc.so"))
		require.Equal(t, -1, img.Lookup("Java_com_example_Foo_qux"))
		require.Equal(t, -1, img.Lookup(""))
	}
}

func TestLookupCorruptChain(t *testing.T) {
	b := &elftest.Builder{Symbols: testSymbols, NBucket: 1}
	img, err := soelf.Parse(b.Build())
	require.NoError(t, err)

	// make the single chain loop on itself
	head := img.Hash.Buckets[0]
	img.Hash.Chains[head] = head
	require.Equal(t, -1, img.Lookup("not-there"))
}

func newTable(nbucket, nchain uint32) *soelf.HashTable {
	return &soelf.HashTable{
		NBucket: nbucket,
		NChain:  nchain,
		Buckets: make([]uint32, nbucket),
		Chains:  make([]uint32, nchain),
	}
}

func TestHashTableInsertRemove(t *testing.T) {
	h := newTable(1, 5)
	h.Insert(1, "a")
	h.Insert(2, "b")
	h.Insert(3, "c")
	require.Equal(t, []uint32{1}, h.Buckets)
	require.Equal(t, []uint32{0, 2, 3, 0, 0}, h.Chains)

	require.True(t, h.Remove(2))
	require.Equal(t, []uint32{0, 3, 0, 0, 0}, h.Chains)

	require.True(t, h.Remove(1))
	require.Equal(t, []uint32{3}, h.Buckets)
	require.Equal(t, []uint32{0, 0, 0, 0, 0}, h.Chains)

	require.False(t, h.Remove(4))
	require.False(t, h.Remove(0))
	require.False(t, h.Remove(99))

	h.Insert(4, "d")
	require.Equal(t, []uint32{0, 0, 0, 4, 0}, h.Chains)
}

func TestHashTableChainLengths(t *testing.T) {
	h := newTable(3, 6)
	h.Insert(1, "a")
	h.Insert(2, "d")
	h.Insert(3, "g")
	h.Insert(4, "b")
	// 'a', 'd' and 'g' are 97, 100 and 103, all 1 mod 3
	require.Equal(t, []int{0, 3, 1}, h.ChainLengths())
}

func TestHashTableClone(t *testing.T) {
	h := newTable(2, 3)
	h.Insert(1, "x")
	c := h.Clone()
	c.Insert(2, "y")
	require.NotEqual(t, h.Buckets, c.Buckets)
	require.Equal(t, h.NBucket, c.NBucket)
}

func TestHashTableEncode(t *testing.T) {
	b := &elftest.Builder{Symbols: testSymbols, NBucket: 5}
	raw := b.Build()
	img, err := soelf.Parse(raw)
	require.NoError(t, err)

	var out bytes.Buffer
	w := cursor.NewWriter(&out, binary.LittleEndian)
	require.NoError(t, img.Hash.Encode(w))

	s := img.SectionByName(soelf.SectionHash)
	require.Equal(t, s.Size, img.Hash.EncodedSize())
	require.Equal(t, raw[s.Offset:s.Offset+s.Size], out.Bytes())
}
