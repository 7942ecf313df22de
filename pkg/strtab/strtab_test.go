package strtab_test

import (
	"debug/elf"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	soelf "github.com/grafana/soedit/pkg/elf"
	"github.com/grafana/soedit/pkg/elf/elftest"
	"github.com/grafana/soedit/pkg/strtab"
	"github.com/grafana/soedit/pkg/test"
)

var symbols = []elftest.Symbol{
	{Name: "JNI_OnLoad", Bind: elf.STB_GLOBAL, Type: elf.STT_FUNC, Shndx: 9},
	{Name: "Java_com_example_Foo_bar", Bind: elf.STB_GLOBAL, Type: elf.STT_FUNC, Shndx: 9},
	{Name: "__cxa_finalize", Bind: elf.STB_WEAK, Type: elf.STT_FUNC},
}

func index(t *testing.T, b *elftest.Builder) *strtab.Catalog {
	t.Helper()
	img, err := soelf.Parse(b.Build())
	require.NoError(t, err)
	cat, err := strtab.Index(img, strtab.WithLogger(test.NewTestingLogger(t)))
	require.NoError(t, err)
	return cat
}

func TestIndexDynamic(t *testing.T) {
	b := &elftest.Builder{Symbols: symbols, ExtraDynStr: []string{"libc.so"}}
	cat := index(t, b)

	require.Len(t, cat.Dynamic, len(symbols)+1)
	offsets := b.DynStrOffsets()
	for i, s := range symbols {
		it := cat.Dynamic[i]
		require.Equal(t, strtab.KindDynStr, it.Kind)
		require.Equal(t, s.Name, it.Original)
		require.Equal(t, int(offsets[i+1]), it.Offset)
		require.Equal(t, i+1, it.SymIndex)
		require.Nil(t, it.Raw)
	}
	lib := cat.Dynamic[len(symbols)]
	require.Equal(t, "libc.so", lib.Original)
	require.Equal(t, -1, lib.SymIndex)
	require.Len(t, cat.Symbols(), len(symbols))
}

func TestIndexRoData(t *testing.T) {
	testcases := []struct {
		name   string
		rodata []byte
		want   []strtab.Item
	}{
		{
			name:   "nul separated",
			rodata: elftest.RoDataStrings("com/example/Foo", "hello"),
			want: []strtab.Item{
				{Original: "com/example/Foo", Offset: 1, Raw: []byte("\x00com/example/Foo\x00"), Lead: 1},
				{Original: "hello", Offset: 17, Raw: []byte("\x00hello\x00"), Lead: 1},
			},
		},
		{
			name:   "no leading nul and unterminated tail",
			rodata: []byte("abc\x00\x00\x00de"),
			want: []strtab.Item{
				{Original: "abc", Offset: 0, Raw: []byte("abc\x00"), Lead: 0},
				{Original: "de", Offset: 6, Raw: []byte("\x00de"), Lead: 1},
			},
		},
		{
			name:   "only nul bytes",
			rodata: make([]byte, 8),
		},
		{
			name: "empty",
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			cat := index(t, &elftest.Builder{Symbols: symbols, RoData: tc.rodata})
			require.Len(t, cat.ReadOnly, len(tc.want))
			for i, want := range tc.want {
				it := cat.ReadOnly[i]
				require.Equal(t, strtab.KindRoData, it.Kind)
				require.Equal(t, want.Original, it.Original)
				require.Equal(t, want.Offset, it.Offset)
				require.Equal(t, want.Raw, it.Raw)
				require.Equal(t, want.Lead, it.Lead)
				require.Equal(t, -1, it.SymIndex)
			}
		})
	}
}

func TestCatalogItems(t *testing.T) {
	cat := index(t, &elftest.Builder{Symbols: symbols, RoData: elftest.RoDataStrings("x", "y")})
	items := cat.Items()
	require.Len(t, items, len(symbols)+2)
	require.Equal(t, "JNI_OnLoad", items[0].Original)
	require.Equal(t, "x", items[len(symbols)].Original)
	require.Equal(t, cat.ReadOnly, cat.Kind(strtab.KindRoData))
	require.Empty(t, cat.Edited())

	items[1].Replacement = "Java_com_sample_Foo_bar"
	require.Equal(t, []*strtab.Item{items[1]}, cat.Edited())
	require.Equal(t, "Java_com_sample_Foo_bar", items[1].Key())
	require.Equal(t, "JNI_OnLoad", items[0].Key())
	require.True(t, items[0].Equal(&strtab.Item{Original: "JNI_OnLoad"}))
	require.False(t, items[0].Equal(nil))
}

func TestApplyEdits(t *testing.T) {
	cat := index(t, &elftest.Builder{Symbols: symbols, RoData: elftest.RoDataStrings("com/example/Foo", "com/example/Foo")})
	items := cat.Items()

	err := strtab.ApplyEdits(items,
		[]string{"Java_com_example_Foo_bar", "com/example/Foo", "JNI_OnLoad", "missing"},
		[]string{"Java_com_sample_Foo_bar", "com/sample/Foo", "", "whatever"},
	)
	require.NoError(t, err)
	require.Equal(t, "Java_com_sample_Foo_bar", cat.Dynamic[1].Replacement)
	require.False(t, cat.Dynamic[0].Edited())
	// only the first matching item is edited
	require.Equal(t, "com/sample/Foo", cat.ReadOnly[0].Replacement)
	require.False(t, cat.ReadOnly[1].Edited())
}

func TestApplyEditsTooLong(t *testing.T) {
	cat := index(t, &elftest.Builder{Symbols: symbols, RoData: elftest.RoDataStrings("short")})
	items := cat.Items()

	err := strtab.ApplyEdits(items,
		[]string{"JNI_OnLoad", "short", "__cxa_finalize"},
		[]string{"JNI_OnLoad_v2", "longer!", "__cxa_fin"},
	)
	require.Error(t, err)
	require.True(t, errors.Is(err, strtab.ErrReplacementTooLong))
	require.Contains(t, err.Error(), "2 errors occurred")
	require.False(t, cat.Dynamic[0].Edited())
	require.False(t, cat.ReadOnly[0].Edited())
	require.Equal(t, "__cxa_fin", cat.Dynamic[2].Replacement)
}

func TestApplyEditsCountMismatch(t *testing.T) {
	err := strtab.ApplyEdits(nil, []string{"a", "b"}, []string{"c"})
	require.True(t, errors.Is(err, strtab.ErrEditCountMismatch))
}

func TestIndexWithoutDynamicSymbols(t *testing.T) {
	cat := index(t, &elftest.Builder{NoDynSym: true, RoData: elftest.RoDataStrings("text")})
	require.Empty(t, cat.Dynamic)
	require.Len(t, cat.ReadOnly, 1)
}
