package main

import (
	"bytes"
	"context"
	"debug/elf"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	socontext "github.com/grafana/soedit/pkg/context"
	"github.com/grafana/soedit/pkg/editplan"
	soelf "github.com/grafana/soedit/pkg/elf"
	"github.com/grafana/soedit/pkg/elf/elftest"
	"github.com/grafana/soedit/pkg/sofile"
	"github.com/grafana/soedit/pkg/test"
)

func init() {
	color.NoColor = true
}

var fixture = &elftest.Builder{
	Symbols: []elftest.Symbol{
		{Name: "JNI_OnLoad", Value: 0x1000, Size: 0x20, Bind: elf.STB_GLOBAL, Type: elf.STT_FUNC, Shndx: 9},
		{Name: "Java_com_example_Foo_bar", Value: 0x1020, Size: 0x40, Bind: elf.STB_GLOBAL, Type: elf.STT_FUNC, Shndx: 9},
	},
	ExtraDynStr: []string{"libc.so"},
	GNUHash:     true,
	RoData:      elftest.RoDataStrings("com/example/Foo", "hello"),
}

type env struct {
	ctx context.Context
	fs  afero.Fs
	out *bytes.Buffer
	reg *prometheus.Registry
}

func newEnv(t *testing.T) *env {
	e := &env{fs: afero.NewMemMapFs(), out: &bytes.Buffer{}, reg: prometheus.NewRegistry()}
	e.ctx = socontext.WithLogger(context.Background(), test.NewTestingLogger(t))
	e.ctx = socontext.WithFs(e.ctx, e.fs)
	e.ctx = socontext.WithRegistry(e.ctx, e.reg)
	e.ctx = withOutput(e.ctx, e.out)
	require.NoError(t, sofile.Store(e.fs, "/in/libfoo.so", fixture.Build(), sofile.None, 0o755))
	return e
}

func TestInspect(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, inspect(e.ctx, "/in/libfoo.so"))
	got := e.out.String()
	require.Contains(t, got, "ELFCLASS64 little endian")
	require.Contains(t, got, ".dynsym")
	require.Contains(t, got, "PT_LOAD")
	require.Contains(t, got, "(R_X)")
	require.Contains(t, got, "hash: 3 buckets")
	require.Contains(t, got, "gnu hash: present")
	require.Contains(t, got, "00 PT_LOAD (R_X)")
	require.Contains(t, got, "── .rodata")
	require.Contains(t, got, "xxhash: ")
}

func TestListStrings(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, listStrings(e.ctx, "/in/libfoo.so", "all", true, false))
	lines := strings.Split(strings.TrimSpace(e.out.String()), "\n")
	require.Len(t, lines, 5)

	var first jsonItem
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, jsonItem{Kind: "dynstr", Offset: 1, Symbol: 1, Original: "JNI_OnLoad"}, first)

	e.out.Reset()
	require.NoError(t, listStrings(e.ctx, "/in/libfoo.so", "dynstr", false, true))
	require.Contains(t, e.out.String(), "Java_com_example_Foo_bar")
	require.NotContains(t, e.out.String(), "libc.so")
	require.NotContains(t, e.out.String(), "hello")
}

func TestLookup(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, lookup(e.ctx, "/in/libfoo.so", []string{"Java_com_example_Foo_bar", "nope"}))
	got := e.out.String()
	require.Contains(t, got, "STB_GLOBAL")
	require.Contains(t, got, "0x1020")
	require.Contains(t, got, "not found")
}

func TestRenamePackage(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, renamePackage(e.ctx, "/in/libfoo.so", "com.example", "com.sample", "/out/libfoo.so"))
	require.Contains(t, e.out.String(), `"com/example/Foo" -> "com/sample/Foo"`)

	f, err := sofile.Load(e.fs, "/out/libfoo.so")
	require.NoError(t, err)
	require.Len(t, f.Data, len(fixture.Build()))
	img, err := soelf.Parse(f.Data)
	require.NoError(t, err)
	require.Equal(t, 2, img.Lookup("Java_com_sample_Foo_bar "))
	require.Contains(t, string(img.RoData), "com/sample/Foo\x00")

	require.Equal(t, 1.0, counterValue(t, e.reg, "soedit_strings_edited_total", "rodata"))
}

func TestEditWithPlan(t *testing.T) {
	e := newEnv(t)
	plan := "rodata:\n  - original: hello\n    replacement: howdy\n"
	require.NoError(t, afero.WriteFile(e.fs, "/plan.yaml", []byte(plan), 0o644))
	require.NoError(t, editWithPlan(e.ctx, "/in/libfoo.so", "/plan.yaml", "/out/libfoo.so"))

	f, err := sofile.Load(e.fs, "/out/libfoo.so")
	require.NoError(t, err)
	img, err := soelf.Parse(f.Data)
	require.NoError(t, err)
	require.Contains(t, string(img.RoData), "\x00howdy\x00")
}

func TestEditRejectsLongReplacement(t *testing.T) {
	e := newEnv(t)
	plan := "rodata:\n  - original: hello\n    replacement: hello world\n"
	require.NoError(t, afero.WriteFile(e.fs, "/plan.yaml", []byte(plan), 0o644))
	require.Error(t, editWithPlan(e.ctx, "/in/libfoo.so", "/plan.yaml", "/out/libfoo.so"))

	exists, err := afero.Exists(e.fs, "/out/libfoo.so")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestEditRejectsEmptyPlan(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, afero.WriteFile(e.fs, "/plan.yaml", []byte("rodata: []\n"), 0o644))
	err := editWithPlan(e.ctx, "/in/libfoo.so", "/plan.yaml", "/out/libfoo.so")
	require.ErrorIs(t, err, editplan.ErrInvalidPlan)

	exists, err := afero.Exists(e.fs, "/out/libfoo.so")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestListStringsByKind(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, listStrings(e.ctx, "/in/libfoo.so", "rodata", true, false))
	lines := strings.Split(strings.TrimSpace(e.out.String()), "\n")
	require.Len(t, lines, 2)
	for _, l := range lines {
		require.Contains(t, l, `"kind":"rodata"`)
	}
}

func TestConvertInvalidInput(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, afero.WriteFile(e.fs, "/in/notelf.so", []byte("MZ this is not it"), 0o644))
	err := renamePackage(e.ctx, "/in/notelf.so", "a", "b", "/out/notelf.so")
	require.ErrorIs(t, err, soelf.ErrInvalidFormat)
	require.Equal(t, 1.0, counterValue(t, e.reg, "soedit_conversions_total", "rename", "failure"))
}

func TestDraftPlan(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, draftPlan(e.ctx, "/in/libfoo.so"))
	require.Contains(t, e.out.String(), "original: Java_com_example_Foo_bar")
	require.Contains(t, e.out.String(), "original: com/example/Foo")
}

// counterValue returns the value of the counter called name whose label
// values, sorted by label name, are labels.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels ...string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			values := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				values = append(values, l.GetValue())
			}
			if strings.Join(values, ",") == strings.Join(labels, ",") {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}
