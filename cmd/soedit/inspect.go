package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/xlab/treeprint"

	socontext "github.com/grafana/soedit/pkg/context"
	"github.com/grafana/soedit/pkg/elf"
	"github.com/grafana/soedit/pkg/sofile"
	"github.com/grafana/soedit/pkg/strtab"
)

type library struct {
	file *sofile.File
	img  *elf.Image
	cat  *strtab.Catalog
}

func openLibrary(ctx context.Context, path string) (*library, error) {
	logger := socontext.Logger(ctx)
	f, err := sofile.Load(socontext.Fs(ctx), path)
	if err != nil {
		return nil, err
	}
	img, err := elf.Parse(f.Data, elf.WithLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	cat, err := strtab.Index(img, strtab.WithLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	level.Debug(logger).Log("msg", "opened library", "path", path, "compression", f.Compression, "size", len(f.Data))
	return &library{file: f, img: img, cat: cat}, nil
}

func hex(v uint64) string { return "0x" + strconv.FormatUint(v, 16) }

func inspect(ctx context.Context, path string) error {
	lib, err := openLibrary(ctx, path)
	if err != nil {
		return err
	}
	img := lib.img
	out := output(ctx)

	endian := "big endian"
	if img.IsLittleEndian() {
		endian = "little endian"
	}
	fmt.Fprintln(out, "file:", path)
	fmt.Fprintln(out, "\t class:", img.Class, endian)
	fmt.Fprintln(out, "\t type:", img.Header.Type, "machine:", img.Header.Machine)
	fmt.Fprintln(out, "\t entry:", hex(img.Header.Entry))
	fmt.Fprintln(out, "\t size:", humanize.Bytes(uint64(img.Size())), "stored:", humanize.Bytes(uint64(lib.file.StoredSize)), "compression:", lib.file.Compression)
	fmt.Fprintf(out, "\t xxhash: %016x\n", xxhash.Sum64(img.Raw))

	fmt.Fprintln(out, "sections:")
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Idx", "Name", "Type", "Offset", "Size", "Link", "EntSize"})
	for _, s := range img.Sections {
		table.Append([]string{
			strconv.Itoa(s.Index),
			s.Name,
			s.Type.String(),
			hex(s.Offset),
			humanize.Bytes(s.Size),
			strconv.FormatUint(uint64(s.Link), 10),
			strconv.FormatUint(s.Entsize, 10),
		})
	}
	table.Render()

	fmt.Fprintln(out, "program headers:")
	table = tablewriter.NewWriter(out)
	table.SetHeader([]string{"Type", "Flags", "Offset", "VAddr", "FileSz", "MemSz", "Align"})
	for _, p := range img.Progs {
		table.Append([]string{
			p.Type.String(),
			p.FlagsString(),
			hex(p.Off),
			hex(p.Vaddr),
			humanize.Bytes(p.Filesz),
			humanize.Bytes(p.Memsz),
			hex(p.Align),
		})
	}
	table.Render()

	fmt.Fprintln(out, "section to segment mapping:")
	fmt.Fprint(out, segmentTree(img).String())

	fmt.Fprintln(out, "dynamic symbols:", len(img.Symbols), "strings:", len(lib.cat.Dynamic), "rodata strings:", len(lib.cat.ReadOnly))
	if img.Hash == nil {
		fmt.Fprintln(out, "hash: none")
	} else {
		lengths := img.Hash.ChainLengths()
		empty := lo.CountBy(lengths, func(n int) bool { return n == 0 })
		fmt.Fprintf(out, "hash: %d buckets (%d empty), %d chains, longest chain %d\n",
			img.Hash.NBucket, empty, img.Hash.NChain, lo.Max(lengths))
	}
	if img.HasGNUHash() {
		fmt.Fprintln(out, "gnu hash: present, renamed symbols will not be reflected in it")
	}
	return nil
}

// segmentTree lists, for every program header, the sections whose file
// contents it maps.
func segmentTree(img *elf.Image) treeprint.Tree {
	tree := treeprint.New()
	for i, p := range img.Progs {
		b := tree.AddBranch(fmt.Sprintf("%02d %s %s", i, p.Type, p.FlagsString()))
		for _, s := range img.Sections {
			if s.Index == 0 || s.Size == 0 {
				continue
			}
			if s.Offset >= p.Off && s.Offset+s.Size <= p.Off+p.Filesz {
				b.AddNode(s.Name)
			}
		}
	}
	return tree
}
