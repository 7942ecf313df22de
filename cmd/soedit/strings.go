package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/grafana/soedit/pkg/editplan"
	"github.com/grafana/soedit/pkg/elf"
	"github.com/grafana/soedit/pkg/strtab"
)

var (
	originalClr    = color.New(color.FgRed)
	replacementClr = color.New(color.FgGreen)
	notFoundClr    = color.New(color.FgYellow)
)

type jsonItem struct {
	Kind        string `json:"kind"`
	Offset      int    `json:"offset"`
	Symbol      int    `json:"symbol,omitempty"`
	Original    string `json:"original"`
	Replacement string `json:"replacement,omitempty"`
}

func selectItems(cat *strtab.Catalog, kind string, symbolsOnly bool) []*strtab.Item {
	items := cat.Items()
	for _, k := range []strtab.Kind{strtab.KindDynStr, strtab.KindRoData} {
		if kind == k.String() {
			items = cat.Kind(k)
		}
	}
	if symbolsOnly {
		items = lo.Filter(items, func(it *strtab.Item, _ int) bool { return it.SymIndex >= 0 })
	}
	return items
}

func listStrings(ctx context.Context, path, kind string, asJSON, symbolsOnly bool) error {
	lib, err := openLibrary(ctx, path)
	if err != nil {
		return err
	}
	items := selectItems(lib.cat, kind, symbolsOnly)
	out := output(ctx)
	if asJSON {
		enc := json.NewEncoder(out)
		for _, it := range items {
			v := jsonItem{Kind: it.Kind.String(), Offset: it.Offset, Original: it.Original, Replacement: it.Replacement}
			if it.SymIndex > 0 {
				v.Symbol = it.SymIndex
			}
			if err := enc.Encode(v); err != nil {
				return err
			}
		}
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Kind", "Offset", "Symbol", "String"})
	for _, it := range items {
		sym := ""
		if it.SymIndex >= 0 {
			sym = strconv.Itoa(it.SymIndex)
		}
		table.Append([]string{it.Kind.String(), hex(uint64(it.Offset)), sym, strconv.Quote(it.Original)})
	}
	table.Render()
	return nil
}

func lookup(ctx context.Context, path string, names []string) error {
	lib, err := openLibrary(ctx, path)
	if err != nil {
		return err
	}
	img := lib.img
	out := output(ctx)
	if img.Hash == nil {
		fmt.Fprintln(out, notFoundClr.Sprint("no .hash section"))
		return nil
	}
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Name", "Hash", "Bucket", "Index", "Bind", "Type", "Value", "Size"})
	for _, name := range names {
		row := []string{name, hex(uint64(elf.Hash(name))), strconv.FormatUint(uint64(img.Hash.Bucket(name)), 10)}
		i := img.Lookup(name)
		if i < 0 {
			row = append(row, notFoundClr.Sprint("not found"), "", "", "", "")
		} else {
			s := img.Symbols[i]
			row = append(row, strconv.Itoa(i), s.Bind().String(), s.Type().String(), hex(s.Value), strconv.FormatUint(s.Size, 10))
		}
		table.Append(row)
	}
	table.Render()
	return nil
}

func draftPlan(ctx context.Context, path string) error {
	lib, err := openLibrary(ctx, path)
	if err != nil {
		return err
	}
	return editplan.FromCatalog(lib.cat).Encode(output(ctx))
}

func printEdits(w io.Writer, items []*strtab.Item) {
	for _, it := range items {
		fmt.Fprintf(w, "%-6s %s %s -> %s\n", it.Kind, hex(uint64(it.Offset)),
			originalClr.Sprint(strconv.Quote(it.Original)), replacementClr.Sprint(strconv.Quote(it.Replacement)))
	}
}
