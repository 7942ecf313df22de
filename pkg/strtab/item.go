// Package strtab catalogues the editable strings of an elf.Image: the
// names in the dynamic string table and the NUL terminated strings of
// .rodata.
package strtab

import (
	"fmt"

	"github.com/samber/lo"
)

type Kind uint8

const (
	KindDynStr Kind = iota
	KindRoData
)

func (k Kind) String() string {
	switch k {
	case KindDynStr:
		return "dynstr"
	case KindRoData:
		return "rodata"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Item is one editable string.
type Item struct {
	Kind        Kind
	Original    string
	Replacement string

	// Offset of the text within its table.
	Offset int
	// Raw is the .rodata span searched for when rewriting: Lead context
	// bytes before the text, the text and its terminator.
	Raw  []byte
	Lead int

	// SymIndex is the dynamic symbol named Original, -1 if there is none.
	SymIndex int
}

func (it *Item) Edited() bool { return it.Replacement != "" }

// Key is the text the item will have after rewriting.
func (it *Item) Key() string {
	if it.Edited() {
		return it.Replacement
	}
	return it.Original
}

// Equal compares items by their original text.
func (it *Item) Equal(o *Item) bool {
	return o != nil && it.Original == o.Original
}

func (it *Item) String() string {
	if it.Edited() {
		return fmt.Sprintf("%s@%#x %q -> %q", it.Kind, it.Offset, it.Original, it.Replacement)
	}
	return fmt.Sprintf("%s@%#x %q", it.Kind, it.Offset, it.Original)
}

// Catalog holds the items of one image, each group in file order.
type Catalog struct {
	Dynamic  []*Item
	ReadOnly []*Item
}

// Items returns the dynamic string items followed by the .rodata items.
func (c *Catalog) Items() []*Item {
	res := make([]*Item, 0, len(c.Dynamic)+len(c.ReadOnly))
	res = append(res, c.Dynamic...)
	return append(res, c.ReadOnly...)
}

func (c *Catalog) Edited() []*Item {
	return lo.Filter(c.Items(), func(it *Item, _ int) bool { return it.Edited() })
}

func (c *Catalog) Kind(k Kind) []*Item {
	switch k {
	case KindDynStr:
		return c.Dynamic
	case KindRoData:
		return c.ReadOnly
	}
	return nil
}

// Symbols returns the dynamic string items that name a symbol.
func (c *Catalog) Symbols() []*Item {
	return lo.Filter(c.Dynamic, func(it *Item, _ int) bool { return it.SymIndex >= 0 })
}

// Find returns the first item whose original text is original.
func Find(items []*Item, original string) *Item {
	it, ok := lo.Find(items, func(it *Item) bool { return it.Original == original })
	if !ok {
		return nil
	}
	return it
}
