// Package editplan reads the YAML files describing which strings of a
// library to change:
//
//	rename:
//	  from: com.example
//	  to: com.sample
//	dynstr:
//	  - original: Java_com_example_Foo_bar
//	    replacement: Java_com_sample_Foo_bar
//	rodata:
//	  - original: com/example/Foo
//	    replacement: com/sample/Foo
package editplan

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/grafana/soedit/pkg/rename"
	"github.com/grafana/soedit/pkg/strtab"
)

var ErrInvalidPlan = errors.New("invalid edit plan")

type Plan struct {
	Rename *Rename `yaml:"rename,omitempty"`
	DynStr []Edit  `yaml:"dynstr,omitempty"`
	RoData []Edit  `yaml:"rodata,omitempty"`
}

type Rename struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type Edit struct {
	Original    string `yaml:"original"`
	Replacement string `yaml:"replacement"`
}

// Parse decodes and validates a plan. Unknown fields are rejected.
func Parse(data []byte) (*Plan, error) {
	return Read(bytes.NewReader(data))
}

func Read(r io.Reader) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to parse edit plan")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate reports every problem of the plan at once.
func (p *Plan) Validate() error {
	var err error
	if p.Rename != nil {
		if _, rerr := rename.New(p.Rename.From, p.Rename.To); rerr != nil {
			err = multierror.Append(err, errors.Wrap(rerr, "rename"))
		}
	}
	check := func(section string, edits []Edit) {
		seen := map[string]bool{}
		for i, e := range edits {
			switch {
			case e.Original == "":
				err = multierror.Append(err, errors.Wrapf(ErrInvalidPlan, "%s[%d]: original is required", section, i))
			case len(e.Replacement) > len(e.Original):
				err = multierror.Append(err, errors.Wrapf(strtab.ErrReplacementTooLong, "%s[%d]: %q -> %q", section, i, e.Original, e.Replacement))
			case seen[e.Original]:
				err = multierror.Append(err, errors.Wrapf(ErrInvalidPlan, "%s[%d]: duplicate original %q", section, i, e.Original))
			}
			seen[e.Original] = true
		}
	}
	check("dynstr", p.DynStr)
	check("rodata", p.RoData)
	return err
}

func (p *Plan) Empty() bool {
	return p.Rename == nil && len(p.DynStr) == 0 && len(p.RoData) == 0
}

// Apply marks the edits of the plan on cat. The package rename runs first so
// that explicit edits win over it.
func (p *Plan) Apply(cat *strtab.Catalog) error {
	var err error
	if p.Rename != nil {
		r, rerr := rename.New(p.Rename.From, p.Rename.To)
		if rerr != nil {
			return errors.Wrap(rerr, "rename")
		}
		if _, rerr = r.Apply(cat); rerr != nil {
			err = multierror.Append(err, rerr)
		}
	}
	apply := func(items []*strtab.Item, edits []Edit) {
		originals := lo.Map(edits, func(e Edit, _ int) string { return e.Original })
		replacements := lo.Map(edits, func(e Edit, _ int) string { return e.Replacement })
		if aerr := strtab.ApplyEdits(items, originals, replacements); aerr != nil {
			err = multierror.Append(err, aerr)
		}
	}
	apply(cat.Dynamic, p.DynStr)
	apply(cat.ReadOnly, p.RoData)
	return err
}

func (p *Plan) String() string {
	return fmt.Sprintf("rename=%v dynstr=%d rodata=%d", p.Rename != nil, len(p.DynStr), len(p.RoData))
}

// Encode writes the plan as YAML.
func (p *Plan) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return errors.Wrap(err, "failed to encode edit plan")
	}
	return enc.Close()
}

// FromCatalog drafts a plan listing every string of cat with an empty
// replacement, ready to be filled in by hand.
func FromCatalog(cat *strtab.Catalog) *Plan {
	draft := func(items []*strtab.Item) []Edit {
		edits := lo.Map(items, func(it *strtab.Item, _ int) Edit {
			return Edit{Original: it.Original, Replacement: it.Replacement}
		})
		return lo.UniqBy(edits, func(e Edit) string { return e.Original })
	}
	return &Plan{DynStr: draft(cat.Dynamic), RoData: draft(cat.ReadOnly)}
}
