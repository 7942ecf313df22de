// Package rename moves the JNI entry points and class names of a native
// library from one Java package to another, without changing the length of
// any string.
package rename

import (
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/grafana/soedit/pkg/strtab"
)

var ErrInvalidPackage = errors.New("invalid package name")

const jniPrefix = "Java_"

// Plan renames package From to To. Both are stored in their JNI form,
// segments joined by underscores.
type Plan struct {
	From string
	To   string
}

// New accepts package names written as com.example.app, com/example/app or
// com_example_app. The new name may not be longer than the old one.
func New(from, to string) (*Plan, error) {
	p := &Plan{From: normalize(from), To: normalize(to)}
	if p.From == "" || p.To == "" {
		return nil, errors.Wrapf(ErrInvalidPackage, "empty package name (%q -> %q)", from, to)
	}
	if len(p.To) > len(p.From) {
		return nil, errors.Wrapf(ErrInvalidPackage, "%q is longer than %q", to, from)
	}
	return p, nil
}

func normalize(pkg string) string {
	pkg = strings.Trim(strings.TrimSpace(pkg), "./_")
	return strings.NewReplacer(".", "_", "/", "_").Replace(pkg)
}

// Path is the package as it appears in class descriptors.
func Path(jni string) string { return strings.ReplaceAll(jni, "_", "/") }

// Symbol returns the replacement for a dynamic string: names of native
// methods in From are moved to To.
func (p *Plan) Symbol(name string) (string, bool) {
	prefix := jniPrefix + p.From
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	return jniPrefix + p.To + name[len(prefix):], true
}

// Text returns the replacement for a .rodata string: the first occurrence
// of the package path is replaced.
func (p *Plan) Text(s string) (string, bool) {
	from := Path(p.From)
	i := strings.Index(s, from)
	if i < 0 {
		return "", false
	}
	return s[:i] + Path(p.To) + s[i+len(from):], true
}

// Apply sets the replacement of every matching item of cat and returns how
// many were edited.
func (p *Plan) Apply(cat *strtab.Catalog) (int, error) {
	var (
		n   int
		err error
	)
	set := func(it *strtab.Item, replacement string) {
		if replacement == it.Original {
			return
		}
		if verr := strtab.Validate(it, replacement); verr != nil {
			err = multierror.Append(err, verr)
			return
		}
		it.Replacement = replacement
		n++
	}
	for _, it := range cat.Dynamic {
		if r, ok := p.Symbol(it.Original); ok {
			set(it, r)
		}
	}
	for _, it := range cat.ReadOnly {
		if r, ok := p.Text(it.Original); ok {
			set(it, r)
		}
	}
	return n, err
}
