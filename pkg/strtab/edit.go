package strtab

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

var (
	ErrReplacementTooLong = errors.New("replacement longer than original")
	ErrEditCountMismatch  = errors.New("originals and replacements differ in length")
)

// ApplyEdits sets, for every original/replacement pair with a non-empty
// replacement, the replacement of the first item whose original text
// matches. Originals without an item are skipped. Replacements longer than
// their original in bytes leave the item unchanged and are reported
// together.
func ApplyEdits(items []*Item, originals, replacements []string) error {
	if len(originals) != len(replacements) {
		return errors.Wrapf(ErrEditCountMismatch, "%d originals, %d replacements", len(originals), len(replacements))
	}
	var err error
	for i, original := range originals {
		replacement := replacements[i]
		if replacement == "" {
			continue
		}
		it := Find(items, original)
		if it == nil {
			continue
		}
		if verr := Validate(it, replacement); verr != nil {
			err = multierror.Append(err, verr)
			continue
		}
		it.Replacement = replacement
	}
	return err
}

// Validate checks that replacement fits in the bytes it.Original occupies.
func Validate(it *Item, replacement string) error {
	if len(replacement) > len(it.Original) {
		return errors.Wrapf(ErrReplacementTooLong, "%s %q -> %q (%d > %d bytes)", it.Kind, it.Original, replacement, len(replacement), len(it.Original))
	}
	return nil
}
