package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	socontext "github.com/grafana/soedit/pkg/context"
	"github.com/grafana/soedit/pkg/editplan"
	"github.com/grafana/soedit/pkg/metrics"
	"github.com/grafana/soedit/pkg/rename"
	"github.com/grafana/soedit/pkg/rewrite"
	"github.com/grafana/soedit/pkg/sofile"
	"github.com/grafana/soedit/pkg/strtab"
)

// convert loads in, lets apply mark the edits and stores the rewritten
// library at out. Nothing is written unless every step succeeds.
func convert(ctx context.Context, command, in, out string, apply func(*strtab.Catalog) error) (err error) {
	start := time.Now()
	m := metrics.New(socontext.Registry(ctx))
	defer func() {
		m.ObserveConversion(command, start, err)
	}()
	logger := socontext.Logger(ctx)

	lib, err := openLibrary(ctx, in)
	if err != nil {
		return err
	}
	if err = apply(lib.cat); err != nil {
		return err
	}
	edited := lib.cat.Edited()
	if len(edited) == 0 {
		level.Warn(logger).Log("msg", "no string matched, the output is a copy of the input", "path", in)
	}

	data, st, err := rewrite.Bytes(lib.img, lib.cat, rewrite.WithLogger(logger))
	if err != nil {
		return errors.Wrapf(err, "rewrite %s", in)
	}
	m.ObserveRewrite(st)
	if st.RoDataSkipped > 0 {
		level.Warn(logger).Log("msg", "some .rodata strings could not be located", "skipped", st.RoDataSkipped)
	}

	if err = sofile.Store(socontext.Fs(ctx), out, data, lib.file.Compression, lib.file.Mode); err != nil {
		return err
	}
	printEdits(output(ctx), edited)
	level.Info(logger).Log("msg", "library written", "path", out, "size", humanize.Bytes(uint64(st.BytesWritten)),
		"strings", st.DynStrEdited+st.RoDataPatched, "symbols_renamed", st.SymbolsRenamed,
		"input_xxhash", fmt.Sprintf("%016x", xxhash.Sum64(lib.img.Raw)), "output_xxhash", fmt.Sprintf("%016x", xxhash.Sum64(data)),
		"duration", time.Since(start))
	return nil
}

func editWithPlan(ctx context.Context, in, planPath, out string) error {
	data, err := afero.ReadFile(socontext.Fs(ctx), planPath)
	if err != nil {
		return errors.Wrapf(err, "read %s", planPath)
	}
	plan, err := editplan.Parse(data)
	if err != nil {
		return errors.Wrap(err, planPath)
	}
	if plan.Empty() {
		return errors.Wrapf(editplan.ErrInvalidPlan, "%s has no edits", planPath)
	}
	level.Debug(socontext.Logger(ctx)).Log("msg", "loaded edit plan", "path", planPath, "plan", plan)
	return convert(ctx, "edit", in, out, plan.Apply)
}

func renamePackage(ctx context.Context, in, from, to, out string) error {
	plan, err := rename.New(from, to)
	if err != nil {
		return err
	}
	return convert(ctx, "rename", in, out, func(cat *strtab.Catalog) error {
		_, err := plan.Apply(cat)
		return err
	})
}
