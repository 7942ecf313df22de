package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"
	"gopkg.in/alecthomas/kingpin.v2"

	socontext "github.com/grafana/soedit/pkg/context"
	"github.com/grafana/soedit/pkg/metrics"
)

var cfg struct {
	verbose     bool
	metricsFile string
	strings     struct {
		kind    string
		json    bool
		symbols bool
	}
	edit struct {
		plan string
		out  string
	}
	rename struct {
		from string
		to   string
		out  string
	}
}

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)
)

func main() {
	app := kingpin.New(filepath.Base(os.Args[0]), "Edit symbol names and read-only strings of ELF shared objects in place.").UsageWriter(os.Stdout)
	app.Version(version.Print("soedit"))
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("0").BoolVar(&cfg.verbose)
	app.Flag("metrics-file", "Write conversion metrics to this file in the Prometheus text format.").StringVar(&cfg.metricsFile)

	inspectCmd := app.Command("inspect", "Print the header, sections, program headers and hash table of a library.")
	inspectFiles := inspectCmd.Arg("file", "shared object path").Required().ExistingFiles()

	stringsCmd := app.Command("strings", "List the editable strings of a library.")
	stringsFile := stringsCmd.Arg("file", "shared object path").Required().ExistingFile()
	stringsCmd.Flag("kind", "Which strings to list: dynstr, rodata or all.").Default("all").EnumVar(&cfg.strings.kind, "dynstr", "rodata", "all")
	stringsCmd.Flag("json", "Print one JSON object per string.").BoolVar(&cfg.strings.json)
	stringsCmd.Flag("symbols", "Only list dynamic strings naming a symbol.").BoolVar(&cfg.strings.symbols)

	lookupCmd := app.Command("lookup", "Resolve symbol names through the .hash table.")
	lookupFile := lookupCmd.Arg("file", "shared object path").Required().ExistingFile()
	lookupNames := lookupCmd.Arg("name", "symbol names").Required().Strings()

	planCmd := app.Command("plan", "Print an edit plan listing every string of a library.")
	planFile := planCmd.Arg("file", "shared object path").Required().ExistingFile()

	editCmd := app.Command("edit", "Apply a YAML edit plan.")
	editFile := editCmd.Arg("file", "shared object path").Required().ExistingFile()
	editCmd.Flag("plan", "Edit plan path.").Required().ExistingFileVar(&cfg.edit.plan)
	editCmd.Flag("out", "Output path.").Short('o').Required().StringVar(&cfg.edit.out)

	renameCmd := app.Command("rename", "Move the JNI methods and class names of a library to another Java package.")
	renameFile := renameCmd.Arg("file", "shared object path").Required().ExistingFile()
	renameCmd.Flag("from", "Current package, e.g. com.example.app.").Required().StringVar(&cfg.rename.from)
	renameCmd.Flag("to", "New package, not longer than the current one.").Required().StringVar(&cfg.rename.to)
	renameCmd.Flag("out", "Output path.").Short('o').Required().StringVar(&cfg.rename.out)

	// parse command line arguments
	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	// enable verbose logging if requested
	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	reg := prometheus.NewRegistry()
	ctx := socontext.WithLogger(context.Background(), logger)
	ctx = socontext.WithRegistry(ctx, reg)
	ctx = withOutput(ctx, os.Stdout)

	var err error
	switch parsedCmd {
	case inspectCmd.FullCommand():
		for _, file := range *inspectFiles {
			if err = inspect(ctx, file); err != nil {
				break
			}
		}
	case stringsCmd.FullCommand():
		err = listStrings(ctx, *stringsFile, cfg.strings.kind, cfg.strings.json, cfg.strings.symbols)
	case lookupCmd.FullCommand():
		err = lookup(ctx, *lookupFile, *lookupNames)
	case planCmd.FullCommand():
		err = draftPlan(ctx, *planFile)
	case editCmd.FullCommand():
		err = editWithPlan(ctx, *editFile, cfg.edit.plan, cfg.edit.out)
	case renameCmd.FullCommand():
		err = renamePackage(ctx, *renameFile, cfg.rename.from, cfg.rename.to, cfg.rename.out)
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
	}

	if cfg.metricsFile != "" {
		if merr := metrics.WriteTextfile(cfg.metricsFile, reg); merr != nil {
			level.Warn(logger).Log("msg", "failed to write metrics", "path", cfg.metricsFile, "err", merr)
		}
	}
	os.Exit(checkError(err))
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}

type contextKey uint8

const (
	contextKeyOutput contextKey = iota
)

func withOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, contextKeyOutput, w)
}

func output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(contextKeyOutput).(io.Writer); ok {
		return w
	}
	return os.Stdout
}
