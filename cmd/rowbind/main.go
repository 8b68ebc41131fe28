// Command rowbind validates, converts and describes spreadsheet and CSV
// documents against the registered record kinds.
//
//	rowbind kinds
//	rowbind headers -kind product
//	rowbind template -kind product -format xlsx -o products.xlsx
//	rowbind validate -kind customer [-sheet Accounts] [-json] customers.csv
//	rowbind convert -kind customer -o customers.xlsx customers.csv.gz
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/rowbind/internal/codec"
	"github.com/JonMunkholm/rowbind/internal/config"
	"github.com/JonMunkholm/rowbind/internal/core"
	"github.com/JonMunkholm/rowbind/internal/kinds"
	"github.com/JonMunkholm/rowbind/internal/logging"
)

// errInvalid is returned when a document has rows that failed to map.
var errInvalid = errors.New("document has invalid rows")

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr))
}

// app carries what every command needs.
type app struct {
	engine *core.Engine
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"kinds", "list registered kinds", runKinds},
	{"headers", "print the header row of a kind", runHeaders},
	{"template", "write an empty document for a kind", runTemplate},
	{"validate", "check a document against a kind", runValidate},
	{"convert", "rewrite the valid rows of a document in another format", runConvert},
}

// run executes one command and returns the process exit code: 0 on
// success, 1 when a document is invalid and 2 on any other failure.
func run(ctx context.Context, args []string, lookup config.LookupFunc, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		usage(stderr)
		return 2
	}

	cfg, err := config.LoadFrom(lookup)
	if err != nil {
		fmt.Fprintf(stderr, "rowbind: %v\n", err)
		return 2
	}
	logger := logging.New(stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	engineCfg, err := cfg.Engine(logger)
	if err != nil {
		fmt.Fprintf(stderr, "rowbind: %v\n", err)
		return 2
	}
	a := &app{engine: core.New(engineCfg), stdout: stdout, stderr: stderr}
	kinds.Install(a.engine)

	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		err := c.run(ctx, a, args[1:])
		switch {
		case err == nil:
			return 0
		case errors.Is(err, errInvalid):
			return 1
		case errors.Is(err, flag.ErrHelp):
			return 2
		}
		msg := err.Error()
		if core.IsUserFacing(err) {
			msg = core.FormatUserError(err)
		}
		fmt.Fprintf(stderr, "rowbind %s: %s\n", c.name, msg)
		var sheetErr *codec.SheetNotFoundError
		if errors.As(err, &sheetErr) {
			fmt.Fprintf(stderr, "available sheets: %s\n", strings.Join(sheetErr.Sheets, ", "))
		}
		logger.Debug("command failed", "command", c.name, "error", err)
		return 2
	}

	fmt.Fprintf(stderr, "rowbind: unknown command %q\n", args[0])
	usage(stderr)
	return 2
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: rowbind <command> [flags] [file]")
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.usage)
	}
	tw.Flush()
}

func newFlagSet(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func lookupKind(key string) (core.Kind, error) {
	if key == "" {
		return core.Kind{}, errors.New("-kind is required")
	}
	k, ok := core.Get(key)
	if !ok {
		return core.Kind{}, fmt.Errorf("%w: %q", core.ErrUnknownKind, key)
	}
	return k, nil
}

func runKinds(_ context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "kinds")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tGROUP\tLABEL\tTABLE")
	for _, k := range core.All() {
		table := k.Info.Table
		if table == "" {
			table = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", k.Info.Key, k.Info.Group, k.Info.Label, table)
	}
	return tw.Flush()
}

func runHeaders(_ context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "headers")
	key := fs.String("kind", "", "record kind")
	if err := fs.Parse(args); err != nil {
		return err
	}
	k, err := lookupKind(*key)
	if err != nil {
		return err
	}

	headers, err := k.Headers(a.engine)
	if err != nil {
		return err
	}
	for _, h := range headers {
		fmt.Fprintln(a.stdout, h)
	}
	return nil
}

func runTemplate(_ context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "template")
	key := fs.String("kind", "", "record kind")
	formatName := fs.String("format", "", "csv, tsv or xlsx (default from -o, else csv)")
	output := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	k, err := lookupKind(*key)
	if err != nil {
		return err
	}
	format, err := outputFormat(*formatName, *output)
	if err != nil {
		return err
	}

	return writeOutput(a, *output, func(w io.Writer) error {
		return k.Template(a.engine, w, format)
	})
}

func runValidate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "validate")
	key := fs.String("kind", "", "record kind")
	sheet := fs.String("sheet", "", "worksheet to read (default first)")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	k, err := lookupKind(*key)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one input file")
	}

	f, opts, err := openInput(a.engine, fs.Arg(0), *sheet)
	if err != nil {
		return err
	}
	defer f.Close()

	report, err := k.Validate(ctx, a.engine, f, opts)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(a.stdout, report)
	}
	if !report.IsValid() {
		return errInvalid
	}
	return nil
}

func runConvert(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "convert")
	key := fs.String("kind", "", "record kind")
	sheet := fs.String("sheet", "", "worksheet to read (default first)")
	formatName := fs.String("to", "", "csv, tsv or xlsx (default from -o, else csv)")
	output := fs.String("o", "", "output file (default stdout)")
	strict := fs.Bool("strict", false, "exit 1 when any row failed to map")
	if err := fs.Parse(args); err != nil {
		return err
	}
	k, err := lookupKind(*key)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one input file")
	}
	format, err := outputFormat(*formatName, *output)
	if err != nil {
		return err
	}

	f, opts, err := openInput(a.engine, fs.Arg(0), *sheet)
	if err != nil {
		return err
	}
	defer f.Close()

	var report *core.Report
	err = writeOutput(a, *output, func(w io.Writer) error {
		r, err := k.Convert(ctx, a.engine, f, opts, w, format)
		report = r
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stderr, "%s: wrote %d of %d rows\n", k.Info.Key, report.ValidRows, report.TotalRows)
	for _, e := range report.Errors {
		fmt.Fprintf(a.stderr, "  skipped row %d: %s\n", e.Row, e.Message)
	}
	if *strict && !report.IsValid() {
		return errInvalid
	}
	return nil
}

// openInput opens path and detects its format from the file name.
func openInput(e *core.Engine, path, sheet string) (*os.File, core.ReadOptions, error) {
	opts, err := e.ReadOptionsFor(filepath.Base(path))
	if err != nil {
		return nil, core.ReadOptions{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, core.ReadOptions{}, err
	}
	if info, err := f.Stat(); err == nil {
		opts.Size = info.Size()
	}
	opts.XLSX.Sheet = sheet
	return f, opts, nil
}

// outputFormat resolves an explicit format name, else the extension of
// the output path, else csv.
func outputFormat(name, output string) (codec.Format, error) {
	if name != "" {
		return codec.ParseFormat(name)
	}
	if output != "" {
		format, comp, err := codec.DetectFormat(output)
		if err != nil {
			return codec.FormatUnknown, err
		}
		if comp != codec.CompressionNone {
			return codec.FormatUnknown, fmt.Errorf("compressed output is not supported: %s", output)
		}
		return format, nil
	}
	return codec.FormatCSV, nil
}

// writeOutput runs fn against the output file, or stdout when path is
// empty. A partly written file is removed when fn fails.
func writeOutput(a *app, path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(a.stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func printReport(w io.Writer, r *core.Report) {
	status := "valid"
	if !r.IsValid() {
		status = "invalid"
	}
	fmt.Fprintf(w, "%s: %s, %d rows, %d valid, %d errors (%.1f%%)\n",
		r.Kind, status, r.TotalRows, r.ValidRows, len(r.Errors), r.SuccessRate())
	if r.IsValid() {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tCOLUMN\tPROBLEM")
	for _, e := range r.Errors {
		column := e.Column
		if column == "" {
			column = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Row, column, strings.TrimSpace(e.Message))
	}
	tw.Flush()
}
