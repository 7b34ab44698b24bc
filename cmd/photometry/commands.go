package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/maruel/photometry/internal/dyntable"
	"github.com/maruel/photometry/internal/jsonl"
	"github.com/maruel/photometry/internal/namespace"
	"github.com/maruel/photometry/internal/nwb"
	"github.com/maruel/photometry/internal/photometry"
	"github.com/maruel/photometry/internal/store"
	"golang.org/x/sync/errgroup"
)

type command struct {
	name string
	help string
	run  func(ctx context.Context, args []string, stdout io.Writer) error
}

var commands []command

func init() {
	commands = []command{
		{"build", "write the example document", cmdBuild},
		{"inspect", "print the tables and warnings of documents", cmdInspect},
		{"schema", "print the extension namespace, or load one", cmdSchema},
		{"export", "write a table of a document as JSON Lines", cmdExport},
		{"import", "add a JSON Lines table to a processing module", cmdImport},
	}
}

func storeFlags(fs *flag.FlagSet) func() (*store.Options, error) {
	compression := fs.String("compression", envOr("PHOTOMETRY_COMPRESSION", "zstd"), "Compression when writing (none, lz4, zstd)")
	return func() (*store.Options, error) {
		c, err := store.ParseCompression(*compression)
		if err != nil {
			return nil, err
		}
		return &store.Options{Compression: c, Logger: slog.Default()}, nil
	}
}

func cmdBuild(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	out := fs.String("o", "example.nwbp", "Output path")
	opts := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("unknown arguments: %v", fs.Args())
	}
	o, err := opts()
	if err != nil {
		return err
	}
	f, err := photometry.BuildExample(now(), dyntable.WithLogger(o.Logger))
	if err != nil {
		return fmt.Errorf("failed to build example: %w", err)
	}
	if err := store.WriteFile(*out, f, o); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Wrote document", "path", *out, "identifier", f.Identifier, "compression", o.Compression)
	return nil
}

func cmdInspect(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	watch := fs.Bool("watch", false, "Print again whenever a document changes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	paths := fs.Args()
	if len(paths) == 0 {
		return errors.New("at least one document is required")
	}
	if err := inspectAll(ctx, stdout, paths); err != nil {
		return err
	}
	if !*watch {
		return nil
	}
	return watchPaths(ctx, paths, func(path string) {
		if err := inspectAll(ctx, stdout, []string{path}); err != nil {
			slog.WarnContext(ctx, "Failed to inspect", "path", path, "err", err)
		}
	})
}

// inspectAll reads the documents concurrently and prints them in order.
func inspectAll(ctx context.Context, stdout io.Writer, paths []string) error {
	outputs := make([]string, len(paths))
	eg, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, r, err := store.ReadFile(p, &store.Options{Logger: slog.Default()})
			if err != nil {
				return err
			}
			var b strings.Builder
			describe(&b, p, f, r)
			outputs[i] = b.String()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	for _, o := range outputs {
		if _, err := io.WriteString(stdout, o); err != nil {
			return err
		}
	}
	return nil
}

func describe(w io.Writer, path string, f *nwb.File, r *store.Report) {
	fmt.Fprintf(w, "%s: %s %q started %s (%s)\n", path, f.Identifier, f.SessionDescription, f.SessionStart.Format("2006-01-02T15:04:05Z07:00"), r.Compression)
	if m := f.Metadata(); m != nil {
		fmt.Fprintf(w, "  metadata %s (%s)\n", m.Name(), m.Type())
	}
	for _, t := range f.Tables() {
		fmt.Fprintf(w, "  table %s (%s): %d rows, columns %s\n", t.Name(), t.Type(), t.Len(), strings.Join(t.ColumnNames(), ", "))
		for _, reg := range t.Regions() {
			state := "unbound"
			if reg.Bound() {
				state = "bound"
			}
			fmt.Fprintf(w, "    %s -> %s %s\n", reg.Name(), reg.TargetName(), state)
		}
	}
	for _, s := range f.Acquisitions() {
		fmt.Fprintf(w, "  acquisition %s (%s): %d samples at %g Hz\n", s.Name, s.Type, len(s.Data), s.Rate)
		for _, reg := range s.References() {
			fmt.Fprintf(w, "    %s -> %s %v\n", reg.Name(), reg.TargetName(), reg.Flat())
		}
	}
	for _, m := range f.ProcessingModules() {
		for _, s := range m.AllSeries() {
			fmt.Fprintf(w, "  processing/%s %s (%s): %d samples at %g Hz\n", m.Name(), s.Name, s.Type, len(s.Data), s.Rate)
		}
	}
	for _, d := range f.Devices() {
		fmt.Fprintf(w, "  device %s (%s)\n", d.Name, d.Type)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  warning: %v\n", warn)
	}
}

// watchPaths calls fn with the path of each document rewritten until ctx is
// done. Directories are watched since documents are replaced by rename.
func watchPaths(ctx context.Context, paths []string, fn func(path string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	watched := make(map[string]string, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		watched[abs] = p
		if dir := filepath.Dir(abs); !slices.Contains(w.WatchList(), dir) {
			if err := w.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			p, ok := watched[event.Name]
			if ok && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				fn(p)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Error watching documents", "err", err)
		}
	}
}

func cmdSchema(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("schema", flag.ContinueOnError)
	ns := fs.String("namespace", "", "Namespace file to load and summarize instead")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("unknown arguments: %v", fs.Args())
	}
	if *ns == "" {
		return namespace.Export(stdout, sortedSchemas(photometry.Schemas())...)
	}
	n, err := namespace.ParseFile(*ns)
	if err != nil {
		return err
	}
	schemas, err := n.Schemas()
	if err != nil {
		return err
	}
	for _, s := range sortedSchemas(schemas) {
		fmt.Fprintf(stdout, "%s", s.Type)
		if s.Extensible {
			fmt.Fprintf(stdout, " (extensible)")
		}
		fmt.Fprintln(stdout)
		for _, c := range s.Columns {
			fmt.Fprintf(stdout, "  %s\n", columnSummary(&c))
		}
	}
	return nil
}

func sortedSchemas(m map[string]*dyntable.Schema) []*dyntable.Schema {
	var out []*dyntable.Schema
	for _, typ := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[typ])
	}
	return out
}

func columnSummary(c *dyntable.ColumnSpec) string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteString(" ")
	if c.IsRegion() {
		b.WriteString("-> " + c.Target)
	} else {
		b.WriteString(string(c.Kind))
	}
	for _, d := range c.Shape {
		fmt.Fprintf(&b, "[%d]", d)
	}
	if c.Ragged {
		b.WriteString("[]")
	}
	if c.Unit != "" {
		b.WriteString(" " + c.Unit)
	}
	if !c.Required {
		b.WriteString(" optional")
	}
	return b.String()
}

func cmdExport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	table := fs.String("table", "", "Name of the table to export (required)")
	out := fs.String("o", "", "Output path, stdout when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *table == "" {
		return errors.New("-table is required")
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one document is required")
	}
	f, _, err := store.ReadFile(fs.Arg(0), &store.Options{Logger: slog.Default()})
	if err != nil {
		return err
	}
	i := slices.IndexFunc(f.Tables(), func(t *dyntable.Table) bool { return t.Name() == *table })
	if i < 0 {
		return fmt.Errorf("%s: no table %q", fs.Arg(0), *table)
	}
	t := f.Tables()[i]
	if *out == "" {
		return jsonl.Write(stdout, t)
	}
	w, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := jsonl.Write(w, t); err != nil {
		return errors.Join(err, w.Close())
	}
	return w.Close()
}

func cmdImport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	in := fs.String("in", "", "JSON Lines table to import (required)")
	module := fs.String("module", "ophys", "Processing module receiving the table")
	out := fs.String("o", "", "Output path, the document itself when empty")
	opts := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("-in is required")
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one document is required")
	}
	o, err := opts()
	if err != nil {
		return err
	}
	path := fs.Arg(0)
	f, _, err := store.ReadFile(path, o)
	if err != nil {
		return err
	}
	r, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	t, err := jsonl.Read(r, f, dyntable.WithLogger(o.Logger))
	if err != nil {
		return fmt.Errorf("%s: %w", *in, err)
	}
	m, ok := f.ProcessingModule(*module)
	if !ok {
		if m, err = f.CreateProcessingModule(*module, "imported tables"); err != nil {
			return err
		}
	}
	if err := m.AddTable(t); err != nil {
		return err
	}
	if *out == "" {
		*out = path
	}
	if err := store.WriteFile(*out, f, o); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Imported table", "table", t.Name(), "rows", t.Len(), "module", *module, "path", *out)
	return nil
}
