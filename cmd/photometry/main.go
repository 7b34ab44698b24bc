// Package main is the entry point for the photometry tool.
//
// photometry builds, inspects and converts fiber photometry documents. The
// log level and default compression can be set from the environment with
// PHOTOMETRY_LOG_LEVEL and PHOTOMETRY_COMPRESSION.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "photometry: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)
	return run(ctx, os.Args[1:], os.Stdout, ll)
}

// run parses the global flags and dispatches to a command.
func run(ctx context.Context, args []string, stdout io.Writer, ll *slog.LevelVar) error {
	fs := flag.NewFlagSet("photometry", flag.ContinueOnError)
	version := fs.Bool("version", false, "Print version and exit")
	logLevel := fs.String("log-level", envOr("PHOTOMETRY_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: photometry [flags] <command> [args]\n\ncommands:\n")
		for _, c := range commands {
			fmt.Fprintf(fs.Output(), "  %-8s %s\n", c.name, c.help)
		}
		fmt.Fprintf(fs.Output(), "\nflags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *version {
		currentBuild().write(stdout)
		return nil
	}
	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
		ll.Set(slog.LevelInfo)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("a command is required")
	}
	name := fs.Arg(0)
	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, fs.Args()[1:], stdout)
		}
	}
	return fmt.Errorf("unknown command %q", name)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// build describes the binary as recorded by the Go toolchain.
type build struct {
	module    string
	toolchain string
	commit    string
	modified  bool
}

// readBuild is replaced in tests.
var readBuild = debug.ReadBuildInfo

func currentBuild() build {
	b := build{module: "unknown", toolchain: "unknown", commit: "unknown"}
	info, ok := readBuild()
	if !ok {
		return b
	}
	if b.module = info.Main.Version; b.module == "" || b.module == "(devel)" {
		b.module = "dev"
	}
	b.toolchain = info.GoVersion
	for _, kv := range info.Settings {
		if kv.Key == "vcs.revision" {
			b.commit = kv.Value
		} else if kv.Key == "vcs.modified" {
			b.modified = kv.Value == "true"
		}
	}
	return b
}

func (b build) write(w io.Writer) {
	fmt.Fprintf(w, "photometry %s (%s, commit %s", b.module, b.toolchain, b.commit)
	if b.modified {
		io.WriteString(w, ", modified")
	}
	io.WriteString(w, ")\n")
}

// now is replaced in tests.
var now = time.Now
