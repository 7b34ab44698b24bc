package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"testing"
	"time"

	"github.com/maruel/photometry/internal/store"
)

func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	if err := run(context.Background(), args, &out, &slog.LevelVar{}); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestCommands(t *testing.T) {
	now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	t.Cleanup(func() { now = time.Now })
	dir := t.TempDir()
	doc := filepath.Join(dir, "a.nwbp")

	runCmd(t, "-log-level", "warn", "build", "-o", doc, "-compression", "lz4")

	out := runCmd(t, "inspect", doc)
	for _, want := range []string{"table fibers (FibersTable): 1 rows", "excitation_source -> excitation_sources bound", "acquisition raw_fluorescence_trace", "photodetectors -> photodetectors [0]", "device excitation_filter"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "warning") {
		t.Errorf("unexpected warnings:\n%s", out)
	}

	table := filepath.Join(dir, "fibers.jsonl")
	runCmd(t, "export", "-table", "fibers", "-o", table, doc)
	if stdout := runCmd(t, "export", "-table", "fibers", doc); stdout == "" {
		t.Error("export to stdout printed nothing")
	}

	merged := filepath.Join(dir, "b.nwbp")
	runCmd(t, "import", "-in", table, "-module", "extra", "-o", merged, doc)
	f, r, err := store.ReadFile(merged, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Malformed() {
		t.Errorf("warnings: %v", r.Warnings)
	}
	m, ok := f.ProcessingModule("extra")
	if !ok {
		t.Fatal("no module extra")
	}
	imported, ok := m.Table("fibers")
	if !ok || imported.Len() != 1 || len(imported.Unbound()) != 0 {
		t.Fatalf("imported table = %v", imported)
	}

	ns := runCmd(t, "schema")
	if !strings.Contains(ns, "neurodata_type_def: FibersTable") {
		t.Errorf("schema output:\n%s", ns)
	}
	nsPath := filepath.Join(dir, "ns.yaml")
	if err := os.WriteFile(nsPath, []byte(ns), 0o600); err != nil {
		t.Fatal(err)
	}
	summary := runCmd(t, "schema", "-namespace", nsPath)
	for _, want := range []string{"FibersTable (extensible)", "excitation_source -> excitation_sources", "fluorophores -> fluorophores[] optional"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary lacks %q:\n%s", want, summary)
		}
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	tests := [][]string{
		{},
		{"bogus"},
		{"-log-level", "loud", "build"},
		{"build", "-compression", "brotli", "-o", filepath.Join(dir, "x.nwbp")},
		{"inspect"},
		{"inspect", filepath.Join(dir, "missing.nwbp")},
		{"export", "x.nwbp"},
		{"import", "x.nwbp"},
		{"schema", "extra"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			var out bytes.Buffer
			if err := run(context.Background(), args, &out, &slog.LevelVar{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestVersion(t *testing.T) {
	t.Cleanup(func() { readBuild = debug.ReadBuildInfo })
	tests := []struct {
		name string
		info *debug.BuildInfo
		want string
	}{
		{"missing", nil, "photometry unknown (unknown, commit unknown)\n"},
		{"devel", &debug.BuildInfo{GoVersion: "go1.25.0", Main: debug.Module{Version: "(devel)"}}, "photometry dev (go1.25.0, commit unknown)\n"},
		{"release", &debug.BuildInfo{
			GoVersion: "go1.25.0",
			Main:      debug.Module{Version: "v1.2.3"},
			Settings:  []debug.BuildSetting{{Key: "vcs.revision", Value: "abc123"}, {Key: "vcs.modified", Value: "true"}},
		}, "photometry v1.2.3 (go1.25.0, commit abc123, modified)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readBuild = func() (*debug.BuildInfo, bool) { return tt.info, tt.info != nil }
			if got := runCmd(t, "-version"); got != tt.want {
				t.Errorf("-version = %q, want %q", got, tt.want)
			}
		})
	}
}
