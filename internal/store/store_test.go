package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log/slog"
	"path/filepath"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/maruel/photometry/internal/dyntable"
	"github.com/maruel/photometry/internal/nwb"
	"github.com/maruel/photometry/internal/photometry"
)

var targetSchema = &dyntable.Schema{
	Type: "TargetTable",
	Name: "A",
	Columns: []dyntable.ColumnSpec{
		{Name: "label", Kind: dyntable.KindText, Required: true},
	},
}

var sourceSchema = &dyntable.Schema{
	Type: "SourceTable",
	Name: "B",
	Columns: []dyntable.ColumnSpec{
		{Name: "ref", Target: "A", Ragged: true, Required: true},
	},
}

var quietLogger = slog.New(slog.DiscardHandler)

func quiet() dyntable.Option { return dyntable.WithLogger(quietLogger) }

// collect returns options recording every warning.
func collect(c Compression) (*Options, *[]*dyntable.Warning) {
	var got []*dyntable.Warning
	return &Options{
		Compression: c,
		Logger:      quietLogger,
		Warn:        func(w *dyntable.Warning) { got = append(got, w) },
	}, &got
}

func mustNew(t *testing.T, s *dyntable.Schema) *dyntable.Table {
	t.Helper()
	tbl, err := dyntable.New(s, "", "", quiet())
	if err != nil {
		t.Fatalf("New(%s) failed: %v", s.Type, err)
	}
	return tbl
}

func roundTrip(t *testing.T, f *nwb.File, opts *Options) (*nwb.File, *Report) {
	t.Helper()
	blob, err := Encode(f, opts)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	g, r, err := Decode(blob, opts)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return g, r
}

func TestDeferredReferenceRoundTrip(t *testing.T) {
	f := nwb.NewFile("session", "id", time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC))
	meta := nwb.NewMetadataRoot("Meta", "meta")
	if err := f.AddLabMetaData(meta); err != nil {
		t.Fatal(err)
	}
	a := mustNew(t, targetSchema)
	b := mustNew(t, sourceSchema)
	if err := meta.SetTable("B", b); err != nil {
		t.Fatal(err)
	}

	if err := b.AddRow(map[string]any{"ref": []int{0}}); err != nil {
		t.Fatalf("first AddRow failed: %v", err)
	}
	ref, _ := b.Region("ref")
	if ref.Bound() || b.Len() != 1 {
		t.Fatalf("after first row: bound=%v len=%d", ref.Bound(), b.Len())
	}
	if err := meta.SetTable("A", a); err != nil {
		t.Fatal(err)
	}
	if err := a.AddRow(map[string]any{"label": "x"}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddRow(map[string]any{"ref": []int{0}}); err != nil {
		t.Fatalf("second AddRow failed: %v", err)
	}
	if ref.Table() != a || b.Len() != 2 {
		t.Fatalf("after second row: target=%v len=%d", ref.Table(), b.Len())
	}

	opts, got := collect(CompressionZstd)
	g, r := roundTrip(t, f, opts)

	a2, _ := g.Metadata().Table("A")
	b2, _ := g.Metadata().Table("B")
	if a2 == nil || b2 == nil || a2 == a || b2 == b {
		t.Fatalf("tables = %p, %p", a2, b2)
	}
	ref2, ok := b2.Region("ref")
	if !ok || ref2.Table() != a2 {
		t.Fatalf("ref bound to %v, want the decoded A", ref2.Table())
	}
	rows, err := ref2.Lookup(1)
	if err != nil || len(rows) != 1 || rows[0]["label"] != "x" {
		t.Errorf("Lookup(1) = %v, %v", rows, err)
	}
	if !ref2.Deferred(0) || ref2.Deferred(1) {
		t.Errorf("Deferred = %v, %v, want true, false", ref2.Deferred(0), ref2.Deferred(1))
	}
	if !r.Malformed() {
		t.Fatal("report is not malformed")
	}
	w := r.Find("B", "ref")
	if w == nil || w.Kind != dyntable.WarnDeferredRows || !slices.Equal(w.Rows, []int{0}) {
		t.Errorf("Find(B, ref) = %v", w)
	}
	if len(*got) != 1 || (*got)[0].Kind != dyntable.WarnDeferredRows {
		t.Errorf("emitted = %v", *got)
	}
	if !g.SessionStart.Equal(f.SessionStart) || g.Identifier != "id" {
		t.Errorf("file = %q %v", g.Identifier, g.SessionStart)
	}
}

func TestUnresolvedReference(t *testing.T) {
	f := nwb.NewFile("session", "id", time.Now())
	meta := nwb.NewMetadataRoot("Meta", "meta")
	if err := f.AddLabMetaData(meta); err != nil {
		t.Fatal(err)
	}
	b := mustNew(t, sourceSchema)
	if err := meta.SetTable("B", b); err != nil {
		t.Fatal(err)
	}
	if err := b.AddRow(map[string]any{"ref": []int{0, 1}}); err != nil {
		t.Fatal(err)
	}

	opts, got := collect(CompressionNone)
	blob, err := Encode(f, opts)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(*got) != 1 || (*got)[0].Kind != dyntable.WarnUnresolvedAtWrite || (*got)[0].Target != "A" {
		t.Fatalf("write warnings = %v", *got)
	}
	*got = nil
	g, r, err := Decode(blob, opts)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	w := r.Find("B", "ref")
	if w == nil || w.Kind != dyntable.WarnUnresolvedOnRead {
		t.Fatalf("Find(B, ref) = %v", w)
	}
	if len(*got) != 1 {
		t.Errorf("read warnings = %v", *got)
	}

	b2, _ := g.Metadata().Table("B")
	ref2, _ := b2.Region("ref")
	if ref2.Bound() {
		t.Fatal("reloaded region is bound")
	}
	if idx, _ := ref2.Indices(0); !slices.Equal(idx, []int{0, 1}) {
		t.Errorf("Indices(0) = %v", idx)
	}

	// The reloaded document can still be completed.
	a2, err := dyntable.New(targetSchema, "", "", quiet())
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Metadata().SetTable("A", a2); err != nil {
		t.Fatal(err)
	}
	if _, err := b2.Resolve(); !errors.Is(err, dyntable.ErrDanglingReference) {
		t.Errorf("Resolve with empty A = %v, want ErrDanglingReference", err)
	}
	for _, l := range []string{"x", "y"} {
		if err := a2.AddRow(map[string]any{"label": l}); err != nil {
			t.Fatal(err)
		}
	}
	if unbound, err := b2.Resolve(); err != nil || len(unbound) != 0 || ref2.Table() != a2 {
		t.Errorf("Resolve = %v, %v", unbound, err)
	}
}

func TestRaggedRoundTrip(t *testing.T) {
	schema := &dyntable.Schema{
		Type:       "TaggedTable",
		Name:       "tagged",
		Extensible: true,
		Columns: []dyntable.ColumnSpec{
			{Name: "tags", Kind: dyntable.KindText, Ragged: true, Required: true},
			{Name: "xyz", Kind: dyntable.KindFloat, Shape: []int{3}},
			{Name: "n", Kind: dyntable.KindInt, Default: 7},
			{Name: "peers", Target: "tagged", Ragged: true},
		},
	}
	f := nwb.NewFile("session", "id", time.Now())
	pm, err := f.CreateProcessingModule("ophys", "processed")
	if err != nil {
		t.Fatal(err)
	}
	tbl := mustNew(t, schema)
	if err := pm.AddTable(tbl); err != nil {
		t.Fatal(err)
	}
	rows := []map[string]any{
		{"tags": []string{"a", "b"}, "peers": []int{}},
		{"tags": []string{}, "xyz": []float64{1, 2, 3}, "peers": []int{0}},
		{"tags": []string{"c"}, "n": 3, "peers": []int{1, 0}, "flag": true},
	}
	for i, row := range rows {
		if err := tbl.AddRow(row); err != nil {
			t.Fatalf("AddRow(%d) failed: %v", i, err)
		}
	}

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			opts, _ := collect(c)
			g, r := roundTrip(t, f, opts)
			if r.Malformed() {
				t.Errorf("report = %v", r.Warnings)
			}
			pm2, _ := g.ProcessingModule("ophys")
			tbl2, ok := pm2.Table("tagged")
			if !ok {
				t.Fatal("table missing")
			}
			if !reflect.DeepEqual(tbl2.Schema(), tbl.Schema()) {
				t.Errorf("schema = %+v, want %+v", tbl2.Schema(), tbl.Schema())
			}
			if !slices.Equal(tbl2.ColumnNames(), tbl.ColumnNames()) {
				t.Errorf("columns = %v, want %v", tbl2.ColumnNames(), tbl.ColumnNames())
			}
			for i := range tbl.Len() {
				want, _ := tbl.Row(i)
				got, err := tbl2.Row(i)
				if err != nil || !reflect.DeepEqual(got, want) {
					t.Errorf("Row(%d) = %v, %v, want %v", i, got, err, want)
				}
			}
			tags, _ := tbl2.Column("tags")
			if grp, err := tags.(*dyntable.Ragged).GroupAt(1); err != nil || len(grp) != 0 {
				t.Errorf("GroupAt(1) = %v, %v, want empty", grp, err)
			}
			peers, _ := tbl2.Region("peers")
			if peers.Table() != tbl2 {
				t.Error("self reference not bound to the decoded table")
			}
		})
	}
}

func TestChildTables(t *testing.T) {
	parentSchema := &dyntable.Schema{
		Type:    "ParentTable",
		Name:    "parent",
		Columns: []dyntable.ColumnSpec{{Name: "child", Target: "A"}},
	}
	f := nwb.NewFile("session", "id", time.Now())
	meta := nwb.NewMetadataRoot("Meta", "meta")
	if err := f.AddLabMetaData(meta); err != nil {
		t.Fatal(err)
	}
	p := mustNew(t, parentSchema)
	a := mustNew(t, targetSchema)
	if err := p.AttachTable(a); err != nil {
		t.Fatal(err)
	}
	if err := meta.SetTable("parent", p); err != nil {
		t.Fatal(err)
	}
	if err := a.AddRow(map[string]any{"label": "inner"}); err != nil {
		t.Fatal(err)
	}
	if err := p.AddRow(map[string]any{"child": 0}); err != nil {
		t.Fatal(err)
	}

	g, _ := roundTrip(t, f, nil)
	p2, _ := g.Metadata().Table("parent")
	a2, ok := p2.Child("A")
	if !ok {
		t.Fatal("child table missing")
	}
	ref, _ := p2.Region("child")
	if ref.Table() != a2 {
		t.Errorf("region bound to %v, want the decoded child", ref.Table())
	}
	if got := len(g.Tables()); got != 2 {
		t.Errorf("len(Tables()) = %d, want 2", got)
	}
}

func TestExampleRoundTrip(t *testing.T) {
	f, err := photometry.BuildExample(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), quiet())
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			opts := &Options{Compression: c, Logger: quietLogger}
			blob, err := Encode(f, opts)
			if err != nil {
				t.Fatal(err)
			}
			again, err := Encode(f, opts)
			if err != nil || !bytes.Equal(blob, again) {
				t.Error("encoding is not deterministic")
			}
			g, r, err := Decode(blob, opts)
			if err != nil {
				t.Fatal(err)
			}
			if r.Malformed() {
				t.Errorf("report = %v", r.Warnings)
			}
			if c == CompressionNone && r.Compression != CompressionNone {
				t.Errorf("Compression = %s", r.Compression)
			}
			if r.Compression != c && r.Compression != CompressionNone {
				t.Errorf("Compression = %s, want %s or none", r.Compression, c)
			}

			want, got := f.Tables(), g.Tables()
			if len(got) != len(want) {
				t.Fatalf("len(Tables()) = %d, want %d", len(got), len(want))
			}
			for i := range want {
				if !reflect.DeepEqual(got[i].Schema(), want[i].Schema()) {
					t.Errorf("%s schema differs", want[i].Name())
				}
				for j := range want[i].Len() {
					w, _ := want[i].Row(j)
					x, _ := got[i].Row(j)
					if !reflect.DeepEqual(x, w) {
						t.Errorf("%s row %d = %v, want %v", want[i].Name(), j, x, w)
					}
				}
			}

			fibers, _ := g.Metadata().Table(photometry.SlotFibers)
			raw, ok := g.Acquisition("raw_fluorescence_trace")
			if !ok || raw.ROIs.Table() != fibers {
				t.Fatalf("raw rois not bound to the decoded fibers table")
			}
			refs := raw.References()
			if len(refs) != 4 {
				t.Fatalf("len(References()) = %d, want 4", len(refs))
			}
			for _, ref := range refs {
				target, _ := g.Metadata().Table(ref.Name())
				if ref.Table() != target {
					t.Errorf("reference %q not bound to the decoded %s table", ref.Name(), ref.Name())
				}
				if idx, err := ref.Indices(0); err != nil || !reflect.DeepEqual(idx, []int{0}) {
					t.Errorf("reference %q Indices(0) = %v, %v", ref.Name(), idx, err)
				}
			}
			ophys, _ := g.ProcessingModule("ophys")
			deconv, ok := ophys.Series("deconvolved_fluorescence_trace")
			if !ok || deconv.Raw != raw || deconv.Type != nwb.TypeDeconvolvedResponseSeries {
				t.Errorf("deconvolved = %+v", deconv)
			}
			orig, _ := f.Acquisition("raw_fluorescence_trace")
			if !reflect.DeepEqual(raw.Data, orig.Data) {
				t.Error("raw data differs")
			}
			if cv, ok := g.Metadata().Object("commanded_voltage"); !ok || cv.Power != 500 {
				t.Errorf("commanded voltage = %+v", cv)
			}
			if !reflect.DeepEqual(g.Devices(), f.Devices()) {
				t.Errorf("devices = %+v, want %+v", g.Devices(), f.Devices())
			}
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	f := nwb.NewFile("session", "id", time.Now())
	meta := nwb.NewMetadataRoot("Meta", "meta")
	if err := f.AddLabMetaData(meta); err != nil {
		t.Fatal(err)
	}
	b := mustNew(t, sourceSchema)
	if err := meta.SetTable("B", b); err != nil {
		t.Fatal(err)
	}
	outside := mustNew(t, targetSchema)
	if err := b.Bind("ref", outside); err != nil {
		t.Fatal(err)
	}
	if _, err := Encode(f, &Options{Logger: quietLogger}); !errors.Is(err, dyntable.ErrSchemaViolation) {
		t.Errorf("Encode error = %v, want ErrSchemaViolation", err)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	f, err := photometry.BuildExample(time.Now(), quiet())
	if err != nil {
		t.Fatal(err)
	}
	blob, err := Encode(f, &Options{Logger: quietLogger})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated header", func(b []byte) []byte { return b[:10] }},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"bad version", func(b []byte) []byte { b[4] = 9; return b }},
		{"flipped payload", func(b []byte) []byte { b[len(b)-1] ^= 0xff; return b }},
		{"truncated payload", func(b []byte) []byte { return b[:len(b)-1] }},
		{"unknown compression", func(b []byte) []byte { b[5] = 42; return b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Decode(tt.mutate(slices.Clone(blob)), nil); !errors.Is(err, ErrCorrupt) {
				t.Errorf("error = %v, want ErrCorrupt", err)
			}
		})
	}

	t.Run("oversized header size", func(t *testing.T) {
		frame := func(c Compression, size uint64, body []byte) []byte {
			out := append([]byte{}, magic[:]...)
			out = append(out, formatVersion, byte(c))
			out = binary.LittleEndian.AppendUint64(out, size)
			out = append(out, make([]byte, 32)...)
			return append(out, body...)
		}
		zframe := zstdEncoder.EncodeAll([]byte("payload"), nil)
		cases := []struct {
			name string
			blob []byte
		}{
			{"none", frame(CompressionNone, 1<<38, nil)},
			{"lz4 header only", frame(CompressionLZ4, 1<<38, nil)},
			{"lz4", frame(CompressionLZ4, 1<<38, make([]byte, 10))},
			{"lz4 ratio", frame(CompressionLZ4, 10*lz4MaxRatio+1, make([]byte, 10))},
			{"zstd", frame(CompressionZstd, 1<<38, zframe)},
			{"zstd garbage", frame(CompressionZstd, 1<<31, make([]byte, 10))},
			{"above limit", frame(CompressionZstd, maxPayload+1, zframe)},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				if _, _, err := Decode(tc.blob, nil); !errors.Is(err, ErrCorrupt) {
					t.Errorf("error = %v, want ErrCorrupt", err)
				}
			})
		}
	})
}

func TestFile(t *testing.T) {
	f, err := photometry.BuildExample(time.Now(), quiet())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "sub", "example.nwbp")
	opts := &Options{Compression: CompressionZstd, Logger: quietLogger}
	if err := WriteFile(path, f, opts); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	g, _, err := ReadFile(path, opts)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if g.Identifier != f.Identifier {
		t.Errorf("Identifier = %q, want %q", g.Identifier, f.Identifier)
	}
	if _, _, err := ReadFile(filepath.Join(t.TempDir(), "missing"), opts); err == nil {
		t.Error("ReadFile of a missing file succeeded")
	}
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		got, err := ParseCompression(c.String())
		if err != nil || got != c {
			t.Errorf("ParseCompression(%q) = %v, %v", c.String(), got, err)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("ParseCompression(gzip) succeeded")
	}
}
