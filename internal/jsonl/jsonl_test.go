package jsonl

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/maruel/photometry/internal/dyntable"
	"github.com/maruel/photometry/internal/photometry"
)

func sampleTable(t *testing.T) *dyntable.Table {
	t.Helper()
	s := &dyntable.Schema{
		Type:       "SitesTable",
		Name:       "sites",
		Extensible: true,
		Columns: []dyntable.ColumnSpec{
			{Name: "label", Kind: dyntable.KindText, Required: true},
			{Name: "position", Kind: dyntable.KindFloat, Shape: []int{3}},
			{Name: "tags", Kind: dyntable.KindText, Ragged: true},
			{Name: "gain", Kind: dyntable.KindInt, Default: 7},
			{Name: "peers", Target: "sites", Ragged: true},
		},
	}
	tbl, err := dyntable.New(s, "", "recording sites")
	if err != nil {
		t.Fatal(err)
	}
	rows := []map[string]any{
		{"label": "a", "position": []float64{1, 2, 3}, "tags": []string{}, "peers": []int{}},
		{"label": "b", "tags": []string{"x", "y"}, "peers": []int{0}, "gain": 3},
		{"label": "c", "peers": []int{0, 1}, "flag": true},
	}
	for _, r := range rows {
		if err := tbl.AddRow(r); err != nil {
			t.Fatal(err)
		}
	}
	return tbl
}

func rowsOf(t *testing.T, tbl *dyntable.Table) []map[string]any {
	t.Helper()
	var out []map[string]any
	for i := range tbl.Len() {
		row, err := tbl.Row(i)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, row)
	}
	return out
}

func TestRoundTrip(t *testing.T) {
	src := sampleTable(t)
	var buf bytes.Buffer
	if err := Write(&buf, src); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 4 {
		t.Errorf("got %d lines, want 4", n)
	}
	got, err := Read(&buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name() != "sites" || got.Description() != "recording sites" || got.Type() != "SitesTable" {
		t.Errorf("table = %q %q %q", got.Name(), got.Description(), got.Type())
	}
	if !reflect.DeepEqual(got.Schema(), src.Schema()) {
		t.Errorf("schema:\ngot  %+v\nwant %+v", got.Schema(), src.Schema())
	}
	if want := rowsOf(t, src); !reflect.DeepEqual(rowsOf(t, got), want) {
		t.Errorf("rows:\ngot  %v\nwant %v", rowsOf(t, got), want)
	}
	r, ok := got.Region("peers")
	if !ok || r.Table() != got {
		t.Fatal("peers is not bound to the imported table")
	}
	if got.Parent() != nil {
		t.Error("imported table has a parent")
	}
}

func TestReadScope(t *testing.T) {
	f, err := photometry.BuildExample(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	meta := f.Metadata()
	fibers, ok := meta.Table(photometry.SlotFibers)
	if !ok {
		t.Fatal("no fibers table")
	}
	var buf bytes.Buffer
	if err := Write(&buf, fibers); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()

	t.Run("bound", func(t *testing.T) {
		got, err := Read(bytes.NewReader(data), meta)
		if err != nil {
			t.Fatal(err)
		}
		if u := got.Unbound(); len(u) != 0 {
			t.Fatalf("%d unbound regions", len(u))
		}
		r, _ := got.Region("excitation_source")
		if want, _ := meta.Table(photometry.SlotExcitationSources); r.Table() != want {
			t.Error("excitation_source bound to the wrong table")
		}
		if !reflect.DeepEqual(rowsOf(t, got), rowsOf(t, fibers)) {
			t.Error("rows differ")
		}
	})
	t.Run("deferred", func(t *testing.T) {
		var warnings []*dyntable.Warning
		got, err := Read(bytes.NewReader(data), nil, dyntable.WithWarnFunc(func(w *dyntable.Warning) { warnings = append(warnings, w) }))
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Unbound()) == 0 {
			t.Fatal("expected unbound regions without a scope")
		}
		if len(warnings) == 0 || warnings[0].Kind != dyntable.WarnDeferredReference {
			t.Errorf("warnings = %v", warnings)
		}
		if !reflect.DeepEqual(rowsOf(t, got), rowsOf(t, fibers)) {
			t.Error("rows differ")
		}
	})
}

func TestReadErrors(t *testing.T) {
	header := `{"version":"1.0","name":"sites","rows":1,"schema":{"type":"SitesTable","columns":[{"name":"label","kind":"text","required":true}]}}`
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "", errHeaderRequired},
		{"no version", `{"name":"x","rows":0,"schema":{"type":"T","columns":[]}}` + "\n", errVersionRequired},
		{"bad version", `{"version":"9","name":"x","rows":0,"schema":{"type":"T","columns":[]}}` + "\n", nil},
		{"no schema", `{"version":"1.0","name":"x","rows":0}` + "\n", dyntable.ErrSchemaViolation},
		{"bad header", "{\n", nil},
		{"bad row", header + "\n{\n", nil},
		{"missing column", header + "\n{}\n", dyntable.ErrMissingRequiredColumn},
		{"wrong type", header + "\n" + `{"label":3}` + "\n", dyntable.ErrTypeMismatch},
		{"row count", header + "\n", dyntable.ErrSchemaViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.in), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadBlankLines(t *testing.T) {
	in := `{"version":"1.0","name":"sites","rows":2,"schema":{"type":"SitesTable","columns":[{"name":"label","kind":"text","required":true}]}}` +
		"\n\n" + `{"label":"a"}` + "\n\n" + `{"label":"b"}` + "\n"
	got, err := Read(strings.NewReader(in), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 2 {
		t.Errorf("Len() = %d", got.Len())
	}
}

func TestLargeIntegers(t *testing.T) {
	s := &dyntable.Schema{
		Type: "CountsTable",
		Name: "counts",
		Columns: []dyntable.ColumnSpec{
			{Name: "n", Kind: dyntable.KindInt, Required: true},
			{Name: "base", Kind: dyntable.KindInt, Default: int64(9007199254740995)},
			{Name: "ratio", Kind: dyntable.KindFloat},
		},
	}
	src, err := dyntable.New(s, "", "")
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range []map[string]any{
		{"n": int64(9007199254740993), "ratio": 0.1},
		{"n": int64(math.MaxInt64), "base": int64(math.MinInt64)},
	} {
		if err := src.AddRow(row); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := Write(&buf, src); err != nil {
		t.Fatal(err)
	}
	got, err := Read(&buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := rowsOf(t, src); !reflect.DeepEqual(rowsOf(t, got), want) {
		t.Errorf("rows:\ngot  %v\nwant %v", rowsOf(t, got), want)
	}
	if c, _ := got.Schema().Column("base"); c.Default != int64(9007199254740995) {
		t.Errorf("base default = %#v", c.Default)
	}

	t.Run("ad-hoc", func(t *testing.T) {
		in := `{"version":"1.0","name":"sites","rows":1,"schema":{"type":"SitesTable","extensible":true,"columns":[]}}` +
			"\n" + `{"count":9007199254740993,"scale":0.5}` + "\n"
		got, err := Read(strings.NewReader(in), nil)
		if err != nil {
			t.Fatal(err)
		}
		row, err := got.Row(0)
		if err != nil {
			t.Fatal(err)
		}
		if row["count"] != int64(9007199254740993) || row["scale"] != 0.5 {
			t.Errorf("row = %#v", row)
		}
	})
}
