package namespace

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"

	"github.com/maruel/photometry/internal/dyntable"
	"github.com/maruel/photometry/internal/photometry"
)

const sample = `
groups:
- neurodata_type_def: ExcitationSourcesTable
  neurodata_type_inc: DynamicTable
  doc: Extends DynamicTable to hold various excitation sources.
  datasets:
  - name: excitation_wavelength
    neurodata_type_inc: VectorData
    doc: excitation wavelength of the source
    dtype: float
    attributes:
    - name: unit
      dtype: text
      value: nanometers
  - name: commanded_voltage
    neurodata_type_inc: VectorData
    doc: references the commanded voltage series
    dtype:
      target_type: CommandedVoltageSeries
      reftype: object
    quantity: '?'
- neurodata_type_def: FibersTable
  neurodata_type_inc: DynamicTable
  name: fibers
  doc: Extends DynamicTable to hold various fibers.
  extensible: true
  datasets:
  - name: location
    doc: location of fiber
    dtype: text
  - name: position
    doc: coordinates of the tip
    dtype: float
    shape: [null, 3]
    quantity: '?'
  - name: gain
    doc: gain of the amplifier
    dtype: int
    quantity: '?'
    default_value: 2
  - name: excitation_source
    neurodata_type_inc: DynamicTableRegion
    doc: references rows of ExcitationSourcesTable
    attributes:
    - name: table
      dtype:
        target_type: ExcitationSourcesTable
        reftype: object
      value: excitation_sources
  - name: fluorophores
    neurodata_type_inc: DynamicTableRegion
    doc: references rows of FluorophoresTable
    quantity: '?'
    attributes:
    - name: table
      value: fluorophores
  - name: fluorophores_index
    neurodata_type_inc: VectorIndex
    doc: index into fluorophores
    quantity: '?'
- neurodata_type_def: PatchFibersTable
  neurodata_type_inc: FibersTable
  doc: Fibers with a patch cable.
  datasets:
  - name: location
    doc: brain area
    dtype: text
  - name: cable
    doc: cable model
    dtype: text
- neurodata_type_def: FiberPhotometry
  neurodata_type_inc: LabMetaData
  doc: all fiber photometry metadata
`

func TestParse(t *testing.T) {
	ns, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	schemas, err := ns.Schemas()
	if err != nil {
		t.Fatal(err)
	}
	var types []string
	for typ := range schemas {
		types = append(types, typ)
	}
	slices.Sort(types)
	if want := []string{"ExcitationSourcesTable", "FibersTable", "PatchFibersTable"}; !slices.Equal(types, want) {
		t.Fatalf("types = %v, want %v", types, want)
	}

	t.Run("columns", func(t *testing.T) {
		s := schemas["ExcitationSourcesTable"]
		want := []dyntable.ColumnSpec{
			{Name: "excitation_wavelength", Description: "excitation wavelength of the source", Kind: dyntable.KindFloat, Unit: "nanometers", Required: true},
			{Name: "commanded_voltage", Description: "references the commanded voltage series", Kind: dyntable.KindObject, TargetType: "CommandedVoltageSeries"},
		}
		if !reflect.DeepEqual(s.Columns, want) {
			t.Errorf("columns = %+v\nwant %+v", s.Columns, want)
		}
		if s.Extensible {
			t.Error("ExcitationSourcesTable is not extensible")
		}
	})
	t.Run("regions", func(t *testing.T) {
		s := schemas["FibersTable"]
		if s.Name != "fibers" || !s.Extensible {
			t.Errorf("schema = %q extensible=%v", s.Name, s.Extensible)
		}
		c, ok := s.Column("excitation_source")
		if !ok || c.Target != "excitation_sources" || c.TargetType != "ExcitationSourcesTable" || c.Ragged || !c.Required {
			t.Errorf("excitation_source = %+v", c)
		}
		c, ok = s.Column("fluorophores")
		if !ok || c.Target != "fluorophores" || c.TargetType != "" || !c.Ragged || c.Required {
			t.Errorf("fluorophores = %+v", c)
		}
		if _, ok := s.Column("fluorophores_index"); ok {
			t.Error("index dataset became a column")
		}
	})
	t.Run("shape and default", func(t *testing.T) {
		s := schemas["FibersTable"]
		c, _ := s.Column("position")
		if !slices.Equal(c.Shape, []int{3}) || c.Kind != dyntable.KindFloat {
			t.Errorf("position = %+v", c)
		}
		c, _ = s.Column("gain")
		if c.Default != int64(2) {
			t.Errorf("gain default = %#v", c.Default)
		}
	})
	t.Run("inherit", func(t *testing.T) {
		s := schemas["PatchFibersTable"]
		var names []string
		for _, c := range s.Columns {
			names = append(names, c.Name)
		}
		want := []string{"location", "position", "gain", "excitation_source", "fluorophores", "cable"}
		if !slices.Equal(names, want) {
			t.Errorf("columns = %v, want %v", names, want)
		}
		if c, _ := s.Column("location"); c.Description != "brain area" {
			t.Errorf("location not overridden: %+v", c)
		}
		if !s.Extensible || s.Name != "" {
			t.Errorf("schema = %q extensible=%v", s.Name, s.Extensible)
		}
		// The base schema is unaffected.
		if c, _ := schemas["FibersTable"].Column("location"); c.Description != "location of fiber" {
			t.Errorf("base location = %+v", c)
		}
	})
	t.Run("usable", func(t *testing.T) {
		tbl, err := dyntable.New(schemas["FibersTable"], "", "fibers")
		if err != nil {
			t.Fatal(err)
		}
		if tbl.Name() != "fibers" || tbl.Type() != "FibersTable" {
			t.Errorf("table = %q %q", tbl.Name(), tbl.Type())
		}
	})
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		schemas bool
		want    error
	}{
		{"syntax", "groups: [", false, nil},
		{"no type", "groups:\n- doc: x\n", false, errTypeDefRequired},
		{"twice", "groups:\n- neurodata_type_def: A\n  doc: x\n- neurodata_type_def: A\n  doc: y\n", false, nil},
		{
			"cycle",
			"groups:\n- neurodata_type_def: A\n  neurodata_type_inc: B\n  doc: x\n- neurodata_type_def: B\n  neurodata_type_inc: A\n  doc: y\n",
			true, dyntable.ErrSchemaViolation,
		},
		{
			"bad dtype",
			"groups:\n- neurodata_type_def: A\n  neurodata_type_inc: DynamicTable\n  doc: x\n  datasets:\n  - name: c\n    doc: c\n    dtype: complex\n",
			true, dyntable.ErrSchemaViolation,
		},
		{
			"missing dtype",
			"groups:\n- neurodata_type_def: A\n  neurodata_type_inc: DynamicTable\n  doc: x\n  datasets:\n  - name: c\n    doc: c\n",
			true, dyntable.ErrSchemaViolation,
		},
		{
			"orphan index",
			"groups:\n- neurodata_type_def: A\n  neurodata_type_inc: DynamicTable\n  doc: x\n  datasets:\n  - name: c_index\n    neurodata_type_inc: VectorIndex\n    doc: c\n",
			true, dyntable.ErrSchemaViolation,
		},
		{
			"region without table",
			"groups:\n- neurodata_type_def: A\n  neurodata_type_inc: DynamicTable\n  doc: x\n  datasets:\n  - name: c\n    neurodata_type_inc: DynamicTableRegion\n    doc: c\n",
			true, dyntable.ErrSchemaViolation,
		},
		{
			"null inner dimension",
			"groups:\n- neurodata_type_def: A\n  neurodata_type_inc: DynamicTable\n  doc: x\n  datasets:\n  - name: c\n    doc: c\n    dtype: float\n    shape: [null, null]\n",
			true, dyntable.ErrSchemaViolation,
		},
		{
			"quantity",
			"groups:\n- neurodata_type_def: A\n  neurodata_type_inc: DynamicTable\n  doc: x\n  datasets:\n  - name: c\n    doc: c\n    dtype: float\n    quantity: '+'\n",
			true, dyntable.ErrSchemaViolation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns, err := Parse([]byte(tt.doc))
			if !tt.schemas {
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.want != nil && !errors.Is(err, tt.want) {
					t.Errorf("got %v, want %v", err, tt.want)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if _, err := ns.Schemas(); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExportRoundTrip(t *testing.T) {
	all := photometry.Schemas()
	var types []string
	for typ := range all {
		types = append(types, typ)
	}
	slices.Sort(types)
	var in []*dyntable.Schema
	for _, typ := range types {
		in = append(in, all[typ])
	}

	var buf bytes.Buffer
	if err := Export(&buf, in...); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "photometry.extensions.yaml")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	ns, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for i, g := range ns.Groups {
		if g.TypeDef != types[i] {
			t.Errorf("group %d = %q, want %q", i, g.TypeDef, types[i])
		}
	}
	got, err := ns.Schemas()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(all) {
		t.Fatalf("got %d schemas, want %d", len(got), len(all))
	}
	for typ, want := range all {
		if !reflect.DeepEqual(got[typ], want) {
			t.Errorf("%s:\ngot  %+v\nwant %+v", typ, got[typ], want)
		}
	}

	var again bytes.Buffer
	if err := Export(&again, in...); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), again.Bytes()) {
		t.Error("export is not deterministic")
	}
}

func TestFromSchema(t *testing.T) {
	g := FromSchema(photometry.FibersSchema)
	if g.TypeDef != photometry.TypeFibersTable || g.TypeInc != TypeDynamicTable || !g.Extensible {
		t.Errorf("group = %+v", g)
	}
	var index *Dataset
	for _, d := range g.Datasets {
		if d.Name == "fluorophores_index" {
			index = d
		}
	}
	if index == nil || index.TypeInc != TypeVectorIndex {
		t.Fatalf("ragged column has no index dataset: %+v", index)
	}
}

func TestParseFileMissing(t *testing.T) {
	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v", err)
	}
}
