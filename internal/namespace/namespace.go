// Package namespace reads and writes extension namespace files: YAML group
// specs declaring table types, converted to and from dyntable schemas.
package namespace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/maruel/photometry/internal/dyntable"
	"gopkg.in/yaml.v3"
)

// Base types.
const (
	TypeDynamicTable       = "DynamicTable"
	TypeVectorData         = "VectorData"
	TypeVectorIndex        = "VectorIndex"
	TypeDynamicTableRegion = "DynamicTableRegion"
)

const indexSuffix = "_index"

var errTypeDefRequired = errors.New("neurodata_type_def is required")

// Namespace is the content of a namespace file.
type Namespace struct {
	Groups []*Group `yaml:"groups"`
}

// Group declares a container type.
type Group struct {
	TypeDef    string     `yaml:"neurodata_type_def,omitempty"`
	TypeInc    string     `yaml:"neurodata_type_inc,omitempty"`
	Name       string     `yaml:"name,omitempty"`
	Doc        string     `yaml:"doc"`
	Quantity   string     `yaml:"quantity,omitempty"`
	Extensible bool       `yaml:"extensible,omitempty"`
	Datasets   []*Dataset `yaml:"datasets,omitempty"`
	Groups     []*Group   `yaml:"groups,omitempty"`
}

// Dataset declares a column.
//
// The first dimension of Shape is the row dimension and must be null.
type Dataset struct {
	Name         string       `yaml:"name"`
	Doc          string       `yaml:"doc"`
	TypeInc      string       `yaml:"neurodata_type_inc,omitempty"`
	DType        *DType       `yaml:"dtype,omitempty"`
	Shape        []*int       `yaml:"shape,flow,omitempty"`
	Quantity     string       `yaml:"quantity,omitempty"`
	DefaultValue any          `yaml:"default_value,omitempty"`
	Attributes   []*Attribute `yaml:"attributes,omitempty"`
}

// Attribute is a named constant of a dataset, such as its unit.
type Attribute struct {
	Name  string `yaml:"name"`
	Doc   string `yaml:"doc,omitempty"`
	DType *DType `yaml:"dtype,omitempty"`
	Value any    `yaml:"value,omitempty"`
}

// DType is either a scalar type name or a reference to another type.
type DType struct {
	Name string
	Ref  *RefSpec
}

// RefSpec is a reference dtype.
type RefSpec struct {
	TargetType string `yaml:"target_type"`
	RefType    string `yaml:"reftype"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *DType) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		d.Name = value.Value
		return nil
	case yaml.MappingNode:
		d.Ref = &RefSpec{}
		return value.Decode(d.Ref)
	default:
		return fmt.Errorf("line %d: dtype must be a name or a reference", value.Line)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (d *DType) MarshalYAML() (any, error) {
	if d.Ref != nil {
		return d.Ref, nil
	}
	return d.Name, nil
}

// Parse decodes a namespace document.
func Parse(data []byte) (*Namespace, error) {
	var ns Namespace
	if err := yaml.Unmarshal(data, &ns); err != nil {
		return nil, fmt.Errorf("failed to parse namespace: %w", err)
	}
	if err := ns.Validate(); err != nil {
		return nil, fmt.Errorf("invalid namespace: %w", err)
	}
	return &ns, nil
}

// ParseFile reads and decodes a namespace file.
func ParseFile(path string) (*Namespace, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-specified namespace path
	if err != nil {
		return nil, fmt.Errorf("failed to read namespace: %w", err)
	}
	return Parse(data)
}

// Validate checks that every top-level group defines a type once.
func (ns *Namespace) Validate() error {
	seen := make(map[string]bool, len(ns.Groups))
	for i, g := range ns.Groups {
		if g.TypeDef == "" {
			return fmt.Errorf("group %d: %w", i, errTypeDefRequired)
		}
		if seen[g.TypeDef] {
			return fmt.Errorf("group %d: type %q is defined twice", i, g.TypeDef)
		}
		seen[g.TypeDef] = true
	}
	return nil
}

// Group returns the top-level group defining typ.
func (ns *Namespace) Group(typ string) (*Group, bool) {
	for _, g := range ns.Groups {
		if g.TypeDef == typ {
			return g, true
		}
	}
	return nil, false
}

// Schemas returns the schema of every table type the namespace defines,
// keyed by type. A table type includes DynamicTable directly or through
// another table type, whose columns it inherits.
func (ns *Namespace) Schemas() (map[string]*dyntable.Schema, error) {
	out := make(map[string]*dyntable.Schema)
	for _, g := range ns.Groups {
		s, err := ns.schema(g, nil)
		if err != nil {
			return nil, err
		}
		if s != nil {
			out[g.TypeDef] = s
		}
	}
	return out, nil
}

// schema converts g, nil when g is not a table type.
func (ns *Namespace) schema(g *Group, visiting []string) (*dyntable.Schema, error) {
	for _, v := range visiting {
		if v == g.TypeDef {
			return nil, fmt.Errorf("%w: type %q includes itself", dyntable.ErrSchemaViolation, g.TypeDef)
		}
	}
	var s *dyntable.Schema
	switch g.TypeInc {
	case TypeDynamicTable:
		s = &dyntable.Schema{}
	default:
		parent, ok := ns.Group(g.TypeInc)
		if !ok {
			return nil, nil
		}
		base, err := ns.schema(parent, append(visiting, g.TypeDef))
		if err != nil || base == nil {
			return nil, err
		}
		s = base
	}
	s.Type = g.TypeDef
	s.Name = g.Name
	s.Description = g.Doc
	s.Extensible = s.Extensible || g.Extensible
	cols, err := columns(g)
	if err != nil {
		return nil, fmt.Errorf("type %q: %w", g.TypeDef, err)
	}
	for _, c := range cols {
		if existing, ok := s.Column(c.Name); ok {
			*existing = c
			continue
		}
		s.Columns = append(s.Columns, c)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func columns(g *Group) ([]dyntable.ColumnSpec, error) {
	indexed := make(map[string]bool)
	for _, d := range g.Datasets {
		if d.TypeInc == TypeVectorIndex {
			target, ok := strings.CutSuffix(d.Name, indexSuffix)
			if !ok {
				return nil, fmt.Errorf("%w: index %q must be named <column>%s", dyntable.ErrSchemaViolation, d.Name, indexSuffix)
			}
			indexed[target] = true
		}
	}
	var out []dyntable.ColumnSpec
	for _, d := range g.Datasets {
		if d.TypeInc == TypeVectorIndex {
			continue
		}
		c, err := column(d)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", d.Name, err)
		}
		c.Ragged = indexed[d.Name]
		delete(indexed, d.Name)
		out = append(out, c)
	}
	for name := range indexed {
		return nil, fmt.Errorf("%w: index %q has no column", dyntable.ErrSchemaViolation, name+indexSuffix)
	}
	return out, nil
}

func column(d *Dataset) (dyntable.ColumnSpec, error) {
	c := dyntable.ColumnSpec{
		Name:        d.Name,
		Description: d.Doc,
		Required:    d.Quantity == "" || d.Quantity == "1",
		Default:     d.DefaultValue,
	}
	switch d.Quantity {
	case "", "1", "?":
	default:
		return c, fmt.Errorf("%w: unsupported quantity %q", dyntable.ErrSchemaViolation, d.Quantity)
	}
	if len(d.Shape) != 0 {
		if d.Shape[0] != nil {
			return c, fmt.Errorf("%w: first dimension of shape must be null", dyntable.ErrSchemaViolation)
		}
		for _, n := range d.Shape[1:] {
			if n == nil {
				return c, fmt.Errorf("%w: only the row dimension may be null", dyntable.ErrSchemaViolation)
			}
			c.Shape = append(c.Shape, *n)
		}
	}
	for _, a := range d.Attributes {
		if a.Name == "unit" {
			if u, ok := a.Value.(string); ok {
				c.Unit = u
			}
		}
	}
	if d.TypeInc == TypeDynamicTableRegion {
		for _, a := range d.Attributes {
			if a.Name != "table" {
				continue
			}
			c.Target, _ = a.Value.(string)
			if a.DType != nil && a.DType.Ref != nil {
				c.TargetType = a.DType.Ref.TargetType
			}
		}
		if c.Target == "" {
			return c, fmt.Errorf("%w: region needs a table attribute naming its target", dyntable.ErrSchemaViolation)
		}
		c.Kind = dyntable.KindInt
		return c, nil
	}
	if d.DType == nil {
		return c, fmt.Errorf("%w: dtype is required", dyntable.ErrSchemaViolation)
	}
	if d.DType.Ref != nil {
		c.Kind = dyntable.KindObject
		c.TargetType = d.DType.Ref.TargetType
		return c, nil
	}
	k, ok := kinds[d.DType.Name]
	if !ok {
		return c, fmt.Errorf("%w: unsupported dtype %q", dyntable.ErrSchemaViolation, d.DType.Name)
	}
	c.Kind = k
	return c, nil
}

var kinds = map[string]dyntable.Kind{
	"text":    dyntable.KindText,
	"utf8":    dyntable.KindText,
	"ascii":   dyntable.KindText,
	"float":   dyntable.KindFloat,
	"float32": dyntable.KindFloat,
	"float64": dyntable.KindFloat,
	"double":  dyntable.KindFloat,
	"int":     dyntable.KindInt,
	"int8":    dyntable.KindInt,
	"int16":   dyntable.KindInt,
	"int32":   dyntable.KindInt,
	"int64":   dyntable.KindInt,
	"uint":    dyntable.KindInt,
	"uint8":   dyntable.KindInt,
	"uint16":  dyntable.KindInt,
	"uint32":  dyntable.KindInt,
	"uint64":  dyntable.KindInt,
	"bool":    dyntable.KindBool,
}

// FromSchema returns the group declaring s.
func FromSchema(s *dyntable.Schema) *Group {
	g := &Group{
		TypeDef:    s.Type,
		TypeInc:    TypeDynamicTable,
		Name:       s.Name,
		Doc:        s.Description,
		Extensible: s.Extensible,
	}
	for _, c := range s.Columns {
		d := &Dataset{Name: c.Name, Doc: c.Description, TypeInc: TypeVectorData, DefaultValue: c.Default}
		if !c.Required {
			d.Quantity = "?"
		}
		switch {
		case c.IsRegion():
			d.TypeInc = TypeDynamicTableRegion
			d.Attributes = append(d.Attributes, &Attribute{
				Name:  "table",
				Doc:   "name of the referenced table",
				DType: &DType{Ref: &RefSpec{TargetType: c.TargetType, RefType: "object"}},
				Value: c.Target,
			})
		case c.Kind == dyntable.KindObject:
			d.DType = &DType{Ref: &RefSpec{TargetType: c.TargetType, RefType: "object"}}
		default:
			d.DType = &DType{Name: string(c.Kind)}
		}
		if !c.IsRegion() {
			d.Shape = []*int{nil}
			for _, n := range c.Shape {
				d.Shape = append(d.Shape, &n)
			}
		}
		if c.Unit != "" {
			d.Attributes = append(d.Attributes, &Attribute{Name: "unit", Doc: "unit of the values", DType: &DType{Name: "text"}, Value: c.Unit})
		}
		g.Datasets = append(g.Datasets, d)
		if c.Ragged {
			g.Datasets = append(g.Datasets, &Dataset{
				Name:     c.Name + indexSuffix,
				Doc:      "index into " + c.Name,
				TypeInc:  TypeVectorIndex,
				Quantity: d.Quantity,
			})
		}
	}
	return g
}

// Export writes the schemas as a namespace document, in the given order.
func Export(w io.Writer, schemas ...*dyntable.Schema) error {
	ns := &Namespace{}
	for _, s := range schemas {
		ns.Groups = append(ns.Groups, FromSchema(s))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(ns); err != nil {
		return fmt.Errorf("failed to encode namespace: %w", err)
	}
	return enc.Close()
}
