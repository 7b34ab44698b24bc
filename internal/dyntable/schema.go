// Handles schema descriptors: column declarations and their validation.

package dyntable

import (
	"errors"
	"fmt"
	"slices"
)

var errSchemaTypeRequired = errors.New("schema type is required")

// ColumnSpec declares a table column.
//
// A non-empty Target makes the column a [Region] into the table registered
// under that name. Ragged columns hold a variable-length group per row.
// TargetType constrains the type of a region's target table; on object
// columns it records the type of the referenced container.
type ColumnSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Kind        Kind   `json:"kind"`
	Shape       []int  `json:"shape,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Ragged      bool   `json:"ragged,omitempty"`
	Target      string `json:"target,omitempty"`
	TargetType  string `json:"target_type,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// IsRegion reports whether the column references rows of another table.
func (c *ColumnSpec) IsRegion() bool {
	return c.Target != ""
}

// Validate checks that the column declaration is well-formed.
func (c *ColumnSpec) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: column name is required", ErrSchemaViolation)
	}
	if c.IsRegion() {
		if c.Kind != "" && c.Kind != KindInt {
			return fmt.Errorf("%w: region %q must be of kind %s, got %s", ErrSchemaViolation, c.Name, KindInt, c.Kind)
		}
		if len(c.Shape) != 0 {
			return fmt.Errorf("%w: region %q cannot have a shape", ErrSchemaViolation, c.Name)
		}
		if c.Default != nil {
			return fmt.Errorf("%w: region %q cannot have a default", ErrSchemaViolation, c.Name)
		}
		return nil
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: column %q has unknown kind %q", ErrSchemaViolation, c.Name, c.Kind)
	}
	for _, d := range c.Shape {
		if d <= 0 {
			return fmt.Errorf("%w: column %q has invalid shape %v", ErrSchemaViolation, c.Name, c.Shape)
		}
	}
	if c.Default != nil {
		v, err := c.normalize(c.Default)
		if err != nil {
			return fmt.Errorf("column %q default: %w", c.Name, err)
		}
		c.Default = v
	}
	return nil
}

// normalize coerces a single row value of the column.
func (c *ColumnSpec) normalize(v any) (any, error) {
	if !c.Ragged {
		return coerce(c.Kind, c.Shape, v)
	}
	group, err := asSlice(v)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(group))
	for i, x := range group {
		if out[i], err = coerce(c.Kind, c.Shape, x); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

func (c *ColumnSpec) clone() ColumnSpec {
	d := *c
	d.Shape = slices.Clone(c.Shape)
	d.Default = cloneValue(c.Default)
	return d
}

// Schema describes a table type: its columns and its insertion policy.
type Schema struct {
	// Type is the table type, such as "FibersTable".
	Type string `json:"type"`
	// Name is the default instance name, also the slot name under a root.
	Name        string       `json:"name,omitempty"`
	Description string       `json:"description,omitempty"`
	Columns     []ColumnSpec `json:"columns"`
	// Extensible allows AddRow to create ad-hoc columns for undeclared names.
	Extensible bool `json:"extensible,omitempty"`
}

// Validate checks that the schema is well-formed and normalizes defaults.
func (s *Schema) Validate() error {
	if s.Type == "" {
		return errSchemaTypeRequired
	}
	seen := make(map[string]bool, len(s.Columns))
	for i := range s.Columns {
		c := &s.Columns[i]
		if c.IsRegion() && c.Kind == "" {
			c.Kind = KindInt
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("schema %s column %d: %w", s.Type, i, err)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: schema %s declares column %q twice", ErrSchemaViolation, s.Type, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// Column returns the declaration of the named column.
func (s *Schema) Column(name string) (*ColumnSpec, bool) {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i], true
		}
	}
	return nil, false
}

// Required returns the names of the required columns in declaration order.
func (s *Schema) Required() []string {
	var names []string
	for i := range s.Columns {
		if s.Columns[i].Required {
			names = append(names, s.Columns[i].Name)
		}
	}
	return names
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	d := *s
	d.Columns = make([]ColumnSpec, len(s.Columns))
	for i := range s.Columns {
		d.Columns[i] = s.Columns[i].clone()
	}
	return &d
}
