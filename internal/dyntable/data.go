package dyntable

import (
	"fmt"
	"slices"
)

// Vector is a named column of a Table.
type Vector interface {
	Name() string
	Description() string
	// Len returns the number of logical rows.
	Len() int
}

// column is implemented by every Vector a Table owns.
type column interface {
	Vector
	// stage validates v and returns a function appending it.
	stage(v any) (func(), error)
	// filler returns the value appended for rows that predate the column.
	filler() (any, error)
}

// Data is an append-only sequence of typed values.
//
// Values are immutable once appended.
type Data struct {
	name        string
	description string
	kind        Kind
	shape       []int
	unit        string
	values      []any
}

// NewData returns an empty column of the declared kind and shape.
func NewData(spec ColumnSpec) (*Data, error) {
	spec.Ragged = false
	spec.Target = ""
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Data{
		name:        spec.Name,
		description: spec.Description,
		kind:        spec.Kind,
		shape:       slices.Clone(spec.Shape),
		unit:        spec.Unit,
	}, nil
}

// Name returns the column name.
func (c *Data) Name() string { return c.name }

// Description returns the column description.
func (c *Data) Description() string { return c.description }

// Kind returns the scalar kind of the values.
func (c *Data) Kind() Kind { return c.kind }

// Shape returns the fixed shape of each value, nil for scalars.
func (c *Data) Shape() []int { return slices.Clone(c.shape) }

// Unit returns the unit attribute of the column.
func (c *Data) Unit() string { return c.unit }

// Len returns the number of values.
func (c *Data) Len() int { return len(c.values) }

// Append coerces v to the column type and appends it.
func (c *Data) Append(v any) error {
	commit, err := c.stage(v)
	if err != nil {
		return err
	}
	commit()
	return nil
}

// At returns the i-th value.
func (c *Data) At(i int) (any, error) {
	if i < 0 || i >= len(c.values) {
		return nil, fmt.Errorf("%w: value %d of %d", ErrIndexOutOfRange, i, len(c.values))
	}
	return cloneValue(c.values[i]), nil
}

// Values returns a copy of all values.
func (c *Data) Values() []any {
	out := make([]any, len(c.values))
	for i, v := range c.values {
		out[i] = cloneValue(v)
	}
	return out
}

func (c *Data) check(v any) (any, error) {
	return coerce(c.kind, c.shape, v)
}

func (c *Data) stage(v any) (func(), error) {
	nv, err := c.check(v)
	if err != nil {
		return nil, err
	}
	return func() { c.values = append(c.values, nv) }, nil
}

func (c *Data) filler() (any, error) {
	return zeroValue(c.kind, c.shape), nil
}

// stageMany validates a group of values as a unit.
func (c *Data) stageMany(vs []any) ([]any, error) {
	out := make([]any, len(vs))
	for i, v := range vs {
		nv, err := c.check(v)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = nv
	}
	return out, nil
}

// Flat returns every value in row-major order as a single typed slice:
// []float64, []int64, []bool, or []string for text and object columns.
func (c *Data) Flat() any {
	switch c.kind {
	case KindFloat:
		return flatOf[float64](c.values)
	case KindInt:
		return flatOf[int64](c.values)
	case KindBool:
		return flatOf[bool](c.values)
	default:
		return flatOf[string](c.values)
	}
}

// RestoreData rebuilds a column from the form returned by Flat. flat may be
// nil for an empty column.
func RestoreData(spec ColumnSpec, flat any) (*Data, error) {
	c, err := NewData(spec)
	if err != nil {
		return nil, err
	}
	switch c.kind {
	case KindFloat:
		c.values, err = unflatten[float64](flat, c.shape)
	case KindInt:
		c.values, err = unflatten[int64](flat, c.shape)
	case KindBool:
		c.values, err = unflatten[bool](flat, c.shape)
	default:
		c.values, err = unflatten[string](flat, c.shape)
	}
	if err != nil {
		return nil, fmt.Errorf("column %q: %w", c.name, err)
	}
	return c, nil
}

func flatOf[T any](values []any) []T {
	out := make([]T, 0, len(values))
	for _, v := range values {
		switch x := v.(type) {
		case T:
			out = append(out, x)
		case []T:
			out = append(out, x...)
		}
	}
	return out
}

func unflatten[T any](flat any, shape []int) ([]any, error) {
	if flat == nil {
		return nil, nil
	}
	xs, ok := flat.([]T)
	if !ok {
		return nil, fmt.Errorf("%w: values are %T, want %T", ErrTypeMismatch, flat, []T(nil))
	}
	if len(shape) == 0 {
		out := make([]any, len(xs))
		for i, x := range xs {
			out[i] = x
		}
		return out, nil
	}
	n := shapeSize(shape)
	if len(xs)%n != 0 {
		return nil, fmt.Errorf("%w: %d values do not fill rows of shape %v", ErrTypeMismatch, len(xs), shape)
	}
	out := make([]any, 0, len(xs)/n)
	for i := 0; i < len(xs); i += n {
		out = append(out, slices.Clone(xs[i:i+n]))
	}
	return out, nil
}
