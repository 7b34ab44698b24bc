package dyntable

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

var errTableNameRequired = errors.New("table name is required")

// Table is an ordered, schema-validated set of columns sharing a row count.
//
// Rows are append-only.
type Table struct {
	schema      *Schema
	name        string
	description string
	cols        []column
	byName      map[string]column
	rows        int
	parent      Node
	children    []*Table
	logger      *slog.Logger
	warn        WarnFunc
}

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the logger used for warnings. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) { t.logger = l }
}

// WithWarnFunc registers f to receive every warning the table emits.
func WithWarnFunc(f WarnFunc) Option {
	return func(t *Table) { t.warn = f }
}

// New returns an empty table of the given schema.
//
// An empty name selects the schema's default name. Required columns are
// created immediately; optional ones on first use.
func New(schema *Schema, name, description string, opts ...Option) (*Table, error) {
	t, err := newTable(schema, name, description, opts)
	if err != nil {
		return nil, err
	}
	for i := range t.schema.Columns {
		spec := &t.schema.Columns[i]
		if !spec.Required {
			continue
		}
		c, err := newColumn(*spec)
		if err != nil {
			return nil, &ColumnError{Table: t.name, Column: spec.Name, Err: err}
		}
		t.attach(c)
	}
	return t, nil
}

// Restore rebuilds a table from persisted columns.
//
// Every column must hold exactly rows logical rows. Regions are restored
// unbound.
func Restore(schema *Schema, name, description string, rows int, cols []Vector, opts ...Option) (*Table, error) {
	t, err := newTable(schema, name, description, opts)
	if err != nil {
		return nil, err
	}
	for _, v := range cols {
		c, ok := v.(column)
		if !ok {
			return nil, &ColumnError{Table: t.name, Column: v.Name(), Err: fmt.Errorf("%w: unsupported column %T", ErrSchemaViolation, v)}
		}
		if _, dup := t.byName[c.Name()]; dup {
			return nil, &ColumnError{Table: t.name, Column: c.Name(), Err: fmt.Errorf("%w: duplicate column", ErrSchemaViolation)}
		}
		if c.Len() != rows {
			return nil, &ColumnError{Table: t.name, Column: c.Name(), Err: fmt.Errorf("%w: %d rows, table has %d", ErrSchemaViolation, c.Len(), rows)}
		}
		t.attach(c)
		t.declare(c)
	}
	for _, spec := range t.schema.Columns {
		if spec.Required && t.byName[spec.Name] == nil {
			return nil, &ColumnError{Table: t.name, Column: spec.Name, Err: ErrMissingRequiredColumn}
		}
	}
	t.rows = rows
	return t, nil
}

func newTable(schema *Schema, name, description string, opts []Option) (*Table, error) {
	if schema == nil {
		panic("dyntable: nil schema")
	}
	s := schema.Clone()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if name == "" {
		name = s.Name
	}
	if name == "" {
		return nil, errTableNameRequired
	}
	t := &Table{
		schema:      s,
		name:        name,
		description: description,
		byName:      make(map[string]column),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func newColumn(spec ColumnSpec) (column, error) {
	if spec.IsRegion() {
		return NewRegion(spec)
	}
	d, err := NewData(spec)
	if err != nil {
		return nil, err
	}
	if spec.Ragged {
		return &Ragged{target: d}, nil
	}
	return d, nil
}

func (t *Table) attach(c column) {
	t.cols = append(t.cols, c)
	t.byName[c.Name()] = c
}

// declare adds an undeclared column to the table's schema.
func (t *Table) declare(c column) {
	if _, ok := t.schema.Column(c.Name()); ok {
		return
	}
	t.schema.Columns = append(t.schema.Columns, specOf(c))
}

func specOf(c column) ColumnSpec {
	switch c := c.(type) {
	case *Region:
		return c.Spec()
	case *Ragged:
		spec := c.target.spec()
		spec.Ragged = true
		return spec
	case *Data:
		return c.spec()
	}
	panic("unreachable")
}

func (c *Data) spec() ColumnSpec {
	return ColumnSpec{Name: c.name, Description: c.description, Kind: c.kind, Shape: slices.Clone(c.shape), Unit: c.unit}
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// NodeName implements Node.
func (t *Table) NodeName() string { return t.name }

// Parent implements Node.
func (t *Table) Parent() Node { return t.parent }

// Description returns the table description.
func (t *Table) Description() string { return t.description }

// Type returns the schema type of the table.
func (t *Table) Type() string { return t.schema.Type }

// Schema returns a copy of the table's schema, including columns added
// after construction.
func (t *Table) Schema() *Schema { return t.schema.Clone() }

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// SetParent records p as the owner of the table. A table has at most one
// owner; pass nil to detach it.
func (t *Table) SetParent(p Node) error {
	if p != nil && t.parent != nil && t.parent != p {
		return fmt.Errorf("%w: table %q is owned by %q", ErrSlotAlreadyBound, t.name, t.parent.NodeName())
	}
	t.parent = p
	return nil
}

// AttachTable makes child a sub-table owned by t. Regions of t whose target
// is child's name bind to it before looking further up the hierarchy.
func (t *Table) AttachTable(child *Table) error {
	if child == t {
		return fmt.Errorf("%w: table %q cannot own itself", ErrSchemaViolation, t.name)
	}
	if _, ok := t.Child(child.Name()); ok {
		return fmt.Errorf("%w: table %q already has a child %q", ErrSlotAlreadyBound, t.name, child.Name())
	}
	if err := child.SetParent(t); err != nil {
		return err
	}
	t.children = append(t.children, child)
	return nil
}

// Child returns the sub-table with the given name.
func (t *Table) Child(name string) (*Table, bool) {
	for _, c := range t.children {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

// Children returns the sub-tables in attachment order.
func (t *Table) Children() []*Table { return slices.Clone(t.children) }

// Columns returns the columns in order.
func (t *Table) Columns() []Vector {
	out := make([]Vector, len(t.cols))
	for i, c := range t.cols {
		out[i] = c
	}
	return out
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name()
	}
	return names
}

// Column returns the named column.
func (t *Table) Column(name string) (Vector, bool) {
	c, ok := t.byName[name]
	return c, ok
}

// Region returns the named region column.
func (t *Table) Region(name string) (*Region, bool) {
	r, ok := t.byName[name].(*Region)
	return r, ok
}

// Regions returns the region columns in order.
func (t *Table) Regions() []*Region {
	var out []*Region
	for _, c := range t.cols {
		if r, ok := c.(*Region); ok {
			out = append(out, r)
		}
	}
	return out
}

// Unbound returns the regions that have no target yet.
func (t *Table) Unbound() []*Region {
	var out []*Region
	for _, r := range t.Regions() {
		if !r.Bound() {
			out = append(out, r)
		}
	}
	return out
}

// Bind binds the named region to target.
func (t *Table) Bind(column string, target *Table) error {
	r, ok := t.Region(column)
	if !ok {
		return &ColumnError{Table: t.name, Column: column, Err: fmt.Errorf("%w: not a region", ErrSchemaViolation)}
	}
	if err := r.Bind(target); err != nil {
		return &ColumnError{Table: t.name, Column: column, Err: err}
	}
	return nil
}

// AddColumn declares a new column and fills it for existing rows.
//
// Existing rows get the declared default, or the zero value of the kind.
// Ragged columns get empty groups. A non-ragged region cannot be added to a
// non-empty table.
func (t *Table) AddColumn(spec ColumnSpec) error {
	if _, ok := t.byName[spec.Name]; ok {
		return &ColumnError{Table: t.name, Column: spec.Name, Err: fmt.Errorf("%w: column already exists", ErrSchemaViolation)}
	}
	if spec.IsRegion() && spec.Kind == "" {
		spec.Kind = KindInt
	}
	if err := spec.Validate(); err != nil {
		return &ColumnError{Table: t.name, Column: spec.Name, Err: err}
	}
	c, err := newColumn(spec)
	if err != nil {
		return &ColumnError{Table: t.name, Column: spec.Name, Err: err}
	}
	if err := t.backfill(c, spec.Default); err != nil {
		return &ColumnError{Table: t.name, Column: spec.Name, Err: err}
	}
	if _, ok := t.schema.Column(spec.Name); !ok {
		t.schema.Columns = append(t.schema.Columns, spec.clone())
	}
	t.attach(c)
	return nil
}

// backfill appends a filler value for every existing row to a detached column.
func (t *Table) backfill(c column, def any) error {
	for range t.rows {
		v := cloneValue(def)
		if v == nil {
			var err error
			if v, err = c.filler(); err != nil {
				return err
			}
		}
		commit, err := c.stage(v)
		if err != nil {
			return err
		}
		commit()
	}
	return nil
}

// AddRow appends one row.
//
// Every required column must have a value or a default. Omitted optional
// columns get their default or zero value. Values for declared columns that
// do not exist yet create them; undeclared names fail with
// ErrSchemaViolation unless the schema is extensible, in which case an ad-hoc
// column is created. After staging, unbound regions are resolved.
//
// Either the whole row is appended or, on error, nothing changes.
func (t *Table) AddRow(values map[string]any) error {
	added, err := t.newColumnsFor(values)
	if err != nil {
		return err
	}
	for i := range t.schema.Columns {
		spec := &t.schema.Columns[i]
		if _, ok := values[spec.Name]; !ok && spec.Required && spec.Default == nil {
			return &ColumnError{Table: t.name, Column: spec.Name, Err: ErrMissingRequiredColumn}
		}
	}

	all := append(slices.Clone(t.cols), added...)
	commits := make([]func(), 0, len(all))
	pending := make(map[*Region][]int)
	for _, c := range all {
		v, err := t.valueFor(c, values)
		if err != nil {
			return &ColumnError{Table: t.name, Column: c.Name(), Err: err}
		}
		if r, ok := c.(*Region); ok {
			st, err := r.check(v)
			if err != nil {
				return &ColumnError{Table: t.name, Column: c.Name(), Err: err}
			}
			pending[r] = st.indices
			commits = append(commits, func() { r.commit(st) })
			continue
		}
		commit, err := c.stage(v)
		if err != nil {
			return &ColumnError{Table: t.name, Column: c.Name(), Err: err}
		}
		commits = append(commits, commit)
	}

	binds, unresolved, err := t.resolveAll(all, pending)
	if err != nil {
		return err
	}

	for _, b := range binds {
		b.region.table = b.target
	}
	for _, commit := range commits {
		commit()
	}
	for _, c := range added {
		t.attach(c)
		t.declare(c)
	}
	t.rows++

	for _, b := range binds {
		t.logger.Debug("bound region", "table", t.name, "column", b.region.name, "target", b.target.name)
	}
	for _, r := range unresolved {
		t.emit(&Warning{Kind: WarnDeferredReference, Table: t.name, Column: r.name, Target: r.target})
	}
	return nil
}

// newColumnsFor creates, detached and backfilled, the columns named in
// values that the table does not have yet. Declared columns come first, in
// schema order, then ad-hoc ones sorted by name.
func (t *Table) newColumnsFor(values map[string]any) ([]column, error) {
	var added []column
	for i := range t.schema.Columns {
		spec := &t.schema.Columns[i]
		if _, ok := values[spec.Name]; !ok || t.byName[spec.Name] != nil {
			continue
		}
		c, err := newColumn(*spec)
		if err == nil {
			err = t.backfill(c, spec.Default)
		}
		if err != nil {
			return nil, &ColumnError{Table: t.name, Column: spec.Name, Err: err}
		}
		added = append(added, c)
	}
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if t.byName[name] != nil {
			continue
		}
		if _, ok := t.schema.Column(name); ok {
			continue
		}
		if !t.schema.Extensible {
			return nil, &ColumnError{Table: t.name, Column: name, Err: fmt.Errorf("%w: undeclared column", ErrSchemaViolation)}
		}
		kind, shape, err := inferKind(values[name])
		if err != nil {
			return nil, &ColumnError{Table: t.name, Column: name, Err: err}
		}
		c, err := newColumn(ColumnSpec{Name: name, Kind: kind, Shape: shape})
		if err == nil {
			err = t.backfill(c, nil)
		}
		if err != nil {
			return nil, &ColumnError{Table: t.name, Column: name, Err: err}
		}
		t.logger.Debug("added ad-hoc column", "table", t.name, "column", name, "kind", kind)
		added = append(added, c)
	}
	return added, nil
}

func (t *Table) valueFor(c column, values map[string]any) (any, error) {
	if v, ok := values[c.Name()]; ok {
		return v, nil
	}
	if spec, ok := t.schema.Column(c.Name()); ok {
		if spec.Default != nil {
			return cloneValue(spec.Default), nil
		}
		if spec.Required {
			return nil, ErrMissingRequiredColumn
		}
	}
	return c.filler()
}

// Row returns the values of row i keyed by column name.
//
// Ragged columns yield []any, regions yield an int or, when ragged, []int.
func (t *Table) Row(i int) (map[string]any, error) {
	if i < 0 || i >= t.rows {
		return nil, &ColumnError{Table: t.name, Err: fmt.Errorf("%w: row %d of %d", ErrIndexOutOfRange, i, t.rows)}
	}
	row := make(map[string]any, len(t.cols))
	for _, c := range t.cols {
		var v any
		var err error
		switch c := c.(type) {
		case *Data:
			v, err = c.At(i)
		case *Ragged:
			v, err = c.GroupAt(i)
		case *Region:
			var idx []int
			if idx, err = c.Indices(i); err == nil {
				if c.IsRagged() {
					v = idx
				} else {
					v = idx[0]
				}
			}
		}
		if err != nil {
			return nil, &ColumnError{Table: t.name, Column: c.Name(), Err: err}
		}
		row[c.Name()] = v
	}
	return row, nil
}

func (t *Table) emit(w *Warning) {
	t.logger.Warn("unresolved reference", "warning", w)
	if t.warn != nil {
		t.warn(w)
	}
}
