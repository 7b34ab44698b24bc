package dyntable

import "fmt"

// Region holds row indices into a target Table.
//
// The target is a back-reference only: a Region never owns its target. A
// Region starts unbound unless constructed with a target; once bound it stays
// bound to the same table.
type Region struct {
	name        string
	description string
	target      string
	targetType  string
	ints        *Data
	ragged      *Ragged
	table       *Table
	// deferred marks the rows whose indices were staged while unbound.
	deferred []bool
}

// NewRegion returns an empty, unbound region declared by spec.
func NewRegion(spec ColumnSpec) (*Region, error) {
	if !spec.IsRegion() {
		return nil, fmt.Errorf("%w: column %q has no target", ErrSchemaViolation, spec.Name)
	}
	spec.Kind = KindInt
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	ints, err := NewData(ColumnSpec{Name: spec.Name, Description: spec.Description, Kind: KindInt})
	if err != nil {
		return nil, err
	}
	r := &Region{
		name:        spec.Name,
		description: spec.Description,
		target:      spec.Target,
		targetType:  spec.TargetType,
		ints:        ints,
	}
	if spec.Ragged {
		r.ragged = &Ragged{target: ints}
	}
	return r, nil
}

// NewBoundRegion returns a standalone region over t holding indices.
func NewBoundRegion(name, description string, t *Table, indices []int) (*Region, error) {
	r, err := NewRegion(ColumnSpec{Name: name, Description: description, Target: t.Name(), TargetType: t.Type()})
	if err != nil {
		return nil, err
	}
	if err := r.Bind(t); err != nil {
		return nil, err
	}
	for _, i := range indices {
		commit, err := r.stage(i)
		if err != nil {
			return nil, err
		}
		commit()
	}
	return r, nil
}

// RestoreRegion rebuilds a region from persisted state.
//
// bounds is nil for non-ragged regions. deferred lists the rows that were
// staged before binding. The region is unbound; call Bind to attach it.
func RestoreRegion(spec ColumnSpec, flat []int, bounds []int, deferred []int) (*Region, error) {
	r, err := NewRegion(spec)
	if err != nil {
		return nil, err
	}
	for _, v := range flat {
		if v < 0 {
			return nil, fmt.Errorf("%w: region %q holds negative index %d", ErrIndexOutOfRange, spec.Name, v)
		}
		r.ints.values = append(r.ints.values, int64(v))
	}
	if spec.Ragged {
		if r.ragged, err = NewRagged(r.ints, bounds); err != nil {
			return nil, fmt.Errorf("region %q: %w", spec.Name, err)
		}
	} else if bounds != nil {
		return nil, fmt.Errorf("%w: region %q is not ragged", ErrSchemaViolation, spec.Name)
	}
	r.deferred = make([]bool, r.Len())
	for _, row := range deferred {
		if row < 0 || row >= len(r.deferred) {
			return nil, fmt.Errorf("%w: deferred row %d of %d", ErrIndexOutOfRange, row, len(r.deferred))
		}
		r.deferred[row] = true
	}
	return r, nil
}

// Name returns the column name.
func (r *Region) Name() string { return r.name }

// Description returns the column description.
func (r *Region) Description() string { return r.description }

// TargetName returns the declared logical name of the target table.
func (r *Region) TargetName() string { return r.target }

// TargetType returns the declared type of the target table, if any.
func (r *Region) TargetType() string { return r.targetType }

// IsRagged reports whether each row holds a group of indices.
func (r *Region) IsRagged() bool { return r.ragged != nil }

// Bound reports whether the target table is known.
func (r *Region) Bound() bool { return r.table != nil }

// Table returns the target table, nil when unbound.
func (r *Region) Table() *Table { return r.table }

// Len returns the number of logical rows.
func (r *Region) Len() int {
	if r.ragged != nil {
		return r.ragged.Len()
	}
	return r.ints.Len()
}

// Spec returns the column declaration.
func (r *Region) Spec() ColumnSpec {
	return ColumnSpec{
		Name:        r.name,
		Description: r.description,
		Kind:        KindInt,
		Ragged:      r.ragged != nil,
		Target:      r.target,
		TargetType:  r.targetType,
	}
}

// Flat returns every staged index in row order.
func (r *Region) Flat() []int {
	out := make([]int, len(r.ints.values))
	for i, v := range r.ints.values {
		out[i] = int(v.(int64))
	}
	return out
}

// Boundaries returns the group end offsets, nil for non-ragged regions.
func (r *Region) Boundaries() []int {
	if r.ragged == nil {
		return nil
	}
	return r.ragged.Boundaries()
}

// Indices returns the target row indices of logical row i.
func (r *Region) Indices(i int) ([]int, error) {
	if r.ragged == nil {
		if i < 0 || i >= r.ints.Len() {
			return nil, fmt.Errorf("%w: row %d of %d", ErrIndexOutOfRange, i, r.ints.Len())
		}
		return []int{int(r.ints.values[i].(int64))}, nil
	}
	lo, hi, err := r.ragged.span(i)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, hi-lo)
	for _, v := range r.ints.values[lo:hi] {
		out = append(out, int(v.(int64)))
	}
	return out, nil
}

// Lookup returns the target rows referenced by logical row i.
func (r *Region) Lookup(i int) ([]map[string]any, error) {
	if r.table == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnbound, r.name)
	}
	idx, err := r.Indices(i)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, len(idx))
	for j, k := range idx {
		if rows[j], err = r.table.Row(k); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// Deferred reports whether row i was staged while the region was unbound.
func (r *Region) Deferred(i int) bool {
	return i >= 0 && i < len(r.deferred) && r.deferred[i]
}

// DeferredRows returns the rows staged while the region was unbound.
func (r *Region) DeferredRows() []int {
	var rows []int
	for i, d := range r.deferred {
		if d {
			rows = append(rows, i)
		}
	}
	return rows
}

// Bind attaches the region to t after validating every staged index.
//
// Binding to the current target is a no-op. On error the region is left
// unchanged.
func (r *Region) Bind(t *Table) error {
	if r.table == t {
		return nil
	}
	if err := r.canBind(t, nil); err != nil {
		return err
	}
	r.table = t
	return nil
}

// canBind checks that t satisfies the declaration and that every staged
// index, plus pending ones, is within t's rows.
func (r *Region) canBind(t *Table, pending []int) error {
	if t == nil {
		return fmt.Errorf("%w: region %q bound to nil", ErrSchemaViolation, r.name)
	}
	if r.table != nil {
		return fmt.Errorf("%w: region %q is already bound to %q", ErrSlotAlreadyBound, r.name, r.table.Name())
	}
	if r.targetType != "" && t.Type() != r.targetType {
		return fmt.Errorf("%w: region %q wants a %s, got %s", ErrSchemaViolation, r.name, r.targetType, t.Type())
	}
	n := t.Len()
	for _, v := range r.ints.values {
		if int(v.(int64)) >= n {
			return fmt.Errorf("%w: %q index %d, %q has %d rows", ErrDanglingReference, r.name, v, t.Name(), n)
		}
	}
	for _, v := range pending {
		if v >= n {
			return fmt.Errorf("%w: %q index %d, %q has %d rows", ErrDanglingReference, r.name, v, t.Name(), n)
		}
	}
	return nil
}

// regionStage is a validated, not yet appended, row of a region.
type regionStage struct {
	indices []int
	ragged  bool
}

func (r *Region) check(v any) (*regionStage, error) {
	var raw []any
	if r.ragged != nil {
		var err error
		if raw, err = asSlice(v); err != nil {
			return nil, err
		}
	} else {
		raw = []any{v}
	}
	st := &regionStage{indices: make([]int, len(raw)), ragged: r.ragged != nil}
	for j, x := range raw {
		i, ok := toInt(x)
		if !ok {
			return nil, fmt.Errorf("%w: index %v (%T) is not an integer", ErrTypeMismatch, x, x)
		}
		if i < 0 {
			return nil, fmt.Errorf("%w: negative index %d", ErrIndexOutOfRange, i)
		}
		st.indices[j] = int(i)
	}
	if r.table != nil {
		n := r.table.Len()
		for _, i := range st.indices {
			if i >= n {
				return nil, fmt.Errorf("%w: index %d, %q has %d rows", ErrDanglingReference, i, r.table.Name(), n)
			}
		}
	}
	return st, nil
}

func (r *Region) commit(st *regionStage) {
	for _, i := range st.indices {
		r.ints.values = append(r.ints.values, int64(i))
	}
	if r.ragged != nil {
		r.ragged.bounds = append(r.ragged.bounds, len(r.ints.values))
	}
	r.deferred = append(r.deferred, r.table == nil && len(st.indices) != 0)
}

func (r *Region) stage(v any) (func(), error) {
	st, err := r.check(v)
	if err != nil {
		return nil, err
	}
	return func() { r.commit(st) }, nil
}

func (r *Region) filler() (any, error) {
	if r.ragged == nil {
		return nil, fmt.Errorf("%w: region %q cannot be backfilled", ErrSchemaViolation, r.name)
	}
	return []int{}, nil
}
