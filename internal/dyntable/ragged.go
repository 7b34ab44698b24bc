package dyntable

import (
	"fmt"
	"slices"
)

// Ragged partitions a Data column into one variable-length group per row.
//
// bounds[i] is the exclusive end offset of group i in the target; group i
// spans target values [bounds[i-1], bounds[i]). Equal consecutive bounds
// denote an empty group.
type Ragged struct {
	target *Data
	bounds []int
}

// NewRagged returns an index layer over target.
//
// bounds must be non-decreasing and end at target.Len(); pass nil for an
// empty target.
func NewRagged(target *Data, bounds []int) (*Ragged, error) {
	prev := 0
	for i, b := range bounds {
		if b < prev {
			return nil, fmt.Errorf("%w: boundary %d (%d) is smaller than %d", ErrIndexOutOfRange, i, b, prev)
		}
		prev = b
	}
	if prev != target.Len() {
		return nil, fmt.Errorf("%w: boundaries end at %d, target %q has %d values", ErrIndexOutOfRange, prev, target.Name(), target.Len())
	}
	return &Ragged{target: target, bounds: slices.Clone(bounds)}, nil
}

// Name returns the name of the indexed column.
func (x *Ragged) Name() string { return x.target.Name() }

// Description returns the description of the indexed column.
func (x *Ragged) Description() string { return x.target.Description() }

// Target returns the backing column.
func (x *Ragged) Target() *Data { return x.target }

// Len returns the number of groups.
func (x *Ragged) Len() int { return len(x.bounds) }

// Boundaries returns a copy of the group end offsets.
func (x *Ragged) Boundaries() []int { return slices.Clone(x.bounds) }

// AppendGroup appends values to the target and closes a new group.
//
// The group is validated as a whole; on error nothing is appended.
func (x *Ragged) AppendGroup(values []any) error {
	commit, err := x.stage(values)
	if err != nil {
		return err
	}
	commit()
	return nil
}

// GroupAt returns a copy of the values of group i.
func (x *Ragged) GroupAt(i int) ([]any, error) {
	lo, hi, err := x.span(i)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, hi-lo)
	for _, v := range x.target.values[lo:hi] {
		out = append(out, cloneValue(v))
	}
	return out, nil
}

func (x *Ragged) span(i int) (int, int, error) {
	if i < 0 || i >= len(x.bounds) {
		return 0, 0, fmt.Errorf("%w: group %d of %d", ErrIndexOutOfRange, i, len(x.bounds))
	}
	lo := 0
	if i > 0 {
		lo = x.bounds[i-1]
	}
	return lo, x.bounds[i], nil
}

func (x *Ragged) stage(v any) (func(), error) {
	group, err := asSlice(v)
	if err != nil {
		return nil, err
	}
	nvs, err := x.target.stageMany(group)
	if err != nil {
		return nil, err
	}
	return func() {
		x.target.values = append(x.target.values, nvs...)
		x.bounds = append(x.bounds, len(x.target.values))
	}, nil
}

func (x *Ragged) filler() (any, error) {
	return []any{}, nil
}
