// Implements deferred binding of regions to their target tables.

package dyntable

type binding struct {
	region *Region
	target *Table
}

// resolveAll finds targets for the unbound regions in cols. pending holds
// the indices of the row being added, validated together with the staged
// ones. A target that would leave an index dangling is an error; a missing
// target is not.
func (t *Table) resolveAll(cols []column, pending map[*Region][]int) ([]binding, []*Region, error) {
	var binds []binding
	var unresolved []*Region
	for _, c := range cols {
		r, ok := c.(*Region)
		if !ok || r.Bound() {
			continue
		}
		target := t.lookup(r)
		if target == nil {
			unresolved = append(unresolved, r)
			continue
		}
		if err := r.canBind(target, pending[r]); err != nil {
			return nil, nil, &ColumnError{Table: t.name, Column: r.name, Err: err}
		}
		binds = append(binds, binding{region: r, target: target})
	}
	return binds, unresolved, nil
}

// lookup finds the target of r: the table itself or one of its children,
// then the table registered under the nearest Root ancestor.
func (t *Table) lookup(r *Region) *Table {
	if c := t.local(r.target); c != nil && r.accepts(c) {
		return c
	}
	n, ok := FindAncestor(t.parent, IsRoot)
	if !ok {
		return nil
	}
	c, ok := n.(Root).LookupTable(r.target)
	if !ok || c == nil || !r.accepts(c) {
		return nil
	}
	return c
}

func (t *Table) local(name string) *Table {
	if name == t.name {
		return t
	}
	c, _ := t.Child(name)
	return c
}

func (r *Region) accepts(t *Table) bool {
	return r.targetType == "" || r.targetType == t.Type()
}

// Resolve tries to bind every unbound region without adding a row.
//
// It returns the regions that remain unbound. A target that would leave a
// staged index dangling fails with ErrDanglingReference and no region is
// bound.
func (t *Table) Resolve() ([]*Region, error) {
	binds, unresolved, err := t.resolveAll(t.cols, nil)
	if err != nil {
		return nil, err
	}
	for _, b := range binds {
		b.region.table = b.target
		t.logger.Debug("bound region", "table", t.name, "column", b.region.name, "target", b.target.name)
	}
	return unresolved, nil
}
