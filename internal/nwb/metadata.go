package nwb

import (
	"fmt"
	"slices"

	"github.com/maruel/photometry/internal/dyntable"
)

// MetadataRoot is the well-known container under which sibling tables are
// registered so that regions resolve their targets by slot name.
//
// Each slot is set at most once.
type MetadataRoot struct {
	name   string
	typ    string
	parent dyntable.Node
	// declared is the allowed slot names; empty allows any name.
	declared []string
	slots    []string
	tables   map[string]*dyntable.Table
	series   map[string]*MultiSeries
}

// NewMetadataRoot returns an empty root of the given type. When slots are
// given, only those names may be set.
func NewMetadataRoot(typ, name string, slots ...string) *MetadataRoot {
	return &MetadataRoot{
		name:     name,
		typ:      typ,
		declared: slices.Clone(slots),
		tables:   make(map[string]*dyntable.Table),
		series:   make(map[string]*MultiSeries),
	}
}

// Name returns the root name.
func (m *MetadataRoot) Name() string { return m.name }

// Type returns the root type.
func (m *MetadataRoot) Type() string { return m.typ }

// NodeName implements dyntable.Node.
func (m *MetadataRoot) NodeName() string { return m.name }

// Parent implements dyntable.Node.
func (m *MetadataRoot) Parent() dyntable.Node {
	if m.parent == nil {
		return nil
	}
	return m.parent
}

// LookupTable implements dyntable.Root.
func (m *MetadataRoot) LookupTable(name string) (*dyntable.Table, bool) {
	t, ok := m.tables[name]
	return t, ok
}

// DeclaredSlots returns the allowed slot names, nil when any name is allowed.
func (m *MetadataRoot) DeclaredSlots() []string { return slices.Clone(m.declared) }

// Slots returns the occupied slot names in the order they were set.
func (m *MetadataRoot) Slots() []string { return slices.Clone(m.slots) }

func (m *MetadataRoot) claim(slot string) error {
	if slot == "" {
		return errNameRequired
	}
	if len(m.declared) != 0 && !slices.Contains(m.declared, slot) {
		return fmt.Errorf("%w: %s has no slot %q", dyntable.ErrSchemaViolation, m.typ, slot)
	}
	if slices.Contains(m.slots, slot) {
		return fmt.Errorf("%w: %q", dyntable.ErrSlotAlreadyBound, slot)
	}
	return nil
}

// SetTable registers t under slot and makes the root its owner.
func (m *MetadataRoot) SetTable(slot string, t *dyntable.Table) error {
	if err := m.claim(slot); err != nil {
		return err
	}
	if other, ok := m.TableSlot(t); ok {
		return fmt.Errorf("%w: table %q is registered as %q", dyntable.ErrSlotAlreadyBound, t.Name(), other)
	}
	if err := t.SetParent(m); err != nil {
		return err
	}
	m.slots = append(m.slots, slot)
	m.tables[slot] = t
	return nil
}

// SetSeries registers a series container under slot.
func (m *MetadataRoot) SetSeries(slot string, s *MultiSeries) error {
	if err := m.claim(slot); err != nil {
		return err
	}
	if s.parent != nil {
		return fmt.Errorf("%w: %q is owned by %q", dyntable.ErrSlotAlreadyBound, s.name, s.parent.NodeName())
	}
	s.parent = m
	m.slots = append(m.slots, slot)
	m.series[slot] = s
	return nil
}

// Table returns the table registered under slot.
func (m *MetadataRoot) Table(slot string) (*dyntable.Table, bool) {
	return m.LookupTable(slot)
}

// Tables returns the registered tables in slot order.
func (m *MetadataRoot) Tables() []*dyntable.Table {
	var out []*dyntable.Table
	for _, slot := range m.slots {
		if t, ok := m.tables[slot]; ok {
			out = append(out, t)
		}
	}
	return out
}

// MultiSeries returns the series container registered under slot.
func (m *MetadataRoot) MultiSeries(slot string) (*MultiSeries, bool) {
	s, ok := m.series[slot]
	return s, ok
}

// TableSlot returns the slot a table is registered under.
func (m *MetadataRoot) TableSlot(t *dyntable.Table) (string, bool) {
	for _, slot := range m.slots {
		if m.tables[slot] == t {
			return slot, true
		}
	}
	return "", false
}

// SeriesSlots returns the slots holding series containers, in slot order.
func (m *MetadataRoot) SeriesSlots() []string {
	var out []string
	for _, slot := range m.slots {
		if _, ok := m.series[slot]; ok {
			out = append(out, slot)
		}
	}
	return out
}

// Object returns the series named name from any registered container.
func (m *MetadataRoot) Object(name string) (*Series, bool) {
	for _, slot := range m.slots {
		if ms, ok := m.series[slot]; ok {
			if s, ok := ms.Series(name); ok {
				return s, true
			}
		}
	}
	return nil, false
}
