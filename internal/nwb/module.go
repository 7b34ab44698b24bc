package nwb

import (
	"fmt"
	"slices"

	"github.com/maruel/photometry/internal/dyntable"
)

// ProcessingModule groups derived tables and series.
type ProcessingModule struct {
	name        string
	description string
	parent      *File
	tables      []*dyntable.Table
	series      []*ResponseSeries
}

// Name returns the module name.
func (m *ProcessingModule) Name() string { return m.name }

// Description returns the module description.
func (m *ProcessingModule) Description() string { return m.description }

// NodeName implements dyntable.Node.
func (m *ProcessingModule) NodeName() string { return m.name }

// Parent implements dyntable.Node.
func (m *ProcessingModule) Parent() dyntable.Node { return m.parent }

// AddTable makes the module the owner of t.
func (m *ProcessingModule) AddTable(t *dyntable.Table) error {
	if _, ok := m.Table(t.Name()); ok {
		return fmt.Errorf("%w: table %q in module %q", dyntable.ErrSlotAlreadyBound, t.Name(), m.name)
	}
	if err := t.SetParent(m); err != nil {
		return err
	}
	m.tables = append(m.tables, t)
	return nil
}

// Table returns the named table.
func (m *ProcessingModule) Table(name string) (*dyntable.Table, bool) {
	return find(m.tables, name)
}

// Tables returns the tables in insertion order.
func (m *ProcessingModule) Tables() []*dyntable.Table { return slices.Clone(m.tables) }

// AddSeries adds a derived series.
func (m *ProcessingModule) AddSeries(s *ResponseSeries) error {
	if _, ok := m.Series(s.Name); ok {
		return fmt.Errorf("%w: series %q in module %q", dyntable.ErrSlotAlreadyBound, s.Name, m.name)
	}
	if err := s.setParent(m); err != nil {
		return err
	}
	m.series = append(m.series, s)
	return nil
}

// Series returns the named series.
func (m *ProcessingModule) Series(name string) (*ResponseSeries, bool) {
	return find(m.series, name)
}

// AllSeries returns the series in insertion order.
func (m *ProcessingModule) AllSeries() []*ResponseSeries { return slices.Clone(m.series) }
