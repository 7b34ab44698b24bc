package nwb

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/maruel/ksid"
	"github.com/maruel/photometry/internal/dyntable"
)

var errNameRequired = errors.New("name is required")

// File is the top-level document.
type File struct {
	Identifier         string
	SessionDescription string
	SessionStart       time.Time

	metadata    *MetadataRoot
	acquisition []*ResponseSeries
	processing  []*ProcessingModule
	devices     []*Device
}

// NewFile returns an empty document. An empty identifier is replaced by a
// freshly generated one.
func NewFile(sessionDescription, identifier string, start time.Time) *File {
	if identifier == "" {
		identifier = ksid.NewID().String()
	}
	return &File{
		Identifier:         identifier,
		SessionDescription: sessionDescription,
		SessionStart:       start,
	}
}

// NodeName implements dyntable.Node.
func (f *File) NodeName() string { return "root" }

// Parent implements dyntable.Node.
func (f *File) Parent() dyntable.Node { return nil }

// LookupTable implements dyntable.Root by delegating to the metadata root.
func (f *File) LookupTable(name string) (*dyntable.Table, bool) {
	if f.metadata == nil {
		return nil, false
	}
	return f.metadata.LookupTable(name)
}

// AddLabMetaData attaches the metadata root. A document has at most one.
func (f *File) AddLabMetaData(m *MetadataRoot) error {
	if f.metadata != nil {
		return fmt.Errorf("%w: metadata %q is already attached", dyntable.ErrSlotAlreadyBound, f.metadata.Name())
	}
	if m.parent != nil {
		return fmt.Errorf("%w: metadata %q is owned by %q", dyntable.ErrSlotAlreadyBound, m.Name(), m.parent.NodeName())
	}
	m.parent = f
	f.metadata = m
	return nil
}

// Metadata returns the metadata root, nil if none is attached.
func (f *File) Metadata() *MetadataRoot { return f.metadata }

// AddAcquisition adds a raw acquired series.
func (f *File) AddAcquisition(s *ResponseSeries) error {
	if _, ok := f.Acquisition(s.Name); ok {
		return fmt.Errorf("%w: acquisition %q", dyntable.ErrSlotAlreadyBound, s.Name)
	}
	if err := s.setParent(f); err != nil {
		return err
	}
	f.acquisition = append(f.acquisition, s)
	return nil
}

// Acquisition returns the named acquired series.
func (f *File) Acquisition(name string) (*ResponseSeries, bool) {
	return find(f.acquisition, name)
}

// Acquisitions returns the acquired series in insertion order.
func (f *File) Acquisitions() []*ResponseSeries { return slices.Clone(f.acquisition) }

// CreateProcessingModule adds an empty processing module.
func (f *File) CreateProcessingModule(name, description string) (*ProcessingModule, error) {
	if name == "" {
		return nil, errNameRequired
	}
	if _, ok := f.ProcessingModule(name); ok {
		return nil, fmt.Errorf("%w: processing module %q", dyntable.ErrSlotAlreadyBound, name)
	}
	m := &ProcessingModule{name: name, description: description, parent: f}
	f.processing = append(f.processing, m)
	return m, nil
}

// ProcessingModule returns the named module.
func (f *File) ProcessingModule(name string) (*ProcessingModule, bool) {
	return find(f.processing, name)
}

// ProcessingModules returns the modules in creation order.
func (f *File) ProcessingModules() []*ProcessingModule { return slices.Clone(f.processing) }

// AddDevice registers a device.
func (f *File) AddDevice(d *Device) error {
	if d.Name == "" {
		return errNameRequired
	}
	if _, ok := f.Device(d.Name); ok {
		return fmt.Errorf("%w: device %q", dyntable.ErrSlotAlreadyBound, d.Name)
	}
	f.devices = append(f.devices, d)
	return nil
}

// Device returns the named device.
func (f *File) Device(name string) (*Device, bool) {
	for _, d := range f.devices {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// Devices returns the devices in registration order.
func (f *File) Devices() []*Device { return slices.Clone(f.devices) }

// Tables returns every table of the document: the metadata tables first,
// then the tables of each processing module. Sub-tables follow their owner.
func (f *File) Tables() []*dyntable.Table {
	var out []*dyntable.Table
	var walk func([]*dyntable.Table)
	walk = func(ts []*dyntable.Table) {
		for _, t := range ts {
			out = append(out, t)
			walk(t.Children())
		}
	}
	if f.metadata != nil {
		walk(f.metadata.Tables())
	}
	for _, m := range f.processing {
		walk(m.tables)
	}
	return out
}

// Unresolved returns a warning for every region of the document that has no
// target, and for every bound region that holds rows staged before binding.
func (f *File) Unresolved(kind dyntable.WarningKind) []*dyntable.Warning {
	var out []*dyntable.Warning
	for _, t := range f.Tables() {
		for _, r := range t.Regions() {
			if !r.Bound() {
				out = append(out, &dyntable.Warning{Kind: kind, Table: t.Name(), Column: r.Name(), Target: r.TargetName()})
			} else if rows := r.DeferredRows(); len(rows) != 0 {
				out = append(out, &dyntable.Warning{Kind: dyntable.WarnDeferredRows, Table: t.Name(), Column: r.Name(), Target: r.TargetName(), Rows: rows})
			}
		}
	}
	return out
}

func find[T dyntable.Node](items []T, name string) (T, bool) {
	for _, it := range items {
		if it.NodeName() == name {
			return it, true
		}
	}
	var zero T
	return zero, false
}
