package nwb

import (
	"errors"
	"fmt"
	"slices"

	"github.com/maruel/photometry/internal/dyntable"
)

// Series is a regularly sampled scalar time series, such as the voltage
// commanded to an excitation source.
type Series struct {
	Name        string
	Description string
	Data        []float64
	Unit        string
	Rate        float64
	Frequency   float64
	Power       float64

	parent dyntable.Node
}

// NodeName implements dyntable.Node; object columns reference a Series by it.
func (s *Series) NodeName() string { return s.Name }

// Parent implements dyntable.Node.
func (s *Series) Parent() dyntable.Node {
	if s.parent == nil {
		return nil
	}
	return s.parent
}

// MultiSeries holds named Series.
type MultiSeries struct {
	name   string
	parent dyntable.Node
	series []*Series
}

// NewMultiSeries returns an empty container.
func NewMultiSeries(name string) *MultiSeries {
	return &MultiSeries{name: name}
}

// Name returns the container name.
func (m *MultiSeries) Name() string { return m.name }

// NodeName implements dyntable.Node.
func (m *MultiSeries) NodeName() string { return m.name }

// Parent implements dyntable.Node.
func (m *MultiSeries) Parent() dyntable.Node {
	if m.parent == nil {
		return nil
	}
	return m.parent
}

// CreateSeries adds s to the container. Names are unique.
func (m *MultiSeries) CreateSeries(s *Series) (*Series, error) {
	if s.Name == "" {
		return nil, errNameRequired
	}
	if _, ok := m.Series(s.Name); ok {
		return nil, fmt.Errorf("%w: series %q", dyntable.ErrSlotAlreadyBound, s.Name)
	}
	if s.Rate < 0 {
		return nil, fmt.Errorf("series %q: rate must not be negative, got %g", s.Name, s.Rate)
	}
	s.parent = m
	m.series = append(m.series, s)
	return s, nil
}

// Series returns the named series.
func (m *MultiSeries) Series(name string) (*Series, bool) {
	return find(m.series, name)
}

// All returns the series in creation order.
func (m *MultiSeries) All() []*Series { return slices.Clone(m.series) }

// Response series types.
const (
	TypeResponseSeries            = "FiberPhotometryResponseSeries"
	TypeDeconvolvedResponseSeries = "DeconvolvedFiberPhotometryResponseSeries"
)

var errROIsRequired = errors.New("rois region is required")

// Names of the optional regions of a ResponseSeries, each into the metadata
// table of the same name.
const (
	RefFibers            = "fibers"
	RefExcitationSources = "excitation_sources"
	RefFluorophores      = "fluorophores"
	RefPhotodetectors    = "photodetectors"
)

var refNames = []string{RefFibers, RefExcitationSources, RefFluorophores, RefPhotodetectors}

// ResponseSeries is a multi-channel recording whose channels are rows of a
// table, referenced by the ROIs region.
type ResponseSeries struct {
	Type        string
	Name        string
	Description string
	Unit        string
	Rate        float64
	// Data is indexed by time then by ROI.
	Data [][]float64
	ROIs *dyntable.Region
	// Optional regions naming the hardware and labels behind the recording.
	Fibers            *dyntable.Region
	ExcitationSources *dyntable.Region
	Fluorophores      *dyntable.Region
	Photodetectors    *dyntable.Region
	// Raw links a deconvolved series to the series it was derived from.
	Raw                 *ResponseSeries
	DeconvolutionFilter string
	DownsamplingFilter  string

	parent dyntable.Node
}

// NodeName implements dyntable.Node.
func (s *ResponseSeries) NodeName() string { return s.Name }

// Parent implements dyntable.Node.
func (s *ResponseSeries) Parent() dyntable.Node {
	if s.parent == nil {
		return nil
	}
	return s.parent
}

// Validate checks that every sample has one value per referenced row.
func (s *ResponseSeries) Validate() error {
	if s.Name == "" {
		return errNameRequired
	}
	if s.ROIs == nil {
		return fmt.Errorf("series %q: %w", s.Name, errROIsRequired)
	}
	if !s.ROIs.Bound() {
		return fmt.Errorf("series %q: %w", s.Name, dyntable.ErrUnbound)
	}
	n := s.ROIs.Len()
	for i, sample := range s.Data {
		if len(sample) != n {
			return fmt.Errorf("series %q sample %d: %w: %d values for %d rois", s.Name, i, dyntable.ErrTypeMismatch, len(sample), n)
		}
	}
	for _, name := range refNames {
		r := *s.ref(name)
		if r == nil {
			continue
		}
		if r.Name() != name {
			return fmt.Errorf("series %q: %w: region %q set as %s", s.Name, dyntable.ErrSchemaViolation, r.Name(), name)
		}
		if !r.Bound() {
			return fmt.Errorf("series %q region %q: %w", s.Name, r.Name(), dyntable.ErrUnbound)
		}
	}
	if s.Raw == s {
		return fmt.Errorf("series %q: raw links to itself", s.Name)
	}
	return nil
}

// References returns the optional regions that are set, in declaration
// order.
func (s *ResponseSeries) References() []*dyntable.Region {
	var out []*dyntable.Region
	for _, name := range refNames {
		if r := *s.ref(name); r != nil {
			out = append(out, r)
		}
	}
	return out
}

// SetReference stores r in the optional region matching its name.
func (s *ResponseSeries) SetReference(r *dyntable.Region) error {
	slot := s.ref(r.Name())
	if slot == nil {
		return fmt.Errorf("series %q: %w: region %q is not a series reference", s.Name, dyntable.ErrSchemaViolation, r.Name())
	}
	if *slot != nil {
		return fmt.Errorf("series %q: %w: region %q", s.Name, dyntable.ErrSlotAlreadyBound, r.Name())
	}
	*slot = r
	return nil
}

func (s *ResponseSeries) ref(name string) **dyntable.Region {
	switch name {
	case RefFibers:
		return &s.Fibers
	case RefExcitationSources:
		return &s.ExcitationSources
	case RefFluorophores:
		return &s.Fluorophores
	case RefPhotodetectors:
		return &s.Photodetectors
	default:
		return nil
	}
}

func (s *ResponseSeries) setParent(p dyntable.Node) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.parent != nil {
		return fmt.Errorf("%w: series %q is owned by %q", dyntable.ErrSlotAlreadyBound, s.Name, s.parent.NodeName())
	}
	if s.Type == "" {
		s.Type = TypeResponseSeries
		if s.Raw != nil {
			s.Type = TypeDeconvolvedResponseSeries
		}
	}
	s.parent = p
	return nil
}

// Device describes a piece of hardware by named quantities and attributes.
type Device struct {
	Name         string
	Type         string
	Description  string
	Manufacturer string
	// Quantities holds numeric properties, such as wavelengths in nanometers.
	Quantities map[string][]float64
	// Attributes holds text properties.
	Attributes map[string]string
}
