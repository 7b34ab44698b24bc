// Package photometry declares the fiber photometry metadata tables and
// assembles documents that use them.
package photometry

import (
	"fmt"

	"github.com/maruel/photometry/internal/dyntable"
	"github.com/maruel/photometry/internal/nwb"
)

// Table types.
const (
	TypeFibersTable            = "FibersTable"
	TypeExcitationSourcesTable = "ExcitationSourcesTable"
	TypePhotodetectorsTable    = "PhotodetectorsTable"
	TypeFluorophoresTable      = "FluorophoresTable"
	TypeFiberPhotometry        = "FiberPhotometry"
)

// Slot names under the fiber photometry metadata root.
const (
	SlotFibers            = "fibers"
	SlotExcitationSources = "excitation_sources"
	SlotPhotodetectors    = "photodetectors"
	SlotFluorophores      = "fluorophores"
	SlotCommandedVoltages = "commanded_voltages"
)

// ExcitationSource is a row of the excitation sources table.
type ExcitationSource struct {
	ExcitationWavelength float64 `json:"excitation_wavelength" jsonschema:"description=wavelength of the excitation source" dyntable:"unit=nanometers"`
	SourceType           string  `json:"source_type" jsonschema:"description=LED or laser"`
	CommandedVoltage     string  `json:"commanded_voltage,omitempty" jsonschema:"description=references a CommandedVoltageSeries" dyntable:"object,type=CommandedVoltageSeries"`
	Output               float64 `json:"output,omitempty" jsonschema:"description=excitation output"`
	ModelNumber          string  `json:"model_number,omitempty" jsonschema:"description=model number of the excitation source"`
}

// Photodetector is a row of the photodetectors table.
type Photodetector struct {
	DetectedWavelength float64 `json:"detected_wavelength,omitempty" jsonschema:"description=wavelength detected by photodetector" dyntable:"unit=nanometers"`
	Type               string  `json:"type" jsonschema:"description=PMT or photodiode"`
	Gain               float64 `json:"gain,omitempty" jsonschema:"description=gain on the photodetector"`
	ModelNumber        string  `json:"model_number,omitempty" jsonschema:"description=model number of the photodetector"`
}

// Fluorophore is a row of the fluorophores table.
type Fluorophore struct {
	Label       string      `json:"label" jsonschema:"description=name of fluorophore"`
	Location    string      `json:"location,omitempty" jsonschema:"description=injection brain region name"`
	Coordinates *[3]float64 `json:"coordinates,omitempty" jsonschema:"description=injection location in stereotactic coordinates (AP ML DV) mm relative to Bregma"`
}

// Fiber is a row of the fibers table.
//
// ExcitationSource and Photodetector are row indices into their tables;
// Fluorophores lists any number of fluorophore rows.
type Fiber struct {
	Location            string      `json:"location" jsonschema:"description=location of fiber"`
	ExcitationSource    int         `json:"excitation_source" jsonschema:"description=references rows of ExcitationSourcesTable" dyntable:"target=excitation_sources,type=ExcitationSourcesTable"`
	Photodetector       int         `json:"photodetector" jsonschema:"description=references rows of PhotodetectorsTable" dyntable:"target=photodetectors,type=PhotodetectorsTable"`
	Fluorophores        []int       `json:"fluorophores,omitempty" jsonschema:"description=references rows of FluorophoresTable" dyntable:"target=fluorophores,type=FluorophoresTable"`
	Coordinates         *[3]float64 `json:"coordinates,omitempty" jsonschema:"description=fiber placement in stereotactic coordinates (AP ML DV) mm relative to Bregma"`
	Notes               string      `json:"notes,omitempty" jsonschema:"description=description of fiber"`
	FiberModelNumber    string      `json:"fiber_model_number,omitempty" jsonschema:"description=fiber model number"`
	DichroicModelNumber string      `json:"dichroic_model_number,omitempty" jsonschema:"description=dichroic model number"`
	// Extra holds values for columns the schema does not declare.
	Extra map[string]any `json:"-"`
}

// Schemas of the metadata tables.
var (
	ExcitationSourcesSchema = mustSchema[ExcitationSource](TypeExcitationSourcesTable, SlotExcitationSources, "Extends DynamicTable to hold various Excitation Sources", false)
	PhotodetectorsSchema    = mustSchema[Photodetector](TypePhotodetectorsTable, SlotPhotodetectors, "Extends DynamicTable to hold various Photodetectors", false)
	FluorophoresSchema      = mustSchema[Fluorophore](TypeFluorophoresTable, SlotFluorophores, "Extends DynamicTable to hold various Fluorophores", false)
	FibersSchema            = mustSchema[Fiber](TypeFibersTable, SlotFibers, "Extends DynamicTable to hold various Fibers", true)
)

func mustSchema[T any](typ, name, description string, extensible bool) *dyntable.Schema {
	s, err := dyntable.SchemaFromType[T](typ, name, description)
	if err != nil {
		panic(fmt.Sprintf("photometry: %s schema: %v", typ, err))
	}
	s.Extensible = extensible
	return s
}

// Schemas returns every table schema of the extension, keyed by type.
func Schemas() map[string]*dyntable.Schema {
	return map[string]*dyntable.Schema{
		TypeExcitationSourcesTable: ExcitationSourcesSchema,
		TypePhotodetectorsTable:    PhotodetectorsSchema,
		TypeFluorophoresTable:      FluorophoresSchema,
		TypeFibersTable:            FibersSchema,
	}
}

// NewExcitationSourcesTable returns an empty excitation sources table.
func NewExcitationSourcesTable(description string, opts ...dyntable.Option) (*dyntable.Table, error) {
	return dyntable.New(ExcitationSourcesSchema, "", description, opts...)
}

// NewPhotodetectorsTable returns an empty photodetectors table.
func NewPhotodetectorsTable(description string, opts ...dyntable.Option) (*dyntable.Table, error) {
	return dyntable.New(PhotodetectorsSchema, "", description, opts...)
}

// NewFluorophoresTable returns an empty fluorophores table.
func NewFluorophoresTable(description string, opts ...dyntable.Option) (*dyntable.Table, error) {
	return dyntable.New(FluorophoresSchema, "", description, opts...)
}

// NewFibersTable returns an empty fibers table.
func NewFibersTable(description string, opts ...dyntable.Option) (*dyntable.Table, error) {
	return dyntable.New(FibersSchema, "", description, opts...)
}

// AddRow appends a row struct to t.
func AddRow(t *dyntable.Table, row any) error {
	values, err := dyntable.ValuesOf(row)
	if err != nil {
		return err
	}
	return t.AddRow(values)
}

// AddFiber appends a fiber to a fibers table.
//
// Regions bind by their declared column name: excitation_source to the
// excitation_sources slot, photodetector to photodetectors and fluorophores
// to fluorophores, whatever order the caller supplied them in.
func AddFiber(t *dyntable.Table, f *Fiber) error {
	if t.Type() != TypeFibersTable {
		return fmt.Errorf("%w: %q is a %s, not a %s", dyntable.ErrSchemaViolation, t.Name(), t.Type(), TypeFibersTable)
	}
	values, err := dyntable.ValuesOf(f)
	if err != nil {
		return err
	}
	for k, v := range f.Extra {
		if _, ok := values[k]; ok {
			return fmt.Errorf("%w: extra value %q shadows a declared column", dyntable.ErrSchemaViolation, k)
		}
		values[k] = v
	}
	return t.AddRow(values)
}

// NewFiberPhotometry returns the metadata root holding the given tables.
// Nil arguments leave their slot empty so it can be set later.
func NewFiberPhotometry(fibers, sources, detectors, fluorophores *dyntable.Table, voltages *nwb.MultiSeries) (*nwb.MetadataRoot, error) {
	m := nwb.NewMetadataRoot(TypeFiberPhotometry, "fiber_photometry",
		SlotFibers, SlotExcitationSources, SlotPhotodetectors, SlotFluorophores, SlotCommandedVoltages)
	for _, s := range []struct {
		slot string
		t    *dyntable.Table
	}{
		{SlotFibers, fibers},
		{SlotExcitationSources, sources},
		{SlotPhotodetectors, detectors},
		{SlotFluorophores, fluorophores},
	} {
		if s.t == nil {
			continue
		}
		if err := m.SetTable(s.slot, s.t); err != nil {
			return nil, err
		}
	}
	if voltages != nil {
		if err := m.SetSeries(SlotCommandedVoltages, voltages); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewCommandedVoltageSeries adds a commanded voltage series to ms.
func NewCommandedVoltageSeries(ms *nwb.MultiSeries, name string, data []float64, frequency, power, rate float64) (*nwb.Series, error) {
	return ms.CreateSeries(&nwb.Series{
		Name:        name,
		Description: "commanded voltage",
		Data:        data,
		Unit:        "volts",
		Rate:        rate,
		Frequency:   frequency,
		Power:       power,
	})
}
