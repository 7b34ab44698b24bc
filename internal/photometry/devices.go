package photometry

import (
	"strconv"

	"github.com/maruel/photometry/internal/nwb"
)

// Device types.
const (
	TypeOpticalFilter  = "OpticalFilter"
	TypeDichroicMirror = "DichroicMirror"
)

// OpticalFilter describes a band pass or edge filter.
type OpticalFilter struct {
	Name         string
	Description  string
	Manufacturer string
	// PeakWavelength and Bandwidth are in nanometers.
	PeakWavelength float64
	Bandwidth      float64
	FilterType     string
}

// NewOpticalFilter returns the device record of an optical filter.
func NewOpticalFilter(o *OpticalFilter) *nwb.Device {
	d := &nwb.Device{
		Name:         o.Name,
		Type:         TypeOpticalFilter,
		Description:  o.Description,
		Manufacturer: o.Manufacturer,
		Quantities: map[string][]float64{
			"peak_wavelength": {o.PeakWavelength},
			"bandwidth":       {o.Bandwidth},
		},
	}
	if o.FilterType != "" {
		d.Attributes = map[string]string{"filter_type": o.FilterType}
	}
	return d
}

// DichroicMirror describes a dichroic mirror. Wavelengths are in nanometers.
type DichroicMirror struct {
	Name                  string
	Description           string
	Manufacturer          string
	CutOnWavelength       float64
	CutOffWavelength      float64
	ReflectionBandwidth   float64
	TransmissionBandwidth float64
	MidpointTransmission  float64
	AngleOfIncidence      float64
	PolarizationSensitive bool
	ModelNumber           string
}

// NewDichroicMirror returns the device record of a dichroic mirror. Zero
// quantities are left out.
func NewDichroicMirror(m *DichroicMirror) *nwb.Device {
	d := &nwb.Device{
		Name:         m.Name,
		Type:         TypeDichroicMirror,
		Description:  m.Description,
		Manufacturer: m.Manufacturer,
		Quantities:   map[string][]float64{},
		Attributes:   map[string]string{"polarization_sensitive": strconv.FormatBool(m.PolarizationSensitive)},
	}
	for k, v := range map[string]float64{
		"cut_on_wavelength":      m.CutOnWavelength,
		"cut_off_wavelength":     m.CutOffWavelength,
		"reflection_bandwidth":   m.ReflectionBandwidth,
		"transmission_bandwidth": m.TransmissionBandwidth,
		"midpoint_transmission":  m.MidpointTransmission,
		"angle_of_incidence":     m.AngleOfIncidence,
	} {
		if v != 0 {
			d.Quantities[k] = []float64{v}
		}
	}
	if m.ModelNumber != "" {
		d.Attributes["model_number"] = m.ModelNumber
	}
	return d
}
