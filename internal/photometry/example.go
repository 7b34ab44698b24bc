package photometry

import (
	"math"
	"time"

	"github.com/maruel/photometry/internal/dyntable"
	"github.com/maruel/photometry/internal/nwb"
)

// BuildExample assembles a complete fiber photometry document: one of each
// metadata row, a fiber added after the metadata is attached, a raw
// response series in acquisition referencing one row of each metadata
// table, its deconvolved counterpart in the "ophys" processing module,
// plus the optical filter and dichroic mirror of the light path.
func BuildExample(start time.Time, opts ...dyntable.Option) (*nwb.File, error) {
	f := nwb.NewFile("session_description", "", start)

	voltages := nwb.NewMultiSeries(SlotCommandedVoltages)
	cv, err := NewCommandedVoltageSeries(voltages, "commanded_voltage", []float64{1, 2, 3}, 30, 500, 30)
	if err != nil {
		return nil, err
	}

	sources, err := NewExcitationSourcesTable("excitation sources table", opts...)
	if err != nil {
		return nil, err
	}
	if err := AddRow(sources, &ExcitationSource{ExcitationWavelength: 700, SourceType: "laser", CommandedVoltage: cv.Name}); err != nil {
		return nil, err
	}
	detectors, err := NewPhotodetectorsTable("photodetectors table", opts...)
	if err != nil {
		return nil, err
	}
	if err := AddRow(detectors, &Photodetector{DetectedWavelength: 500, Type: "PMT", Gain: 100}); err != nil {
		return nil, err
	}
	fluorophores, err := NewFluorophoresTable("fluorophores", opts...)
	if err != nil {
		return nil, err
	}
	if err := AddRow(fluorophores, &Fluorophore{Label: "dlight", Location: "VTA", Coordinates: &[3]float64{3, 2, 1}}); err != nil {
		return nil, err
	}
	fibers, err := NewFibersTable("fibers table", opts...)
	if err != nil {
		return nil, err
	}

	meta, err := NewFiberPhotometry(fibers, sources, detectors, fluorophores, voltages)
	if err != nil {
		return nil, err
	}
	if err := f.AddLabMetaData(meta); err != nil {
		return nil, err
	}

	// Fibers are added once the sibling tables are reachable so every
	// region binds on the first row.
	if err := AddFiber(fibers, &Fiber{
		Location:         "my location",
		ExcitationSource: 0,
		Photodetector:    0,
		Fluorophores:     []int{0},
		Notes:            "notes",
	}); err != nil {
		return nil, err
	}

	rois, err := dyntable.NewBoundRegion("rois", "source fibers", fibers, []int{0})
	if err != nil {
		return nil, err
	}
	raw := &nwb.ResponseSeries{
		Name:        "raw_fluorescence_trace",
		Description: "my roi response series",
		Unit:        "F",
		Rate:        30,
		Data:        trace(100, 0),
		ROIs:        rois,
	}
	for _, ref := range []struct {
		name string
		t    *dyntable.Table
	}{
		{nwb.RefFibers, fibers},
		{nwb.RefExcitationSources, sources},
		{nwb.RefPhotodetectors, detectors},
		{nwb.RefFluorophores, fluorophores},
	} {
		r, err := dyntable.NewBoundRegion(ref.name, "source "+ref.name, ref.t, []int{0})
		if err != nil {
			return nil, err
		}
		if err := raw.SetReference(r); err != nil {
			return nil, err
		}
	}
	if err := f.AddAcquisition(raw); err != nil {
		return nil, err
	}
	ophys, err := f.CreateProcessingModule("ophys", "fiber photometry")
	if err != nil {
		return nil, err
	}
	deconv := &nwb.ResponseSeries{
		Name:        "deconvolved_fluorescence_trace",
		Description: "my roi response series",
		Unit:        "F",
		Rate:        30,
		Data:        trace(100, math.Pi/4),
		ROIs:        rois,
		Raw:         raw,
	}
	if err := ophys.AddSeries(deconv); err != nil {
		return nil, err
	}

	for _, d := range []*nwb.Device{
		NewOpticalFilter(&OpticalFilter{Name: "excitation_filter", PeakWavelength: 470, Bandwidth: 40, FilterType: "Bandpass"}),
		NewDichroicMirror(&DichroicMirror{Name: "dichroic_mirror", CutOnWavelength: 495, AngleOfIncidence: 45}),
	} {
		if err := f.AddDevice(d); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// trace returns a single channel sine wave sampled n times.
func trace(n int, phase float64) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = []float64{math.Sin(2*math.Pi*float64(i)/float64(n) + phase)}
	}
	return out
}
