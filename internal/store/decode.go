package store

import (
	"fmt"
	"time"

	"github.com/maruel/photometry/internal/dyntable"
	"github.com/maruel/photometry/internal/nwb"
)

// Report lists what Decode found malformed in an otherwise readable
// document.
type Report struct {
	// Compression is the compression the blob was stored with.
	Compression Compression
	Warnings    []*dyntable.Warning
}

// Malformed reports whether the document holds unresolved references.
func (r *Report) Malformed() bool { return len(r.Warnings) != 0 }

// Find returns the warning raised for a table column, nil if none.
func (r *Report) Find(table, column string) *dyntable.Warning {
	for _, w := range r.Warnings {
		if w.Table == table && w.Column == column {
			return w
		}
	}
	return nil
}

// Decode reconstructs a document serialized by Encode.
//
// Regions are bound to the decoded tables they were bound to when written.
// Regions written unbound stay unbound; they and the rows staged before
// binding are listed in the Report, and emitted as warnings.
func Decode(blob []byte, opts *Options) (*nwb.File, *Report, error) {
	payload, c, err := open(blob)
	if err != nil {
		return nil, nil, err
	}
	var doc fileDoc
	if err := decMode.Unmarshal(payload, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	d := &decoder{opts: opts, tables: make(map[string]*dyntable.Table), series: make(map[string]*nwb.ResponseSeries)}
	f, err := d.file(&doc)
	if err != nil {
		return nil, nil, err
	}
	r := &Report{Compression: c, Warnings: f.Unresolved(dyntable.WarnUnresolvedOnRead)}
	for _, w := range r.Warnings {
		opts.emit("malformed reference", w)
	}
	return f, r, nil
}

type decoder struct {
	opts    *Options
	tables  map[string]*dyntable.Table
	regions []pendingRegion
	series  map[string]*nwb.ResponseSeries
}

// pendingRegion is a decoded region whose target may not be decoded yet.
type pendingRegion struct {
	region *dyntable.Region
	table  string
	target string
}

func (d *decoder) file(doc *fileDoc) (*nwb.File, error) {
	start, err := time.Parse(time.RFC3339Nano, doc.SessionStart)
	if err != nil {
		return nil, fmt.Errorf("%w: session start: %w", ErrCorrupt, err)
	}
	f := nwb.NewFile(doc.SessionDescription, doc.Identifier, start)
	for _, dev := range doc.Devices {
		if err := f.AddDevice(dev); err != nil {
			return nil, err
		}
	}

	if md := doc.Metadata; md != nil {
		m := nwb.NewMetadataRoot(md.Type, md.Name, md.Declared...)
		for _, sd := range md.Slots {
			switch {
			case sd.Table != nil:
				t, err := d.table(sd.Table, metadataPath(md.Name, sd.Slot))
				if err != nil {
					return nil, err
				}
				if err := m.SetTable(sd.Slot, t); err != nil {
					return nil, err
				}
			case sd.Series != nil:
				ms := nwb.NewMultiSeries(sd.Series.Name)
				for _, s := range sd.Series.Series {
					if _, err := ms.CreateSeries(s); err != nil {
						return nil, err
					}
				}
				if err := m.SetSeries(sd.Slot, ms); err != nil {
					return nil, err
				}
			default:
				return nil, fmt.Errorf("%w: slot %q is empty", ErrCorrupt, sd.Slot)
			}
		}
		if err := f.AddLabMetaData(m); err != nil {
			return nil, err
		}
	}

	modules := make([]*nwb.ProcessingModule, len(doc.Processing))
	for i, md := range doc.Processing {
		pm, err := f.CreateProcessingModule(md.Name, md.Description)
		if err != nil {
			return nil, err
		}
		for _, td := range md.Tables {
			t, err := d.table(td, modulePath(md.Name, td.Name))
			if err != nil {
				return nil, err
			}
			if err := pm.AddTable(t); err != nil {
				return nil, err
			}
		}
		modules[i] = pm
	}

	// Every table exists now; bind the regions to their decoded targets.
	for _, p := range d.regions {
		t, ok := d.tables[p.target]
		if !ok {
			return nil, fmt.Errorf("%w: table %q column %q targets unknown table %q", ErrCorrupt, p.table, p.region.Name(), p.target)
		}
		if err := p.region.Bind(t); err != nil {
			return nil, &dyntable.ColumnError{Table: p.table, Column: p.region.Name(), Err: err}
		}
	}

	acquisition, err := d.responseSeries(doc.Acquisition, acquisitionPath)
	if err != nil {
		return nil, err
	}
	processed := make([][]*nwb.ResponseSeries, len(doc.Processing))
	for i, md := range doc.Processing {
		if processed[i], err = d.responseSeries(md.Series, func(name string) string { return modulePath(md.Name, name) }); err != nil {
			return nil, err
		}
	}
	if err := d.linkRaw(doc.Acquisition, acquisition); err != nil {
		return nil, err
	}
	for i, md := range doc.Processing {
		if err := d.linkRaw(md.Series, processed[i]); err != nil {
			return nil, err
		}
	}
	for _, s := range acquisition {
		if err := f.AddAcquisition(s); err != nil {
			return nil, err
		}
	}
	for i, pm := range modules {
		for _, s := range processed[i] {
			if err := pm.AddSeries(s); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

func (d *decoder) table(td *tableDoc, path string) (*dyntable.Table, error) {
	if td.Schema == nil {
		return nil, fmt.Errorf("%w: table %q has no schema", ErrCorrupt, td.Name)
	}
	if _, dup := d.tables[path]; dup {
		return nil, fmt.Errorf("%w: duplicate table %q", ErrCorrupt, path)
	}
	cols := make([]dyntable.Vector, 0, len(td.Columns))
	for _, cd := range td.Columns {
		v, err := d.column(cd, td.Name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, v)
	}
	t, err := dyntable.Restore(td.Schema, td.Name, td.Description, td.Rows, cols, d.opts.tableOptions()...)
	if err != nil {
		return nil, err
	}
	d.tables[path] = t
	for _, cd := range td.Children {
		c, err := d.table(cd, childPath(path, cd.Name))
		if err != nil {
			return nil, err
		}
		if err := t.AttachTable(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (d *decoder) column(cd *columnDoc, table string) (dyntable.Vector, error) {
	if cd.Spec.IsRegion() {
		r, err := d.region(cd, table)
		if err != nil {
			return nil, err
		}
		if cd.Target != "" {
			d.regions = append(d.regions, pendingRegion{region: r, table: table, target: cd.Target})
		}
		return r, nil
	}
	data, err := dyntable.RestoreData(cd.Spec, cd.flat())
	if err != nil {
		return nil, &dyntable.ColumnError{Table: table, Column: cd.Spec.Name, Err: err}
	}
	if !cd.Spec.Ragged {
		return data, nil
	}
	x, err := dyntable.NewRagged(data, cd.Bounds)
	if err != nil {
		return nil, &dyntable.ColumnError{Table: table, Column: cd.Spec.Name, Err: err}
	}
	return x, nil
}

func (d *decoder) region(cd *columnDoc, table string) (*dyntable.Region, error) {
	flat, err := cd.indices()
	if err != nil {
		return nil, err
	}
	r, err := dyntable.RestoreRegion(cd.Spec, flat, cd.Bounds, cd.Deferred)
	if err != nil {
		return nil, &dyntable.ColumnError{Table: table, Column: cd.Spec.Name, Err: err}
	}
	return r, nil
}

func (d *decoder) responseSeries(docs []*seriesDoc, pathOf func(string) string) ([]*nwb.ResponseSeries, error) {
	out := make([]*nwb.ResponseSeries, len(docs))
	for i, sd := range docs {
		if sd.ROIs == nil {
			return nil, fmt.Errorf("%w: series %q has no rois", ErrCorrupt, sd.Name)
		}
		rois, err := d.seriesRegion(sd.ROIs, sd.Name)
		if err != nil {
			return nil, err
		}
		s := &nwb.ResponseSeries{
			Type:                sd.Type,
			Name:                sd.Name,
			Description:         sd.Description,
			Unit:                sd.Unit,
			Rate:                sd.Rate,
			Data:                sd.Data,
			ROIs:                rois,
			DeconvolutionFilter: sd.DeconvolutionFilter,
			DownsamplingFilter:  sd.DownsamplingFilter,
		}
		for _, cd := range sd.Refs {
			r, err := d.seriesRegion(cd, sd.Name)
			if err != nil {
				return nil, err
			}
			if err := s.SetReference(r); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
			}
		}
		path := pathOf(sd.Name)
		if _, dup := d.series[path]; dup {
			return nil, fmt.Errorf("%w: duplicate series %q", ErrCorrupt, path)
		}
		d.series[path] = s
		out[i] = s
	}
	return out, nil
}

// seriesRegion restores a region of a series, bound to its target table.
func (d *decoder) seriesRegion(cd *columnDoc, series string) (*dyntable.Region, error) {
	if cd.Target == "" {
		return nil, fmt.Errorf("%w: series %q region %q has no target", ErrCorrupt, series, cd.Spec.Name)
	}
	r, err := d.region(cd, series)
	if err != nil {
		return nil, err
	}
	t, ok := d.tables[cd.Target]
	if !ok {
		return nil, fmt.Errorf("%w: series %q region %q targets unknown table %q", ErrCorrupt, series, cd.Spec.Name, cd.Target)
	}
	if err := r.Bind(t); err != nil {
		return nil, fmt.Errorf("series %q: %w", series, err)
	}
	return r, nil
}

func (d *decoder) linkRaw(docs []*seriesDoc, series []*nwb.ResponseSeries) error {
	for i, sd := range docs {
		if sd.Raw == "" {
			continue
		}
		raw, ok := d.series[sd.Raw]
		if !ok {
			return fmt.Errorf("%w: series %q links unknown raw series %q", ErrCorrupt, sd.Name, sd.Raw)
		}
		series[i].Raw = raw
	}
	return nil
}
