package store

import (
	"fmt"
	"time"

	"github.com/maruel/photometry/internal/dyntable"
	"github.com/maruel/photometry/internal/nwb"
)

// Encode serializes f.
//
// Regions that are still unbound are written with their indices and no
// target; each raises a dyntable.WarnUnresolvedAtWrite warning. A region
// bound to a table that is not part of f is an error.
func Encode(f *nwb.File, opts *Options) ([]byte, error) {
	for _, w := range f.Unresolved(dyntable.WarnUnresolvedAtWrite) {
		if w.Kind == dyntable.WarnUnresolvedAtWrite {
			opts.emit("writing unresolved reference", w)
		}
	}
	e := &encoder{paths: make(map[*dyntable.Table]string), series: make(map[*nwb.ResponseSeries]string)}
	doc, err := e.file(f)
	if err != nil {
		return nil, err
	}
	payload, err := encMode.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return seal(payload, opts.compression())
}

type encoder struct {
	paths  map[*dyntable.Table]string
	series map[*nwb.ResponseSeries]string
}

func (e *encoder) file(f *nwb.File) (*fileDoc, error) {
	doc := &fileDoc{
		Identifier:         f.Identifier,
		SessionDescription: f.SessionDescription,
		SessionStart:       f.SessionStart.Format(time.RFC3339Nano),
		Devices:            f.Devices(),
	}

	// Paths first, so that regions may point anywhere in the document.
	if m := f.Metadata(); m != nil {
		for _, slot := range m.Slots() {
			if t, ok := m.Table(slot); ok {
				e.index(t, metadataPath(m.Name(), slot))
			}
		}
	}
	for _, pm := range f.ProcessingModules() {
		for _, t := range pm.Tables() {
			e.index(t, modulePath(pm.Name(), t.Name()))
		}
	}
	for _, s := range f.Acquisitions() {
		e.series[s] = acquisitionPath(s.Name)
	}
	for _, pm := range f.ProcessingModules() {
		for _, s := range pm.AllSeries() {
			e.series[s] = modulePath(pm.Name(), s.Name)
		}
	}

	if m := f.Metadata(); m != nil {
		md := &metadataDoc{Type: m.Type(), Name: m.Name(), Declared: m.DeclaredSlots()}
		for _, slot := range m.Slots() {
			sd := &slotDoc{Slot: slot}
			if t, ok := m.Table(slot); ok {
				td, err := e.table(t)
				if err != nil {
					return nil, err
				}
				sd.Table = td
			} else if ms, ok := m.MultiSeries(slot); ok {
				sd.Series = &multiSeriesDoc{Name: ms.Name(), Series: ms.All()}
			}
			md.Slots = append(md.Slots, sd)
		}
		doc.Metadata = md
	}
	for _, s := range f.Acquisitions() {
		sd, err := e.responseSeries(s)
		if err != nil {
			return nil, err
		}
		doc.Acquisition = append(doc.Acquisition, sd)
	}
	for _, pm := range f.ProcessingModules() {
		md := &moduleDoc{Name: pm.Name(), Description: pm.Description()}
		for _, t := range pm.Tables() {
			td, err := e.table(t)
			if err != nil {
				return nil, err
			}
			md.Tables = append(md.Tables, td)
		}
		for _, s := range pm.AllSeries() {
			sd, err := e.responseSeries(s)
			if err != nil {
				return nil, err
			}
			md.Series = append(md.Series, sd)
		}
		doc.Processing = append(doc.Processing, md)
	}
	return doc, nil
}

func (e *encoder) index(t *dyntable.Table, path string) {
	e.paths[t] = path
	for _, c := range t.Children() {
		e.index(c, childPath(path, c.Name()))
	}
}

func (e *encoder) table(t *dyntable.Table) (*tableDoc, error) {
	td := &tableDoc{
		Schema:      t.Schema(),
		Name:        t.Name(),
		Description: t.Description(),
		Rows:        t.Len(),
	}
	for _, v := range t.Columns() {
		var cd *columnDoc
		switch c := v.(type) {
		case *dyntable.Data:
			cd = dataDoc(c)
		case *dyntable.Ragged:
			cd = dataDoc(c.Target())
			cd.Spec.Ragged = true
			cd.Bounds = c.Boundaries()
		case *dyntable.Region:
			var err error
			if cd, err = e.region(c); err != nil {
				return nil, fmt.Errorf("table %q: %w", t.Name(), err)
			}
		default:
			return nil, fmt.Errorf("table %q column %q: unsupported column %T", t.Name(), v.Name(), v)
		}
		td.Columns = append(td.Columns, cd)
	}
	for _, c := range t.Children() {
		cd, err := e.table(c)
		if err != nil {
			return nil, err
		}
		td.Children = append(td.Children, cd)
	}
	return td, nil
}

func dataDoc(d *dyntable.Data) *columnDoc {
	cd := &columnDoc{Spec: dyntable.ColumnSpec{
		Name:        d.Name(),
		Description: d.Description(),
		Kind:        d.Kind(),
		Shape:       d.Shape(),
		Unit:        d.Unit(),
	}}
	cd.setFlat(d.Flat())
	return cd
}

func (e *encoder) region(r *dyntable.Region) (*columnDoc, error) {
	cd := &columnDoc{Spec: r.Spec(), Bounds: r.Boundaries(), Deferred: r.DeferredRows()}
	for _, i := range r.Flat() {
		cd.Int = append(cd.Int, int64(i))
	}
	if t := r.Table(); t != nil {
		path, ok := e.paths[t]
		if !ok {
			return nil, fmt.Errorf("%w: region %q is bound to %q which is not part of the document", dyntable.ErrSchemaViolation, r.Name(), t.Name())
		}
		cd.Target = path
	}
	return cd, nil
}

func (e *encoder) responseSeries(s *nwb.ResponseSeries) (*seriesDoc, error) {
	rois, err := e.region(s.ROIs)
	if err != nil {
		return nil, fmt.Errorf("series %q: %w", s.Name, err)
	}
	sd := &seriesDoc{
		Type:                s.Type,
		Name:                s.Name,
		Description:         s.Description,
		Unit:                s.Unit,
		Rate:                s.Rate,
		Data:                s.Data,
		ROIs:                rois,
		DeconvolutionFilter: s.DeconvolutionFilter,
		DownsamplingFilter:  s.DownsamplingFilter,
	}
	for _, r := range s.References() {
		cd, err := e.region(r)
		if err != nil {
			return nil, fmt.Errorf("series %q: %w", s.Name, err)
		}
		sd.Refs = append(sd.Refs, cd)
	}
	if s.Raw != nil {
		path, ok := e.series[s.Raw]
		if !ok {
			return nil, fmt.Errorf("%w: series %q links raw series %q which is not part of the document", dyntable.ErrSchemaViolation, s.Name, s.Raw.Name)
		}
		sd.Raw = path
	}
	return sd, nil
}

func metadataPath(root, slot string) string { return "lab_meta_data/" + root + "/" + slot }

func modulePath(module, name string) string { return "processing/" + module + "/" + name }

func acquisitionPath(name string) string { return "acquisition/" + name }

func childPath(parent, name string) string { return parent + "/" + name }
