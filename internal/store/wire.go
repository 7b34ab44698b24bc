// Wire form of the document graph.

package store

import (
	"fmt"

	"github.com/maruel/photometry/internal/dyntable"
	"github.com/maruel/photometry/internal/nwb"
)

type fileDoc struct {
	Identifier         string        `cbor:"identifier"`
	SessionDescription string        `cbor:"session_description"`
	SessionStart       string        `cbor:"session_start"`
	Metadata           *metadataDoc  `cbor:"lab_meta_data,omitempty"`
	Acquisition        []*seriesDoc  `cbor:"acquisition,omitempty"`
	Processing         []*moduleDoc  `cbor:"processing,omitempty"`
	Devices            []*nwb.Device `cbor:"devices,omitempty"`
}

type metadataDoc struct {
	Type     string     `cbor:"type"`
	Name     string     `cbor:"name"`
	Declared []string   `cbor:"declared,omitempty"`
	Slots    []*slotDoc `cbor:"slots"`
}

// slotDoc holds exactly one of Table and Series.
type slotDoc struct {
	Slot   string          `cbor:"slot"`
	Table  *tableDoc       `cbor:"table,omitempty"`
	Series *multiSeriesDoc `cbor:"series,omitempty"`
}

type multiSeriesDoc struct {
	Name   string        `cbor:"name"`
	Series []*nwb.Series `cbor:"series"`
}

type moduleDoc struct {
	Name        string       `cbor:"name"`
	Description string       `cbor:"description,omitempty"`
	Tables      []*tableDoc  `cbor:"tables,omitempty"`
	Series      []*seriesDoc `cbor:"series,omitempty"`
}

type tableDoc struct {
	Schema      *dyntable.Schema `cbor:"schema"`
	Name        string           `cbor:"name"`
	Description string           `cbor:"description,omitempty"`
	Rows        int              `cbor:"rows"`
	Columns     []*columnDoc     `cbor:"columns"`
	Children    []*tableDoc      `cbor:"children,omitempty"`
}

// columnDoc is a Data, Ragged or Region column. Region indices live in Int.
type columnDoc struct {
	Spec     dyntable.ColumnSpec `cbor:"spec"`
	Text     []string            `cbor:"text,omitempty"`
	Float    []float64           `cbor:"float,omitempty"`
	Int      []int64             `cbor:"int,omitempty"`
	Bool     []bool              `cbor:"bool,omitempty"`
	Bounds   []int               `cbor:"bounds,omitempty"`
	Deferred []int               `cbor:"deferred,omitempty"`
	// Target is the path of the bound table, empty when unbound.
	Target string `cbor:"target,omitempty"`
}

type seriesDoc struct {
	Type                string       `cbor:"type"`
	Name                string       `cbor:"name"`
	Description         string       `cbor:"description,omitempty"`
	Unit                string       `cbor:"unit,omitempty"`
	Rate                float64      `cbor:"rate"`
	Data                [][]float64  `cbor:"data"`
	ROIs                *columnDoc   `cbor:"rois"`
	Refs                []*columnDoc `cbor:"refs,omitempty"`
	Raw                 string       `cbor:"raw,omitempty"`
	DeconvolutionFilter string       `cbor:"deconvolution_filter,omitempty"`
	DownsamplingFilter  string       `cbor:"downsampling_filter,omitempty"`
}

func (c *columnDoc) setFlat(flat any) {
	switch x := flat.(type) {
	case []string:
		c.Text = x
	case []float64:
		c.Float = x
	case []int64:
		c.Int = x
	case []bool:
		c.Bool = x
	}
}

func (c *columnDoc) flat() any {
	switch c.Spec.Kind {
	case dyntable.KindFloat:
		return c.Float
	case dyntable.KindInt:
		return c.Int
	case dyntable.KindBool:
		return c.Bool
	default:
		return c.Text
	}
}

func (c *columnDoc) indices() ([]int, error) {
	out := make([]int, len(c.Int))
	for i, v := range c.Int {
		if v < 0 || int64(int(v)) != v {
			return nil, fmt.Errorf("%w: region %q index %d", ErrCorrupt, c.Spec.Name, v)
		}
		out[i] = int(v)
	}
	return out, nil
}
