// Package jsonl exports a table as JSON Lines and imports it back.
//
// Line 1 is a header holding the format version and the table schema,
// subsequent lines hold one JSON object per row, keyed by column name.
// Regions hold row indices into their target table.
package jsonl

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/maruel/photometry/internal/dyntable"
)

// currentVersion is the current version of the format.
const currentVersion = "1.0"

const maxLine = 64 << 20

var (
	errHeaderRequired  = errors.New("header is required")
	errVersionRequired = errors.New("header version is required")
)

// Header is the first line of an export.
type Header struct {
	Version     string           `json:"version"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Rows        int              `json:"rows"`
	Schema      *dyntable.Schema `json:"schema"`
}

// Validate checks that the header is well-formed.
func (h *Header) Validate() error {
	if h.Version == "" {
		return errVersionRequired
	}
	if h.Version != currentVersion {
		return fmt.Errorf("unsupported version %q", h.Version)
	}
	if h.Schema == nil {
		return fmt.Errorf("%w: schema is required", dyntable.ErrSchemaViolation)
	}
	if h.Rows < 0 {
		return fmt.Errorf("invalid row count %d", h.Rows)
	}
	return h.Schema.Validate()
}

// Write exports t to w.
func Write(w io.Writer, t *dyntable.Table) error {
	bw := bufio.NewWriter(w)
	h := &Header{
		Version:     currentVersion,
		Name:        t.Name(),
		Description: t.Description(),
		Rows:        t.Len(),
		Schema:      t.Schema(),
	}
	if err := writeLine(bw, h); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range t.Len() {
		row, err := t.Row(i)
		if err != nil {
			return err
		}
		if err := writeLine(bw, row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}

func writeLine(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

// Read imports a table from r.
//
// Rows are added one at a time, so regions bind as soon as their target is
// found: the table itself, or the table registered under the target name by
// the nearest root at or above scope. scope may be nil. The returned table
// has no parent; regions that found no target stay unbound.
func Read(r io.Reader, scope dyntable.Node, opts ...dyntable.Option) (*dyntable.Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLine)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
		return nil, errHeaderRequired
	}
	var h Header
	if err := decode(scanner.Bytes(), &h); err != nil {
		return nil, fmt.Errorf("failed to unmarshal header: %w", err)
	}
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}
	t, err := dyntable.New(h.Schema, h.Name, h.Description, opts...)
	if err != nil {
		return nil, err
	}
	if scope != nil {
		if err := t.SetParent(scope); err != nil {
			return nil, err
		}
	}
	line := 1
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var row map[string]any
		if err := decode(data, &row); err != nil {
			return nil, fmt.Errorf("failed to unmarshal line %d: %w", line, err)
		}
		if err := t.AddRow(row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read line %d: %w", line+1, err)
	}
	if t.Len() != h.Rows {
		return nil, fmt.Errorf("%w: read %d rows, header declares %d", dyntable.ErrSchemaViolation, t.Len(), h.Rows)
	}
	if err := t.SetParent(nil); err != nil {
		return nil, err
	}
	return t, nil
}

// decode unmarshals one line, keeping numbers as json.Number so integers
// beyond float64 precision survive.
func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
