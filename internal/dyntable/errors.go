package dyntable

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeMismatch is returned when a value's kind or shape disagrees with
	// the column declaration.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrIndexOutOfRange is returned when a row, group or index is outside the
	// valid range.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrMissingRequiredColumn is returned when a row omits a required column
	// that has no default.
	ErrMissingRequiredColumn = errors.New("missing required column")
	// ErrSchemaViolation is returned when a row or column does not conform to
	// the table schema.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrSlotAlreadyBound is returned when a write-once slot is set twice.
	ErrSlotAlreadyBound = errors.New("slot already bound")
	// ErrDanglingReference is returned when a region index is not smaller than
	// its target's row count.
	ErrDanglingReference = errors.New("dangling reference")
	// ErrUnbound is returned when dereferencing a region that has no target.
	ErrUnbound = errors.New("region is not bound")
)

// ColumnError locates a failure in a table column.
type ColumnError struct {
	Table  string
	Column string
	Err    error
}

func (e *ColumnError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("table %q: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("table %q column %q: %v", e.Table, e.Column, e.Err)
}

func (e *ColumnError) Unwrap() error {
	return e.Err
}
