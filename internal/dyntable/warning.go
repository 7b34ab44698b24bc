package dyntable

import (
	"fmt"
	"log/slog"
)

// WarningKind classifies non-fatal reference problems.
type WarningKind int

const (
	// WarnDeferredReference is emitted when a row is appended while one of
	// the table's regions could not be bound.
	WarnDeferredReference WarningKind = iota + 1
	// WarnUnresolvedAtWrite is emitted when a document is serialized with a
	// region that was never bound.
	WarnUnresolvedAtWrite
	// WarnUnresolvedOnRead is emitted when a deserialized region has no target.
	WarnUnresolvedOnRead
	// WarnDeferredRows is emitted for rows whose indices were staged before
	// their region was bound.
	WarnDeferredRows
)

func (k WarningKind) String() string {
	switch k {
	case WarnDeferredReference:
		return "deferred_reference"
	case WarnUnresolvedAtWrite:
		return "unresolved_at_write"
	case WarnUnresolvedOnRead:
		return "unresolved_on_read"
	case WarnDeferredRows:
		return "deferred_rows"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Warning describes a reference that is not, or was not, resolvable.
type Warning struct {
	Kind   WarningKind
	Table  string
	Column string
	Target string
	Rows   []int
}

func (w *Warning) Error() string {
	switch w.Kind {
	case WarnDeferredReference:
		return fmt.Sprintf("table %q column %q: reference to %q that does not yet exist", w.Table, w.Column, w.Target)
	case WarnUnresolvedAtWrite:
		return fmt.Sprintf("table %q column %q: writing unresolved reference to %q", w.Table, w.Column, w.Target)
	case WarnUnresolvedOnRead:
		return fmt.Sprintf("table %q column %q: unresolved reference to %q", w.Table, w.Column, w.Target)
	case WarnDeferredRows:
		return fmt.Sprintf("table %q column %q: rows %v referenced %q before it was bound", w.Table, w.Column, w.Rows, w.Target)
	default:
		return fmt.Sprintf("table %q column %q: %s", w.Table, w.Column, w.Kind)
	}
}

// LogValue implements slog.LogValuer.
func (w *Warning) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", w.Kind.String()),
		slog.String("table", w.Table),
		slog.String("column", w.Column),
		slog.String("target", w.Target),
	}
	if len(w.Rows) != 0 {
		attrs = append(attrs, slog.Any("rows", w.Rows))
	}
	return slog.GroupValue(attrs...)
}

// WarnFunc receives non-fatal warnings.
type WarnFunc func(w *Warning)
