// Package dyntable provides extensible, self-describing tables whose columns
// may reference rows of sibling tables.
//
// # Overview
//
// A [Table] is an ordered set of named columns sharing a row count. Columns are
// declared by a [Schema] and come in three flavors:
//
//   - [Data]: an append-only sequence of typed scalar or fixed-shape values.
//   - [Ragged]: an index layer over a Data column that partitions it into
//     variable-length groups, one group per logical row.
//   - [Region]: row indices into another Table, either one per row or ragged.
//
// # Deferred Binding
//
// A Region is declared with the logical name of its target table and is
// usually not bound when the table is constructed. Every [Table.AddRow] tries
// to bind the still unbound regions: first against the table itself and its
// attached child tables, then by walking up the [Node] hierarchy to the
// nearest [Root] and looking the target up by name. When the target cannot be
// found the row is still appended and a [WarnDeferredReference] warning is
// emitted. When it is found, every index staged so far is validated against
// the target's row count.
//
// # Atomic Rows
//
// AddRow validates and stages every value before appending any of them. A
// failing call leaves every column and the row count untouched.
//
// # Concurrency
//
// Tables are single-writer. They hold no locks; callers must not mutate a
// table from more than one goroutine.
package dyntable
