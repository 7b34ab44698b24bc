// Package store serializes a document into a self-verifying blob and back.
//
// # Blob Format
//
// A blob is a fixed header followed by the payload:
//
//	magic        4 bytes  "NWBP"
//	version      1 byte
//	compression  1 byte   see [Compression]
//	size         8 bytes  little-endian length of the uncompressed payload
//	digest       32 bytes BLAKE3 keyed hash of the uncompressed payload
//
// The payload is the document graph in CBOR Core Deterministic Encoding, so
// the same document always yields the same bytes. Region bindings are stored
// as the path of their target table and restored against the decoded tables.
//
// # Malformed Documents
//
// A region with no target is written as-is and reported with
// [dyntable.WarnUnresolvedAtWrite]. On read, such regions are reported with
// [dyntable.WarnUnresolvedOnRead], and rows staged before their region was
// bound with [dyntable.WarnDeferredRows]; both land in the [Report].
package store
