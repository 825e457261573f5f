// Package payload provides the decoded session payload model and the codec
// that turns it into the bytes stored in the data column.
//
// A session payload is a Map of named fields. Values are recursive: scalars
// (Null, String, Int, Float, Bool), ordered sequences (List) addressed by
// position, and nested Maps addressed by name.
//
// This package imports nothing internal. The merge and session packages only
// ever see decoded values; the byte format stays behind the Codec interface.
//
// Key constraints:
//   - Decode(Encode(v)) must equal v for every representable v
//   - Int and Float stay distinct across a round-trip
//   - Encoding is deterministic: object keys are sorted by UTF-16 code units
package payload
