// Package merge reconciles concurrent writers of the same session at field
// granularity.
//
// A write carries three snapshots of the payload:
//   - initial: what this request read when it opened the session
//   - final: what this request wants to persist
//   - current: what is in the database right now, read under the row lock
//
// Resolve combines them in three steps:
//
//  1. Diff(final, initial) collects the fields this request changed or added.
//  2. Merge(current, delta) overlays those changes onto current. Named fields
//     overwrite, nested maps merge recursively, positional entries are
//     appended so neither writer's sequence items are lost.
//  3. RemoveDeleted(merged, initial, final) drops every field this request
//     knew about (present in initial) but removed (absent from final).
//
// Fields the request never touched keep whatever current holds, so a
// concurrent writer's unrelated changes survive. Two writers changing the
// same leaf resolve to whichever merge runs last; no conflict is reported.
//
// Inputs are never mutated. The package is pure and safe for concurrent use.
package merge
