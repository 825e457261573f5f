// Package session implements the per-request session lifecycle on top of
// the record store and the three-way merge.
//
// LIFECYCLE:
//
// One Lifecycle serves one request span: Open, any number of Reads, at most
// one Write in the normal path, then Close. States move strictly forward:
//
//	Unopened -> Open -> Closed
//
// The first Read captures the initial snapshot. Write reconciles the caller's
// final payload against that snapshot and the row as it stands in the
// database when the write lock is taken:
//
//	resolved = RemoveDeleted(Merge(current, Diff(final, initial)), initial, final)
//
// A write to an id with no row at all stores the payload verbatim.
//
// CRITICAL PATTERNS:
//
// Transaction ownership:
// The Lifecycle holds at most one store.Handle. An exclusive Read opens a
// transaction that stays held until Write, RotateID, Destroy or Close ends
// it. Write always commits or rolls back before returning and then releases
// the handle.
//
// Failure boundary:
// Write, RotateID and Destroy never return errors. Failures roll back, are
// logged as *WriteError, counted, and reported as false.
//
// Lenient decode:
// A payload the codec cannot decode is treated as an empty map.
package session
