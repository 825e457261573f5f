// Package store provides SQLite-backed point storage for session records.
//
// Each record is a single row:
//   - id: the session id (primary key)
//   - expire: absolute expiry as unix seconds
//   - data: the encoded payload (BLOB)
//
// # Critical Patterns
//
// Expiry by predicate:
//   - Every filtered read includes "expire > now"; expired rows are absent
//     until Purge removes them physically
//   - Upsert sets expiry to now + timeout; Rekey carries the old row's
//     expiry over unchanged
//
// Transaction ownership:
//   - A Handle pins one pooled connection and owns at most one transaction
//   - Exclusive fetches begin the transaction lazily; the caller commits or
//     rolls it back, and Release always rolls back whatever is left
//   - Transactions begin with BEGIN IMMEDIATE (_txlock=immediate), which
//     takes the write lock up front and serializes competing writers
//
// Blob handling:
//   - BlobAdapter hides whether the backend streams the data column through
//     an incremental blob handle or binds it inline as a parameter
//   - The adapter is chosen once in Open from Options.Streaming
//   - A streaming write happens inside a transaction; the store opens a
//     local one when the caller holds none
//
// # Database Configuration
//
//   - WAL mode: concurrent readers while a writer holds the lock
//   - busy_timeout: how long a writer waits for the lock (default 5s)
//   - synchronous=NORMAL
package store
