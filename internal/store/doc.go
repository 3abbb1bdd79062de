// Package store persists the roster document.
//
// The whole state is one JSON value with four collections (users, tokens,
// missions, assignments). DocumentStore guards it with a process-wide
// RWMutex: Load takes the shared lock, Save and Update take the exclusive
// lock. Update runs a caller function between load and save so that
// validation and mutation happen in a single critical section.
//
// The serialized bytes live in a Medium:
//
//   - FileMedium: data.json in a data directory, replaced by atomic rename
//   - SQLiteMedium: one row in a SQLite table
//   - MemoryMedium: process memory, for tests
//
// Unparseable bytes yield ErrStorageCorrupt; the store never substitutes an
// empty document for a damaged one. Write failures yield ErrStorageUnavailable.
package store
