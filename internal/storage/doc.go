// Package storage persists per-conversation reminder snapshots.
//
// A conversation's state is a list of self-contained record lines that is
// always replaced as a whole. Next to it the store keeps an append-only audit
// journal of reminder lifecycle actions (added, fired, cancelled).
//
// Drivers:
//   - "file": one file per conversation, rewritten via temp file + rename
//   - "sqlite": a single SQLite database (modernc.org/sqlite, no cgo)
package storage
