// Package storage persists notification records so the dedup table survives
// a restart of the host process.
//
// Drivers:
//   - "file":   JSON snapshot plus an append-only JSONL journal
//   - "sqlite": pure-Go SQLite (modernc.org/sqlite)
//   - "" / "none": persistence disabled (Open returns a nil Store)
package storage
