// Package sqlite persists narrator state in SQLite.
//
// Structured fields that are only ever read whole (inventories, stats,
// relationships, event definitions) are stored as JSON columns; columns that
// are filtered or ordered on are stored natively. Timestamps are Unix
// milliseconds.
package sqlite
