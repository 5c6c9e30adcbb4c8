// Package audit keeps the append-only trail of world-state changes produced by
// approved outcomes.
//
// Changes are written as JSON lines into zstd-compressed files, one file per
// UTC day, and can be read back per world for review.
package audit
