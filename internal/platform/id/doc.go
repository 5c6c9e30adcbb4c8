// Package id generates URL-safe identifiers for queue items and pending
// approvals.
//
// Identifiers are UUIDv4 bytes encoded as lowercase unpadded base32, optionally
// led by a short kind prefix such as "gen_" or "res_" so logs and API
// responses show what an id refers to.
package id
