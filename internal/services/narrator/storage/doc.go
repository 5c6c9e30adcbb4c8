// Package storage defines persistence interfaces for the narrator service.
//
// It covers worlds, characters, NPCs, scenes, narrative events and chains,
// challenges, player progress, revealed lore, per-world settings, and the
// durable pending-approval journal. Implementations live in subpackages
// (memory for tests and ephemeral runs, sqlite for durable deployments).
//
// Common error types:
//   - ErrNotFound: requested record is missing
//   - ErrAlreadyExists: insert collided with an existing key
package storage
