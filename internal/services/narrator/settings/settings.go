// Package settings supplies per-world generation settings.
package settings

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
)

const (
	DefaultBranchCount     = 3
	DefaultTokensPerBranch = 200
	MaxBranchCount         = 10
)

// FailurePolicy decides how a batch enqueue treats invalid requests.
type FailurePolicy string

const (
	// AllOrNothing rejects the whole batch when any request is invalid.
	AllOrNothing FailurePolicy = "all_or_nothing"
	// BestEffort enqueues valid requests and reports invalid ones.
	BestEffort FailurePolicy = "best_effort"
)

// ParseFailurePolicy maps a stored string to a policy. Unknown values are
// treated as AllOrNothing.
func ParseFailurePolicy(raw string) FailurePolicy {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(BestEffort), "besteffort":
		return BestEffort
	default:
		return AllOrNothing
	}
}

// World holds generation settings for one world.
type World struct {
	WorldID         string
	BranchCount     int
	TokensPerBranch int
	FailurePolicy   FailurePolicy
}

// Defaults returns the settings used when a world has none stored.
func Defaults(worldID string) World {
	return World{
		WorldID:         worldID,
		BranchCount:     DefaultBranchCount,
		TokensPerBranch: DefaultTokensPerBranch,
		FailurePolicy:   AllOrNothing,
	}
}

func (w World) normalized() World {
	if w.BranchCount <= 0 {
		w.BranchCount = DefaultBranchCount
	}
	if w.BranchCount > MaxBranchCount {
		w.BranchCount = MaxBranchCount
	}
	if w.TokensPerBranch <= 0 {
		w.TokensPerBranch = DefaultTokensPerBranch
	}
	w.FailurePolicy = ParseFailurePolicy(string(w.FailurePolicy))
	return w
}

// Provider returns settings for a world. Implementations never fail; missing
// or unreadable settings fall back to defaults.
type Provider interface {
	WorldSettings(ctx context.Context, worldID string) World
}

// StoreProvider reads settings from a SettingsStore.
type StoreProvider struct {
	store storage.SettingsStore
	clock func() time.Time
}

// NewStoreProvider builds a provider over store. A nil clock uses time.Now.
func NewStoreProvider(store storage.SettingsStore, clock func() time.Time) *StoreProvider {
	if clock == nil {
		clock = time.Now
	}
	return &StoreProvider{store: store, clock: clock}
}

// WorldSettings implements Provider.
func (p *StoreProvider) WorldSettings(ctx context.Context, worldID string) World {
	if p == nil || p.store == nil {
		return Defaults(worldID)
	}
	rec, err := p.store.GetSettings(ctx, worldID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("settings: load world %s: %v", worldID, err)
		}
		return Defaults(worldID)
	}
	return World{
		WorldID:         worldID,
		BranchCount:     rec.BranchCount,
		TokensPerBranch: rec.TokensPerBranch,
		FailurePolicy:   FailurePolicy(rec.FailurePolicy),
	}.normalized()
}

// Save stores settings for a world after normalizing them.
func (p *StoreProvider) Save(ctx context.Context, w World) (World, error) {
	w = w.normalized()
	err := p.store.PutSettings(ctx, storage.SettingsRecord{
		WorldID:         w.WorldID,
		BranchCount:     w.BranchCount,
		TokensPerBranch: w.TokensPerBranch,
		FailurePolicy:   string(w.FailurePolicy),
		UpdatedAt:       p.clock().UTC(),
	})
	return w, err
}

// Static is a Provider returning the same settings for every world.
type Static World

// WorldSettings implements Provider.
func (s Static) WorldSettings(_ context.Context, worldID string) World {
	w := World(s)
	w.WorldID = worldID
	return w.normalized()
}
