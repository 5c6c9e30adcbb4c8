package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/gmloop/internal/services/narrator/domain/challenge"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/narrative"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
)

// Writer is the storage surface an import needs.
type Writer interface {
	GetWorld(ctx context.Context, worldID string) (storage.WorldRecord, error)
	PutWorld(ctx context.Context, world storage.WorldRecord) error
	PutScene(ctx context.Context, scene storage.SceneRecord) error
	PutSkill(ctx context.Context, skill storage.SkillRecord) error
	GetEvent(ctx context.Context, worldID, eventID string) (*narrative.NarrativeEvent, error)
	PutEvent(ctx context.Context, event *narrative.NarrativeEvent) error
	PutChain(ctx context.Context, chain storage.ChainRecord) error
	PutChallenge(ctx context.Context, c challenge.Challenge) error
}

// Summary counts imported records.
type Summary struct {
	Scenes     int
	Skills     int
	Events     int
	Chains     int
	Challenges int
}

// Import upserts a catalog. The world is created when missing. Events that
// already exist keep their trigger history so re-imports do not re-arm
// one-shot events; authored repeatability and priority win.
func Import(ctx context.Context, store Writer, c *Catalog) (Summary, error) {
	if store == nil {
		return Summary{}, errors.New("store is required")
	}
	if c == nil {
		return Summary{}, errors.New("catalog is required")
	}
	if err := ensureWorld(ctx, store, c.WorldID); err != nil {
		return Summary{}, err
	}
	var sum Summary
	for _, scene := range c.Scenes {
		if err := store.PutScene(ctx, scene); err != nil {
			return sum, fmt.Errorf("put scene %s: %w", scene.ID, err)
		}
		sum.Scenes++
	}
	for _, skill := range c.Skills {
		if err := store.PutSkill(ctx, skill); err != nil {
			return sum, fmt.Errorf("put skill %s: %w", skill.ID, err)
		}
		sum.Skills++
	}
	if err := upsertEvents(ctx, store, c.Events); err != nil {
		return sum, err
	}
	sum.Events = len(c.Events)
	for _, chain := range c.Chains {
		if err := store.PutChain(ctx, chain); err != nil {
			return sum, fmt.Errorf("put chain %s: %w", chain.ID, err)
		}
		sum.Chains++
	}
	for _, ch := range c.Challenges {
		if err := store.PutChallenge(ctx, ch); err != nil {
			return sum, fmt.Errorf("put challenge %s: %w", ch.ID, err)
		}
		sum.Challenges++
	}
	return sum, nil
}

func ensureWorld(ctx context.Context, store Writer, worldID string) error {
	_, err := store.GetWorld(ctx, worldID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("get world %s: %w", worldID, err)
	}
	if err := store.PutWorld(ctx, storage.WorldRecord{ID: worldID, Name: worldID}); err != nil {
		return fmt.Errorf("create world %s: %w", worldID, err)
	}
	return nil
}

func upsertEvents(ctx context.Context, store Writer, events []*narrative.NarrativeEvent) error {
	for _, e := range events {
		existing, err := store.GetEvent(ctx, e.WorldID, e.ID)
		switch {
		case err == nil:
			st := existing.State()
			st.Repeatability = e.Repeatability()
			st.Priority = e.Priority()
			e.Restore(st)
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("get event %s: %w", e.ID, err)
		}
		if err := store.PutEvent(ctx, e); err != nil {
			return fmt.Errorf("put event %s: %w", e.ID, err)
		}
	}
	return nil
}
