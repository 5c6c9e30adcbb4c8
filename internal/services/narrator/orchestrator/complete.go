package orchestrator

import (
	"context"
	"errors"
	"log"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/narrative"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
)

// CompleteRequest records a character completing an event with an outcome.
type CompleteRequest struct {
	WorldID     string
	CharacterID string
	EventID     string
	Outcome     string
}

// Completion reports what a completion changed.
type Completion struct {
	TriggerCount int
	// NextEventID is the chain successor activated by this completion.
	NextEventID string
}

// Complete triggers an event, records the completion, and activates the next
// event of its chain. An inactive event is INVALID_STATE.
func (o *Orchestrator) Complete(ctx context.Context, req CompleteRequest) (Completion, error) {
	world, err := o.stores.Worlds.GetWorld(ctx, req.WorldID)
	if err != nil {
		return Completion{}, err
	}
	now := o.clock().UTC()
	event, err := o.stores.Events.CompleteEvent(ctx, req.WorldID, req.EventID, now, req.Outcome)
	switch {
	case errors.Is(err, narrative.ErrEventInactive):
		return Completion{}, apperrors.Wrap(apperrors.CodeInvalidState, "complete event", err)
	case errors.Is(err, narrative.ErrUnknownOutcome):
		return Completion{}, apperrors.Wrap(apperrors.CodeInvalidInput, "complete event", err)
	case errors.Is(err, storage.ErrNotFound):
		return Completion{}, err
	case err != nil:
		return Completion{}, apperrors.Wrap(apperrors.CodeExecutionError, "complete event", err)
	}
	if err := o.stores.Progress.RecordEventCompletion(ctx, storage.EventCompletionRecord{
		WorldID:     req.WorldID,
		CharacterID: req.CharacterID,
		EventID:     req.EventID,
		Outcome:     req.Outcome,
		Turn:        world.TurnCount,
		CompletedAt: now,
	}); err != nil {
		return Completion{}, apperrors.Wrap(apperrors.CodeExecutionError, "record completion", err)
	}

	out := Completion{TriggerCount: event.TriggerCount()}
	if event.ChainID == "" {
		return out, nil
	}
	chain, err := o.stores.Events.GetChain(ctx, req.WorldID, event.ChainID)
	if err != nil {
		log.Printf("orchestrator: load chain %s: %v", event.ChainID, err)
		return out, nil
	}
	nextID, ok := chain.Next(req.EventID)
	if !ok {
		return out, nil
	}
	if err := o.stores.Events.SetEventActive(ctx, req.WorldID, nextID, true); err != nil {
		log.Printf("orchestrator: activate chain successor %s: %v", nextID, err)
		return out, nil
	}
	out.NextEventID = nextID
	return out, nil
}
