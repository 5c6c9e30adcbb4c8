package orchestrator

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/narrative"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/louisbranch/gmloop/internal/services/narrator/orchestrator"

// Stores groups the read ports a pass needs.
type Stores struct {
	Worlds     storage.WorldStore
	Characters storage.CharacterStore
	NPCs       storage.NPCStore
	Events     storage.EventStore
	Progress   storage.ProgressStore
}

// EvaluateRequest scopes one evaluation pass.
type EvaluateRequest struct {
	WorldID          string
	CharacterID      string
	RegionID         string
	RecentTopics     []string
	RecentNPCActions []string
	// CustomResults are verdicts for Custom conditions computed out of band,
	// keyed by condition description.
	CustomResults map[string]bool
}

// TriggeredEvent pairs a triggered event with its evaluation.
type TriggeredEvent struct {
	Event      *narrative.NarrativeEvent
	Evaluation narrative.TriggerEvaluation
}

// Result is the outcome of one pass. Triggered is sorted by descending
// priority, ties keeping candidate order.
type Result struct {
	Triggered []TriggeredEvent
	// Candidates counts events that passed activation and timing filters.
	Candidates int
	// Degraded lists sub-fetches that failed and were defaulted.
	Degraded []string
}

// Orchestrator runs evaluation passes.
type Orchestrator struct {
	stores Stores
	clock  func() time.Time
	tracer trace.Tracer
}

// New builds an orchestrator. A nil clock uses time.Now.
func New(stores Stores, clock func() time.Time) *Orchestrator {
	if clock == nil {
		clock = time.Now
	}
	return &Orchestrator{stores: stores, clock: clock, tracer: otel.Tracer(tracerName)}
}

// Evaluate builds a context and returns the triggered candidate events. A
// missing world yields an empty result.
func (o *Orchestrator) Evaluate(ctx context.Context, req EvaluateRequest) (Result, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Evaluate", trace.WithAttributes(
		attribute.String("world_id", req.WorldID),
		attribute.String("region_id", req.RegionID),
	))
	defer span.End()

	if req.WorldID == "" {
		return Result{}, apperrors.New(apperrors.CodeInvalidInput, "world id is required")
	}
	world, err := o.stores.Worlds.GetWorld(ctx, req.WorldID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("orchestrator: load world %s: %v", req.WorldID, err)
		}
		return Result{}, nil
	}

	var result Result
	events, err := o.stores.Events.ListEvents(ctx, req.WorldID, req.RegionID)
	if err != nil {
		log.Printf("orchestrator: list events %s/%s: %v", req.WorldID, req.RegionID, err)
		result.Degraded = append(result.Degraded, "events")
		return result, nil
	}
	candidates := filterCandidates(events, world.TurnCount)
	result.Candidates = len(candidates)
	if len(candidates) == 0 {
		return result, nil
	}

	tctx, degraded := o.buildContext(ctx, req, world, candidates)
	result.Degraded = append(result.Degraded, degraded...)

	for _, event := range candidates {
		eval := narrative.Evaluate(event, tctx)
		if eval.IsTriggered {
			result.Triggered = append(result.Triggered, TriggeredEvent{Event: event, Evaluation: eval})
		}
	}
	sort.SliceStable(result.Triggered, func(i, j int) bool {
		return result.Triggered[i].Event.Priority() > result.Triggered[j].Event.Priority()
	})
	span.SetAttributes(attribute.Int("triggered", len(result.Triggered)))
	return result, nil
}

// filterCandidates keeps active events inside their timing window.
func filterCandidates(events []*narrative.NarrativeEvent, turn int) []*narrative.NarrativeEvent {
	out := make([]*narrative.NarrativeEvent, 0, len(events))
	for _, e := range events {
		if !e.IsActive() {
			continue
		}
		if turn < e.Timing.DelayTurns {
			continue
		}
		if e.Timing.ExpiryTurns > 0 && turn > e.Timing.ExpiryTurns {
			continue
		}
		out = append(out, e)
	}
	return out
}

// BuildContext assembles the trigger context for a request without
// evaluating events. A missing world is NOT_FOUND.
func (o *Orchestrator) BuildContext(ctx context.Context, req EvaluateRequest) (*narrative.TriggerContext, error) {
	world, err := o.stores.Worlds.GetWorld(ctx, req.WorldID)
	if err != nil {
		return nil, err
	}
	tctx, _ := o.buildContext(ctx, req, world, nil)
	return tctx, nil
}

func (o *Orchestrator) buildContext(ctx context.Context, req EvaluateRequest, world storage.WorldRecord, candidates []*narrative.NarrativeEvent) (*narrative.TriggerContext, []string) {
	tctx := narrative.NewTriggerContext()
	var degraded []string
	degrade := func(what string, err error) {
		log.Printf("orchestrator: %s for world %s: %v", what, req.WorldID, err)
		degraded = append(degraded, what)
	}

	tctx.TurnCount = world.TurnCount
	tctx.TimeOfDay = world.TimeOfDay
	for _, flag := range world.Flags {
		tctx.Flags[flag] = true
	}
	tctx.RecentTopics = req.RecentTopics
	tctx.RecentNPCActions = req.RecentNPCActions
	for k, v := range req.CustomResults {
		tctx.CustomResults[k] = v
	}

	if req.CharacterID != "" {
		character, err := o.stores.Characters.GetCharacter(ctx, req.CharacterID)
		if err != nil {
			degrade("character", err)
		} else {
			tctx.CurrentLocationID = character.LocationID
			for _, stack := range character.Inventory {
				tctx.AddItems(stack.Name, stack.Quantity)
			}
			for stat, v := range character.Stats {
				tctx.CharacterStats[stat] = v
			}
			tctx.Compendium = CompendiumFromSheet(character.SheetJSON)
		}
	}

	if completions, err := o.stores.Progress.ListEventCompletions(ctx, req.WorldID, req.CharacterID); err != nil {
		degrade("completed events", err)
	} else {
		for _, rec := range completions {
			tctx.CompletedEvents[rec.EventID] = narrative.CompletedEvent{Outcome: rec.Outcome, Turn: rec.Turn}
		}
	}

	if completions, err := o.stores.Progress.ListChallengeCompletions(ctx, req.WorldID, req.CharacterID); err != nil {
		degrade("completed challenges", err)
	} else {
		for _, rec := range completions {
			tctx.RecordChallenge(rec.ChallengeID, rec.Success)
		}
	}

	if npcs, err := o.stores.NPCs.ListNPCsInRegion(ctx, req.WorldID, req.RegionID); err != nil {
		degrade("relationships", err)
	} else {
		for _, npc := range npcs {
			tctx.Relationships[npc.ID] = npc.Relationships[req.CharacterID]
		}
	}
	// NPCs referenced outside the region are fetched one by one; unknown
	// dispositions are neutral.
	for _, npcID := range referencedNPCs(candidates) {
		if _, ok := tctx.Relationships[npcID]; ok {
			continue
		}
		npc, err := o.stores.NPCs.GetNPC(ctx, npcID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				degrade("relationship "+npcID, err)
			}
			tctx.Relationships[npcID] = 0
			continue
		}
		tctx.Relationships[npcID] = npc.Relationships[req.CharacterID]
	}
	return tctx, degraded
}

func referencedNPCs(events []*narrative.NarrativeEvent) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range events {
		for _, tc := range e.Conditions {
			rel, ok := narrative.Deref(tc.Condition).(narrative.RelationshipThreshold)
			if !ok || rel.NPCID == "" || seen[rel.NPCID] {
				continue
			}
			seen[rel.NPCID] = true
			out = append(out, rel.NPCID)
		}
	}
	return out
}

// CustomDescriptions lists Custom condition descriptions across a region's
// active events so an out-of-band judge can pre-compute CustomResults.
func (o *Orchestrator) CustomDescriptions(ctx context.Context, worldID, regionID string) ([]string, error) {
	events, err := o.stores.Events.ListEvents(ctx, worldID, regionID)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, e := range events {
		if !e.IsActive() {
			continue
		}
		for _, d := range e.CustomDescriptions() {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	return out, nil
}
