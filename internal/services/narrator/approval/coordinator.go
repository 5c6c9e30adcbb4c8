// Package approval holds generated results until a game master decides on
// them, then applies the approved outcome to world state.
//
// An entry is created by QueueForApproval and removed exactly once, by a
// finalizing decision or by Cancel. Removal from Entries is the single
// linearization point: a decision that loses the race observes NOT_FOUND
// and never executes triggers. Every operation checks the caller's world
// before touching an entry.
package approval

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/notify"
	"github.com/louisbranch/gmloop/internal/services/narrator/queue"
	"github.com/louisbranch/gmloop/internal/services/narrator/settings"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage/filter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Requester queues suggestion generation.
type Requester interface {
	Enqueue(ctx context.Context, req queue.Request) (string, error)
	CancelByCallback(ctx context.Context, callbackID string) int
}

// ChangeLog records applied state changes.
type ChangeLog interface {
	Append(ctx context.Context, changes []outcome.StateChange) error
}

// Config wires a Coordinator. Only Executor is required.
type Config struct {
	Entries   Entries
	Journal   storage.PendingApprovalStore
	Executor  *outcome.Executor
	Requester Requester
	Settings  settings.Provider
	Emitter   notify.Emitter
	ChangeLog ChangeLog
	Progress  storage.ProgressStore
	Clock     func() time.Time
}

// Coordinator drives the pending-approval state machine.
type Coordinator struct {
	entries   Entries
	journal   storage.PendingApprovalStore
	executor  *outcome.Executor
	settings  settings.Provider
	emitter   notify.Emitter
	changeLog ChangeLog
	progress  storage.ProgressStore
	clock     func() time.Time
	tracer    trace.Tracer

	mu        sync.RWMutex
	requester Requester
}

// New builds a Coordinator.
func New(cfg Config) *Coordinator {
	entries := cfg.Entries
	if entries == nil {
		entries = NewMemoryEntries()
	}
	provider := cfg.Settings
	if provider == nil {
		provider = settings.Static{}
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = notify.Nop{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Coordinator{
		entries:   entries,
		journal:   cfg.Journal,
		executor:  cfg.Executor,
		settings:  provider,
		emitter:   emitter,
		changeLog: cfg.ChangeLog,
		progress:  cfg.Progress,
		clock:     clock,
		tracer:    otel.Tracer("gmloop/narrator/approval"),
		requester: cfg.Requester,
	}
}

// UseRequester attaches the suggestion requester after construction.
func (c *Coordinator) UseRequester(r Requester) {
	c.mu.Lock()
	c.requester = r
	c.mu.Unlock()
}

func (c *Coordinator) currentRequester() Requester {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requester
}

func (c *Coordinator) now() time.Time {
	return c.clock().UTC()
}

func scopeMismatch(id, worldID string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidState,
		fmt.Sprintf("pending approval %q belongs to another world", id),
		map[string]string{"world_id": worldID},
	)
}

func (c *Coordinator) persist(ctx context.Context, p Pending) error {
	if c.journal == nil {
		return nil
	}
	rec, err := toRecord(p)
	if err != nil {
		return err
	}
	if err := c.journal.PutPendingApproval(ctx, rec); err != nil {
		return apperrors.Wrap(apperrors.CodeExecutionError, "persist pending approval", err)
	}
	return nil
}

func (c *Coordinator) unpersist(ctx context.Context, id string) error {
	if c.journal == nil {
		return nil
	}
	if err := c.journal.DeletePendingApproval(ctx, id); err != nil && !apperrors.IsCode(err, apperrors.CodeNotFound) {
		return apperrors.Wrap(apperrors.CodeExecutionError, "delete pending approval", err)
	}
	return nil
}

// QueueForApproval stores p under its resolution id and notifies the game
// master.
func (c *Coordinator) QueueForApproval(ctx context.Context, p Pending) error {
	if err := p.validate(); err != nil {
		return err
	}
	now := c.now()
	p.State = StateQueued
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := c.entries.Insert(p, func(stored Pending) error {
		return c.persist(ctx, stored)
	}); err != nil {
		return err
	}
	log.Printf("approval: queued %s %s for world %s", p.Kind, p.ResolutionID, p.WorldID)
	c.emit(ctx, p, notify.ApprovalSubmitted, notify.AudienceGM, "", p)
	return nil
}

// Get returns a pending entry of the caller's world.
func (c *Coordinator) Get(_ context.Context, worldID, id string) (Pending, error) {
	p, ok := c.entries.Get(id)
	if !ok {
		return Pending{}, notFound(id)
	}
	if p.WorldID != worldID {
		return Pending{}, scopeMismatch(id, worldID)
	}
	return p, nil
}

// ListPending returns the world's pending entries matching an AIP-160
// filter, oldest first.
func (c *Coordinator) ListPending(ctx context.Context, worldID, filterStr string) ([]Pending, error) {
	if c.journal != nil {
		recs, err := c.journal.ListPendingApprovals(ctx, worldID, filterStr)
		if err != nil {
			return nil, err
		}
		out := make([]Pending, 0, len(recs))
		for _, rec := range recs {
			p, err := fromRecord(rec)
			if err != nil {
				log.Printf("approval: skipping unreadable journal entry: %v", err)
				continue
			}
			out = append(out, p)
		}
		return out, nil
	}
	match, err := filter.CompilePendingMatcher(filterStr)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid filter", err)
	}
	var out []Pending
	for _, p := range c.entries.List() {
		if p.WorldID != worldID {
			continue
		}
		if !match(filter.Fields{
			WorldID:     p.WorldID,
			CharacterID: p.CharacterID,
			Kind:        string(p.Kind),
			State:       string(p.State),
			CreateTime:  p.CreatedAt,
			UpdateTime:  p.UpdatedAt,
		}) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ResolutionID < out[j].ResolutionID
	})
	return out, nil
}

// Recover reloads journaled entries. Entries that were generating
// suggestions when the process stopped return to their settled state.
func (c *Coordinator) Recover(ctx context.Context) (int, error) {
	if c.journal == nil {
		return 0, nil
	}
	recs, err := c.journal.ListPendingApprovals(ctx, "", "")
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, rec := range recs {
		p, err := fromRecord(rec)
		if err != nil {
			log.Printf("approval: recover: %v", err)
			continue
		}
		reset := p.State == StateGenerating
		if reset {
			p.State = p.settled()
			p.SuggestionItemID = ""
			p.UpdatedAt = c.now()
		}
		err = c.entries.Insert(p, func(stored Pending) error {
			if !reset {
				return nil
			}
			return c.persist(ctx, stored)
		})
		if err != nil {
			if apperrors.IsCode(err, apperrors.CodeConflict) {
				continue
			}
			return restored, err
		}
		restored++
	}
	if restored > 0 {
		log.Printf("approval: recovered %d pending approvals", restored)
	}
	return restored, nil
}

func (c *Coordinator) emit(ctx context.Context, p Pending, typ notify.Type, audience notify.Audience, message string, payload any) {
	n := notify.Notification{
		Type:         typ,
		WorldID:      p.WorldID,
		Audience:     audience,
		ResolutionID: p.ResolutionID,
		CharacterID:  p.CharacterID,
		Message:      message,
		At:           c.now(),
	}
	if payload != nil {
		n = n.WithPayload(payload)
	}
	c.emitter.Emit(ctx, n)
}

// Cancel removes an entry without applying it and cancels any running
// suggestion generation.
func (c *Coordinator) Cancel(ctx context.Context, worldID, id string) error {
	var removed Pending
	err := c.entries.Update(id, func(p *Pending) (Action, error) {
		if p.WorldID != worldID {
			return Keep, scopeMismatch(id, worldID)
		}
		if err := c.unpersist(ctx, id); err != nil {
			return Keep, err
		}
		removed = *p
		return Remove, nil
	})
	if err != nil {
		return err
	}
	if r := c.currentRequester(); r != nil {
		r.CancelByCallback(ctx, id)
	}
	log.Printf("approval: cancelled %s", id)
	c.emit(ctx, removed, notify.ApprovalCancelled, notify.AudienceGM, "", nil)
	return nil
}

var _ queue.ResultSink = (*Coordinator)(nil)

// SubmitNPCResponse implements queue.ResultSink.
func (c *Coordinator) SubmitNPCResponse(ctx context.Context, res queue.NPCResult) error {
	for _, u := range res.UnknownTools {
		log.Printf("approval: %s carries unknown tool %q: %s", res.ResolutionID, u.Name, u.Reason)
	}
	return c.QueueForApproval(ctx, fromNPCResult(res))
}

// DeliverSuggestions implements queue.ResultSink. Results for entries that
// were resolved or cancelled meanwhile are dropped.
func (c *Coordinator) DeliverSuggestions(ctx context.Context, res queue.SuggestionResult) error {
	var ready Pending
	stale := false
	err := c.entries.Update(res.ResolutionID, func(p *Pending) (Action, error) {
		if p.WorldID != res.WorldID {
			return Keep, scopeMismatch(res.ResolutionID, res.WorldID)
		}
		if p.State != StateGenerating || (p.SuggestionItemID != "" && p.SuggestionItemID != res.ItemID) {
			stale = true
			return Keep, nil
		}
		p.Suggestions = res.Suggestions
		p.Branches = res.Branches
		p.State = StateReady
		p.SuggestionItemID = ""
		p.UpdatedAt = c.now()
		if err := c.persist(ctx, *p); err != nil {
			return Keep, err
		}
		ready = *p
		return Save, nil
	})
	if apperrors.IsCode(err, apperrors.CodeNotFound) {
		log.Printf("approval: dropping suggestions for %s: entry no longer pending", res.ResolutionID)
		return nil
	}
	if err != nil {
		return err
	}
	if stale {
		log.Printf("approval: dropping stale suggestions for %s", res.ResolutionID)
		return nil
	}
	c.emit(ctx, ready, notify.ApprovalSuggestionsReady, notify.AudienceGM, "", map[string]any{
		"suggestions": ready.Suggestions,
		"branches":    ready.Branches,
	})
	return nil
}

// SuggestionsFailed implements queue.ResultSink.
func (c *Coordinator) SuggestionsFailed(ctx context.Context, worldID, resolutionID, reason string) {
	var failed Pending
	changed := false
	err := c.entries.Update(resolutionID, func(p *Pending) (Action, error) {
		if p.WorldID != worldID {
			return Keep, scopeMismatch(resolutionID, worldID)
		}
		if p.State != StateGenerating {
			return Keep, nil
		}
		p.State = p.settled()
		p.SuggestionItemID = ""
		p.UpdatedAt = c.now()
		if err := c.persist(ctx, *p); err != nil {
			return Keep, err
		}
		failed = *p
		changed = true
		return Save, nil
	})
	if err != nil {
		log.Printf("approval: suggestion failure for %s not recorded: %v", resolutionID, err)
		return
	}
	if changed {
		log.Printf("approval: suggestions failed for %s: %s", resolutionID, reason)
		c.emit(ctx, failed, notify.ApprovalFailed, notify.AudienceGM, reason, nil)
	}
}

func (c *Coordinator) startSpan(ctx context.Context, name, worldID, id string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("gmloop.world_id", worldID),
		attribute.String("gmloop.resolution_id", id),
	))
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
