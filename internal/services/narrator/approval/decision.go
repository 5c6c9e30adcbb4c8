package approval

import (
	"context"
	"fmt"
	"log"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/notify"
	"github.com/louisbranch/gmloop/internal/services/narrator/queue"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
	"go.opentelemetry.io/otel/codes"
)

// DecisionKind names a game master decision.
type DecisionKind string

const (
	DecisionAccept  DecisionKind = "accept"
	DecisionEdit    DecisionKind = "edit"
	DecisionSuggest DecisionKind = "suggest"
)

// Decision is a game master's verdict on a pending entry.
type Decision struct {
	Kind DecisionKind `json:"kind"`
	// Text replaces the narration for Edit.
	Text string `json:"text,omitempty"`
	// Guidance steers regeneration for Suggest.
	Guidance string `json:"guidance,omitempty"`
	// Branching asks Suggest for structured branches instead of free text.
	Branching bool `json:"branching,omitempty"`
}

// Accept approves the proposed text.
func Accept() Decision { return Decision{Kind: DecisionAccept} }

// Edit approves with replacement text.
func Edit(text string) Decision { return Decision{Kind: DecisionEdit, Text: text} }

// Suggest asks for alternatives.
func Suggest(guidance string, branching bool) Decision {
	return Decision{Kind: DecisionSuggest, Guidance: guidance, Branching: branching}
}

// Outcome reports what a decision did.
type Outcome struct {
	ResolutionID string                `json:"resolution_id"`
	State        string                `json:"state"`
	FinalText    string                `json:"final_text,omitempty"`
	Effects      []string              `json:"effects,omitempty"`
	Changes      []outcome.StateChange `json:"changes,omitempty"`
	Warnings     []string              `json:"warnings,omitempty"`
	// SuggestionItemID is the queue item generating suggestions.
	SuggestionItemID string `json:"suggestion_item_id,omitempty"`
}

const (
	outcomeResolved = "resolved"
)

// ProcessDecision applies a decision to an entry of the caller's world.
// Accept and Edit finalize and remove the entry; Suggest starts suggestion
// generation and leaves it pending.
func (c *Coordinator) ProcessDecision(ctx context.Context, worldID, id string, d Decision) (Outcome, error) {
	switch d.Kind {
	case DecisionAccept:
		return c.finalize(ctx, worldID, id, func(p Pending) (string, []string) { return p.Text, nil })
	case DecisionEdit:
		text := trimmed(d.Text)
		if text == "" {
			return Outcome{}, apperrors.New(apperrors.CodeInvalidInput, "edit requires text")
		}
		return c.finalize(ctx, worldID, id, func(Pending) (string, []string) { return text, nil })
	case DecisionSuggest:
		return c.suggest(ctx, worldID, id, d)
	default:
		return Outcome{}, apperrors.Newf(apperrors.CodeInvalidInput, "unknown decision %q", d.Kind)
	}
}

// SelectBranch finalizes using a generated branch. Override text wins, then
// the stored branch description, then the original text.
func (c *Coordinator) SelectBranch(ctx context.Context, worldID, id, branchID, override string) (Outcome, error) {
	return c.finalize(ctx, worldID, id, func(p Pending) (string, []string) {
		if text := trimmed(override); text != "" {
			if b, ok := p.Branch(branchID); ok {
				return text, b.Effects
			}
			return text, nil
		}
		if b, ok := p.Branch(branchID); ok && b.Description != "" {
			return b.Description, b.Effects
		}
		log.Printf("approval: branch %q not found on %s, using original text", branchID, id)
		return p.Text, nil
	})
}

func (c *Coordinator) finalize(ctx context.Context, worldID, id string, finalText func(Pending) (string, []string)) (Outcome, error) {
	ctx, span := c.startSpan(ctx, "approval.finalize", worldID, id)
	defer span.End()

	var p Pending
	err := c.entries.Update(id, func(entry *Pending) (Action, error) {
		if entry.WorldID != worldID {
			return Keep, scopeMismatch(id, worldID)
		}
		if err := c.unpersist(ctx, id); err != nil {
			return Keep, err
		}
		p = *entry
		return Remove, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, err
	}
	if p.State == StateGenerating {
		if r := c.currentRequester(); r != nil {
			r.CancelByCallback(ctx, id)
		}
	}

	text, effects := finalText(p)
	out := Outcome{
		ResolutionID: id,
		State:        outcomeResolved,
		FinalText:    text,
		Effects:      effects,
	}
	c.emit(ctx, p, notify.ApprovalResolved, notify.AudienceGM, "", out)
	c.emit(ctx, p, notify.ApprovalResolved, notify.AudiencePlayers, text, map[string]any{
		"text":    text,
		"effects": effects,
	})

	scope := outcome.Scope{WorldID: p.WorldID, ActiveCharacterID: p.CharacterID, NPCID: p.NPCID}
	if c.executor != nil {
		triggers := c.executor.ExecuteTriggers(ctx, scope, p.Triggers)
		calls := c.executor.ExecuteToolCalls(ctx, scope, p.ToolCalls)
		out.Changes = append(triggers.Changes, calls.Changes...)
		out.Warnings = append(triggers.Warnings, calls.Warnings...)
	} else if len(p.Triggers)+len(p.ToolCalls) > 0 {
		out.Warnings = append(out.Warnings, "no executor configured; outcome effects not applied")
	}
	for _, u := range p.UnknownTools {
		out.Warnings = append(out.Warnings, fmt.Sprintf("unknown tool %q skipped: %s", u.Name, u.Reason))
	}

	if len(out.Changes) > 0 && c.changeLog != nil {
		if err := c.changeLog.Append(ctx, out.Changes); err != nil {
			log.Printf("approval: audit append for %s failed: %v", id, err)
			out.Warnings = append(out.Warnings, "state changes not written to audit log")
		}
	}
	for _, change := range out.Changes {
		c.emit(ctx, p, notify.StateChanged, notify.AudienceGM, "", change)
	}
	if p.Kind == KindChallengeOutcome && c.progress != nil && p.Roll != nil {
		err := c.progress.RecordChallengeCompletion(ctx, storage.ChallengeCompletionRecord{
			WorldID:     p.WorldID,
			CharacterID: p.CharacterID,
			ChallengeID: p.ChallengeID,
			Success:     p.Roll.Outcome.IsSuccess(),
			CompletedAt: c.now(),
		})
		if err != nil {
			log.Printf("approval: record challenge completion for %s: %v", id, err)
			out.Warnings = append(out.Warnings, "challenge completion not recorded")
		}
	}
	for _, w := range out.Warnings {
		log.Printf("approval: %s: warning: %s", id, w)
	}
	log.Printf("approval: resolved %s with %d changes", id, len(out.Changes))
	return out, nil
}

func (c *Coordinator) suggest(ctx context.Context, worldID, id string, d Decision) (Outcome, error) {
	ctx, span := c.startSpan(ctx, "approval.suggest", worldID, id)
	defer span.End()

	requester := c.currentRequester()
	if requester == nil {
		return Outcome{}, apperrors.New(apperrors.CodeInvalidState, "suggestion generation is not configured")
	}
	ws := c.settings.WorldSettings(ctx, worldID)

	var generating Pending
	err := c.entries.Update(id, func(p *Pending) (Action, error) {
		if p.WorldID != worldID {
			return Keep, scopeMismatch(id, worldID)
		}
		if p.State == StateGenerating {
			return Keep, apperrors.Newf(apperrors.CodeInvalidState, "suggestions already generating for %q", id)
		}
		field := queue.FieldOutcomeAlternatives
		if d.Branching {
			field = queue.FieldOutcomeBranches
		}
		itemID, err := requester.Enqueue(ctx, queue.Request{
			Kind:        queue.KindSuggestion,
			WorldID:     p.WorldID,
			CharacterID: p.CharacterID,
			CallbackID:  id,
			Suggestion: &queue.SuggestionRequest{
				FieldType:     field,
				Context:       suggestionContext(*p),
				Guidance:      d.Guidance,
				ResolutionID:  id,
				Count:         ws.BranchCount,
				TokensPerItem: ws.TokensPerBranch,
			},
		})
		if err != nil {
			return Keep, err
		}
		p.State = StateGenerating
		p.Guidance = d.Guidance
		p.Branching = d.Branching
		p.SuggestionItemID = itemID
		p.UpdatedAt = c.now()
		if err := c.persist(ctx, *p); err != nil {
			requester.CancelByCallback(ctx, id)
			return Keep, err
		}
		generating = *p
		return Save, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, err
	}
	c.emit(ctx, generating, notify.ApprovalGenerating, notify.AudienceGM, "", map[string]any{
		"branching": d.Branching,
		"count":     ws.BranchCount,
	})
	return Outcome{
		ResolutionID:     id,
		State:            string(StateGenerating),
		SuggestionItemID: generating.SuggestionItemID,
	}, nil
}
