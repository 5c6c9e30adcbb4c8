package outcome

import (
	"context"
	"fmt"
	"log"
	"time"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
)

const (
	// RelationshipMin and RelationshipMax bound NPC sentiment toward a character.
	RelationshipMin = -100.0
	RelationshipMax = 100.0
	// OpinionMin and OpinionMax bound an NPC's opinion of another character.
	OpinionMin = -100
	OpinionMax = 100
)

// Scope carries the identities an execution resolves symbolic references
// against.
type Scope struct {
	WorldID           string
	ActiveCharacterID string
	// NPCID is the NPC in dialogue; tool calls that omit an NPC target it.
	NPCID string
}

// Result reports one executed instruction.
type Result struct {
	Description string
	Changes     []StateChange
	Skipped     bool
}

// Batch aggregates independent executions.
type Batch struct {
	Changes  []StateChange
	Warnings []string
}

// Executor applies triggers and tool calls to a WorldState.
type Executor struct {
	state WorldState
	clock func() time.Time
}

// NewExecutor builds an executor. A nil clock uses time.Now.
func NewExecutor(state WorldState, clock func() time.Time) *Executor {
	if clock == nil {
		clock = time.Now
	}
	return &Executor{state: state, clock: clock}
}

func (x *Executor) now() time.Time {
	return x.clock().UTC()
}

func resolveCharacter(ref string, scope Scope) string {
	if ref == "" || ref == ActivePC {
		return scope.ActiveCharacterID
	}
	return ref
}

func resolveNPC(ref string, scope Scope) string {
	if ref == "" {
		return scope.NPCID
	}
	return ref
}

func skipped(format string, args ...any) Result {
	msg := fmt.Sprintf(format, args...)
	log.Printf("outcome: skipped: %s", msg)
	return Result{Description: msg, Skipped: true}
}

func execErr(err error, format string, args ...any) error {
	return apperrors.Wrap(apperrors.CodeExecutionError, fmt.Sprintf(format, args...), err)
}

// ExecuteTriggers runs every trigger independently. Failures become warnings.
func (x *Executor) ExecuteTriggers(ctx context.Context, scope Scope, triggers []Trigger) Batch {
	var batch Batch
	for _, trigger := range triggers {
		result, err := x.ExecuteTrigger(ctx, scope, trigger)
		if err != nil {
			log.Printf("outcome: trigger %s failed: %v", kindOf(trigger), err)
			batch.Warnings = append(batch.Warnings, err.Error())
			continue
		}
		if result.Skipped {
			batch.Warnings = append(batch.Warnings, result.Description)
		}
		batch.Changes = append(batch.Changes, result.Changes...)
	}
	return batch
}

// ExecuteToolCalls runs every tool call independently. Failures become
// warnings.
func (x *Executor) ExecuteToolCalls(ctx context.Context, scope Scope, calls []ToolCall) Batch {
	var batch Batch
	for _, call := range calls {
		result, err := x.ExecuteToolCall(ctx, scope, call)
		if err != nil {
			log.Printf("outcome: tool call %s failed: %v", toolOf(call), err)
			batch.Warnings = append(batch.Warnings, err.Error())
			continue
		}
		if result.Skipped {
			batch.Warnings = append(batch.Warnings, result.Description)
		}
		batch.Changes = append(batch.Changes, result.Changes...)
	}
	return batch
}

func kindOf(t Trigger) TriggerKind {
	if t == nil {
		return "<nil>"
	}
	return t.TriggerKind()
}

func toolOf(c ToolCall) ToolName {
	if c == nil {
		return "<nil>"
	}
	return c.Tool()
}

// ExecuteTrigger applies one outcome trigger.
func (x *Executor) ExecuteTrigger(ctx context.Context, scope Scope, trigger Trigger) (Result, error) {
	if x == nil || x.state == nil {
		return Result{}, apperrors.New(apperrors.CodeExecutionError, "world state is not configured")
	}
	switch t := trigger.(type) {
	case RevealInformation:
		if err := x.state.RevealInformation(ctx, scope.WorldID, scope.ActiveCharacterID, t.Info, t.Persist); err != nil {
			return Result{}, execErr(err, "reveal information")
		}
		return x.single(fmt.Sprintf("revealed: %s", t.Info), StateChange{
			Kind:        ChangeInfoRevealed,
			WorldID:     scope.WorldID,
			CharacterID: scope.ActiveCharacterID,
			Text:        t.Info,
		}), nil
	case EnableChallenge:
		return x.setChallenge(ctx, scope, t.ChallengeID, true)
	case DisableChallenge:
		return x.setChallenge(ctx, scope, t.ChallengeID, false)
	case ModifyCharacterStat:
		return x.adjustStat(ctx, scope, t.Character, t.Stat, t.Delta)
	case StartScene:
		found, err := x.state.SetCurrentScene(ctx, scope.WorldID, t.SceneID)
		if err != nil {
			return Result{}, execErr(err, "trigger scene %s", t.SceneID)
		}
		if !found {
			return skipped("scene %q not found", t.SceneID), nil
		}
		return x.single(fmt.Sprintf("scene %s started", t.SceneID), StateChange{
			Kind:     ChangeSceneTriggered,
			WorldID:  scope.WorldID,
			TargetID: t.SceneID,
		}), nil
	case GiveItem:
		return x.giveItem(ctx, scope, "", Item{Name: t.ItemName, Description: t.ItemDescription})
	case CustomTrigger:
		return Result{Description: t.Description}, nil
	case nil:
		return skipped("nil trigger"), nil
	default:
		return skipped("unsupported trigger %s", trigger.TriggerKind()), nil
	}
}

// ExecuteToolCall applies one dialogue tool call.
func (x *Executor) ExecuteToolCall(ctx context.Context, scope Scope, call ToolCall) (Result, error) {
	if x == nil || x.state == nil {
		return Result{}, apperrors.New(apperrors.CodeExecutionError, "world state is not configured")
	}
	switch c := call.(type) {
	case GiveItemCall:
		return x.giveItem(ctx, scope, c.Recipient, Item{Name: c.ItemName, Description: c.Description})
	case RevealInfoCall:
		return x.ExecuteTrigger(ctx, scope, RevealInformation{Info: c.Info, Persist: c.Importance == "high"})
	case ChangeRelationshipCall:
		return x.changeRelationship(ctx, scope, c)
	case TriggerEventCall:
		found, err := x.state.MarkEventTriggered(ctx, scope.WorldID, c.EventID)
		if err != nil {
			return Result{}, execErr(err, "trigger event %s", c.EventID)
		}
		if !found {
			return skipped("event %q not found", c.EventID), nil
		}
		return x.single(fmt.Sprintf("event %s triggered", c.EventID), StateChange{
			Kind:     ChangeEventTriggered,
			WorldID:  scope.WorldID,
			TargetID: c.EventID,
			Text:     c.Description,
		}), nil
	case ModifyNPCMotivationCall:
		npcID := resolveNPC(c.NPCID, scope)
		found, err := x.state.SetNPCMotivation(ctx, npcID, c.Motivation)
		if err != nil {
			return Result{}, execErr(err, "modify npc motivation %s", npcID)
		}
		if !found {
			return skipped("npc %q not found", npcID), nil
		}
		return x.single(fmt.Sprintf("npc %s motivation: %s", npcID, c.Motivation), StateChange{
			Kind:    ChangeNPCMotivationChanged,
			WorldID: scope.WorldID,
			NPCID:   npcID,
			Text:    c.Motivation,
		}), nil
	case ModifyCharacterDescriptionCall:
		characterID := resolveCharacter(c.Character, scope)
		found, err := x.state.AppendCharacterDescription(ctx, characterID, c.Change)
		if err != nil {
			return Result{}, execErr(err, "modify character description %s", characterID)
		}
		if !found {
			return skipped("character %q not found", characterID), nil
		}
		return x.single(fmt.Sprintf("character %s description updated", characterID), StateChange{
			Kind:        ChangeCharacterDescriptionUpdate,
			WorldID:     scope.WorldID,
			CharacterID: characterID,
			Text:        c.Change,
		}), nil
	case ModifyNPCOpinionCall:
		return x.changeOpinion(ctx, scope, c)
	case TransferItemCall:
		from := resolveCharacter(c.From, scope)
		to := resolveCharacter(c.To, scope)
		found, err := x.state.TransferItem(ctx, from, to, c.ItemName)
		if err != nil {
			return Result{}, execErr(err, "transfer item %s", c.ItemName)
		}
		if !found {
			return skipped("item %q not held by %q or recipient %q unknown", c.ItemName, from, to), nil
		}
		return x.single(fmt.Sprintf("%s moved from %s to %s", c.ItemName, from, to), StateChange{
			Kind:        ChangeItemTransferred,
			WorldID:     scope.WorldID,
			CharacterID: from,
			TargetID:    to,
			Subject:     c.ItemName,
		}), nil
	case AddConditionCall:
		characterID := resolveCharacter(c.Character, scope)
		found, err := x.state.AddCondition(ctx, characterID, CharacterCondition{
			Name:          c.Condition,
			Description:   c.Description,
			DurationTurns: c.DurationTurns,
		})
		if err != nil {
			return Result{}, execErr(err, "add condition %s", c.Condition)
		}
		if !found {
			return skipped("character %q not found", characterID), nil
		}
		return x.single(fmt.Sprintf("%s gains %s", characterID, c.Condition), StateChange{
			Kind:        ChangeConditionAdded,
			WorldID:     scope.WorldID,
			CharacterID: characterID,
			Subject:     c.Condition,
			Text:        c.Description,
		}), nil
	case RemoveConditionCall:
		characterID := resolveCharacter(c.Character, scope)
		found, err := x.state.RemoveCondition(ctx, characterID, c.Condition)
		if err != nil {
			return Result{}, execErr(err, "remove condition %s", c.Condition)
		}
		if !found {
			return skipped("condition %q not present on %q", c.Condition, characterID), nil
		}
		return x.single(fmt.Sprintf("%s loses %s", characterID, c.Condition), StateChange{
			Kind:        ChangeConditionRemoved,
			WorldID:     scope.WorldID,
			CharacterID: characterID,
			Subject:     c.Condition,
		}), nil
	case UpdateCharacterStatCall:
		return x.adjustStat(ctx, scope, c.Character, c.Stat, c.Delta)
	case nil:
		return skipped("nil tool call"), nil
	default:
		return skipped("unsupported tool %s", call.Tool()), nil
	}
}

func (x *Executor) single(description string, change StateChange) Result {
	change.At = x.now()
	return Result{Description: description, Changes: []StateChange{change}}
}

func (x *Executor) setChallenge(ctx context.Context, scope Scope, challengeID string, active bool) (Result, error) {
	found, err := x.state.SetChallengeActive(ctx, scope.WorldID, challengeID, active)
	if err != nil {
		return Result{}, execErr(err, "set challenge %s active=%t", challengeID, active)
	}
	if !found {
		return skipped("challenge %q not found", challengeID), nil
	}
	kind, verb := ChangeChallengeEnabled, "enabled"
	if !active {
		kind, verb = ChangeChallengeDisabled, "disabled"
	}
	return x.single(fmt.Sprintf("challenge %s %s", challengeID, verb), StateChange{
		Kind:     kind,
		WorldID:  scope.WorldID,
		TargetID: challengeID,
	}), nil
}

// adjustStat applies an additive delta; stats are never overwritten.
func (x *Executor) adjustStat(ctx context.Context, scope Scope, ref, stat string, delta int) (Result, error) {
	characterID := resolveCharacter(ref, scope)
	current, next, found, err := x.state.AdjustCharacterStat(ctx, characterID, stat, delta)
	if err != nil {
		return Result{}, execErr(err, "adjust stat %s of %s", stat, characterID)
	}
	if !found {
		return skipped("stat %q not found on character %q", stat, characterID), nil
	}
	return x.single(fmt.Sprintf("%s %s %d -> %d", characterID, stat, current, next), StateChange{
		Kind:        ChangeCharacterStatUpdated,
		WorldID:     scope.WorldID,
		CharacterID: characterID,
		Subject:     stat,
		OldValue:    float64(current),
		NewValue:    float64(next),
		Delta:       float64(delta),
	}), nil
}

func (x *Executor) giveItem(ctx context.Context, scope Scope, ref string, item Item) (Result, error) {
	characterID := resolveCharacter(ref, scope)
	found, err := x.state.AddItem(ctx, characterID, item)
	if err != nil {
		return Result{}, execErr(err, "give item %s", item.Name)
	}
	if !found {
		return skipped("character %q not found", characterID), nil
	}
	return x.single(fmt.Sprintf("%s receives %s", characterID, item.Name), StateChange{
		Kind:        ChangeItemAdded,
		WorldID:     scope.WorldID,
		CharacterID: characterID,
		Subject:     item.Name,
		Text:        item.Description,
	}), nil
}

func (x *Executor) changeRelationship(ctx context.Context, scope Scope, c ChangeRelationshipCall) (Result, error) {
	delta, err := SignedDelta(c.Direction, c.Magnitude)
	if err != nil {
		return skipped("change relationship: %v", err), nil
	}
	npcID := resolveNPC(c.NPCID, scope)
	characterID := scope.ActiveCharacterID
	current, next, found, err := x.state.AdjustRelationship(ctx, npcID, characterID, func(v float64) float64 {
		return clampFloat(v+float64(delta), RelationshipMin, RelationshipMax)
	})
	if err != nil {
		return Result{}, execErr(err, "adjust relationship %s/%s", npcID, characterID)
	}
	if !found {
		return skipped("npc %q not found", npcID), nil
	}
	return x.single(fmt.Sprintf("%s toward %s: %.0f -> %.0f", npcID, characterID, current, next), StateChange{
		Kind:        ChangeRelationshipChanged,
		WorldID:     scope.WorldID,
		CharacterID: characterID,
		NPCID:       npcID,
		Text:        c.Reason,
		OldValue:    current,
		NewValue:    next,
		Delta:       float64(delta),
	}), nil
}

func (x *Executor) changeOpinion(ctx context.Context, scope Scope, c ModifyNPCOpinionCall) (Result, error) {
	delta, err := SignedDelta(c.Direction, c.Magnitude)
	if err != nil {
		return skipped("modify npc opinion: %v", err), nil
	}
	npcID := resolveNPC(c.NPCID, scope)
	targetID := resolveCharacter(c.Target, scope)
	current, next, found, err := x.state.AdjustNPCOpinion(ctx, npcID, targetID, c.Reason, func(v int) int {
		return clampInt(v+delta, OpinionMin, OpinionMax)
	})
	if err != nil {
		return Result{}, execErr(err, "adjust opinion %s/%s", npcID, targetID)
	}
	if !found {
		return skipped("npc %q not found", npcID), nil
	}
	return x.single(fmt.Sprintf("%s opinion of %s: %d -> %d", npcID, targetID, current, next), StateChange{
		Kind:     ChangeNPCOpinionChanged,
		WorldID:  scope.WorldID,
		NPCID:    npcID,
		TargetID: targetID,
		Text:     c.Reason,
		OldValue: float64(current),
		NewValue: float64(next),
		Delta:    float64(delta),
	}), nil
}

func clampFloat(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
