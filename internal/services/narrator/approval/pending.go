package approval

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/platform/id"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/challenge"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/generation"
	"github.com/louisbranch/gmloop/internal/services/narrator/queue"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
)

// Kind names what a pending approval holds.
type Kind string

const (
	KindChallengeOutcome Kind = "challenge_outcome"
	KindNPCResponse      Kind = "npc_response"
)

// State is the review state of a stored entry. Resolved and cancelled
// entries are removed rather than stored.
type State string

const (
	StateQueued     State = "queued"
	StateGenerating State = "generating_suggestions"
	StateReady      State = "suggestions_ready"
)

// Roll holds the dice facts of a challenge resolution.
type Roll struct {
	Natural  int                   `json:"natural"`
	Modifier int                   `json:"modifier"`
	Total    int                   `json:"total"`
	DC       int                   `json:"dc"`
	Outcome  challenge.OutcomeType `json:"outcome"`
}

// Pending is a generated result awaiting game master review.
type Pending struct {
	ResolutionID  string `json:"resolution_id"`
	WorldID       string `json:"world_id"`
	CharacterID   string `json:"character_id,omitempty"`
	Kind          Kind   `json:"kind"`
	State         State  `json:"state"`
	ChallengeID   string `json:"challenge_id,omitempty"`
	ChallengeName string `json:"challenge_name,omitempty"`
	SkillID       string `json:"skill_id,omitempty"`
	SkillName     string `json:"skill_name,omitempty"`
	EventID       string `json:"event_id,omitempty"`
	EventName     string `json:"event_name,omitempty"`
	NPCID         string `json:"npc_id,omitempty"`
	Roll          *Roll  `json:"roll,omitempty"`
	// Prompt is what the player said or did; Text is the proposed narration.
	Prompt              string                          `json:"prompt,omitempty"`
	Text                string                          `json:"text"`
	Triggers            []outcome.Trigger               `json:"-"`
	ToolCalls           []outcome.ToolCall              `json:"-"`
	UnknownTools        []generation.UnknownTool        `json:"unknown_tools,omitempty"`
	ChallengeSuggestion *generation.ChallengeSuggestion `json:"challenge_suggestion,omitempty"`
	EventSuggestion     *generation.EventSuggestion     `json:"event_suggestion,omitempty"`
	Guidance            string                          `json:"guidance,omitempty"`
	Branching           bool                            `json:"branching,omitempty"`
	SuggestionItemID    string                          `json:"suggestion_item_id,omitempty"`
	Suggestions         []string                        `json:"suggestions,omitempty"`
	Branches            []queue.Branch                  `json:"branches,omitempty"`
	CreatedAt           time.Time                       `json:"created_at"`
	UpdatedAt           time.Time                       `json:"updated_at"`
}

type pendingFields Pending

type pendingWire struct {
	pendingFields
	Triggers  json.RawMessage `json:"triggers,omitempty"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

// MarshalJSON encodes triggers and tool calls as typed envelopes.
func (p Pending) MarshalJSON() ([]byte, error) {
	triggers, err := outcome.MarshalTriggers(p.Triggers)
	if err != nil {
		return nil, err
	}
	calls, err := outcome.MarshalToolCalls(p.ToolCalls)
	if err != nil {
		return nil, err
	}
	return json.Marshal(pendingWire{pendingFields: pendingFields(p), Triggers: triggers, ToolCalls: calls})
}

// UnmarshalJSON decodes the output of MarshalJSON.
func (p *Pending) UnmarshalJSON(data []byte) error {
	var w pendingWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	triggers, err := outcome.UnmarshalTriggers(w.Triggers)
	if err != nil {
		return err
	}
	calls, err := outcome.UnmarshalToolCalls(w.ToolCalls)
	if err != nil {
		return err
	}
	*p = Pending(w.pendingFields)
	p.Triggers = triggers
	p.ToolCalls = calls
	return nil
}

// Clone returns a copy that shares no slices with p.
func (p Pending) Clone() Pending {
	p.Triggers = slices.Clone(p.Triggers)
	p.ToolCalls = slices.Clone(p.ToolCalls)
	p.UnknownTools = slices.Clone(p.UnknownTools)
	p.Suggestions = slices.Clone(p.Suggestions)
	p.Branches = slices.Clone(p.Branches)
	if p.Roll != nil {
		roll := *p.Roll
		p.Roll = &roll
	}
	return p
}

func (p Pending) validate() error {
	if err := id.ValidateResolution(p.ResolutionID); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "invalid pending approval", err)
	}
	if strings.TrimSpace(p.WorldID) == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "world id is required")
	}
	switch p.Kind {
	case KindChallengeOutcome, KindNPCResponse:
	default:
		return apperrors.Newf(apperrors.CodeInvalidInput, "unknown approval kind %q", p.Kind)
	}
	return nil
}

// settled is the state an entry returns to when no generation is running.
func (p Pending) settled() State {
	if len(p.Suggestions) > 0 || len(p.Branches) > 0 {
		return StateReady
	}
	return StateQueued
}

// Branch returns a stored branch by id.
func (p Pending) Branch(id string) (queue.Branch, bool) {
	for _, b := range p.Branches {
		if b.ID == id {
			return b, true
		}
	}
	return queue.Branch{}, false
}

// ChallengeApproval builds the pending entry for a resolved challenge roll.
// The selected outcome's triggers are carried for execution on approval.
func ChallengeApproval(resolutionID, characterID string, c challenge.Challenge, res challenge.Resolution, skillName string) Pending {
	if skillName == "" {
		skillName = c.Skill
	}
	return Pending{
		ResolutionID:  resolutionID,
		WorldID:       c.WorldID,
		CharacterID:   characterID,
		Kind:          KindChallengeOutcome,
		ChallengeID:   c.ID,
		ChallengeName: c.Name,
		SkillID:       c.Skill,
		SkillName:     skillName,
		Roll: &Roll{
			Natural:  res.Natural,
			Modifier: res.Modifier,
			Total:    res.Total,
			DC:       res.DC,
			Outcome:  res.Type,
		},
		Text:     res.Outcome.Description,
		Triggers: slices.Clone(res.Outcome.Triggers),
	}
}

func fromNPCResult(res queue.NPCResult) Pending {
	return Pending{
		ResolutionID:        res.ResolutionID,
		WorldID:             res.WorldID,
		CharacterID:         res.CharacterID,
		Kind:                KindNPCResponse,
		ChallengeID:         res.ChallengeID,
		ChallengeName:       res.ChallengeName,
		SkillID:             res.SkillID,
		SkillName:           res.SkillName,
		EventID:             res.EventID,
		EventName:           res.EventName,
		NPCID:               res.NPCID,
		Prompt:              res.Prompt,
		Text:                res.Text,
		ToolCalls:           res.ToolCalls,
		UnknownTools:        res.UnknownTools,
		ChallengeSuggestion: res.ChallengeSuggestion,
		EventSuggestion:     res.EventSuggestion,
	}
}

// suggestionContext describes the entry for a suggestion prompt.
func suggestionContext(p Pending) string {
	var b strings.Builder
	switch p.Kind {
	case KindChallengeOutcome:
		fmt.Fprintf(&b, "Challenge: %s\n", firstNonEmpty(p.ChallengeName, p.ChallengeID))
		if p.SkillName != "" {
			fmt.Fprintf(&b, "Skill: %s\n", p.SkillName)
		}
		if p.Roll != nil {
			fmt.Fprintf(&b, "Roll: %d %+d = %d against DC %d (%s)\n", p.Roll.Natural, p.Roll.Modifier, p.Roll.Total, p.Roll.DC, p.Roll.Outcome)
		}
	case KindNPCResponse:
		fmt.Fprintf(&b, "NPC: %s\n", p.NPCID)
		if p.Prompt != "" {
			fmt.Fprintf(&b, "Player: %s\n", p.Prompt)
		}
	}
	fmt.Fprintf(&b, "Current narration: %s", p.Text)
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func toRecord(p Pending) (storage.PendingApprovalRecord, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return storage.PendingApprovalRecord{}, apperrors.Wrap(apperrors.CodeExecutionError, "encode pending approval", err)
	}
	return storage.PendingApprovalRecord{
		ResolutionID: p.ResolutionID,
		WorldID:      p.WorldID,
		CharacterID:  p.CharacterID,
		Kind:         string(p.Kind),
		State:        string(p.State),
		Payload:      payload,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}, nil
}

func fromRecord(rec storage.PendingApprovalRecord) (Pending, error) {
	var p Pending
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return Pending{}, fmt.Errorf("decode pending approval %s: %w", rec.ResolutionID, err)
	}
	return p, nil
}
