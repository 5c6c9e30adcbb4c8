package queue

import (
	"strings"
	"time"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/platform/id"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/generation"
)

// Kind names a generation request type.
type Kind string

const (
	KindNPCResponse Kind = "npc_response"
	KindSuggestion  Kind = "suggestion"
)

// NPCResponseRequest asks for an NPC's reply to the active character.
type NPCResponseRequest struct {
	NPCID  string
	Prompt string
	System string
	// Optional references shown to the game master by display name.
	ChallengeID string
	SkillID     string
	EventID     string
	// ResolutionID keys the resulting pending approval; one is generated
	// when empty.
	ResolutionID string
	MaxTokens    int
}

// SuggestionRequest asks for alternatives for one authored field.
type SuggestionRequest struct {
	FieldType FieldType
	Context   string
	Guidance  string
	// ResolutionID routes the result to a pending approval.
	ResolutionID  string
	Count         int
	TokensPerItem int
}

// Request is one unit of queued generation work.
type Request struct {
	Kind        Kind
	WorldID     string
	CharacterID string
	// CallbackID is an external handle used for cancellation.
	CallbackID string
	// Priority orders pending work; higher runs first, ties are FIFO.
	Priority   int
	NPC        *NPCResponseRequest
	Suggestion *SuggestionRequest
}

// Validate rejects structurally invalid requests before they are queued.
// Unknown suggestion field types are not rejected here; they fail when
// processed.
func (r Request) Validate() error {
	if strings.TrimSpace(r.WorldID) == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "world id is required")
	}
	switch r.Kind {
	case KindNPCResponse:
		if r.NPC == nil || strings.TrimSpace(r.NPC.Prompt) == "" {
			return apperrors.New(apperrors.CodeInvalidInput, "npc response requires a prompt")
		}
		if err := validResolution(r.NPC.ResolutionID); err != nil {
			return err
		}
	case KindSuggestion:
		if r.Suggestion == nil || strings.TrimSpace(r.Suggestion.Context) == "" {
			return apperrors.New(apperrors.CodeInvalidInput, "suggestion requires a context")
		}
		if strings.TrimSpace(string(r.Suggestion.FieldType)) == "" {
			return apperrors.New(apperrors.CodeInvalidInput, "suggestion requires a field type")
		}
		if err := validResolution(r.Suggestion.ResolutionID); err != nil {
			return err
		}
	default:
		return apperrors.Newf(apperrors.CodeInvalidInput, "unknown request kind %q", r.Kind)
	}
	return nil
}

// validResolution accepts an empty id, which is optional on requests.
func validResolution(v string) error {
	if v == "" {
		return nil
	}
	if err := id.ValidateResolution(v); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "invalid request", err)
	}
	return nil
}

// State is the lifecycle of a queued item.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Item is a snapshot of a queued request.
type Item struct {
	ID         string
	Request    Request
	State      State
	Error      string
	Cancelled  bool
	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Branch is one structured alternative for an outcome.
type Branch struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Effects     []string `json:"effects,omitempty"`
}

// NPCResult is a generated NPC reply ready for game master review.
type NPCResult struct {
	ItemID              string
	WorldID             string
	CharacterID         string
	CallbackID          string
	ResolutionID        string
	NPCID               string
	Prompt              string
	Text                string
	ChallengeID         string
	ChallengeName       string
	SkillID             string
	SkillName           string
	EventID             string
	EventName           string
	ToolCalls           []outcome.ToolCall
	UnknownTools        []generation.UnknownTool
	ChallengeSuggestion *generation.ChallengeSuggestion
	EventSuggestion     *generation.EventSuggestion
}

// SuggestionResult carries generated alternatives.
type SuggestionResult struct {
	ItemID       string
	WorldID      string
	CallbackID   string
	ResolutionID string
	FieldType    FieldType
	Suggestions  []string
	Branches     []Branch
}
