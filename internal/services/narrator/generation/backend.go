// Package generation defines the generation-backend port and its adapters.
package generation

import (
	"context"

	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
)

// Prompt is one structured generation call.
type Prompt struct {
	WorldID string
	// System carries instructions; Input carries the scene or request text.
	System    string
	Input     string
	MaxTokens int
	// Tools enables dialogue tool calls in the response.
	Tools bool
}

// ChallengeSuggestion is a challenge the backend proposes alongside text.
type ChallengeSuggestion struct {
	ChallengeID string `json:"challenge_id"`
	SkillID     string `json:"skill_id,omitempty"`
	DC          int    `json:"dc,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// EventSuggestion is a narrative event the backend proposes alongside text.
type EventSuggestion struct {
	EventID     string `json:"event_id"`
	Description string `json:"description,omitempty"`
}

// UnknownTool is a tool call that could not be decoded.
type UnknownTool struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	Reason    string `json:"reason"`
}

// Response is a backend result: free text plus optional structured parts.
type Response struct {
	Text                string
	ChallengeSuggestion *ChallengeSuggestion
	EventSuggestion     *EventSuggestion
	ToolCalls           []outcome.ToolCall
	UnknownTools        []UnknownTool
}

// Backend generates content. Errors carry BACKEND_UNAVAILABLE when a retry
// may succeed; any other code is permanent.
type Backend interface {
	Generate(ctx context.Context, prompt Prompt) (Response, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, prompt Prompt) (Response, error)

// Generate implements Backend.
func (f BackendFunc) Generate(ctx context.Context, prompt Prompt) (Response, error) {
	return f(ctx, prompt)
}
