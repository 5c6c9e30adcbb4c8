// Package notify carries fire-and-forget notifications from the narrator core
// to game master and player subscribers.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Type names a notification.
type Type string

const (
	GenerationStarted   Type = "generation_started"
	GenerationCompleted Type = "generation_completed"
	GenerationFailed    Type = "generation_failed"
	GenerationCancelled Type = "generation_cancelled"

	ApprovalSubmitted        Type = "approval_submitted"
	ApprovalGenerating       Type = "approval_generating"
	ApprovalSuggestionsReady Type = "approval_suggestions_ready"
	ApprovalResolved         Type = "approval_resolved"
	ApprovalCancelled        Type = "approval_cancelled"
	ApprovalFailed           Type = "approval_failed"

	StateChanged Type = "state_changed"
)

// Audience selects who may receive a notification. Players only ever see
// final resolved outcomes.
type Audience string

const (
	AudienceGM      Audience = "gm"
	AudiencePlayers Audience = "players"
)

// Notification is one broadcast event.
type Notification struct {
	Type         Type            `json:"type"`
	WorldID      string          `json:"world_id"`
	Audience     Audience        `json:"audience"`
	ResolutionID string          `json:"resolution_id,omitempty"`
	ItemID       string          `json:"item_id,omitempty"`
	CallbackID   string          `json:"callback_id,omitempty"`
	CharacterID  string          `json:"character_id,omitempty"`
	Message      string          `json:"message,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	At           time.Time       `json:"at"`
}

// WithPayload returns n with v encoded as its payload. Encoding failures
// leave the payload empty.
func (n Notification) WithPayload(v any) Notification {
	if b, err := json.Marshal(v); err == nil {
		n.Payload = b
	}
	return n
}

// Emitter publishes notifications. Implementations must not block callers on
// slow subscribers.
type Emitter interface {
	Emit(ctx context.Context, n Notification)
}

// Nop drops every notification.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(context.Context, Notification) {}

// Fanout emits to several emitters in order.
type Fanout []Emitter

// Emit implements Emitter.
func (f Fanout) Emit(ctx context.Context, n Notification) {
	for _, e := range f {
		if e != nil {
			e.Emit(ctx, n)
		}
	}
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Notification
}

// Emit implements Emitter.
func (r *Recorder) Emit(_ context.Context, n Notification) {
	r.mu.Lock()
	r.events = append(r.events, n)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded.
func (r *Recorder) Events() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.events...)
}

// OfType returns recorded notifications of one type.
func (r *Recorder) OfType(t Type) []Notification {
	var out []Notification
	for _, n := range r.Events() {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}
