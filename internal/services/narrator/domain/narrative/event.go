package narrative

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LogicKind names a trigger combinator.
type LogicKind string

const (
	LogicAll     LogicKind = "all"
	LogicAny     LogicKind = "any"
	LogicAtLeast LogicKind = "at_least"
)

// TriggerLogic combines per-condition results. Min is only meaningful for
// LogicAtLeast.
type TriggerLogic struct {
	Kind LogicKind
	Min  int
}

// All requires every condition to match.
func All() TriggerLogic { return TriggerLogic{Kind: LogicAll} }

// Any requires at least one condition to match.
func Any() TriggerLogic { return TriggerLogic{Kind: LogicAny} }

// AtLeast requires n or more conditions to match.
func AtLeast(n int) TriggerLogic { return TriggerLogic{Kind: LogicAtLeast, Min: n} }

// ParseLogic reads "all", "any" or "at_least". An empty kind means all.
func ParseLogic(kind string, min int) (TriggerLogic, error) {
	switch LogicKind(strings.ToLower(strings.TrimSpace(kind))) {
	case "", LogicAll:
		return All(), nil
	case LogicAny:
		return Any(), nil
	case LogicAtLeast:
		if min < 1 {
			return TriggerLogic{}, fmt.Errorf("at_least requires a minimum of 1, got %d", min)
		}
		return AtLeast(min), nil
	default:
		return TriggerLogic{}, fmt.Errorf("unknown trigger logic %q", kind)
	}
}

var (
	// ErrEventInactive reports a completion of an event that cannot trigger.
	ErrEventInactive = errors.New("event is not active")
	// ErrUnknownOutcome reports a completion naming an outcome the event lacks.
	ErrUnknownOutcome = errors.New("unknown event outcome")
)

// Repeatability controls whether an event deactivates after triggering.
type Repeatability string

const (
	OneShot    Repeatability = "one_shot"
	Repeatable Repeatability = "repeatable"
)

// Timing delays activation or expires an event, both counted in turns.
// Zero values disable the respective behavior.
type Timing struct {
	DelayTurns  int
	ExpiryTurns int
}

// Outcome is a named consequence branch attached to an event.
type Outcome struct {
	Name        string
	Description string
}

// TriggerStatus records whether and when an event last triggered.
type TriggerStatus struct {
	Triggered       bool
	TriggeredAt     time.Time
	SelectedOutcome string
}

// NarrativeEvent is an authored story beat that activates when its trigger
// conditions hold. Lifecycle fields are private: they change only through
// Trigger, Reset and the setters.
type NarrativeEvent struct {
	ID          string
	WorldID     string
	RegionID    string
	Name        string
	Description string
	Conditions  []TriggerCondition
	Logic       TriggerLogic
	Outcomes    []Outcome
	Timing      Timing
	ChainID     string

	active        bool
	repeatability Repeatability
	priority      int32
	status        TriggerStatus
	triggerCount  int
}

// NewEvent builds an active one-shot event with All logic.
func NewEvent(id, worldID, name string) *NarrativeEvent {
	return &NarrativeEvent{
		ID:            id,
		WorldID:       worldID,
		Name:          name,
		Logic:         All(),
		active:        true,
		repeatability: OneShot,
	}
}

// Clone returns an independent copy of the event.
func (e *NarrativeEvent) Clone() *NarrativeEvent {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Conditions = append([]TriggerCondition(nil), e.Conditions...)
	cp.Outcomes = append([]Outcome(nil), e.Outcomes...)
	return &cp
}

// State is the persisted lifecycle snapshot of an event.
type State struct {
	Active        bool
	Repeatability Repeatability
	Priority      int32
	Status        TriggerStatus
	TriggerCount  int
}

// State returns the lifecycle snapshot for persistence.
func (e *NarrativeEvent) State() State {
	return State{
		Active:        e.active,
		Repeatability: e.repeatability,
		Priority:      e.priority,
		Status:        e.status,
		TriggerCount:  e.triggerCount,
	}
}

// Restore loads a persisted lifecycle snapshot. It is meant for storage
// adapters rehydrating an event, not for gameplay mutations.
func (e *NarrativeEvent) Restore(s State) {
	e.active = s.Active
	e.repeatability = s.Repeatability
	if e.repeatability == "" {
		e.repeatability = OneShot
	}
	e.priority = s.Priority
	e.status = s.Status
	if s.TriggerCount > e.triggerCount {
		e.triggerCount = s.TriggerCount
	}
}

// Validate checks authoring invariants.
func (e *NarrativeEvent) Validate() error {
	if e == nil {
		return errors.New("event is required")
	}
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("event name is required")
	}
	switch e.Logic.Kind {
	case LogicAll, LogicAny:
	case LogicAtLeast:
		if e.Logic.Min < 1 {
			return fmt.Errorf("event %q: at_least requires a minimum of 1", e.Name)
		}
	default:
		return fmt.Errorf("event %q: unknown trigger logic %q", e.Name, e.Logic.Kind)
	}
	seen := make(map[string]struct{}, len(e.Conditions))
	for i, c := range e.Conditions {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("event %q: condition %d has no id", e.Name, i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("event %q: duplicate condition id %q", e.Name, c.ID)
		}
		seen[c.ID] = struct{}{}
		if c.Condition == nil {
			return fmt.Errorf("event %q: condition %q has no predicate", e.Name, c.ID)
		}
	}
	return nil
}

// IsActive reports whether the event can still trigger.
func (e *NarrativeEvent) IsActive() bool { return e.active }

// SetActive toggles activation.
func (e *NarrativeEvent) SetActive(active bool) { e.active = active }

// Repeatability reports whether the event is one-shot or repeatable.
func (e *NarrativeEvent) Repeatability() Repeatability { return e.repeatability }

// SetRepeatability changes how the event behaves after triggering.
func (e *NarrativeEvent) SetRepeatability(r Repeatability) {
	if r != Repeatable {
		r = OneShot
	}
	e.repeatability = r
}

// Priority orders triggered events; higher comes first.
func (e *NarrativeEvent) Priority() int32 { return e.priority }

// SetPriority changes the event priority.
func (e *NarrativeEvent) SetPriority(p int32) { e.priority = p }

// Status returns the last trigger status.
func (e *NarrativeEvent) Status() TriggerStatus { return e.status }

// TriggerCount is the number of times the event has triggered. It never
// decreases.
func (e *NarrativeEvent) TriggerCount() int { return e.triggerCount }

// Trigger records a trigger at the given time with the selected outcome.
// One-shot events deactivate.
func (e *NarrativeEvent) Trigger(at time.Time, outcome string) {
	e.status = TriggerStatus{
		Triggered:       true,
		TriggeredAt:     at,
		SelectedOutcome: outcome,
	}
	e.triggerCount++
	if e.repeatability == OneShot {
		e.active = false
	}
}

// Complete triggers an active event with an optional named outcome.
func (e *NarrativeEvent) Complete(at time.Time, outcome string) error {
	if !e.active {
		return fmt.Errorf("%w: %s", ErrEventInactive, e.ID)
	}
	if outcome != "" {
		if _, ok := e.Outcome(outcome); !ok {
			return fmt.Errorf("%w: %s has no outcome %q", ErrUnknownOutcome, e.ID, outcome)
		}
	}
	e.Trigger(at, outcome)
	return nil
}

// Reset clears the trigger status and reactivates the event. The trigger
// count is kept.
func (e *NarrativeEvent) Reset() {
	e.status = TriggerStatus{}
	e.active = true
}

// Outcome looks up an outcome by name.
func (e *NarrativeEvent) Outcome(name string) (Outcome, bool) {
	for _, o := range e.Outcomes {
		if o.Name == name {
			return o, true
		}
	}
	return Outcome{}, false
}

// CustomDescriptions lists the descriptions of Custom conditions so callers
// can have them judged before evaluation.
func (e *NarrativeEvent) CustomDescriptions() []string {
	var out []string
	for _, c := range e.Conditions {
		if custom, ok := Deref(c.Condition).(Custom); ok && custom.Description != "" {
			out = append(out, custom.Description)
		}
	}
	return out
}
