package narrative

import (
	"testing"
	"time"
)

func TestTriggerCountNeverDecreases(t *testing.T) {
	event := NewEvent("evt-1", "world-1", "Bells")
	event.SetRepeatability(Repeatable)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	last := event.TriggerCount()
	for i := 0; i < 3; i++ {
		event.Trigger(at.Add(time.Duration(i)*time.Minute), "rings")
		if event.TriggerCount() < last {
			t.Fatalf("trigger count decreased from %d to %d", last, event.TriggerCount())
		}
		last = event.TriggerCount()
	}
	if last != 3 {
		t.Fatalf("trigger count = %d, want 3", last)
	}

	event.Reset()
	if event.TriggerCount() != 3 {
		t.Fatalf("trigger count after reset = %d, want 3", event.TriggerCount())
	}
	status := event.Status()
	if status.Triggered || !status.TriggeredAt.IsZero() || status.SelectedOutcome != "" {
		t.Fatalf("status after reset = %+v, want zero", status)
	}
}

func TestOneShotDeactivatesAfterTrigger(t *testing.T) {
	event := NewEvent("evt-1", "world-1", "Ambush")
	if !event.IsActive() {
		t.Fatal("expected new event to be active")
	}
	event.Trigger(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), "sprung")
	if event.IsActive() {
		t.Fatal("expected one-shot event to deactivate")
	}
	if got := event.Status().SelectedOutcome; got != "sprung" {
		t.Fatalf("selected outcome = %q, want %q", got, "sprung")
	}
	event.Reset()
	if !event.IsActive() {
		t.Fatal("expected reset to reactivate")
	}
}

func TestRepeatableStaysActive(t *testing.T) {
	event := NewEvent("evt-1", "world-1", "Market day")
	event.SetRepeatability(Repeatable)
	event.Trigger(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), "")
	if !event.IsActive() {
		t.Fatal("expected repeatable event to stay active")
	}
}

func TestRestoreKeepsHigherTriggerCount(t *testing.T) {
	event := NewEvent("evt-1", "world-1", "Restore")
	event.Restore(State{Active: false, Priority: 4, TriggerCount: 2})
	if event.IsActive() || event.Priority() != 4 || event.TriggerCount() != 2 {
		t.Fatalf("restored state = %+v", event.State())
	}
	if event.Repeatability() != OneShot {
		t.Fatalf("repeatability = %q, want %q", event.Repeatability(), OneShot)
	}
	event.Restore(State{TriggerCount: 1})
	if event.TriggerCount() != 2 {
		t.Fatalf("trigger count = %d, want 2", event.TriggerCount())
	}
}

func TestValidate(t *testing.T) {
	valid := NewEvent("evt-1", "world-1", "Valid")
	valid.Conditions = []TriggerCondition{{ID: "a", Condition: FlagSet{Flag: "a"}}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	cases := map[string]func(e *NarrativeEvent){
		"empty name":    func(e *NarrativeEvent) { e.Name = " " },
		"bad at least":  func(e *NarrativeEvent) { e.Logic = AtLeast(0) },
		"unknown logic": func(e *NarrativeEvent) { e.Logic = TriggerLogic{Kind: "most"} },
		"missing id":    func(e *NarrativeEvent) { e.Conditions[0].ID = "" },
		"nil predicate": func(e *NarrativeEvent) { e.Conditions[0].Condition = nil },
		"duplicate id": func(e *NarrativeEvent) {
			e.Conditions = append(e.Conditions, TriggerCondition{ID: "a", Condition: FlagSet{Flag: "b"}})
		},
	}
	for name, mutate := range cases {
		event := NewEvent("evt-1", "world-1", "Valid")
		event.Conditions = []TriggerCondition{{ID: "a", Condition: FlagSet{Flag: "a"}}}
		mutate(event)
		if err := event.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestParseLogic(t *testing.T) {
	if got, err := ParseLogic("", 0); err != nil || got.Kind != LogicAll {
		t.Fatalf("empty logic = %v, %v", got, err)
	}
	if got, err := ParseLogic("ANY", 0); err != nil || got.Kind != LogicAny {
		t.Fatalf("any logic = %v, %v", got, err)
	}
	if got, err := ParseLogic("at_least", 2); err != nil || got != AtLeast(2) {
		t.Fatalf("at least logic = %v, %v", got, err)
	}
	if _, err := ParseLogic("at_least", 0); err == nil {
		t.Fatal("expected error for at_least 0")
	}
	if _, err := ParseLogic("most", 0); err == nil {
		t.Fatal("expected error for unknown logic")
	}
}

func TestCustomDescriptions(t *testing.T) {
	event := NewEvent("evt-1", "world-1", "Custom")
	event.Conditions = []TriggerCondition{
		{ID: "a", Condition: Custom{Description: "tension is high"}},
		{ID: "b", Condition: FlagSet{Flag: "x"}},
		{ID: "c", Condition: &Custom{Description: "the king is lying"}},
	}
	got := event.CustomDescriptions()
	if len(got) != 2 || got[0] != "tension is high" || got[1] != "the king is lying" {
		t.Fatalf("custom descriptions = %v", got)
	}
}
