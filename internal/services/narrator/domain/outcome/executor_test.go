package outcome

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
)

type fakeState struct {
	stats         map[string]map[string]int
	relationships map[string]float64
	npcs          map[string]bool
	opinions      map[string]int
	items         map[string][]Item
	conditions    map[string][]string
	challenges    map[string]bool
	revealed      []string
	statErr       error
	setStatCalls  int
}

func newFakeState() *fakeState {
	return &fakeState{
		stats:         map[string]map[string]int{},
		relationships: map[string]float64{},
		npcs:          map[string]bool{},
		opinions:      map[string]int{},
		items:         map[string][]Item{},
		conditions:    map[string][]string{},
		challenges:    map[string]bool{},
	}
}

func (f *fakeState) RevealInformation(_ context.Context, _, _, info string, _ bool) error {
	f.revealed = append(f.revealed, info)
	return nil
}

func (f *fakeState) SetChallengeActive(_ context.Context, _, id string, active bool) (bool, error) {
	if _, ok := f.challenges[id]; !ok {
		return false, nil
	}
	f.challenges[id] = active
	return true, nil
}

func (f *fakeState) AdjustCharacterStat(_ context.Context, characterID, stat string, delta int) (int, int, bool, error) {
	if f.statErr != nil {
		return 0, 0, false, f.statErr
	}
	v, ok := f.stats[characterID][stat]
	if !ok {
		return 0, 0, false, nil
	}
	f.setStatCalls++
	f.stats[characterID][stat] = v + delta
	return v, v + delta, true, nil
}

func (f *fakeState) SetCurrentScene(context.Context, string, string) (bool, error) {
	return false, nil
}

func (f *fakeState) AddItem(_ context.Context, characterID string, item Item) (bool, error) {
	if _, ok := f.stats[characterID]; !ok {
		return false, nil
	}
	f.items[characterID] = append(f.items[characterID], item)
	return true, nil
}

func (f *fakeState) TransferItem(context.Context, string, string, string) (bool, error) {
	return false, nil
}

func (f *fakeState) AdjustRelationship(_ context.Context, npcID, characterID string, apply func(float64) float64) (float64, float64, bool, error) {
	if !f.npcs[npcID] {
		return 0, 0, false, nil
	}
	k := npcID + "/" + characterID
	old := f.relationships[k]
	f.relationships[k] = apply(old)
	return old, f.relationships[k], true, nil
}

func (f *fakeState) SetNPCMotivation(_ context.Context, npcID, _ string) (bool, error) {
	return f.npcs[npcID], nil
}

func (f *fakeState) AppendCharacterDescription(_ context.Context, characterID, _ string) (bool, error) {
	_, ok := f.stats[characterID]
	return ok, nil
}

func (f *fakeState) AdjustNPCOpinion(_ context.Context, npcID, targetID, _ string, apply func(int) int) (int, int, bool, error) {
	if !f.npcs[npcID] {
		return 0, 0, false, nil
	}
	k := npcID + "/" + targetID
	old := f.opinions[k]
	f.opinions[k] = apply(old)
	return old, f.opinions[k], true, nil
}

func (f *fakeState) AddCondition(_ context.Context, characterID string, c CharacterCondition) (bool, error) {
	if _, ok := f.stats[characterID]; !ok {
		return false, nil
	}
	f.conditions[characterID] = append(f.conditions[characterID], c.Name)
	return true, nil
}

func (f *fakeState) RemoveCondition(_ context.Context, characterID, name string) (bool, error) {
	list := f.conditions[characterID]
	for i, n := range list {
		if n == name {
			f.conditions[characterID] = append(list[:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeState) MarkEventTriggered(context.Context, string, string) (bool, error) {
	return false, nil
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestExecuteTriggerModifyStatIsAdditive(t *testing.T) {
	state := newFakeState()
	state.stats["char-1"] = map[string]int{"strength": 10}
	x := NewExecutor(state, fixedClock)

	result, err := x.ExecuteTrigger(context.Background(), Scope{WorldID: "w1", ActiveCharacterID: "char-1"},
		ModifyCharacterStat{Character: ActivePC, Stat: "strength", Delta: -3})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := state.stats["char-1"]["strength"]; got != 7 {
		t.Fatalf("strength = %d, want 7", got)
	}
	if len(result.Changes) != 1 {
		t.Fatalf("changes = %d, want 1", len(result.Changes))
	}
	change := result.Changes[0]
	if change.Kind != ChangeCharacterStatUpdated || change.Delta != -3 {
		t.Fatalf("change = %+v, want character_stat_updated delta -3", change)
	}
	if !change.At.Equal(fixedClock()) {
		t.Fatalf("at = %v, want %v", change.At, fixedClock())
	}
}

func TestExecuteTriggerMissingStatSkips(t *testing.T) {
	state := newFakeState()
	state.stats["char-1"] = map[string]int{}
	x := NewExecutor(state, fixedClock)

	result, err := x.ExecuteTrigger(context.Background(), Scope{ActiveCharacterID: "char-1"},
		ModifyCharacterStat{Stat: "luck", Delta: 1})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Skipped {
		t.Fatal("expected skip for missing stat")
	}
	if state.setStatCalls != 0 {
		t.Fatalf("set stat calls = %d, want 0", state.setStatCalls)
	}
}

func TestExecuteTriggerStorageFailure(t *testing.T) {
	state := newFakeState()
	state.statErr = errors.New("disk gone")
	x := NewExecutor(state, fixedClock)

	_, err := x.ExecuteTrigger(context.Background(), Scope{ActiveCharacterID: "char-1"},
		ModifyCharacterStat{Stat: "strength", Delta: 1})
	if !apperrors.IsCode(err, apperrors.CodeExecutionError) {
		t.Fatalf("err = %v, want EXECUTION_ERROR", err)
	}
}

func TestExecuteTriggersContinuesAfterFailure(t *testing.T) {
	state := newFakeState()
	state.stats["char-1"] = map[string]int{"strength": 10}
	state.challenges["gate"] = false
	x := NewExecutor(state, fixedClock)

	batch := x.ExecuteTriggers(context.Background(), Scope{WorldID: "w1", ActiveCharacterID: "char-1"}, []Trigger{
		EnableChallenge{ChallengeID: "missing"},
		EnableChallenge{ChallengeID: "gate"},
		RevealInformation{Info: "The vault is beneath the chapel."},
		CustomTrigger{Description: "GM describes the echo"},
	})
	if len(batch.Warnings) != 1 {
		t.Fatalf("warnings = %v, want 1", batch.Warnings)
	}
	if len(batch.Changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(batch.Changes))
	}
	if !state.challenges["gate"] {
		t.Fatal("expected gate enabled")
	}
}

func TestExecuteChangeRelationshipTiers(t *testing.T) {
	tests := []struct {
		name      string
		start     float64
		direction Direction
		magnitude Magnitude
		want      float64
	}{
		{name: "slight improve", start: 0, direction: Improve, magnitude: Slight, want: 10},
		{name: "moderate worsen", start: 0, direction: Worsen, magnitude: Moderate, want: -25},
		{name: "significant improve", start: 20, direction: Improve, magnitude: Significant, want: 70},
		{name: "clamped", start: 90, direction: Improve, magnitude: Significant, want: 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			state := newFakeState()
			state.npcs["npc-1"] = true
			state.relationships["npc-1/char-1"] = tc.start
			x := NewExecutor(state, fixedClock)

			result, err := x.ExecuteToolCall(context.Background(),
				Scope{WorldID: "w1", ActiveCharacterID: "char-1", NPCID: "npc-1"},
				ChangeRelationshipCall{Direction: tc.direction, Magnitude: tc.magnitude})
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if got := state.relationships["npc-1/char-1"]; got != tc.want {
				t.Fatalf("sentiment = %v, want %v", got, tc.want)
			}
			if len(result.Changes) != 1 || result.Changes[0].Kind != ChangeRelationshipChanged {
				t.Fatalf("changes = %+v", result.Changes)
			}
		})
	}
}

func TestExecuteToolCallUnknownNPCSkips(t *testing.T) {
	x := NewExecutor(newFakeState(), fixedClock)
	result, err := x.ExecuteToolCall(context.Background(), Scope{ActiveCharacterID: "char-1"},
		ModifyNPCMotivationCall{NPCID: "ghost", Motivation: "revenge"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Skipped {
		t.Fatal("expected skip")
	}
}

func TestExecuteToolCallsConditions(t *testing.T) {
	state := newFakeState()
	state.stats["char-1"] = map[string]int{}
	x := NewExecutor(state, fixedClock)

	batch := x.ExecuteToolCalls(context.Background(), Scope{ActiveCharacterID: "char-1"}, []ToolCall{
		AddConditionCall{Condition: "poisoned", DurationTurns: 3},
		RemoveConditionCall{Character: ActivePC, Condition: "poisoned"},
		RemoveConditionCall{Condition: "blessed"},
		GiveItemCall{ItemName: "Silver Key"},
	})
	if len(batch.Changes) != 3 {
		t.Fatalf("changes = %d, want 3", len(batch.Changes))
	}
	if len(batch.Warnings) != 1 {
		t.Fatalf("warnings = %v, want 1", batch.Warnings)
	}
	if got := state.items["char-1"]; len(got) != 1 || got[0].Name != "Silver Key" {
		t.Fatalf("items = %+v", got)
	}
}

func TestExecutorWithoutState(t *testing.T) {
	var x *Executor
	if _, err := x.ExecuteTrigger(context.Background(), Scope{}, CustomTrigger{}); err == nil {
		t.Fatal("expected error for nil executor")
	}
}

func TestSignedDeltaRejectsUnknown(t *testing.T) {
	if _, err := SignedDelta("sideways", Slight); err == nil {
		t.Fatal("expected error for unknown direction")
	}
	if _, err := SignedDelta(Improve, "huge"); err == nil {
		t.Fatal("expected error for unknown magnitude")
	}
}
