package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/challenge"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/narrative"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "narrator.sqlite")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	store.WithClock(func() time.Time { return fixedNow })
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestCharacterRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	in := storage.CharacterRecord{
		ID:        "pc-1",
		WorldID:   "w1",
		Name:      "Aria",
		Stats:     map[string]int{"hp": 10},
		Inventory: []storage.ItemStack{{Name: "Rope", Quantity: 2}},
		SheetJSON: `{"class":"ranger"}`,
	}
	if err := store.PutCharacter(ctx, in); err != nil {
		t.Fatalf("put character: %v", err)
	}
	got, err := store.GetCharacter(ctx, "pc-1")
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if got.Name != "Aria" || got.Stats["hp"] != 10 || len(got.Inventory) != 1 || got.Inventory[0].Quantity != 2 {
		t.Fatalf("character = %+v", got)
	}
	if !got.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("updated at = %v, want %v", got.UpdatedAt, fixedNow)
	}
	if _, err := store.GetCharacter(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing character err = %v", err)
	}
}

func TestEventsKeepAuthoringOrderAndRegionScope(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for _, tc := range []struct{ id, region string }{
		{"ev-b", "docks"},
		{"ev-a", ""},
		{"ev-c", "market"},
	} {
		e := narrative.NewEvent(tc.id, "w1", tc.id)
		e.RegionID = tc.region
		if err := store.PutEvent(ctx, e); err != nil {
			t.Fatalf("put event %s: %v", tc.id, err)
		}
	}
	// Updating keeps the original position.
	again := narrative.NewEvent("ev-b", "w1", "renamed")
	again.RegionID = "docks"
	if err := store.PutEvent(ctx, again); err != nil {
		t.Fatalf("update event: %v", err)
	}

	all, err := store.ListEvents(ctx, "w1", "")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(all) != 3 || all[0].ID != "ev-b" || all[1].ID != "ev-a" || all[2].ID != "ev-c" {
		t.Fatalf("order = %v", eventIDs(all))
	}
	if all[0].Name != "renamed" {
		t.Fatalf("name = %q", all[0].Name)
	}

	docks, err := store.ListEvents(ctx, "w1", "docks")
	if err != nil {
		t.Fatalf("list docks: %v", err)
	}
	if got := eventIDs(docks); len(got) != 2 || got[0] != "ev-b" || got[1] != "ev-a" {
		t.Fatalf("docks = %v", got)
	}

	if err := store.DeleteEvent(ctx, "w1", "ev-a"); err != nil {
		t.Fatalf("delete event: %v", err)
	}
	if err := store.DeleteEvent(ctx, "w1", "ev-a"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func eventIDs(events []*narrative.NarrativeEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func TestMarkEventTriggeredPersistsLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if err := store.PutEvent(ctx, narrative.NewEvent("ev-1", "w1", "Ambush")); err != nil {
		t.Fatalf("put event: %v", err)
	}
	found, err := store.MarkEventTriggered(ctx, "w1", "ev-1")
	if err != nil || !found {
		t.Fatalf("mark triggered = %v, %v", found, err)
	}
	got, err := store.GetEvent(ctx, "w1", "ev-1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got.TriggerCount() != 1 {
		t.Fatalf("trigger count = %d", got.TriggerCount())
	}
	found, err = store.MarkEventTriggered(ctx, "w1", "missing")
	if err != nil || found {
		t.Fatalf("missing event = %v, %v", found, err)
	}
}

func TestChallengeOutcomeTriggersRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	crit := challenge.Outcome{Description: "A perfect climb.", Triggers: []outcome.Trigger{
		outcome.GiveItem{ItemName: "Eagle Feather"},
	}}
	in := challenge.Challenge{
		ID:      "ch-1",
		WorldID: "w1",
		Name:    "Cliff",
		Skill:   "athletics",
		DC:      14,
		Active:  true,
		Outcomes: challenge.Outcomes{
			Success: challenge.Outcome{Description: "You climb.", Triggers: []outcome.Trigger{
				outcome.RevealInformation{Info: "A cave mouth", Persist: true},
			}},
			Failure: challenge.Outcome{Description: "You fall.", Triggers: []outcome.Trigger{
				outcome.ModifyCharacterStat{Stat: "hp", Delta: -3},
			}},
			CriticalSuccess: &crit,
		},
	}
	if err := store.PutChallenge(ctx, in); err != nil {
		t.Fatalf("put challenge: %v", err)
	}
	got, err := store.GetChallenge(ctx, "w1", "ch-1")
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if got.DC != 14 || !got.Active || got.Outcomes.CriticalFailure != nil {
		t.Fatalf("challenge = %+v", got)
	}
	mod, ok := got.Outcomes.Failure.Triggers[0].(outcome.ModifyCharacterStat)
	if !ok || mod.Delta != -3 {
		t.Fatalf("failure trigger = %#v", got.Outcomes.Failure.Triggers)
	}
	if got.Outcomes.CriticalSuccess == nil || len(got.Outcomes.CriticalSuccess.Triggers) != 1 {
		t.Fatalf("critical success = %+v", got.Outcomes.CriticalSuccess)
	}

	found, err := store.SetChallengeActive(ctx, "w1", "ch-1", false)
	if err != nil || !found {
		t.Fatalf("disable = %v, %v", found, err)
	}
	got, _ = store.GetChallenge(ctx, "w1", "ch-1")
	if got.Active {
		t.Fatal("expected challenge disabled")
	}
}

func TestWorldStateMutations(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	mustPut := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	mustPut(store.PutWorld(ctx, storage.WorldRecord{ID: "w1"}))
	mustPut(store.PutScene(ctx, storage.SceneRecord{ID: "s1", WorldID: "w1"}))
	mustPut(store.PutScene(ctx, storage.SceneRecord{ID: "s2", WorldID: "w2"}))
	mustPut(store.PutCharacter(ctx, storage.CharacterRecord{ID: "pc-1", WorldID: "w1", Description: "Tall.", Stats: map[string]int{"hp": 10}}))
	mustPut(store.PutCharacter(ctx, storage.CharacterRecord{ID: "pc-2", WorldID: "w1"}))
	mustPut(store.PutNPC(ctx, storage.NPCRecord{ID: "npc-1", WorldID: "w1"}))

	if old, updated, ok, err := store.AdjustCharacterStat(ctx, "pc-1", "hp", -3); err != nil || !ok || old != 10 || updated != 7 {
		t.Fatalf("adjust stat = %d, %d, %v, %v", old, updated, ok, err)
	}
	if v, ok, _ := store.CharacterStat(ctx, "pc-1", "hp"); !ok || v != 7 {
		t.Fatalf("stat = %d, %v", v, ok)
	}
	if _, _, ok, err := store.AdjustCharacterStat(ctx, "pc-1", "luck", 1); err != nil || ok {
		t.Fatalf("missing stat = %v, %v", ok, err)
	}
	if _, _, ok, err := store.AdjustCharacterStat(ctx, "ghost", "hp", 1); err != nil || ok {
		t.Fatalf("ghost stat = %v, %v", ok, err)
	}

	if ok, err := store.SetCurrentScene(ctx, "w1", "s2"); err != nil || ok {
		t.Fatalf("foreign scene = %v, %v", ok, err)
	}
	if ok, err := store.SetCurrentScene(ctx, "w1", "s1"); err != nil || !ok {
		t.Fatalf("scene = %v, %v", ok, err)
	}
	w, _ := store.GetWorld(ctx, "w1")
	if w.CurrentSceneID != "s1" {
		t.Fatalf("current scene = %q", w.CurrentSceneID)
	}

	for i := 0; i < 2; i++ {
		if ok, err := store.AddItem(ctx, "pc-1", outcome.Item{Name: "Torch"}); err != nil || !ok {
			t.Fatalf("add item = %v, %v", ok, err)
		}
	}
	if ok, err := store.TransferItem(ctx, "pc-1", "pc-2", "torch"); err != nil || !ok {
		t.Fatalf("transfer = %v, %v", ok, err)
	}
	giver, _ := store.GetCharacter(ctx, "pc-1")
	taker, _ := store.GetCharacter(ctx, "pc-2")
	if len(giver.Inventory) != 1 || giver.Inventory[0].Quantity != 1 {
		t.Fatalf("giver inventory = %+v", giver.Inventory)
	}
	if len(taker.Inventory) != 1 || taker.Inventory[0].Name != "Torch" {
		t.Fatalf("taker inventory = %+v", taker.Inventory)
	}
	if ok, _ := store.TransferItem(ctx, "pc-2", "pc-1", "sword"); ok {
		t.Fatal("expected missing item transfer to be skipped")
	}

	plus := func(d float64) func(float64) float64 { return func(v float64) float64 { return v + d } }
	if _, updated, ok, err := store.AdjustRelationship(ctx, "npc-1", "pc-1", plus(25)); err != nil || !ok || updated != 25 {
		t.Fatalf("adjust relationship = %v, %v, %v", updated, ok, err)
	}
	if v, ok, _ := store.Relationship(ctx, "npc-1", "pc-1"); !ok || v != 25 {
		t.Fatalf("relationship = %v, %v", v, ok)
	}
	if _, _, ok, err := store.AdjustRelationship(ctx, "ghost", "pc-1", plus(1)); err != nil || ok {
		t.Fatalf("ghost relationship = %v, %v", ok, err)
	}
	if _, _, ok, err := store.AdjustNPCOpinion(ctx, "npc-1", "pc-2", "stole a torch", func(v int) int { return v - 4 }); err != nil || !ok {
		t.Fatalf("adjust opinion = %v, %v", ok, err)
	}
	if v, ok, _ := store.NPCOpinion(ctx, "npc-1", "pc-2"); !ok || v != -4 {
		t.Fatalf("opinion = %d, %v", v, ok)
	}
	if ok, _ := store.SetNPCMotivation(ctx, "npc-1", "revenge"); !ok {
		t.Fatal("expected motivation update")
	}

	if ok, _ := store.AppendCharacterDescription(ctx, "pc-1", " Scarred. "); !ok {
		t.Fatal("expected description update")
	}
	if ok, _ := store.AddCondition(ctx, "pc-1", outcome.CharacterCondition{Name: "Poisoned", DurationTurns: 2}); !ok {
		t.Fatal("expected condition added")
	}
	if ok, _ := store.AddCondition(ctx, "pc-1", outcome.CharacterCondition{Name: "poisoned", DurationTurns: 5}); !ok {
		t.Fatal("expected condition replaced")
	}
	giver, _ = store.GetCharacter(ctx, "pc-1")
	if giver.Description != "Tall.\n\nScarred." {
		t.Fatalf("description = %q", giver.Description)
	}
	if len(giver.Conditions) != 1 || giver.Conditions[0].DurationTurns != 5 {
		t.Fatalf("conditions = %+v", giver.Conditions)
	}
	if ok, _ := store.RemoveCondition(ctx, "pc-1", "POISONED"); !ok {
		t.Fatal("expected condition removed")
	}
	if ok, _ := store.RemoveCondition(ctx, "pc-1", "POISONED"); ok {
		t.Fatal("expected second removal to report absent")
	}

	if err := store.RevealInformation(ctx, "w1", "pc-1", "The duke is a fraud.", true); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	lore, err := store.ListLore(ctx, "w1")
	if err != nil || len(lore) != 1 || !lore[0].Persisted {
		t.Fatalf("lore = %+v, %v", lore, err)
	}
}

func TestPendingApprovalJournal(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := fixedNow
	records := []storage.PendingApprovalRecord{
		{ResolutionID: "r1", WorldID: "w1", CharacterID: "pc-1", Kind: "npc_response", State: "queued", Payload: []byte(`{}`), CreatedAt: base},
		{ResolutionID: "r2", WorldID: "w1", CharacterID: "pc-2", Kind: "challenge_outcome", State: "suggestions_ready", Payload: []byte(`{}`), CreatedAt: base.Add(time.Minute)},
		{ResolutionID: "r3", WorldID: "w2", CharacterID: "pc-3", Kind: "npc_response", State: "queued", Payload: []byte(`{}`), CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, rec := range records {
		if err := store.PutPendingApproval(ctx, rec); err != nil {
			t.Fatalf("put %s: %v", rec.ResolutionID, err)
		}
	}

	w1, err := store.ListPendingApprovals(ctx, "w1", "")
	if err != nil {
		t.Fatalf("list w1: %v", err)
	}
	if len(w1) != 2 || w1[0].ResolutionID != "r1" || w1[1].ResolutionID != "r2" {
		t.Fatalf("w1 = %+v", w1)
	}

	all, err := store.ListPendingApprovals(ctx, "", `kind = "npc_response"`)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(all) != 2 || all[0].ResolutionID != "r1" || all[1].ResolutionID != "r3" {
		t.Fatalf("filtered = %+v", all)
	}

	if _, err := store.ListPendingApprovals(ctx, "w1", "kind = "); !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("bad filter err = %v", err)
	}

	// Updates keep the original creation time.
	updated := records[0]
	updated.State = "generating_suggestions"
	updated.CreatedAt = base.Add(time.Hour)
	updated.UpdatedAt = base.Add(time.Hour)
	if err := store.PutPendingApproval(ctx, updated); err != nil {
		t.Fatalf("update: %v", err)
	}
	w1, _ = store.ListPendingApprovals(ctx, "w1", "")
	if w1[0].ResolutionID != "r1" || w1[0].State != "generating_suggestions" || !w1[0].CreatedAt.Equal(base) {
		t.Fatalf("updated = %+v", w1[0])
	}

	if err := store.DeletePendingApproval(ctx, "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeletePendingApproval(ctx, "r1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestSettingsAndProgress(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, err := store.GetSettings(ctx, "w1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing settings err = %v", err)
	}
	if err := store.PutSettings(ctx, storage.SettingsRecord{WorldID: "w1", BranchCount: 4, TokensPerBranch: 200, FailurePolicy: "best_effort"}); err != nil {
		t.Fatalf("put settings: %v", err)
	}
	rec, err := store.GetSettings(ctx, "w1")
	if err != nil || rec.BranchCount != 4 || rec.FailurePolicy != "best_effort" {
		t.Fatalf("settings = %+v, %v", rec, err)
	}

	if err := store.RecordChallengeCompletion(ctx, storage.ChallengeCompletionRecord{WorldID: "w1", CharacterID: "pc-1", ChallengeID: "ch-1", Success: true}); err != nil {
		t.Fatalf("record challenge: %v", err)
	}
	if err := store.RecordEventCompletion(ctx, storage.EventCompletionRecord{WorldID: "w1", CharacterID: "pc-2", EventID: "ev-1", Outcome: "ally", Turn: 3}); err != nil {
		t.Fatalf("record event: %v", err)
	}
	challenges, _ := store.ListChallengeCompletions(ctx, "w1", "pc-1")
	if len(challenges) != 1 || !challenges[0].Success || !challenges[0].CompletedAt.Equal(fixedNow) {
		t.Fatalf("challenge completions = %+v", challenges)
	}
	events, _ := store.ListEventCompletions(ctx, "w1", "")
	if len(events) != 1 || events[0].Outcome != "ally" || events[0].Turn != 3 {
		t.Fatalf("event completions = %+v", events)
	}
	if none, _ := store.ListEventCompletions(ctx, "w1", "pc-1"); len(none) != 0 {
		t.Fatalf("pc-1 event completions = %+v", none)
	}
}

func TestCancelledContext(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.GetWorld(ctx, "w1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestConcurrentStatDeltasAllLand(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	if err := store.PutCharacter(ctx, storage.CharacterRecord{ID: "pc-1", WorldID: "w1", Stats: map[string]int{"hp": 100}}); err != nil {
		t.Fatalf("put character: %v", err)
	}
	x := outcome.NewExecutor(store, func() time.Time { return fixedNow })
	scope := outcome.Scope{WorldID: "w1", ActiveCharacterID: "pc-1"}

	const n = 60
	changes := make(chan outcome.StateChange, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := x.ExecuteTriggers(ctx, scope, []outcome.Trigger{
				outcome.ModifyCharacterStat{Character: outcome.ActivePC, Stat: "hp", Delta: -1},
			})
			if len(batch.Warnings) != 0 {
				t.Errorf("warnings = %v", batch.Warnings)
			}
			for _, c := range batch.Changes {
				changes <- c
			}
		}()
	}
	wg.Wait()
	close(changes)

	seen := map[float64]bool{}
	for c := range changes {
		if c.NewValue != c.OldValue-1 {
			t.Fatalf("change %+v is not a -1 step", c)
		}
		if seen[c.OldValue] {
			t.Fatalf("old value %v reported twice", c.OldValue)
		}
		seen[c.OldValue] = true
	}
	if len(seen) != n {
		t.Fatalf("changes = %d, want %d", len(seen), n)
	}
	if v, _, _ := store.CharacterStat(ctx, "pc-1", "hp"); v != 100-n {
		t.Fatalf("hp = %d, want %d", v, 100-n)
	}
}

func TestCompleteEventIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	e := narrative.NewEvent("patrol", "w1", "Patrol")
	e.SetRepeatability(narrative.Repeatable)
	e.Outcomes = []narrative.Outcome{{Name: "spotted"}}
	if err := store.PutEvent(ctx, e); err != nil {
		t.Fatalf("put event: %v", err)
	}

	const n = 25
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.CompleteEvent(ctx, "w1", "patrol", fixedNow, "spotted"); err != nil {
				t.Errorf("complete: %v", err)
			}
		}()
	}
	wg.Wait()
	got, err := store.GetEvent(ctx, "w1", "patrol")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got.TriggerCount() != n || got.Status().SelectedOutcome != "spotted" {
		t.Fatalf("count = %d, status = %+v", got.TriggerCount(), got.Status())
	}

	if _, err := store.CompleteEvent(ctx, "w1", "patrol", fixedNow, "nope"); !errors.Is(err, narrative.ErrUnknownOutcome) {
		t.Fatalf("unknown outcome err = %v", err)
	}
	if err := store.SetEventActive(ctx, "w1", "patrol", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := store.CompleteEvent(ctx, "w1", "patrol", fixedNow, ""); !errors.Is(err, narrative.ErrEventInactive) {
		t.Fatalf("inactive err = %v", err)
	}
	if _, err := store.CompleteEvent(ctx, "w1", "ghost", fixedNow, ""); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}
