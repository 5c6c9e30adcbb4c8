package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/narrative"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newTestStore() *Store {
	return New(func() time.Time { return fixedNow })
}

func TestGetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	if err := store.PutCharacter(ctx, storage.CharacterRecord{ID: "pc-1", Stats: map[string]int{"hp": 10}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	c, _ := store.GetCharacter(ctx, "pc-1")
	c.Stats["hp"] = 1
	again, _ := store.GetCharacter(ctx, "pc-1")
	if again.Stats["hp"] != 10 {
		t.Fatalf("hp = %d, want 10", again.Stats["hp"])
	}
	if _, err := store.GetCharacter(ctx, "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("ghost err = %v", err)
	}
}

func TestListEventsIncludesWorldWideForRegion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	for _, tc := range []struct{ id, region string }{{"a", "docks"}, {"b", ""}, {"c", "market"}} {
		e := narrative.NewEvent(tc.id, "w1", tc.id)
		e.RegionID = tc.region
		if err := store.PutEvent(ctx, e); err != nil {
			t.Fatalf("put %s: %v", tc.id, err)
		}
	}
	got, err := store.ListEvents(ctx, "w1", "docks")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("events = %+v", got)
	}
}

func TestTransferItemMovesOneUnit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	_ = store.PutCharacter(ctx, storage.CharacterRecord{ID: "pc-1", Inventory: []storage.ItemStack{{Name: "Arrow", Quantity: 2}}})
	_ = store.PutCharacter(ctx, storage.CharacterRecord{ID: "pc-2"})

	if ok, err := store.TransferItem(ctx, "pc-1", "pc-2", "ARROW"); err != nil || !ok {
		t.Fatalf("transfer = %v, %v", ok, err)
	}
	from, _ := store.GetCharacter(ctx, "pc-1")
	to, _ := store.GetCharacter(ctx, "pc-2")
	if from.Inventory[0].Quantity != 1 || to.Inventory[0].Quantity != 1 {
		t.Fatalf("from = %+v, to = %+v", from.Inventory, to.Inventory)
	}
	if ok, _ := store.TransferItem(ctx, "pc-1", "ghost", "Arrow"); ok {
		t.Fatal("expected transfer to unknown character to be skipped")
	}
}

func TestAdjustRelationshipUnknownNPC(t *testing.T) {
	store := newTestStore()
	called := false
	_, _, found, err := store.AdjustRelationship(context.Background(), "npc-x", "pc-1", func(v float64) float64 {
		called = true
		return v + 5
	})
	if found || err != nil || called {
		t.Fatalf("adjust found = %v, err = %v, applied = %v", found, err, called)
	}
	if _, found, err := store.Relationship(context.Background(), "npc-x", "pc-1"); found || err != nil {
		t.Fatalf("relationship found = %v, err = %v", found, err)
	}
}

func TestConditionsUpsertByName(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	_ = store.PutCharacter(ctx, storage.CharacterRecord{ID: "pc-1"})
	_, _ = store.AddCondition(ctx, "pc-1", outcome.CharacterCondition{Name: "Blessed", DurationTurns: 1})
	_, _ = store.AddCondition(ctx, "pc-1", outcome.CharacterCondition{Name: "blessed", DurationTurns: 4})
	c, _ := store.GetCharacter(ctx, "pc-1")
	if len(c.Conditions) != 1 || c.Conditions[0].DurationTurns != 4 {
		t.Fatalf("conditions = %+v", c.Conditions)
	}
}

func TestPendingApprovalsFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	for _, rec := range []storage.PendingApprovalRecord{
		{ResolutionID: "r2", WorldID: "w1", Kind: "npc_response", State: "queued", CreatedAt: fixedNow},
		{ResolutionID: "r1", WorldID: "w1", Kind: "challenge_outcome", State: "queued", CreatedAt: fixedNow},
		{ResolutionID: "r3", WorldID: "w2", Kind: "npc_response", State: "queued", CreatedAt: fixedNow},
	} {
		if err := store.PutPendingApproval(ctx, rec); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	got, err := store.ListPendingApprovals(ctx, "w1", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ResolutionID != "r2" || got[1].ResolutionID != "r1" {
		t.Fatalf("order = %+v", got)
	}
	got, err = store.ListPendingApprovals(ctx, "", `kind = "npc_response"`)
	if err != nil || len(got) != 2 {
		t.Fatalf("filtered = %+v, %v", got, err)
	}
	if _, err := store.ListPendingApprovals(ctx, "", "kind ="); !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("bad filter err = %v", err)
	}
	if err := store.DeletePendingApproval(ctx, "r9"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("delete missing err = %v", err)
	}
}

func TestAdjustCharacterStatConcurrent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	if err := store.PutCharacter(ctx, storage.CharacterRecord{ID: "pc-1", Stats: map[string]int{"hp": 100}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, ok, err := store.AdjustCharacterStat(ctx, "pc-1", "hp", -1); err != nil || !ok {
				t.Errorf("adjust = %v, %v", ok, err)
			}
		}()
	}
	wg.Wait()
	if v, _, _ := store.CharacterStat(ctx, "pc-1", "hp"); v != 50 {
		t.Fatalf("hp = %d, want 50", v)
	}
}
