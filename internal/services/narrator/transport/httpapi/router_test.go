package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/louisbranch/gmloop/internal/services/narrator/approval"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/challenge"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/orchestrator"
	"github.com/louisbranch/gmloop/internal/services/narrator/queue"
	"github.com/louisbranch/gmloop/internal/services/narrator/settings"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage/memory"
)

var fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type apiHarness struct {
	router http.Handler
	tokens *Tokens
	store  *memory.Store
	queue  *queue.Queue
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	store := memory.New(fixedClock)
	if err := store.PutWorld(ctx, storage.WorldRecord{ID: "w1", Name: "Harbor"}); err != nil {
		t.Fatalf("put world: %v", err)
	}
	if err := store.PutCharacter(ctx, storage.CharacterRecord{
		ID:      "pc-1",
		WorldID: "w1",
		Name:    "Ayla",
		Stats:   map[string]int{"hp": 10},
	}); err != nil {
		t.Fatalf("put character: %v", err)
	}
	if err := store.PutSkill(ctx, storage.SkillRecord{ID: "athletics", WorldID: "w1", Name: "Athletics"}); err != nil {
		t.Fatalf("put skill: %v", err)
	}
	if err := store.PutChallenge(ctx, challenge.Challenge{
		ID:      "ch-1",
		WorldID: "w1",
		Name:    "Climb the Wall",
		Skill:   "athletics",
		DC:      12,
		Active:  true,
		Outcomes: challenge.Outcomes{
			Success: challenge.Outcome{Description: "You reach the top."},
			Failure: challenge.Outcome{
				Description: "You fall.",
				Triggers: []outcome.Trigger{
					outcome.ModifyCharacterStat{Character: outcome.ActivePC, Stat: "hp", Delta: -3},
				},
			},
		},
	}); err != nil {
		t.Fatalf("put challenge: %v", err)
	}

	provider := settings.NewStoreProvider(store, fixedClock)
	q := queue.New(queue.Config{Settings: provider, Clock: fixedClock})
	coord := approval.New(approval.Config{
		Journal:   store,
		Executor:  outcome.NewExecutor(store, fixedClock),
		Requester: q,
		Settings:  provider,
		Progress:  store,
		Clock:     fixedClock,
	})
	q.UseSink(coord)

	tokens, err := NewTokens(testSecret, "gmloop-test", fixedClock)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	seq := 0
	router, err := NewRouter(Deps{
		Approvals:  coord,
		Generation: q,
		Events: orchestrator.New(orchestrator.Stores{
			Worlds:     store,
			Characters: store,
			NPCs:       store,
			Events:     store,
			Progress:   store,
		}, fixedClock),
		Challenges: store,
		Settings:   provider,
		Tokens:     tokens,
		NewID: func() (string, error) {
			seq++
			return "res-" + string(rune('0'+seq)), nil
		},
	})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return &apiHarness{router: router, tokens: tokens, store: store, queue: q}
}

func (h *apiHarness) token(t *testing.T, worldID string, role Role) string {
	t.Helper()
	raw, err := h.tokens.Issue(worldID, role, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return raw
}

func (h *apiHarness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestNewRouterRequiresDeps(t *testing.T) {
	if _, err := NewRouter(Deps{}); err == nil {
		t.Fatal("expected error for empty deps")
	}
}

func TestAuthorization(t *testing.T) {
	h := newAPIHarness(t)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "missing token", token: "", want: http.StatusUnauthorized},
		{name: "garbage token", token: "not-a-jwt", want: http.StatusUnauthorized},
		{name: "other world", token: h.token(t, "w2", RoleGM), want: http.StatusForbidden},
		{name: "player role", token: h.token(t, "w1", RolePlayer), want: http.StatusForbidden},
		{name: "game master", token: h.token(t, "w1", RoleGM), want: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(t, http.MethodGet, "/v1/worlds/w1/approvals", tc.token, nil)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestHealthIsPublic(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(t, http.MethodGet, "/up", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("up = %d %q", rec.Code, rec.Body.String())
	}
}

func TestResolveChallengeThenAccept(t *testing.T) {
	h := newAPIHarness(t)
	gm := h.token(t, "w1", RoleGM)

	rec := h.do(t, http.MethodPost, "/v1/worlds/w1/challenges/ch-1/resolve", gm, resolveBody{
		CharacterID: "pc-1",
		Natural:     5,
		Modifier:    "+1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("resolve status = %d (%s)", rec.Code, rec.Body.String())
	}
	var pending approval.Pending
	decode(t, rec, &pending)
	if pending.ResolutionID != "res-1" || pending.SkillName != "Athletics" || pending.Text != "You fall." {
		t.Fatalf("pending = %+v", pending)
	}
	if pending.Roll == nil || pending.Roll.Total != 6 || pending.Roll.Outcome != challenge.Failure {
		t.Fatalf("roll = %+v", pending.Roll)
	}

	rec = h.do(t, http.MethodPost, "/v1/worlds/w1/approvals/res-1/decision", gm, decisionBody{Kind: "accept"})
	if rec.Code != http.StatusOK {
		t.Fatalf("decision status = %d (%s)", rec.Code, rec.Body.String())
	}
	var out approval.Outcome
	decode(t, rec, &out)
	if out.FinalText != "You fall." || len(out.Changes) != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	v, _, err := h.store.CharacterStat(context.Background(), "pc-1", "hp")
	if err != nil || v != 7 {
		t.Fatalf("hp = %d, %v; want 7", v, err)
	}

	rec = h.do(t, http.MethodPost, "/v1/worlds/w1/approvals/res-1/decision", gm, decisionBody{Kind: "accept"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second decision status = %d, want 404", rec.Code)
	}
}

func TestResolveInactiveChallengeConflicts(t *testing.T) {
	h := newAPIHarness(t)
	ctx := context.Background()
	if _, err := h.store.SetChallengeActive(ctx, "w1", "ch-1", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	rec := h.do(t, http.MethodPost, "/v1/worlds/w1/challenges/ch-1/resolve", h.token(t, "w1", RoleGM), resolveBody{
		CharacterID: "pc-1",
		Natural:     10,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (%s)", rec.Code, rec.Body.String())
	}
}

func TestUnknownDecisionKind(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(t, http.MethodPost, "/v1/worlds/w1/approvals/res-1/decision", h.token(t, "w1", RoleGM), decisionBody{Kind: "maybe"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body errorBody
	decode(t, rec, &body)
	if body.Error.Code != "INVALID_INPUT" {
		t.Fatalf("code = %q", body.Error.Code)
	}
}

func TestEnqueueScopesToPathWorld(t *testing.T) {
	h := newAPIHarness(t)
	gm := h.token(t, "w1", RoleGM)

	rec := h.do(t, http.MethodPost, "/v1/worlds/w1/generation", gm, enqueueBody{Requests: []requestJSON{{
		Kind:        string(queue.KindNPCResponse),
		CharacterID: "pc-1",
		CallbackID:  "cb-1",
		NPC:         &npcRequestJSON{NPCID: "npc-1", Prompt: "What news?"},
	}}})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue status = %d (%s)", rec.Code, rec.Body.String())
	}
	var res enqueueResponse
	decode(t, rec, &res)
	if len(res.IDs) != 1 || res.IDs[0] == "" {
		t.Fatalf("ids = %v", res.IDs)
	}

	rec = h.do(t, http.MethodGet, "/v1/worlds/w1/generation/items/"+res.IDs[0], gm, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("item status = %d (%s)", rec.Code, rec.Body.String())
	}
	var item itemJSON
	decode(t, rec, &item)
	if item.State != string(queue.StatePending) || item.CallbackID != "cb-1" {
		t.Fatalf("item = %+v", item)
	}

	rec = h.do(t, http.MethodDelete, "/v1/worlds/w1/generation/callbacks/cb-1", gm, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	var cancelled struct {
		Cancelled int `json:"cancelled"`
	}
	decode(t, rec, &cancelled)
	if cancelled.Cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", cancelled.Cancelled)
	}
}

func TestEnqueueRejectsInvalidBatch(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(t, http.MethodPost, "/v1/worlds/w1/generation", h.token(t, "w1", RoleGM), enqueueBody{Requests: []requestJSON{
		{Kind: string(queue.KindNPCResponse), NPC: &npcRequestJSON{Prompt: "hello"}},
		{Kind: "poem"},
	}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (%s)", rec.Code, rec.Body.String())
	}
	if got := h.queue.Stats().Pending; got != 0 {
		t.Fatalf("pending = %d, want 0", got)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	h := newAPIHarness(t)
	gm := h.token(t, "w1", RoleGM)

	rec := h.do(t, http.MethodGet, "/v1/worlds/w1/settings", gm, nil)
	var got settingsJSON
	decode(t, rec, &got)
	if got.BranchCount != settings.DefaultBranchCount || got.FailurePolicy != string(settings.AllOrNothing) {
		t.Fatalf("defaults = %+v", got)
	}

	rec = h.do(t, http.MethodPut, "/v1/worlds/w1/settings", gm, settingsJSON{
		BranchCount:     4,
		TokensPerBranch: 120,
		FailurePolicy:   "best_effort",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d (%s)", rec.Code, rec.Body.String())
	}
	rec = h.do(t, http.MethodGet, "/v1/worlds/w1/settings", gm, nil)
	decode(t, rec, &got)
	if got.BranchCount != 4 || got.TokensPerBranch != 120 || got.FailurePolicy != string(settings.BestEffort) {
		t.Fatalf("saved = %+v", got)
	}
}

func TestEvaluateWithoutEvents(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(t, http.MethodPost, "/v1/worlds/w1/evaluate", h.token(t, "w1", RoleGM), evaluateBody{CharacterID: "pc-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	var res evaluationJSON
	decode(t, rec, &res)
	if len(res.Triggered) != 0 || res.Candidates != 0 {
		t.Fatalf("evaluation = %+v", res)
	}
}

func TestChangesRouteIsOptional(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(t, http.MethodGet, "/v1/worlds/w1/changes", h.token(t, "w1", RoleGM), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
