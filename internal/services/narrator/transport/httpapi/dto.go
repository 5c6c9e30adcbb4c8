package httpapi

import (
	"strings"
	"time"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/services/narrator/approval"
	"github.com/louisbranch/gmloop/internal/services/narrator/orchestrator"
	"github.com/louisbranch/gmloop/internal/services/narrator/queue"
	"github.com/louisbranch/gmloop/internal/services/narrator/settings"
)

type decisionBody struct {
	Kind      string `json:"kind"`
	Text      string `json:"text"`
	Guidance  string `json:"guidance"`
	Branching bool   `json:"branching"`
}

func (b decisionBody) decision() (approval.Decision, error) {
	switch approval.DecisionKind(strings.ToLower(strings.TrimSpace(b.Kind))) {
	case approval.DecisionAccept:
		return approval.Accept(), nil
	case approval.DecisionEdit:
		return approval.Edit(b.Text), nil
	case approval.DecisionSuggest:
		return approval.Suggest(b.Guidance, b.Branching), nil
	default:
		return approval.Decision{}, apperrors.Newf(apperrors.CodeInvalidInput, "unknown decision kind %q", b.Kind)
	}
}

type branchBody struct {
	BranchID string `json:"branch_id"`
	// Text overrides the branch description when set.
	Text string `json:"text"`
}

type resolveBody struct {
	CharacterID string `json:"character_id"`
	Natural     int    `json:"natural"`
	Modifier    string `json:"modifier"`
}

type npcRequestJSON struct {
	NPCID        string `json:"npc_id"`
	Prompt       string `json:"prompt"`
	System       string `json:"system"`
	ChallengeID  string `json:"challenge_id"`
	SkillID      string `json:"skill_id"`
	EventID      string `json:"event_id"`
	ResolutionID string `json:"resolution_id"`
	MaxTokens    int    `json:"max_tokens"`
}

type suggestionRequestJSON struct {
	FieldType     string `json:"field_type"`
	Context       string `json:"context"`
	Guidance      string `json:"guidance"`
	ResolutionID  string `json:"resolution_id"`
	Count         int    `json:"count"`
	TokensPerItem int    `json:"tokens_per_item"`
}

type requestJSON struct {
	Kind        string                 `json:"kind"`
	CharacterID string                 `json:"character_id"`
	CallbackID  string                 `json:"callback_id"`
	Priority    int                    `json:"priority"`
	NPC         *npcRequestJSON        `json:"npc,omitempty"`
	Suggestion  *suggestionRequestJSON `json:"suggestion,omitempty"`
}

// request maps the body to a queue request; the world always comes from the
// path so a token cannot enqueue into another world.
func (r requestJSON) request(worldID string) queue.Request {
	req := queue.Request{
		Kind:        queue.Kind(r.Kind),
		WorldID:     worldID,
		CharacterID: r.CharacterID,
		CallbackID:  r.CallbackID,
		Priority:    r.Priority,
	}
	if r.NPC != nil {
		req.NPC = &queue.NPCResponseRequest{
			NPCID:        r.NPC.NPCID,
			Prompt:       r.NPC.Prompt,
			System:       r.NPC.System,
			ChallengeID:  r.NPC.ChallengeID,
			SkillID:      r.NPC.SkillID,
			EventID:      r.NPC.EventID,
			ResolutionID: r.NPC.ResolutionID,
			MaxTokens:    r.NPC.MaxTokens,
		}
	}
	if r.Suggestion != nil {
		req.Suggestion = &queue.SuggestionRequest{
			FieldType:     queue.FieldType(r.Suggestion.FieldType),
			Context:       r.Suggestion.Context,
			Guidance:      r.Suggestion.Guidance,
			ResolutionID:  r.Suggestion.ResolutionID,
			Count:         r.Suggestion.Count,
			TokensPerItem: r.Suggestion.TokensPerItem,
		}
	}
	return req
}

type enqueueBody struct {
	Requests []requestJSON `json:"requests"`
}

type rejectionJSON struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type enqueueResponse struct {
	IDs      []string        `json:"ids"`
	Rejected []rejectionJSON `json:"rejected,omitempty"`
}

type itemJSON struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	CharacterID string     `json:"character_id,omitempty"`
	CallbackID  string     `json:"callback_id,omitempty"`
	Priority    int        `json:"priority"`
	State       string     `json:"state"`
	Error       string     `json:"error,omitempty"`
	Cancelled   bool       `json:"cancelled,omitempty"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

func itemJSONFrom(item queue.Item) itemJSON {
	return itemJSON{
		ID:          item.ID,
		Kind:        string(item.Request.Kind),
		CharacterID: item.Request.CharacterID,
		CallbackID:  item.Request.CallbackID,
		Priority:    item.Request.Priority,
		State:       string(item.State),
		Error:       item.Error,
		Cancelled:   item.Cancelled,
		EnqueuedAt:  item.EnqueuedAt,
		StartedAt:   optionalTime(item.StartedAt),
		FinishedAt:  optionalTime(item.FinishedAt),
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type evaluateBody struct {
	CharacterID      string          `json:"character_id"`
	RegionID         string          `json:"region_id"`
	RecentTopics     []string        `json:"recent_topics"`
	RecentNPCActions []string        `json:"recent_npc_actions"`
	CustomResults    map[string]bool `json:"custom_results"`
}

type triggeredJSON struct {
	EventID      string   `json:"event_id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Priority     int32    `json:"priority"`
	MatchedIDs   []string `json:"matched_ids"`
	UnmatchedIDs []string `json:"unmatched_ids,omitempty"`
	MatchRatio   float64  `json:"match_ratio"`
}

type evaluationJSON struct {
	Triggered  []triggeredJSON `json:"triggered"`
	Candidates int             `json:"candidates"`
	Degraded   []string        `json:"degraded,omitempty"`
}

func evaluationFrom(res orchestrator.Result) evaluationJSON {
	out := evaluationJSON{
		Triggered:  make([]triggeredJSON, 0, len(res.Triggered)),
		Candidates: res.Candidates,
		Degraded:   res.Degraded,
	}
	for _, t := range res.Triggered {
		out.Triggered = append(out.Triggered, triggeredJSON{
			EventID:      t.Event.ID,
			Name:         t.Event.Name,
			Description:  t.Event.Description,
			Priority:     t.Event.Priority(),
			MatchedIDs:   t.Evaluation.MatchedIDs,
			UnmatchedIDs: t.Evaluation.UnmatchedIDs,
			MatchRatio:   t.Evaluation.MatchRatio,
		})
	}
	return out
}

type completeBody struct {
	CharacterID string `json:"character_id"`
	Outcome     string `json:"outcome"`
}

type settingsJSON struct {
	BranchCount     int    `json:"branch_count"`
	TokensPerBranch int    `json:"tokens_per_branch"`
	FailurePolicy   string `json:"failure_policy"`
}

func settingsFrom(w settings.World) settingsJSON {
	return settingsJSON{
		BranchCount:     w.BranchCount,
		TokensPerBranch: w.TokensPerBranch,
		FailurePolicy:   string(w.FailurePolicy),
	}
}
