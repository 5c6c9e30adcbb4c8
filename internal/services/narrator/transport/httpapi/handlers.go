package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/services/narrator/approval"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/challenge"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/orchestrator"
	"github.com/louisbranch/gmloop/internal/services/narrator/queue"
	"github.com/louisbranch/gmloop/internal/services/narrator/settings"
)

const defaultChangeLimit = 100

func (s *server) listApprovals(c *gin.Context) {
	pending, err := s.deps.Approvals.ListPending(c.Request.Context(), c.Param("world"), c.Query("filter"))
	if err != nil {
		writeError(c, err)
		return
	}
	if pending == nil {
		pending = []approval.Pending{}
	}
	c.JSON(http.StatusOK, gin.H{"approvals": pending})
}

func (s *server) getApproval(c *gin.Context) {
	p, err := s.deps.Approvals.Get(c.Request.Context(), c.Param("world"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *server) decide(c *gin.Context) {
	var body decisionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	d, err := body.decision()
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := s.deps.Approvals.ProcessDecision(c.Request.Context(), c.Param("world"), c.Param("id"), d)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if d.Kind == approval.DecisionSuggest {
		status = http.StatusAccepted
	}
	c.JSON(status, out)
}

func (s *server) selectBranch(c *gin.Context) {
	var body branchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	out, err := s.deps.Approvals.SelectBranch(c.Request.Context(), c.Param("world"), c.Param("id"), body.BranchID, body.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) cancelApproval(c *gin.Context) {
	if err := s.deps.Approvals.Cancel(c.Request.Context(), c.Param("world"), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) resolveChallenge(c *gin.Context) {
	var body resolveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	if strings.TrimSpace(body.CharacterID) == "" {
		writeError(c, apperrors.New(apperrors.CodeInvalidInput, "character id is required"))
		return
	}
	ctx := c.Request.Context()
	worldID := c.Param("world")
	ch, err := s.deps.Challenges.GetChallenge(ctx, worldID, c.Param("challenge"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !ch.Active {
		writeError(c, apperrors.Newf(apperrors.CodeInvalidState, "challenge %s is not active", ch.ID))
		return
	}
	modifier, err := challenge.ParseModifier(body.Modifier)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := challenge.Resolve(ch, body.Natural, modifier)
	if err != nil {
		writeError(c, err)
		return
	}
	skillName := ""
	if skill, err := s.deps.Challenges.GetSkill(ctx, worldID, ch.Skill); err == nil {
		skillName = skill.Name
	}
	id, err := s.deps.NewID()
	if err != nil {
		writeError(c, err)
		return
	}
	p := approval.ChallengeApproval(id, body.CharacterID, ch, res, skillName)
	if err := s.deps.Approvals.QueueForApproval(ctx, p); err != nil {
		writeError(c, err)
		return
	}
	stored, err := s.deps.Approvals.Get(ctx, worldID, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *server) enqueue(c *gin.Context) {
	var body enqueueBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	if len(body.Requests) == 0 {
		writeError(c, apperrors.New(apperrors.CodeInvalidInput, "at least one request is required"))
		return
	}
	worldID := c.Param("world")
	reqs := make([]queue.Request, 0, len(body.Requests))
	for _, r := range body.Requests {
		reqs = append(reqs, r.request(worldID))
	}
	res, err := s.deps.Generation.EnqueueBatch(c.Request.Context(), worldID, reqs)
	if err != nil {
		writeError(c, err)
		return
	}
	out := enqueueResponse{IDs: res.IDs}
	for _, rej := range res.Rejected {
		out.Rejected = append(out.Rejected, rejectionJSON{
			Index:   rej.Index,
			Code:    string(apperrors.CodeOf(rej.Err)),
			Message: rej.Err.Error(),
		})
	}
	c.JSON(http.StatusAccepted, out)
}

func (s *server) generationStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Generation.Stats())
}

func (s *server) generationItem(c *gin.Context) {
	item, err := s.deps.Generation.Get(c.Param("item"))
	if err == nil && item.Request.WorldID != c.Param("world") {
		err = apperrors.Newf(apperrors.CodeNotFound, "queue item %q not found", c.Param("item"))
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, itemJSONFrom(item))
}

func (s *server) cancelCallback(c *gin.Context) {
	n := s.deps.Generation.CancelByCallback(c.Request.Context(), c.Param("callback"))
	c.JSON(http.StatusOK, gin.H{"cancelled": n})
}

func (s *server) evaluateEvents(c *gin.Context) {
	var body evaluateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.deps.Events.Evaluate(c.Request.Context(), orchestrator.EvaluateRequest{
		WorldID:          c.Param("world"),
		CharacterID:      body.CharacterID,
		RegionID:         body.RegionID,
		RecentTopics:     body.RecentTopics,
		RecentNPCActions: body.RecentNPCActions,
		CustomResults:    body.CustomResults,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, evaluationFrom(res))
}

func (s *server) completeEvent(c *gin.Context) {
	var body completeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	out, err := s.deps.Events.Complete(c.Request.Context(), orchestrator.CompleteRequest{
		WorldID:     c.Param("world"),
		CharacterID: body.CharacterID,
		EventID:     c.Param("event"),
		Outcome:     body.Outcome,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trigger_count": out.TriggerCount, "next_event_id": out.NextEventID})
}

func (s *server) getSettings(c *gin.Context) {
	w := s.deps.Settings.WorldSettings(c.Request.Context(), c.Param("world"))
	c.JSON(http.StatusOK, settingsFrom(w))
}

func (s *server) putSettings(c *gin.Context) {
	var body settingsJSON
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	saved, err := s.deps.Settings.Save(c.Request.Context(), settings.World{
		WorldID:         c.Param("world"),
		BranchCount:     body.BranchCount,
		TokensPerBranch: body.TokensPerBranch,
		FailurePolicy:   settings.ParseFailurePolicy(body.FailurePolicy),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settingsFrom(saved))
}

func (s *server) listChanges(c *gin.Context) {
	limit := defaultChangeLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(c, apperrors.Newf(apperrors.CodeInvalidInput, "invalid limit %q", raw))
			return
		}
		limit = n
	}
	changes, err := s.deps.Changes.Read(c.Request.Context(), c.Param("world"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if changes == nil {
		changes = []outcome.StateChange{}
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}
