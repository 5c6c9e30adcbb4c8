// Package httpapi exposes the narrator core to game master tools over HTTP
// and streams notifications over websockets.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/louisbranch/gmloop/internal/services/narrator/approval"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
	"github.com/louisbranch/gmloop/internal/services/narrator/notify"
	"github.com/louisbranch/gmloop/internal/services/narrator/orchestrator"
	"github.com/louisbranch/gmloop/internal/services/narrator/queue"
	"github.com/louisbranch/gmloop/internal/services/narrator/settings"
	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
)

// Approvals is the approval surface the API drives.
type Approvals interface {
	Get(ctx context.Context, worldID, id string) (approval.Pending, error)
	ListPending(ctx context.Context, worldID, filter string) ([]approval.Pending, error)
	QueueForApproval(ctx context.Context, p approval.Pending) error
	ProcessDecision(ctx context.Context, worldID, id string, d approval.Decision) (approval.Outcome, error)
	SelectBranch(ctx context.Context, worldID, id, branchID, override string) (approval.Outcome, error)
	Cancel(ctx context.Context, worldID, id string) error
}

// Generation is the queue surface the API drives.
type Generation interface {
	EnqueueBatch(ctx context.Context, worldID string, reqs []queue.Request) (queue.BatchResult, error)
	CancelByCallback(ctx context.Context, callbackID string) int
	Get(itemID string) (queue.Item, error)
	Stats() queue.Stats
}

// Events runs orchestrator passes and records completions.
type Events interface {
	Evaluate(ctx context.Context, req orchestrator.EvaluateRequest) (orchestrator.Result, error)
	Complete(ctx context.Context, req orchestrator.CompleteRequest) (orchestrator.Completion, error)
}

// Settings reads and saves per-world generation settings.
type Settings interface {
	settings.Provider
	Save(ctx context.Context, w settings.World) (settings.World, error)
}

// Changes reads the state-change audit trail.
type Changes interface {
	Read(ctx context.Context, worldID string, limit int) ([]outcome.StateChange, error)
}

// Stream serves a world's notification stream on an upgraded connection.
type Stream interface {
	Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, worldID string, audience notify.Audience) error
}

// Deps wires the router. Changes and Stream are optional.
type Deps struct {
	Approvals  Approvals
	Generation Generation
	Events     Events
	Challenges storage.ChallengeStore
	Settings   Settings
	Changes    Changes
	Stream     Stream
	Tokens     *Tokens
	// NewID generates resolution ids for challenge rolls.
	NewID func() (string, error)
}

type server struct {
	deps Deps
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps) (*gin.Engine, error) {
	switch {
	case deps.Approvals == nil:
		return nil, errors.New("approvals are required")
	case deps.Generation == nil:
		return nil, errors.New("generation queue is required")
	case deps.Events == nil:
		return nil, errors.New("event orchestrator is required")
	case deps.Challenges == nil:
		return nil, errors.New("challenge store is required")
	case deps.Settings == nil:
		return nil, errors.New("settings are required")
	case deps.Tokens == nil:
		return nil, errors.New("token verifier is required")
	case deps.NewID == nil:
		return nil, errors.New("id generator is required")
	}
	s := &server{deps: deps}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/up", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	world := r.Group("/v1/worlds/:world")
	if deps.Stream != nil {
		world.GET("/stream", authorize(deps.Tokens, RoleGM, RolePlayer), s.stream)
	}

	gm := world.Group("", authorize(deps.Tokens, RoleGM))
	gm.GET("/approvals", s.listApprovals)
	gm.GET("/approvals/:id", s.getApproval)
	gm.POST("/approvals/:id/decision", s.decide)
	gm.POST("/approvals/:id/branch", s.selectBranch)
	gm.DELETE("/approvals/:id", s.cancelApproval)

	gm.POST("/challenges/:challenge/resolve", s.resolveChallenge)

	gm.POST("/generation", s.enqueue)
	gm.GET("/generation/stats", s.generationStats)
	gm.GET("/generation/items/:item", s.generationItem)
	gm.DELETE("/generation/callbacks/:callback", s.cancelCallback)

	gm.POST("/evaluate", s.evaluateEvents)
	gm.POST("/events/:event/complete", s.completeEvent)

	gm.GET("/settings", s.getSettings)
	gm.PUT("/settings", s.putSettings)

	if deps.Changes != nil {
		gm.GET("/changes", s.listChanges)
	}
	return r, nil
}

func (s *server) stream(c *gin.Context) {
	audience := notify.AudienceGM
	if claimsFrom(c).Role == RolePlayer {
		audience = notify.AudiencePlayers
	}
	// Serve owns the response once the upgrade starts.
	if err := s.deps.Stream.Serve(c.Request.Context(), c.Writer, c.Request, c.Param("world"), audience); err != nil && !c.Writer.Written() {
		writeError(c, err)
	}
}
