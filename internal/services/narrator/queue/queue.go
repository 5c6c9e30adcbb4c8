// Package queue runs generation requests through a bounded worker.
//
// Pending requests are ordered by priority then arrival. The worker takes
// every pending item as soon as it is seen and runs it in its own task;
// tasks acquire a weighted semaphore before calling the backend, so at most
// BatchSize generation calls are in flight at once.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/platform/id"
	"github.com/louisbranch/gmloop/internal/platform/timeouts"
	"github.com/louisbranch/gmloop/internal/services/narrator/generation"
	"github.com/louisbranch/gmloop/internal/services/narrator/notify"
	"github.com/louisbranch/gmloop/internal/services/narrator/settings"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultBatchSize bounds concurrent generation calls when unset.
	DefaultBatchSize  = 4
	finishedRetention = 512
)

// ResultSink receives generation results that need game master review.
type ResultSink interface {
	SubmitNPCResponse(ctx context.Context, res NPCResult) error
	DeliverSuggestions(ctx context.Context, res SuggestionResult) error
	SuggestionsFailed(ctx context.Context, worldID, resolutionID, reason string)
}

// Config wires a Queue.
type Config struct {
	Backend   generation.Backend
	Sink      ResultSink
	Names     Names
	Emitter   notify.Emitter
	Settings  settings.Provider
	BatchSize int
	Clock     func() time.Time
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	InFlight   int `json:"in_flight"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	BatchSize  int `json:"batch_size"`
}

// Rejection reports one request refused by EnqueueBatch.
type Rejection struct {
	Index int
	Err   error
}

// BatchResult lists ids aligned with the submitted requests; rejected
// requests have an empty id.
type BatchResult struct {
	IDs      []string
	Rejected []Rejection
}

// Queue is a priority queue of generation work with a bounded worker.
type Queue struct {
	backend  generation.Backend
	sink     ResultSink
	names    Names
	emitter  notify.Emitter
	settings settings.Provider
	clock    func() time.Time
	tracer   trace.Tracer

	batchSize int
	sem       *semaphore.Weighted
	group     errgroup.Group
	inFlight  atomic.Int64
	wake      chan struct{}
	done      chan struct{}

	mu        sync.Mutex
	pending   pendingHeap
	items     map[string]*entry
	finished  []string
	seq       uint64
	active    int
	completed int
	failed    int
	closed    bool
}

// New builds a Queue. Sink may be attached later with UseSink.
func New(cfg Config) *Queue {
	batch := cfg.BatchSize
	if batch < 1 {
		batch = DefaultBatchSize
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = notify.Nop{}
	}
	provider := cfg.Settings
	if provider == nil {
		provider = settings.Static{}
	}
	return &Queue{
		backend:   cfg.Backend,
		sink:      cfg.Sink,
		names:     cfg.Names,
		emitter:   emitter,
		settings:  provider,
		clock:     clock,
		tracer:    otel.Tracer("gmloop/narrator/queue"),
		batchSize: batch,
		sem:       semaphore.NewWeighted(int64(batch)),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		items:     make(map[string]*entry),
	}
}

// UseSink attaches the result sink. It must be called before RunWorker.
func (q *Queue) UseSink(sink ResultSink) {
	q.mu.Lock()
	q.sink = sink
	q.mu.Unlock()
}

// Enqueue validates and queues a request, returning its item id.
func (q *Queue) Enqueue(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	e, err := q.newEntry(req)
	if err != nil {
		return "", err
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", apperrors.New(apperrors.CodeInvalidState, "queue is shut down")
	}
	q.push(e)
	q.mu.Unlock()
	q.signal()
	return e.item.ID, nil
}

// EnqueueBatch queues requests for one world under that world's failure
// policy. All-or-nothing rejects the whole batch when any request is
// invalid; best-effort queues the valid ones.
func (q *Queue) EnqueueBatch(ctx context.Context, worldID string, reqs []Request) (BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}
	policy := q.settings.WorldSettings(ctx, worldID).FailurePolicy
	res := BatchResult{IDs: make([]string, len(reqs))}
	entries := make([]*entry, len(reqs))
	for i, req := range reqs {
		if req.WorldID == "" {
			req.WorldID = worldID
		}
		if req.WorldID != worldID {
			res.Rejected = append(res.Rejected, Rejection{Index: i, Err: apperrors.Newf(apperrors.CodeInvalidInput, "request %d targets world %q", i, req.WorldID)})
			continue
		}
		if err := req.Validate(); err != nil {
			res.Rejected = append(res.Rejected, Rejection{Index: i, Err: err})
			continue
		}
		e, err := q.newEntry(req)
		if err != nil {
			return BatchResult{}, err
		}
		entries[i] = e
	}
	if len(res.Rejected) > 0 && policy == settings.AllOrNothing {
		return res, apperrors.WithMetadata(apperrors.CodeInvalidInput,
			fmt.Sprintf("batch rejected: %d of %d requests invalid", len(res.Rejected), len(reqs)),
			map[string]string{"policy": string(policy)},
		)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return BatchResult{}, apperrors.New(apperrors.CodeInvalidState, "queue is shut down")
	}
	for i, e := range entries {
		if e == nil {
			continue
		}
		q.push(e)
		res.IDs[i] = e.item.ID
	}
	q.mu.Unlock()
	q.signal()
	if len(res.Rejected) > 0 {
		log.Printf("queue: batch for world %s queued with %d rejected", worldID, len(res.Rejected))
	}
	return res, nil
}

func (q *Queue) newEntry(req Request) (*entry, error) {
	itemID, err := id.New(id.KindGeneration)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "generate item id", err)
	}
	if req.Kind == KindNPCResponse && req.NPC.ResolutionID == "" {
		npc := *req.NPC
		if npc.ResolutionID, err = id.NewResolution(); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeUnknown, "generate resolution id", err)
		}
		req.NPC = &npc
	}
	return &entry{item: Item{
		ID:         itemID,
		Request:    req,
		State:      StatePending,
		EnqueuedAt: q.clock(),
	}}, nil
}

// push must be called with q.mu held.
func (q *Queue) push(e *entry) {
	q.seq++
	e.seq = q.seq
	heap.Push(&q.pending, e)
	q.items[e.item.ID] = e
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// RunWorker dispatches pending items until ctx is cancelled or the queue
// shuts down, then waits for dispatched tasks. The recovery interval
// bounds how long the worker sleeps without a wake-up signal.
func (q *Queue) RunWorker(ctx context.Context, recoveryInterval time.Duration) error {
	if recoveryInterval <= 0 {
		recoveryInterval = timeouts.QueueRecovery
	}
	timer := time.NewTimer(recoveryInterval)
	defer timer.Stop()
	for {
		for q.dispatch(ctx) {
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(recoveryInterval)
		select {
		case <-ctx.Done():
			q.group.Wait()
			return ctx.Err()
		case <-q.done:
			q.group.Wait()
			return nil
		case <-q.wake:
		case <-timer.C:
		}
	}
}

// dispatch starts the next pending item. Starting under q.mu keeps task
// registration ordered before Shutdown's wait.
func (q *Queue) dispatch(ctx context.Context) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || ctx.Err() != nil || q.pending.Len() == 0 {
		return false
	}
	e := heap.Pop(&q.pending).(*entry)
	itemCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.item.State = StateProcessing
	e.item.StartedAt = q.clock()
	q.active++
	q.group.Go(func() error {
		defer cancel()
		q.process(itemCtx, e)
		return nil
	})
	return true
}

func (q *Queue) process(ctx context.Context, e *entry) {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		q.fail(ctx, e, apperrors.Wrap(apperrors.CodeCancelled, "generation cancelled", err))
		return
	}
	defer q.sem.Release(1)
	q.inFlight.Add(1)
	defer q.inFlight.Add(-1)

	req := e.item.Request
	ctx, span := q.tracer.Start(ctx, "queue.process", trace.WithAttributes(
		attribute.String("gmloop.world_id", req.WorldID),
		attribute.String("gmloop.queue.kind", string(req.Kind)),
		attribute.Int("gmloop.queue.priority", req.Priority),
	))
	defer span.End()

	q.emit(ctx, e, notify.GenerationStarted, nil)
	var err error
	switch req.Kind {
	case KindNPCResponse:
		err = q.processNPC(ctx, e)
	case KindSuggestion:
		err = q.processSuggestion(ctx, e)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil && !apperrors.IsCode(err, apperrors.CodeCancelled) {
			err = apperrors.Wrap(apperrors.CodeCancelled, "generation cancelled", err)
		}
		q.fail(ctx, e, err)
	}
}

func (q *Queue) processNPC(ctx context.Context, e *entry) error {
	req := e.item.Request
	npc := req.NPC
	resp, err := q.backend.Generate(ctx, generation.Prompt{
		WorldID:   req.WorldID,
		System:    npc.System,
		Input:     npc.Prompt,
		MaxTokens: npc.MaxTokens,
		Tools:     true,
	})
	if err != nil {
		return err
	}
	if q.terminal(e) {
		log.Printf("queue: dropping npc response for finished item %s", e.item.ID)
		return nil
	}
	res := NPCResult{
		ItemID:              e.item.ID,
		WorldID:             req.WorldID,
		CharacterID:         req.CharacterID,
		CallbackID:          req.CallbackID,
		ResolutionID:        npc.ResolutionID,
		NPCID:               npc.NPCID,
		Prompt:              npc.Prompt,
		Text:                resp.Text,
		ChallengeID:         npc.ChallengeID,
		SkillID:             npc.SkillID,
		EventID:             npc.EventID,
		ToolCalls:           resp.ToolCalls,
		UnknownTools:        resp.UnknownTools,
		ChallengeSuggestion: resp.ChallengeSuggestion,
		EventSuggestion:     resp.EventSuggestion,
	}
	if q.names != nil {
		res.ChallengeName = resolveName(ctx, npc.ChallengeID, q.names.ChallengeName, req.WorldID)
		res.SkillName = resolveName(ctx, npc.SkillID, q.names.SkillName, req.WorldID)
		res.EventName = resolveName(ctx, npc.EventID, q.names.EventName, req.WorldID)
	} else {
		res.ChallengeName, res.SkillName, res.EventName = npc.ChallengeID, npc.SkillID, npc.EventID
	}
	if sink := q.resultSink(); sink != nil {
		if err := sink.SubmitNPCResponse(ctx, res); err != nil {
			return err
		}
	}
	q.complete(ctx, e, map[string]any{
		"resolution_id": res.ResolutionID,
		"npc_id":        res.NPCID,
		"text":          res.Text,
	})
	return nil
}

func (q *Queue) processSuggestion(ctx context.Context, e *entry) error {
	req := e.item.Request
	sr := req.Suggestion
	sink := q.resultSink()
	rt, ok := routines[sr.FieldType]
	if !ok {
		err := apperrors.Newf(apperrors.CodeInvalidInput, "unknown suggestion field type %q", sr.FieldType)
		if sr.ResolutionID != "" && sink != nil {
			sink.SuggestionsFailed(ctx, req.WorldID, sr.ResolutionID, err.Error())
		}
		return err
	}
	resp, err := q.backend.Generate(ctx, rt.prompt(req.WorldID, *sr))
	if err != nil {
		if sr.ResolutionID != "" && sink != nil {
			sink.SuggestionsFailed(ctx, req.WorldID, sr.ResolutionID, err.Error())
		}
		return err
	}
	if q.terminal(e) {
		log.Printf("queue: dropping suggestions for finished item %s", e.item.ID)
		return nil
	}
	res := SuggestionResult{
		ItemID:       e.item.ID,
		WorldID:      req.WorldID,
		CallbackID:   req.CallbackID,
		ResolutionID: sr.ResolutionID,
		FieldType:    sr.FieldType,
	}
	if rt.branching {
		res.Branches = parseBranches(resp.Text, sr.Count)
	} else {
		res.Suggestions = parseSuggestions(resp.Text, sr.Count)
	}
	if len(res.Suggestions) == 0 && len(res.Branches) == 0 {
		err := apperrors.New(apperrors.CodeExecutionError, "backend returned no suggestions")
		if sr.ResolutionID != "" && sink != nil {
			sink.SuggestionsFailed(ctx, req.WorldID, sr.ResolutionID, err.Error())
		}
		return err
	}
	if sr.ResolutionID != "" && sink != nil {
		if err := sink.DeliverSuggestions(ctx, res); err != nil {
			return err
		}
	}
	q.complete(ctx, e, map[string]any{
		"field_type":  res.FieldType,
		"suggestions": res.Suggestions,
		"branches":    res.Branches,
	})
	return nil
}

func (q *Queue) resultSink() ResultSink {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sink
}

func (q *Queue) terminal(e *entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return e.item.State.Terminal()
}

func (q *Queue) complete(ctx context.Context, e *entry, payload any) {
	if q.finish(e, StateCompleted, "", false) {
		q.emit(ctx, e, notify.GenerationCompleted, payload)
	}
}

func (q *Queue) fail(ctx context.Context, e *entry, err error) {
	cancelled := apperrors.IsCode(err, apperrors.CodeCancelled) || errors.Is(err, context.Canceled)
	if !q.finish(e, StateFailed, err.Error(), cancelled) {
		return
	}
	log.Printf("queue: item %s failed: %v", e.item.ID, err)
	if cancelled {
		q.emit(ctx, e, notify.GenerationCancelled, nil)
		return
	}
	q.emit(ctx, e, notify.GenerationFailed, map[string]string{
		"code":  string(apperrors.CodeOf(err)),
		"error": err.Error(),
	})
}

// finish moves e to a terminal state once. It reports whether this call
// made the transition.
func (q *Queue) finish(e *entry, state State, reason string, cancelled bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finishLocked(e, state, reason, cancelled)
}

func (q *Queue) finishLocked(e *entry, state State, reason string, cancelled bool) bool {
	if e.item.State.Terminal() {
		return false
	}
	if e.item.State == StateProcessing {
		q.active--
	}
	e.item.State = state
	e.item.Error = reason
	e.item.Cancelled = cancelled
	e.item.FinishedAt = q.clock()
	if state == StateCompleted {
		q.completed++
	} else {
		q.failed++
	}
	q.finished = append(q.finished, e.item.ID)
	if len(q.finished) > finishedRetention {
		delete(q.items, q.finished[0])
		q.finished = q.finished[1:]
	}
	return true
}

// CancelByCallback cancels every pending or processing item carrying the
// callback id and returns how many were cancelled. Processing items have
// their context cancelled; a result that races the cancellation is dropped.
func (q *Queue) CancelByCallback(ctx context.Context, callbackID string) int {
	if callbackID == "" {
		return 0
	}
	var cancelled []*entry
	q.mu.Lock()
	for _, e := range q.items {
		if e.item.Request.CallbackID != callbackID || e.item.State.Terminal() {
			continue
		}
		if e.item.State == StatePending && e.index >= 0 {
			heap.Remove(&q.pending, e.index)
		}
		if !q.finishLocked(e, StateFailed, "cancelled", true) {
			continue
		}
		if e.cancel != nil {
			e.cancel()
		}
		cancelled = append(cancelled, e)
	}
	q.mu.Unlock()
	for _, e := range cancelled {
		q.emit(ctx, e, notify.GenerationCancelled, nil)
	}
	if len(cancelled) > 0 {
		log.Printf("queue: cancelled %d items for callback %s", len(cancelled), callbackID)
	}
	return len(cancelled)
}

// Get returns a snapshot of an item. Finished items are kept for a
// bounded window.
func (q *Queue) Get(itemID string) (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.items[itemID]
	if !ok {
		return Item{}, apperrors.Newf(apperrors.CodeNotFound, "queue item %q not found", itemID)
	}
	return e.item, nil
}

// Stats reports queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:    q.pending.Len(),
		Processing: q.active,
		InFlight:   int(q.inFlight.Load()),
		Completed:  q.completed,
		Failed:     q.failed,
		BatchSize:  q.batchSize,
	}
}

// Shutdown stops dispatching, fails pending items and waits for running
// tasks. When ctx expires first, running tasks are cancelled.
func (q *Queue) Shutdown(ctx context.Context) error {
	var dropped []*entry
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.done)
		for q.pending.Len() > 0 {
			e := heap.Pop(&q.pending).(*entry)
			if q.finishLocked(e, StateFailed, "queue shut down", true) {
				dropped = append(dropped, e)
			}
		}
	}
	q.mu.Unlock()
	for _, e := range dropped {
		q.emit(ctx, e, notify.GenerationCancelled, nil)
	}

	waited := make(chan struct{})
	go func() {
		q.group.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		for _, e := range q.items {
			if e.item.State == StateProcessing && e.cancel != nil {
				e.cancel()
			}
		}
		q.mu.Unlock()
		<-waited
		return ctx.Err()
	}
}

func (q *Queue) emit(ctx context.Context, e *entry, typ notify.Type, payload any) {
	req := e.item.Request
	n := notify.Notification{
		Type:        typ,
		WorldID:     req.WorldID,
		Audience:    notify.AudienceGM,
		ItemID:      e.item.ID,
		CallbackID:  req.CallbackID,
		CharacterID: req.CharacterID,
		At:          q.clock(),
	}
	switch {
	case req.NPC != nil:
		n.ResolutionID = req.NPC.ResolutionID
	case req.Suggestion != nil:
		n.ResolutionID = req.Suggestion.ResolutionID
	}
	if e.item.Error != "" {
		n.Message = e.item.Error
	}
	if payload != nil {
		n = n.WithPayload(payload)
	}
	q.emitter.Emit(ctx, n)
}
