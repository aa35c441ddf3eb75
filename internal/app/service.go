// Package service wires the ranking store, insertion sessions and the
// reclassification pipeline into the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marquee/tierlist/internal/adapters/mq/queue"
	"github.com/marquee/tierlist/internal/adapters/mq/worker"
	"github.com/marquee/tierlist/internal/adapters/repository"
	"github.com/marquee/tierlist/internal/domain/dedupe"
	"github.com/marquee/tierlist/internal/domain/insertion"
	"github.com/marquee/tierlist/internal/domain/model"
	"github.com/marquee/tierlist/internal/domain/prediction"
	"github.com/marquee/tierlist/internal/domain/reclassify"
	"github.com/marquee/tierlist/internal/domain/tier"
	"github.com/marquee/tierlist/internal/domain/types"
	"github.com/marquee/tierlist/pkg/logger"
	"github.com/marquee/tierlist/pkg/metrics"
)

const stopTimeout = 10 * time.Second

// StartRequest describes the item to place and where.
type StartRequest struct {
	UserID string
	Item   model.Item
	Tier   tier.Tier
}

// PredictRequest describes a prospective item.
type PredictRequest struct {
	UserID        string
	Genre         string
	Bracket       model.Bracket
	ExternalScore *float64
	Tier          tier.Tier
}

// RankingsQuery selects part of a user's ranked list. Zero fields do not
// filter.
type RankingsQuery struct {
	Tier   *tier.Tier
	Genre  string // matched against the entry's primary genre
	Offset int
	Limit  int
}

// Service implements the API dependencies for the tier ranking system.
type Service struct {
	mu sync.RWMutex

	store     *repository.MemStore
	deduper   dedupe.Deduper
	jobs      *queue.InMemoryQueue
	pool      *worker.Pool
	predictor *prediction.Predictor
	sessions  *registry

	workerCount        int
	queueSize          int
	dedupeSize         int
	sessionTTL         time.Duration
	sweepInterval      time.Duration
	maxRankingsLimit   int
	reclassifyOnChange bool
	now                func() time.Time

	completed atomic.Int64
	startedAt time.Time
	started   bool
	stopCh    chan struct{}
	sweepWG   sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service. Components are built by Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:        runtime.NumCPU(),
		queueSize:          10_000,
		dedupeSize:         100_000,
		sessionTTL:         30 * time.Minute,
		sweepInterval:      time.Minute,
		maxRankingsLimit:   500,
		reclassifyOnChange: true,
		predictor:          prediction.NewPredictor(),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting tierlist service...")

	s.store = repository.NewMemStore(ctx)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.jobs = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.sessions = newRegistry()
	s.pool = worker.NewPool(s.workerCount, s.jobs, s.store, worker.WithLogger(s.logger.Named("worker")))
	s.pool.Start(ctx)

	s.stopCh = make(chan struct{})
	s.sweepWG.Add(1)
	go s.sweepLoop(ctx)

	s.startedAt = s.now()
	s.started = true
	s.logger.Info(ctx, "tierlist service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Duration("session_ttl", s.sessionTTL),
		logger.Bool("reclassify_on_change", s.reclassifyOnChange),
	)
	return nil
}

// Stop gracefully shuts down the service. Pending reclassification jobs
// are drained before it returns.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping tierlist service...")

	close(s.stopCh)
	s.sweepWG.Wait()

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	_ = s.store.Close()

	s.started = false
	s.logger.Info(ctx, "tierlist service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

func (s *Service) sweepLoop(ctx context.Context) {
	defer s.sweepWG.Done()
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Sweep drops sessions idle for longer than the session TTL and returns
// how many were dropped.
func (s *Service) Sweep(ctx context.Context) int {
	if s.ready() != nil {
		return 0
	}
	return s.sweep(ctx)
}

// sweep must not take s.mu: Stop holds it while waiting for the loop.
func (s *Service) sweep(ctx context.Context) int {
	gone := s.sessions.expired(s.now().Add(-s.sessionTTL))
	for _, ss := range gone {
		ss.mu.Lock()
		if !ss.engine.Done() {
			metrics.RecordSessionEnded("expired", ss.engine.State().Round)
			ss.log.Info(ctx, "session expired", logger.Int("round", ss.engine.State().Round))
		}
		ss.mu.Unlock()
	}
	if len(gone) > 0 {
		metrics.UpdateActiveSessions(s.sessions.active())
	}
	return len(gone)
}

// StartSession opens an insertion session for req.Item. When the target
// tier is empty the item is placed at once and the session is already done.
func (s *Service) StartSession(ctx context.Context, req StartRequest) (types.Session, error) {
	if err := s.ready(); err != nil {
		return types.Session{}, err
	}
	if strings.TrimSpace(req.UserID) == "" {
		return types.Session{}, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}

	all, err := s.store.Items(ctx, req.UserID)
	if err != nil {
		return types.Session{}, err
	}
	signals := prediction.ComputeSignals(all, req.Item.PrimaryGenre(), req.Item.Bracket, req.Item.ExternalScore, req.Tier)

	engine := insertion.NewEngine(insertion.WithPredictor(s.predictor))
	step, err := engine.Start(req.Item, req.Tier, all, &signals)
	if err != nil {
		return types.Session{}, err
	}

	id := uuid.NewString()
	ss := &session{
		id:      id,
		userID:  req.UserID,
		engine:  engine,
		touched: s.now(),
		log: s.logger.Named("session").With(
			logger.String("session_id", id),
			logger.String("user_id", req.UserID),
			logger.String("item_id", req.Item.ID),
		),
	}
	metrics.RecordSessionStarted()
	ss.log.Info(ctx, "session started",
		logger.String("tier", req.Tier.String()),
		logger.Int("tier_size", engine.State().High),
		logger.Int("ranked", signals.TotalRanked),
	)

	ss.mu.Lock()
	if step.Done() {
		err = s.finish(ctx, ss, step.Result)
	}
	view := ss.view()
	ss.mu.Unlock()
	if err != nil {
		return types.Session{}, err
	}

	s.sessions.put(ss)
	metrics.UpdateActiveSessions(s.sessions.active())
	return view, nil
}

// Choose answers the session's current comparison. A non-empty requestID
// makes the call idempotent: a repeated id returns the current view without
// applying the answer again.
func (s *Service) Choose(ctx context.Context, sessionID, winnerID, requestID string) (types.Session, error) {
	ss, err := s.session(sessionID)
	if err != nil {
		return types.Session{}, err
	}

	var key string
	if requestID != "" {
		key = sessionID + ":" + requestID
		if s.deduper.SeenAndRecord(ctx, key) {
			metrics.RecordChoiceDuplicate()
			ss.mu.Lock()
			defer ss.mu.Unlock()
			ss.log.Debug(ctx, "duplicate choice ignored", logger.String("request_id", requestID))
			return ss.view(), nil
		}
	}

	ss.mu.Lock()
	view, done, err := s.choose(ctx, ss, winnerID)
	ss.mu.Unlock()
	if err != nil {
		if key != "" {
			s.deduper.Forget(ctx, key)
		}
		return types.Session{}, err
	}
	if done {
		metrics.UpdateActiveSessions(s.sessions.active())
	}
	return view, nil
}

// choose runs with ss.mu held.
func (s *Service) choose(ctx context.Context, ss *session, winnerID string) (types.Session, bool, error) {
	before, err := ss.engine.Step()
	if err != nil {
		return types.Session{}, false, err
	}
	if before.Done() {
		return types.Session{}, false, fmt.Errorf("choose: %w", insertion.ErrSessionComplete)
	}
	q := before.Comparison

	step, err := ss.engine.Submit(winnerID)
	if err != nil {
		ss.log.Warn(ctx, "choice rejected", logger.String("winner_id", winnerID), logger.Error(err))
		return types.Session{}, false, err
	}
	ss.touched = s.now()

	metrics.RecordComparison(string(q.Phase))
	ss.log.Info(ctx, "comparison decided",
		logger.Int("round", q.Round),
		logger.String("phase", string(q.Phase)),
		logger.String("target_id", q.Target.ID),
		logger.Int("target_index", q.TargetIndex),
		logger.String("winner_id", winnerID),
		logger.Int("low", ss.engine.State().Low),
		logger.Int("high", ss.engine.State().High),
	)

	if step.Done() {
		if err := s.finish(ctx, ss, step.Result); err != nil {
			ss.engine.Rollback()
			return types.Session{}, false, err
		}
		return ss.view(), true, nil
	}
	return ss.view(), false, nil
}

// Skip ends the session at the midpoint of its current bracket.
func (s *Service) Skip(ctx context.Context, sessionID string) (types.Session, error) {
	ss, err := s.session(sessionID)
	if err != nil {
		return types.Session{}, err
	}

	ss.mu.Lock()
	step, err := ss.engine.Skip()
	if err == nil {
		ss.touched = s.now()
		ss.log.Info(ctx, "session skipped", logger.Int("round", ss.engine.State().Round))
		if err = s.finish(ctx, ss, step.Result); err != nil {
			ss.engine.Rollback()
		}
	}
	view := ss.view()
	ss.mu.Unlock()
	if err != nil {
		return types.Session{}, err
	}

	metrics.UpdateActiveSessions(s.sessions.active())
	return view, nil
}

// Undo reverts the last answer. With nothing to undo the view is returned
// unchanged.
func (s *Service) Undo(ctx context.Context, sessionID string) (types.Session, error) {
	ss, err := s.session(sessionID)
	if err != nil {
		return types.Session{}, err
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	prev, err := ss.engine.Undo()
	if err != nil {
		return types.Session{}, err
	}
	ss.touched = s.now()
	if prev != nil {
		ss.log.Info(ctx, "comparison undone",
			logger.String("phase", string(prev.Phase)),
			logger.Int("round", prev.Round),
		)
	}
	return ss.view(), nil
}

// Session returns the current view of a session.
func (s *Service) Session(_ context.Context, sessionID string) (types.Session, error) {
	ss, err := s.session(sessionID)
	if err != nil {
		return types.Session{}, err
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.view(), nil
}

// Abandon discards a session. Nothing is stored for an unfinished one.
func (s *Service) Abandon(ctx context.Context, sessionID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	ss, ok := s.sessions.remove(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	ss.mu.Lock()
	if !ss.engine.Done() {
		metrics.RecordSessionEnded("abandoned", ss.engine.State().Round)
		ss.log.Info(ctx, "session abandoned", logger.Int("round", ss.engine.State().Round))
	}
	ss.mu.Unlock()

	metrics.UpdateActiveSessions(s.sessions.active())
	return nil
}

func (s *Service) session(id string) (*session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ss, ok := s.sessions.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return ss, nil
}

// finish stores a completed placement. It runs with ss.mu held.
func (s *Service) finish(ctx context.Context, ss *session, res *insertion.Result) error {
	item := ss.engine.Item()
	placed, err := s.store.Insert(ctx, ss.userID, item, res.Tier, res.Rank)
	if err != nil {
		ss.log.Error(ctx, "placement not stored", logger.Error(err))
		return err
	}

	size := s.store.Count(ctx, ss.userID)
	if members, terr := s.store.Tier(ctx, ss.userID, placed.Tier); terr == nil {
		size = len(members)
	}
	entry := types.NewEntry(placed, size)
	ss.entry = &entry

	outcome := "placed"
	if res.Skipped {
		outcome = "skipped"
	}
	s.completed.Add(1)
	metrics.RecordSessionEnded(outcome, res.Comparisons)

	fields := []logger.Field{
		logger.String("outcome", outcome),
		logger.String("tier", placed.Tier.String()),
		logger.Int("rank", placed.Rank),
		logger.Float64("score", entry.Score),
		logger.Int("comparisons", res.Comparisons),
		logger.Any("trail", ss.engine.Trail()),
	}
	if res.Predicted != nil {
		fields = append(fields, logger.Float64("predicted", *res.Predicted))
	}
	ss.log.Info(ctx, "session completed", fields...)

	s.schedule(ctx, ss.userID, queue.ReasonInsert)
	return nil
}

// schedule queues an opportunistic reclassification. A full queue is not
// an error for the caller; the next change will try again.
func (s *Service) schedule(ctx context.Context, userID, reason string) {
	if !s.reclassifyOnChange {
		return
	}
	if err := s.jobs.Enqueue(ctx, queue.NewJob(userID, reason)); err != nil {
		s.logger.Warn(ctx, "reclassification not queued",
			logger.String("user_id", userID),
			logger.String("reason", reason),
			logger.Error(err),
		)
	}
}

// Predict computes prediction signals and the seed score for an item the
// user has not ranked yet.
func (s *Service) Predict(ctx context.Context, req PredictRequest) (types.Prediction, error) {
	if err := s.ready(); err != nil {
		return types.Prediction{}, err
	}
	if !req.Tier.Valid() {
		return types.Prediction{}, fmt.Errorf("%w: %d", tier.ErrUnknownTier, int(req.Tier))
	}
	all, err := s.store.Items(ctx, req.UserID)
	if err != nil {
		return types.Prediction{}, err
	}
	signals := prediction.ComputeSignals(all, req.Genre, req.Bracket, req.ExternalScore, req.Tier)
	metrics.RecordPrediction()
	return types.Prediction{
		Tier:      req.Tier,
		Signals:   signals,
		Predicted: s.predictor.Predict(signals, req.Tier),
	}, nil
}

// Rankings returns the user's entries ordered S to D then by rank. filter
// restricts the result to one tier. limit <= 0 or above the configured
// maximum is capped at the maximum.
func (s *Service) Rankings(ctx context.Context, userID string, q RankingsQuery) ([]types.Entry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > s.maxRankingsLimit {
		limit = s.maxRankingsLimit
	}
	skip := max(q.Offset, 0)

	all, err := s.store.Items(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries := types.Entries(all)
	out := make([]types.Entry, 0, min(limit, len(entries)))
	for _, e := range entries {
		if q.Tier != nil && e.Tier != *q.Tier {
			continue
		}
		if q.Genre != "" && (len(e.Genres) == 0 || !model.SameGenre(e.Genres[0], q.Genre)) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

// MoveRanking relocates a ranked item to tier t at rank.
func (s *Service) MoveRanking(ctx context.Context, userID, itemID string, t tier.Tier, rank int) (types.Entry, error) {
	if err := s.ready(); err != nil {
		return types.Entry{}, err
	}
	before, err := s.store.Get(ctx, userID, itemID)
	if err != nil {
		return types.Entry{}, err
	}
	moved, err := s.store.Move(ctx, userID, itemID, t, rank)
	if err != nil {
		return types.Entry{}, err
	}
	members, err := s.store.Tier(ctx, userID, moved.Tier)
	if err != nil {
		return types.Entry{}, err
	}

	s.logger.Info(ctx, "ranking moved",
		logger.String("user_id", userID),
		logger.String("item_id", itemID),
		logger.String("from_tier", before.Tier.String()),
		logger.Int("from_rank", before.Rank),
		logger.String("to_tier", moved.Tier.String()),
		logger.Int("to_rank", moved.Rank),
	)
	s.schedule(ctx, userID, queue.ReasonMove)
	return types.NewEntry(moved, len(members)), nil
}

// RemoveRanking deletes a ranked item.
func (s *Service) RemoveRanking(ctx context.Context, userID, itemID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.store.Remove(ctx, userID, itemID); err != nil {
		return err
	}
	s.logger.Info(ctx, "ranking removed", logger.String("user_id", userID), logger.String("item_id", itemID))
	s.schedule(ctx, userID, queue.ReasonRemove)
	return nil
}

// Reclassify computes the drift changes for a user's collection. With apply
// set they are stored in one step and only the changes that took effect are
// returned.
func (s *Service) Reclassify(ctx context.Context, userID string, apply bool) (types.Reclassification, error) {
	if err := s.ready(); err != nil {
		return types.Reclassification{}, err
	}
	all, err := s.store.Items(ctx, userID)
	if err != nil {
		return types.Reclassification{}, err
	}

	changes := reclassify.Reclassify(all)
	if apply && len(changes) > 0 {
		if changes, err = s.store.Apply(ctx, userID, changes); err != nil {
			return types.Reclassification{}, err
		}
		metrics.RecordReclassifyRun("manual", len(changes))
		for _, c := range changes {
			s.logger.Info(ctx, "item reclassified",
				logger.String("user_id", userID),
				logger.String("item_id", c.ID),
				logger.String("from", c.From.String()),
				logger.String("to", c.To.String()),
				logger.Float64("score", c.Score),
				logger.String("reason", queue.ReasonManual),
			)
		}
	}
	if changes == nil {
		changes = []reclassify.Change{}
	}
	return types.Reclassification{
		UserID:    userID,
		Tolerance: reclassify.Tolerance(len(all)),
		Total:     len(all),
		Applied:   apply,
		Changes:   changes,
	}, nil
}

// ReclassifyAsync queues a reclassification for the worker pool. It returns
// ErrBusy when the queue is full.
func (s *Service) ReclassifyAsync(ctx context.Context, userID string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	job := queue.NewJob(userID, queue.ReasonManual)
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			return "", fmt.Errorf("%w: %w", ErrBusy, err)
		}
		return "", err
	}
	return job.ID, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) types.Stats {
	if s.ready() != nil {
		return types.Stats{ItemsByTier: map[string]int{}}
	}

	s.store.Refresh()
	snap := s.store.Stats()
	byTier := make(map[string]int, len(snap.ItemsByTier))
	for t, n := range snap.ItemsByTier {
		byTier[t.String()] = n
	}

	s.mu.RLock()
	uptime := s.now().Sub(s.startedAt).Round(time.Second)
	s.mu.RUnlock()

	active := s.sessions.active()
	metrics.UpdateActiveSessions(active)
	return types.Stats{
		ActiveSessions:    active,
		CompletedSessions: s.completed.Load(),
		Users:             snap.Users,
		Items:             snap.Items,
		ItemsByTier:       byTier,
		QueueDepth:        s.jobs.Len(ctx),
		JobsProcessed:     s.pool.Processed(),
		Workers:           s.pool.Size(),
		DedupeEntries:     s.deduper.Size(),
		Uptime:            uptime.String(),
	}
}
