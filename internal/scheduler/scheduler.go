// Package scheduler drives checking points on per-point schedules,
// evaluates fetched observations in parallel, and turns matched results
// into orchestrator runs through a bounded dispatch queue.
package scheduler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/haasonsaas/overseer/internal/checkpoint"
	"github.com/haasonsaas/overseer/internal/observability"
	"github.com/haasonsaas/overseer/internal/ratelimit"
	"github.com/haasonsaas/overseer/pkg/models"
)

// cronParser supports both standard (5-field) and extended (6-field with
// seconds) cron expressions.
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Dispatcher starts orchestrator runs for matched checking points. The
// orchestrator satisfies it.
type Dispatcher interface {
	Run(ctx context.Context, ec models.ExecutionContext) (string, *models.WorkflowState, error)
}

// ImmediateHandler performs lightweight side effects emitted by checking
// points, such as notifications or status tags.
type ImmediateHandler func(ctx context.Context, action models.ImmediateAction)

// Entry binds one checking point to its schedule and limits.
type Entry struct {
	// Point is the instantiated checking point.
	Point checkpoint.CheckingPoint

	// Schedule is a cron expression; when empty, Interval applies.
	Schedule string

	// Interval is the fixed period between cycles. Defaults to 1m.
	Interval time.Duration

	// FetchParams are passed through to the point's FetchData.
	FetchParams map[string]any

	// RateLimit bounds this point's fetch calls per minute.
	RateLimit ratelimit.Config

	// TargetSystem names the external system for the shared outbound
	// limit; empty means the datum source is used as the key.
	TargetSystem string
}

// Config configures the scheduler.
type Config struct {
	// TickInterval is how often due entries are checked. Default: 1s.
	TickInterval time.Duration

	// MaxConcurrency bounds parallel datum evaluation per cycle.
	// Default: 4.
	MaxConcurrency int

	// QueueSize bounds the evaluation-to-orchestration queue.
	// Default: 64.
	QueueSize int

	// SystemRateLimit is the shared per-target-system outbound limit.
	SystemRateLimit ratelimit.Config

	// Logger for scheduler events.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:    time.Second,
		MaxConcurrency:  4,
		QueueSize:       64,
		SystemRateLimit: ratelimit.DefaultConfig(),
	}
}

// queuedAction pairs an AI action with its originating point for
// metrics and context assembly.
type queuedAction struct {
	action models.AIAction
	point  string
}

// Scheduler owns the tick loop, the evaluation fan-out, and the dispatch
// queue.
type Scheduler struct {
	dispatcher Dispatcher
	immediate  ImmediateHandler
	config     Config
	logger     *slog.Logger
	metrics    *observability.Metrics
	now        func() time.Time

	pointLimits  *ratelimit.Limiter
	systemLimits *ratelimit.Limiter

	queue chan queuedAction

	mu      sync.Mutex
	entries []*scheduledEntry
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// scheduledEntry tracks the next due time alongside the static entry.
type scheduledEntry struct {
	Entry
	nextRun time.Time
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithMetrics attaches a metric set.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithImmediateHandler sets the handler for immediate actions. The
// default logs them.
func WithImmediateHandler(h ImmediateHandler) Option {
	return func(s *Scheduler) {
		if h != nil {
			s.immediate = h
		}
	}
}

// New creates a scheduler over the dispatcher.
func New(dispatcher Dispatcher, config Config, opts ...Option) *Scheduler {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default().With("component", "scheduler")
	}

	s := &Scheduler{
		dispatcher:   dispatcher,
		config:       config,
		logger:       logger,
		metrics:      observability.NewMetrics(),
		now:          time.Now,
		pointLimits:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		systemLimits: ratelimit.NewLimiter(config.SystemRateLimit),
		queue:        make(chan queuedAction, config.QueueSize),
	}
	s.immediate = func(ctx context.Context, action models.ImmediateAction) {
		s.logger.Info("immediate action", "action", action.Name, "target", action.Target)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEntries replaces the scheduled entries. In-flight cycles complete
// with their old configuration; the swap takes effect on the next tick.
func (s *Scheduler) SetEntries(entries []Entry) {
	now := s.now()
	scheduled := make([]*scheduledEntry, 0, len(entries))
	for _, e := range entries {
		if e.Interval <= 0 {
			e.Interval = time.Minute
		}
		scheduled = append(scheduled, &scheduledEntry{Entry: e, nextRun: now})
	}

	s.mu.Lock()
	s.entries = scheduled
	s.mu.Unlock()
}

// Entries returns a snapshot of the scheduled entries.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Entry)
	}
	return out
}

// Start begins the tick and dispatch loops.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Info("starting scheduler",
		"tick_interval", s.config.TickInterval,
		"max_concurrency", s.config.MaxConcurrency,
		"queue_size", s.config.QueueSize)

	s.wg.Add(2)
	go s.tickLoop(ctx)
	go s.dispatchLoop(ctx)
	return nil
}

// Stop shuts the scheduler down, waiting for in-flight cycles.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs every due entry once, each cycle in its own goroutine so a
// slow point never delays the others. Tick returns after all cycles it
// started have finished. Exposed so tests and embedders can drive
// cycles without the background loop.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*scheduledEntry
	for _, e := range s.entries {
		if !e.Point.Config().Enabled || e.nextRun.After(now) {
			continue
		}
		point := e.Point.Name()
		if !s.pointLimits.AllowWith(point, e.RateLimit) {
			// Deferred; the entry stays due and retries next tick.
			s.metrics.FetchesDeferred.WithLabelValues(point).Inc()
			s.logger.Debug("fetch deferred by point rate limit", "point", point)
			continue
		}
		system := e.TargetSystem
		if system == "" {
			system = point
		}
		if !s.systemLimits.AllowWith(system, s.config.SystemRateLimit) {
			s.metrics.FetchesDeferred.WithLabelValues(point).Inc()
			s.logger.Debug("fetch deferred by system rate limit", "point", point, "system", system)
			continue
		}
		e.nextRun = s.nextRun(e, now)
		due = append(due, e)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range due {
		wg.Add(1)
		go func(e *scheduledEntry) {
			defer wg.Done()
			s.safeCycle(ctx, e)
		}(e)
	}
	wg.Wait()
}

// safeCycle runs one entry's cycle; a panic in one point is logged and
// never reaches the other points.
func (s *Scheduler) safeCycle(ctx context.Context, e *scheduledEntry) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in checking point cycle",
				"point", e.Point.Name(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	s.runCycle(ctx, e)
}

// nextRun computes the entry's next due time from its cron expression or
// fixed interval. An invalid expression falls back to the interval.
func (s *Scheduler) nextRun(e *scheduledEntry, after time.Time) time.Time {
	if e.Schedule != "" {
		sched, err := cronParser.Parse(e.Schedule)
		if err != nil {
			s.logger.Warn("invalid cron expression, using interval",
				"point", e.Point.Name(),
				"schedule", e.Schedule,
				"error", err)
		} else {
			return sched.Next(after)
		}
	}
	return after.Add(e.Interval)
}

// runCycle fetches the entry's data and evaluates each datum against
// the full point set in parallel.
func (s *Scheduler) runCycle(ctx context.Context, e *scheduledEntry) {
	point := e.Point
	timeout := point.Config().Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	items, err := point.FetchData(fetchCtx, e.FetchParams)
	if err != nil {
		s.metrics.Evaluations.WithLabelValues(point.Name(), string(models.CheckError)).Inc()
		s.logger.Warn("fetch failed", "point", point.Name(), "error", err)
		return
	}
	if len(items) == 0 {
		return
	}

	points := s.activePoints()

	sem := semaphore.NewWeighted(int64(s.config.MaxConcurrency))
	var wg sync.WaitGroup
	for _, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		wg.Add(1)
		go func(item models.MonitoringDatum) {
			defer wg.Done()
			defer sem.Release(1)
			s.evaluateDatum(ctx, points, item)
		}(item)
	}
	wg.Wait()
}

// activePoints snapshots every enabled point across all entries so a
// datum is evaluated in global priority order.
func (s *Scheduler) activePoints() []checkpoint.CheckingPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]checkpoint.CheckingPoint, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Point.Config().Enabled {
			out = append(out, e.Point)
		}
	}
	return out
}

// evaluateDatum runs the priority-ordered evaluation for one datum and
// hands matched results to the immediate handler and the dispatch queue.
func (s *Scheduler) evaluateDatum(ctx context.Context, points []checkpoint.CheckingPoint, datum models.MonitoringDatum) {
	results := checkpoint.EvaluateDatum(points, datum)
	for _, result := range results {
		s.metrics.Evaluations.WithLabelValues(result.CheckingPointName, string(result.ResultType)).Inc()
		if !result.ShouldAct {
			continue
		}

		matched := findPoint(points, result.CheckingPointName)
		if matched == nil {
			continue
		}

		for _, action := range matched.GetActions(datum, result) {
			s.immediate(ctx, action)
		}
		for _, action := range matched.GetAfterProcess(datum, result) {
			s.enqueue(queuedAction{action: action, point: matched.Name()})
		}
	}
}

// enqueue adds the action to the dispatch queue, dropping it when the
// queue is full.
func (s *Scheduler) enqueue(qa queuedAction) {
	select {
	case s.queue <- qa:
	default:
		s.metrics.ActionsDropped.WithLabelValues(qa.point).Inc()
		s.logger.Warn("dispatch queue full, action dropped",
			"point", qa.point,
			"action", qa.action.Name)
	}
}

func (s *Scheduler) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case qa := <-s.queue:
			s.dispatch(ctx, qa)
		}
	}
}

// dispatch turns one AI action into an orchestrator run.
func (s *Scheduler) dispatch(ctx context.Context, qa queuedAction) {
	action := qa.action

	runCtx := ctx
	if action.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, action.Timeout)
		defer cancel()
	}

	ec := models.ExecutionContext{
		TaskDescription: action.Name,
		AgentRole:       action.AgentRole,
		UserID:          "scheduler:" + action.CheckingPointName,
		Metadata: map[string]any{
			"workflow_name":      action.WorkflowName,
			"checking_point":     action.CheckingPointName,
			"prompt_template_id": action.PromptTemplateID,
			"priority":           action.Priority,
			"approval_required":  action.ApprovalRequired,
			"parameters":         action.Parameters,
			"prompt_variables":   action.PromptVariables,
		},
	}

	runID, final, err := s.dispatcher.Run(runCtx, ec)
	if err != nil {
		s.logger.Error("dispatch failed",
			"point", action.CheckingPointName,
			"action", action.Name,
			"error", err)
		return
	}
	s.logger.Info("workflow dispatched",
		"point", action.CheckingPointName,
		"action", action.Name,
		"run_id", runID,
		"state", final.Status.State)
}

// QueueDepth reports the current dispatch backlog.
func (s *Scheduler) QueueDepth() int {
	return len(s.queue)
}

// DrainQueue synchronously dispatches everything currently queued.
// Intended for tests and controlled shutdown.
func (s *Scheduler) DrainQueue(ctx context.Context) int {
	count := 0
	for {
		select {
		case qa := <-s.queue:
			s.dispatch(ctx, qa)
			count++
		default:
			return count
		}
	}
}

func findPoint(points []checkpoint.CheckingPoint, name string) checkpoint.CheckingPoint {
	for _, p := range points {
		if p.Name() == name {
			return p
		}
	}
	return nil
}
