package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/overseer/internal/checkpoint"
	"github.com/haasonsaas/overseer/internal/checkpoint/sources"
	"github.com/haasonsaas/overseer/internal/observability"
	"github.com/haasonsaas/overseer/internal/ratelimit"
	"github.com/haasonsaas/overseer/pkg/models"
)

// recordingDispatcher captures every Run call and reports success.
type recordingDispatcher struct {
	mu   sync.Mutex
	runs []models.ExecutionContext
}

func (d *recordingDispatcher) Run(ctx context.Context, ec models.ExecutionContext) (string, *models.WorkflowState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runs = append(d.runs, ec)
	return "run-1", &models.WorkflowState{
		RunID:  "run-1",
		Status: models.WorkflowStatus{State: models.StateSucceeded},
	}, nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.runs)
}

func urgentPoint(t *testing.T, name string, source sources.Source, aiEnabled bool) checkpoint.CheckingPoint {
	t.Helper()
	config := checkpoint.DefaultPointConfig()
	config.AIWorkflowEnabled = aiEnabled
	config.AgentRole = "sre"
	config.PromptTemplateID = "triage-v1"
	point, err := checkpoint.Default().Instantiate("tracker_urgent", name, config, source)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	return point
}

func criticalTask(id string) models.MonitoringDatum {
	return models.MonitoringDatum{
		ID:      id,
		Type:    models.DatumTask,
		Source:  "tracker",
		Payload: map[string]any{"priority": "critical", "title": "db down"},
	}
}

func TestTickDispatchesMatchedAction(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	var immediate []models.ImmediateAction

	source := sources.NewMemorySource(
		criticalTask("T-1"),
		models.MonitoringDatum{ID: "T-2", Type: models.DatumTask, Source: "tracker",
			Payload: map[string]any{"priority": "low"}},
	)

	s := New(dispatcher, DefaultConfig(), WithImmediateHandler(
		func(ctx context.Context, action models.ImmediateAction) {
			immediate = append(immediate, action)
		}))
	s.SetEntries([]Entry{{
		Point:    urgentPoint(t, "urgent", source, true),
		Interval: time.Minute,
	}})

	ctx := context.Background()
	s.Tick(ctx)

	if got := s.QueueDepth(); got != 1 {
		t.Fatalf("queue depth = %d, want 1", got)
	}
	if n := s.DrainQueue(ctx); n != 1 {
		t.Fatalf("drained = %d, want 1", n)
	}
	if dispatcher.count() != 1 {
		t.Fatalf("dispatched runs = %d, want 1", dispatcher.count())
	}

	ec := dispatcher.runs[0]
	if ec.AgentRole != "sre" {
		t.Errorf("agent role = %s, want sre", ec.AgentRole)
	}
	if ec.Metadata["checking_point"] != "urgent" {
		t.Errorf("metadata = %+v", ec.Metadata)
	}
	vars, ok := ec.Metadata["prompt_variables"].(map[string]any)
	if !ok || vars["task_id"] != "T-1" {
		t.Errorf("prompt variables = %+v", ec.Metadata["prompt_variables"])
	}

	// The matched datum triggers the point's immediate action exactly
	// once; the non-matching datum triggers nothing.
	if len(immediate) != 1 || immediate[0].Name != "notify_oncall" {
		t.Errorf("immediate actions = %+v, want one notify_oncall", immediate)
	}
}

func TestEntryNotDueBeforeInterval(t *testing.T) {
	current := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	dispatcher := &recordingDispatcher{}
	source := sources.NewMemorySource(criticalTask("T-1"))

	s := New(dispatcher, DefaultConfig(), WithNow(func() time.Time { return current }))
	s.SetEntries([]Entry{{
		Point:    urgentPoint(t, "urgent", source, true),
		Interval: time.Minute,
	}})

	ctx := context.Background()
	s.Tick(ctx)
	if got := s.QueueDepth(); got != 1 {
		t.Fatalf("first tick queue depth = %d, want 1", got)
	}
	s.DrainQueue(ctx)

	// 30s later the entry is not due yet.
	current = current.Add(30 * time.Second)
	s.Tick(ctx)
	if got := s.QueueDepth(); got != 0 {
		t.Fatalf("early tick queue depth = %d, want 0", got)
	}

	current = current.Add(31 * time.Second)
	s.Tick(ctx)
	if got := s.QueueDepth(); got != 1 {
		t.Fatalf("due tick queue depth = %d, want 1", got)
	}
}

func TestCronScheduleComputesNextRun(t *testing.T) {
	current := time.Date(2026, 5, 1, 8, 0, 30, 0, time.UTC)
	s := New(&recordingDispatcher{}, DefaultConfig(), WithNow(func() time.Time { return current }))

	e := &scheduledEntry{Entry: Entry{Schedule: "*/5 * * * *", Interval: time.Minute}}
	next := s.nextRun(e, current)
	want := time.Date(2026, 5, 1, 8, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next run = %v, want %v", next, want)
	}

	// Invalid expressions fall back to the fixed interval.
	e = &scheduledEntry{Entry: Entry{Schedule: "not a cron", Interval: time.Minute}}
	next = s.nextRun(e, current)
	if !next.Equal(current.Add(time.Minute)) {
		t.Errorf("fallback next run = %v", next)
	}
}

func TestPointRateLimitDefersCycle(t *testing.T) {
	current := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	dispatcher := &recordingDispatcher{}
	source := sources.NewMemorySource(criticalTask("T-1"))
	metrics := observability.NewMetrics()

	s := New(dispatcher, DefaultConfig(),
		WithNow(func() time.Time { return current }),
		WithMetrics(metrics))
	s.pointLimits.SetNow(func() time.Time { return current })
	s.SetEntries([]Entry{{
		Point:     urgentPoint(t, "urgent", source, true),
		Interval:  time.Second,
		RateLimit: ratelimit.Config{CallsPerMinute: 1, Burst: 1, Enabled: true},
	}})

	ctx := context.Background()
	s.Tick(ctx)
	if got := s.QueueDepth(); got != 1 {
		t.Fatalf("first tick queue depth = %d, want 1", got)
	}
	s.DrainQueue(ctx)

	// The entry is due again but the 1/min bucket is empty.
	current = current.Add(2 * time.Second)
	s.Tick(ctx)
	if got := s.QueueDepth(); got != 0 {
		t.Fatalf("rate-limited tick queue depth = %d, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.FetchesDeferred.WithLabelValues("urgent")); got != 1 {
		t.Errorf("fetches deferred = %v, want 1", got)
	}
}

func TestQueueOverflowDropsActions(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	source := sources.NewMemorySource(
		criticalTask("T-1"), criticalTask("T-2"), criticalTask("T-3"),
	)
	metrics := observability.NewMetrics()

	config := DefaultConfig()
	config.QueueSize = 1
	config.MaxConcurrency = 1
	s := New(dispatcher, config, WithMetrics(metrics))
	s.SetEntries([]Entry{{
		Point:    urgentPoint(t, "urgent", source, true),
		Interval: time.Minute,
	}})

	s.Tick(context.Background())

	if got := s.QueueDepth(); got != 1 {
		t.Fatalf("queue depth = %d, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ActionsDropped.WithLabelValues("urgent")); got != 2 {
		t.Errorf("actions dropped = %v, want 2", got)
	}
}

// panicPoint fails violently in FetchData to exercise isolation.
type panicPoint struct {
	checkpoint.BasePoint
}

func (p *panicPoint) FetchData(ctx context.Context, params map[string]any) ([]models.MonitoringDatum, error) {
	panic("source exploded")
}

func (p *panicPoint) CanHandle(datum models.MonitoringDatum) bool { return false }
func (p *panicPoint) Evaluate(datum models.MonitoringDatum) models.CheckResult {
	return models.CheckResult{}
}
func (p *panicPoint) GetActions(datum models.MonitoringDatum, result models.CheckResult) []models.ImmediateAction {
	return nil
}
func (p *panicPoint) GetAfterProcess(datum models.MonitoringDatum, result models.CheckResult) []models.AIAction {
	return nil
}

func TestPointFailureIsIsolated(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	source := sources.NewMemorySource(criticalTask("T-1"))

	bad := &panicPoint{BasePoint: checkpoint.NewBasePoint("bad", "custom", checkpoint.DefaultPointConfig(), nil)}
	s := New(dispatcher, DefaultConfig())
	s.SetEntries([]Entry{
		{Point: bad, Interval: time.Minute},
		{Point: urgentPoint(t, "urgent", source, true), Interval: time.Minute},
	})

	s.Tick(context.Background())

	// The healthy point's action still made it through.
	if got := s.QueueDepth(); got != 1 {
		t.Fatalf("queue depth = %d, want 1", got)
	}
}

// blockingPoint parks in FetchData until released, signalling entry.
type blockingPoint struct {
	checkpoint.BasePoint
	started chan struct{}
	release chan struct{}
}

func (p *blockingPoint) FetchData(ctx context.Context, params map[string]any) ([]models.MonitoringDatum, error) {
	close(p.started)
	select {
	case <-p.release:
	case <-ctx.Done():
	}
	return nil, nil
}

func (p *blockingPoint) CanHandle(datum models.MonitoringDatum) bool { return false }
func (p *blockingPoint) Evaluate(datum models.MonitoringDatum) models.CheckResult {
	return models.CheckResult{}
}
func (p *blockingPoint) GetActions(datum models.MonitoringDatum, result models.CheckResult) []models.ImmediateAction {
	return nil
}
func (p *blockingPoint) GetAfterProcess(datum models.MonitoringDatum, result models.CheckResult) []models.AIAction {
	return nil
}

func TestSlowPointDoesNotDelayOthers(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	source := sources.NewMemorySource(criticalTask("T-1"))

	slow := &blockingPoint{
		BasePoint: checkpoint.NewBasePoint("slow", "custom", checkpoint.DefaultPointConfig(), nil),
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	s := New(dispatcher, DefaultConfig())
	s.SetEntries([]Entry{
		{Point: slow, Interval: time.Minute},
		{Point: urgentPoint(t, "urgent", source, true), Interval: time.Minute},
	})

	done := make(chan struct{})
	go func() {
		s.Tick(context.Background())
		close(done)
	}()

	<-slow.started

	// The healthy point's cycle finishes while the slow fetch is still
	// parked.
	deadline := time.After(5 * time.Second)
	for s.QueueDepth() == 0 {
		select {
		case <-deadline:
			t.Fatal("healthy point did not cycle while the slow fetch was blocked")
		case <-time.After(10 * time.Millisecond):
		}
	}

	close(slow.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Tick did not return after the slow fetch was released")
	}
}

func TestSetEntriesHotSwap(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	s := New(dispatcher, DefaultConfig())

	first := sources.NewMemorySource(criticalTask("T-1"))
	s.SetEntries([]Entry{{Point: urgentPoint(t, "urgent", first, true), Interval: time.Minute}})
	s.Tick(context.Background())
	if got := s.QueueDepth(); got != 1 {
		t.Fatalf("queue depth = %d, want 1", got)
	}
	s.DrainQueue(context.Background())

	// Swap in a configuration with AI workflows disabled; the next tick
	// uses it.
	second := sources.NewMemorySource(criticalTask("T-2"))
	s.SetEntries([]Entry{{Point: urgentPoint(t, "urgent", second, false), Interval: time.Minute}})
	s.Tick(context.Background())
	if got := s.QueueDepth(); got != 0 {
		t.Fatalf("queue depth after swap = %d, want 0", got)
	}
}

func TestStartStop(t *testing.T) {
	s := New(&recordingDispatcher{}, DefaultConfig())
	s.SetEntries(nil)

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
