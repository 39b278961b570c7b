// Package orchestrator drives every agent task through a nine-node state
// machine: capability discovery, agent decision, policy validation,
// approval gating, tool execution, and terminal-state computation. Runs
// suspend at the approval gate and resume when approvals resolve; all
// per-run updates are functional and serialized by the state store.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/overseer/internal/agentcache"
	"github.com/haasonsaas/overseer/internal/approval"
	"github.com/haasonsaas/overseer/internal/backend"
	"github.com/haasonsaas/overseer/internal/capability"
	"github.com/haasonsaas/overseer/internal/catalog"
	"github.com/haasonsaas/overseer/internal/executor"
	"github.com/haasonsaas/overseer/internal/observability"
	"github.com/haasonsaas/overseer/internal/policy"
	"github.com/haasonsaas/overseer/internal/state"
	"github.com/haasonsaas/overseer/pkg/models"
)

// Options carries the orchestrator's tunables.
type Options struct {
	// ActionTimeout bounds one tool execution. Default: 30s.
	ActionTimeout time.Duration

	// OverallTimeout bounds one drive of the graph. Default: 300s.
	OverallTimeout time.Duration

	// RetentionWindow is how long terminal runs stay queryable.
	// Default: 1h.
	RetentionWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 30 * time.Second
	}
	if o.OverallTimeout <= 0 {
		o.OverallTimeout = 300 * time.Second
	}
	if o.RetentionWindow <= 0 {
		o.RetentionWindow = time.Hour
	}
	return o
}

// Orchestrator wires the capability registry, model backend, policy
// engine, approval manager, tool catalog, and state store together.
type Orchestrator struct {
	capabilities *capability.Registry
	backend      backend.Client
	agents       *agentcache.Cache
	policies     *policy.Engine
	approvals    *approval.Manager
	states       *state.Store
	tools        catalog.Client
	exec         *executor.Executor
	metrics      *observability.Metrics
	logger       *slog.Logger
	now          func() time.Time
	opts         Options

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithLogger configures the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics attaches a metric set.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an orchestrator.
func New(
	capabilities *capability.Registry,
	modelBackend backend.Client,
	agents *agentcache.Cache,
	policies *policy.Engine,
	approvals *approval.Manager,
	states *state.Store,
	tools catalog.Client,
	opts Options,
	options ...Option,
) *Orchestrator {
	o := &Orchestrator{
		capabilities: capabilities,
		backend:      modelBackend,
		agents:       agents,
		policies:     policies,
		approvals:    approvals,
		states:       states,
		tools:        tools,
		exec:         executor.New(),
		metrics:      observability.NewMetrics(),
		logger:       slog.Default().With("component", "orchestrator"),
		now:          time.Now,
		opts:         opts.withDefaults(),
		cancels:      make(map[string]context.CancelFunc),
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// Run creates a new workflow state for the context, enters the graph,
// and drives it until a terminal state or the approval suspension point.
// Returns the run ID and the latest snapshot.
func (o *Orchestrator) Run(ctx context.Context, ec models.ExecutionContext) (string, *models.WorkflowState, error) {
	now := o.now().UTC()
	st := &models.WorkflowState{
		RunID:      uuid.NewString(),
		Status:     models.WorkflowStatus{State: models.StatePending, Message: "run created"},
		Context:    ec.Clone(),
		Decisions:  []models.DecisionRecord{},
		Executions: []models.ExecutionRecord{},
		Approvals:  []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	o.states.Put(st)
	o.logger.Info("run created", "run_id", st.RunID, "role", ec.AgentRole, "user", ec.UserID)

	snapshot := o.drive(st.RunID)
	return st.RunID, snapshot, nil
}

// Approve resolves an approval; if its run is suspended and all its
// approvals are now resolved, the run resumes from the approval gate.
// Duplicate approvals of already-resolved requests are no-ops.
func (o *Orchestrator) Approve(approvalID, approver, reason string) *models.WorkflowState {
	if o.approvals.Approve(approvalID, approver, reason) {
		o.metrics.ApprovalsResolved.WithLabelValues(string(models.ApprovalApproved)).Inc()
	}
	return o.resumeFor(approvalID)
}

// Reject resolves an approval negatively and resumes the run onto its
// failure path.
func (o *Orchestrator) Reject(approvalID, approver, reason string) *models.WorkflowState {
	if o.approvals.Reject(approvalID, approver, reason) {
		o.metrics.ApprovalsResolved.WithLabelValues(string(models.ApprovalRejected)).Inc()
	}
	return o.resumeFor(approvalID)
}

// Cancel cancels the run's pending approvals and sets the terminal
// CANCELLED status. Idempotent on already-terminal runs: the second
// call returns the same state and touches nothing.
func (o *Orchestrator) Cancel(runID, reason string) *models.WorkflowState {
	current, ok := o.states.Get(runID)
	if !ok {
		return nil
	}
	if current.Terminal() {
		return current
	}

	// Interrupt an in-flight tool execution; the drive loop folds the
	// cancellation into the CANCELLED terminal state.
	o.mu.Lock()
	cancel := o.cancels[runID]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	o.approvals.CancelRun(runID, reason)

	next, err := o.states.Update(runID, func(st *models.WorkflowState) (*models.WorkflowState, error) {
		if st.Terminal() {
			return st, nil
		}
		if st.Status.State == models.StateAwaitingApproval {
			o.metrics.RunsAwaitingApproval.Dec()
		}
		st.Status = models.WorkflowStatus{
			State:   models.StateCancelled,
			Message: "run cancelled",
			Error:   reason,
		}
		return st, nil
	})
	if err != nil {
		o.logger.Warn("cancel update failed", "run_id", runID, "error", err)
		return current
	}
	o.metrics.RunsCompleted.WithLabelValues(string(models.StateCancelled)).Inc()
	o.logger.Info("run cancelled", "run_id", runID, "reason", reason)
	return next
}

// Status returns the run's current snapshot, or nil after the retention
// window has swept it.
func (o *Orchestrator) Status(runID string) *models.WorkflowState {
	st, ok := o.states.Get(runID)
	if !ok {
		return nil
	}
	// Surface approval expiry discovered while suspended.
	if st.Status.State == models.StateAwaitingApproval {
		if pending := o.approvals.GetPending(runID); len(pending) == 0 {
			return o.drive(runID)
		}
	}
	return st
}

// StartRetention begins sweeping terminal runs past the retention
// window, archiving their approvals with them.
func (o *Orchestrator) StartRetention(ctx context.Context, interval time.Duration) {
	o.states.StartRetentionSweeper(ctx, o.opts.RetentionWindow, interval, func(runID string) {
		o.approvals.ClearRun(runID)
	})
}

// resumeFor looks up the approval's run and resumes it when no pending
// approvals remain.
func (o *Orchestrator) resumeFor(approvalID string) *models.WorkflowState {
	req := o.approvals.Get(approvalID)
	if req == nil {
		return nil
	}
	st, ok := o.states.Get(req.RunID)
	if !ok {
		return nil
	}
	if st.Status.State != models.StateAwaitingApproval {
		return st
	}
	if pending := o.approvals.GetPending(req.RunID); len(pending) > 0 {
		return st
	}
	return o.drive(req.RunID)
}
