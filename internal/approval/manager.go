// Package approval stores and resolves human sign-off requests for tool
// executions. Requests are keyed by approval ID with a secondary index
// by run, expire lazily on access, and may additionally be swept by a
// background goroutine.
package approval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/overseer/pkg/models"
)

// Manager is the thread-safe owner of all approval requests.
type Manager struct {
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	requests map[string]*models.ApprovalRequest
	byRun    map[string][]string
}

// Option configures the manager.
type Option func(*Manager)

// WithLogger configures the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates an empty approval manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger:   slog.Default().With("component", "approval"),
		now:      time.Now,
		requests: make(map[string]*models.ApprovalRequest),
		byRun:    make(map[string][]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create stores a new PENDING request for the run and returns a
// snapshot. expires_at is created_at plus the given timeout.
func (m *Manager) Create(runID string, tool models.ToolDescriptor, ec models.ExecutionContext, timeout time.Duration) *models.ApprovalRequest {
	if timeout <= 0 {
		timeout = time.Hour
	}
	now := m.now().UTC()
	req := &models.ApprovalRequest{
		ApprovalID: uuid.NewString(),
		RunID:      runID,
		Tool:       tool.Clone(),
		Context:    ec.Clone(),
		Status:     models.ApprovalPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(timeout),
	}

	m.mu.Lock()
	m.requests[req.ApprovalID] = req
	m.byRun[runID] = append(m.byRun[runID], req.ApprovalID)
	m.mu.Unlock()

	m.logger.Info("approval request created",
		"approval_id", req.ApprovalID,
		"run_id", runID,
		"tool", tool.Name,
		"expires_at", req.ExpiresAt)
	return req.Clone()
}

// Get returns a snapshot of the request, or nil if unknown.
func (m *Manager) Get(approvalID string) *models.ApprovalRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[approvalID].Clone()
}

// GetByRun returns snapshots of all of a run's requests in creation
// order.
func (m *Manager) GetByRun(runID string) []*models.ApprovalRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byRun[runID]
	out := make([]*models.ApprovalRequest, 0, len(ids))
	for _, id := range ids {
		if req := m.requests[id]; req != nil {
			out = append(out, req.Clone())
		}
	}
	return out
}

// GetPending returns the run's still-actionable requests. Requests past
// their deadline are transitioned to EXPIRED here; expiration is lazy.
func (m *Manager) GetPending(runID string) []*models.ApprovalRequest {
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.ApprovalRequest
	for _, id := range m.byRun[runID] {
		req := m.requests[id]
		if req == nil || req.Status != models.ApprovalPending {
			continue
		}
		if req.Expired(now) {
			m.expireLocked(req, now)
			continue
		}
		out = append(out, req.Clone())
	}
	return out
}

// Approve resolves a PENDING request. Returns false when the request is
// unknown, already resolved, or expired.
func (m *Manager) Approve(approvalID, approver, reason string) bool {
	return m.resolve(approvalID, models.ApprovalApproved, approver, reason)
}

// Reject resolves a PENDING request negatively. Returns false when the
// request is unknown, already resolved, or expired.
func (m *Manager) Reject(approvalID, approver, reason string) bool {
	return m.resolve(approvalID, models.ApprovalRejected, approver, reason)
}

func (m *Manager) resolve(approvalID string, status models.ApprovalStatus, approver, reason string) bool {
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	req := m.requests[approvalID]
	if req == nil || req.Status != models.ApprovalPending {
		return false
	}
	if req.Expired(now) {
		m.expireLocked(req, now)
		return false
	}

	req.Status = status
	req.ResolvedAt = now
	req.ResolvedBy = approver
	req.ResolutionReason = reason
	m.logger.Info("approval resolved",
		"approval_id", approvalID,
		"run_id", req.RunID,
		"status", status,
		"resolved_by", approver)
	return true
}

// CancelRun transitions all of a run's PENDING requests to CANCELLED and
// returns the count.
func (m *Manager) CancelRun(runID, reason string) int {
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, id := range m.byRun[runID] {
		req := m.requests[id]
		if req == nil || req.Status != models.ApprovalPending {
			continue
		}
		req.Status = models.ApprovalCancelled
		req.ResolvedAt = now
		req.ResolutionReason = reason
		count++
	}
	if count > 0 {
		m.logger.Info("run approvals cancelled", "run_id", runID, "count", count)
	}
	return count
}

// Stats aggregates the run's requests by status, expiring overdue
// PENDING requests first so counts reflect reality.
func (m *Manager) Stats(runID string) models.ApprovalStats {
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	var stats models.ApprovalStats
	for _, id := range m.byRun[runID] {
		req := m.requests[id]
		if req == nil {
			continue
		}
		if req.Status == models.ApprovalPending && req.Expired(now) {
			m.expireLocked(req, now)
		}
		stats.Total++
		switch req.Status {
		case models.ApprovalPending:
			stats.Pending++
		case models.ApprovalApproved:
			stats.Approved++
		case models.ApprovalRejected:
			stats.Rejected++
		case models.ApprovalExpired:
			stats.Expired++
		case models.ApprovalCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// ClearRun forgets all requests belonging to the run.
func (m *Manager) ClearRun(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.byRun[runID] {
		delete(m.requests, id)
	}
	delete(m.byRun, runID)
}

// Sweep expires every overdue PENDING request and returns the count.
func (m *Manager) Sweep() int {
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, req := range m.requests {
		if req.Status == models.ApprovalPending && req.Expired(now) {
			m.expireLocked(req, now)
			count++
		}
	}
	return count
}

// StartSweeper runs Sweep on the given interval until the context is
// cancelled.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					m.logger.Info("expired approvals swept", "count", n)
				}
			}
		}
	}()
}

// expireLocked transitions one request to EXPIRED. Caller holds m.mu.
func (m *Manager) expireLocked(req *models.ApprovalRequest, now time.Time) {
	req.Status = models.ApprovalExpired
	req.ResolvedAt = now
	req.ResolutionReason = "expired"
}
