// Package state holds live workflow runs in a concurrency-safe map with
// functional-update semantics: callers never see the store's live value,
// only deep copies, and updates replace the stored state atomically
// under a per-run lock.
package state

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/overseer/pkg/models"
)

// ErrNotFound is returned when a run is unknown or already swept.
var ErrNotFound = errors.New("run not found")

// Store maps run_id to workflow state.
type Store struct {
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	runs   map[string]*models.WorkflowState
	locks  map[string]*sync.Mutex
}

// Option configures the store.
type Option func(*Store)

// WithLogger configures the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		logger: slog.Default().With("component", "state"),
		now:    time.Now,
		runs:   make(map[string]*models.WorkflowState),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores a copy of the state, replacing any existing entry.
func (s *Store) Put(state *models.WorkflowState) {
	if state == nil || state.RunID == "" {
		return
	}
	s.mu.Lock()
	s.runs[state.RunID] = state.Clone()
	if _, ok := s.locks[state.RunID]; !ok {
		s.locks[state.RunID] = &sync.Mutex{}
	}
	s.mu.Unlock()
}

// Get returns a copy of the run's state.
func (s *Store) Get(runID string) (*models.WorkflowState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.runs[runID]
	if !ok {
		return nil, false
	}
	return stored.Clone(), true
}

// Update applies fn under the run's lock. fn receives a deep copy and
// returns the successor; the successor is cloned into the store so no
// mutable reference escapes the critical section. Returns the stored
// successor.
func (s *Store) Update(runID string, fn func(*models.WorkflowState) (*models.WorkflowState, error)) (*models.WorkflowState, error) {
	s.mu.RLock()
	lock, ok := s.locks[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	stored, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	next, err := fn(stored.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return stored.Clone(), nil
	}
	next.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	s.runs[runID] = next.Clone()
	s.mu.Unlock()
	return next.Clone(), nil
}

// Delete forgets a run.
func (s *Store) Delete(runID string) {
	s.mu.Lock()
	delete(s.runs, runID)
	delete(s.locks, runID)
	s.mu.Unlock()
}

// Len returns the number of live runs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// IterateTerminalOlderThan returns the run IDs of terminal states whose
// last update is older than the retention window.
func (s *Store) IterateTerminalOlderThan(retention time.Duration) []string {
	cutoff := s.now().UTC().Add(-retention)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for runID, st := range s.runs {
		if st.Terminal() && st.UpdatedAt.Before(cutoff) {
			out = append(out, runID)
		}
	}
	return out
}

// StartRetentionSweeper deletes terminal runs past the retention window
// on the given interval until the context is cancelled. onDelete, when
// non-nil, runs for each swept run before deletion (used to archive the
// run's approvals).
func (s *Store) StartRetentionSweeper(ctx context.Context, retention, interval time.Duration, onDelete func(runID string)) {
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
				for _, runID := range s.IterateTerminalOlderThan(retention) {
					if onDelete != nil {
						onDelete(runID)
					}
					s.Delete(runID)
					s.logger.Info("terminal run swept", "run_id", runID)
				}
			}
		}
	}()
}
