package state

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/overseer/pkg/models"
)

func newRun(id string, name models.WorkflowStateName) *models.WorkflowState {
	return &models.WorkflowState{
		RunID:  id,
		Status: models.WorkflowStatus{State: name},
	}
}

func TestPutGetIsolation(t *testing.T) {
	s := NewStore()
	original := newRun("run-1", models.StatePending)
	original.Context.Metadata = map[string]any{"k": "v"}
	s.Put(original)

	// Mutating the put value must not affect the store.
	original.Status.State = models.StateFailed

	got, ok := s.Get("run-1")
	if !ok {
		t.Fatal("run not found")
	}
	if got.Status.State != models.StatePending {
		t.Errorf("store observed caller mutation: %v", got.Status.State)
	}

	// Mutating the got value must not affect the store either.
	got.Context.Metadata["k"] = "mutated"
	again, _ := s.Get("run-1")
	if again.Context.Metadata["k"] != "v" {
		t.Errorf("store observed reader mutation")
	}
}

func TestUpdate(t *testing.T) {
	s := NewStore()
	s.Put(newRun("run-1", models.StatePending))

	next, err := s.Update("run-1", func(st *models.WorkflowState) (*models.WorkflowState, error) {
		st.Status.State = models.StateProposalObtained
		st.Decisions = append(st.Decisions, models.DecisionRecord{})
		return st, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if next.Status.State != models.StateProposalObtained || len(next.Decisions) != 1 {
		t.Errorf("successor = %+v", next.Status)
	}
	if next.UpdatedAt.IsZero() {
		t.Errorf("UpdatedAt not set")
	}

	stored, _ := s.Get("run-1")
	if stored.Status.State != models.StateProposalObtained {
		t.Errorf("store not updated: %v", stored.Status.State)
	}
}

func TestUpdateErrorLeavesStateUntouched(t *testing.T) {
	s := NewStore()
	s.Put(newRun("run-1", models.StatePending))

	wantErr := errors.New("node failed")
	if _, err := s.Update("run-1", func(st *models.WorkflowState) (*models.WorkflowState, error) {
		st.Status.State = models.StateFailed
		return nil, wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}

	stored, _ := s.Get("run-1")
	if stored.Status.State != models.StatePending {
		t.Errorf("failed update leaked: %v", stored.Status.State)
	}
}

func TestUpdateUnknownRun(t *testing.T) {
	s := NewStore()
	if _, err := s.Update("missing", func(st *models.WorkflowState) (*models.WorkflowState, error) {
		return st, nil
	}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateSerializesPerRun(t *testing.T) {
	s := NewStore()
	run := newRun("run-1", models.StatePending)
	run.Context.Metadata = map[string]any{"count": float64(0)}
	s.Put(run)

	var wg sync.WaitGroup
	const writers = 50
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update("run-1", func(st *models.WorkflowState) (*models.WorkflowState, error) {
				st.Context.Metadata["count"] = st.Context.Metadata["count"].(float64) + 1
				return st, nil
			})
		}()
	}
	wg.Wait()

	got, _ := s.Get("run-1")
	if count := got.Context.Metadata["count"].(float64); count != writers {
		t.Errorf("count = %v, want %d (updates lost)", count, writers)
	}
}

func TestIterateTerminalOlderThan(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(WithNow(func() time.Time { return current }))

	old := newRun("old-done", models.StateSucceeded)
	old.UpdatedAt = current.Add(-2 * time.Hour)
	s.Put(old)

	fresh := newRun("fresh-done", models.StateFailed)
	fresh.UpdatedAt = current.Add(-time.Minute)
	s.Put(fresh)

	live := newRun("live", models.StateAwaitingApproval)
	live.UpdatedAt = current.Add(-3 * time.Hour)
	s.Put(live)

	got := s.IterateTerminalOlderThan(time.Hour)
	if len(got) != 1 || got[0] != "old-done" {
		t.Errorf("sweep candidates = %v, want [old-done]", got)
	}
}

func TestDelete(t *testing.T) {
	s := NewStore()
	s.Put(newRun("run-1", models.StateSucceeded))
	s.Delete("run-1")
	if _, ok := s.Get("run-1"); ok {
		t.Errorf("run survived delete")
	}
	if s.Len() != 0 {
		t.Errorf("len = %d", s.Len())
	}
}
