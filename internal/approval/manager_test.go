package approval

import (
	"testing"
	"time"

	"github.com/haasonsaas/overseer/pkg/models"
)

func testTool() models.ToolDescriptor {
	return models.ToolDescriptor{Name: "deploy", Description: "deploys a service"}
}

func testContext() models.ExecutionContext {
	return models.ExecutionContext{TaskDescription: "deploy api", AgentRole: "sre", UserID: "u1"}
}

func TestCreateAndGet(t *testing.T) {
	m := NewManager()
	req := m.Create("run-1", testTool(), testContext(), time.Hour)

	if req.ApprovalID == "" {
		t.Fatal("approval id not generated")
	}
	if req.Status != models.ApprovalPending {
		t.Errorf("status = %v, want PENDING", req.Status)
	}
	if got := req.ExpiresAt.Sub(req.CreatedAt); got != time.Hour {
		t.Errorf("expiry window = %v, want 1h", got)
	}

	fetched := m.Get(req.ApprovalID)
	if fetched == nil || fetched.RunID != "run-1" {
		t.Errorf("Get returned %+v", fetched)
	}
	if m.Get("missing") != nil {
		t.Errorf("Get(missing) should be nil")
	}
}

func TestApproveLifecycle(t *testing.T) {
	m := NewManager()
	req := m.Create("run-1", testTool(), testContext(), time.Hour)

	if !m.Approve(req.ApprovalID, "ops", "looks good") {
		t.Fatal("Approve returned false")
	}

	resolved := m.Get(req.ApprovalID)
	if resolved.Status != models.ApprovalApproved {
		t.Errorf("status = %v, want APPROVED", resolved.Status)
	}
	if resolved.ResolvedBy != "ops" || resolved.ResolutionReason != "looks good" {
		t.Errorf("resolution fields = %q %q", resolved.ResolvedBy, resolved.ResolutionReason)
	}

	// Duplicate resolution is a no-op.
	if m.Approve(req.ApprovalID, "ops2", "again") {
		t.Errorf("second Approve should return false")
	}
	if m.Reject(req.ApprovalID, "ops2", "flip") {
		t.Errorf("Reject after Approve should return false")
	}
	if got := m.Get(req.ApprovalID); got.ResolvedBy != "ops" {
		t.Errorf("duplicate resolution overwrote fields: %q", got.ResolvedBy)
	}
}

func TestLazyExpiration(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(WithNow(func() time.Time { return current }))

	req := m.Create("run-1", testTool(), testContext(), 30*time.Minute)

	if pending := m.GetPending("run-1"); len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	current = current.Add(time.Hour)

	if pending := m.GetPending("run-1"); len(pending) != 0 {
		t.Fatalf("pending after deadline = %d, want 0", len(pending))
	}
	expired := m.Get(req.ApprovalID)
	if expired.Status != models.ApprovalExpired {
		t.Errorf("status = %v, want EXPIRED", expired.Status)
	}
	if expired.ResolutionReason != "expired" {
		t.Errorf("resolution reason = %q, want expired", expired.ResolutionReason)
	}

	// Resolving an expired request fails.
	if m.Approve(req.ApprovalID, "ops", "too late") {
		t.Errorf("Approve after expiry should return false")
	}
}

func TestCancelRun(t *testing.T) {
	m := NewManager()
	first := m.Create("run-1", testTool(), testContext(), time.Hour)
	m.Create("run-1", testTool(), testContext(), time.Hour)
	other := m.Create("run-2", testTool(), testContext(), time.Hour)

	m.Approve(first.ApprovalID, "ops", "ok")

	if count := m.CancelRun("run-1", "abort"); count != 1 {
		t.Errorf("CancelRun = %d, want 1 (approved request untouched)", count)
	}
	if got := m.Get(other.ApprovalID); got.Status != models.ApprovalPending {
		t.Errorf("other run affected: %v", got.Status)
	}
}

func TestStats(t *testing.T) {
	m := NewManager()
	a := m.Create("run-1", testTool(), testContext(), time.Hour)
	b := m.Create("run-1", testTool(), testContext(), time.Hour)
	m.Create("run-1", testTool(), testContext(), time.Hour)

	m.Approve(a.ApprovalID, "ops", "ok")
	m.Reject(b.ApprovalID, "ops", "no")

	stats := m.Stats("run-1")
	if stats.Total != 3 || stats.Approved != 1 || stats.Rejected != 1 || stats.Pending != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestClearRun(t *testing.T) {
	m := NewManager()
	req := m.Create("run-1", testTool(), testContext(), time.Hour)
	m.ClearRun("run-1")

	if m.Get(req.ApprovalID) != nil {
		t.Errorf("request survived ClearRun")
	}
	if stats := m.Stats("run-1"); stats.Total != 0 {
		t.Errorf("stats after clear = %+v", stats)
	}
}

func TestSweep(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(WithNow(func() time.Time { return current }))

	m.Create("run-1", testTool(), testContext(), 10*time.Minute)
	m.Create("run-2", testTool(), testContext(), time.Hour)

	current = current.Add(30 * time.Minute)
	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep = %d, want 1", n)
	}
}
