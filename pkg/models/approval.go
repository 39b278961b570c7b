package models

import "time"

// ApprovalStatus is the lifecycle state of an approval request. Requests
// start PENDING and transition to exactly one terminal state.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "PENDING"
	ApprovalApproved  ApprovalStatus = "APPROVED"
	ApprovalRejected  ApprovalStatus = "REJECTED"
	ApprovalExpired   ApprovalStatus = "EXPIRED"
	ApprovalCancelled ApprovalStatus = "CANCELLED"
)

// Terminal reports whether the status is final.
func (s ApprovalStatus) Terminal() bool {
	return s != ApprovalPending && s != ""
}

// ApprovalRequest is a human sign-off gate for one tool invocation.
// Resolved* fields are set iff the status is no longer PENDING.
type ApprovalRequest struct {
	ApprovalID string `json:"approval_id"`
	RunID      string `json:"run_id"`

	// Tool is a snapshot of the descriptor at request time.
	Tool ToolDescriptor `json:"tool"`

	// Context is a snapshot of the run's execution context.
	Context ExecutionContext `json:"context"`

	Status    ApprovalStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`

	ResolvedAt       time.Time `json:"resolved_at,omitempty"`
	ResolvedBy       string    `json:"resolved_by,omitempty"`
	ResolutionReason string    `json:"resolution_reason,omitempty"`
}

// Expired reports whether the request is past its deadline at the given
// instant. Only meaningful for PENDING requests; expiration is checked
// lazily on access.
func (r *ApprovalRequest) Expired(now time.Time) bool {
	return r != nil && !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Clone returns a deep copy of the request.
func (r *ApprovalRequest) Clone() *ApprovalRequest {
	if r == nil {
		return nil
	}
	out := *r
	out.Tool = r.Tool.Clone()
	out.Context = r.Context.Clone()
	return &out
}

// ApprovalStats aggregates a run's approvals by status.
type ApprovalStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Expired   int `json:"expired"`
	Cancelled int `json:"cancelled"`
}
