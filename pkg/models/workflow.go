package models

import "time"

// WorkflowStateName identifies where a run sits in the orchestrator graph.
type WorkflowStateName string

// Workflow states in graph order. Terminal states are permanent.
const (
	StatePending                     WorkflowStateName = "PENDING"
	StateCapabilityDiscoveryComplete WorkflowStateName = "CAPABILITY_DISCOVERY_COMPLETE"
	StateProposalObtained            WorkflowStateName = "PROPOSAL_OBTAINED"
	StatePolicyApproved              WorkflowStateName = "POLICY_APPROVED"
	StatePolicyRejected              WorkflowStateName = "POLICY_REJECTED"
	StateAwaitingApproval            WorkflowStateName = "AWAITING_APPROVAL"
	StateApprovalSkipped             WorkflowStateName = "APPROVAL_SKIPPED"
	StateApprovalComplete            WorkflowStateName = "APPROVAL_COMPLETE"
	StateApprovalRejected            WorkflowStateName = "APPROVAL_REJECTED"
	StateResultsProcessed            WorkflowStateName = "RESULTS_PROCESSED"
	StateExecutionFailed             WorkflowStateName = "EXECUTION_FAILED"
	StateTaskComplete                WorkflowStateName = "TASK_COMPLETE"
	StateTaskIncomplete              WorkflowStateName = "TASK_INCOMPLETE"
	StateApprovalResolved            WorkflowStateName = "APPROVAL_RESOLVED"
	StateSucceeded                   WorkflowStateName = "SUCCEEDED"
	StateFailed                      WorkflowStateName = "FAILED"
	StateRejected                    WorkflowStateName = "REJECTED"
	StateCancelled                   WorkflowStateName = "CANCELLED"
)

// IsTerminal reports whether the state is one a run never leaves.
func (s WorkflowStateName) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateRejected, StateCancelled:
		return true
	}
	return false
}

// WorkflowStatus pairs the state name with an operator-readable message
// and the most recent error, if any.
type WorkflowStatus struct {
	State   WorkflowStateName `json:"state"`
	Message string            `json:"message,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// DecisionRecord snapshots one model proposal; the decisions sequence is
// append-only.
type DecisionRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Proposal  ActionProposal `json:"proposal"`
}

// ExecutionRecord captures one tool execution outcome; the executions
// sequence is append-only.
type ExecutionRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	OK        bool      `json:"ok"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// WorkflowState is the single coherent state object threaded through the
// orchestrator. Nodes never mutate it in place; the graph runtime merges
// partial updates into a fresh successor.
type WorkflowState struct {
	RunID   string           `json:"run_id"`
	Status  WorkflowStatus   `json:"status"`
	Context ExecutionContext `json:"context"`

	// CurrentProposal is non-nil whenever Status.State is at or past
	// PROPOSAL_OBTAINED and before RESULTS_PROCESSED.
	CurrentProposal *ActionProposal `json:"current_proposal,omitempty"`

	// AvailableCapabilities is the role-filtered catalog from discovery.
	AvailableCapabilities *ToolCatalog `json:"available_capabilities,omitempty"`

	Decisions  []DecisionRecord  `json:"decisions"`
	Executions []ExecutionRecord `json:"executions"`

	// Approvals holds approval request IDs in creation order.
	Approvals []string `json:"approvals"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can never observe or mutate the
// store's live value.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	out := *s
	out.Context = s.Context.Clone()
	if s.CurrentProposal != nil {
		p := s.CurrentProposal.Clone()
		out.CurrentProposal = &p
	}
	out.AvailableCapabilities = s.AvailableCapabilities.Clone()
	out.Decisions = append([]DecisionRecord(nil), s.Decisions...)
	out.Executions = append([]ExecutionRecord(nil), s.Executions...)
	out.Approvals = append([]string(nil), s.Approvals...)
	return &out
}

// Terminal reports whether the run has reached a permanent state.
func (s *WorkflowState) Terminal() bool {
	return s != nil && s.Status.State.IsTerminal()
}
