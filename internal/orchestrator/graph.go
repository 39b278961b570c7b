package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/overseer/pkg/models"
)

// ErrorKind classifies run failures for the terminal status error.
type ErrorKind string

const (
	KindCapabilityDiscovery ErrorKind = "CAPABILITY_DISCOVERY_FAILED"
	KindProposalParse       ErrorKind = "PROPOSAL_PARSE_ERROR"
	KindBackend             ErrorKind = "MODEL_BACKEND_ERROR"
	KindPolicyRejected      ErrorKind = "POLICY_REJECTED"
	KindApprovalRejected    ErrorKind = "APPROVAL_REJECTED"
	KindExecutionFailed     ErrorKind = "EXECUTION_FAILED"
	KindInternal            ErrorKind = "INTERNAL_ERROR"
)

// nodeName identifies one node of the workflow graph.
type nodeName string

const (
	nodeCapabilityDiscovery nodeName = "capability_discovery"
	nodeAgentDecision       nodeName = "agent_decision"
	nodePolicyValidation    nodeName = "policy_validation"
	nodeApprovalCheck       nodeName = "approval_check"
	nodeApprovalWorkflow    nodeName = "approval_workflow"
	nodeResultProcessing    nodeName = "result_processing"
	nodeCompletionCheck     nodeName = "completion_check"
	nodeApprovalResolution  nodeName = "approval_resolution"
	nodeErrorHandler        nodeName = "error_handler"

	// nodeFinish closes a fully resolved run with SUCCEEDED.
	nodeFinish nodeName = "finish"
)

// route maps the run's current status to the next node. It is a pure
// function of the state name; terminal states have no successor.
func route(state models.WorkflowStateName) (nodeName, bool) {
	switch state {
	case models.StatePending:
		return nodeCapabilityDiscovery, true
	case models.StateCapabilityDiscoveryComplete:
		return nodeAgentDecision, true
	case models.StateProposalObtained:
		return nodePolicyValidation, true
	case models.StatePolicyApproved:
		return nodeApprovalCheck, true
	case models.StatePolicyRejected:
		return nodeErrorHandler, true
	case models.StateAwaitingApproval:
		return nodeApprovalWorkflow, true
	case models.StateApprovalSkipped, models.StateApprovalComplete:
		return nodeResultProcessing, true
	case models.StateApprovalRejected:
		return nodeErrorHandler, true
	case models.StateResultsProcessed, models.StateExecutionFailed:
		return nodeCompletionCheck, true
	case models.StateTaskComplete, models.StateTaskIncomplete:
		return nodeApprovalResolution, true
	case models.StateApprovalResolved:
		return nodeFinish, true
	default:
		return "", false
	}
}

// drive advances the run node by node until it reaches a terminal state
// or suspends at the approval gate. Each node executes under the run's
// state lock, so concurrent drives of the same run serialize.
func (o *Orchestrator) drive(runID string) *models.WorkflowState {
	runCtx, cancel := context.WithTimeout(context.Background(), o.opts.OverallTimeout)
	defer cancel()

	o.mu.Lock()
	o.cancels[runID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.cancels, runID)
		o.mu.Unlock()
	}()

	for {
		current, ok := o.states.Get(runID)
		if !ok {
			return nil
		}
		if current.Terminal() {
			return current
		}

		node, ok := route(current.Status.State)
		if !ok {
			o.logger.Error("no route for state", "run_id", runID, "state", current.Status.State)
			return current
		}

		started := time.Now()
		next, err := o.states.Update(runID, func(st *models.WorkflowState) (*models.WorkflowState, error) {
			if st.Terminal() {
				return st, nil
			}
			// A Cancel may have interleaved; re-route from the fresh state.
			n, ok := route(st.Status.State)
			if !ok || n != node {
				return st, nil
			}
			return o.runNode(runCtx, n, st), nil
		})
		o.metrics.NodeDuration.WithLabelValues(string(node)).Observe(time.Since(started).Seconds())
		if err != nil {
			o.logger.Error("node update failed", "run_id", runID, "node", node, "error", err)
			return current
		}

		o.logger.Debug("node executed",
			"run_id", runID,
			"node", node,
			"state", next.Status.State)

		if next.Terminal() {
			o.metrics.RunsCompleted.WithLabelValues(string(next.Status.State)).Inc()
			return next
		}
		// The approval workflow holds the run in place while sign-offs
		// are pending; the run resumes from Approve, Reject, or Status.
		if next.Status.State == models.StateAwaitingApproval && node == nodeApprovalWorkflow {
			return next
		}
		if runCtx.Err() != nil {
			return o.foldCancellation(runID, runCtx.Err())
		}
	}
}

// runNode dispatches to the node implementation. Panics become an
// INTERNAL_ERROR terminal state instead of unwinding through the store.
func (o *Orchestrator) runNode(ctx context.Context, node nodeName, st *models.WorkflowState) (out *models.WorkflowState) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in node", "run_id", st.RunID, "node", node, "panic", r)
			out = o.failRun(st, KindInternal, fmt.Sprintf("panic in %s: %v", node, r))
		}
	}()

	switch node {
	case nodeCapabilityDiscovery:
		return o.capabilityDiscovery(ctx, st)
	case nodeAgentDecision:
		return o.agentDecision(ctx, st)
	case nodePolicyValidation:
		return o.policyValidation(st)
	case nodeApprovalCheck:
		return o.approvalCheck(st)
	case nodeApprovalWorkflow:
		return o.approvalWorkflow(st)
	case nodeResultProcessing:
		return o.resultProcessing(ctx, st)
	case nodeCompletionCheck:
		return o.completionCheck(st)
	case nodeApprovalResolution:
		return o.approvalResolution(st)
	case nodeErrorHandler:
		return o.errorHandler(st)
	case nodeFinish:
		st.Status = models.WorkflowStatus{
			State:   models.StateSucceeded,
			Message: "task complete",
		}
		return st
	default:
		return o.failRun(st, KindInternal, fmt.Sprintf("unknown node: %s", node))
	}
}

// foldCancellation converts a cancelled or timed-out drive into the
// matching terminal state, unless the run already reached one.
func (o *Orchestrator) foldCancellation(runID string, cause error) *models.WorkflowState {
	next, err := o.states.Update(runID, func(st *models.WorkflowState) (*models.WorkflowState, error) {
		if st.Terminal() {
			return st, nil
		}
		if errors.Is(cause, context.DeadlineExceeded) {
			st.Status = models.WorkflowStatus{
				State:   models.StateFailed,
				Message: "run exceeded overall timeout",
				Error:   string(KindExecutionFailed) + ": " + cause.Error(),
			}
		} else {
			st.Status = models.WorkflowStatus{
				State:   models.StateCancelled,
				Message: "run cancelled",
				Error:   cause.Error(),
			}
		}
		o.metrics.RunsCompleted.WithLabelValues(string(st.Status.State)).Inc()
		return st, nil
	})
	if err != nil {
		o.logger.Warn("cancellation fold failed", "run_id", runID, "error", err)
		st, _ := o.states.Get(runID)
		return st
	}
	return next
}

// failRun sets the terminal FAILED status with a classified error and
// documents the failure in the execution history.
func (o *Orchestrator) failRun(st *models.WorkflowState, kind ErrorKind, detail string) *models.WorkflowState {
	errText := string(kind) + ": " + detail
	o.appendErrorRecord(st, errText)
	st.Status = models.WorkflowStatus{
		State:   models.StateFailed,
		Message: "run failed",
		Error:   errText,
	}
	return st
}

// appendErrorRecord adds a failed execution record carrying the error
// and the state the run failed from. Failures that stem from an already
// recorded tool execution are not recorded twice.
func (o *Orchestrator) appendErrorRecord(st *models.WorkflowState, errText string) {
	if st.Status.State == models.StateTaskIncomplete {
		return
	}
	st.Executions = append(st.Executions, models.ExecutionRecord{
		Timestamp: o.now().UTC(),
		Action:    string(st.Status.State),
		Error:     errText,
	})
}
