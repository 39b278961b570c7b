package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/haasonsaas/overseer/internal/backend"
	"github.com/haasonsaas/overseer/internal/catalog"
	"github.com/haasonsaas/overseer/internal/executor"
	"github.com/haasonsaas/overseer/pkg/models"
)

// capabilityDiscovery fetches and role-filters the tool catalog into the
// state. Discovery failures end the run; a run without a catalog cannot
// propose anything meaningful.
func (o *Orchestrator) capabilityDiscovery(ctx context.Context, st *models.WorkflowState) *models.WorkflowState {
	next, err := o.capabilities.UpdateWorkflowState(ctx, st)
	if err != nil {
		return o.failRun(st, KindCapabilityDiscovery, err.Error())
	}
	next.Status = models.WorkflowStatus{
		State:   models.StateCapabilityDiscoveryComplete,
		Message: fmt.Sprintf("%d capabilities available", next.AvailableCapabilities.Len()),
	}
	return next
}

// agentDecision asks the model backend for the next action proposal and
// appends it to the decision history.
func (o *Orchestrator) agentDecision(ctx context.Context, st *models.WorkflowState) *models.WorkflowState {
	agent, err := o.agents.Get(st.Context.AgentRole)
	if err != nil {
		return o.failRun(st, KindInternal, fmt.Sprintf("build agent for role %q: %v", st.Context.AgentRole, err))
	}
	// The cached agent carries role config; the tool set always comes
	// from this run's discovered catalog.
	if st.AvailableCapabilities != nil {
		agent.Tools = st.AvailableCapabilities.Tools
	}

	prompt := backend.BuildTaskPrompt(st.Context, promptVariables(st.Context))
	proposal, err := o.backend.Run(ctx, agent, prompt, st.Context)
	if err != nil {
		if errors.Is(err, backend.ErrProposalParse) {
			return o.failRun(st, KindProposalParse, err.Error())
		}
		return o.failRun(st, KindBackend, err.Error())
	}

	st.Decisions = append(st.Decisions, models.DecisionRecord{
		Timestamp: o.now().UTC(),
		Proposal:  proposal.Clone(),
	})
	st.CurrentProposal = &proposal
	st.Status = models.WorkflowStatus{
		State:   models.StateProposalObtained,
		Message: "proposed action: " + proposal.Action,
	}
	return st
}

// policyValidation checks the proposal against tool, role, and limit
// policies. Denials carry the decision and reason into the status.
func (o *Orchestrator) policyValidation(st *models.WorkflowState) *models.WorkflowState {
	if st.CurrentProposal == nil {
		return o.failRun(st, KindInternal, "no proposal to validate")
	}
	decision, reason := o.policies.Validate(*st.CurrentProposal, st.Context, st.AvailableCapabilities)
	if decision.Denied() {
		st.Status = models.WorkflowStatus{
			State:   models.StatePolicyRejected,
			Message: string(decision),
			Error:   reason,
		}
		return st
	}
	st.Status = models.WorkflowStatus{
		State:   models.StatePolicyApproved,
		Message: reason,
	}
	return st
}

// approvalCheck creates an approval request when the policy requires a
// human gate for the proposed action; otherwise the gate is skipped.
func (o *Orchestrator) approvalCheck(st *models.WorkflowState) *models.WorkflowState {
	proposal := st.CurrentProposal
	if proposal == nil {
		return o.failRun(st, KindInternal, "no proposal at approval gate")
	}

	required, timeout := o.policies.RequiresApproval(*proposal)
	if !required {
		st.Status = models.WorkflowStatus{
			State:   models.StateApprovalSkipped,
			Message: "no approval required for: " + proposal.Action,
		}
		return st
	}

	tool := models.ToolDescriptor{Name: proposal.Action}
	if st.AvailableCapabilities != nil {
		if desc, ok := st.AvailableCapabilities.Get(proposal.Action); ok {
			tool = desc
		}
	}
	req := o.approvals.Create(st.RunID, tool, st.Context, timeout)
	st.Approvals = append(st.Approvals, req.ApprovalID)
	st.Status = models.WorkflowStatus{
		State:   models.StateAwaitingApproval,
		Message: "awaiting approval: " + req.ApprovalID,
	}
	o.metrics.RunsAwaitingApproval.Inc()
	return st
}

// approvalWorkflow inspects the run's approvals. While any are still
// pending the state is returned unchanged and the run stays suspended.
func (o *Orchestrator) approvalWorkflow(st *models.WorkflowState) *models.WorkflowState {
	if pending := o.approvals.GetPending(st.RunID); len(pending) > 0 {
		return st
	}

	stats := o.approvals.Stats(st.RunID)
	switch {
	case stats.Rejected > 0:
		st.Status = models.WorkflowStatus{
			State:   models.StateApprovalRejected,
			Message: "approval rejected",
			Error:   "approval rejected by approver",
		}
	case stats.Expired > 0:
		st.Status = models.WorkflowStatus{
			State:   models.StateApprovalRejected,
			Message: "approval expired",
			Error:   "approval request expired before resolution",
		}
	case stats.Cancelled > 0:
		st.Status = models.WorkflowStatus{
			State:   models.StateApprovalRejected,
			Message: "approval cancelled",
			Error:   "approval request cancelled",
		}
	default:
		st.Status = models.WorkflowStatus{
			State:   models.StateApprovalComplete,
			Message: fmt.Sprintf("%d approval(s) granted", stats.Approved),
		}
	}
	o.metrics.RunsAwaitingApproval.Dec()
	return st
}

// resultProcessing executes the approved action through the tool catalog
// under the per-execution timeout. The execution counter is recorded on
// entry and released on every exit path.
func (o *Orchestrator) resultProcessing(ctx context.Context, st *models.WorkflowState) *models.WorkflowState {
	proposal := st.CurrentProposal
	if proposal == nil {
		return o.failRun(st, KindInternal, "no proposal to execute")
	}

	o.policies.RecordExecution(proposal.Action)
	defer o.policies.EndExecution()

	timeout := o.policies.ExecutionTimeout()
	if timeout <= 0 {
		timeout = o.opts.ActionTimeout
	}

	res := o.exec.ExecuteCapability(ctx, proposal.Action, func(ctx context.Context) (any, error) {
		return o.tools.ExecuteTool(ctx, proposal.Action, proposal.Parameters)
	}, timeout)

	record := models.ExecutionRecord{
		Timestamp: o.now().UTC(),
		Action:    proposal.Action,
	}
	switch res.Status {
	case executor.CapabilitySuccess:
		outcome, ok := res.Result.(*catalog.ExecutionOutcome)
		if !ok || outcome == nil {
			record.Error = "tool returned no outcome"
		} else if outcome.OK {
			record.OK = true
			record.Data = outcome.Data
		} else {
			record.Error = outcome.Error
		}
	case executor.CapabilityTimeout:
		record.Error = "execution timeout after " + timeout.String()
	default:
		record.Error = res.Err.Error()
	}
	st.Executions = append(st.Executions, record)

	if record.OK {
		o.metrics.ToolExecutions.WithLabelValues(proposal.Action, "success").Inc()
		st.Status = models.WorkflowStatus{
			State:   models.StateResultsProcessed,
			Message: "executed: " + proposal.Action,
		}
	} else {
		o.metrics.ToolExecutions.WithLabelValues(proposal.Action, "error").Inc()
		st.Status = models.WorkflowStatus{
			State:   models.StateExecutionFailed,
			Message: "execution failed: " + proposal.Action,
			Error:   record.Error,
		}
	}
	return st
}

// completionCheck decides whether the task is done based on the latest
// execution outcome.
func (o *Orchestrator) completionCheck(st *models.WorkflowState) *models.WorkflowState {
	if len(st.Executions) == 0 {
		return o.failRun(st, KindInternal, "completion check with no executions")
	}
	last := st.Executions[len(st.Executions)-1]
	if last.OK {
		st.Status = models.WorkflowStatus{
			State:   models.StateTaskComplete,
			Message: "task complete",
		}
	} else {
		st.Status = models.WorkflowStatus{
			State:   models.StateTaskIncomplete,
			Message: "task incomplete",
			Error:   last.Error,
		}
	}
	return st
}

// approvalResolution archives the run's approvals and routes a completed
// task toward SUCCEEDED, an incomplete one toward the error handler.
func (o *Orchestrator) approvalResolution(st *models.WorkflowState) *models.WorkflowState {
	if st.Status.State == models.StateTaskIncomplete {
		return o.failRun(st, KindExecutionFailed, st.Status.Error)
	}
	st.Status = models.WorkflowStatus{
		State:   models.StateApprovalResolved,
		Message: "approvals resolved",
	}
	return st
}

// errorHandler converts the rejection states into their terminal form.
// Policy denials and expirations end FAILED; an explicit human rejection
// ends REJECTED.
func (o *Orchestrator) errorHandler(st *models.WorkflowState) *models.WorkflowState {
	switch st.Status.State {
	case models.StatePolicyRejected:
		reason := st.Status.Error
		if st.Status.Message != "" {
			// The message carries the policy decision name.
			reason = st.Status.Message + ": " + reason
		}
		return o.failRun(st, KindPolicyRejected, reason)
	case models.StateApprovalRejected:
		stats := o.approvals.Stats(st.RunID)
		switch {
		case stats.Rejected > 0:
			errText := string(KindApprovalRejected) + ": " + st.Status.Error
			o.appendErrorRecord(st, errText)
			st.Status = models.WorkflowStatus{
				State:   models.StateRejected,
				Message: "run rejected",
				Error:   errText,
			}
			return st
		case stats.Cancelled > 0:
			o.appendErrorRecord(st, st.Status.Error)
			st.Status = models.WorkflowStatus{
				State:   models.StateCancelled,
				Message: "run cancelled",
				Error:   st.Status.Error,
			}
			return st
		default:
			return o.failRun(st, KindApprovalRejected, st.Status.Error)
		}
	default:
		return o.failRun(st, KindInternal, "error handler reached from "+string(st.Status.State))
	}
}

// promptVariables extracts prompt template variables carried in the
// context metadata, if any.
func promptVariables(ec models.ExecutionContext) map[string]any {
	if ec.Metadata == nil {
		return nil
	}
	if vars, ok := ec.Metadata["prompt_variables"].(map[string]any); ok {
		return vars
	}
	return nil
}
