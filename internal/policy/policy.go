// Package policy encapsulates tool-access, approval-requirement, and
// safety policies. The engine decides allow/deny for a proposed action
// and whether a human approval gate is required, and tracks execution
// counters with a guaranteed-release discipline.
package policy

import (
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/overseer/pkg/models"
)

// Decision is the outcome of validating a proposal.
type Decision string

const (
	Allowed            Decision = "ALLOWED"
	DeniedByToolPolicy Decision = "DENIED_BY_TOOL_POLICY"
	DeniedByRole       Decision = "DENIED_BY_ROLE"
	DeniedByLimit      Decision = "DENIED_BY_LIMIT"
	DeniedBySafety     Decision = "DENIED_BY_SAFETY"
)

// Denied reports whether the decision is any denial.
func (d Decision) Denied() bool {
	return d != Allowed
}

// writeIndicators flag tool names that mutate external systems for the
// read-only heuristic. Matched case-insensitively as substrings.
var writeIndicators = []string{"write", "delete", "remove", "update", "create", "deploy", "execute"}

// ToolPolicy governs which tools may be executed and how often.
type ToolPolicy struct {
	// AllowedTools, when non-nil, is an allow-list by name.
	AllowedTools []string `yaml:"allowed_tools"`

	// DeniedTools is a deny-list by name; checked first.
	DeniedTools []string `yaml:"denied_tools"`

	// ReadOnly denies tools whose name carries a write indicator.
	ReadOnly bool `yaml:"read_only"`

	// MaxExecutions bounds per-tool executions; zero means unlimited.
	MaxExecutions int `yaml:"max_executions"`
}

// ApprovalPolicy decides when a human sign-off is required.
type ApprovalPolicy struct {
	// RequireApprovalForAll gates every tool execution.
	RequireApprovalForAll bool `yaml:"require_approval_for_all"`

	// HighRiskTools always require approval.
	HighRiskTools []string `yaml:"high_risk_tools"`

	// ApprovalTimeout is how long requests stay actionable.
	// Default: 1h.
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`
}

// SafetyPolicy constrains who may run agents and how many executions
// run at once.
type SafetyPolicy struct {
	// AllowedRoles, when non-empty, restricts which agent roles may
	// execute tools.
	AllowedRoles []string `yaml:"allowed_roles"`

	// MaxConcurrentExecutions bounds in-flight tool executions; zero
	// means unlimited.
	MaxConcurrentExecutions int `yaml:"max_concurrent_executions"`

	// TimeoutPerExecution bounds one tool execution. Default: 30s.
	TimeoutPerExecution time.Duration `yaml:"timeout_per_execution"`
}

// DefaultApprovalTimeout is applied when the approval policy does not
// set one.
const DefaultApprovalTimeout = time.Hour

// DefaultExecutionTimeout is applied when the safety policy does not set
// one.
const DefaultExecutionTimeout = 30 * time.Second

// Engine evaluates the three sub-policies and owns the execution
// counters.
type Engine struct {
	mu         sync.Mutex
	tool       ToolPolicy
	approval   ApprovalPolicy
	safety     SafetyPolicy
	execCounts map[string]int
	concurrent int
}

// NewEngine creates a policy engine.
func NewEngine(tool ToolPolicy, approval ApprovalPolicy, safety SafetyPolicy) *Engine {
	if approval.ApprovalTimeout <= 0 {
		approval.ApprovalTimeout = DefaultApprovalTimeout
	}
	if safety.TimeoutPerExecution <= 0 {
		safety.TimeoutPerExecution = DefaultExecutionTimeout
	}
	return &Engine{
		tool:       tool,
		approval:   approval,
		safety:     safety,
		execCounts: make(map[string]int),
	}
}

// Validate checks the proposal against the tool and safety policies.
// The first matching denial wins; the reason explains the decision for
// the run's status.
func (e *Engine) Validate(proposal models.ActionProposal, ec models.ExecutionContext, catalog *models.ToolCatalog) (Decision, string) {
	name := proposal.Action

	if containsName(e.tool.DeniedTools, name) {
		return DeniedByToolPolicy, "tool in denied list: " + name
	}
	if e.tool.AllowedTools != nil && !containsName(e.tool.AllowedTools, name) {
		return DeniedByToolPolicy, "tool not in allowed list: " + name
	}
	if e.tool.ReadOnly && hasWriteIndicator(name) {
		return DeniedByToolPolicy, "read-only policy denies write tool: " + name
	}

	e.mu.Lock()
	count := e.execCounts[name]
	concurrent := e.concurrent
	e.mu.Unlock()

	if e.tool.MaxExecutions > 0 && count >= e.tool.MaxExecutions {
		return DeniedByLimit, "execution limit reached for tool: " + name
	}

	if len(e.safety.AllowedRoles) > 0 && !containsName(e.safety.AllowedRoles, ec.AgentRole) {
		return DeniedByRole, "role not permitted: " + ec.AgentRole
	}
	if e.safety.MaxConcurrentExecutions > 0 && concurrent >= e.safety.MaxConcurrentExecutions {
		return DeniedByLimit, "concurrent execution limit reached"
	}

	// A proposal naming a tool outside the catalog is a policy failure
	// unless the catalog is empty and the allow-list names it anyway;
	// the attempt then fails at execution with tool-not-found.
	if catalog.Len() > 0 {
		if _, ok := catalog.Get(name); !ok {
			return DeniedByToolPolicy, "tool not in catalog: " + name
		}
	} else if e.tool.AllowedTools != nil && !containsName(e.tool.AllowedTools, name) {
		return DeniedByToolPolicy, "empty catalog and tool not explicitly allowed: " + name
	}

	return Allowed, "allowed"
}

// RequiresApproval reports whether the proposed action needs a human
// gate, and the timeout to apply to the request.
func (e *Engine) RequiresApproval(proposal models.ActionProposal) (bool, time.Duration) {
	if e.approval.RequireApprovalForAll {
		return true, e.approval.ApprovalTimeout
	}
	if containsName(e.approval.HighRiskTools, proposal.Action) {
		return true, e.approval.ApprovalTimeout
	}
	return false, e.approval.ApprovalTimeout
}

// ExecutionTimeout returns the per-execution timeout from the safety
// policy.
func (e *Engine) ExecutionTimeout() time.Duration {
	return e.safety.TimeoutPerExecution
}

// RecordExecution increments the per-tool execution counter and the
// concurrent counter. Every call must be paired with EndExecution on
// all paths, including error and timeout paths.
func (e *Engine) RecordExecution(toolName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.execCounts[toolName]++
	e.concurrent++
}

// EndExecution decrements the concurrent counter.
func (e *Engine) EndExecution() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.concurrent > 0 {
		e.concurrent--
	}
}

// ExecutionCount returns the recorded executions of a tool.
func (e *Engine) ExecutionCount(toolName string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execCounts[toolName]
}

// ConcurrentExecutions returns the current in-flight execution count.
func (e *Engine) ConcurrentExecutions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.concurrent
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func hasWriteIndicator(name string) bool {
	lower := strings.ToLower(name)
	for _, indicator := range writeIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
