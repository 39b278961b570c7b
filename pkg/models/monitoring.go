package models

import "time"

// DatumType classifies a monitoring observation.
type DatumType string

const (
	DatumTask        DatumType = "task"
	DatumChatMessage DatumType = "chat-message"
	DatumEmail       DatumType = "email"
	DatumCustom      DatumType = "custom"
)

// MonitoringDatum is one observation fetched from an external source by a
// checking point.
type MonitoringDatum struct {
	// ID is stable within the source so repeat observations can be
	// deduplicated by consumers.
	ID        string         `json:"id"`
	Type      DatumType      `json:"type"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// CheckResultType classifies one checking-point evaluation.
type CheckResultType string

const (
	CheckMatch   CheckResultType = "MATCH"
	CheckNoMatch CheckResultType = "NO_MATCH"
	CheckError   CheckResultType = "ERROR"
)

// CheckResult is the outcome of evaluating one datum against one checking
// point. ShouldAct implies ResultType == MATCH.
type CheckResult struct {
	CheckingPointName string          `json:"checking_point_name"`
	CheckingPointType string          `json:"checking_point_type"`
	ResultType        CheckResultType `json:"result_type"`
	ShouldAct         bool            `json:"should_act"`

	// Confidence is in [0,1].
	Confidence float64 `json:"confidence"`

	Reason string `json:"reason,omitempty"`

	// Context holds facts extracted from the datum for downstream action
	// construction.
	Context map[string]any `json:"context,omitempty"`

	SuggestedActions   []string      `json:"suggested_actions,omitempty"`
	EvaluationDuration time.Duration `json:"evaluation_duration"`
	ErrorMessage       string        `json:"error_message,omitempty"`
}

// AIAction is the scheduler's request to start an orchestrator run on
// behalf of a checking point.
type AIAction struct {
	Name              string `json:"name"`
	WorkflowName      string `json:"workflow_name"`
	CheckingPointName string `json:"checking_point_name"`

	Timeout time.Duration `json:"timeout"`

	PromptTemplateID string `json:"prompt_template_id,omitempty"`
	AgentRole        string `json:"agent_role"`

	ApprovalRequired bool          `json:"approval_required"`
	ApprovalTimeout  time.Duration `json:"approval_timeout"`

	// Priority is 1..10, higher first.
	Priority int `json:"priority"`

	Parameters      map[string]any `json:"parameters,omitempty"`
	PromptVariables map[string]any `json:"prompt_variables,omitempty"`
}

// ImmediateAction is a lightweight side effect emitted by a checking
// point alongside or instead of an AI workflow, such as a notification
// or a status tag.
type ImmediateAction struct {
	Name       string         `json:"name"`
	Target     string         `json:"target,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}
