package models

// ActionProposal is the structured output of a model invocation: which
// tool to call and with what parameters.
type ActionProposal struct {
	// Action names a tool expected to exist in the catalog at execution
	// time.
	Action string `json:"action"`

	// Parameters are schema-checked against the tool definition before
	// execution.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Reason is the model-authored rationale; informational only.
	Reason string `json:"reason,omitempty"`

	// ExpectedResult is the model's prediction of the outcome, if any.
	ExpectedResult string `json:"expected_result,omitempty"`
}

// Clone returns a deep copy of the proposal.
func (p ActionProposal) Clone() ActionProposal {
	out := p
	out.Parameters = cloneMap(p.Parameters)
	return out
}
