// Package models defines the shared data model for the Overseer
// orchestration engine: execution contexts, action proposals, tool
// descriptors, workflow run state, approval requests, and the monitoring
// types exchanged between checking points and the scheduler.
//
// All types serialize to a stable JSON encoding with RFC3339 UTC
// timestamps so that runs and approvals can be persisted and resumed.
package models

// ExecutionContext describes one task handed to the orchestrator.
// It is immutable once created; components receive copies or read-only
// references.
type ExecutionContext struct {
	// TaskDescription is the natural-language task for the agent.
	TaskDescription string `json:"task_description"`

	// AgentRole selects the prompt template, model, and policy profile.
	AgentRole string `json:"agent_role"`

	// UserID identifies the requesting user for audit and policy checks.
	UserID string `json:"user_id"`

	// Metadata carries arbitrary caller-supplied values.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the context.
func (c ExecutionContext) Clone() ExecutionContext {
	out := c
	out.Metadata = cloneMap(c.Metadata)
	return out
}

// cloneMap deep-copies a string-keyed map, recursing into nested maps and
// slices. Scalar values are copied by assignment.
func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
