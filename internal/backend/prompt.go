package backend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/haasonsaas/overseer/pkg/models"
)

// proposalInstructions tells the model to answer with a single JSON
// object matching the ActionProposal shape.
const proposalInstructions = `Respond with a single JSON object and nothing else:
{"action": "<tool name>", "parameters": {...}, "reason": "<why>", "expected_result": "<prediction>"}`

// BuildSystemPrompt assembles the system prompt from the role template
// and the catalog rendered for model consumption. An empty catalog omits
// the tools section entirely; the backends attach tool definitions
// natively, so the rendered list is advisory context, not the contract.
func BuildSystemPrompt(roleTemplate string, tools []models.ToolDescriptor) string {
	var b strings.Builder
	if strings.TrimSpace(roleTemplate) != "" {
		b.WriteString(strings.TrimSpace(roleTemplate))
		b.WriteString("\n\n")
	}
	if len(tools) > 0 {
		b.WriteString("Available tools:\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
			if len(t.Parameters) > 0 {
				fmt.Fprintf(&b, "  parameters: %s\n", compactJSON(t.Parameters))
			}
		}
		b.WriteString("\n")
	}
	b.WriteString(proposalInstructions)
	return b.String()
}

// BuildTaskPrompt renders the user-facing prompt from the task and any
// prompt variables.
func BuildTaskPrompt(ec models.ExecutionContext, variables map[string]any) string {
	var b strings.Builder
	b.WriteString("Task: ")
	b.WriteString(ec.TaskDescription)
	if len(variables) > 0 {
		b.WriteString("\n\nContext:\n")
		keys := make([]string, 0, len(variables))
		for k := range variables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, variables[k])
		}
	}
	return b.String()
}

func compactJSON(raw []byte) string {
	s := strings.Join(strings.Fields(string(raw)), " ")
	const max = 512
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
