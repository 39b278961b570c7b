package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseProposalJSON interprets raw model output as an action proposal.
// Models occasionally emit malformed JSON (trailing commas, unquoted
// keys, fenced code blocks); a repair pass is attempted before giving up.
func ParseProposalJSON(raw string) (action string, params map[string]any, reason, expected string, err error) {
	text := stripCodeFence(raw)

	var doc struct {
		Action         string         `json:"action"`
		Parameters     map[string]any `json:"parameters"`
		Reason         string         `json:"reason"`
		ExpectedResult string         `json:"expected_result"`
	}

	if uerr := json.Unmarshal([]byte(text), &doc); uerr != nil {
		repaired, rerr := jsonrepair.JSONRepair(text)
		if rerr != nil {
			return "", nil, "", "", fmt.Errorf("%w: %v", ErrProposalParse, uerr)
		}
		if uerr := json.Unmarshal([]byte(repaired), &doc); uerr != nil {
			return "", nil, "", "", fmt.Errorf("%w: %v", ErrProposalParse, uerr)
		}
	}

	if strings.TrimSpace(doc.Action) == "" {
		return "", nil, "", "", fmt.Errorf("%w: missing action", ErrProposalParse)
	}
	return doc.Action, doc.Parameters, doc.Reason, doc.ExpectedResult, nil
}

// stripCodeFence removes a surrounding markdown code fence if present.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
