package backend

import (
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/overseer/pkg/models"
)

func TestParseProposalJSON(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantAction string
		wantErr    bool
	}{
		{
			name:       "clean json",
			raw:        `{"action":"run_tests","parameters":{"suite":"unit"},"reason":"task asks for it"}`,
			wantAction: "run_tests",
		},
		{
			name:       "fenced json",
			raw:        "```json\n{\"action\":\"deploy\",\"parameters\":{}}\n```",
			wantAction: "deploy",
		},
		{
			name:       "trailing comma repaired",
			raw:        `{"action":"run_tests","parameters":{"suite":"unit",},}`,
			wantAction: "run_tests",
		},
		{
			name:       "single quotes repaired",
			raw:        `{'action': 'read_logs', 'parameters': {}}`,
			wantAction: "read_logs",
		},
		{
			name:    "missing action",
			raw:     `{"parameters":{}}`,
			wantErr: true,
		},
		{
			name:    "not json at all",
			raw:     "I think we should run the tests.",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, _, _, _, err := ParseProposalJSON(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got action %q", action)
				}
				if !errors.Is(err, ErrProposalParse) {
					t.Errorf("error %v does not wrap ErrProposalParse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProposalJSON: %v", err)
			}
			if action != tt.wantAction {
				t.Errorf("action = %q, want %q", action, tt.wantAction)
			}
		})
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt := BuildSystemPrompt("You are a release engineer.", []models.ToolDescriptor{
		{Name: "deploy", Description: "deploys a service"},
		{Name: "run_tests", Description: "runs the test suite"},
	})

	for _, want := range []string{"You are a release engineer.", "deploy: deploys a service", "run_tests", `"action"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("system prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildSystemPromptEmptyCatalog(t *testing.T) {
	prompt := BuildSystemPrompt("You are an SRE assistant.", nil)
	if strings.Contains(prompt, "Available tools") {
		t.Errorf("empty catalog should omit the tools section: %s", prompt)
	}
	for _, want := range []string{"You are an SRE assistant.", `"action"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("system prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildTaskPromptVariableOrderIsStable(t *testing.T) {
	ec := models.ExecutionContext{TaskDescription: "Triage the queue"}
	vars := map[string]any{"zone": "us-east", "alert": "high", "service": "api"}

	first := BuildTaskPrompt(ec, vars)
	for i := 0; i < 10; i++ {
		if got := BuildTaskPrompt(ec, vars); got != first {
			t.Fatalf("prompt varies across renders:\n%s\nvs\n%s", first, got)
		}
	}
	if alert, zone := strings.Index(first, "alert"), strings.Index(first, "zone"); alert > zone {
		t.Errorf("variables not sorted:\n%s", first)
	}
}

func TestBuildTaskPrompt(t *testing.T) {
	ec := models.ExecutionContext{TaskDescription: "Restart the API"}
	prompt := BuildTaskPrompt(ec, map[string]any{"service": "api"})
	if !strings.Contains(prompt, "Restart the API") || !strings.Contains(prompt, "service: api") {
		t.Errorf("task prompt incomplete: %s", prompt)
	}
}
