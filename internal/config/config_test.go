package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
backend:
  provider: anthropic
  api_key: ${TEST_OVERSEER_KEY}
  model: claude-sonnet-4-20250514

policy:
  tool:
    denied_tools: [delete_everything]
  approval:
    require_approval_for_all: false
    high_risk_tools: [deploy_service]
    approval_timeout: 30m
  safety:
    allowed_roles: [sre, operator]

roles:
  sre:
    system_prompt: "You are an SRE assistant."
    tools: [fetch_status, restart_service]

scheduler:
  tick_interval: 2s
  queue_size: 16

points:
  - name: urgent-tasks
    type: tracker_urgent
    interval: 1m
    enabled: true
    priority: 8
    ai_workflow_enabled: true
    agent_role: sre
    rate_limit:
      calls_per_minute: 10
      enabled: true
  - name: support-channel
    type: chat_bot_mention
    schedule: "*/2 * * * *"
    enabled: true
    priority: 5
    source:
      type: slack
      channel: C123
      token: ${SLACK_BOT_TOKEN}
`

func TestParseExpandsEnvAndDefaults(t *testing.T) {
	t.Setenv("TEST_OVERSEER_KEY", "sk-test-123")

	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Backend.APIKey != "sk-test-123" {
		t.Errorf("api key = %q, env not expanded", cfg.Backend.APIKey)
	}
	if cfg.Scheduler.TickInterval.Duration() != 2*time.Second {
		t.Errorf("tick interval = %v", cfg.Scheduler.TickInterval)
	}
	// Unset fields keep the defaults.
	if cfg.Scheduler.MaxConcurrency != 4 {
		t.Errorf("max concurrency default = %d, want 4", cfg.Scheduler.MaxConcurrency)
	}
	if cfg.Retention.Window.Duration() != time.Hour {
		t.Errorf("retention window default = %v", cfg.Retention.Window)
	}
	if cfg.Policy.Approval.ApprovalTimeout.Duration() != 30*time.Minute {
		t.Errorf("approval timeout = %v", cfg.Policy.Approval.ApprovalTimeout)
	}
	_, approvalPolicy, _ := cfg.Policy.Policies()
	if approvalPolicy.ApprovalTimeout != 30*time.Minute {
		t.Errorf("converted approval timeout = %v", approvalPolicy.ApprovalTimeout)
	}
	if len(cfg.Points) != 2 {
		t.Fatalf("points = %d, want 2", len(cfg.Points))
	}
	if cfg.Points[1].Source.Type != "slack" || cfg.Points[1].Source.Channel != "C123" {
		t.Errorf("slack source = %+v", cfg.Points[1].Source)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	if _, err := Parse([]byte("backend:\n  provider: anthropic\n  nope: 1\n")); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown provider", func(c *Config) { c.Backend.Provider = "llama-farm" }, "backend.provider"},
		{"missing point name", func(c *Config) { c.Points = []PointSpec{{Type: "tracker_urgent"}} }, "name is required"},
		{"duplicate point", func(c *Config) {
			c.Points = []PointSpec{
				{Name: "a", Type: "tracker_urgent"},
				{Name: "a", Type: "tracker_overdue"},
			}
		}, "duplicate"},
		{"priority out of range", func(c *Config) {
			c.Points = []PointSpec{{Name: "a", Type: "tracker_urgent", Priority: 11}}
		}, "priority"},
		{"slack without channel", func(c *Config) {
			c.Points = []PointSpec{{Name: "a", Type: "chat_bot_mention", Source: SourceSpec{Type: "slack"}}}
		}, "channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overseer.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Points[0].Name != "urgent-tasks" {
		t.Errorf("point name = %s", cfg.Points[0].Name)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestPointConfigConversion(t *testing.T) {
	spec := PointSpec{
		Name:              "urgent",
		Type:              "tracker_urgent",
		Enabled:           true,
		AIWorkflowEnabled: true,
		AgentRole:         "sre",
		Params:            map[string]any{"vip_users": []any{"U1"}},
	}
	cfg := spec.PointConfig()
	if !cfg.Enabled || !cfg.AIWorkflowEnabled || cfg.AgentRole != "sre" {
		t.Errorf("conversion lost fields: %+v", cfg)
	}
	if cfg.Priority != 5 {
		t.Errorf("priority default = %d, want 5", cfg.Priority)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("timeout default = %v", cfg.Timeout)
	}
}
