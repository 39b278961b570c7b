// Package config loads the engine configuration: model backend, tool
// catalog servers, policies, agent roles, scheduler settings, and
// checking points. Files are YAML with environment-variable expansion.
package config

import (
	"fmt"
	"time"

	"github.com/haasonsaas/overseer/internal/checkpoint"
	"github.com/haasonsaas/overseer/internal/policy"
	"github.com/haasonsaas/overseer/internal/ratelimit"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig          `yaml:"server"`
	Backend   BackendConfig         `yaml:"backend"`
	Catalog   CatalogConfig         `yaml:"catalog"`
	Policy    PolicyConfig          `yaml:"policy"`
	Roles     map[string]RoleConfig `yaml:"roles"`
	Scheduler SchedulerConfig       `yaml:"scheduler"`
	Points    []PointSpec           `yaml:"points"`
	Retention RetentionConfig       `yaml:"retention"`
	Logging   LoggingConfig         `yaml:"logging"`
}

// ServerConfig configures the control-plane HTTP listener.
type ServerConfig struct {
	// Host to bind. Default: 127.0.0.1.
	Host string `yaml:"host"`

	// Port for the HTTP API and metrics. Default: 7171.
	Port int `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BackendConfig selects and configures the model backend.
type BackendConfig struct {
	// Provider is anthropic or openai.
	Provider string `yaml:"provider"`

	// APIKey is usually supplied as ${ANTHROPIC_API_KEY} or similar.
	APIKey string `yaml:"api_key"`

	// Model overrides the provider default.
	Model string `yaml:"model"`

	// MaxTokens bounds completions; zero uses the provider default.
	MaxTokens int `yaml:"max_tokens"`
}

// CatalogConfig configures tool discovery.
type CatalogConfig struct {
	// Servers are MCP servers launched over stdio.
	Servers []MCPServerConfig `yaml:"servers"`

	// AllowedTools, when non-empty, filters the discovered catalog.
	AllowedTools []string `yaml:"allowed_tools"`
}

// MCPServerConfig describes one stdio MCP server.
type MCPServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// PolicyConfig groups the three policy families. Durations use the
// YAML-aware Duration type and convert to the policy package's structs
// through Policies.
type PolicyConfig struct {
	Tool     ToolPolicyConfig     `yaml:"tool"`
	Approval ApprovalPolicyConfig `yaml:"approval"`
	Safety   SafetyPolicyConfig   `yaml:"safety"`
}

// ToolPolicyConfig mirrors policy.ToolPolicy.
type ToolPolicyConfig struct {
	AllowedTools  []string `yaml:"allowed_tools"`
	DeniedTools   []string `yaml:"denied_tools"`
	ReadOnly      bool     `yaml:"read_only"`
	MaxExecutions int      `yaml:"max_executions"`
}

// ApprovalPolicyConfig mirrors policy.ApprovalPolicy.
type ApprovalPolicyConfig struct {
	RequireApprovalForAll bool     `yaml:"require_approval_for_all"`
	HighRiskTools         []string `yaml:"high_risk_tools"`
	ApprovalTimeout       Duration `yaml:"approval_timeout"`
}

// SafetyPolicyConfig mirrors policy.SafetyPolicy.
type SafetyPolicyConfig struct {
	AllowedRoles            []string `yaml:"allowed_roles"`
	MaxConcurrentExecutions int      `yaml:"max_concurrent_executions"`
	TimeoutPerExecution     Duration `yaml:"timeout_per_execution"`
}

// Policies converts to the policy engine's input types.
func (p PolicyConfig) Policies() (policy.ToolPolicy, policy.ApprovalPolicy, policy.SafetyPolicy) {
	return policy.ToolPolicy{
			AllowedTools:  p.Tool.AllowedTools,
			DeniedTools:   p.Tool.DeniedTools,
			ReadOnly:      p.Tool.ReadOnly,
			MaxExecutions: p.Tool.MaxExecutions,
		}, policy.ApprovalPolicy{
			RequireApprovalForAll: p.Approval.RequireApprovalForAll,
			HighRiskTools:         p.Approval.HighRiskTools,
			ApprovalTimeout:       p.Approval.ApprovalTimeout.Duration(),
		}, policy.SafetyPolicy{
			AllowedRoles:            p.Safety.AllowedRoles,
			MaxConcurrentExecutions: p.Safety.MaxConcurrentExecutions,
			TimeoutPerExecution:     p.Safety.TimeoutPerExecution.Duration(),
		}
}

// RoleConfig defines one agent role for the role registry.
type RoleConfig struct {
	// SystemPrompt is the role's prompt template.
	SystemPrompt string `yaml:"system_prompt"`

	// Model overrides the backend default for this role.
	Model string `yaml:"model"`

	// Tools restricts the role to the named tools; empty means the
	// full catalog.
	Tools []string `yaml:"tools"`

	// MaxTokens overrides the backend completion bound.
	MaxTokens int `yaml:"max_tokens"`
}

// SchedulerConfig configures the checking-point scheduler.
type SchedulerConfig struct {
	TickInterval    Duration         `yaml:"tick_interval"`
	MaxConcurrency  int              `yaml:"max_concurrency"`
	QueueSize       int              `yaml:"queue_size"`
	SystemRateLimit ratelimit.Config `yaml:"system_rate_limit"`
}

// PointSpec declares one checking-point instance.
type PointSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// Schedule is a cron expression; Interval applies when empty.
	Schedule string   `yaml:"schedule"`
	Interval Duration `yaml:"interval"`

	Enabled           bool           `yaml:"enabled"`
	Priority          int            `yaml:"priority"`
	StopOnMatch       bool           `yaml:"stop_on_match"`
	AIWorkflowEnabled bool           `yaml:"ai_workflow_enabled"`
	PromptTemplateID  string         `yaml:"prompt_template_id"`
	AgentRole         string         `yaml:"agent_role"`
	Timeout           Duration       `yaml:"timeout"`
	ApprovalRequired  bool           `yaml:"approval_required"`
	ApprovalTimeout   Duration       `yaml:"approval_timeout"`
	Params            map[string]any `yaml:"params"`

	Source    SourceSpec       `yaml:"source"`
	RateLimit ratelimit.Config `yaml:"rate_limit"`

	// TargetSystem keys the shared outbound rate limit.
	TargetSystem string `yaml:"target_system"`
}

// SourceSpec selects the point's data source.
type SourceSpec struct {
	// Type is memory or slack.
	Type string `yaml:"type"`

	// Channel is the Slack channel ID for slack sources.
	Channel string `yaml:"channel"`

	// Token is the Slack bot token, usually ${SLACK_BOT_TOKEN}.
	Token string `yaml:"token"`

	// Limit caps messages fetched per cycle.
	Limit int `yaml:"limit"`
}

// RetentionConfig controls terminal-run garbage collection.
type RetentionConfig struct {
	// Window is how long terminal runs stay queryable. Default: 1h.
	Window Duration `yaml:"window"`

	// SweepInterval is how often the sweeper runs. Default: 5m.
	SweepInterval Duration `yaml:"sweep_interval"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "127.0.0.1", Port: 7171},
		Backend: BackendConfig{Provider: "anthropic"},
		Scheduler: SchedulerConfig{
			TickInterval:    Duration(time.Second),
			MaxConcurrency:  4,
			QueueSize:       64,
			SystemRateLimit: ratelimit.DefaultConfig(),
		},
		Retention: RetentionConfig{
			Window:        Duration(time.Hour),
			SweepInterval: Duration(5 * time.Minute),
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Backend.Provider {
	case "anthropic", "openai":
	case "":
		return fmt.Errorf("backend.provider is required")
	default:
		return fmt.Errorf("unknown backend.provider %q", c.Backend.Provider)
	}

	seen := make(map[string]bool, len(c.Points))
	for i, p := range c.Points {
		if p.Name == "" {
			return fmt.Errorf("points[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("points[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
		if p.Type == "" {
			return fmt.Errorf("point %s: type is required", p.Name)
		}
		if p.Priority < 0 || p.Priority > 10 {
			return fmt.Errorf("point %s: priority %d outside 1..10", p.Name, p.Priority)
		}
		switch p.Source.Type {
		case "", "memory":
		case "slack":
			if p.Source.Channel == "" {
				return fmt.Errorf("point %s: slack source needs a channel", p.Name)
			}
		default:
			return fmt.Errorf("point %s: unknown source type %q", p.Name, p.Source.Type)
		}
	}
	return nil
}

// PointConfig converts the declaration to the checkpoint configuration.
func (p PointSpec) PointConfig() checkpoint.PointConfig {
	cfg := checkpoint.PointConfig{
		Enabled:           p.Enabled,
		Priority:          p.Priority,
		StopOnMatch:       p.StopOnMatch,
		AIWorkflowEnabled: p.AIWorkflowEnabled,
		PromptTemplateID:  p.PromptTemplateID,
		AgentRole:         p.AgentRole,
		Timeout:           p.Timeout.Duration(),
		ApprovalRequired:  p.ApprovalRequired,
		ApprovalTimeout:   p.ApprovalTimeout.Duration(),
		Params:            p.Params,
	}
	if cfg.Priority == 0 {
		cfg.Priority = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return cfg
}
