// handlers.go contains the command implementations: the serve wiring
// that assembles the engine, and the thin API-client handlers behind
// the remaining commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/overseer/internal/agentcache"
	"github.com/haasonsaas/overseer/internal/approval"
	"github.com/haasonsaas/overseer/internal/backend"
	"github.com/haasonsaas/overseer/internal/capability"
	"github.com/haasonsaas/overseer/internal/catalog"
	"github.com/haasonsaas/overseer/internal/checkpoint"
	"github.com/haasonsaas/overseer/internal/checkpoint/sources"
	"github.com/haasonsaas/overseer/internal/config"
	"github.com/haasonsaas/overseer/internal/gateway"
	"github.com/haasonsaas/overseer/internal/observability"
	"github.com/haasonsaas/overseer/internal/orchestrator"
	"github.com/haasonsaas/overseer/internal/policy"
	"github.com/haasonsaas/overseer/internal/scheduler"
	"github.com/haasonsaas/overseer/internal/state"
	"github.com/haasonsaas/overseer/pkg/models"
)

const approvalSweepInterval = time.Minute

// runServe assembles the engine from configuration and serves until
// SIGINT or SIGTERM.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.Logging, debug)
	logger := slog.Default()

	metrics := observability.NewMetrics()
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	tools, err := buildCatalog(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("build catalog: %w", err)
	}
	modelBackend, err := buildBackend(cfg.Backend)
	if err != nil {
		return fmt.Errorf("build backend: %w", err)
	}

	capOpts := []capability.Option{}
	for role, rc := range cfg.Roles {
		if len(rc.Tools) > 0 {
			capOpts = append(capOpts, capability.WithRoleTools(role, rc.Tools))
		}
	}
	capabilities := capability.NewRegistry(tools, capOpts...)

	agents, err := agentcache.New(agentBuilder(cfg), 0)
	if err != nil {
		return fmt.Errorf("agent cache: %w", err)
	}

	toolPolicy, approvalPolicy, safetyPolicy := cfg.Policy.Policies()
	approvals := approval.NewManager()
	states := state.NewStore()

	orch := orchestrator.New(
		capabilities,
		modelBackend,
		agents,
		policy.NewEngine(toolPolicy, approvalPolicy, safetyPolicy),
		approvals,
		states,
		tools,
		orchestrator.Options{RetentionWindow: cfg.Retention.Window.Duration()},
		orchestrator.WithMetrics(metrics),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch.StartRetention(ctx, cfg.Retention.SweepInterval.Duration())
	approvals.StartSweeper(ctx, approvalSweepInterval)

	entries, err := buildEntries(cfg)
	if err != nil {
		return fmt.Errorf("build checking points: %w", err)
	}
	sched := scheduler.New(orch, scheduler.Config{
		TickInterval:    cfg.Scheduler.TickInterval.Duration(),
		MaxConcurrency:  cfg.Scheduler.MaxConcurrency,
		QueueSize:       cfg.Scheduler.QueueSize,
		SystemRateLimit: cfg.Scheduler.SystemRateLimit,
	}, scheduler.WithMetrics(metrics))
	sched.SetEntries(entries)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	watcher := config.NewWatcher(configPath, func(next *config.Config) {
		swapped, err := buildEntries(next)
		if err != nil {
			logger.Warn("reloaded config has invalid points, keeping previous", "error", err)
			return
		}
		sched.SetEntries(swapped)
		logger.Info("checking points reloaded", "count", len(swapped))
	})
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watch unavailable", "error", err)
	}

	server := gateway.New(gateway.Config{
		Addr:         cfg.Server.Addr(),
		Orchestrator: orch,
		Scheduler:    sched,
		Registry:     registry,
	})
	if err := server.Start(); err != nil {
		return err
	}

	logger.Info("overseer started",
		"addr", server.Addr(),
		"points", len(entries),
		"backend", cfg.Backend.Provider)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = watcher.Close()
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler stop", "error", err)
	}
	return server.Shutdown(shutdownCtx)
}

func setupLogging(cfg config.LoggingConfig, debug bool) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// buildCatalog merges the configured MCP servers into one catalog
// client. No servers yields an empty static catalog.
func buildCatalog(cfg config.CatalogConfig) (catalog.Client, error) {
	if len(cfg.Servers) == 0 {
		return catalog.NewStaticClient(), nil
	}
	clients := make([]catalog.Client, 0, len(cfg.Servers))
	for _, server := range cfg.Servers {
		client, err := catalog.NewMCPClient(catalog.MCPConfig{
			ServerID: server.Name,
			Command:  server.Command,
			Args:     server.Args,
			Env:      server.Env,
			Filter:   cfg.AllowedTools,
		})
		if err != nil {
			return nil, fmt.Errorf("server %s: %w", server.Name, err)
		}
		clients = append(clients, client)
	}
	if len(clients) == 1 {
		return clients[0], nil
	}
	return catalog.NewMultiClient(clients...), nil
}

func buildBackend(cfg config.BackendConfig) (backend.Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return backend.NewAnthropicClient(backend.AnthropicConfig{
			APIKey:       keyOrEnv(cfg.APIKey, "ANTHROPIC_API_KEY"),
			DefaultModel: cfg.Model,
		})
	case "openai":
		return backend.NewOpenAIClient(backend.OpenAIConfig{
			APIKey:       keyOrEnv(cfg.APIKey, "OPENAI_API_KEY"),
			DefaultModel: cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unknown backend provider %q", cfg.Provider)
	}
}

func keyOrEnv(key, envVar string) string {
	if key != "" {
		return key
	}
	return os.Getenv(envVar)
}

// agentBuilder resolves roles against the configured role registry.
// Unknown roles get a generic agent with the backend defaults; role
// admission is the safety policy's concern.
func agentBuilder(cfg *config.Config) agentcache.Builder {
	return func(role string) (backend.Agent, error) {
		agent := backend.Agent{
			Role:      role,
			Model:     cfg.Backend.Model,
			MaxTokens: cfg.Backend.MaxTokens,
		}
		rc, ok := cfg.Roles[role]
		if ok {
			if rc.Model != "" {
				agent.Model = rc.Model
			}
			if rc.MaxTokens > 0 {
				agent.MaxTokens = rc.MaxTokens
			}
		}
		agent.SystemPrompt = backend.BuildSystemPrompt(rc.SystemPrompt, nil)
		return agent, nil
	}
}

func buildEntries(cfg *config.Config) ([]scheduler.Entry, error) {
	entries := make([]scheduler.Entry, 0, len(cfg.Points))
	for _, spec := range cfg.Points {
		src, err := buildSource(spec.Source)
		if err != nil {
			return nil, fmt.Errorf("point %s: %w", spec.Name, err)
		}
		point, err := checkpoint.Default().Instantiate(spec.Type, spec.Name, spec.PointConfig(), src)
		if err != nil {
			return nil, fmt.Errorf("point %s: %w", spec.Name, err)
		}
		entries = append(entries, scheduler.Entry{
			Point:        point,
			Schedule:     spec.Schedule,
			Interval:     spec.Interval.Duration(),
			FetchParams:  spec.Params,
			RateLimit:    spec.RateLimit,
			TargetSystem: spec.TargetSystem,
		})
	}
	return entries, nil
}

func buildSource(spec config.SourceSpec) (sources.Source, error) {
	switch spec.Type {
	case "", "memory":
		return sources.NewMemorySource(), nil
	case "slack":
		token := keyOrEnv(spec.Token, "SLACK_BOT_TOKEN")
		if token == "" {
			return nil, fmt.Errorf("slack source needs a token")
		}
		return sources.NewSlackSource(token, spec.Channel, spec.Limit), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", spec.Type)
	}
}

// =============================================================================
// Client-side handlers
// =============================================================================

func runSubmit(ctx context.Context, serverAddr, task, role, userID string) error {
	client := newAPIClient(resolveBaseURL(serverAddr))

	var out gateway.RunResponse
	err := client.postJSON(ctx, "/api/runs", gateway.RunRequest{
		TaskDescription: task,
		AgentRole:       role,
		UserID:          userID,
	}, &out)
	if err != nil {
		return err
	}
	if err := printJSON(out.State); err != nil {
		return err
	}
	if out.State != nil && out.State.Status.State == models.StateAwaitingApproval {
		fmt.Fprintf(os.Stderr, "\nRun %s is awaiting approval. Resolve with:\n", out.RunID)
		for _, id := range out.State.Approvals {
			fmt.Fprintf(os.Stderr, "  overseer approve %s --approver <you>\n", id)
		}
	}
	return nil
}

func runResolve(ctx context.Context, serverAddr, approvalID, verb, approver, reason string) error {
	client := newAPIClient(resolveBaseURL(serverAddr))

	var state models.WorkflowState
	err := client.postJSON(ctx, "/api/approvals/"+approvalID+"/"+verb,
		gateway.ResolveRequest{Approver: approver, Reason: reason}, &state)
	if err != nil {
		return err
	}
	return printJSON(state)
}

func runCancel(ctx context.Context, serverAddr, runID, reason string) error {
	client := newAPIClient(resolveBaseURL(serverAddr))

	var state models.WorkflowState
	err := client.postJSON(ctx, "/api/runs/"+runID+"/cancel",
		gateway.CancelRequest{Reason: reason}, &state)
	if err != nil {
		return err
	}
	return printJSON(state)
}

func runStatus(ctx context.Context, serverAddr, runID string) error {
	client := newAPIClient(resolveBaseURL(serverAddr))

	var state models.WorkflowState
	if err := client.getJSON(ctx, "/api/runs/"+runID, &state); err != nil {
		return err
	}
	return printJSON(state)
}

func runPoints(ctx context.Context, serverAddr string) error {
	client := newAPIClient(resolveBaseURL(serverAddr))

	var out gateway.PointsResponse
	if err := client.getJSON(ctx, "/api/points", &out); err != nil {
		return err
	}
	return printJSON(out)
}

func runPointTypes() error {
	return printJSON(checkpoint.Default().Types())
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
