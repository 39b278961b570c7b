// Package main provides the CLI entry point for the Overseer agent
// orchestration engine.
//
// Overseer drives AI-agent workflows through a policy-gated execution
// graph: capability discovery, model proposal, policy validation, human
// approval, and tool execution. A scheduler watches configured checking
// points and feeds matched findings into the same graph.
//
// # Basic Usage
//
// Start the engine:
//
//	overseer serve --config overseer.yaml
//
// Submit a task and inspect it:
//
//	overseer run "restart the flaky canary" --role sre
//	overseer status <run-id>
//
// Resolve a pending approval:
//
//	overseer approve <approval-id> --approver ops --reason "looks safe"
//
// # Environment Variables
//
//   - OVERSEER_CONFIG: Path to configuration file (default: overseer.yaml)
//   - ANTHROPIC_API_KEY: Anthropic API key
//   - OPENAI_API_KEY: OpenAI API key
//   - SLACK_BOT_TOKEN: Slack bot token for slack checking-point sources
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "overseer",
		Short: "Overseer - policy-gated AI agent orchestration",
		Long: `Overseer runs AI-agent workflows through a nine-node execution graph
with policy validation and human approval gates, and schedules checking
points that watch external systems for conditions worth acting on.

Supported model backends: Anthropic (Claude), OpenAI (GPT)
Tool catalogs: MCP servers over stdio`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildRunCmd(),
		buildApproveCmd(),
		buildRejectCmd(),
		buildCancelCmd(),
		buildStatusCmd(),
		buildPointsCmd(),
	)
	return rootCmd
}

// resolveConfigPath applies the OVERSEER_CONFIG fallback.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("OVERSEER_CONFIG"); env != "" {
		return env
	}
	return "overseer.yaml"
}
