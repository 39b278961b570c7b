// commands.go contains the cobra command definitions and their flag
// configurations. Each builder creates a command and wires it to its
// handler in handlers.go.
package main

import (
	"strings"

	"github.com/spf13/cobra"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestration engine",
		Long: `Start the engine with the configured backend, tool catalog, policies,
checking points, and control-plane HTTP server.

The server will:
1. Load configuration from the specified file (or overseer.yaml)
2. Connect the model backend and MCP tool servers
3. Start the checking-point scheduler and retention sweepers
4. Serve the HTTP API and Prometheus metrics

Configuration changes to checking points are picked up without restart.
Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config
  overseer serve

  # Start with custom config and debug logging
  overseer serve --config /etc/overseer/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func buildRunCmd() *cobra.Command {
	var (
		serverAddr string
		role       string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "run <task description>",
		Short: "Submit a task to a running engine",
		Long: `Submit a task for orchestration. The run either completes synchronously
or suspends awaiting approval; in the latter case the pending approval
IDs are printed for use with the approve and reject commands.`,
		Example: `  overseer run "restart the flaky canary" --role sre
  overseer run "rotate the api keys" --role operator --user jdoe`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), serverAddr, strings.Join(args, " "), role, userID)
		},
	}

	cmd.Flags().StringVarP(&serverAddr, "server", "s", "", "Engine address (host:port; default from config)")
	cmd.Flags().StringVarP(&role, "role", "r", "", "Agent role for the task")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Requesting user for audit")
	return cmd
}

func buildApproveCmd() *cobra.Command {
	var (
		serverAddr string
		approver   string
		reason     string
	)

	cmd := &cobra.Command{
		Use:   "approve <approval-id>",
		Short: "Approve a pending tool execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), serverAddr, args[0], "approve", approver, reason)
		},
	}

	cmd.Flags().StringVarP(&serverAddr, "server", "s", "", "Engine address (host:port; default from config)")
	cmd.Flags().StringVarP(&approver, "approver", "a", "", "Approver identity")
	cmd.Flags().StringVar(&reason, "reason", "", "Approval reason")
	return cmd
}

func buildRejectCmd() *cobra.Command {
	var (
		serverAddr string
		approver   string
		reason     string
	)

	cmd := &cobra.Command{
		Use:   "reject <approval-id>",
		Short: "Reject a pending tool execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), serverAddr, args[0], "reject", approver, reason)
		},
	}

	cmd.Flags().StringVarP(&serverAddr, "server", "s", "", "Engine address (host:port; default from config)")
	cmd.Flags().StringVarP(&approver, "approver", "a", "", "Approver identity")
	cmd.Flags().StringVar(&reason, "reason", "", "Rejection reason")
	return cmd
}

func buildCancelCmd() *cobra.Command {
	var (
		serverAddr string
		reason     string
	)

	cmd := &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(cmd.Context(), serverAddr, args[0], reason)
		},
	}

	cmd.Flags().StringVarP(&serverAddr, "server", "s", "", "Engine address (host:port; default from config)")
	cmd.Flags().StringVar(&reason, "reason", "", "Cancellation reason")
	return cmd
}

func buildStatusCmd() *cobra.Command {
	var serverAddr string

	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the state of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), serverAddr, args[0])
		},
	}

	cmd.Flags().StringVarP(&serverAddr, "server", "s", "", "Engine address (host:port; default from config)")
	return cmd
}

func buildPointsCmd() *cobra.Command {
	var (
		serverAddr string
		builtin    bool
	)

	cmd := &cobra.Command{
		Use:   "points",
		Short: "List configured checking points",
		Long: `List the checking points scheduled on a running engine, or with
--builtin the point types compiled into this binary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if builtin {
				return runPointTypes()
			}
			return runPoints(cmd.Context(), serverAddr)
		},
	}

	cmd.Flags().StringVarP(&serverAddr, "server", "s", "", "Engine address (host:port; default from config)")
	cmd.Flags().BoolVar(&builtin, "builtin", false, "List built-in point types instead")
	return cmd
}
