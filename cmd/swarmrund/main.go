// Package main provides the process entrypoint for swarmrund: the daemon
// that runs the Agent Execution Engine, Agent Runtime, and Tool Dispatch
// Bus responder.
//
// # Basic Usage
//
//	swarmrund serve --config swarmrun.yaml
//	swarmrund migrate
//
// # Environment Variables
//
// Configuration can be overridden via environment variables; see
// internal/config for the full list (AGENTS_DB_FILE, AGENT_MANAGER_API_URL,
// NATS_URL, NATS_SUBJECT_EXEC_REQ, NATS_SUBJECT_EXEC_RESP,
// NATS_STREAM_EXEC_REQ, NATS_CONSUMER_NAME, NATS_PUBLISH_ACK_TIMEOUT,
// NATS_ACK_WAIT, LLM_SYSTEM_PROMPT, TOOL_CHOICE, MAX_AGENT_TASK_THREADS,
// TURN_EXEC_TIMEOUT, MAX_ITERATIONS).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "swarmrund",
		Short:        "swarmrund runs the multi-agent orchestration runtime",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildMigrateCmd())
	return root
}
