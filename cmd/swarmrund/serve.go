package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	swarmconfig "github.com/swarmrun/swarmrun/internal/config"
	"github.com/swarmrun/swarmrun/internal/dispatch"
	"github.com/swarmrun/swarmrun/internal/engine"
	"github.com/swarmrun/swarmrun/internal/modelclient"
	"github.com/swarmrun/swarmrun/internal/models"
	"github.com/swarmrun/swarmrun/internal/observability"
	"github.com/swarmrun/swarmrun/internal/policy"
	"github.com/swarmrun/swarmrun/internal/registry"
	"github.com/swarmrun/swarmrun/internal/retry"
	"github.com/swarmrun/swarmrun/internal/runtime"
	"github.com/swarmrun/swarmrun/internal/runtime/sweep"
	"github.com/swarmrun/swarmrun/internal/store"
	"github.com/swarmrun/swarmrun/pkg/toolkit"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		envPath    string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Agent Execution Engine, Agent Runtime, and Tool Dispatch Bus responder",
		Long: `Start the swarmrun daemon.

The server will:
1. Load configuration from the specified file (and .env, and env vars)
2. Connect to Postgres and NATS
3. Register the built-in tool set and start the dispatch bus responder
4. Start the stale-agent sweep
5. Serve Prometheus metrics and a liveness endpoint

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, envPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&envPath, "env-file", ".env", "Path to a .env file (optional)")
	return cmd
}

func runServe(ctx context.Context, configPath, envPath string) error {
	cfg, err := swarmconfig.Load(configPath, envPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName: "swarmrun",
		Endpoint:    cfg.Observability.OTLPEndpoint,
	})
	defer shutdownTracer(context.Background()) //nolint:errcheck

	metrics := observability.NewMetrics()

	pgConfig := store.DefaultPostgresConfig()
	if cfg.Store.MaxConns > 0 {
		pgConfig.MaxOpenConns = cfg.Store.MaxConns
	}
	conversationStore, err := store.NewPostgresStoreFromDSN(cfg.Store.DSN, pgConfig)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer conversationStore.Close()

	bus, err := buildBus(cfg.Dispatch, logger)
	if err != nil {
		return fmt.Errorf("connect dispatch bus: %w", err)
	}
	defer bus.Close()

	modelRegistry := modelclient.NewRegistry()
	if err := registerProviders(modelRegistry); err != nil {
		return fmt.Errorf("register model providers: %w", err)
	}

	summarizer := &modelclient.RegistrySummarizer{
		Registry: modelRegistry,
		Provider: cfg.Engine.DefaultProvider,
		Model:    os.Getenv("SUMMARIZATION_MODEL"),
	}

	resolver := policy.NewResolver()
	execEngine := engine.New(conversationStore, bus, modelRegistry, resolver, summarizer, logger, tracer, cfg.Engine.EngineConfig())

	rt := runtime.New()
	var pool *runtime.Pool
	catalog := engine.NewToolCatalog()
	toolRegistry := toolkit.NewRegistry()

	pool = runtime.NewPool(rt, agentRunner(execEngine, cfg, catalog), cfg.Runtime.MaxAgentTaskThreads)
	registerTools(toolRegistry, catalog, pool, rt, messageAppender(execEngine))

	var registryClient registry.Client = registry.NewHTTPClient(cfg.Registry.AgentManagerAPIURL)
	if cfg.Registry.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Registry.RedisAddr})
		registryClient = registry.NewCachedClient(registryClient, redisClient, cfg.Registry.CacheTTL)
	}
	_ = registryClient // role configs are resolved per-conversation by the caller driving RunToCompletion

	stopSweep, err := startSweep(rt, cfg, logger)
	if err != nil {
		return fmt.Errorf("start sweep: %w", err)
	}
	defer stopSweep()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- bus.Serve(ctx, toolRegistry.Handler()) }()
	go func() { errCh <- serveHTTP(ctx, cfg.Observability.MetricsAddr) }()

	_ = metrics

	logger.Info(ctx, "swarmrun daemon started",
		"metrics_addr", cfg.Observability.MetricsAddr,
		"default_provider", cfg.Engine.DefaultProvider,
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info(context.Background(), "shutdown signal received, stopping gracefully")
	return nil
}

func buildBus(cfg swarmconfig.DispatchConfig, logger *observability.Logger) (dispatch.Bus, error) {
	if cfg.NATSURL == "" {
		return dispatch.NewMemoryBus(cfg.BusConfig()), nil
	}
	return dispatch.NewNATSBus(cfg.NATSURL, cfg.BusConfig(), logger)
}

func registerProviders(models *modelclient.Registry) error {
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		provider, err := modelclient.NewAnthropicProvider(modelclient.AnthropicConfig{
			APIKey:      apiKey,
			RetryConfig: retry.DefaultConfig(),
		})
		if err != nil {
			return err
		}
		models.Register(provider)
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		provider, err := modelclient.NewOpenAIProvider(modelclient.OpenAIConfig{
			APIKey:      apiKey,
			RetryConfig: retry.DefaultConfig(),
		})
		if err != nil {
			return err
		}
		models.Register(provider)
	}
	return nil
}

// registerTools registers the built-in tool set into both reg (for the Tool
// Dispatch Bus responder) and catalog (for the Engine's tool-call loop),
// keeping their descriptions and schemas in lockstep.
func registerTools(reg *toolkit.Registry, catalog *engine.ToolCatalog, pool *runtime.Pool, rt *runtime.Runtime, appendFn runtime.AppendFunc) {
	fsConfig := toolkit.FSConfig{Workspace: workspaceDir()}
	tools := []toolkit.Tool{
		toolkit.NewEchoTool(),
		toolkit.NewReadFileTool(fsConfig),
		toolkit.NewWriteFileTool(fsConfig),
		toolkit.NewRunBashTool(fsConfig),
		toolkit.NewAgentTaskTool(pool),
		toolkit.NewBroadcastTool(rt, appendFn),
	}
	for _, tool := range tools {
		reg.Register(tool)
		catalog.Register(engine.ToolDescriptor{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
}

func agentRunner(execEngine *engine.Engine, cfg swarmconfig.Config, catalog *engine.ToolCatalog) runtime.Runner {
	return func(ctx context.Context, identity runtime.Identity, repoURL, prompt string) (string, error) {
		key := models.ConversationKey{RepoURL: repoURL, AgentRole: identity.Role, AgentID: identity.ID}
		if err := execEngine.SeedTurnZero(ctx, key, cfg.Engine.SystemPrompt, "", prompt); err != nil && err != engine.ErrTurnZeroExists {
			return "", err
		}
		result, err := execEngine.RunToCompletion(ctx, key, catalog, "", "", cfg.Engine.ToolChoice)
		if err != nil {
			return "", err
		}
		return result.FinalContent, nil
	}
}

// messageAppender adapts the Agent Execution Engine's AppendMessages into a
// runtime.AppendFunc, the same composition-root indirection agentRunner uses
// for run_agent_task's turn loop.
func messageAppender(execEngine *engine.Engine) runtime.AppendFunc {
	return func(ctx context.Context, identity runtime.Identity, repoURL, turnRole string, content []string) (int, []int, error) {
		key := models.ConversationKey{RepoURL: repoURL, AgentRole: identity.Role, AgentID: identity.ID}
		return execEngine.AppendMessages(ctx, key, models.Role(turnRole), content)
	}
}

func startSweep(rt *runtime.Runtime, cfg swarmconfig.Config, logger *observability.Logger) (func(), error) {
	sweeper := sweep.New(rt, cfg.Runtime.SweepConfig(), logger)
	if err := sweeper.Start(); err != nil {
		return nil, err
	}
	return sweeper.Stop, nil
}

func serveHTTP(ctx context.Context, addr string) error {
	if addr == "" {
		addr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func workspaceDir() string {
	if dir := os.Getenv("SWARMRUN_WORKSPACE"); dir != "" {
		return dir
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}
