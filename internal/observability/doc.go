// Package observability provides monitoring and debugging capabilities for the
// swarmrun daemon through metrics, structured logging, and distributed tracing.
//
// # Overview
//
// The observability package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// # Architecture
//
// The package is designed to be:
//   - Low-overhead: Minimal performance impact on production systems
//   - Type-safe: Strongly-typed APIs reduce configuration errors
//   - Production-ready: Built-in security (redaction) and reliability features
//   - Standards-based: Uses Prometheus, OpenTelemetry, and slog
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Turns persisted and their duration, by agent role
//   - Tool dispatch latency and outcome, by tool name
//   - LLM request latency, by provider and model
//   - Spawn-graph edges created and duplicate-spawn rejections
//   - Live agent counts by lifecycle status, and worker pool saturation
//   - Context-compaction (summarisation) duration
//   - Error counts by component and error type
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	start := time.Now()
//	// ... call the model provider ...
//	metrics.RecordLLMRequest("anthropic", "claude-3-opus", "success", time.Since(start).Seconds())
//
//	start = time.Now()
//	// ... dispatch a tool call ...
//	metrics.RecordToolDispatch("run_bash", "success", time.Since(start).Seconds())
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	// Add context IDs for correlation
//	ctx := observability.AddRequestID(ctx, requestID)
//	ctx = observability.AddSessionID(ctx, sessionID)
//	ctx = observability.AddAgentRole(ctx, "reviewer")
//
//	// Structured logging with automatic context correlation
//	logger.Info(ctx, "running turn",
//	    "agent_id", agentID,
//	    "turn_idx", turnIdx,
//	)
//
//	// Error logging with automatic redaction
//	logger.Error(ctx, "llm request failed",
//	    "error", err,
//	    "provider", "anthropic",
//	    "api_key", apiKey, // Automatically redacted
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track a turn across the engine,
// the model provider, and the tool dispatch bus:
//   - End-to-end turn visualization
//   - Performance bottleneck identification
//   - Error correlation across the dispatch bus
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "swarmrun",
//	    Endpoint:    "localhost:4317", // OTLP collector
//	})
//	defer shutdown(context.Background())
//
//	// Trace one full turn
//	ctx, span := tracer.TraceTurn(ctx, "reviewer", agentID)
//	defer span.End()
//
//	// Trace the LLM request nested within it
//	ctx, llmSpan := tracer.TraceLLMRequest(ctx, "anthropic", "claude-3-opus")
//	defer llmSpan.End()
//	tracer.SetAttributes(llmSpan, "prompt_tokens", 100, "completion_tokens", 500)
//
//	// Trace tool dispatch nested within it
//	ctx, toolSpan := tracer.TraceToolExecution(ctx, "run_bash")
//	defer toolSpan.End()
//	if err != nil {
//	    tracer.RecordError(toolSpan, err)
//	}
//
// # Context Propagation
//
// All three components integrate with Go's context for automatic correlation:
//
//	ctx = observability.AddRequestID(ctx, "req-123")
//	ctx = observability.AddSessionID(ctx, "sess-456")
//	ctx = observability.AddAgentID(ctx, "agent-789")
//	ctx = observability.AddAgentRole(ctx, "reviewer")
//
//	// IDs automatically appear in logs
//	logger.Info(ctx, "running turn") // Includes request_id, session_id, etc.
//
//	// Spans inherit context
//	ctx, span := tracer.Start(ctx, "operation")
//	// Trace context propagates to child spans
//
// # Integration Example
//
// Complete example integrating all three components around one turn:
//
//	func RunTurn(ctx context.Context, key models.ConversationKey) error {
//	    ctx = observability.AddRequestID(ctx, generateID())
//	    ctx = observability.AddAgentRole(ctx, key.AgentRole)
//	    ctx = observability.AddAgentID(ctx, key.AgentID)
//
//	    ctx, span := tracer.TraceTurn(ctx, key.AgentRole, key.AgentID)
//	    defer span.End()
//
//	    logger.Info(ctx, "running turn")
//
//	    llmStart := time.Now()
//	    ctx, llmSpan := tracer.TraceLLMRequest(ctx, "anthropic", "claude-3-opus")
//	    defer llmSpan.End()
//
//	    result, err := provider.Complete(ctx, req)
//	    duration := time.Since(llmStart).Seconds()
//
//	    if err != nil {
//	        metrics.RecordError("engine", "llm_request_failed")
//	        tracer.RecordError(llmSpan, err)
//	        logger.Error(ctx, "llm request failed", "error", err)
//	        metrics.RecordLLMRequest("anthropic", "claude-3-opus", "error", duration)
//	        return err
//	    }
//
//	    metrics.RecordLLMRequest("anthropic", "claude-3-opus", "success", duration)
//	    metrics.RecordTurnDuration(key.AgentRole, time.Since(start).Seconds())
//	    logger.Info(ctx, "turn completed", "duration_ms", duration*1000)
//	    return nil
//	}
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
//
// Sensitive fields in maps are also redacted:
//   - password, passwd, pwd
//   - secret, api_key, apikey
//   - token, auth, authorization
//   - private_key, privatekey
//
// # Performance
//
// The observability system is designed for minimal overhead:
//   - Metrics use lock-free counters where possible
//   - Logging with slog is highly efficient
//   - Tracing supports sampling to reduce overhead
//   - Context propagation is zero-allocation in most cases
//
// # Configuration
//
// All components support configuration via structs:
//
//	// Metrics - no configuration needed, auto-registered
//	metrics := observability.NewMetrics()
//
//	// Logging - configurable output, level, format
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:          os.Getenv("LOG_LEVEL"),
//	    Format:         "json",
//	    AddSource:      true,
//	    RedactPatterns: []string{`custom-secret-\d+`},
//	})
//
//	// Tracing - configurable endpoint and service identity
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "swarmrun",
//	    Endpoint:    os.Getenv("OTEL_ENDPOINT"),
//	})
//	defer shutdown(context.Background())
//
// # Testing
//
// All components provide testable interfaces:
//   - Metrics can be verified using prometheus/testutil
//   - Logging can write to bytes.Buffer for assertions
//   - Tracing works with no-op exporters in tests
//
// # Best Practices
//
//  1. Always propagate context to enable correlation
//  2. Use defer for span.End() to ensure spans are closed
//  3. Record errors on both metrics and traces
//  4. Use structured logging with key-value pairs
//  5. Add relevant attributes to spans for debugging
//  6. Use typed metric labels (avoid high-cardinality values)
//  7. Call shutdown() on tracer during graceful shutdown
//
// # Monitoring Dashboard
//
// The metrics exposed can be used to build dashboards:
//
//	# Turn throughput
//	rate(swarmrun_turns_persisted_total[5m])
//
//	# LLM request latency (95th percentile)
//	histogram_quantile(0.95, rate(swarmrun_llm_request_duration_seconds_bucket[5m]))
//
//	# Error rate
//	rate(swarmrun_errors_total[5m])
//
//	# Live agents
//	swarmrun_live_agents
//
//	# Tool dispatch time
//	rate(swarmrun_tool_dispatch_duration_seconds_sum[5m]) /
//	rate(swarmrun_tool_dispatch_duration_seconds_count[5m])
//
// # Alerting
//
// Recommended alerts based on metrics:
//   - High error rate: swarmrun_errors_total > threshold
//   - High LLM latency: p95 latency > 10s
//   - Worker pool saturation: swarmrun_worker_pool_saturation near 1.0
//   - Agent accumulation: swarmrun_live_agents growing unbounded
//
// # Further Reading
//
//   - Prometheus best practices: https://prometheus.io/docs/practices/naming/
//   - OpenTelemetry specification: https://opentelemetry.io/docs/specs/otel/
//   - slog documentation: https://pkg.go.dev/log/slog
package observability
