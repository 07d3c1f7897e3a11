// Package engine implements the Agent Execution Engine: one turn of one
// agent's conversation, from loading history through a model call, tool
// dispatch, and persistence, iterated to drive an agent to completion.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/swarmrun/swarmrun/internal/compaction"
	"github.com/swarmrun/swarmrun/internal/dispatch"
	"github.com/swarmrun/swarmrun/internal/modelclient"
	"github.com/swarmrun/swarmrun/internal/observability"
	"github.com/swarmrun/swarmrun/internal/policy"
	"github.com/swarmrun/swarmrun/internal/store"
)

// Config governs iteration limits and per-call defaults. Zero values are
// replaced with sane defaults by NewEngine.
type Config struct {
	// MaxIterations bounds RunToCompletion's loop.
	MaxIterations int
	// DispatchTimeout bounds how long Dispatch waits for a tool response.
	DispatchTimeout time.Duration
	// Compaction governs when and how conversation history is summarised.
	Compaction compaction.Config
	// DefaultProvider names the provider used when a model string carries
	// no explicit "<provider>/<model>" prefix.
	DefaultProvider string
}

// DefaultConfig returns the engine's default limits.
func DefaultConfig() Config {
	return Config{
		MaxIterations:   25,
		DispatchTimeout: 30 * time.Second,
		Compaction:      compaction.DefaultConfig(),
		DefaultProvider: "anthropic",
	}
}

// Engine owns one turn of one agent and, iterated via RunToCompletion,
// drives an agent to a finalized terminal turn.
type Engine struct {
	store      store.Store
	bus        dispatch.Bus
	models     *modelclient.Registry
	resolver   *policy.Resolver
	summarizer compaction.Summarizer
	logger     *observability.Logger
	tracer     *observability.Tracer
	config     Config

	sessionLocksMu sync.Mutex
	sessionLocks   map[string]*sessionLock
}

// New builds an Engine. summarizer may be nil, in which case compaction
// never triggers (ShouldCompact is never consulted without one).
func New(s store.Store, bus dispatch.Bus, models *modelclient.Registry, resolver *policy.Resolver, summarizer compaction.Summarizer, logger *observability.Logger, tracer *observability.Tracer, config Config) *Engine {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultConfig().MaxIterations
	}
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = DefaultConfig().DispatchTimeout
	}
	if config.DefaultProvider == "" {
		config.DefaultProvider = DefaultConfig().DefaultProvider
	}
	return &Engine{
		store:        s,
		bus:          bus,
		models:       models,
		resolver:     resolver,
		summarizer:   summarizer,
		logger:       logger,
		tracer:       tracer,
		config:       config,
		sessionLocks: make(map[string]*sessionLock),
	}
}

// sessionLock is a refcounted per-conversation mutex: the last unlocker
// removes its entry so the map never grows unbounded across a long-running
// process.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (e *Engine) lockConversation(convKey string) func() {
	e.sessionLocksMu.Lock()
	lock := e.sessionLocks[convKey]
	if lock == nil {
		lock = &sessionLock{}
		e.sessionLocks[convKey] = lock
	}
	lock.refs++
	e.sessionLocksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		e.sessionLocksMu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(e.sessionLocks, convKey)
		}
		e.sessionLocksMu.Unlock()
	}
}

// splitModel parses a "<provider>/<model>" string, falling back to the
// engine's DefaultProvider when no prefix is present.
func (e *Engine) splitModel(model string) (provider, modelID string) {
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[:idx], model[idx+1:]
	}
	return e.config.DefaultProvider, model
}

// startTurnSpan opens the top-level span for one RunSingleTurn call, if a
// tracer is configured. The LLM and tool-dispatch spans nest underneath it.
func (e *Engine) startTurnSpan(ctx context.Context, agentRole, agentID string) (context.Context, func(error)) {
	if e.tracer == nil {
		return ctx, func(error) {}
	}
	spanCtx, span := e.tracer.TraceTurn(ctx, agentRole, agentID)
	return spanCtx, func(err error) {
		if err != nil {
			e.tracer.RecordError(span, err)
		}
		span.End()
	}
}

// startLLMSpan opens a tracing span for the model call, if a tracer is
// configured, and returns a closer that records any error and ends it.
func (e *Engine) startLLMSpan(ctx context.Context, provider, model string) (context.Context, func(error)) {
	if e.tracer == nil {
		return ctx, func(error) {}
	}
	spanCtx, span := e.tracer.TraceLLMRequest(ctx, provider, model)
	return spanCtx, func(err error) {
		if err != nil {
			e.tracer.RecordError(span, err)
		}
		span.End()
	}
}

// startToolSpan is the tool-dispatch equivalent of startLLMSpan.
func (e *Engine) startToolSpan(ctx context.Context, toolName string) (context.Context, func(error)) {
	if e.tracer == nil {
		return ctx, func(error) {}
	}
	spanCtx, span := e.tracer.TraceToolExecution(ctx, toolName)
	return spanCtx, func(err error) {
		if err != nil {
			e.tracer.RecordError(span, err)
		}
		span.End()
	}
}
