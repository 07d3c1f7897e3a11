package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/swarmrun/swarmrun/internal/dispatch"
	"github.com/swarmrun/swarmrun/internal/modelclient"
	"github.com/swarmrun/swarmrun/internal/models"
	"github.com/swarmrun/swarmrun/internal/policy"
	"github.com/swarmrun/swarmrun/internal/store"
)

type stubProvider struct {
	name    string
	results []modelclient.CompletionResult
	call    int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Complete(_ context.Context, _ modelclient.CompletionRequest) (modelclient.CompletionResult, error) {
	if p.call >= len(p.results) {
		return p.results[len(p.results)-1], nil
	}
	r := p.results[p.call]
	p.call++
	return r, nil
}

func newTestEngine(t *testing.T, provider *stubProvider) (*Engine, *ToolCatalog, func()) {
	t.Helper()

	s := store.NewMemoryStore()
	busConfig := dispatch.DefaultConfig()
	busConfig.WorkerCount = 2
	bus := dispatch.NewMemoryBus(busConfig)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = bus.Serve(ctx, func(_ context.Context, req models.ExecRequest) models.ExecResponse {
			return models.NewOKResponse(json.RawMessage(`{"ok":true}`), 0.01)
		})
	}()
	time.Sleep(10 * time.Millisecond)

	registry := modelclient.NewRegistry()
	registry.Register(provider)

	catalog := NewToolCatalog()
	catalog.Register(ToolDescriptor{Name: "echo", Description: "echoes input", Parameters: json.RawMessage(`{}`)})
	catalog.SetPolicy("worker", &policy.Policy{Role: "worker", Allow: []string{"*"}})

	e := New(s, bus, registry, policy.NewResolver(), nil, nil, nil, Config{MaxIterations: 5, DispatchTimeout: time.Second})
	return e, catalog, cancel
}

func TestSeedTurnZero_RejectsDuplicateSeed(t *testing.T) {
	e, _, cancel := newTestEngine(t, &stubProvider{name: "stub"})
	defer cancel()

	key := models.ConversationKey{RepoURL: "repo", AgentRole: "worker", AgentID: "agent-1"}
	ctx := context.Background()

	if err := e.SeedTurnZero(ctx, key, "system prompt", "developer prompt", "do the thing"); err != nil {
		t.Fatalf("SeedTurnZero() error = %v", err)
	}
	if err := e.SeedTurnZero(ctx, key, "system prompt", "developer prompt", ""); err != ErrTurnZeroExists {
		t.Errorf("second SeedTurnZero() error = %v, want ErrTurnZeroExists", err)
	}
}

func TestRunSingleTurn_RequiresTurnZero(t *testing.T) {
	e, catalog, cancel := newTestEngine(t, &stubProvider{name: "stub"})
	defer cancel()

	key := models.ConversationKey{RepoURL: "repo", AgentRole: "worker", AgentID: "agent-2"}
	if _, err := e.RunSingleTurn(context.Background(), key, catalog, "stub/model", "", ""); err != ErrTurnZeroMissing {
		t.Errorf("RunSingleTurn() error = %v, want ErrTurnZeroMissing", err)
	}
}

func TestRunToCompletion_FinalizesOnNoToolCalls(t *testing.T) {
	provider := &stubProvider{
		name: "stub",
		results: []modelclient.CompletionResult{
			{Content: "done, no tools needed"},
		},
	}
	e, catalog, cancel := newTestEngine(t, provider)
	defer cancel()

	key := models.ConversationKey{RepoURL: "repo", AgentRole: "worker", AgentID: "agent-3"}
	ctx := context.Background()
	if err := e.SeedTurnZero(ctx, key, "system prompt", "developer prompt", "do the thing"); err != nil {
		t.Fatalf("SeedTurnZero() error = %v", err)
	}

	result, err := e.RunToCompletion(ctx, key, catalog, "stub/model", "", "")
	if err != nil {
		t.Fatalf("RunToCompletion() error = %v", err)
	}
	if !result.Finalized {
		t.Error("expected conversation to finalize on the first turn")
	}
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", result.Iterations)
	}
}

func TestRunSingleTurn_DispatchesToolCallAndContinues(t *testing.T) {
	provider := &stubProvider{
		name: "stub",
		results: []modelclient.CompletionResult{
			{
				Content: "",
				ToolCalls: []models.ToolCall{
					{ID: "call-1", Name: "echo", Input: json.RawMessage(`{"text":"hi"}`)},
				},
			},
			{Content: "all done"},
		},
	}
	e, catalog, cancel := newTestEngine(t, provider)
	defer cancel()

	key := models.ConversationKey{RepoURL: "repo", AgentRole: "worker", AgentID: "agent-4"}
	ctx := context.Background()
	if err := e.SeedTurnZero(ctx, key, "system prompt", "developer prompt", "use a tool"); err != nil {
		t.Fatalf("SeedTurnZero() error = %v", err)
	}

	next, err := e.RunSingleTurn(ctx, key, catalog, "stub/model", "", "")
	if err != nil {
		t.Fatalf("RunSingleTurn() error = %v", err)
	}
	if next != 3 {
		t.Errorf("next turn idx = %d, want 3 (zero, assistant, tool)", next)
	}

	turns, err := e.store.LoadTurns(ctx, key)
	if err != nil {
		t.Fatalf("LoadTurns() error = %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("len(turns) = %d, want 3", len(turns))
	}
	if turns[2].ToolInvocation == nil || turns[2].ToolInvocation.ToolName != "echo" {
		t.Errorf("tool turn missing or wrong tool: %+v", turns[2].ToolInvocation)
	}
}

func TestRunSingleTurn_RejectsInvalidToolArgsWithoutDispatching(t *testing.T) {
	provider := &stubProvider{
		name: "stub",
		results: []modelclient.CompletionResult{
			{
				ToolCalls: []models.ToolCall{
					{ID: "call-1", Name: "strict", Input: json.RawMessage(`{}`)},
				},
			},
		},
	}
	e, catalog, cancel := newTestEngine(t, provider)
	defer cancel()

	catalog.Register(ToolDescriptor{
		Name: "strict",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"]
		}`),
	})

	key := models.ConversationKey{RepoURL: "repo", AgentRole: "worker", AgentID: "agent-5"}
	ctx := context.Background()
	if err := e.SeedTurnZero(ctx, key, "system prompt", "developer prompt", "use a tool"); err != nil {
		t.Fatalf("SeedTurnZero() error = %v", err)
	}

	if _, err := e.RunSingleTurn(ctx, key, catalog, "stub/model", "", ""); err != nil {
		t.Fatalf("RunSingleTurn() error = %v", err)
	}

	turns, err := e.store.LoadTurns(ctx, key)
	if err != nil {
		t.Fatalf("LoadTurns() error = %v", err)
	}
	last := turns[len(turns)-1]
	if last.ToolInvocation == nil || last.ToolInvocation.Status != models.ToolStatusError {
		t.Fatalf("expected a rejected-by-validation tool turn, got %+v", last.ToolInvocation)
	}
}
