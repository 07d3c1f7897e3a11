package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSeedAgent_RequiresID(t *testing.T) {
	rt := New()
	if err := rt.SeedAgent("w1", Identity{Role: "worker"}, "repo"); err == nil {
		t.Error("expected error for empty agent id")
	}
}

func TestSeedAndPop_StackOrder(t *testing.T) {
	rt := New()
	a := Identity{Role: "worker", ID: "a"}
	b := Identity{Role: "worker", ID: "b"}

	if err := rt.SeedAgent("w1", a, "repo"); err != nil {
		t.Fatalf("SeedAgent(a) error = %v", err)
	}
	if err := rt.SeedAgent("w1", b, "repo"); err != nil {
		t.Fatalf("SeedAgent(b) error = %v", err)
	}

	current, ok := rt.CurrentAgent("w1")
	if !ok || current != b {
		t.Fatalf("CurrentAgent() = %v, %v, want %v, true", current, ok, b)
	}

	rt.PopCurrentAgent("w1")
	current, ok = rt.CurrentAgent("w1")
	if !ok || current != a {
		t.Fatalf("after pop CurrentAgent() = %v, %v, want %v, true", current, ok, a)
	}

	rt.PopCurrentAgent("w1")
	if _, ok := rt.CurrentAgent("w1"); ok {
		t.Error("expected no current agent after popping every frame")
	}
}

func TestRemove_ForbiddenWhileOnStack(t *testing.T) {
	rt := New()
	a := Identity{Role: "worker", ID: "a"}
	_ = rt.SeedAgent("w1", a, "repo")

	if err := rt.Remove(a); err == nil {
		t.Error("expected removal to be forbidden while agent is on a worker stack")
	}

	rt.PopCurrentAgent("w1")
	if err := rt.Remove(a); err != nil {
		t.Errorf("Remove() after pop error = %v, want nil", err)
	}
}

func TestRecordSpawnEdge_DedupsAndSkipsSelfLoops(t *testing.T) {
	rt := New()
	parent := Identity{Role: "lead", ID: "p1"}
	child := Identity{Role: "worker", ID: "c1"}

	rt.RecordSpawnEdge(parent, child)
	rt.RecordSpawnEdge(parent, child)
	rt.RecordSpawnEdge(parent, parent)

	edges := rt.SpawnEdges()
	if len(edges) != 1 {
		t.Fatalf("len(edges) = %d, want 1 (deduped, no self-loop)", len(edges))
	}
	if edges[0].Parent != parent || edges[0].Child != child {
		t.Errorf("edge = %+v, want parent=%v child=%v", edges[0], parent, child)
	}
}

func TestMermaidGraph_AliasesByRoleAndShortID(t *testing.T) {
	rt := New()
	parent := Identity{Role: "lead", ID: "0123456789abcdef"}
	child := Identity{Role: "worker", ID: "fedcba9876543210"}
	rt.RecordSpawnEdge(parent, child)

	out := rt.MermaidGraph()
	if !strings.Contains(out, "lead_01234567") || !strings.Contains(out, "worker_fedcba98") {
		t.Errorf("MermaidGraph() = %q, want aliased node names", out)
	}
}

func TestRunAgentTask_SeedsRecordsEdgeAndResolves(t *testing.T) {
	rt := New()
	pool := NewPool(rt, func(ctx context.Context, identity Identity, repoURL, prompt string) (string, error) {
		if _, ok := CurrentAgentFromContext(ctx); !ok {
			t.Error("expected parent identity to be re-installed in child context")
		}
		return "done: " + prompt, nil
	}, 2)

	parent := Identity{Role: "lead", ID: "lead-1"}
	_ = rt.SeedAgent("caller", parent, "repo")

	result, err := pool.RunAgentTask(context.Background(), "caller", "worker", "repo", "do work", "child-1")
	if err != nil {
		t.Fatalf("RunAgentTask() error = %v", err)
	}
	if result.Output != "done: do work" {
		t.Errorf("Output = %q, want %q", result.Output, "done: do work")
	}

	edges := rt.SpawnEdges()
	if len(edges) != 1 || edges[0].Parent != parent || edges[0].Child.ID != "child-1" {
		t.Errorf("edges = %+v, want one edge from %v to child-1", edges, parent)
	}

	current, ok := rt.CurrentAgent("caller")
	if !ok || current != parent {
		t.Errorf("caller's current agent after task = %v, %v, want %v, true", current, ok, parent)
	}
}

func TestRunAgentTask_DerivesIDFromPromptHash(t *testing.T) {
	rt := New()
	var seen Identity
	pool := NewPool(rt, func(_ context.Context, identity Identity, _, _ string) (string, error) {
		seen = identity
		return "", nil
	}, 1)

	_, err := pool.RunAgentTask(context.Background(), "caller", "worker", "repo", "same prompt", "")
	if err != nil {
		t.Fatalf("RunAgentTask() error = %v", err)
	}
	if seen.ID == "" {
		t.Error("expected a derived agent id")
	}
}

func TestRunAgentTask_RejectsEmptyPrompt(t *testing.T) {
	rt := New()
	pool := NewPool(rt, func(context.Context, Identity, string, string) (string, error) { return "", nil }, 1)

	if _, err := pool.RunAgentTask(context.Background(), "caller", "worker", "repo", "", ""); err != ErrEmptyPrompt {
		t.Errorf("error = %v, want ErrEmptyPrompt", err)
	}
}

func TestListRunningAgents_ScopesByRepo(t *testing.T) {
	rt := New()
	_ = rt.SeedAgent("w1", Identity{Role: "worker", ID: "a"}, "repo-1")
	_ = rt.SeedAgent("w2", Identity{Role: "worker", ID: "b"}, "repo-2")

	scoped := rt.ListRunningAgents("repo-1")
	if len(scoped) != 1 || scoped[0].ID != "a" {
		t.Fatalf("ListRunningAgents(repo-1) = %+v, want exactly agent a", scoped)
	}

	all := rt.ListRunningAgents("")
	if len(all) != 2 {
		t.Fatalf("ListRunningAgents(\"\") = %+v, want both agents", all)
	}
}

func TestGetAgentStack_AnnotatesParent(t *testing.T) {
	rt := New()
	a := Identity{Role: "lead", ID: "a"}
	b := Identity{Role: "worker", ID: "b"}
	_ = rt.SeedAgent("w1", a, "repo")
	_ = rt.SeedAgent("w1", b, "repo")

	stack := rt.GetAgentStack("w1")
	if len(stack) != 2 {
		t.Fatalf("len(stack) = %d, want 2", len(stack))
	}
	if stack[0].ParentRole != "" || stack[0].ParentID != "" {
		t.Errorf("bottom frame parent = %q/%q, want empty", stack[0].ParentRole, stack[0].ParentID)
	}
	if stack[1].ParentRole != a.Role || stack[1].ParentID != a.ID {
		t.Errorf("top frame parent = %q/%q, want %v", stack[1].ParentRole, stack[1].ParentID, a)
	}
}

// appendCall records one AppendFunc invocation for assertion.
type appendCall struct {
	identity Identity
	repoURL  string
	turnRole string
	content  []string
}

func TestBroadcastMessage_FiltersByRoleAndScopesByRepo(t *testing.T) {
	rt := New()
	alpha := Identity{Role: "X", ID: "alpha"}
	beta := Identity{Role: "X", ID: "beta"}
	gamma := Identity{Role: "Y", ID: "gamma"}
	_ = rt.SeedAgent("w1", alpha, "R")
	_ = rt.SeedAgent("w2", beta, "R")
	_ = rt.SeedAgent("w3", gamma, "R")

	var (
		mu    sync.Mutex
		calls []appendCall
	)
	appendFn := func(ctx context.Context, identity Identity, repoURL, turnRole string, content []string) (int, []int, error) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, appendCall{identity, repoURL, turnRole, content})
		return 0, []int{0}, nil
	}

	result := rt.BroadcastMessage(context.Background(), []string{"X"}, "R", []string{"hello"}, appendFn)
	if result.SuccessCount != 2 || len(result.Errors) != 0 {
		t.Fatalf("BroadcastMessage([X]) = %+v, want success_count=2, errors=[]", result)
	}
	for _, c := range calls {
		if c.identity == gamma {
			t.Error("expected gamma (role Y) to be excluded from a role=[X] broadcast")
		}
		if c.turnRole != "user" || c.content[0] != "hello" {
			t.Errorf("call = %+v, want turnRole=user content=[hello]", c)
		}
	}

	calls = nil
	result = rt.BroadcastMessage(context.Background(), nil, "R", []string{"hi"}, appendFn)
	if result.SuccessCount != 3 {
		t.Fatalf("BroadcastMessage([]) success_count = %d, want 3 (all agents)", result.SuccessCount)
	}
}

func TestBroadcastMessage_CollectsErrorsWithoutAborting(t *testing.T) {
	rt := New()
	_ = rt.SeedAgent("w1", Identity{Role: "X", ID: "a"}, "R")
	_ = rt.SeedAgent("w2", Identity{Role: "X", ID: "b"}, "R")

	appendFn := func(_ context.Context, identity Identity, _, _ string, _ []string) (int, []int, error) {
		if identity.ID == "a" {
			return 0, nil, fmt.Errorf("store unavailable")
		}
		return 0, []int{0}, nil
	}

	result := rt.BroadcastMessage(context.Background(), nil, "R", []string{"hi"}, appendFn)
	if result.SuccessCount != 1 {
		t.Errorf("SuccessCount = %d, want 1", result.SuccessCount)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "a") {
		t.Errorf("Errors = %v, want one error naming agent a", result.Errors)
	}
}

func TestRunAgentTask_RespectsContextCancellation(t *testing.T) {
	rt := New()
	release := make(chan struct{})
	pool := NewPool(rt, func(ctx context.Context, _ Identity, _, _ string) (string, error) {
		<-release
		return "late", nil
	}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	defer close(release)

	_, err := pool.RunAgentTask(ctx, "caller", "worker", "repo", "slow", "slow-1")
	if err == nil {
		t.Error("expected context deadline error")
	}
}
