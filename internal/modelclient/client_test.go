package modelclient

import (
	"context"
	"testing"

	"github.com/swarmrun/swarmrun/internal/models"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	return CompletionResult{Content: "stub response from " + s.name}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	if _, ok := reg.Get("anthropic"); ok {
		t.Fatal("expected Get on an empty registry to return false")
	}

	reg.Register(&stubProvider{name: "anthropic"})
	reg.Register(&stubProvider{name: "openai"})

	p, ok := reg.Get("anthropic")
	if !ok {
		t.Fatal("expected Get(\"anthropic\") to succeed after Register")
	}
	if p.Name() != "anthropic" {
		t.Errorf("Name() = %q, want anthropic", p.Name())
	}

	if _, ok := reg.Get("missing"); ok {
		t.Error("expected Get on an unregistered name to return false")
	}
}

func TestRegistry_RegisterReplacesSameName(t *testing.T) {
	reg := NewRegistry()
	first := &stubProvider{name: "anthropic"}
	second := &stubProvider{name: "anthropic"}

	reg.Register(first)
	reg.Register(second)

	p, ok := reg.Get("anthropic")
	if !ok {
		t.Fatal("expected Get(\"anthropic\") to succeed")
	}
	if p != second {
		t.Error("expected the second Register call to replace the first provider")
	}
}

func TestRegistry_ProvidersAreUsable(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubProvider{name: "openai"})

	p, ok := reg.Get("openai")
	if !ok {
		t.Fatal("expected Get(\"openai\") to succeed")
	}

	result, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if result.Content != "stub response from openai" {
		t.Errorf("Content = %q, want stub response from openai", result.Content)
	}
}
