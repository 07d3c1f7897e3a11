package modelclient

import (
	"context"
	"errors"
	"testing"

	"github.com/swarmrun/swarmrun/internal/models"
)

type stubSummarizerProvider struct {
	name   string
	result CompletionResult
	err    error
	gotReq CompletionRequest
}

func (p *stubSummarizerProvider) Name() string { return p.name }

func (p *stubSummarizerProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResult, error) {
	p.gotReq = req
	return p.result, p.err
}

func TestRegistrySummarizer_Summarize_ReturnsContent(t *testing.T) {
	provider := &stubSummarizerProvider{name: "anthropic", result: CompletionResult{Content: "short summary"}}
	registry := NewRegistry()
	registry.Register(provider)

	s := &RegistrySummarizer{Registry: registry, Provider: "anthropic", Model: "claude-haiku"}
	got, err := s.Summarize(context.Background(), "system", "summarize this")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "short summary" {
		t.Errorf("Summarize() = %q, want %q", got, "short summary")
	}
	if provider.gotReq.Model != "claude-haiku" {
		t.Errorf("request model = %q, want claude-haiku", provider.gotReq.Model)
	}
	if len(provider.gotReq.Messages) != 1 || provider.gotReq.Messages[0].Role != models.RoleUser {
		t.Errorf("expected a single user message, got %+v", provider.gotReq.Messages)
	}
}

func TestRegistrySummarizer_Summarize_UnregisteredProvider(t *testing.T) {
	s := &RegistrySummarizer{Registry: NewRegistry(), Provider: "missing", Model: "m"}
	if _, err := s.Summarize(context.Background(), "system", "prompt"); err == nil {
		t.Fatal("expected an error for an unregistered provider")
	}
}

func TestRegistrySummarizer_Summarize_PropagatesProviderError(t *testing.T) {
	provider := &stubSummarizerProvider{name: "anthropic", err: errors.New("upstream failure")}
	registry := NewRegistry()
	registry.Register(provider)

	s := &RegistrySummarizer{Registry: registry, Provider: "anthropic", Model: "m"}
	if _, err := s.Summarize(context.Background(), "system", "prompt"); err == nil {
		t.Fatal("expected the provider error to propagate")
	}
}
