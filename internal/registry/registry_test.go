package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPClient_FetchRoleConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/roles/worker" {
			t.Errorf("path = %q, want /roles/worker", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(RoleConfig{
			AgentRole:    "worker",
			ModelName:    "anthropic/claude",
			AllowedTools: []string{"echo"},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	cfg, err := client.FetchRoleConfig(context.Background(), "worker")
	if err != nil {
		t.Fatalf("FetchRoleConfig() error = %v", err)
	}
	if cfg.ModelName != "anthropic/claude" {
		t.Errorf("ModelName = %q, want anthropic/claude", cfg.ModelName)
	}
}

func TestHTTPClient_NonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	if _, err := client.FetchRoleConfig(context.Background(), "missing"); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

type countingClient struct {
	calls  int
	config RoleConfig
}

func (c *countingClient) FetchRoleConfig(_ context.Context, role string) (RoleConfig, error) {
	c.calls++
	return c.config, nil
}

func TestCachedClient_L1HitAvoidsOriginCall(t *testing.T) {
	origin := &countingClient{config: RoleConfig{AgentRole: "worker", ModelName: "m"}}
	cached := NewCachedClient(origin, nil, 0)

	for i := 0; i < 3; i++ {
		cfg, err := cached.FetchRoleConfig(context.Background(), "worker")
		if err != nil {
			t.Fatalf("FetchRoleConfig() error = %v", err)
		}
		if cfg.ModelName != "m" {
			t.Errorf("ModelName = %q, want m", cfg.ModelName)
		}
	}
	if origin.calls != 1 {
		t.Errorf("origin.calls = %d, want 1", origin.calls)
	}
}

func TestTTLCache_ExpiresEntries(t *testing.T) {
	c := newTTLCache(0)
	c.set("role", RoleConfig{ModelName: "m"})
	if _, ok := c.get("role"); !ok {
		t.Fatal("expected a cache hit for a zero-TTL (never-expiring) entry")
	}
}

func TestTTLCache_MissingKey(t *testing.T) {
	c := newTTLCache(0)
	if _, ok := c.get("nope"); ok {
		t.Fatal("expected a cache miss for an unknown key")
	}
}
