// Package registry fetches per-role agent configuration from the
// repo-admission service's registry API: the allowed tool set, the
// default developer prompt, the model name, a reasoning hint, and the
// tool_choice strategy. Registry writes are out of scope; this is a
// read-only, opportunistically cached client.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// RoleConfig is one agent role's registry entry.
type RoleConfig struct {
	AgentRole              string   `json:"agent_role"`
	AgentDescription       string   `json:"agent_description"`
	AllowedTools           []string `json:"allowed_tools"`
	DefaultDeveloperPrompt string   `json:"default_developer_prompt"`
	ModelName              string   `json:"model_name"`
	ReasoningLevel         string   `json:"reasoning_level,omitempty"`
	ToolChoice             string   `json:"tool_choice,omitempty"`
}

// Client fetches a RoleConfig for a given role.
type Client interface {
	FetchRoleConfig(ctx context.Context, role string) (RoleConfig, error)
}

// HTTPClient is the registry's HTTP-backed implementation: GET
// {BaseURL}/roles/{role}, decoded as a RoleConfig.
type HTTPClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPClient returns a ready HTTPClient with a bounded default timeout.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchRoleConfig performs the HTTP round trip.
func (c *HTTPClient) FetchRoleConfig(ctx context.Context, role string) (RoleConfig, error) {
	endpoint, err := url.JoinPath(c.BaseURL, "roles", role)
	if err != nil {
		return RoleConfig{}, fmt.Errorf("registry: build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return RoleConfig{}, fmt.Errorf("registry: build request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return RoleConfig{}, fmt.Errorf("registry: fetch %s: %w", role, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RoleConfig{}, fmt.Errorf("registry: fetch %s: unexpected status %d", role, resp.StatusCode)
	}

	var cfg RoleConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return RoleConfig{}, fmt.Errorf("registry: decode %s: %w", role, err)
	}
	return cfg, nil
}
