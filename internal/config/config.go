// Package config loads process configuration from a YAML file, a .env
// file, and a closed set of environment variable overrides, in that order
// of increasing precedence.
package config

import (
	"time"

	"github.com/swarmrun/swarmrun/internal/compaction"
	"github.com/swarmrun/swarmrun/internal/dispatch"
	"github.com/swarmrun/swarmrun/internal/engine"
	"github.com/swarmrun/swarmrun/internal/runtime/sweep"
)

// Config is the root configuration object, composed of one sub-struct per
// concern so each package can take just the slice it owns.
type Config struct {
	Store         StoreConfig         `yaml:"store"`
	Dispatch      DispatchConfig      `yaml:"dispatch"`
	Engine        EngineConfig        `yaml:"engine"`
	Runtime       RuntimeConfig       `yaml:"runtime"`
	Registry      RegistryConfig      `yaml:"registry"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StoreConfig governs the Conversation Store's backing Postgres connection.
type StoreConfig struct {
	// DBFile names the sqlite file used by the in-process fallback store,
	// matching AGENTS_DB_FILE for local/dev runs without Postgres.
	DBFile     string `yaml:"db_file"`
	DSN        string `yaml:"dsn"`
	MaxConns   int    `yaml:"max_conns"`
	QueryLimit int    `yaml:"query_limit"`
}

// DispatchConfig governs the Tool Dispatch Bus.
type DispatchConfig struct {
	NATSURL            string        `yaml:"nats_url"`
	RequestSubject      string        `yaml:"request_subject"`
	ResponsePrefix      string        `yaml:"response_prefix"`
	StreamName          string        `yaml:"stream_name"`
	ConsumerName        string        `yaml:"consumer_name"`
	WorkerCount         int           `yaml:"worker_count"`
	PublishAckTimeout   time.Duration `yaml:"publish_ack_timeout"`
	AckWait             time.Duration `yaml:"ack_wait"`
	DefaultTimeout      time.Duration `yaml:"default_timeout"`
}

// EngineConfig governs the Agent Execution Engine.
type EngineConfig struct {
	SystemPrompt    string        `yaml:"system_prompt"`
	ToolChoice      string        `yaml:"tool_choice"`
	TurnExecTimeout time.Duration `yaml:"turn_exec_timeout"`
	MaxIterations   int           `yaml:"max_iterations"`
	DefaultProvider string        `yaml:"default_provider"`
	Compaction      CompactionConfig `yaml:"compaction"`
}

// CompactionConfig governs history summarisation.
type CompactionConfig struct {
	KeepLastN int `yaml:"keep_last_n"`
	Threshold int `yaml:"threshold"`
}

// RuntimeConfig governs the Agent Runtime's worker pool and stale sweep.
type RuntimeConfig struct {
	MaxAgentTaskThreads int           `yaml:"max_agent_task_threads"`
	SweepSchedule       string        `yaml:"sweep_schedule"`
	SweepStaleAfter     time.Duration `yaml:"sweep_stale_after"`
}

// RegistryConfig governs the Registry Client's upstream and cache.
type RegistryConfig struct {
	AgentManagerAPIURL string        `yaml:"agent_manager_api_url"`
	RedisAddr          string        `yaml:"redis_addr"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
}

// ObservabilityConfig governs logging, tracing, and metrics.
type ObservabilityConfig struct {
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	MetricsAddr  string `yaml:"metrics_addr"`
}

// Default returns a Config with the same defaults spec.md names literally.
func Default() Config {
	return Config{
		Store: StoreConfig{
			DBFile:     "agents.db",
			MaxConns:   10,
			QueryLimit: 500,
		},
		Dispatch: DispatchConfig{
			RequestSubject:    "EXEC_REQ",
			ResponsePrefix:    "EXEC_RESP_PREFIX",
			StreamName:        "EXEC_REQ_STREAM",
			ConsumerName:      "EXEC_REQ_WORKERS",
			WorkerCount:       8,
			PublishAckTimeout: 5 * time.Second,
			AckWait:           30 * time.Second,
			DefaultTimeout:    30 * time.Second,
		},
		Engine: EngineConfig{
			ToolChoice:      "auto",
			TurnExecTimeout: 30 * time.Second,
			MaxIterations:   25,
			DefaultProvider: "anthropic",
			Compaction:      CompactionConfig{KeepLastN: 20, Threshold: 60},
		},
		Runtime: RuntimeConfig{
			MaxAgentTaskThreads: 8,
			SweepSchedule:       "0 * * * * *",
			SweepStaleAfter:     time.Hour,
		},
		Registry: RegistryConfig{
			CacheTTL: 5 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// DispatchBusConfig projects DispatchConfig into the shape dispatch.NewNATSBus expects.
func (c DispatchConfig) BusConfig() dispatch.Config {
	return dispatch.Config{
		RequestSubject: c.RequestSubject,
		ResponsePrefix: c.ResponsePrefix,
		StreamName:     c.StreamName,
		ConsumerName:   c.ConsumerName,
		WorkerCount:    c.WorkerCount,
		DefaultTimeout: c.DefaultTimeout,
	}
}

// EngineEngineConfig projects EngineConfig into engine.Config.
func (c EngineConfig) EngineConfig() engine.Config {
	return engine.Config{
		MaxIterations:   c.MaxIterations,
		DispatchTimeout: c.TurnExecTimeout,
		DefaultProvider: c.DefaultProvider,
		Compaction: compaction.Config{
			KeepLastN: c.Compaction.KeepLastN,
			Threshold: c.Compaction.Threshold,
		},
	}
}

// SweepConfig projects RuntimeConfig into sweep.Config.
func (c RuntimeConfig) SweepConfig() sweep.Config {
	return sweep.Config{
		Schedule:   c.SweepSchedule,
		StaleAfter: c.SweepStaleAfter,
	}
}
