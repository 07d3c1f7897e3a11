package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads path as YAML into Default(), loads envFile (if non-empty and
// present) into the process environment without overwriting variables
// already set, then applies the fixed set of env var overrides documented
// in the deployment guide. path may be empty, in which case Load starts
// from Default() and only applies env overrides.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides mutates cfg in place from the closed set of recognised
// environment variables. A variable that is unset or empty leaves the
// existing value untouched.
func applyEnvOverrides(cfg *Config) {
	stringVar(&cfg.Store.DBFile, "AGENTS_DB_FILE")
	stringVar(&cfg.Registry.AgentManagerAPIURL, "AGENT_MANAGER_API_URL")

	stringVar(&cfg.Dispatch.NATSURL, "NATS_URL")
	stringVar(&cfg.Dispatch.RequestSubject, "NATS_SUBJECT_EXEC_REQ")
	stringVar(&cfg.Dispatch.ResponsePrefix, "NATS_SUBJECT_EXEC_RESP")
	stringVar(&cfg.Dispatch.StreamName, "NATS_STREAM_EXEC_REQ")
	stringVar(&cfg.Dispatch.ConsumerName, "NATS_CONSUMER_NAME")
	durationVar(&cfg.Dispatch.PublishAckTimeout, "NATS_PUBLISH_ACK_TIMEOUT")
	durationVar(&cfg.Dispatch.AckWait, "NATS_ACK_WAIT")

	stringVar(&cfg.Engine.SystemPrompt, "LLM_SYSTEM_PROMPT")
	stringVar(&cfg.Engine.ToolChoice, "TOOL_CHOICE")
	durationVar(&cfg.Engine.TurnExecTimeout, "TURN_EXEC_TIMEOUT")
	intVar(&cfg.Engine.MaxIterations, "MAX_ITERATIONS")

	intVar(&cfg.Runtime.MaxAgentTaskThreads, "MAX_AGENT_TASK_THREADS")
}

func stringVar(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func intVar(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

func durationVar(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
	}
}
