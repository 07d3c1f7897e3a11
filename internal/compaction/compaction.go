// Package compaction keeps a conversation's outbound history bounded: once
// the body (every turn but turn-zero) exceeds a configured length, the
// oldest body turns are folded into a single summary turn.
package compaction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/swarmrun/swarmrun/internal/models"
)

// CharsPerToken is the character-to-token estimation ratio used throughout
// the engine for budget checks; it is a heuristic, not a tokenizer.
const CharsPerToken = 4

// EstimateTokens approximates the token cost of a turn's messages.
func EstimateTokens(t models.Turn) int {
	chars := 0
	for _, m := range t.Messages {
		chars += len(m.Content)
	}
	return (chars + CharsPerToken - 1) / CharsPerToken
}

// Summarizer produces a short natural-language summary of a pruned prefix.
// The compaction algorithm asks for a JSON object of shape {"summary":
// "..."}; Summarizer implementations return the raw model text, and
// ParseSummary below handles the JSON-or-fallback extraction.
type Summarizer interface {
	Summarize(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// Config governs when and how compaction runs.
type Config struct {
	// KeepLastN is the number of most recent body turns preserved verbatim.
	KeepLastN int
	// Threshold is the body-turn count above which compaction triggers.
	Threshold int
}

// DefaultConfig keeps the last 20 turns once the body exceeds 40.
func DefaultConfig() Config {
	return Config{KeepLastN: 20, Threshold: 40}
}

const summarizationSystemPrompt = `You summarise tool-use conversation history for an autonomous agent. ` +
	`Respond with a JSON object of the form {"summary": "..."} and nothing else.`

// ShouldCompact reports whether the body (every turn but turn-zero) exceeds
// config.Threshold.
func ShouldCompact(turns []models.Turn, config Config) bool {
	if len(turns) == 0 {
		return false
	}
	return len(turns)-1 > config.Threshold
}

// Compact implements the summarisation algorithm: split into turn-zero, a
// pruned prefix, and the last KeepLastN turns; summarise the prefix;
// splice a new user-role summary turn in; re-index turn_idx to 0..M-1. On
// any failure it returns the original turns unchanged, matching the
// no-op-on-failure semantics of the algorithm it's grounded on.
func Compact(ctx context.Context, turns []models.Turn, config Config, summarizer Summarizer) []models.Turn {
	if !ShouldCompact(turns, config) || summarizer == nil {
		return turns
	}

	turnZero := turns[0]
	body := turns[1:]
	keep := config.KeepLastN
	if keep < 0 {
		keep = 0
	}
	if keep >= len(body) {
		return turns
	}
	pruned := body[:len(body)-keep]
	tail := body[len(body)-keep:]

	prompt := formatPrunedPrompt(pruned)
	raw, err := summarizer.Summarize(ctx, summarizationSystemPrompt, prompt)
	if err != nil {
		return turns
	}

	summaryText := ParseSummary(raw)
	summaryTurn := models.Turn{
		RepoURL:        turnZero.RepoURL,
		AgentRole:      turnZero.AgentRole,
		AgentID:        turnZero.AgentID,
		Messages:       []models.Message{models.NewMessage(models.RoleUser, summaryText)},
		TotalCharCount: len(summaryText),
		Finalized:      true,
		CreatedAt:      turnZero.CreatedAt,
	}

	result := make([]models.Turn, 0, 2+len(tail))
	result = append(result, turnZero, summaryTurn)
	result = append(result, tail...)

	for i := range result {
		result[i].TurnIdx = i
	}
	return result
}

// formatPrunedPrompt assembles the summarisation prompt from the pruned
// prefix's assistant and tool messages only, formatted one line per
// message as "[turn <i>][<role>]: <content>".
func formatPrunedPrompt(pruned []models.Turn) string {
	var b strings.Builder
	for _, t := range pruned {
		for _, m := range t.Messages {
			if m.Role != models.RoleAssistant && m.Role != models.RoleTool {
				continue
			}
			fmt.Fprintf(&b, "[turn %d][%s]: %s\n", t.TurnIdx, m.Role, m.Content)
		}
	}
	return b.String()
}

// ParseSummary extracts the "summary" field from a {"summary": "..."} JSON
// object, falling back to the raw text when parsing fails.
func ParseSummary(raw string) string {
	var parsed struct {
		Summary string `json:"summary"`
	}
	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Summary != "" {
		return parsed.Summary
	}
	return trimmed
}
