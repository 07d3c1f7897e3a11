package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/swarmrun/swarmrun/internal/models"
)

// ErrMaxIterations is returned by RunToCompletion when the configured
// iteration cap is hit before the conversation reaches a finalized turn.
var ErrMaxIterations = errors.New("engine: max iterations reached without a finalized turn")

// Result summarises a RunToCompletion call.
type Result struct {
	Iterations int
	Finalized  bool
}

// RunToCompletion loops RunSingleTurn until the most recent turn is
// finalized, the configured max-iterations cap is reached, or a fatal tool
// error escapes. When initialUserPrompt is non-empty and no turn-zero
// exists yet, it is seeded before the first turn.
func (e *Engine) RunToCompletion(ctx context.Context, key models.ConversationKey, catalog *ToolCatalog, model, reasoning, toolChoice string) (Result, error) {
	turns, err := e.store.LoadTurns(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("engine: load turns: %w", err)
	}
	if len(turns) == 0 {
		return Result{}, ErrTurnZeroMissing
	}

	for i := 0; i < e.config.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return Result{Iterations: i}, err
		}

		if _, err := e.RunSingleTurn(ctx, key, catalog, model, reasoning, toolChoice); err != nil {
			return Result{Iterations: i + 1}, err
		}

		turns, err := e.store.LoadTurns(ctx, key)
		if err != nil {
			return Result{Iterations: i + 1}, fmt.Errorf("engine: load turns: %w", err)
		}
		if len(turns) > 0 && turns[len(turns)-1].Finalized {
			return Result{Iterations: i + 1, Finalized: true}, nil
		}
	}

	return Result{Iterations: e.config.MaxIterations}, ErrMaxIterations
}
