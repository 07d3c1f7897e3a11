package runtime

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// AppendFunc persists a single new turn of messages for one agent. Runtime
// is agnostic to how this happens; callers plug in the Agent Execution
// Engine's AppendMessages, the same indirection RunAgentTask uses for the
// engine's turn loop via Runner.
type AppendFunc func(ctx context.Context, identity Identity, repoURL, turnRole string, content []string) (turnID int, messageIDs []int, err error)

// BroadcastResult is the outcome of a content broadcast.
type BroadcastResult struct {
	SuccessCount int      `json:"success_count"`
	Errors       []string `json:"errors"`
}

// BroadcastMessage appends content as a single "user" turn to every running
// agent in repoURL whose role appears in roles; an empty roles set matches
// every running agent in repoURL. Agents that fail to append are recorded
// in Errors rather than aborting the rest of the broadcast.
func (r *Runtime) BroadcastMessage(ctx context.Context, roles []string, repoURL string, content []string, appendFn AppendFunc) BroadcastResult {
	roleSet := make(map[string]bool, len(roles))
	for _, role := range roles {
		roleSet[role] = true
	}

	var (
		mu     sync.Mutex
		result BroadcastResult
		g      errgroup.Group
	)
	for _, rec := range r.ListRunningAgents(repoURL) {
		rec := rec
		if len(roleSet) > 0 && !roleSet[rec.Role] {
			continue
		}
		g.Go(func() error {
			_, _, err := appendFn(ctx, rec.Identity, repoURL, "user", content)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s:%s - %v", rec.Role, rec.ID, err))
				return nil
			}
			result.SuccessCount++
			return nil
		})
	}
	_ = g.Wait()
	return result
}
