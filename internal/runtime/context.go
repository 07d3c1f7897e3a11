package runtime

import "context"

// Worker-local state is never inherited across goroutines implicitly; every
// hand-off re-installs it by value via these context helpers.

type currentAgentKey struct{}
type callStackKey struct{}
type workerIDKey struct{}

// WithCurrentAgent returns a context carrying identity as the current
// agent.
func WithCurrentAgent(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, currentAgentKey{}, identity)
}

// CurrentAgentFromContext returns the current agent carried on ctx, if any.
func CurrentAgentFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(currentAgentKey{}).(Identity)
	return v, ok
}

// WithCallStack returns a context carrying the worker's call-stack snapshot.
func WithCallStack(ctx context.Context, stack []Identity) context.Context {
	return context.WithValue(ctx, callStackKey{}, stack)
}

// CallStackFromContext returns the call-stack snapshot carried on ctx.
func CallStackFromContext(ctx context.Context) ([]Identity, bool) {
	v, ok := ctx.Value(callStackKey{}).([]Identity)
	return v, ok
}

// WithWorkerID returns a context tagged with the worker-pool slot executing
// it, used to key Runtime's per-worker stack and current-agent pointer.
func WithWorkerID(ctx context.Context, workerID string) context.Context {
	return context.WithValue(ctx, workerIDKey{}, workerID)
}

// WorkerIDFromContext returns the worker id carried on ctx.
func WorkerIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(workerIDKey{}).(string)
	return v, ok
}
