// Package dispatch implements the Tool Dispatch Bus: the engine's
// synchronous "call a tool, get its result" contract, backed by a
// request/reply pairing over a subject-addressed stream with per-request
// reply inboxes.
package dispatch

import (
	"context"
	"time"

	"github.com/swarmrun/swarmrun/internal/models"
)

// Handler executes one ExecRequest and returns the envelope to publish back
// on the request's reply inbox. It is invoked on the responder side, once
// per delivered message, and must not panic: a Handler failure is reported
// through models.NewFailureResponse by the caller, not by returning an
// error.
type Handler func(ctx context.Context, req models.ExecRequest) models.ExecResponse

// Bus is the dispatcher's view of the tool execution bus: publish one
// request, get back exactly one response, bounded by a timeout. Both the
// NATS JetStream implementation and the in-process fallback implement it
// identically from the requester's perspective.
type Bus interface {
	// Dispatch publishes req on the request subject, awaits the first
	// response on a fresh reply inbox, drains any redelivered duplicates,
	// and returns. A context deadline or Timeout expiring first yields a
	// synthesised error response rather than an error return: the engine
	// always gets back an envelope to turn into a tool-turn.
	Dispatch(ctx context.Context, req models.ExecRequest, timeout time.Duration) models.ExecResponse

	// Serve runs the responder side until ctx is cancelled: pull a
	// request, verify the tool is registered with handler, offload
	// execution to the worker pool, publish the response, ack the
	// original message. Serve blocks; callers run it in its own
	// goroutine.
	Serve(ctx context.Context, handler Handler) error

	// Close releases the underlying connection and any subscriptions.
	Close() error
}

// Config governs both bus implementations.
type Config struct {
	// RequestSubject is EXEC_REQ: the one subject all requests publish to.
	RequestSubject string
	// ResponsePrefix is EXEC_RESP_PREFIX: reply inboxes are
	// "<ResponsePrefix>.<uuid>".
	ResponsePrefix string
	// StreamName names the durable JetStream stream backing
	// RequestSubject.
	StreamName string
	// ConsumerName names the durable consumer group pulling from
	// StreamName.
	ConsumerName string
	// WorkerCount bounds how many tool executions Serve runs concurrently.
	WorkerCount int
	// DefaultTimeout is used by Dispatch callers that don't specify one.
	DefaultTimeout time.Duration
}

// DefaultConfig returns the subject/stream names spec.md names literally.
func DefaultConfig() Config {
	return Config{
		RequestSubject: "EXEC_REQ",
		ResponsePrefix: "EXEC_RESP_PREFIX",
		StreamName:     "EXEC_REQ_STREAM",
		ConsumerName:   "EXEC_REQ_WORKERS",
		WorkerCount:    8,
		DefaultTimeout: 30 * time.Second,
	}
}
