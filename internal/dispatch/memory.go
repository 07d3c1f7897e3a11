package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmrun/swarmrun/internal/models"
)

// MemoryBus is an in-process Bus for tests and single-binary deployments:
// Dispatch calls the registered Handler directly on a bounded worker pool,
// skipping the network round trip but preserving the same envelope and
// timeout semantics a NATS-backed caller would observe.
type MemoryBus struct {
	config  Config
	workers chan struct{}

	mu      sync.RWMutex
	handler Handler
}

// NewMemoryBus returns a ready in-process Bus.
func NewMemoryBus(config Config) *MemoryBus {
	workers := config.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	return &MemoryBus{
		config:  config,
		workers: make(chan struct{}, workers),
	}
}

// Dispatch implements Bus.
func (b *MemoryBus) Dispatch(ctx context.Context, req models.ExecRequest, timeout time.Duration) models.ExecResponse {
	if timeout <= 0 {
		timeout = b.config.DefaultTimeout
	}
	req.ReplyTo = uuid.NewString()
	start := time.Now()

	b.mu.RLock()
	handler := b.handler
	b.mu.RUnlock()

	if handler == nil {
		return models.NewErrorResponse(models.ErrCodeToolNotFound, "no handler registered", time.Since(start).Seconds())
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan models.ExecResponse, 1)
	select {
	case b.workers <- struct{}{}:
	case <-dctx.Done():
		return models.NewErrorResponse(models.ErrCodeTimeout, "response timeout: worker pool saturated", time.Since(start).Seconds())
	}
	go func() {
		defer func() { <-b.workers }()
		result <- handler(dctx, req)
	}()

	select {
	case resp := <-result:
		return resp
	case <-dctx.Done():
		return models.NewErrorResponse(models.ErrCodeTimeout, "response timeout", time.Since(start).Seconds())
	}
}

// Serve implements Bus: it registers handler and blocks until ctx is
// cancelled, mirroring the NATS implementation's lifecycle even though
// MemoryBus routes requests directly.
func (b *MemoryBus) Serve(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	b.handler = nil
	b.mu.Unlock()
	return ctx.Err()
}

// Close implements Bus.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.handler = nil
	b.mu.Unlock()
	return nil
}
