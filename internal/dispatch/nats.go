package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/swarmrun/swarmrun/internal/models"
	"github.com/swarmrun/swarmrun/internal/observability"
)

// NATSBus implements Bus over NATS JetStream: EXEC_REQ is a durable stream
// pulled by a shared consumer group, and each Dispatch call owns an
// ephemeral core-NATS subscription for its own reply inbox.
type NATSBus struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	config Config
	logger *observability.Logger

	workersMu sync.Mutex
	workers   chan struct{}
}

// NewNATSBus connects to url, ensures the request stream and consumer
// exist, and returns a ready Bus.
func NewNATSBus(url string, config Config, logger *observability.Logger) (*NATSBus, error) {
	conn, err := nats.Connect(url, nats.Name("swarmrun-dispatch"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open jetstream context: %w", err)
	}

	if _, err := js.AddStream(&nats.StreamConfig{
		Name:     config.StreamName,
		Subjects: []string{config.RequestSubject},
		Storage:  nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
	}); err != nil && err != nats.ErrStreamNameAlreadyInUse {
		conn.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	workers := config.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	return &NATSBus{
		conn:    conn,
		js:      js,
		config:  config,
		logger:  logger,
		workers: make(chan struct{}, workers),
	}, nil
}

// Dispatch implements Bus: publish-ack, subscribe to a fresh reply inbox,
// await the first response, drain redelivered duplicates.
func (b *NATSBus) Dispatch(ctx context.Context, req models.ExecRequest, timeout time.Duration) models.ExecResponse {
	if timeout <= 0 {
		timeout = b.config.DefaultTimeout
	}
	start := time.Now()

	replyTo := fmt.Sprintf("%s.%s", b.config.ResponsePrefix, uuid.NewString())
	req.ReplyTo = replyTo

	sub, err := b.conn.SubscribeSync(replyTo)
	if err != nil {
		return models.NewErrorResponse(models.ErrCodeTimeout, "subscribe to reply inbox: "+err.Error(), time.Since(start).Seconds())
	}
	defer sub.Unsubscribe() //nolint:errcheck

	payload, err := json.Marshal(req)
	if err != nil {
		return models.NewErrorResponse(models.ErrCodeExecutionError, "marshal request: "+err.Error(), time.Since(start).Seconds())
	}

	if _, err := b.js.Publish(b.config.RequestSubject, payload, nats.Context(ctx)); err != nil {
		return models.NewErrorResponse(models.ErrCodeTimeout, "publish ack timeout: "+err.Error(), time.Since(start).Seconds())
	}

	msg, err := sub.NextMsgWithContext(ctx)
	if err != nil {
		return models.NewErrorResponse(models.ErrCodeTimeout, "response timeout: "+err.Error(), time.Since(start).Seconds())
	}

	var resp models.ExecResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return models.NewErrorResponse(models.ErrCodeExecutionError, "decode response: "+err.Error(), time.Since(start).Seconds())
	}

	// Drain any duplicate redelivery without blocking; the dispatcher
	// reads only the first response.
	go drainRemaining(sub)

	return resp
}

func drainRemaining(sub *nats.Subscription) {
	for {
		msg, err := sub.NextMsg(50 * time.Millisecond)
		if err != nil || msg == nil {
			return
		}
	}
}

// Serve implements Bus: pull from the durable consumer, verify the tool,
// offload execution to the worker pool, publish the response, ack.
func (b *NATSBus) Serve(ctx context.Context, handler Handler) error {
	sub, err := b.js.PullSubscribe(b.config.RequestSubject, b.config.ConsumerName, nats.ManualAck())
	if err != nil {
		return fmt.Errorf("pull subscribe: %w", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(2*time.Second))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			if b.logger != nil {
				b.logger.Warn(ctx, "dispatch fetch failed", "error", err)
			}
			continue
		}

		for _, msg := range msgs {
			b.workers <- struct{}{}
			wg.Add(1)
			go func(m *nats.Msg) {
				defer wg.Done()
				defer func() { <-b.workers }()
				b.handleOne(ctx, m, handler)
			}(msg)
		}
	}
}

func (b *NATSBus) handleOne(ctx context.Context, msg *nats.Msg, handler Handler) {
	defer func() {
		if err := msg.Ack(); err != nil && b.logger != nil {
			b.logger.Warn(ctx, "ack failed", "error", err)
		}
	}()

	var req models.ExecRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		if b.logger != nil {
			b.logger.Error(ctx, "malformed exec request", "error", err)
		}
		return
	}

	start := time.Now()
	var resp models.ExecResponse
	if handler == nil {
		resp = models.NewErrorResponse(models.ErrCodeToolNotFound, "no handler registered", time.Since(start).Seconds())
	} else {
		resp = handler(ctx, req)
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		if b.logger != nil {
			b.logger.Error(ctx, "marshal exec response failed", "error", err)
		}
		return
	}
	if err := b.conn.Publish(req.ReplyTo, payload); err != nil && b.logger != nil {
		b.logger.Warn(ctx, "publish response failed", "error", err, "reply_to", req.ReplyTo)
	}
}

// Close implements Bus.
func (b *NATSBus) Close() error {
	b.conn.Close()
	return nil
}
