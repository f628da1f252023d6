package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/aniladanir/retry"
	"go.uber.org/zap"

	"github.com/duli-labs/wa-gateway/internal/worker"
)

// MessageHandler reconciles one message sub-event.
type MessageHandler interface {
	Reconcile(ctx context.Context, msg Message, value Value) error
}

// StatusHandler reconciles one status sub-event.
type StatusHandler interface {
	Reconcile(ctx context.Context, st Status, value Value) error
}

// Dispatcher splits a raw provider payload into independent units of work
// and hands each to the worker pool. It never blocks and never waits for
// reconciliation: the provider enforces a short response budget before it
// retries the whole delivery with backoff, so the webhook response must not
// depend on reconciliation outcome.
type Dispatcher struct {
	pool     *worker.Pool
	messages MessageHandler
	statuses StatusHandler
	retrier  *retry.Retrier
	logger   *zap.Logger
}

// NewDispatcher wires the dispatcher. maxAttempts bounds the per-unit retry
// on transient store errors; after exhaustion the unit is dropped and
// recovery relies on the provider redelivering the webhook.
func NewDispatcher(
	pool *worker.Pool,
	messages MessageHandler,
	statuses StatusHandler,
	maxAttempts int,
	logger *zap.Logger,
) (*Dispatcher, error) {
	retrier, err := retry.New(retry.WithMaxAttemps(maxAttempts))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize retrier: %w", err)
	}

	return &Dispatcher{
		pool:     pool,
		messages: messages,
		statuses: statuses,
		retrier:  retrier,
		logger:   logger,
	}, nil
}

// Dispatch schedules one unit per message and status sub-event and returns
// the number of units handed off. Units that cannot be queued are dropped;
// the provider's redelivery covers them.
func (d *Dispatcher) Dispatch(payload *Payload) int {
	scheduled := 0

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value

			for _, msg := range value.Messages {
				msg := msg
				if d.submit("message", msg.ID, func(ctx context.Context) error {
					return d.messages.Reconcile(ctx, msg, value)
				}) {
					scheduled++
				}
			}

			for _, st := range value.Statuses {
				st := st
				if d.submit("status", st.ID, func(ctx context.Context) error {
					return d.statuses.Reconcile(ctx, st, value)
				}) {
					scheduled++
				}
			}
		}
	}

	return scheduled
}

func (d *Dispatcher) submit(kind, waMessageID string, fn func(ctx context.Context) error) bool {
	err := d.pool.Submit(func(ctx context.Context) {
		d.runUnit(ctx, kind, waMessageID, fn)
	})
	if err != nil {
		d.logger.Error("Failed to schedule reconciliation unit",
			zap.String("kind", kind),
			zap.String("wa_message_id", waMessageID),
			zap.Error(err))
		return false
	}

	return true
}

// runUnit executes one reconciliation unit with bounded retry. Nothing
// waits on the result: failures end in a log line, never in a provider
// retry triggered by this side.
func (d *Dispatcher) runUnit(ctx context.Context, kind, waMessageID string, fn func(ctx context.Context) error) {
	var lastErr error

	retryFunc := func(attempt int) bool {
		err := fn(ctx)
		if err == nil {
			return true
		}

		if errors.Is(err, ErrInvalidEvent) {
			// Malformed data cannot succeed on retry.
			d.logger.Warn("Dropping invalid webhook event",
				zap.String("kind", kind),
				zap.String("wa_message_id", waMessageID),
				zap.Error(err))
			return true
		}

		lastErr = err
		d.logger.Error("Reconciliation unit failed",
			zap.String("kind", kind),
			zap.String("wa_message_id", waMessageID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return false
	}

	if ok := <-d.retrier.Retry(ctx, retryFunc, true); !ok {
		d.logger.Error("Reconciliation unit dropped after retries",
			zap.String("kind", kind),
			zap.String("wa_message_id", waMessageID),
			zap.Error(lastErr))
	}
}
