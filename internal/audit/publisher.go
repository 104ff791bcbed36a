package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sink persists audit events. Implementations are append-only.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher decouples domain logic from the sink: Emit never blocks and never
// fails the calling operation. A nil Publisher discards events, so wiring the
// audit pipeline stays optional in tests.
type Publisher struct {
	inbox  chan Event
	logger *zap.Logger
}

func NewPublisher(buffer int, logger *zap.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Emit enqueues the event, stamping the time and the caller's device when
// unset. Events are dropped with a log line when the buffer is full; audit
// must not stall the caller.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Device == "" {
		event.Device = DeviceFromContext(ctx)
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("audit buffer full, dropping event",
			zap.String("entity", event.Entity),
			zap.String("action", event.Action))
	}
}

// Inbox exposes the event channel for the worker.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}

// Worker consumes audit events from the publisher and persists them.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *zap.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *zap.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run drains the inbox until the context ends. A sink failure is logged and
// the event dropped; audit is best-effort by contract.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Append(ctx, event); err != nil {
				w.logger.Error("append audit event",
					zap.String("entity", event.Entity),
					zap.String("action", event.Action),
					zap.Error(err))
			}
		}
	}
}
