package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublisherDeliversToSink(t *testing.T) {
	publisher := NewPublisher(16, zap.NewNop())
	sink := NewMemorySink()
	worker := NewWorker(sink, publisher.Inbox(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	publisher.Emit(ctx, Event{
		ProcessID: "process-1",
		Entity:    EntityProcess,
		Action:    "process_started",
	})

	require.Eventually(t, func() bool {
		return len(sink.Events()) == 1
	}, time.Second, 10*time.Millisecond)

	got := sink.Events()[0]
	assert.Equal(t, "process-1", got.ProcessID)
	assert.Equal(t, "process_started", got.Action)
	assert.False(t, got.Timestamp.IsZero(), "emit stamps the event time")

	cancel()
	<-done
}

func TestNilPublisherDiscardsEvents(t *testing.T) {
	var publisher *Publisher
	publisher.Emit(context.Background(), Event{Action: "ignored"})
}

func TestEmitStampsDeviceFromContext(t *testing.T) {
	publisher := NewPublisher(1, zap.NewNop())
	ctx := WithDevice(context.Background(), "Chrome on Linux")

	publisher.Emit(ctx, Event{Action: "process_started"})

	event := <-publisher.Inbox()
	assert.Equal(t, "Chrome on Linux", event.Device)
}

func TestEmitDropsWhenBufferFull(t *testing.T) {
	publisher := NewPublisher(1, zap.NewNop())
	ctx := context.Background()

	publisher.Emit(ctx, Event{Action: "kept"})
	publisher.Emit(ctx, Event{Action: "dropped"})

	select {
	case event := <-publisher.Inbox():
		assert.Equal(t, "kept", event.Action)
	default:
		t.Fatal("expected one buffered event")
	}
	select {
	case event := <-publisher.Inbox():
		t.Fatalf("unexpected second event %q", event.Action)
	default:
	}
}
