package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"food-search-be/internal/pkg/logger"
	"food-search-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRelay struct {
	mu     sync.Mutex
	events []events.Event
	fail   bool
}

func (r *recordingRelay) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.fail {
		return errors.New("broker down")
	}
	return nil
}

func (r *recordingRelay) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func newBus(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestLifecycleRelay(t *testing.T) {
	tests := []struct {
		name string
		fail bool
	}{
		{"relays every event", false},
		{"keeps draining when the relay fails", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newBus(t)
			relay := &recordingRelay{fail: tt.fail}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			consumer := NewConsumerService(bus, "", relay, logger.NewNop())
			require.NoError(t, consumer.Consume(ctx))

			pub := NewLifecyclePublisher(bus, "")
			require.NoError(t, pub.Publish(ctx, events.NewSearchEvent(events.SearchStarted, "r1", nil)))
			require.NoError(t, pub.Publish(ctx, events.NewSearchEvent(events.SearchCompleted, "r1", map[string]interface{}{"results": 3})))

			require.Eventually(t, func() bool { return len(relay.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)

			got := relay.snapshot()
			assert.Equal(t, events.SearchStarted, got[0].EventType())
			assert.Equal(t, events.SearchCompleted, got[1].EventType())
			last, ok := got[1].(events.SearchEvent)
			require.True(t, ok)
			assert.Equal(t, "r1", last.RequestID)
			assert.EqualValues(t, 3, last.Data["results"])
			assert.False(t, got[1].Timestamp().IsZero())
		})
	}
}

func TestLifecycleConsumer_DropsMalformed(t *testing.T) {
	bus := newBus(t)
	relay := &recordingRelay{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, NewConsumerService(bus, LifecycleTopic, relay, logger.NewNop()).Consume(ctx))

	require.NoError(t, bus.Publish(LifecycleTopic, message.NewMessage(watermill.NewUUID(), []byte("{not json"))))
	require.NoError(t, NewLifecyclePublisher(bus, LifecycleTopic).Publish(ctx, events.NewSearchEvent(events.SearchFailed, "r2", nil)))

	require.Eventually(t, func() bool { return len(relay.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, events.SearchFailed, relay.snapshot()[0].EventType())
}

func TestLifecycleConsumer_NilRelay(t *testing.T) {
	bus := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, NewConsumerService(bus, "", nil, logger.NewNop()).Consume(ctx))
	assert.NoError(t, NewLifecyclePublisher(bus, "").Publish(ctx, events.NewSearchEvent(events.SearchStarted, "r3", nil)))
}
