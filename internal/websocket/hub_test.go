package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"food-search-be/internal/pkg/logger"
	"food-search-be/pkg/pipeline"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var summary = pipeline.AssistantEvent{
	Type:     pipeline.EventSummary,
	Message:  "Found 3 places",
	Language: "he",
}

type countingObserver struct {
	mu          sync.Mutex
	published   []pipeline.PublishResult
	subscribers int
}

func (o *countingObserver) Published(res pipeline.PublishResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published = append(o.published, res)
}

func (o *countingObserver) Subscribers(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscribers = n
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil, logger.NewNop())
	res := hub.Publish("nobody-listens", summary)
	assert.Equal(t, pipeline.PublishResult{Attempted: 0, Sent: 0, Failed: 0}, res)
}

func TestHub_PublishIsolatesFailingSubscriber(t *testing.T) {
	obs := &countingObserver{}
	hub := NewHub(nil, logger.NewNop(), WithObserver(obs))

	healthy := newClient(hub, nil, "req-1", Identity{}, 4)
	// unbuffered with no write pump: every enqueue fails
	stuck := newClient(hub, nil, "req-1", Identity{}, 0)
	other := newClient(hub, nil, "req-2", Identity{}, 4)
	hub.Register(healthy)
	hub.Register(stuck)
	hub.Register(other)
	require.Equal(t, 2, hub.SubscriberCount("req-1"))

	res := hub.Publish("req-1", summary)
	assert.Equal(t, pipeline.PublishResult{Attempted: 2, Sent: 1, Failed: 1}, res)

	assert.Equal(t, 1, hub.SubscriberCount("req-1"), "failed subscriber is pruned")
	assert.Equal(t, 2, hub.TotalSubscribers())
	assert.Empty(t, other.send, "other requests see nothing")

	var env Envelope
	require.NoError(t, json.Unmarshal(<-healthy.send, &env))
	assert.Equal(t, "assistant", env.Type)
	assert.Equal(t, "req-1", env.RequestID)
	assert.Equal(t, "he", env.UILanguage)
	require.NotNil(t, env.Payload)
	assert.Equal(t, summary, *env.Payload)

	obs.mu.Lock()
	assert.Equal(t, []pipeline.PublishResult{{Attempted: 2, Sent: 1, Failed: 1}}, obs.published)
	assert.Equal(t, 2, obs.subscribers)
	obs.mu.Unlock()
}

func TestHub_OrderPreservedPerSubscriber(t *testing.T) {
	hub := NewHub(nil, logger.NewNop())
	c := newClient(hub, nil, "req-ord", Identity{}, 8)
	hub.Register(c)

	types := []pipeline.EventType{pipeline.EventNudgeRefine, pipeline.EventSummary}
	for _, typ := range types {
		hub.Publish("req-ord", pipeline.AssistantEvent{Type: typ})
	}
	for _, want := range types {
		var env Envelope
		require.NoError(t, json.Unmarshal(<-c.send, &env))
		assert.Equal(t, want, env.Payload.Type)
	}
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub := NewHub(nil, logger.NewNop())
	c := newClient(hub, nil, "req-x", Identity{}, 1)
	hub.Register(c)

	hub.Unregister(c)
	hub.Unregister(c)
	assert.Equal(t, 0, hub.SubscriberCount("req-x"))
	assert.False(t, c.enqueue([]byte("late")), "closed client refuses messages")
}

func TestHub_RunClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub(nil, logger.NewNop())
	c := newClient(hub, nil, "req-y", Identity{}, 1)
	hub.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	assert.Equal(t, 0, hub.TotalSubscribers())
	select {
	case <-c.closed:
	default:
		t.Fatal("client not closed")
	}
}

func TestHub_RelaysAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	newRedis := func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}

	sender := NewHub(newRedis(), logger.NewNop())
	receiver := NewHub(newRedis(), logger.NewNop())

	remote := newClient(receiver, nil, "req-r", Identity{}, 4)
	receiver.Register(remote)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go receiver.Run(ctx)

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(relayChannel)[relayChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	res := sender.Publish("req-r", summary)
	assert.Equal(t, 0, res.Attempted, "sender has no local subscribers")

	select {
	case msg := <-remote.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		assert.Equal(t, "req-r", env.RequestID)
	case <-time.After(2 * time.Second):
		t.Fatal("relayed event not delivered")
	}
}
