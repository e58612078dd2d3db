package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"food-search-be/internal/pkg/logger"
	"food-search-be/pkg/pipeline"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// relayChannel carries events between instances that share a Redis.
const relayChannel = "search_events"

const relayTimeout = 500 * time.Millisecond

// Envelope is the frame sent to subscribers.
type Envelope struct {
	Type       string                   `json:"type"`
	RequestID  string                   `json:"requestId"`
	Payload    *pipeline.AssistantEvent `json:"payload,omitempty"`
	UILanguage string                   `json:"uiLanguage,omitempty"`
}

// Observer receives delivery counters.
type Observer interface {
	Published(res pipeline.PublishResult)
	Subscribers(n int)
}

type relayMessage struct {
	Origin    string          `json:"origin"`
	RequestID string          `json:"requestId"`
	Message   json.RawMessage `json:"message"`
}

type Hub struct {
	// requestID -> subscribers
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	// Redis connection for cross-instance relay, optional
	rdb        *redis.Client
	instanceID string

	logger   logger.ILogger
	observer Observer
}

var _ pipeline.Broadcaster = (*Hub)(nil)

type HubOption func(*Hub)

func WithObserver(o Observer) HubOption {
	return func(h *Hub) { h.observer = o }
}

func NewHub(rdb *redis.Client, log logger.ILogger, opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run relays events from other instances until ctx is done, then
// disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()

	if h.rdb == nil {
		<-ctx.Done()
		return
	}

	pubsub := h.rdb.Subscribe(ctx, relayChannel)
	defer pubsub.Close()
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var relay relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &relay); err != nil {
				h.logger.Warn("Hub", "Relay message parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if relay.Origin == h.instanceID {
				continue
			}
			h.deliver(relay.RequestID, relay.Message)
		}
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.RequestID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.RequestID] = set
	}
	set[c] = struct{}{}
	total := h.countLocked()
	h.mu.Unlock()

	h.logger.Info("Hub", "Client registered", map[string]interface{}{
		"client_id":  c.ID,
		"request_id": c.RequestID,
	})
	if h.observer != nil {
		h.observer.Subscribers(total)
	}
}

// Unregister removes the client and stops its write pump. Idempotent.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	removed := false
	if set, ok := h.clients[c.RequestID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			removed = true
		}
		if len(set) == 0 {
			delete(h.clients, c.RequestID)
		}
	}
	total := h.countLocked()
	h.mu.Unlock()

	c.close()
	if !removed {
		return
	}
	h.logger.Info("Hub", "Client unregistered", map[string]interface{}{
		"client_id":  c.ID,
		"request_id": c.RequestID,
	})
	if h.observer != nil {
		h.observer.Subscribers(total)
	}
}

// Publish delivers ev to every local subscriber of requestID and relays it
// to other instances. A failing subscriber is counted and dropped; it never
// affects the others or the caller.
func (h *Hub) Publish(requestID string, ev pipeline.AssistantEvent) pipeline.PublishResult {
	data, err := json.Marshal(Envelope{
		Type:       "assistant",
		RequestID:  requestID,
		Payload:    &ev,
		UILanguage: ev.Language,
	})
	if err != nil {
		h.logger.Error("Hub", "Failed to encode event", map[string]interface{}{"error": err.Error()})
		return pipeline.PublishResult{}
	}

	res := h.deliver(requestID, data)
	h.relay(requestID, data)
	return res
}

func (h *Hub) deliver(requestID string, data []byte) pipeline.PublishResult {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[requestID]))
	for c := range h.clients[requestID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var res pipeline.PublishResult
	for _, c := range targets {
		res.Attempted++
		if c.enqueue(data) {
			res.Sent++
			continue
		}
		res.Failed++
		h.logger.Warn("Hub", "Subscriber unavailable, dropping", map[string]interface{}{
			"client_id":  c.ID,
			"request_id": requestID,
		})
		h.Unregister(c)
	}

	if h.observer != nil && res.Attempted > 0 {
		h.observer.Published(res)
	}
	return res
}

func (h *Hub) relay(requestID string, data []byte) {
	if h.rdb == nil {
		return
	}
	payload, err := json.Marshal(relayMessage{Origin: h.instanceID, RequestID: requestID, Message: data})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()
	if err := h.rdb.Publish(ctx, relayChannel, payload).Err(); err != nil {
		h.logger.Warn("Hub", "Relay publish failed", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
	}
}

// SubscriberCount returns the local subscribers of requestID.
func (h *Hub) SubscriberCount(requestID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[requestID])
}

// TotalSubscribers returns all local subscribers.
func (h *Hub) TotalSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for c := range set {
			c.close()
		}
	}
	if h.observer != nil {
		h.observer.Subscribers(0)
	}
}

func mustEnvelope(e Envelope) []byte {
	data, _ := json.Marshal(e)
	return data
}
