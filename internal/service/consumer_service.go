package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"food-search-be/internal/pkg/logger"
	"food-search-be/pkg/events"
	"food-search-be/pkg/pipeline"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// LifecycleTopic is the in-process topic carrying search lifecycle events.
const LifecycleTopic = "search.lifecycle"

const relayTimeout = 3 * time.Second

// EventRelay forwards lifecycle events outside the process (NATS in production).
type EventRelay interface {
	Publish(ctx context.Context, event events.Event) error
}

// LifecyclePublisher puts orchestrator lifecycle events on the watermill bus.
type LifecyclePublisher struct {
	pub   message.Publisher
	topic string
}

var _ pipeline.EventPublisher = (*LifecyclePublisher)(nil)

func NewLifecyclePublisher(pub message.Publisher, topic string) *LifecyclePublisher {
	if topic == "" {
		topic = LifecycleTopic
	}
	return &LifecyclePublisher{pub: pub, topic: topic}
}

func (p *LifecyclePublisher) Publish(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish lifecycle event: %w", err)
	}
	return nil
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	sub       message.Subscriber
	topicName string
	relay     EventRelay
	logger    logger.ILogger
}

// NewConsumerService relays lifecycle events from the bus to relay. A nil relay
// drains the topic and only logs.
func NewConsumerService(sub message.Subscriber, topicName string, relay EventRelay, log logger.ILogger) IConsumerService {
	if topicName == "" {
		topicName = LifecycleTopic
	}
	return &consumerService{
		sub:       sub,
		topicName: topicName,
		relay:     relay,
		logger:    log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.sub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

// processMessage always acks: lifecycle delivery is best-effort and a broker
// outage must not wedge the in-process bus.
func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var event events.SearchEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		cs.logger.Warn("LIFECYCLE", "Dropping malformed lifecycle message", map[string]interface{}{
			"messageId": msg.UUID,
			"error":     err.Error(),
		})
		return
	}

	if cs.relay == nil {
		cs.logger.Debug("LIFECYCLE", "Lifecycle event (no relay)", map[string]interface{}{
			"type":      event.Type,
			"requestId": event.RequestID,
		})
		return
	}

	relayCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), relayTimeout)
	defer cancel()
	if err := cs.relay.Publish(relayCtx, event); err != nil {
		cs.logger.Warn("LIFECYCLE", "Failed to relay lifecycle event", map[string]interface{}{
			"type":      event.Type,
			"requestId": event.RequestID,
			"error":     err.Error(),
		})
	}
}
