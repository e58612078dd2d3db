package pipeline

import (
	"context"
	"time"

	"food-search-be/pkg/events"
)

// EventType is the closed set of assistant message types.
type EventType string

const (
	EventClarify      EventType = "CLARIFY"
	EventGateFail     EventType = "GATE_FAIL"
	EventSummary      EventType = "SUMMARY"
	EventSearchFailed EventType = "SEARCH_FAILED"
	EventNarration    EventType = "GENERIC_QUERY_NARRATION"
	EventNudgeRefine  EventType = "NUDGE_REFINE"
)

// AssistantEvent is one outbound narration or result unit. BlocksSearch
// marks an event that gates further progress until the user answers.
type AssistantEvent struct {
	Type            EventType `json:"type"`
	Message         string    `json:"message"`
	Question        string    `json:"question,omitempty"`
	BlocksSearch    bool      `json:"blocksSearch"`
	Language        string    `json:"language"`
	SuggestedAction string    `json:"suggestedAction,omitempty"`
}

// Sink receives the one-shot stream of a single request, in order.
// Errors are reported so the caller can notice a closed stream; the
// pipeline keeps running regardless.
type Sink interface {
	Meta(requestID, language string, startedAt time.Time) error
	Narration(text string) error
	Delta(chunk string) error
	Message(ev AssistantEvent) error
}

// PublishResult counts a broadcast to the subscribers of one request.
type PublishResult struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// Broadcaster fans assistant events out to pub/sub subscribers. It must
// never block on a slow subscriber.
type Broadcaster interface {
	Publish(requestID string, ev AssistantEvent) PublishResult
}

// EventPublisher receives lifecycle events. Failures are logged, never fatal.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Observer is notified of stage timings and terminal outcomes.
type Observer interface {
	StageCompleted(stage string, d time.Duration, err error)
	Finished(status, outcome string)
}

type nopSink struct{}

func (nopSink) Meta(string, string, time.Time) error { return nil }
func (nopSink) Narration(string) error               { return nil }
func (nopSink) Delta(string) error                   { return nil }
func (nopSink) Message(AssistantEvent) error         { return nil }

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(string, AssistantEvent) PublishResult { return PublishResult{} }

type nopObserver struct{}

func (nopObserver) StageCompleted(string, time.Duration, error) {}
func (nopObserver) Finished(string, string)                     {}
