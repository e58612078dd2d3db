// Package events defines the search lifecycle events relayed outside the
// pipeline (watermill bus in process, NATS JetStream across services).
package events

import (
	"strconv"
	"time"
)

// Lifecycle event types. Published on subject "events.<type>".
const (
	SearchStarted   = "search.started"
	SearchClarify   = "search.clarify"
	SearchCompleted = "search.completed"
	SearchFailed    = "search.failed"
)

// Event is what relays route: a type for the subject, a key for
// deduplication and the JSON body itself.
type Event interface {
	EventType() string
	Key() string
	Timestamp() time.Time
}

// SearchEvent is one lifecycle transition of a search request. It is also the
// JSON body on the bus and on NATS.
type SearchEvent struct {
	Type       string                 `json:"type"`
	RequestID  string                 `json:"requestId"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
}

var _ Event = SearchEvent{}

// NewSearchEvent stamps a lifecycle event for requestID. data is copied and may be nil.
func NewSearchEvent(eventType, requestID string, data map[string]interface{}) SearchEvent {
	var copied map[string]interface{}
	if len(data) > 0 {
		copied = make(map[string]interface{}, len(data))
		for k, v := range data {
			copied[k] = v
		}
	}
	return SearchEvent{
		Type:       eventType,
		RequestID:  requestID,
		Data:       copied,
		OccurredAt: time.Now().UTC(),
	}
}

func (e SearchEvent) EventType() string { return e.Type }

func (e SearchEvent) Timestamp() time.Time { return e.OccurredAt }

// Key is unique per request, type and instant.
func (e SearchEvent) Key() string {
	return e.RequestID + ":" + e.Type + ":" + strconv.FormatInt(e.OccurredAt.UnixNano(), 10)
}
