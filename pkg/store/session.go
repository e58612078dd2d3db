package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Status is the lifecycle status of a search request.
type Status string

const (
	// StatusRunning means stages are being evaluated.
	StatusRunning Status = "RUNNING"
	// StatusClarify is paused waiting for a follow-up message. Not terminal.
	StatusClarify Status = "CLARIFY"
	// StatusStop is terminal, for success and failure alike.
	StatusStop Status = "STOP"
)

// Outcome qualifies a STOP status.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

var (
	ErrFinalized         = errors.New("request state is finalized")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Location is a user or landmark coordinate.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RequestState is the per-request lifecycle record.
type RequestState struct {
	RequestID string    `json:"requestId"`
	SessionID string    `json:"sessionId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Status    Status    `json:"status"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	Query     string    `json:"query"`
	Language  string    `json:"language,omitempty"`
	Location  *Location `json:"location,omitempty"`

	// StageResults maps each completed stage to its JSON output.
	StageResults map[string]json.RawMessage `json:"stageResults"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewRequestState returns a RUNNING state for a fresh request.
func NewRequestState(requestID, sessionID, userID, query string) *RequestState {
	now := time.Now()
	return &RequestState{
		RequestID:    requestID,
		SessionID:    sessionID,
		UserID:       userID,
		Status:       StatusRunning,
		Query:        query,
		StageResults: make(map[string]json.RawMessage),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RecordStage stores the JSON form of a stage result. Fails once the state is STOP.
func (s *RequestState) RecordStage(stage string, result any) error {
	if s.Status == StatusStop {
		return fmt.Errorf("record %s: %w", stage, ErrFinalized)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("record %s: %w", stage, err)
	}
	if s.StageResults == nil {
		s.StageResults = make(map[string]json.RawMessage)
	}
	s.StageResults[stage] = raw
	s.UpdatedAt = time.Now()
	return nil
}

// StageResult decodes a recorded stage result into out. It reports false if
// the stage has not been recorded.
func (s *RequestState) StageResult(stage string, out any) (bool, error) {
	raw, ok := s.StageResults[stage]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("decode %s: %w", stage, err)
	}
	return true, nil
}

// StageNames returns the recorded stage names, sorted.
func (s *RequestState) StageNames() []string {
	names := make([]string, 0, len(s.StageResults))
	for name := range s.StageResults {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Transition moves the state to `to`. STOP is final; CLARIFY may only go back
// to RUNNING (or stop).
func (s *RequestState) Transition(to Status) error {
	from := s.Status
	switch {
	case from == StatusStop:
		return fmt.Errorf("%s -> %s: %w", from, to, ErrFinalized)
	case from == to:
		return nil
	case from == StatusRunning && (to == StatusClarify || to == StatusStop):
	case from == StatusClarify && (to == StatusRunning || to == StatusStop):
	default:
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}
	s.Status = to
	s.UpdatedAt = time.Now()
	return nil
}

// Finish transitions to STOP with the given outcome.
func (s *RequestState) Finish(outcome Outcome) error {
	if err := s.Transition(StatusStop); err != nil {
		return err
	}
	s.Outcome = outcome
	return nil
}

// Expired reports whether the entry is logically absent at now.
func (s *RequestState) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy, so stored entries never alias caller memory.
func (s *RequestState) Clone() *RequestState {
	if s == nil {
		return nil
	}
	c := *s
	if s.Location != nil {
		loc := *s.Location
		c.Location = &loc
	}
	c.StageResults = make(map[string]json.RawMessage, len(s.StageResults))
	for k, v := range s.StageResults {
		c.StageResults[k] = append(json.RawMessage(nil), v...)
	}
	return &c
}

// Store keeps RequestState entries with a per-entry TTL. Implementations must
// be safe for concurrent use; per-key writes are last-writer-wins.
type Store interface {
	// Set stores state under id, replacing any prior entry and its expiry.
	Set(ctx context.Context, id string, state *RequestState, ttl time.Duration) error
	// Get returns the state, or false if absent or expired.
	Get(ctx context.Context, id string) (*RequestState, bool, error)
	// Delete removes id if present.
	Delete(ctx context.Context, id string) error
	// Cleanup removes expired entries and reports how many were removed.
	Cleanup(ctx context.Context) (int, error)
	// Close stops background work and releases the store.
	Close() error
}
