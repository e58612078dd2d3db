// Package sse writes the one-shot server-sent event stream of a search.
package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"food-search-be/pkg/pipeline"

	"github.com/gofiber/fiber/v2"
)

// Event names.
const (
	EventMeta      = "meta"
	EventMessage   = "message"
	EventError     = "error"
	EventNarration = "narration"
	EventDelta     = "delta"
	EventDone      = "done"
)

var ErrClosed = errors.New("sse: stream closed")

type MetaPayload struct {
	RequestID string `json:"requestId"`
	Language  string `json:"language"`
	StartedAt string `json:"startedAt"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

type textPayload struct {
	Text string `json:"text"`
}

// SetHeaders declares an uncached, persistent event stream and turns off
// proxy buffering. Call before SetBodyStreamWriter.
func SetHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, "text/event-stream; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
}

// Writer frames events onto a buffered stream, flushing after each one so
// nothing is batched. Once a write fails every later call returns ErrClosed.
type Writer struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closed bool
}

var _ pipeline.Sink = (*Writer)(nil)

func NewWriter(w *bufio.Writer) *Writer {
	return &Writer{w: w}
}

// Open flushes the response headers before any event is ready.
func (s *Writer) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.w.Flush(); err != nil {
		s.closed = true
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

// Event writes one `event:`/`data:` frame followed by a blank line.
func (s *Writer) Event(name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sse: encode %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		s.closed = true
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	if err := s.w.Flush(); err != nil {
		s.closed = true
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

// Closed reports whether the client has gone away.
func (s *Writer) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Writer) Meta(requestID, language string, startedAt time.Time) error {
	return s.Event(EventMeta, MetaPayload{
		RequestID: requestID,
		Language:  language,
		StartedAt: startedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *Writer) Narration(text string) error {
	return s.Event(EventNarration, textPayload{Text: text})
}

func (s *Writer) Delta(chunk string) error {
	return s.Event(EventDelta, textPayload{Text: chunk})
}

func (s *Writer) Message(ev pipeline.AssistantEvent) error {
	return s.Event(EventMessage, ev)
}

func (s *Writer) Error(code, message, reason string) error {
	return s.Event(EventError, ErrorPayload{Code: code, Message: message, Reason: reason})
}

func (s *Writer) Done() error {
	return s.Event(EventDone, struct{}{})
}
