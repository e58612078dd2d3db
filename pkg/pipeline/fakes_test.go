package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"food-search-be/pkg/events"
	"food-search-be/pkg/llm"
	"food-search-be/pkg/places"
)

type fakeInvoker struct {
	mu        sync.Mutex
	responses map[llm.Purpose]string
	errs      map[llm.Purpose]error
	calls     []llm.Purpose
}

func newFakeInvoker(responses map[llm.Purpose]string) *fakeInvoker {
	return &fakeInvoker{responses: responses, errs: map[llm.Purpose]error{}}
}

func (f *fakeInvoker) Invoke(_ context.Context, purpose llm.Purpose, _ llm.Prompt, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, purpose)
	err := f.errs[purpose]
	resp, ok := f.responses[purpose]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no canned response for %s", purpose)
	}
	return json.Unmarshal([]byte(resp), out)
}

func (f *fakeInvoker) Calls() []llm.Purpose {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Purpose(nil), f.calls...)
}

type fakeSearcher struct {
	mu      sync.Mutex
	results []places.Candidate
	err     error
	queries []places.Query
}

func (f *fakeSearcher) Search(_ context.Context, q places.Query) ([]places.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.results, f.err
}

func (f *fakeSearcher) Queries() []places.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]places.Query(nil), f.queries...)
}

type fakeGeocoder struct {
	loc   places.LatLng
	found bool
	err   error
}

func (f *fakeGeocoder) Geocode(context.Context, string, string) (places.LatLng, string, bool, error) {
	return f.loc, "somewhere", f.found, f.err
}

type sinkEvent struct {
	Name    string
	Text    string
	Message AssistantEvent
}

type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *recordingSink) add(e sinkEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Meta(requestID, language string, _ time.Time) error {
	return s.add(sinkEvent{Name: "meta", Text: language})
}
func (s *recordingSink) Narration(text string) error {
	return s.add(sinkEvent{Name: "narration", Text: text})
}
func (s *recordingSink) Delta(chunk string) error {
	return s.add(sinkEvent{Name: "delta", Text: chunk})
}
func (s *recordingSink) Message(ev AssistantEvent) error {
	return s.add(sinkEvent{Name: "message", Message: ev})
}

func (s *recordingSink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.events))
	for i, e := range s.events {
		names[i] = e.Name
	}
	return names
}

func (s *recordingSink) Deltas() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out string
	for _, e := range s.events {
		if e.Name == "delta" {
			out += e.Text
		}
	}
	return out
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []AssistantEvent
	panics bool
}

func (b *recordingBroadcaster) Publish(_ string, ev AssistantEvent) PublishResult {
	if b.panics {
		panic("subscriber map corrupted")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return PublishResult{Attempted: 1, Sent: 1}
}

func (b *recordingBroadcaster) Types() []EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	types := make([]EventType, len(b.events))
	for i, e := range b.events {
		types[i] = e.Type
	}
	return types
}

type recordingEvents struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingEvents) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, ev.EventType())
	return nil
}

func (r *recordingEvents) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}
