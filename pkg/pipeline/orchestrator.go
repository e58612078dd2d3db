// Package pipeline drives a food search from raw text to a terminal outcome:
// gate -> intent -> base filters -> route mapping -> fetch -> post-filter ->
// narration, pausing in CLARIFY whenever required input is missing.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"food-search-be/internal/pkg/logger"
	"food-search-be/pkg/events"
	"food-search-be/pkg/failure"
	"food-search-be/pkg/i18n"
	"food-search-be/pkg/llm"
	"food-search-be/pkg/places"
	"food-search-be/pkg/postfilter"
	"food-search-be/pkg/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const module = "PIPELINE"

const (
	DefaultStateTTL     = 5 * time.Minute
	DefaultFetchTimeout = 10 * time.Second
	deltaWords          = 4
	saveTimeout         = 2 * time.Second
)

var (
	ErrRequestNotFound  = fmt.Errorf("request not found: %w", failure.ErrValidation)
	ErrNotAwaitingReply = fmt.Errorf("request is not awaiting a reply: %w", failure.ErrValidation)
	ErrRequestBusy      = fmt.Errorf("request is already running: %w", failure.ErrValidation)
	ErrRequestExists    = fmt.Errorf("request id is already in use: %w", failure.ErrValidation)
	ErrEmptyReply       = fmt.Errorf("reply carries no message or location: %w", failure.ErrValidation)
)

// Dependencies are the collaborators of an Orchestrator. Invoker, Searcher
// and Store are required; the rest are optional.
type Dependencies struct {
	Invoker     llm.Invoker
	Searcher    places.Searcher
	Geocoder    places.Geocoder
	Store       store.Store
	Broadcaster Broadcaster
	Events      EventPublisher
	Observer    Observer
	Logger      logger.ILogger
}

type Config struct {
	StateTTL      time.Duration
	FetchTimeout  time.Duration
	MaxResults    int
	DefaultRadius int
	Region        string
}

// Request starts a new search.
type Request struct {
	RequestID    string
	SessionID    string
	UserID       string
	Query        string
	Location     *store.Location
	LanguageHint string
}

// Reply answers a CLARIFY question for an existing request.
type Reply struct {
	RequestID    string
	Message      string
	Location     *store.Location
	LanguageHint string
}

// Result is the outcome of one Run or Resume.
type Result struct {
	RequestID  string             `json:"requestId"`
	Status     store.Status       `json:"status"`
	Outcome    store.Outcome      `json:"outcome,omitempty"`
	Language   string             `json:"language"`
	Message    *AssistantEvent    `json:"message,omitempty"`
	Candidates []places.Candidate `json:"candidates"`
	Relaxed    string             `json:"relaxedFilter,omitempty"`
	DurationMs int64              `json:"durationMs"`
}

type Orchestrator struct {
	invoker     llm.Invoker
	searcher    places.Searcher
	geocoder    places.Geocoder
	store       store.Store
	broadcaster Broadcaster
	events      EventPublisher
	observer    Observer
	logger      logger.ILogger
	tracer      trace.Tracer
	cfg         Config

	inflight sync.Map
}

func NewOrchestrator(deps Dependencies, cfg Config) *Orchestrator {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = places.DefaultMaxResults
	}
	if cfg.DefaultRadius <= 0 {
		cfg.DefaultRadius = places.DefaultRadiusMeters
	}

	o := &Orchestrator{
		invoker:     deps.Invoker,
		searcher:    deps.Searcher,
		geocoder:    deps.Geocoder,
		store:       deps.Store,
		broadcaster: deps.Broadcaster,
		events:      deps.Events,
		observer:    deps.Observer,
		logger:      deps.Logger,
		tracer:      otel.Tracer("food-search-be/pipeline"),
		cfg:         cfg,
	}
	if o.broadcaster == nil {
		o.broadcaster = nopBroadcaster{}
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.logger == nil {
		o.logger = logger.NewNop()
	}
	return o
}

// Run executes a new search. sink may be nil. A classified stage failure is
// returned as a *failure.PipelineError wrapping the original error, after
// it has been logged and broadcast as SEARCH_FAILED.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink Sink) (*Result, error) {
	if sink == nil {
		sink = nopSink{}
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if _, busy := o.inflight.LoadOrStore(req.RequestID, struct{}{}); busy {
		return nil, ErrRequestBusy
	}
	defer o.inflight.Delete(req.RequestID)

	// A stored id is never restarted: STOP is read-only and CLARIFY only
	// leaves through Resume.
	existing, found, err := o.store.Get(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("load request state: %w", err)
	}
	if found {
		if existing.Status == store.StatusClarify {
			return nil, fmt.Errorf("%w (awaiting a reply)", ErrRequestExists)
		}
		return nil, fmt.Errorf("%w (status %s)", ErrRequestExists, existing.Status)
	}

	startedAt := time.Now()
	state := store.NewRequestState(req.RequestID, req.SessionID, req.UserID, strings.TrimSpace(req.Query))
	if req.Location != nil {
		loc := *req.Location
		state.Location = &loc
	}
	lang := i18n.Resolve(req.LanguageHint)
	state.Language = string(lang)
	o.save(ctx, state)

	o.emit(state, sink.Meta(state.RequestID, state.Language, startedAt))
	o.lifecycle(ctx, events.SearchStarted, state, nil)
	o.logger.Info(module, "search started", map[string]interface{}{
		"requestId":   state.RequestID,
		"language":    state.Language,
		"hasLocation": state.Location != nil,
	})

	if state.Query == "" {
		ev := AssistantEvent{
			Type:     EventNarration,
			Message:  i18n.Text(lang, i18n.KeyGreeting),
			Language: state.Language,
		}
		o.announce(state, sink, ev)
		return o.finish(ctx, state, store.OutcomeSuccess, &ev, nil, "", startedAt), nil
	}

	o.emit(state, sink.Narration(i18n.Text(lang, i18n.KeyWorking)))
	return o.runStages(ctx, state, sink, req.LanguageHint, startedAt)
}

// Resume answers a CLARIFY question: the reply is merged into the prior
// query (and location) and stage evaluation restarts from the gate.
func (o *Orchestrator) Resume(ctx context.Context, reply Reply, sink Sink) (*Result, error) {
	if sink == nil {
		sink = nopSink{}
	}
	msg := strings.TrimSpace(reply.Message)
	if msg == "" && reply.Location == nil {
		return nil, ErrEmptyReply
	}
	if _, busy := o.inflight.LoadOrStore(reply.RequestID, struct{}{}); busy {
		return nil, ErrRequestBusy
	}
	defer o.inflight.Delete(reply.RequestID)

	state, ok, err := o.store.Get(ctx, reply.RequestID)
	if err != nil {
		return nil, fmt.Errorf("load request state: %w", err)
	}
	if !ok {
		return nil, ErrRequestNotFound
	}
	if state.Status != store.StatusClarify {
		return nil, fmt.Errorf("%w (status %s)", ErrNotAwaitingReply, state.Status)
	}

	if msg != "" {
		if state.Query == "" {
			state.Query = msg
		} else {
			state.Query = state.Query + "\n" + msg
		}
	}
	if reply.Location != nil {
		loc := *reply.Location
		state.Location = &loc
	}
	if err := state.Transition(store.StatusRunning); err != nil {
		return nil, err
	}

	startedAt := time.Now()
	lang := i18n.Resolve(reply.LanguageHint, state.Language)
	state.Language = string(lang)
	o.save(ctx, state)

	o.emit(state, sink.Meta(state.RequestID, state.Language, startedAt))
	o.lifecycle(ctx, events.SearchStarted, state, map[string]interface{}{"resumed": true})
	o.logger.Info(module, "search resumed", map[string]interface{}{
		"requestId":   state.RequestID,
		"hasLocation": state.Location != nil,
	})
	o.emit(state, sink.Narration(i18n.Text(lang, i18n.KeyWorking)))

	return o.runStages(ctx, state, sink, reply.LanguageHint, startedAt)
}

func (o *Orchestrator) runStages(ctx context.Context, state *store.RequestState, sink Sink, hint string, startedAt time.Time) (*Result, error) {
	query := state.Query

	// 1. Gate
	var gate GateResult
	if err := o.stage(ctx, state, StageGate, func(ctx context.Context) (any, error) {
		err := o.invoker.Invoke(ctx, llm.PurposeGate, gatePrompt(query), &gate)
		return gate, err
	}); err != nil {
		return o.fail(ctx, state, StageGate, err, startedAt)
	}

	lang := i18n.Resolve(gate.Language, hint, state.Language)
	state.Language = string(lang)

	switch gate.Verdict {
	case GateNo:
		ev := AssistantEvent{
			Type:     EventGateFail,
			Message:  i18n.Text(lang, i18n.KeyGateFail),
			Language: state.Language,
		}
		o.announce(state, sink, ev)
		return o.finish(ctx, state, store.OutcomeFailure, &ev, nil, "", startedAt), nil
	case GateUncertain:
		return o.clarify(ctx, state, sink, i18n.KeyClarifyUncertain, "", startedAt), nil
	}

	// 2. Intent
	var intent IntentResult
	if err := o.stage(ctx, state, StageIntent, func(ctx context.Context) (any, error) {
		err := o.invoker.Invoke(ctx, llm.PurposeIntent, intentPrompt(query, state.Location != nil), &intent)
		return intent, err
	}); err != nil {
		return o.fail(ctx, state, StageIntent, err, startedAt)
	}

	if intent.Route == places.RouteNearby && state.Location == nil {
		return o.clarify(ctx, state, sink, i18n.KeyClarifyLocation, "SHARE_LOCATION", startedAt), nil
	}

	// 3. Base filters
	var filters BaseFilters
	if err := o.stage(ctx, state, StageBaseFilters, func(ctx context.Context) (any, error) {
		err := o.invoker.Invoke(ctx, llm.PurposeBaseFilters, baseFiltersPrompt(query), &filters)
		return filters, err
	}); err != nil {
		return o.fail(ctx, state, StageBaseFilters, err, startedAt)
	}

	// Landmark anchoring
	var center *places.LatLng
	switch intent.Route {
	case places.RouteNearby:
		center = &places.LatLng{Lat: state.Location.Lat, Lng: state.Location.Lng}
	case places.RouteLandmark:
		if o.geocoder == nil || strings.TrimSpace(intent.Landmark) == "" {
			intent.Route = places.RouteTextSearch
			if intent.Area == "" {
				intent.Area = intent.Landmark
			}
			break
		}
		var geo GeocodeResult
		if err := o.stage(ctx, state, StageGeocode, func(ctx context.Context) (any, error) {
			loc, label, found, err := o.geocoder.Geocode(ctx, intent.Landmark, state.Language)
			geo = GeocodeResult{Landmark: intent.Landmark, Label: label, Found: found, Location: loc}
			return geo, err
		}); err != nil {
			return o.fail(ctx, state, StageGeocode, err, startedAt)
		}
		if !geo.Found {
			return o.clarify(ctx, state, sink, i18n.KeyClarifyLandmark, "", startedAt), nil
		}
		center = &geo.Location
	}

	// 4. Route mapping
	var mapping RouteMapping
	if err := o.stage(ctx, state, StageRouteMapper, func(ctx context.Context) (any, error) {
		err := o.invoker.Invoke(ctx, llm.PurposeRouteMapper, routeMapperPrompt(query, intent, lang), &mapping)
		return mapping, err
	}); err != nil {
		return o.fail(ctx, state, StageRouteMapper, err, startedAt)
	}

	q := places.Query{
		Route:      intent.Route,
		TextQuery:  mapping.TextQuery,
		Language:   state.Language,
		Region:     o.cfg.Region,
		OpenNow:    filters.OpenNow,
		MaxResults: o.cfg.MaxResults,
	}
	if center != nil {
		q.Center = center
		q.RadiusMeters = mapping.RadiusMeters
		if q.RadiusMeters <= 0 {
			q.RadiusMeters = o.cfg.DefaultRadius
		}
	}

	// 5. Fetch
	o.emit(state, sink.Narration(i18n.Text(lang, i18n.KeySearching)))
	var candidates []places.Candidate
	if err := o.stage(ctx, state, StageFetch, func(ctx context.Context) (any, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
		defer cancel()
		var err error
		candidates, err = o.searcher.Search(fetchCtx, q)
		return FetchResult{Query: q, Count: len(candidates)}, err
	}); err != nil {
		return o.fail(ctx, state, StageFetch, err, startedAt)
	}

	// 6. Post-filter
	var (
		kept    []places.Candidate
		relaxed string
	)
	if err := o.stage(ctx, state, StagePostFilter, func(context.Context) (any, error) {
		kept, relaxed = postFilter(candidates, filters)
		res := PostFilterResult{Kept: len(kept), Dropped: len(candidates) - len(kept), Relaxed: relaxed, Candidates: kept}
		if filters.Price != nil {
			res.PriceLevels = postfilter.AllowedPriceLevels(*filters.Price)
		}
		if filters.MinReviews != nil {
			res.MinReviews, _ = postfilter.MinReviews(*filters.MinReviews)
		}
		return res, nil
	}); err != nil {
		return o.fail(ctx, state, StagePostFilter, err, startedAt)
	}
	if relaxed != "" {
		o.announce(state, sink, AssistantEvent{
			Type:            EventNudgeRefine,
			Message:         i18n.Text(lang, i18n.KeyRelaxedFilter, relaxed) + " " + i18n.Text(lang, i18n.KeyRefineHint),
			Language:        state.Language,
			SuggestedAction: "REFINE_QUERY",
		})
	}

	// 7. Narration
	var narration Narration
	if err := o.stage(ctx, state, StageNarration, func(ctx context.Context) (any, error) {
		err := o.invoker.Invoke(ctx, llm.PurposeAssistant, narrationPrompt(query, lang, kept, relaxed), &narration)
		if err != nil {
			o.logger.Warn(module, "narration failed, using template", map[string]interface{}{
				"requestId": state.RequestID,
				"error":     err.Error(),
			})
			narration = templateNarration(lang, query, len(kept))
		}
		return narration, nil
	}); err != nil {
		return o.fail(ctx, state, StageNarration, err, startedAt)
	}

	for _, chunk := range chunkText(narration.Message, deltaWords) {
		o.emit(state, sink.Delta(chunk))
	}
	ev := AssistantEvent{
		Type:            EventSummary,
		Message:         narration.Message,
		Language:        state.Language,
		SuggestedAction: narration.SuggestedAction,
	}
	o.announce(state, sink, ev)

	res := o.finish(ctx, state, store.OutcomeSuccess, &ev, kept, relaxed, startedAt)
	return res, nil
}

// stage runs fn as a traced, timed step and records its result on success.
func (o *Orchestrator) stage(ctx context.Context, state *store.RequestState, name string, fn func(context.Context) (any, error)) error {
	ctx, span := o.tracer.Start(ctx, "pipeline."+name, trace.WithAttributes(
		attribute.String("request.id", state.RequestID),
		attribute.String("pipeline.stage", name),
	))
	defer span.End()

	start := time.Now()
	result, err := fn(ctx)
	elapsed := time.Since(start)
	o.observer.StageCompleted(name, elapsed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	o.logger.Info(module, "stage completed", map[string]interface{}{
		"requestId":  state.RequestID,
		"stage":      name,
		"durationMs": elapsed.Milliseconds(),
	})
	if err := state.RecordStage(name, result); err != nil {
		return err
	}
	o.save(ctx, state)
	return nil
}

func (o *Orchestrator) clarify(ctx context.Context, state *store.RequestState, sink Sink, key i18n.Key, action string, startedAt time.Time) *Result {
	lang := i18n.Language(state.Language)
	question := i18n.Text(lang, key)
	ev := AssistantEvent{
		Type:            EventClarify,
		Message:         question,
		Question:        question,
		BlocksSearch:    true,
		Language:        state.Language,
		SuggestedAction: action,
	}
	if err := state.Transition(store.StatusClarify); err != nil {
		o.logger.Warn(module, "clarify transition rejected", map[string]interface{}{
			"requestId": state.RequestID,
			"error":     err.Error(),
		})
	}
	o.save(ctx, state)
	o.announce(state, sink, ev)
	o.lifecycle(ctx, events.SearchClarify, state, map[string]interface{}{"reason": string(key)})
	o.observer.Finished(string(store.StatusClarify), "")
	o.logger.Info(module, "awaiting clarification", map[string]interface{}{
		"requestId":  state.RequestID,
		"reason":     string(key),
		"durationMs": time.Since(startedAt).Milliseconds(),
	})

	return &Result{
		RequestID:  state.RequestID,
		Status:     state.Status,
		Language:   state.Language,
		Message:    &ev,
		Candidates: []places.Candidate{},
		DurationMs: time.Since(startedAt).Milliseconds(),
	}
}

func (o *Orchestrator) finish(ctx context.Context, state *store.RequestState, outcome store.Outcome, ev *AssistantEvent, candidates []places.Candidate, relaxed string, startedAt time.Time) *Result {
	if err := state.Finish(outcome); err != nil {
		o.logger.Warn(module, "finish rejected", map[string]interface{}{
			"requestId": state.RequestID,
			"error":     err.Error(),
		})
	}
	o.save(ctx, state)

	elapsed := time.Since(startedAt)
	o.lifecycle(ctx, events.SearchCompleted, state, map[string]interface{}{
		"outcome":    string(outcome),
		"results":    len(candidates),
		"durationMs": elapsed.Milliseconds(),
	})
	o.observer.Finished(string(store.StatusStop), string(outcome))
	o.logger.Info(module, "search finished", map[string]interface{}{
		"requestId":  state.RequestID,
		"outcome":    string(outcome),
		"results":    len(candidates),
		"relaxed":    relaxed,
		"durationMs": elapsed.Milliseconds(),
	})

	if candidates == nil {
		candidates = []places.Candidate{}
	}
	return &Result{
		RequestID:  state.RequestID,
		Status:     state.Status,
		Outcome:    state.Outcome,
		Language:   state.Language,
		Message:    ev,
		Candidates: candidates,
		Relaxed:    relaxed,
		DurationMs: elapsed.Milliseconds(),
	}
}

// fail classifies err, records it, broadcasts SEARCH_FAILED and returns the
// classified error for the caller to surface.
func (o *Orchestrator) fail(ctx context.Context, state *store.RequestState, stage string, err error, startedAt time.Time) (*Result, error) {
	pe := failure.Classify(err, stage)
	elapsed := time.Since(startedAt)

	o.logger.Error(module, "stage failed", map[string]interface{}{
		"requestId":  state.RequestID,
		"stage":      stage,
		"durationMs": elapsed.Milliseconds(),
		"kind":       string(pe.Kind()),
		"code":       string(pe.Code()),
		"error":      err.Error(),
	})

	_ = state.RecordStage("error", map[string]string{
		"stage": stage,
		"kind":  string(pe.Kind()),
		"code":  string(pe.Code()),
	})
	if ferr := state.Finish(store.OutcomeFailure); ferr != nil {
		o.logger.Warn(module, "finish rejected", map[string]interface{}{
			"requestId": state.RequestID,
			"error":     ferr.Error(),
		})
	}
	o.save(ctx, state)

	lang := i18n.Language(state.Language)
	o.publish(state.RequestID, AssistantEvent{
		Type:     EventSearchFailed,
		Message:  i18n.Text(lang, i18n.KeySearchFailed),
		Language: state.Language,
	})
	o.lifecycle(ctx, events.SearchFailed, state, map[string]interface{}{
		"stage":      stage,
		"kind":       string(pe.Kind()),
		"code":       string(pe.Code()),
		"durationMs": elapsed.Milliseconds(),
	})
	o.observer.Finished(string(store.StatusStop), string(store.OutcomeFailure))

	return nil, pe
}

// announce sends ev down the one-shot stream and to pub/sub subscribers.
func (o *Orchestrator) announce(state *store.RequestState, sink Sink, ev AssistantEvent) {
	o.emit(state, sink.Message(ev))
	res := o.publish(state.RequestID, ev)
	o.logger.Debug(module, "assistant event", map[string]interface{}{
		"requestId": state.RequestID,
		"type":      string(ev.Type),
		"attempted": res.Attempted,
		"sent":      res.Sent,
		"failed":    res.Failed,
	})
}

// publish never lets a broadcaster failure escape into the pipeline.
func (o *Orchestrator) publish(requestID string, ev AssistantEvent) (res PublishResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error(module, "broadcast panicked", map[string]interface{}{
				"requestId": requestID,
				"panic":     fmt.Sprint(r),
			})
			res = PublishResult{}
		}
	}()
	return o.broadcaster.Publish(requestID, ev)
}

func (o *Orchestrator) emit(state *store.RequestState, err error) {
	if err != nil {
		o.logger.Debug(module, "stream write dropped", map[string]interface{}{
			"requestId": state.RequestID,
			"error":     err.Error(),
		})
	}
}

func (o *Orchestrator) save(ctx context.Context, state *store.RequestState) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := o.store.Set(saveCtx, state.RequestID, state, o.cfg.StateTTL); err != nil {
		o.logger.Warn(module, "failed to save request state", map[string]interface{}{
			"requestId": state.RequestID,
			"error":     err.Error(),
		})
	}
}

func (o *Orchestrator) lifecycle(ctx context.Context, eventType string, state *store.RequestState, data map[string]interface{}) {
	if o.events == nil {
		return
	}
	payload := map[string]interface{}{
		"status": string(state.Status),
	}
	if state.SessionID != "" {
		payload["sessionId"] = state.SessionID
	}
	for k, v := range data {
		payload[k] = v
	}
	if err := o.events.Publish(context.WithoutCancel(ctx), events.NewSearchEvent(eventType, state.RequestID, payload)); err != nil {
		o.logger.Warn(module, "failed to publish lifecycle event", map[string]interface{}{
			"requestId": state.RequestID,
			"type":      eventType,
			"error":     err.Error(),
		})
	}
}

func templateNarration(lang i18n.Language, query string, found int) Narration {
	subject := firstLine(query)
	if found == 0 {
		return Narration{Message: i18n.Text(lang, i18n.KeySummaryEmpty, subject)}
	}
	return Narration{Message: i18n.Text(lang, i18n.KeySummaryFound, found, subject)}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// chunkText splits text into delta chunks of n words. Concatenating the
// chunks yields the text with whitespace collapsed.
func chunkText(text string, n int) []string {
	words := strings.Fields(text)
	chunks := make([]string, 0, len(words)/n+1)
	for i := 0; i < len(words); i += n {
		end := min(i+n, len(words))
		chunk := strings.Join(words[i:end], " ")
		if end < len(words) {
			chunk += " "
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
