package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"food-search-be/internal/dto"
	"food-search-be/internal/pkg/logger"
	"food-search-be/internal/websocket"
	"food-search-be/pkg/backpressure"
	"food-search-be/pkg/failure"
	"food-search-be/pkg/pipeline"
	"food-search-be/pkg/places"
	"food-search-be/pkg/store"
)

const searchModule = "SEARCH"

// ErrForbidden is returned when the caller does not own the request it names.
var ErrForbidden = fmt.Errorf("request owned by another client: %w", failure.ErrUnauthorized)

// StreamSink is the one-shot channel a streamed search writes to.
type StreamSink interface {
	pipeline.Sink
	Error(code, message, reason string) error
	Done() error
}

// Runner is the part of the orchestrator the service drives.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, sink pipeline.Sink) (*pipeline.Result, error)
	Resume(ctx context.Context, reply pipeline.Reply, sink pipeline.Sink) (*pipeline.Result, error)
}

// SubscriberCounter reports live pub/sub subscribers.
type SubscriberCounter interface {
	TotalSubscribers() int
}

type ISearchService interface {
	Search(ctx context.Context, req dto.SearchRequest, caller websocket.Identity) (*dto.SearchResponse, error)
	StreamSearch(ctx context.Context, req dto.SearchRequest, caller websocket.Identity, stream StreamSink)
	Reply(ctx context.Context, requestID string, req dto.ReplyRequest, caller websocket.Identity) (*dto.SearchResponse, error)
	StreamReply(ctx context.Context, requestID string, req dto.ReplyRequest, caller websocket.Identity, stream StreamSink)
	GetState(ctx context.Context, requestID string, caller websocket.Identity) (*dto.SearchStateResponse, error)
	Health() dto.HealthResponse
}

type SearchServiceConfig struct {
	// Timeout bounds a whole run, queue wait included. Runs are detached from
	// the caller's context, so this is their only deadline.
	Timeout time.Duration
	// ExposeReasons adds the internal cause to streamed error events.
	ExposeReasons bool
	StoreBackend  string
}

type searchService struct {
	manager     *backpressure.Manager
	runner      Runner
	store       store.Store
	subscribers SubscriberCounter
	logger      logger.ILogger
	cfg         SearchServiceConfig
	startedAt   time.Time
}

func NewSearchService(
	manager *backpressure.Manager,
	runner Runner,
	st store.Store,
	subscribers SubscriberCounter,
	log logger.ILogger,
	cfg SearchServiceConfig,
) ISearchService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &searchService{
		manager:     manager,
		runner:      runner,
		store:       st,
		subscribers: subscribers,
		logger:      log,
		cfg:         cfg,
		startedAt:   time.Now(),
	}
}

func (s *searchService) Search(ctx context.Context, req dto.SearchRequest, caller websocket.Identity) (*dto.SearchResponse, error) {
	res, err := s.run(ctx, req, caller, nil)
	if err != nil {
		return nil, err
	}
	return toSearchResponse(res), nil
}

func (s *searchService) StreamSearch(ctx context.Context, req dto.SearchRequest, caller websocket.Identity, stream StreamSink) {
	_, err := s.run(ctx, req, caller, stream)
	s.closeStream(req.RequestID, stream, err)
}

func (s *searchService) Reply(ctx context.Context, requestID string, req dto.ReplyRequest, caller websocket.Identity) (*dto.SearchResponse, error) {
	res, err := s.resume(ctx, requestID, req, caller, nil)
	if err != nil {
		return nil, err
	}
	return toSearchResponse(res), nil
}

func (s *searchService) StreamReply(ctx context.Context, requestID string, req dto.ReplyRequest, caller websocket.Identity, stream StreamSink) {
	_, err := s.resume(ctx, requestID, req, caller, stream)
	s.closeStream(requestID, stream, err)
}

func (s *searchService) GetState(ctx context.Context, requestID string, caller websocket.Identity) (*dto.SearchStateResponse, error) {
	state, err := s.owned(ctx, requestID, caller)
	if err != nil {
		return nil, err
	}

	var pf pipeline.PostFilterResult
	if _, err := state.StageResult(pipeline.StagePostFilter, &pf); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", pipeline.StagePostFilter, err)
	}
	results := pf.Candidates
	if results == nil {
		results = []places.Candidate{}
	}

	return &dto.SearchStateResponse{
		RequestID:    state.RequestID,
		Status:       string(state.Status),
		Outcome:      string(state.Outcome),
		Language:     state.Language,
		Query:        state.Query,
		Stages:       state.StageNames(),
		StageResults: state.StageResults,
		Results:      results,
		CreatedAt:    state.CreatedAt,
		UpdatedAt:    state.UpdatedAt,
		ExpiresAt:    state.ExpiresAt,
	}, nil
}

func (s *searchService) Health() dto.HealthResponse {
	subscribers := 0
	if s.subscribers != nil {
		subscribers = s.subscribers.TotalSubscribers()
	}
	return dto.HealthResponse{
		Status:      "ok",
		Admission:   s.manager.Stats(),
		Subscribers: subscribers,
		StateStore:  s.cfg.StoreBackend,
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}
}

func (s *searchService) run(ctx context.Context, req dto.SearchRequest, caller websocket.Identity, sink pipeline.Sink) (*pipeline.Result, error) {
	runCtx, cancel := s.detach(ctx)
	defer cancel()

	if req.RequestID != "" {
		if err := s.claimable(runCtx, req.RequestID, caller); err != nil {
			return nil, err
		}
	}

	return backpressure.Do(runCtx, s.manager, func(ctx context.Context) (*pipeline.Result, error) {
		return s.runner.Run(ctx, pipeline.Request{
			RequestID:    req.RequestID,
			SessionID:    caller.SessionID,
			UserID:       caller.UserID,
			Query:        req.Query,
			Location:     toLocation(req.Location),
			LanguageHint: req.Language,
		}, sink)
	})
}

func (s *searchService) resume(ctx context.Context, requestID string, req dto.ReplyRequest, caller websocket.Identity, sink pipeline.Sink) (*pipeline.Result, error) {
	runCtx, cancel := s.detach(ctx)
	defer cancel()

	if _, err := s.owned(runCtx, requestID, caller); err != nil {
		return nil, err
	}

	return backpressure.Do(runCtx, s.manager, func(ctx context.Context) (*pipeline.Result, error) {
		return s.runner.Resume(ctx, pipeline.Reply{
			RequestID:    requestID,
			Message:      req.Message,
			Location:     toLocation(req.Location),
			LanguageHint: req.Language,
		}, sink)
	})
}

// detach keeps a run alive after the client goes away; only the run timeout
// cancels it.
func (s *searchService) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
}

// owned loads requestID and checks that caller may act on it.
func (s *searchService) owned(ctx context.Context, requestID string, caller websocket.Identity) (*store.RequestState, error) {
	state, ok, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request state: %w", err)
	}
	if !ok {
		return nil, pipeline.ErrRequestNotFound
	}
	if v := websocket.Check(state, caller); !v.Allowed {
		s.logger.Warn(searchModule, "Ownership check failed", map[string]interface{}{
			"requestId": requestID,
			"reason":    string(v.Reason),
		})
		return nil, ErrForbidden
	}
	return state, nil
}

// claimable accepts a caller-chosen request id only while it is unused. An id
// owned by someone else is forbidden; the caller's own id is already taken.
func (s *searchService) claimable(ctx context.Context, requestID string, caller websocket.Identity) error {
	state, err := s.owned(ctx, requestID, caller)
	switch {
	case errors.Is(err, pipeline.ErrRequestNotFound):
		return nil
	case err != nil:
		return err
	}
	return fmt.Errorf("%w (status %s)", pipeline.ErrRequestExists, state.Status)
}

func (s *searchService) closeStream(requestID string, stream StreamSink, err error) {
	if err == nil {
		_ = stream.Done()
		return
	}

	pe := ClassifyError(err)
	reason := ""
	if s.cfg.ExposeReasons {
		reason = pe.Reason()
	}
	if werr := stream.Error(string(pe.Code()), pe.Message(), reason); werr != nil {
		s.logger.Debug(searchModule, "Stream closed before error event", map[string]interface{}{
			"requestId": requestID,
			"code":      string(pe.Code()),
		})
	}
}

// ClassifyError maps any error surfaced by the service onto the taxonomy.
// Errors raised inside the pipeline are already classified.
func ClassifyError(err error) *failure.PipelineError {
	if errors.Is(err, backpressure.ErrShuttingDown) {
		return failure.New(failure.KindQueueTimeout, failure.StageAdmission, "The service is shutting down.", err)
	}
	if errors.Is(err, backpressure.ErrQueueTimeout) {
		return failure.Classify(err, failure.StageAdmission)
	}
	return failure.Classify(err, failure.StageRequest)
}

func toLocation(l *dto.LocationRequest) *store.Location {
	if l == nil {
		return nil
	}
	return &store.Location{Lat: l.Lat, Lng: l.Lng}
}

func toSearchResponse(res *pipeline.Result) *dto.SearchResponse {
	results := res.Candidates
	if results == nil {
		results = []places.Candidate{}
	}
	return &dto.SearchResponse{
		RequestID:     res.RequestID,
		Status:        string(res.Status),
		Outcome:       string(res.Outcome),
		Language:      res.Language,
		Message:       res.Message,
		Results:       results,
		RelaxedFilter: res.Relaxed,
		DurationMs:    res.DurationMs,
	}
}
