package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"food-search-be/internal/dto"
	"food-search-be/internal/pkg/logger"
	"food-search-be/internal/repository/memory"
	"food-search-be/internal/websocket"
	"food-search-be/pkg/backpressure"
	"food-search-be/pkg/failure"
	"food-search-be/pkg/pipeline"
	"food-search-be/pkg/places"
	"food-search-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	result *pipeline.Result
	err    error

	req    pipeline.Request
	reply  pipeline.Reply
	ctxErr error
	sink   pipeline.Sink
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request, sink pipeline.Sink) (*pipeline.Result, error) {
	f.req, f.ctxErr, f.sink = req, ctx.Err(), sink
	return f.result, f.err
}

func (f *fakeRunner) Resume(ctx context.Context, reply pipeline.Reply, sink pipeline.Sink) (*pipeline.Result, error) {
	f.reply, f.ctxErr, f.sink = reply, ctx.Err(), sink
	return f.result, f.err
}

type streamRecorder struct {
	events []string
	code   string
	reason string
}

func (s *streamRecorder) Meta(string, string, time.Time) error { s.add("meta"); return nil }
func (s *streamRecorder) Narration(string) error               { s.add("narration"); return nil }
func (s *streamRecorder) Delta(string) error                   { s.add("delta"); return nil }
func (s *streamRecorder) Message(pipeline.AssistantEvent) error {
	s.add("message")
	return nil
}
func (s *streamRecorder) Error(code, _, reason string) error {
	s.add("error")
	s.code, s.reason = code, reason
	return nil
}
func (s *streamRecorder) Done() error { s.add("done"); return nil }
func (s *streamRecorder) add(name string) {
	s.events = append(s.events, name)
}

type serviceFixture struct {
	svc     ISearchService
	runner  *fakeRunner
	store   *memory.RequestStateRepository
	manager *backpressure.Manager
}

func newFixture(t *testing.T, cfg SearchServiceConfig) *serviceFixture {
	t.Helper()
	repo := memory.NewRequestStateRepository(time.Minute, time.Minute)
	t.Cleanup(func() { _ = repo.Close() })
	manager := backpressure.NewManager(backpressure.Config{MaxConcurrent: 2, MaxQueueWait: 100 * time.Millisecond})
	runner := &fakeRunner{result: &pipeline.Result{
		RequestID: "req-1",
		Status:    store.StatusStop,
		Outcome:   store.OutcomeSuccess,
		Language:  "en",
	}}
	return &serviceFixture{
		svc:     NewSearchService(manager, runner, repo, nil, logger.NewNop(), cfg),
		runner:  runner,
		store:   repo,
		manager: manager,
	}
}

func (f *serviceFixture) seed(t *testing.T, id, sessionID string, status store.Status) *store.RequestState {
	t.Helper()
	state := store.NewRequestState(id, sessionID, "", "pizza")
	if status != store.StatusRunning {
		require.NoError(t, state.Transition(status))
	}
	require.NoError(t, f.store.Set(context.Background(), id, state, time.Minute))
	return state
}

func TestSearch_MapsResultAndIdentity(t *testing.T) {
	f := newFixture(t, SearchServiceConfig{})
	caller := websocket.Identity{SessionID: "s1", UserID: "u1"}

	res, err := f.svc.Search(context.Background(), dto.SearchRequest{
		Query:    "sushi",
		Location: &dto.LocationRequest{Lat: 1.5, Lng: 2.5},
		Language: "en",
	}, caller)
	require.NoError(t, err)

	assert.Equal(t, "req-1", res.RequestID)
	assert.Equal(t, "STOP", res.Status)
	assert.Equal(t, "SUCCESS", res.Outcome)
	assert.NotNil(t, res.Results)
	assert.Empty(t, res.Results)

	assert.Equal(t, "s1", f.runner.req.SessionID)
	assert.Equal(t, "u1", f.runner.req.UserID)
	require.NotNil(t, f.runner.req.Location)
	assert.Equal(t, 1.5, f.runner.req.Location.Lat)
	assert.Nil(t, f.runner.sink)
}

func TestSearch_RunsDetachedFromCaller(t *testing.T) {
	f := newFixture(t, SearchServiceConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Search(ctx, dto.SearchRequest{Query: "ramen"}, websocket.Identity{})
	require.NoError(t, err)
	assert.NoError(t, f.runner.ctxErr)
}

func TestSearch_RejectsForeignRequestID(t *testing.T) {
	f := newFixture(t, SearchServiceConfig{})
	f.seed(t, "taken", "owner", store.StatusStop)

	_, err := f.svc.Search(context.Background(), dto.SearchRequest{RequestID: "taken", Query: "x"},
		websocket.Identity{SessionID: "intruder"})
	require.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, failure.CodeUnauthorized, ClassifyError(err).Code())
	assert.Empty(t, f.runner.req.Query)
}

func TestSearch_RejectsReusedRequestID(t *testing.T) {
	for _, status := range []store.Status{store.StatusStop, store.StatusClarify} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, SearchServiceConfig{})
			seeded := f.seed(t, "mine", "s1", status)

			_, err := f.svc.Search(context.Background(), dto.SearchRequest{RequestID: "mine", Query: "burgers"},
				websocket.Identity{SessionID: "s1"})
			require.ErrorIs(t, err, pipeline.ErrRequestExists)
			assert.Equal(t, failure.CodeBadRequest, ClassifyError(err).Code())
			assert.Empty(t, f.runner.req.Query, "runner never starts")

			st, ok, err := f.store.Get(context.Background(), "mine")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, seeded.Status, st.Status)
			assert.Equal(t, "pizza", st.Query)
		})
	}
}

func TestReply(t *testing.T) {
	tests := []struct {
		name    string
		seedID  string
		caller  websocket.Identity
		wantErr error
	}{
		{"owner may reply", "r1", websocket.Identity{SessionID: "s1"}, nil},
		{"unknown request", "", websocket.Identity{SessionID: "s1"}, pipeline.ErrRequestNotFound},
		{"other session", "r1", websocket.Identity{SessionID: "s2"}, ErrForbidden},
		{"anonymous caller", "r1", websocket.Identity{}, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, SearchServiceConfig{})
			if tt.seedID != "" {
				f.seed(t, tt.seedID, "s1", store.StatusClarify)
			}

			_, err := f.svc.Reply(context.Background(), "r1", dto.ReplyRequest{Message: "near the station"}, tt.caller)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "r1", f.runner.reply.RequestID)
			assert.Equal(t, "near the station", f.runner.reply.Message)
		})
	}
}

func TestStreamSearch_Done(t *testing.T) {
	f := newFixture(t, SearchServiceConfig{})
	stream := &streamRecorder{}

	f.svc.StreamSearch(context.Background(), dto.SearchRequest{Query: "tacos"}, websocket.Identity{}, stream)

	assert.Equal(t, []string{"done"}, stream.events)
	assert.Same(t, stream, f.runner.sink)
}

func TestStreamSearch_ErrorEvent(t *testing.T) {
	tests := []struct {
		name       string
		expose     bool
		setup      func(f *serviceFixture)
		wantCode   failure.Code
		wantReason bool
	}{
		{
			name: "pipeline failure keeps its code",
			setup: func(f *serviceFixture) {
				f.runner.err = failure.New(failure.KindLLMTimeout, "intent", "", context.DeadlineExceeded)
			},
			wantCode: failure.CodeLLMTimeout,
		},
		{
			name:     "shutdown is reported as busy",
			setup:    func(f *serviceFixture) { f.manager.Shutdown() },
			wantCode: failure.CodeServerBusy,
		},
		{
			name:   "reason exposed when enabled",
			expose: true,
			setup: func(f *serviceFixture) {
				f.runner.err = failure.New(failure.KindLLMFailed, "gate", "", failure.ErrLLMFailed)
			},
			wantCode:   failure.CodeLLMFailed,
			wantReason: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, SearchServiceConfig{ExposeReasons: tt.expose})
			tt.setup(f)
			stream := &streamRecorder{}

			f.svc.StreamSearch(context.Background(), dto.SearchRequest{Query: "tacos"}, websocket.Identity{}, stream)

			assert.Equal(t, []string{"error"}, stream.events)
			assert.Equal(t, string(tt.wantCode), stream.code)
			assert.Equal(t, tt.wantReason, stream.reason != "")
		})
	}
}

func TestGetState_ReturnsFilteredResults(t *testing.T) {
	f := newFixture(t, SearchServiceConfig{})
	state := store.NewRequestState("r9", "s1", "", "pizza")
	require.NoError(t, state.RecordStage(pipeline.StagePostFilter, pipeline.PostFilterResult{
		Kept:       1,
		Candidates: []places.Candidate{{ID: "p1", Name: "Luigi's"}},
	}))
	require.NoError(t, f.store.Set(context.Background(), "r9", state, time.Minute))

	res, err := f.svc.GetState(context.Background(), "r9", websocket.Identity{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", res.Status)
	assert.Equal(t, []string{pipeline.StagePostFilter}, res.Stages)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Luigi's", res.Results[0].Name)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(res.StageResults[pipeline.StagePostFilter], &raw))
	assert.EqualValues(t, 1, raw["kept"])
}

func TestHealth(t *testing.T) {
	f := newFixture(t, SearchServiceConfig{StoreBackend: "memory"})
	h := f.svc.Health()
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 2, h.Admission.Capacity)
	assert.Equal(t, "memory", h.StateStore)
	assert.Zero(t, h.Subscribers)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want failure.Code
	}{
		{"queue timeout", backpressure.ErrQueueTimeout, failure.CodeServerBusy},
		{"shutting down", backpressure.ErrShuttingDown, failure.CodeServerBusy},
		{"not found", pipeline.ErrRequestNotFound, failure.CodeBadRequest},
		{"forbidden", ErrForbidden, failure.CodeUnauthorized},
		{"deadline at request boundary", context.DeadlineExceeded, failure.CodeAborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err).Code())
		})
	}
}
