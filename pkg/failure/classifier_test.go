package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		stage    string
		wantKind Kind
		wantCode Code
	}{
		{"queue timeout", fmt.Errorf("admit: %w", ErrQueueTimeout), StageAdmission, KindQueueTimeout, CodeServerBusy},
		{"llm timeout sentinel", fmt.Errorf("gate: %w", ErrLLMTimeout), "gate", KindLLMTimeout, CodeLLMTimeout},
		{"llm malformed", fmt.Errorf("intent: %w", ErrLLMFailed), "intent", KindLLMFailed, CodeLLMFailed},
		{"fetch failure", fmt.Errorf("places: %w", ErrExternalFetch), StageFetch, KindExternalFetchFailed, CodeSearchFailed},
		{"unauthorized", ErrUnauthorized, "subscribe", KindUnauthorized, CodeUnauthorized},
		{"cancelled", context.Canceled, "intent", KindAborted, CodeAborted},
		{"bare deadline in llm stage", context.DeadlineExceeded, "base_filters", KindLLMTimeout, CodeLLMTimeout},
		{"bare deadline in fetch stage", context.DeadlineExceeded, StageFetch, KindExternalFetchFailed, CodeSearchFailed},
		{"bare deadline in admission", context.DeadlineExceeded, StageAdmission, KindQueueTimeout, CodeServerBusy},
		{"timeout text from client", errors.New("Client.Timeout exceeded while awaiting headers"), StageFetch, KindExternalFetchFailed, CodeSearchFailed},
		{"json garbage in llm stage", errors.New("invalid character 'x' looking for beginning of value"), "route_mapper", KindLLMFailed, CodeLLMFailed},
		{"unclassified", errors.New("boom"), "gate", KindUnknown, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := Classify(tt.err, tt.stage)
			require.NotNil(t, pe)
			assert.Equal(t, tt.wantKind, pe.Kind())
			assert.Equal(t, tt.wantCode, pe.Code())
			assert.Equal(t, tt.stage, pe.Stage())
			assert.NotEmpty(t, pe.Message())
			assert.ErrorIs(t, pe, tt.err)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil, "gate"))
}

func TestClassifyKeepsExistingPipelineError(t *testing.T) {
	original := New(KindValidation, "request", "query is too long", nil)
	wrapped := fmt.Errorf("handler: %w", original)

	pe := Classify(wrapped, "gate")
	assert.Same(t, original, pe)
	assert.Equal(t, "request", pe.Stage())
}

func TestValidationMessageIsKept(t *testing.T) {
	pe := Classify(fmt.Errorf("%w: query must not exceed 500 characters", ErrValidation), StageRequest)
	assert.Equal(t, KindValidation, pe.Kind())
	assert.Equal(t, "query must not exceed 500 characters", pe.Message())
}

func TestNewUnknownKindFallsBack(t *testing.T) {
	pe := New(Kind("SOMETHING"), "gate", "", nil)
	assert.Equal(t, KindUnknown, pe.Kind())
	assert.Equal(t, CodeInternal, pe.Code())
	assert.Empty(t, pe.Reason())
}
