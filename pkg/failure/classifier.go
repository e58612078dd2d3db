package failure

import (
	"context"
	"errors"
	"strings"
)

var sentinels = []struct {
	err  error
	kind Kind
}{
	{ErrUnauthorized, KindUnauthorized},
	{ErrQueueTimeout, KindQueueTimeout},
	{ErrLLMTimeout, KindLLMTimeout},
	{ErrLLMFailed, KindLLMFailed},
	{ErrExternalFetch, KindExternalFetchFailed},
	{ErrValidation, KindValidation},
	{ErrAborted, KindAborted},
}

// Classify maps err raised at stage onto the taxonomy. An error that is
// already a *PipelineError is returned as is. Classify(nil, ...) returns nil.
func Classify(err error, stage string) *PipelineError {
	if err == nil {
		return nil
	}

	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}

	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return New(s.kind, stage, messageFor(s.kind, err), err)
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return New(KindAborted, stage, "", err)
	case errors.Is(err, context.DeadlineExceeded):
		return New(timeoutKind(stage), stage, "", err)
	}

	return New(heuristicKind(err, stage), stage, "", err)
}

// timeoutKind picks the kind for a bare deadline error based on where it happened.
func timeoutKind(stage string) Kind {
	switch stage {
	case StageAdmission:
		return KindQueueTimeout
	case StageFetch, StageGeocode:
		return KindExternalFetchFailed
	case StageRequest:
		return KindAborted
	default:
		return KindLLMTimeout
	}
}

// heuristicKind inspects the error text for errors that carry no sentinel,
// typically from third-party clients.
func heuristicKind(err error, stage string) Kind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return timeoutKind(stage)
	case stage == StageFetch || stage == StageGeocode:
		return KindExternalFetchFailed
	case strings.Contains(msg, "unmarshal"), strings.Contains(msg, "invalid character"), strings.Contains(msg, "schema"):
		if stage != StageAdmission && stage != StageRequest {
			return KindLLMFailed
		}
	}
	return KindUnknown
}

// messageFor keeps validation messages since they describe what the caller got wrong.
func messageFor(kind Kind, err error) string {
	if kind == KindValidation {
		return strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")
	}
	return ""
}
