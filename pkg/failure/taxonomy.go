// Package failure maps raw pipeline errors onto a stable, client-facing taxonomy.
package failure

import (
	"errors"
	"fmt"
)

// Kind is the coarse failure category.
type Kind string

const (
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindLLMTimeout          Kind = "LLM_TIMEOUT"
	KindLLMFailed           Kind = "LLM_FAILED"
	KindAborted             Kind = "ABORTED"
	KindExternalFetchFailed Kind = "EXTERNAL_FETCH_FAILED"
	KindQueueTimeout        Kind = "QUEUE_TIMEOUT"
	KindValidation          Kind = "VALIDATION"
	KindUnknown             Kind = "UNKNOWN"
)

// Code is the stable error code sent to clients. The set is closed.
type Code string

const (
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeLLMTimeout   Code = "LLM_TIMEOUT"
	CodeLLMFailed    Code = "LLM_FAILED"
	CodeAborted      Code = "ABORTED"
	CodeSearchFailed Code = "SEARCH_FAILED"
	CodeServerBusy   Code = "SERVER_BUSY"
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// Stage names the classifier treats specially. Pipeline stages not listed here
// are assumed to be LLM-purpose calls.
const (
	StageAdmission = "admission"
	StageGeocode   = "geocode"
	StageFetch     = "fetch"
	StageRequest   = "request"
)

// Sentinel errors raised (wrapped) by the packages that detect them.
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLLMTimeout    = errors.New("llm call timed out")
	ErrLLMFailed     = errors.New("llm returned unusable output")
	ErrAborted       = errors.New("aborted")
	ErrExternalFetch = errors.New("external fetch failed")
	ErrQueueTimeout  = errors.New("queue wait exceeded")
	ErrValidation    = errors.New("validation failed")
)

type entry struct {
	code    Code
	message string
}

var taxonomy = map[Kind]entry{
	KindUnauthorized:        {CodeUnauthorized, "You are not allowed to access this search."},
	KindLLMTimeout:          {CodeLLMTimeout, "The assistant took too long to respond. Please try again."},
	KindLLMFailed:           {CodeLLMFailed, "The assistant could not process the request. Please try again."},
	KindAborted:             {CodeAborted, "The search was cancelled."},
	KindExternalFetchFailed: {CodeSearchFailed, "We could not reach the restaurant search service. Please try again."},
	KindQueueTimeout:        {CodeServerBusy, "The service is busy right now. Please try again in a moment."},
	KindValidation:          {CodeBadRequest, "The request is invalid."},
	KindUnknown:             {CodeInternal, "Something went wrong while searching."},
}

// PipelineError is a classified failure. It is built once by Classify and
// never mutated afterwards.
type PipelineError struct {
	kind    Kind
	code    Code
	stage   string
	message string
	cause   error
}

// New builds a PipelineError for kind directly. An empty message uses the
// taxonomy default.
func New(kind Kind, stage, message string, cause error) *PipelineError {
	e, ok := taxonomy[kind]
	if !ok {
		kind = KindUnknown
		e = taxonomy[KindUnknown]
	}
	if message == "" {
		message = e.message
	}
	return &PipelineError{kind: kind, code: e.code, stage: stage, message: message, cause: cause}
}

func (e *PipelineError) Kind() Kind      { return e.kind }
func (e *PipelineError) Code() Code      { return e.code }
func (e *PipelineError) Stage() string   { return e.stage }
func (e *PipelineError) Message() string { return e.message }
func (e *PipelineError) Unwrap() error   { return e.cause }

// Reason is the internal cause text, empty when there is no cause.
func (e *PipelineError) Reason() string {
	if e.cause == nil {
		return ""
	}
	return e.cause.Error()
}

func (e *PipelineError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s at %s: %s", e.kind, e.stage, e.message)
	}
	return fmt.Sprintf("%s at %s: %v", e.kind, e.stage, e.cause)
}

// DefaultMessage returns the taxonomy's user-facing message for kind.
func DefaultMessage(kind Kind) string {
	if e, ok := taxonomy[kind]; ok {
		return e.message
	}
	return taxonomy[KindUnknown].message
}
