package dto

import (
	"encoding/json"
	"time"

	"food-search-be/pkg/backpressure"
	"food-search-be/pkg/pipeline"
	"food-search-be/pkg/places"
)

// --- Requests ---

type LocationRequest struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// SearchRequest starts a search. An empty query is allowed and yields a greeting.
type SearchRequest struct {
	RequestID string           `json:"requestId" validate:"omitempty,max=64,printascii"`
	SessionID string           `json:"sessionId" validate:"omitempty,max=128"`
	Query     string           `json:"query" validate:"max=500"`
	Location  *LocationRequest `json:"location" validate:"omitempty"`
	Language  string           `json:"language" validate:"omitempty,max=35"`
}

// ReplyRequest answers a clarification question. Either Message or Location must be set.
type ReplyRequest struct {
	SessionID string           `json:"sessionId" validate:"omitempty,max=128"`
	Message   string           `json:"message" validate:"max=500"`
	Location  *LocationRequest `json:"location" validate:"omitempty"`
	Language  string           `json:"language" validate:"omitempty,max=35"`
}

// --- Responses ---

type SearchResponse struct {
	RequestID     string                   `json:"requestId"`
	Status        string                   `json:"status"`
	Outcome       string                   `json:"outcome,omitempty"`
	Language      string                   `json:"language"`
	Message       *pipeline.AssistantEvent `json:"message,omitempty"`
	Results       []places.Candidate       `json:"results"`
	RelaxedFilter string                   `json:"relaxedFilter,omitempty"`
	DurationMs    int64                    `json:"durationMs"`
}

type SearchStateResponse struct {
	RequestID    string                     `json:"requestId"`
	Status       string                     `json:"status"`
	Outcome      string                     `json:"outcome,omitempty"`
	Language     string                     `json:"language,omitempty"`
	Query        string                     `json:"query"`
	Stages       []string                   `json:"stages"`
	StageResults map[string]json.RawMessage `json:"stageResults"`
	Results      []places.Candidate         `json:"results"`
	CreatedAt    time.Time                  `json:"createdAt"`
	UpdatedAt    time.Time                  `json:"updatedAt"`
	ExpiresAt    time.Time                  `json:"expiresAt"`
}

type HealthResponse struct {
	Status      string             `json:"status"`
	Admission   backpressure.Stats `json:"admission"`
	Subscribers int                `json:"subscribers"`
	StateStore  string             `json:"stateStore"`
	Uptime      string             `json:"uptime"`
}
