package models

import (
	"time"

	"github.com/google/uuid"
)

// QueryLog records one answered prediction request
type QueryLog struct {
	ID              uuid.UUID `json:"id" db:"id"`
	RequestID       string    `json:"request_id" db:"request_id"`
	UserID          *string   `json:"user_id,omitempty" db:"user_id"`
	Query           string    `json:"query" db:"query"`
	Answer          string    `json:"answer" db:"answer"`
	ModelVersion    string    `json:"model_version" db:"model_version"`
	LatencyMs       int       `json:"latency_ms" db:"latency_ms"`
	FailureMode     *string   `json:"failure_mode,omitempty" db:"failure_mode"` // nil when answered
	Confidence      float64   `json:"confidence" db:"confidence"`
	IsRefusal       bool      `json:"is_refusal" db:"is_refusal"`
	IsLowConfidence bool      `json:"is_low_confidence" db:"is_low_confidence"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the QueryLog model
func (QueryLog) TableName() string {
	return "query_logs"
}

// NewQueryLog creates a new QueryLog instance
func NewQueryLog(requestID, query, answer, modelVersion string) *QueryLog {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &QueryLog{
		ID:           uuid.New(),
		RequestID:    requestID,
		Query:        query,
		Answer:       answer,
		ModelVersion: modelVersion,
		CreatedAt:    time.Now().UTC(),
	}
}

// WithUser sets the caller-supplied user id
func (q *QueryLog) WithUser(userID string) *QueryLog {
	if userID != "" {
		q.UserID = &userID
	}
	return q
}

// WithOutcome records the decision. Refusals cover both "refuse" and
// "low_confidence"; "none" and "" mean the question was answered.
func (q *QueryLog) WithOutcome(failureMode string, confidence float64, latencyMs int) *QueryLog {
	q.Confidence = confidence
	q.LatencyMs = latencyMs
	q.FailureMode = nil
	if failureMode != "" && failureMode != "none" {
		q.FailureMode = &failureMode
	}
	q.IsRefusal = failureMode == "refuse" || failureMode == "low_confidence"
	q.IsLowConfidence = failureMode == "low_confidence"
	return q
}
