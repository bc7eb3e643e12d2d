package models

import "time"

// UsageSnapshot is a point-in-time view of generation service consumption.
type UsageSnapshot struct {
	TotalUnits    int64   `json:"total_units"`
	TotalRequests int64   `json:"total_requests"`
	AverageUnits  float64 `json:"average_units_per_request"`
}

// UsageRecord tracks token usage of a single generation request.
type UsageRecord struct {
	ID               int64     `json:"id"`
	RunID            string    `json:"run_id"`
	Contract         string    `json:"contract"`
	Function         string    `json:"function"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageSummary aggregates usage across requests for a contract and model.
type UsageSummary struct {
	Contract        string `json:"contract"`
	Model           string `json:"model"`
	RequestCount    int    `json:"request_count"`
	TotalPrompt     int    `json:"total_prompt"`
	TotalCompletion int    `json:"total_completion"`
	TotalTokens     int    `json:"total_tokens"`
}

// RunSummary groups the generation requests of one batch run.
type RunSummary struct {
	ID           string    `json:"id"`
	Contract     string    `json:"contract"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	RequestCount int       `json:"request_count"`
	TotalTokens  int       `json:"total_tokens"`
}
