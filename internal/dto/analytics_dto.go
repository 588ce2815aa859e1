package dto

import (
	"time"

	"github.com/google/uuid"
)

type QueryStatsResponse struct {
	TotalQueries  int64            `json:"total_queries"`
	DeclinedCount int64            `json:"declined_count"`
	WebSearchRate float64          `json:"web_search_rate"`
	AvgConfidence float64          `json:"avg_confidence"`
	AvgLatencyMs  float64          `json:"avg_latency_ms"`
	AvgIterations float64          `json:"avg_iterations"`
	ByIntent      map[string]int64 `json:"by_intent"`
}

type QueryLogResponse struct {
	Id            uuid.UUID `json:"id"`
	Query         string    `json:"query"`
	Intent        string    `json:"intent"`
	Confidence    float64   `json:"confidence"`
	Declined      bool      `json:"declined"`
	WebSearchUsed bool      `json:"web_search_used"`
	Iterations    int       `json:"iterations"`
	LatencyMs     float64   `json:"latency_ms"`
	CreatedAt     time.Time `json:"created_at"`
}
