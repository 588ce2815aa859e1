package contract

import (
	"context"

	"knowledge-assistant-be/internal/entity"
	"knowledge-assistant-be/internal/repository/specification"

	"github.com/google/uuid"
)

// IntentCount is one row of the per-intent aggregate
type IntentCount struct {
	Intent string
	Count  int64
}

// QueryStats aggregates the answering pipeline's behavior over a window
type QueryStats struct {
	TotalQueries   int64
	DeclinedCount  int64
	WebSearchCount int64
	AvgConfidence  float64
	AvgLatencyMs   float64
	AvgIterations  float64
	ByIntent       []IntentCount
}

type QueryLogRepository interface {
	Create(ctx context.Context, log *entity.QueryLog) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.QueryLog, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	// Stats aggregates over the user's logs; zero userId means all users
	Stats(ctx context.Context, userId uuid.UUID) (*QueryStats, error)
}
