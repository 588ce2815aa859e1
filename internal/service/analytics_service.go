package service

import (
	"context"

	"knowledge-assistant-be/internal/dto"
	"knowledge-assistant-be/internal/repository/specification"
	"knowledge-assistant-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

type IAnalyticsService interface {
	Stats(ctx context.Context, userId uuid.UUID) (*dto.QueryStatsResponse, error)
	RecentQueries(ctx context.Context, userId uuid.UUID, limit int) ([]*dto.QueryLogResponse, error)
}

type analyticsService struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewAnalyticsService(uowFactory unitofwork.RepositoryFactory) IAnalyticsService {
	return &analyticsService{uowFactory: uowFactory}
}

func (s *analyticsService) Stats(ctx context.Context, userId uuid.UUID) (*dto.QueryStatsResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	stats, err := uow.QueryLogRepository().Stats(ctx, userId)
	if err != nil {
		return nil, err
	}

	byIntent := make(map[string]int64, len(stats.ByIntent))
	for _, ic := range stats.ByIntent {
		byIntent[ic.Intent] = ic.Count
	}

	webSearchRate := 0.0
	if stats.TotalQueries > 0 {
		webSearchRate = float64(stats.WebSearchCount) / float64(stats.TotalQueries)
	}

	return &dto.QueryStatsResponse{
		TotalQueries:  stats.TotalQueries,
		DeclinedCount: stats.DeclinedCount,
		WebSearchRate: webSearchRate,
		AvgConfidence: stats.AvgConfidence,
		AvgLatencyMs:  stats.AvgLatencyMs,
		AvgIterations: stats.AvgIterations,
		ByIntent:      byIntent,
	}, nil
}

func (s *analyticsService) RecentQueries(ctx context.Context, userId uuid.UUID, limit int) ([]*dto.QueryLogResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	logs, err := uow.QueryLogRepository().FindAll(ctx,
		specification.ByUserID{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit},
	)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.QueryLogResponse, 0, len(logs))
	for _, l := range logs {
		responses = append(responses, &dto.QueryLogResponse{
			Id:            l.Id,
			Query:         l.Query,
			Intent:        l.Intent,
			Confidence:    l.Confidence,
			Declined:      l.Declined,
			WebSearchUsed: l.WebSearchUsed,
			Iterations:    l.Iterations,
			LatencyMs:     l.LatencyMs,
			CreatedAt:     l.CreatedAt,
		})
	}
	return responses, nil
}
