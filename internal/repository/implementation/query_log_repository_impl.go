package implementation

import (
	"context"

	"knowledge-assistant-be/internal/entity"
	"knowledge-assistant-be/internal/mapper"
	"knowledge-assistant-be/internal/model"
	"knowledge-assistant-be/internal/repository/contract"
	"knowledge-assistant-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QueryLogRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.QueryLogMapper
}

func NewQueryLogRepository(db *gorm.DB) contract.QueryLogRepository {
	return &QueryLogRepositoryImpl{
		db:     db,
		mapper: mapper.NewQueryLogMapper(),
	}
}

func (r *QueryLogRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *QueryLogRepositoryImpl) Create(ctx context.Context, log *entity.QueryLog) error {
	m := r.mapper.ToModel(log)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*log = *r.mapper.ToEntity(m)
	return nil
}

func (r *QueryLogRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.QueryLog, error) {
	var models []*model.QueryLog
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.QueryLog, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}

func (r *QueryLogRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.QueryLog{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *QueryLogRepositoryImpl) Stats(ctx context.Context, userId uuid.UUID) (*contract.QueryStats, error) {
	base := r.db.WithContext(ctx).Model(&model.QueryLog{})
	if userId != uuid.Nil {
		base = base.Where("user_id = ?", userId)
	}

	type aggregate struct {
		Total         int64
		Declined      int64
		WebSearch     int64
		AvgConfidence float64
		AvgLatencyMs  float64
		AvgIterations float64
	}
	var agg aggregate

	err := base.Session(&gorm.Session{}).
		Select(`COUNT(*) as total,
			COUNT(*) FILTER (WHERE declined) as declined,
			COUNT(*) FILTER (WHERE web_search_used) as web_search,
			COALESCE(AVG(confidence), 0) as avg_confidence,
			COALESCE(AVG(latency_ms), 0) as avg_latency_ms,
			COALESCE(AVG(iterations), 0) as avg_iterations`).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	type intentRow struct {
		Intent string
		Count  int64
	}
	var rows []intentRow
	err = base.Session(&gorm.Session{}).
		Select("intent, COUNT(*) as count").
		Group("intent").
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byIntent := make([]contract.IntentCount, len(rows))
	for i, row := range rows {
		byIntent[i] = contract.IntentCount{Intent: row.Intent, Count: row.Count}
	}

	return &contract.QueryStats{
		TotalQueries:   agg.Total,
		DeclinedCount:  agg.Declined,
		WebSearchCount: agg.WebSearch,
		AvgConfidence:  agg.AvgConfidence,
		AvgLatencyMs:   agg.AvgLatencyMs,
		AvgIterations:  agg.AvgIterations,
		ByIntent:       byIntent,
	}, nil
}
