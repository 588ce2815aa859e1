package mapper

import (
	"encoding/json"

	"knowledge-assistant-be/internal/entity"
	"knowledge-assistant-be/internal/model"

	"gorm.io/datatypes"
)

type QueryLogMapper struct{}

func NewQueryLogMapper() *QueryLogMapper {
	return &QueryLogMapper{}
}

func (m *QueryLogMapper) ToEntity(q *model.QueryLog) *entity.QueryLog {
	if q == nil {
		return nil
	}

	var metadata map[string]interface{}
	if len(q.Metadata) > 0 {
		// a corrupt blob loses only the metadata, never the row
		_ = json.Unmarshal(q.Metadata, &metadata)
	}

	return &entity.QueryLog{
		Id:             q.Id,
		UserId:         q.UserId,
		ChatSessionId:  q.ChatSessionId,
		Query:          q.Query,
		Intent:         q.Intent,
		Confidence:     q.Confidence,
		RetrievalGrade: q.RetrievalGrade,
		WebSearchUsed:  q.WebSearchUsed,
		Iterations:     q.Iterations,
		Declined:       q.Declined,
		LatencyMs:      q.LatencyMs,
		Metadata:       metadata,
		CreatedAt:      q.CreatedAt,
	}
}

func (m *QueryLogMapper) ToModel(q *entity.QueryLog) *model.QueryLog {
	if q == nil {
		return nil
	}

	var metadata datatypes.JSON
	if q.Metadata != nil {
		if raw, err := json.Marshal(q.Metadata); err == nil {
			metadata = raw
		}
	}

	return &model.QueryLog{
		Id:             q.Id,
		UserId:         q.UserId,
		ChatSessionId:  q.ChatSessionId,
		Query:          q.Query,
		Intent:         q.Intent,
		Confidence:     q.Confidence,
		RetrievalGrade: q.RetrievalGrade,
		WebSearchUsed:  q.WebSearchUsed,
		Iterations:     q.Iterations,
		Declined:       q.Declined,
		LatencyMs:      q.LatencyMs,
		Metadata:       metadata,
		CreatedAt:      q.CreatedAt,
	}
}
