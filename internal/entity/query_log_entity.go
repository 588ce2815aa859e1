package entity

import (
	"time"

	"github.com/google/uuid"
)

type QueryLog struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId         uuid.UUID `gorm:"type:uuid;index"`
	ChatSessionId  uuid.UUID `gorm:"type:uuid;index"`
	Query          string
	Intent         string
	Confidence     float64
	RetrievalGrade string
	WebSearchUsed  bool
	Iterations     int
	Declined       bool
	LatencyMs      float64
	Metadata       map[string]interface{}
	CreatedAt      time.Time
}
