package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// QueryLog is the analytics record of one answering invocation.
// Append-only; never soft-deleted.
type QueryLog struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId         uuid.UUID      `gorm:"type:uuid;index"`
	ChatSessionId  uuid.UUID      `gorm:"type:uuid;index"`
	Query          string         `gorm:"type:text;not null"`
	Intent         string         `gorm:"type:varchar(64);index"`
	Confidence     float64        `gorm:"default:0"`
	RetrievalGrade string         `gorm:"type:varchar(32)"`
	WebSearchUsed  bool           `gorm:"default:false"`
	Iterations     int            `gorm:"default:0"`
	Declined       bool           `gorm:"default:false;index"`
	LatencyMs      float64        `gorm:"default:0"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index"`
}

func (QueryLog) TableName() string {
	return "query_logs"
}
