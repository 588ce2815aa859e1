package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Document struct {
	Id          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId      uuid.UUID      `gorm:"type:uuid;not null;index"`
	Filename    string         `gorm:"type:varchar(512);not null"`
	ContentType string         `gorm:"type:varchar(128)"`
	SizeBytes   int64          `gorm:"default:0"`
	Status      string         `gorm:"type:varchar(32);not null;default:'pending'"`
	ChunkCount  int            `gorm:"default:0"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"`
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (Document) TableName() string {
	return "documents"
}
