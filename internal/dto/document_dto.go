package dto

import (
	"time"

	"github.com/google/uuid"
)

type UploadDocumentResponse struct {
	Id       uuid.UUID `json:"id"`
	Filename string    `json:"filename"`
	Status   string    `json:"status"`
}

type ShowDocumentResponse struct {
	Id         uuid.UUID  `json:"id"`
	Filename   string     `json:"filename"`
	Status     string     `json:"status"`
	ChunkCount int        `json:"chunk_count"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
}

type DeleteDocumentRequest struct {
	Id uuid.UUID `json:"id"`
}
