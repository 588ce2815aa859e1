package dto

import "github.com/google/uuid"

// IngestDocumentMessage is the payload carried on the ingest topic
// between the upload handler and the background consumer.
type IngestDocumentMessage struct {
	DocumentId uuid.UUID `json:"document_id"`
	UserId     uuid.UUID `json:"user_id"`
	Filename   string    `json:"filename"`
	Content    string    `json:"content"`
}
