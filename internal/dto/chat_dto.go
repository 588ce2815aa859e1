package dto

import (
	"time"

	"knowledge-assistant-be/pkg/agent"

	"github.com/google/uuid"
)

type CreateSessionResponse struct {
	Id uuid.UUID `json:"id"`
}

type GetAllSessionsResponse struct {
	Id        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type AskRequest struct {
	ChatSessionId uuid.UUID `json:"chat_session_id"`
	Query         string    `json:"query" validate:"required"`
}

type CitationDTO struct {
	Source         string  `json:"source"`
	ContentPreview string  `json:"content_preview"`
	Score          float64 `json:"similarity_score"`
	ChunkIndex     int     `json:"chunk_index"`
}

type AskResponse struct {
	ChatSessionId    uuid.UUID     `json:"chat_session_id"`
	MessageId        uuid.UUID     `json:"message_id"`
	Response         string        `json:"response"`
	Intent           string        `json:"intent"`
	Confidence       float64       `json:"confidence"`
	Citations        []CitationDTO `json:"citations"`
	Reasoning        string        `json:"reasoning,omitempty"`
	WebSearchUsed    bool          `json:"web_search_used"`
	IterationCount   int           `json:"iteration_count"`
	ProcessingTimeMs float64       `json:"processing_time_ms"`
}

type GetChatHistoryResponse struct {
	Id            uuid.UUID     `json:"id"`
	Role          string        `json:"role"`
	Content       string        `json:"content"`
	Intent        string        `json:"intent,omitempty"`
	Confidence    float64       `json:"confidence,omitempty"`
	WebSearchUsed bool          `json:"web_search_used,omitempty"`
	Citations     []CitationDTO `json:"citations,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

type DeleteSessionRequest struct {
	ChatSessionId uuid.UUID `json:"chat_session_id"`
}

// CitationsFromAgent converts workflow citations to the wire shape
func CitationsFromAgent(citations []agent.Citation) []CitationDTO {
	out := make([]CitationDTO, 0, len(citations))
	for _, c := range citations {
		out = append(out, CitationDTO{
			Source:         c.Source,
			ContentPreview: c.ContentPreview,
			Score:          c.Score,
			ChunkIndex:     c.ChunkIndex,
		})
	}
	return out
}
