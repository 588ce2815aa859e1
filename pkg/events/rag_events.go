package events

import "time"

const (
	TypeQueryAnswered    = "QUERY_ANSWERED"
	TypeQueryDeclined    = "QUERY_DECLINED"
	TypeDocumentIngested = "DOCUMENT_INGESTED"
	TypeDocumentDeleted  = "DOCUMENT_DELETED"
)

// NewQueryAnswered records a completed invocation for the analytics
// consumer. Confidence 0 with an empty citation list marks a decline.
func NewQueryAnswered(sessionID, userID, query, intent string, confidence float64, webSearchUsed bool, iterations int, latencyMs float64) Event {
	eventType := TypeQueryAnswered
	if confidence == 0 {
		eventType = TypeQueryDeclined
	}
	return BaseEvent{
		Type: eventType,
		Data: map[string]interface{}{
			"session_id":      sessionID,
			"user_id":         userID,
			"query":           query,
			"intent":          intent,
			"confidence":      confidence,
			"web_search_used": webSearchUsed,
			"iterations":      iterations,
			"latency_ms":      latencyMs,
		},
		OccurredAt: time.Now(),
	}
}

// NewDocumentIngested signals that a document finished chunking and
// embedding and is now retrievable.
func NewDocumentIngested(documentID, userID, filename string, chunkCount int) Event {
	return BaseEvent{
		Type: TypeDocumentIngested,
		Data: map[string]interface{}{
			"document_id": documentID,
			"user_id":     userID,
			"filename":    filename,
			"chunk_count": chunkCount,
		},
		OccurredAt: time.Now(),
	}
}

// NewDocumentDeleted signals a document and its chunks were removed
func NewDocumentDeleted(documentID, userID string) Event {
	return BaseEvent{
		Type: TypeDocumentDeleted,
		Data: map[string]interface{}{
			"document_id": documentID,
			"user_id":     userID,
		},
		OccurredAt: time.Now(),
	}
}
