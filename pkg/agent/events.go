package agent

import "time"

// EventType discriminates the events emitted during one invocation
type EventType string

const (
	EventStep      EventType = "step"
	EventMetadata  EventType = "metadata"
	EventToken     EventType = "token"
	EventCitations EventType = "citations"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Metadata summarizes the finalized grounding context. Emitted once,
// after synthesis resolves and before answer tokens stream.
type Metadata struct {
	Intent           Intent  `json:"intent"`
	Confidence       float64 `json:"confidence"`
	Reasoning        string  `json:"reasoning"`
	RetrievalGrade   Verdict `json:"retrieval_grade"`
	WebSearchUsed    bool    `json:"web_search_used"`
	IterationCount   int     `json:"iteration_count"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// Event is one element of the ordered stream a workflow invocation
// produces: step* -> metadata -> token* -> citations -> done|error.
// The transport layer serializes these as-is.
type Event struct {
	Type EventType `json:"type"`

	// EventStep
	Step  string    `json:"step,omitempty"`
	Label string    `json:"label,omitempty"`
	At    time.Time `json:"at,omitzero"`

	// EventMetadata
	Metadata *Metadata `json:"metadata,omitempty"`

	// EventToken
	Token string `json:"content,omitempty"`

	// EventCitations
	Citations []Citation `json:"citations,omitempty"`

	// EventError
	Message string `json:"message,omitempty"`
}

// Result is the aggregated, non-streaming view over the same terminal
// state the event stream describes.
type Result struct {
	Response         string     `json:"response"`
	Intent           Intent     `json:"intent"`
	Confidence       float64    `json:"confidence"`
	Citations        []Citation `json:"citations"`
	Reasoning        string     `json:"reasoning"`
	ProcessingTimeMs float64    `json:"processing_time_ms"`
	RetrievalGrade   Verdict    `json:"retrieval_grade"`
	WebSearchUsed    bool       `json:"web_search_used"`
	IterationCount   int        `json:"iteration_count"`
}
