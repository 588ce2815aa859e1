package agent

// Intent classifies what the user wants from a single query
type Intent string

const (
	IntentKnowledgeSearch Intent = "knowledge_search"
	IntentCalculation     Intent = "calculation"
	IntentGreeting        Intent = "greeting"
	IntentConversational  Intent = "conversational"
)

// Verdict is the grader's binary judgement over a passage set
type Verdict string

const (
	VerdictUnset       Verdict = ""
	VerdictRelevant    Verdict = "relevant"
	VerdictNotRelevant Verdict = "not_relevant"
)

// Passage is one retrieved unit of source text with provenance.
// Immutable once retrieved; owned by the State of a single invocation.
type Passage struct {
	Source     string  `json:"source"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	ChunkIndex int     `json:"chunk_index"`
}

// Citation points back at a passage the synthesizer actually used
type Citation struct {
	Source         string  `json:"source"`
	ContentPreview string  `json:"content_preview"`
	Score          float64 `json:"similarity_score"`
	ChunkIndex     int     `json:"chunk_index"`
}

// Classification is the router's output
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Answer is the synthesizer's output
type Answer struct {
	Text       string
	Citations  []Citation
	Confidence float64
	Reasoning  string
}

// State is the working memory of one workflow invocation.
// It is mutated in place by the driver loop and never shared
// across invocations.
type State struct {
	SessionID string
	UserID    string

	OriginalQuery string
	CurrentQuery  string
	TriedQueries  []string

	Intent           Intent
	IntentConfidence float64

	// Replaced (never appended) on each retrieval or web search
	Passages []Passage

	Verdict        Verdict
	Iterations     int
	UsedWebSearch  bool
	RewriterStall  bool
	CollaboratorOK bool

	Answer     string
	Citations  []Citation
	Confidence float64
	Reasoning  []string
}

// NewState seeds the working state for one invocation
func NewState(query, sessionID, userID string) *State {
	return &State{
		SessionID:      sessionID,
		UserID:         userID,
		OriginalQuery:  query,
		CurrentQuery:   query,
		TriedQueries:   []string{query},
		CollaboratorOK: true,
	}
}

// Tried reports whether a query string was already attempted in this
// invocation. Used to detect a stalled rewriter.
func (s *State) Tried(query string) bool {
	for _, q := range s.TriedQueries {
		if q == query {
			return true
		}
	}
	return false
}

func (s *State) addReasoning(line string) {
	if line == "" {
		return
	}
	s.Reasoning = append(s.Reasoning, line)
}

// ReasoningTrace joins the per-stage reasoning lines into one trace
func (s *State) ReasoningTrace() string {
	trace := ""
	for i, line := range s.Reasoning {
		if i > 0 {
			trace += "\n"
		}
		trace += line
	}
	return trace
}
