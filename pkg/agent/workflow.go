package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"knowledge-assistant-be/pkg/llm"
)

// Stage identifies a node of the corrective-retrieval state machine
type Stage string

const (
	StageRoute      Stage = "route"
	StageRetrieve   Stage = "retrieve"
	StageGrade      Stage = "grade"
	StageRewrite    Stage = "rewrite"
	StageWebSearch  Stage = "web_search"
	StageSynthesize Stage = "synthesize"
	StageEnd        Stage = "end"
)

var stageLabels = map[Stage]string{
	StageRoute:      "Classifying intent...",
	StageRetrieve:   "Searching knowledge base...",
	StageGrade:      "Evaluating passage relevance...",
	StageRewrite:    "Rephrasing query for another attempt...",
	StageWebSearch:  "Falling back to web search...",
	StageSynthesize: "Generating response...",
}

// Router classifies a query's intent without retrieving anything
type Router interface {
	Classify(ctx context.Context, query string, history []llm.Message) (*Classification, error)
}

// Retriever returns up to k passages scoring at or above threshold.
// An empty result is valid and means nothing relevant was found.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, threshold float64) ([]Passage, error)
}

// GraphEnricher appends passages reachable from entities mentioned in
// the retrieved set. It must never remove or reorder the input.
type GraphEnricher interface {
	Enrich(ctx context.Context, query string, passages []Passage) ([]Passage, error)
}

// Grader judges whether a passage set, taken together, can ground an
// answer to the query.
type Grader interface {
	Grade(ctx context.Context, query string, passages []Passage) (Verdict, string, error)
}

// Rewriter rephrases a query after a failed retrieval round
type Rewriter interface {
	Rewrite(ctx context.Context, original, current string) (string, error)
}

// WebSearcher pulls passages from an external search provider
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]Passage, error)
}

// Synthesizer produces the final grounded answer, or an explicit
// decline when grounding is insufficient.
type Synthesizer interface {
	Synthesize(ctx context.Context, state *State, sufficient bool, history []llm.Message) (*Answer, error)
}

// Input carries one incoming query into the workflow
type Input struct {
	Query     string
	SessionID string
	UserID    string
	History   []llm.Message
}

// Workflow is the corrective-retrieval state machine. Collaborators are
// read-only from its point of view and must be safe for concurrent
// independent invocations.
type Workflow struct {
	router      Router
	retriever   Retriever
	enricher    GraphEnricher // optional
	grader      Grader
	rewriter    Rewriter
	webSearch   WebSearcher // optional
	synthesizer Synthesizer
	logger      *log.Logger
}

// NewWorkflow wires the workflow collaborators. enricher and webSearch
// may be nil; the corresponding stages then degrade gracefully.
func NewWorkflow(
	router Router,
	retriever Retriever,
	enricher GraphEnricher,
	grader Grader,
	rewriter Rewriter,
	webSearch WebSearcher,
	synthesizer Synthesizer,
	logger *log.Logger,
) *Workflow {
	return &Workflow{
		router:      router,
		retriever:   retriever,
		enricher:    enricher,
		grader:      grader,
		rewriter:    rewriter,
		webSearch:   webSearch,
		synthesizer: synthesizer,
		logger:      logger,
	}
}

// Next is the pure transition function of the state machine. Every
// decision the driver loop makes between nodes lives here so each
// transition is independently testable.
func Next(current Stage, st *State, cfg Config) Stage {
	switch current {
	case StageRoute:
		if st.Intent == IntentKnowledgeSearch {
			return StageRetrieve
		}
		return StageSynthesize

	case StageRetrieve:
		return StageGrade

	case StageGrade:
		if st.Verdict == VerdictRelevant {
			return StageSynthesize
		}
		if st.UsedWebSearch {
			// Web results failed grading too: synthesize with an
			// insufficient-grounding marker, never loop again.
			return StageSynthesize
		}
		if st.Iterations < cfg.MaxIterations {
			return StageRewrite
		}
		return StageWebSearch

	case StageRewrite:
		if st.RewriterStall {
			// A rewriter returning an already-tried query would loop
			// forever; escalate straight to the fallback.
			return StageWebSearch
		}
		return StageRetrieve

	case StageWebSearch:
		return StageGrade

	case StageSynthesize:
		return StageEnd
	}
	return StageEnd
}

// Run executes one invocation and returns the ordered event stream.
// The channel is closed after the terminal done/error event. The
// producer stops between stages once ctx is canceled.
func (w *Workflow) Run(ctx context.Context, input Input, cfg Config) <-chan Event {
	events := make(chan Event, 8)

	go func() {
		defer close(events)

		start := time.Now()

		if err := cfg.Validate(); err != nil {
			w.emit(ctx, events, Event{Type: EventError, Message: err.Error()})
			return
		}
		if strings.TrimSpace(input.Query) == "" {
			w.emit(ctx, events, Event{Type: EventError, Message: "query must not be empty"})
			return
		}

		st := NewState(input.Query, input.SessionID, input.UserID)
		stage := StageRoute

		for stage != StageEnd {
			if ctx.Err() != nil {
				w.logger.Printf("[WORKFLOW] Invocation abandoned at stage %s", stage)
				return
			}

			if !w.emit(ctx, events, Event{
				Type:  EventStep,
				Step:  string(stage),
				Label: stageLabels[stage],
				At:    time.Now(),
			}) {
				return
			}

			if stage == StageSynthesize {
				w.runSynthesize(ctx, st, input.History, start, events)
				return
			}

			w.runStage(ctx, stage, st, cfg)
			stage = Next(stage, st, cfg)
		}
	}()

	return events
}

// Invoke runs the workflow to completion and folds the event stream
// into a single aggregated result for non-streaming callers.
func (w *Workflow) Invoke(ctx context.Context, input Input, cfg Config) (*Result, error) {
	var result *Result
	for ev := range w.Run(ctx, input, cfg) {
		switch ev.Type {
		case EventMetadata:
			result = &Result{
				Intent:           ev.Metadata.Intent,
				Confidence:       ev.Metadata.Confidence,
				Reasoning:        ev.Metadata.Reasoning,
				RetrievalGrade:   ev.Metadata.RetrievalGrade,
				WebSearchUsed:    ev.Metadata.WebSearchUsed,
				IterationCount:   ev.Metadata.IterationCount,
				ProcessingTimeMs: ev.Metadata.ProcessingTimeMs,
			}
		case EventToken:
			if result != nil {
				result.Response += ev.Token
			}
		case EventCitations:
			if result != nil {
				result.Citations = ev.Citations
			}
		case EventError:
			return nil, fmt.Errorf("workflow failed: %s", ev.Message)
		}
	}
	if result == nil {
		return nil, fmt.Errorf("workflow produced no terminal state")
	}
	return result, nil
}

func (w *Workflow) runStage(ctx context.Context, stage Stage, st *State, cfg Config) {
	switch stage {
	case StageRoute:
		w.runRoute(ctx, st)
	case StageRetrieve:
		w.runRetrieve(ctx, st, cfg)
	case StageGrade:
		w.runGrade(ctx, st)
	case StageRewrite:
		w.runRewrite(ctx, st)
	case StageWebSearch:
		w.runWebSearch(ctx, st)
	}
}

func (w *Workflow) runRoute(ctx context.Context, st *State) {
	classification, err := w.router.Classify(ctx, st.OriginalQuery, nil)
	if err != nil || classification == nil {
		// Biasing toward retrieval reduces hallucination risk at the
		// cost of latency, so an unreachable router means knowledge
		// search.
		w.logger.Printf("[ROUTE] Classification unavailable, assuming knowledge search: %v", err)
		st.Intent = IntentKnowledgeSearch
		st.IntentConfidence = 0
		st.addReasoning("Router unavailable; defaulted to knowledge search.")
		return
	}

	st.Intent = classification.Intent
	st.IntentConfidence = classification.Confidence
	st.addReasoning(fmt.Sprintf("Intent classified as '%s' (%.2f): %s",
		classification.Intent, classification.Confidence, classification.Reasoning))
	w.logger.Printf("[ROUTE] Intent=%s Confidence=%.2f", st.Intent, st.IntentConfidence)
}

func (w *Workflow) runRetrieve(ctx context.Context, st *State, cfg Config) {
	passages, err := w.retriever.Retrieve(ctx, st.CurrentQuery, cfg.RetrievalK, cfg.SimilarityThreshold)
	if err != nil {
		// An unreachable store is recovered as an empty result; the
		// grader turns that into not_relevant and the machine keeps
		// moving.
		w.logger.Printf("[RETRIEVE] Retrieval failed, continuing with empty set: %v", err)
		st.Passages = nil
		st.addReasoning("Retrieval backend unavailable.")
		return
	}

	if w.enricher != nil && len(passages) > 0 && !cfg.GradeEnrichedSeparately {
		enriched, err := w.enricher.Enrich(ctx, st.CurrentQuery, passages)
		if err != nil {
			w.logger.Printf("[RETRIEVE] Graph enrichment skipped: %v", err)
		} else if len(enriched) >= len(passages) {
			st.addReasoning(fmt.Sprintf("Graph enrichment appended %d related passages.",
				len(enriched)-len(passages)))
			passages = enriched
		}
	}

	st.Passages = passages
	w.logger.Printf("[RETRIEVE] %d passages for query %q", len(passages), truncate(st.CurrentQuery, 60))
}

func (w *Workflow) runGrade(ctx context.Context, st *State) {
	if len(st.Passages) == 0 {
		// An empty set can never be judged relevant; no model call.
		st.Verdict = VerdictNotRelevant
		st.addReasoning("No passages retrieved; graded not relevant without a classification call.")
		w.logger.Printf("[GRADE] Empty passage set, short-circuit not_relevant")
		return
	}

	verdict, reasoning, err := w.grader.Grade(ctx, st.CurrentQuery, st.Passages)
	if err != nil {
		w.logger.Printf("[GRADE] Grader unavailable, treating set as not relevant: %v", err)
		st.Verdict = VerdictNotRelevant
		st.addReasoning("Grader unavailable; passages treated as not relevant.")
		return
	}

	st.Verdict = verdict
	st.addReasoning(reasoning)
	w.logger.Printf("[GRADE] Verdict=%s over %d passages", verdict, len(st.Passages))
}

func (w *Workflow) runRewrite(ctx context.Context, st *State) {
	st.Iterations++

	rewritten, err := w.rewriter.Rewrite(ctx, st.OriginalQuery, st.CurrentQuery)
	rewritten = strings.TrimSpace(rewritten)

	if err != nil || rewritten == "" || st.Tried(rewritten) {
		st.RewriterStall = true
		st.addReasoning("Rewriter stalled on a previously tried query; escalating to web search.")
		w.logger.Printf("[REWRITE] Stalled (iteration %d), escalating to web search", st.Iterations)
		return
	}

	st.CurrentQuery = rewritten
	st.TriedQueries = append(st.TriedQueries, rewritten)
	st.addReasoning(fmt.Sprintf("Query rewritten for retry %d: %q", st.Iterations, truncate(rewritten, 80)))
	w.logger.Printf("[REWRITE] Iteration %d: %q", st.Iterations, truncate(rewritten, 60))
}

func (w *Workflow) runWebSearch(ctx context.Context, st *State) {
	st.UsedWebSearch = true

	if w.webSearch == nil {
		st.Passages = nil
		st.addReasoning("No web search provider configured.")
		return
	}

	passages, err := w.webSearch.Search(ctx, st.CurrentQuery)
	if err != nil {
		w.logger.Printf("[WEB] Search failed, continuing with empty set: %v", err)
		st.Passages = nil
		st.addReasoning("Web search unavailable.")
		return
	}

	// Web results replace, and are graded by the same contract as
	// internal retrieval; they are not trusted unconditionally.
	st.Passages = passages
	st.addReasoning(fmt.Sprintf("Web search returned %d passages.", len(passages)))
	w.logger.Printf("[WEB] %d passages for query %q", len(passages), truncate(st.CurrentQuery, 60))
}

func (w *Workflow) runSynthesize(
	ctx context.Context,
	st *State,
	history []llm.Message,
	start time.Time,
	events chan<- Event,
) {
	sufficient := st.Intent != IntentKnowledgeSearch || st.Verdict == VerdictRelevant

	answer, err := w.synthesizer.Synthesize(ctx, st, sufficient, history)
	if err != nil {
		// The one fatal path: without a synthesized payload there is
		// nothing meaningful to emit besides the error itself.
		w.logger.Printf("[SYNTH] Synthesis failed: %v", err)
		w.emit(ctx, events, Event{Type: EventError, Message: "failed to generate a response"})
		return
	}

	st.Answer = answer.Text
	st.Citations = answer.Citations
	st.Confidence = answer.Confidence
	st.addReasoning(answer.Reasoning)

	meta := &Metadata{
		Intent:           st.Intent,
		Confidence:       st.Confidence,
		Reasoning:        st.ReasoningTrace(),
		RetrievalGrade:   st.Verdict,
		WebSearchUsed:    st.UsedWebSearch,
		IterationCount:   st.Iterations,
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if !w.emit(ctx, events, Event{Type: EventMetadata, Metadata: meta}) {
		return
	}

	for _, token := range tokenize(st.Answer) {
		if !w.emit(ctx, events, Event{Type: EventToken, Token: token}) {
			return
		}
	}

	citations := st.Citations
	if citations == nil {
		citations = []Citation{}
	}
	if !w.emit(ctx, events, Event{Type: EventCitations, Citations: citations}) {
		return
	}

	w.emit(ctx, events, Event{Type: EventDone})
}

// emit delivers one event unless the consumer has gone away
func (w *Workflow) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// tokenize splits answer text into whitespace-preserving chunks that
// reassemble byte-for-byte, in generation order.
func tokenize(text string) []string {
	words := strings.Split(text, " ")
	tokens := make([]string, 0, len(words))
	for i, word := range words {
		if i < len(words)-1 {
			tokens = append(tokens, word+" ")
		} else if word != "" {
			tokens = append(tokens, word)
		}
	}
	return tokens
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
