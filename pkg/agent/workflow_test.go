package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-assistant-be/pkg/llm"
)

// --- fakes -----------------------------------------------------------------

type fakeRouter struct {
	classification *Classification
	err            error
	calls          int
}

func (f *fakeRouter) Classify(_ context.Context, _ string, _ []llm.Message) (*Classification, error) {
	f.calls++
	return f.classification, f.err
}

type fakeRetriever struct {
	// results per call, last entry repeats
	results [][]Passage
	err     error
	queries []string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, _ int, _ float64) ([]Passage, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.queries) - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	if idx < 0 {
		return nil, nil
	}
	return f.results[idx], nil
}

type fakeGrader struct {
	verdicts []Verdict
	err      error
	calls    int
}

func (f *fakeGrader) Grade(_ context.Context, _ string, passages []Passage) (Verdict, string, error) {
	f.calls++
	if f.err != nil {
		return VerdictUnset, "", f.err
	}
	idx := f.calls - 1
	if idx >= len(f.verdicts) {
		idx = len(f.verdicts) - 1
	}
	return f.verdicts[idx], fmt.Sprintf("graded %d passages", len(passages)), nil
}

type fakeRewriter struct {
	rewrites []string
	err      error
	calls    int
}

func (f *fakeRewriter) Rewrite(_ context.Context, _, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls - 1
	if idx >= len(f.rewrites) {
		idx = len(f.rewrites) - 1
	}
	return f.rewrites[idx], nil
}

type fakeWebSearcher struct {
	results []Passage
	err     error
	calls   int
}

func (f *fakeWebSearcher) Search(_ context.Context, _ string) ([]Passage, error) {
	f.calls++
	return f.results, f.err
}

type fakeSynthesizer struct {
	err         error
	lastState   *State
	lastSuffice bool
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, st *State, sufficient bool, _ []llm.Message) (*Answer, error) {
	f.lastState = st
	f.lastSuffice = sufficient
	if f.err != nil {
		return nil, f.err
	}
	if st.Intent != IntentKnowledgeSearch {
		return &Answer{Text: "Hello there!", Citations: []Citation{}, Confidence: st.IntentConfidence}, nil
	}
	if !sufficient {
		return &Answer{
			Text:       "I could not find sufficient information to answer that.",
			Citations:  []Citation{},
			Confidence: 0,
		}, nil
	}
	citations := make([]Citation, 0, len(st.Passages))
	for _, p := range st.Passages {
		citations = append(citations, Citation{
			Source:         p.Source,
			ContentPreview: p.Content,
			Score:          p.Score,
			ChunkIndex:     p.ChunkIndex,
		})
	}
	return &Answer{Text: "Grounded answer from passages.", Citations: citations, Confidence: 0.8}, nil
}

type fakeEnricher struct {
	extra []Passage
	err   error
	calls int
}

func (f *fakeEnricher) Enrich(_ context.Context, _ string, passages []Passage) ([]Passage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append(append([]Passage{}, passages...), f.extra...), nil
}

// --- helpers ---------------------------------------------------------------

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func knowledgeRouter() *fakeRouter {
	return &fakeRouter{classification: &Classification{
		Intent:     IntentKnowledgeSearch,
		Confidence: 0.95,
		Reasoning:  "asks about stored knowledge",
	}}
}

func somePassages(source string) []Passage {
	return []Passage{
		{Source: source, Content: "Chunk one content.", Score: 0.82, ChunkIndex: 0},
		{Source: source, Content: "Chunk two content.", Score: 0.74, ChunkIndex: 1},
	}
}

func newTestWorkflow(
	router Router,
	retriever Retriever,
	enricher GraphEnricher,
	grader Grader,
	rewriter Rewriter,
	web WebSearcher,
	synth Synthesizer,
) *Workflow {
	return NewWorkflow(router, retriever, enricher, grader, rewriter, web, synth, testLogger())
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for event stream to close")
		}
	}
}

func stepsOf(events []Event) []string {
	var steps []string
	for _, ev := range events {
		if ev.Type == EventStep {
			steps = append(steps, ev.Step)
		}
	}
	return steps
}

func terminalOf(t *testing.T, events []Event) Event {
	t.Helper()
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

// --- transition table ------------------------------------------------------

func TestNextTransitions(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name    string
		current Stage
		state   State
		want    Stage
	}{
		{"route to retrieve on knowledge search", StageRoute, State{Intent: IntentKnowledgeSearch}, StageRetrieve},
		{"route to synthesize on greeting", StageRoute, State{Intent: IntentGreeting}, StageSynthesize},
		{"route to synthesize on calculation", StageRoute, State{Intent: IntentCalculation}, StageSynthesize},
		{"route to synthesize on conversational", StageRoute, State{Intent: IntentConversational}, StageSynthesize},
		{"retrieve always grades", StageRetrieve, State{}, StageGrade},
		{"grade relevant synthesizes", StageGrade, State{Verdict: VerdictRelevant}, StageSynthesize},
		{"grade not relevant rewrites under budget", StageGrade, State{Verdict: VerdictNotRelevant, Iterations: 2}, StageRewrite},
		{"grade not relevant at budget goes web", StageGrade, State{Verdict: VerdictNotRelevant, Iterations: 3}, StageWebSearch},
		{"grade after web never loops", StageGrade, State{Verdict: VerdictNotRelevant, UsedWebSearch: true}, StageSynthesize},
		{"rewrite retries retrieval", StageRewrite, State{}, StageRetrieve},
		{"rewrite stall escalates to web", StageRewrite, State{RewriterStall: true}, StageWebSearch},
		{"web search grades its results", StageWebSearch, State{}, StageGrade},
		{"synthesize ends", StageSynthesize, State{}, StageEnd},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := tc.state
			assert.Equal(t, tc.want, Next(tc.current, &st, cfg))
		})
	}
}

// --- end-to-end scenarios --------------------------------------------------

func TestRunHappyPath(t *testing.T) {
	retriever := &fakeRetriever{results: [][]Passage{somePassages("notes.pdf")}}
	grader := &fakeGrader{verdicts: []Verdict{VerdictRelevant}}
	rewriter := &fakeRewriter{}
	web := &fakeWebSearcher{}
	synth := &fakeSynthesizer{}

	wf := newTestWorkflow(knowledgeRouter(), retriever, nil, grader, rewriter, web, synth)
	events := collect(t, wf.Run(context.Background(), Input{Query: "what is in my notes?"}, DefaultConfig()))

	assert.Equal(t, []string{"route", "retrieve", "grade", "synthesize"}, stepsOf(events))
	assert.Equal(t, EventDone, terminalOf(t, events).Type)
	assert.Equal(t, 0, rewriter.calls)
	assert.Equal(t, 0, web.calls)
	assert.True(t, synth.lastSuffice)

	// step* -> metadata -> token* -> citations -> done
	var order []EventType
	for _, ev := range events {
		if ev.Type != EventStep {
			order = append(order, ev.Type)
		}
	}
	require.GreaterOrEqual(t, len(order), 3)
	assert.Equal(t, EventMetadata, order[0])
	assert.Equal(t, EventCitations, order[len(order)-2])
	assert.Equal(t, EventDone, order[len(order)-1])
	for _, typ := range order[1 : len(order)-2] {
		assert.Equal(t, EventToken, typ)
	}
}

func TestRunRewriteRecovery(t *testing.T) {
	retriever := &fakeRetriever{results: [][]Passage{
		nil,
		somePassages("handbook.md"),
	}}
	grader := &fakeGrader{verdicts: []Verdict{VerdictRelevant}}
	rewriter := &fakeRewriter{rewrites: []string{"employee handbook vacation policy"}}
	synth := &fakeSynthesizer{}

	wf := newTestWorkflow(knowledgeRouter(), retriever, nil, grader, rewriter, &fakeWebSearcher{}, synth)
	events := collect(t, wf.Run(context.Background(), Input{Query: "how many days off do I get"}, DefaultConfig()))

	assert.Equal(t, []string{"route", "retrieve", "grade", "rewrite", "retrieve", "grade", "synthesize"}, stepsOf(events))
	assert.Equal(t, EventDone, terminalOf(t, events).Type)
	// empty first set short-circuits the grader, so one grade call total
	assert.Equal(t, 1, grader.calls)
	assert.Equal(t, "employee handbook vacation policy", retriever.queries[1])
	assert.Equal(t, 1, synth.lastState.Iterations)
}

func TestRunIterationBoundThenWebSearch(t *testing.T) {
	retriever := &fakeRetriever{results: [][]Passage{somePassages("old.txt")}}
	grader := &fakeGrader{verdicts: []Verdict{
		VerdictNotRelevant, VerdictNotRelevant, VerdictNotRelevant, VerdictNotRelevant,
		VerdictRelevant, // web results pass
	}}
	rewriter := &fakeRewriter{rewrites: []string{"try one", "try two", "try three"}}
	web := &fakeWebSearcher{results: somePassages("https://example.com/doc")}
	synth := &fakeSynthesizer{}

	wf := newTestWorkflow(knowledgeRouter(), retriever, nil, grader, rewriter, web, synth)
	result, err := wf.Invoke(context.Background(), Input{Query: "obscure question"}, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 3, rewriter.calls)
	assert.Equal(t, 1, web.calls)
	assert.True(t, result.WebSearchUsed)
	assert.Equal(t, 3, result.IterationCount)
	assert.Equal(t, VerdictRelevant, result.RetrievalGrade)
	assert.NotEmpty(t, result.Citations)
}

func TestRunWebSearchUsedAtMostOnce(t *testing.T) {
	retriever := &fakeRetriever{results: [][]Passage{somePassages("a.txt")}}
	grader := &fakeGrader{verdicts: []Verdict{VerdictNotRelevant}}
	rewriter := &fakeRewriter{rewrites: []string{"q2", "q3", "q4"}}
	web := &fakeWebSearcher{results: somePassages("https://example.com")}
	synth := &fakeSynthesizer{}

	wf := newTestWorkflow(knowledgeRouter(), retriever, nil, grader, rewriter, web, synth)
	result, err := wf.Invoke(context.Background(), Input{Query: "unanswerable"}, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, web.calls)
	assert.True(t, result.WebSearchUsed)
	// web results failed grading too: decline with zero confidence
	assert.False(t, synth.lastSuffice)
	assert.Equal(t, float64(0), result.Confidence)
	assert.Empty(t, result.Citations)
	assert.Contains(t, result.Response, "could not find sufficient information")
}

func TestRunRewriterStallEscalates(t *testing.T) {
	passages := somePassages("stale.txt")
	retriever := &fakeRetriever{results: [][]Passage{passages}}
	grader := &fakeGrader{verdicts: []Verdict{VerdictNotRelevant, VerdictRelevant}}
	// rewriter repeats the original query verbatim
	rewriter := &fakeRewriter{rewrites: []string{"same question"}}
	web := &fakeWebSearcher{results: somePassages("https://example.com/fresh")}
	synth := &fakeSynthesizer{}

	wf := newTestWorkflow(knowledgeRouter(), retriever, nil, grader, rewriter, web, synth)
	events := collect(t, wf.Run(context.Background(), Input{Query: "same question"}, DefaultConfig()))

	assert.Equal(t, []string{"route", "retrieve", "grade", "rewrite", "web_search", "grade", "synthesize"}, stepsOf(events))
	assert.Equal(t, 1, web.calls)
	assert.Equal(t, EventDone, terminalOf(t, events).Type)
}

func TestRunEmptyRetrievalSkipsGraderCall(t *testing.T) {
	retriever := &fakeRetriever{results: [][]Passage{nil}}
	grader := &fakeGrader{verdicts: []Verdict{VerdictRelevant}}
	rewriter := &fakeRewriter{rewrites: []string{"", "", ""}} // empty rewrites stall immediately
	synth := &fakeSynthesizer{}

	wf := newTestWorkflow(knowledgeRouter(), retriever, nil, grader, rewriter, nil, synth)
	result, err := wf.Invoke(context.Background(), Input{Query: "anything"}, DefaultConfig())
	require.NoError(t, err)

	// both grade passes saw empty sets, neither reached the model
	assert.Equal(t, 0, grader.calls)
	assert.Equal(t, float64(0), result.Confidence)
	assert.True(t, result.WebSearchUsed)
}

func TestRunNonKnowledgeIntentSkipsRetrieval(t *testing.T) {
	router := &fakeRouter{classification: &Classification{Intent: IntentGreeting, Confidence: 0.99}}
	retriever := &fakeRetriever{}
	synth := &fakeSynthesizer{}

	wf := newTestWorkflow(router, retriever, nil, &fakeGrader{}, &fakeRewriter{}, nil, synth)
	events := collect(t, wf.Run(context.Background(), Input{Query: "hello!"}, DefaultConfig()))

	assert.Equal(t, []string{"route", "synthesize"}, stepsOf(events))
	assert.Empty(t, retriever.queries)
	assert.True(t, synth.lastSuffice)
	assert.Equal(t, EventDone, terminalOf(t, events).Type)
}

func TestRunRouterFailureDefaultsToKnowledgeSearch(t *testing.T) {
	router := &fakeRouter{err: fmt.Errorf("model unreachable")}
	retriever := &fakeRetriever{results: [][]Passage{somePassages("kb.md")}}
	grader := &fakeGrader{verdicts: []Verdict{VerdictRelevant}}
	synth := &fakeSynthesizer{}

	wf := newTestWorkflow(router, retriever, nil, grader, &fakeRewriter{}, nil, synth)
	result, err := wf.Invoke(context.Background(), Input{Query: "what do my docs say"}, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, IntentKnowledgeSearch, result.Intent)
	assert.Len(t, retriever.queries, 1)
}

func TestRunRetrieverFailureRecoveredAsEmpty(t *testing.T) {
	retriever := &fakeRetriever{err: fmt.Errorf("database down")}
	grader := &fakeGrader{}
	rewriter := &fakeRewriter{err: fmt.Errorf("also down")}
	synth := &fakeSynthesizer{}

	wf := newTestWorkflow(knowledgeRouter(), retriever, nil, grader, rewriter, nil, synth)
	result, err := wf.Invoke(context.Background(), Input{Query: "resilience check"}, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 0, grader.calls)
	assert.Equal(t, float64(0), result.Confidence)
	assert.Contains(t, result.Response, "could not find sufficient information")
}

func TestRunGraderFailureTreatedAsNotRelevant(t *testing.T) {
	retriever := &fakeRetriever{results: [][]Passage{somePassages("x.txt")}}
	grader := &fakeGrader{err: fmt.Errorf("grader offline")}
	rewriter := &fakeRewriter{rewrites: []string{""}}
	synth := &fakeSynthesizer{}

	wf := newTestWorkflow(knowledgeRouter(), retriever, nil, grader, rewriter, nil, synth)
	result, err := wf.Invoke(context.Background(), Input{Query: "anything"}, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, VerdictNotRelevant, result.RetrievalGrade)
	assert.False(t, synth.lastSuffice)
}

func TestRunSynthesizerFailureIsFatal(t *testing.T) {
	retriever := &fakeRetriever{results: [][]Passage{somePassages("y.txt")}}
	grader := &fakeGrader{verdicts: []Verdict{VerdictRelevant}}
	synth := &fakeSynthesizer{err: fmt.Errorf("model exploded")}

	wf := newTestWorkflow(knowledgeRouter(), retriever, nil, grader, &fakeRewriter{}, nil, synth)
	events := collect(t, wf.Run(context.Background(), Input{Query: "fatal path"}, DefaultConfig()))

	terminal := terminalOf(t, events)
	assert.Equal(t, EventError, terminal.Type)
	assert.Equal(t, "failed to generate a response", terminal.Message)

	_, err := wf.Invoke(context.Background(), Input{Query: "fatal path"}, DefaultConfig())
	assert.Error(t, err)
}

func TestRunMissingWebSearcherDegrades(t *testing.T) {
	retriever := &fakeRetriever{results: [][]Passage{somePassages("z.txt")}}
	grader := &fakeGrader{verdicts: []Verdict{VerdictNotRelevant}}
	rewriter := &fakeRewriter{rewrites: []string{""}}
	synth := &fakeSynthesizer{}

	wf := newTestWorkflow(knowledgeRouter(), retriever, nil, grader, rewriter, nil, synth)
	result, err := wf.Invoke(context.Background(), Input{Query: "no web configured"}, DefaultConfig())
	require.NoError(t, err)

	assert.True(t, result.WebSearchUsed)
	assert.Equal(t, float64(0), result.Confidence)
}

func TestRunGraphEnrichmentAppends(t *testing.T) {
	base := somePassages("doc.pdf")
	enricher := &fakeEnricher{extra: []Passage{
		{Source: "related.pdf", Content: "Graph neighbor chunk.", Score: 0.6, ChunkIndex: 2},
	}}
	retriever := &fakeRetriever{results: [][]Passage{base}}
	grader := &fakeGrader{verdicts: []Verdict{VerdictRelevant}}
	synth := &fakeSynthesizer{}

	wf := newTestWorkflow(knowledgeRouter(), retriever, enricher, grader, &fakeRewriter{}, nil, synth)
	result, err := wf.Invoke(context.Background(), Input{Query: "enriched"}, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, enricher.calls)
	require.Len(t, synth.lastState.Passages, 3)
	// enrichment appends after the originals, never reorders
	assert.Equal(t, "doc.pdf", synth.lastState.Passages[0].Source)
	assert.Equal(t, "related.pdf", synth.lastState.Passages[2].Source)
	assert.Len(t, result.Citations, 3)
}

func TestRunEnricherFailureKeepsBasePassages(t *testing.T) {
	base := somePassages("doc.pdf")
	enricher := &fakeEnricher{err: fmt.Errorf("graph store down")}
	retriever := &fakeRetriever{results: [][]Passage{base}}
	grader := &fakeGrader{verdicts: []Verdict{VerdictRelevant}}
	synth := &fakeSynthesizer{}

	wf := newTestWorkflow(knowledgeRouter(), retriever, enricher, grader, &fakeRewriter{}, nil, synth)
	_, err := wf.Invoke(context.Background(), Input{Query: "enrichment optional"}, DefaultConfig())
	require.NoError(t, err)

	assert.Len(t, synth.lastState.Passages, 2)
}

// --- input and config validation -------------------------------------------

func TestRunRejectsEmptyQuery(t *testing.T) {
	wf := newTestWorkflow(knowledgeRouter(), &fakeRetriever{}, nil, &fakeGrader{}, &fakeRewriter{}, nil, &fakeSynthesizer{})

	for _, query := range []string{"", "   ", "\n\t"} {
		events := collect(t, wf.Run(context.Background(), Input{Query: query}, DefaultConfig()))
		require.Len(t, events, 1)
		assert.Equal(t, EventError, events[0].Type)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	wf := newTestWorkflow(knowledgeRouter(), &fakeRetriever{}, nil, &fakeGrader{}, &fakeRewriter{}, nil, &fakeSynthesizer{})

	cfg := DefaultConfig()
	cfg.MaxIterations = 0
	events := collect(t, wf.Run(context.Background(), Input{Query: "valid query"}, cfg))
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wf := newTestWorkflow(knowledgeRouter(), &fakeRetriever{}, nil, &fakeGrader{}, &fakeRewriter{}, nil, &fakeSynthesizer{})
	events := wf.Run(ctx, Input{Query: "abandoned"}, DefaultConfig())

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return // channel closed without hanging, which is the point
			}
		case <-timeout:
			t.Fatal("event channel never closed after cancellation")
		}
	}
}

// --- stream assembly -------------------------------------------------------

func TestTokenizeReassemblesExactly(t *testing.T) {
	for _, text := range []string{
		"single",
		"two words",
		"a longer answer with several words in it",
		"trailing space ",
		"",
	} {
		assert.Equal(t, text, strings.Join(tokenize(text), ""), "input %q", text)
	}
}

func TestInvokeAggregatesStream(t *testing.T) {
	retriever := &fakeRetriever{results: [][]Passage{somePassages("agg.md")}}
	grader := &fakeGrader{verdicts: []Verdict{VerdictRelevant}}
	synth := &fakeSynthesizer{}

	wf := newTestWorkflow(knowledgeRouter(), retriever, nil, grader, &fakeRewriter{}, nil, synth)
	result, err := wf.Invoke(context.Background(), Input{Query: "aggregate me"}, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "Grounded answer from passages.", result.Response)
	assert.Equal(t, IntentKnowledgeSearch, result.Intent)
	assert.Equal(t, VerdictRelevant, result.RetrievalGrade)
	assert.False(t, result.WebSearchUsed)
	assert.Equal(t, 0, result.IterationCount)
	assert.Len(t, result.Citations, 2)
	assert.GreaterOrEqual(t, result.ProcessingTimeMs, float64(0))
}

func TestRunCitationFidelity(t *testing.T) {
	passages := somePassages("source.pdf")
	retriever := &fakeRetriever{results: [][]Passage{passages}}
	grader := &fakeGrader{verdicts: []Verdict{VerdictRelevant}}
	synth := &fakeSynthesizer{}

	wf := newTestWorkflow(knowledgeRouter(), retriever, nil, grader, &fakeRewriter{}, nil, synth)
	result, err := wf.Invoke(context.Background(), Input{Query: "cite me"}, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, result.Citations, len(passages))
	for i, c := range result.Citations {
		assert.Equal(t, passages[i].Source, c.Source)
		assert.Equal(t, passages[i].Score, c.Score)
		assert.Equal(t, passages[i].ChunkIndex, c.ChunkIndex)
	}
}
