package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-assistant-be/pkg/llm"
)

func groundedState(passages []Passage) *State {
	st := NewState("what does the handbook say about leave?", "sess-1", "user-1")
	st.Intent = IntentKnowledgeSearch
	st.Passages = passages
	st.Verdict = VerdictRelevant
	return st
}

func TestLLMSynthesizerGroundedAnswer(t *testing.T) {
	provider := &scriptedLLM{responses: []string{
		"Employees get 25 days of annual leave [Source 1]. Unused days expire in March [Source 2].",
	}}
	synth := NewLLMSynthesizer(provider, testLogger())

	passages := []Passage{
		{Source: "handbook.pdf", Content: "Annual leave is 25 days.", Score: 0.9, ChunkIndex: 0},
		{Source: "handbook.pdf", Content: "Carry-over expires end of March.", Score: 0.8, ChunkIndex: 4},
		{Source: "unrelated.pdf", Content: "Parking rules.", Score: 0.55, ChunkIndex: 2},
	}

	answer, err := synth.Synthesize(context.Background(), groundedState(passages), true, nil)
	require.NoError(t, err)

	assert.Contains(t, answer.Text, "25 days")
	require.Len(t, answer.Citations, 2)
	assert.Equal(t, "handbook.pdf", answer.Citations[0].Source)
	assert.Equal(t, 0, answer.Citations[0].ChunkIndex)
	assert.Equal(t, 4, answer.Citations[1].ChunkIndex)
	// mean of the two cited passage scores
	assert.InDelta(t, 0.85, answer.Confidence, 0.001)
}

func TestLLMSynthesizerCitationOrderFollowsFirstReference(t *testing.T) {
	provider := &scriptedLLM{responses: []string{
		"The deadline moved [Source 3], as decided earlier [Source 1]. Again: [Source 3].",
	}}
	synth := NewLLMSynthesizer(provider, testLogger())

	passages := []Passage{
		{Source: "a.txt", Content: "first", Score: 0.7, ChunkIndex: 0},
		{Source: "b.txt", Content: "second", Score: 0.7, ChunkIndex: 1},
		{Source: "c.txt", Content: "third", Score: 0.7, ChunkIndex: 2},
	}

	answer, err := synth.Synthesize(context.Background(), groundedState(passages), true, nil)
	require.NoError(t, err)

	require.Len(t, answer.Citations, 2)
	assert.Equal(t, "c.txt", answer.Citations[0].Source)
	assert.Equal(t, "a.txt", answer.Citations[1].Source)
}

func TestLLMSynthesizerUncitedAnswerFallsBackToTopPassages(t *testing.T) {
	provider := &scriptedLLM{responses: []string{"An answer with no inline references."}}
	synth := NewLLMSynthesizer(provider, testLogger())

	var passages []Passage
	for i := 0; i < 5; i++ {
		passages = append(passages, Passage{Source: fmt.Sprintf("d%d.txt", i), Content: "text", Score: 0.6, ChunkIndex: i})
	}

	answer, err := synth.Synthesize(context.Background(), groundedState(passages), true, nil)
	require.NoError(t, err)

	require.Len(t, answer.Citations, 3)
	assert.Equal(t, "d0.txt", answer.Citations[0].Source)
}

func TestLLMSynthesizerIgnoresOutOfRangeReferences(t *testing.T) {
	provider := &scriptedLLM{responses: []string{"Claim [Source 1]. Hallucinated [Source 9]."}}
	synth := NewLLMSynthesizer(provider, testLogger())

	passages := somePassages("real.pdf")
	answer, err := synth.Synthesize(context.Background(), groundedState(passages), true, nil)
	require.NoError(t, err)

	require.Len(t, answer.Citations, 1)
	assert.Equal(t, 0, answer.Citations[0].ChunkIndex)
}

func TestLLMSynthesizerDecline(t *testing.T) {
	provider := &scriptedLLM{responses: []string{"should never be called"}}
	synth := NewLLMSynthesizer(provider, testLogger())

	st := groundedState(nil)
	st.Verdict = VerdictNotRelevant
	st.Iterations = 3
	st.UsedWebSearch = true

	answer, err := synth.Synthesize(context.Background(), st, false, nil)
	require.NoError(t, err)

	assert.Contains(t, answer.Text, "could not find sufficient information")
	assert.Empty(t, answer.Citations)
	assert.Equal(t, float64(0), answer.Confidence)
	// declining must not spend a model call
	assert.Empty(t, provider.prompts)
}

func TestLLMSynthesizerWebConfidenceDiscounted(t *testing.T) {
	provider := &scriptedLLM{responses: []string{"Web grounded claim [Source 1]."}}
	synth := NewLLMSynthesizer(provider, testLogger())

	st := groundedState([]Passage{
		{Source: "https://example.com", Content: "fresh info", Score: 0.95, ChunkIndex: 0},
	})
	st.UsedWebSearch = true

	answer, err := synth.Synthesize(context.Background(), st, true, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.95*0.7, answer.Confidence, 0.001)
}

func TestGroundedConfidenceWebStrictlyBelowInternal(t *testing.T) {
	// same grounding scores must yield a strictly lower confidence
	// when the passages came from web search
	for _, score := range []float64{0.3, 0.6, 0.95} {
		passages := []Passage{{Source: "s", Content: "c", Score: score, ChunkIndex: 0}}
		internal := groundedConfidence(passages, []int{0}, false)
		web := groundedConfidence(passages, []int{0}, true)
		assert.Less(t, web, internal)
		assert.InDelta(t, score, internal, 0.001)
	}
}

func TestLLMSynthesizerDirectIntents(t *testing.T) {
	for _, intent := range []Intent{IntentGreeting, IntentCalculation, IntentConversational} {
		t.Run(string(intent), func(t *testing.T) {
			provider := &scriptedLLM{responses: []string{"Direct reply."}}
			synth := NewLLMSynthesizer(provider, testLogger())

			st := NewState("hello", "sess-1", "user-1")
			st.Intent = intent
			st.IntentConfidence = 0.97

			answer, err := synth.Synthesize(context.Background(), st, true, []llm.Message{
				{Role: "user", Content: "earlier message"},
			})
			require.NoError(t, err)

			assert.Equal(t, "Direct reply.", answer.Text)
			assert.Empty(t, answer.Citations)
			assert.InDelta(t, 0.97, answer.Confidence, 0.001)
		})
	}
}

func TestLLMSynthesizerProviderErrorPropagates(t *testing.T) {
	provider := &scriptedLLM{err: fmt.Errorf("model down")}
	synth := NewLLMSynthesizer(provider, testLogger())

	_, err := synth.Synthesize(context.Background(), groundedState(somePassages("x.txt")), true, nil)
	assert.Error(t, err)
}

func TestLLMSynthesizerPromptBoundsPassages(t *testing.T) {
	provider := &scriptedLLM{responses: []string{"Answer [Source 1]."}}
	synth := NewLLMSynthesizer(provider, testLogger())

	var passages []Passage
	for i := 0; i < 8; i++ {
		passages = append(passages, Passage{Source: fmt.Sprintf("f%d.txt", i), Content: fmt.Sprintf("chunk %d", i), Score: 0.6, ChunkIndex: i})
	}

	_, err := synth.Synthesize(context.Background(), groundedState(passages), true, nil)
	require.NoError(t, err)

	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "chunk 4")
	assert.NotContains(t, provider.prompts[0], "chunk 5")
}
