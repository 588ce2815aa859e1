package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMGraderGrade(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Verdict
	}{
		{"plain relevant", "relevant", VerdictRelevant},
		{"plain not relevant", "not_relevant", VerdictNotRelevant},
		{"spaced not relevant", "The passages are not relevant to the question.", VerdictNotRelevant},
		{"relevant with prose", "Grade: relevant, the passages cover the topic.", VerdictRelevant},
		{"uppercase", "NOT_RELEVANT", VerdictNotRelevant},
		{"nonsense defaults to not relevant", "maybe?", VerdictNotRelevant},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			provider := &scriptedLLM{responses: []string{tc.response}}
			grader := NewLLMGrader(provider, testLogger())

			verdict, reasoning, err := grader.Grade(context.Background(), "what is the policy?", somePassages("policy.pdf"))
			require.NoError(t, err)
			assert.Equal(t, tc.want, verdict)
			assert.NotEmpty(t, reasoning)
		})
	}
}

func TestLLMGraderEmptySetNeedsNoModelCall(t *testing.T) {
	provider := &scriptedLLM{responses: []string{"relevant"}}
	grader := NewLLMGrader(provider, testLogger())

	verdict, _, err := grader.Grade(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, VerdictNotRelevant, verdict)
	assert.Empty(t, provider.prompts)
}

func TestLLMGraderProviderError(t *testing.T) {
	provider := &scriptedLLM{err: fmt.Errorf("timeout")}
	grader := NewLLMGrader(provider, testLogger())

	_, _, err := grader.Grade(context.Background(), "anything", somePassages("x.txt"))
	assert.Error(t, err)
}

func TestLLMGraderPromptBoundsPassages(t *testing.T) {
	provider := &scriptedLLM{responses: []string{"relevant"}}
	grader := NewLLMGrader(provider, testLogger())

	var passages []Passage
	for i := 0; i < 10; i++ {
		passages = append(passages, Passage{
			Source:  fmt.Sprintf("doc-%d.txt", i),
			Content: fmt.Sprintf("content number %d", i),
			Score:   0.6,
		})
	}

	_, _, err := grader.Grade(context.Background(), "bounded prompt", passages)
	require.NoError(t, err)

	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "content number 0")
	assert.Contains(t, provider.prompts[0], "content number 2")
	assert.NotContains(t, provider.prompts[0], "content number 3")
}
