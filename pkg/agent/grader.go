package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"knowledge-assistant-be/pkg/llm"
)

// gradeTopN bounds how many passages are shown to the grading model
const gradeTopN = 3

// LLMGrader judges whether a passage set can ground an answer.
// The judgement is over the set as a whole, not per passage.
type LLMGrader struct {
	llmProvider llm.LLMProvider
	logger      *log.Logger
}

var _ Grader = &LLMGrader{}

// NewLLMGrader creates a new relevance grader
func NewLLMGrader(llmProvider llm.LLMProvider, logger *log.Logger) *LLMGrader {
	return &LLMGrader{
		llmProvider: llmProvider,
		logger:      logger,
	}
}

// Grade returns exactly relevant or not_relevant; there is no partial
// state downstream. Callers short-circuit the empty set before this.
func (g *LLMGrader) Grade(ctx context.Context, query string, passages []Passage) (Verdict, string, error) {
	if len(passages) == 0 {
		return VerdictNotRelevant, "No passages to grade.", nil
	}

	prompt := g.buildPrompt(query, passages)

	response, err := g.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		return VerdictUnset, "", fmt.Errorf("relevance grading failed: %w", err)
	}

	verdict := parseVerdict(response)
	reasoning := fmt.Sprintf("Grader judged %d passages %s for the query.", len(passages), verdict)

	g.logger.Printf("[GRADER] %s (%d passages)", verdict, len(passages))
	return verdict, reasoning, nil
}

func (g *LLMGrader) buildPrompt(query string, passages []Passage) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You are a grader assessing whether retrieved passages can answer a user question.\n")
	prompt.WriteString("Judge the passages TOGETHER as one set, not individually.\n")
	prompt.WriteString("Rules:\n")
	prompt.WriteString("- If the set contains information that helps answer the question (even partially), answer \"relevant\".\n")
	prompt.WriteString("- If the set is off-topic or useless for the question, answer \"not_relevant\".\n")
	prompt.WriteString("- Be lenient: any useful information means relevant.\n")
	prompt.WriteString("Respond with ONLY one word: relevant or not_relevant\n")
	prompt.WriteString("</system>\n\n")

	prompt.WriteString("<question>\n")
	prompt.WriteString(query)
	prompt.WriteString("\n</question>\n\n")

	prompt.WriteString("<passages>\n")
	for i, p := range passages {
		if i >= gradeTopN {
			break
		}
		prompt.WriteString(fmt.Sprintf("--- Passage %d (source: %s) ---\n", i+1, p.Source))
		prompt.WriteString(p.Content)
		prompt.WriteString("\n")
	}
	prompt.WriteString("</passages>\n\n")

	prompt.WriteString("Grade (relevant/not_relevant):")

	return prompt.String()
}

func parseVerdict(response string) Verdict {
	normalized := strings.ToLower(strings.TrimSpace(response))
	if strings.Contains(normalized, "not_relevant") || strings.Contains(normalized, "not relevant") {
		return VerdictNotRelevant
	}
	if strings.Contains(normalized, "relevant") {
		return VerdictRelevant
	}
	return VerdictNotRelevant
}
