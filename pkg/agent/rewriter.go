package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"knowledge-assistant-be/pkg/llm"
)

// LLMRewriter reformulates a failed query before the next retrieval pass.
type LLMRewriter struct {
	llmProvider llm.LLMProvider
	logger      *log.Logger
}

var _ Rewriter = &LLMRewriter{}

// NewLLMRewriter creates a new query rewriter
func NewLLMRewriter(llmProvider llm.LLMProvider, logger *log.Logger) *LLMRewriter {
	return &LLMRewriter{
		llmProvider: llmProvider,
		logger:      logger,
	}
}

// Rewrite produces an alternative phrasing of the current query. The
// original query is included so the rewrite stays anchored to the
// user's actual intent rather than drifting across iterations.
func (r *LLMRewriter) Rewrite(ctx context.Context, original, current string) (string, error) {
	prompt := r.buildPrompt(original, current)

	response, err := r.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.3))
	if err != nil {
		return "", fmt.Errorf("query rewrite failed: %w", err)
	}

	rewritten := cleanRewrite(response)
	if rewritten == "" {
		return "", fmt.Errorf("query rewrite produced empty output")
	}

	r.logger.Printf("[REWRITER] %q -> %q", truncate(current, 60), truncate(rewritten, 60))
	return rewritten, nil
}

func (r *LLMRewriter) buildPrompt(original, current string) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You rewrite search queries that failed to retrieve useful documents.\n")
	prompt.WriteString("Rules:\n")
	prompt.WriteString("- Keep the same information need as the original question.\n")
	prompt.WriteString("- Use different keywords, synonyms, or a more specific phrasing.\n")
	prompt.WriteString("- Do NOT answer the question.\n")
	prompt.WriteString("- Respond with ONLY the rewritten query, no explanation, no quotes.\n")
	prompt.WriteString("</system>\n\n")

	prompt.WriteString("<original_question>\n")
	prompt.WriteString(original)
	prompt.WriteString("\n</original_question>\n\n")

	prompt.WriteString("<failed_query>\n")
	prompt.WriteString(current)
	prompt.WriteString("\n</failed_query>\n\n")

	prompt.WriteString("Rewritten query:")

	return prompt.String()
}

// cleanRewrite strips quoting and label prefixes models like to add
// even when told not to.
func cleanRewrite(response string) string {
	s := strings.TrimSpace(response)
	// keep only the first line, rewrites are single queries
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimPrefix(s, "Rewritten query:")
	s = strings.TrimPrefix(s, "Query:")
	s = strings.Trim(s, "\"'` ")
	return strings.TrimSpace(s)
}
