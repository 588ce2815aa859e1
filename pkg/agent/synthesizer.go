package agent

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"knowledge-assistant-be/pkg/llm"
)

const (
	// synthesisMaxPassages bounds the context window given to the model
	synthesisMaxPassages = 5
	// webConfidenceDiscount scales down answers grounded on web results
	webConfidenceDiscount = 0.7
	// citationPreviewLen is how much passage text a citation carries
	citationPreviewLen = 200
)

var sourceRefPattern = regexp.MustCompile(`\[Source (\d+)\]`)

// LLMSynthesizer produces the final answer. It is the only collaborator
// whose failure is fatal to an invocation.
type LLMSynthesizer struct {
	llmProvider llm.LLMProvider
	logger      *log.Logger
}

var _ Synthesizer = &LLMSynthesizer{}

// NewLLMSynthesizer creates a new answer synthesizer
func NewLLMSynthesizer(llmProvider llm.LLMProvider, logger *log.Logger) *LLMSynthesizer {
	return &LLMSynthesizer{
		llmProvider: llmProvider,
		logger:      logger,
	}
}

// Synthesize generates the final answer for the invocation.
//
// Knowledge queries with sufficient passages get a grounded answer with
// citations. Knowledge queries without sufficient passages get an
// explicit decline with zero confidence and no citations. Other intents
// are answered directly from the conversation.
func (s *LLMSynthesizer) Synthesize(ctx context.Context, state *State, sufficient bool, history []llm.Message) (*Answer, error) {
	if state.Intent != IntentKnowledgeSearch {
		return s.synthesizeDirect(ctx, state, history)
	}
	if !sufficient {
		return s.synthesizeDecline(ctx, state)
	}
	return s.synthesizeGrounded(ctx, state)
}

func (s *LLMSynthesizer) synthesizeGrounded(ctx context.Context, state *State) (*Answer, error) {
	passages := state.Passages
	if len(passages) > synthesisMaxPassages {
		passages = passages[:synthesisMaxPassages]
	}

	prompt := s.buildGroundedPrompt(state.OriginalQuery, passages)

	response, err := s.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.2))
	if err != nil {
		return nil, fmt.Errorf("answer synthesis failed: %w", err)
	}

	text := strings.TrimSpace(response)
	if text == "" {
		return nil, fmt.Errorf("answer synthesis produced empty output")
	}

	citations, usedIdx := citationsFromAnswer(text, passages)
	confidence := groundedConfidence(passages, usedIdx, state.UsedWebSearch)

	s.logger.Printf("[SYNTHESIZER] grounded answer, %d citations, confidence %.2f", len(citations), confidence)
	return &Answer{
		Text:       text,
		Citations:  citations,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("Answer grounded on %d of %d retrieved passages.", len(citations), len(state.Passages)),
	}, nil
}

func (s *LLMSynthesizer) synthesizeDecline(_ context.Context, state *State) (*Answer, error) {
	text := "I could not find sufficient information in the knowledge base to answer your question reliably. " +
		"Try rephrasing it, or add documents covering this topic."
	s.logger.Printf("[SYNTHESIZER] declining, no sufficient passages after %d iterations", state.Iterations)
	return &Answer{
		Text:       text,
		Citations:  []Citation{},
		Confidence: 0,
		Reasoning:  "No relevant passages found, declined rather than guessing.",
	}, nil
}

func (s *LLMSynthesizer) synthesizeDirect(ctx context.Context, state *State, history []llm.Message) (*Answer, error) {
	prompt := s.buildDirectPrompt(state.OriginalQuery, state.Intent, history)

	response, err := s.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.5))
	if err != nil {
		return nil, fmt.Errorf("answer synthesis failed: %w", err)
	}

	text := strings.TrimSpace(response)
	if text == "" {
		return nil, fmt.Errorf("answer synthesis produced empty output")
	}

	s.logger.Printf("[SYNTHESIZER] direct answer for intent %s", state.Intent)
	return &Answer{
		Text:       text,
		Citations:  []Citation{},
		Confidence: state.IntentConfidence,
		Reasoning:  fmt.Sprintf("Answered directly, intent %s needs no retrieval.", state.Intent),
	}, nil
}

func (s *LLMSynthesizer) buildGroundedPrompt(query string, passages []Passage) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You answer questions using ONLY the sources below.\n")
	prompt.WriteString("Rules:\n")
	prompt.WriteString("- Base every claim on the sources. Never add outside knowledge.\n")
	prompt.WriteString("- Cite sources inline as [Source N] right after the claim they support.\n")
	prompt.WriteString("- If the sources only cover part of the question, answer that part and say what is missing.\n")
	prompt.WriteString("- Be concise and direct.\n")
	prompt.WriteString("</system>\n\n")

	prompt.WriteString("<sources>\n")
	for i, p := range passages {
		prompt.WriteString(fmt.Sprintf("[Source %d] (%s)\n", i+1, p.Source))
		prompt.WriteString(p.Content)
		prompt.WriteString("\n\n")
	}
	prompt.WriteString("</sources>\n\n")

	prompt.WriteString("<question>\n")
	prompt.WriteString(query)
	prompt.WriteString("\n</question>\n\n")

	prompt.WriteString("Answer:")

	return prompt.String()
}

func (s *LLMSynthesizer) buildDirectPrompt(query string, intent Intent, history []llm.Message) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You are a helpful knowledge assistant.\n")
	switch intent {
	case IntentCalculation:
		prompt.WriteString("The user asked a calculation. Compute it step by step and give the result.\n")
	case IntentGreeting:
		prompt.WriteString("The user greeted you. Respond warmly in one or two sentences and offer to help.\n")
	default:
		prompt.WriteString("The user is making conversation. Respond naturally and briefly.\n")
	}
	prompt.WriteString("</system>\n\n")

	if len(history) > 0 {
		prompt.WriteString("<conversation>\n")
		for _, m := range tail(history, 6) {
			prompt.WriteString(fmt.Sprintf("%s: %s\n", m.Role, m.Content))
		}
		prompt.WriteString("</conversation>\n\n")
	}

	prompt.WriteString("<message>\n")
	prompt.WriteString(query)
	prompt.WriteString("\n</message>\n\n")

	prompt.WriteString("Response:")

	return prompt.String()
}

// citationsFromAnswer builds the citation list from the [Source N]
// references the answer actually made, in first-reference order. When
// the model cited nothing, the top passages are cited as a fallback so
// a grounded answer is never presented without provenance.
func citationsFromAnswer(text string, passages []Passage) ([]Citation, []int) {
	seen := make(map[int]bool)
	var used []int
	for _, m := range sourceRefPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(passages) {
			continue
		}
		idx := n - 1
		if !seen[idx] {
			seen[idx] = true
			used = append(used, idx)
		}
	}

	if len(used) == 0 {
		limit := len(passages)
		if limit > 3 {
			limit = 3
		}
		for i := 0; i < limit; i++ {
			used = append(used, i)
		}
	}

	citations := make([]Citation, 0, len(used))
	for _, idx := range used {
		p := passages[idx]
		citations = append(citations, Citation{
			Source:         p.Source,
			ContentPreview: truncate(p.Content, citationPreviewLen),
			Score:          p.Score,
			ChunkIndex:     p.ChunkIndex,
		})
	}
	return citations, used
}

// groundedConfidence averages the similarity scores of the passages
// the answer relied on. Web-grounded answers are discounted so they
// always score lower than an internally grounded answer with the same
// passage scores.
func groundedConfidence(passages []Passage, usedIdx []int, usedWeb bool) float64 {
	if len(usedIdx) == 0 {
		return 0
	}
	var sum float64
	for _, idx := range usedIdx {
		sum += passages[idx].Score
	}
	confidence := sum / float64(len(usedIdx))
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	if usedWeb {
		confidence *= webConfidenceDiscount
	}
	return confidence
}
