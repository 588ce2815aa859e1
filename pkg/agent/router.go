package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"knowledge-assistant-be/pkg/llm"
)

// LLMRouter performs pure LLM-based intent classification.
// It must not retrieve or call the grader.
type LLMRouter struct {
	llmProvider llm.LLMProvider
	logger      *log.Logger
}

var _ Router = &LLMRouter{}

// NewLLMRouter creates a new intent router
func NewLLMRouter(llmProvider llm.LLMProvider, logger *log.Logger) *LLMRouter {
	return &LLMRouter{
		llmProvider: llmProvider,
		logger:      logger,
	}
}

// Classify analyzes the user query and returns its intent.
// Ambiguity defaults to knowledge_search: attempting grounding is safer
// than risking an ungrounded answer.
func (r *LLMRouter) Classify(ctx context.Context, query string, history []llm.Message) (*Classification, error) {
	prompt := r.buildPrompt(query, history)

	// Temperature 0 for deterministic classification
	response, err := r.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		return nil, fmt.Errorf("intent classification failed: %w", err)
	}

	classification, err := r.parseClassification(response)
	if err != nil {
		r.logger.Printf("[WARN] Intent parsing failed, defaulting to knowledge search: %v", err)
		return &Classification{
			Intent:     IntentKnowledgeSearch,
			Confidence: 0.5,
			Reasoning:  "Fallback: classifier output unparsable, defaulting to knowledge search",
		}, nil
	}

	r.logger.Printf("[INTENT] Classified: %s (Confidence: %.2f)", classification.Intent, classification.Confidence)
	return classification, nil
}

func (r *LLMRouter) buildPrompt(query string, history []llm.Message) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You are an intent classifier for a document-grounded assistant.\n")
	prompt.WriteString("You do NOT answer questions. You only classify intent.\n")
	prompt.WriteString("</system>\n\n")

	if len(history) > 0 {
		prompt.WriteString("<recent_conversation>\n")
		for _, msg := range tail(history, 4) {
			prompt.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
		}
		prompt.WriteString("</recent_conversation>\n\n")
	}

	prompt.WriteString("<user_query>\n")
	prompt.WriteString(query)
	prompt.WriteString("\n</user_query>\n\n")

	prompt.WriteString("<intent_definitions>\n")
	prompt.WriteString("Choose ONE intent that best matches what the user wants:\n\n")

	prompt.WriteString("knowledge_search: Questions about documents, findings, policies, or anything that might be in the knowledge base.\n")
	prompt.WriteString("  - Examples: 'What is the refund policy?', 'Summarize the key findings', 'Explain the architecture from the paper'\n\n")

	prompt.WriteString("calculation: Math problems, date arithmetic, unit conversions.\n")
	prompt.WriteString("  - Examples: 'What is 25 * 47?', 'How many days until March?'\n\n")

	prompt.WriteString("greeting: Greetings, thanks, small talk.\n")
	prompt.WriteString("  - Examples: 'Hello', 'How are you?', 'Thanks'\n\n")

	prompt.WriteString("conversational: Anything else that needs no document lookup.\n\n")

	prompt.WriteString("Rule: When unsure, choose knowledge_search.\n")
	prompt.WriteString("</intent_definitions>\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"intent\": \"knowledge_search|calculation|greeting|conversational\",\n")
	prompt.WriteString("  \"confidence\": 0.95,\n")
	prompt.WriteString("  \"reasoning\": \"Brief explanation\"\n")
	prompt.WriteString("}\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}

func (r *LLMRouter) parseClassification(response string) (*Classification, error) {
	jsonContent := extractJSON(response)
	if jsonContent == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var classification Classification
	if err := json.Unmarshal([]byte(jsonContent), &classification); err != nil {
		return nil, fmt.Errorf("JSON unmarshal failed: %w", err)
	}

	classification.Intent = Intent(strings.ToLower(strings.TrimSpace(string(classification.Intent))))
	switch classification.Intent {
	case IntentKnowledgeSearch, IntentCalculation, IntentGreeting, IntentConversational:
	default:
		classification.Intent = IntentKnowledgeSearch
		classification.Reasoning = "Unknown intent label; defaulted to knowledge search. " + classification.Reasoning
	}

	if classification.Confidence < 0 || classification.Confidence > 1 {
		classification.Confidence = 0.5
	}

	return &classification, nil
}

func tail(history []llm.Message, n int) []llm.Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
