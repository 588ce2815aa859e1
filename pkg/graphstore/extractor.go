package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"knowledge-assistant-be/pkg/llm"
)

// ExtractedEntity is one concept the extractor found in a text
type ExtractedEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ExtractedRelation is a labeled edge between two extracted entities
type ExtractedRelation struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
}

type extractionResult struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relations"`
}

// LLMExtractor pulls entities and relations out of document text at
// ingest time. Extraction failures are non-fatal to ingestion; the
// chunk is still retrievable by vector search.
type LLMExtractor struct {
	llmProvider llm.LLMProvider
	logger      *log.Logger
}

// NewLLMExtractor creates a new graph extractor
func NewLLMExtractor(llmProvider llm.LLMProvider, logger *log.Logger) *LLMExtractor {
	return &LLMExtractor{
		llmProvider: llmProvider,
		logger:      logger,
	}
}

// Extract identifies up to a handful of entities and the relations
// between them in one chunk of text.
func (e *LLMExtractor) Extract(ctx context.Context, text string) ([]ExtractedEntity, []ExtractedRelation, error) {
	prompt := e.buildPrompt(text)

	response, err := e.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		return nil, nil, fmt.Errorf("graph extraction failed: %w", err)
	}

	result, err := parseExtraction(response)
	if err != nil {
		e.logger.Printf("[GRAPH] Extraction output unparsable, skipping chunk: %v", err)
		return nil, nil, nil
	}

	return result.Entities, result.Relations, nil
}

// EntityNames extracts only the entity names referenced by a query,
// used at answer time to seed the neighborhood walk.
func (e *LLMExtractor) EntityNames(ctx context.Context, query string) ([]string, error) {
	entities, _, err := e.Extract(ctx, query)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entities))
	for _, ent := range entities {
		names = append(names, ent.Name)
	}
	return names, nil
}

func (e *LLMExtractor) buildPrompt(text string) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You extract a small knowledge graph from text.\n")
	prompt.WriteString("Rules:\n")
	prompt.WriteString("- Extract at most 6 entities: people, organizations, products, named concepts.\n")
	prompt.WriteString("- Extract relations only between entities you listed.\n")
	prompt.WriteString("- Skip generic words; only extract things worth looking up later.\n")
	prompt.WriteString("</system>\n\n")

	prompt.WriteString("<text>\n")
	prompt.WriteString(text)
	prompt.WriteString("\n</text>\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"entities\": [{\"name\": \"...\", \"type\": \"person|organization|product|concept\"}],\n")
	prompt.WriteString("  \"relations\": [{\"source\": \"...\", \"target\": \"...\", \"relation\": \"...\"}]\n")
	prompt.WriteString("}\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}

func parseExtraction(response string) (*extractionResult, error) {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")
	if startIdx == -1 || endIdx <= startIdx {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var result extractionResult
	if err := json.Unmarshal([]byte(response[startIdx:endIdx+1]), &result); err != nil {
		return nil, fmt.Errorf("JSON unmarshal failed: %w", err)
	}
	return &result, nil
}
