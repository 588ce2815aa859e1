package graphstore

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-assistant-be/pkg/llm"
)

type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, _ ...llm.Option) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return f.Generate(ctx, history[len(history)-1].Content, options...)
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestLLMExtractorExtract(t *testing.T) {
	provider := &fakeLLM{response: `{
		"entities": [
			{"name": "Acme Corp", "type": "organization"},
			{"name": "Jordan Lee", "type": "person"}
		],
		"relations": [
			{"source": "Jordan Lee", "target": "Acme Corp", "relation": "works_at"}
		]
	}`}
	extractor := NewLLMExtractor(provider, testLogger())

	entities, relations, err := extractor.Extract(context.Background(), "Jordan Lee joined Acme Corp in 2024.")
	require.NoError(t, err)

	require.Len(t, entities, 2)
	assert.Equal(t, "Acme Corp", entities[0].Name)
	assert.Equal(t, "organization", entities[0].Type)
	require.Len(t, relations, 1)
	assert.Equal(t, "works_at", relations[0].Relation)
}

func TestLLMExtractorExtractWrappedJSON(t *testing.T) {
	provider := &fakeLLM{response: "Here you go:\n```json\n{\"entities\": [{\"name\": \"Redis\", \"type\": \"product\"}], \"relations\": []}\n```"}
	extractor := NewLLMExtractor(provider, testLogger())

	entities, _, err := extractor.Extract(context.Background(), "Redis is fast.")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Redis", entities[0].Name)
}

func TestLLMExtractorUnparsableIsNotFatal(t *testing.T) {
	provider := &fakeLLM{response: "I found no entities worth extracting."}
	extractor := NewLLMExtractor(provider, testLogger())

	entities, relations, err := extractor.Extract(context.Background(), "nothing here")
	require.NoError(t, err)
	assert.Nil(t, entities)
	assert.Nil(t, relations)
}

func TestLLMExtractorProviderError(t *testing.T) {
	provider := &fakeLLM{err: fmt.Errorf("model offline")}
	extractor := NewLLMExtractor(provider, testLogger())

	_, _, err := extractor.Extract(context.Background(), "text")
	assert.Error(t, err)
}

func TestLLMExtractorEntityNames(t *testing.T) {
	provider := &fakeLLM{response: `{"entities": [{"name": "Kafka", "type": "product"}, {"name": "Flink", "type": "product"}], "relations": []}`}
	extractor := NewLLMExtractor(provider, testLogger())

	names, err := extractor.EntityNames(context.Background(), "compare Kafka and Flink")
	require.NoError(t, err)
	assert.Equal(t, []string{"Kafka", "Flink"}, names)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "acme corp", normalizeName("  Acme Corp "))
	assert.Equal(t, "", normalizeName("   "))
}
