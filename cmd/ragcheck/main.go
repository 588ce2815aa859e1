// ragcheck runs the answering workflow against canned collaborators so
// the state machine can be inspected without a database or a model
// server. Useful when tuning iteration and threshold settings.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"knowledge-assistant-be/pkg/agent"
	"knowledge-assistant-be/pkg/llm"

	"github.com/fatih/color"
)

type cannedRouter struct{}

func (cannedRouter) Classify(ctx context.Context, query string, history []llm.Message) (*agent.Classification, error) {
	q := strings.ToLower(query)
	switch {
	case strings.HasPrefix(q, "hi") || strings.HasPrefix(q, "hello"):
		return &agent.Classification{Intent: agent.IntentGreeting, Confidence: 0.99, Reasoning: "greeting detected"}, nil
	case strings.Contains(q, "+") || strings.Contains(q, "calculate"):
		return &agent.Classification{Intent: agent.IntentCalculation, Confidence: 0.95, Reasoning: "arithmetic detected"}, nil
	default:
		return &agent.Classification{Intent: agent.IntentKnowledgeSearch, Confidence: 0.9, Reasoning: "knowledge query"}, nil
	}
}

type cannedRetriever struct {
	// hitOn makes retrieval succeed only once the query contains this
	// substring, so the rewrite loop is observable
	hitOn string
}

func (r cannedRetriever) Retrieve(ctx context.Context, query string, k int, threshold float64) ([]agent.Passage, error) {
	if r.hitOn != "" && !strings.Contains(strings.ToLower(query), r.hitOn) {
		return nil, nil
	}
	return []agent.Passage{
		{Source: "handbook.md", Content: "The onboarding checklist lives in the engineering handbook under section 3.", Score: 0.83, ChunkIndex: 4},
		{Source: "handbook.md", Content: "New hires get repository access after the security briefing.", Score: 0.71, ChunkIndex: 9},
	}, nil
}

type cannedGrader struct{}

func (cannedGrader) Grade(ctx context.Context, query string, passages []agent.Passage) (agent.Verdict, string, error) {
	if len(passages) == 0 {
		return agent.VerdictNotRelevant, "no passages retrieved", nil
	}
	return agent.VerdictRelevant, "passages cover the query", nil
}

type cannedRewriter struct{ suffix string }

func (r cannedRewriter) Rewrite(ctx context.Context, original, current string) (string, error) {
	return current + " " + r.suffix, nil
}

type cannedWebSearcher struct{}

func (cannedWebSearcher) Search(ctx context.Context, query string) ([]agent.Passage, error) {
	return []agent.Passage{
		{Source: "https://example.com/result", Content: "Web result for: " + query, Score: 0.6, ChunkIndex: 0},
	}, nil
}

type cannedSynthesizer struct{}

func (cannedSynthesizer) Synthesize(ctx context.Context, st *agent.State, sufficient bool, history []llm.Message) (*agent.Answer, error) {
	if st.Intent != agent.IntentKnowledgeSearch {
		return &agent.Answer{Text: "Hello! Ask me about your documents.", Confidence: st.IntentConfidence}, nil
	}
	if !sufficient {
		return &agent.Answer{
			Text:      "I could not find sufficient information to answer this question.",
			Citations: []agent.Citation{},
		}, nil
	}
	citations := make([]agent.Citation, 0, len(st.Passages))
	total := 0.0
	for _, p := range st.Passages {
		citations = append(citations, agent.Citation{Source: p.Source, ContentPreview: p.Content, Score: p.Score, ChunkIndex: p.ChunkIndex})
		total += p.Score
	}
	return &agent.Answer{
		Text:       fmt.Sprintf("Grounded answer built from %d passages [Source 1].", len(st.Passages)),
		Citations:  citations,
		Confidence: total / float64(len(st.Passages)),
	}, nil
}

func main() {
	query := flag.String("q", "Where is the onboarding checklist?", "query to run")
	hitOn := flag.String("hit-on", "", "retrieval only succeeds once the query contains this substring (empty = always hit)")
	maxIter := flag.Int("max-iter", 3, "rewrite loop bound")
	flag.Parse()

	logger := log.New(os.Stderr, "[RAGCHECK] ", log.LstdFlags)

	workflow := agent.NewWorkflow(
		cannedRouter{},
		cannedRetriever{hitOn: strings.ToLower(*hitOn)},
		nil,
		cannedGrader{},
		cannedRewriter{suffix: "(rephrased)"},
		cannedWebSearcher{},
		cannedSynthesizer{},
		logger,
	)

	cfg := agent.DefaultConfig()
	cfg.MaxIterations = *maxIter

	color.Cyan("ragcheck: %q (max_iterations=%d)", *query, cfg.MaxIterations)

	input := agent.Input{Query: *query, SessionID: "ragcheck", UserID: "ragcheck"}
	for ev := range workflow.Run(context.Background(), input, cfg) {
		switch ev.Type {
		case agent.EventStep:
			color.Yellow("step      %-12s %s", ev.Step, ev.Label)
		case agent.EventMetadata:
			color.Magenta("metadata  intent=%s confidence=%.2f grade=%s web=%v iterations=%d (%.1fms)",
				ev.Metadata.Intent, ev.Metadata.Confidence, ev.Metadata.RetrievalGrade,
				ev.Metadata.WebSearchUsed, ev.Metadata.IterationCount, ev.Metadata.ProcessingTimeMs)
		case agent.EventToken:
			fmt.Print(ev.Token)
		case agent.EventCitations:
			fmt.Println()
			for i, c := range ev.Citations {
				color.Green("citation  [%d] %s (score %.2f, chunk %d)", i+1, c.Source, c.Score, c.ChunkIndex)
			}
		case agent.EventDone:
			color.Cyan("done")
		case agent.EventError:
			color.Red("error     %s", ev.Message)
			os.Exit(1)
		}
	}
}
