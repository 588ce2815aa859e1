package agent

import "fmt"

// Config holds the workflow-level knobs for one invocation.
// It is passed in explicitly so concurrent invocations can run with
// different settings (notably in tests).
type Config struct {
	// MaxIterations bounds the rewrite-and-retry loop
	MaxIterations int

	// RetrievalK is the number of passages requested per retrieval
	RetrievalK int

	// SimilarityThreshold is the minimum similarity a passage must
	// score to be returned by retrieval
	SimilarityThreshold float64

	// GradeEnrichedSeparately keeps graph-enrichment passages out of
	// the graded set. Default false: enrichment is merged before
	// grading.
	GradeEnrichedSeparately bool
}

// DefaultConfig returns the workflow defaults
func DefaultConfig() Config {
	return Config{
		MaxIterations:       3,
		RetrievalK:          5,
		SimilarityThreshold: 0.5,
	}
}

// Validate rejects configurations the state machine cannot honor.
// Called at invocation start, before any node executes.
func (c Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.RetrievalK < 1 {
		return fmt.Errorf("retrieval_k must be >= 1, got %d", c.RetrievalK)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be within [0,1], got %f", c.SimilarityThreshold)
	}
	return nil
}
