package core

import (
	"context"
)

// RuleScorer evaluates the heuristic rules for a normalized input
type RuleScorer interface {
	Score(input NormalizedInput) (*RuleEvaluation, error)
}

// Classifier wraps the frozen learned model
type Classifier interface {
	// Predict returns the probability in [0,1] that text is phishing
	Predict(ctx context.Context, text string) (float64, error)
}

// Merger blends a rule evaluation with a classifier probability
type Merger interface {
	Merge(rule *RuleEvaluation, mlProbability float64) *RiskResult
}

// TextPreparer cleans raw text before normalization
type TextPreparer interface {
	ProcessText(text string, maxSize int) string
}

// CacheRepository memoizes final verdicts keyed by content hash
type CacheRepository interface {
	// Get retrieves a cached result, returning ErrCacheMiss when absent
	Get(ctx context.Context, key string) (*RiskResult, error)

	// Set stores a result
	Set(ctx context.Context, key string, result *RiskResult) error

	// Delete removes a cached result
	Delete(ctx context.Context, key string) error

	// Cleanup removes expired entries and enforces the size bound
	Cleanup(ctx context.Context) error
}
