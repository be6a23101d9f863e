package ports

import (
	"context"

	"github.com/mikey/phishguard/internal/core"
)

// Analyzer runs the detection pipeline for one input
type Analyzer interface {
	Analyze(ctx context.Context, input core.AnalysisInput) (*core.RiskResult, error)
}

// Frontend exposes the analyzer to callers (HTTP, SMTP, CLI)
type Frontend interface {
	// Submit analyzes input and never fails: engine errors are degraded to
	// core.FallbackResult and logged.
	Submit(ctx context.Context, input core.AnalysisInput) *core.RiskResult

	// Start starts the frontend
	Start() error

	// Stop stops the frontend
	Stop() error
}
