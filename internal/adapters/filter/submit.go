package filter

import (
	"context"

	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/ports"
)

// submit runs the analyzer and degrades any failure to the fallback verdict.
// The original error is logged and also returned for callers that act on it.
func submit(ctx context.Context, analyzer ports.Analyzer, logger *zap.Logger, input core.AnalysisInput) (*core.RiskResult, error) {
	result, err := analyzer.Analyze(ctx, input)
	if err != nil {
		logger.Error("Analysis failed, returning fallback verdict",
			zap.String("kind", input.Kind.String()),
			zap.Error(err))
		return core.FallbackResult(err), err
	}
	return result, nil
}
