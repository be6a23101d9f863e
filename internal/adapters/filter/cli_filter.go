package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/ports"
	"github.com/mikey/phishguard/internal/utils"
)

const bodyPreviewSize = 500

// CliFilter prints verdicts for inputs given on the command line
type CliFilter struct {
	analyzer ports.Analyzer
	logger   *zap.Logger
	out      io.Writer
	text     *utils.TextProcessor
	verbose  bool
	asJSON   bool
}

// NewCliFilter creates a new CLI filter writing to out
func NewCliFilter(analyzer ports.Analyzer, logger *zap.Logger, out io.Writer, verbose, asJSON bool) *CliFilter {
	return &CliFilter{
		analyzer: analyzer,
		logger:   logger,
		out:      out,
		text:     utils.NewTextProcessor(logger),
		verbose:  verbose,
		asJSON:   asJSON,
	}
}

// Submit analyzes input, degrading failures to the fallback verdict
func (f *CliFilter) Submit(ctx context.Context, input core.AnalysisInput) *core.RiskResult {
	result, _ := submit(ctx, f.analyzer, f.logger, input)
	return result
}

// Process analyzes input and prints the verdict. The returned error is the
// engine error, if any; the printed verdict is then the fallback.
func (f *CliFilter) Process(ctx context.Context, input core.AnalysisInput) (*core.RiskResult, error) {
	startTime := time.Now()
	result, err := submit(ctx, f.analyzer, f.logger, input)
	duration := time.Since(startTime)

	if f.asJSON {
		enc := json.NewEncoder(f.out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil {
			return result, fmt.Errorf("failed to write result: %w", encErr)
		}
		return result, err
	}

	f.printSummary(input)

	fmt.Fprintf(f.out, "=== Results ===\n")
	fmt.Fprintf(f.out, "Status: %s\n", result.Status)
	fmt.Fprintf(f.out, "Risk score: %.2f\n", result.Score)
	fmt.Fprintf(f.out, "Reasons:\n")
	for _, reason := range result.Reasons {
		fmt.Fprintf(f.out, "  - %s\n", reason)
	}
	if f.verbose && result.Meta != nil {
		fmt.Fprintf(f.out, "Rule score: %.2f (%s)\n", result.Meta.RuleScore, result.Meta.RuleStatus)
		fmt.Fprintf(f.out, "ML probability: %.4f\n", result.Meta.MLProbability)
	}
	fmt.Fprintf(f.out, "Processing time: %v\n", duration)

	return result, err
}

func (f *CliFilter) printSummary(input core.AnalysisInput) {
	fmt.Fprintf(f.out, "\n=== %s Summary ===\n", summaryTitle(input.Kind))
	if input.Kind == core.KindURL {
		fmt.Fprintf(f.out, "URL: %s\n", input.URL)
	} else {
		fmt.Fprintf(f.out, "From: %s\n", input.Sender)
		fmt.Fprintf(f.out, "Subject: %s\n", input.Subject)
		fmt.Fprintf(f.out, "Body length: %d bytes\n", len(input.Body))

		if f.verbose {
			preview := f.text.TruncateText(input.Body, bodyPreviewSize)
			if len(preview) < len(input.Body) {
				preview += "..."
			}
			fmt.Fprintf(f.out, "\nBody preview:\n%s\n", preview)
		}
	}
	fmt.Fprintf(f.out, "\n")
}

func summaryTitle(kind core.InputKind) string {
	if kind == core.KindEmail {
		return "Email"
	}
	return "URL"
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
