package hybrid

import (
	"fmt"
	"math"

	"github.com/mikey/phishguard/internal/core"
)

const (
	// RuleWeight is the share of the rule score in the final score
	RuleWeight = 0.6
	// MLWeight is the share of the classifier probability in the final score
	MLWeight = 0.4
	// DefaultMaxRuleReasons bounds the rule explanations carried into a verdict
	DefaultMaxRuleReasons = 6
	// PhishingProbability is the classifier probability at which its label flips to phishing
	PhishingProbability = 0.5
)

// Merger blends rule output with the classifier probability
type Merger struct {
	thresholds     core.Thresholds
	maxRuleReasons int
}

// NewMerger creates a merger with the hybrid status thresholds
func NewMerger(thresholds core.Thresholds, maxRuleReasons int) *Merger {
	if maxRuleReasons <= 0 {
		maxRuleReasons = DefaultMaxRuleReasons
	}
	return &Merger{thresholds: thresholds, maxRuleReasons: maxRuleReasons}
}

// Blend returns clamp(round(rule·0.6 + ml·0.4, 2), 0, 0.99)
func Blend(ruleScore, mlProbability float64) float64 {
	return core.FinalizeScore(ruleScore*RuleWeight + mlProbability*MLWeight)
}

// Merge produces the final verdict. Decisive rule evaluations pass through
// untouched. Reasons are the leading rule reasons followed by the ML label,
// the ML confidence and the blend formula, in that order.
func (m *Merger) Merge(rule *core.RuleEvaluation, mlProbability float64) *core.RiskResult {
	if rule.Decisive {
		return &core.RiskResult{
			Score:   rule.Score,
			Status:  rule.Status,
			Reasons: append([]string(nil), rule.Reasons...),
		}
	}

	p := clampProbability(mlProbability)
	score := Blend(rule.Score, p)

	n := min(len(rule.Reasons), m.maxRuleReasons)
	reasons := make([]string, 0, n+3)
	reasons = append(reasons, rule.Reasons[:n]...)

	label, confidence := "legitimate", 1-p
	if p >= PhishingProbability {
		label, confidence = "phishing", p
	}
	reasons = append(reasons,
		"ML model verdict: "+label,
		fmt.Sprintf("ML model confidence: %.2f%%", confidence*100),
		fmt.Sprintf("Hybrid score = %.0f%% rule-based + %.0f%% ML model", RuleWeight*100, MLWeight*100),
	)

	return &core.RiskResult{
		Score:   score,
		Status:  m.thresholds.Classify(score),
		Reasons: reasons,
		Meta: &core.ResultMeta{
			RuleScore:     rule.Score,
			RuleStatus:    rule.Status,
			MLProbability: math.Round(p*10000) / 10000,
			RuleWeight:    RuleWeight,
			MLWeight:      MLWeight,
		},
	}
}

func clampProbability(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
