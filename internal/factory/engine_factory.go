package factory

import (
	"fmt"

	"github.com/mikey/phishguard/internal/config"
	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/features"
	"github.com/mikey/phishguard/internal/hybrid"
	"github.com/mikey/phishguard/internal/rules"
	"github.com/mikey/phishguard/internal/whitelist"
	"go.uber.org/zap"
)

// EngineFactory creates the rule scorer and the hybrid merger
type EngineFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewEngineFactory creates a new engine factory
func NewEngineFactory(cfg *config.Config, logger *zap.Logger) *EngineFactory {
	return &EngineFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateRuleScorer creates the rule scorer over the configured brands and whitelist
func (f *EngineFactory) CreateRuleScorer() (core.RuleScorer, error) {
	scoring, err := f.cfg.GetScoring()
	if err != nil {
		return nil, fmt.Errorf("invalid scoring configuration: %w", err)
	}
	brands, err := f.cfg.GetBrands()
	if err != nil {
		return nil, err
	}

	f.logger.Info("Loaded trusted brands", zap.Int("count", len(brands)))
	if len(scoring.WhitelistedDomains) > 0 {
		f.logger.Info("Loaded whitelisted domains", zap.Strings("domains", scoring.WhitelistedDomains))
	}

	return rules.NewScorer(
		features.NewExtractor(brands),
		whitelist.NewBrandChecker(brands, scoring.WhitelistedDomains, f.logger),
		rules.DefaultWeights(),
		scoring.RuleThresholds,
		f.logger,
	), nil
}

// CreateMerger creates the hybrid merger
func (f *EngineFactory) CreateMerger() (core.Merger, error) {
	scoring, err := f.cfg.GetScoring()
	if err != nil {
		return nil, fmt.Errorf("invalid scoring configuration: %w", err)
	}
	return hybrid.NewMerger(scoring.HybridThresholds, scoring.MaxRuleReasons), nil
}

// ServiceOptions returns the tunables of the detection service
func (f *EngineFactory) ServiceOptions() (core.ServiceOptions, error) {
	scoring, err := f.cfg.GetScoring()
	if err != nil {
		return core.ServiceOptions{}, fmt.Errorf("invalid scoring configuration: %w", err)
	}
	return core.ServiceOptions{
		CacheEnabled: f.cfg.GetBool("cache.enabled"),
		MaxBodySize:  scoring.MaxBodySize,
	}, nil
}
