package factory

import (
	"github.com/mikey/phishguard/internal/adapters/model"
	"github.com/mikey/phishguard/internal/config"
	"github.com/mikey/phishguard/internal/core"
	"go.uber.org/zap"
)

// ClassifierFactory creates the statistical classifier
type ClassifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewClassifierFactory creates a new classifier factory
func NewClassifierFactory(cfg *config.Config, logger *zap.Logger) *ClassifierFactory {
	return &ClassifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClassifier loads the configured artifact. A missing or corrupt
// artifact is fatal for the caller.
func (f *ClassifierFactory) CreateClassifier() (core.Classifier, error) {
	return model.NewFactory(f.cfg, f.logger).CreateClassifier()
}
