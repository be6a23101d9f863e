package model

import (
	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/config"
	"github.com/mikey/phishguard/internal/core"
)

// Factory creates classifiers from the configured artifact
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new factory for Classifier instances
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClassifier loads the artifact once and wraps it in a Classifier
func (f *Factory) CreateClassifier() (core.Classifier, error) {
	modelCfg := f.cfg.GetModel()

	artifact, err := LoadArtifact(modelCfg.Path)
	if err != nil {
		return nil, err
	}

	classifier, err := NewClassifier(artifact, f.logger)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Loaded classifier artifact",
		zap.String("path", modelCfg.Path),
		zap.String("version", artifact.Version),
		zap.String("analyzer", artifact.Vectorizer.Analyzer),
		zap.Int("vocabulary_size", classifier.VocabularySize()))
	return classifier, nil
}
