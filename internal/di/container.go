package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/config"
	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/factory"
	"github.com/mikey/phishguard/internal/logging"
	"github.com/mikey/phishguard/internal/ports"
	"github.com/mikey/phishguard/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register cache repository
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.CacheFactory) (core.CacheRepository, error) {
		return f.CreateCacheRepository()
	}); err != nil {
		return nil, err
	}

	if err := provideEngine(container); err != nil {
		return nil, err
	}

	// Register frontend
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.FilterFactory) (ports.Frontend, error) {
		return f.CreateFrontend()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideEngine registers the detection pipeline. It expects the container
// to already provide the config, the logger and a core.CacheRepository.
func provideEngine(container *dig.Container) error {
	// Register factories
	if err := container.Provide(factory.NewClassifierFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewEngineFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register classifier; a missing or corrupt artifact fails the build
	if err := container.Provide(func(f *factory.ClassifierFactory) (core.Classifier, error) {
		return f.CreateClassifier()
	}); err != nil {
		return err
	}

	// Register rule scorer and merger
	if err := container.Provide(func(f *factory.EngineFactory) (core.RuleScorer, error) {
		return f.CreateRuleScorer()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.EngineFactory) (core.Merger, error) {
		return f.CreateMerger()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.EngineFactory) (core.ServiceOptions, error) {
		return f.ServiceOptions()
	}); err != nil {
		return err
	}

	// Register detection service
	if err := container.Provide(func(
		scorer core.RuleScorer,
		classifier core.Classifier,
		merger core.Merger,
		cache core.CacheRepository,
		textProcessor *utils.TextProcessor,
		logger *zap.Logger,
		opts core.ServiceOptions,
	) *core.DetectionService {
		return core.NewDetectionService(scorer, classifier, merger, cache, textProcessor, logger, opts)
	}); err != nil {
		return err
	}

	// Register analyzer
	return container.Provide(func(s *core.DetectionService) ports.Analyzer {
		return s
	})
}
