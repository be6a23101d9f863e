package factory

import (
	"fmt"
	"os"

	"github.com/mikey/phishguard/internal/adapters/filter"
	"github.com/mikey/phishguard/internal/config"
	"github.com/mikey/phishguard/internal/ports"
	"go.uber.org/zap"
)

// FilterFactory creates frontends based on configuration
type FilterFactory struct {
	cfg      *config.Config
	logger   *zap.Logger
	analyzer ports.Analyzer
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, analyzer ports.Analyzer) *FilterFactory {
	return &FilterFactory{
		cfg:      cfg,
		logger:   logger,
		analyzer: analyzer,
	}
}

// CreateFrontend creates a frontend based on the configuration
func (f *FilterFactory) CreateFrontend() (ports.Frontend, error) {
	server, err := f.cfg.GetServer()
	if err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	switch server.FilterType {
	case "http":
		return filter.NewHTTPFilter(f.analyzer, f.logger, filter.HTTPOptions{
			ListenAddress:   server.ListenAddress,
			AllowedOrigins:  server.AllowedOrigins,
			ShutdownTimeout: server.ShutdownTimeout,
			RateLimit:       server.RateLimit,
			RateBurst:       server.RateBurst,
		})
	case "postfix":
		return filter.NewPostfixFilter(f.analyzer, f.logger, filter.PostfixOptions{
			ListenAddress:  server.ListenAddress,
			BlockPhishing:  server.BlockPhishing,
			StatusHeader:   server.StatusHeader,
			ScoreHeader:    server.ScoreHeader,
			ReasonHeader:   server.ReasonHeader,
			PostfixAddress: server.PostfixAddress,
			PostfixPort:    server.PostfixPort,
			PostfixEnabled: server.PostfixEnabled,
			SubjectPrefix:  server.SubjectPrefix,
			ModifySubject:  server.ModifySubject,
		}), nil
	case "cli":
		return filter.NewCliFilter(
			f.analyzer,
			f.logger,
			os.Stdout,
			f.cfg.GetBool("cli.verbose"),
			f.cfg.GetBool("cli.json"),
		), nil
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", server.FilterType)
	}
}
