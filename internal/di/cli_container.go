package di

import (
	"flag"
	"os"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/config"
	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/factory"
	"github.com/mikey/phishguard/internal/logging"
	"github.com/mikey/phishguard/internal/ports"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Input flags
	URL       string
	InputFile string
	Sender    string
	Subject   string
	Body      string

	// Engine flags
	ModelPath   string
	MaxBodySize int

	// Output flags
	Verbose    bool
	JSONLog    bool
	JSONOutput bool
	ConfigFile string
}

// ParseFlags parses the process command line and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags, _ := ParseFlagSet(flag.CommandLine, os.Args[1:])
	return flags
}

// ParseFlagSet registers the CLI flags on fs and parses args
func ParseFlagSet(fs *flag.FlagSet, args []string) (*CLIFlags, error) {
	flags := &CLIFlags{}

	// Input flags
	fs.StringVar(&flags.URL, "url", "", "URL to analyze")
	fs.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if neither -url nor -body is given)")
	fs.StringVar(&flags.Sender, "sender", "", "Email sender address")
	fs.StringVar(&flags.Subject, "subject", "", "Email subject")
	fs.StringVar(&flags.Body, "body", "", "Email body")

	// Engine flags
	fs.StringVar(&flags.ModelPath, "model", "", "Path to the classifier artifact")
	fs.IntVar(&flags.MaxBodySize, "max-body-size", 0, "Maximum email body size to score")

	// Output flags
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging and output")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.BoolVar(&flags.JSONOutput, "json", false, "Print the verdict as JSON")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file (command line flags still override it)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		return createConfigFromFlags(flags, logger)
	}); err != nil {
		return nil, err
	}

	// No cache for the CLI
	if err := container.Provide(func() core.CacheRepository { return nil }); err != nil {
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

// createConfigFromFlags loads the optional config file and layers the
// command line flags on top of it
func createConfigFromFlags(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
	v := config.NewEmptyViper()
	if flags.ConfigFile != "" {
		cfg, err := config.Load(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
		v = cfg.GetViper()
	}

	// Set some cli specific settings
	v.Set("server.filter_type", "cli")
	v.Set("cli.verbose", flags.Verbose)
	v.Set("cli.json", flags.JSONOutput)
	v.Set("cache.enabled", false)

	if flags.ModelPath != "" {
		v.Set("model.path", flags.ModelPath)
	}
	if flags.MaxBodySize > 0 {
		v.Set("scoring.max_body_size", flags.MaxBodySize)
	}

	return config.NewFromViper(v), nil
}
