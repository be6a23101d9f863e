package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/adapters/filter"
	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/di"
	"github.com/mikey/phishguard/internal/ports"
)

// Exit codes
const (
	exitOK       = 0
	exitFailure  = 1
	exitHighRisk = 2
)

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(exitFailure)
	}

	code := exitFailure
	err = container.Invoke(func(logger *zap.Logger, frontend ports.Frontend) error {
		defer logger.Sync() //nolint:errcheck

		cli, ok := frontend.(*filter.CliFilter)
		if !ok {
			return fmt.Errorf("unexpected frontend %T", frontend)
		}

		input, err := readInput(flags, logger)
		if err != nil {
			return err
		}

		result, err := cli.Process(context.Background(), input)
		if err != nil {
			return err
		}

		code = exitOK
		if result.Status == core.StatusHighRisk {
			code = exitHighRisk
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}
	os.Exit(code)
}

// readInput builds the analysis input from the flags. Without -url or an
// explicit email, a raw RFC 822 message is read from -file or stdin.
func readInput(flags *di.CLIFlags, logger *zap.Logger) (core.AnalysisInput, error) {
	if flags.URL != "" {
		return core.NewURLInput(flags.URL), nil
	}
	if flags.Body != "" || flags.Subject != "" {
		return core.NewEmailInput(flags.Sender, flags.Subject, flags.Body), nil
	}

	var reader io.Reader = os.Stdin
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			return core.AnalysisInput{}, fmt.Errorf("failed to open input file: %w", err)
		}
		defer file.Close()
		reader = file
		logger.Info("Reading email from file", zap.String("file", flags.InputFile))
	} else {
		logger.Info("Reading email from stdin")
	}

	raw, err := io.ReadAll(reader)
	if err != nil {
		return core.AnalysisInput{}, fmt.Errorf("failed to read email: %w", err)
	}

	msg, err := filter.ParseMessage(raw)
	if err != nil {
		return core.AnalysisInput{}, err
	}
	return msg.Input(flags.Sender), nil
}
