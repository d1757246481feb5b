package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"fraudscore/internal/config"
	"fraudscore/internal/scoring"
	"fraudscore/pkg/logging"
)

const (
	appName = "fraudscore"
)

var version = "v0.0.1-default"

var (
	modelPathFlag = &cli.StringFlag{
		Name:  "model-path",
		Usage: "Path to the classifier artifact (default from FRAUD_MODEL_PATH)",
	}

	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level [debug, info, warn, error] (default from LOG_LEVEL)",
	}
)

func main() {
	cmd := newCommand()
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    appName,
		Version: version,
		Usage:   "Fraud probability scoring service",
		Flags: []cli.Flag{
			modelPathFlag,
			logLevelFlag,
		},
		Commands: []*cli.Command{
			serveCmd,
			scoreCmd,
			checkCmd,
		},
	}
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cmd.IsSet(modelPathFlag.Name) {
		cfg.ModelPath = cmd.String(modelPathFlag.Name)
	}
	if cmd.IsSet(logLevelFlag.Name) {
		cfg.LogLevel = cmd.String(logLevelFlag.Name)
	}
	return cfg, nil
}

func setupLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	logger := logging.New(w, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return logger
}

func newEngine(cfg *config.Config, logger *slog.Logger) *scoring.Engine {
	return scoring.New(scoring.Options{
		ModelPath:      cfg.ModelPath,
		ExpectedSHA256: cfg.ModelSHA256,
		Logger:         logger,
	})
}

// buildEngine constructs the process-wide engine exactly once and enforces
// FRAUD_MODEL_REQUIRED.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*scoring.Engine, error) {
	engine := newEngine(cfg, logger)

	if cfg.ModelRequired && engine.State() != scoring.StateLoaded {
		return nil, fmt.Errorf("model required but not loaded: %w", engine.LoadErr())
	}
	return engine, nil
}
