package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"fraudscore/internal/api"
	"fraudscore/internal/scoring"
)

var checkCmd = &cli.Command{
	Name:   "check",
	Usage:  "Load the configured model and report whether it is usable",
	Action: cmdCheck,
}

func cmdCheck(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg, os.Stderr)

	engine := newEngine(cfg, logger)

	resp := api.ModelResponse{
		State:     engine.State().String(),
		ModelInfo: engine.ModelInfo(),
	}
	if err := engine.LoadErr(); err != nil {
		resp.LoadError = err.Error()
	}
	if err := encode(cmd.Root().Writer, resp); err != nil {
		return err
	}

	if engine.State() != scoring.StateLoaded {
		return cli.Exit("model not loaded", 1)
	}
	return nil
}
