package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"fraudscore/internal/api"
	"fraudscore/internal/domain"
	"fraudscore/pkg/validator"
)

var scoreCmd = &cli.Command{
	Name:      "score",
	Usage:     "Validate and score one JSON payload without starting the server",
	ArgsUsage: "[file|-]",
	Action:    cmdScore,
}

func cmdScore(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg, os.Stderr)

	body, err := readPayload(cmd.Args().First(), os.Stdin)
	if err != nil {
		return err
	}

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	result, err := scorePayload(engine, body)
	if err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			if encErr := encode(cmd.Root().Writer, api.ValidationErrorResponse{Detail: verr.Errors}); encErr != nil {
				return encErr
			}
			return cli.Exit("payload rejected", 2)
		}
		return fmt.Errorf("scoring failed: %w", err)
	}

	return encode(cmd.Root().Writer, result)
}

type inferer interface {
	Infer(fv domain.FeatureVector) (domain.ScoreResult, error)
}

func scorePayload(engine inferer, body []byte) (domain.ScoreResult, error) {
	fv, err := validator.NewFeatureValidator().ValidateJSON(body)
	if err != nil {
		return domain.ScoreResult{}, err
	}
	return engine.Infer(fv)
}

func readPayload(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return b, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return b, nil
}

func encode(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
