package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"thanos-chat/internal/config"
)

const usage = `thanos-chat sends one prompt to several AI models and compares the answers.

Usage:
  thanos-chat <command> [flags]

Commands:
  serve    Start the HTTP server
  ask      Send a prompt to every model and print the answers
  models   List the configured models

Flags:
  -h, --help  Show this help message

Secrets such as OPENROUTER_API_KEY are read from the environment or a .env file.`

// ErrUsage marks errors caused by bad command-line input.
var ErrUsage = errors.New("usage error")

// ExitCode maps an Execute error to a process exit status: 0 for success or an
// interrupted run, 2 for usage errors, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case errors.Is(err, ErrUsage):
		return 2
	default:
		return 1
	}
}

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout)
}

func execute(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return printUsage(stdout)
	}

	if err := loadDotEnv(); err != nil {
		return err
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "ask":
		return ask(ctx, args[1:], stdout)
	case "models":
		return listModels(args[1:], stdout)
	case "help", "-h", "--help":
		return printUsage(stdout)
	default:
		return fmt.Errorf("%w: unknown command %q\n\n%s", ErrUsage, args[0], usage)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, strings.TrimSpace(usage))
	return nil
}

// loadDotEnv reads .env from the working directory when present. Variables already
// set in the environment win.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// loadConfig resolves configuration and installs the process-wide logger it describes.
func loadConfig(path, levelOverride string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	if levelOverride != "" {
		cfg.Log.Level = levelOverride
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return config.Config{}, nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
