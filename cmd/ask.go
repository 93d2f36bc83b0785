package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"thanos-chat/internal/aggregator"
	"thanos-chat/internal/catalog"
	"thanos-chat/internal/gateway"
	"thanos-chat/internal/models"
)

const askUsage = `Usage:
  thanos-chat ask [--config <path>] [--timeout <duration>] <prompt...>

Flags:
  --config    string     Path to YAML configuration file (defaults built in)
  --timeout   duration   Give up waiting after this long (default 2m)
  --log-level string     Override log level (debug, info, warn, error)`

func ask(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, askUsage)
	}

	var cfgPath, logLevel string
	var timeout time.Duration
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.DurationVar(&timeout, "timeout", 2*time.Minute, "maximum time to wait for all models")
	fs.StringVar(&logLevel, "log-level", "", "override log level")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: parse ask flags: %v", ErrUsage, err)
	}

	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return fmt.Errorf("%w: ask command requires a prompt", ErrUsage)
	}

	cfg, logger, err := loadConfig(cfgPath, logLevel)
	if err != nil {
		return err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	cat, err := catalog.New(cfg.Models)
	if err != nil {
		return err
	}
	client, err := gateway.NewFromConfig(cfg, cat, logger)
	if err != nil {
		return err
	}
	agg, err := aggregator.New(client, cat.All(), aggregator.WithLogger(logger))
	if err != nil {
		return err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	turn, err := agg.Ask(ctx, prompt)
	if err != nil {
		return fmt.Errorf("waiting for answers: %w", err)
	}

	printTurn(stdout, turn, cat.All())
	return nil
}

func printTurn(w io.Writer, turn aggregator.Turn, descriptors []models.Descriptor) {
	fmt.Fprintf(w, "> %s\n", turn.Prompt)
	for _, d := range descriptors {
		fmt.Fprintf(w, "\n== %s (%s)\n", d.Name, d.ModelID)
		fmt.Fprintln(w, strings.TrimSpace(turn.Responses[d.ID]))
	}
}
