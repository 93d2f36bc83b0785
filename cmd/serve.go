package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"thanos-chat/internal/aggregator"
	"thanos-chat/internal/catalog"
	"thanos-chat/internal/gateway"
	"thanos-chat/internal/server"
)

const serveUsage = `Usage:
  thanos-chat serve [--config <path>] [--port <port>] [--log-level <level>]

Flags:
  --config    string   Path to YAML configuration file (defaults built in)
  --port      int      Override server port from configuration
  --log-level string   Override log level (debug, info, warn, error)`

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath, logLevel string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")
	fs.StringVar(&logLevel, "log-level", "", "override log level")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: parse serve flags: %v", ErrUsage, err)
	}

	cfg, logger, err := loadConfig(cfgPath, logLevel)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort < 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
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

	srv, err := server.New(cfg, agg, logger)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
