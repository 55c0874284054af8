package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/portalsync/internal/shared"
	"github.com/urfave/cli/v3"
)

func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "psync",
		Usage:   "Sync homework and course documents from the course portal",
		Version: "0.3.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Before:   r.Before,
		Commands: r.register(),
	}
}

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp(runner).Run(ctx, os.Args)
	stop()

	if cerr := runner.Close(); cerr != nil {
		logger.Warn("failed to close journal", "err", cerr)
	}

	switch code := exitCode(err); {
	case code == 0:
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
		}
	case code == 3:
		logger.Error("session required", "err", err, "hint", "psync session import --curl-file request.sh")
		os.Exit(code)
	default:
		logger.Error("application error", "err", err)
		os.Exit(code)
	}
}
