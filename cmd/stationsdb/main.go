package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rubiojr/stationsdb/internal/config"
	"github.com/rubiojr/stationsdb/internal/stationsdb"
	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:   "stationsdb",
		Usage:  "Keep a local copy of the station dataset and export it as CSV",
		Action: exportAction,
		Commands: []*cli.Command{
			exportCommand(),
			updateCommand(),
			statusCommand(),
			listNearbyCommand(),
			migrateCommand(),
			serveCommand(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger shared by all commands.
func setup(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, cfg.Logger(c.App.ErrWriter), nil
}

// openStorage is setup plus the station database.
func openStorage(c *cli.Context) (*config.Config, *stationsdb.Storage, *slog.Logger, error) {
	cfg, logger, err := setup(c)
	if err != nil {
		return nil, nil, nil, err
	}
	storage, err := stationsdb.NewStorage(c.Context, cfg.DBPath, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error initializing storage: %w", err)
	}
	return cfg, storage, logger, nil
}
