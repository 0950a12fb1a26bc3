package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the number of stored stations and the last import",
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	cfg, storage, _, err := openStorage(c)
	if err != nil {
		return err
	}
	defer storage.Close()

	count, err := storage.Count(c.Context)
	if err != nil {
		return err
	}
	last, err := storage.LastImport(c.Context)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Database: %s\n", cfg.DBPath)
	fmt.Fprintf(out, "Stations: %d\n", count)
	if last == nil {
		fmt.Fprintln(out, "No imports found in database. Run the update command first.")
		return nil
	}
	fmt.Fprintf(out, "Last import: %s (%d stations from %s)\n",
		last.ImportedAt.Format("2006-01-02 15:04:05"), last.StationCount, last.Source)
	return nil
}
