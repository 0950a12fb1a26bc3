package main

import (
	"fmt"

	"github.com/rubiojr/stationsdb/internal/exporter"
	"github.com/urfave/cli/v2"
)

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:   "export",
		Usage:  "Write the stored stations to " + exporter.DefaultPath + " (default command)",
		Action: exportAction,
	}
}

func exportAction(c *cli.Context) error {
	if c.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q", c.Args().First())
	}

	_, storage, logger, err := openStorage(c)
	if err != nil {
		return err
	}
	defer storage.Close()

	cursor, err := storage.Stations(c.Context)
	if err != nil {
		return err
	}
	defer cursor.Close()

	exp := exporter.New(exporter.DefaultPath, logger)
	if _, err := exp.Run(c.Context, cursor); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Wrote dataset to %s\n", exp.Path())
	return nil
}
