package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Create the station database schema",
		Action: migrateAction,
	}
}

func migrateAction(c *cli.Context) error {
	cfg, storage, _, err := openStorage(c)
	if err != nil {
		return err
	}
	if err := storage.Close(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Database %s is ready\n", cfg.DBPath)
	return nil
}
