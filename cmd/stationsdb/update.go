package main

import (
	"fmt"

	"github.com/rubiojr/stationsdb/pkg/api"
	"github.com/urfave/cli/v2"
)

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Replace the stored stations with a fresh copy of the dataset",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Usage:    "Import from a local NDJSON file instead of downloading",
				Required: false,
			},
		},
		Action: updateAction,
	}
}

func updateAction(c *cli.Context) error {
	cfg, storage, _, err := openStorage(c)
	if err != nil {
		return err
	}
	defer storage.Close()

	var (
		dec    *api.Decoder
		source string
	)
	if path := c.String("file"); path != "" {
		dec, err = api.OpenFile(path)
		source = path
	} else {
		feed := api.NewStationFeed(cfg.SourceURL)
		dec, err = feed.Open(c.Context)
		source = feed.URL()
	}
	if err != nil {
		return err
	}
	defer dec.Close()

	count, err := storage.ReplaceStations(c.Context, dec, source)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Imported %d stations from %s\n", count, source)
	return nil
}
