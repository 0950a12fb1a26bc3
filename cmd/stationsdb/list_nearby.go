package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/rubiojr/stationsdb/pkg/api"
	"github.com/urfave/cli/v2"
)

const (
	defaultRadiusKm = 5.0
	metersPerKm     = 1000.0
)

func listNearbyCommand() *cli.Command {
	return &cli.Command{
		Name:  "list-nearby",
		Usage: "List stored stations near a place",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "location",
				Usage:    "Location to search",
				Required: false,
			},
			&cli.Float64Flag{
				Name:  "lat",
				Usage: "Latitude of the location",
			},
			&cli.Float64Flag{
				Name:  "long",
				Usage: "Longitude of the location",
			},
			&cli.Float64Flag{
				Name:    "radius",
				Aliases: []string{"r"},
				Usage:   "Search radius in kilometers",
				Value:   defaultRadiusKm,
			},
		},
		Action: listNearbyAction,
	}
}

func listNearbyAction(c *cli.Context) error {
	lat := c.Float64("lat")
	lng := c.Float64("long")
	radius := c.Float64("radius")
	loc := c.String("location")

	if loc == "" && lat == 0 && lng == 0 {
		return errors.New("location or latitude and longitude are required")
	}
	if radius <= 0 {
		return fmt.Errorf("invalid radius %g", radius)
	}

	cfg, storage, _, err := openStorage(c)
	if err != nil {
		return err
	}
	defer storage.Close()

	if loc != "" {
		found, err := newGeocoder(cfg.NominatimServer)(loc)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "Location found:", found.Name)
		lat, lng = found.Lat, found.Lng
	}

	nearby, err := storage.NearbyStations(c.Context, lat, lng, radius*metersPerKm)
	if err != nil {
		return fmt.Errorf("error fetching nearby stations: %w", err)
	}

	printNearby(c.App.Writer, nearby, radius)
	return nil
}

func printNearby(w io.Writer, nearby []api.StationWithDistance, radius float64) {
	for i, sd := range nearby {
		station := sd.Station
		fmt.Fprintf(w, "%d. %s (%s)\n", i+1, station.Name.Or("unnamed"), station.ID.Or("no id"))
		if city := station.City(); city.Valid() {
			fmt.Fprintf(w, "   City: %s\n", city)
		}
		fmt.Fprintf(w, "   Distance: %.2f km\n", sd.Distance/metersPerKm)
		if station.Location != nil {
			fmt.Fprintf(w, "   Coordinates: %f, %f\n", station.Location.Latitude, station.Location.Longitude)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Found %d stations within %g km radius\n", len(nearby), radius)
}
