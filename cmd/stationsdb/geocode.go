package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/muesli/gominatim"
	"github.com/patrickmn/go-cache"
)

// location is a geocoded place.
type location struct {
	Name string
	Lat  float64
	Lng  float64
}

// geocodeFunc resolves a place name to coordinates.
type geocodeFunc func(name string) (*location, error)

// newGeocoder returns a Nominatim backed geocoder. Results are cached for
// half an hour.
func newGeocoder(server string) geocodeFunc {
	gominatim.SetServer(server)
	c := cache.New(30*time.Minute, 90*time.Minute)

	return func(name string) (*location, error) {
		if cached, ok := c.Get(name); ok {
			return cached.(*location), nil
		}

		query := gominatim.SearchQuery{
			Q: name,
		}
		results, err := query.Get()
		if err != nil {
			return nil, fmt.Errorf("geocoding error: %w", err)
		}
		if len(results) == 0 {
			return nil, fmt.Errorf("no results found for location: %s", name)
		}

		loc, err := gominatimResultToLocation(results[0])
		if err != nil {
			return nil, err
		}
		c.Set(name, loc, cache.DefaultExpiration)
		return loc, nil
	}
}

func gominatimResultToLocation(result gominatim.SearchResult) (*location, error) {
	lat, err := strconv.ParseFloat(result.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing latitude: %w", err)
	}

	lng, err := strconv.ParseFloat(result.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing longitude: %w", err)
	}

	return &location{Name: result.DisplayName, Lat: lat, Lng: lng}, nil
}
