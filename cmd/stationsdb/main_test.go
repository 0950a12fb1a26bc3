package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubiojr/stationsdb/internal/exporter"
	"github.com/rubiojr/stationsdb/internal/stationsdb"
	"github.com/rubiojr/stationsdb/pkg/api"
)

const testFeed = `{"type":"station","id":"8000105","nr":1866,"name":"Frankfurt (Main) Hbf","address":{"city":"Frankfurt am Main"},"location":{"latitude":50.107145,"longitude":8.663789}}
{"type":"station","id":"8098105","nr":1867,"name":"Frankfurt (Main) \"Süd\"","location":{"latitude":50.099367,"longitude":8.686596}}
{"type":"station","id":"8000068","nr":1077,"name":"Darmstadt Hbf","address":{"city":"Darmstadt"},"location":{"latitude":49.872503,"longitude":8.629636}}
`

const expectedCSV = `type,id,nr,name,city
"station","8000105","1866","Frankfurt (Main) Hbf","Frankfurt am Main"
"station","8098105","1867","Frankfurt (Main) ""Süd""",""
"station","8000068","1077","Darmstadt Hbf","Darmstadt"
`

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.RunContext(context.Background(), append([]string{"stationsdb"}, args...))
	return out.String(), err
}

func setupWorkdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("STATIONS_DB", filepath.Join(dir, "stations.db"))
	t.Setenv("STATIONS_LOG_LEVEL", "error")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stations.ndjson"), []byte(testFeed), 0o644))
	return dir
}

func TestApp_UpdateThenExport(t *testing.T) {
	dir := setupWorkdir(t)

	out, err := runApp(t, "update", "--file", "stations.ndjson")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 stations from stations.ndjson")

	out, err = runApp(t)
	require.NoError(t, err)
	assert.Equal(t, "Wrote dataset to "+exporter.DefaultPath+"\n", out)

	content, err := os.ReadFile(filepath.Join(dir, exporter.DefaultPath))
	require.NoError(t, err)
	assert.Equal(t, expectedCSV, string(content))

	// the explicit subcommand produces the same file
	_, err = runApp(t, "export")
	require.NoError(t, err)
	again, err := os.ReadFile(filepath.Join(dir, exporter.DefaultPath))
	require.NoError(t, err)
	assert.Equal(t, content, again)
}

func TestApp_ExportEmptyDatabase(t *testing.T) {
	dir := setupWorkdir(t)

	_, err := runApp(t)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, exporter.DefaultPath))
	require.NoError(t, err)
	assert.Equal(t, "type,id,nr,name,city\n", string(content))
}

func TestApp_UpdateMissingFile(t *testing.T) {
	setupWorkdir(t)

	_, err := runApp(t, "update", "--file", "missing.ndjson")
	assert.Error(t, err)
}

func TestApp_Status(t *testing.T) {
	setupWorkdir(t)

	out, err := runApp(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Stations: 0")
	assert.Contains(t, out, "No imports found")

	_, err = runApp(t, "update", "--file", "stations.ndjson")
	require.NoError(t, err)

	out, err = runApp(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Stations: 3")
	assert.Contains(t, out, "3 stations from stations.ndjson")
}

func TestApp_ListNearby(t *testing.T) {
	setupWorkdir(t)
	_, err := runApp(t, "update", "--file", "stations.ndjson")
	require.NoError(t, err)

	out, err := runApp(t, "list-nearby", "--lat", "50.107145", "--long", "8.663789", "--radius", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "1. Frankfurt (Main) Hbf (8000105)")
	assert.Contains(t, out, "City: Frankfurt am Main")
	assert.Contains(t, out, "Found 2 stations within 5 km radius")

	_, err = runApp(t, "list-nearby")
	assert.Error(t, err)
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	storage, err := stationsdb.NewStorage(context.Background(), filepath.Join(t.TempDir(), "stations.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	_, err = storage.ReplaceStations(context.Background(), api.NewDecoder(strings.NewReader(testFeed)), "test")
	require.NoError(t, err)

	geocode := func(name string) (*location, error) {
		if name == "Frankfurt" {
			return &location{Name: "Frankfurt am Main, Hessen", Lat: 50.1106, Lng: 8.6820}, nil
		}
		return nil, errors.New("no results found for location: " + name)
	}
	return newHandler(storage, geocode, slog.New(slog.DiscardHandler))
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandler_ExportCSV(t *testing.T) {
	rec := get(t, newTestHandler(t), "/stations.csv")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, expectedCSV, rec.Body.String())
}

func TestHandler_Nearby(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name     string
		target   string
		code     int
		stations int
	}{
		{"coordinates", "/stations/nearby?lat=50.107145&lng=8.663789", http.StatusOK, 2},
		{"wide radius", "/stations/nearby?lat=50.107145&lng=8.663789&radius=50", http.StatusOK, 3},
		{"location", "/stations/nearby?location=Frankfurt&radius=3", http.StatusOK, 2},
		{"no results", "/stations/nearby?lat=0&lng=0", http.StatusOK, 0},
		{"unknown location", "/stations/nearby?location=Atlantis", http.StatusNotFound, 0},
		{"bad latitude", "/stations/nearby?lat=abc&lng=8.6", http.StatusBadRequest, 0},
		{"bad radius", "/stations/nearby?lat=50&lng=8&radius=-1", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.target)
			require.Equal(t, tt.code, rec.Code)
			if tt.code != http.StatusOK {
				var resp errorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Error)
				return
			}

			var resp nearbyResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Len(t, resp.Stations, tt.stations)
			for i := 1; i < len(resp.Stations); i++ {
				assert.LessOrEqual(t, resp.Stations[i-1].Distance, resp.Stations[i].Distance)
			}
		})
	}
}

func TestHandler_Status(t *testing.T) {
	rec := get(t, newTestHandler(t), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Stations)
	assert.Equal(t, "test", resp.Source)
	assert.NotNil(t, resp.LastImport)
}
