// Package exporter writes station records as a CSV dataset.
//
// The output has a fixed header and column set:
//
//	type,id,nr,name,city
//	"station","8000001","1","Aachen Hbf","Aachen"
//
// Every cell is wrapped in double quotes, embedded quotes are doubled and
// rows end with a single newline. Absent fields are written as "". Newlines
// inside a field are written as is, which is still valid inside a quoted
// cell.
package exporter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rubiojr/stationsdb/pkg/api"
)

// DefaultPath is where the dataset is written.
const DefaultPath = "data/stations_dataset.csv"

// Header lists the exported columns in order.
var Header = []string{"type", "id", "nr", "name", "city"}

// Source yields stations one at a time. Next returns io.EOF once exhausted.
type Source interface {
	Next(ctx context.Context) (*api.Station, error)
}

// Row projects a station into the exported columns.
func Row(station *api.Station) []string {
	return []string{
		station.Type.Or(""),
		station.ID.Or(""),
		station.Nr.Or(""),
		station.Name.Or(""),
		station.City().Or(""),
	}
}

// FormatRow renders cells as one quoted CSV line including the terminator.
func FormatRow(cells []string) string {
	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	return b.String()
}

// Write streams the header and one row per station from src to w, in the
// order src yields them. Rows written before an error are flushed to w
// before returning. It returns the number of rows written.
func Write(ctx context.Context, w io.Writer, src Source) (n int, err error) {
	bw := bufio.NewWriter(w)
	defer func() {
		if ferr := bw.Flush(); ferr != nil && err == nil {
			err = fmt.Errorf("error flushing output: %w", ferr)
		}
	}()

	if _, err := bw.WriteString(strings.Join(Header, ",") + "\n"); err != nil {
		return 0, fmt.Errorf("error writing header: %w", err)
	}

	for {
		station, nextErr := src.Next(ctx)
		if errors.Is(nextErr, io.EOF) {
			return n, nil
		}
		if nextErr != nil {
			return n, fmt.Errorf("error reading station %d: %w", n+1, nextErr)
		}
		if _, err := bw.WriteString(FormatRow(Row(station))); err != nil {
			return n, fmt.Errorf("error writing station %d: %w", n+1, err)
		}
		n++
	}
}

// Exporter writes the dataset to a file.
type Exporter struct {
	path string
	log  *slog.Logger
}

// New returns an Exporter writing to path, or to DefaultPath when path is empty.
func New(path string, logger *slog.Logger) *Exporter {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{path: path, log: logger}
}

// Path returns the output file path.
func (e *Exporter) Path() string {
	return e.path
}

// Run truncates the output file and writes every station from src to it.
// The file is flushed and closed on every return path.
func (e *Exporter) Run(ctx context.Context, src Source) (n int, err error) {
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return 0, fmt.Errorf("error creating output directory: %w", err)
	}

	f, err := os.OpenFile(e.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("error opening %s: %w", e.path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("error closing %s: %w", e.path, cerr)
		}
	}()

	e.log.Debug("Exporting stations", "path", e.path)
	n, err = Write(ctx, f, src)
	if err != nil {
		e.log.Error("Export failed", "path", e.path, "rows", n, "error", err)
		return n, err
	}
	e.log.Info("Export completed", "path", e.path, "rows", n)
	return n, nil
}
