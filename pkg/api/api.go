// Package api provides types and functions to read the station dataset, a
// newline delimited JSON feed with one station record per line.
package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	DefaultFeedURL = "https://unpkg.com/db-stations/data.ndjson"
	DefaultTimeout = 2 * time.Minute
)

// StationFeed downloads the station dataset over HTTP.
type StationFeed struct {
	url        string
	httpClient *http.Client
}

// NewStationFeed creates a new StationFeed reading from url, or from
// DefaultFeedURL when url is empty.
func NewStationFeed(url string) *StationFeed {
	if url == "" {
		url = DefaultFeedURL
	}
	return &StationFeed{
		url: url,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// URL returns the feed location.
func (f *StationFeed) URL() string {
	return f.url
}

// Open requests the dataset and returns a Decoder streaming the response
// body. The caller must Close the decoder.
func (f *StationFeed) Open(ctx context.Context) (*Decoder, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching data: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	d := NewDecoder(resp.Body)
	d.closer = resp.Body
	return d, nil
}

// OpenFile returns a Decoder reading a local NDJSON file.
func OpenFile(path string) (*Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", path, err)
	}
	d := NewDecoder(f)
	d.closer = f
	return d, nil
}

// Decoder reads station records one line at a time.
type Decoder struct {
	r      *bufio.Reader
	closer io.Closer
	line   int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// NextRaw returns the JSON text of the next record. Blank lines are skipped.
// It returns io.EOF once the input is exhausted.
func (d *Decoder) NextRaw() (json.RawMessage, error) {
	for {
		line, err := d.r.ReadBytes('\n')
		if len(line) > 0 {
			d.line++
			line = bytes.TrimSpace(line)
			if len(line) > 0 {
				if !json.Valid(line) {
					return nil, fmt.Errorf("invalid JSON on line %d", d.line)
				}
				return json.RawMessage(line), nil
			}
		}
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("error reading line %d: %w", d.line+1, err)
		}
	}
}

// Next decodes the next record. It returns io.EOF once the input is exhausted.
func (d *Decoder) Next(ctx context.Context) (*Station, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := d.NextRaw()
	if err != nil {
		return nil, err
	}
	var station Station
	if err := json.Unmarshal(raw, &station); err != nil {
		return nil, fmt.Errorf("error unmarshaling station on line %d: %w", d.line, err)
	}
	return &station, nil
}

// Close releases the underlying reader, if any.
func (d *Decoder) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}
