package stationsdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/patrickmn/go-cache"
	"github.com/rubiojr/stationsdb/pkg/api"
	"github.com/tkrajina/gpxgo/gpx"
)

const (
	defaultCacheExpirationMinutes = 10
	defaultCacheCleanupMinutes    = 30
	defaultCacheSize              = -64 * 1024 // negative value is KiB
	defaultPageSize               = 4096
	countCacheKey                 = "station_count"
)

type Storage struct {
	db    *sql.DB
	cache *cache.Cache
	log   *slog.Logger
}

// RawSource yields raw JSON station records. NextRaw returns io.EOF once exhausted.
type RawSource interface {
	NextRaw() (json.RawMessage, error)
}

// Import describes a completed dataset import.
type Import struct {
	Date         time.Time
	Source       string
	StationCount int
	ImportedAt   time.Time
}

func NewStorage(ctx context.Context, dbPath string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := configureSQLitePragmas(ctx, db, defaultCacheSize); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	c := cache.New(defaultCacheExpirationMinutes*time.Minute, defaultCacheCleanupMinutes*time.Minute)

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Storage{
		db:    db,
		cache: c,
		log:   logger,
	}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS stations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		station_id TEXT,
		name TEXT,
		latitude REAL,
		longitude REAL,
		data BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stations_station_id ON stations(station_id);
	CREATE INDEX IF NOT EXISTS idx_stations_latitude_longitude ON stations(latitude, longitude);

	CREATE TABLE IF NOT EXISTS imports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		source TEXT NOT NULL,
		station_count INTEGER NOT NULL,
		imported_at TEXT NOT NULL
	);
	`

	_, err := db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return fmt.Errorf("error creating table: %w", err)
	}
	return nil
}

func configureSQLitePragmas(ctx context.Context, db *sql.DB, cacheSize int) error {
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 10000;"); err != nil {
		return fmt.Errorf("error setting busy timeout: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("error setting journal mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA temp_store = FILE;"); err != nil {
		return fmt.Errorf("error setting temp store: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL;"); err != nil {
		return fmt.Errorf("error setting synchronous: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA cache_size = %d;", cacheSize)); err != nil {
		return fmt.Errorf("error setting cache size: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA page_size = %d;", defaultPageSize)); err != nil {
		return fmt.Errorf("error setting page size: %w", err)
	}
	return nil
}

func (s *Storage) Close() error {
	if s.cache != nil {
		s.cache.Flush()
	}
	return s.db.Close()
}

// ReplaceStations replaces every stored station with the records from src,
// keeping their order. Nothing is changed unless the whole source is read
// without error.
func (s *Storage) ReplaceStations(ctx context.Context, src RawSource, source string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Error("rollback error", "error", err)
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM stations"); err != nil {
		return 0, fmt.Errorf("error deleting stations: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stations (station_id, name, latitude, longitude, data)
		VALUES (
			json_extract(?1, '$.id'),
			json_extract(?1, '$.name'),
			json_extract(?1, '$.location.latitude'),
			json_extract(?1, '$.location.longitude'),
			?1
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("error preparing statement: %w", err)
	}
	defer stmt.Close()

	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		raw, err := src.NextRaw()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("error reading station %d: %w", count+1, err)
		}
		// bound as text so json_extract does not read it as JSONB
		if _, err := stmt.ExecContext(ctx, string(raw)); err != nil {
			return 0, fmt.Errorf("error inserting station %d: %w", count+1, err)
		}
		count++
		if count%10000 == 0 {
			s.log.Debug("Imported stations", "count", count)
		}
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO imports (date, source, station_count, imported_at) VALUES (?, ?, ?, ?)",
		now.Format("2006-01-02"), source, count, now.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("error recording import: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing transaction: %w", err)
	}

	s.cache.Flush()
	s.log.Info("Stations replaced", "source", source, "count", count)

	return count, nil
}

// Stations returns a cursor over the stored stations in import order. The
// caller must Close it.
func (s *Storage) Stations(ctx context.Context) (*Cursor, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM stations ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("error querying stations: %w", err)
	}
	return &Cursor{rows: rows}, nil
}

// Cursor iterates stored stations one row at a time.
type Cursor struct {
	rows *sql.Rows
	pos  int
}

// Next returns the next station, or io.EOF once all rows have been read.
func (c *Cursor) Next(ctx context.Context) (*api.Station, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating stations: %w", err)
		}
		return nil, io.EOF
	}
	c.pos++

	var data []byte
	if err := c.rows.Scan(&data); err != nil {
		return nil, fmt.Errorf("error scanning station %d: %w", c.pos, err)
	}
	var station api.Station
	if err := json.Unmarshal(data, &station); err != nil {
		return nil, fmt.Errorf("error unmarshaling station %d: %w", c.pos, err)
	}
	return &station, nil
}

func (c *Cursor) Close() error {
	return c.rows.Close()
}

// Count returns the number of stored stations.
func (s *Storage) Count(ctx context.Context) (int, error) {
	if cached, found := s.cache.Get(countCacheKey); found {
		s.log.Debug("Using cached data", "key", countCacheKey)
		return cached.(int), nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stations").Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting stations: %w", err)
	}

	s.cache.Set(countCacheKey, count, cache.DefaultExpiration)
	return count, nil
}

// LastImport returns the most recent import, or nil when the database has
// never been populated.
func (s *Storage) LastImport(ctx context.Context) (*Import, error) {
	var dateStr, importedAtStr string
	var imp Import
	err := s.db.QueryRowContext(ctx,
		"SELECT date, source, station_count, imported_at FROM imports ORDER BY id DESC LIMIT 1",
	).Scan(&dateStr, &imp.Source, &imp.StationCount, &importedAtStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying last import: %w", err)
	}

	imp.Date, err = time.Parse("2006-01-02", dateStr)
	if err != nil {
		return nil, fmt.Errorf("error parsing date %s: %w", dateStr, err)
	}
	imp.ImportedAt, err = time.Parse(time.RFC3339, importedAtStr)
	if err != nil {
		return nil, fmt.Errorf("error parsing import time %s: %w", importedAtStr, err)
	}

	return &imp, nil
}

// NearbyStations returns the stations within distance meters of the given
// coordinates, nearest first.
func (s *Storage) NearbyStations(ctx context.Context, lat, lng, distance float64) ([]api.StationWithDistance, error) {
	cacheKey := fmt.Sprintf("nearby_stations_%f_%f_%f", lat, lng, distance)

	if cached, found := s.cache.Get(cacheKey); found {
		s.log.Debug("Using cached data", "key", cacheKey)
		return cached.([]api.StationWithDistance), nil
	}
	s.log.Debug("Fetching data from database, cached data not found", "key", cacheKey)

	rows, err := s.db.QueryContext(ctx, `
		SELECT data, latitude, longitude FROM stations
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("error querying stations: %w", err)
	}
	defer rows.Close()

	var nearby []api.StationWithDistance
	for rows.Next() {
		var data []byte
		var stationLat, stationLng float64
		if err := rows.Scan(&data, &stationLat, &stationLng); err != nil {
			return nil, fmt.Errorf("error scanning station: %w", err)
		}

		calculatedDistance := gpx.Distance2D(lat, lng, stationLat, stationLng, true)
		if calculatedDistance > distance {
			continue
		}

		var station api.Station
		if err := json.Unmarshal(data, &station); err != nil {
			s.log.Warn("Skipping undecodable station", "error", err)
			continue
		}
		nearby = append(nearby, api.StationWithDistance{
			Station:  &station,
			Distance: calculatedDistance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stations: %w", err)
	}

	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].Distance < nearby[j].Distance
	})

	s.cache.Set(cacheKey, nearby, cache.DefaultExpiration)

	return nearby, nil
}
