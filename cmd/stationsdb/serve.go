package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	"github.com/rubiojr/stationsdb/internal/exporter"
	"github.com/rubiojr/stationsdb/internal/stationsdb"
	"github.com/rubiojr/stationsdb/pkg/api"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the stored stations over HTTP",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "HTTP server port",
				Value: 8080,
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, _, err := setup(c)
	if err != nil {
		return err
	}
	level, _ := cfg.Level()

	logger := httplog.NewLogger("stationsdb", httplog.Options{
		JSON:            false,
		LogLevel:        level,
		Concise:         true,
		QuietDownPeriod: 10 * time.Second,
	})

	storage, err := stationsdb.NewStorage(c.Context, cfg.DBPath, logger.Logger)
	if err != nil {
		return fmt.Errorf("error initializing storage: %w", err)
	}
	defer storage.Close()

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(20, time.Minute))
	r.Mount("/", newHandler(storage, newGeocoder(cfg.NominatimServer), logger.Logger))

	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", c.Int("port")),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(c.Context)
	g.Go(func() error {
		logger.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// handler serves the station API.
type handler struct {
	storage *stationsdb.Storage
	geocode geocodeFunc
	log     *slog.Logger
}

func newHandler(storage *stationsdb.Storage, geocode geocodeFunc, logger *slog.Logger) http.Handler {
	h := &handler{storage: storage, geocode: geocode, log: logger}

	r := chi.NewRouter()
	r.Get("/stations.csv", h.exportCSV)
	r.Get("/stations/nearby", h.nearby)
	r.Get("/status", h.status)
	return r
}

func (h *handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	cursor, err := h.storage.Stations(r.Context())
	if err != nil {
		h.log.Error("Error querying stations", "error", err)
		http.Error(w, "error querying stations", http.StatusInternalServerError)
		return
	}
	defer cursor.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="stations_dataset.csv"`)

	n, err := exporter.Write(r.Context(), w, cursor)
	if err != nil {
		h.log.Error("Export aborted", "rows", n, "error", err)
		// the status line is already sent, drop the connection
		panic(http.ErrAbortHandler)
	}
	h.log.Debug("Export served", "rows", n)
}

type nearbyResponse struct {
	Location string                    `json:"location,omitempty"`
	Lat      float64                   `json:"lat"`
	Lng      float64                   `json:"lng"`
	Radius   float64                   `json:"radius"`
	Stations []api.StationWithDistance `json:"stations"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handler) nearby(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp := nearbyResponse{
		Location: query.Get("location"),
		Radius:   defaultRadiusKm,
	}

	if radiusStr := query.Get("radius"); radiusStr != "" {
		radius, err := strconv.ParseFloat(radiusStr, 64)
		if err != nil || radius <= 0 {
			h.fail(w, r, http.StatusBadRequest, "invalid radius value")
			return
		}
		resp.Radius = radius
	}

	if resp.Location != "" {
		loc, err := h.geocode(resp.Location)
		if err != nil {
			h.fail(w, r, http.StatusNotFound, err.Error())
			return
		}
		resp.Lat, resp.Lng = loc.Lat, loc.Lng
	} else {
		var err error
		resp.Lat, err = strconv.ParseFloat(query.Get("lat"), 64)
		if err != nil {
			h.fail(w, r, http.StatusBadRequest, "invalid latitude value")
			return
		}
		resp.Lng, err = strconv.ParseFloat(query.Get("lng"), 64)
		if err != nil {
			h.fail(w, r, http.StatusBadRequest, "invalid longitude value")
			return
		}
	}

	stations, err := h.storage.NearbyStations(r.Context(), resp.Lat, resp.Lng, resp.Radius*metersPerKm)
	if err != nil {
		h.log.Error("Error finding nearby stations", "error", err)
		h.fail(w, r, http.StatusInternalServerError, "error finding nearby stations")
		return
	}
	resp.Stations = stations
	if resp.Stations == nil {
		resp.Stations = []api.StationWithDistance{}
	}

	render.JSON(w, r, resp)
}

type statusResponse struct {
	Stations   int        `json:"stations"`
	LastImport *time.Time `json:"last_import"`
	Source     string     `json:"source,omitempty"`
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	count, err := h.storage.Count(r.Context())
	if err != nil {
		h.log.Error("Error counting stations", "error", err)
		h.fail(w, r, http.StatusInternalServerError, "error counting stations")
		return
	}
	last, err := h.storage.LastImport(r.Context())
	if err != nil {
		h.log.Error("Error getting last import", "error", err)
		h.fail(w, r, http.StatusInternalServerError, "error getting last import")
		return
	}

	resp := statusResponse{Stations: count}
	if last != nil {
		resp.LastImport = &last.ImportedAt
		resp.Source = last.Source
	}
	render.JSON(w, r, resp)
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, code int, msg string) {
	render.Status(r, code)
	render.JSON(w, r, errorResponse{Error: msg})
}
