// Command incident-import bulk-loads incidents from a JSON array or a
// GeoJSON FeatureCollection, read from a file or URL.
//
// Usage:
//
//	incident-import -source incidents.geojson [-replace] [-workers 8]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mr1hm/go-wildfire-alerts/internal/config"
	"github.com/mr1hm/go-wildfire-alerts/internal/importer"
	"github.com/mr1hm/go-wildfire-alerts/internal/incident"
	"github.com/mr1hm/go-wildfire-alerts/internal/logging"
	"github.com/mr1hm/go-wildfire-alerts/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}

	source := flag.String("source", "", "path or http(s) URL of the incidents to load")
	replace := flag.Bool("replace", false, "delete every existing incident before loading")
	workers := flag.Int("workers", cfg.Import.Workers, "number of concurrent inserts")
	flag.Parse()

	// stdout carries the import report.
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	if *source == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := cfg.DB.Path
	if cfg.DB.Driver == repository.DriverPostgres {
		dsn = cfg.DB.DSN
	}
	db, err := repository.Open(cfg.DB.Driver, dsn)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	rc, err := importer.Open(ctx, *source)
	if err != nil {
		logging.Fatalf("Failed to open source: %v", err)
	}
	reqs, err := importer.Decode(rc)
	rc.Close()
	if err != nil {
		logging.Fatalf("Failed to decode source: %v", err)
	}
	slog.Info("loaded import source", "source", *source, "records", len(reqs))

	store := incident.NewStore(db, nil, nil)
	im := importer.New(store, importer.Options{
		Workers:    *workers,
		BufferSize: cfg.Import.BufferSize,
		Replace:    *replace,
	})

	res, runErr := im.Run(ctx, reqs)
	if res != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
	}
	if runErr != nil {
		logging.Fatalf("Import failed: %v", runErr)
	}
	if res.Failed > 0 {
		os.Exit(1)
	}
}
