// Command airquality serves the air quality and fire risk dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/airquality.report/internal/api"
	"github.com/banshee-data/airquality.report/internal/cache"
	"github.com/banshee-data/airquality.report/internal/config"
	"github.com/banshee-data/airquality.report/internal/db"
	"github.com/banshee-data/airquality.report/internal/httputil"
	"github.com/banshee-data/airquality.report/internal/inference"
	"github.com/banshee-data/airquality.report/internal/model"
	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/reading"
	"github.com/banshee-data/airquality.report/internal/source"
	"github.com/banshee-data/airquality.report/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the dashboard JSON config")
	listen      = flag.String("listen", ":8080", "Listen address")
	devMode     = flag.Bool("dev", false, "Read readings from the local fixture instead of the spreadsheet")
	fixturePath = flag.String("fixture", "artifacts/readings.sample.csv", "CSV used in dev mode")
	dbPath      = flag.String("db", "", "Mirror fetched tables into this SQLite file (empty disables)")
	dbKeep      = flag.Int("db-keep", 1440, "Number of mirrored snapshots to keep (0 keeps all)")
	dbFallback  = flag.Bool("db-fallback", false, "Serve the newest mirrored table, marked as stored data, while the spreadsheet is failing (requires -db)")
	offline     = flag.Bool("offline", false, "Serve the newest mirrored table without contacting the spreadsheet (requires -db)")
	debug       = flag.Bool("debug", false, "Mount the SQLite debug console and backup routes under /debug/")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// sourceOptions selects where readings come from.
type sourceOptions struct {
	sheetURL    string
	timeout     time.Duration
	dev         bool
	fixturePath string
	offline     bool
	mirror      *db.DB
	keep        int
	fallback    bool
	pipeline    *inference.Pipeline
}

// newSource builds the reading source: the spreadsheet by default, the
// fixture file in dev mode, or the SQLite mirror when offline. A configured
// mirror wraps the online sources.
func newSource(o sourceOptions) (source.Source, error) {
	if o.fallback && o.mirror == nil {
		return nil, errors.New("fallback requires a database")
	}
	if o.offline {
		if o.mirror == nil {
			return nil, errors.New("offline mode requires a database")
		}
		return o.mirror, nil
	}

	var src source.Source
	if o.dev {
		src = source.NewFileSource(o.fixturePath)
	} else {
		client := httputil.NewStandardClient(nil, o.timeout)
		src = source.NewSheetSource(o.sheetURL, client)
	}
	if o.mirror == nil {
		return src, nil
	}

	m := db.NewMirror(src, o.mirror)
	m.Keep = o.keep
	m.Fallback = o.fallback
	if o.pipeline != nil {
		m.ModelKind = string(o.pipeline.Kind())
		m.Label = func(t *reading.Table) ([]string, error) {
			a, err := o.pipeline.Annotate(t)
			if err != nil {
				return nil, err
			}
			return a.Labels(), nil
		}
	}
	return m, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}
	if flag.Arg(0) == "migrate" {
		if err := runMigrate(os.Stdout, *dbPath, flag.Args()[1:]); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := config.LoadDashboardConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	artifacts, err := model.LoadArtifacts(cfg.ArtifactPaths())
	if err != nil {
		log.Fatalf("failed to load model artifacts: %v", err)
	}
	pipeline, err := inference.NewPipeline(artifacts)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	var mirror *db.DB
	if *dbPath != "" {
		mirror, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer mirror.Close()
	}

	src, err := newSource(sourceOptions{
		sheetURL:    cfg.GetSheetURL(),
		timeout:     cfg.GetFetchTimeout(),
		dev:         *devMode,
		fixturePath: *fixturePath,
		offline:     *offline,
		mirror:      mirror,
		keep:        *dbKeep,
		fallback:    *dbFallback,
		pipeline:    pipeline,
	})
	if err != nil {
		log.Fatalf("failed to configure source: %v", err)
	}

	metrics := monitoring.NewMetrics()
	c := cache.New(src, cache.Options{TTL: cfg.GetCacheTTL(), Metrics: metrics})
	server := api.NewServer(api.Options{
		Config:   cfg,
		Cache:    c,
		Pipeline: pipeline,
		Metrics:  metrics,
	})

	mux := server.ServeMux()
	if *debug {
		if mirror == nil {
			log.Fatal("-debug requires -db")
		}
		if err := mirror.AttachAdminRoutes(mux); err != nil {
			log.Fatalf("failed to attach debug routes: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("airquality %s: %s model, source %s, listening on %s",
		version.Get(), pipeline.Kind(), src.Name(), *listen)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		httpServer := &http.Server{
			Addr:              *listen,
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := httpServer.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
