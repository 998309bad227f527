// Command annotate runs the classifier over a readings CSV and writes the
// table back out with a prediction column, optionally mirroring it into
// SQLite and plotting it.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/airquality.report/internal/config"
	"github.com/banshee-data/airquality.report/internal/httputil"
	"github.com/banshee-data/airquality.report/internal/inference"
	"github.com/banshee-data/airquality.report/internal/model"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to the dashboard JSON config")
	in := flag.String("in", "", "readings CSV to annotate (default: fetch the configured sheet)")
	url := flag.String("url", "", "sheet CSV export URL, overriding the config")
	kind := flag.String("kind", "", "classifier kind override (catboost or lstm)")
	out := flag.String("out", "", "write the annotated CSV here instead of stdout")
	dbPath := flag.String("db", "", "also store the annotated table in this SQLite file")
	plotPath := flag.String("plot", "", "also render the readings to this PNG")
	flag.Parse()

	cfg, err := config.LoadDashboardConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *kind != "" {
		cfg.ModelKind = kind
		cfg.ModelPath = nil
		cfg.ModelLabel = nil
		if err := cfg.Validate(); err != nil {
			log.Fatalf("invalid -kind: %v", err)
		}
	}

	artifacts, err := model.LoadArtifacts(cfg.ArtifactPaths())
	if err != nil {
		log.Fatalf("failed to load model artifacts: %v", err)
	}
	pipeline, err := inference.NewPipeline(artifacts)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	sheetURL := *url
	if sheetURL == "" {
		sheetURL = cfg.GetSheetURL()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	annotated, err := run(ctx, pipeline, options{
		input:     *in,
		sheetURL:  sheetURL,
		client:    httputil.NewStandardClient(nil, cfg.GetFetchTimeout()),
		column:    "Prediksi " + cfg.GetModelLabel(),
		title:     cfg.GetTitle(),
		outPath:   *out,
		dbPath:    *dbPath,
		plotPath:  *plotPath,
		modelKind: string(pipeline.Kind()),
	}, os.Stdout)
	if err != nil {
		log.Fatalf("annotate failed: %v", err)
	}
	for _, c := range pipeline.Distribution(annotated) {
		log.Printf("%-20s %d", c.Label, c.Count)
	}
	log.Printf("done: %d rows", len(annotated.Rows))
}
