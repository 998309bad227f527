package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/airquality.report/internal/api"
	"github.com/banshee-data/airquality.report/internal/db"
	"github.com/banshee-data/airquality.report/internal/httputil"
	"github.com/banshee-data/airquality.report/internal/inference"
	"github.com/banshee-data/airquality.report/internal/reading"
	"github.com/banshee-data/airquality.report/internal/security"
	"github.com/banshee-data/airquality.report/internal/source"
)

type options struct {
	input    string
	sheetURL string
	client   httputil.HTTPClient

	column string
	title  string

	outPath   string
	dbPath    string
	plotPath  string
	modelKind string
}

// run reads the table, predicts every row and writes the requested outputs.
// The CSV goes to stdout unless outPath is set.
func run(ctx context.Context, p *inference.Pipeline, o options, stdout io.Writer) (*inference.Annotated, error) {
	var src source.Source
	if o.input != "" {
		src = source.NewFileSource(o.input)
	} else {
		src = source.NewSheetSource(o.sheetURL, o.client)
	}
	table, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	annotated, err := p.Annotate(table)
	if err != nil {
		return nil, err
	}

	if err := writeCSV(annotated, o, stdout); err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		if err := store(ctx, o, src.Name(), table, annotated.Labels()); err != nil {
			return nil, err
		}
	}
	if o.plotPath != "" {
		if err := security.ValidateOutputPath(o.plotPath); err != nil {
			return nil, fmt.Errorf("invalid plot path: %w", err)
		}
		pl, err := api.HistoryPlot(o.title, annotated.Rows)
		if err != nil {
			return nil, err
		}
		if err := pl.Save(10*vg.Inch, 4*vg.Inch, o.plotPath); err != nil {
			return nil, fmt.Errorf("failed to save plot: %w", err)
		}
	}
	return annotated, nil
}

func writeCSV(a *inference.Annotated, o options, stdout io.Writer) error {
	columns := append(append([]string(nil), a.Columns...), o.column)
	records := make([][]string, len(a.Rows))
	for i, row := range a.Rows {
		records[i] = append(append([]string(nil), row.Cells...), row.Prediction.Label)
	}

	if o.outPath == "" {
		return reading.WriteCSV(stdout, columns, records)
	}
	if err := security.ValidateOutputPath(o.outPath); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	f, err := os.Create(o.outPath)
	if err != nil {
		return err
	}
	if err := reading.WriteCSV(f, columns, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func store(ctx context.Context, o options, sourceName string, table *reading.Table, labels []string) error {
	d, err := db.NewDB(o.dbPath)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.SaveSnapshot(ctx, db.Snapshot{
		Source:    sourceName,
		FetchedAt: time.Now().UTC(),
		ModelKind: o.modelKind,
		Table:     table,
		Labels:    labels,
	})
}
