package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/airquality.report/internal/cache"
	"github.com/banshee-data/airquality.report/internal/inference"
	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/reading"
)

// snapshot is one render's worth of data: the cached table, the prediction
// for its last row, and a fresh prediction for every row.
type snapshot struct {
	Entry     *cache.Entry
	Latest    reading.Row
	HasLatest bool
	Current   inference.Prediction
	History   *inference.Annotated
}

// renderError carries the status a failed load maps to.
type renderError struct {
	status int
	err    error
}

func (e *renderError) Error() string { return e.err.Error() }
func (e *renderError) Unwrap() error { return e.err }

func statusOf(err error) int {
	var re *renderError
	if errors.As(err, &re) {
		return re.status
	}
	return http.StatusInternalServerError
}

// load fetches through the cache and runs the pipeline over the latest row
// and then every row. Nothing is memoized between renders.
func (s *Server) load(ctx context.Context) (*snapshot, error) {
	entry, err := s.cache.Fetch(ctx, false)
	if err != nil {
		return nil, &renderError{http.StatusBadGateway, err}
	}

	snap := &snapshot{Entry: entry}
	if snap.Latest, snap.HasLatest = entry.Table.Latest(); snap.HasLatest {
		snap.Current, err = s.pipeline.Predict(snap.Latest.Reading)
		if err != nil {
			return nil, &renderError{http.StatusInternalServerError, fmt.Errorf("latest reading: %w", err)}
		}
		s.metrics.Prediction(monitoring.OriginLatest, snap.Current.Label)
	}

	snap.History, err = s.pipeline.Annotate(entry.Table)
	if err != nil {
		return nil, &renderError{http.StatusInternalServerError, fmt.Errorf("history: %w", err)}
	}
	for _, row := range snap.History.Rows {
		s.metrics.Prediction(monitoring.OriginHistory, row.Prediction.Label)
	}
	return snap, nil
}

// predictionColumn heads the per-row prediction column.
func (s *Server) predictionColumn() string {
	return "Prediksi " + s.cfg.GetModelLabel()
}
