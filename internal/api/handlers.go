package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/airquality.report/internal/config"
	"github.com/banshee-data/airquality.report/internal/httputil"
	"github.com/banshee-data/airquality.report/internal/inference"
	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/reading"
	"github.com/banshee-data/airquality.report/internal/security"
	"github.com/banshee-data/airquality.report/internal/version"
)

type snapshotInfo struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Stored    bool      `json:"stored"`
	Rows      int       `json:"rows"`
}

type latestResponse struct {
	Snapshot   snapshotInfo         `json:"snapshot"`
	Row        int                  `json:"row"`
	Reading    reading.Reading      `json:"reading"`
	Cells      map[string]string    `json:"cells"`
	Prediction inference.Prediction `json:"prediction"`
}

type historyRow struct {
	Index      int                  `json:"index"`
	Cells      []string             `json:"cells"`
	Reading    reading.Reading      `json:"reading"`
	Prediction inference.Prediction `json:"prediction"`
}

type historyResponse struct {
	Snapshot     snapshotInfo           `json:"snapshot"`
	Columns      []string               `json:"columns"`
	Rows         []historyRow           `json:"rows"`
	Distribution []inference.LabelCount `json:"distribution"`
}

type predictResponse struct {
	Input      reading.Reading      `json:"input"`
	Prediction inference.Prediction `json:"prediction"`
}

type configResponse struct {
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	ModelKind       string            `json:"model_kind"`
	ModelLabel      string            `json:"model_label"`
	Classes         []string          `json:"classes"`
	Bounds          []inference.Bound `json:"bounds"`
	Units           config.Units      `json:"units"`
	CacheTTLSeconds float64           `json:"cache_ttl_seconds"`
	Source          string            `json:"source"`
}

func infoFor(snap *snapshot) snapshotInfo {
	return snapshotInfo{
		ID:        snap.Entry.ID.String(),
		Source:    snap.Entry.Source,
		FetchedAt: snap.Entry.FetchedAt,
		Stored:    snap.Entry.Stored,
		Rows:      snap.Entry.Table.Len(),
	}
}

func (s *Server) loadJSON(w http.ResponseWriter, r *http.Request) (*snapshot, bool) {
	snap, err := s.load(r.Context())
	if err != nil {
		if code := statusOf(err); code != http.StatusBadGateway {
			httputil.WriteJSONError(w, code, err.Error())
		} else {
			httputil.BadGateway(w, err.Error())
		}
		return nil, false
	}
	return snap, true
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	snap, ok := s.loadJSON(w, r)
	if !ok {
		return
	}
	if !snap.HasLatest {
		httputil.WriteJSONError(w, http.StatusNotFound, "no readings in source table")
		return
	}
	cells := make(map[string]string, len(snap.Entry.Table.Columns))
	for i, c := range snap.Entry.Table.Columns {
		if i < len(snap.Latest.Cells) {
			cells[c] = snap.Latest.Cells[i]
		}
	}
	httputil.WriteJSONOK(w, latestResponse{
		Snapshot:   infoFor(snap),
		Row:        snap.Latest.Index,
		Reading:    snap.Latest.Reading,
		Cells:      cells,
		Prediction: snap.Current,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	snap, ok := s.loadJSON(w, r)
	if !ok {
		return
	}
	rows := make([]historyRow, len(snap.History.Rows))
	for i, row := range snap.History.Rows {
		rows[i] = historyRow{
			Index:      row.Index,
			Cells:      row.Cells,
			Reading:    row.Reading,
			Prediction: row.Prediction,
		}
	}
	httputil.WriteJSONOK(w, historyResponse{
		Snapshot:     infoFor(snap),
		Columns:      snap.History.Columns,
		Rows:         rows,
		Distribution: s.pipeline.Distribution(snap.History),
	})
}

// handleHistoryCSV downloads the annotated table with the prediction column
// appended.
func (s *Server) handleHistoryCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	snap, err := s.load(r.Context())
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	columns := append(append([]string(nil), snap.History.Columns...), s.predictionColumn())
	records := make([][]string, len(snap.History.Rows))
	for i, row := range snap.History.Rows {
		records[i] = append(append([]string(nil), row.Cells...), row.Prediction.Label)
	}

	filename := security.SanitizeFilename(s.cfg.GetTitle()) + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := reading.WriteCSV(w, columns, records); err != nil {
		monitoring.Logf("failed to write history csv: %v", err)
	}
}

// handlePredict is the JSON form of the manual what-if, reading the three
// values from the query string or a form body.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
		return
	}
	if err := r.ParseForm(); err != nil {
		httputil.BadRequest(w, "invalid form")
		return
	}
	in, err := inference.ParseManualInput(r.Form.Get)
	if err != nil {
		if errors.Is(err, inference.ErrOutOfBounds) || errors.Is(err, inference.ErrNotNumber) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	pred, err := s.pipeline.Predict(in.Reading)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	s.metrics.Prediction(monitoring.OriginManual, pred.Label)
	httputil.WriteJSONOK(w, predictResponse{Input: in.Reading, Prediction: pred})
}

func (s *Server) handleAPIRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	s.cache.Invalidate()
	httputil.WriteJSONOK(w, map[string]any{
		"status":  "invalidated",
		"message": "Data terbaru akan diambil pada permintaan berikutnya.",
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, configResponse{
		Title:           s.cfg.GetTitle(),
		Description:     s.cfg.GetDescription(),
		ModelKind:       string(s.pipeline.Kind()),
		ModelLabel:      s.cfg.GetModelLabel(),
		Classes:         s.pipeline.Classes(),
		Bounds:          inference.ManualBounds[:],
		Units:           s.cfg.GetUnits(),
		CacheTTLSeconds: s.cache.TTL().Seconds(),
		Source:          s.cache.SourceName(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": version.Get(),
	}
	if e := s.cache.Peek(); e != nil {
		resp["snapshot"] = e.ID.String()
		resp["snapshot_source"] = e.Source
		resp["snapshot_age_seconds"] = s.clock.Since(e.FetchedAt).Seconds()
	}
	httputil.WriteJSONOK(w, resp)
}
