package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/banshee-data/airquality.report/internal/config"
	"github.com/banshee-data/airquality.report/internal/inference"
	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/reading"
	"github.com/banshee-data/airquality.report/internal/timeutil"
	"github.com/banshee-data/airquality.report/internal/version"
)

//go:embed templates/*.html
var templateFS embed.FS

var dashboardTmpl = template.Must(template.New("dashboard.html").Funcs(template.FuncMap{
	"num": func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
}).ParseFS(templateFS, "templates/dashboard.html"))

type manualResult struct {
	Input      inference.ManualInput
	Prediction inference.Prediction
}

type dashboardPage struct {
	Title       string
	Description string
	ModelLabel  string
	BannerDate  string
	Units       config.Units
	Snapshot    *snapshot
	Columns     []string
	Bounds      [reading.FeatureCount]inference.Bound
	FormValues  [reading.FeatureCount]string
	Manual      *manualResult
	ManualError string
	Refreshed   bool
	Stored      bool
	ShowCharts  bool
	FetchedAt   string
	SourceName  string
	Version     string

	refreshedID string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	page := s.newPage(inference.DefaultManualInput())
	page.refreshedID = r.URL.Query().Get("refreshed")
	s.renderDashboard(w, r, http.StatusOK, page)
}

// handleManualPredict runs the what-if form and re-renders the page with the
// manual banner. Nothing from one submission is kept for the next.
func (s *Server) handleManualPredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	in, err := inference.ParseManualInput(r.PostForm.Get)
	if err != nil {
		page := s.newPage(inference.DefaultManualInput())
		for i, b := range inference.ManualBounds {
			page.FormValues[i] = r.PostForm.Get(b.Field)
		}
		page.ManualError = err.Error()
		s.renderDashboard(w, r, http.StatusBadRequest, page)
		return
	}

	pred, err := s.pipeline.Predict(in.Reading)
	if err != nil {
		http.Error(w, "Prediction failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.metrics.Prediction(monitoring.OriginManual, pred.Label)

	page := s.newPage(in)
	page.Manual = &manualResult{Input: in, Prediction: pred}
	s.renderDashboard(w, r, http.StatusOK, page)
}

// handleRefresh re-reads the source and sends the browser back to the
// dashboard. The redirect names the new snapshot so the refreshed notice only
// shows while that snapshot is the one on screen. A failed read drops the
// cached table and lets the dashboard report the error.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	e, err := s.cache.Fetch(r.Context(), true)
	if err != nil {
		monitoring.Logf("refresh failed: %v", err)
		s.cache.Invalidate()
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if e.Stored {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/?refreshed="+url.QueryEscape(e.ID.String()), http.StatusSeeOther)
}

func (s *Server) newPage(form inference.ManualInput) *dashboardPage {
	page := &dashboardPage{
		Title:       s.cfg.GetTitle(),
		Description: s.cfg.GetDescription(),
		ModelLabel:  s.cfg.GetModelLabel(),
		Units:       s.cfg.GetUnits(),
		Bounds:      inference.ManualBounds,
		Version:     version.Get().String(),
	}
	if s.cfg.GetBannerDate() {
		now, err := timeutil.ConvertTime(s.clock.Now(), s.cfg.GetTimezone())
		if err != nil {
			monitoring.Logf("banner date: %v", err)
		}
		page.BannerDate = now.Format(s.cfg.GetDateLayout())
	}
	for i, v := range form.Features() {
		page.FormValues[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return page
}

// renderDashboard loads the snapshot and executes the template into a
// buffer, so a failure part way through never sends a partial page.
func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, status int, page *dashboardPage) {
	snap, err := s.load(r.Context())
	if err != nil {
		code := statusOf(err)
		msg := "Failed to load readings: " + err.Error()
		if code != http.StatusBadGateway {
			msg = "Failed to classify readings: " + err.Error()
		}
		monitoring.Logf("dashboard render failed: %v", err)
		http.Error(w, msg, code)
		return
	}
	page.Snapshot = snap
	page.Columns = append(append([]string(nil), snap.History.Columns...), s.predictionColumn())
	page.FetchedAt = snap.Entry.FetchedAt.Format(time.RFC3339)
	page.SourceName = snap.Entry.Source
	page.Stored = snap.Entry.Stored
	page.Refreshed = page.refreshedID != "" && !page.Stored && page.refreshedID == snap.Entry.ID.String()
	page.ShowCharts = len(snap.History.Rows) > 0

	var buf bytes.Buffer
	if err := dashboardTmpl.Execute(&buf, page); err != nil {
		monitoring.Logf("dashboard template failed: %v", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
