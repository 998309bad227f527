// Package api serves the dashboard: the HTML page with the manual form, a
// JSON API over the same data, and history charts.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/airquality.report/internal/cache"
	"github.com/banshee-data/airquality.report/internal/config"
	"github.com/banshee-data/airquality.report/internal/inference"
	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/timeutil"
)

// ANSI escape codes used by LoggingMiddleware.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Server holds everything a render needs. It keeps no per-request state; the
// cache is the only shared mutable piece and serializes itself.
type Server struct {
	cfg      *config.DashboardConfig
	cache    *cache.Cache
	pipeline *inference.Pipeline
	metrics  *monitoring.Metrics
	clock    timeutil.Clock
}

// Options configures NewServer. Config, Cache and Pipeline are required.
type Options struct {
	Config   *config.DashboardConfig
	Cache    *cache.Cache
	Pipeline *inference.Pipeline
	Metrics  *monitoring.Metrics
	Clock    timeutil.Clock
}

func NewServer(opts Options) *Server {
	s := &Server{
		cfg:      opts.Config,
		cache:    opts.Cache,
		pipeline: opts.Pipeline,
		metrics:  opts.Metrics,
		clock:    opts.Clock,
	}
	if s.cfg == nil {
		s.cfg = &config.DashboardConfig{}
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	return s
}

// ServeMux returns the dashboard routes. The caller adds debug routes and
// wraps the mux in LoggingMiddleware.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", s.timed("dashboard", s.handleDashboard))
	mux.Handle("/predict", s.timed("predict", s.handleManualPredict))
	mux.HandleFunc("/refresh", s.handleRefresh)

	mux.Handle("/api/latest", s.timed("api_latest", s.handleLatest))
	mux.Handle("/api/history", s.timed("api_history", s.handleHistory))
	mux.Handle("/api/history.csv", s.timed("api_history_csv", s.handleHistoryCSV))
	mux.Handle("/api/predict", s.timed("api_predict", s.handlePredict))
	mux.HandleFunc("/api/refresh", s.handleAPIRefresh)
	mux.HandleFunc("/api/config", s.handleConfig)

	mux.Handle("/charts/history", s.timed("chart_history", s.handleHistoryChart))
	mux.Handle("/charts/history.png", s.timed("chart_history_png", s.handleHistoryPNG))

	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

func (s *Server) timed(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		s.metrics.ObserveRender(route, time.Since(start))
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, URI, colored status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}
