// Package config loads the dashboard configuration file. Every field is
// optional; the Get* accessors supply the defaults, which are also written
// out in config/dashboard.defaults.json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/airquality.report/internal/model"
	"github.com/banshee-data/airquality.report/internal/source"
	"github.com/banshee-data/airquality.report/internal/timeutil"
)

// DefaultConfigPath is the canonical defaults file.
const DefaultConfigPath = "config/dashboard.defaults.json"

const (
	defaultCacheTTL     = 60 * time.Second
	defaultFetchTimeout = 30 * time.Second
	defaultArtifactDir  = "artifacts"
	defaultScalerPath   = "scaler_ispu.json"
	defaultEncoderPath  = "label_encoder_ispu.json"
	defaultModelPath    = "catboost_ispu_model.json"
	defaultSequencePath = "lstm_ispu_weights.json"
	defaultTitle        = "Sistem Monitoring Kualitas Udara dan Prediksi Kebakaran"
	defaultDescription  = "Aplikasi ini menampilkan data kualitas udara terkini (PM2.5, PM10, CO) dari sensor serta memprediksi tingkat risiko kebakaran berbasis data Google Sheets."
	defaultDateLayout   = "Monday, 02 January 2006"
	defaultHistoryLimit = 500
	defaultPMUnit       = "µg/m³"
	defaultCOUnit       = "ppb"
	maxConfigSize       = 1 * 1024 * 1024
)

// DashboardConfig is the root of the configuration file.
type DashboardConfig struct {
	// Data source
	SheetURL     *string `json:"sheet_url,omitempty"`
	CacheTTL     *string `json:"cache_ttl,omitempty"`     // duration string like "60s"
	FetchTimeout *string `json:"fetch_timeout,omitempty"` // duration string like "30s"

	// Artifacts; relative paths resolve against ArtifactDir
	ArtifactDir *string `json:"artifact_dir,omitempty"`
	ScalerPath  *string `json:"scaler_path,omitempty"`
	EncoderPath *string `json:"encoder_path,omitempty"`
	ModelPath   *string `json:"model_path,omitempty"`
	ModelKind   *string `json:"model_kind,omitempty"`

	// Presentation
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	ModelLabel   *string `json:"model_label,omitempty"`
	BannerDate   *bool   `json:"banner_date,omitempty"`
	DateLayout   *string `json:"date_layout,omitempty"`
	Timezone     *string `json:"timezone,omitempty"` // tz database name for the banner date
	HistoryLimit *int    `json:"history_limit,omitempty"`
	Units        *Units  `json:"units,omitempty"`
}

// Units are display suffixes for the metric cards.
type Units struct {
	PM string `json:"pm"`
	CO string `json:"co"`
}

// LoadDashboardConfig reads a JSON config file. The file must have a .json
// extension and be at most 1MB. Omitted fields keep their defaults.
func LoadDashboardConfig(path string) (*DashboardConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &DashboardConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory
// or one of its parents. Panics when the file cannot be found; intended for
// tests.
func MustLoadDefaultConfig() *DashboardConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadDashboardConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the fields that are set.
func (c *DashboardConfig) Validate() error {
	for name, v := range map[string]*string{"cache_ttl": c.CacheTTL, "fetch_timeout": c.FetchTimeout} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.SheetURL != nil && !strings.HasPrefix(*c.SheetURL, "http://") && !strings.HasPrefix(*c.SheetURL, "https://") {
		return fmt.Errorf("sheet_url must be an http(s) URL, got %q", *c.SheetURL)
	}
	if c.ModelKind != nil {
		if _, err := model.ParseKind(*c.ModelKind); err != nil {
			return err
		}
	}
	if c.Timezone != nil && !timeutil.IsTimezoneValid(*c.Timezone) {
		return fmt.Errorf("invalid timezone %q", *c.Timezone)
	}
	if c.HistoryLimit != nil && *c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must be non-negative, got %d", *c.HistoryLimit)
	}
	return nil
}

// GetSheetURL returns the spreadsheet export URL.
func (c *DashboardConfig) GetSheetURL() string {
	if c.SheetURL != nil {
		return *c.SheetURL
	}
	return source.DefaultSheetURL
}

// GetCacheTTL returns how long a fetched table is reused.
func (c *DashboardConfig) GetCacheTTL() time.Duration {
	return duration(c.CacheTTL, defaultCacheTTL)
}

// GetFetchTimeout returns the HTTP timeout for a sheet fetch.
func (c *DashboardConfig) GetFetchTimeout() time.Duration {
	return duration(c.FetchTimeout, defaultFetchTimeout)
}

func duration(v *string, def time.Duration) time.Duration {
	if v != nil && *v != "" {
		if d, err := time.ParseDuration(*v); err == nil {
			return d
		}
	}
	return def
}

func (c *DashboardConfig) GetArtifactDir() string {
	return stringOr(c.ArtifactDir, defaultArtifactDir)
}

func (c *DashboardConfig) GetScalerPath() string {
	return stringOr(c.ScalerPath, defaultScalerPath)
}

func (c *DashboardConfig) GetEncoderPath() string {
	return stringOr(c.EncoderPath, defaultEncoderPath)
}

func (c *DashboardConfig) GetModelPath() string {
	if c.ModelPath == nil && c.GetModelKind() == model.KindSequence {
		return defaultSequencePath
	}
	return stringOr(c.ModelPath, defaultModelPath)
}

// GetModelKind returns the classifier backend. Validate has already
// rejected unknown names, so a parse failure here falls back to CatBoost.
func (c *DashboardConfig) GetModelKind() model.Kind {
	if c.ModelKind != nil {
		if k, err := model.ParseKind(*c.ModelKind); err == nil {
			return k
		}
	}
	return model.KindCatBoost
}

// ArtifactPaths assembles the paths handed to model.LoadArtifacts.
func (c *DashboardConfig) ArtifactPaths() model.Paths {
	return model.Paths{
		Dir:     c.GetArtifactDir(),
		Scaler:  c.GetScalerPath(),
		Encoder: c.GetEncoderPath(),
		Model:   c.GetModelPath(),
		Kind:    c.GetModelKind(),
	}
}

func (c *DashboardConfig) GetTitle() string {
	return stringOr(c.Title, defaultTitle)
}

func (c *DashboardConfig) GetDescription() string {
	return stringOr(c.Description, defaultDescription)
}

// GetModelLabel names the classifier in headings, derived from the kind
// when unset.
func (c *DashboardConfig) GetModelLabel() string {
	if c.ModelLabel != nil {
		return *c.ModelLabel
	}
	if c.GetModelKind() == model.KindSequence {
		return "LSTM"
	}
	return "CatBoost"
}

func (c *DashboardConfig) GetBannerDate() bool {
	return c.BannerDate != nil && *c.BannerDate
}

func (c *DashboardConfig) GetDateLayout() string {
	return stringOr(c.DateLayout, defaultDateLayout)
}

func (c *DashboardConfig) GetTimezone() string {
	return stringOr(c.Timezone, timeutil.DefaultTimezone)
}

// GetHistoryLimit caps the points plotted in the history charts. Zero means
// no limit.
func (c *DashboardConfig) GetHistoryLimit() int {
	if c.HistoryLimit != nil {
		return *c.HistoryLimit
	}
	return defaultHistoryLimit
}

func (c *DashboardConfig) GetUnits() Units {
	if c.Units != nil {
		return *c.Units
	}
	return Units{PM: defaultPMUnit, CO: defaultCOUnit}
}

func stringOr(v *string, def string) string {
	if v != nil && *v != "" {
		return *v
	}
	return def
}
