// Package source fetches the reading table from where it lives: the
// published spreadsheet export or a local CSV file.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/banshee-data/airquality.report/internal/httputil"
	"github.com/banshee-data/airquality.report/internal/reading"
)

// DefaultSheetURL is the CSV export of the sensor spreadsheet.
const DefaultSheetURL = "https://docs.google.com/spreadsheets/d/1o6Adwn28BXco-6OrWqKJfg973rNksENoM3naJh4joYE/export?format=csv"

var (
	// ErrStatus is returned when the sheet responds with a non-2xx status.
	ErrStatus = errors.New("unexpected status from sheet")
	// ErrTooLarge is returned when the export exceeds maxBody.
	ErrTooLarge = errors.New("sheet export too large")
)

// maxBody caps the size of a fetched sheet export.
const maxBody = 32 << 20

// Source yields the whole reading table on every call.
type Source interface {
	Fetch(ctx context.Context) (*reading.Table, error)
	Name() string
}

// SheetSource reads a spreadsheet's CSV export over HTTP.
type SheetSource struct {
	url    string
	client httputil.HTTPClient
}

// NewSheetSource returns a source for url. A nil client uses a standard
// client with a 30 second timeout.
func NewSheetSource(url string, client httputil.HTTPClient) *SheetSource {
	if client == nil {
		client = httputil.NewStandardClient(nil, 30*time.Second)
	}
	return &SheetSource{url: url, client: client}
}

// Name implements Source.
func (s *SheetSource) Name() string { return "sheet" }

// URL is the export address being polled.
func (s *SheetSource) URL() string { return s.url }

// Fetch downloads and parses the export. Failures are not retried.
func (s *SheetSource) Fetch(ctx context.Context) (*reading.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build sheet request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(body) > maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBody)
	}
	table, err := reading.ParseCSV(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse sheet: %w", err)
	}
	return table, nil
}

// FileSource re-reads a local CSV file on every fetch.
type FileSource struct {
	path string
}

// NewFileSource returns a source for the CSV at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name implements Source.
func (f *FileSource) Name() string { return "file" }

// Fetch reads and parses the file.
func (f *FileSource) Fetch(ctx context.Context) (*reading.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.path, err)
	}
	defer file.Close()

	table, err := reading.ParseCSV(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	return table, nil
}
