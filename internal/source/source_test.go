package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/airquality.report/internal/httputil"
	"github.com/banshee-data/airquality.report/internal/reading"
	"github.com/banshee-data/airquality.report/internal/testutil"
)

func TestSheetSourceFetch(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, testutil.SheetCSV)
	src := NewSheetSource("https://sheet.example/export?format=csv", mock)

	table, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, table.Len())
	assert.Equal(t, []string{"Timestamp", "PM2.5", "PM10", "CO"}, table.Columns)

	latest, ok := table.Latest()
	require.True(t, ok)
	assert.Equal(t, reading.Reading{PM25: 100, PM10: 150, CO: 12000}, latest.Reading)

	req := mock.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "format=csv", req.URL.RawQuery)
	assert.Equal(t, "sheet", src.Name())
}

func TestSheetSourceErrors(t *testing.T) {
	tests := []struct {
		name   string
		mock   *httputil.MockHTTPClient
		status bool
	}{
		{"not found", httputil.NewMockHTTPClient().AddResponse(http.StatusNotFound, "no such sheet"), true},
		{"server error", httputil.NewMockHTTPClient().AddResponse(http.StatusInternalServerError, ""), true},
		{"transport", httputil.NewMockHTTPClient().AddErrorResponse(errors.New("dial tcp: refused")), false},
		{"bad csv", httputil.NewMockHTTPClient().AddResponse(http.StatusOK, "Timestamp,PM10\nx,1\n"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSheetSource("https://sheet.example", tt.mock).Fetch(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.status, errors.Is(err, ErrStatus), "got %v", err)
		})
	}
}

// sizedExport builds a CSV export of exactly size bytes whose last row is
// the manual defaults.
func sizedExport(size int) string {
	var b strings.Builder
	b.WriteString("Timestamp,PM2.5,PM10,CO\n")
	row := "2025-06-01 08:00:00,12.5,20,350\n"
	last := ",100,150,12000\n"
	for b.Len()+len(row)+len(last)+1 < size {
		b.WriteString(row)
	}
	b.WriteString(strings.Repeat("x", size-b.Len()-len(last)))
	b.WriteString(last)
	return b.String()
}

func TestSheetSourceBodyLimit(t *testing.T) {
	body := sizedExport(maxBody)
	require.Len(t, body, maxBody)
	table, err := NewSheetSource("https://sheet.example", httputil.NewMockHTTPClient().AddResponse(http.StatusOK, body)).
		Fetch(context.Background())
	require.NoError(t, err)
	latest, ok := table.Latest()
	require.True(t, ok)
	assert.Equal(t, reading.Reading{PM25: 100, PM10: 150, CO: 12000}, latest.Reading)

	// One byte over the cap must fail rather than parse a truncated last row.
	body = sizedExport(maxBody + 3)
	_, err = NewSheetSource("https://sheet.example", httputil.NewMockHTTPClient().AddResponse(http.StatusOK, body)).
		Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestSheetSourceMissingColumn(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, "Timestamp,PM10,CO\nx,1,2\n")
	_, err := NewSheetSource("https://sheet.example", mock).Fetch(context.Background())
	assert.ErrorIs(t, err, reading.ErrMissingColumn)
}

func TestSheetSourceOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(testutil.SheetCSV))
	}))
	defer srv.Close()

	src := NewSheetSource(srv.URL, nil)
	assert.Equal(t, srv.URL, src.URL())
	table, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, table.Len())
}

func TestSheetSourceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSheetSource("https://sheet.example", httputil.NewMockHTTPClient()).Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileSource(t *testing.T) {
	path := testutil.WriteFile(t, "readings.csv", testutil.SheetCSV)
	src := NewFileSource(path)
	assert.Equal(t, "file", src.Name())

	table, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, table.Len())

	_, err = NewFileSource(path + ".missing").Fetch(context.Background())
	assert.Error(t, err)
}
