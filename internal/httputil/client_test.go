package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardClient(t *testing.T) {
	custom := &http.Client{}
	assert.Same(t, custom, NewStandardClient(custom, time.Second).Client)

	c := NewStandardClient(nil, 5*time.Second)
	assert.Equal(t, 5*time.Second, c.Timeout)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "PM2.5,PM10,CO\n")
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "PM2.5,PM10,CO\n", string(body))
}

func TestMockHTTPClientQueue(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "first").
		AddResponse(http.StatusNotFound, "missing").
		AddErrorResponse(errors.New("connection reset"))

	do := func() (*http.Response, error) {
		req, err := http.NewRequest(http.MethodGet, "http://sheet.example/export", nil)
		require.NoError(t, err)
		return mock.Do(req)
	}

	resp, err := do()
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "first", string(body))
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	resp, err = do()
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, err = do()
	assert.EqualError(t, err, "connection reset")

	// Drained queue falls back to an empty 200.
	resp, err = do()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 4, mock.RequestCount())
	assert.Equal(t, "sheet.example", mock.LastRequest().URL.Host)
}

func TestMockHTTPClientFallbackAndContext(t *testing.T) {
	mock := NewMockHTTPClient()
	assert.Nil(t, mock.LastRequest())
	mock.Fallback = &MockResponse{StatusCode: http.StatusServiceUnavailable}

	req, err := http.NewRequest(http.MethodGet, "http://sheet.example", nil)
	require.NoError(t, err)
	resp, err := mock.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = mock.Do(req.WithContext(ctx))
	assert.ErrorIs(t, err, context.Canceled)
}
