package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weibogeo/pkg/collector"
	"weibogeo/pkg/logger"
	"weibogeo/pkg/storage"
	"weibogeo/pkg/weibo"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "report.db"), logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.SaveResult(context.Background(), &collector.LocationResult{
		Location: "天安门",
		Posts: []weibo.Post{
			{Mid: "1", Text: "one", Location: "天安门"},
			{Mid: "2", Text: "two", Location: "天安门"},
		},
		PagesFetched: 1,
		Requests:     1,
		StopReason:   collector.StopEmpty,
		StartedAt:    time.Now().Add(-time.Minute),
		FinishedAt:   time.Now(),
	}))
	require.NoError(t, db.SaveSummary(context.Background(), &collector.RunSummary{
		StartedAt:          time.Now().Add(-time.Minute),
		FinishedAt:         time.Now(),
		TotalPosts:         2,
		TotalRequests:      2,
		LocationsCompleted: 1,
	}))

	return NewServer(db, ":0", logger.NewTestLogger())
}

func TestHealthz(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSummaryEndpoint(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		TotalPosts int                    `json:"total_posts"`
		Locations  []storage.LocationStat `json:"locations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.TotalPosts)
	require.Len(t, body.Locations, 1)
	assert.Equal(t, "天安门", body.Locations[0].Location)
}

func TestLocationPostsEndpoint(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/locations/%E5%A4%A9%E5%AE%89%E9%97%A8", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var posts []weibo.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posts))
	assert.Len(t, posts, 2)
}

func TestLocationPostsLimitValidation(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/locations/x?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTopPostsEndpoint(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posts/top?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var posts []weibo.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posts))
	assert.Len(t, posts, 1)
}

func TestTopPostsLimitValidation(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posts/top?limit=1000", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestDashboardRendersCharts(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "echarts")
}
