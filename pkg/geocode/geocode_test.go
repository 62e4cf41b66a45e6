package geocode

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weibogeo/pkg/config"
	errs "weibogeo/pkg/errors"
	"weibogeo/pkg/logger"
)

type mockRoundTripper struct {
	roundTrip func(*http.Request) (*http.Response, error)
	requests  []*http.Request
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.requests = append(m.requests, req)
	return m.roundTrip(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func testGeocoder(t *testing.T, rt *mockRoundTripper, cache Cache) *Geocoder {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Geocode.AmapKey = "test-key"
	cfg.Geocode.City = "北京"
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	g := New(cfg, cache, logger.NewTestLogger())
	g.SetHTTPClient(&http.Client{Transport: rt})
	return g
}

func TestParseCoordinates(t *testing.T) {
	coords, err := ParseCoordinates("116.397428,39.90923")
	require.NoError(t, err)
	assert.InDelta(t, 116.397428, coords.Lon, 1e-9)
	assert.InDelta(t, 39.90923, coords.Lat, 1e-9)
	assert.Equal(t, "116.397428,39.90923", coords.String())

	for _, bad := range []string{"", "116.4", "a,b", "200,10", "116.4,100"} {
		_, err := ParseCoordinates(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestResolveSuccess(t *testing.T) {
	rt := &mockRoundTripper{
		roundTrip: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK,
				`{"status":"1","info":"OK","count":"1","geocodes":[{"location":"116.403875,39.915168"}]}`), nil
		},
	}
	g := testGeocoder(t, rt, nil)

	coords, err := g.Resolve(context.Background(), "天安门")
	require.NoError(t, err)
	assert.Equal(t, "116.403875,39.915168", coords.String())

	require.Len(t, rt.requests, 1)
	q := rt.requests[0].URL.Query()
	assert.Equal(t, "test-key", q.Get("key"))
	assert.Equal(t, "天安门", q.Get("address"))
	assert.Equal(t, "北京", q.Get("city"))
}

func TestResolveUsesCache(t *testing.T) {
	calls := 0
	rt := &mockRoundTripper{
		roundTrip: func(req *http.Request) (*http.Response, error) {
			calls++
			return jsonResponse(http.StatusOK,
				`{"status":"1","geocodes":[{"location":"121.473701,31.230416"}]}`), nil
		},
	}
	g := testGeocoder(t, rt, NewMemoryCache(time.Minute))

	first, err := g.Resolve(context.Background(), "外滩")
	require.NoError(t, err)
	second, err := g.Resolve(context.Background(), "外滩")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestResolveNotFound(t *testing.T) {
	rt := &mockRoundTripper{
		roundTrip: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"status":"1","count":"0","geocodes":[]}`), nil
		},
	}
	g := testGeocoder(t, rt, nil)

	_, err := g.Resolve(context.Background(), "不存在的地方xyzzy")
	require.Error(t, err)
	var apiErr *errs.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errs.ErrorTypeNotFound, apiErr.Type)
	// not_found is permanent, no retry
	assert.Len(t, rt.requests, 1)
}

func TestResolveAllKeepsUnresolved(t *testing.T) {
	rt := &mockRoundTripper{
		roundTrip: func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("address") == "未知地" {
				return jsonResponse(http.StatusOK, `{"status":"1","geocodes":[]}`), nil
			}
			return jsonResponse(http.StatusOK,
				`{"status":"1","geocodes":[{"location":"113.264385,23.129112"}]}`), nil
		},
	}
	g := testGeocoder(t, rt, nil)

	locations, err := g.ResolveAll(context.Background(), []string{"广州塔", "未知地"})
	require.NoError(t, err)
	require.Len(t, locations, 2)
	assert.True(t, locations[0].Resolved())
	assert.False(t, locations[1].Resolved())
	assert.Equal(t, "未知地", locations[1].Name)
}

func TestMemoryCacheTTL(t *testing.T) {
	cache := NewMemoryCache(10 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", Coordinates{Lon: 1, Lat: 2}))
	coords, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Coordinates{Lon: 1, Lat: 2}, coords)

	time.Sleep(20 * time.Millisecond)
	_, err = cache.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
