package weibo

import (
	"bytes"
	"context"
	"errors"
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
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Weibo.Cookie = "SUB=test-cookie"
	cfg.Weibo.RequestTimeout = 5 * time.Second
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, rt *mockRoundTripper) *Client {
	t.Helper()
	client := NewClient(testConfig(), nil, logger.NewTestLogger())
	client.SetHTTPClient(&http.Client{Transport: rt})
	return client
}

const pageBody = `{
	"ok": 1,
	"data": {
		"cardlistInfo": {"total": 120, "page": 2},
		"cards": [
			{"card_type": 9, "mblog": {"mid": "100", "created_at": "2024-05-01", "text": "first post", "user": {"id": 1, "screen_name": "alice"}}},
			{"card_type": 11, "card_group": [
				{"card_type": 9, "mblog": {"mid": "101", "created_at": "2024-05-01", "text": "nested post"}}
			]},
			{"card_type": 7}
		]
	}
}`

func TestFetchPageSuccess(t *testing.T) {
	rt := &mockRoundTripper{
		roundTrip: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, pageBody), nil
		},
	}
	client := newTestClient(t, rt)

	outcome := client.FetchPage(context.Background(), "https://m.weibo.cn/api/container/getIndex?page=1")

	require.Equal(t, StatusSuccess, outcome.Status)
	require.Len(t, outcome.Posts, 2)
	assert.Equal(t, "100", outcome.Posts[0].Mid)
	assert.Equal(t, "alice", outcome.Posts[0].ScreenName)
	assert.Equal(t, "101", outcome.Posts[1].Mid)
	assert.True(t, outcome.HasMore)
	assert.NoError(t, outcome.Err)

	require.Len(t, rt.requests, 1)
	req := rt.requests[0]
	assert.Equal(t, "SUB=test-cookie", req.Header.Get("Cookie"))
	assert.NotEmpty(t, req.Header.Get("User-Agent"))
	assert.Equal(t, refererURL, req.Header.Get("Referer"))
}

func TestFetchPageEndOfData(t *testing.T) {
	rt := &mockRoundTripper{
		roundTrip: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"ok": 0, "msg": "这里还没有内容"}`), nil
		},
	}
	client := newTestClient(t, rt)

	outcome := client.FetchPage(context.Background(), "https://m.weibo.cn/api/container/getIndex?page=3")

	assert.Equal(t, StatusEmpty, outcome.Status)
	assert.Empty(t, outcome.Posts)
	assert.NoError(t, outcome.Err)
	assert.Len(t, rt.requests, 1)
}

func TestFetchPageUnexpectedPayloadNotRetried(t *testing.T) {
	rt := &mockRoundTripper{
		roundTrip: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"ok": 0, "msg": "参数错误"}`), nil
		},
	}
	client := newTestClient(t, rt)

	outcome := client.FetchPage(context.Background(), "https://m.weibo.cn/api/container/getIndex?page=1")

	require.Equal(t, StatusFailed, outcome.Status)
	require.Error(t, outcome.Err)
	// Payload problems are permanent, exactly one request goes out
	assert.Len(t, rt.requests, 1)
}

func TestFetchPageMalformedJSON(t *testing.T) {
	rt := &mockRoundTripper{
		roundTrip: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `<html>login required</html>`), nil
		},
	}
	client := newTestClient(t, rt)

	outcome := client.FetchPage(context.Background(), "https://m.weibo.cn/api/container/getIndex?page=1")

	require.Equal(t, StatusFailed, outcome.Status)
	var apiErr *errs.Error
	require.ErrorAs(t, outcome.Err, &apiErr)
	assert.Equal(t, errs.ErrorTypeParsing, apiErr.Type)
	assert.Len(t, rt.requests, 1)
}

func TestFetchPageRetriesServerError(t *testing.T) {
	calls := 0
	rt := &mockRoundTripper{
		roundTrip: func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return jsonResponse(http.StatusInternalServerError, `{}`), nil
			}
			return jsonResponse(http.StatusOK, pageBody), nil
		},
	}
	client := newTestClient(t, rt)

	outcome := client.FetchPage(context.Background(), "https://m.weibo.cn/api/container/getIndex?page=1")

	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, 2, calls)
}

func TestFetchPageAuthErrorNotRetried(t *testing.T) {
	rt := &mockRoundTripper{
		roundTrip: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusForbidden, `{}`), nil
		},
	}
	client := newTestClient(t, rt)

	outcome := client.FetchPage(context.Background(), "https://m.weibo.cn/api/container/getIndex?page=1")

	require.Equal(t, StatusFailed, outcome.Status)
	var apiErr *errs.Error
	require.ErrorAs(t, outcome.Err, &apiErr)
	assert.Equal(t, errs.ErrorTypeAuth, apiErr.Type)
	assert.Len(t, rt.requests, 1)
}

func TestFetchPageExhaustsRetryBudget(t *testing.T) {
	rt := &mockRoundTripper{
		roundTrip: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection reset")
		},
	}
	client := newTestClient(t, rt)

	outcome := client.FetchPage(context.Background(), "https://m.weibo.cn/api/container/getIndex?page=1")

	require.Equal(t, StatusFailed, outcome.Status)
	require.Error(t, outcome.Err)
	assert.Len(t, rt.requests, 3)
}

func TestFetchPageContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rt := &mockRoundTripper{
		roundTrip: func(req *http.Request) (*http.Response, error) {
			return nil, ctx.Err()
		},
	}
	client := newTestClient(t, rt)

	outcome := client.FetchPage(ctx, "https://m.weibo.cn/api/container/getIndex?page=1")

	require.Equal(t, StatusFailed, outcome.Status)
	assert.ErrorIs(t, outcome.Err, context.Canceled)
	// Cancellation is terminal, the retry loop must not spin
	assert.LessOrEqual(t, len(rt.requests), 1)
}

func TestFetchPageZeroPostsWithOkResponse(t *testing.T) {
	rt := &mockRoundTripper{
		roundTrip: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"ok": 1, "data": {"cardlistInfo": {"total": 0, "page": 0}, "cards": []}}`), nil
		},
	}
	client := newTestClient(t, rt)

	outcome := client.FetchPage(context.Background(), "https://m.weibo.cn/api/container/getIndex?page=1")

	// An ok page with no posts is a success with an empty slice; the
	// page controller decides what an all-empty page means
	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Empty(t, outcome.Posts)
	assert.False(t, outcome.HasMore)
}
