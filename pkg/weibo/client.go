package weibo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"weibogeo/pkg/config"
	errs "weibogeo/pkg/errors"
	"weibogeo/pkg/logger"
	"weibogeo/pkg/metrics"
	"weibogeo/pkg/ratelimit"
	"weibogeo/pkg/retry"
)

const (
	defaultUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"
	refererURL       = "https://m.weibo.cn/"

	maxResponseSize = 10 << 20
)

// Client fetches result pages from the mobile container API. It owns
// transport-level concerns: headers, per-request rate pacing, and the
// inner retry loop for transient failures. It never decides whether to
// continue paging; that is the page controller's job.
type Client struct {
	httpClient *http.Client
	limiter    ratelimit.Limiter
	retryCfg   *retry.Config
	cookie     string
	userAgent  string
	log        logger.Logger
}

// NewClient builds a client from configuration. limiter may be nil, in
// which case requests are not paced.
func NewClient(cfg *config.Config, limiter ratelimit.Limiter, log logger.Logger) *Client {
	ua := cfg.Weibo.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	if limiter == nil {
		limiter = ratelimit.NewPacer(0)
	}
	retryCfg := retry.FromConfig(&cfg.Retry, log)
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		var apiErr *errs.Error
		errType := errs.ErrorTypeUnknown
		if errors.As(err, &apiErr) {
			errType = apiErr.Type
		}
		metrics.RetriesTotal.WithLabelValues(string(errType)).Inc()
		if errType == errs.ErrorTypeRateLimit {
			logger.LogRateLimit("weibo_api", int(delay.Seconds()))
		}
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Weibo.RequestTimeout},
		limiter:    limiter,
		retryCfg:   retryCfg,
		cookie:     cfg.Weibo.Cookie,
		userAgent:  ua,
		log:        log,
	}
}

// SetHTTPClient replaces the underlying HTTP client, used by tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// FetchPage retrieves and parses one result page. The returned outcome
// always has exactly one of three statuses: StatusSuccess with the
// page's posts, StatusEmpty when the API signals the end of the result
// set, or StatusFailed once the inner retry budget is exhausted.
func (c *Client) FetchPage(ctx context.Context, pageURL string) Outcome {
	start := time.Now()

	cfg := *c.retryCfg
	cfg.Context = ctx
	resp, err := retry.DoWithResult(func() (Response, error) {
		return c.fetchOnce(ctx, pageURL)
	}, &cfg)
	metrics.RequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("failed").Inc()
		return failedOutcome(err)
	}

	if resp.Ok != 1 {
		if resp.Msg == endOfDataMsg {
			metrics.RequestsTotal.WithLabelValues("empty").Inc()
			return emptyOutcome()
		}
		metrics.RequestsTotal.WithLabelValues("failed").Inc()
		c.log.WarnWithFields("unexpected api response", map[string]interface{}{
			"ok":  resp.Ok,
			"msg": resp.Msg,
			"url": pageURL,
		})
		return failedOutcome(errs.New(errs.ErrorTypeParsing, resp.Ok,
			"api returned ok=%d msg=%q", resp.Ok, resp.Msg))
	}

	posts := extractPosts(resp.Data.Cards)
	hasMore := resp.Data.CardlistInfo.Page > 0 || len(posts) > 0
	metrics.RequestsTotal.WithLabelValues("success").Inc()
	return successOutcome(posts, hasMore)
}

// fetchOnce performs a single HTTP round trip and JSON decode. Errors
// are typed so the retry policy can tell transient transport and server
// failures apart from permanent auth and payload problems.
func (c *Client) fetchOnce(ctx context.Context, pageURL string) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Response{}, errs.New(errs.ErrorTypeParsing, 0, "building request: %v", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", refererURL)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, errs.New(errs.ErrorTypeNetwork, 0, "request failed: %v", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		errType := errs.TypeForStatusCode(httpResp.StatusCode)
		return Response{}, errs.New(errType, httpResp.StatusCode,
			"unexpected status %d", httpResp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return Response{}, errs.New(errs.ErrorTypeNetwork, 0, "reading body: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return Response{}, errs.New(errs.ErrorTypeParsing, 0, "decoding response: %v", err)
	}
	return resp, nil
}
