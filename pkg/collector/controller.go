package collector

import (
	"context"
	"time"

	"weibogeo/pkg/config"
	"weibogeo/pkg/logger"
	"weibogeo/pkg/metrics"
	"weibogeo/pkg/query"
	"weibogeo/pkg/retry"
	"weibogeo/pkg/weibo"
)

// PageFetcher fetches one result page. *weibo.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) weibo.Outcome
}

// Controller pages through one location's result set and decides when
// to stop. It drives the fetcher page by page, dedups posts within the
// location, and escalates failed pages a bounded number of times before
// giving the location up.
type Controller struct {
	fetcher PageFetcher
	cfg     config.CollectorConfig
	log     logger.Logger
}

// NewController builds a page controller.
func NewController(fetcher PageFetcher, cfg config.CollectorConfig, log logger.Logger) *Controller {
	if cfg.PageCap <= 0 {
		cfg.PageCap = 100
	}
	return &Controller{fetcher: fetcher, cfg: cfg, log: log}
}

// Collect pages through the target until the result set is exhausted,
// the page cap is reached, a page fails permanently, or the context is
// cancelled. The result always holds every post collected before the
// stop, whatever the stop reason.
func (c *Controller) Collect(ctx context.Context, target query.Target) *LocationResult {
	result := &LocationResult{
		Location:    target.Location,
		Coordinates: target.Coordinates,
		StartedAt:   time.Now(),
	}
	defer func() {
		result.FinishedAt = time.Now()
		metrics.LocationsFinishedTotal.WithLabelValues(string(result.StopReason)).Inc()
	}()

	seen := make(map[string]struct{})

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			result.StopReason = StopCancelled
			result.Err = err
			return result
		}

		pageURL, err := query.PageURL(target.BaseURL, page)
		if err != nil {
			result.StopReason = StopError
			result.Err = err
			return result
		}

		outcome := c.fetchWithEscalation(ctx, target.Location, page, pageURL, result)
		switch outcome.Status {
		case weibo.StatusEmpty:
			result.StopReason = StopEmpty
			c.log.InfoWithFields("result set exhausted", map[string]interface{}{
				"location": target.Location,
				"page":     page,
				"posts":    len(result.Posts),
			})
			return result

		case weibo.StatusFailed:
			if ctx.Err() != nil {
				result.StopReason = StopCancelled
			} else {
				result.StopReason = StopError
			}
			result.Err = outcome.Err
			c.log.ErrorWithFields("giving up on location", map[string]interface{}{
				"location": target.Location,
				"page":     page,
				"posts":    len(result.Posts),
				"error":    outcome.Err.Error(),
			})
			return result
		}

		result.PagesFetched++

		fresh := 0
		for _, post := range outcome.Posts {
			id := post.Identity()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			post.Location = target.Location
			post.Coordinates = result.Coordinates
			result.Posts = append(result.Posts, post)
			fresh++
		}
		if fresh > 0 {
			metrics.PostsCollectedTotal.WithLabelValues(target.Location).Add(float64(fresh))
		}
		c.log.DebugWithFields("page fetched", map[string]interface{}{
			"location": target.Location,
			"page":     page,
			"new":      fresh,
			"total":    len(result.Posts),
		})

		// A page with nothing new means the feed has started repeating
		// itself; treat it like the end of the result set
		if fresh == 0 {
			result.StopReason = StopEmpty
			return result
		}

		if page >= c.cfg.PageCap {
			result.StopReason = StopCap
			c.log.InfoWithFields("page cap reached", map[string]interface{}{
				"location": target.Location,
				"pages":    result.PagesFetched,
				"posts":    len(result.Posts),
			})
			return result
		}

		if err := retry.Wait(ctx, c.cfg.InterRequestDelay); err != nil {
			result.StopReason = StopCancelled
			result.Err = err
			return result
		}
	}
}

// fetchWithEscalation runs the fetcher for one page, then retries the
// whole fetch up to MaxOuterRetries more times when it fails. The
// fetcher already retries transient errors internally; this outer layer
// is a last resort for pages that keep failing through whole fetch
// cycles.
func (c *Controller) fetchWithEscalation(ctx context.Context, location string, page int, pageURL string, result *LocationResult) weibo.Outcome {
	var outcome weibo.Outcome
	for attempt := 0; attempt <= c.cfg.MaxOuterRetries; attempt++ {
		if attempt > 0 {
			c.log.WarnWithFields("escalating failed page", map[string]interface{}{
				"location": location,
				"page":     page,
				"attempt":  attempt,
				"of":       c.cfg.MaxOuterRetries,
			})
			if err := retry.Wait(ctx, c.cfg.OuterRetryDelay); err != nil {
				return weibo.Outcome{Status: weibo.StatusFailed, Err: err}
			}
		}

		result.Requests++
		outcome = c.fetcher.FetchPage(ctx, pageURL)
		if outcome.Status != weibo.StatusFailed {
			return outcome
		}
		result.FailedRequests++
		if ctx.Err() != nil {
			return outcome
		}
	}
	return outcome
}
