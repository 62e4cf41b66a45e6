package collector

import (
	"time"

	"weibogeo/pkg/weibo"
)

// StopReason records why paging for a location ended. Every finished
// location has exactly one.
type StopReason string

const (
	// StopEmpty means the result set was exhausted: the API signalled
	// end of data, or a page carried no new posts.
	StopEmpty StopReason = "empty"
	// StopCap means the page cap was reached with data still flowing.
	StopCap StopReason = "page_cap"
	// StopError means a page failed after all escalation attempts.
	// Posts collected before the failure are preserved.
	StopError StopReason = "error"
	// StopCancelled means the run's context was cancelled mid-location.
	StopCancelled StopReason = "cancelled"
)

// LocationResult is the outcome of paging through one location.
type LocationResult struct {
	Location    string       `json:"location"`
	Coordinates string       `json:"coordinates,omitempty"`
	Posts       []weibo.Post `json:"posts"`
	// PagesFetched counts pages that produced a usable response,
	// never exceeding the configured page cap.
	PagesFetched int `json:"pages_fetched"`
	// Requests counts fetch attempts including outer escalation
	// retries; FailedRequests counts the ones that failed.
	Requests       int        `json:"requests"`
	FailedRequests int        `json:"failed_requests"`
	StopReason     StopReason `json:"stop_reason"`
	Err            error      `json:"-"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     time.Time  `json:"finished_at"`
}

// Failed reports whether the location ended in an error rather than a
// normal exhaustion or cap stop.
func (r *LocationResult) Failed() bool {
	return r.StopReason == StopError || r.StopReason == StopCancelled
}

func (r *LocationResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunSummary aggregates a whole collection run. A summary is valid even
// when the run was cancelled partway; it then covers the work done so
// far.
type RunSummary struct {
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Results    []*LocationResult `json:"results"`

	TotalPosts         int `json:"total_posts"`
	TotalRequests      int `json:"total_requests"`
	FailedRequests     int `json:"failed_requests"`
	LocationsCompleted int `json:"locations_completed"`
	LocationsFailed    int `json:"locations_failed"`
}

func (s *RunSummary) add(r *LocationResult) {
	s.Results = append(s.Results, r)
	s.TotalPosts += len(r.Posts)
	s.TotalRequests += r.Requests
	s.FailedRequests += r.FailedRequests
	if r.Failed() {
		s.LocationsFailed++
	} else {
		s.LocationsCompleted++
	}
}

func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// SuccessRate is the fraction of requests that succeeded, in [0, 1].
func (s *RunSummary) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalRequests-s.FailedRequests) / float64(s.TotalRequests)
}
