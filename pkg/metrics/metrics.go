// Package metrics defines the Prometheus collectors shared by the fetch
// client, the page controller and the geocoder. All collectors are
// registered on the default registry via promauto and exposed by the
// report server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts page fetch requests by outcome
	// (success, empty, failed).
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weibogeo_requests_total",
		Help: "Total number of page fetch requests by outcome",
	}, []string{"outcome"})

	// RequestDuration observes the duration of page fetches including
	// the fetch client's internal retries.
	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "weibogeo_request_duration_seconds",
		Help:    "Page fetch duration including internal retries",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// RetriesTotal counts retry attempts by error type.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weibogeo_retries_total",
		Help: "Total number of retry attempts by error type",
	}, []string{"error_type"})

	// PostsCollectedTotal counts posts kept after dedup, by location.
	PostsCollectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weibogeo_posts_collected_total",
		Help: "Total number of posts collected after dedup, by location",
	}, []string{"location"})

	// LocationsFinishedTotal counts finished locations by termination reason.
	LocationsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weibogeo_locations_finished_total",
		Help: "Locations finished by termination reason",
	}, []string{"reason"})

	// GeocodeCacheHits counts geocoder cache hits by layer (memory, redis).
	GeocodeCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weibogeo_geocode_cache_hits_total",
		Help: "Geocoder cache hits by layer",
	}, []string{"layer"})

	// GeocodeCacheMisses counts geocoder cache misses.
	GeocodeCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weibogeo_geocode_cache_misses_total",
		Help: "Geocoder cache misses",
	})
)
