package collector

import (
	"context"
	"time"

	"weibogeo/pkg/logger"
	"weibogeo/pkg/query"
)

// Sink receives collected data as the run progresses. Implementations
// persist to a database; a nil sink discards nothing but keeps results
// in memory only.
type Sink interface {
	SaveResult(ctx context.Context, result *LocationResult) error
	SaveSummary(ctx context.Context, summary *RunSummary) error
}

// Checkpointer tracks which locations a run has finished so an
// interrupted run can resume without refetching them.
type Checkpointer interface {
	Completed(location string) bool
	MarkCompleted(result *LocationResult) error
}

// Runner walks a list of targets sequentially and aggregates their
// results. A failed location never aborts the run; its error is folded
// into the summary and the runner moves on.
type Runner struct {
	controller  *Controller
	sink        Sink
	checkpoints Checkpointer
	log         logger.Logger
}

// NewRunner builds a runner. sink and checkpoints may be nil.
func NewRunner(controller *Controller, sink Sink, checkpoints Checkpointer, log logger.Logger) *Runner {
	return &Runner{
		controller:  controller,
		sink:        sink,
		checkpoints: checkpoints,
		log:         log,
	}
}

// Run collects every target in order and returns the aggregated
// summary. Cancellation stops the walk after the current location; the
// returned summary covers the work done up to that point and is always
// usable.
func (r *Runner) Run(ctx context.Context, targets []query.Target) *RunSummary {
	summary := &RunSummary{StartedAt: time.Now()}

	r.log.InfoWithFields("collection run starting", map[string]interface{}{
		"locations": len(targets),
	})

	for _, target := range targets {
		if ctx.Err() != nil {
			r.log.Warn("run cancelled, returning partial summary")
			break
		}

		if r.checkpoints != nil && r.checkpoints.Completed(target.Location) {
			r.log.InfoWithFields("skipping completed location", map[string]interface{}{
				"location": target.Location,
			})
			continue
		}

		result := r.controller.Collect(ctx, target)
		summary.add(result)

		if r.sink != nil {
			if err := r.sink.SaveResult(ctx, result); err != nil {
				r.log.ErrorWithFields("persisting location result failed", map[string]interface{}{
					"location": target.Location,
					"error":    err.Error(),
				})
			}
		}
		if r.checkpoints != nil && !result.Failed() {
			if err := r.checkpoints.MarkCompleted(result); err != nil {
				r.log.WarnWithFields("checkpoint update failed", map[string]interface{}{
					"location": target.Location,
					"error":    err.Error(),
				})
			}
		}

		r.log.InfoWithFields("location finished", map[string]interface{}{
			"location": target.Location,
			"reason":   string(result.StopReason),
			"pages":    result.PagesFetched,
			"posts":    len(result.Posts),
		})
	}

	summary.FinishedAt = time.Now()

	if r.sink != nil {
		if err := r.sink.SaveSummary(ctx, summary); err != nil {
			r.log.ErrorWithFields("persisting run summary failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	r.log.InfoWithFields("collection run finished", map[string]interface{}{
		"locations_completed": summary.LocationsCompleted,
		"locations_failed":    summary.LocationsFailed,
		"total_posts":         summary.TotalPosts,
		"total_requests":      summary.TotalRequests,
		"success_rate":        summary.SuccessRate(),
		"duration":            summary.Duration().String(),
	})
	return summary
}
