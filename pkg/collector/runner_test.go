package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weibogeo/pkg/config"
	"weibogeo/pkg/logger"
	"weibogeo/pkg/query"
)

type memorySink struct {
	results   []*LocationResult
	summaries []*RunSummary
}

func (m *memorySink) SaveResult(_ context.Context, r *LocationResult) error {
	m.results = append(m.results, r)
	return nil
}

func (m *memorySink) SaveSummary(_ context.Context, s *RunSummary) error {
	m.summaries = append(m.summaries, s)
	return nil
}

type memoryCheckpoints struct {
	done map[string]bool
}

func (m *memoryCheckpoints) Completed(location string) bool { return m.done[location] }

func (m *memoryCheckpoints) MarkCompleted(r *LocationResult) error {
	m.done[r.Location] = true
	return nil
}

func targetFor(location string) query.Target {
	return query.Target{
		Location: location,
		BaseURL:  "https://m.weibo.cn/api/container/getIndex?containerid=" + location,
	}
}

func TestRunContinuesAfterFailedLocation(t *testing.T) {
	f := newFakeFetcher(t)
	// The fake keys outcomes by page only, so across locations the
	// page-1 script is consumed in location order: A, then B, then C.
	// Escalation is disabled so B's failure takes exactly one call.
	f.script(1, postsPage("a1"), fetchFailure(), postsPage("c1"))
	f.script(2, endOfData(), endOfData())

	controller := testController(f, func(cfg *config.CollectorConfig) {
		cfg.MaxOuterRetries = 0
	})

	sink := &memorySink{}
	runner := NewRunner(controller, sink, nil, logger.NewTestLogger())

	summary := runner.Run(context.Background(),
		[]query.Target{targetFor("A"), targetFor("B"), targetFor("C")})

	require.Len(t, summary.Results, 3)
	assert.Equal(t, StopEmpty, summary.Results[0].StopReason)
	assert.Equal(t, StopError, summary.Results[1].StopReason)
	assert.Equal(t, StopEmpty, summary.Results[2].StopReason)

	assert.Equal(t, 2, summary.LocationsCompleted)
	assert.Equal(t, 1, summary.LocationsFailed)
	assert.Equal(t, 2, summary.TotalPosts)

	// Every location's result was persisted, including the failed one
	require.Len(t, sink.results, 3)
	require.Len(t, sink.summaries, 1)
	assert.Same(t, summary, sink.summaries[0])
}

func TestRunCancelledReturnsPartialSummary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	f := newFakeFetcher(t)
	f.script(1, postsPage("a1"))
	f.script(2, endOfData())

	controller := testController(f, func(cfg *config.CollectorConfig) {
		cfg.InterRequestDelay = 100 * time.Millisecond
	})
	runner := NewRunner(controller, nil, nil, logger.NewTestLogger())

	done := make(chan *RunSummary, 1)
	go func() {
		done <- runner.Run(ctx, []query.Target{targetFor("A"), targetFor("B"), targetFor("C")})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	summary := <-done
	assert.Less(t, len(summary.Results), 3)
	assert.False(t, summary.FinishedAt.IsZero())
}

func TestRunSkipsCheckpointedLocations(t *testing.T) {
	f := newFakeFetcher(t)
	f.script(1, postsPage("b1"))
	f.script(2, endOfData())

	controller := testController(f, nil)
	checkpoints := &memoryCheckpoints{done: map[string]bool{"A": true}}
	runner := NewRunner(controller, nil, checkpoints, logger.NewTestLogger())

	summary := runner.Run(context.Background(), []query.Target{targetFor("A"), targetFor("B")})

	require.Len(t, summary.Results, 1)
	assert.Equal(t, "B", summary.Results[0].Location)
	// B is now checkpointed for the next run
	assert.True(t, checkpoints.done["B"])
}

func TestRunFailedLocationNotCheckpointed(t *testing.T) {
	f := newFakeFetcher(t)
	f.script(1, fetchFailure())

	controller := testController(f, nil)
	checkpoints := &memoryCheckpoints{done: map[string]bool{}}
	runner := NewRunner(controller, nil, checkpoints, logger.NewTestLogger())

	runner.Run(context.Background(), []query.Target{targetFor("A")})

	assert.False(t, checkpoints.done["A"])
}

func TestRunSummaryRates(t *testing.T) {
	s := &RunSummary{}
	assert.Zero(t, s.SuccessRate())

	s.add(&LocationResult{Requests: 8, FailedRequests: 2, StopReason: StopEmpty})
	assert.InDelta(t, 0.75, s.SuccessRate(), 1e-9)
	assert.Equal(t, 1, s.LocationsCompleted)
}
