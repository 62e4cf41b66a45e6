package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weibogeo/pkg/collector"
	"weibogeo/pkg/logger"
	"weibogeo/pkg/weibo"
)

func testDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"), logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleResult(location string, mids ...string) *collector.LocationResult {
	posts := make([]weibo.Post, 0, len(mids))
	for _, mid := range mids {
		posts = append(posts, weibo.Post{
			Mid:      mid,
			Text:     "post " + mid,
			Location: location,
		})
	}
	return &collector.LocationResult{
		Location:     location,
		Posts:        posts,
		PagesFetched: 1,
		Requests:     1,
		StopReason:   collector.StopEmpty,
		StartedAt:    time.Now().Add(-time.Minute),
		FinishedAt:   time.Now(),
	}
}

func TestSaveResultAndQuery(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	require.NoError(t, db.SaveResult(ctx, sampleResult("天安门", "1", "2", "3")))

	total, err := db.TotalPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	posts, err := db.PostsByLocation(ctx, "天安门", 10)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "天安门", posts[0].Location)
}

func TestSaveResultUpsertsByMid(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	require.NoError(t, db.SaveResult(ctx, sampleResult("外滩", "10", "11")))
	require.NoError(t, db.SaveResult(ctx, sampleResult("外滩", "11", "12")))

	total, err := db.TotalPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestLocationStats(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	require.NoError(t, db.SaveResult(ctx, sampleResult("A", "1", "2", "3")))
	require.NoError(t, db.SaveResult(ctx, sampleResult("B", "4")))

	stats, err := db.LocationStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, LocationStat{Location: "A", Posts: 3}, stats[0])
	assert.Equal(t, LocationStat{Location: "B", Posts: 1}, stats[1])
}

func TestSaveSummaryAndRecentRuns(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	summary := &collector.RunSummary{
		StartedAt:          time.Now().Add(-time.Hour),
		FinishedAt:         time.Now(),
		TotalPosts:         42,
		TotalRequests:      50,
		FailedRequests:     2,
		LocationsCompleted: 4,
		LocationsFailed:    1,
	}
	require.NoError(t, db.SaveSummary(ctx, summary))

	runs, err := db.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 42, runs[0].TotalPosts)
	assert.Equal(t, 1, runs[0].LocationsFailed)
	assert.False(t, runs[0].StartedAt.IsZero())
}

func TestStopReasonStats(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	require.NoError(t, db.SaveResult(ctx, sampleResult("A", "1")))
	require.NoError(t, db.SaveResult(ctx, sampleResult("B", "2")))

	failed := sampleResult("C", "3")
	failed.StopReason = collector.StopError
	failed.Err = assert.AnError
	require.NoError(t, db.SaveResult(ctx, failed))

	stats, err := db.StopReasonStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, StopReasonStat{Reason: string(collector.StopEmpty), Count: 2}, stats[0])
	assert.Equal(t, StopReasonStat{Reason: string(collector.StopError), Count: 1}, stats[1])
}

func TestTopPosts(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	result := sampleResult("D", "30", "31", "32")
	result.Posts[0].RepostsCount = 1
	result.Posts[1].CommentsCount = 100
	result.Posts[2].AttitudesCount = 10
	require.NoError(t, db.SaveResult(ctx, result))

	top, err := db.TopPosts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "31", top[0].Mid)
	assert.Equal(t, "32", top[1].Mid)
}

func TestSaveResultRecordsFailure(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	result := sampleResult("C", "20")
	result.StopReason = collector.StopError
	result.Err = assert.AnError
	result.FailedRequests = 3

	require.NoError(t, db.SaveResult(ctx, result))

	// Posts collected before the failure are stored
	total, err := db.TotalPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
