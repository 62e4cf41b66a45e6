package collector

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weibogeo/pkg/config"
	errs "weibogeo/pkg/errors"
	"weibogeo/pkg/logger"
	"weibogeo/pkg/query"
	"weibogeo/pkg/weibo"
)

// fakeFetcher replays scripted outcomes per page. When a page's script
// runs out its last outcome repeats, which models a page that keeps
// failing the same way.
type fakeFetcher struct {
	t        *testing.T
	outcomes map[int][]weibo.Outcome
	calls    map[int]int
}

func newFakeFetcher(t *testing.T) *fakeFetcher {
	return &fakeFetcher{
		t:        t,
		outcomes: make(map[int][]weibo.Outcome),
		calls:    make(map[int]int),
	}
}

func (f *fakeFetcher) script(page int, outcomes ...weibo.Outcome) {
	f.outcomes[page] = append(f.outcomes[page], outcomes...)
}

func (f *fakeFetcher) FetchPage(_ context.Context, pageURL string) weibo.Outcome {
	u, err := url.Parse(pageURL)
	require.NoError(f.t, err)
	page, err := strconv.Atoi(u.Query().Get("page"))
	require.NoError(f.t, err)

	f.calls[page]++
	queue := f.outcomes[page]
	require.NotEmpty(f.t, queue, "no scripted outcome for page %d", page)
	idx := f.calls[page] - 1
	if idx >= len(queue) {
		idx = len(queue) - 1
	}
	return queue[idx]
}

func postsPage(mids ...string) weibo.Outcome {
	posts := make([]weibo.Post, 0, len(mids))
	for _, mid := range mids {
		posts = append(posts, weibo.Post{Mid: mid, Text: "post " + mid})
	}
	return weibo.Outcome{Status: weibo.StatusSuccess, Posts: posts, HasMore: true}
}

func endOfData() weibo.Outcome {
	return weibo.Outcome{Status: weibo.StatusEmpty}
}

func fetchFailure() weibo.Outcome {
	return weibo.Outcome{
		Status: weibo.StatusFailed,
		Err:    errs.New(errs.ErrorTypeServerError, 502, "bad gateway"),
	}
}

func testTarget() query.Target {
	return query.Target{
		Location:    "天安门",
		Coordinates: "116.397428,39.90923",
		BaseURL:     "https://m.weibo.cn/api/container/getIndex?containerid=test",
	}
}

func testController(f *fakeFetcher, mutate func(*config.CollectorConfig)) *Controller {
	cfg := config.CollectorConfig{
		PageCap:           100,
		InterRequestDelay: time.Millisecond,
		MaxOuterRetries:   2,
		OuterRetryDelay:   time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewController(f, cfg, logger.NewTestLogger())
}

func TestCollectUntilResultSetExhausted(t *testing.T) {
	f := newFakeFetcher(t)
	f.script(1, postsPage("1", "2"))
	f.script(2, postsPage("3", "4"))
	f.script(3, postsPage("5"))
	f.script(4, endOfData())

	result := testController(f, nil).Collect(context.Background(), testTarget())

	assert.Equal(t, StopEmpty, result.StopReason)
	assert.Equal(t, 3, result.PagesFetched)
	assert.Len(t, result.Posts, 5)
	assert.NoError(t, result.Err)
	// Context carried onto every post
	for _, p := range result.Posts {
		assert.Equal(t, "天安门", p.Location)
		assert.Equal(t, "116.397428,39.90923", p.Coordinates)
	}
}

func TestCollectEmptyFirstPage(t *testing.T) {
	f := newFakeFetcher(t)
	f.script(1, endOfData())

	result := testController(f, nil).Collect(context.Background(), testTarget())

	assert.Equal(t, StopEmpty, result.StopReason)
	assert.Equal(t, 0, result.PagesFetched)
	assert.Empty(t, result.Posts)
}

func TestCollectZeroPostPageEndsLocation(t *testing.T) {
	f := newFakeFetcher(t)
	f.script(1, postsPage("1"))
	f.script(2, weibo.Outcome{Status: weibo.StatusSuccess})

	result := testController(f, nil).Collect(context.Background(), testTarget())

	// An ok page carrying no posts means the feed ran dry without the
	// explicit end-of-data signal
	assert.Equal(t, StopEmpty, result.StopReason)
	assert.Len(t, result.Posts, 1)
}

func TestCollectStopsAtPageCap(t *testing.T) {
	f := newFakeFetcher(t)
	for page := 1; page <= 10; page++ {
		f.script(page, postsPage(strconv.Itoa(page)))
	}

	result := testController(f, func(cfg *config.CollectorConfig) {
		cfg.PageCap = 5
	}).Collect(context.Background(), testTarget())

	assert.Equal(t, StopCap, result.StopReason)
	assert.Equal(t, 5, result.PagesFetched)
	assert.Len(t, result.Posts, 5)
	// Page 6 never requested
	assert.Zero(t, f.calls[6])
}

func TestCollectKeepsPostsWhenPageFails(t *testing.T) {
	f := newFakeFetcher(t)
	f.script(1, postsPage("1", "2"))
	f.script(2, postsPage("3"))
	f.script(3, fetchFailure())

	result := testController(f, nil).Collect(context.Background(), testTarget())

	assert.Equal(t, StopError, result.StopReason)
	require.Error(t, result.Err)
	assert.Len(t, result.Posts, 3)
	assert.Equal(t, 2, result.PagesFetched)
	// One initial attempt plus MaxOuterRetries escalations
	assert.Equal(t, 3, f.calls[3])
	assert.Equal(t, 3, result.FailedRequests)
	assert.Equal(t, 5, result.Requests)
}

func TestCollectEscalationRecovers(t *testing.T) {
	f := newFakeFetcher(t)
	f.script(1, postsPage("1"))
	f.script(2, fetchFailure(), fetchFailure(), postsPage("2"))
	f.script(3, endOfData())

	result := testController(f, nil).Collect(context.Background(), testTarget())

	assert.Equal(t, StopEmpty, result.StopReason)
	assert.Len(t, result.Posts, 2)
	assert.Equal(t, 3, f.calls[2])
	assert.Equal(t, 2, result.FailedRequests)
}

func TestCollectDeduplicatesAcrossPages(t *testing.T) {
	f := newFakeFetcher(t)
	f.script(1, postsPage("1", "2", "3"))
	f.script(2, postsPage("2", "3", "4"))
	f.script(3, postsPage("3", "4"))

	result := testController(f, nil).Collect(context.Background(), testTarget())

	// Page 3 brought nothing new, so the location ends there
	assert.Equal(t, StopEmpty, result.StopReason)
	mids := make([]string, 0, len(result.Posts))
	for _, p := range result.Posts {
		mids = append(mids, p.Mid)
	}
	assert.Equal(t, []string{"1", "2", "3", "4"}, mids)
}

func TestCollectCancelledMidLocation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	f := newFakeFetcher(t)
	f.script(1, postsPage("1"))
	f.script(2, postsPage("2"))

	controller := testController(f, func(cfg *config.CollectorConfig) {
		cfg.InterRequestDelay = 50 * time.Millisecond
	})

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := controller.Collect(ctx, testTarget())

	assert.Equal(t, StopCancelled, result.StopReason)
	assert.ErrorIs(t, result.Err, context.Canceled)
	// Whatever was collected before cancellation survives
	assert.NotEmpty(t, result.Posts)
}

func TestCollectCancelledBeforeFirstPage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newFakeFetcher(t)
	result := testController(f, nil).Collect(ctx, testTarget())

	assert.Equal(t, StopCancelled, result.StopReason)
	assert.Empty(t, result.Posts)
	assert.Empty(t, f.calls)
}
