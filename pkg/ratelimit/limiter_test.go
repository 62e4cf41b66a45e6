package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerMinuteAllowsBurst(t *testing.T) {
	limiter := PerMinute(60, 3)

	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	// Burst exhausted, next token is ~1s away
	assert.False(t, limiter.Allow())
}

func TestPerMinuteDefaults(t *testing.T) {
	limiter := PerMinute(0, 0)
	assert.True(t, limiter.Allow())
}

func TestPacerSpacesEvents(t *testing.T) {
	limiter := NewPacer(20 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	require.NoError(t, limiter.Wait(ctx))
	require.NoError(t, limiter.Wait(ctx))

	// First event is free, the next two are spaced out
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPacerZeroDelayNeverBlocks(t *testing.T) {
	limiter := NewPacer(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitHonoursCancellation(t *testing.T) {
	limiter := NewPacer(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	// Consume the free first event
	require.NoError(t, limiter.Wait(ctx))

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := limiter.Wait(ctx)
	assert.Error(t, err)
}
