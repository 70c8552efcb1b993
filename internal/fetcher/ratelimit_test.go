package fetcher_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"feed_scraper/internal/fetcher"
)

func TestOriginLimiter_MinimumSpacing(t *testing.T) {
	const interval = 50 * time.Millisecond
	limiter := fetcher.NewOriginLimiter(interval)
	ctx := context.Background()

	var stamps []time.Time
	for i := 0; i < 4; i++ {
		require.NoError(t, limiter.Wait(ctx, "https://example.com"))
		stamps = append(stamps, time.Now())
	}

	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		require.GreaterOrEqual(t, gap, interval-5*time.Millisecond,
			"requests %d and %d dispatched %v apart", i-1, i, gap)
	}
}

func TestOriginLimiter_IndependentOrigins(t *testing.T) {
	limiter := fetcher.NewOriginLimiter(time.Hour)
	ctx := context.Background()

	// первый токен каждого origin выдаётся сразу
	start := time.Now()
	require.NoError(t, limiter.Wait(ctx, "https://a.example"))
	require.NoError(t, limiter.Wait(ctx, "https://b.example"))
	require.NoError(t, limiter.Wait(ctx, "https://c.example"))
	require.Less(t, time.Since(start), time.Second)
}

func TestOriginLimiter_ConcurrentAccess(t *testing.T) {
	limiter := fetcher.NewOriginLimiter(time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, limiter.Wait(ctx, "https://example.com"))
		}()
	}
	wg.Wait()
}

func TestOriginLimiter_CancelledWait(t *testing.T) {
	limiter := fetcher.NewOriginLimiter(time.Hour)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "https://example.com"))

	cancelled, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := limiter.Wait(cancelled, "https://example.com")
	require.Error(t, err)
}
