package fetcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// OriginLimiter пропускает не более одного запроса к одному origin
// за заданный интервал. Общий для всех воркеров обновления.
type OriginLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

func NewOriginLimiter(interval time.Duration) *OriginLimiter {
	return &OriginLimiter{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
	}
}

// Wait блокирует до получения токена для origin. При отмене контекста
// токен возвращается в бюджет (семантика rate.Limiter.Wait).
func (l *OriginLimiter) Wait(ctx context.Context, origin string) error {
	return l.limiterFor(origin).Wait(ctx)
}

func (l *OriginLimiter) limiterFor(origin string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[origin]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok := l.limiters[origin]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Every(l.interval), 1)
	l.limiters[origin] = limiter
	return limiter
}
