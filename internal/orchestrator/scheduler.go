package orchestrator

import (
	"context"
	"time"

	"feed_scraper/internal/logger"
)

// StartSchedule запускает полное обновление в фиксированные времена суток
// ("HH:MM"). Блокируется до отмены контекста.
func (o *Orchestrator) StartSchedule(ctx context.Context, times []string) {
	log := logger.Log.WithFields(logger.Fields{
		"service": "scheduler",
		"times":   times,
	})
	if len(times) == 0 {
		log.Warn("No refresh times configured, scheduler disabled")
		return
	}

	for {
		next := nextRun(time.Now(), times)
		log.Infof("Next scheduled refresh at %s", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			log.Info("Starting scheduled refresh cycle")
			if _, err := o.RefreshAll(ctx); err != nil {
				log.Errorf("Scheduled refresh failed: %v", err)
			}

		case <-ctx.Done():
			timer.Stop()
			log.Info("Stopping scheduler by context")
			return
		}
	}
}

// nextRun возвращает ближайший момент расписания строго после now.
func nextRun(now time.Time, times []string) time.Time {
	var best time.Time
	for _, tm := range times {
		parsed, err := time.Parse("15:04", tm)
		if err != nil {
			continue
		}
		candidate := time.Date(now.Year(), now.Month(), now.Day(),
			parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.Add(24 * time.Hour)
		}
		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}
	if best.IsZero() {
		best = now.Add(24 * time.Hour)
	}
	return best
}
