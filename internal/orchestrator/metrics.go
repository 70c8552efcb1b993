package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_scraper_refreshes_total",
		Help: "Refresh attempts by result status.",
	}, []string{"status"})

	itemsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_scraper_items_extracted_total",
		Help: "Items produced by extraction and direct feed pulls.",
	})

	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_scraper_refresh_duration_seconds",
		Help:    "Duration of a single source refresh.",
		Buckets: prometheus.DefBuckets,
	})
)
