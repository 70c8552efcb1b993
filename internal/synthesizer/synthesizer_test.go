package synthesizer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"feed_scraper/internal/models"
	"feed_scraper/internal/synthesizer"
	"feed_scraper/internal/urlnorm"
)

func item(url, title string, published time.Time) models.Item {
	return models.Item{CanonicalURL: url, Title: title, Published: published}
}

func TestMerge_DedupByCanonicalURL(t *testing.T) {
	norm := urlnorm.New()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	existing := []models.Item{
		item("https://example.com/a", "a", base),
	}
	fresh := []models.Item{
		// тот же адрес в «грязной» форме
		item("https://Example.com/a/?utm_source=rss", "a-again", base.Add(time.Hour)),
		item("https://example.com/b", "b", base.Add(2*time.Hour)),
	}

	merged := synthesizer.Merge(existing, fresh, 50, norm)
	require.Len(t, merged, 2)

	seen := make(map[string]bool)
	for _, it := range merged {
		require.False(t, seen[it.CanonicalURL], "duplicate canonical URL %s", it.CanonicalURL)
		seen[it.CanonicalURL] = true
	}
}

func TestMerge_FirstSeenWins(t *testing.T) {
	norm := urlnorm.New()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	existing := []models.Item{item("https://example.com/a", "old", base)}
	fresh := []models.Item{item("https://example.com/a", "new", base.Add(time.Hour))}

	merged := synthesizer.Merge(existing, fresh, 50, norm)
	require.Len(t, merged, 1)
	require.Equal(t, "old", merged[0].Title)
	require.True(t, merged[0].Published.Equal(base))
}

func TestMerge_OrderAndTruncate(t *testing.T) {
	norm := urlnorm.New()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	fresh := []models.Item{
		item("https://example.com/c", "c", base.Add(1*time.Hour)),
		item("https://example.com/a", "a", base.Add(3*time.Hour)),
		item("https://example.com/b", "b", base.Add(2*time.Hour)),
		item("https://example.com/d", "d", base),
	}

	merged := synthesizer.Merge(nil, fresh, 3, norm)
	require.Len(t, merged, 3)
	require.Equal(t, "a", merged[0].Title)
	require.Equal(t, "b", merged[1].Title)
	require.Equal(t, "c", merged[2].Title)
}

func TestMerge_TieBrokenByCanonicalURL(t *testing.T) {
	norm := urlnorm.New()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	fresh := []models.Item{
		item("https://example.com/z", "z", ts),
		item("https://example.com/a", "a", ts),
	}

	first := synthesizer.Merge(nil, fresh, 50, norm)
	second := synthesizer.Merge(nil, []models.Item{fresh[1], fresh[0]}, 50, norm)

	require.Equal(t, first, second)
	require.Equal(t, "https://example.com/a", first[0].CanonicalURL)
}

func TestMerge_SkipsInvalidURLs(t *testing.T) {
	norm := urlnorm.New()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	fresh := []models.Item{
		item("not a url", "bad", ts),
		item("https://example.com/ok", "ok", ts),
	}

	merged := synthesizer.Merge(nil, fresh, 50, norm)
	require.Len(t, merged, 1)
	require.Equal(t, "ok", merged[0].Title)
}
