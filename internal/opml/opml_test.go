package opml_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"feed_scraper/internal/models"
	"feed_scraper/internal/opml"
	"feed_scraper/internal/urlnorm"
)

const nestedOPML = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Subscriptions</title></head>
  <body>
    <outline text="Tech">
      <outline text="Example Blog" type="rss" xmlUrl="https://example.com/rss.xml" htmlUrl="https://example.com/blog"/>
      <outline text="Another Site" type="rss" xmlUrl="https://another.example/feed"/>
    </outline>
    <outline text="News">
      <outline text="Duplicate Blog" type="rss" htmlUrl="https://example.com/blog/"/>
      <outline text="Broken" type="rss" htmlUrl="not a url"/>
    </outline>
  </body>
</opml>`

func TestImport_NestedOutlines(t *testing.T) {
	norm := urlnorm.New()

	result, err := opml.Import([]byte(nestedOPML), norm, nil)
	require.NoError(t, err)

	require.Len(t, result.Accepted, 2)
	require.Equal(t, "example-blog", result.Accepted[0].Name)
	require.Equal(t, "https://example.com/blog", result.Accepted[0].URL)
	require.Equal(t, "another-site", result.Accepted[1].Name)
	// без htmlUrl используется xmlUrl
	require.Equal(t, "https://another.example/feed", result.Accepted[1].URL)

	require.Len(t, result.Rejected, 2)
	require.Equal(t, "duplicate entry", result.Rejected[0].Reason)
	require.Equal(t, "malformed entry", result.Rejected[1].Reason)
}

func TestImport_RejectsAlreadyRegistered(t *testing.T) {
	norm := urlnorm.New()
	canonical, err := norm.Normalize("https://example.com/blog")
	require.NoError(t, err)
	existing := map[string]struct{}{canonical: {}}

	result, err := opml.Import([]byte(nestedOPML), norm, existing)
	require.NoError(t, err)
	require.Len(t, result.Accepted, 1)
	require.Equal(t, "another-site", result.Accepted[0].Name)
	require.Len(t, result.Rejected, 3)
}

func TestImport_MalformedDocument(t *testing.T) {
	_, err := opml.Import([]byte("{ definitely not xml }"), urlnorm.New(), nil)
	require.Error(t, err)
}

func TestExportImport_RoundTrip(t *testing.T) {
	norm := urlnorm.New()
	sources := []models.Source{
		{Name: "alpha", URL: "https://alpha.example/news", Created: time.Now()},
		{Name: "beta", URL: "https://beta.example/blog", Created: time.Now()},
	}

	doc, err := opml.Export(sources, "http://localhost:8080")
	require.NoError(t, err)

	result, err := opml.Import(doc, norm, nil)
	require.NoError(t, err)
	require.Empty(t, result.Rejected)
	require.Len(t, result.Accepted, len(sources))

	want := make(map[string]struct{})
	for _, src := range sources {
		canonical, err := norm.Normalize(src.URL)
		require.NoError(t, err)
		want[canonical] = struct{}{}
	}
	got := make(map[string]struct{})
	for _, entry := range result.Accepted {
		got[entry.Canonical] = struct{}{}
	}
	require.Equal(t, want, got)
}

func TestExport_Deterministic(t *testing.T) {
	sources := []models.Source{
		{Name: "alpha", URL: "https://alpha.example/news"},
		{Name: "beta", URL: "https://beta.example/blog"},
	}

	first, err := opml.Export(sources, "http://localhost:8080")
	require.NoError(t, err)
	second, err := opml.Export(sources, "http://localhost:8080")
	require.NoError(t, err)
	require.Equal(t, first, second)
}
