package urlnorm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"feed_scraper/internal/urlnorm"
)

func TestNormalize(t *testing.T) {
	norm := urlnorm.New()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercase scheme and host",
			input:    "HTTPS://Example.COM/Path",
			expected: "https://example.com/Path",
		},
		{
			name:     "strip default http port",
			input:    "http://example.com:80/a",
			expected: "http://example.com/a",
		},
		{
			name:     "strip default https port",
			input:    "https://example.com:443/a",
			expected: "https://example.com/a",
		},
		{
			name:     "keep non-default port",
			input:    "http://example.com:8080/a",
			expected: "http://example.com:8080/a",
		},
		{
			name:     "drop tracking params and trailing slash",
			input:    "https://Example.com/a/?utm_source=x",
			expected: "https://example.com/a",
		},
		{
			name:     "drop fbclid and gclid",
			input:    "https://example.com/a?fbclid=123&gclid=456&id=7",
			expected: "https://example.com/a?id=7",
		},
		{
			name:     "sort query params by key",
			input:    "https://example.com/a?z=1&a=2&m=3",
			expected: "https://example.com/a?a=2&m=3&z=1",
		},
		{
			name:     "drop fragment",
			input:    "https://example.com/a#section-2",
			expected: "https://example.com/a",
		},
		{
			name:     "root path is preserved",
			input:    "https://example.com/",
			expected: "https://example.com/",
		},
		{
			name:     "empty path becomes root",
			input:    "https://example.com",
			expected: "https://example.com/",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := norm.Normalize(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.expected, got)
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	norm := urlnorm.New()

	inputs := []string{
		"HTTPS://Example.COM:443/a/b/?utm_campaign=x&z=1&a=2#frag",
		"http://example.com",
		"https://example.com/path?q=%D0%BF%D0%BE%D0%B8%D1%81%D0%BA",
	}
	for _, input := range inputs {
		once, err := norm.Normalize(input)
		require.NoError(t, err)
		twice, err := norm.Normalize(once)
		require.NoError(t, err)
		require.Equal(t, once, twice)
	}
}

func TestNormalize_DuplicateEquivalence(t *testing.T) {
	norm := urlnorm.New()

	a, err := norm.Normalize("https://Example.com/a/?utm_source=x")
	require.NoError(t, err)
	b, err := norm.Normalize("https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestNormalize_ExtraTrackingParams(t *testing.T) {
	norm := urlnorm.New("session_id")

	got, err := norm.Normalize("https://example.com/a?session_id=42&q=1")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/a?q=1", got)
}

func TestNormalize_InvalidInput(t *testing.T) {
	norm := urlnorm.New()

	for _, input := range []string{
		"",
		"not-a-url",
		"ftp://example.com/file",
		"http://",
		"://missing-scheme",
	} {
		_, err := norm.Normalize(input)
		require.ErrorIs(t, err, urlnorm.ErrInvalidURL, "input: %q", input)
	}
}
