package synthesizer

import (
	"encoding/xml"
	"time"

	"feed_scraper/internal/models"
)

// BuildRSS сериализует упорядоченный список статей в RSS 2.0.
// GUID каждой публикации — её канонический URL.
func BuildRSS(source models.Source, items []models.Item) ([]byte, error) {
	description := source.Description
	if description == "" {
		description = source.URL
	}

	rss := models.RSS{
		Version: "2.0",
		Channel: models.Channel{
			Title:       source.Name,
			Link:        source.URL,
			Description: description,
			Items:       make([]models.RSSItem, 0, len(items)),
		},
	}
	for _, item := range items {
		rss.Channel.Items = append(rss.Channel.Items, models.RSSItem{
			Title:       item.Title,
			Link:        item.CanonicalURL,
			Description: item.Body,
			GUID:        models.GUID{IsPermaLink: "true", Value: item.CanonicalURL},
			PubDate:     item.Published.Format(time.RFC1123Z),
		})
	}

	out, err := xml.MarshalIndent(rss, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
