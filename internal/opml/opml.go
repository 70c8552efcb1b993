package opml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"feed_scraper/internal/models"
	"feed_scraper/internal/urlnorm"
)

var (
	// ErrDuplicateEntry — URL записи уже есть в пакете импорта
	// или среди зарегистрированных источников.
	ErrDuplicateEntry = errors.New("duplicate entry")
	// ErrMalformedEntry — URL записи не разбирается.
	ErrMalformedEntry = errors.New("malformed entry")
)

type document struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    head     `xml:"head"`
	Body    body     `xml:"body"`
}

type head struct {
	Title string `xml:"title"`
}

type body struct {
	Outlines []outline `xml:"outline"`
}

type outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Children []outline `xml:"outline"`
}

// Entry — принятая запись импорта.
type Entry struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Canonical string `json:"canonical"`
}

// Rejected — отклонённая запись с причиной.
type Rejected struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// ImportResult — структурированный частичный результат импорта.
type ImportResult struct {
	Accepted []Entry    `json:"accepted"`
	Rejected []Rejected `json:"rejected"`
}

// Import разбирает OPML-документ. Outline-элементы обходятся рекурсивно,
// запись-лист — это outline с атрибутом xmlUrl или htmlUrl.
// existing — канонические URL уже зарегистрированных источников.
// Ошибки отдельных записей собираются в Rejected и не прерывают пакет;
// ошибка возвращается только для нечитаемого документа в целом.
func Import(data []byte, norm *urlnorm.Normalizer, existing map[string]struct{}) (ImportResult, error) {
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return ImportResult{}, fmt.Errorf("parse OPML: %w", err)
	}

	var result ImportResult
	batch := make(map[string]struct{})

	var walk func(outlines []outline)
	walk = func(outlines []outline) {
		for _, o := range outlines {
			if o.XMLURL == "" && o.HTMLURL == "" {
				walk(o.Children)
				continue
			}

			// htmlUrl указывает на саму страницу — предпочтительная цель
			// для скрейпинга; xmlUrl остаётся запасным вариантом.
			rawURL := o.HTMLURL
			if rawURL == "" {
				rawURL = o.XMLURL
			}
			name := slugify(firstNonEmpty(o.Text, o.Title, "unnamed"))

			canonical, err := norm.Normalize(rawURL)
			if err != nil {
				result.Rejected = append(result.Rejected, Rejected{
					Name: name, URL: rawURL, Reason: ErrMalformedEntry.Error(),
				})
				continue
			}

			_, inBatch := batch[canonical]
			_, registered := existing[canonical]
			if inBatch || registered {
				result.Rejected = append(result.Rejected, Rejected{
					Name: name, URL: rawURL, Reason: ErrDuplicateEntry.Error(),
				})
				continue
			}

			batch[canonical] = struct{}{}
			result.Accepted = append(result.Accepted, Entry{
				Name: name, URL: rawURL, Canonical: canonical,
			})

			walk(o.Children)
		}
	}
	walk(doc.Body.Outlines)

	return result, nil
}

// Export сериализует источники в OPML 2.0: один outline-лист на источник,
// в порядке входного списка. Детерминирован для одинакового входа.
func Export(sources []models.Source, feedBaseURL string) ([]byte, error) {
	doc := document{
		Version: "2.0",
		Head:    head{Title: "Feed Scraper Export"},
	}
	base := strings.TrimRight(feedBaseURL, "/")
	for _, src := range sources {
		doc.Body.Outlines = append(doc.Body.Outlines, outline{
			Text:    src.Name,
			Title:   src.Name,
			Type:    "rss",
			XMLURL:  base + "/feed/" + src.Name + ".xml",
			HTMLURL: src.URL,
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// slugify приводит имя записи к виду, пригодному для ключа источника.
func slugify(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ', r == '/':
			return '-'
		default:
			return -1
		}
	}, name)
	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		name = "unnamed"
	}
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
