package discovery

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"feed_scraper/internal/fetcher"
	"feed_scraper/internal/logger"
)

// Candidate — найденная лента-кандидат. Source показывает, откуда
// кандидат взялся: link-элемент в head или пробный запрос типового пути.
type Candidate struct {
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Source string `json:"source"`
}

const (
	SourceHead  = "head"
	SourceProbe = "probe"
)

// Типовые пути, по которым сайты чаще всего отдают ленты.
var probePaths = []string{"/feed", "/rss.xml", "/atom.xml", "/feed.xml", "/rss", "/index.xml"}

var feedMIMETypes = map[string]struct{}{
	"application/rss+xml":  {},
	"application/atom+xml": {},
}

// Discoverer ищет существующую машиночитаемую ленту для страницы.
type Discoverer struct {
	client *fetcher.Client
	parser *gofeed.Parser
}

func New(client *fetcher.Client) *Discoverer {
	return &Discoverer{
		client: client,
		parser: gofeed.NewParser(),
	}
}

// Discover возвращает кандидатов в порядке убывания приоритета.
// Никогда не возвращает ошибку: если ничего не найдено — пустой список.
func (d *Discoverer) Discover(ctx context.Context, pageURL string) []Candidate {
	log := logger.Log.WithField("url", pageURL)

	body, err := d.client.Get(ctx, pageURL)
	if err != nil {
		log.Debugf("Page fetch failed during discovery: %v", err)
	} else if candidates := d.ScanPage(pageURL, body); len(candidates) > 0 {
		log.Debugf("Found %d feed links in document head", len(candidates))
		return candidates
	}

	return d.Probe(ctx, pageURL)
}

// ScanPage собирает link-элементы с alternate-связью и RSS/Atom MIME-типом
// из уже загруженной страницы, сохраняя порядок документа.
func (d *Discoverer) ScanPage(pageURL string, body []byte) []Candidate {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var candidates []Candidate
	doc.Find(`link[rel='alternate']`).Each(func(_ int, sel *goquery.Selection) {
		mime := strings.ToLower(strings.TrimSpace(sel.AttrOr("type", "")))
		if _, ok := feedMIMETypes[mime]; !ok {
			return
		}
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		candidates = append(candidates, Candidate{
			URL:    base.ResolveReference(ref).String(),
			Title:  sel.AttrOr("title", ""),
			Source: SourceHead,
		})
	})
	return candidates
}

// Probe обходит типовые пути относительно origin страницы.
// Путь принимается, только если ответ разбирается как лента.
func (d *Discoverer) Probe(ctx context.Context, pageURL string) []Candidate {
	origin, err := fetcher.Origin(pageURL)
	if err != nil {
		return nil
	}
	log := logger.Log.WithField("url", pageURL)

	var candidates []Candidate
	for _, path := range probePaths {
		probeURL := origin + path
		body, err := d.client.Get(ctx, probeURL)
		if err != nil {
			continue
		}
		feed, err := d.parser.ParseString(string(body))
		if err != nil || feed == nil {
			continue
		}
		log.Debugf("Probe found a valid feed at %s", probeURL)
		candidates = append(candidates, Candidate{
			URL:    probeURL,
			Title:  feed.Title,
			Source: SourceProbe,
		})
	}
	return candidates
}
