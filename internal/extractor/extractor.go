package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"feed_scraper/internal/models"
)

// ErrUnparsable возвращается, только если документ вообще не разбирается
// как разметка. Во всех остальных случаях извлечение деградирует
// до меньшего числа статей, но не падает.
var ErrUnparsable = errors.New("document is not parseable markup")

// Минимальная длина текста ссылки, чтобы считать её заголовком статьи.
const minTitleLen = 10

// Теги, чьё содержимое не участвует ни в одной эвристике.
var boilerplateTags = map[string]bool{
	"nav":      true,
	"footer":   true,
	"aside":    true,
	"header":   true,
	"script":   true,
	"style":    true,
	"noscript": true,
	"form":     true,
	"iframe":   true,
}

// Extractor извлекает статьи из HTML двумя стратегиями:
// listing (страница-оглавление) и article (одиночная статья).
type Extractor struct {
	threshold int
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

// New создаёт Extractor; threshold — минимум структурно повторяющихся
// блоков со ссылками, при котором страница считается оглавлением.
func New(threshold int) *Extractor {
	return &Extractor{
		threshold: threshold,
		sanitizer: bluemonday.UGCPolicy(),
		now:       time.Now,
	}
}

// Extract разбирает страницу и возвращает статьи. Стратегия Auto
// выбирает режим по структуре страницы, Listing и Article закрепляют его.
// URL каждой статьи приводится к абсолютному виду.
func (e *Extractor) Extract(pageURL string, page []byte, strategy models.Strategy) ([]models.Item, error) {
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}

	switch strategy {
	case models.StrategyListing:
		return e.extractListing(root, base), nil
	case models.StrategyArticle:
		return []models.Item{e.extractArticle(root, pageURL)}, nil
	default:
		if items := e.extractListing(root, base); len(items) >= e.threshold {
			return items, nil
		}
		return []models.Item{e.extractArticle(root, pageURL)}, nil
	}
}

// textContent собирает текст поддерева, пропуская boilerplate-теги,
// и сжимает пробелы.
func textContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		}
		if n.Type == html.ElementNode && boilerplateTags[n.Data] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}
