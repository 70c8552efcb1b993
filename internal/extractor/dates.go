package extractor

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/net/html"
)

// Имена метатегов, в которых встречается дата публикации.
var dateMetaKeys = map[string]bool{
	"article:published_time": true,
	"og:published_time":      true,
	"datepublished":          true,
	"date":                   true,
	"pubdate":                true,
	"publishdate":            true,
	"publish-date":           true,
	"dc.date":                true,
	"dc.date.issued":         true,
	"sailthru.date":          true,
}

// blockDate возвращает дату из первого элемента time внутри блока.
func blockDate(block *html.Node) time.Time {
	var found time.Time
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if !found.IsZero() {
			return
		}
		if n.Type == html.ElementNode && n.Data == "time" {
			if t := parseDateToken(attr(n, "datetime")); !t.IsZero() {
				found = t
				return
			}
			if t := parseDateToken(textContent(n)); !t.IsZero() {
				found = t
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(block)
	return found
}

// documentDate ищет первую машиночитаемую дату документа:
// сначала элементы time, затем метатеги с датоподобными именами.
func documentDate(root *html.Node) time.Time {
	if t := blockDate(root); !t.IsZero() {
		return t
	}

	var found time.Time
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if !found.IsZero() {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			key := strings.ToLower(attr(n, "property"))
			if key == "" {
				key = strings.ToLower(attr(n, "name"))
			}
			if dateMetaKeys[key] {
				found = parseDateToken(attr(n, "content"))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return found
}

func parseDateToken(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
