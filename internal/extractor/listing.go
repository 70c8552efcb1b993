package extractor

import (
	"net/url"

	"golang.org/x/net/html"

	"feed_scraper/internal/models"
)

// extractListing ищет структурно повторяющиеся соседние блоки
// (общий родитель, общее имя тега), каждый из которых содержит ровно одну
// содержательную исходящую ссылку. Такие блоки и есть список статей.
func (e *Extractor) extractListing(root *html.Node, base *url.URL) []models.Item {
	var items []models.Item
	seen := make(map[string]bool)

	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && boilerplateTags[n.Data] {
			return
		}
		if n.Type == html.ElementNode || n.Type == html.DocumentNode {
			items = append(items, e.collectGroups(n, base, seen)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return items
}

// collectGroups группирует детей узла по имени тега и превращает
// достаточно большие группы в статьи. Группа засчитывается, только если
// блоков с подходящей ссылкой не меньше порога.
func (e *Extractor) collectGroups(n *html.Node, base *url.URL, seen map[string]bool) []models.Item {
	groups := make(map[string][]*html.Node)
	var order []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || boilerplateTags[c.Data] {
			continue
		}
		if _, ok := groups[c.Data]; !ok {
			order = append(order, c.Data)
		}
		groups[c.Data] = append(groups[c.Data], c)
	}

	var items []models.Item
	for _, tag := range order {
		siblings := groups[tag]
		if len(siblings) < e.threshold {
			continue
		}

		var group []models.Item
		for _, block := range siblings {
			item, ok := e.blockItem(block, base)
			if !ok || seen[item.CanonicalURL] {
				continue
			}
			group = append(group, item)
		}
		if len(group) < e.threshold {
			continue
		}
		for _, item := range group {
			seen[item.CanonicalURL] = true
		}
		items = append(items, group...)
	}
	return items
}

// blockItem строит статью из блока: заголовок — текст ссылки,
// URL — её разрешённый абсолютный адрес. Блоки с нулём или несколькими
// содержательными ссылками отбрасываются.
func (e *Extractor) blockItem(block *html.Node, base *url.URL) (models.Item, bool) {
	var anchors []*html.Node
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if boilerplateTags[n.Data] {
				return
			}
			if n.Data == "a" && attr(n, "href") != "" {
				if len([]rune(textContent(n))) >= minTitleLen {
					anchors = append(anchors, n)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(block)

	if len(anchors) != 1 {
		return models.Item{}, false
	}
	absURL := resolve(base, attr(anchors[0], "href"))
	if absURL == "" {
		return models.Item{}, false
	}

	published := blockDate(block)
	if published.IsZero() {
		published = e.now()
	}
	return models.Item{
		CanonicalURL: absURL,
		Title:        textContent(anchors[0]),
		Published:    published,
	}, true
}
