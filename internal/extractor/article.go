package extractor

import (
	"strings"

	"golang.org/x/net/html"

	"feed_scraper/internal/models"
)

// Теги-кандидаты на роль основного контейнера статьи.
var contentTags = map[string]bool{
	"article": true,
	"main":    true,
	"section": true,
	"div":     true,
	"td":      true,
	"body":    true,
}

// extractArticle строит единственную статью из страницы: тело — текст
// элемента с наибольшей текстовой плотностью, заголовок — title документа
// либо первый ранний заголовок, дата — первый машиночитаемый токен.
func (e *Extractor) extractArticle(root *html.Node, pageURL string) models.Item {
	title := documentTitle(root)
	if title == "" {
		title = pageURL
	}

	published := documentDate(root)
	if published.IsZero() {
		published = e.now()
	}

	var body string
	if best := bestContentNode(root); best != nil {
		body = strings.TrimSpace(e.sanitizer.Sanitize(innerHTML(best)))
	}

	return models.Item{
		CanonicalURL: pageURL,
		Title:        title,
		Published:    published,
		Body:         body,
	}
}

// bestContentNode оценивает каждый элемент-кандидат:
// длина текста минус двойной штраф за текст внутри ссылок.
// Boilerplate-поддеревья не дают ни текста, ни штрафа.
// При равном счёте выигрывает более компактное поддерево.
func bestContentNode(root *html.Node) *html.Node {
	var best *html.Node
	bestScore := 0
	bestSize := 0

	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && boilerplateTags[n.Data] {
			return
		}
		if n.Type == html.ElementNode && contentTags[n.Data] {
			text := len([]rune(textContent(n)))
			link := len([]rune(linkText(n)))
			score := text - 2*link
			size := subtreeSize(n)
			if best == nil || score > bestScore || (score == bestScore && size < bestSize) {
				best, bestScore, bestSize = n, score, size
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return best
}

// linkText собирает текст, находящийся внутри ссылок поддерева.
func linkText(n *html.Node) string {
	var parts []string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if boilerplateTags[n.Data] {
				return
			}
			if n.Data == "a" {
				parts = append(parts, textContent(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return strings.Join(parts, " ")
}

func subtreeSize(n *html.Node) int {
	size := 0
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			size++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return size
}

// documentTitle возвращает содержимое элемента title,
// либо первый h1, либо первый h2.
func documentTitle(root *html.Node) string {
	var title, h1, h2 string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" {
					title = textContent(n)
				}
			case "h1":
				if h1 == "" {
					h1 = textContent(n)
				}
			case "h2":
				if h2 == "" {
					h2 = textContent(n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)

	if title != "" {
		return title
	}
	if h1 != "" {
		return h1
	}
	return h2
}

// innerHTML рендерит детей узла обратно в разметку.
func innerHTML(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			continue
		}
	}
	return b.String()
}
