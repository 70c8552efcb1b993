package models

import "encoding/xml"

// RSS представляет корневой элемент RSS-документа.
// Используется и при генерации собственных лент, и при их чтении в тестах.
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel Channel  `xml:"channel"`
}

// Channel содержит метаданные ленты и список элементов Item.
type Channel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []RSSItem `xml:"item"`
}

// RSSItem представляет одну публикацию ленты.
// GUID совпадает с каноническим URL статьи.
type RSSItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description,omitempty"`
	GUID        GUID   `xml:"guid"`
	PubDate     string `xml:"pubDate"`
}

// GUID — идентификатор публикации; isPermaLink=true, так как
// в качестве GUID всегда выступает канонический URL.
type GUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}
