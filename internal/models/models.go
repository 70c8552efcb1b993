package models

import "time"

// RefreshStatus — результат последнего обновления источника.
type RefreshStatus string

const (
	StatusNeverRun RefreshStatus = "never_run"
	StatusOK       RefreshStatus = "ok"
	StatusError    RefreshStatus = "error"
)

// Strategy — стратегия извлечения статей со страницы.
// Auto выбирает между listing и article по структуре страницы.
type Strategy string

const (
	StrategyAuto    Strategy = "auto"
	StrategyListing Strategy = "listing"
	StrategyArticle Strategy = "article"
)

// Source — зарегистрированный источник для мониторинга.
// Name уникален и служит ключом; FeedURL заполняется после успешного discovery.
type Source struct {
	Name        string        `json:"name"`
	URL         string        `json:"url"`
	FeedURL     string        `json:"feed_url,omitempty"`
	Description string        `json:"description,omitempty"`
	Strategy    Strategy      `json:"strategy"`
	Created     time.Time     `json:"created"`
	LastRefresh time.Time     `json:"last_refresh,omitempty"`
	LastStatus  RefreshStatus `json:"last_status"`
	LastError   string        `json:"last_error,omitempty"`
	ItemCount   int           `json:"item_count"`
}

// Item — одна извлечённая статья. CanonicalURL — ключ идентичности,
// после сохранения Item не изменяется.
type Item struct {
	CanonicalURL string    `json:"canonical_url"`
	Title        string    `json:"title"`
	Published    time.Time `json:"published"`
	Body         string    `json:"body,omitempty"`
	SourceName   string    `json:"source_name,omitempty"`
}
