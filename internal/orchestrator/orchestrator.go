package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/prometheus/client_golang/prometheus"

	"feed_scraper/internal/db"
	"feed_scraper/internal/discovery"
	"feed_scraper/internal/extractor"
	"feed_scraper/internal/fetcher"
	"feed_scraper/internal/logger"
	"feed_scraper/internal/models"
	"feed_scraper/internal/queue"
	"feed_scraper/internal/synthesizer"
	"feed_scraper/internal/urlnorm"
)

// ErrSourceExists возвращается при попытке зарегистрировать источник
// с занятым именем или уже известным URL.
var ErrSourceExists = errors.New("source already exists")

// Storage — контракт слоя хранения: атомарные записи,
// «не найдено» отличимо от прочих ошибок через db.ErrNotFound.
type Storage interface {
	GetSource(ctx context.Context, name string) (models.Source, error)
	SaveSource(ctx context.Context, src models.Source) error
	DeleteSource(ctx context.Context, name string) error
	ListSources(ctx context.Context) ([]models.Source, error)
	LoadItems(ctx context.Context, sourceName string) ([]models.Item, error)
	SaveFeed(ctx context.Context, sourceName string, items []models.Item, feedXML []byte) error
	GetFeedXML(ctx context.Context, sourceName string) ([]byte, error)
}

// Orchestrator управляет всем циклом обновления: расписанием, пулом
// воркеров, правилом «не более одного обновления на источник» и
// конвейером discovery → извлечение → синтез → запись.
// Единственный экземпляр создаётся на старте процесса.
type Orchestrator struct {
	store       Storage
	client      *fetcher.Client
	discoverer  *discovery.Discoverer
	extractor   *extractor.Extractor
	norm        *urlnorm.Normalizer
	parser      *gofeed.Parser
	maxRetained int
	feedBaseURL string

	sem      chan struct{}
	mu       sync.Mutex
	inflight map[string]bool

	producer   *queue.Producer
	eventQueue string
}

// Options — зависимости и настройки Orchestrator.
type Options struct {
	Store            Storage
	Client           *fetcher.Client
	Workers          int
	MaxRetained      int
	ListingThreshold int
	TrackingParams   []string
	FeedBaseURL      string
}

func New(opts Options) *Orchestrator {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		store:       opts.Store,
		client:      opts.Client,
		discoverer:  discovery.New(opts.Client),
		extractor:   extractor.New(opts.ListingThreshold),
		norm:        urlnorm.New(opts.TrackingParams...),
		parser:      gofeed.NewParser(),
		maxRetained: opts.MaxRetained,
		feedBaseURL: opts.FeedBaseURL,
		sem:         make(chan struct{}, workers),
		inflight:    make(map[string]bool),
	}
}

// SetEventProducer включает публикацию событий об обновлениях в AMQP-очередь.
func (o *Orchestrator) SetEventProducer(p *queue.Producer, queueName string) {
	o.producer = p
	o.eventQueue = queueName
}

// RegisterSource регистрирует новый источник. Имя и канонический URL
// должны быть уникальны среди уже зарегистрированных.
func (o *Orchestrator) RegisterSource(ctx context.Context, name, rawURL string, strategy models.Strategy, description string) (models.Source, error) {
	if name == "" {
		return models.Source{}, errors.New("source name is required")
	}
	if strategy == "" {
		strategy = models.StrategyAuto
	}

	canonical, err := o.norm.Normalize(rawURL)
	if err != nil {
		return models.Source{}, err
	}

	if _, err := o.store.GetSource(ctx, name); err == nil {
		return models.Source{}, fmt.Errorf("%w: name %q", ErrSourceExists, name)
	} else if !errors.Is(err, db.ErrNotFound) {
		return models.Source{}, err
	}

	sources, err := o.store.ListSources(ctx)
	if err != nil {
		return models.Source{}, err
	}
	for _, existing := range sources {
		existingCanonical, err := o.norm.Normalize(existing.URL)
		if err == nil && existingCanonical == canonical {
			return models.Source{}, fmt.Errorf("%w: URL already registered as %q", ErrSourceExists, existing.Name)
		}
	}

	src := models.Source{
		Name:        name,
		URL:         rawURL,
		Description: description,
		Strategy:    strategy,
		Created:     time.Now(),
		LastStatus:  models.StatusNeverRun,
	}
	if err := o.store.SaveSource(ctx, src); err != nil {
		return models.Source{}, err
	}
	logger.WithSource(name).Info("Source registered")
	return src, nil
}

// UpdateSource меняет URL, описание или стратегию источника.
// Пустые значения оставляют поле без изменений.
func (o *Orchestrator) UpdateSource(ctx context.Context, name, rawURL, description string, strategy models.Strategy) (models.Source, error) {
	src, err := o.store.GetSource(ctx, name)
	if err != nil {
		return models.Source{}, err
	}

	if rawURL != "" {
		if _, err := o.norm.Normalize(rawURL); err != nil {
			return models.Source{}, err
		}
		if rawURL != src.URL {
			src.URL = rawURL
			// старая лента может не относиться к новому адресу
			src.FeedURL = ""
		}
	}
	if description != "" {
		src.Description = description
	}
	if strategy != "" {
		src.Strategy = strategy
	}

	if err := o.store.SaveSource(ctx, src); err != nil {
		return models.Source{}, err
	}
	return src, nil
}

// DeleteSource удаляет источник вместе со статьями и лентой.
func (o *Orchestrator) DeleteSource(ctx context.Context, name string) error {
	if err := o.store.DeleteSource(ctx, name); err != nil {
		return err
	}
	logger.WithSource(name).Info("Source deleted")
	return nil
}

// ListSources возвращает все зарегистрированные источники.
func (o *Orchestrator) ListSources(ctx context.Context) ([]models.Source, error) {
	return o.store.ListSources(ctx)
}

// Discover возвращает кандидатов на ленту для произвольной страницы.
func (o *Orchestrator) Discover(ctx context.Context, rawURL string) ([]discovery.Candidate, error) {
	if _, err := o.norm.Normalize(rawURL); err != nil {
		return nil, err
	}
	return o.discoverer.Discover(ctx, rawURL), nil
}

// PreviewExtraction извлекает статьи со страницы без сохранения.
func (o *Orchestrator) PreviewExtraction(ctx context.Context, rawURL string) ([]models.Item, error) {
	if _, err := o.norm.Normalize(rawURL); err != nil {
		return nil, err
	}
	page, err := o.client.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	items, err := o.extractor.Extract(rawURL, page, models.StrategyAuto)
	if err != nil {
		return nil, err
	}
	return o.normalizeItems(items, ""), nil
}

// GetFeed возвращает последнюю собранную XML-ленту источника.
func (o *Orchestrator) GetFeed(ctx context.Context, name string) ([]byte, error) {
	return o.store.GetFeedXML(ctx, name)
}

// RefreshOne обновляет один источник. Если обновление уже идёт,
// возвращается текущее состояние без второго запуска.
func (o *Orchestrator) RefreshOne(ctx context.Context, name string) (models.Source, error) {
	src, err := o.store.GetSource(ctx, name)
	if err != nil {
		return models.Source{}, err
	}

	if !o.tryAcquire(name) {
		logger.WithSource(name).Debug("Refresh already in flight, skipping")
		return src, nil
	}
	defer o.release(name)

	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return src, ctx.Err()
	}
	defer func() { <-o.sem }()

	return o.refresh(ctx, src), nil
}

// RefreshAll обновляет все источники. Разные источники обновляются
// конкурентно в пределах пула воркеров; сбой одного не затрагивает
// остальные.
func (o *Orchestrator) RefreshAll(ctx context.Context) ([]models.Source, error) {
	sources, err := o.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, nil
	}

	logger.Log.Infof("Starting refresh cycle for %d sources", len(sources))

	results := make(chan models.Source, len(sources))
	var wg sync.WaitGroup
	for _, src := range sources {
		if !o.tryAcquire(src.Name) {
			results <- src
			continue
		}
		wg.Add(1)
		go func(src models.Source) {
			defer wg.Done()
			defer o.release(src.Name)

			select {
			case o.sem <- struct{}{}:
			case <-ctx.Done():
				results <- src
				return
			}
			defer func() { <-o.sem }()

			results <- o.refresh(ctx, src)
		}(src)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var refreshed []models.Source
	for src := range results {
		refreshed = append(refreshed, src)
	}
	sort.Slice(refreshed, func(i, j int) bool { return refreshed[i].Name < refreshed[j].Name })
	return refreshed, nil
}

// refresh выполняет конвейер одного источника и фиксирует результат
// в его статусе. Ошибки поглощаются статусом и не распространяются.
func (o *Orchestrator) refresh(ctx context.Context, src models.Source) models.Source {
	log := logger.WithSource(src.Name)
	timer := prometheus.NewTimer(refreshDuration)
	defer timer.ObserveDuration()

	updated, err := o.runPipeline(ctx, src)
	updated.LastRefresh = time.Now()
	if err != nil {
		updated.LastStatus = models.StatusError
		updated.LastError = err.Error()
		refreshesTotal.WithLabelValues("error").Inc()
		log.Errorf("Refresh failed: %v", err)
	} else {
		updated.LastStatus = models.StatusOK
		updated.LastError = ""
		refreshesTotal.WithLabelValues("ok").Inc()
		log.Infof("Refresh complete: %d items retained", updated.ItemCount)
	}

	if err := o.store.SaveSource(ctx, updated); err != nil {
		log.Errorf("Failed to save source state: %v", err)
	}
	o.publishEvent(updated)
	return updated
}

// runPipeline: известная лента → повторное discovery при необходимости →
// извлечение со страницы; затем слияние, синтез XML и атомарная запись.
// Страница загружается не более одного раза.
func (o *Orchestrator) runPipeline(ctx context.Context, src models.Source) (models.Source, error) {
	log := logger.WithSource(src.Name)

	var fresh []models.Item

	// известная лента перечитывается напрямую, без повторного discovery
	if src.FeedURL != "" {
		items, err := o.pullFeed(ctx, src.FeedURL)
		if err != nil {
			log.Warnf("Known feed no longer resolves, rediscovering: %v", err)
			src.FeedURL = ""
		} else {
			fresh = items
		}
	}

	if fresh == nil {
		page, err := o.client.Get(ctx, src.URL)
		if err != nil {
			return src, err
		}

		candidates := o.discoverer.ScanPage(src.URL, page)
		if len(candidates) == 0 {
			candidates = o.discoverer.Probe(ctx, src.URL)
		}
		for _, cand := range candidates {
			items, err := o.pullFeed(ctx, cand.URL)
			if err != nil {
				continue
			}
			log.Infof("Using discovered feed %s", cand.URL)
			src.FeedURL = cand.URL
			fresh = items
			break
		}

		if fresh == nil {
			items, err := o.extractor.Extract(src.URL, page, src.Strategy)
			if err != nil {
				return src, err
			}
			fresh = items
		}
	}

	normalized := o.normalizeItems(fresh, src.Name)
	itemsExtracted.Add(float64(len(normalized)))

	existing, err := o.store.LoadItems(ctx, src.Name)
	if err != nil {
		return src, err
	}

	merged := synthesizer.Merge(existing, normalized, o.maxRetained, o.norm)
	feedXML, err := synthesizer.BuildRSS(src, merged)
	if err != nil {
		return src, err
	}
	if err := o.store.SaveFeed(ctx, src.Name, merged, feedXML); err != nil {
		return src, err
	}

	src.ItemCount = len(merged)
	return src, nil
}

// pullFeed загружает и разбирает существующую ленту.
func (o *Orchestrator) pullFeed(ctx context.Context, feedURL string) ([]models.Item, error) {
	body, err := o.client.Get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	feed, err := o.parser.ParseString(string(body))
	if err != nil {
		return nil, err
	}

	items := make([]models.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry.Link == "" {
			continue
		}
		published := time.Now()
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			published = *entry.UpdatedParsed
		}
		body := entry.Description
		if body == "" {
			body = entry.Content
		}
		items = append(items, models.Item{
			CanonicalURL: entry.Link,
			Title:        entry.Title,
			Published:    published,
			Body:         body,
		})
	}
	return items, nil
}

// normalizeItems приводит URL статей к канонической форме и привязывает
// их к источнику; статьи с невалидными URL отбрасываются.
func (o *Orchestrator) normalizeItems(items []models.Item, sourceName string) []models.Item {
	normalized := make([]models.Item, 0, len(items))
	for _, item := range items {
		canonical, err := o.norm.Normalize(item.CanonicalURL)
		if err != nil {
			continue
		}
		item.CanonicalURL = canonical
		item.SourceName = sourceName
		normalized = append(normalized, item)
	}
	return normalized
}

func (o *Orchestrator) publishEvent(src models.Source) {
	if o.producer == nil {
		return
	}
	event := queue.RefreshEvent{
		Name:     src.Name,
		Status:   src.LastStatus,
		Error:    src.LastError,
		Items:    src.ItemCount,
		Finished: src.LastRefresh,
	}
	if err := o.producer.PublishEvent(o.eventQueue, event); err != nil {
		logger.WithSource(src.Name).Errorf("Failed to publish refresh event: %v", err)
	}
}

func (o *Orchestrator) tryAcquire(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[name] {
		return false
	}
	o.inflight[name] = true
	return true
}

func (o *Orchestrator) release(name string) {
	o.mu.Lock()
	delete(o.inflight, name)
	o.mu.Unlock()
}
