package orchestrator

import (
	"context"
	"fmt"
	"time"

	"feed_scraper/internal/logger"
	"feed_scraper/internal/models"
	"feed_scraper/internal/opml"
)

// ImportOPML регистрирует источники из OPML-документа.
// Дубликаты и нечитаемые записи собираются в Rejected,
// одна плохая запись никогда не прерывает пакет.
func (o *Orchestrator) ImportOPML(ctx context.Context, doc []byte) (opml.ImportResult, error) {
	sources, err := o.store.ListSources(ctx)
	if err != nil {
		return opml.ImportResult{}, err
	}

	existing := make(map[string]struct{}, len(sources))
	names := make(map[string]bool, len(sources))
	for _, src := range sources {
		names[src.Name] = true
		if canonical, err := o.norm.Normalize(src.URL); err == nil {
			existing[canonical] = struct{}{}
		}
	}

	result, err := opml.Import(doc, o.norm, existing)
	if err != nil {
		return result, err
	}

	accepted := make([]opml.Entry, 0, len(result.Accepted))
	for _, entry := range result.Accepted {
		// имена источников уникальны; коллизии получают числовой суффикс
		name := entry.Name
		for i := 2; names[name]; i++ {
			name = fmt.Sprintf("%s-%d", entry.Name, i)
		}
		names[name] = true

		src := models.Source{
			Name:        name,
			URL:         entry.URL,
			Description: "Imported from OPML",
			Strategy:    models.StrategyAuto,
			Created:     time.Now(),
			LastStatus:  models.StatusNeverRun,
		}
		if err := o.store.SaveSource(ctx, src); err != nil {
			result.Rejected = append(result.Rejected, opml.Rejected{
				Name: name, URL: entry.URL, Reason: err.Error(),
			})
			continue
		}
		entry.Name = name
		accepted = append(accepted, entry)
	}
	result.Accepted = accepted

	logger.Log.Infof("OPML import: %d accepted, %d rejected", len(result.Accepted), len(result.Rejected))
	return result, nil
}

// ExportOPML сериализует все источники в OPML-документ.
// Для одинакового списка источников результат детерминирован.
func (o *Orchestrator) ExportOPML(ctx context.Context) ([]byte, error) {
	sources, err := o.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	return opml.Export(sources, o.feedBaseURL)
}
