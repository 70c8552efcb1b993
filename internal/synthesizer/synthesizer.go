package synthesizer

import (
	"sort"

	"feed_scraper/internal/models"
	"feed_scraper/internal/urlnorm"
)

// Merge объединяет сохранённые и свежие статьи в итоговую ленту.
// Дубликат определяется по канонической форме URL; при коллизии остаётся
// уже сохранённая статья — так не переиздаются поверхностные правки
// и не теряется исходная дата публикации. Результат отсортирован по дате
// по убыванию (при равенстве — по каноническому URL) и обрезан
// до maxRetained. Чистая функция, без I/O.
func Merge(existing, fresh []models.Item, maxRetained int, norm *urlnorm.Normalizer) []models.Item {
	merged := make([]models.Item, 0, len(existing)+len(fresh))
	index := make(map[string]struct{}, len(existing)+len(fresh))

	add := func(item models.Item) {
		canonical, err := norm.Normalize(item.CanonicalURL)
		if err != nil {
			return
		}
		if _, ok := index[canonical]; ok {
			return
		}
		index[canonical] = struct{}{}
		item.CanonicalURL = canonical
		merged = append(merged, item)
	}
	for _, item := range existing {
		add(item)
	}
	for _, item := range fresh {
		add(item)
	}

	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].Published.Equal(merged[j].Published) {
			return merged[i].Published.After(merged[j].Published)
		}
		return merged[i].CanonicalURL < merged[j].CanonicalURL
	})

	if maxRetained > 0 && len(merged) > maxRetained {
		merged = merged[:maxRetained]
	}
	return merged
}
