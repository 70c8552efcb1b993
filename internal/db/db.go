package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"feed_scraper/internal/models"
)

// ErrNotFound возвращается, когда источника или ленты нет в хранилище.
// Отличим от прочих ошибок через errors.Is.
var ErrNotFound = errors.New("not found")

// Database инкапсулирует пул соединений к PostgreSQL.
type Database struct {
	Pool *pgxpool.Pool
}

// NewDB создаёт новый пул соединений по connString и возвращает Database.
func NewDB(ctx context.Context, connString string) (*Database, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %v", err)
	}
	return &Database{Pool: pool}, nil
}

// Close закрывает пул соединений.
func (db *Database) Close() {
	db.Pool.Close()
}

// Migrate создаёт таблицы, если их ещё нет.
func (db *Database) Migrate(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS sources (
            name VARCHAR(100) PRIMARY KEY,
            url VARCHAR(2048) NOT NULL,
            feed_url VARCHAR(2048) NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            strategy VARCHAR(20) NOT NULL DEFAULT 'auto',
            created TIMESTAMP WITH TIME ZONE NOT NULL,
            last_refresh TIMESTAMP WITH TIME ZONE,
            last_status VARCHAR(20) NOT NULL DEFAULT 'never_run',
            last_error TEXT NOT NULL DEFAULT '',
            item_count INTEGER NOT NULL DEFAULT 0
        );

        CREATE TABLE IF NOT EXISTS items (
            source_name VARCHAR(100) NOT NULL REFERENCES sources(name) ON DELETE CASCADE,
            canonical_url VARCHAR(2048) NOT NULL,
            title TEXT NOT NULL,
            published TIMESTAMP WITH TIME ZONE NOT NULL,
            body TEXT NOT NULL DEFAULT '',
            PRIMARY KEY (source_name, canonical_url)
        );

        CREATE TABLE IF NOT EXISTS feeds (
            source_name VARCHAR(100) PRIMARY KEY REFERENCES sources(name) ON DELETE CASCADE,
            xml TEXT NOT NULL,
            updated TIMESTAMP WITH TIME ZONE NOT NULL
        );
    `)
	return err
}

// SaveSource сохраняет источник; при конфликте по имени обновляет поля.
func (db *Database) SaveSource(ctx context.Context, src models.Source) error {
	var lastRefresh *time.Time
	if !src.LastRefresh.IsZero() {
		lastRefresh = &src.LastRefresh
	}
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO sources (name, url, feed_url, description, strategy, created,
                             last_refresh, last_status, last_error, item_count)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (name) DO UPDATE SET
            url = EXCLUDED.url,
            feed_url = EXCLUDED.feed_url,
            description = EXCLUDED.description,
            strategy = EXCLUDED.strategy,
            last_refresh = EXCLUDED.last_refresh,
            last_status = EXCLUDED.last_status,
            last_error = EXCLUDED.last_error,
            item_count = EXCLUDED.item_count
    `, src.Name, src.URL, src.FeedURL, src.Description, string(src.Strategy),
		src.Created, lastRefresh, string(src.LastStatus), src.LastError, src.ItemCount)
	return err
}

// GetSource возвращает источник по имени, либо ErrNotFound.
func (db *Database) GetSource(ctx context.Context, name string) (models.Source, error) {
	row := db.Pool.QueryRow(ctx, `
        SELECT name, url, feed_url, description, strategy, created,
               last_refresh, last_status, last_error, item_count
        FROM sources
        WHERE name = $1
    `, name)

	src, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Source{}, fmt.Errorf("source %q: %w", name, ErrNotFound)
	}
	return src, err
}

// ListSources возвращает все источники, отсортированные по имени.
func (db *Database) ListSources(ctx context.Context) ([]models.Source, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT name, url, feed_url, description, strategy, created,
               last_refresh, last_status, last_error, item_count
        FROM sources
        ORDER BY name
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// DeleteSource удаляет источник вместе с его статьями и лентой.
func (db *Database) DeleteSource(ctx context.Context, name string) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM sources WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %q: %w", name, ErrNotFound)
	}
	return nil
}

// LoadItems возвращает сохранённые статьи источника,
// новые первыми, при равной дате — по каноническому URL.
func (db *Database) LoadItems(ctx context.Context, sourceName string) ([]models.Item, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT canonical_url, title, published, body
        FROM items
        WHERE source_name = $1
        ORDER BY published DESC, canonical_url ASC
    `, sourceName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		item := models.Item{SourceName: sourceName}
		if err := rows.Scan(&item.CanonicalURL, &item.Title, &item.Published, &item.Body); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SaveFeed атомарно заменяет набор статей источника и его XML-ленту.
// Либо записывается всё, либо ничего — конкурентный читатель не увидит
// частичного состояния.
func (db *Database) SaveFeed(ctx context.Context, sourceName string, items []models.Item, feedXML []byte) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM items WHERE source_name = $1`, sourceName); err != nil {
		return err
	}
	for _, item := range items {
		_, err := tx.Exec(ctx, `
            INSERT INTO items (source_name, canonical_url, title, published, body)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (source_name, canonical_url) DO NOTHING
        `, sourceName, item.CanonicalURL, item.Title, item.Published, item.Body)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO feeds (source_name, xml, updated)
        VALUES ($1, $2, NOW())
        ON CONFLICT (source_name) DO UPDATE SET xml = EXCLUDED.xml, updated = EXCLUDED.updated
    `, sourceName, string(feedXML))
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetFeedXML возвращает последнюю успешно собранную ленту источника.
func (db *Database) GetFeedXML(ctx context.Context, sourceName string) ([]byte, error) {
	var xml string
	err := db.Pool.QueryRow(ctx, `SELECT xml FROM feeds WHERE source_name = $1`, sourceName).Scan(&xml)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("feed %q: %w", sourceName, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return []byte(xml), nil
}

func scanSource(row pgx.Row) (models.Source, error) {
	var src models.Source
	var strategy, status string
	var lastRefresh *time.Time
	err := row.Scan(&src.Name, &src.URL, &src.FeedURL, &src.Description, &strategy,
		&src.Created, &lastRefresh, &status, &src.LastError, &src.ItemCount)
	if err != nil {
		return models.Source{}, err
	}
	src.Strategy = models.Strategy(strategy)
	src.LastStatus = models.RefreshStatus(status)
	if lastRefresh != nil {
		src.LastRefresh = *lastRefresh
	}
	return src, nil
}
