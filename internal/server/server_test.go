package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"feed_scraper/internal/db"
	"feed_scraper/internal/fetcher"
	"feed_scraper/internal/models"
	"feed_scraper/internal/opml"
	"feed_scraper/internal/orchestrator"
	"feed_scraper/internal/server"
)

// memStore — хранилище в памяти для тестов HTTP-слоя.
type memStore struct {
	mu      sync.Mutex
	sources map[string]models.Source
	items   map[string][]models.Item
	feeds   map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{
		sources: make(map[string]models.Source),
		items:   make(map[string][]models.Item),
		feeds:   make(map[string][]byte),
	}
}

func (s *memStore) GetSource(_ context.Context, name string) (models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[name]
	if !ok {
		return models.Source{}, fmt.Errorf("source %q: %w", name, db.ErrNotFound)
	}
	return src, nil
}

func (s *memStore) SaveSource(_ context.Context, src models.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.Name] = src
	return nil
}

func (s *memStore) DeleteSource(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[name]; !ok {
		return fmt.Errorf("source %q: %w", name, db.ErrNotFound)
	}
	delete(s.sources, name)
	return nil
}

func (s *memStore) ListSources(_ context.Context) ([]models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) LoadItems(_ context.Context, sourceName string) ([]models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Item(nil), s.items[sourceName]...), nil
}

func (s *memStore) SaveFeed(_ context.Context, sourceName string, items []models.Item, feedXML []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[sourceName] = append([]models.Item(nil), items...)
	s.feeds[sourceName] = feedXML
	return nil
}

func (s *memStore) GetFeedXML(_ context.Context, sourceName string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	xml, ok := s.feeds[sourceName]
	if !ok {
		return nil, fmt.Errorf("feed for %q: %w", sourceName, db.ErrNotFound)
	}
	return xml, nil
}

func newTestServer(store *memStore) http.Handler {
	client := fetcher.NewClient(2*time.Second, time.Millisecond, 1, "feed-scraper-test/1.0")
	orch := orchestrator.New(orchestrator.Options{
		Store:            store,
		Client:           client,
		Workers:          2,
		MaxRetained:      50,
		ListingThreshold: 5,
		FeedBaseURL:      "http://localhost:8080",
	})
	return server.NewServer(orch, nil).Routes()
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRegisterSource(t *testing.T) {
	handler := newTestServer(newMemStore())

	rec := doJSON(t, handler, http.MethodPost, "/api/sources", map[string]string{
		"name": "blog",
		"url":  "https://example.com/blog",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var src models.Source
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &src))
	require.Equal(t, "blog", src.Name)
	require.Equal(t, models.StrategyAuto, src.Strategy)
	require.Equal(t, models.StatusNeverRun, src.LastStatus)
}

func TestRegisterSource_Conflicts(t *testing.T) {
	handler := newTestServer(newMemStore())

	rec := doJSON(t, handler, http.MethodPost, "/api/sources", map[string]string{
		"name": "blog", "url": "https://example.com/blog",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// занятое имя
	rec = doJSON(t, handler, http.MethodPost, "/api/sources", map[string]string{
		"name": "blog", "url": "https://other.example",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	// тот же URL в другой форме
	rec = doJSON(t, handler, http.MethodPost, "/api/sources", map[string]string{
		"name": "blog2", "url": "https://EXAMPLE.com/blog/?utm_medium=feed",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterSource_BadInput(t *testing.T) {
	handler := newTestServer(newMemStore())

	rec := doJSON(t, handler, http.MethodPost, "/api/sources", map[string]string{
		"name": "bad", "url": "ftp://example.com/blog",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/sources", strings.NewReader("{broken"))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestUpdateAndDeleteSource(t *testing.T) {
	store := newMemStore()
	handler := newTestServer(store)

	rec := doJSON(t, handler, http.MethodPost, "/api/sources", map[string]string{
		"name": "blog", "url": "https://example.com/blog",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodPatch, "/api/sources/blog", map[string]string{
		"description": "updated",
		"strategy":    "article",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var src models.Source
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &src))
	require.Equal(t, "updated", src.Description)
	require.Equal(t, models.StrategyArticle, src.Strategy)

	req := httptest.NewRequest(http.MethodDelete, "/api/sources/blog", nil)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusNoContent, rec2.Code)

	rec = doJSON(t, handler, http.MethodPatch, "/api/sources/blog", map[string]string{"description": "x"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSources_EmptyIsArray(t *testing.T) {
	handler := newTestServer(newMemStore())

	req := httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestGetFeed(t *testing.T) {
	store := newMemStore()
	store.sources["blog"] = models.Source{Name: "blog", URL: "https://example.com"}
	store.feeds["blog"] = []byte(`<rss version="2.0"></rss>`)
	handler := newTestServer(store)

	for _, target := range []string{"/feed/blog", "/feed/blog.xml"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, target)
		require.Contains(t, rec.Header().Get("Content-Type"), "application/rss+xml")
		require.Contains(t, rec.Body.String(), "<rss")
	}

	req := httptest.NewRequest(http.MethodGet, "/feed/ghost", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOPML_ImportAndExport(t *testing.T) {
	handler := newTestServer(newMemStore())

	doc := `<?xml version="1.0"?>
<opml version="2.0"><head><title>subs</title></head><body>
<outline text="Example Blog" type="rss" htmlUrl="https://example.com/blog" xmlUrl="https://example.com/rss.xml"/>
<outline text="Broken" type="rss" htmlUrl=":not-a-url"/>
</body></opml>`

	req := httptest.NewRequest(http.MethodPost, "/api/opml/import", strings.NewReader(doc))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result opml.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Accepted, 1)
	require.Equal(t, "example-blog", result.Accepted[0].Name)
	require.Len(t, result.Rejected, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/opml/export", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/x-opml")
	require.Contains(t, rec.Body.String(), "example-blog")
	require.Contains(t, rec.Body.String(), "https://example.com/blog")
}

func TestOPML_MalformedDocument(t *testing.T) {
	handler := newTestServer(newMemStore())

	req := httptest.NewRequest(http.MethodPost, "/api/opml/import", strings.NewReader("not xml at all"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiscover_InvalidURL(t *testing.T) {
	handler := newTestServer(newMemStore())

	req := httptest.NewRequest(http.MethodGet, "/api/discover?url=not-a-url", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	handler := newTestServer(newMemStore())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}
