package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"feed_scraper/internal/db"
	"feed_scraper/internal/models"
	"feed_scraper/internal/orchestrator"
	"feed_scraper/internal/urlnorm"
)

// Тело запроса (OPML или JSON) читается не более чем на 2 МБ.
const maxRequestBody = 2 << 20

// Server хранит зависимости HTTP-обработчиков.
type Server struct {
	orch *orchestrator.Orchestrator
	db   *db.Database
}

// NewServer создаёт Server поверх оркестратора; database нужен только
// для health-пробы и может быть nil в тестах.
func NewServer(orch *orchestrator.Orchestrator, database *db.Database) *Server {
	return &Server{orch: orch, db: database}
}

// Routes собирает маршруты API и навешивает middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/sources", s.ListSources)
	mux.HandleFunc("POST /api/sources", s.RegisterSource)
	mux.HandleFunc("PATCH /api/sources/{name}", s.UpdateSource)
	mux.HandleFunc("DELETE /api/sources/{name}", s.DeleteSource)

	mux.HandleFunc("POST /api/refresh", s.RefreshAll)
	mux.HandleFunc("POST /api/refresh/{name}", s.RefreshOne)

	mux.HandleFunc("GET /api/discover", s.Discover)
	mux.HandleFunc("GET /api/preview", s.Preview)

	mux.HandleFunc("POST /api/opml/import", s.ImportOPML)
	mux.HandleFunc("GET /api/opml/export", s.ExportOPML)

	mux.HandleFunc("GET /feed/{name}", s.GetFeed)

	return RequestIDMiddleware(LoggingMiddleware(mux))
}

// HealthCheck отвечает 200 OK, если база доступна, иначе 503.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Pool.Ping(r.Context()); err != nil {
			http.Error(w, "DB unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Write([]byte("OK"))
}

type registerRequest struct {
	Name        string          `json:"name"`
	URL         string          `json:"url"`
	Strategy    models.Strategy `json:"strategy,omitempty"`
	Description string          `json:"description,omitempty"`
}

// RegisterSource регистрирует новый источник.
func (s *Server) RegisterSource(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	src, err := s.orch.RegisterSource(r.Context(), req.Name, req.URL, req.Strategy, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

// UpdateSource меняет URL, описание или стратегию источника.
func (s *Server) UpdateSource(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	src, err := s.orch.UpdateSource(r.Context(), r.PathValue("name"), req.URL, req.Description, req.Strategy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// DeleteSource удаляет источник.
func (s *Server) DeleteSource(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.DeleteSource(r.Context(), r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSources возвращает все источники.
func (s *Server) ListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.orch.ListSources(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if sources == nil {
		sources = []models.Source{}
	}
	writeJSON(w, http.StatusOK, sources)
}

// RefreshAll запускает обновление всех источников и ждёт завершения.
func (s *Server) RefreshAll(w http.ResponseWriter, r *http.Request) {
	sources, err := s.orch.RefreshAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if sources == nil {
		sources = []models.Source{}
	}
	writeJSON(w, http.StatusOK, sources)
}

// RefreshOne обновляет один источник.
func (s *Server) RefreshOne(w http.ResponseWriter, r *http.Request) {
	src, err := s.orch.RefreshOne(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// Discover возвращает кандидатов на ленту для URL из query-параметра.
func (s *Server) Discover(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	candidates, err := s.orch.Discover(r.Context(), rawURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

// Preview извлекает статьи со страницы без сохранения.
func (s *Server) Preview(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	items, err := s.orch.PreviewExtraction(r.Context(), rawURL)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []models.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

// ImportOPML принимает OPML-документ в теле запроса.
func (s *Server) ImportOPML(w http.ResponseWriter, r *http.Request) {
	doc, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	result, err := s.orch.ImportOPML(r.Context(), doc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ExportOPML отдаёт все источники одним OPML-документом.
func (s *Server) ExportOPML(w http.ResponseWriter, r *http.Request) {
	doc, err := s.orch.ExportOPML(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-opml")
	w.Write(doc)
}

// GetFeed отдаёт XML-ленту источника; суффикс .xml в имени необязателен.
func (s *Server) GetFeed(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(r.PathValue("name"), ".xml")
	feedXML, err := s.orch.GetFeed(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Write(feedXML)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, urlnorm.ErrInvalidURL):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, orchestrator.ErrSourceExists):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
