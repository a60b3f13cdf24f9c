// Package http provides the local JSON query API.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/semsearch-go/internal/domain/ports"
	"github.com/0xcro3dile/semsearch-go/internal/domain/usecases"
)

// maxResults bounds the k parameter of /api/results.
const maxResults = 50

// Server is the HTTP server for the search API.
type Server struct {
	engine         *usecases.SearchEngine
	store          ports.VectorStore
	addr           string
	allowedOrigins map[string]struct{}
	logger         *slog.Logger
	pending        atomic.Int64
}

// SearchResponse is the body returned by /api/search.
type SearchResponse struct {
	Answer string `json:"answer"`
	Found  bool   `json:"found"`
}

// ResultItem is one ranked chunk returned by /api/results.
type ResultItem struct {
	Score    float32 `json:"score"`
	SourceID string  `json:"source"`
	Text     string  `json:"text"`
}

// HealthResponse is the body returned by /api/health.
type HealthResponse struct {
	Status         string `json:"status"`
	State          string `json:"state"`
	Records        int    `json:"records"`
	PendingChanges int64  `json:"pending_changes"`
}

// NewServer creates a new HTTP server. Browser requests are only answered
// for the listed origins; requests without an Origin header are always served.
func NewServer(engine *usecases.SearchEngine, store ports.VectorStore, addr string, allowedOrigins []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}
	return &Server{
		engine:         engine,
		store:          store,
		addr:           addr,
		allowedOrigins: origins,
		logger:         logger,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/results", s.handleResults)
	mux.HandleFunc("/api/health", s.handleHealth)
	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // first query may index the corpus
	}

	s.logger.Info("Search server starting", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Server shutdown", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// TrackChanges counts corpus changes reported after indexing. The index is
// not rebuilt; changes are picked up by the next process.
func (s *Server) TrackChanges(ctx context.Context, events <-chan ports.FileEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n := s.pending.Add(1)
			s.logger.Info("Corpus changed, restart to re-index",
				"path", ev.Path, "op", ev.Operation.String(), "pending", n)
		}
	}
}

// PendingChanges returns the number of corpus changes seen since start.
func (s *Server) PendingChanges() int64 {
	return s.pending.Load()
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query string
	switch r.Method {
	case http.MethodGet:
		query = r.URL.Query().Get("q")
	case http.MethodPost:
		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		query = req.Query
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}

	answer, err := s.engine.Answer(r.Context(), query)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, SearchResponse{Answer: answer, Found: true})
	case errors.Is(err, usecases.ErrNoAnswerFound):
		writeJSON(w, http.StatusOK, SearchResponse{Answer: usecases.MsgNoAnswerFound})
	case errors.Is(err, usecases.ErrEmbeddingFailure):
		writeJSON(w, http.StatusOK, SearchResponse{Answer: usecases.MsgEmbeddingFailure})
	default:
		s.logger.Error("Search failed", "error", err)
		writeError(w, http.StatusInternalServerError, usecases.MsgSearchFailed)
	}
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}

	k := usecases.DefaultTopK
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = min(n, maxResults)
	}

	results, err := s.engine.Retrieve(r.Context(), query, k)
	if err != nil {
		if errors.Is(err, usecases.ErrEmbeddingFailure) {
			writeError(w, http.StatusUnprocessableEntity, usecases.MsgEmbeddingFailure)
			return
		}
		s.logger.Error("Retrieve failed", "error", err)
		writeError(w, http.StatusInternalServerError, usecases.MsgSearchFailed)
		return
	}

	writeJSON(w, http.StatusOK, toItems(results))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:         "ok",
		State:          s.engine.State().String(),
		PendingChanges: s.pending.Load(),
	}
	n, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Warn("Failed to count records", "error", err)
		resp.Status = "degraded"
	}
	resp.Records = n
	writeJSON(w, http.StatusOK, resp)
}

func toItems(results []entities.QueryResult) []ResultItem {
	items := make([]ResultItem, 0, len(results))
	for _, r := range results {
		items = append(items, ResultItem{Score: r.Score, SourceID: r.SourceID, Text: r.Text})
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// corsMiddleware rejects requests from origins that are not allowed so that
// arbitrary web pages cannot read the local documents.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Origin")
		origin := r.Header.Get("Origin")
		if origin != "" {
			if _, ok := s.allowedOrigins[origin]; !ok {
				s.logger.Warn("Rejected cross-origin request", "origin", origin, "path", r.URL.Path)
				writeError(w, http.StatusForbidden, "origin not allowed")
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
