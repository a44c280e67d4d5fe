package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	ctxerrors "github.com/sandy-sachin7/contextd/internal/errors"
	"github.com/sandy-sachin7/contextd/internal/query"
	"github.com/sandy-sachin7/contextd/internal/store"
)

// Searcher is the narrow slice of *query.Engine the HTTP surface depends on.
type Searcher interface {
	Search(ctx context.Context, req query.Request) ([]query.Hit, error)
}

// Config controls the HTTP server's behavior.
type Config struct {
	Addr           string
	QueryTimeout   time.Duration
	ModelType      string
	ModelDim       int
	EmbedderReady  func() bool // returns false while the model is still loading
}

// Server is the daemon's HTTP transport: POST /query, GET /health, GET /status.
type Server struct {
	engine Searcher
	stats  StatsSource
	cfg    Config
	mux    *http.ServeMux
}

// New builds a Server wired to engine (normally *query.Engine) and stats
// (normally *store.Store).
func New(engine Searcher, stats StatsSource, cfg Config) *Server {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 5 * time.Second
	}
	s := &Server{engine: engine, stats: stats, cfg: cfg, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /query", s.handleQuery)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleQuery implements POST /query: 200 on success, 400 on a malformed
// body, 503 while the embedder isn't ready yet, 408 on a deadline-exceeded
// search, per §6.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.cfg.EmbedderReady != nil && !s.cfg.EmbedderReady() {
		writeError(w, http.StatusServiceUnavailable, "embedder not ready")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	hits, err := s.engine.Search(ctx, query.Request{
		Query: req.Query,
		Limit: req.Limit,
		Predicates: store.Predicates{
			FileTypes: req.FileTypes,
			MTimeFrom: req.StartTime,
			MTimeTo:   req.EndTime,
			MinScore:  req.MinScore,
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ctxerrors.ErrQueryTimeout) {
			writeError(w, http.StatusRequestTimeout, "query timed out")
			return
		}
		slog.Error("httpapi: query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	results := make([]ResultDTO, len(hits))
	for i, h := range hits {
		results[i] = ResultDTO{
			Content:      h.Text,
			Score:        h.Score,
			Path:         h.Path,
			LastModified: h.Mtime,
			Kind:         h.Kind,
			Symbol:       h.Symbol,
			HeadingPath:  h.HeadingPath,
		}
	}
	writeJSON(w, http.StatusOK, QueryResponse{Results: results})
}

// handleHealth is a liveness probe: 200 unconditionally, per §6.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.Stats(r.Context())
	if err != nil {
		slog.Error("httpapi: stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		IndexedFiles: st.FileCount,
		TotalChunks:  st.ChunkCount,
		DBSizeBytes:  st.SizeBytes,
		ModelType:    s.cfg.ModelType,
		ModelDim:     s.cfg.ModelDim,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("httpapi: encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
