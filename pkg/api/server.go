// Package api is the HTTP surface: ingestion, history/stats, order queries
// and the websocket upgrade endpoint. Handlers validate input, delegate to
// the queue, cache and repositories, and answer with a uniform
// {success, message, errors|data} envelope.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ingest-pipeline/pkg/order"
	"ingest-pipeline/pkg/record"
)

type Queue interface {
	Enqueue(ctx context.Context, rec record.Record) error
	EnqueueBatch(ctx context.Context, records []record.Record) []error
}

type RecordHistory interface {
	History(ctx context.Context, limit int) ([]record.Record, error)
}

// KV exposes the aggregate counters.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

type OrderReader interface {
	GetPage(ctx context.Context, page, limit int) (*order.Page, bool, error)
	GetByID(ctx context.Context, id string) (*order.Order, bool, error)
	GetSearch(ctx context.Context, q string, page, limit int) (*order.Page, bool, error)
	GetStats(ctx context.Context) (*order.Stats, bool, error)
}

type OrderWriter interface {
	SaveAll(ctx context.Context, inputs []order.CreateInput) ([]order.Order, error)
}

type Server struct {
	Queue      Queue
	Records    RecordHistory
	Keys       KV
	Orders     OrderReader
	OrderStore OrderWriter
	// WSHandler is set only in the process that owns client sockets.
	WSHandler http.HandlerFunc
	PageSize  int
	Log       *slog.Logger
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)

		r.Route("/data", func(r chi.Router) {
			r.Post("/ingest", s.ingest)
			r.Get("/history", s.history)
			r.Get("/stats", s.dataStats)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", s.listOrders)
			r.Post("/", s.createOrders)
			r.Get("/stats", s.orderStats)
			r.Get("/search", s.searchOrders)
			r.Get("/{id}", s.orderByID)
		})
	})

	if s.WSHandler != nil {
		r.Get("/ws", s.WSHandler)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Message: "Route not found"})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "API running"})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.Log.Info("request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

// envelope is the uniform response body of every synchronous endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

// pageEnvelope flattens pagination fields into the response body.
type pageEnvelope struct {
	Success bool          `json:"success"`
	Data    []order.Order `json:"data"`
	Page    int           `json:"page"`
	Limit   int           `json:"limit"`
	Total   int           `json:"total"`
	Cached  bool          `json:"cached"`
}

// Issue is one field-level validation problem.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func validationFailed(w http.ResponseWriter, issues []Issue) {
	writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Validation failed", Errors: issues})
}

func internalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "Something went wrong"})
}
