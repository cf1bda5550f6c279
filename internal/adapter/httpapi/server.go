// Package httpapi exposes the classification API: prediction, event range
// queries, health, readiness, and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/crisis-tweet-etl/internal/config"
	"github.com/couchcryptid/crisis-tweet-etl/internal/domain"
	"github.com/couchcryptid/crisis-tweet-etl/internal/labeler"
	"github.com/couchcryptid/crisis-tweet-etl/internal/observability"
	"github.com/couchcryptid/crisis-tweet-etl/internal/store"
)

// EventStore persists and queries classification events.
type EventStore interface {
	Insert(ctx context.Context, ev domain.ClassificationEvent) error
	Between(ctx context.Context, start, end time.Time, limit int) ([]domain.ClassificationEvent, error)
	Ping(ctx context.Context) error
}

// Labeler classifies one cleaned text. Ping probes the model service so
// readiness can report it alongside the event store.
type Labeler interface {
	Label(ctx context.Context, text string) (labeler.Result, error)
	Ping(ctx context.Context) error
}

// EventPublisher streams stored events to downstream consumers. A nil
// publisher disables the stream.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.ClassificationEvent) error
}

// Server exposes the classification API over HTTP.
type Server struct {
	httpServer *http.Server
	store      EventStore
	labeler    Labeler
	publisher  EventPublisher
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewServer creates the API server with all routes mounted.
func NewServer(cfg *config.Config, store EventStore, lab Labeler, publisher EventPublisher, metrics *observability.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		store:     store,
		labeler:   lab,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Post("/predict-tweet", s.handlePredictTweet)
	r.Get("/events", s.handleEvents)
	r.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// corsMiddleware allows the configured frontend origins and short-circuits
// preflight requests.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSuffix(o, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if _, ok := allowed[strings.TrimSuffix(origin, "/")]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
					w.Header().Set("Vary", "Origin")
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  "event store: " + err.Error(),
		})
		return
	}
	if err := s.labeler.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  "model service: " + err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type predictTweetRequest struct {
	Text string `json:"text"`
}

func (s *Server) handlePredictTweet(w http.ResponseWriter, r *http.Request) {
	var req predictTweetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}

	result, err := s.labeler.Label(r.Context(), text)
	if err != nil {
		s.logger.Error("model call failed", "error", err)
		writeError(w, http.StatusBadGateway, "model service error: "+err.Error())
		return
	}

	event := domain.ClassificationEvent{
		ID:                  uuid.NewString(),
		CleanedTweet:        text,
		IsRealDisaster:      result.IsDisaster,
		DisasterProbability: result.Probability,
		EvaluatedAt:         domain.Now(),
	}

	if err := s.store.Insert(r.Context(), event); err != nil {
		s.logger.Error("event insert failed", "error", err)
		writeError(w, http.StatusInternalServerError, "event store error")
		return
	}
	s.metrics.EventsStored.Inc()

	// The stream is best effort. A broker outage must not fail the request.
	if s.publisher != nil {
		if err := s.publisher.Publish(r.Context(), event); err != nil {
			s.metrics.EventStreamFailures.Inc()
			s.logger.Warn("event stream publish failed", "event_id", event.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := parseISOTime(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start timestamp, use ISO 8601")
		return
	}
	end, err := parseISOTime(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end timestamp, use ISO 8601")
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end must be the same or after start")
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > store.MaxEventLimit {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("limit must be between 1 and %d", store.MaxEventLimit))
			return
		}
	}

	events, err := s.store.Between(r.Context(), start, end, limit)
	if err != nil {
		s.logger.Error("event query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "event store error")
		return
	}
	s.metrics.EventQueries.Inc()

	writeJSON(w, http.StatusOK, events)
}

// parseISOTime accepts RFC 3339 timestamps and the naive ISO 8601 form
// without an offset, which is interpreted as UTC. Fractional seconds are
// accepted in either form; time.Parse allows them even when the layout
// carries no fractional field.
func parseISOTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02T15:04:05", raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail}) //nolint:errcheck
}
