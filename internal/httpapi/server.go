package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/ent0n29/dailyquote/internal/config"
	"github.com/ent0n29/dailyquote/internal/content"
	"github.com/ent0n29/dailyquote/internal/generation"
	"github.com/ent0n29/dailyquote/internal/objectstore"
	"github.com/ent0n29/dailyquote/internal/observability"
	"github.com/ent0n29/dailyquote/internal/ratelimit"
)

// Generator is satisfied by *generation.Orchestrator.
type Generator interface {
	Generate(ctx context.Context, opts generation.Options) (generation.Result, error)
	Today() time.Time
}

type Server struct {
	cfg       config.Config
	generator Generator
	records   content.Store
	media     objectstore.Store
	guard     *ratelimit.Guard
	metrics   *observability.Metrics
	logger    zerolog.Logger
	validate  *validator.Validate
	limits    map[ratelimit.Class]ratelimit.Limit
}

func New(
	cfg config.Config,
	generator Generator,
	records content.Store,
	media objectstore.Store,
	guard *ratelimit.Guard,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Server {
	return &Server{
		cfg:       cfg,
		generator: generator,
		records:   records,
		media:     media,
		guard:     guard,
		metrics:   metrics,
		logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		limits: map[ratelimit.Class]ratelimit.Limit{
			ratelimit.ClassScheduled: ratelimit.LimitFor(ratelimit.ClassScheduled),
			ratelimit.ClassManual:    ratelimit.LimitFor(ratelimit.ClassManual),
			ratelimit.ClassGeneral:   ratelimit.LimitFor(ratelimit.ClassGeneral),
		},
	}
}

// WithLimit overrides the limit applied to class. Must be called before Router.
func (s *Server) WithLimit(class ratelimit.Class, limit ratelimit.Limit) *Server {
	s.limits[class] = limit
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/api/perf/stages", s.handlePerfStages)

	r.Group(func(r chi.Router) {
		r.Use(s.limited(ratelimit.ClassScheduled))
		r.Get("/api/cron/generate", s.handleScheduledGenerate)
		r.Post("/api/cron/generate", s.handleScheduledGenerate)
	})
	r.Group(func(r chi.Router) {
		r.Use(s.limited(ratelimit.ClassManual))
		r.Post("/api/admin/generate", s.handleManualGenerate)
	})
	r.Group(func(r chi.Router) {
		r.Use(s.limited(ratelimit.ClassGeneral))
		r.Get("/api/quotes/today", s.handleToday)
		r.Get("/api/quotes/{date}", s.handleByDate)
		r.Get("/api/quotes", s.handleRecent)
		r.Get("/media/*", s.handleMedia)
	})
	return r
}

func (s *Server) limited(class ratelimit.Class) func(http.Handler) http.Handler {
	if s.guard == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.guard.Middleware(class, s.limits[class])
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"env":        s.cfg.Env,
		"store_mode": s.storeMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.records == nil || s.generator == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.records.GetByDate(ctx, s.generator.Today()); err != nil && !errors.Is(err, content.ErrNotFound) {
		s.logger.Warn().Err(err).Msg("readiness probe failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":     "not_ready",
			"store_mode": s.storeMode(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"store_mode": s.storeMode(),
	})
}

func (s *Server) storeMode() string {
	if s.records == nil {
		return "disabled"
	}
	return content.StoreMode(s.records)
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Success: false, Message: message, Code: code})
}
