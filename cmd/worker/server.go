package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"nba_analytics/ingestion/internal/cache"
	"nba_analytics/ingestion/internal/repository"
	"nba_analytics/ingestion/internal/scheduler"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// healthCheck pings one dependency
type healthCheck func(ctx context.Context) error

// batchStatus exposes the most recent batch run
type batchStatus interface {
	Last() *scheduler.BatchResult
}

type server struct {
	http *http.Server
}

func newServer(port int, enableMetrics bool, db *repository.Database, redisCache *cache.RedisCache, batch batchStatus) *server {
	checks := map[string]healthCheck{"database": db.Health}
	if redisCache != nil {
		checks["redis"] = redisCache.Ping
	}

	return &server{http: &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      newRouter(enableMetrics, checks, batch),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}}
}

func newRouter(enableMetrics bool, checks map[string]healthCheck, batch batchStatus) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	if enableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health", healthHandler(checks))
	r.Get("/status", statusHandler(batch))
	return r
}

func (s *server) start() {
	log.Info().Str("addr", s.http.Addr).Msg("Starting ops server")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Ops server failed")
	}
}

func (s *server) shutdown(ctx context.Context) {
	if err := s.http.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Ops server shutdown failed")
	}
}

func healthHandler(checks map[string]healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)

		status := "healthy"
		code := http.StatusOK
		deps := make(map[string]string, len(checks))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				deps[name] = err.Error()
				status = "unhealthy"
				code = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		writeJSON(w, code, map[string]any{"status": status, "dependencies": deps})
	}
}

func statusHandler(batch batchStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last := batch.Last()
		if last == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "no runs yet"})
			return
		}
		writeJSON(w, http.StatusOK, last)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
