// Package server serves the cache store read-only over HTTP, together with a
// liveness probe and the Prometheus metrics. CORS is open: the server is a
// local development aid.
package server

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/RajVeer36399/tmdb-proxy/pkg/cache"
	"github.com/RajVeer36399/tmdb-proxy/pkg/metrics"
	"github.com/rs/zerolog"
)

// shutdownTimeout bounds the graceful shutdown after the context ends.
const shutdownTimeout = 5 * time.Second

// Server exposes a cache.Store over HTTP.
type Server struct {
	store  cache.Store
	logger zerolog.Logger
}

// New creates a server reading from store.
func New(store cache.Store, logger zerolog.Logger) *Server {
	return &Server{store: store, logger: logger}
}

// Handler returns the routed handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /cache/{key}", s.handleCache)
	mux.Handle("GET /metrics", metrics.Handler())
	return cors(s.logRequests(mux))
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Cache server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info().Msg("Cache server stopped")
	return nil
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !cache.ValidKey(key) {
		http.Error(w, "invalid cache key", http.StatusBadRequest)
		return
	}

	data, err := s.store.Get(r.Context(), key)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		http.NotFound(w, r)
		return
	case err != nil:
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to read cache entry")
		http.Error(w, "cache read failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType(key))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("Failed to write response")
	}
}

func contentType(key string) string {
	if path.Ext(key) == ".json" {
		return "application/json; charset=utf-8"
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// cors opens the API to any origin and answers preflight requests directly.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request")
	})
}
