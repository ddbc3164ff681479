// Package server exposes the dashboard views and selection sessions over
// HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tariffsim/internal/cache"
	"tariffsim/internal/dataset"
	"tariffsim/internal/views"
)

const (
	defaultSessionTTL   = 30 * time.Minute
	defaultMaxSessions  = 10000
	defaultTopN         = 10
	defaultCacheTTL     = 5 * time.Minute
	shutdownGracePeriod = 10 * time.Second
)

type Options struct {
	Cache       cache.Cache
	CacheTTL    time.Duration
	SessionTTL  time.Duration
	MaxSessions int
	TopN        int
	Logger      zerolog.Logger
	Metrics     *Metrics
	// Now is used for session expiry; defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	ds        *dataset.Dataset
	router    *mux.Router
	cache     cache.Cache
	cacheTTL  time.Duration
	sessions  *sessionStore
	metrics   *Metrics
	logger    zerolog.Logger
	topN      int
	countries views.Options
	sectors   views.Options
}

func New(ds *dataset.Dataset, opts Options) *Server {
	if opts.Cache == nil {
		opts.Cache = cache.NopCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = defaultMaxSessions
	}
	if opts.TopN <= 0 {
		opts.TopN = defaultTopN
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		ds:        ds,
		router:    mux.NewRouter(),
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		sessions:  newSessionStore(opts.SessionTTL, opts.MaxSessions, opts.Now),
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		topN:      opts.TopN,
		countries: views.CountryOptions(ds.Table),
		sectors:   views.SectorOptions(ds.Table),
	}
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Str("version", s.ds.Version()).Msg("http server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/api/options", s.handleOptions).Methods(http.MethodGet)
	api.HandleFunc("/api/map", s.handleMap).Methods(http.MethodGet)
	api.HandleFunc("/api/ranked", s.handleRanked).Methods(http.MethodGet)
	api.HandleFunc("/api/detail", s.handleDetail).Methods(http.MethodGet)
	api.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)

	api.HandleFunc("/api/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/api/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/api/sessions/{id}/country", s.handleSelectCountry).Methods(http.MethodPost)
	api.HandleFunc("/api/sessions/{id}/sector", s.handleSelectSector).Methods(http.MethodPost)
	api.HandleFunc("/api/sessions/{id}/tariff", s.handleSetTariff).Methods(http.MethodPost)
	api.HandleFunc("/api/sessions/{id}/tariff/reset", s.handleResetTariff).Methods(http.MethodPost)
	api.HandleFunc("/api/sessions/{id}/views", s.handleSessionViews).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		s.metrics.Requests.WithLabelValues(route, r.Method, strconv.Itoa(wrapper.statusCode)).Inc()
		s.metrics.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		event := s.logger.Info()
		if wrapper.statusCode >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.
			Str("request_id", requestID(r)).
			Str("method", r.Method).
			Str("route", route).
			Int("status", wrapper.statusCode).
			Dur("duration", elapsed).
			Msg("request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
