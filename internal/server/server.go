// Package server exposes the search engine as a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/boing-search/internal/metrics"
	"github.com/kitbuilder587/boing-search/internal/ratelimit"
	"github.com/kitbuilder587/boing-search/internal/search"
)

const surface = "http"

// Searcher is the part of the engine the server needs.
type Searcher interface {
	FirstSearch(ctx context.Context, query string, pref search.Preference) (*search.Response, error)
	NextPage(ctx context.Context, token search.Token) (*search.Response, error)
}

// QuotaSource reports the remaining premium searches.
type QuotaSource interface {
	SearchesLeft(ctx context.Context) (int, error)
}

type Config struct {
	Addr string
	// BasePath - публичный адрес, из него строится ссылка next.
	BasePath          string
	RequestsPerMinute int
}

type Deps struct {
	Engine  Searcher
	Quota   QuotaSource
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type Server struct {
	engine   Searcher
	quota    QuotaSource
	limiter  *ratelimit.Limiter
	basePath string
	addr     string
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	basePath := cfg.BasePath
	if !strings.HasSuffix(basePath, "/") {
		basePath += "/"
	}
	return &Server{
		engine:   deps.Engine,
		quota:    deps.Quota,
		limiter:  ratelimit.New(ratelimit.Config{RequestsPerMinute: cfg.RequestsPerMinute}),
		basePath: basePath,
		addr:     cfg.Addr,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", s.instrument("search", s.handleSearch))
	mux.HandleFunc("GET /api/next", s.instrument("next", s.handleNext))
	mux.HandleFunc("GET /api/account", s.instrument("account", s.handleAccount))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.limiter.RunCleanup(ctx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("http server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// statusWriter запоминает код ответа для метрик.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(op string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		if s.metrics != nil {
			s.metrics.IncRequestsInFlight()
			defer s.metrics.DecRequestsInFlight()
		}

		next(sw, r)

		if s.metrics != nil {
			s.metrics.RecordRequest(surface, strconv.Itoa(sw.status), time.Since(start))
		}
		s.logger.Debug("request handled",
			zap.String("op", op),
			zap.Int("status", sw.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *Server) allow(w http.ResponseWriter, r *http.Request) bool {
	key := clientKey(r)
	if s.limiter.Allow(key) {
		return true
	}
	s.logger.Warn("rate limit exceeded",
		zap.String("client", key),
		zap.Time("reset_at", s.limiter.ResetTime(key)),
	)
	if s.metrics != nil {
		s.metrics.RecordRateLimitHit(surface)
	}
	w.Header().Set("Retry-After", "60")
	s.writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, try again in a minute")
	return false
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
