// Package api serves the harvest and calculation pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/CodedDrexler/eCalc-Auto/internal/calc"
	"github.com/CodedDrexler/eCalc-Auto/internal/config"
)

// StatusMessage is returned by GET /.
const StatusMessage = "eCalc Automation API is running"

// Pipeline logs in, harvests up to limit setups for inputs and calculates
// each one.
type Pipeline func(ctx context.Context, inputs map[string]string, limit int) ([]calc.CalculationResult, error)

// Server owns the HTTP listener. Calculations share one browser profile, so
// at most one runs at a time; concurrent requests get 503.
type Server struct {
	cfg      config.ServeConfig
	pipeline Pipeline
	logger   *zap.Logger
	busy     sync.Mutex
}

// NewServer returns a Server running pipeline for every calculate request.
func NewServer(cfg config.ServeConfig, pipeline Pipeline, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: pipeline,
		logger:   logger.Named("api"),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/", s.handleStatus)
	r.Get("/healthz", s.handleStatus)
	r.Post("/api/calculate", s.handleCalculate)
	return r
}

// Serve listens on ln until ctx is done, then shuts down gracefully.
// Running calculations see ctx's cancellation through their request
// context.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("API listening.", zap.String("address", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API.")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error.", zap.Error(err))
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// ListenAndServe opens the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": StatusMessage})
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var in SetupFinderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	inputs, missing := in.Inputs()
	if len(missing) > 0 {
		s.respondWithError(w, http.StatusUnprocessableEntity, "Missing fields: "+strings.Join(missing, ", "))
		return
	}

	if !s.busy.TryLock() {
		w.Header().Set("Retry-After", "60")
		s.respondWithError(w, http.StatusServiceUnavailable, "A calculation is already running.")
		return
	}
	defer s.busy.Unlock()

	logger := s.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))
	logger.Info("Received calculation request.", zap.Any("inputs", inputs))

	results, err := s.pipeline(r.Context(), inputs, s.cfg.Limit)
	if err != nil {
		logger.Error("Calculation request failed.", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]MotorResult, len(results))
	for i, res := range results {
		out[i] = NewMotorResult(res)
	}
	logger.Info("Calculation request finished.", zap.Int("results", len(out)))
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, errorResponse{Detail: message})
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode response.", zap.Error(err))
	}
}

// accessLog writes one zap line per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
