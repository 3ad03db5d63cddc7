// Package httpapi exposes the alarm-player process's unauthenticated
// operational endpoints: health checks and Prometheus metrics.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/alarm-player/internal/alarmstate"
	"github.com/snarg/alarm-player/internal/broker"
	"github.com/snarg/alarm-player/internal/database"
	"github.com/snarg/alarm-player/internal/metrics"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

type Options struct {
	Addr           string
	RateLimitRPS   float64
	RateLimitBurst int
	DB             *database.DB
	Broker         *broker.Client
	Service        *alarmstate.Service
	StartTime      time.Time
	Log            zerolog.Logger
}

func NewServer(opts Options) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(metrics.InstrumentHandler)
	if opts.RateLimitRPS > 0 {
		r.Use(rateLimiter(opts.RateLimitRPS, opts.RateLimitBurst))
	}

	health := NewHealthHandler(opts.DB, opts.Broker, opts.Service, opts.StartTime)
	r.Get("/healthz", health.ServeHTTP)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return &Server{
		http: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: opts.Log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
