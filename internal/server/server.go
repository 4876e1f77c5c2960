/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/showrunner/internal/api"
	"github.com/friendsincode/showrunner/internal/audit"
	"github.com/friendsincode/showrunner/internal/cache"
	"github.com/friendsincode/showrunner/internal/config"
	"github.com/friendsincode/showrunner/internal/db"
	"github.com/friendsincode/showrunner/internal/display"
	"github.com/friendsincode/showrunner/internal/eventbus"
	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/leadership"
	"github.com/friendsincode/showrunner/internal/live"
	"github.com/friendsincode/showrunner/internal/logbuffer"
	"github.com/friendsincode/showrunner/internal/program"
	"github.com/friendsincode/showrunner/internal/store"
	"github.com/friendsincode/showrunner/internal/telemetry"
	"github.com/friendsincode/showrunner/internal/version"
	"github.com/friendsincode/showrunner/internal/webhooks"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	cache     *cache.Cache
	logBuffer *logbuffer.Buffer
	nodeID    string
	bus       events.Broker
	redisBus  *eventbus.RedisBus
	election  *leadership.Election
	api       *api.API
	programs  *program.Service
	live      *live.Controller
	monitor   *live.Monitor
	auditSvc  *audit.Service
	display   *display.Publisher
	webhooks  *webhooks.Service

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New connects every dependency, starts the background workers and returns
// a server ready for ListenAndServe. logBuf may be nil.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.EnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("showrunner-api"))
	router.Use(telemetry.MetricsMiddleware)
	// The live feed is a long-lived websocket and must not be cut by the timeout.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
		nodeID:    eventbus.NewNodeID(cfg.InstanceID),
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// Websocket feeds manage their own deadlines; other routes use the middleware timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}

	if s.cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		s.cache = cache.New(cacheCfg, s.logger)
		s.DeferClose(func() error { return s.cache.Close() })
	}

	s.initBus()

	st := store.New(database, s.cache, s.logger)
	planner := program.NewPlanner(st, s.bus, s.logger)
	s.programs = program.NewService(st, planner, s.bus, s.cfg.MaxDays, s.logger)
	s.live = live.NewController(st, planner, s.bus, s.cache, time.Now, s.logger)
	s.monitor = live.NewMonitor(s.live, st, s.bus, s.cache, s.cfg.LiveTick, s.logger)
	s.auditSvc = audit.NewService(database, s.bus, s.logger)
	s.webhooks = webhooks.NewService(database, s.bus, s.live, s.logger)

	if s.cfg.MQTTBrokerURL != "" {
		sink, err := display.NewMQTTSink(s.cfg.MQTTBrokerURL, s.cfg.MQTTClientID, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Str("broker", s.cfg.MQTTBrokerURL).Msg("stage display publisher disabled")
		} else {
			s.DeferClose(func() error { sink.Close(); return nil })
			s.display = display.NewPublisher(sink, s.live, s.bus, s.cfg.MQTTTopicPrefix, s.logger)
		}
	}

	if s.cfg.LeaderElection {
		electionCfg := leadership.DefaultConfig()
		electionCfg.RedisAddr = s.cfg.RedisAddr
		electionCfg.RedisPassword = s.cfg.RedisPassword
		electionCfg.RedisDB = s.cfg.RedisDB
		electionCfg.InstanceID = s.nodeID
		election, err := leadership.NewElection(electionCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("leader election unavailable, live monitor runs on this instance")
		} else {
			s.election = election
			s.DeferClose(election.Close)
		}
	}

	s.api = api.New(s.programs, s.live, s.auditSvc, s.bus, s.logger)
	if s.logBuffer != nil {
		s.api.SetLogBuffer(s.logBuffer)
	}
	s.api.SetWebhooks(s.webhooks)

	return nil
}

func (s *Server) initBus() {
	switch s.cfg.EventBus {
	case config.EventBusRedis:
		busCfg := eventbus.DefaultRedisConfig()
		busCfg.Addr = s.cfg.RedisAddr
		busCfg.Password = s.cfg.RedisPassword
		busCfg.DB = s.cfg.RedisDB
		rb := eventbus.NewRedisBus(busCfg, s.nodeID, s.logger)
		s.redisBus = rb
		s.bus = rb
		s.DeferClose(rb.Close)
	case config.EventBusNATS:
		busCfg := eventbus.DefaultNATSConfig()
		busCfg.URL = s.cfg.NATSURL
		nb := eventbus.NewNATSBus(busCfg, s.nodeID, s.logger)
		s.bus = nb
		s.DeferClose(nb.Close)
	default:
		s.bus = events.NewBus()
	}
	s.logger.Info().Str("bus", string(s.cfg.EventBus)).Str("node_id", s.nodeID).Msg("event bus ready")
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.goWorker(ctx, "audit", func(ctx context.Context) error {
		s.auditSvc.Start(ctx)
		return nil
	})

	// With an election the monitor only ticks on the leader so live.delay is
	// published once per deployment.
	if s.election != nil {
		election := s.election
		s.goWorker(ctx, "leader election", election.Run)
		gate := leadership.NewGate(election, "live_monitor", s.monitor.Run, s.logger)
		s.goWorker(ctx, "live monitor gate", gate.Run)
	} else {
		s.goWorker(ctx, "live monitor", s.monitor.Run)
	}

	s.goWorker(ctx, "webhooks", func(ctx context.Context) error {
		s.webhooks.Start(ctx)
		return nil
	})

	if s.display != nil {
		s.goWorker(ctx, "display publisher", s.display.Run)
	}

	if s.cache != nil {
		s.goWorker(ctx, "cache invalidation", func(ctx context.Context) error {
			s.cache.Watch(ctx, s.bus)
			return nil
		})
	}

	if s.redisBus != nil {
		s.goWorker(ctx, "redis bus reconnect", func(ctx context.Context) error {
			s.redisBus.Run(ctx)
			return nil
		})
	}

	s.goWorker(ctx, "db metrics", func(ctx context.Context) error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	})
}

func (s *Server) goWorker(ctx context.Context, name string, run func(ctx context.Context) error) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Str("worker", name).Msg("background worker exited")
		}
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Bus      string `json:"bus"`
	Database string `json:"database"`
	Leader   *bool  `json:"leader,omitempty"`
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:   "ok",
			Version:  version.Version,
			Bus:      string(s.cfg.EventBus),
			Database: "ok",
		}
		code := http.StatusOK

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx, s.db); err != nil {
			s.logger.Warn().Err(err).Msg("health check: database unreachable")
			resp.Status = "degraded"
			resp.Database = "unreachable"
			code = http.StatusServiceUnavailable
		}
		if s.election != nil {
			leader := s.election.IsLeader()
			resp.Leader = &leader
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
