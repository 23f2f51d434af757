package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"playgate/internal/platform/config"
	"playgate/internal/platform/logger"
	"playgate/internal/platform/metrics"
	"playgate/internal/platform/middleware"
	"playgate/internal/proxy"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	publicBase := config.GetEnv("PUBLIC_BASE_URL", "http://localhost:"+port)
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	sessionTTL := config.GetEnvDuration("SESSION_TTL", proxy.DefaultSessionTTL)
	sweepInterval := config.GetEnvDuration("SWEEP_INTERVAL", proxy.DefaultSweepInterval)
	upstreamTimeout := config.GetEnvDuration("UPSTREAM_TIMEOUT", proxy.DefaultUpstreamTimeout)

	log := logger.New(logLevel, logFormat)

	sessions := proxy.NewSessionManager(sessionTTL)
	rewriter := proxy.NewRewriter(publicBase)
	upstream := proxy.NewUpstreamClient(upstreamTimeout, proxy.UpstreamHeaders{
		UserAgent: config.GetEnv("UPSTREAM_USER_AGENT", ""),
		Referer:   config.GetEnv("UPSTREAM_REFERER", ""),
		Origin:    config.GetEnv("UPSTREAM_ORIGIN", ""),
	})
	met := metrics.New()
	h := proxy.NewHandler(sessions, rewriter, upstream, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetLiveSessions(sessions.Stats().TotalSessions) }).ServeHTTP(w, req)
	})
	r.Get("/proxy", h.Proxy)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Gzip)
		r.Post("/create-play-session", h.CreatePlaySession)
		r.Get("/stats", h.Stats)
		r.Route("/play-session/{id}", func(r chi.Router) {
			r.Get("/", h.GetPlaySession)
			r.Delete("/", h.DeletePlaySession)
		})
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sessions.RunSweeper(sweepCtx, sweepInterval, func(removed int) {
		log.Info("expired play sessions removed", "count", removed)
		met.AddSessionsExpired(removed)
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"public_base_url", publicBase,
		"session_ttl", sessionTTL.String(),
		"sweep_interval", sweepInterval.String(),
		"upstream_timeout", upstreamTimeout.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
