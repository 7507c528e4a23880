package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"casegate/internal/audit"
	caseshandler "casegate/internal/cases/handler"
	"casegate/internal/cases/proxy"
	"casegate/internal/platform/config"
	"casegate/internal/platform/httpserver"
	"casegate/internal/platform/logger"
	"casegate/internal/platform/metrics"
	"casegate/internal/platform/middleware"
	platformredis "casegate/internal/platform/redis"
	"casegate/internal/querycache"
	"casegate/internal/registry/aggregate"
	"casegate/internal/registry/companieshouse"
	"casegate/internal/registry/fca"
	registryhandler "casegate/internal/registry/handler"
	"casegate/pkg/platform/httputil"
)

// main wires the gateway: the case proxy surface, the registry aggregation
// surface, the query cache behind both, and the audit sink. Business logic
// lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx := context.Background()

	cache, redisClient := buildCache(ctx, cfg, log)
	auditPub := buildAudit(cfg, log)
	defer auditPub.Close()

	upstream := proxy.New(cfg.BackendBaseURL, cfg.ProxyReadTimeout, log, proxy.WithMetrics(m))
	cases := caseshandler.New(upstream, cache, auditPub, log,
		cfg.SearchCacheTTL, cfg.DetailCacheTTL, caseshandler.WithMetrics(m))

	fcaClient := fca.New(cfg.RegistryBaseURL, cfg.RegistryTimeout, log)
	chClient := companieshouse.New(cfg.RegistryBaseURL, cfg.RegistryTimeout, log)
	registrySvc := aggregate.New(fcaClient, chClient, cache, log,
		cfg.SearchCacheTTL, cfg.DetailCacheTTL, aggregate.WithMetrics(m))
	registry := registryhandler.New(registrySvc, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))
	router.Use(middleware.ContentTypeJSON)

	cases.Register(router)
	registry.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := cache.Health(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting casegate",
		"addr", cfg.Addr,
		"backend", cfg.BackendBaseURL,
		"registry", cfg.RegistryBaseURL,
		"redis", cfg.RedisURL != "",
		"kafka", len(cfg.KafkaBrokers) > 0,
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

// buildCache selects the Redis cache when configured, falling back to the
// in-process cache on any Redis failure rather than refusing to start.
func buildCache(ctx context.Context, cfg config.Config, log *slog.Logger) (querycache.Cache, *platformredis.Client) {
	client, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn("redis unavailable, using in-process cache", "error", err)
		return querycache.NewMemory(), nil
	}
	if client == nil {
		return querycache.NewMemory(), nil
	}
	return querycache.NewRedis(client.Client), client
}

func buildAudit(cfg config.Config, log *slog.Logger) audit.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return audit.NewLogPublisher(log)
	}
	pub, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.AuditTopic, log)
	if err != nil {
		log.Warn("kafka unavailable, audit events go to the log", "error", err)
		return audit.NewLogPublisher(log)
	}
	return pub
}
