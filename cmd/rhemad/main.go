// Package main is the rhemad daemon entry point: it loads configuration,
// wires the Git operation layer, cache, coordination kernel, context
// store, query engine and filesystem watcher together, then serves the
// MCP Context Server on every transport the configuration enables.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fugue-ai/rhema/internal/cache"
	"github.com/fugue-ai/rhema/internal/config"
	"github.com/fugue-ai/rhema/internal/cql"
	"github.com/fugue-ai/rhema/internal/gitlayer"
	"github.com/fugue-ai/rhema/internal/kernel"
	"github.com/fugue-ai/rhema/internal/logging"
	"github.com/fugue-ai/rhema/internal/mcpserver"
	"github.com/fugue-ai/rhema/internal/metrics"
	"github.com/fugue-ai/rhema/internal/scopegraph"
	"github.com/fugue-ai/rhema/internal/store"
	"github.com/fugue-ai/rhema/internal/utils"
	"github.com/fugue-ai/rhema/internal/version"
	"github.com/fugue-ai/rhema/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "path to the daemon's YAML config file")
	repoRoot := flag.String("repo", ".", "path to the Git repository rhemad manages")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("rhemad: loading config: %v", err)
	}

	logger := logging.New("rhemad", cfg.Daemon.LogLevel, cfg.Daemon.LogFormat)
	logger.WithFields(map[string]any{"version": version.FullVersion()}).Info("starting rhemad")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	cacheInst, err := cache.New(cfg.Cache, os.TempDir(), nil, logger, m)
	if err != nil {
		log.Fatalf("rhemad: building cache: %v", err)
	}

	git, err := gitlayer.New(*repoRoot, logger, m, cacheInst)
	if err != nil {
		log.Fatalf("rhemad: opening repository at %s: %v", *repoRoot, err)
	}

	k := kernel.New(cfg.Kernel, logger, m)
	ctxStore := store.New(git, k.Locks())
	executor := cql.NewExecutor(ctxStore, cacheInst, false)
	generator := scopegraph.NewGenerator()

	sweeper, err := cache.NewSweeper(cacheInst, "@every 30s", logger)
	if err != nil {
		log.Fatalf("rhemad: scheduling cache sweeper: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Watcher.Enabled && len(cfg.Watcher.WatchDirs) > 0 {
		w, err := watcher.New(cfg.Watcher, cacheInst, logger)
		if err != nil {
			log.Fatalf("rhemad: starting filesystem watcher: %v", err)
		}
		w.Start(ctx)
		utils.SafeGo(func() { w.InvalidateLoop(ctx) }, func(err error) {
			logger.WithError(err).Error("cache invalidation loop panicked")
		})
	}

	health, err := mcpserver.NewHealthReporter(int32(os.Getpid()))
	if err != nil {
		logger.WithError(err).Warn("rhema.health process sampling unavailable")
		health = nil
	}

	auth, err := mcpserver.NewAuthenticator(cfg.Security)
	if err != nil {
		log.Fatalf("rhemad: configuring authentication: %v", err)
	}

	window := time.Duration(cfg.Security.RateLimitWindowS) * time.Second
	limiter := mcpserver.NewRateLimiterWithWindow(cfg.Security.RateLimitRequests, window, cfg.Security.RateLimitRequests, logger)
	limiter.SetMaxSize(10000)
	limiter.SetLimiterTTL(24 * time.Hour)
	stopCleanup := limiter.StartCleanup(5 * time.Minute)
	defer stopCleanup()

	sessions := mcpserver.NewSessionManager(m)

	server := mcpserver.NewServer(mcpserver.Deps{
		Kernel:    k,
		Store:     ctxStore,
		Executor:  executor,
		Generator: generator,
		Git:       git,
		RepoRoot:  *repoRoot,
		Sessions:  sessions,
		Auth:      auth,
		Limiter:   limiter,
		Health:    health,
		Metrics:   m,
		Log:       logger,
		Name:      "rhemad",
		Version:   version.Version,
	})

	cors := mcpserver.NewCORSMiddleware(&mcpserver.CORSConfig{
		AllowedOrigins:         cfg.Security.AllowedOrigins,
		RejectDisallowedOrigin: true,
	})
	bodyLimit := mcpserver.NewBodyLimitMiddleware(0)
	timeout := mcpserver.NewTimeoutMiddleware(0)

	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", mcpserver.MetricsAuthMiddleware(cfg.Security.APIKey, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	if cfg.MCP.EnableHTTP {
		adminMux.Handle("/rpc", mcpserver.NewHTTPTransport(server, cors, bodyLimit, timeout))
		adminMux.HandleFunc("/healthz", mcpserver.LivenessHandler())
	}
	if cfg.MCP.EnableWebsocket {
		adminMux.Handle("/ws", mcpserver.NewWebSocketTransport(server, cors))
	}

	addr := cfg.Daemon.Host + ":" + strconv.Itoa(cfg.Daemon.Port)
	httpServer := &http.Server{Addr: addr, Handler: adminMux}

	shutdown := mcpserver.NewGracefulShutdown(httpServer, 0)
	shutdown.OnShutdown(cancel)
	shutdown.ListenForSignals()

	if cfg.MCP.EnableUnixSocket && cfg.Daemon.UnixSocket != "" {
		listener, err := mcpserver.Listen(cfg.Daemon.UnixSocket)
		if err != nil {
			log.Fatalf("rhemad: binding unix socket %s: %v", cfg.Daemon.UnixSocket, err)
		}
		udsServer := &http.Server{Handler: mcpserver.NewUnixSocketRouter(server)}
		shutdown.OnShutdown(func() { _ = udsServer.Close() })
		utils.SafeGo(func() {
			if err := udsServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("unix socket transport stopped")
			}
		}, func(err error) {
			logger.WithError(err).Error("unix socket transport panicked")
		})
	}

	logger.WithFields(map[string]any{"addr": addr}).Info("rhemad listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("rhemad: http server stopped: %v", err)
	}

	shutdown.Wait()
}
