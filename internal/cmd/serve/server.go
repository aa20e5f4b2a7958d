package serve

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/recallhq/recall-service/internal/config"
	"github.com/recallhq/recall-service/internal/memory"
	routememories "github.com/recallhq/recall-service/internal/plugin/route/memories"
	routerespcache "github.com/recallhq/recall-service/internal/plugin/route/respcache"
	routesystem "github.com/recallhq/recall-service/internal/plugin/route/system"
	registryembed "github.com/recallhq/recall-service/internal/registry/embed"
	registrylongterm "github.com/recallhq/recall-service/internal/registry/longterm"
	registrymigrate "github.com/recallhq/recall-service/internal/registry/migrate"
	registryrespcache "github.com/recallhq/recall-service/internal/registry/respcache"
	registryroute "github.com/recallhq/recall-service/internal/registry/route"
	registryshortterm "github.com/recallhq/recall-service/internal/registry/shortterm"
	"github.com/recallhq/recall-service/internal/respcache"
	"github.com/recallhq/recall-service/internal/security"
	"github.com/recallhq/recall-service/internal/service"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config     *config.Config
	Memory     *memory.Service
	Cache      *respcache.Cache
	Router     *gin.Engine
	Port       int
	httpServer *http.Server
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// StartServer initializes all subsystems and starts the HTTP listener.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting recall service",
		"httpPort", cfg.Listener.Port,
		"shortTerm", cfg.ShortTermType,
		"longTerm", cfg.LongTermType,
		"cache", cfg.RespCacheType,
		"embedding", cfg.EmbedType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	ctx = config.WithContext(ctx, cfg)

	// Run migrations (each migrator gates on its own backend kind).
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// Initialize the tier stores. Both are required.
	stLoader, err := registryshortterm.Select(cfg.ShortTermType)
	if err != nil {
		return nil, err
	}
	shortTerm, err := stLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize short-term store: %w", err)
	}
	ltLoader, err := registrylongterm.Select(cfg.LongTermType)
	if err != nil {
		return nil, err
	}
	longTerm, err := ltLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize long-term store: %w", err)
	}

	// Initialize embedder (optional: without one retrieval runs keyword-only).
	var embedder registryembed.Embedder
	if cfg.EmbedType != "" && cfg.EmbedType != "none" {
		embedLoader, err := registryembed.Select(cfg.EmbedType)
		if err != nil {
			log.Warn("Embedder not available", "err", err)
		} else if embedder, err = embedLoader(ctx); err != nil {
			log.Warn("Failed to initialize embedder", "err", err)
			embedder = nil
		}
	}

	svc := memory.NewService(shortTerm, longTerm, embedder, nil, memory.Options{
		PromotionThreshold: cfg.EffectivePromotionThreshold(),
		ShortTermTTL:       cfg.ShortTermTTL,
		StoreTimeout:       cfg.StoreTimeout,
		RetrieveLimitMax:   cfg.RetrieveLimitMax,
	})

	// Initialize the response cache (optional).
	var cache *respcache.Cache
	if cacheLoader, err := registryrespcache.Select(cfg.RespCacheType); err != nil {
		log.Warn("Response cache not available", "cache", cfg.RespCacheType, "err", err)
	} else if backend, err := cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize response cache", "cache", cfg.RespCacheType, "err", err)
	} else {
		cache = respcache.New(backend, cfg.RespCacheVersion, cfg.RespCacheTTL)
	}

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	router.Use(security.MetricsMiddleware())
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	// Mount system route plugins (health, readiness, metrics).
	for _, loader := range registryroute.Loaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	// Mount API routes
	auth := security.AuthMiddleware(cfg)
	routememories.MountRoutes(router, svc, auth)
	routerespcache.MountRoutes(router, cache, auth)

	// Start background services
	sweeper := service.NewSweeperService(shortTerm, cfg.SweepInterval)
	go sweeper.Start(ctx)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Listener.Port))
	if err != nil {
		return nil, fmt.Errorf("listen failed: %w", err)
	}
	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.Listener.ReadHeaderTimeout,
	}
	go func() {
		if err := httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", "err", err)
		}
	}()

	port := lis.Addr().(*net.TCPAddr).Port
	routesystem.MarkReady()
	log.Info("Server listening", "port", port)

	return &Server{
		Config:     cfg,
		Memory:     svc,
		Cache:      cache,
		Router:     router,
		Port:       port,
		httpServer: httpServer,
	}, nil
}
