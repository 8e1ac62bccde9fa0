package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kexi/pypi-cache-proxy/internal/aggregator"
	"github.com/kexi/pypi-cache-proxy/internal/config"
	"github.com/kexi/pypi-cache-proxy/internal/filecache"
	"github.com/kexi/pypi-cache-proxy/internal/handler"
	"github.com/kexi/pypi-cache-proxy/internal/indexcache"
	"github.com/kexi/pypi-cache-proxy/internal/metrics"
	"github.com/kexi/pypi-cache-proxy/internal/middleware"
	"github.com/kexi/pypi-cache-proxy/internal/ratelimit"
	"github.com/kexi/pypi-cache-proxy/internal/upstream"
)

// HTTPServer represents the HTTP server with all dependencies.
type HTTPServer struct {
	router      *gin.Engine
	server      *http.Server
	config      *config.Config
	upstream    *upstream.Client
	fileCache   *filecache.FileCache
	aggregator  *aggregator.Aggregator
	rateLimiter *ratelimit.RateLimiter
	logger      *zap.Logger
}

// NewHTTPServer creates a new HTTP server with all dependencies initialized.
func NewHTTPServer(cfg *config.Config) (*HTTPServer, error) {
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	client, err := upstream.New(&upstream.Config{
		ConnectTimeout:         cfg.Upstream.ConnectTimeout,
		ReadTimeout:            cfg.Upstream.ReadTimeout,
		DisableTLSVerification: cfg.Upstream.DisableSSLVerification,
		MaxIdleConns:           cfg.Upstream.MaxIdleConns,
		MaxIdleConnsPerHost:    cfg.Upstream.MaxIdleConnsPerHost,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	fileCache, err := filecache.New(filecache.Config{
		MaxSize:         cfg.FileCache.MaxBytes,
		CacheDir:        cfg.FileCache.CacheDir,
		DownloadTimeout: cfg.FileCache.DownloadTimeout,
	}, client, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file cache: %w", err)
	}

	root := indexcache.New(cfg.Index.RootURL, cfg.Index.RootTTL, client, logger)
	extras := make([]*indexcache.IndexCache, 0, len(cfg.Index.ExtraURLs))
	for i, u := range cfg.Index.ExtraURLs {
		extras = append(extras, indexcache.New(u, cfg.Index.ExtraTTLs[i], client, logger))
	}
	agg := aggregator.New(root, extras, fileCache, logger)

	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.NewRateLimiter(
			rate.Limit(cfg.RateLimit.RequestsPerSecond),
			cfg.RateLimit.Burst,
			cfg.RateLimit.CleanupInterval,
			cfg.RateLimit.IdleTimeout,
		)
	}

	if cfg.Metrics.Enabled {
		metrics.InitPrometheus()
	}

	httpServer := &HTTPServer{
		config:      cfg,
		upstream:    client,
		fileCache:   fileCache,
		aggregator:  agg,
		rateLimiter: rateLimiter,
		logger:      logger,
	}

	httpServer.setupRouter()

	return httpServer, nil
}

// setupRouter configures the Gin router with all middleware and routes.
func (s *HTTPServer) setupRouter() {
	if s.config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Recovery(s.logger))
	router.Use(middleware.Logging(s.logger))

	if s.config.Metrics.Enabled {
		router.Use(middleware.Metrics())
	}

	router.Use(middleware.RealIP())
	router.Use(middleware.SecurityHeaders())

	if s.config.RateLimit.Enabled && s.rateLimiter != nil {
		router.Use(middleware.RateLimit(s.rateLimiter))
	}

	s.setupRoutes(router)

	s.router = router
}

// setupRoutes defines all HTTP routes.
func (s *HTTPServer) setupRoutes(router *gin.Engine) {
	indexHandler := handler.NewIndexHandler(s.aggregator, s.logger)
	filesHandler := handler.NewFilesHandler(s.aggregator, s.logger)
	downloadHandler := handler.NewDownloadHandler(s.aggregator, s.config.FileCache.BinaryMIMEType, s.logger)
	cacheHandler := handler.NewCacheHandler(s.aggregator, s.logger)

	basePath := s.config.Server.BasePath
	if basePath != "" {
		if !strings.HasPrefix(basePath, "/") {
			basePath = "/" + basePath
		}
		basePath = strings.TrimSuffix(basePath, "/")
	}

	var routeGroup *gin.RouterGroup
	if basePath != "" {
		routeGroup = router.Group(basePath)
	} else {
		routeGroup = router.Group("")
	}

	routeGroup.GET("/index/", indexHandler.Handle)
	routeGroup.GET("/index/:project/", filesHandler.Handle)
	routeGroup.GET("/index/:project/:filename", downloadHandler.Handle)

	routeGroup.DELETE("/cache/list", cacheHandler.HandleInvalidateList)
	routeGroup.DELETE("/cache/:project", cacheHandler.HandleInvalidateProject)

	if basePath != "" {
		routeGroup.GET("/health", handler.HandleHealth)
	}
	router.GET("/health", handler.HandleHealth)

	if s.config.Metrics.Enabled {
		router.GET(s.config.Metrics.Path, gin.WrapH(metrics.Handler()))
	}
}

// Start starts the HTTP server.
func (s *HTTPServer) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Server.HTTPPort)

	s.server = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	s.logger.Info("starting HTTP server",
		zap.String("addr", addr),
		zap.Duration("read_timeout", s.config.Server.ReadTimeout),
		zap.Duration("write_timeout", s.config.Server.WriteTimeout),
	)

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("error shutting down server", zap.Error(err))
		return err
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if err := s.fileCache.Close(); err != nil {
		s.logger.Error("error closing file cache", zap.Error(err))
	}
	s.upstream.Close()

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// initLogger initializes the zap logger based on configuration.
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if cfg.Output == "stderr" {
		zapConfig.OutputPaths = []string{"stderr"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	} else {
		zapConfig.OutputPaths = []string{"stdout"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	}

	return zapConfig.Build()
}
