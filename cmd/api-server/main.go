package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"reviewdash/internal/apps"
	"reviewdash/internal/metrics"
	"reviewdash/internal/notify"
	"reviewdash/internal/reviews"
	"reviewdash/internal/scraper"
	"reviewdash/pkg/database"
	"reviewdash/pkg/middleware"
	"reviewdash/pkg/tracing"
	"reviewdash/pkg/utils"
)

func main() {
	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := utils.NewLogger(cfg.App)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := tracing.Setup(context.Background(), cfg.Tracing, cfg.App.Name)
	if err != nil {
		logger.Fatal("tracing setup failed", zap.Error(err))
	}

	db := database.MustOpen(database.ConfigFrom(cfg.Database), logger)
	defer db.Close()

	if err := database.Migrate(db, logger); err != nil {
		logger.Fatal("db migrate failed", zap.Error(err))
	}

	cache := reviews.NewCache(cfg.Redis, logger)
	publisher := notify.NewPublisher(cfg.Kafka, logger)
	defer publisher.Close()

	reviewRepo := reviews.NewRepo(db)
	opts := scraper.OptionsFrom(cfg.Ingest)
	opts.Publisher = publisher
	driver := scraper.NewDriver(reviewRepo, logger, opts,
		scraper.NewPlaySource(cfg.Play),
		scraper.NewAppStoreSource(cfg.AppStore),
	)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(logger, metrics.HTTP()))
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": cfg.Database.Driver})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "not_ready",
				"db_error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "db": "ok"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")

	scraper.NewHandler(driver, cache, logger).RegisterRoutes(api)
	reviews.NewHandler(reviewRepo, cache, logger).RegisterRoutes(api)

	appRepo := apps.NewRepo(db)
	appSvc := apps.NewService(appRepo, driver, opts.Retry, cfg.Ingest.DefaultCountry, logger)
	apps.NewHandler(appRepo, appSvc, logger).RegisterRoutes(api)

	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("HTTP API server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown error", zap.Error(err))
	}
	if c, ok := cache.(*reviews.RedisCache); ok {
		_ = c.Close()
	}

	wg.Wait()
	logger.Info("server stopped")
}
