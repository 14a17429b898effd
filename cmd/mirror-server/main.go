package main

import (
	"flag"
	"log"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reviewdash/internal/metrics"
	"reviewdash/internal/mirror"
	"reviewdash/pkg/middleware"
	"reviewdash/pkg/utils"
)

func main() {
	var (
		dataPath = flag.String("data", "data/mirror.json", "mirror snapshot written by export-mirror")
		addr     = flag.String("addr", ":9000", "listen address")
	)
	flag.Parse()

	cfg := utils.MustLoadConfig()
	logger, err := utils.NewLogger(cfg.App)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(logger, metrics.HTTP()))
	mirror.NewHandler(*dataPath, logger).RegisterRoutes(router)

	// set appstore.rss_base_url to <addr>/feed and appstore.lookup_base_url to <addr>
	logger.Info("mirror-server listening", zap.String("addr", *addr), zap.String("data", *dataPath))
	if err := router.Run(*addr); err != nil {
		logger.Fatal("mirror-server stopped", zap.Error(err))
	}
}
