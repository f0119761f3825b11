package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blogware/internal/audit"
	"blogware/internal/cache"
	"blogware/internal/config"
	"blogware/internal/database"
	"blogware/internal/geo"
	"blogware/internal/middleware"
	"blogware/internal/policy"
	"blogware/internal/repositories"
	"blogware/internal/router"
	"blogware/internal/services"

	"go.uber.org/zap"
)

func main() {
	logger, err := initLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	logger.Info("Starting blogware guard service")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
	)

	// Database
	dbManager, err := database.NewManager(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbManager.Close()

	if err := dbManager.Migrate(cfg.Database.MigrationsPath); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Counter store
	cacheInstance, err := cache.NewCache(&cache.Config{
		Provider:      cfg.Cache.Provider,
		TTL:           cfg.Cache.TTL,
		RedisURL:      cfg.Cache.RedisURL,
		RedisDB:       cfg.Cache.RedisDB,
		RedisPassword: cfg.Cache.RedisPassword,
		PoolSize:      cfg.Cache.PoolSize,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create cache", zap.Error(err))
	}
	defer cacheInstance.Close()

	// Repositories
	banRepo := repositories.NewBanRepository(dbManager, logger)
	auditRepo := repositories.NewAuditRepository(dbManager, logger)

	// Geo enrichment
	geoClient := geo.NewClient(&cfg.Geo, logger)
	geoService := geo.NewService(geoClient, auditRepo, banRepo, cfg.Geo.Enabled, logger)

	// Services
	alertService := services.NewAlertService(&cfg.Alert, logger)
	banService := services.NewBanService(banRepo, cacheInstance, alertService, geoService, logger)
	auditService := services.NewAuditService(auditRepo, logger)

	// Escalation policy and rate limiter
	escalation := policy.MustEscalation(policy.DefaultTiers())
	rateLimiter := middleware.NewRateLimiter(cacheInstance, &cfg.Guard, escalation, banService, logger)

	// Audit pipeline
	auditChannel := audit.NewChannel(cfg.Audit.QueueSize, logger)
	auditConsumer := audit.NewConsumer(auditRepo, auditChannel, geoService, &cfg.Audit, logger)
	auditConsumer.Start()

	// Background ban reaper
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	services.StartReaper(reaperCtx, banService, cfg.Guard.ReapInterval, logger)

	handler := router.New(router.Deps{
		Config:       cfg,
		Logger:       logger,
		DB:           dbManager,
		Cache:        cacheInstance,
		BanService:   banService,
		AuditService: auditService,
		AuditChannel: auditChannel,
		RateLimiter:  rateLimiter,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server",
			zap.String("address", server.Addr),
			zap.String("environment", cfg.Server.Environment),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Shutting down application...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Stop producers before draining the audit backlog.
	stopReaper()
	auditConsumer.Stop()

	logger.Info("Application shutdown completed")
}

func initLogger() (*zap.Logger, error) {
	env := os.Getenv("GO_ENV")
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
