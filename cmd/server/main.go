package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"farm_mapper/internal/config"
	"farm_mapper/internal/controllers"
	"farm_mapper/internal/logger"
	"farm_mapper/internal/mapping"
	"farm_mapper/internal/middleware"
	"farm_mapper/internal/render"
	"farm_mapper/internal/routes"
	"farm_mapper/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	// Initialize structured logging to file
	accessLog, err := logger.Setup(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("failed to set up logging")
	}
	gin.SetMode(cfg.Server.Mode)

	farms, closeStore := openStore(cfg.Database)
	defer closeStore()

	hub := controllers.NewFarmHub()
	defer hub.Shutdown()

	sessions := mapping.NewRegistry(mapping.Config{
		Store:    farms,
		Renderer: render.New(cfg.Map.RenderOptions()),
		Editor:   cfg.Map.EditorOptions(),
		OnChange: hub.Publish,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sessions.RunSweeper(ctx, cfg.Session.SweepInterval, cfg.Session.IdleTimeout)

	var limiter *middleware.OwnerLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewOwnerLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		go limiter.RunPruner(ctx, cfg.Session.SweepInterval, cfg.Session.IdleTimeout)
	}

	r := routes.SetupRouter(routes.Deps{
		Store:          farms,
		Sessions:       sessions,
		Hub:            hub,
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Limiter:        limiter,
		AccessLog:      accessLog,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logrus.WithField("addr", srv.Addr).Info("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown; close them first.
	hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("graceful shutdown failed")
	}
}

// openStore picks the farm store for the configured driver.
func openStore(cfg config.DatabaseConfig) (store.FarmRecordStore, func()) {
	if cfg.Driver == config.DriverMemory {
		logrus.Warn("using in-memory farm store; data is lost on restart")
		return store.Instrument(store.NewMemoryStore()), func() {}
	}

	db, err := config.OpenDB(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return store.Instrument(store.NewGormStore(db)), closeDB
}
