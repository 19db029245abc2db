package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agastya71/mysl-pos-project-sub005/internal/auth"
	"github.com/agastya71/mysl-pos-project-sub005/internal/cache"
	"github.com/agastya71/mysl-pos-project-sub005/internal/config"
	"github.com/agastya71/mysl-pos-project-sub005/internal/httpapi"
	"github.com/agastya71/mysl-pos-project-sub005/internal/logger"
	"github.com/agastya71/mysl-pos-project-sub005/internal/payment"
	"github.com/agastya71/mysl-pos-project-sub005/internal/service"
	"github.com/agastya71/mysl-pos-project-sub005/internal/store"
	"github.com/agastya71/mysl-pos-project-sub005/internal/store/memory"
	pgstore "github.com/agastya71/mysl-pos-project-sub005/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(cfg.Production()); err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	if cfg.Production() && len(cfg.AuthSecret) < 32 {
		logger.Log.Fatal("AUTH_SECRET must be set and at least 32 characters in production")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, cfg.LockTimeoutMillis)
		if err != nil {
			logger.Log.Fatal("postgres unavailable and DATABASE_URL is set; refusing in-memory fallback", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Log.Info("repository: in-memory")
	}

	reorderCache := cache.ReorderReportCache(cache.NoopReorderReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReorderReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Log.Warn("redis unavailable, using noop cache", zap.Error(err))
		} else {
			reorderCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Log.Info("cache: redis")
		}
	} else {
		logger.Log.Info("cache: noop")
	}

	svc := service.New(repo, payment.StubProcessor{}, reorderCache,
		time.Duration(cfg.ReorderReportTTLSeconds)*time.Second, cfg.StoreID)
	authManager := auth.NewManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, authManager, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Log.Info("POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Log.Warn("close error", zap.Error(err))
		}
	}

	logger.Log.Info("server stopped")
}
