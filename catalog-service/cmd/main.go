package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cataloghttp "github.com/fjod/marketcart/catalog-service/internal/http"
	"github.com/fjod/marketcart/catalog-service/internal/repository"
	"github.com/fjod/marketcart/pkg/logger"
	"go.uber.org/zap"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	log, err := logger.New(logger.Options{
		Service: "catalog-service",
		Env:     getEnv("APP_ENV", "prod"),
		Level:   getEnv("LOG_LEVEL", "info"),
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	dbPath := getEnv("DB_PATH", "./catalog.db")
	repo, err := repository.NewRepository(dbPath)
	if err != nil {
		log.Fatal("failed to open catalog database", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	log.Info("migrations completed", zap.String("db_path", dbPath))

	addr := getEnv("HTTP_ADDR", ":8081")
	srv := &http.Server{
		Addr:         addr,
		Handler:      cataloghttp.NewHandler(repo, log.Named("http"), 5*time.Second).Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("catalog service listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down catalog service")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
	log.Info("catalog service stopped")
}
