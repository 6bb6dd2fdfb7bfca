package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	c "github.com/fjod/marketcart/cart-service/internal/cache"
	"github.com/fjod/marketcart/cart-service/internal/catalog"
	"github.com/fjod/marketcart/cart-service/internal/config"
	"github.com/fjod/marketcart/cart-service/internal/controller"
	"github.com/fjod/marketcart/cart-service/internal/events"
	carthttp "github.com/fjod/marketcart/cart-service/internal/http"
	"github.com/fjod/marketcart/cart-service/internal/poller"
	"github.com/fjod/marketcart/cart-service/internal/repository"
	s "github.com/fjod/marketcart/cart-service/internal/service"
	"github.com/fjod/marketcart/pkg/circuitbreaker"
	"github.com/fjod/marketcart/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cart-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Options{Service: "cart-service", Env: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up MongoDB connection
	mongoDB, err := repository.ConnectMongoDB(ctx, repository.MongoConfig{URI: cfg.MongoURI, Database: cfg.MongoDB})
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}
	defer func() {
		if err := mongoDB.Client().Disconnect(context.Background()); err != nil {
			log.Warn("mongo disconnect failed", zap.Error(err))
		}
	}()
	if err := repository.CreateIndexes(ctx, mongoDB, cfg.CartTTL); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	repo := repository.NewMongoRepository(mongoDB)
	log.Info("connected to MongoDB", zap.String("database", cfg.MongoDB))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	log.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))

	cache := c.NewRedisCache(redisClient, c.WithTTL(cfg.CacheTTL, c.DefaultMaxJitter))
	carts := s.NewCartService(repo, cache, log.Named("service"))

	catalogClient := catalog.NewClient(catalog.Config{
		BaseURL: cfg.CatalogURL,
		Timeout: cfg.CatalogTimeout,
		Breaker: circuitbreaker.DefaultConfig("catalog"),
	}, log.Named("catalog"))

	g, gctx := errgroup.WithContext(ctx)

	var opts []controller.Option
	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewPublisher(events.NewKafkaWriter(cfg.KafkaBrokers...), log.Named("events"))
		defer publisher.Close()
		opts = append(opts, controller.WithSettleHook(publisher.OnSettle))
		g.Go(func() error {
			publisher.Run(gctx)
			return nil
		})
	} else {
		log.Warn("KAFKA_BROKERS not set, cart events and checkout clearing are disabled")
	}

	registry := controller.NewRegistry(carts, catalogClient, cfg.Pricing.ToPricing(), log.Named("controller"), opts...)
	g.Go(func() error {
		registry.RunSweeper(gctx, time.Minute, cfg.IdleCartTTL)
		return nil
	})

	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(registry, poller.NewKafkaReader(cfg.KafkaBrokers...), log.Named("poller"))
		defer p.Close()
		g.Go(func() error {
			p.Run(gctx)
			return nil
		})
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: carthttp.NewRouter(carthttp.RouterConfig{
			Carts:   registry,
			Catalog: catalogClient,
			Log:     log.Named("http"),
			Timeout: cfg.RequestTimeout,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		log.Info("cart service listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down cart service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("cart service stopped")
	return err
}
