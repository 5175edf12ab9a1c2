package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_cart/fulfillment-service/internal/cache"
	"github.com/fjod/go_cart/fulfillment-service/internal/config"
	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
	fgrpc "github.com/fjod/go_cart/fulfillment-service/internal/grpc"
	h "github.com/fjod/go_cart/fulfillment-service/internal/http"
	"github.com/fjod/go_cart/fulfillment-service/internal/logger"
	"github.com/fjod/go_cart/fulfillment-service/internal/observability"
	"github.com/fjod/go_cart/fulfillment-service/internal/publisher"
	"github.com/fjod/go_cart/fulfillment-service/internal/repository"
	"github.com/fjod/go_cart/fulfillment-service/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("fulfillment-service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("fulfillment-service starting...", zap.String("store", cfg.StoreDriver))
	ctx := context.Background()
	var wg sync.WaitGroup

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The cache is fail-soft; requests are served from the store meanwhile.
		log.Warn("Redis ping failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	} else {
		log.Info("Redis ping succeeded", zap.String("addr", cfg.RedisAddr))
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Prefix = cfg.CachePrefix
	cacheCfg.TTL = cfg.CacheTTL
	cacheCfg.Jitter = cfg.CacheTTLJitter
	redisCache := cache.NewRedisCache(redisClient, cacheCfg, log)

	invalidator := service.NewInvalidator(redisCache, log)
	orderCfg := service.DefaultOrderConfig()
	orderCfg.MaxRetries = cfg.OrderMaxRetries

	catalog := service.NewCatalogService(store, redisCache)
	carts := service.NewCartService(store, store, redisCache, invalidator, log)
	orders := service.NewOrderService(store, invalidator, orderCfg, log)

	router := h.NewRouter(h.Handlers{
		Products: h.NewProductHandler(catalog, log),
		Cart:     h.NewCartHandler(carts, log),
		Orders:   h.NewOrdersHandler(orders, log),
		Health:   h.NewHealthHandler(store, redisCache),
	}, h.NewAuthenticator(cfg.JWTSecret), cfg.RequestTimeout, log)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	// Start outbox publisher
	if len(cfg.KafkaBrokers) > 0 {
		poller := publisher.NewOutboxPoller(store,
			publisher.NewKafkaWriter(cfg.OrderEventsTopic, cfg.KafkaBrokers...), log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(bgCtx)
		}()
		log.Info("Outbox publisher started", zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.OrderEventsTopic))
	} else {
		log.Info("KAFKA_BROKERS not set, outbox publisher disabled")
	}

	// Start gRPC health server
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen on gRPC port: %w", err)
	}
	healthServer := fgrpc.NewHealthServer(map[string]fgrpc.Pinger{
		"store": store,
		"cache": redisCache,
	}, 5*time.Second, log)

	wg.Add(1)
	go func() {
		defer wg.Done()
		healthServer.Watch(bgCtx)
	}()

	serverErr := make(chan error, 2)
	go func() {
		log.Info("gRPC health listening", zap.String("port", cfg.GRPCPort))
		if err := healthServer.Serve(lis); err != nil {
			serverErr <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		log.Info("HTTP server listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info("Shutting down fulfillment-service...", zap.String("signal", sig.String()))
	case runErr = <-serverErr:
		log.Error("Server stopped unexpectedly", zap.Error(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	healthServer.Stop()
	bgCancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		log.Info("Background workers stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn("Background workers didn't stop in time")
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("Tracer shutdown failed", zap.Error(err))
	}

	log.Info("fulfillment-service stopped")
	return runErr
}

func openStore(cfg *config.Config, log *zap.Logger) (repository.Store, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("Using in-memory store; data is lost on exit")
		if cfg.JWTSecret == config.DevJWTSecret {
			log.Warn("JWT_SECRET not set, using the development secret")
		}
		store := repository.NewMemoryStore()
		seedDemoCatalog(store)
		return store, nil
	}

	creds := &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}

	repo, err := repository.NewRepository(creds)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := repo.RunMigrations(creds); err != nil {
		repo.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("Database migrations completed", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
	return repo, nil
}

func seedDemoCatalog(store *repository.MemoryStore) {
	for _, p := range []domain.Product{
		{Name: "Laptop", Description: "14-inch ultrabook", Price: decimal.RequireFromString("999.99"), Stock: 10, Category: "Electronics"},
		{Name: "Wireless Mouse", Description: "Ergonomic, 2.4GHz", Price: decimal.RequireFromString("24.70"), Stock: 50, Category: "Electronics"},
		{Name: "Office Chair", Description: "Mesh back", Price: decimal.RequireFromString("189.00"), Stock: 5, Category: "Furniture"},
		{Name: "Desk Lamp", Description: "LED, dimmable", Price: decimal.RequireFromString("35.50"), Stock: 20, Category: "Furniture"},
	} {
		store.AddProduct(p)
	}
}
