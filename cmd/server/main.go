package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/quickorder/gateway"
	"github.com/example/quickorder/pkg/auth"
	"github.com/example/quickorder/pkg/config"
	"github.com/example/quickorder/pkg/discovery"
	"github.com/example/quickorder/pkg/repository"
	"github.com/example/quickorder/pkg/session"
	"github.com/example/quickorder/pkg/sync"
	"go.uber.org/zap"
)

func main() {
	// Load config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting storefront service",
		zap.String("name", cfg.Server.Name),
		zap.Int("port", cfg.Gateway.Port))

	ctx := context.Background()

	// Redis: change bus, store cache, role preferences
	cache := repository.NewRedisRepository(&cfg.Redis)
	defer cache.Close()
	if err := cache.Ping(ctx); err != nil {
		logger.Warn("Redis connection failed", zap.Error(err))
	} else {
		logger.Info("Redis connected successfully")
	}

	// MongoDB: stores, products, orders, admins
	repo, err := repository.NewMongoRepository(&cfg.MongoDB, cache, logger)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer repo.Close(ctx)
	if err := repo.Ping(ctx); err != nil {
		logger.Fatal("MongoDB ping failed", zap.Error(err))
	}
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Warn("Failed to ensure indexes", zap.Error(err))
	}

	// Connect to etcd for service discovery
	registry, err := discovery.NewRegistry(&cfg.Etcd, logger)
	if err != nil {
		logger.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
	} else {
		defer registry.Close()
		err = registry.Register(ctx, &discovery.Instance{
			Name: cfg.Server.Name,
			Host: cfg.Gateway.Host,
			Port: cfg.Gateway.Port,
		})
		if err != nil {
			logger.Error("Failed to register service", zap.Error(err))
		}
	}

	// Session actors: one per viewer, each with its own live-feed synchronizer
	tokens := auth.NewTokenService(&cfg.Auth)
	streams := sync.NewStreams(repo, cache, logger)
	sessions := session.NewManager(func() *session.Session {
		return session.New(&cfg.Admin, repo, cache, sync.New(streams, logger), logger)
	}, logger)
	defer sessions.Shutdown()

	// Create gateway
	gw := gateway.NewGateway(cfg, logger, repo, cache, tokens, sessions)
	gw.SetupRoutes()

	// Start gateway in goroutine
	gwErr := make(chan error, 1)
	go func() {
		if err := gw.Start(); err != nil {
			gwErr <- err
		}
	}()

	logger.Info("Gateway started successfully")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-gwErr:
		logger.Fatal("Gateway error", zap.Error(err))
	}

	if registry != nil {
		if err := registry.Deregister(ctx); err != nil {
			logger.Error("Failed to deregister service", zap.Error(err))
		}
	}

	logger.Info("Service stopped")
}
