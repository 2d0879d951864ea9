package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/feathergis/queryfront/internal/cache/respcache"
	"github.com/feathergis/queryfront/internal/core/config"
	"github.com/feathergis/queryfront/internal/core/httpclient"
	"github.com/feathergis/queryfront/internal/core/observability"
	"github.com/feathergis/queryfront/internal/core/router"
	"github.com/feathergis/queryfront/internal/core/server"
	"github.com/feathergis/queryfront/internal/filter"
	"github.com/feathergis/queryfront/internal/invalidation"
	"github.com/feathergis/queryfront/internal/logger"
	"github.com/feathergis/queryfront/internal/repository/viewstore"
	"github.com/feathergis/queryfront/internal/repository/wfsrepo"
	"github.com/feathergis/queryfront/internal/storage/redisstore"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "queryfront",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting queryfront",
		"addr", cfg.Addr,
		"version", Version,
		"upstream", cfg.UpstreamURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rds, err := redisstore.New(ctx, cfg.RedisAddr)
	if err != nil {
		appLog.Error("redis unavailable", "err", err)
		return 1
	}
	defer func() { _ = rds.Close() }()

	views, err := viewstore.New(rds, cfg.ViewCacheSize)
	if err != nil {
		appLog.Error("view store setup failed", "err", err)
		return 1
	}

	repo, err := wfsrepo.New(appLog, httpclient.NewOutbound(), wfsrepo.Endpoint(cfg.UpstreamURL), wfsrepo.Catalog{
		DefaultCRS:     cfg.DefaultCRS,
		GeometryColumn: cfg.GeometryColumn,
		CRS:            cfg.CollectionCRS,
		Collections:    cfg.Collections,
	})
	if err != nil {
		appLog.Error("repository setup failed", "err", err)
		return 1
	}

	var cache *respcache.Cache
	if cfg.CacheEnabled {
		cache = respcache.New(rds)
	}

	parser := filter.NewCQLParser()
	deps := server.Deps{
		Features: router.NewFeatures(appLog, cfg, parser, repo, views, cache),
		Views:    router.NewViews(appLog, parser, views),
		Store:    views,
	}

	if cfg.Invalidation.Enabled && cache != nil {
		consumer := invalidation.NewConsumer(invalidation.Config{
			Brokers: cfg.Invalidation.Brokers,
			Topic:   cfg.Invalidation.Topic,
			GroupID: cfg.Invalidation.GroupID,
			CellRes: cfg.CellRes,
		}, appLog, cache, views)
		deps.Consumer = consumer

		go func() {
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("invalidation consumer exited", "err", err)
			}
		}()
	}

	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
