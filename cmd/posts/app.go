package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Sternrassler/posts-client/internal/config"
	"github.com/Sternrassler/posts-client/pkg/client"
	"github.com/Sternrassler/posts-client/pkg/logging"
	"github.com/Sternrassler/posts-client/pkg/pagination"
	"github.com/Sternrassler/posts-client/pkg/post"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app holds the wired dependencies of one command invocation.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	redis  *redis.Client
	client *client.Client
}

// newApp configures logging, connects Redis when configured and builds the
// HTTP client. logOutput receives the log stream.
func newApp(ctx context.Context, cfg *config.Config, logOutput io.Writer) (*app, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	logger := logging.Setup(logging.Config{
		Level:  level,
		Pretty: cfg.Log.Pretty,
		Output: logOutput,
	}).With().Str("component", "posts").Logger()

	a := &app{cfg: cfg, logger: logger}

	if cfg.RedisEnabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	clientLogger := logging.NewLogger("posts-client")
	ccfg := client.DefaultConfig(cfg.API.BaseURL, cfg.API.UserAgent)
	ccfg.Timeout = cfg.API.Timeout
	ccfg.PageParam = cfg.API.PageParam
	ccfg.LimitParam = cfg.API.LimitParam
	ccfg.Redis = a.redis
	ccfg.ErrorThreshold = cfg.Redis.ErrorThreshold
	if cfg.Redis.ThrottleDelay > 0 {
		ccfg.ThrottleDelay = cfg.Redis.ThrottleDelay
	}
	if cfg.Redis.CacheRetention > 0 {
		ccfg.CacheRetention = cfg.Redis.CacheRetention
	}
	ccfg.Logger = &clientLogger

	a.client, err = client.New(ccfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return a, nil
}

// allFetcher returns the fetcher behind full-list loads: the client itself, or
// a parallel batch fetcher over its pages.
func (a *app) allFetcher(parallel bool) post.AllFetcher {
	if !parallel {
		return a.client
	}
	return pagination.NewBatchFetcher(a.client, pagination.Config{
		MaxConcurrency: a.cfg.Pagination.Parallelism,
		Timeout:        a.cfg.API.Timeout,
		PageSize:       a.cfg.Pagination.PageSize,
	})
}

// Close releases the HTTP and Redis connections.
func (a *app) Close() error {
	if a.client != nil {
		a.client.Close()
	}
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
