// Package app assembles the render pipeline and its optional backing
// services from configuration. cmd/api and cmd/slidectl share it.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"slidecast/internal/config"
	"slidecast/internal/pkg/logger"
	"slidecast/internal/ports"
	"slidecast/internal/renderer"
	"slidecast/internal/renderer/assets"
	"slidecast/internal/renderer/publisher"
	"slidecast/internal/renderer/supervisor"
)

type Options struct {
	Config config.Config

	// Optional backing services. Leave nil when not configured.
	DB  assets.RowQuerier
	RDB publisher.RedisPublisher
	SP  ports.StorageProvider

	// LocalFiles accepts file:// locators and bare paths. The CLI sets it;
	// the HTTP service does not.
	LocalFiles bool

	Log *logger.Logger
}

// NewFetcher routes locators by scheme: http(s) always, asset:// when both
// the catalog and a storage provider are configured.
func NewFetcher(o Options) *assets.SchemeRouter {
	web := assets.NewHTTPFetcher(o.Config.FetchTimeout)
	r := assets.NewSchemeRouter().
		Handle("http", web).
		Handle("https", web)

	if o.DB != nil && o.SP != nil {
		r.Handle(assets.CatalogScheme, assets.NewCatalogFetcher(o.DB, o.SP))
	}
	if o.LocalFiles {
		r.Handle("", assets.FileFetcher{}).Handle("file", assets.FileFetcher{})
	}
	return r
}

func NewProcessor(o Options) *renderer.Processor {
	log := o.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return renderer.New(renderer.Deps{
		Resolver: assets.NewResolver(NewFetcher(o), log),
		Runner: supervisor.New(
			supervisor.WithBinary(o.Config.FFmpegBin),
			supervisor.WithLogger(log),
		),
		WorkRoot:      o.Config.WorkRoot,
		RenderTimeout: o.Config.RenderTimeout,
		MaxConcurrent: o.Config.MaxConcurrentRenders,
		Log:           log,
	})
}

// Sidecars are the publishers that run alongside the caller's own: render
// events when Redis is configured, artifact upload when PUBLISH_TO_STORAGE
// is set.
func Sidecars(o Options) []publisher.Publisher {
	var out []publisher.Publisher
	if o.RDB != nil {
		out = append(out, publisher.NewEvents(o.RDB, o.Config.EventsChannel, o.Log))
	}
	if o.Config.PublishToStorage && o.SP != nil {
		out = append(out, publisher.NewStorage(o.SP, o.Log))
	}
	return out
}

// OpenPostgres connects and pings the asset catalog database.
func OpenPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// OpenRedis connects and pings the render events Redis.
func OpenRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}
