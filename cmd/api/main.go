package main

import (
	"context"
	"net/http"
	"time"

	"slidecast/internal/app"
	"slidecast/internal/config"
	"slidecast/internal/httpapi"
	"slidecast/internal/httpapi/handlers"
	"slidecast/internal/httpkit"
	"slidecast/internal/pkg/logger"
	"slidecast/internal/pkg/shutdown"
	"slidecast/internal/storage"
)

func main() {
	// Initialize logger
	log := logger.New(logger.Config{
		Level:       config.Env("LOG_LEVEL", "info"),
		Format:      config.Env("LOG_FORMAT", "json"),
		ServiceName: "slidecast-api",
		AddSource:   config.BoolEnv("LOG_SOURCE", false),
	})

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.LogFatal("invalid configuration", err)
	}

	log.Info("starting slidecast API",
		"ffmpeg", cfg.FFmpegBin,
		"work_root", cfg.WorkRoot,
		"render_timeout", cfg.RenderTimeout.String(),
		"max_concurrent_renders", cfg.MaxConcurrentRenders,
	)

	ctx := context.Background()

	// In-flight renders get their full deadline before the process exits.
	shutdownMgr := shutdown.NewManager(log, cfg.RenderTimeout+30*time.Second)

	opts := app.Options{Config: cfg, Log: log}
	hdeps := handlers.Deps{FFmpegBin: cfg.FFmpegBin, Log: log}

	// Connect to PostgreSQL (asset catalog)
	if cfg.DatabaseURL != "" {
		log.Info("connecting to PostgreSQL")
		pool, err := app.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.LogFatal("failed to connect to PostgreSQL", err)
		}
		shutdownMgr.RegisterSimple("postgres", pool.Close)
		opts.DB, hdeps.DB = pool, pool
		log.Info("PostgreSQL connected")
	}

	// Connect to Redis (render events)
	if cfg.RedisAddr != "" {
		log.Info("connecting to Redis")
		rdb, err := app.OpenRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.LogFatal("failed to connect to Redis", err)
		}
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		opts.RDB, hdeps.RDB = rdb, rdb
		log.Info("Redis connected", "channel", cfg.EventsChannel)
	}

	// Initialize storage provider
	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	if sp != nil {
		opts.SP, hdeps.SP = sp, sp
		log.Info("storage provider initialized", "provider", sp.Provider(), "publish", cfg.PublishToStorage)
	}

	hdeps.Renderer = app.NewProcessor(opts)
	hdeps.Sidecars = app.Sidecars(opts)

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers:       hdeps,
		AllowedOrigins: httpkit.ParseOrigins(cfg.CORSAllowedOrigins),
		Log:            log,
	})

	// Render responses lift this deadline and set their own once the
	// result is ready.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      httpapi.DefaultRequestTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Register server shutdown
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait(ctx)
}
