package handlers

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"slidecast/internal/models"
	"slidecast/internal/pkg/logger"
	"slidecast/internal/ports"
	"slidecast/internal/renderer/compiler"
	"slidecast/internal/renderer/publisher"
)

// JobIDHeader carries the render job id on every render response.
const JobIDHeader = "X-Job-ID"

// DefaultResponseTimeout is the write window for a finished render.
const DefaultResponseTimeout = 5 * time.Minute

// Renderer runs and plans render jobs.
type Renderer interface {
	Process(ctx context.Context, job *models.RenderJob, pub publisher.Publisher) (models.RenderResult, error)
	Plan(job *models.RenderJob) (*compiler.Program, error)
}

// DB is the part of *pgxpool.Pool the handlers use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// RedisPinger is the part of *redis.Client the health check uses.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

type Deps struct {
	Renderer  Renderer
	FFmpegBin string

	// Sidecars receive every render result after the HTTP response.
	Sidecars []publisher.Publisher

	// ResponseTimeout bounds writing a finished render back to the client.
	// The clock starts when the result is published, not when the request
	// arrives. Defaults to DefaultResponseTimeout.
	ResponseTimeout time.Duration

	// Optional. Leave nil when not configured.
	DB  DB
	RDB RedisPinger
	SP  ports.StorageProvider

	Log *logger.Logger
}

type Handler struct {
	renderer  Renderer
	ffmpegBin string
	sidecars  []publisher.Publisher
	respTTL   time.Duration
	db        DB
	rdb       RedisPinger
	sp        ports.StorageProvider
	log       *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	respTTL := d.ResponseTimeout
	if respTTL <= 0 {
		respTTL = DefaultResponseTimeout
	}
	return &Handler{
		renderer:  d.Renderer,
		ffmpegBin: d.FFmpegBin,
		sidecars:  d.Sidecars,
		respTTL:   respTTL,
		db:        d.DB,
		rdb:       d.RDB,
		sp:        d.SP,
		log:       log.WithComponent("httpapi"),
	}
}

