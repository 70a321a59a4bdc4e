package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"

	"slidecast/internal/adapters/storage/localfs"
	"slidecast/internal/config"
	"slidecast/internal/pkg/errors"
	"slidecast/internal/pkg/logger"
	"slidecast/internal/models"
)

type nopRedis struct{}

func (nopRedis) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	return redis.NewIntResult(0, nil)
}

func TestNewFetcherLocalFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	if err := os.WriteFile(src, []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}

	server := NewFetcher(Options{Config: config.Load()})
	err := server.Fetch(context.Background(), src, &bytes.Buffer{})
	if !errors.IsCode(err, errors.CodeFetch) {
		t.Errorf("server fetcher must not read local files, got %v", err)
	}

	cli := NewFetcher(Options{Config: config.Load(), LocalFiles: true})
	var buf bytes.Buffer
	if err := cli.Fetch(context.Background(), src, &buf); err != nil {
		t.Fatalf("cli fetch: %v", err)
	}
	if buf.String() != "img" {
		t.Errorf("got %q", buf.String())
	}
}

func TestNewFetcherCatalogNeedsStorage(t *testing.T) {
	f := NewFetcher(Options{Config: config.Load()})

	err := f.Fetch(context.Background(), "asset://ast_1", &bytes.Buffer{})
	if !errors.IsCode(err, errors.CodeFetch) {
		t.Errorf("expected unsupported scheme without a catalog, got %v", err)
	}
}

func TestSidecars(t *testing.T) {
	cfg := config.Load()
	sp := localfs.New(t.TempDir())

	tests := []struct {
		name string
		opts Options
		want int
	}{
		{"none configured", Options{Config: cfg}, 0},
		{"events only", Options{Config: cfg, RDB: nopRedis{}}, 1},
		{"storage without flag", Options{Config: cfg, SP: sp}, 0},
		{"events and storage", Options{Config: func() config.Config { c := cfg; c.PublishToStorage = true; return c }(), RDB: nopRedis{}, SP: sp}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Log = logger.Discard()
			got := Sidecars(tt.opts)
			if len(got) != tt.want {
				t.Errorf("got %d sidecars, want %d", len(got), tt.want)
			}
		})
	}
}

func TestNewProcessorPlans(t *testing.T) {
	cfg := config.Load()
	cfg.WorkRoot = t.TempDir()

	p := NewProcessor(Options{Config: cfg, Log: logger.Discard()})
	req := models.RenderRequest{Images: []string{"https://example.com/a.png", "https://example.com/b.png"}}
	job, err := req.ToJob("0a1b2c3d")
	if err != nil {
		t.Fatal(err)
	}

	prog, err := p.Plan(job)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if prog.Timeout != cfg.RenderTimeout {
		t.Errorf("timeout = %v, want %v", prog.Timeout, cfg.RenderTimeout)
	}
	if prog.Duration != 2*models.DefaultDurationPerImage {
		t.Errorf("duration = %d", prog.Duration)
	}
}
