package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"slidecast/internal/pkg/errors"
)

// DefaultFetchTimeout bounds a single asset download.
const DefaultFetchTimeout = 300 * time.Second

// Fetcher copies the bytes behind a locator into dst.
type Fetcher interface {
	Fetch(ctx context.Context, locator string, dst io.Writer) error
}

// HTTPFetcher downloads http and https locators.
type HTTPFetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{Client: &http.Client{}, Timeout: timeout}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, locator string, dst io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return errors.Fetch("assets.http", locator, err)
	}
	req.Header.Set("User-Agent", "slidecast/1")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Fetch("assets.http", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return errors.Fetch("assets.http", locator, fmt.Errorf("unexpected status %d", resp.StatusCode)).
			WithField("status", resp.StatusCode)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return errors.Fetch("assets.http", locator, fmt.Errorf("read body: %w", err))
	}
	return nil
}

// SchemeRouter dispatches a locator to the fetcher registered for its scheme.
type SchemeRouter struct {
	fetchers map[string]Fetcher
}

func NewSchemeRouter() *SchemeRouter {
	return &SchemeRouter{fetchers: make(map[string]Fetcher)}
}

// Handle registers f for scheme (case-insensitive).
func (r *SchemeRouter) Handle(scheme string, f Fetcher) *SchemeRouter {
	r.fetchers[strings.ToLower(scheme)] = f
	return r
}

func (r *SchemeRouter) Fetch(ctx context.Context, locator string, dst io.Writer) error {
	u, err := url.Parse(locator)
	if err != nil {
		return errors.Fetch("assets.route", locator, err)
	}
	f, ok := r.fetchers[strings.ToLower(u.Scheme)]
	if !ok {
		return errors.Fetch("assets.route", locator, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	return f.Fetch(ctx, locator, dst)
}

// FileFetcher copies local files. It serves file:// locators and bare paths
// and is only registered by the CLI.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, locator string, dst io.Writer) error {
	path := locator
	if u, err := url.Parse(locator); err == nil && strings.EqualFold(u.Scheme, "file") {
		path = u.Path
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Fetch("assets.file", locator, err)
	}
	defer f.Close()

	if _, err := io.Copy(dst, f); err != nil {
		return errors.Fetch("assets.file", locator, fmt.Errorf("read file: %w", err))
	}
	return nil
}
