package assets

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"slidecast/internal/adapters/storage/localfs"
	"slidecast/internal/models"
	"slidecast/internal/pkg/errors"
	"slidecast/internal/ports"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 30, B: 30, A: 128})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestWorkspace(t *testing.T) {
	root := t.TempDir()

	ws, err := AcquireWorkspace(root, "ab12cd34")
	if err != nil {
		t.Fatalf("AcquireWorkspace: %v", err)
	}
	if ws.Dir != filepath.Join(root, "slidecast_ab12cd34") {
		t.Errorf("unexpected dir %s", ws.Dir)
	}
	if filepath.Base(ws.ImagePath(7)) != "img_007.jpg" {
		t.Errorf("unexpected image path %s", ws.ImagePath(7))
	}
	for _, p := range []string{ws.VoicePath(), ws.MusicPath(), ws.SubtitlePath(), ws.OutputPath()} {
		if filepath.Dir(p) != ws.Dir {
			t.Errorf("%s is outside the workspace", p)
		}
	}

	if err := os.WriteFile(ws.OutputPath(), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ws.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Errorf("expected workspace to be removed, stat err=%v", err)
	}
	if err := ws.Release(); err != nil {
		t.Errorf("second Release should be a no-op: %v", err)
	}

	if _, err := AcquireWorkspace(root, ""); err == nil {
		t.Error("expected error for empty job id")
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.mp3":
			_, _ = w.Write([]byte("ID3-audio"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(0)
	if f.Timeout != DefaultFetchTimeout {
		t.Errorf("expected default timeout, got %v", f.Timeout)
	}

	t.Run("success", func(t *testing.T) {
		var buf bytes.Buffer
		if err := f.Fetch(context.Background(), srv.URL+"/ok.mp3", &buf); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if buf.String() != "ID3-audio" {
			t.Errorf("unexpected body %q", buf.String())
		}
	})

	t.Run("non-2xx is a fetch error", func(t *testing.T) {
		err := f.Fetch(context.Background(), srv.URL+"/missing.png", io.Discard)
		if !errors.IsCode(err, errors.CodeFetch) {
			t.Fatalf("expected FETCH_ERROR, got %v", err)
		}
		if errors.GetFields(err)["status"] != 404 {
			t.Errorf("expected status field 404, got %v", errors.GetFields(err)["status"])
		}
	})

	t.Run("unreachable host", func(t *testing.T) {
		err := f.Fetch(context.Background(), "http://127.0.0.1:1/nothing", io.Discard)
		if !errors.IsCode(err, errors.CodeFetch) {
			t.Fatalf("expected FETCH_ERROR, got %v", err)
		}
	})
}

type staticFetcher map[string][]byte

func (s staticFetcher) Fetch(ctx context.Context, locator string, dst io.Writer) error {
	b, ok := s[locator]
	if !ok {
		return errors.Fetch("test.fetch", locator, fmt.Errorf("not found"))
	}
	_, err := dst.Write(b)
	return err
}

func TestSchemeRouter(t *testing.T) {
	r := NewSchemeRouter().
		Handle("https", staticFetcher{"https://cdn/a.png": []byte("a")}).
		Handle("ASSET", staticFetcher{"asset://42": []byte("b")})

	var buf bytes.Buffer
	if err := r.Fetch(context.Background(), "https://cdn/a.png", &buf); err != nil {
		t.Fatalf("https fetch: %v", err)
	}
	if err := r.Fetch(context.Background(), "asset://42", &buf); err != nil {
		t.Fatalf("asset fetch: %v", err)
	}
	if buf.String() != "ab" {
		t.Errorf("unexpected bodies %q", buf.String())
	}

	err := r.Fetch(context.Background(), "ftp://host/file", io.Discard)
	if !errors.IsCode(err, errors.CodeFetch) || !strings.Contains(err.Error(), "unsupported scheme") {
		t.Errorf("expected unsupported scheme fetch error, got %v", err)
	}
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "slide.png")
	if err := os.WriteFile(src, []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewSchemeRouter().Handle("", FileFetcher{}).Handle("file", FileFetcher{})

	for _, loc := range []string{src, "file://" + filepath.ToSlash(src)} {
		var buf bytes.Buffer
		if err := r.Fetch(context.Background(), loc, &buf); err != nil {
			t.Fatalf("fetch %s: %v", loc, err)
		}
		if buf.String() != "local" {
			t.Errorf("fetch %s = %q", loc, buf.String())
		}
	}

	err := r.Fetch(context.Background(), filepath.Join(dir, "missing.png"), io.Discard)
	if !errors.IsCode(err, errors.CodeFetch) {
		t.Errorf("expected FETCH_ERROR for missing file, got %v", err)
	}
}

type fakeRow struct {
	vals []string
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		*(d.(*string)) = r.vals[i]
	}
	return nil
}

type fakeDB struct {
	rows map[string]fakeRow
	err  error
}

func (db fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if db.err != nil {
		return fakeRow{err: db.err}
	}
	row, ok := db.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return row
}

func TestCatalogFetcher(t *testing.T) {
	ctx := context.Background()
	sp := localfs.New(t.TempDir())
	if _, err := sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey: "uploads/slide.png",
		Reader:    bytes.NewReader([]byte("png-data")),
	}); err != nil {
		t.Fatal(err)
	}

	db := fakeDB{rows: map[string]fakeRow{
		"asset-1":  {vals: []string{"uploads/slide.png", "image/png"}},
		"orphaned": {vals: []string{"uploads/gone.png", "image/png"}},
	}}
	f := NewCatalogFetcher(db, sp)

	t.Run("found", func(t *testing.T) {
		var buf bytes.Buffer
		if err := f.Fetch(ctx, "asset://asset-1", &buf); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if buf.String() != "png-data" {
			t.Errorf("unexpected body %q", buf.String())
		}
	})

	for name, locator := range map[string]string{
		"unknown id":     "asset://missing",
		"missing object": "asset://orphaned",
		"no id":          "asset://",
		"wrong scheme":   "https://asset-1",
	} {
		t.Run(name, func(t *testing.T) {
			if err := f.Fetch(ctx, locator, io.Discard); !errors.IsCode(err, errors.CodeFetch) {
				t.Errorf("expected FETCH_ERROR, got %v", err)
			}
		})
	}

	t.Run("catalog table missing", func(t *testing.T) {
		f := NewCatalogFetcher(fakeDB{err: &pgconn.PgError{Code: "42P01"}}, sp)
		err := f.Fetch(ctx, "asset://asset-1", io.Discard)
		if !errors.IsCode(err, errors.CodeFetch) || !strings.Contains(err.Error(), "not provisioned") {
			t.Errorf("expected not provisioned fetch error, got %v", err)
		}
	})
}

func TestNormalizeImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img_000.jpg")
	if err := os.WriteFile(path, pngBytes(t, 160, 90), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := NormalizeImage(path); err != nil {
		t.Fatalf("NormalizeImage: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("expected jpeg, got %s", format)
	}
	if cfg.Width != 1920 || cfg.Height != 1080 {
		t.Errorf("expected 1920x1080, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestNormalizeImageDecodeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img_000.jpg")
	if err := os.WriteFile(path, []byte("<html>not an image</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := NormalizeImage(path)
	if !errors.IsCode(err, errors.CodeDecode) {
		t.Fatalf("expected DECODE_ERROR, got %v", err)
	}
}

func TestFormatSRTTime(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00:00,000"},
		{0.5, "00:00:00,500"},
		{3, "00:00:03,000"},
		{59.75, "00:00:59,750"},
		{3661.25, "01:01:01,250"},
		{36000, "10:00:00,000"},
	}
	for _, tt := range tests {
		if got := FormatSRTTime(tt.in); got != tt.want {
			t.Errorf("FormatSRTTime(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestWriteSRT(t *testing.T) {
	var buf bytes.Buffer
	cues := []models.SubtitleCue{
		{Start: 5, End: 10, Text: "second on screen"},
		{Start: 1, End: 3, Text: "first on screen"},
	}
	if err := WriteSRT(&buf, cues); err != nil {
		t.Fatalf("WriteSRT: %v", err)
	}

	want := "1\n00:00:05,000 --> 00:00:10,000\nsecond on screen\n\n" +
		"2\n00:00:01,000 --> 00:00:03,000\nfirst on screen\n\n"
	if buf.String() != want {
		t.Errorf("unexpected SRT:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestWriteSRTCollapsesBlankLines(t *testing.T) {
	var buf bytes.Buffer
	cues := []models.SubtitleCue{
		{Start: 0, End: 2, Text: "top line\n\n  \r\nbottom line\r\n"},
		{Start: 2, End: 4, Text: "next"},
	}
	if err := WriteSRT(&buf, cues); err != nil {
		t.Fatalf("WriteSRT: %v", err)
	}

	want := "1\n00:00:00,000 --> 00:00:02,000\ntop line\nbottom line\n\n" +
		"2\n00:00:02,000 --> 00:00:04,000\nnext\n\n"
	if buf.String() != want {
		t.Errorf("unexpected SRT:\n%q\nwant:\n%q", buf.String(), want)
	}
}

type recordingFetcher struct {
	mu    sync.Mutex
	calls []string
	body  map[string][]byte
	fail  string
}

func (f *recordingFetcher) Fetch(ctx context.Context, locator string, dst io.Writer) error {
	f.mu.Lock()
	f.calls = append(f.calls, locator)
	f.mu.Unlock()
	if locator == f.fail {
		return errors.Fetch("test.fetch", locator, fmt.Errorf("status 500"))
	}
	_, err := dst.Write(f.body[locator])
	return err
}

func TestResolverOrderAndLayout(t *testing.T) {
	img := pngBytes(t, 32, 18)
	f := &recordingFetcher{body: map[string][]byte{
		"https://x/voice.mp3": []byte("voice"),
		"https://x/music.mp3": []byte("music"),
		"https://x/a.png":     img,
		"https://x/b.png":     img,
	}}

	job := &models.RenderJob{
		ID:               "ab12cd34",
		Images:           []models.ImageRef{{Source: "https://x/a.png"}, {Source: "https://x/b.png"}},
		Voice:            "https://x/voice.mp3",
		Music:            "https://x/music.mp3",
		Subtitles:        []models.SubtitleCue{{Start: 1, End: 3, Text: "hi"}},
		DurationPerImage: 4,
	}
	ws, err := AcquireWorkspace(t.TempDir(), job.ID)
	if err != nil {
		t.Fatal(err)
	}

	got, err := NewResolver(f, nil).Resolve(context.Background(), job, ws)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	wantOrder := []string{"https://x/voice.mp3", "https://x/music.mp3", "https://x/a.png", "https://x/b.png"}
	if strings.Join(f.calls, ",") != strings.Join(wantOrder, ",") {
		t.Errorf("fetch order = %v, want %v", f.calls, wantOrder)
	}

	if got.Voice != ws.VoicePath() || got.Music != ws.MusicPath() || got.SubtitleFile != ws.SubtitlePath() {
		t.Errorf("unexpected resolved paths %+v", got)
	}
	if len(got.Images) != 2 || got.Images[1] != ws.ImagePath(1) {
		t.Errorf("unexpected image paths %v", got.Images)
	}
	if b, _ := os.ReadFile(ws.VoicePath()); string(b) != "voice" {
		t.Errorf("voice must be stored unmodified, got %q", b)
	}
	if srt, _ := os.ReadFile(ws.SubtitlePath()); !strings.Contains(string(srt), "00:00:01,000 --> 00:00:03,000") {
		t.Errorf("unexpected subtitle file %q", srt)
	}

	if plan := Plan(job, ws); plan.SubtitleFile != got.SubtitleFile || len(plan.Images) != 2 || plan.Output != got.Output {
		t.Errorf("Plan disagrees with Resolve: %+v vs %+v", plan, got)
	}
}

func TestResolverStopsAtFirstFailure(t *testing.T) {
	f := &recordingFetcher{
		body: map[string][]byte{"https://x/a.png": pngBytes(t, 8, 8)},
		fail: "https://x/music.mp3",
	}
	job := &models.RenderJob{
		ID:     "ff00ff00",
		Images: []models.ImageRef{{Source: "https://x/a.png"}},
		Music:  "https://x/music.mp3",
	}
	ws, err := AcquireWorkspace(t.TempDir(), job.ID)
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewResolver(f, nil).Resolve(context.Background(), job, ws)
	if !errors.IsCode(err, errors.CodeFetch) {
		t.Fatalf("expected FETCH_ERROR, got %v", err)
	}
	if len(f.calls) != 1 {
		t.Errorf("expected resolution to stop after the failed fetch, calls=%v", f.calls)
	}
}
