package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"slidecast/internal/models"
	"slidecast/internal/pkg/errors"
	"slidecast/internal/pkg/logger"
	"slidecast/internal/pkg/middleware"
	"slidecast/internal/renderer/compiler"
	"slidecast/internal/renderer/publisher"
)

type envelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, body []byte) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode envelope %q: %v", body, err)
	}
	return env
}

// fakeRenderer produces a canned outcome and publishes it like the processor.
type fakeRenderer struct {
	outcome func(job *models.RenderJob) models.RenderResult
	plan    *compiler.Program
	planErr error
	delay   time.Duration

	mu     sync.Mutex
	jobs   []*models.RenderJob
	ctxErr error
}

func (f *fakeRenderer) Process(ctx context.Context, job *models.RenderJob, pub publisher.Publisher) (models.RenderResult, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.ctxErr = ctx.Err()
	f.mu.Unlock()

	time.Sleep(f.delay)
	res := f.outcome(job)
	res.JobID = job.ID
	return res, pub.Publish(ctx, res)
}

func (f *fakeRenderer) Plan(job *models.RenderJob) (*compiler.Program, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()
	return f.plan, f.planErr
}

func (f *fakeRenderer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func succeedWith(t *testing.T, body string) func(job *models.RenderJob) models.RenderResult {
	dir := t.TempDir()
	return func(job *models.RenderJob) models.RenderResult {
		p := filepath.Join(dir, "final_video.mp4")
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
		return models.RenderResult{
			Title:            job.Title,
			State:            models.StateSucceeded,
			ArtifactPath:     p,
			Size:             int64(len(body)),
			DownloadFilename: job.DownloadFilename(),
		}
	}
}

func failWith(state models.State, err *errors.Error) func(job *models.RenderJob) models.RenderResult {
	return func(job *models.RenderJob) models.RenderResult {
		return models.RenderResult{State: state, Err: err.WithField(errors.FieldJobID, job.ID)}
	}
}

func serve(h *Handler, fn middleware.ErrorHandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	middleware.WrapHandler(logger.Discard(), fn).ServeHTTP(rec, req)
	return rec
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRenderVideoStreamsAttachment(t *testing.T) {
	r := &fakeRenderer{outcome: succeedWith(t, "fake-mp4-bytes")}
	var sidecarCalls int
	h := New(Deps{
		Renderer: r,
		Sidecars: []publisher.Publisher{publisher.Func(func(context.Context, models.RenderResult) error {
			sidecarCalls++
			return nil
		})},
		Log: logger.Discard(),
	})

	rec := serve(h, h.RenderVideo, postJSON("/render-video", `{"images":["https://example.com/a.png"],"title":"My Trip"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	jobID := rec.Header().Get(JobIDHeader)
	if len(jobID) != 8 {
		t.Fatalf("expected an 8 character job id, got %q", jobID)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("content type = %q", ct)
	}
	wantDisp := "attachment; filename=My_Trip_" + jobID + ".mp4"
	if cd := rec.Header().Get("Content-Disposition"); cd != wantDisp {
		t.Errorf("content disposition = %q, want %q", cd, wantDisp)
	}
	if rec.Body.String() != "fake-mp4-bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if sidecarCalls != 1 {
		t.Errorf("expected sidecar to be called once, got %d", sidecarCalls)
	}
}

func TestRenderVideoAppliesDefaults(t *testing.T) {
	r := &fakeRenderer{outcome: succeedWith(t, "x")}
	h := New(Deps{Renderer: r, Log: logger.Discard()})

	serve(h, h.RenderVideo, postJSON("/render-video", `{"images":["a.png","b.png"]}`))

	if r.calls() != 1 {
		t.Fatalf("expected one render, got %d", r.calls())
	}
	job := r.jobs[0]
	if job.DurationPerImage != models.DefaultDurationPerImage || job.Title != models.DefaultTitle {
		t.Errorf("defaults not applied: %+v", job)
	}
}

func TestRenderVideoRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no images", `{"images":[]}`},
		{"missing images", `{"title":"x"}`},
		{"zero duration", `{"images":["a.png"],"duration_per_image":0.5}`},
		{"unknown field", `{"images":["a.png"],"fps":30}`},
		{"malformed", `{"images":`},
		{"inverted cue", `{"images":["a.png"],"subtitles":[{"start":3,"end":1,"text":"x"}]}`},
		{"duration overflow", `{"images":["a.png","b.png"],"duration_per_image":1e18}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRenderer{outcome: succeedWith(t, "x")}
			h := New(Deps{Renderer: r, Log: logger.Discard()})

			rec := serve(h, h.RenderVideo, postJSON("/render-video", tt.body))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			env := decodeEnvelope(t, rec.Body.Bytes())
			if env.Error.Code != "VALIDATION_ERROR" {
				t.Errorf("code = %q", env.Error.Code)
			}
			jobID := rec.Header().Get(JobIDHeader)
			if len(jobID) != 8 {
				t.Errorf("expected an 8 character job id header, got %q", jobID)
			}
			if got := env.Error.Details[errors.FieldJobID]; got != jobID {
				t.Errorf("details job_id = %v, want %q", got, jobID)
			}
			if r.calls() != 0 {
				t.Error("renderer should not run for an invalid request")
			}
		})
	}
}

func TestRenderVideoFailures(t *testing.T) {
	stderr := strings.Repeat("x", 2000)
	tests := []struct {
		name       string
		outcome    func(job *models.RenderJob) models.RenderResult
		wantStatus int
		wantCode   string
		wantStderr bool
	}{
		{
			name: "encode failure",
			outcome: failWith(models.StateFailed,
				errors.New(errors.CodeEncode, "ffmpeg exited with status 1").WithField(errors.FieldStderr, stderr)),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "ENCODE_ERROR",
			wantStderr: true,
		},
		{
			name:       "timeout",
			outcome:    failWith(models.StateTimedOut, errors.Timeout("ffmpeg")),
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   "TIMEOUT",
		},
		{
			name:       "fetch failure",
			outcome:    failWith(models.StateFailed, errors.Fetch("assets.fetch", "https://x/a.png", fmt.Errorf("http 404"))),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "FETCH_ERROR",
		},
		{
			name:       "missing output",
			outcome:    failWith(models.StateFailed, errors.New(errors.CodeMissingOutput, "output file not created")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "MISSING_OUTPUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(Deps{Renderer: &fakeRenderer{outcome: tt.outcome}, Log: logger.Discard()})

			rec := serve(h, h.RenderVideo, postJSON("/render-video", `{"images":["a.png"]}`))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			env := decodeEnvelope(t, rec.Body.Bytes())
			if env.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", env.Error.Code, tt.wantCode)
			}
			if env.Error.Details["job_id"] != rec.Header().Get(JobIDHeader) {
				t.Errorf("job_id detail %v does not match header %q", env.Error.Details["job_id"], rec.Header().Get(JobIDHeader))
			}
			_, hasStderr := env.Error.Details["stderr"]
			if hasStderr != tt.wantStderr {
				t.Errorf("stderr detail present = %v, want %v", hasStderr, tt.wantStderr)
			}
		})
	}
}

func TestRenderVideoSurvivesClientDisconnect(t *testing.T) {
	r := &fakeRenderer{outcome: succeedWith(t, "x")}
	h := New(Deps{Renderer: r, Log: logger.Discard()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := postJSON("/render-video", `{"images":["a.png"]}`).WithContext(ctx)

	serve(h, h.RenderVideo, req)

	if r.ctxErr != nil {
		t.Errorf("render context should be detached from the request, got %v", r.ctxErr)
	}
}

func TestRenderVideoOutlivesServerWriteTimeout(t *testing.T) {
	r := &fakeRenderer{outcome: succeedWith(t, "slow-but-complete"), delay: 300 * time.Millisecond}
	h := New(Deps{Renderer: r, ResponseTimeout: 5 * time.Second, Log: logger.Discard()})

	handler := middleware.Logging(logger.Discard())(middleware.WrapHandler(logger.Discard(), h.RenderVideo))
	srv := httptest.NewUnstartedServer(handler)
	srv.Config.WriteTimeout = 50 * time.Millisecond
	srv.Start()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/render-video", "application/json", strings.NewReader(`{"images":["a.png"]}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	if string(body) != "slow-but-complete" {
		t.Errorf("body = %q", body)
	}
}

func TestPlanVideo(t *testing.T) {
	prog := &compiler.Program{
		Inputs:   []compiler.InputBinding{{Path: "/tmp/slidecast_x/img_000.jpg", Flags: []string{"-loop", "1", "-t", "5"}}},
		Filter:   "[0:v]scale=1920:1080[v0];[v0]concat=n=1:v=1:a=0[video_base]",
		Maps:     []string{"[video_base]"},
		Duration: 5,
		Output:   "/tmp/slidecast_x/final_video.mp4",
	}
	r := &fakeRenderer{plan: prog}
	h := New(Deps{Renderer: r, FFmpegBin: "ffmpeg", Log: logger.Discard()})

	rec := serve(h, h.PlanVideo, postJSON("/render-video/plan", `{"images":["a.png"]}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp PlanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Binary != "ffmpeg" || resp.JobID == "" {
		t.Errorf("unexpected plan response: %+v", resp)
	}
	if resp.Args[0] != "-y" || resp.Args[len(resp.Args)-1] != prog.Output {
		t.Errorf("unexpected args: %v", resp.Args)
	}
	if resp.Program.Duration != 5 {
		t.Errorf("duration = %d", resp.Program.Duration)
	}
}

func TestPlanVideoCompileError(t *testing.T) {
	r := &fakeRenderer{planErr: errors.Compilef("label %q consumed %d times", "v0", 2)}
	h := New(Deps{Renderer: r, Log: logger.Discard()})

	rec := serve(h, h.PlanVideo, postJSON("/render-video/plan", `{"images":["a.png"]}`))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	env := decodeEnvelope(t, rec.Body.Bytes())
	if env.Error.Code != "COMPILE_ERROR" {
		t.Errorf("code = %q", env.Error.Code)
	}
	if got := env.Error.Details[errors.FieldJobID]; got != rec.Header().Get(JobIDHeader) {
		t.Errorf("details job_id = %v, want %q", got, rec.Header().Get(JobIDHeader))
	}
}

// fakeDB is an in-memory assets table.
type fakeDB struct {
	mu      sync.Mutex
	rows    map[string][]any
	pingErr error
	execErr error
}

func newFakeDB() *fakeDB { return &fakeDB{rows: map[string][]any{}} }

func (d *fakeDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	if d.execErr != nil {
		return pgconn.CommandTag{}, d.execErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch q := strings.TrimSpace(query); {
	case strings.HasPrefix(q, "INSERT"):
		d.rows[args[0].(string)] = args
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case strings.HasPrefix(q, "DELETE"):
		delete(d.rows, args[0].(string))
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("unexpected query: %s", query)
}

func (d *fakeDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	row, ok := d.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{values: row}
}

func (d *fakeDB) Ping(ctx context.Context) error { return d.pingErr }

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		v := r.values[i]
		switch p := d.(type) {
		case *string:
			*p = v.(string)
		case *int64:
			*p = v.(int64)
		case *time.Time:
			*p = v.(time.Time)
		case *sql.NullString:
			if s, ok := v.(string); ok {
				*p = sql.NullString{String: s, Valid: true}
			} else {
				*p = sql.NullString{}
			}
		default:
			return fmt.Errorf("unsupported scan target %T", d)
		}
	}
	return nil
}
