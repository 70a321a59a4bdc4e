package handlers

import (
	"context"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"slidecast/internal/httpkit"
	"slidecast/internal/models"
	"slidecast/internal/pkg/errors"
	"slidecast/internal/pkg/logger"
	"slidecast/internal/pkg/middleware"
	"slidecast/internal/renderer/compiler"
	"slidecast/internal/renderer/publisher"
)

// RenderVideo renders the posted job and streams the MP4 back as an
// attachment. The render is detached from the request context: a client that
// disconnects does not stop the encode.
//
// The server's write deadline is lifted while the job waits for a slot,
// fetches and encodes; the response gets its own window once the result is
// published.
func (h *Handler) RenderVideo(w http.ResponseWriter, r *http.Request) error {
	id := models.NewJobID()
	w.Header().Set(JobIDHeader, id)

	job, err := decodeJob(r, id)
	if err != nil {
		return err
	}

	ctx := logger.ContextWithJobID(context.WithoutCancel(r.Context()), job.ID)
	log := h.log.FromContext(ctx)

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.WithError(err).Warn("could not lift write deadline")
	}

	pub := publisher.Multi{&responsePublisher{w: w, r: r, rc: rc, ttl: h.respTTL, log: h.log}}
	pub = append(pub, h.sidecars...)

	res, err := h.renderer.Process(ctx, job, pub)
	if err != nil {
		log.WithError(err).Warn("render result not fully published", "state", string(res.State))
	}
	return nil
}

// PlanResponse is the compiled invocation for a job, without running it.
type PlanResponse struct {
	JobID   string            `json:"job_id"`
	Binary  string            `json:"binary"`
	Args    []string          `json:"args"`
	Program *compiler.Program `json:"program"`
}

// PlanVideo compiles the posted job against its workspace layout. Nothing is
// fetched and ffmpeg is not started.
func (h *Handler) PlanVideo(w http.ResponseWriter, r *http.Request) error {
	id := models.NewJobID()
	w.Header().Set(JobIDHeader, id)

	job, err := decodeJob(r, id)
	if err != nil {
		return err
	}

	prog, err := h.renderer.Plan(job)
	if err != nil {
		return withJobID(err, errors.CodeInternal, id)
	}

	httpkit.WriteJSON(w, http.StatusOK, PlanResponse{
		JobID:   job.ID,
		Binary:  h.ffmpegBin,
		Args:    prog.Args(),
		Program: prog,
	})
	return nil
}

// decodeJob parses and validates the body. Errors carry the job id so the
// client can correlate a rejected submission.
func decodeJob(r *http.Request, id string) (*models.RenderJob, error) {
	var req models.RenderRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "httpapi.decode", "invalid json body").
			WithField(errors.FieldJobID, id)
	}
	job, err := req.ToJob(id)
	if err != nil {
		return nil, withJobID(err, errors.CodeValidation, id)
	}
	return job, nil
}

// withJobID tags a coded error with the job id, wrapping plain errors as code.
func withJobID(err error, code errors.Code, id string) error {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.WithField(errors.FieldJobID, id)
	}
	return errors.WrapWithCode(err, code, "httpapi", err.Error()).WithField(errors.FieldJobID, id)
}

// responsePublisher answers the render request with the job's outcome.
type responsePublisher struct {
	w   http.ResponseWriter
	r   *http.Request
	rc  *http.ResponseController
	ttl time.Duration
	log *logger.Logger
}

func (p *responsePublisher) Publish(ctx context.Context, res models.RenderResult) error {
	if err := p.rc.SetWriteDeadline(time.Now().Add(p.ttl)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		p.log.FromContext(ctx).WithError(err).Warn("could not set response write deadline")
	}

	if !res.Succeeded() {
		err := res.Err
		if err == nil {
			err = errors.Newf(errors.CodeInternal, "render ended in state %s", res.State).WithField(errors.FieldJobID, res.JobID)
		}
		middleware.HandleError(p.w, p.r, p.log, err)
		return nil
	}

	f, err := os.Open(res.ArtifactPath)
	if err != nil {
		e := errors.Wrap(err, "httpapi.respond", "open rendered video").WithField(errors.FieldJobID, res.JobID)
		middleware.HandleError(p.w, p.r, p.log, e)
		return e
	}
	defer f.Close()

	hdr := p.w.Header()
	hdr.Set("Content-Type", "video/mp4")
	hdr.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.DownloadFilename}))
	hdr.Set("Content-Length", strconv.FormatInt(res.Size, 10))
	p.w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(p.w, f); err != nil {
		return errors.Wrap(err, "httpapi.respond", "stream rendered video").WithField(errors.FieldJobID, res.JobID)
	}
	return nil
}
