// Package renderer drives a render job through its pipeline:
// resolve assets, build the stream graph, compile it, run ffmpeg, publish.
package renderer

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"slidecast/internal/models"
	"slidecast/internal/pkg/errors"
	"slidecast/internal/pkg/logger"
	"slidecast/internal/renderer/assets"
	"slidecast/internal/renderer/compiler"
	"slidecast/internal/renderer/graph"
	"slidecast/internal/renderer/publisher"
	"slidecast/internal/renderer/supervisor"
)

// Resolver materializes a job's sources inside its workspace.
type Resolver interface {
	Resolve(ctx context.Context, job *models.RenderJob, ws *assets.Workspace) (models.ResolvedAssets, error)
}

// Runner executes a compiled program.
type Runner interface {
	Run(ctx context.Context, p *compiler.Program) (supervisor.Artifact, error)
}

type Deps struct {
	Resolver      Resolver
	Runner        Runner
	WorkRoot      string
	RenderTimeout time.Duration
	// MaxConcurrent bounds jobs running at once in this process. Zero means 1.
	MaxConcurrent int
	Log           *logger.Logger
}

type Processor struct {
	resolver      Resolver
	runner        Runner
	workRoot      string
	renderTimeout time.Duration
	slots         *semaphore.Weighted
	log           *logger.Logger
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.MaxConcurrent <= 0 {
		d.MaxConcurrent = 1
	}
	if d.RenderTimeout <= 0 {
		d.RenderTimeout = compiler.DefaultTimeout
	}
	return &Processor{
		resolver:      d.Resolver,
		runner:        d.Runner,
		workRoot:      d.WorkRoot,
		renderTimeout: d.RenderTimeout,
		slots:         semaphore.NewWeighted(int64(d.MaxConcurrent)),
		log:           log.WithComponent("processor"),
	}
}

// Process runs job to a terminal state, hands the result to pub while the
// artifact still exists, then removes the job's workspace. The returned error
// is the publisher's; the render outcome is in the result.
func (p *Processor) Process(ctx context.Context, job *models.RenderJob, pub publisher.Publisher) (models.RenderResult, error) {
	ctx = logger.ContextWithJobID(ctx, job.ID)
	log := p.log.FromContext(ctx)
	start := time.Now()
	lc := models.NewLifecycle()

	if err := p.slots.Acquire(ctx, 1); err != nil {
		res := p.fail(log, lc, job, errors.WrapWithCode(err, errors.CodeUnavailable, "renderer.process", "no render slot available"))
		return p.finish(ctx, log, res, lc, start, nil, pub)
	}
	defer p.slots.Release(1)

	log.Info("render started",
		"images", len(job.Images),
		"voice", job.HasVoice(),
		"music", job.HasMusic(),
		"subtitles", len(job.Subtitles),
		"duration_per_image", job.DurationPerImage,
	)

	ws, err := assets.AcquireWorkspace(p.workRoot, job.ID)
	if err != nil {
		res := p.fail(log, lc, job, errors.Wrap(err, "renderer.workspace", "failed to create workspace"))
		return p.finish(ctx, log, res, lc, start, nil, pub)
	}

	res := p.run(ctx, log, lc, job, ws)
	return p.finish(ctx, log, res, lc, start, ws, pub)
}

func (p *Processor) run(ctx context.Context, log *logger.Logger, lc *models.Lifecycle, job *models.RenderJob, ws *assets.Workspace) models.RenderResult {
	p.enter(log, lc, models.StateResolving)
	resolved, err := p.resolver.Resolve(ctx, job, ws)
	if err != nil {
		return p.fail(log, lc, job, err)
	}

	p.enter(log, lc, models.StateBuilding)
	g, err := graph.Build(graphParams(job, resolved))
	if err != nil {
		return p.fail(log, lc, job, err)
	}

	p.enter(log, lc, models.StateCompiling)
	prog, err := compiler.Compile(compiler.Input{
		Graph:            g,
		Assets:           resolved,
		DurationPerImage: job.DurationPerImage,
		Timeout:          p.renderTimeout,
	})
	if err != nil {
		return p.fail(log, lc, job, err)
	}

	p.enter(log, lc, models.StateExecuting)
	art, err := p.runner.Run(ctx, prog)
	if err != nil {
		return p.fail(log, lc, job, err)
	}

	p.enter(log, lc, models.StateSucceeded)
	return models.RenderResult{
		JobID:            job.ID,
		Title:            job.Title,
		State:            models.StateSucceeded,
		ArtifactPath:     art.Path,
		Size:             art.Size,
		DownloadFilename: job.DownloadFilename(),
	}
}

// Plan compiles job against its planned workspace layout without fetching
// anything or running ffmpeg.
func (p *Processor) Plan(job *models.RenderJob) (*compiler.Program, error) {
	resolved := assets.Plan(job, assets.PlannedWorkspace(p.workRoot, job.ID))
	g, err := graph.Build(graphParams(job, resolved))
	if err != nil {
		return nil, withJobID(err, job.ID)
	}
	prog, err := compiler.Compile(compiler.Input{
		Graph:            g,
		Assets:           resolved,
		DurationPerImage: job.DurationPerImage,
		Timeout:          p.renderTimeout,
	})
	if err != nil {
		return nil, withJobID(err, job.ID)
	}
	return prog, nil
}

func graphParams(job *models.RenderJob, a models.ResolvedAssets) graph.Params {
	return graph.Params{
		ImageCount:       len(a.Images),
		DurationPerImage: job.DurationPerImage,
		SubtitlePath:     a.SubtitleFile,
		HasVoice:         a.Voice != "",
		HasMusic:         a.Music != "",
	}
}

func (p *Processor) enter(log *logger.Logger, lc *models.Lifecycle, s models.State) {
	from := lc.Current()
	if err := lc.Transition(s); err != nil {
		log.Error("invalid state transition", "from", string(from), "to", string(s))
		return
	}
	log.Info("state transition", "from", string(from), "to", string(s))
}

// fail moves the job to TimedOut for an execution timeout, Failed otherwise.
func (p *Processor) fail(log *logger.Logger, lc *models.Lifecycle, job *models.RenderJob, err error) models.RenderResult {
	state := models.StateFailed
	if errors.IsCode(err, errors.CodeTimeout) && lc.Current() == models.StateExecuting {
		state = models.StateTimedOut
	}
	stage := lc.Current()
	p.enter(log, lc, state)

	err = withJobID(err, job.ID)
	log.WithStage(string(stage)).WithError(err).Error("render failed", "code", string(errors.GetCode(err)))

	return models.RenderResult{
		JobID: job.ID,
		Title: job.Title,
		State: state,
		Err:   err,
	}
}

func (p *Processor) finish(ctx context.Context, log *logger.Logger, res models.RenderResult, lc *models.Lifecycle, start time.Time, ws *assets.Workspace, pub publisher.Publisher) (models.RenderResult, error) {
	res.History = lc.History()
	res.Duration = time.Since(start)

	var pubErr error
	if pub != nil {
		if pubErr = pub.Publish(ctx, res); pubErr != nil {
			log.WithError(pubErr).Warn("publishing render result failed")
		}
	}

	if err := ws.Release(); err != nil {
		log.WithError(err).Error("failed to remove workspace", "dir", ws.Dir)
	}

	log.Info("render finished",
		"state", string(res.State),
		"size", res.Size,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, pubErr
}

// withJobID tags err with the job identifier, wrapping plain errors.
func withJobID(err error, jobID string) error {
	var e *errors.Error
	if errors.As(err, &e) {
		e.WithField(errors.FieldJobID, jobID)
		return err
	}
	return errors.Wrap(err, "renderer.process", "render failed").WithField(errors.FieldJobID, jobID)
}
