// Package assets materializes a render job's sources inside its workspace.
package assets

import (
	"context"
	"fmt"
	"os"

	"slidecast/internal/models"
	"slidecast/internal/pkg/errors"
	"slidecast/internal/pkg/logger"
)

// Resolver fetches and prepares every file a job needs, strictly in order:
// voice, music, images, subtitle file. The first failure aborts.
type Resolver struct {
	fetcher Fetcher
	log     *logger.Logger
}

func NewResolver(fetcher Fetcher, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Discard()
	}
	return &Resolver{fetcher: fetcher, log: log.WithComponent("assets")}
}

func (r *Resolver) Resolve(ctx context.Context, job *models.RenderJob, ws *Workspace) (models.ResolvedAssets, error) {
	log := r.log.FromContext(ctx).WithJobID(job.ID)
	out := models.ResolvedAssets{Output: ws.OutputPath()}

	if job.HasVoice() {
		log.Info("downloading voiceover")
		if err := r.download(ctx, job.Voice, ws.VoicePath()); err != nil {
			return out, err
		}
		out.Voice = ws.VoicePath()
	}

	if job.HasMusic() {
		log.Info("downloading music")
		if err := r.download(ctx, job.Music, ws.MusicPath()); err != nil {
			return out, err
		}
		out.Music = ws.MusicPath()
	}

	out.Images = make([]string, 0, len(job.Images))
	for i, img := range job.Images {
		dst := ws.ImagePath(i)
		log.Info("downloading image", "index", i+1, "total", len(job.Images))
		if err := r.download(ctx, img.Source, dst); err != nil {
			return out, err
		}
		if err := NormalizeImage(dst); err != nil {
			return out, err
		}
		out.Images = append(out.Images, dst)
	}

	if job.HasSubtitles() {
		log.Info("writing subtitle file", "cues", len(job.Subtitles))
		if err := WriteSRTFile(ws.SubtitlePath(), job.Subtitles); err != nil {
			return out, errors.Wrap(err, "assets.subtitles", "failed to write subtitle file")
		}
		out.SubtitleFile = ws.SubtitlePath()
	}

	return out, nil
}

// Plan returns the paths Resolve would produce, without touching the network
// or the filesystem.
func Plan(job *models.RenderJob, ws *Workspace) models.ResolvedAssets {
	out := models.ResolvedAssets{Output: ws.OutputPath()}
	if job.HasVoice() {
		out.Voice = ws.VoicePath()
	}
	if job.HasMusic() {
		out.Music = ws.MusicPath()
	}
	for i := range job.Images {
		out.Images = append(out.Images, ws.ImagePath(i))
	}
	if job.HasSubtitles() {
		out.SubtitleFile = ws.SubtitlePath()
	}
	return out
}

func (r *Resolver) download(ctx context.Context, locator, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "assets.download", fmt.Sprintf("create %s", dst))
	}
	if err := r.fetcher.Fetch(ctx, locator, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "assets.download", fmt.Sprintf("close %s", dst))
	}
	return nil
}
