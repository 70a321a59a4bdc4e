package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"slidecast/internal/pkg/errors"
)

// RenderRequest is the submission payload shared by the HTTP API and the
// slidectl job files.
type RenderRequest struct {
	Images           []string     `json:"images" yaml:"images"`
	VoiceoverURL     string       `json:"voiceover_url,omitempty" yaml:"voiceover_url,omitempty"`
	MusicURL         string       `json:"music_url,omitempty" yaml:"music_url,omitempty"`
	Subtitles        []CueRequest `json:"subtitles,omitempty" yaml:"subtitles,omitempty"`
	DurationPerImage *float64     `json:"duration_per_image,omitempty" yaml:"duration_per_image,omitempty"`
	Title            *string      `json:"title,omitempty" yaml:"title,omitempty"`
}

// CueRequest is a subtitle cue as submitted. Missing times take the default
// span for the cue's position.
type CueRequest struct {
	Start *float64 `json:"start,omitempty" yaml:"start,omitempty"`
	End   *float64 `json:"end,omitempty" yaml:"end,omitempty"`
	Text  string   `json:"text" yaml:"text"`
}

// DefaultCueTiming returns the span of the i-th cue (1-indexed): [(i-1)*5, i*5).
func DefaultCueTiming(i int) (start, end float64) {
	return float64(i-1) * DefaultCueSpan, float64(i) * DefaultCueSpan
}

// ToJob validates the request and builds the job it describes. Durations are
// truncated to whole seconds.
func (r RenderRequest) ToJob(id string) (*RenderJob, error) {
	if len(r.Images) == 0 {
		return nil, errors.ValidationField("images", "at least one image is required")
	}

	job := &RenderJob{
		ID:               id,
		Images:           make([]ImageRef, 0, len(r.Images)),
		Voice:            strings.TrimSpace(r.VoiceoverURL),
		Music:            strings.TrimSpace(r.MusicURL),
		DurationPerImage: DefaultDurationPerImage,
		Title:            DefaultTitle,
		CreatedAt:        time.Now().UTC(),
	}

	for i, src := range r.Images {
		src = strings.TrimSpace(src)
		if src == "" {
			return nil, errors.ValidationField("images", fmt.Sprintf("image %d has an empty locator", i))
		}
		job.Images = append(job.Images, ImageRef{Source: src})
	}

	if r.DurationPerImage != nil {
		v := *r.DurationPerImage
		if math.IsNaN(v) || math.IsInf(v, 0) || v > MaxTotalDuration {
			return nil, errors.ValidationField("duration_per_image",
				fmt.Sprintf("duration_per_image must be at most %d seconds", MaxTotalDuration))
		}
		d := int(v)
		if d < 1 {
			return nil, errors.ValidationField("duration_per_image", "duration_per_image must be at least 1 second")
		}
		job.DurationPerImage = d
	}
	if job.TotalDuration() > MaxTotalDuration {
		return nil, errors.ValidationField("duration_per_image",
			fmt.Sprintf("%d images of %ds exceed the %d second limit", len(job.Images), job.DurationPerImage, MaxTotalDuration))
	}

	if r.Title != nil {
		job.Title = *r.Title
	}

	for i, c := range r.Subtitles {
		start, end := DefaultCueTiming(i + 1)
		if c.Start != nil {
			start = *c.Start
		}
		if c.End != nil {
			end = *c.End
		}
		if start < 0 {
			return nil, errors.ValidationField("subtitles", fmt.Sprintf("subtitle %d starts before 0", i+1))
		}
		if end <= start {
			return nil, errors.ValidationField("subtitles", fmt.Sprintf("subtitle %d must end after it starts", i+1))
		}
		job.Subtitles = append(job.Subtitles, SubtitleCue{Start: start, End: end, Text: c.Text})
	}

	return job, nil
}
