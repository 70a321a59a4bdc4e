package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Target frame size every image is normalized to before graph building.
const (
	TargetWidth  = 1920
	TargetHeight = 1080
)

const (
	DefaultDurationPerImage = 5
	DefaultTitle            = "The Footnote Video"
	// DefaultCueSpan is the length of a subtitle cue given without times.
	DefaultCueSpan = 5.0
	// MaxTotalDuration caps the declared output length, in seconds.
	MaxTotalDuration = 24 * 60 * 60
)

type ImageRef struct {
	Source string `json:"source"`
}

type SubtitleCue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// RenderJob is one slideshow render. It is not mutated once the pipeline starts;
// the resolver records local paths in ResolvedAssets instead.
type RenderJob struct {
	ID               string        `json:"id"`
	Images           []ImageRef    `json:"images"`
	Voice            string        `json:"voice,omitempty"`
	Music            string        `json:"music,omitempty"`
	Subtitles        []SubtitleCue `json:"subtitles,omitempty"`
	DurationPerImage int           `json:"duration_per_image"`
	Title            string        `json:"title"`
	CreatedAt        time.Time     `json:"created_at"`
}

func (j *RenderJob) HasVoice() bool     { return j.Voice != "" }
func (j *RenderJob) HasMusic() bool     { return j.Music != "" }
func (j *RenderJob) HasSubtitles() bool { return len(j.Subtitles) > 0 }

// TotalDuration is the declared output length in seconds.
func (j *RenderJob) TotalDuration() int {
	return len(j.Images) * j.DurationPerImage
}

// NewJobID returns an 8 character job identifier.
func NewJobID() string {
	return uuid.NewString()[:8]
}

// DownloadFilename is the attachment name offered for the rendered video.
func (j *RenderJob) DownloadFilename() string {
	return SanitizeFilename(j.Title) + "_" + j.ID + ".mp4"
}

// ResolvedAssets are the workspace-local files produced for a job.
type ResolvedAssets struct {
	Images       []string `json:"images"`
	Voice        string   `json:"voice,omitempty"`
	Music        string   `json:"music,omitempty"`
	SubtitleFile string   `json:"subtitle_file,omitempty"`
	Output       string   `json:"output"`
}

// SanitizeFilename replaces spaces and path separators so a title can be used
// as a file name.
func SanitizeFilename(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "..", "")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "\"", "")
	if s == "" {
		return "video"
	}
	return s
}
