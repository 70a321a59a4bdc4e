package assets

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is the per-job working directory. Everything a job downloads or
// produces lives inside it and is removed by Release.
type Workspace struct {
	Dir   string
	JobID string
}

// AcquireWorkspace creates <root>/slidecast_<jobID>.
func AcquireWorkspace(root, jobID string) (*Workspace, error) {
	if jobID == "" {
		return nil, fmt.Errorf("workspace: job id is required")
	}
	dir := filepath.Join(root, "slidecast_"+jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create %s: %w", dir, err)
	}
	return &Workspace{Dir: dir, JobID: jobID}, nil
}

// PlannedWorkspace returns the workspace layout for a job without creating it.
func PlannedWorkspace(root, jobID string) *Workspace {
	return &Workspace{Dir: filepath.Join(root, "slidecast_"+jobID), JobID: jobID}
}

func (w *Workspace) ImagePath(i int) string {
	return filepath.Join(w.Dir, fmt.Sprintf("img_%03d.jpg", i))
}

func (w *Workspace) VoicePath() string    { return filepath.Join(w.Dir, "voice.mp3") }
func (w *Workspace) MusicPath() string    { return filepath.Join(w.Dir, "music.mp3") }
func (w *Workspace) SubtitlePath() string { return filepath.Join(w.Dir, "subtitles.srt") }
func (w *Workspace) OutputPath() string   { return filepath.Join(w.Dir, "final_video.mp4") }

// Release removes the workspace directory. It is safe to call more than once.
func (w *Workspace) Release() error {
	if w == nil || w.Dir == "" {
		return nil
	}
	return os.RemoveAll(w.Dir)
}
