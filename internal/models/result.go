package models

import (
	"time"

	"slidecast/internal/pkg/errors"
)

// RenderResult is the outcome of one job. JobID is set on both outcomes.
type RenderResult struct {
	JobID string `json:"job_id"`
	Title string `json:"title,omitempty"`
	State State  `json:"state"`

	// Success.
	ArtifactPath     string `json:"artifact_path,omitempty"`
	Size             int64  `json:"size,omitempty"`
	DownloadFilename string `json:"download_filename,omitempty"`

	// Failure.
	Err error `json:"-"`

	History  []State       `json:"history,omitempty"`
	Duration time.Duration `json:"-"`
}

func (r RenderResult) Succeeded() bool { return r.State == StateSucceeded && r.Err == nil }

// ErrorCode returns the failure kind, or "" on success.
func (r RenderResult) ErrorCode() errors.Code {
	if r.Err == nil {
		return ""
	}
	return errors.GetCode(r.Err)
}

// Stderr returns the encoder diagnostic tail attached to an encode failure.
func (r RenderResult) Stderr() string {
	return errors.GetString(r.Err, errors.FieldStderr)
}

// RenderEvent is the published form of a RenderResult.
type RenderEvent struct {
	JobID            string    `json:"job_id"`
	State            State     `json:"state"`
	Title            string    `json:"title,omitempty"`
	Size             int64     `json:"size,omitempty"`
	DownloadFilename string    `json:"download_filename,omitempty"`
	ErrorCode        string    `json:"error_code,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	DurationMS       int64     `json:"duration_ms"`
	At               time.Time `json:"at"`
}

// Event converts the result for publication.
func (r RenderResult) Event() RenderEvent {
	ev := RenderEvent{
		JobID:            r.JobID,
		State:            r.State,
		Title:            r.Title,
		Size:             r.Size,
		DownloadFilename: r.DownloadFilename,
		DurationMS:       r.Duration.Milliseconds(),
		At:               time.Now().UTC(),
	}
	if r.Err != nil {
		ev.ErrorCode = string(r.ErrorCode())
		ev.ErrorMessage = r.Err.Error()
	}
	return ev
}
