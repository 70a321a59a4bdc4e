// Package supervisor runs a compiled program as one ffmpeg process under a
// hard deadline and turns its outcome into a coded result.
package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"slidecast/internal/pkg/errors"
	"slidecast/internal/pkg/logger"
	"slidecast/internal/renderer/compiler"
)

// StderrTailRunes bounds the diagnostic text carried by an encode failure.
const StderrTailRunes = 2000

const defaultWaitDelay = 5 * time.Second

var commandContext = exec.CommandContext

// Artifact is a rendered output file.
type Artifact struct {
	Path string
	Size int64
}

// Supervisor executes programs with the media engine binary.
type Supervisor struct {
	binary    string
	waitDelay time.Duration
	log       *logger.Logger
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithBinary overrides the ffmpeg binary.
func WithBinary(binary string) Option {
	return func(s *Supervisor) {
		if binary != "" {
			s.binary = binary
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Supervisor) {
		if log != nil {
			s.log = log
		}
	}
}

// WithWaitDelay bounds how long Run waits for output pipes after the process
// has been killed.
func WithWaitDelay(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.waitDelay = d
		}
	}
}

func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		binary:    "ffmpeg",
		waitDelay: defaultWaitDelay,
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("supervisor")
	return s
}

// Binary returns the configured ffmpeg binary.
func (s *Supervisor) Binary() string { return s.binary }

// Run executes p. It returns TIMEOUT when p.Timeout elapses (the process group
// is killed and reaped first), ENCODE_ERROR with the stderr tail on a non-zero
// exit, and MISSING_OUTPUT when the process succeeds without writing p.Output.
func (s *Supervisor) Run(ctx context.Context, p *compiler.Program) (Artifact, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = compiler.DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := commandContext(runCtx, s.binary, p.Args()...) //nolint:gosec
	cmd.Stdin = nil
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = s.waitDelay
	killProcessGroup(cmd)

	log := s.log.FromContext(ctx)
	start := time.Now()
	log.Info("running ffmpeg", "inputs", len(p.Inputs), "duration_s", p.Duration, "timeout", timeout.String())

	err := cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() != nil && ctx.Err() == nil {
		log.Error("ffmpeg timed out", "elapsed_ms", elapsed.Milliseconds())
		return Artifact{}, errors.Timeout("ffmpeg")
	}
	if ctx.Err() != nil {
		return Artifact{}, errors.Wrap(ctx.Err(), "supervisor.run", "render canceled")
	}

	if err != nil {
		tail := Tail(stderr.String(), StderrTailRunes)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.Error("ffmpeg failed", "exit_code", exitErr.ExitCode(), "elapsed_ms", elapsed.Milliseconds())
			return Artifact{}, errors.WrapWithCode(err, errors.CodeEncode, "supervisor.run",
				fmt.Sprintf("ffmpeg exited with status %d", exitErr.ExitCode())).
				WithField(errors.FieldStderr, tail)
		}
		return Artifact{}, errors.WrapWithCode(err, errors.CodeEncode, "supervisor.run", "failed to start ffmpeg").
			WithField(errors.FieldStderr, tail)
	}

	st, statErr := os.Stat(p.Output)
	if statErr != nil || st.Size() == 0 {
		log.Error("ffmpeg reported success without output", "output", p.Output)
		e := errors.New(errors.CodeMissingOutput, "output file not created").WithField("output", p.Output)
		e.Op = "supervisor.verify"
		return Artifact{}, e
	}

	log.Info("ffmpeg finished", "size", st.Size(), "elapsed_ms", elapsed.Milliseconds())
	return Artifact{Path: p.Output, Size: st.Size()}, nil
}

// Tail returns the last n runes of s.
func Tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
