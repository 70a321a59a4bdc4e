// Package engine probes the media engine the renderer drives.
package engine

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"slidecast/internal/pkg/errors"
)

const probeTimeout = 10 * time.Second

var (
	commandContext = exec.CommandContext
	lookPath       = exec.LookPath
)

// Status is the result of a media engine probe.
type Status struct {
	Binary         string `json:"-"`
	Version        string `json:"ffmpeg"`
	FontsAvailable bool   `json:"fonts_available"`
}

// Probe runs `<binary> -version` and reports its first line. Font availability
// is checked with fc-list when fontconfig is installed; a missing fc-list
// does not fail the probe.
func Probe(ctx context.Context, binary string) (Status, error) {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	st := Status{Binary: binary}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := commandContext(ctx, binary, "-version").Output()
	if err != nil {
		return st, errors.WrapWithCode(err, errors.CodeUnavailable, "engine.probe", binary+" -version failed")
	}
	st.Version = FirstLine(string(out))
	if st.Version == "" {
		return st, errors.New(errors.CodeUnavailable, binary+" -version printed nothing")
	}

	st.FontsAvailable = fontsAvailable(ctx)
	return st, nil
}

func fontsAvailable(ctx context.Context) bool {
	if _, err := lookPath("fc-list"); err != nil {
		return false
	}
	out, err := commandContext(ctx, "fc-list").Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) != ""
}

// FirstLine returns the first line of s without its line ending.
func FirstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimRight(line, "\r")
}
