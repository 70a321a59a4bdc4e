// Package compiler turns a stream graph and its resolved inputs into an
// ffmpeg invocation.
package compiler

import (
	"strconv"
	"strings"
	"time"

	"slidecast/internal/models"
	"slidecast/internal/pkg/errors"
	"slidecast/internal/renderer/graph"
)

// DefaultTimeout is the wall-clock ceiling for one encode.
const DefaultTimeout = 900 * time.Second

var (
	videoEncode = []string{
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-profile:v", "high",
		"-level", "4.0",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
	}
	audioEncode = []string{
		"-c:a", "aac",
		"-b:a", "192k",
		"-ar", "44100",
	}
)

// InputBinding is one -i input and the flags that precede it.
type InputBinding struct {
	Path  string     `json:"path"`
	Flags []string   `json:"flags,omitempty"`
	Kind  graph.Kind `json:"kind"`
}

// Program is a compiled, validated ffmpeg invocation.
type Program struct {
	Inputs   []InputBinding `json:"inputs"`
	Filter   string         `json:"filter_complex"`
	Maps     []string       `json:"maps"`
	Encode   []string       `json:"encode"`
	Duration int            `json:"duration"`
	Output   string         `json:"output"`
	Timeout  time.Duration  `json:"-"`
}

// HasAudio reports whether an audio stream is mapped.
func (p *Program) HasAudio() bool { return len(p.Maps) > 1 }

// Args renders the argument vector, without the binary name.
func (p *Program) Args() []string {
	args := []string{"-y"}
	for _, in := range p.Inputs {
		args = append(args, in.Flags...)
		args = append(args, "-i", in.Path)
	}
	args = append(args, "-filter_complex", p.Filter)
	for _, m := range p.Maps {
		args = append(args, "-map", m)
	}
	args = append(args, p.Encode...)
	return append(args, p.Output)
}

// Input is everything Compile needs.
type Input struct {
	Graph            *graph.Graph
	Assets           models.ResolvedAssets
	DurationPerImage int
	Timeout          time.Duration
}

// Compile validates the graph against the bound inputs and flattens it. It is
// a pure function of in.
func Compile(in Input) (*Program, error) {
	if in.Graph == nil {
		return nil, errors.Compilef("no graph to compile")
	}

	bindings := bindInputs(in.Assets, in.DurationPerImage)

	ordered, err := validate(in.Graph, bindings)
	if err != nil {
		return nil, err
	}

	exprs := make([]string, len(ordered))
	for i, n := range ordered {
		exprs[i] = n.Expr()
	}

	duration := len(in.Assets.Images) * in.DurationPerImage

	p := &Program{
		Inputs:   bindings,
		Filter:   strings.Join(exprs, ";"),
		Maps:     []string{"[" + in.Graph.Video.Label + "]"},
		Duration: duration,
		Output:   in.Assets.Output,
		Timeout:  in.Timeout,
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}

	p.Encode = append(p.Encode, videoEncode...)
	p.Encode = append(p.Encode, "-t", strconv.Itoa(duration))

	if audio, ok := in.Graph.Audio.Stream(); ok {
		p.Maps = append(p.Maps, "["+audio.Label+"]")
		p.Encode = append(p.Encode, audioEncode...)
	}

	return p, nil
}

// bindInputs orders inputs as images, voice, music.
func bindInputs(a models.ResolvedAssets, d int) []InputBinding {
	out := make([]InputBinding, 0, len(a.Images)+2)
	loop := strconv.Itoa(d)
	for _, img := range a.Images {
		out = append(out, InputBinding{Path: img, Flags: []string{"-loop", "1", "-t", loop}, Kind: graph.Visual})
	}
	if a.Voice != "" {
		out = append(out, InputBinding{Path: a.Voice, Kind: graph.Audio})
	}
	if a.Music != "" {
		out = append(out, InputBinding{Path: a.Music, Kind: graph.Audio})
	}
	return out
}
