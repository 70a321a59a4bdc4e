// Package graph builds the ffmpeg filter graph for a slideshow as a typed node
// list. Nodes are plain data; the compiler validates and flattens them.
package graph

import (
	"fmt"
	"strconv"
	"strings"

	"slidecast/internal/models"
	"slidecast/internal/pkg/errors"
)

// Kind is the media type carried by a stream.
type Kind int

const (
	Visual Kind = iota
	Audio
)

func (k Kind) String() string {
	if k == Audio {
		return "audio"
	}
	return "visual"
}

// Stage identifies the filter a node applies.
type Stage string

const (
	StageClip   Stage = "clip"   // per-image scale, pad and fades
	StageConcat Stage = "concat" // fan-in of every clip
	StageBurnIn Stage = "burnin" // subtitle overlay
	StageGain   Stage = "gain"   // audio volume
	StageMix    Stage = "mix"    // fan-in of voice and music
)

// OutputKind is the stream kind a stage produces.
func (s Stage) OutputKind() Kind {
	switch s {
	case StageGain, StageMix:
		return Audio
	default:
		return Visual
	}
}

// Ref names a stream a node consumes: either a bound input's pad ([2:v]) or
// another node's output label ([v2]).
type Ref struct {
	Label string
	Input int
	Kind  Kind
}

// InputRef refers to the stream of bound input i.
func InputRef(i int, k Kind) Ref { return Ref{Input: i, Kind: k} }

// LabelRef refers to the output of another node.
func LabelRef(label string, k Kind) Ref { return Ref{Label: label, Input: -1, Kind: k} }

func (r Ref) IsInput() bool { return r.Label == "" }

func (r Ref) String() string {
	if r.IsInput() {
		spec := "v"
		if r.Kind == Audio {
			spec = "a"
		}
		return "[" + strconv.Itoa(r.Input) + ":" + spec + "]"
	}
	return "[" + r.Label + "]"
}

// Stream is a labelled node output.
type Stream struct {
	Label string
	Kind  Kind
}

func (s Stream) Ref() Ref { return LabelRef(s.Label, s.Kind) }

// Node is one filter stage.
type Node struct {
	Stage  Stage
	Inputs []Ref
	Filter string
	Output Stream
}

// Expr renders the node in filter_complex syntax.
func (n Node) Expr() string {
	var b strings.Builder
	for _, in := range n.Inputs {
		b.WriteString(in.String())
	}
	b.WriteString(n.Filter)
	b.WriteString("[" + n.Output.Label + "]")
	return b.String()
}

// AudioOutput is either None or a labelled audio stream.
type AudioOutput struct {
	stream  Stream
	present bool
}

func NoAudio() AudioOutput { return AudioOutput{} }

func AudioFrom(s Stream) AudioOutput { return AudioOutput{stream: s, present: true} }

func (a AudioOutput) IsNone() bool { return !a.present }

// Stream returns the labelled audio stream, if any.
func (a AudioOutput) Stream() (Stream, bool) { return a.stream, a.present }

// Graph is the complete stream graph of a job, in builder order.
type Graph struct {
	Nodes []Node
	Video Stream
	Audio AudioOutput
}

// Params are the resolved asset counts the graph is built from.
type Params struct {
	ImageCount       int
	DurationPerImage int
	SubtitlePath     string
	HasVoice         bool
	HasMusic         bool
}

const (
	fadeDuration = 0.5
	voiceGain    = "1.0"
	musicGain    = "0.25"

	subtitleStyle = "FontName=DejaVu Sans,FontSize=32,PrimaryColour=&HFFFFFF,OutlineColour=&H000000,Outline=2,Bold=1,MarginV=40"
)

// Build produces the graph for p. Input indices are positional: images
// 0..N-1, then voice, then music.
func Build(p Params) (*Graph, error) {
	if p.ImageCount < 1 {
		return nil, errors.ValidationField("images", "at least one image is required")
	}

	g := &Graph{}
	clips := make([]Ref, 0, p.ImageCount)

	fadeOut := strconv.FormatFloat(float64(p.DurationPerImage)-fadeDuration, 'f', -1, 64)
	for i := 0; i < p.ImageCount; i++ {
		out := Stream{Label: fmt.Sprintf("v%d", i), Kind: Visual}
		g.Nodes = append(g.Nodes, Node{
			Stage:  StageClip,
			Inputs: []Ref{InputRef(i, Visual)},
			Filter: fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fade=t=in:st=0:d=0.5,fade=t=out:st=%s:d=0.5",
				models.TargetWidth, models.TargetHeight, models.TargetWidth, models.TargetHeight, fadeOut),
			Output: out,
		})
		clips = append(clips, out.Ref())
	}

	base := Stream{Label: "video_base", Kind: Visual}
	g.Nodes = append(g.Nodes, Node{
		Stage:  StageConcat,
		Inputs: clips,
		Filter: fmt.Sprintf("concat=n=%d:v=1:a=0", p.ImageCount),
		Output: base,
	})
	g.Video = base

	if p.SubtitlePath != "" {
		video := Stream{Label: "video", Kind: Visual}
		g.Nodes = append(g.Nodes, Node{
			Stage:  StageBurnIn,
			Inputs: []Ref{base.Ref()},
			Filter: "subtitles=" + EscapeFilterPath(p.SubtitlePath) + ":force_style='" + subtitleStyle + "'",
			Output: video,
		})
		g.Video = video
	}

	audioIdx := p.ImageCount
	switch {
	case p.HasVoice && p.HasMusic:
		voice := Stream{Label: "voice", Kind: Audio}
		music := Stream{Label: "music", Kind: Audio}
		mixed := Stream{Label: "audio", Kind: Audio}
		g.Nodes = append(g.Nodes,
			gain(audioIdx, voiceGain, voice),
			gain(audioIdx+1, musicGain, music),
			Node{
				Stage:  StageMix,
				Inputs: []Ref{voice.Ref(), music.Ref()},
				Filter: "amix=inputs=2:duration=first",
				Output: mixed,
			},
		)
		g.Audio = AudioFrom(mixed)
	case p.HasVoice:
		out := Stream{Label: "audio", Kind: Audio}
		g.Nodes = append(g.Nodes, gain(audioIdx, voiceGain, out))
		g.Audio = AudioFrom(out)
	case p.HasMusic:
		out := Stream{Label: "audio", Kind: Audio}
		g.Nodes = append(g.Nodes, gain(audioIdx, musicGain, out))
		g.Audio = AudioFrom(out)
	default:
		g.Audio = NoAudio()
	}

	return g, nil
}

func gain(input int, level string, out Stream) Node {
	return Node{
		Stage:  StageGain,
		Inputs: []Ref{InputRef(input, Audio)},
		Filter: "volume=" + level,
		Output: out,
	}
}

// EscapeFilterPath quotes a path for use as a filter option value inside a
// filter_complex program: first for the option parser, then for the graph
// parser.
func EscapeFilterPath(p string) string {
	opt := escapeChars(p, `\:'`)
	return escapeChars(opt, `\'[],;`)
}

func escapeChars(s, special string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
