// Package audioclean enhances speech audio. The builtin mode runs a local
// ffmpeg filter chain assembled from presets; the auphonic mode hands the
// file to the Auphonic API for professional processing.
package audioclean

import (
	"fmt"
	"strings"

	"video-studio/internal/media"
)

// Preset tunes the builtin filter chain.
type Preset struct {
	HighpassHz   int
	LowpassHz    int
	NoiseReduce  int // afftdn strength, 1-10
	GateDB       int
	Compress     bool
	LoudnessLUFS int
}

// Presets maps the preset names shared with config to their parameters.
var Presets = map[string]Preset{
	"light": {
		HighpassHz:   80,
		LowpassHz:    12000,
		NoiseReduce:  3,
		GateDB:       -40,
		Compress:     true,
		LoudnessLUFS: -16,
	},
	"medium": {
		HighpassHz:   100,
		LowpassHz:    10000,
		NoiseReduce:  5,
		GateDB:       -35,
		Compress:     true,
		LoudnessLUFS: -16,
	},
	"aggressive": {
		HighpassHz:   120,
		LowpassHz:    8000,
		NoiseReduce:  8,
		GateDB:       -30,
		Compress:     true,
		LoudnessLUFS: -14,
	},
}

type BuiltinOptions struct {
	Input    string
	Output   string
	Preset   string // light, medium, aggressive
	Progress func(line string)
}

// CleanBuiltin removes rumble, hiss and noise and normalizes loudness with
// a single ffmpeg pass.
func CleanBuiltin(opts BuiltinOptions) error {
	preset, ok := Presets[strings.ToLower(strings.TrimSpace(opts.Preset))]
	if !ok {
		return fmt.Errorf("unknown audio preset %q (expected light, medium, or aggressive)", opts.Preset)
	}
	return media.ApplyAudioFilter(media.AudioFilterOptions{
		Input:    opts.Input,
		Output:   opts.Output,
		Filter:   FilterChain(preset),
		Progress: opts.Progress,
	})
}

// FilterChain renders a preset into an ffmpeg -af expression.
func FilterChain(p Preset) string {
	parts := []string{
		fmt.Sprintf("highpass=f=%d", p.HighpassHz),
		fmt.Sprintf("lowpass=f=%d", p.LowpassHz),
		fmt.Sprintf("afftdn=nr=%d", p.NoiseReduce),
		fmt.Sprintf("agate=threshold=%ddB", p.GateDB),
	}
	if p.Compress {
		parts = append(parts, "acompressor=ratio=3")
	}
	parts = append(parts, fmt.Sprintf("loudnorm=I=%d", p.LoudnessLUFS))
	return strings.Join(parts, ",")
}
