package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// installFakeTools puts fake ffmpeg/ffprobe scripts on PATH. The ffmpeg
// fake records its argv and copies the first input to the last argument so
// output files exist for the callers to inspect.
func installFakeTools(t *testing.T) (argvFile string) {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	argvFile = filepath.Join(bin, "argv.txt")

	ffmpeg := `#!/usr/bin/env bash
set -euo pipefail
printf '%s\n' "$@" > "$FAKE_ARGV_FILE"
in=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-i" ] && [ -z "$in" ]; then in="$a"; fi
  prev="$a"
done
out="${!#}"
if [ -n "$in" ] && [ -f "$in" ]; then cp "$in" "$out"; else : > "$out"; fi
`
	ffprobe := `#!/usr/bin/env bash
set -euo pipefail
cat "$FAKE_PROBE_FIXTURE"
`
	if err := os.WriteFile(filepath.Join(bin, "ffmpeg"), []byte(ffmpeg), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bin, "ffprobe"), []byte(ffprobe), 0o755); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PATH", bin+":"+os.Getenv("PATH"))
	t.Setenv("FAKE_ARGV_FILE", argvFile)
	return argvFile
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func recordedArgs(t *testing.T, argvFile string) string {
	t.Helper()
	data, err := os.ReadFile(argvFile)
	if err != nil {
		t.Fatalf("fake ffmpeg was not invoked: %v", err)
	}
	return strings.ReplaceAll(string(data), "\n", " ")
}

func TestProbeParsesFFprobeJSON(t *testing.T) {
	installFakeTools(t)
	fixture := filepath.Join(t.TempDir(), "probe.json")
	body := `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001"},
    {"codec_type": "audio", "codec_name": "aac"}
  ],
  "format": {"duration": "123.456"}
}`
	if err := os.WriteFile(fixture, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FAKE_PROBE_FIXTURE", fixture)

	input := writeInput(t, "in.mp4", "vvv")
	info, err := Probe(input)
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if info.Width != 1920 || info.Height != 1080 || info.Codec != "h264" {
		t.Fatalf("video stream mismatch: %+v", info)
	}
	if !info.HasAudio {
		t.Fatalf("audio stream not detected")
	}
	if info.Duration != 123.456 {
		t.Fatalf("duration mismatch: %v", info.Duration)
	}
	if info.FPS < 29.9 || info.FPS > 30 {
		t.Fatalf("fps mismatch: %v", info.FPS)
	}
}

func TestTrimArgumentsAndOutput(t *testing.T) {
	argv := installFakeTools(t)
	input := writeInput(t, "in.mp4", "source-bytes")
	output := filepath.Join(t.TempDir(), "out.mp4")

	err := Trim(TrimOptions{Input: input, Output: output, Start: 1.5, End: 10})
	if err != nil {
		t.Fatalf("trim failed: %v", err)
	}
	args := recordedArgs(t, argv)
	for _, want := range []string{"-ss 1.500", "-to 10.000", "-c copy"} {
		if !strings.Contains(args, want) {
			t.Fatalf("missing %q in ffmpeg args: %s", want, args)
		}
	}
	data, err := os.ReadFile(output)
	if err != nil || string(data) != "source-bytes" {
		t.Fatalf("output not produced: %v %q", err, data)
	}
}

func TestTrimRejectsEmptyRange(t *testing.T) {
	installFakeTools(t)
	input := writeInput(t, "in.mp4", "x")
	err := Trim(TrimOptions{Input: input, Output: "out.mp4", Start: 5, End: 5})
	if err == nil {
		t.Fatalf("expected error for empty trim range")
	}
}

func TestMergeWritesConcatList(t *testing.T) {
	argv := installFakeTools(t)
	a := writeInput(t, "a.mp4", "aaa")
	b := writeInput(t, "b.mp4", "bbb")
	output := filepath.Join(t.TempDir(), "merged.mp4")

	if err := Merge(MergeOptions{Inputs: []string{a, b}, Output: output}); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	args := recordedArgs(t, argv)
	for _, want := range []string{"-f concat", "-safe 0", "-c copy"} {
		if !strings.Contains(args, want) {
			t.Fatalf("missing %q in ffmpeg args: %s", want, args)
		}
	}
	if err := Merge(MergeOptions{Inputs: []string{a}, Output: output}); err == nil {
		t.Fatalf("merge with one input should fail")
	}
}

func TestExtractAudioPicksCodecFromExtension(t *testing.T) {
	argv := installFakeTools(t)
	input := writeInput(t, "in.mp4", "vvv")

	wav := filepath.Join(t.TempDir(), "out.wav")
	if err := ExtractAudio(ExtractAudioOptions{Input: input, Output: wav}); err != nil {
		t.Fatal(err)
	}
	if args := recordedArgs(t, argv); !strings.Contains(args, "pcm_s16le") {
		t.Fatalf("wav output should use pcm codec: %s", args)
	}

	m4a := filepath.Join(t.TempDir(), "out.m4a")
	if err := ExtractAudio(ExtractAudioOptions{Input: input, Output: m4a}); err != nil {
		t.Fatal(err)
	}
	if args := recordedArgs(t, argv); !strings.Contains(args, "-acodec copy") {
		t.Fatalf("non-wav output should stream copy: %s", args)
	}
}

func TestReplaceAudioMapsStreams(t *testing.T) {
	argv := installFakeTools(t)
	video := writeInput(t, "v.mp4", "vvv")
	audio := writeInput(t, "a.wav", "aaa")
	output := filepath.Join(t.TempDir(), "out.mp4")

	if err := ReplaceAudio(ReplaceAudioOptions{Video: video, Audio: audio, Output: output}); err != nil {
		t.Fatalf("replace audio failed: %v", err)
	}
	args := recordedArgs(t, argv)
	for _, want := range []string{"-map 0:v", "-map 1:a", "-shortest"} {
		if !strings.Contains(args, want) {
			t.Fatalf("missing %q in ffmpeg args: %s", want, args)
		}
	}
}

func TestApplyAudioFilterRequiresChain(t *testing.T) {
	installFakeTools(t)
	input := writeInput(t, "in.wav", "aaa")
	if err := ApplyAudioFilter(AudioFilterOptions{Input: input, Output: "o.wav", Filter: " "}); err == nil {
		t.Fatalf("expected error for empty filter chain")
	}
}

func TestMissingInputFails(t *testing.T) {
	installFakeTools(t)
	if err := Trim(TrimOptions{Input: "absent.mp4", Output: "o.mp4"}); err == nil {
		t.Fatalf("expected error for missing input")
	}
}
