// Package media wraps the ffmpeg/ffprobe command line tools for the
// editing steps: probing, trimming, merging and audio plumbing. The core
// never calls this package directly; the pipeline runner does and persists
// whatever output path comes back.
package media

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

type DependencyReport struct {
	FFmpegFound  bool   `json:"ffmpeg_found"`
	FFmpegPath   string `json:"ffmpeg_path,omitempty"`
	FFprobeFound bool   `json:"ffprobe_found"`
	FFprobePath  string `json:"ffprobe_path,omitempty"`
}

func DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	if path, err := exec.LookPath("ffprobe"); err == nil {
		report.FFprobeFound = true
		report.FFprobePath = path
	}
	return report
}

func CheckDependencies() error {
	report := DependencyStatus()
	if !report.FFmpegFound {
		return fmt.Errorf("missing dependency: ffmpeg is not installed or not on PATH")
	}
	if !report.FFprobeFound {
		return fmt.Errorf("missing dependency: ffprobe is not installed or not on PATH")
	}
	return nil
}

// VideoInfo describes one media file as reported by ffprobe.
type VideoInfo struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Codec    string  `json:"codec"`
	FPS      float64 `json:"fps"`
	HasAudio bool    `json:"has_audio"`
}

type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		Duration   string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe inspects a media file with ffprobe.
func Probe(path string) (VideoInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return VideoInfo{}, fmt.Errorf("probe input %s: %w", path, err)
	}

	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "stream=codec_type,codec_name,width,height,r_frame_rate,duration",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return VideoInfo{}, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}

	info := VideoInfo{}
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	for _, stream := range out.Streams {
		switch stream.CodecType {
		case "video":
			info.Width = stream.Width
			info.Height = stream.Height
			info.Codec = stream.CodecName
			info.FPS = parseFrameRate(stream.RFrameRate)
			if info.Duration == 0 {
				info.Duration, _ = strconv.ParseFloat(stream.Duration, 64)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	return info, nil
}

type TrimOptions struct {
	Input    string
	Output   string
	Start    float64 // seconds
	End      float64 // seconds; 0 means end of file
	Progress func(line string)
}

// Trim cuts [Start, End) out of the input without re-encoding.
func Trim(opts TrimOptions) error {
	if err := requireInput(opts.Input); err != nil {
		return err
	}
	if opts.End > 0 && opts.End <= opts.Start {
		return fmt.Errorf("trim range is empty: start %.3f end %.3f", opts.Start, opts.End)
	}

	args := []string{"-y", "-i", opts.Input, "-ss", formatSeconds(opts.Start)}
	if opts.End > 0 {
		args = append(args, "-to", formatSeconds(opts.End))
	}
	args = append(args, "-c", "copy", opts.Output)
	return runFFmpeg(args, opts.Progress)
}

type MergeOptions struct {
	Inputs   []string // in playback order, e.g. intro, main, outro
	Output   string
	Progress func(line string)
}

// Merge concatenates the inputs with the concat demuxer. Inputs must share
// codec parameters; the editing UI enforces that by normalizing clips
// before merge.
func Merge(opts MergeOptions) error {
	if len(opts.Inputs) < 2 {
		return fmt.Errorf("merge requires at least two inputs")
	}
	for _, input := range opts.Inputs {
		if err := requireInput(input); err != nil {
			return err
		}
	}

	list, err := writeConcatList(opts.Inputs, filepath.Dir(opts.Output))
	if err != nil {
		return err
	}
	defer os.Remove(list)

	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", list, "-c", "copy", opts.Output}
	return runFFmpeg(args, opts.Progress)
}

type ExtractAudioOptions struct {
	Input    string
	Output   string // extension picks the codec: .wav is pcm, else stream copy
	Progress func(line string)
}

// ExtractAudio pulls the audio track into its own file.
func ExtractAudio(opts ExtractAudioOptions) error {
	if err := requireInput(opts.Input); err != nil {
		return err
	}
	args := []string{"-y", "-i", opts.Input, "-vn"}
	if strings.EqualFold(filepath.Ext(opts.Output), ".wav") {
		args = append(args, "-acodec", "pcm_s16le")
	} else {
		args = append(args, "-acodec", "copy")
	}
	args = append(args, opts.Output)
	return runFFmpeg(args, opts.Progress)
}

type RemoveAudioOptions struct {
	Input    string
	Output   string
	Progress func(line string)
}

// RemoveAudio strips the audio track, keeping the video stream untouched.
func RemoveAudio(opts RemoveAudioOptions) error {
	if err := requireInput(opts.Input); err != nil {
		return err
	}
	return runFFmpeg([]string{"-y", "-i", opts.Input, "-an", "-c:v", "copy", opts.Output}, opts.Progress)
}

type ReplaceAudioOptions struct {
	Video    string
	Audio    string
	Output   string
	Progress func(line string)
}

// ReplaceAudio muxes a new audio track onto the video stream.
func ReplaceAudio(opts ReplaceAudioOptions) error {
	if err := requireInput(opts.Video); err != nil {
		return err
	}
	if err := requireInput(opts.Audio); err != nil {
		return err
	}
	args := []string{
		"-y", "-i", opts.Video, "-i", opts.Audio,
		"-map", "0:v", "-map", "1:a",
		"-c:v", "copy", "-shortest",
		opts.Output,
	}
	return runFFmpeg(args, opts.Progress)
}

type AudioFilterOptions struct {
	Input    string
	Output   string
	Filter   string // ffmpeg -af filter chain
	Progress func(line string)
}

// ApplyAudioFilter runs an arbitrary -af chain; the audio cleanup presets
// build on this.
func ApplyAudioFilter(opts AudioFilterOptions) error {
	if err := requireInput(opts.Input); err != nil {
		return err
	}
	if strings.TrimSpace(opts.Filter) == "" {
		return fmt.Errorf("audio filter chain is required")
	}
	return runFFmpeg([]string{"-y", "-i", opts.Input, "-af", opts.Filter, opts.Output}, opts.Progress)
}

type ExtractFrameOptions struct {
	Input    string
	Output   string  // .jpg or .png
	AtSecond float64 // timestamp to grab
	Progress func(line string)
}

// ExtractFrame grabs a single frame, used as thumbnail raw material.
func ExtractFrame(opts ExtractFrameOptions) error {
	if err := requireInput(opts.Input); err != nil {
		return err
	}
	args := []string{
		"-y", "-ss", formatSeconds(opts.AtSecond),
		"-i", opts.Input,
		"-frames:v", "1", "-q:v", "2",
		opts.Output,
	}
	return runFFmpeg(args, opts.Progress)
}

func requireInput(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("input path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("input %s: %w", path, err)
	}
	return nil
}

func writeConcatList(inputs []string, dir string) (string, error) {
	f, err := os.CreateTemp(dir, ".concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create concat list: %w", err)
	}
	for _, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("resolve %s: %w", input, err)
		}
		// Single quotes in the path must be escaped for the concat demuxer.
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		if _, err := fmt.Fprintf(f, "file '%s'\n", escaped); err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("write concat list: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close concat list: %w", err)
	}
	return f.Name(), nil
}

func runFFmpeg(args []string, progress func(line string)) error {
	cmd := exec.Command("ffmpeg", args...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("setup stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	var errBuf strings.Builder
	readProgress(stderrPipe, &errBuf, progress)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w\n%s", err, strings.TrimSpace(tail(errBuf.String(), 4096)))
	}
	return nil
}

// readProgress consumes ffmpeg's stderr line by line. ffmpeg reports
// progress with carriage returns, so split on CR as well as LF.
func readProgress(r io.Reader, buf *strings.Builder, progress func(line string)) {
	scanner := bufio.NewScanner(r)
	b := make([]byte, 0, 64*1024)
	scanner.Buffer(b, 1024*1024)
	scanner.Split(splitByNewlineOrCR)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if progress != nil {
			progress(line)
		}
	}
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func parseFrameRate(raw string) float64 {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(raw, 64)
		return v
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
