// Package pipeline drives the processing steps of a project. It is the only
// place that touches both the artifact store and the workflow state: it runs
// a step's processor, files the outputs, and records completion or error.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"video-studio/internal/artifacts"
	"video-studio/internal/audioclean"
	"video-studio/internal/config"
	"video-studio/internal/media"
	"video-studio/internal/project"
	"video-studio/internal/thumbnail"
	"video-studio/internal/titles"
	"video-studio/internal/transcribe"
	"video-studio/internal/upload"
	"video-studio/internal/workflow"
)

// Transcriber covers the transcription calls a run needs.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
	FixTranscription(ctx context.Context, raw string) (string, error)
	GenerateTimecodes(ctx context.Context, transcript string) (string, error)
	ExtractKeyMoments(ctx context.Context, transcript string) (string, error)
}

// TitleGenerator produces title candidates from a transcript.
type TitleGenerator interface {
	Generate(ctx context.Context, opts titles.GenerateOptions) ([]string, error)
}

// ThumbnailGenerator renders thumbnail variations into a directory.
type ThumbnailGenerator interface {
	Generate(ctx context.Context, opts thumbnail.GenerateOptions) ([]string, error)
}

// AudioCleaner runs the external Auphonic cleanup.
type AudioCleaner interface {
	Clean(ctx context.Context, inputPath, outputPath, preset string) error
}

// Uploader publishes the final video.
type Uploader interface {
	Upload(ctx context.Context, videoPath string, meta upload.Metadata, progress upload.ProgressFunc) (*upload.Result, error)
	SetThumbnail(ctx context.Context, videoID, thumbnailPath string) error
}

// Deps collects the external collaborators of a run. Nil fields are filled
// with the real implementations on first use; tests substitute fakes.
type Deps struct {
	Transcriber Transcriber
	Titles      TitleGenerator
	Thumbnails  ThumbnailGenerator
	Uploader    Uploader
	Auphonic    AudioCleaner

	// ffmpeg operations, replaceable so runner tests need no binary.
	Probe        func(path string) (media.VideoInfo, error)
	Trim         func(opts media.TrimOptions) error
	Merge        func(opts media.MergeOptions) error
	ExtractAudio func(opts media.ExtractAudioOptions) error
	ReplaceAudio func(opts media.ReplaceAudioOptions) error
	CleanBuiltin func(opts audioclean.BuiltinOptions) error
}

func (d *Deps) fillDefaults() {
	if d.Probe == nil {
		d.Probe = media.Probe
	}
	if d.Trim == nil {
		d.Trim = media.Trim
	}
	if d.Merge == nil {
		d.Merge = media.Merge
	}
	if d.ExtractAudio == nil {
		d.ExtractAudio = media.ExtractAudio
	}
	if d.ReplaceAudio == nil {
		d.ReplaceAudio = media.ReplaceAudio
	}
	if d.CleanBuiltin == nil {
		d.CleanBuiltin = audioclean.CleanBuiltin
	}
}

// Runner executes steps for one project.
type Runner struct {
	proj     *project.Project
	settings config.Settings
	deps     Deps
	registry map[string]stepFunc
	progress func(message string)
}

type stepFunc func(ctx context.Context, run *runState) error

// runState is the per-invocation context handed to step funcs.
type runState struct {
	RunID  string
	Params map[string]string
}

type Options struct {
	Project  *project.Project
	Settings config.Settings
	Deps     Deps
	Progress func(message string) // optional
}

func NewRunner(opts Options) (*Runner, error) {
	if opts.Project == nil {
		return nil, fmt.Errorf("pipeline runner requires a project")
	}
	opts.Deps.fillDefaults()
	r := &Runner{
		proj:     opts.Project,
		settings: opts.Settings,
		deps:     opts.Deps,
		progress: opts.Progress,
	}
	r.registry = map[string]stepFunc{
		workflow.StepImportVideo:     r.runImport,
		workflow.StepEditTrim:        r.runEditTrim,
		workflow.StepTranscribe:      r.runTranscribe,
		workflow.StepCleanAudio:      r.runCleanAudio,
		workflow.StepGenerateTitles:  r.runGenerateTitles,
		workflow.StepCreateThumbnail: r.runCreateThumbnail,
		workflow.StepPreview:         r.runPreview,
		workflow.StepUploadYouTube:   r.runUpload,
	}
	return r, nil
}

// StepResult reports one step execution. A processor failure lands in Err
// and in the workflow state; it is not returned as a Go error because the
// machine's job is to remember it, not to abort the caller.
type StepResult struct {
	Step  string `json:"step"`
	RunID string `json:"run_id"`
	Err   string `json:"error,omitempty"`
}

func (sr StepResult) OK() bool { return sr.Err == "" }

// RunStep executes one named step under the project lock. Unknown steps and
// state-persistence failures return an error; processor failures are
// recorded via the workflow state and reported in the result.
func (r *Runner) RunStep(ctx context.Context, step string, params map[string]string) (StepResult, error) {
	if _, ok := r.registry[step]; !ok {
		return StepResult{}, fmt.Errorf("%w: %s", workflow.ErrUnknownStep, step)
	}
	lock, err := project.AcquireLock(r.proj.Dir())
	if err != nil {
		return StepResult{}, err
	}
	defer lock.Release()
	return r.runLocked(ctx, step, params)
}

func (r *Runner) runLocked(ctx context.Context, step string, params map[string]string) (StepResult, error) {
	run := &runState{RunID: uuid.NewString(), Params: params}
	res := StepResult{Step: step, RunID: run.RunID}

	r.report("%s: starting", workflow.StepLabels[step])
	if err := r.registry[step](ctx, run); err != nil {
		res.Err = err.Error()
		if stateErr := r.proj.Workflow.MarkError(step, err.Error()); stateErr != nil {
			return res, stateErr
		}
		r.report("%s: failed: %v", workflow.StepLabels[step], err)
		return res, nil
	}
	if err := r.proj.Workflow.MarkCompleted(step); err != nil {
		return res, err
	}
	r.report("%s: completed", workflow.StepLabels[step])
	return res, nil
}

// RunNext runs the next eligible step. It returns a zero StepResult when
// the workflow is already done.
func (r *Runner) RunNext(ctx context.Context, params map[string]string) (StepResult, error) {
	step := r.proj.Workflow.NextStep()
	if step == "" {
		return StepResult{}, nil
	}
	return r.RunStep(ctx, step, params)
}

// RunAll runs eligible steps in order until the workflow is done or a step
// fails. The failed step's result is last in the returned slice.
func (r *Runner) RunAll(ctx context.Context, params map[string]string) ([]StepResult, error) {
	lock, err := project.AcquireLock(r.proj.Dir())
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	var results []StepResult
	for {
		step := r.proj.Workflow.NextStep()
		if step == "" {
			return results, nil
		}
		res, err := r.runLocked(ctx, step, params)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if !res.OK() {
			return results, nil
		}
	}
}

func (r *Runner) report(format string, args ...any) {
	if r.progress != nil {
		r.progress(fmt.Sprintf(format, args...))
	}
}

// provenance builds the metadata stamped onto artifacts produced by a run.
func (run *runState) provenance(method string, extra map[string]any) map[string]any {
	meta := map[string]any{"method": method, "run_id": run.RunID}
	for k, v := range extra {
		meta[k] = v
	}
	return meta
}

func (run *runState) param(key string) string {
	if run.Params == nil {
		return ""
	}
	return run.Params[key]
}

// ---- step runners ----

func (r *Runner) runImport(ctx context.Context, run *runState) error {
	source := run.param("source")
	if source == "" {
		return fmt.Errorf("import requires a source video (param %q)", "source")
	}
	info, err := r.deps.Probe(source)
	if err != nil {
		return fmt.Errorf("probe source: %w", err)
	}
	meta := run.provenance("import", map[string]any{
		"duration": info.Duration,
		"width":    info.Width,
		"height":   info.Height,
		"codec":    info.Codec,
	})
	if _, err := r.proj.Store.Save(artifacts.KeyOriginalVideo, source, meta); err != nil {
		return err
	}
	for key, param := range map[string]string{
		artifacts.KeyIntroVideo: "intro",
		artifacts.KeyOutroVideo: "outro",
	} {
		if path := run.param(param); path != "" {
			if _, err := r.proj.Store.Save(key, path, run.provenance("import", nil)); err != nil {
				return err
			}
		}
	}
	return nil
}

// runEditTrim produces merged_video: the original optionally trimmed and
// wrapped in intro/outro clips. With no trim range and no clips the original
// passes through unchanged.
func (r *Runner) runEditTrim(ctx context.Context, run *runState) error {
	source, err := r.proj.Store.Get(artifacts.KeyOriginalVideo)
	if err != nil {
		return fmt.Errorf("edit needs an imported video first: %w", err)
	}
	workDir, err := os.MkdirTemp("", "vstudio-edit-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	ext := filepath.Ext(source)
	current := source
	extra := map[string]any{}

	start, end, hasRange, err := trimRange(run)
	if err != nil {
		return err
	}
	if hasRange {
		trimmed := filepath.Join(workDir, "trimmed"+ext)
		if err := r.deps.Trim(media.TrimOptions{Input: current, Output: trimmed, Start: start, End: end}); err != nil {
			return fmt.Errorf("trim: %w", err)
		}
		current = trimmed
		extra["trim_start"] = start
		extra["trim_end"] = end
	}

	var clips []string
	if intro, err := r.proj.Store.Get(artifacts.KeyIntroVideo); err == nil {
		clips = append(clips, intro)
	}
	clips = append(clips, current)
	if outro, err := r.proj.Store.Get(artifacts.KeyOutroVideo); err == nil {
		clips = append(clips, outro)
	}
	if len(clips) > 1 {
		merged := filepath.Join(workDir, "merged"+ext)
		if err := r.deps.Merge(media.MergeOptions{Inputs: clips, Output: merged}); err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		current = merged
		extra["clips"] = len(clips)
	}

	_, err = r.proj.Store.Save(artifacts.KeyMergedVideo, current, run.provenance("edit_trim", extra))
	return err
}

func (r *Runner) runTranscribe(ctx context.Context, run *runState) error {
	tr, err := r.transcriber()
	if err != nil {
		return err
	}
	audio, err := r.ensureAudio(run)
	if err != nil {
		return err
	}
	raw, err := tr.Transcribe(ctx, audio, run.param("language"))
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	if _, err := r.proj.Store.SaveBytes(artifacts.KeyRawTranscription, []byte(raw), ".txt", run.provenance("gemini", nil)); err != nil {
		return err
	}
	fixed, err := tr.FixTranscription(ctx, raw)
	if err != nil {
		return fmt.Errorf("fix transcription: %w", err)
	}
	if _, err := r.proj.Store.SaveBytes(artifacts.KeyFixedTranscription, []byte(fixed), ".txt", run.provenance("gemini", nil)); err != nil {
		return err
	}
	timecodes, err := tr.GenerateTimecodes(ctx, fixed)
	if err != nil {
		return fmt.Errorf("generate timecodes: %w", err)
	}
	if _, err := r.proj.Store.SaveBytes(artifacts.KeyTimecodes, []byte(timecodes), ".txt", run.provenance("gemini", nil)); err != nil {
		return err
	}
	moments, err := tr.ExtractKeyMoments(ctx, fixed)
	if err != nil {
		return fmt.Errorf("extract key moments: %w", err)
	}
	_, err = r.proj.Store.SaveBytes(artifacts.KeyKeyMoments, []byte(moments), ".txt", run.provenance("gemini", nil))
	return err
}

func (r *Runner) runCleanAudio(ctx context.Context, run *runState) error {
	audio, err := r.ensureAudio(run)
	if err != nil {
		return err
	}
	preset := run.param("preset")
	if preset == "" {
		preset = r.settings.AudioPreset
	}
	method := run.param("method")
	if method == "" {
		method = "builtin"
	}

	workDir, err := os.MkdirTemp("", "vstudio-audio-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)
	cleaned := filepath.Join(workDir, "cleaned.wav")

	var key string
	switch method {
	case "builtin":
		if err := r.deps.CleanBuiltin(audioclean.BuiltinOptions{Input: audio, Output: cleaned, Preset: preset}); err != nil {
			return fmt.Errorf("builtin cleanup: %w", err)
		}
		key = artifacts.KeyCleanedAudio
	case "auphonic":
		ap, err := r.auphonicCleaner()
		if err != nil {
			return err
		}
		if err := ap.Clean(ctx, audio, cleaned, preset); err != nil {
			return fmt.Errorf("auphonic cleanup: %w", err)
		}
		key = artifacts.KeyAuphonicAudio
	default:
		return fmt.Errorf("unknown cleanup method %q (builtin or auphonic)", method)
	}

	prov := run.provenance(method, map[string]any{"preset": preset})
	if _, err := r.proj.Store.Save(key, cleaned, prov); err != nil {
		return err
	}
	_, err = r.proj.Store.Save(artifacts.KeyFinalAudio, cleaned, prov)
	return err
}

func (r *Runner) runGenerateTitles(ctx context.Context, run *runState) error {
	gen, err := r.titleGenerator()
	if err != nil {
		return err
	}
	transcript, err := r.readTranscript()
	if err != nil {
		return err
	}
	count := 5
	if v := run.param("count"); v != "" {
		count, err = strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid title count %q", v)
		}
	}
	candidates, err := gen.Generate(ctx, titles.GenerateOptions{
		Transcript: transcript,
		Count:      count,
		Style:      run.param("style"),
		Audience:   run.param("audience"),
	})
	if err != nil {
		return fmt.Errorf("generate titles: %w", err)
	}
	data := []byte(strings.Join(candidates, "\n") + "\n")
	prov := run.provenance("gemini", map[string]any{"count": len(candidates)})
	_, err = r.proj.Store.SaveBytes(artifacts.KeyTitlesList, data, ".txt", prov)
	return err
}

func (r *Runner) runCreateThumbnail(ctx context.Context, run *runState) error {
	gen, err := r.thumbnailGenerator()
	if err != nil {
		return err
	}
	title, err := r.selectedTitle()
	if err != nil {
		return err
	}
	count := 4
	if v := run.param("count"); v != "" {
		count, err = strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid thumbnail count %q", v)
		}
	}
	style := run.param("style")
	if style == "" {
		style = r.settings.ThumbnailStyle
	}
	workDir, err := os.MkdirTemp("", "vstudio-thumbs-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	var styles []string
	if style != "" {
		styles = []string{style}
	}
	paths, err := gen.Generate(ctx, thumbnail.GenerateOptions{
		Title:     title,
		Count:     count,
		Styles:    styles,
		OutputDir: workDir,
	})
	if err != nil {
		return fmt.Errorf("generate thumbnails: %w", err)
	}
	for i, path := range paths {
		key := fmt.Sprintf("thumbnail_%d", i+1)
		prov := run.provenance("gemini", map[string]any{"style": style, "variation": i + 1})
		if _, err := r.proj.Store.Save(key, path, prov); err != nil {
			return err
		}
	}
	return nil
}

// runPreview assembles final_video for review: the merged video with the
// final audio muxed in when audio cleanup ran, otherwise the merged video
// as is.
func (r *Runner) runPreview(ctx context.Context, run *runState) error {
	video, err := r.proj.Store.Get(artifacts.KeyMergedVideo)
	if err != nil {
		video, err = r.proj.Store.Get(artifacts.KeyOriginalVideo)
		if err != nil {
			return fmt.Errorf("preview needs a video: %w", err)
		}
	}
	audio, audioErr := r.proj.Store.Get(artifacts.KeyFinalAudio)
	if audioErr != nil {
		_, err = r.proj.Store.Save(artifacts.KeyFinalVideo, video, run.provenance("preview", nil))
		return err
	}

	workDir, err := os.MkdirTemp("", "vstudio-preview-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)
	out := filepath.Join(workDir, "final"+filepath.Ext(video))
	if err := r.deps.ReplaceAudio(media.ReplaceAudioOptions{Video: video, Audio: audio, Output: out}); err != nil {
		return fmt.Errorf("mux final audio: %w", err)
	}
	_, err = r.proj.Store.Save(artifacts.KeyFinalVideo, out, run.provenance("preview", map[string]any{"audio": "final_audio"}))
	return err
}

func (r *Runner) runUpload(ctx context.Context, run *runState) error {
	up, err := r.uploader()
	if err != nil {
		return err
	}
	video, err := r.proj.Store.Get(artifacts.KeyFinalVideo)
	if err != nil {
		return fmt.Errorf("upload needs final_video (run the preview step): %w", err)
	}
	title, err := r.selectedTitle()
	if err != nil {
		return err
	}

	description := run.param("description")
	if timecodes, err := r.proj.Store.Get(artifacts.KeyTimecodes); err == nil {
		if data, err := os.ReadFile(timecodes); err == nil && len(data) > 0 {
			if description != "" {
				description += "\n\n"
			}
			description += strings.TrimSpace(string(data))
		}
	}

	meta := upload.Metadata{
		Title:       titles.Normalize(title),
		Description: description,
		CategoryID:  firstNonEmpty(run.param("category"), r.settings.UploadCategory),
		Privacy:     firstNonEmpty(run.param("privacy"), r.settings.UploadPrivacy),
	}
	if tags := run.param("tags"); tags != "" {
		meta.Tags = strings.Split(tags, ",")
	}

	result, err := up.Upload(ctx, video, meta, nil)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if thumb, err := r.proj.Store.Get(artifacts.KeySelectedThumbnail); err == nil {
		if err := up.SetThumbnail(ctx, result.VideoID, thumb); err != nil {
			return fmt.Errorf("set thumbnail: %w", err)
		}
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	prov := run.provenance("youtube", map[string]any{"video_id": result.VideoID})
	_, err = r.proj.Store.SaveBytes(artifacts.KeyYouTubeMetadata, append(data, '\n'), ".json", prov)
	return err
}

// ---- shared helpers ----

// ensureAudio returns the project's working audio track, extracting it from
// the current video the first time it is needed.
func (r *Runner) ensureAudio(run *runState) (string, error) {
	if path, err := r.proj.Store.Get(artifacts.KeyOriginalAudio); err == nil {
		return path, nil
	}
	video, err := r.proj.Store.Get(artifacts.KeyMergedVideo)
	if err != nil {
		video, err = r.proj.Store.Get(artifacts.KeyOriginalVideo)
		if err != nil {
			return "", fmt.Errorf("no video to extract audio from: %w", err)
		}
	}
	workDir, err := os.MkdirTemp("", "vstudio-extract-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(workDir)
	out := filepath.Join(workDir, "audio.wav")
	if err := r.deps.ExtractAudio(media.ExtractAudioOptions{Input: video, Output: out}); err != nil {
		return "", fmt.Errorf("extract audio: %w", err)
	}
	art, err := r.proj.Store.Save(artifacts.KeyOriginalAudio, out, run.provenance("extract", nil))
	if err != nil {
		return "", err
	}
	return art.Path, nil
}

// readTranscript prefers the corrected transcription, falling back to raw.
func (r *Runner) readTranscript() (string, error) {
	path, err := r.proj.Store.Get(artifacts.KeyFixedTranscription)
	if err != nil {
		path, err = r.proj.Store.Get(artifacts.KeyRawTranscription)
		if err != nil {
			return "", fmt.Errorf("no transcription yet (run the transcribe step): %w", err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// selectedTitle prefers the user's pick, falling back to the first
// generated candidate.
func (r *Runner) selectedTitle() (string, error) {
	if path, err := r.proj.Store.Get(artifacts.KeySelectedTitle); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		if t := strings.TrimSpace(string(data)); t != "" {
			return t, nil
		}
	}
	path, err := r.proj.Store.Get(artifacts.KeyTitlesList)
	if err != nil {
		return "", fmt.Errorf("no title available (run the generate_titles step): %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t, nil
		}
	}
	return "", fmt.Errorf("titles list is empty")
}

func (r *Runner) transcriber() (Transcriber, error) {
	if r.deps.Transcriber != nil {
		return r.deps.Transcriber, nil
	}
	tr, err := transcribe.New(transcribe.Options{APIKey: r.settings.GeminiAPIKey, Model: r.settings.GeminiModel})
	if err != nil {
		return nil, err
	}
	r.deps.Transcriber = tr
	return tr, nil
}

func (r *Runner) titleGenerator() (TitleGenerator, error) {
	if r.deps.Titles != nil {
		return r.deps.Titles, nil
	}
	gen, err := titles.New(titles.Options{APIKey: r.settings.GeminiAPIKey, Model: r.settings.GeminiModel})
	if err != nil {
		return nil, err
	}
	r.deps.Titles = gen
	return gen, nil
}

func (r *Runner) thumbnailGenerator() (ThumbnailGenerator, error) {
	if r.deps.Thumbnails != nil {
		return r.deps.Thumbnails, nil
	}
	gen, err := thumbnail.New(thumbnail.Options{APIKey: r.settings.GeminiAPIKey})
	if err != nil {
		return nil, err
	}
	r.deps.Thumbnails = gen
	return gen, nil
}

func (r *Runner) auphonicCleaner() (AudioCleaner, error) {
	if r.deps.Auphonic != nil {
		return r.deps.Auphonic, nil
	}
	ap, err := audioclean.NewAuphonic(audioclean.AuphonicOptions{APIKey: r.settings.AuphonicAPIKey})
	if err != nil {
		return nil, err
	}
	r.deps.Auphonic = ap
	return ap, nil
}

func (r *Runner) uploader() (Uploader, error) {
	if r.deps.Uploader != nil {
		return r.deps.Uploader, nil
	}
	up, err := upload.New(upload.Options{
		ClientID:     r.settings.YouTubeClientID,
		ClientSecret: r.settings.YouTubeClientSecret,
		RefreshToken: r.settings.YouTubeRefreshToken,
	})
	if err != nil {
		return nil, err
	}
	r.deps.Uploader = up
	return up, nil
}

func trimRange(run *runState) (start, end float64, ok bool, err error) {
	s, e := run.param("trim_start"), run.param("trim_end")
	if s == "" && e == "" {
		return 0, 0, false, nil
	}
	if s != "" {
		start, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, 0, false, fmt.Errorf("invalid trim_start %q", s)
		}
	}
	if e != "" {
		end, err = strconv.ParseFloat(e, 64)
		if err != nil {
			return 0, 0, false, fmt.Errorf("invalid trim_end %q", e)
		}
	}
	return start, end, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
