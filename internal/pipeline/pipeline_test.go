package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"video-studio/internal/artifacts"
	"video-studio/internal/audioclean"
	"video-studio/internal/config"
	"video-studio/internal/media"
	"video-studio/internal/project"
	"video-studio/internal/thumbnail"
	"video-studio/internal/titles"
	"video-studio/internal/upload"
	"video-studio/internal/workflow"
)

type fakeTranscriber struct{ calls []string }

func (f *fakeTranscriber) Transcribe(_ context.Context, audioPath, _ string) (string, error) {
	f.calls = append(f.calls, "transcribe")
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("audio path not readable: %w", err)
	}
	return "raw words", nil
}
func (f *fakeTranscriber) FixTranscription(_ context.Context, raw string) (string, error) {
	f.calls = append(f.calls, "fix")
	return "fixed: " + raw, nil
}
func (f *fakeTranscriber) GenerateTimecodes(_ context.Context, _ string) (string, error) {
	f.calls = append(f.calls, "timecodes")
	return "00:00 Intro", nil
}
func (f *fakeTranscriber) ExtractKeyMoments(_ context.Context, _ string) (string, error) {
	f.calls = append(f.calls, "moments")
	return "- the big reveal", nil
}

type fakeTitles struct{ fail bool }

func (f *fakeTitles) Generate(_ context.Context, opts titles.GenerateOptions) ([]string, error) {
	if f.fail {
		return nil, errors.New("model unavailable")
	}
	return []string{"First Title", "Second Title"}, nil
}

type fakeThumbnails struct{}

func (fakeThumbnails) Generate(_ context.Context, opts thumbnail.GenerateOptions) ([]string, error) {
	var out []string
	for i := 0; i < opts.Count; i++ {
		p := filepath.Join(opts.OutputDir, fmt.Sprintf("thumb_%d.jpg", i+1))
		if err := os.WriteFile(p, []byte("jpeg"), 0o644); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type fakeUploader struct {
	lastMeta  upload.Metadata
	thumbnail string
}

func (f *fakeUploader) Upload(_ context.Context, videoPath string, meta upload.Metadata, _ upload.ProgressFunc) (*upload.Result, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, err
	}
	f.lastMeta = meta
	return &upload.Result{VideoID: "vid42", URL: "https://www.youtube.com/watch?v=vid42", Title: meta.Title, Privacy: meta.Privacy}, nil
}
func (f *fakeUploader) SetThumbnail(_ context.Context, videoID, thumbnailPath string) error {
	f.thumbnail = thumbnailPath
	return nil
}

// copyTo fakes an ffmpeg pass by copying input bytes to the output path.
func copyTo(t *testing.T, input, output string) error {
	t.Helper()
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0o644)
}

func fakeDeps(t *testing.T) (Deps, *fakeTranscriber, *fakeUploader) {
	t.Helper()
	tr := &fakeTranscriber{}
	up := &fakeUploader{}
	deps := Deps{
		Transcriber: tr,
		Titles:      &fakeTitles{},
		Thumbnails:  fakeThumbnails{},
		Uploader:    up,
		Probe: func(path string) (media.VideoInfo, error) {
			if _, err := os.Stat(path); err != nil {
				return media.VideoInfo{}, err
			}
			return media.VideoInfo{Duration: 12.5, Width: 1920, Height: 1080, Codec: "h264", HasAudio: true}, nil
		},
		Trim: func(opts media.TrimOptions) error {
			return copyTo(t, opts.Input, opts.Output)
		},
		Merge: func(opts media.MergeOptions) error {
			return copyTo(t, opts.Inputs[0], opts.Output)
		},
		ExtractAudio: func(opts media.ExtractAudioOptions) error {
			return os.WriteFile(opts.Output, []byte("wav-bytes"), 0o644)
		},
		ReplaceAudio: func(opts media.ReplaceAudioOptions) error {
			return copyTo(t, opts.Video, opts.Output)
		},
		CleanBuiltin: func(opts audioclean.BuiltinOptions) error {
			return copyTo(t, opts.Input, opts.Output)
		},
	}
	return deps, tr, up
}

func newTestRunner(t *testing.T) (*Runner, *project.Project, *fakeUploader) {
	t.Helper()
	proj, err := project.Create(t.TempDir(), "Test Video")
	if err != nil {
		t.Fatal(err)
	}
	deps, _, up := fakeDeps(t)
	r, err := NewRunner(Options{
		Project: proj,
		Settings: config.Settings{
			UploadPrivacy:  config.PrivacyUnlisted,
			UploadCategory: "22",
			AudioPreset:    config.PresetMedium,
			ThumbnailStyle: "modern",
		},
		Deps: deps,
	})
	if err != nil {
		t.Fatal(err)
	}
	return r, proj, up
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func mustRun(t *testing.T, r *Runner, step string, params map[string]string) {
	t.Helper()
	res, err := r.RunStep(context.Background(), step, params)
	if err != nil {
		t.Fatalf("%s: %v", step, err)
	}
	if !res.OK() {
		t.Fatalf("%s failed: %s", step, res.Err)
	}
}

func TestRunNextStartsWithImport(t *testing.T) {
	r, proj, _ := newTestRunner(t)
	source := writeSource(t, "raw.mp4", "video-bytes")

	res, err := r.RunNext(context.Background(), map[string]string{"source": source})
	if err != nil {
		t.Fatal(err)
	}
	if res.Step != workflow.StepImportVideo || !res.OK() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.RunID == "" {
		t.Error("result should carry a run id")
	}

	path, err := proj.Store.Get(artifacts.KeyOriginalVideo)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "video-bytes" {
		t.Errorf("stored video content = %q", data)
	}
	meta := proj.Store.Metadata(artifacts.KeyOriginalVideo)
	if meta["codec"] != "h264" {
		t.Errorf("probe metadata not stamped: %v", meta)
	}
	if meta["run_id"] == "" || meta["run_id"] == nil {
		t.Error("provenance run_id missing")
	}
	if next := proj.Workflow.NextStep(); next != workflow.StepEditTrim {
		t.Errorf("next step = %q, want edit_trim", next)
	}
}

func TestImportRequiresSource(t *testing.T) {
	r, proj, _ := newTestRunner(t)
	res, err := r.RunStep(context.Background(), workflow.StepImportVideo, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK() {
		t.Fatal("import without source should fail")
	}
	status, err := proj.Workflow.Status(workflow.StepImportVideo)
	if err != nil {
		t.Fatal(err)
	}
	if status.Error == "" || status.Completed {
		t.Errorf("error should be recorded in workflow state: %+v", status)
	}
	// An errored step stays eligible for retry.
	if next := proj.Workflow.NextStep(); next != workflow.StepImportVideo {
		t.Errorf("next step = %q, want import_video", next)
	}
}

func TestEditTrimWithRangeAndOutro(t *testing.T) {
	r, proj, _ := newTestRunner(t)
	source := writeSource(t, "raw.mp4", "main-part")
	outro := writeSource(t, "outro.mp4", "outro-part")

	mustRun(t, r, workflow.StepImportVideo, map[string]string{"source": source, "outro": outro})
	mustRun(t, r, workflow.StepEditTrim, map[string]string{"trim_start": "1.5", "trim_end": "10"})

	path, err := proj.Store.Get(artifacts.KeyMergedVideo)
	if err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(path); string(data) != "main-part" {
		t.Errorf("merged content = %q", data)
	}
	meta := proj.Store.Metadata(artifacts.KeyMergedVideo)
	if meta["trim_start"] != 1.5 || meta["clips"] != 2.0 {
		t.Errorf("edit provenance = %v", meta)
	}
}

func TestEditTrimRejectsBadRange(t *testing.T) {
	r, _, _ := newTestRunner(t)
	source := writeSource(t, "raw.mp4", "x")
	mustRun(t, r, workflow.StepImportVideo, map[string]string{"source": source})
	res, err := r.RunStep(context.Background(), workflow.StepEditTrim, map[string]string{"trim_start": "abc"})
	if err != nil {
		t.Fatal(err)
	}
	if res.OK() || !strings.Contains(res.Err, "trim_start") {
		t.Fatalf("expected trim_start error, got %+v", res)
	}
}

func TestTranscribeExtractsAudioAndSavesAll(t *testing.T) {
	r, proj, _ := newTestRunner(t)
	source := writeSource(t, "raw.mp4", "x")
	mustRun(t, r, workflow.StepImportVideo, map[string]string{"source": source})
	mustRun(t, r, workflow.StepTranscribe, nil)

	for _, key := range []string{
		artifacts.KeyOriginalAudio,
		artifacts.KeyRawTranscription,
		artifacts.KeyFixedTranscription,
		artifacts.KeyTimecodes,
		artifacts.KeyKeyMoments,
	} {
		if !proj.Store.Has(key) {
			t.Errorf("missing artifact %q after transcribe", key)
		}
	}
	path, _ := proj.Store.Get(artifacts.KeyFixedTranscription)
	if data, _ := os.ReadFile(path); string(data) != "fixed: raw words" {
		t.Errorf("fixed transcription = %q", data)
	}
}

func TestCleanAudioBuiltin(t *testing.T) {
	r, proj, _ := newTestRunner(t)
	source := writeSource(t, "raw.mp4", "x")
	mustRun(t, r, workflow.StepImportVideo, map[string]string{"source": source})
	mustRun(t, r, workflow.StepCleanAudio, nil)

	if !proj.Store.Has(artifacts.KeyCleanedAudio) || !proj.Store.Has(artifacts.KeyFinalAudio) {
		t.Fatal("cleanup should save cleaned_audio and final_audio")
	}
	meta := proj.Store.Metadata(artifacts.KeyCleanedAudio)
	if meta["method"] != "builtin" || meta["preset"] != config.PresetMedium {
		t.Errorf("cleanup provenance = %v", meta)
	}
}

type fakeAudioCleaner struct{ preset string }

func (f *fakeAudioCleaner) Clean(_ context.Context, inputPath, outputPath, preset string) error {
	f.preset = preset
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

func TestCleanAudioAuphonic(t *testing.T) {
	proj, err := project.Create(t.TempDir(), "Test Video")
	if err != nil {
		t.Fatal(err)
	}
	deps, _, _ := fakeDeps(t)
	cleaner := &fakeAudioCleaner{}
	deps.Auphonic = cleaner
	r, err := NewRunner(Options{
		Project: proj,
		Settings: config.Settings{
			UploadPrivacy:  config.PrivacyUnlisted,
			UploadCategory: "22",
			AudioPreset:    config.PresetMedium,
			ThumbnailStyle: "modern",
		},
		Deps: deps,
	})
	if err != nil {
		t.Fatal(err)
	}
	source := writeSource(t, "raw.mp4", "x")
	mustRun(t, r, workflow.StepImportVideo, map[string]string{"source": source})
	mustRun(t, r, workflow.StepCleanAudio, map[string]string{"method": "auphonic"})

	if cleaner.preset != config.PresetMedium {
		t.Errorf("auphonic preset = %q, want %q", cleaner.preset, config.PresetMedium)
	}
	if !proj.Store.Has(artifacts.KeyAuphonicAudio) || !proj.Store.Has(artifacts.KeyFinalAudio) {
		t.Fatal("auphonic cleanup should save auphonic_audio and final_audio")
	}
	meta := proj.Store.Metadata(artifacts.KeyAuphonicAudio)
	if meta["method"] != "auphonic" || meta["preset"] != config.PresetMedium {
		t.Errorf("cleanup provenance = %v", meta)
	}
}

func TestCleanAudioUnknownMethod(t *testing.T) {
	r, _, _ := newTestRunner(t)
	source := writeSource(t, "raw.mp4", "x")
	mustRun(t, r, workflow.StepImportVideo, map[string]string{"source": source})
	res, err := r.RunStep(context.Background(), workflow.StepCleanAudio, map[string]string{"method": "magic"})
	if err != nil {
		t.Fatal(err)
	}
	if res.OK() || !strings.Contains(res.Err, "magic") {
		t.Fatalf("expected unknown method error, got %+v", res)
	}
}

func TestGenerateTitlesNeedsTranscript(t *testing.T) {
	r, _, _ := newTestRunner(t)
	source := writeSource(t, "raw.mp4", "x")
	mustRun(t, r, workflow.StepImportVideo, map[string]string{"source": source})

	res, err := r.RunStep(context.Background(), workflow.StepGenerateTitles, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK() || !strings.Contains(res.Err, "transcription") {
		t.Fatalf("expected missing transcript error, got %+v", res)
	}
}

func TestUploadUsesSelectedTitleAndThumbnail(t *testing.T) {
	r, proj, up := newTestRunner(t)
	source := writeSource(t, "raw.mp4", "video-bytes")
	mustRun(t, r, workflow.StepImportVideo, map[string]string{"source": source})
	mustRun(t, r, workflow.StepTranscribe, nil)
	mustRun(t, r, workflow.StepPreview, nil)

	if _, err := proj.Store.SaveBytes(artifacts.KeySelectedTitle, []byte("My Chosen Title\n"), ".txt", nil); err != nil {
		t.Fatal(err)
	}
	thumb := writeSource(t, "pick.jpg", "jpeg")
	if _, err := proj.Store.Save(artifacts.KeySelectedThumbnail, thumb, nil); err != nil {
		t.Fatal(err)
	}

	mustRun(t, r, workflow.StepUploadYouTube, map[string]string{"tags": "studio,diy"})

	if up.lastMeta.Title != "My Chosen Title" {
		t.Errorf("uploaded title = %q", up.lastMeta.Title)
	}
	if up.lastMeta.Privacy != config.PrivacyUnlisted || up.lastMeta.CategoryID != "22" {
		t.Errorf("metadata defaults not applied: %+v", up.lastMeta)
	}
	if len(up.lastMeta.Tags) != 2 {
		t.Errorf("tags = %v", up.lastMeta.Tags)
	}
	if !strings.Contains(up.lastMeta.Description, "00:00 Intro") {
		t.Errorf("description should include timecodes: %q", up.lastMeta.Description)
	}
	if up.thumbnail == "" {
		t.Error("selected thumbnail should be set on the video")
	}
	if !proj.Store.Has(artifacts.KeyYouTubeMetadata) {
		t.Error("youtube_metadata artifact missing")
	}
}

func TestRunAllCompletesWorkflow(t *testing.T) {
	r, proj, _ := newTestRunner(t)
	source := writeSource(t, "raw.mp4", "video-bytes")

	results, err := r.RunAll(context.Background(), map[string]string{"source": source})
	if err != nil {
		t.Fatal(err)
	}
	if !proj.Workflow.Done() {
		var failed []string
		for _, res := range results {
			if !res.OK() {
				failed = append(failed, res.Step+": "+res.Err)
			}
		}
		t.Fatalf("workflow not done, failures: %v", failed)
	}
	if len(results) != len(workflow.Steps) {
		t.Errorf("ran %d steps, want %d", len(results), len(workflow.Steps))
	}
	for _, key := range []string{
		artifacts.KeyOriginalVideo,
		artifacts.KeyMergedVideo,
		artifacts.KeyFinalAudio,
		artifacts.KeyTitlesList,
		artifacts.KeyThumbnail1,
		artifacts.KeyFinalVideo,
		artifacts.KeyYouTubeMetadata,
	} {
		if !proj.Store.Has(key) {
			t.Errorf("missing artifact %q after full run", key)
		}
	}
}

func TestRunAllStopsAtFailedStep(t *testing.T) {
	proj, err := project.Create(t.TempDir(), "Fail Case")
	if err != nil {
		t.Fatal(err)
	}
	deps, _, _ := fakeDeps(t)
	deps.Titles = &fakeTitles{fail: true}
	r, err := NewRunner(Options{Project: proj, Settings: config.Settings{AudioPreset: config.PresetLight}, Deps: deps})
	if err != nil {
		t.Fatal(err)
	}
	source := writeSource(t, "raw.mp4", "x")

	results, err := r.RunAll(context.Background(), map[string]string{"source": source})
	if err != nil {
		t.Fatal(err)
	}
	last := results[len(results)-1]
	if last.Step != workflow.StepGenerateTitles || last.OK() {
		t.Fatalf("expected generate_titles failure last, got %+v", last)
	}
	status, err := proj.Workflow.Status(workflow.StepGenerateTitles)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(status.Error, "model unavailable") {
		t.Errorf("workflow error = %q", status.Error)
	}
}

func TestRunStepUnknownStep(t *testing.T) {
	r, _, _ := newTestRunner(t)
	_, err := r.RunStep(context.Background(), "publish_tiktok", nil)
	if !errors.Is(err, workflow.ErrUnknownStep) {
		t.Fatalf("expected ErrUnknownStep, got %v", err)
	}
}

func TestSkippedStepsAreNotRun(t *testing.T) {
	r, proj, _ := newTestRunner(t)
	source := writeSource(t, "raw.mp4", "x")
	for _, step := range []string{
		workflow.StepCleanAudio,
		workflow.StepCreateThumbnail,
		workflow.StepUploadYouTube,
	} {
		if err := proj.Workflow.Disable(step); err != nil {
			t.Fatal(err)
		}
	}

	results, err := r.RunAll(context.Background(), map[string]string{"source": source})
	if err != nil {
		t.Fatal(err)
	}
	for _, res := range results {
		if res.Step == workflow.StepCleanAudio || res.Step == workflow.StepUploadYouTube {
			t.Errorf("disabled step %q was run", res.Step)
		}
	}
	if !proj.Workflow.Done() {
		t.Error("workflow with disabled steps should still finish")
	}
	if proj.Store.Has(artifacts.KeyYouTubeMetadata) {
		t.Error("upload artifacts must not exist when upload is disabled")
	}
}
