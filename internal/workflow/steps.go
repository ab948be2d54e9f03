package workflow

// Step names in the fixed pipeline vocabulary.
const (
	StepImportVideo     = "import_video"
	StepEditTrim        = "edit_trim"
	StepTranscribe      = "transcribe"
	StepCleanAudio      = "clean_audio"
	StepGenerateTitles  = "generate_titles"
	StepCreateThumbnail = "create_thumbnail"
	StepPreview         = "preview"
	StepUploadYouTube   = "upload_youtube"
)

// Steps is the canonical step ordering shared by every project. The order
// encodes all sequencing intent: each step's processor consumes the
// previous step's artifacts, so there is no dependency graph beyond it.
var Steps = []string{
	StepImportVideo,
	StepEditTrim,
	StepTranscribe,
	StepCleanAudio,
	StepGenerateTitles,
	StepCreateThumbnail,
	StepPreview,
	StepUploadYouTube,
}

// StepLabels maps step names to human-readable names for display.
var StepLabels = map[string]string{
	StepImportVideo:     "Import video",
	StepEditTrim:        "Edit and trim",
	StepTranscribe:      "Transcribe",
	StepCleanAudio:      "Clean audio",
	StepGenerateTitles:  "Generate titles",
	StepCreateThumbnail: "Create thumbnail",
	StepPreview:         "Preview",
	StepUploadYouTube:   "Upload to YouTube",
}
